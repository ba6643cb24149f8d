package ipc

import (
	"encoding/json"
	"time"

	"docdrop/internal/queue"
)

// timeFormat is used for timestamps in IPC payloads.
const timeFormat = time.RFC3339

// QueueItem describes a queue entry in a transport-friendly format.
type QueueItem struct {
	ID               int64           `json:"id"`
	Title            string          `json:"title"`
	OriginalName     string          `json:"originalName"`
	StagedPath       string          `json:"stagedPath"`
	Status           string          `json:"status"`
	AttemptCount     int             `json:"attemptCount"`
	CreatedAt        string          `json:"createdAt,omitempty"`
	UpdatedAt        string          `json:"updatedAt,omitempty"`
	LastAttemptAt    string          `json:"lastAttemptAt,omitempty"`
	NextAttemptAt    string          `json:"nextAttemptAt,omitempty"`
	RemoteTaskRef    string          `json:"remoteTaskRef,omitempty"`
	LastErrorKind    string          `json:"lastErrorKind,omitempty"`
	LastErrorMessage string          `json:"lastErrorMessage,omitempty"`
	Metadata         json.RawMessage `json:"metadata,omitempty"`
}

// FromQueueItem converts a stored item into its wire representation.
func FromQueueItem(item *queue.Item) QueueItem {
	dto := QueueItem{
		ID:               item.ID,
		Title:            item.DisplayTitle(),
		OriginalName:     item.OriginalName,
		StagedPath:       item.SourcePath,
		Status:           string(item.Status),
		AttemptCount:     item.AttemptCount,
		RemoteTaskRef:    item.RemoteTaskRef,
		LastErrorKind:    item.LastErrorKind,
		LastErrorMessage: item.LastErrorMessage,
	}
	if !item.CreatedAt.IsZero() {
		dto.CreatedAt = item.CreatedAt.Format(timeFormat)
	}
	if !item.UpdatedAt.IsZero() {
		dto.UpdatedAt = item.UpdatedAt.Format(timeFormat)
	}
	if item.LastAttemptAt != nil {
		dto.LastAttemptAt = item.LastAttemptAt.Format(timeFormat)
	}
	if item.NotBefore != nil {
		dto.NextAttemptAt = item.NotBefore.Format(timeFormat)
	}
	if item.MetadataJSON != "" {
		dto.Metadata = json.RawMessage(item.MetadataJSON)
	}
	return dto
}

// AddRequest enqueues a document for delivery.
type AddRequest struct {
	Path            string  `json:"path"`
	Title           string  `json:"title"`
	Tags            []int64 `json:"tags"`
	DocumentTypeID  *int64  `json:"documentTypeId"`
	CorrespondentID *int64  `json:"correspondentId"`
}

// AddResponse reports the created queue entry.
type AddResponse struct {
	Item QueueItem `json:"item"`
}

// StartRequest triggers daemon scheduler startup.
type StartRequest struct{}

// StartResponse indicates whether processing was started.
type StartResponse struct {
	Started bool   `json:"started"`
	Message string `json:"message"`
}

// StopRequest stops daemon processing.
type StopRequest struct{}

// StopResponse indicates stop result.
type StopResponse struct {
	Stopped bool `json:"stopped"`
}

// StatusRequest fetches daemon status.
type StatusRequest struct{}

// StatusResponse represents combined daemon/scheduler status information.
type StatusResponse struct {
	Running        bool           `json:"running"`
	Draining       bool           `json:"draining"`
	QueueStats     map[string]int `json:"queue_stats"`
	Connectivity   string         `json:"connectivity"`
	ServerOnline   bool           `json:"server_online"`
	OfflineReason  string         `json:"offline_reason,omitempty"`
	LastDrainAt    string         `json:"last_drain_at,omitempty"`
	LastDrainError string         `json:"last_drain_error,omitempty"`
	NextRetryAt    string         `json:"next_retry_at,omitempty"`
	BatteryGated   bool           `json:"battery_gated"`
	LockPath       string         `json:"lock_path"`
	QueueDBPath    string         `json:"queue_db_path"`
	ServerURL      string         `json:"server_url"`
	PID            int            `json:"pid"`
}

// QueueListRequest filters queue listing by status.
type QueueListRequest struct {
	Statuses []string `json:"statuses"`
}

// QueueListResponse contains queue entries.
type QueueListResponse struct {
	Items []QueueItem `json:"items"`
}

// QueueDescribeRequest fetches a single queue item by id.
type QueueDescribeRequest struct {
	ID int64 `json:"id"`
}

// QueueDescribeResponse contains a single queue entry.
type QueueDescribeResponse struct {
	Item QueueItem `json:"item"`
}

// QueueRetryRequest retries failed items. Empty list means all failed items.
type QueueRetryRequest struct {
	IDs []int64 `json:"ids"`
}

// QueueRetryResponse reports number of retried items.
type QueueRetryResponse struct {
	Updated int64 `json:"updated"`
}

// QueueCancelRequest cancels a pending item.
type QueueCancelRequest struct {
	ID int64 `json:"id"`
}

// QueueCancelResponse reports cancel result.
type QueueCancelResponse struct {
	Cancelled bool `json:"cancelled"`
}

// QueueRemoveRequest removes a terminal item by ID.
type QueueRemoveRequest struct {
	ID int64 `json:"id"`
}

// QueueRemoveResponse reports removal result.
type QueueRemoveResponse struct {
	Removed bool `json:"removed"`
}

// QueueClearCompletedRequest removes completed items.
type QueueClearCompletedRequest struct{}

// QueueClearCompletedResponse reports number of removed entries.
type QueueClearCompletedResponse struct {
	Removed int64 `json:"removed"`
}

// QueueClearFailedRequest removes failed items.
type QueueClearFailedRequest struct{}

// QueueClearFailedResponse reports number of removed entries.
type QueueClearFailedResponse struct {
	Removed int64 `json:"removed"`
}

// QueueHealthRequest fetches aggregate diagnostics.
type QueueHealthRequest struct{}

// QueueHealthResponse reports queue health information.
type QueueHealthResponse struct {
	Total     int `json:"total"`
	Pending   int `json:"pending"`
	Uploading int `json:"uploading"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	Cancelled int `json:"cancelled"`
}

// ServerHealthRequest probes the configured document server.
type ServerHealthRequest struct{}

// ServerHealthResponse reports the reachability classification.
type ServerHealthResponse struct {
	Online  bool   `json:"online"`
	Reason  string `json:"reason,omitempty"`
	Message string `json:"message,omitempty"`
	Detail  string `json:"detail,omitempty"`
}

// TestNotificationRequest triggers a notification test.
type TestNotificationRequest struct{}

// TestNotificationResponse reports notification test outcome.
type TestNotificationResponse struct {
	Sent    bool   `json:"sent"`
	Message string `json:"message"`
}
