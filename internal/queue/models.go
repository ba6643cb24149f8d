package queue

import (
	"encoding/json"
	"strings"
	"time"
)

// Status represents the lifecycle of a queue item.
type Status string

const (
	StatusPending   Status = "pending"
	StatusUploading Status = "uploading"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

var allStatuses = []Status{
	StatusPending,
	StatusUploading,
	StatusCompleted,
	StatusFailed,
	StatusCancelled,
}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

var terminalStatuses = map[Status]struct{}{
	StatusCompleted: {},
	StatusFailed:    {},
	StatusCancelled: {},
}

// AllStatuses returns the ordered list of known statuses.
func AllStatuses() []Status {
	cp := make([]Status, len(allStatuses))
	copy(cp, allStatuses)
	return cp
}

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := statusSet[normalized]
	return normalized, ok
}

// IsTerminalStatus reports whether a status permits no further automatic transition.
func IsTerminalStatus(status Status) bool {
	_, ok := terminalStatuses[status]
	return ok
}

// Metadata carries the document attributes passed through verbatim to the
// delivery call. The queue never interprets them.
type Metadata struct {
	Title           string  `json:"title,omitempty"`
	Tags            []int64 `json:"tags,omitempty"`
	DocumentTypeID  *int64  `json:"document_type,omitempty"`
	CorrespondentID *int64  `json:"correspondent,omitempty"`
}

// Encode serializes metadata for storage.
func (m Metadata) Encode() (string, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// DecodeMetadata parses a stored metadata blob. An empty blob yields the zero value.
func DecodeMetadata(blob string) (Metadata, error) {
	var meta Metadata
	if strings.TrimSpace(blob) == "" {
		return meta, nil
	}
	err := json.Unmarshal([]byte(blob), &meta)
	return meta, err
}

// Item represents a queue item persisted in SQLite.
type Item struct {
	ID               int64
	SourcePath       string
	OriginalName     string
	MetadataJSON     string
	Status           Status
	AttemptCount     int
	CreatedAt        time.Time
	UpdatedAt        time.Time
	LastAttemptAt    *time.Time
	NotBefore        *time.Time
	RemoteTaskRef    string
	LastErrorKind    string
	LastErrorMessage string
	LastHeartbeat    *time.Time
}

// IsTerminal reports whether the item reached a terminal state.
func (i Item) IsTerminal() bool {
	return IsTerminalStatus(i.Status)
}

// Metadata decodes the stored metadata blob.
func (i Item) Metadata() (Metadata, error) {
	return DecodeMetadata(i.MetadataJSON)
}

// DisplayTitle returns the metadata title or the original file name.
func (i Item) DisplayTitle() string {
	meta, err := i.Metadata()
	if err == nil && strings.TrimSpace(meta.Title) != "" {
		return meta.Title
	}
	if name := strings.TrimSpace(i.OriginalName); name != "" {
		return name
	}
	return i.SourcePath
}

// SetFailed marks the item as permanently failed with a structured error.
func (i *Item) SetFailed(kind, message string) {
	i.Status = StatusFailed
	i.LastErrorKind = kind
	i.LastErrorMessage = message
	i.NotBefore = nil
	i.LastHeartbeat = nil
}

// HealthSummary describes aggregated queue counts per lifecycle state.
type HealthSummary struct {
	Total     int
	Pending   int
	Uploading int
	Completed int
	Failed    int
	Cancelled int
}
