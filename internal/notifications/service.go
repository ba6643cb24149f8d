// Package notifications pushes terminal queue transitions to an external
// ntfy topic. The queue calls the hook; it does not implement delivery UX.
package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"docdrop/internal/config"
)

const userAgent = "docdrop/0.1.0"

// Service defines the notification surface invoked on terminal transitions.
type Service interface {
	NotifyDocumentDelivered(ctx context.Context, title, taskRef string) error
	NotifyDocumentFailed(ctx context.Context, title, reason string) error
	NotifyQueueDrained(ctx context.Context, delivered, failed int, duration time.Duration) error
	TestNotification(ctx context.Context) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ntfyService{
		endpoint:        topic,
		client:          &http.Client{Timeout: timeout},
		notifyDelivered: cfg.Notifications.Delivered,
		notifyFailed:    cfg.Notifications.Failed,
		notifyQueue:     cfg.Notifications.Queue,
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint        string
	client          *http.Client
	notifyDelivered bool
	notifyFailed    bool
	notifyQueue     bool
}

func (n *ntfyService) NotifyDocumentDelivered(ctx context.Context, title, taskRef string) error {
	if !n.notifyDelivered {
		return nil
	}
	title = strings.TrimSpace(title)
	message := fmt.Sprintf("Delivered: %s", title)
	if taskRef = strings.TrimSpace(taskRef); taskRef != "" {
		message = fmt.Sprintf("%s\nTask: %s", message, taskRef)
	}
	return n.send(ctx, payload{
		title:   "docdrop - Delivered",
		message: message,
		tags:    []string{"docdrop", "upload", "completed"},
	})
}

func (n *ntfyService) NotifyDocumentFailed(ctx context.Context, title, reason string) error {
	if !n.notifyFailed {
		return nil
	}
	title = strings.TrimSpace(title)
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = "unknown"
	}
	return n.send(ctx, payload{
		title:    "docdrop - Upload Failed",
		message:  fmt.Sprintf("Failed: %s\nReason: %s", title, reason),
		tags:     []string{"docdrop", "upload", "failed"},
		priority: "high",
	})
}

func (n *ntfyService) NotifyQueueDrained(ctx context.Context, delivered, failed int, duration time.Duration) error {
	if !n.notifyQueue {
		return nil
	}
	duration = duration.Round(time.Second)
	if duration < 0 {
		duration = 0
	}

	var title, message string
	if failed == 0 {
		title = "docdrop - Queue Drained"
		message = fmt.Sprintf("Queue drained: %d documents delivered in %s", delivered, duration)
	} else {
		title = "docdrop - Queue Drained (with errors)"
		message = fmt.Sprintf("Queue drained: %d delivered, %d failed in %s", delivered, failed, duration)
	}
	return n.send(ctx, payload{
		title:   title,
		message: message,
		tags:    []string{"docdrop", "queue", "drained"},
	})
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	return n.send(ctx, payload{
		title:    "docdrop - Test",
		message:  "Notification system test",
		tags:     []string{"docdrop", "test"},
		priority: "low",
	})
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) NotifyDocumentDelivered(context.Context, string, string) error      { return nil }
func (noopService) NotifyDocumentFailed(context.Context, string, string) error         { return nil }
func (noopService) NotifyQueueDrained(context.Context, int, int, time.Duration) error  { return nil }
func (noopService) TestNotification(context.Context) error                             { return nil }
