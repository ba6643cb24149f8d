package queue

import (
	"context"
	"fmt"
	"time"
)

// BeginAttempt transitions a pending item to uploading, incrementing its
// attempt count and stamping the attempt time. The update is guarded on the
// pending status so a concurrent cancel wins the race: the method returns
// nil when the item is no longer pending.
func (s *Store) BeginAttempt(ctx context.Context, id int64) (*Item, error) {
	now := time.Now().UTC()
	timestamp := now.Format(time.RFC3339Nano)
	res, err := s.execWithRetry(
		ctx,
		`UPDATE queue_items
         SET status = ?, attempt_count = attempt_count + 1,
             last_attempt_at = ?, last_heartbeat = ?, not_before = NULL,
             last_error_kind = NULL, last_error_message = NULL, updated_at = ?
         WHERE id = ? AND status = ?`,
		StatusUploading,
		timestamp,
		timestamp,
		timestamp,
		id,
		StatusPending,
	)
	if err != nil {
		return nil, fmt.Errorf("begin attempt: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return nil, nil
	}
	return s.GetByID(ctx, id)
}

// MarkCompleted transitions an uploading item to completed with the task
// reference returned by the server. Guarded on the uploading status so a
// completion is recorded at most once per delivery.
func (s *Store) MarkCompleted(ctx context.Context, id int64, remoteTaskRef string) (bool, error) {
	res, err := s.execWithRetry(
		ctx,
		`UPDATE queue_items
         SET status = ?, remote_task_ref = ?, not_before = NULL,
             last_heartbeat = NULL, updated_at = ?
         WHERE id = ? AND status = ?`,
		StatusCompleted,
		nullableString(remoteTaskRef),
		time.Now().UTC().Format(time.RFC3339Nano),
		id,
		StatusUploading,
	)
	if err != nil {
		return false, fmt.Errorf("mark completed: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

// MarkFailed transitions an uploading item to its permanent failed state
// with a structured error.
func (s *Store) MarkFailed(ctx context.Context, id int64, kind, message string) (bool, error) {
	res, err := s.execWithRetry(
		ctx,
		`UPDATE queue_items
         SET status = ?, last_error_kind = ?, last_error_message = ?,
             not_before = NULL, last_heartbeat = NULL, updated_at = ?
         WHERE id = ? AND status = ?`,
		StatusFailed,
		nullableString(kind),
		nullableString(message),
		time.Now().UTC().Format(time.RFC3339Nano),
		id,
		StatusUploading,
	)
	if err != nil {
		return false, fmt.Errorf("mark failed: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

// ReturnForRetry puts an uploading item back to pending with a backoff
// deadline. The structured error from the failed attempt is retained for
// diagnostics until the next attempt begins.
func (s *Store) ReturnForRetry(ctx context.Context, id int64, notBefore time.Time, kind, message string) (bool, error) {
	res, err := s.execWithRetry(
		ctx,
		`UPDATE queue_items
         SET status = ?, not_before = ?, last_error_kind = ?, last_error_message = ?,
             last_heartbeat = NULL, updated_at = ?
         WHERE id = ? AND status = ?`,
		StatusPending,
		notBefore.UTC().Format(time.RFC3339Nano),
		nullableString(kind),
		nullableString(message),
		time.Now().UTC().Format(time.RFC3339Nano),
		id,
		StatusUploading,
	)
	if err != nil {
		return false, fmt.Errorf("return for retry: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

// Cancel transitions a pending item to cancelled. Items already claimed by
// the worker cannot be cancelled; the in-flight attempt runs to completion.
func (s *Store) Cancel(ctx context.Context, id int64) (bool, error) {
	res, err := s.execWithRetry(
		ctx,
		`UPDATE queue_items
         SET status = ?, not_before = NULL, updated_at = ?
         WHERE id = ? AND status = ?`,
		StatusCancelled,
		time.Now().UTC().Format(time.RFC3339Nano),
		id,
		StatusPending,
	)
	if err != nil {
		return false, fmt.Errorf("cancel item: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

// RetryFailed moves failed items back to pending for redelivery. This is the
// explicit user action: the attempt count restarts from zero, unlike the
// automatic backoff retry. With no ids, all failed items are retried.
func (s *Store) RetryFailed(ctx context.Context, ids ...int64) (int64, error) {
	timestamp := time.Now().UTC().Format(time.RFC3339Nano)
	if len(ids) == 0 {
		res, err := s.execWithRetry(
			ctx,
			`UPDATE queue_items
            SET status = ?, attempt_count = 0, not_before = NULL,
                last_error_kind = NULL, last_error_message = NULL, updated_at = ?
            WHERE status = ?`,
			StatusPending,
			timestamp,
			StatusFailed,
		)
		if err != nil {
			return 0, fmt.Errorf("retry failed items: %w", err)
		}
		return res.RowsAffected()
	}

	placeholders := makePlaceholders(len(ids))
	args := make([]any, 0, len(ids)+2)
	args = append(args, StatusPending, timestamp)
	for _, id := range ids {
		args = append(args, id)
	}
	query := `UPDATE queue_items
        SET status = ?, attempt_count = 0, not_before = NULL,
            last_error_kind = NULL, last_error_message = NULL, updated_at = ?
        WHERE id IN (` + placeholders + `) AND status = '` + string(StatusFailed) + `'`
	res, err := s.execWithRetry(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("retry selected items: %w", err)
	}
	return res.RowsAffected()
}

// ResetStuckUploading re-offers items left uploading by a previous process
// as pending. Run at daemon start; the interrupted attempt keeps its count.
func (s *Store) ResetStuckUploading(ctx context.Context) (int64, error) {
	res, err := s.execWithRetry(
		ctx,
		`UPDATE queue_items
         SET status = ?, last_heartbeat = NULL, updated_at = ?
         WHERE status = ?`,
		StatusPending,
		time.Now().UTC().Format(time.RFC3339Nano),
		StatusUploading,
	)
	if err != nil {
		return 0, fmt.Errorf("reset stuck items: %w", err)
	}
	return res.RowsAffected()
}

// UpdateHeartbeat stamps the heartbeat for an in-flight item.
func (s *Store) UpdateHeartbeat(ctx context.Context, id int64) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	if _, err := s.execWithRetry(
		ctx,
		`UPDATE queue_items SET last_heartbeat = ?, updated_at = ? WHERE id = ?`,
		now,
		now,
		id,
	); err != nil {
		return fmt.Errorf("update heartbeat: %w", err)
	}
	return nil
}

// ReclaimStaleUploading returns items stuck uploading back to pending when
// heartbeats expire, catching workers that died mid-delivery.
func (s *Store) ReclaimStaleUploading(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.execWithRetry(
		ctx,
		`UPDATE queue_items
        SET status = ?, last_heartbeat = NULL, updated_at = ?
        WHERE status = ? AND last_heartbeat IS NOT NULL AND last_heartbeat < ?`,
		StatusPending,
		time.Now().UTC().Format(time.RFC3339Nano),
		StatusUploading,
		cutoff.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return 0, fmt.Errorf("reclaim stale items: %w", err)
	}
	return res.RowsAffected()
}
