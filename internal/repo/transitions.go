package repo

import (
	"context"
	"time"

	"docdrop/internal/logging"
	"docdrop/internal/queue"
)

// Worker-facing transitions. These keep the single-writer discipline: the
// uploader never touches the store directly, so every committed state is
// published exactly once.

// NextPending peeks the oldest due pending item without claiming it.
func (r *Repository) NextPending(ctx context.Context, now time.Time) (*queue.Item, error) {
	return r.store.NextPending(ctx, now)
}

// NextBackoffDeadline reports the earliest pending backoff expiry, if any.
func (r *Repository) NextBackoffDeadline(ctx context.Context) (*time.Time, error) {
	return r.store.NextBackoffDeadline(ctx)
}

// BeginAttempt claims a pending item for delivery. Returns nil when the
// item was cancelled (or otherwise left pending) before the claim landed.
func (r *Repository) BeginAttempt(ctx context.Context, id int64) (*queue.Item, error) {
	item, err := r.store.BeginAttempt(ctx, id)
	if err != nil || item == nil {
		return item, err
	}
	r.publish(item)
	return item, nil
}

// CompleteItem records a successful delivery, stores the remote task
// reference, and releases the staged copy. The status guard in the store
// makes completion idempotent: at most one transition per delivery.
func (r *Repository) CompleteItem(ctx context.Context, item *queue.Item, remoteTaskRef string) error {
	ok, err := r.store.MarkCompleted(ctx, item.ID, remoteTaskRef)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	r.releaseStagedCopy(item)
	updated, err := r.Get(ctx, item.ID)
	if err != nil {
		return err
	}
	r.publish(updated)
	return nil
}

// FailItem records a permanent failure with its structured error. The
// staged copy is retained so a user-initiated retry can redeliver.
func (r *Repository) FailItem(ctx context.Context, item *queue.Item, kind, message string) error {
	ok, err := r.store.MarkFailed(ctx, item.ID, kind, message)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	updated, err := r.Get(ctx, item.ID)
	if err != nil {
		return err
	}
	r.publish(updated)
	return nil
}

// ReturnForRetry puts an item back to pending after a transient failure,
// due no earlier than notBefore.
func (r *Repository) ReturnForRetry(ctx context.Context, item *queue.Item, notBefore time.Time, kind, message string) error {
	ok, err := r.store.ReturnForRetry(ctx, item.ID, notBefore, kind, message)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	updated, err := r.Get(ctx, item.ID)
	if err != nil {
		return err
	}
	r.publish(updated)
	return nil
}

// Heartbeat stamps liveness for an in-flight item.
func (r *Repository) Heartbeat(ctx context.Context, id int64) error {
	return r.store.UpdateHeartbeat(ctx, id)
}

// RecoverInterrupted re-offers items left uploading by a dead process and
// reclaims items whose heartbeat expired. Run at daemon start and from the
// periodic sweep.
func (r *Repository) RecoverInterrupted(ctx context.Context, heartbeatCutoff time.Time, atStart bool) (int64, error) {
	var total int64
	if atStart {
		reset, err := r.store.ResetStuckUploading(ctx)
		if err != nil {
			return total, err
		}
		total += reset
	} else {
		reclaimed, err := r.store.ReclaimStaleUploading(ctx, heartbeatCutoff)
		if err != nil {
			return total, err
		}
		total += reclaimed
	}
	if total > 0 {
		r.logger.Info("interrupted uploads re-offered",
			logging.String(logging.FieldEventType, "items_recovered"),
			logging.Int64("recovered_count", total),
		)
		r.publishCurrent(ctx)
	}
	return total, nil
}

// SetSchedulerState persists a scheduler key outside the item tables so
// drain intent survives process death.
func (r *Repository) SetSchedulerState(ctx context.Context, key, value string) error {
	return r.store.SetSchedulerState(ctx, key, value)
}

// SchedulerState reads a persisted scheduler key. Absent keys return "".
func (r *Repository) SchedulerState(ctx context.Context, key string) (string, error) {
	return r.store.SchedulerState(ctx, key)
}

// DeleteSchedulerState removes a persisted scheduler key.
func (r *Repository) DeleteSchedulerState(ctx context.Context, key string) error {
	return r.store.DeleteSchedulerState(ctx, key)
}
