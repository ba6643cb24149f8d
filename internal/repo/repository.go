// Package repo is the mutation surface over the queue store. It copies
// sources into owned staging storage, exposes a reactive view of the queue,
// and performs every state transition on behalf of workers and the CLI so
// observers only ever see committed, self-consistent states.
package repo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"docdrop/internal/config"
	"docdrop/internal/fileutil"
	"docdrop/internal/logging"
	"docdrop/internal/queue"
	"docdrop/internal/server"
)

// freeSpaceMargin keeps a reserve beyond the document size so staging a
// copy never consumes the last bytes of the filesystem.
const freeSpaceMargin = 64 << 20

// ErrNotFound indicates the queue item does not exist.
var ErrNotFound = errors.New("queue item not found")

// ErrNotCancellable indicates the item already left the pending state.
var ErrNotCancellable = errors.New("item is no longer pending")

// ErrNotRetryable indicates the item is not in the failed state.
var ErrNotRetryable = errors.New("item is not failed")

// Repository owns the staging directory and the queue store.
type Repository struct {
	cfg    *config.Config
	store  *queue.Store
	logger *slog.Logger
	hub    *watchHub
}

// New constructs the repository.
func New(cfg *config.Config, store *queue.Store, logger *slog.Logger) *Repository {
	return &Repository{
		cfg:    cfg,
		store:  store,
		logger: logging.NewComponentLogger(logger, "repo"),
		hub:    newWatchHub(),
	}
}

// Close stops the reactive stream. The store is owned by the caller.
func (r *Repository) Close() {
	r.hub.close()
}

// Watch returns a live, push-based stream of queue item snapshots. A slow
// consumer may miss intermediate snapshots of an item, but its latest
// committed state is always delivered.
func (r *Repository) Watch() (<-chan queue.Item, func()) {
	return r.hub.subscribe(0)
}

// Enqueue copies the source into owned staging storage and persists a new
// pending record. Effectively atomic: either a fully-formed item exists
// afterward or none does. Available space is verified before the copy.
func (r *Repository) Enqueue(ctx context.Context, sourcePath string, meta queue.Metadata) (*queue.Item, error) {
	info, err := os.Stat(sourcePath)
	if err != nil {
		return nil, server.Wrap(server.ErrStorage, "enqueue", "source file unavailable", err)
	}
	if info.IsDir() {
		return nil, server.Wrap(server.ErrStorage, "enqueue", fmt.Sprintf("%s is a directory", sourcePath), nil)
	}

	if err := r.cfg.EnsureDirectories(); err != nil {
		return nil, server.Wrap(server.ErrStorage, "enqueue", "prepare staging directory", err)
	}

	free, err := fileutil.FreeSpace(r.cfg.Paths.StagingDir)
	if err != nil {
		return nil, server.Wrap(server.ErrStorage, "enqueue", "query free space", err)
	}
	if need := uint64(info.Size()) + freeSpaceMargin; free < need {
		return nil, server.Wrap(server.ErrStorage, "enqueue",
			fmt.Sprintf("insufficient space in staging directory: need %d bytes, have %d", need, free), nil)
	}

	staged := filepath.Join(r.cfg.Paths.StagingDir, uuid.NewString()+filepath.Ext(sourcePath))
	if err := fileutil.CopyFileVerified(sourcePath, staged); err != nil {
		return nil, server.Wrap(server.ErrStorage, "enqueue", "copy into staging", err)
	}

	if strings.TrimSpace(meta.Title) == "" {
		meta.Title = deriveTitle(sourcePath)
	}

	item, err := r.store.NewItem(ctx, staged, filepath.Base(sourcePath), meta)
	if err != nil {
		_ = os.Remove(staged)
		return nil, server.Wrap(server.ErrStorage, "enqueue", "persist queue item", err)
	}

	r.logger.Info("document enqueued",
		logging.Int64(logging.FieldItemID, item.ID),
		logging.String(logging.FieldEventType, "item_enqueued"),
		logging.String("title", meta.Title),
		logging.Int64("size_bytes", info.Size()),
	)
	r.publish(item)
	return item, nil
}

// Get fetches one item.
func (r *Repository) Get(ctx context.Context, id int64) (*queue.Item, error) {
	item, err := r.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, ErrNotFound
	}
	return item, nil
}

// List returns items filtered by status.
func (r *Repository) List(ctx context.Context, statuses ...queue.Status) ([]*queue.Item, error) {
	return r.store.List(ctx, statuses...)
}

// Health aggregates queue counts.
func (r *Repository) Health(ctx context.Context) (queue.HealthSummary, error) {
	return r.store.Health(ctx)
}

// Cancel transitions a pending item to cancelled and releases its staged
// copy. A race with a worker claiming the item is resolved by the store's
// status guard: whoever commits first wins, and the worker re-checks after
// its claim.
func (r *Repository) Cancel(ctx context.Context, id int64) error {
	item, err := r.Get(ctx, id)
	if err != nil {
		return err
	}

	ok, err := r.store.Cancel(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotCancellable
	}

	r.releaseStagedCopy(item)
	updated, err := r.Get(ctx, id)
	if err != nil {
		return err
	}
	r.logger.Info("item cancelled",
		logging.Int64(logging.FieldItemID, id),
		logging.String(logging.FieldEventType, "item_cancelled"),
	)
	r.publish(updated)
	return nil
}

// Retry resets failed items to pending with a fresh attempt budget. With no
// ids, every failed item is retried. Returns the number of items reset.
func (r *Repository) Retry(ctx context.Context, ids ...int64) (int64, error) {
	updated, err := r.store.RetryFailed(ctx, ids...)
	if err != nil {
		return 0, err
	}
	if updated == 0 && len(ids) > 0 {
		return 0, ErrNotRetryable
	}
	r.publishCurrent(ctx, ids...)
	r.logger.Info("failed items reset for retry",
		logging.String(logging.FieldEventType, "items_retried"),
		logging.Int64("updated_count", updated),
	)
	return updated, nil
}

// Remove deletes a terminal item and its staged copy, if any remains.
func (r *Repository) Remove(ctx context.Context, id int64) error {
	item, err := r.Get(ctx, id)
	if err != nil {
		return err
	}
	if !item.IsTerminal() {
		return fmt.Errorf("item %d is %s; only terminal items can be removed", id, item.Status)
	}
	r.releaseStagedCopy(item)
	if _, err := r.store.Remove(ctx, id); err != nil {
		return err
	}
	return nil
}

// ClearCompleted prunes completed records and their staged copies.
func (r *Repository) ClearCompleted(ctx context.Context) (int64, error) {
	return r.clearByStatus(ctx, queue.StatusCompleted)
}

// ClearFailed prunes failed records and their staged copies.
func (r *Repository) ClearFailed(ctx context.Context) (int64, error) {
	return r.clearByStatus(ctx, queue.StatusFailed)
}

func (r *Repository) clearByStatus(ctx context.Context, status queue.Status) (int64, error) {
	items, err := r.store.List(ctx, status)
	if err != nil {
		return 0, err
	}
	for _, item := range items {
		r.releaseStagedCopy(item)
	}
	switch status {
	case queue.StatusCompleted:
		return r.store.ClearCompleted(ctx)
	default:
		return r.store.ClearFailed(ctx)
	}
}

// PruneTerminal removes terminal records older than the retention window.
func (r *Repository) PruneTerminal(ctx context.Context, cutoff time.Time) (int64, error) {
	items, err := r.store.List(ctx, queue.StatusCompleted, queue.StatusCancelled)
	if err != nil {
		return 0, err
	}
	for _, item := range items {
		if item.UpdatedAt.Before(cutoff) {
			r.releaseStagedCopy(item)
		}
	}
	return r.store.PruneTerminal(ctx, cutoff)
}

// releaseStagedCopy deletes the item's exclusively-owned staging file. The
// copy belongs to the item until terminal cleanup; nothing else touches it.
func (r *Repository) releaseStagedCopy(item *queue.Item) {
	if item == nil || strings.TrimSpace(item.SourcePath) == "" {
		return
	}
	if !strings.HasPrefix(item.SourcePath, r.cfg.Paths.StagingDir) {
		return
	}
	if err := os.Remove(item.SourcePath); err != nil && !errors.Is(err, os.ErrNotExist) {
		r.logger.Warn("failed to remove staged copy",
			logging.Error(err),
			logging.Int64(logging.FieldItemID, item.ID),
			logging.String(logging.FieldEventType, "staged_copy_cleanup_failed"),
			logging.String(logging.FieldErrorHint, "remove the file manually from the staging directory"),
		)
	}
}

func (r *Repository) publish(item *queue.Item) {
	if item == nil {
		return
	}
	r.hub.publish(*item)
}

func (r *Repository) publishCurrent(ctx context.Context, ids ...int64) {
	if len(ids) == 0 {
		items, err := r.store.List(ctx, queue.StatusPending)
		if err != nil {
			return
		}
		for _, item := range items {
			r.publish(item)
		}
		return
	}
	for _, id := range ids {
		if item, err := r.store.GetByID(ctx, id); err == nil && item != nil {
			r.publish(item)
		}
	}
}
