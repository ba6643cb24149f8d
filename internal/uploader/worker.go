// Package uploader drains the queue: it claims pending items, gates each
// attempt on server reachability, performs the multipart delivery, and
// classifies outcomes into completion, backoff retry, or permanent failure.
package uploader

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"docdrop/internal/config"
	"docdrop/internal/health"
	"docdrop/internal/logging"
	"docdrop/internal/notifications"
	"docdrop/internal/queue"
	"docdrop/internal/repo"
	"docdrop/internal/server"
)

// Deliverer performs the network delivery of one staged document.
type Deliverer interface {
	UploadDocument(ctx context.Context, path string, meta queue.Metadata) (string, error)
}

// HealthChecker gates attempts on server reachability.
type HealthChecker interface {
	Check(ctx context.Context) health.Result
}

// DrainResult summarizes one queue drain pass.
type DrainResult struct {
	Delivered int
	Failed    int
	Retried   int
	Deferred  bool
	Reason    health.Reason
}

// Worker is the upload state machine.
type Worker struct {
	repo     *repo.Repository
	health   HealthChecker
	client   Deliverer
	notifier notifications.Service
	logger   *slog.Logger

	maxAttempts       int
	concurrency       int
	backoffBase       time.Duration
	backoffCap        time.Duration
	heartbeatInterval time.Duration

	// jitter is injectable for deterministic tests; nil selects math/rand.
	jitter func() float64

	now func() time.Time
}

// NewWorker constructs the worker from configuration.
func NewWorker(cfg *config.Config, queueRepo *repo.Repository, checker HealthChecker, client Deliverer, notifier notifications.Service, logger *slog.Logger) *Worker {
	if notifier == nil {
		notifier = notifications.NewService(cfg)
	}
	return &Worker{
		repo:              queueRepo,
		health:            checker,
		client:            client,
		notifier:          notifier,
		logger:            logging.NewComponentLogger(logger, "uploader"),
		maxAttempts:       cfg.Uploader.MaxAttempts,
		concurrency:       cfg.Uploader.Concurrency,
		backoffBase:       time.Duration(cfg.Uploader.BackoffBaseSeconds) * time.Second,
		backoffCap:        time.Duration(cfg.Uploader.BackoffCapSeconds) * time.Second,
		heartbeatInterval: time.Duration(cfg.Scheduler.HeartbeatInterval) * time.Second,
		now:               time.Now,
	}
}

// Drain processes due pending items until the queue has none left, the
// server becomes unreachable, or the context is cancelled. Items are
// claimed FIFO by creation time; a bounded pool delivers them.
func (w *Worker) Drain(ctx context.Context) (DrainResult, error) {
	var (
		result DrainResult
		mu     sync.Mutex
		wg     sync.WaitGroup
	)
	sem := make(chan struct{}, w.concurrency)
	start := w.now()

	for {
		if err := ctx.Err(); err != nil {
			break
		}

		item, err := w.repo.NextPending(ctx, w.now())
		if err != nil {
			wg.Wait()
			return result, err
		}
		if item == nil {
			break
		}

		// Wait for a delivery slot before claiming, so an item is never
		// marked uploading while it would only sit behind the pool.
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			wg.Wait()
			return result, ctx.Err()
		}

		// Re-check reachability per item: an offline result is a scheduling
		// deferral, not a failure, and must not consume an attempt.
		check := w.health.Check(ctx)
		if !check.Online {
			<-sem
			result.Deferred = true
			result.Reason = check.Reason
			w.logger.Info("drain deferred, server unreachable",
				logging.String(logging.FieldEventType, "drain_deferred"),
				logging.String("reason", string(check.Reason)),
				logging.Int64(logging.FieldItemID, item.ID),
			)
			break
		}

		claimed, err := w.repo.BeginAttempt(ctx, item.ID)
		if err != nil {
			<-sem
			wg.Wait()
			return result, err
		}
		if claimed == nil {
			// Lost the race with a cancel; the store's status guard decided.
			<-sem
			continue
		}

		wg.Add(1)
		go func(item *queue.Item) {
			defer wg.Done()
			defer func() { <-sem }()
			switch w.deliver(ctx, item) {
			case outcomeDelivered:
				mu.Lock()
				result.Delivered++
				mu.Unlock()
			case outcomeFailed:
				mu.Lock()
				result.Failed++
				mu.Unlock()
			case outcomeRetried:
				mu.Lock()
				result.Retried++
				mu.Unlock()
			}
		}(claimed)
	}

	wg.Wait()

	if result.Delivered > 0 || result.Failed > 0 {
		if err := w.notifier.NotifyQueueDrained(ctx, result.Delivered, result.Failed, w.now().Sub(start)); err != nil {
			w.logger.Warn("queue drained notification failed", logging.Error(err))
		}
	}
	return result, ctx.Err()
}

type outcome int

const (
	outcomeDelivered outcome = iota
	outcomeFailed
	outcomeRetried
	outcomeAborted
)

// deliver runs one claimed attempt to a classified conclusion. The item is
// already in the uploading state with its attempt counted.
func (w *Worker) deliver(ctx context.Context, item *queue.Item) outcome {
	requestID := uuid.NewString()
	logger := w.logger.With(
		logging.Int64(logging.FieldItemID, item.ID),
		logging.String(logging.FieldRequestID, requestID),
		logging.Int("attempt", item.AttemptCount),
	)

	meta, err := item.Metadata()
	if err != nil {
		logger.Error("stored metadata is unreadable", logging.Error(err))
		return w.fail(ctx, logger, item, string(server.KindClient), "stored metadata is unreadable: "+err.Error())
	}

	logger.Info("delivery started",
		logging.String(logging.FieldEventType, "delivery_start"),
		logging.String("title", meta.Title),
	)

	hbCtx, hbCancel := context.WithCancel(ctx)
	var hbWG sync.WaitGroup
	hbWG.Add(1)
	go w.heartbeatLoop(hbCtx, &hbWG, item.ID)

	start := w.now()
	taskRef, deliverErr := w.client.UploadDocument(ctx, item.SourcePath, meta)
	hbCancel()
	hbWG.Wait()

	if deliverErr == nil {
		if err := w.repo.CompleteItem(ctx, item, taskRef); err != nil {
			logger.Error("failed to persist completion", logging.Error(err))
			return outcomeAborted
		}
		logger.Info("delivery completed",
			logging.String(logging.FieldEventType, "delivery_complete"),
			logging.String("remote_task_ref", taskRef),
			logging.Duration("delivery_duration", w.now().Sub(start)),
		)
		if err := w.notifier.NotifyDocumentDelivered(ctx, item.DisplayTitle(), taskRef); err != nil {
			logger.Warn("delivered notification failed", logging.Error(err))
		}
		return outcomeDelivered
	}

	if errors.Is(deliverErr, context.Canceled) {
		// Shutdown mid-flight: leave the item uploading; restart recovery
		// re-offers it without losing the attempt record.
		logger.Debug("delivery interrupted by shutdown")
		return outcomeAborted
	}

	kind := server.Classify(deliverErr)
	message := strings.TrimSpace(deliverErr.Error())

	if server.IsPermanent(deliverErr) {
		logger.Error("delivery failed permanently",
			logging.Error(deliverErr),
			logging.String(logging.FieldEventType, "delivery_failed"),
			logging.String(logging.FieldErrorKind, string(kind)),
		)
		return w.fail(ctx, logger, item, string(kind), message)
	}

	if item.AttemptCount >= w.maxAttempts {
		logger.Error("delivery failed, attempts exhausted",
			logging.Error(deliverErr),
			logging.String(logging.FieldEventType, "delivery_failed"),
			logging.String(logging.FieldErrorKind, string(kind)),
			logging.Int("max_attempts", w.maxAttempts),
		)
		return w.fail(ctx, logger, item, string(kind), message)
	}

	delay := backoffDelay(item.AttemptCount, w.backoffBase, w.backoffCap, w.jitter)
	notBefore := w.now().Add(delay)
	if err := w.repo.ReturnForRetry(ctx, item, notBefore, string(kind), message); err != nil {
		logger.Error("failed to persist retry", logging.Error(err))
		return outcomeAborted
	}
	logger.Warn("delivery failed transiently, will retry",
		logging.Error(deliverErr),
		logging.String(logging.FieldEventType, "delivery_retry_scheduled"),
		logging.String(logging.FieldErrorKind, string(kind)),
		logging.Duration("retry_delay", delay),
	)
	return outcomeRetried
}

func (w *Worker) fail(ctx context.Context, logger *slog.Logger, item *queue.Item, kind, message string) outcome {
	if err := w.repo.FailItem(ctx, item, kind, message); err != nil {
		logger.Error("failed to persist failure", logging.Error(err))
		return outcomeAborted
	}
	if err := w.notifier.NotifyDocumentFailed(ctx, item.DisplayTitle(), message); err != nil {
		logger.Warn("failed notification failed", logging.Error(err))
	}
	return outcomeFailed
}

func (w *Worker) heartbeatLoop(ctx context.Context, wg *sync.WaitGroup, id int64) {
	defer wg.Done()
	ticker := time.NewTicker(w.heartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.repo.Heartbeat(ctx, id); err != nil && !errors.Is(err, context.Canceled) {
				w.logger.Warn("heartbeat update failed",
					logging.Error(err),
					logging.Int64(logging.FieldItemID, id),
				)
			}
		}
	}
}
