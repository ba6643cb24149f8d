// Package scheduler decides when the upload worker runs. It wakes on new
// enqueues, on connectivity regain, on explicit user retries, and on a
// periodic sweep, and it records drain intent durably so a delivery pass
// interrupted by process death resumes on the next start.
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"docdrop/internal/config"
	"docdrop/internal/connectivity"
	"docdrop/internal/logging"
	"docdrop/internal/queue"
	"docdrop/internal/uploader"
)

// drainIntentKey marks an unfinished delivery pass in the store.
const drainIntentKey = "drain_intent"

// Drainer runs one delivery pass over the pending queue.
type Drainer interface {
	Drain(ctx context.Context) (uploader.DrainResult, error)
}

// ConnectivitySource reports local network state transitions.
type ConnectivitySource interface {
	Current() connectivity.State
	Subscribe() (<-chan connectivity.State, func())
}

// QueueSource is the repository surface the scheduler depends on.
type QueueSource interface {
	Watch() (<-chan queue.Item, func())
	List(ctx context.Context, statuses ...queue.Status) ([]*queue.Item, error)
	NextBackoffDeadline(ctx context.Context) (*time.Time, error)
	RecoverInterrupted(ctx context.Context, heartbeatCutoff time.Time, atStart bool) (int64, error)
	PruneTerminal(ctx context.Context, cutoff time.Time) (int64, error)
	SetSchedulerState(ctx context.Context, key, value string) error
	SchedulerState(ctx context.Context, key string) (string, error)
	DeleteSchedulerState(ctx context.Context, key string) error
}

// Status is a point-in-time snapshot for the daemon status surface.
type Status struct {
	Running       bool
	Draining      bool
	LastDrainAt   time.Time
	LastResult    uploader.DrainResult
	LastDrainErr  string
	NextRetryAt   *time.Time
	BatteryGated  bool
	SweepInterval time.Duration
}

// Scheduler owns the wake loop around the upload worker.
type Scheduler struct {
	cfg     *config.Config
	repo    QueueSource
	worker  Drainer
	monitor ConnectivitySource
	logger  *slog.Logger
	battery *batteryGate
	now     func() time.Time

	sweepInterval    time.Duration
	heartbeatTimeout time.Duration
	retention        time.Duration

	wake chan struct{}

	mu           sync.Mutex
	running      bool
	draining     bool
	cancel       context.CancelFunc
	wg           sync.WaitGroup
	lastDrainAt  time.Time
	lastResult   uploader.DrainResult
	lastDrainErr error
	nextRetryAt  *time.Time
	batteryGated bool
}

// New constructs a scheduler from configuration.
func New(cfg *config.Config, queueRepo QueueSource, worker Drainer, monitor ConnectivitySource, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		cfg:              cfg,
		repo:             queueRepo,
		worker:           worker,
		monitor:          monitor,
		logger:           logging.NewComponentLogger(logger, "scheduler"),
		battery:          newBatteryGate(cfg.Scheduler.BatteryGateEnabled, cfg.Scheduler.BatteryMinPercent),
		now:              time.Now,
		sweepInterval:    time.Duration(cfg.Scheduler.SweepIntervalMinutes) * time.Minute,
		heartbeatTimeout: time.Duration(cfg.Scheduler.HeartbeatTimeout) * time.Second,
		retention:        time.Duration(cfg.Scheduler.CompletedRetentionDays) * 24 * time.Hour,
		wake:             make(chan struct{}, 1),
	}
}

// Start recovers interrupted work, resumes any unfinished delivery pass,
// and launches the wake loop.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return errors.New("scheduler already running")
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.running = true
	s.mu.Unlock()

	// Items left in uploading by a crash go back to pending before any new
	// pass can claim work.
	if _, err := s.repo.RecoverInterrupted(runCtx, s.now().Add(-s.heartbeatTimeout), true); err != nil {
		s.logger.Error("startup recovery failed",
			logging.Error(err),
			logging.String(logging.FieldEventType, "startup_recovery_failed"),
			logging.String(logging.FieldErrorHint, "check queue database access"),
		)
	}
	if s.shouldResume(runCtx) {
		s.requestWake()
	}

	s.wg.Add(3)
	go s.runLoop(runCtx)
	go s.watchLoop(runCtx)
	go s.connectivityLoop(runCtx)
	return nil
}

// Stop terminates the loops and waits for them to exit.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	cancel := s.cancel
	s.running = false
	s.cancel = nil
	s.mu.Unlock()

	cancel()
	s.wg.Wait()
}

// Wake requests a delivery pass. Used by the enqueue path and by user
// retries; coalesces with any pass already requested.
func (s *Scheduler) Wake() {
	s.requestWake()
}

// Status reports the scheduler's current view for the status surface.
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := Status{
		Running:       s.running,
		Draining:      s.draining,
		LastDrainAt:   s.lastDrainAt,
		LastResult:    s.lastResult,
		BatteryGated:  s.batteryGated,
		SweepInterval: s.sweepInterval,
	}
	if s.lastDrainErr != nil {
		st.LastDrainErr = s.lastDrainErr.Error()
	}
	if s.nextRetryAt != nil {
		t := *s.nextRetryAt
		st.NextRetryAt = &t
	}
	return st
}

func (s *Scheduler) requestWake() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// shouldResume reports whether a pass must run immediately after start:
// either durable intent survived a crash or pending items already wait.
func (s *Scheduler) shouldResume(ctx context.Context) bool {
	intent, err := s.repo.SchedulerState(ctx, drainIntentKey)
	if err != nil {
		s.logger.Warn("drain intent lookup failed",
			logging.Error(err),
			logging.String(logging.FieldEventType, "drain_intent_lookup_failed"),
		)
	} else if intent != "" {
		s.logger.Info("resuming interrupted delivery pass",
			logging.String(logging.FieldEventType, "drain_resumed"),
			logging.String("intent_recorded_at", intent),
		)
		return true
	}
	pending, err := s.repo.List(ctx, queue.StatusPending)
	if err != nil {
		s.logger.Warn("pending lookup failed", logging.Error(err))
		return false
	}
	return len(pending) > 0
}

func (s *Scheduler) runLoop(ctx context.Context) {
	defer s.wg.Done()

	sweep := time.NewTicker(s.sweepInterval)
	defer sweep.Stop()

	// retryTimer fires when the earliest backed-off item becomes eligible.
	retryTimer := time.NewTimer(time.Hour)
	if !retryTimer.Stop() {
		<-retryTimer.C
	}
	defer retryTimer.Stop()

	s.armRetryTimer(ctx, retryTimer)
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.wake:
			s.drain(ctx)
		case <-retryTimer.C:
			s.drain(ctx)
		case <-sweep.C:
			s.sweep(ctx)
			s.drain(ctx)
		}
		s.armRetryTimer(ctx, retryTimer)
	}
}

// armRetryTimer schedules the next wake for backed-off items so a retry
// delay never has to wait for the sweep ticker.
func (s *Scheduler) armRetryTimer(ctx context.Context, timer *time.Timer) {
	if !timer.Stop() {
		select {
		case <-timer.C:
		default:
		}
	}
	deadline, err := s.repo.NextBackoffDeadline(ctx)
	if err != nil {
		s.logger.Warn("backoff deadline lookup failed", logging.Error(err))
		return
	}
	s.mu.Lock()
	s.nextRetryAt = deadline
	s.mu.Unlock()
	if deadline == nil {
		return
	}
	wait := time.Until(*deadline)
	if wait < time.Second {
		wait = time.Second
	}
	timer.Reset(wait)
}

func (s *Scheduler) drain(ctx context.Context) {
	low, percent := s.battery.Low()
	s.mu.Lock()
	s.batteryGated = low
	s.mu.Unlock()
	if low {
		s.logger.Info("delivery pass skipped on low battery",
			logging.String(logging.FieldEventType, "drain_battery_gated"),
			logging.Int("battery_percent", percent),
			logging.Int("battery_min_percent", s.cfg.Scheduler.BatteryMinPercent),
		)
		return
	}

	// Record intent before the first claim so a crash mid-pass resumes.
	if err := s.repo.SetSchedulerState(ctx, drainIntentKey, s.now().UTC().Format(time.RFC3339)); err != nil {
		s.logger.Error("drain intent persist failed",
			logging.Error(err),
			logging.String(logging.FieldEventType, "drain_intent_persist_failed"),
			logging.String(logging.FieldErrorHint, "check queue database access"),
		)
		return
	}

	s.mu.Lock()
	s.draining = true
	s.mu.Unlock()
	result, err := s.worker.Drain(ctx)
	s.mu.Lock()
	s.draining = false
	s.lastDrainAt = s.now()
	s.lastResult = result
	s.lastDrainErr = err
	s.mu.Unlock()

	switch {
	case err != nil:
		if errors.Is(err, context.Canceled) {
			return
		}
		s.logger.Error("delivery pass failed",
			logging.Error(err),
			logging.String(logging.FieldEventType, "drain_failed"),
		)
	case result.Deferred:
		// Intent stays recorded; connectivity regain or the sweep resumes.
		s.logger.Info("delivery pass deferred",
			logging.String(logging.FieldEventType, "drain_deferred"),
			logging.String("reason", string(result.Reason)),
		)
	default:
		if err := s.repo.DeleteSchedulerState(ctx, drainIntentKey); err != nil {
			s.logger.Warn("drain intent clear failed", logging.Error(err))
		}
		s.logger.Info("delivery pass finished",
			logging.String(logging.FieldEventType, "drain_finished"),
			logging.Int("delivered", result.Delivered),
			logging.Int("failed", result.Failed),
			logging.Int("retried", result.Retried),
		)
	}
}

// sweep is the periodic safety net: it re-offers stalled uploads, prunes
// old terminal items, and guarantees a pass even if a wake signal was lost.
func (s *Scheduler) sweep(ctx context.Context) {
	cutoff := s.now().Add(-s.heartbeatTimeout)
	if _, err := s.repo.RecoverInterrupted(ctx, cutoff, false); err != nil {
		s.logger.Warn("stale upload reclaim failed",
			logging.Error(err),
			logging.String(logging.FieldEventType, "sweep_reclaim_failed"),
		)
	}
	if s.retention > 0 {
		pruned, err := s.repo.PruneTerminal(ctx, s.now().Add(-s.retention))
		if err != nil {
			s.logger.Warn("terminal prune failed", logging.Error(err))
		} else if pruned > 0 {
			s.logger.Info("old terminal items pruned",
				logging.String(logging.FieldEventType, "sweep_pruned"),
				logging.Int64("pruned_count", pruned),
			)
		}
	}
}

func (s *Scheduler) watchLoop(ctx context.Context) {
	defer s.wg.Done()
	items, cancel := s.repo.Watch()
	defer cancel()
	for {
		select {
		case <-ctx.Done():
			return
		case item, ok := <-items:
			if !ok {
				return
			}
			if item.Status == queue.StatusPending {
				s.requestWake()
			}
		}
	}
}

func (s *Scheduler) connectivityLoop(ctx context.Context) {
	defer s.wg.Done()
	states, cancel := s.monitor.Subscribe()
	defer cancel()
	previous := s.monitor.Current()
	for {
		select {
		case <-ctx.Done():
			return
		case state, ok := <-states:
			if !ok {
				return
			}
			if state == connectivity.StateValidated && previous != connectivity.StateValidated {
				s.logger.Info("connectivity regained",
					logging.String(logging.FieldEventType, "connectivity_regained"),
				)
				s.requestWake()
			}
			previous = state
		}
	}
}
