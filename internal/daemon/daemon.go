package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/gofrs/flock"

	"docdrop/internal/config"
	"docdrop/internal/connectivity"
	"docdrop/internal/health"
	"docdrop/internal/logging"
	"docdrop/internal/notifications"
	"docdrop/internal/queue"
	"docdrop/internal/repo"
	"docdrop/internal/scheduler"
	"docdrop/internal/server"
	"docdrop/internal/uploader"
)

// Daemon coordinates the delivery services and enforces single-instance
// execution.
type Daemon struct {
	cfg        *config.Config
	logger     *slog.Logger
	store      *queue.Store
	repo       *repo.Repository
	monitor    *connectivity.Monitor
	classifier *health.Classifier
	client     *server.Client
	notifier   notifications.Service
	worker     *uploader.Worker
	scheduler  *scheduler.Scheduler

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	cancel  context.CancelFunc
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool
	QueueStats   map[queue.Status]int
	Connectivity connectivity.State
	Server       health.Result
	Scheduler    scheduler.Status
	QueueDBPath  string
	LockFilePath string
	ServerURL    string
	PID          int
}

// New constructs a daemon with initialized services over the given store.
func New(cfg *config.Config, store *queue.Store, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || store == nil {
		return nil, errors.New("daemon requires config and store")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	queueRepo := repo.New(cfg, store, logger)
	monitor := connectivity.NewMonitor(cfg, logger)
	client := server.NewClient(cfg)
	classifier := health.NewClassifier(monitor, client, logger)
	notifier := notifications.NewService(cfg)
	worker := uploader.NewWorker(cfg, queueRepo, classifier, client, notifier, logger)
	sched := scheduler.New(cfg, queueRepo, worker, monitor, logger)

	lockPath := filepath.Join(cfg.Paths.LogDir, "docdropd.lock")
	return &Daemon{
		cfg:        cfg,
		logger:     logging.NewComponentLogger(logger, "daemon"),
		store:      store,
		repo:       queueRepo,
		monitor:    monitor,
		classifier: classifier,
		client:     client,
		notifier:   notifier,
		worker:     worker,
		scheduler:  sched,
		lockPath:   lockPath,
		lock:       flock.New(lockPath),
	}, nil
}

// Start acquires the daemon lock and launches the monitor and scheduler.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another docdrop daemon instance is already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	if err := d.monitor.Start(runCtx); err != nil {
		cancel()
		_ = d.lock.Unlock()
		return fmt.Errorf("start connectivity monitor: %w", err)
	}
	if err := d.scheduler.Start(runCtx); err != nil {
		d.monitor.Stop()
		cancel()
		_ = d.lock.Unlock()
		return fmt.Errorf("start scheduler: %w", err)
	}

	d.cancel = cancel
	d.running.Store(true)
	d.logger.Info("docdrop daemon started",
		logging.String(logging.FieldEventType, "daemon_started"),
		logging.String("lock", d.lockPath),
		logging.String("server_url", d.cfg.Server.BaseURL),
	)
	return nil
}

// Stop stops background processing and releases the daemon lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	d.scheduler.Stop()
	d.monitor.Stop()
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("docdrop daemon stopped",
		logging.String(logging.FieldEventType, "daemon_stopped"))
}

// Close stops processing and releases resources held by the daemon. The
// store is owned by the caller and stays open.
func (d *Daemon) Close() error {
	d.Stop()
	d.repo.Close()
	return nil
}

// Running reports whether the daemon loop is active.
func (d *Daemon) Running() bool {
	return d.running.Load()
}

// Status aggregates runtime state for the status surface. The server
// reachability classification performs a live probe.
func (d *Daemon) Status(ctx context.Context) Status {
	status := Status{
		Running:      d.running.Load(),
		Connectivity: d.monitor.Current(),
		Scheduler:    d.scheduler.Status(),
		QueueDBPath:  d.store.Path(),
		LockFilePath: d.lockPath,
		ServerURL:    d.cfg.Server.BaseURL,
		PID:          os.Getpid(),
	}
	status.Server = d.classifier.Check(ctx)
	stats, err := d.store.Stats(ctx)
	if err != nil {
		d.logger.Warn("queue stats unavailable", logging.Error(err))
	} else {
		status.QueueStats = stats
	}
	return status
}

// Enqueue stages a document copy and persists a pending queue entry, then
// wakes the scheduler.
func (d *Daemon) Enqueue(ctx context.Context, path string, meta queue.Metadata) (*queue.Item, error) {
	item, err := d.repo.Enqueue(ctx, path, meta)
	if err != nil {
		return nil, err
	}
	d.scheduler.Wake()
	return item, nil
}

// ListQueue returns queue items filtered by optional statuses.
func (d *Daemon) ListQueue(ctx context.Context, statuses []queue.Status) ([]*queue.Item, error) {
	return d.repo.List(ctx, statuses...)
}

// GetQueueItem fetches a single queue item.
func (d *Daemon) GetQueueItem(ctx context.Context, id int64) (*queue.Item, error) {
	item, err := d.repo.Get(ctx, id)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return item, nil
}

// RetryItems re-offers failed items for delivery and wakes the scheduler.
// An empty id list retries every failed item.
func (d *Daemon) RetryItems(ctx context.Context, ids []int64) (int64, error) {
	updated, err := d.repo.Retry(ctx, ids...)
	if err != nil {
		return 0, err
	}
	if updated > 0 {
		d.scheduler.Wake()
	}
	return updated, nil
}

// CancelItem cancels a pending item.
func (d *Daemon) CancelItem(ctx context.Context, id int64) error {
	return d.repo.Cancel(ctx, id)
}

// RemoveItem removes a terminal item and its staged copy.
func (d *Daemon) RemoveItem(ctx context.Context, id int64) error {
	return d.repo.Remove(ctx, id)
}

// ClearCompleted removes completed queue items.
func (d *Daemon) ClearCompleted(ctx context.Context) (int64, error) {
	return d.repo.ClearCompleted(ctx)
}

// ClearFailed removes failed queue items.
func (d *Daemon) ClearFailed(ctx context.Context) (int64, error) {
	return d.repo.ClearFailed(ctx)
}

// QueueHealth returns aggregate queue diagnostics.
func (d *Daemon) QueueHealth(ctx context.Context) (queue.HealthSummary, error) {
	return d.repo.Health(ctx)
}

// ServerHealth classifies current server reachability with a live probe.
func (d *Daemon) ServerHealth(ctx context.Context) health.Result {
	return d.classifier.Check(ctx)
}

// TestNotification sends a test message through the notifier.
func (d *Daemon) TestNotification(ctx context.Context) (bool, string, error) {
	if err := d.notifier.TestNotification(ctx); err != nil {
		return false, err.Error(), err
	}
	return true, "test notification sent", nil
}
