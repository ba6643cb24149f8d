package uploader_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"docdrop/internal/config"
	"docdrop/internal/health"
	"docdrop/internal/logging"
	"docdrop/internal/queue"
	"docdrop/internal/repo"
	"docdrop/internal/server"
	"docdrop/internal/testsupport"
	"docdrop/internal/uploader"
)

type scriptedDeliverer struct {
	// errs is consumed one per call; nil entries mean success.
	errs  []error
	refs  []string
	calls int
	paths []string
}

func (d *scriptedDeliverer) UploadDocument(ctx context.Context, path string, meta queue.Metadata) (string, error) {
	idx := d.calls
	d.calls++
	d.paths = append(d.paths, path)
	var err error
	if idx < len(d.errs) {
		err = d.errs[idx]
	}
	if err != nil {
		return "", err
	}
	ref := "task-ref"
	if idx < len(d.refs) {
		ref = d.refs[idx]
	}
	return ref, nil
}

type scriptedChecker struct {
	results []health.Result
	calls   int
}

func (c *scriptedChecker) Check(ctx context.Context) health.Result {
	idx := c.calls
	c.calls++
	if idx < len(c.results) {
		return c.results[idx]
	}
	return health.Result{Online: true}
}

type fixture struct {
	cfg    *config.Config
	repo   *repo.Repository
	worker *uploader.Worker
}

func newFixture(t *testing.T, deliverer *scriptedDeliverer, checker *scriptedChecker, opts ...testsupport.ConfigOption) *fixture {
	t.Helper()
	cfg := testsupport.NewConfig(t, opts...)
	store := testsupport.MustOpenStore(t, cfg)
	r := repo.New(cfg, store, logging.NewNop())
	t.Cleanup(r.Close)
	w := uploader.NewWorker(cfg, r, checker, deliverer, nil, logging.NewNop())
	return &fixture{cfg: cfg, repo: r, worker: w}
}

func enqueueDocument(t *testing.T, f *fixture, name string) *queue.Item {
	t.Helper()
	source := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(source, []byte("document body"), 0o644); err != nil {
		t.Fatalf("write source: %v", err)
	}
	item, err := f.repo.Enqueue(context.Background(), source, queue.Metadata{})
	if err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	return item
}

func TestDrainDeliversPendingItems(t *testing.T) {
	deliverer := &scriptedDeliverer{refs: []string{"task-1", "task-2"}}
	f := newFixture(t, deliverer, &scriptedChecker{})
	first := enqueueDocument(t, f, "a.pdf")
	second := enqueueDocument(t, f, "b.pdf")

	result, err := f.worker.Drain(context.Background())
	if err != nil {
		t.Fatalf("Drain failed: %v", err)
	}
	if result.Delivered != 2 || result.Failed != 0 || result.Retried != 0 || result.Deferred {
		t.Fatalf("unexpected drain result: %+v", result)
	}
	if deliverer.calls != 2 {
		t.Fatalf("expected two deliveries, got %d", deliverer.calls)
	}
	// FIFO by creation.
	if deliverer.paths[0] != first.SourcePath || deliverer.paths[1] != second.SourcePath {
		t.Fatalf("unexpected delivery order: %v", deliverer.paths)
	}

	fetched, err := f.repo.Get(context.Background(), first.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if fetched.Status != queue.StatusCompleted || fetched.RemoteTaskRef != "task-1" {
		t.Fatalf("unexpected completed item: %+v", fetched)
	}
	if fetched.AttemptCount != 1 {
		t.Fatalf("expected one attempt consumed, got %d", fetched.AttemptCount)
	}
}

func TestDrainPermanentFailureConsumesNoRetry(t *testing.T) {
	deliverer := &scriptedDeliverer{errs: []error{
		server.Wrap(server.ErrClient, "upload", "server returned 415", nil),
	}}
	f := newFixture(t, deliverer, &scriptedChecker{})
	item := enqueueDocument(t, f, "a.pdf")

	result, err := f.worker.Drain(context.Background())
	if err != nil {
		t.Fatalf("Drain failed: %v", err)
	}
	if result.Failed != 1 || result.Delivered != 0 || result.Retried != 0 {
		t.Fatalf("unexpected drain result: %+v", result)
	}

	fetched, err := f.repo.Get(context.Background(), item.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if fetched.Status != queue.StatusFailed {
		t.Fatalf("expected permanent failure, got %s", fetched.Status)
	}
	if fetched.AttemptCount != 1 {
		t.Fatalf("expected exactly one attempt, got %d", fetched.AttemptCount)
	}
	if fetched.LastErrorKind != string(server.KindClient) {
		t.Fatalf("unexpected error kind %q", fetched.LastErrorKind)
	}
	if deliverer.calls != 1 {
		t.Fatalf("client errors must not be retried, got %d calls", deliverer.calls)
	}
}

func TestDrainTransientFailureSchedulesBackoff(t *testing.T) {
	deliverer := &scriptedDeliverer{errs: []error{
		server.Wrap(server.ErrServer, "upload", "server returned 503", nil),
	}}
	f := newFixture(t, deliverer, &scriptedChecker{})
	item := enqueueDocument(t, f, "a.pdf")

	before := time.Now()
	result, err := f.worker.Drain(context.Background())
	if err != nil {
		t.Fatalf("Drain failed: %v", err)
	}
	if result.Retried != 1 || result.Failed != 0 || result.Delivered != 0 {
		t.Fatalf("unexpected drain result: %+v", result)
	}

	fetched, err := f.repo.Get(context.Background(), item.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if fetched.Status != queue.StatusPending {
		t.Fatalf("expected item re-offered as pending, got %s", fetched.Status)
	}
	if fetched.AttemptCount != 1 {
		t.Fatalf("expected attempt preserved, got %d", fetched.AttemptCount)
	}
	if fetched.NotBefore == nil || !fetched.NotBefore.After(before) {
		t.Fatalf("expected future backoff deadline, got %v", fetched.NotBefore)
	}
	if fetched.LastErrorKind != string(server.KindServer) {
		t.Fatalf("unexpected error kind %q", fetched.LastErrorKind)
	}
}

func TestDrainExhaustsAttemptBudget(t *testing.T) {
	transient := server.Wrap(server.ErrServer, "upload", "server returned 502", nil)
	deliverer := &scriptedDeliverer{errs: []error{transient}}
	f := newFixture(t, deliverer, &scriptedChecker{}, testsupport.WithMaxAttempts(1))
	item := enqueueDocument(t, f, "a.pdf")

	result, err := f.worker.Drain(context.Background())
	if err != nil {
		t.Fatalf("Drain failed: %v", err)
	}
	if result.Failed != 1 || result.Retried != 0 {
		t.Fatalf("unexpected drain result: %+v", result)
	}

	fetched, err := f.repo.Get(context.Background(), item.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if fetched.Status != queue.StatusFailed {
		t.Fatalf("expected exhausted item to fail, got %s", fetched.Status)
	}
}

func TestDrainRecoversAfterRepeatedServerErrors(t *testing.T) {
	transient := server.Wrap(server.ErrServer, "upload", "server returned 503", nil)
	deliverer := &scriptedDeliverer{
		errs: []error{transient, transient, transient, transient, nil},
		refs: []string{"", "", "", "", "task-5"},
	}
	f := newFixture(t, deliverer, &scriptedChecker{}, testsupport.WithImmediateRetry())
	item := enqueueDocument(t, f, "a.pdf")

	// Each pass retires one attempt; with no backoff the item is due again
	// immediately, so repeated passes walk it through every retry.
	var total uploader.DrainResult
	for pass := 0; pass < 10 && total.Delivered == 0; pass++ {
		result, err := f.worker.Drain(context.Background())
		if err != nil {
			t.Fatalf("Drain failed on pass %d: %v", pass, err)
		}
		total.Delivered += result.Delivered
		total.Retried += result.Retried
		total.Failed += result.Failed
	}
	if total.Delivered != 1 || total.Retried != 4 || total.Failed != 0 {
		t.Fatalf("unexpected cumulative result: %+v", total)
	}
	if deliverer.calls != 5 {
		t.Fatalf("expected five delivery attempts, got %d", deliverer.calls)
	}

	fetched, err := f.repo.Get(context.Background(), item.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if fetched.Status != queue.StatusCompleted {
		t.Fatalf("expected eventual completion, got %s", fetched.Status)
	}
	if fetched.AttemptCount != 5 {
		t.Fatalf("expected five attempts recorded, got %d", fetched.AttemptCount)
	}
	if fetched.RemoteTaskRef != "task-5" {
		t.Fatalf("unexpected task ref %q", fetched.RemoteTaskRef)
	}
}

func TestDrainFailsAfterDefaultAttemptBudget(t *testing.T) {
	transient := server.Wrap(server.ErrServer, "upload", "server returned 502", nil)
	deliverer := &scriptedDeliverer{
		errs: []error{transient, transient, transient, transient, transient, transient},
	}
	f := newFixture(t, deliverer, &scriptedChecker{}, testsupport.WithImmediateRetry())
	item := enqueueDocument(t, f, "a.pdf")

	if got := f.cfg.Uploader.MaxAttempts; got != 5 {
		t.Fatalf("default attempt budget changed: %d", got)
	}

	var total uploader.DrainResult
	for pass := 0; pass < 10 && total.Failed == 0; pass++ {
		result, err := f.worker.Drain(context.Background())
		if err != nil {
			t.Fatalf("Drain failed on pass %d: %v", pass, err)
		}
		total.Delivered += result.Delivered
		total.Retried += result.Retried
		total.Failed += result.Failed
	}
	if total.Failed != 1 || total.Retried != 4 || total.Delivered != 0 {
		t.Fatalf("unexpected cumulative result: %+v", total)
	}
	if deliverer.calls != 5 {
		t.Fatalf("attempt budget must stop deliveries at five, got %d", deliverer.calls)
	}

	fetched, err := f.repo.Get(context.Background(), item.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if fetched.Status != queue.StatusFailed {
		t.Fatalf("expected exhausted item to fail, got %s", fetched.Status)
	}
	if fetched.AttemptCount != 5 {
		t.Fatalf("expected five attempts recorded, got %d", fetched.AttemptCount)
	}
	if fetched.LastErrorKind != string(server.KindServer) {
		t.Fatalf("unexpected error kind %q", fetched.LastErrorKind)
	}
}

func TestDrainDefersWhenServerUnreachable(t *testing.T) {
	deliverer := &scriptedDeliverer{}
	checker := &scriptedChecker{results: []health.Result{
		{Online: false, Reason: health.ReasonNoInternet},
	}}
	f := newFixture(t, deliverer, checker)
	item := enqueueDocument(t, f, "a.pdf")

	result, err := f.worker.Drain(context.Background())
	if err != nil {
		t.Fatalf("Drain failed: %v", err)
	}
	if !result.Deferred {
		t.Fatal("expected drain to be deferred")
	}
	if result.Reason != health.ReasonNoInternet {
		t.Fatalf("unexpected deferral reason %s", result.Reason)
	}
	if deliverer.calls != 0 {
		t.Fatal("no delivery may be attempted while unreachable")
	}

	// Deferral is not a failure: no attempt is consumed.
	fetched, err := f.repo.Get(context.Background(), item.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if fetched.Status != queue.StatusPending || fetched.AttemptCount != 0 {
		t.Fatalf("expected untouched pending item, got %+v", fetched)
	}
}

func TestDrainStopsMidPassWhenConnectivityDrops(t *testing.T) {
	deliverer := &scriptedDeliverer{}
	checker := &scriptedChecker{results: []health.Result{
		{Online: true},
		{Online: false, Reason: health.ReasonTimeout},
	}}
	f := newFixture(t, deliverer, checker)
	enqueueDocument(t, f, "a.pdf")
	enqueueDocument(t, f, "b.pdf")

	result, err := f.worker.Drain(context.Background())
	if err != nil {
		t.Fatalf("Drain failed: %v", err)
	}
	if result.Delivered != 1 {
		t.Fatalf("expected one delivery before deferral, got %d", result.Delivered)
	}
	if !result.Deferred || result.Reason != health.ReasonTimeout {
		t.Fatalf("expected timeout deferral, got %+v", result)
	}
}

func TestDrainSkipsItemsCancelledBeforeClaim(t *testing.T) {
	deliverer := &scriptedDeliverer{}
	f := newFixture(t, deliverer, &scriptedChecker{})
	item := enqueueDocument(t, f, "a.pdf")
	if err := f.repo.Cancel(context.Background(), item.ID); err != nil {
		t.Fatalf("Cancel failed: %v", err)
	}

	result, err := f.worker.Drain(context.Background())
	if err != nil {
		t.Fatalf("Drain failed: %v", err)
	}
	if result.Delivered != 0 || result.Failed != 0 || result.Retried != 0 {
		t.Fatalf("cancelled item must not be processed: %+v", result)
	}
	if deliverer.calls != 0 {
		t.Fatal("cancelled item must not be delivered")
	}
}

func TestDrainEmptyQueueIsNoOp(t *testing.T) {
	deliverer := &scriptedDeliverer{}
	checker := &scriptedChecker{}
	f := newFixture(t, deliverer, checker)

	result, err := f.worker.Drain(context.Background())
	if err != nil {
		t.Fatalf("Drain failed: %v", err)
	}
	if result != (uploader.DrainResult{}) {
		t.Fatalf("expected zero result, got %+v", result)
	}
	if checker.calls != 0 {
		t.Fatal("no health check needed for an empty queue")
	}
}
