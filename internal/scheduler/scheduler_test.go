package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"docdrop/internal/connectivity"
	"docdrop/internal/health"
	"docdrop/internal/logging"
	"docdrop/internal/queue"
	"docdrop/internal/testsupport"
	"docdrop/internal/uploader"
)

type fakeQueue struct {
	mu      sync.Mutex
	state   map[string]string
	pending []*queue.Item
	events  chan queue.Item

	recoveredAtStart int64
	recoveredSweep   int64
	pruneCalls       int
}

func newFakeQueue() *fakeQueue {
	return &fakeQueue{
		state:  make(map[string]string),
		events: make(chan queue.Item, 8),
	}
}

func (f *fakeQueue) Watch() (<-chan queue.Item, func()) {
	return f.events, func() {}
}

func (f *fakeQueue) List(ctx context.Context, statuses ...queue.Status) ([]*queue.Item, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*queue.Item(nil), f.pending...), nil
}

func (f *fakeQueue) NextBackoffDeadline(ctx context.Context) (*time.Time, error) {
	return nil, nil
}

func (f *fakeQueue) RecoverInterrupted(ctx context.Context, cutoff time.Time, atStart bool) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if atStart {
		f.recoveredAtStart++
	} else {
		f.recoveredSweep++
	}
	return 0, nil
}

func (f *fakeQueue) PruneTerminal(ctx context.Context, cutoff time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pruneCalls++
	return 0, nil
}

func (f *fakeQueue) SetSchedulerState(ctx context.Context, key, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.state[key] = value
	return nil
}

func (f *fakeQueue) SchedulerState(ctx context.Context, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state[key], nil
}

func (f *fakeQueue) DeleteSchedulerState(ctx context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.state, key)
	return nil
}

func (f *fakeQueue) intent() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state[drainIntentKey]
}

type fakeDrainer struct {
	mu      sync.Mutex
	results []uploader.DrainResult
	calls   int
	drained chan struct{}
}

func newFakeDrainer(results ...uploader.DrainResult) *fakeDrainer {
	return &fakeDrainer{results: results, drained: make(chan struct{}, 8)}
}

func (d *fakeDrainer) Drain(ctx context.Context) (uploader.DrainResult, error) {
	d.mu.Lock()
	idx := d.calls
	d.calls++
	var result uploader.DrainResult
	if idx < len(d.results) {
		result = d.results[idx]
	}
	d.mu.Unlock()
	d.drained <- struct{}{}
	return result, nil
}

func (d *fakeDrainer) callCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

type fakeConnectivity struct {
	mu      sync.Mutex
	current connectivity.State
	states  chan connectivity.State
}

func newFakeConnectivity(current connectivity.State) *fakeConnectivity {
	return &fakeConnectivity{current: current, states: make(chan connectivity.State, 8)}
}

func (f *fakeConnectivity) Current() connectivity.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.current
}

func (f *fakeConnectivity) Subscribe() (<-chan connectivity.State, func()) {
	return f.states, func() {}
}

func newTestScheduler(t *testing.T, q *fakeQueue, d *fakeDrainer, c *fakeConnectivity) *Scheduler {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	s := New(cfg, q, d, c, logging.NewNop())
	return s
}

func waitForDrain(t *testing.T, d *fakeDrainer) {
	t.Helper()
	select {
	case <-d.drained:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for a delivery pass")
	}
}

func expectNoDrain(t *testing.T, d *fakeDrainer) {
	t.Helper()
	select {
	case <-d.drained:
		t.Fatal("unexpected delivery pass")
	case <-time.After(300 * time.Millisecond):
	}
}

func TestWakeRunsDeliveryPass(t *testing.T) {
	q := newFakeQueue()
	d := newFakeDrainer()
	s := newTestScheduler(t, q, d, newFakeConnectivity(connectivity.StateValidated))

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer s.Stop()

	s.Wake()
	waitForDrain(t, d)
}

func TestStartResumesDurableIntent(t *testing.T) {
	q := newFakeQueue()
	q.state[drainIntentKey] = "2026-08-01T10:00:00Z"
	d := newFakeDrainer()
	s := newTestScheduler(t, q, d, newFakeConnectivity(connectivity.StateValidated))

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer s.Stop()

	// The surviving intent must trigger a pass without any new wake.
	waitForDrain(t, d)

	// A completed, non-deferred pass clears the intent.
	deadline := time.Now().Add(5 * time.Second)
	for q.intent() != "" {
		if time.Now().After(deadline) {
			t.Fatal("drain intent was not cleared after a finished pass")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestStartResumesWithPendingItems(t *testing.T) {
	q := newFakeQueue()
	q.pending = []*queue.Item{{ID: 1, Status: queue.StatusPending}}
	d := newFakeDrainer()
	s := newTestScheduler(t, q, d, newFakeConnectivity(connectivity.StateValidated))

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer s.Stop()

	waitForDrain(t, d)

	q.mu.Lock()
	recovered := q.recoveredAtStart
	q.mu.Unlock()
	if recovered != 1 {
		t.Fatalf("expected startup recovery to run once, ran %d times", recovered)
	}
}

func TestStartIdleWithEmptyQueue(t *testing.T) {
	q := newFakeQueue()
	d := newFakeDrainer()
	s := newTestScheduler(t, q, d, newFakeConnectivity(connectivity.StateValidated))

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer s.Stop()

	expectNoDrain(t, d)
}

func TestEnqueueEventRunsDeliveryPass(t *testing.T) {
	q := newFakeQueue()
	d := newFakeDrainer()
	s := newTestScheduler(t, q, d, newFakeConnectivity(connectivity.StateValidated))

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer s.Stop()

	q.events <- queue.Item{ID: 3, Status: queue.StatusPending}
	waitForDrain(t, d)
}

func TestTerminalEventDoesNotWake(t *testing.T) {
	q := newFakeQueue()
	d := newFakeDrainer()
	s := newTestScheduler(t, q, d, newFakeConnectivity(connectivity.StateValidated))

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer s.Stop()

	q.events <- queue.Item{ID: 3, Status: queue.StatusCompleted}
	expectNoDrain(t, d)
}

func TestConnectivityRegainRunsDeliveryPass(t *testing.T) {
	q := newFakeQueue()
	d := newFakeDrainer()
	c := newFakeConnectivity(connectivity.StateNoNetwork)
	s := newTestScheduler(t, q, d, c)

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer s.Stop()

	c.states <- connectivity.StateValidated
	waitForDrain(t, d)
}

func TestUnvalidatedTransitionDoesNotWake(t *testing.T) {
	q := newFakeQueue()
	d := newFakeDrainer()
	c := newFakeConnectivity(connectivity.StateNoNetwork)
	s := newTestScheduler(t, q, d, c)

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer s.Stop()

	c.states <- connectivity.StateUnvalidated
	expectNoDrain(t, d)
}

func TestDeferredPassKeepsIntent(t *testing.T) {
	q := newFakeQueue()
	d := newFakeDrainer(uploader.DrainResult{Deferred: true, Reason: health.ReasonTimeout})
	s := newTestScheduler(t, q, d, newFakeConnectivity(connectivity.StateValidated))

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer s.Stop()

	s.Wake()
	waitForDrain(t, d)

	// The intent must survive so the next start resumes the pass.
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if q.intent() == "" {
			t.Fatal("drain intent was cleared after a deferred pass")
		}
		time.Sleep(20 * time.Millisecond)
	}

	status := s.Status()
	if !status.LastResult.Deferred || status.LastResult.Reason != health.ReasonTimeout {
		t.Fatalf("unexpected last result: %+v", status.LastResult)
	}
}

func TestBatteryGateSkipsDeliveryPass(t *testing.T) {
	q := newFakeQueue()
	d := newFakeDrainer()
	s := newTestScheduler(t, q, d, newFakeConnectivity(connectivity.StateValidated))
	s.battery = &batteryGate{enabled: true, minPercent: 20, sysfsRoot: writeBatterySysfs(t, "Battery", "5", "Discharging")}

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer s.Stop()

	s.Wake()
	expectNoDrain(t, d)

	if q.intent() != "" {
		t.Fatal("no intent may be recorded for a gated pass")
	}
	if !s.Status().BatteryGated {
		t.Fatal("status must report the battery gate")
	}
}

func TestStopIsIdempotent(t *testing.T) {
	q := newFakeQueue()
	d := newFakeDrainer()
	s := newTestScheduler(t, q, d, newFakeConnectivity(connectivity.StateValidated))

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	s.Stop()
	s.Stop()

	if s.Status().Running {
		t.Fatal("scheduler must report stopped")
	}
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("restart failed: %v", err)
	}
	s.Stop()
}
