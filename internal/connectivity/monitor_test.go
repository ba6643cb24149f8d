package connectivity

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"docdrop/internal/logging"
	"docdrop/internal/testsupport"
)

type probeScript struct {
	mu       sync.Mutex
	linkUp   bool
	dialErr  error
	dialAddr string
}

func (p *probeScript) link() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.linkUp
}

func (p *probeScript) dial(ctx context.Context, address string, timeout time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.dialAddr = address
	return p.dialErr
}

func (p *probeScript) set(linkUp bool, dialErr error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.linkUp = linkUp
	p.dialErr = dialErr
}

func newTestMonitor(t *testing.T, script *probeScript) *Monitor {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	m := NewMonitor(cfg, logging.NewNop())
	m.linkProbe = script.link
	m.dial = script.dial
	return m
}

func TestEvaluateNowClassifiesStates(t *testing.T) {
	cases := []struct {
		name    string
		linkUp  bool
		dialErr error
		want    State
	}{
		{"no link", false, nil, StateNoNetwork},
		{"link without reachability", true, errors.New("network unreachable"), StateUnvalidated},
		{"validated path", true, nil, StateValidated},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			script := &probeScript{linkUp: tc.linkUp, dialErr: tc.dialErr}
			m := newTestMonitor(t, script)
			if got := m.EvaluateNow(context.Background()); got != tc.want {
				t.Fatalf("expected %s, got %s", tc.want, got)
			}
		})
	}
}

func TestMonitorDefaultsToNoNetwork(t *testing.T) {
	m := newTestMonitor(t, &probeScript{})
	if m.Current() != StateNoNetwork {
		t.Fatalf("expected no_network before any evaluation, got %s", m.Current())
	}
	if m.Online() {
		t.Fatal("expected offline before any evaluation")
	}
}

func TestSubscribersReceiveStateChanges(t *testing.T) {
	script := &probeScript{linkUp: false}
	m := newTestMonitor(t, script)

	states, cancel := m.Subscribe()
	defer cancel()

	// First evaluation confirms the initial state; no change, no push.
	if got := m.EvaluateNow(context.Background()); got != StateNoNetwork {
		t.Fatalf("expected no_network, got %s", got)
	}
	select {
	case state := <-states:
		t.Fatalf("unexpected push for unchanged state: %s", state)
	default:
	}

	script.set(true, nil)
	if got := m.EvaluateNow(context.Background()); got != StateValidated {
		t.Fatalf("expected validated, got %s", got)
	}
	select {
	case state := <-states:
		if state != StateValidated {
			t.Fatalf("expected validated push, got %s", state)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for state push")
	}
}

func TestSubscribeCancelClosesChannel(t *testing.T) {
	m := newTestMonitor(t, &probeScript{})
	states, cancel := m.Subscribe()
	cancel()
	if _, ok := <-states; ok {
		t.Fatal("expected closed channel after cancel")
	}
	// A second cancel is harmless.
	cancel()
}

func TestDialProbeTargetsConfiguredAddress(t *testing.T) {
	script := &probeScript{linkUp: true}
	cfg := testsupport.NewConfig(t)
	cfg.Connectivity.ProbeAddress = "192.0.2.1:53"
	m := NewMonitor(cfg, logging.NewNop())
	m.linkProbe = script.link
	m.dial = script.dial

	m.EvaluateNow(context.Background())
	script.mu.Lock()
	addr := script.dialAddr
	script.mu.Unlock()
	if addr != "192.0.2.1:53" {
		t.Fatalf("expected probe against configured address, got %q", addr)
	}
}

func TestStartStop(t *testing.T) {
	script := &probeScript{linkUp: true}
	m := newTestMonitor(t, script)

	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	// Start performs an immediate evaluation.
	if m.Current() != StateValidated {
		t.Fatalf("expected validated after start, got %s", m.Current())
	}

	states, cancel := m.Subscribe()
	defer cancel()
	m.Stop()

	// Stop closes subscriber channels.
	select {
	case _, ok := <-states:
		if ok {
			t.Fatal("expected channel close on stop")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for channel close")
	}

	// Stopping twice is safe.
	m.Stop()
}

func TestStateString(t *testing.T) {
	cases := map[State]string{
		StateNoNetwork:   "no_network",
		StateUnvalidated: "unvalidated",
		StateValidated:   "validated",
	}
	for state, want := range cases {
		if got := state.String(); got != want {
			t.Errorf("State(%d).String() = %q, want %q", state, got, want)
		}
	}
}
