package health_test

import (
	"context"
	"errors"
	"net"
	"syscall"
	"testing"

	"docdrop/internal/connectivity"
	"docdrop/internal/health"
	"docdrop/internal/logging"
)

type fakeMonitor struct {
	state connectivity.State
}

func (f fakeMonitor) Current() connectivity.State { return f.state }

type fakeProber struct {
	err    error
	called bool
}

func (f *fakeProber) Health(ctx context.Context) error {
	f.called = true
	return f.err
}

func TestCheckSkipsProbeWithoutNetwork(t *testing.T) {
	prober := &fakeProber{}
	c := health.NewClassifier(fakeMonitor{state: connectivity.StateNoNetwork}, prober, logging.NewNop())

	result := c.Check(context.Background())
	if result.Online {
		t.Fatal("expected offline result")
	}
	if result.Reason != health.ReasonNoInternet {
		t.Fatalf("expected no_internet reason, got %s", result.Reason)
	}
	if prober.called {
		t.Fatal("no probe should be issued when the network is down")
	}
}

func TestCheckOnlineWhenProbeSucceeds(t *testing.T) {
	c := health.NewClassifier(fakeMonitor{state: connectivity.StateValidated}, &fakeProber{}, logging.NewNop())

	result := c.Check(context.Background())
	if !result.Online {
		t.Fatalf("expected online result, got %+v", result)
	}
	if result.Reason != health.ReasonNone {
		t.Fatalf("expected empty reason, got %s", result.Reason)
	}
}

func TestCheckClassifiesProbeFailures(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want health.Reason
	}{
		{"dns", &net.DNSError{Err: "no such host", Name: "docs.example"}, health.ReasonDNSFailure},
		{"refused", syscall.ECONNREFUSED, health.ReasonConnectionRefused},
		{"timeout", context.DeadlineExceeded, health.ReasonTimeout},
		{"unknown", errors.New("connection reset by peer"), health.ReasonUnknown},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := health.NewClassifier(fakeMonitor{state: connectivity.StateValidated}, &fakeProber{err: tc.err}, logging.NewNop())

			result := c.Check(context.Background())
			if result.Online {
				t.Fatal("expected offline result")
			}
			if result.Reason != tc.want {
				t.Fatalf("expected reason %s, got %s", tc.want, result.Reason)
			}
			if result.Detail != tc.want.Message() {
				t.Fatalf("expected detail %q, got %q", tc.want.Message(), result.Detail)
			}
		})
	}
}

func TestCheckProbesOnUnvalidatedNetwork(t *testing.T) {
	// An unvalidated link may still reach a LAN server. The probe decides.
	prober := &fakeProber{}
	c := health.NewClassifier(fakeMonitor{state: connectivity.StateUnvalidated}, prober, logging.NewNop())

	result := c.Check(context.Background())
	if !prober.called {
		t.Fatal("expected probe to run on unvalidated network")
	}
	if !result.Online {
		t.Fatalf("expected online result, got %+v", result)
	}
}

func TestReasonMessages(t *testing.T) {
	for _, reason := range []health.Reason{
		health.ReasonNoInternet,
		health.ReasonDNSFailure,
		health.ReasonConnectionRefused,
		health.ReasonTimeout,
		health.ReasonUnknown,
	} {
		if reason.Message() == "" {
			t.Errorf("reason %s has no message", reason)
		}
	}
	if health.ReasonNone.Message() != "" {
		t.Error("empty reason must have no message")
	}
}
