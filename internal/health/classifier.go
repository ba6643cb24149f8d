// Package health determines whether the application server, not just the
// internet, is reachable, and classifies why it is not. The distinction
// lets the worker and the UI give an actionable reason instead of a
// generic failure.
package health

import (
	"context"
	"log/slog"
	"time"

	"docdrop/internal/connectivity"
	"docdrop/internal/logging"
	"docdrop/internal/server"
)

// Reason explains an offline classification.
type Reason string

const (
	ReasonNone              Reason = ""
	ReasonNoInternet        Reason = "no_internet"
	ReasonDNSFailure        Reason = "dns_failure"
	ReasonConnectionRefused Reason = "connection_refused"
	ReasonTimeout           Reason = "timeout"
	ReasonUnknown           Reason = "unknown"
)

// Message returns the user-facing explanation for a reason.
func (r Reason) Message() string {
	switch r {
	case ReasonNoInternet:
		return "no internet connection"
	case ReasonDNSFailure:
		return "server address could not be resolved"
	case ReasonConnectionRefused:
		return "server refused the connection"
	case ReasonTimeout:
		return "server did not respond in time"
	case ReasonUnknown:
		return "server unreachable"
	default:
		return ""
	}
}

// Result is the outcome of a health check.
type Result struct {
	Online bool
	Reason Reason
	Detail string
}

// ConnectivitySource is the slice of the connectivity monitor the
// classifier needs.
type ConnectivitySource interface {
	Current() connectivity.State
}

// Prober issues the cheap server request. Any HTTP response, including an
// error status, returns nil: reaching the server at all proves liveness.
type Prober interface {
	Health(ctx context.Context) error
}

// Classifier gates uploads on server reachability.
type Classifier struct {
	monitor ConnectivitySource
	prober  Prober
	logger  *slog.Logger
}

// NewClassifier wires the connectivity monitor and server prober together.
func NewClassifier(monitor ConnectivitySource, prober Prober, logger *slog.Logger) *Classifier {
	return &Classifier{
		monitor: monitor,
		prober:  prober,
		logger:  logging.NewComponentLogger(logger, "health"),
	}
}

// Check classifies current server reachability. When the connectivity
// monitor reports no network, no request is issued at all.
func (c *Classifier) Check(ctx context.Context) Result {
	if c.monitor != nil && c.monitor.Current() == connectivity.StateNoNetwork {
		return Result{Online: false, Reason: ReasonNoInternet, Detail: ReasonNoInternet.Message()}
	}

	start := time.Now()
	err := c.prober.Health(ctx)
	if err == nil {
		return Result{Online: true}
	}

	result := classifyProbeError(err)
	c.logger.Debug("server health probe failed",
		logging.Error(err),
		logging.String(logging.FieldEventType, "health_probe_failed"),
		logging.String("reason", string(result.Reason)),
		logging.Duration("probe_duration", time.Since(start)),
	)
	return result
}

func classifyProbeError(err error) Result {
	var reason Reason
	switch {
	case server.IsDNSFailure(err):
		reason = ReasonDNSFailure
	case server.IsConnectionRefused(err):
		reason = ReasonConnectionRefused
	case server.IsTimeout(err):
		reason = ReasonTimeout
	default:
		reason = ReasonUnknown
	}
	return Result{Online: false, Reason: reason, Detail: reason.Message()}
}
