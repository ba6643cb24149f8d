package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"syscall"
)

// Sentinel markers classifying delivery failures. Wrap every error leaving
// this package with exactly one of them so the worker can map outcomes to
// queue transitions without inspecting HTTP details.
var (
	ErrStorage   = errors.New("storage error")
	ErrAuth      = errors.New("authentication error")
	ErrClient    = errors.New("client error")
	ErrServer    = errors.New("server error")
	ErrTransient = errors.New("transient network error")
)

// Kind is the stable string form of an error class, persisted on queue items.
type Kind string

const (
	KindStorage Kind = "storage"
	KindAuth    Kind = "auth"
	KindClient  Kind = "client"
	KindServer  Kind = "server"
	KindNetwork Kind = "network"
	KindUnknown Kind = "unknown"
)

// Wrap tags err with a classification marker and operation context.
func Wrap(marker error, operation, message string, err error) error {
	detail := buildDetail(operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

func buildDetail(operation, message string) string {
	parts := make([]string, 0, 2)
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "delivery failure"
	}
	return strings.Join(parts, ": ")
}

// Classify maps an error to its persisted kind.
func Classify(err error) Kind {
	switch {
	case err == nil:
		return KindUnknown
	case errors.Is(err, ErrStorage):
		return KindStorage
	case errors.Is(err, ErrAuth):
		return KindAuth
	case errors.Is(err, ErrClient):
		return KindClient
	case errors.Is(err, ErrServer):
		return KindServer
	case errors.Is(err, ErrTransient):
		return KindNetwork
	default:
		return KindUnknown
	}
}

// IsPermanent reports whether retrying the same input could never succeed.
// Auth errors are permanent for the queue: they require re-authentication,
// not another attempt with the same credentials.
func IsPermanent(err error) bool {
	return errors.Is(err, ErrClient) || errors.Is(err, ErrAuth) || errors.Is(err, ErrStorage)
}

// IsTimeout reports whether err represents an expired deadline anywhere in
// the chain, including transport-level timeouts.
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || os.IsTimeout(err) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// IsDNSFailure reports whether err stems from name resolution.
func IsDNSFailure(err error) bool {
	var dnsErr *net.DNSError
	return errors.As(err, &dnsErr)
}

// IsConnectionRefused reports whether the remote host actively refused the connection.
func IsConnectionRefused(err error) bool {
	return errors.Is(err, syscall.ECONNREFUSED)
}
