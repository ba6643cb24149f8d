package queueaccess

import (
	"fmt"

	"docdrop/internal/config"
	"docdrop/internal/ipc"
	"docdrop/internal/logging"
	"docdrop/internal/queue"
	"docdrop/internal/repo"
)

// Session represents a queue access handle and its cleanup function.
type Session struct {
	Access Access

	// Direct reports that the session bypasses the daemon. Mutating
	// operations then take effect without a scheduler wake; the daemon's
	// periodic sweep picks the work up later.
	Direct bool

	close func() error
}

// Close releases resources associated with the session.
func (s Session) Close() error {
	if s.close == nil {
		return nil
	}
	return s.close()
}

// OpenWithFallback tries IPC-backed access first, then falls back to a
// direct repository over the queue store.
func OpenWithFallback(cfg *config.Config, dial func() (*ipc.Client, error)) (Session, error) {
	if dial != nil {
		if client, err := dial(); err == nil {
			return Session{
				Access: NewIPCAccess(client),
				close:  client.Close,
			}, nil
		}
	}

	if cfg == nil {
		return Session{}, fmt.Errorf("open queue store: configuration not available")
	}
	store, err := queue.Open(cfg)
	if err != nil {
		return Session{}, fmt.Errorf("open queue store: %w", err)
	}
	queueRepo := repo.New(cfg, store, logging.NewNop())
	return Session{
		Access: NewRepoAccess(queueRepo),
		Direct: true,
		close: func() error {
			queueRepo.Close()
			return store.Close()
		},
	}, nil
}
