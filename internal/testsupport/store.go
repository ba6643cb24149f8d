package testsupport

import (
	"context"
	"testing"

	"docdrop/internal/config"
	"docdrop/internal/queue"
)

// MustOpenStore opens a queue.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *queue.Store {
	t.Helper()

	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	store, err := queue.Open(cfg)
	if err != nil {
		t.Fatalf("queue.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// NewItem creates a pending queue item for tests using the provided store.
func NewItem(t testing.TB, store *queue.Store, sourcePath, originalName string, meta queue.Metadata) *queue.Item {
	t.Helper()

	item, err := store.NewItem(context.Background(), sourcePath, originalName, meta)
	if err != nil {
		t.Fatalf("store.NewItem: %v", err)
	}
	return item
}
