package queueaccess_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"docdrop/internal/ipc"
	"docdrop/internal/queue"
	"docdrop/internal/queueaccess"
	"docdrop/internal/testsupport"
)

func queueItemMeta() queue.Metadata {
	return queue.Metadata{Title: "Scan"}
}

func TestOpenWithFallbackUsesDirectStore(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}

	failingDial := func() (*ipc.Client, error) {
		return nil, errors.New("connection refused")
	}
	session, err := queueaccess.OpenWithFallback(cfg, failingDial)
	if err != nil {
		t.Fatalf("OpenWithFallback failed: %v", err)
	}
	defer session.Close()

	if !session.Direct {
		t.Fatal("expected a direct session when the daemon is unreachable")
	}

	source := filepath.Join(t.TempDir(), "scan.pdf")
	if err := os.WriteFile(source, []byte("document body"), 0o644); err != nil {
		t.Fatalf("write source: %v", err)
	}

	ctx := context.Background()
	item, err := session.Access.Enqueue(ctx, source, queueItemMeta())
	if err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	if item.Status != "pending" {
		t.Fatalf("expected pending item, got %q", item.Status)
	}

	items, err := session.Access.List(ctx, []string{"pending"})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(items) != 1 || items[0].ID != item.ID {
		t.Fatalf("unexpected list result: %+v", items)
	}

	stats, err := session.Access.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats["pending"] != 1 {
		t.Fatalf("unexpected stats: %v", stats)
	}
}

func TestOpenWithFallbackPersistsAcrossSessions(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}

	source := filepath.Join(t.TempDir(), "scan.pdf")
	if err := os.WriteFile(source, []byte("document body"), 0o644); err != nil {
		t.Fatalf("write source: %v", err)
	}

	first, err := queueaccess.OpenWithFallback(cfg, nil)
	if err != nil {
		t.Fatalf("OpenWithFallback failed: %v", err)
	}
	item, err := first.Access.Enqueue(context.Background(), source, queueItemMeta())
	if err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	if err := first.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	// The queued item must survive the session: the store is durable.
	second, err := queueaccess.OpenWithFallback(cfg, nil)
	if err != nil {
		t.Fatalf("OpenWithFallback failed: %v", err)
	}
	defer second.Close()

	described, err := second.Access.Describe(context.Background(), item.ID)
	if err != nil {
		t.Fatalf("Describe failed: %v", err)
	}
	if described.Status != "pending" {
		t.Fatalf("expected pending item after reopen, got %q", described.Status)
	}
}

func TestOpenWithFallbackRequiresConfig(t *testing.T) {
	if _, err := queueaccess.OpenWithFallback(nil, nil); err == nil {
		t.Fatal("expected error without config or daemon")
	}
}
