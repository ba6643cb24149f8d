package ipc_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"docdrop/internal/daemon"
	"docdrop/internal/ipc"
	"docdrop/internal/logging"
	"docdrop/internal/testsupport"
)

// startIPC brings up a daemon and its IPC server over a temp socket. The
// daemon is constructed but not started: queue operations work either way,
// and tests stay independent of network state.
func startIPC(t *testing.T) *ipc.Client {
	t.Helper()

	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	d, err := daemon.New(cfg, store, logging.NewNop())
	if err != nil {
		t.Fatalf("daemon.New failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	srv, err := ipc.NewServer(ctx, cfg.Paths.SocketPath, d, logging.NewNop())
	if err != nil {
		t.Fatalf("ipc.NewServer failed: %v", err)
	}
	srv.Serve()
	t.Cleanup(func() {
		cancel()
		srv.Close()
	})

	client, err := ipc.Dial(cfg.Paths.SocketPath)
	if err != nil {
		t.Fatalf("ipc.Dial failed: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

func writeDocument(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte("document body"), 0o644); err != nil {
		t.Fatalf("write document: %v", err)
	}
	return path
}

func TestAddAndDescribeRoundTrip(t *testing.T) {
	client := startIPC(t)

	resp, err := client.Add(ipc.AddRequest{
		Path:  writeDocument(t, "contract.pdf"),
		Title: "Contract",
		Tags:  []int64{2},
	})
	if err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if resp.Item.ID == 0 {
		t.Fatal("expected assigned item id")
	}
	if resp.Item.Status != "pending" {
		t.Fatalf("expected pending status, got %q", resp.Item.Status)
	}
	if resp.Item.Title != "Contract" {
		t.Fatalf("unexpected title %q", resp.Item.Title)
	}

	describe, err := client.QueueDescribe(resp.Item.ID)
	if err != nil {
		t.Fatalf("QueueDescribe failed: %v", err)
	}
	if describe.Item.OriginalName != "contract.pdf" {
		t.Fatalf("unexpected original name %q", describe.Item.OriginalName)
	}
	if describe.Item.CreatedAt == "" {
		t.Fatal("expected created timestamp in wire form")
	}
}

func TestQueueListFiltersByStatus(t *testing.T) {
	client := startIPC(t)

	added, err := client.Add(ipc.AddRequest{Path: writeDocument(t, "a.pdf")})
	if err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if _, err := client.Add(ipc.AddRequest{Path: writeDocument(t, "b.pdf")}); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if _, err := client.QueueCancel(added.Item.ID); err != nil {
		t.Fatalf("QueueCancel failed: %v", err)
	}

	pending, err := client.QueueList([]string{"pending"})
	if err != nil {
		t.Fatalf("QueueList failed: %v", err)
	}
	if len(pending.Items) != 1 {
		t.Fatalf("expected one pending item, got %d", len(pending.Items))
	}

	all, err := client.QueueList(nil)
	if err != nil {
		t.Fatalf("QueueList failed: %v", err)
	}
	if len(all.Items) != 2 {
		t.Fatalf("expected two items, got %d", len(all.Items))
	}
}

func TestQueueCancelReportsOutcome(t *testing.T) {
	client := startIPC(t)

	added, err := client.Add(ipc.AddRequest{Path: writeDocument(t, "a.pdf")})
	if err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	resp, err := client.QueueCancel(added.Item.ID)
	if err != nil {
		t.Fatalf("QueueCancel failed: %v", err)
	}
	if !resp.Cancelled {
		t.Fatal("expected cancellation to succeed")
	}

	// Cancelling a cancelled item is rejected server-side.
	if _, err := client.QueueCancel(added.Item.ID); err == nil {
		t.Fatal("expected error for second cancel")
	}
}

func TestQueueHealthOverIPC(t *testing.T) {
	client := startIPC(t)

	if _, err := client.Add(ipc.AddRequest{Path: writeDocument(t, "a.pdf")}); err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	health, err := client.QueueHealth()
	if err != nil {
		t.Fatalf("QueueHealth failed: %v", err)
	}
	if health.Total != 1 || health.Pending != 1 {
		t.Fatalf("unexpected health: %+v", health)
	}
}

func TestStatusReportsStoppedDaemon(t *testing.T) {
	client := startIPC(t)

	status, err := client.Status()
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if status.Running {
		t.Fatal("daemon was never started")
	}
	if status.PID != os.Getpid() {
		t.Fatalf("expected current pid, got %d", status.PID)
	}
	if status.QueueDBPath == "" {
		t.Fatal("expected queue db path")
	}
}

func TestAddRejectsMissingFile(t *testing.T) {
	client := startIPC(t)

	if _, err := client.Add(ipc.AddRequest{Path: "/nonexistent/doc.pdf"}); err == nil {
		t.Fatal("expected error for missing document")
	}
}
