package main

import (
	"strings"
	"testing"

	"docdrop/internal/queue"
)

func TestClipCell(t *testing.T) {
	cases := []struct {
		in   string
		max  int
		want string
	}{
		{"short", 48, "short"},
		{"exactly-ten", 11, "exactly-ten"},
		{"connection refused while dialing the server", 20, "connection refuse..."},
		{"trailing space truncation", 12, "trailing..."},
		{"untouched", 3, "untouched"},
	}
	for _, tc := range cases {
		if got := clipCell(tc.in, tc.max); got != tc.want {
			t.Errorf("clipCell(%q, %d) = %q, want %q", tc.in, tc.max, got, tc.want)
		}
	}
}

func TestQueueStatusKind(t *testing.T) {
	cases := []struct {
		status queue.Status
		count  int
		want   statusKind
	}{
		{queue.StatusCompleted, 3, statusOK},
		{queue.StatusFailed, 1, statusError},
		{queue.StatusPending, 4, statusInfo},
		{queue.StatusUploading, 1, statusInfo},
		{queue.StatusCancelled, 2, statusWarn},
		{queue.StatusFailed, 0, statusInfo},
	}
	for _, tc := range cases {
		if got := queueStatusKind(tc.status, tc.count); got != tc.want {
			t.Errorf("queueStatusKind(%s, %d) = %d, want %d", tc.status, tc.count, got, tc.want)
		}
	}
}

func TestRenderStatusLinePlain(t *testing.T) {
	line := renderStatusLine("Server", statusError, "offline", false)
	if line != "  Server       [fail] offline" {
		t.Fatalf("unexpected status line %q", line)
	}
	if strings.Contains(line, "\x1b[") {
		t.Fatalf("plain rendering must not carry escape codes: %q", line)
	}
}

func TestRenderStatusLineColorized(t *testing.T) {
	line := renderStatusLine("Daemon", statusOK, "running", true)
	if !strings.Contains(line, ansiGreen+"[ ok ]"+ansiReset) {
		t.Fatalf("expected green tag in %q", line)
	}
	info := renderStatusLine("Server", statusInfo, "http://nas:8000", true)
	if strings.Contains(info, "\x1b[3") {
		t.Fatalf("info lines stay uncoloured: %q", info)
	}
}

func TestRenderSectionHeader(t *testing.T) {
	lines := renderSectionHeader("Queue Status", false)
	if len(lines) != 2 {
		t.Fatalf("expected title and rule, got %v", lines)
	}
	if lines[0] != "Queue Status" {
		t.Fatalf("unexpected title %q", lines[0])
	}
	if len([]rune(lines[1])) != len("Queue Status") {
		t.Fatalf("rule length %d does not match title", len([]rune(lines[1])))
	}
}

func TestRenderTableClipsLongCells(t *testing.T) {
	long := strings.Repeat("x", errorCellWidth+20)
	out := renderTable([]tableColumn{
		{header: "ID", numeric: true},
		{header: "Last Error", maxWidth: errorCellWidth},
	}, [][]string{{"1", long}})
	if strings.Contains(out, long) {
		t.Fatalf("long cell was not clipped:\n%s", out)
	}
	if !strings.Contains(out, strings.Repeat("x", errorCellWidth-3)+"...") {
		t.Fatalf("clipped marker missing:\n%s", out)
	}
}

func TestRenderTableEmptyColumns(t *testing.T) {
	if out := renderTable(nil, nil); out != "" {
		t.Fatalf("expected empty output, got %q", out)
	}
}
