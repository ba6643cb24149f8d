package queue_test

import (
	"testing"

	"docdrop/internal/queue"
)

func TestParseStatus(t *testing.T) {
	cases := []struct {
		input string
		want  queue.Status
		ok    bool
	}{
		{"pending", queue.StatusPending, true},
		{" Uploading ", queue.StatusUploading, true},
		{"COMPLETED", queue.StatusCompleted, true},
		{"failed", queue.StatusFailed, true},
		{"cancelled", queue.StatusCancelled, true},
		{"", "", false},
		{"bogus", "bogus", false},
	}
	for _, tc := range cases {
		got, ok := queue.ParseStatus(tc.input)
		if ok != tc.ok {
			t.Errorf("ParseStatus(%q) ok = %v, want %v", tc.input, ok, tc.ok)
			continue
		}
		if ok && got != tc.want {
			t.Errorf("ParseStatus(%q) = %q, want %q", tc.input, got, tc.want)
		}
	}
}

func TestMetadataEncodeDecode(t *testing.T) {
	docType := int64(7)
	meta := queue.Metadata{
		Title:          "Insurance Policy",
		Tags:           []int64{3, 9},
		DocumentTypeID: &docType,
	}
	blob, err := meta.Encode()
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	decoded, err := queue.DecodeMetadata(blob)
	if err != nil {
		t.Fatalf("DecodeMetadata failed: %v", err)
	}
	if decoded.Title != meta.Title {
		t.Fatalf("title mismatch: %q", decoded.Title)
	}
	if len(decoded.Tags) != 2 || decoded.Tags[0] != 3 || decoded.Tags[1] != 9 {
		t.Fatalf("tags mismatch: %v", decoded.Tags)
	}
	if decoded.DocumentTypeID == nil || *decoded.DocumentTypeID != 7 {
		t.Fatalf("document type mismatch: %v", decoded.DocumentTypeID)
	}
	if decoded.CorrespondentID != nil {
		t.Fatalf("expected nil correspondent, got %v", decoded.CorrespondentID)
	}
}

func TestDecodeMetadataEmptyBlob(t *testing.T) {
	meta, err := queue.DecodeMetadata("  ")
	if err != nil {
		t.Fatalf("DecodeMetadata failed: %v", err)
	}
	if meta.Title != "" || meta.Tags != nil {
		t.Fatalf("expected zero metadata, got %+v", meta)
	}
}

func TestDisplayTitle(t *testing.T) {
	withTitle := queue.Item{OriginalName: "scan.pdf", MetadataJSON: `{"title":"Lease Agreement"}`}
	if got := withTitle.DisplayTitle(); got != "Lease Agreement" {
		t.Fatalf("expected metadata title, got %q", got)
	}

	withoutTitle := queue.Item{OriginalName: "scan.pdf"}
	if got := withoutTitle.DisplayTitle(); got != "scan.pdf" {
		t.Fatalf("expected original name, got %q", got)
	}

	bare := queue.Item{SourcePath: "/staging/scan.pdf"}
	if got := bare.DisplayTitle(); got != "/staging/scan.pdf" {
		t.Fatalf("expected source path, got %q", got)
	}
}

func TestIsTerminal(t *testing.T) {
	for _, status := range []queue.Status{queue.StatusCompleted, queue.StatusFailed, queue.StatusCancelled} {
		if !(queue.Item{Status: status}).IsTerminal() {
			t.Errorf("expected %s to be terminal", status)
		}
	}
	for _, status := range []queue.Status{queue.StatusPending, queue.StatusUploading} {
		if (queue.Item{Status: status}).IsTerminal() {
			t.Errorf("expected %s to be non-terminal", status)
		}
	}
}
