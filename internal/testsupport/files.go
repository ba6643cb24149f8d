package testsupport

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

// WriteFile creates a document fixture of the requested size. The content
// starts with a PDF-style header so fixtures resemble real captures; a
// size <= 0 still produces a non-empty file.
func WriteFile(t testing.TB, path string, size int64) {
	t.Helper()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	for int64(buf.Len()) < size {
		buf.WriteByte(byte('a' + buf.Len()%23))
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}
