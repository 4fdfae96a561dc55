package file

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/mridentity/ImDisk/backend"
)

func TestReadWriteRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "image.bin")
	if err := os.WriteFile(path, make([]byte, 4096), 0666); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	h, err := Open(path, backend.OpenOptions{})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer h.Close()

	payload := []byte("hello, devio")
	if _, err := h.WriteAt(payload, 100); err != nil {
		t.Fatalf("WriteAt: %v", err)
	}

	out := make([]byte, len(payload))
	if _, err := h.ReadAt(out, 100); err != nil {
		t.Fatalf("ReadAt: %v", err)
	}
	if string(out) != string(payload) {
		t.Fatalf("ReadAt = %q, want %q", out, payload)
	}

	size, ok := h.Size()
	if !ok || size != 4096 {
		t.Fatalf("Size() = (%d, %v), want (4096, true)", size, ok)
	}
}

func TestOpenReadOnlyRejectsWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "image.bin")
	if err := os.WriteFile(path, make([]byte, 4096), 0666); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	h, err := Open(path, backend.OpenOptions{ReadOnly: true})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer h.Close()

	if _, err := h.WriteAt([]byte("x"), 0); err == nil {
		t.Fatal("expected WriteAt on a read-only handle to fail")
	}
}
