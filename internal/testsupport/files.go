package testsupport

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

// mp4Header is an ISO base media "ftyp" box, enough for the file to look
// like an MP4 to anything sniffing the first bytes.
var mp4Header = []byte{0x00, 0x00, 0x00, 0x18, 'f', 't', 'y', 'p', 'i', 's', 'o', 'm', 0x00, 0x00, 0x02, 0x00, 'i', 's', 'o', 'm', 'm', 'p', '4', '1'}

// WriteVideo creates a placeholder video of at least size bytes at
// dir/name and returns its path. Parent directories are created.
func WriteVideo(t testing.TB, dir, name string, size int) string {
	t.Helper()

	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	padding := max(size-len(mp4Header), 0)
	content := append(append([]byte(nil), mp4Header...), bytes.Repeat([]byte{0x42}, padding)...)
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}
