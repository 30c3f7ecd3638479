package index

import (
	"os"
	"path/filepath"
	"testing"
)

func TestMmapCacheAcquireRelease(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "f.txt")
	if err := os.WriteFile(path, []byte("hello world"), 0o644); err != nil {
		t.Fatal(err)
	}

	c := NewMmapCache(1 << 20)
	data, err := c.Acquire(path)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if string(data) != "hello world" {
		t.Fatalf("data = %q", string(data))
	}
	c.Release(path)
	c.Close()
}

func TestMmapCacheEvictsUnderPressure(t *testing.T) {
	dir := t.TempDir()
	var paths []string
	for i := 0; i < 5; i++ {
		p := filepath.Join(dir, string(rune('a'+i))+".txt")
		if err := os.WriteFile(p, make([]byte, 1024), 0o644); err != nil {
			t.Fatal(err)
		}
		paths = append(paths, p)
	}

	c := NewMmapCache(2048) // room for ~2 files
	for _, p := range paths {
		if _, err := c.Acquire(p); err != nil {
			t.Fatalf("Acquire(%s): %v", p, err)
		}
		c.Release(p)
	}
	c.mu.Lock()
	n := len(c.index)
	c.mu.Unlock()
	if n >= len(paths) {
		t.Fatalf("expected eviction to have occurred, cached=%d", n)
	}
	c.Close()
}
