package index

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, root, rel, content string) string {
	t.Helper()
	abs := filepath.Join(root, rel)
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(abs, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return abs
}

func TestScanDiscoversFiles(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "src/main.rs", "fn main() {}\n")
	writeFile(t, root, "src/lib.rs", "pub fn lib() {}\n")
	writeFile(t, root, "README.md", "# hi\n")

	idx, err := New(root, DefaultConfig(), nil, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := idx.Scan(context.Background()); err != nil {
		t.Fatalf("Scan: %v", err)
	}

	snap := idx.Snapshot()
	if len(snap) != 3 {
		t.Fatalf("len(snap) = %d, want 3: %+v", len(snap), snap)
	}

	var foundMain bool
	for _, e := range snap {
		if e.Rel == "src/main.rs" {
			foundMain = true
			if e.Ext != "rs" || e.Name != "main.rs" {
				t.Fatalf("entry = %+v", e)
			}
		}
	}
	if !foundMain {
		t.Fatal("src/main.rs not found in snapshot")
	}
}

func TestScanHonorsGitignore(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, ".gitignore", "ignored/\n*.log\n")
	writeFile(t, root, "ignored/file.txt", "x")
	writeFile(t, root, "kept.txt", "x")
	writeFile(t, root, "debug.log", "x")

	idx, err := New(root, DefaultConfig(), nil, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := idx.Scan(context.Background()); err != nil {
		t.Fatalf("Scan: %v", err)
	}

	for _, e := range idx.Snapshot() {
		if e.Rel == "ignored/file.txt" || e.Rel == "debug.log" {
			t.Fatalf("expected %s to be ignored", e.Rel)
		}
	}
	if _, ok := idx.Lookup(filepath.Join(root, "kept.txt")); !ok {
		t.Fatal("kept.txt should be indexed")
	}
}

func TestScanSkipsGitDirectory(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, ".git/HEAD", "ref: refs/heads/main\n")
	writeFile(t, root, "main.go", "package main\n")

	idx, err := New(root, DefaultConfig(), nil, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := idx.Scan(context.Background()); err != nil {
		t.Fatalf("Scan: %v", err)
	}

	for _, e := range idx.Snapshot() {
		if e.Rel == ".git/HEAD" {
			t.Fatal(".git contents should never be indexed")
		}
	}
}

func TestUpsertAndRemove(t *testing.T) {
	root := t.TempDir()
	idx, err := New(root, DefaultConfig(), nil, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	abs := writeFile(t, root, "a.txt", "hi")
	if err := idx.Scan(context.Background()); err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if idx.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", idx.Len())
	}

	idx.remove(abs)
	if idx.Len() != 0 {
		t.Fatalf("Len() after remove = %d, want 0", idx.Len())
	}
	if _, ok := idx.Lookup(abs); ok {
		t.Fatal("expected removed entry to be gone")
	}
}

func TestWaitForScanReturnsAfterCompletion(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.txt", "hi")

	idx, err := New(root, DefaultConfig(), nil, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := idx.Scan(context.Background()); err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if !idx.WaitForScan(context.Background()) {
		t.Fatal("expected scan to already be complete")
	}
	if idx.IsScanning() {
		t.Fatal("expected scanning to be false after Scan returns")
	}
}
