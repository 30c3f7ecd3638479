package index

import (
	"context"
	"os"
	"testing"

	"github.com/fsnotify/fsnotify"
)

func TestFlushPendingPairsRenameWithCreate(t *testing.T) {
	root := t.TempDir()
	oldAbs := writeFile(t, root, "old.txt", "hi")

	idx, err := New(root, DefaultConfig(), nil, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := idx.Scan(context.Background()); err != nil {
		t.Fatalf("Scan: %v", err)
	}

	before, ok := idx.Lookup(oldAbs)
	if !ok {
		t.Fatalf("expected %q to be indexed", oldAbs)
	}

	newAbs := writeFile(t, root, "new.txt", "hi")
	if err := os.Remove(oldAbs); err != nil {
		t.Fatal(err)
	}

	w := &watcher{pending: map[string]fsnotify.Op{
		oldAbs: fsnotify.Rename,
		newAbs: fsnotify.Create,
	}}
	idx.flushPending(w)

	if _, ok := idx.Lookup(oldAbs); ok {
		t.Fatal("old path should no longer be indexed")
	}
	after, ok := idx.Lookup(newAbs)
	if !ok {
		t.Fatalf("expected %q to be indexed after rename", newAbs)
	}
	if after.ID != before.ID {
		t.Fatalf("rename should preserve entry ID: before=%d after=%d", before.ID, after.ID)
	}
	if after.Rel != "new.txt" {
		t.Fatalf("Rel = %q, want %q", after.Rel, "new.txt")
	}
}

func TestFlushPendingFallsBackWhenAmbiguous(t *testing.T) {
	root := t.TempDir()
	oldA := writeFile(t, root, "a.txt", "hi")
	oldB := writeFile(t, root, "b.txt", "hi")

	idx, err := New(root, DefaultConfig(), nil, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := idx.Scan(context.Background()); err != nil {
		t.Fatalf("Scan: %v", err)
	}

	idA, _ := idx.Lookup(oldA)
	idB, _ := idx.Lookup(oldB)

	newA := writeFile(t, root, "a2.txt", "hi")
	newB := writeFile(t, root, "b2.txt", "hi")
	if err := os.Remove(oldA); err != nil {
		t.Fatal(err)
	}
	if err := os.Remove(oldB); err != nil {
		t.Fatal(err)
	}

	// Two renames in the same window: pairing is ambiguous, so each
	// falls back to remove+create and gets a fresh ID.
	w := &watcher{pending: map[string]fsnotify.Op{
		oldA: fsnotify.Rename,
		oldB: fsnotify.Rename,
		newA: fsnotify.Create,
		newB: fsnotify.Create,
	}}
	idx.flushPending(w)

	gotA, ok := idx.Lookup(newA)
	if !ok {
		t.Fatalf("expected %q to be indexed", newA)
	}
	gotB, ok := idx.Lookup(newB)
	if !ok {
		t.Fatalf("expected %q to be indexed", newB)
	}
	if gotA.ID == idA.ID || gotB.ID == idB.ID {
		t.Fatal("ambiguous batch should not preserve old IDs")
	}
}
