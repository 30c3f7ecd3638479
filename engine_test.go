package ffpick

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	dir := t.TempDir()
	for _, f := range []string{"main.go", "README.md", "src/lib.rs"} {
		full := filepath.Join(dir, f)
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(full, []byte("package main\nfunc main() {}\n"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	cfg := NewConfig(dir)
	cfg.Store.Path = filepath.Join(t.TempDir(), "ffpick.db")
	disabled := false
	cfg.StartWatcher = &disabled

	e, err := New(context.Background(), cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { e.Close() })
	return e
}

func TestEngineSearchFindsIndexedFile(t *testing.T) {
	e := newTestEngine(t)
	page, err := e.Search(SearchRequest{Query: "main"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(page.Results) == 0 {
		t.Fatal("expected at least one result for \"main\"")
	}
	found := false
	for _, r := range page.Results {
		if r.Entry.Name == "main.go" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected main.go among results, got %+v", page.Results)
	}
}

func TestEngineLiveGrepPlainMode(t *testing.T) {
	e := newTestEngine(t)
	res, err := e.LiveGrep(GrepRequest{Mode: "plain", Pattern: "func main"})
	if err != nil {
		t.Fatalf("LiveGrep: %v", err)
	}
	if res.Counts.Matches == 0 {
		t.Fatal("expected at least one match for \"func main\"")
	}
}

func TestEngineHealthCheckReportsInitialized(t *testing.T) {
	e := newTestEngine(t)
	h := e.HealthCheck("")
	if !h.Initialized {
		t.Fatal("expected Initialized = true")
	}
	if h.ScannedFiles == 0 {
		t.Fatal("expected ScannedFiles > 0 after initial scan")
	}
}

func TestEngineTrackQueryAndHistoricalQuery(t *testing.T) {
	e := newTestEngine(t)
	if !e.TrackQuery("main", filepath.Join(e.index.Root(), "main.go")) {
		t.Fatal("expected TrackQuery to succeed against a non-degraded store")
	}
	q, ok := e.GetHistoricalQuery(0)
	if !ok || q != "main" {
		t.Fatalf("GetHistoricalQuery(0) = %q, %v, want \"main\", true", q, ok)
	}
}
