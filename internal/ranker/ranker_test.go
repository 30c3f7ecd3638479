package ranker

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/rybkr/ffpick/internal/index"
	"github.com/rybkr/ffpick/internal/query"
	"github.com/rybkr/ffpick/internal/store"
)

func mkEntry(root, rel string, modOffset time.Duration, base time.Time) index.FileEntry {
	abs := filepath.Join(root, rel)
	return index.FileEntry{
		Abs:      abs,
		Rel:      rel,
		Name:     filepath.Base(rel),
		Ext:      extOf(rel),
		Modified: base.Add(modOffset),
	}
}

func extOf(rel string) string {
	for i := len(rel) - 1; i >= 0; i-- {
		if rel[i] == '.' {
			return rel[i+1:]
		}
		if rel[i] == '/' {
			break
		}
	}
	return ""
}

func sampleIndex(root string, base time.Time) []index.FileEntry {
	return []index.FileEntry{
		mkEntry(root, "src/main.rs", 3*time.Hour, base),
		mkEntry(root, "src/lib.rs", 2*time.Hour, base),
		mkEntry(root, "tests/it.rs", 1*time.Hour, base),
		mkEntry(root, "README.md", 0, base),
	}
}

func TestScenarioSearchMain(t *testing.T) {
	root := "/repo"
	base := time.Unix(1_700_000_000, 0)
	entries := sampleIndex(root, base)

	q, err := query.Parse("main", query.DefaultConfig())
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	page := Search(entries, q, DefaultOptions(), nil, "main", base)
	if len(page.Results) == 0 || page.Results[0].Entry.Rel != "src/main.rs" {
		t.Fatalf("results = %+v", page.Results)
	}
}

func TestScenarioExtensionConstraintOnly(t *testing.T) {
	root := "/repo"
	base := time.Unix(1_700_000_000, 0)
	entries := sampleIndex(root, base)

	q, err := query.Parse("*.rs", query.DefaultConfig())
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	page := Search(entries, q, DefaultOptions(), nil, "*.rs", base)
	if len(page.Results) != 3 {
		t.Fatalf("len(results) = %d, want 3: %+v", len(page.Results), page.Results)
	}
	if page.Results[0].Entry.Rel != "src/main.rs" {
		t.Fatalf("first = %s, want src/main.rs (most recently modified)", page.Results[0].Entry.Rel)
	}
}

func TestScenarioNegatedPathAndExtension(t *testing.T) {
	root := "/repo"
	base := time.Unix(1_700_000_000, 0)
	entries := sampleIndex(root, base)

	q, err := query.Parse("!tests *.rs", query.DefaultConfig())
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	page := Search(entries, q, DefaultOptions(), nil, "!tests *.rs", base)
	if len(page.Results) != 2 {
		t.Fatalf("len(results) = %d, want 2: %+v", len(page.Results), page.Results)
	}
	for _, r := range page.Results {
		if r.Entry.Rel == "tests/it.rs" {
			t.Fatal("tests/it.rs should have been excluded")
		}
	}
}

func TestScenarioComboBoostPromotesMatch(t *testing.T) {
	root := "/repo"
	base := time.Unix(1_700_000_000, 0)
	entries := []index.FileEntry{
		mkEntry(root, "src/main.rs", 0, base),
		mkEntry(root, "src/manual.rs", 0, base),
	}

	st := store.Open(store.Config{Path: filepath.Join(t.TempDir(), "f.db"), MinComboCount: 3, ComboBoostMultiplier: 2}, nil)
	t.Cleanup(func() { _ = st.Close() })

	mainAbs := filepath.Join(root, "src/main.rs")
	for i := 0; i < 3; i++ {
		st.TrackQuery("ma", mainAbs, base)
	}

	q, err := query.Parse("ma", query.DefaultConfig())
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	opts := DefaultOptions()
	opts.MinComboCount = 3
	opts.ComboBoostMultiplier = 2
	page := Search(entries, q, opts, st, "ma", base)
	if len(page.Results) == 0 || page.Results[0].Entry.Rel != "src/main.rs" {
		t.Fatalf("results = %+v", page.Results)
	}
}

func TestResultsAreMonotoneNonIncreasing(t *testing.T) {
	root := "/repo"
	base := time.Unix(1_700_000_000, 0)
	entries := sampleIndex(root, base)

	q, err := query.Parse("r", query.DefaultConfig())
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	page := Search(entries, q, DefaultOptions(), nil, "r", base)
	for i := 1; i < len(page.Results); i++ {
		if page.Results[i].Score > page.Results[i-1].Score {
			t.Fatalf("scores not monotone: %+v", page.Results)
		}
	}
}
