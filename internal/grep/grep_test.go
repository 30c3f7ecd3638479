package grep

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rybkr/ffpick/internal/index"
)

func writeTemp(t *testing.T, name, content string) index.FileEntry {
	t.Helper()
	dir := t.TempDir()
	abs := filepath.Join(dir, name)
	if err := os.WriteFile(abs, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return index.FileEntry{Abs: abs, Rel: name, Name: name}
}

func TestPlainModeTwoMatches(t *testing.T) {
	e := writeTemp(t, "sample.go", "    let x = 1;\n    let y = 2;\n")
	res := Run([]index.FileEntry{e}, Request{Mode: ModePlain, Pattern: "let", MaxMatches: 10})
	if res.Counts.Matches != 2 {
		t.Fatalf("matches = %d, want 2: %+v", res.Counts.Matches, res.Matches)
	}
	if res.Matches[0].Line != 1 || res.Matches[1].Line != 2 {
		t.Fatalf("line numbers = %d,%d", res.Matches[0].Line, res.Matches[1].Line)
	}
}

func TestRegexModeMatchesFunctionSignature(t *testing.T) {
	e := writeTemp(t, "main.c", "fn main() {}\n")
	res := Run([]index.FileEntry{e}, Request{Mode: ModeRegex, Pattern: `fn\s+\w+`, MaxMatches: 10})
	if res.Counts.Matches != 1 {
		t.Fatalf("matches = %d, want 1", res.Counts.Matches)
	}
	r := res.Matches[0].Ranges[0]
	got := res.Matches[0].LineContent[r.Start:r.End]
	if got != "fn main" {
		t.Fatalf("matched text = %q, want %q", got, "fn main")
	}
}

func TestRegexModeInvalidPatternFallsBackToPlain(t *testing.T) {
	e := writeTemp(t, "x.txt", "no brackets here\n")
	res := Run([]index.FileEntry{e}, Request{Mode: ModeRegex, Pattern: "[", MaxMatches: 10})
	if res.RegexFallbackError == "" {
		t.Fatal("expected regex_fallback_error to be set")
	}
	if res.Counts.Matches != 0 {
		t.Fatalf("matches = %d, want 0", res.Counts.Matches)
	}
}

func TestCursorReplayIsPrefixOfExhaustiveResult(t *testing.T) {
	var entries []index.FileEntry
	dir := t.TempDir()
	for i := 0; i < 5; i++ {
		abs := filepath.Join(dir, string(rune('a'+i))+".txt")
		if err := os.WriteFile(abs, []byte("needle here\n"), 0o644); err != nil {
			t.Fatal(err)
		}
		entries = append(entries, index.FileEntry{Abs: abs, Rel: filepath.Base(abs), Name: filepath.Base(abs)})
	}

	full := Run(entries, Request{Mode: ModePlain, Pattern: "needle", MaxMatches: 100})

	var paged []Match
	var cursor Cursor
	for {
		page := Run(entries, Request{Mode: ModePlain, Pattern: "needle", MaxMatches: 2, Cursor: cursor})
		paged = append(paged, page.Matches...)
		if page.NextCursor == nil {
			break
		}
		cursor = *page.NextCursor
	}

	if len(paged) != len(full.Matches) {
		t.Fatalf("paged = %d matches, full = %d", len(paged), len(full.Matches))
	}
	for i := range paged {
		if paged[i].Abs != full.Matches[i].Abs {
			t.Fatalf("mismatch at %d: %s vs %s", i, paged[i].Abs, full.Matches[i].Abs)
		}
	}
}

func TestByteOffsetAdvancesPastNonMatchingLines(t *testing.T) {
	// Line 1 doesn't match; line 2 does. ByteOffset must count line 1's
	// bytes even though it produced no match.
	e := writeTemp(t, "offsets.txt", "no match here\nneedle\n")
	res := Run([]index.FileEntry{e}, Request{Mode: ModePlain, Pattern: "needle", MaxMatches: 10})
	if res.Counts.Matches != 1 {
		t.Fatalf("matches = %d, want 1", res.Counts.Matches)
	}
	want := int64(len("no match here\n"))
	if got := res.Matches[0].ByteOffset; got != want {
		t.Fatalf("ByteOffset = %d, want %d", got, want)
	}
}

func TestCursorDoesNotTruncateAFileMidway(t *testing.T) {
	// A single file yields more matches than the page room; the cursor
	// model is file-granular, so none of that file's matches may be
	// dropped even though the response exceeds MaxMatches.
	e := writeTemp(t, "many.txt", "needle\nneedle\nneedle\n")
	res := Run([]index.FileEntry{e}, Request{Mode: ModePlain, Pattern: "needle", MaxMatches: 1})
	if res.Counts.Matches != 3 {
		t.Fatalf("matches = %d, want 3 (file must not be split mid-way)", res.Counts.Matches)
	}
	if res.NextCursor != nil {
		t.Fatalf("expected no further cursor, the only file was fully consumed")
	}
}

func TestMatchRangesAreValidAndNonOverlapping(t *testing.T) {
	e := writeTemp(t, "f.txt", "aaaa bbbb aaaa\n")
	res := Run([]index.FileEntry{e}, Request{Mode: ModePlain, Pattern: "aaaa", MaxMatches: 10})
	last := -1
	for _, m := range res.Matches {
		for _, r := range m.Ranges {
			if r.Start < 0 || r.End > len(m.LineContent) || r.Start > r.End {
				t.Fatalf("invalid range %+v in %q", r, m.LineContent)
			}
			if r.Start < last {
				t.Fatalf("overlapping/out-of-order ranges in %+v", m.Ranges)
			}
			last = r.End
		}
	}
}
