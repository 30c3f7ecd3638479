package boundary

import (
	"encoding/base64"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rybkr/ffpick/internal/fuzzy"
	"github.com/rybkr/ffpick/internal/grep"
	"github.com/rybkr/ffpick/internal/ranker"
)

// MatchRangeWire is the wire shape of a fuzzy.Range.
type MatchRangeWire struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// SearchEntryWire is one ranked file in a SearchResult.
type SearchEntryWire struct {
	Path         string           `json:"path"`
	RelativePath string           `json:"relative_path"`
	Filename     string           `json:"filename"`
	GitStatus    string           `json:"git_status"`
	Score        int              `json:"score"`
	MatchRanges  []MatchRangeWire `json:"match_ranges"`
}

// SearchResult is the wire shape of a ranker.Page.
type SearchResult struct {
	Results       []SearchEntryWire `json:"results"`
	TotalFiltered int               `json:"total_filtered"`
	PageIndex     int               `json:"page_index"`
	PageSize      int               `json:"page_size"`
}

// NewSearchResult converts a ranker.Page into its wire shape.
func NewSearchResult(page ranker.Page, opts ranker.Options) SearchResult {
	out := SearchResult{TotalFiltered: page.TotalFiltered, PageIndex: opts.PageIndex, PageSize: opts.PageSize}
	for _, r := range page.Results {
		out.Results = append(out.Results, SearchEntryWire{
			Path:         r.Entry.Abs,
			RelativePath: r.Entry.Rel,
			Filename:     r.Entry.Name,
			GitStatus:    r.Entry.GitStatus.String(),
			Score:        r.Score,
			MatchRanges:  wireRanges(r.Ranges),
		})
	}
	return out
}

// GrepMatchWire is one content match in a GrepResult.
type GrepMatchWire struct {
	Path         string           `json:"path"`
	RelativePath string           `json:"relative_path"`
	Filename     string           `json:"filename"`
	GitStatus    string           `json:"git_status"`
	Line         int              `json:"line"`
	Column       int              `json:"column"`
	ByteOffset   int64            `json:"byte_offset"`
	LineContent  string           `json:"line_content"`
	MatchRanges  []MatchRangeWire `json:"match_ranges"`
	Score        *int             `json:"score,omitempty"`
}

// GrepResult is the wire shape of a grep.Result.
type GrepResult struct {
	Matches             []GrepMatchWire `json:"matches"`
	MatchesCount        int             `json:"matches_count"`
	FilesSearched       int             `json:"files_searched"`
	FilteredFiles       int             `json:"filtered_files"`
	TotalIndexed        int             `json:"total_indexed"`
	NextCursor          *string         `json:"next_cursor"`
	RegexFallbackError  string          `json:"regex_fallback_error,omitempty"`
}

// NewGrepResult converts a grep.Result into its wire shape.
func NewGrepResult(res grep.Result) GrepResult {
	out := GrepResult{
		MatchesCount:       res.Counts.Matches,
		FilesSearched:      res.Counts.FilesSearched,
		FilteredFiles:      res.Counts.FilteredFiles,
		TotalIndexed:       res.Counts.TotalIndexed,
		RegexFallbackError: res.RegexFallbackError,
	}
	for _, m := range res.Matches {
		out.Matches = append(out.Matches, GrepMatchWire{
			Path: m.Abs, RelativePath: m.Rel, Filename: m.Name,
			GitStatus: m.GitStatus.String(), Line: m.Line, Column: m.Col,
			ByteOffset: m.ByteOffset, LineContent: m.LineContent,
			MatchRanges: wireRanges(m.Ranges), Score: m.Score,
		})
	}
	if res.NextCursor != nil {
		s := EncodeCursor(*res.NextCursor)
		out.NextCursor = &s
	}
	return out
}

func wireRanges(ranges []fuzzy.Range) []MatchRangeWire {
	out := make([]MatchRangeWire, len(ranges))
	for i, r := range ranges {
		out[i] = MatchRangeWire{Start: r.Start, End: r.End}
	}
	return out
}

// HealthReport summarizes engine state for health_check.
type HealthReport struct {
	Initialized          bool   `json:"initialized"`
	IsScanning            bool   `json:"is_scanning"`
	ScannedFiles           int64  `json:"scanned_files"`
	StoreDegraded          bool   `json:"store_degraded"`
	GitRepositoryDetected  bool   `json:"git_repository_detected"`
	TestPathAccessible     *bool  `json:"test_path_accessible,omitempty"`
}

// EncodeCursor packs a grep.Cursor into an opaque base64 token.
func EncodeCursor(c grep.Cursor) string {
	raw := fmt.Sprintf("%d:%d", c.FileOffset, c.QueryHash)
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

// DecodeCursor unpacks a token produced by EncodeCursor. An empty or
// malformed token decodes to the zero Cursor (start of list).
func DecodeCursor(token string) grep.Cursor {
	if token == "" {
		return grep.Cursor{}
	}
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return grep.Cursor{}
	}
	parts := strings.SplitN(string(raw), ":", 2)
	if len(parts) != 2 {
		return grep.Cursor{}
	}
	offset, err1 := strconv.Atoi(parts[0])
	hash, err2 := strconv.ParseUint(parts[1], 10, 64)
	if err1 != nil || err2 != nil {
		return grep.Cursor{}
	}
	return grep.Cursor{FileOffset: offset, QueryHash: hash}
}

// ShortenPath returns a display string of at most max+1 runes (accounting
// for the ellipsis) that preserves the filename, eliding middle path
// segments first and, if still too long, truncating the filename's stem
// (or the whole filename, when its extension alone does not fit).
func ShortenPath(path string, max int, strategy string) string {
	if max <= 0 {
		return ""
	}
	runes := []rune(path)
	if len(runes) <= max {
		return path
	}

	name := filepath.Base(path)
	dir := filepath.Dir(path)
	segments := strings.Split(filepath.ToSlash(dir), "/")

	for len(segments) > 1 {
		candidate := strings.Join(append([]string{segments[0], "…"}, segments[len(segments)-1]), "/") + "/" + name
		if len([]rune(candidate)) <= max+1 {
			return candidate
		}
		segments = segments[:len(segments)-1]
	}

	candidate := ".../" + name
	if len([]rune(candidate)) <= max+1 {
		return candidate
	}

	// Even the filename alone is too long: truncate it, keeping the
	// extension so the result still looks like the same kind of file.
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	keep := max - len([]rune(ext)) - 1
	if keep < 1 {
		nameRunes := []rune(name)
		if len(nameRunes) <= max+1 {
			return name
		}
		return string(nameRunes[:max]) + "…"
	}
	stemRunes := []rune(stem)
	if keep > len(stemRunes) {
		keep = len(stemRunes)
	}
	return string(stemRunes[:keep]) + "…" + ext
}
