// Package grep implements live content search over indexed files: plain,
// regex, and fuzzy modes, with cursor-based pagination and per-line match
// ranges.
package grep

import (
	"log/slog"
	"os"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/rybkr/ffpick/internal/fuzzy"
	"github.com/rybkr/ffpick/internal/index"
	"github.com/rybkr/ffpick/internal/query"
)

// Mode selects the matching strategy.
type Mode int

const (
	ModePlain Mode = iota
	ModeRegex
	ModeFuzzy
)

const (
	defaultMaxFileSize      = 8 << 20
	defaultMaxMatchesPerFile = 50
	defaultLineDisplayCap    = 2000
)

// Match is a single content match.
type Match struct {
	Abs         string
	Rel         string
	Name        string
	GitStatus   query.GitStatus
	Line        int // 1-based
	Col         int // 0-based byte column of the first matched byte
	ByteOffset  int64
	LineContent string
	Ranges      []fuzzy.Range
	Score       *int // set only in fuzzy mode
}

// Cursor is the opaque (to callers) resume token: a file-list offset plus
// a hash of the query, so a stale cursor against a changed query or
// index can be detected by the caller if it chooses to check.
type Cursor struct {
	FileOffset int
	QueryHash  uint64
}

// Request bundles a grep call's parameters.
type Request struct {
	Mode              Mode
	Pattern           string
	Constraints       []query.Constraint
	Cursor            Cursor
	MaxMatches        int
	MaxFileSize       int64
	MaxMatchesPerFile int
	SmartCase         bool
	Deadline          time.Time // zero means no budget
}

// Counts summarizes how much of the candidate list a call covered.
type Counts struct {
	Matches        int
	FilesSearched  int
	FilteredFiles  int
	TotalIndexed   int
}

// Result is the outcome of one grep call.
type Result struct {
	Matches            []Match
	Counts             Counts
	NextCursor         *Cursor
	RegexFallbackError string
}

// QueryHash hashes pattern for cursor staleness detection.
func QueryHash(pattern string) uint64 {
	return xxhash.Sum64String(pattern)
}

// Run executes one grep request against entries (already a read snapshot
// of the index).
func Run(entries []index.FileEntry, req Request) Result {
	if req.MaxFileSize <= 0 {
		req.MaxFileSize = defaultMaxFileSize
	}
	if req.MaxMatchesPerFile <= 0 {
		req.MaxMatchesPerFile = defaultMaxMatchesPerFile
	}
	if req.MaxMatches <= 0 {
		req.MaxMatches = 100
	}

	candidates := filterAndSort(entries, req.Constraints)

	res := Result{}
	res.Counts.TotalIndexed = len(entries)
	res.Counts.FilteredFiles = len(candidates)

	var re *regexp.Regexp
	mode := req.Mode
	if mode == ModeRegex {
		compiled, err := regexp.Compile(req.Pattern)
		if err != nil {
			res.RegexFallbackError = err.Error()
			mode = ModePlain
		} else {
			re = compiled
		}
	}

	start := req.Cursor.FileOffset
	if start < 0 || start > len(candidates) {
		start = 0
	}

	i := start
	for ; i < len(candidates); i++ {
		if deadlineExceeded(req.Deadline) {
			break
		}
		if len(res.Matches) >= req.MaxMatches {
			break
		}

		e := candidates[i]
		res.Counts.FilesSearched++
		if e.Size > req.MaxFileSize {
			continue
		}

		fileMatches, err := searchFile(e, mode, req.Pattern, re, req.SmartCase, req.MaxMatchesPerFile, req.Deadline)
		if err != nil {
			// Per-file I/O errors are logged and skipped: the file counts
			// as searched but yields no matches.
			slog.Default().Warn("grep skipped file", "path", e.Abs, "error", err)
			continue
		}
		if mode == ModeFuzzy {
			sort.SliceStable(fileMatches, func(a, b int) bool {
				return *fileMatches[a].Score > *fileMatches[b].Score
			})
		}
		// The cursor is file-granular (Cursor.FileOffset), so a file's
		// matches are never split across pages: once a file is started
		// it is finished, even if that pushes this response past
		// MaxMatches. The next page resumes at the following file.
		res.Matches = append(res.Matches, fileMatches...)
	}

	res.Counts.Matches = len(res.Matches)

	if i < len(candidates) {
		res.NextCursor = &Cursor{FileOffset: i, QueryHash: QueryHash(req.Pattern)}
	}
	return res
}

func deadlineExceeded(deadline time.Time) bool {
	return !deadline.IsZero() && time.Now().After(deadline)
}

// filterAndSort applies the extension, path-segment, git-status, text and
// negation constraints the way the ranker does, then sorts by descending
// modification time so fresher edits surface first. Glob and file-type
// constraints are not applied here: every entry passes them.
func filterAndSort(entries []index.FileEntry, constraints []query.Constraint) []index.FileEntry {
	out := make([]index.FileEntry, 0, len(entries))
	for _, e := range entries {
		if matchesAll(e, constraints) {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Modified.After(out[j].Modified)
	})
	return out
}

func matchesAll(e index.FileEntry, constraints []query.Constraint) bool {
	for _, c := range constraints {
		if !matchesOne(e, c) {
			return false
		}
	}
	return true
}

func matchesOne(e index.FileEntry, c query.Constraint) bool {
	switch c.Kind {
	case query.KindExtension:
		return strings.EqualFold(e.Ext, c.Value)
	case query.KindPathSegment:
		for _, seg := range strings.Split(e.Rel, "/") {
			if seg == c.Value {
				return true
			}
		}
		return false
	case query.KindGitStatus:
		return e.GitStatus == c.Status
	case query.KindNot:
		if c.Inner == nil {
			return true
		}
		return !matchesOne(e, *c.Inner)
	case query.KindText:
		return strings.Contains(strings.ToLower(e.Rel), strings.ToLower(c.Value))
	default:
		return true
	}
}

func searchFile(e index.FileEntry, mode Mode, pattern string, re *regexp.Regexp, smartCase bool, maxPerFile int, deadline time.Time) ([]Match, error) {
	if e.Size > 0 && e.Size > defaultMaxFileSize*8 {
		// Hard ceiling regardless of request: never map absurdly large
		// files even if a caller passes an oversized max_file_size.
		return nil, errFileTooLarge
	}

	data, err := readFile(e.Abs)
	if err != nil {
		return nil, err
	}

	var matches []Match
	lineNo := 0
	offset := int64(0)

	for _, lineBytes := range splitLinesKeepOffsets(data) {
		lineNo++
		lineOffset := offset
		offset += int64(len(lineBytes.content)) + 1

		if deadlineExceeded(deadline) {
			break
		}
		line := string(lineBytes.content)
		display, clamp := truncateLine(line, defaultLineDisplayCap)

		var ranges []fuzzy.Range
		var score *int

		switch mode {
		case ModePlain:
			ranges = plainRanges(display, pattern, smartCase)
		case ModeRegex:
			if re != nil {
				ranges = regexRanges(re, display)
			}
		case ModeFuzzy:
			if m, ok := fuzzy.MatchString(pattern, display); ok {
				ranges = m.Ranges
				s := m.Score
				score = &s
			}
		}
		if len(ranges) == 0 {
			continue
		}
		if clamp {
			ranges = clampRanges(ranges, len(display))
		}

		matches = append(matches, Match{
			Abs: e.Abs, Rel: e.Rel, Name: e.Name, GitStatus: e.GitStatus,
			Line: lineNo, Col: ranges[0].Start, ByteOffset: lineOffset + int64(ranges[0].Start),
			LineContent: display, Ranges: ranges, Score: score,
		})
		if len(matches) >= maxPerFile {
			break
		}
	}
	return matches, nil
}

type lineSpan struct {
	content []byte
}

func splitLinesKeepOffsets(data []byte) []lineSpan {
	var out []lineSpan
	start := 0
	for i, b := range data {
		if b == '\n' {
			end := i
			if end > start && data[end-1] == '\r' {
				end--
			}
			out = append(out, lineSpan{content: data[start:end]})
			start = i + 1
		}
	}
	if start < len(data) {
		out = append(out, lineSpan{content: data[start:]})
	}
	return out
}

func truncateLine(line string, cap int) (string, bool) {
	if len(line) <= cap {
		return line, false
	}
	return line[:cap] + " … (truncated)", true
}

func clampRanges(ranges []fuzzy.Range, max int) []fuzzy.Range {
	out := make([]fuzzy.Range, 0, len(ranges))
	for _, r := range ranges {
		if r.Start >= max {
			continue
		}
		if r.End > max {
			r.End = max
		}
		out = append(out, r)
	}
	return out
}

func plainRanges(line, pattern string, smartCase bool) []fuzzy.Range {
	if pattern == "" {
		return nil
	}
	hay := line
	needle := pattern
	fold := !smartCase || fuzzy.IsLower(pattern)
	if fold {
		hay = strings.ToLower(hay)
		needle = strings.ToLower(needle)
	}
	var ranges []fuzzy.Range
	start := 0
	for {
		idx := strings.Index(hay[start:], needle)
		if idx < 0 {
			break
		}
		s := start + idx
		e := s + len(needle)
		ranges = append(ranges, fuzzy.Range{Start: s, End: e})
		start = e
		if start >= len(hay) {
			break
		}
	}
	return ranges
}

func regexRanges(re *regexp.Regexp, line string) []fuzzy.Range {
	locs := re.FindAllStringIndex(line, -1)
	if locs == nil {
		return nil
	}
	ranges := make([]fuzzy.Range, len(locs))
	for i, l := range locs {
		ranges[i] = fuzzy.Range{Start: l[0], End: l[1]}
	}
	return ranges
}

var errFileTooLarge = &fileError{"file exceeds hard size ceiling"}

type fileError struct{ msg string }

func (e *fileError) Error() string { return e.msg }

// readFile is a package-level seam so SetMmapCache can redirect file reads
// through the shared mmap LRU without threading a cache handle through
// every call in this package; the default falls back to a plain read.
var readFile = func(path string) ([]byte, error) {
	return os.ReadFile(path)
}

// SetMmapCache routes subsequent reads through cache's Acquire/Release,
// so repeated greps over the same files reuse existing mappings. Pass
// nil to revert to plain reads (mainly useful in tests).
func SetMmapCache(cache *index.MmapCache) {
	if cache == nil {
		readFile = func(path string) ([]byte, error) {
			return os.ReadFile(path)
		}
		return
	}
	readFile = func(path string) ([]byte, error) {
		data, err := cache.Acquire(path)
		if err != nil {
			return nil, err
		}
		defer cache.Release(path)
		out := make([]byte, len(data))
		copy(out, data)
		return out, nil
	}
}
