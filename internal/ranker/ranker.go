// Package ranker scores and paginates file index entries against a parsed
// query: constraint pre-filtering, parallel fuzzy scoring, frecency and
// combo boosts, and deterministic tie-breaking.
package ranker

import (
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"golang.org/x/sync/errgroup"

	"github.com/rybkr/ffpick/internal/fuzzy"
	"github.com/rybkr/ffpick/internal/index"
	"github.com/rybkr/ffpick/internal/query"
	"github.com/rybkr/ffpick/internal/store"
)

// specialBasenames get a ranking bonus independent of the query, the same
// way fzf-style pickers favor entry points and well-known files.
var specialBasenames = map[string]bool{
	"index": true, "main": true, "mod": true, "lib": true,
}

var specialFullNames = map[string]bool{
	"README.md": true, "README": true, "Dockerfile": true, "Makefile": true,
}

const (
	filenameMatchMultiplier = 3
	specialBasenameBonus    = 15
	accessFrecencyWeight    = 6.0
	modFrecencyWeight       = 2.0
	currentFilePenalty      = -1_000_000
	exactFilenameBonus      = 200
	distancePenaltyScale    = 1
)

// Options mirror the boundary request options that shape a search call.
type Options struct {
	MaxThreads           int
	PageIndex            int
	PageSize             int
	CurrentFile          string
	ComboBoostMultiplier float64
	MinComboCount        int
}

// DefaultOptions returns conservative defaults for an unconfigured request.
func DefaultOptions() Options {
	return Options{
		MaxThreads:           4,
		PageIndex:            0,
		PageSize:             50,
		ComboBoostMultiplier: 1.5,
		MinComboCount:        3,
	}
}

// Result is one scored, paginated file.
type Result struct {
	Entry  index.FileEntry
	Score  int
	Ranges []fuzzy.Range
}

// Page is a single page of a search, plus the total number of entries
// that survived constraint filtering (before pagination).
type Page struct {
	Results      []Result
	TotalFiltered int
}

// Search filters entries by q's constraints, scores the fuzzy term
// against each remaining entry in parallel, and returns the requested
// page in deterministic order.
func Search(entries []index.FileEntry, q query.ParsedQuery, opts Options, st *store.Store, rawQuery string, now time.Time) Page {
	filtered := filterByConstraints(entries, q.Constraints)

	if q.FuzzyTerm.Kind == query.KindEmpty {
		return emptyQueryPage(filtered, opts, st, rawQuery, now)
	}

	scored := scoreParallel(filtered, q.FuzzyTerm, opts, st, rawQuery, now)
	sortResults(scored)
	return paginate(scored, opts, len(filtered))
}

func filterByConstraints(entries []index.FileEntry, constraints []query.Constraint) []index.FileEntry {
	if len(constraints) == 0 {
		return entries
	}
	out := make([]index.FileEntry, 0, len(entries))
	for _, e := range entries {
		if matchesAll(e, constraints) {
			out = append(out, e)
		}
	}
	return out
}

// matchesAll evaluates constraints independently of evaluation order
// (each is a pure predicate over the entry, so AND-composition is
// commutative by construction).
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
	case query.KindGlob:
		ok, _ := doublestar.Match(c.Value, e.Rel)
		return ok
	case query.KindPathSegment:
		for _, seg := range strings.Split(e.Rel, "/") {
			if seg == c.Value {
				return true
			}
		}
		return false
	case query.KindFileType:
		return fileTypeOf(e.Ext) == c.Value
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

// fileTypeOf maps common extensions to a coarse language/file-type name
// for type:<name> constraints.
func fileTypeOf(ext string) string {
	switch strings.ToLower(ext) {
	case "rs":
		return "rust"
	case "go":
		return "go"
	case "ts", "tsx":
		return "typescript"
	case "js", "jsx", "mjs":
		return "javascript"
	case "py":
		return "python"
	case "java":
		return "java"
	case "c", "h":
		return "c"
	case "cc", "cpp", "cxx", "hpp":
		return "cpp"
	case "rb":
		return "ruby"
	case "md", "markdown":
		return "markdown"
	case "json":
		return "json"
	case "yaml", "yml":
		return "yaml"
	case "toml":
		return "toml"
	case "sh", "bash":
		return "shell"
	default:
		return ext
	}
}

func scoreParallel(entries []index.FileEntry, term query.FuzzyTerm, opts Options, st *store.Store, rawQuery string, now time.Time) []Result {
	threads := opts.MaxThreads
	if threads <= 0 {
		threads = 1
	}
	if threads > len(entries) && len(entries) > 0 {
		threads = len(entries)
	}
	if threads == 0 {
		return nil
	}

	shardResults := make([][]Result, threads)
	var g errgroup.Group
	shardSize := (len(entries) + threads - 1) / threads

	for t := 0; t < threads; t++ {
		t := t
		start := t * shardSize
		end := start + shardSize
		if start >= len(entries) {
			continue
		}
		if end > len(entries) {
			end = len(entries)
		}
		g.Go(func() error {
			var out []Result
			for _, e := range entries[start:end] {
				if r, ok := scoreEntry(e, term, opts, st, rawQuery, now); ok {
					out = append(out, r)
				}
			}
			shardResults[t] = out
			return nil
		})
	}
	_ = g.Wait()

	var merged []Result
	for _, s := range shardResults {
		merged = append(merged, s...)
	}
	return merged
}

func scoreEntry(e index.FileEntry, term query.FuzzyTerm, opts Options, st *store.Store, rawQuery string, now time.Time) (Result, bool) {
	var m fuzzy.Match
	var ok bool

	switch term.Kind {
	case query.KindText:
		m, ok = fuzzy.MatchString(term.Text, e.Rel)
	case query.KindParts:
		m, ok = fuzzy.MatchParts(term.Parts, e.Rel)
	default:
		return Result{}, false
	}
	if !ok {
		return Result{}, false
	}

	total := m.Score

	// Filename bonus: run the matcher again against just the basename.
	var filenameMatchStart = -1
	if fm, fok := matchTerm(term, e.Name); fok {
		total += fm.Score * filenameMatchMultiplier
		if len(fm.Ranges) > 0 {
			filenameMatchStart = fm.Ranges[0].Start
		}
		if strings.EqualFold(termText(term), e.Name) {
			total += exactFilenameBonus
		}
	}

	base := strings.TrimSuffix(e.Name, filepath.Ext(e.Name))
	if specialBasenames[strings.ToLower(base)] || specialFullNames[e.Name] {
		total += specialBasenameBonus
	}

	if st != nil {
		access, mod := st.FrecencyScore(e.Abs, now)
		total += int(access * accessFrecencyWeight)
		total += int(mod * modFrecencyWeight)

		if rawQuery != "" {
			count := st.ComboCount(rawQuery, e.Abs)
			if count >= opts.MinComboCount {
				total = int(float64(total) * opts.ComboBoostMultiplier)
			}
		}
	}

	if filenameMatchStart >= 0 {
		distanceFromStart := filenameMatchStart
		total -= distanceFromStart * distancePenaltyScale
	}

	if opts.CurrentFile != "" && opts.CurrentFile == e.Abs {
		total += currentFilePenalty
	}

	return Result{Entry: e, Score: total, Ranges: m.Ranges}, true
}

func matchTerm(term query.FuzzyTerm, haystack string) (fuzzy.Match, bool) {
	switch term.Kind {
	case query.KindText:
		return fuzzy.MatchString(term.Text, haystack)
	case query.KindParts:
		return fuzzy.MatchParts(term.Parts, haystack)
	default:
		return fuzzy.Match{}, false
	}
}

func termText(term query.FuzzyTerm) string {
	if term.Kind == query.KindText {
		return term.Text
	}
	return strings.Join(term.Parts, " ")
}

func sortResults(results []Result) {
	sort.SliceStable(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if !a.Entry.Modified.Equal(b.Entry.Modified) {
			return a.Entry.Modified.After(b.Entry.Modified)
		}
		if len(a.Entry.Rel) != len(b.Entry.Rel) {
			return len(a.Entry.Rel) < len(b.Entry.Rel)
		}
		return a.Entry.Rel < b.Entry.Rel
	})
}

func paginate(results []Result, opts Options, totalFiltered int) Page {
	pageSize := opts.PageSize
	if pageSize <= 0 {
		pageSize = 50
	}
	start := opts.PageIndex * pageSize
	if start >= len(results) {
		return Page{TotalFiltered: totalFiltered}
	}
	end := start + pageSize
	if end > len(results) {
		end = len(results)
	}
	return Page{Results: results[start:end], TotalFiltered: totalFiltered}
}

// emptyQueryPage orders by (combo-prefix boost, access-frecency,
// modification-frecency) and falls back to modification time, then
// relative path, to keep ordering deterministic when stores are empty
// or degraded.
func emptyQueryPage(entries []index.FileEntry, opts Options, st *store.Store, rawQuery string, now time.Time) Page {
	type scored struct {
		e     index.FileEntry
		combo int
		acc   float64
		mod   float64
	}
	rows := make([]scored, len(entries))
	for i, e := range entries {
		var combo int
		var acc, mod float64
		if st != nil {
			acc, mod = st.FrecencyScore(e.Abs, now)
			if rawQuery != "" {
				combo = st.ComboPrefixBoost(rawQuery, e.Abs)
			}
		}
		rows[i] = scored{e: e, combo: combo, acc: acc, mod: mod}
	}
	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if a.combo != b.combo {
			return a.combo > b.combo
		}
		if a.acc != b.acc {
			return a.acc > b.acc
		}
		if a.mod != b.mod {
			return a.mod > b.mod
		}
		if !a.e.Modified.Equal(b.e.Modified) {
			return a.e.Modified.After(b.e.Modified)
		}
		if len(a.e.Rel) != len(b.e.Rel) {
			return len(a.e.Rel) < len(b.e.Rel)
		}
		return a.e.Rel < b.e.Rel
	})

	results := make([]Result, len(rows))
	for i, r := range rows {
		results[i] = Result{Entry: r.e}
	}
	return paginate(results, opts, len(entries))
}
