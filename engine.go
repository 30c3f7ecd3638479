// Package ffpick is the typed Go API for the fuzzy file picker engine: it
// ties together file discovery and watching, fuzzy ranking, frecency
// persistence, and live grep behind a single Engine handle.
package ffpick

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/rybkr/ffpick/internal/boundary"
	"github.com/rybkr/ffpick/internal/grep"
	"github.com/rybkr/ffpick/internal/index"
	"github.com/rybkr/ffpick/internal/query"
	"github.com/rybkr/ffpick/internal/ranker"
	"github.com/rybkr/ffpick/internal/store"
)

// Engine is the root handle: one per indexed directory. Safe for
// concurrent use; Search, LiveGrep, and the tracking methods may be
// called from multiple goroutines while a scan or watch is in flight.
type Engine struct {
	cfg   Config
	log   *slog.Logger
	store *store.Store
	index *index.Index
}

// New opens an Engine rooted at cfg.Root: it opens the frecency/combo
// store (degrading to a store that records nothing if cfg.Store.Path is
// empty or cannot be opened),
// builds the file index, runs the initial scan, and starts the
// filesystem watcher unless cfg.StartWatcher is false.
func New(ctx context.Context, cfg Config) (*Engine, error) {
	cfg.defaults()
	if cfg.Root == "" {
		return nil, boundary.New(boundary.KindInvalidPath, "root must not be empty")
	}

	log := cfg.Logger.With("component", "engine", "root", cfg.Root)

	st := store.Open(cfg.Store, log)

	idx, err := index.New(cfg.Root, cfg.Index, st, log)
	if err != nil {
		st.Close()
		return nil, boundary.Wrap(boundary.KindInvalidPath, "opening index", err)
	}

	e := &Engine{cfg: cfg, log: log, store: st, index: idx}

	grep.SetMmapCache(idx.MmapCache())

	if err := idx.Scan(ctx); err != nil {
		st.Close()
		return nil, boundary.Wrap(boundary.KindScanFailed, "initial scan", err)
	}

	if *cfg.StartWatcher {
		if err := idx.StartWatcher(); err != nil {
			log.Warn("watcher failed to start, index will not update incrementally", "error", err)
		}
	}

	return e, nil
}

// Close stops the watcher and closes the underlying store. Safe to call
// more than once.
func (e *Engine) Close() error {
	e.index.Close()
	return e.store.Close()
}

// Search ranks the index against req.Query and returns one page of
// results.
func (e *Engine) Search(req SearchRequest) (ranker.Page, error) {
	q, err := query.Parse(req.Query, query.DefaultConfig())
	if err != nil {
		return ranker.Page{}, boundary.Wrap(boundary.KindInvalidConstraint, "parsing search query", err)
	}

	opts := e.cfg.Ranker
	opts.PageIndex = req.PageIndex
	if req.PageSize > 0 {
		opts.PageSize = req.PageSize
	}
	opts.CurrentFile = req.CurrentFile

	page := ranker.Search(e.index.Snapshot(), q, opts, e.store, req.Query, time.Now())
	return page, nil
}

// SearchWire runs Search and converts the result to its wire shape, for
// callers (the C ABI boundary) that need the JSON-ready form directly.
func (e *Engine) SearchWire(req SearchRequest) (boundary.SearchResult, error) {
	page, err := e.Search(req)
	if err != nil {
		return boundary.SearchResult{}, err
	}
	opts := e.cfg.Ranker
	opts.PageIndex = req.PageIndex
	if req.PageSize > 0 {
		opts.PageSize = req.PageSize
	}
	return boundary.NewSearchResult(page, opts), nil
}

// LiveGrep searches file contents under req.Pattern/req.Mode, honoring
// any structured constraints in req.Constraint and resuming from
// req.Cursor when non-empty.
func (e *Engine) LiveGrep(req GrepRequest) (grep.Result, error) {
	mode, err := parseGrepMode(req.Mode)
	if err != nil {
		return grep.Result{}, boundary.Wrap(boundary.KindInvalidConstraint, "parsing grep mode", err)
	}

	var constraints []query.Constraint
	if req.Constraint != "" {
		q, err := query.Parse(req.Constraint, query.GrepConfig())
		if err != nil {
			return grep.Result{}, boundary.Wrap(boundary.KindInvalidConstraint, "parsing grep constraint", err)
		}
		constraints = q.Constraints
	}

	cursor := boundary.DecodeCursor(req.Cursor)

	var deadline time.Time
	if req.Deadline > 0 {
		deadline = time.Now().Add(req.Deadline)
	}

	gr := grep.Run(e.index.Snapshot(), grep.Request{
		Mode:        mode,
		Pattern:     req.Pattern,
		Constraints: constraints,
		Cursor:      cursor,
		MaxMatches:  req.MaxMatches,
		Deadline:    deadline,
	})
	return gr, nil
}

func parseGrepMode(s string) (grep.Mode, error) {
	switch s {
	case "", "plain":
		return grep.ModePlain, nil
	case "regex":
		return grep.ModeRegex, nil
	case "fuzzy":
		return grep.ModeFuzzy, nil
	default:
		return 0, fmt.Errorf("unknown grep mode %q", s)
	}
}

// ScanFiles triggers a full rescan of the index root.
func (e *Engine) ScanFiles(ctx context.Context) error {
	if err := e.index.Scan(ctx); err != nil {
		return boundary.Wrap(boundary.KindScanFailed, "rescan", err)
	}
	return nil
}

// IsScanning reports whether a scan is currently in flight.
func (e *Engine) IsScanning() bool { return e.index.IsScanning() }

// GetScanProgress reports the number of files indexed by the current or
// most recently completed scan.
func (e *Engine) GetScanProgress() int64 { return e.index.ScanProgress() }

// WaitForScan blocks until the in-flight scan completes or ctx is done,
// reporting which occurred first.
func (e *Engine) WaitForScan(ctx context.Context) bool { return e.index.WaitForScan(ctx) }

// RestartIndex stops the watcher, repoints the index at newRoot, and
// runs a full scan there.
func (e *Engine) RestartIndex(newRoot string) error {
	if err := e.index.Restart(newRoot); err != nil {
		return boundary.Wrap(boundary.KindInvalidPath, "restarting index", err)
	}
	e.cfg.Root = newRoot
	return nil
}

// TrackAccess records that path was opened, for frecency scoring, and
// returns whether the path is currently indexed.
func (e *Engine) TrackAccess(path string) bool {
	return e.index.TrackAccess(path)
}

// TrackQuery records that rawQuery led to selecting selectedPath, for the
// query/file combo boost and the query history. It does not record a
// frecency access; TrackAccess does that.
func (e *Engine) TrackQuery(rawQuery, selectedPath string) bool {
	return e.store.TrackQuery(rawQuery, selectedPath, time.Now())
}

// GetHistoricalQuery returns the offset-th most recent distinct query,
// offset 0 being most recent.
func (e *Engine) GetHistoricalQuery(offset int) (string, bool) {
	return e.store.HistoricalQuery(offset)
}

// RefreshGitStatus recomputes git status for every indexed file and
// returns the number of files whose status changed.
func (e *Engine) RefreshGitStatus() (int, error) {
	n, err := e.index.RefreshGitStatus()
	if err != nil {
		return n, boundary.Wrap(boundary.KindInternal, "refreshing git status", err)
	}
	return n, nil
}

// HealthCheck reports the engine's current operating state.
func (e *Engine) HealthCheck(testPath string) boundary.HealthReport {
	report := boundary.HealthReport{
		Initialized:           true,
		IsScanning:            e.index.IsScanning(),
		ScannedFiles:          e.index.ScanProgress(),
		StoreDegraded:         e.store.Degraded(),
		GitRepositoryDetected: e.index.HasGitRepository(),
	}
	if testPath != "" {
		ok := pathAccessible(testPath)
		report.TestPathAccessible = &ok
	}
	return report
}

func pathAccessible(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// ShortenPath renders path for display within max+1 runes.
func (e *Engine) ShortenPath(path string, max int) string {
	return boundary.ShortenPath(path, max, "middle")
}
