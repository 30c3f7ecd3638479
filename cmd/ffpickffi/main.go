// Command ffpickffi builds the C ABI shared library consumed by editor
// integrations written in other languages. Every exported function takes
// and/or returns a JSON-encoded boundary envelope (see internal/boundary);
// engines are referenced across the boundary by an opaque uint64 handle,
// grounded on go-git's cshared object-handle registry but specialized to
// the one object type this boundary actually needs.
package main

/*
#include <stdlib.h>
*/
import "C"

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"
	"unsafe"

	"github.com/rybkr/ffpick"
	"github.com/rybkr/ffpick/internal/boundary"
)

var (
	handlesMu sync.Mutex
	handles   = map[uint64]*ffpick.Engine{}
	nextID    uint64
)

func registerEngine(e *ffpick.Engine) uint64 {
	handlesMu.Lock()
	defer handlesMu.Unlock()
	nextID++
	handles[nextID] = e
	return nextID
}

func lookupEngine(handle uint64) (*ffpick.Engine, bool) {
	handlesMu.Lock()
	defer handlesMu.Unlock()
	e, ok := handles[handle]
	return e, ok
}

func dropEngine(handle uint64) (*ffpick.Engine, bool) {
	handlesMu.Lock()
	defer handlesMu.Unlock()
	e, ok := handles[handle]
	if ok {
		delete(handles, handle)
	}
	return e, ok
}

// initOptions is the JSON shape accepted by ffpick_init's options
// parameter; all fields are optional and fall back to ffpick defaults.
type initOptions struct {
	DBPath               string  `json:"db_path"`
	MonitorAddr          string  `json:"monitor_addr"`
	FollowSymlinks       bool    `json:"follow_symlinks"`
	RespectGitignore     bool    `json:"respect_gitignore"`
	DisableWatcher       bool    `json:"disable_watcher"`
	MinComboCount        int     `json:"min_combo_count"`
	ComboBoostMultiplier float64 `json:"combo_boost_multiplier"`
}

func cString(s string) *C.char { return C.CString(s) }

func envelopeResult(v any, err error) *C.char {
	if err != nil {
		return cString(string(boundary.EncodeFailure(err)))
	}
	b, encErr := boundary.EncodeSuccess(v)
	if encErr != nil {
		return cString(string(boundary.EncodeFailure(boundary.Wrap(boundary.KindInternal, "encoding response", encErr))))
	}
	return cString(string(b))
}

//export ffpick_free_string
func ffpick_free_string(s *C.char) {
	C.free(unsafe.Pointer(s))
}

//export ffpick_init
func ffpick_init(root *C.char, optionsJSON *C.char) *C.char {
	cfg := ffpick.NewConfig(C.GoString(root))
	cfg.Logger = slog.Default()

	if raw := C.GoString(optionsJSON); raw != "" {
		opts := initOptions{
			DBPath:           cfg.Store.Path,
			MonitorAddr:      cfg.MonitorAddr,
			FollowSymlinks:   cfg.Index.FollowSymlinks,
			RespectGitignore: cfg.Index.RespectGitignore,
		}
		if err := json.Unmarshal([]byte(raw), &opts); err != nil {
			return envelopeResult(nil, boundary.Wrap(boundary.KindInvalidPath, "parsing init options", err))
		}
		cfg.Store.Path = opts.DBPath
		cfg.MonitorAddr = opts.MonitorAddr
		cfg.Index.FollowSymlinks = opts.FollowSymlinks
		cfg.Index.RespectGitignore = opts.RespectGitignore
		if opts.MinComboCount > 0 {
			cfg.Ranker.MinComboCount = opts.MinComboCount
			cfg.Store.MinComboCount = opts.MinComboCount
		}
		if opts.ComboBoostMultiplier > 0 {
			cfg.Ranker.ComboBoostMultiplier = opts.ComboBoostMultiplier
			cfg.Store.ComboBoostMultiplier = opts.ComboBoostMultiplier
		}
		if opts.DisableWatcher {
			disabled := false
			cfg.StartWatcher = &disabled
		}
	}

	e, err := ffpick.New(context.Background(), cfg)
	if err != nil {
		return envelopeResult(nil, err)
	}
	handle := registerEngine(e)
	return envelopeResult(struct {
		Handle uint64 `json:"handle"`
	}{Handle: handle}, nil)
}

//export ffpick_destroy
func ffpick_destroy(handle C.ulonglong) *C.char {
	e, ok := dropEngine(uint64(handle))
	if !ok {
		return envelopeResult(nil, boundary.New(boundary.KindNotInitialized, "unknown engine handle"))
	}
	if err := e.Close(); err != nil {
		return envelopeResult(nil, boundary.Wrap(boundary.KindInternal, "closing engine", err))
	}
	return envelopeResult(struct{}{}, nil)
}

//export ffpick_search
func ffpick_search(handle C.ulonglong, requestJSON *C.char) *C.char {
	e, ok := lookupEngine(uint64(handle))
	if !ok {
		return envelopeResult(nil, boundary.New(boundary.KindNotInitialized, "unknown engine handle"))
	}
	var req ffpick.SearchRequest
	if err := json.Unmarshal([]byte(C.GoString(requestJSON)), &req); err != nil {
		return envelopeResult(nil, boundary.Wrap(boundary.KindInvalidConstraint, "parsing search request", err))
	}
	result, err := e.SearchWire(req)
	if err != nil {
		return envelopeResult(nil, err)
	}
	return envelopeResult(result, nil)
}

//export ffpick_live_grep
func ffpick_live_grep(handle C.ulonglong, requestJSON *C.char) *C.char {
	e, ok := lookupEngine(uint64(handle))
	if !ok {
		return envelopeResult(nil, boundary.New(boundary.KindNotInitialized, "unknown engine handle"))
	}
	var wire struct {
		Mode       string `json:"mode"`
		Pattern    string `json:"pattern"`
		Constraint string `json:"constraint"`
		Cursor     string `json:"cursor"`
		MaxMatches int    `json:"max_matches"`
		DeadlineMs int    `json:"deadline_ms"`
	}
	if err := json.Unmarshal([]byte(C.GoString(requestJSON)), &wire); err != nil {
		return envelopeResult(nil, boundary.Wrap(boundary.KindInvalidConstraint, "parsing grep request", err))
	}
	res, err := e.LiveGrep(ffpick.GrepRequest{
		Mode:       wire.Mode,
		Pattern:    wire.Pattern,
		Constraint: wire.Constraint,
		Cursor:     wire.Cursor,
		MaxMatches: wire.MaxMatches,
		Deadline:   time.Duration(wire.DeadlineMs) * time.Millisecond,
	})
	if err != nil {
		return envelopeResult(nil, err)
	}
	return envelopeResult(boundary.NewGrepResult(res), nil)
}

//export ffpick_scan_files
func ffpick_scan_files(handle C.ulonglong) *C.char {
	e, ok := lookupEngine(uint64(handle))
	if !ok {
		return envelopeResult(nil, boundary.New(boundary.KindNotInitialized, "unknown engine handle"))
	}
	err := e.ScanFiles(context.Background())
	return envelopeResult(struct{}{}, err)
}

//export ffpick_is_scanning
func ffpick_is_scanning(handle C.ulonglong) *C.char {
	e, ok := lookupEngine(uint64(handle))
	if !ok {
		return envelopeResult(nil, boundary.New(boundary.KindNotInitialized, "unknown engine handle"))
	}
	return envelopeResult(struct {
		Scanning bool `json:"scanning"`
	}{Scanning: e.IsScanning()}, nil)
}

//export ffpick_get_scan_progress
func ffpick_get_scan_progress(handle C.ulonglong) *C.char {
	e, ok := lookupEngine(uint64(handle))
	if !ok {
		return envelopeResult(nil, boundary.New(boundary.KindNotInitialized, "unknown engine handle"))
	}
	return envelopeResult(struct {
		Scanned int64 `json:"scanned"`
	}{Scanned: e.GetScanProgress()}, nil)
}

//export ffpick_wait_for_scan
func ffpick_wait_for_scan(handle C.ulonglong, timeoutMs C.longlong) *C.char {
	e, ok := lookupEngine(uint64(handle))
	if !ok {
		return envelopeResult(nil, boundary.New(boundary.KindNotInitialized, "unknown engine handle"))
	}
	ctx := context.Background()
	if timeoutMs > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(timeoutMs)*time.Millisecond)
		defer cancel()
	}
	return envelopeResult(struct {
		Completed bool `json:"completed"`
	}{Completed: e.WaitForScan(ctx)}, nil)
}

//export ffpick_restart_index
func ffpick_restart_index(handle C.ulonglong, newRoot *C.char) *C.char {
	e, ok := lookupEngine(uint64(handle))
	if !ok {
		return envelopeResult(nil, boundary.New(boundary.KindNotInitialized, "unknown engine handle"))
	}
	err := e.RestartIndex(C.GoString(newRoot))
	return envelopeResult(struct{}{}, err)
}

//export ffpick_track_access
func ffpick_track_access(handle C.ulonglong, path *C.char) *C.char {
	e, ok := lookupEngine(uint64(handle))
	if !ok {
		return envelopeResult(nil, boundary.New(boundary.KindNotInitialized, "unknown engine handle"))
	}
	return envelopeResult(struct {
		Tracked bool `json:"tracked"`
	}{Tracked: e.TrackAccess(C.GoString(path))}, nil)
}

//export ffpick_track_query
func ffpick_track_query(handle C.ulonglong, query *C.char, selectedPath *C.char) *C.char {
	e, ok := lookupEngine(uint64(handle))
	if !ok {
		return envelopeResult(nil, boundary.New(boundary.KindNotInitialized, "unknown engine handle"))
	}
	return envelopeResult(struct {
		Tracked bool `json:"tracked"`
	}{Tracked: e.TrackQuery(C.GoString(query), C.GoString(selectedPath))}, nil)
}

//export ffpick_get_historical_query
func ffpick_get_historical_query(handle C.ulonglong, offset C.int) *C.char {
	e, ok := lookupEngine(uint64(handle))
	if !ok {
		return envelopeResult(nil, boundary.New(boundary.KindNotInitialized, "unknown engine handle"))
	}
	q, found := e.GetHistoricalQuery(int(offset))
	return envelopeResult(struct {
		Query string `json:"query"`
		Found bool   `json:"found"`
	}{Query: q, Found: found}, nil)
}

//export ffpick_refresh_git_status
func ffpick_refresh_git_status(handle C.ulonglong) *C.char {
	e, ok := lookupEngine(uint64(handle))
	if !ok {
		return envelopeResult(nil, boundary.New(boundary.KindNotInitialized, "unknown engine handle"))
	}
	changed, err := e.RefreshGitStatus()
	if err != nil {
		return envelopeResult(nil, err)
	}
	return envelopeResult(struct {
		Changed int `json:"changed"`
	}{Changed: changed}, nil)
}

//export ffpick_health_check
func ffpick_health_check(handle C.ulonglong, testPath *C.char) *C.char {
	e, ok := lookupEngine(uint64(handle))
	if !ok {
		return envelopeResult(nil, boundary.New(boundary.KindNotInitialized, "unknown engine handle"))
	}
	return envelopeResult(e.HealthCheck(C.GoString(testPath)), nil)
}

//export ffpick_shorten_path
func ffpick_shorten_path(handle C.ulonglong, path *C.char, max C.int) *C.char {
	e, ok := lookupEngine(uint64(handle))
	if !ok {
		return envelopeResult(nil, boundary.New(boundary.KindNotInitialized, "unknown engine handle"))
	}
	return envelopeResult(struct {
		Path string `json:"path"`
	}{Path: e.ShortenPath(C.GoString(path), int(max))}, nil)
}

func main() {}
