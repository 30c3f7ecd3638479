package index

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// watcher owns the fsnotify handle and the short debounce window that
// coalesces bursts of events into one writer transaction.
type watcher struct {
	fsw *fsnotify.Watcher

	debounceWindow time.Duration
	pendingMu      sync.Mutex
	pending        map[string]fsnotify.Op
	timer          *time.Timer

	stop chan struct{}
	done chan struct{}
}

// StartWatcher watches every directory currently in the index and begins
// applying coalesced events. Any error received from the watcher (such as
// an event-queue overflow) triggers a full rescan rather than attempting
// to reconcile piecemeal; if the watcher's channels close, the event loop
// simply exits.
func (idx *Index) StartWatcher() error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	idx.mu.RLock()
	dirs := map[string]bool{idx.root: true}
	for _, e := range idx.entries {
		dirs[filepath.Dir(e.Abs)] = true
	}
	idx.mu.RUnlock()

	for d := range dirs {
		if err := fsw.Add(d); err != nil {
			idx.log.Warn("failed to watch directory", "dir", d, "error", err)
		}
	}

	w := &watcher{
		fsw:            fsw,
		debounceWindow: idx.cfg.DebounceWindow,
		pending:        make(map[string]fsnotify.Op),
		stop:           make(chan struct{}),
		done:           make(chan struct{}),
	}
	if w.debounceWindow <= 0 {
		w.debounceWindow = 50 * time.Millisecond
	}
	idx.watcher = w

	go idx.watchLoop(w)
	return nil
}

// StopWatcher stops the watcher goroutine and releases its handle. Safe
// to call when no watcher is running.
func (idx *Index) StopWatcher() {
	if idx.watcher == nil {
		return
	}
	close(idx.watcher.stop)
	<-idx.watcher.done
	_ = idx.watcher.fsw.Close()
	idx.watcher = nil
}

func (idx *Index) watchLoop(w *watcher) {
	defer close(w.done)
	defer func() {
		w.pendingMu.Lock()
		if w.timer != nil {
			w.timer.Stop()
		}
		w.pendingMu.Unlock()
	}()

	for {
		select {
		case <-w.stop:
			return

		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if shouldIgnoreEvent(ev) {
				continue
			}
			w.pendingMu.Lock()
			w.pending[ev.Name] |= ev.Op
			if w.timer != nil {
				w.timer.Stop()
			}
			w.timer = time.AfterFunc(w.debounceWindow, func() {
				idx.flushPending(w)
			})
			w.pendingMu.Unlock()

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			idx.log.Warn("watcher error, scheduling full rescan", "error", err)
			go func() {
				_ = idx.Scan(noopContext{})
			}()
		}
	}
}

// flushPending applies every coalesced event as a single writer
// transaction: creates append, modifies re-stat, deletes tombstone then
// remove, renames replace keys.
//
// fsnotify reports a rename as two separate events within the same
// window: Rename on the old name, Create on the new one. There is no
// portable correlation id between them, so pairing is a best-effort
// heuristic: when a batch contains exactly one Rename and one Create for
// two different paths, they are treated as one rename and routed through
// idx.rename so the entry's ID (and the frecency/git history keyed on
// it) carries over. Anything less clear-cut (multiple renames, a rename
// with no matching create, ...) falls back to remove+create.
func (idx *Index) flushPending(w *watcher) {
	w.pendingMu.Lock()
	batch := w.pending
	w.pending = make(map[string]fsnotify.Op)
	w.pendingMu.Unlock()

	var renamedFrom, createdTo string
	var renameCount, createCount int
	for path, op := range batch {
		if op&fsnotify.Rename != 0 {
			renameCount++
			renamedFrom = path
		}
		if op&fsnotify.Create != 0 {
			createCount++
			createdTo = path
		}
	}
	pairedRename := renameCount == 1 && createCount == 1 && renamedFrom != createdTo

	for path, op := range batch {
		if pairedRename && path == renamedFrom {
			continue // handled below when we reach createdTo
		}

		rel, err := filepath.Rel(idx.root, path)
		if err != nil {
			rel = path
		}
		rel = filepath.ToSlash(rel)
		ext := extOf(path)
		if idx.ignore.shouldSkipPath(rel, ext) {
			continue
		}

		switch {
		case op&fsnotify.Remove != 0, (op&fsnotify.Rename != 0 && !pairedRename):
			idx.remove(path)

		case op&(fsnotify.Create|fsnotify.Write) != 0:
			info, err := os.Stat(path)
			if err != nil {
				// Removed again before we got to it; treat as deletion.
				idx.remove(path)
				continue
			}
			if info.IsDir() {
				if idx.watcher != nil {
					_ = idx.watcher.fsw.Add(path)
				}
				continue
			}
			if pairedRename && path == createdTo {
				idx.rename(renamedFrom, path, info)
			} else {
				idx.upsert(path, info)
			}
			if idx.store != nil {
				idx.store.TrackModification(path, time.Now())
			}
		}
	}
}

func extOf(path string) string {
	name := filepath.Base(path)
	if dot := strings.LastIndexByte(name, '.'); dot > 0 {
		return name[dot+1:]
	}
	return ""
}

func shouldIgnoreEvent(event fsnotify.Event) bool {
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
		return true
	}
	base := filepath.Base(event.Name)
	if strings.HasPrefix(base, ".") && base != ".gitignore" {
		return true
	}
	return false
}

// noopContext satisfies context.Context for the background rescan
// triggered by watcher event loss, which has no caller deadline to honor.
type noopContext struct{}

func (noopContext) Deadline() (time.Time, bool) { return time.Time{}, false }
func (noopContext) Done() <-chan struct{}        { return nil }
func (noopContext) Err() error                   { return nil }
func (noopContext) Value(key any) any            { return nil }
