// Package index maintains the in-memory FileIndex: initial discovery,
// incremental maintenance under a filesystem watcher, git-status tagging,
// and a bounded mmap cache for repeated content reads.
package index

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sabhiram/go-gitignore"

	"github.com/rybkr/ffpick/internal/gitstatus"
	"github.com/rybkr/ffpick/internal/query"
	"github.com/rybkr/ffpick/internal/store"
)

// FileEntry is one indexed file.
type FileEntry struct {
	ID   int64
	Abs  string
	Rel  string
	Name string
	Ext  string // without leading dot; empty when none

	Size     int64
	Modified time.Time

	GitStatus query.GitStatus

	AccessFrecency float64
	ModFrecency    float64
	LastAccessTick int64
}

// Index is the engine's file index: a single writer (scan + watcher,
// arbitrated by mu) and many concurrent readers via Snapshot.
type Index struct {
	cfg   Config
	root  string
	store *store.Store
	git   *gitstatus.Cache
	log   *slog.Logger

	mu      sync.RWMutex
	nextID  int64
	entries map[int64]*FileEntry
	byPath  map[string]int64
	order   []int64

	scanning     atomic.Bool
	scannedCount atomic.Int64
	scanGen      atomic.Int64
	scanDone     chan struct{}
	scanDoneMu   sync.Mutex

	ignore *ignoreSet

	mmap *MmapCache

	watcher    *watcher
	accessTick atomic.Int64
}

// New constructs an Index rooted at root. The index is empty until Scan
// is called.
func New(root string, cfg Config, st *store.Store, log *slog.Logger) (*Index, error) {
	info, err := os.Stat(root)
	if err != nil || !info.IsDir() {
		return nil, fmt.Errorf("index: invalid root %q: %w", root, errInvalidPath(err))
	}
	if log == nil {
		log = slog.Default()
	}
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}

	idx := &Index{
		cfg:     cfg,
		root:    absRoot,
		store:   st,
		git:     gitstatus.New(absRoot, log),
		log:     log.With("component", "index"),
		entries: make(map[int64]*FileEntry),
		byPath:  make(map[string]int64),
		mmap:    NewMmapCache(cfg.MmapCacheBytes),
	}
	idx.ignore = buildIgnoreSet(absRoot, cfg)
	return idx, nil
}

func errInvalidPath(cause error) error {
	if cause == nil {
		return fmt.Errorf("not a directory")
	}
	return cause
}

// Root returns the indexed root directory.
func (idx *Index) Root() string {
	return idx.root
}

// HasGitRepository reports whether the indexed root sits inside a git
// working tree.
func (idx *Index) HasGitRepository() bool {
	return idx.git.HasRepository()
}

// MmapCache returns the index's bounded mmap cache, so callers outside
// this package (grep.SetMmapCache) can reuse it instead of opening their
// own mappings of the same files.
func (idx *Index) MmapCache() *MmapCache {
	return idx.mmap
}

// Len returns the current number of indexed entries.
func (idx *Index) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.entries)
}

// Snapshot returns a read-only copy of every live entry, in the index's
// stable order. Callers never receive pointers into live index storage.
func (idx *Index) Snapshot() []FileEntry {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	out := make([]FileEntry, 0, len(idx.entries))
	for _, id := range idx.order {
		if e, ok := idx.entries[id]; ok {
			out = append(out, *e)
		}
	}
	return out
}

// Lookup returns the entry for an absolute path.
func (idx *Index) Lookup(abs string) (FileEntry, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	id, ok := idx.byPath[abs]
	if !ok {
		return FileEntry{}, false
	}
	e, ok := idx.entries[id]
	if !ok {
		return FileEntry{}, false
	}
	return *e, true
}

// upsert adds or updates an entry from a fresh stat. Caller must hold no
// lock; upsert takes the writer lock itself.
func (idx *Index) upsert(abs string, fi os.FileInfo) {
	rel, err := filepath.Rel(idx.root, abs)
	if err != nil {
		rel = abs
	}
	rel = filepath.ToSlash(rel)
	name := filepath.Base(abs)
	ext := ""
	if dot := strings.LastIndexByte(name, '.'); dot > 0 {
		ext = name[dot+1:]
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	if id, ok := idx.byPath[abs]; ok {
		e := idx.entries[id]
		e.Size = fi.Size()
		e.Modified = fi.ModTime()
		return
	}

	idx.nextID++
	id := idx.nextID
	idx.entries[id] = &FileEntry{
		ID:       id,
		Abs:      abs,
		Rel:      rel,
		Name:     name,
		Ext:      ext,
		Size:     fi.Size(),
		Modified: fi.ModTime(),
	}
	idx.byPath[abs] = id
	idx.order = append(idx.order, id)
}

// remove tombstones then deletes the entry for abs, if present.
func (idx *Index) remove(abs string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	id, ok := idx.byPath[abs]
	if !ok {
		return
	}
	delete(idx.byPath, abs)
	delete(idx.entries, id)
	// order is compacted lazily by Snapshot's membership check; an
	// explicit compaction runs once the tombstone fraction grows large.
	if len(idx.order) > 0 && len(idx.order) > 2*len(idx.entries)+64 {
		compacted := idx.order[:0]
		for _, oid := range idx.order {
			if _, live := idx.entries[oid]; live {
				compacted = append(compacted, oid)
			}
		}
		idx.order = compacted
	}
}

// rename replaces the key for a path without allocating a new ID, so
// frecency and git-status history implicitly carry over.
func (idx *Index) rename(fromAbs, toAbs string, fi os.FileInfo) {
	idx.mu.Lock()
	id, ok := idx.byPath[fromAbs]
	if !ok {
		idx.mu.Unlock()
		idx.upsert(toAbs, fi)
		return
	}
	e := idx.entries[id]
	delete(idx.byPath, fromAbs)
	rel, err := filepath.Rel(idx.root, toAbs)
	if err != nil {
		rel = toAbs
	}
	e.Abs = toAbs
	e.Rel = filepath.ToSlash(rel)
	e.Name = filepath.Base(toAbs)
	e.Ext = ""
	if dot := strings.LastIndexByte(e.Name, '.'); dot > 0 {
		e.Ext = e.Name[dot+1:]
	}
	if fi != nil {
		e.Size = fi.Size()
		e.Modified = fi.ModTime()
	}
	idx.byPath[toAbs] = id
	idx.mu.Unlock()
}

// TrackAccess bumps the access tick and forwards to the frecency store.
// Returns whether abs is currently indexed.
func (idx *Index) TrackAccess(abs string) bool {
	tick := idx.accessTick.Add(1)
	idx.mu.Lock()
	id, indexed := idx.byPath[abs]
	if indexed {
		idx.entries[id].LastAccessTick = tick
	}
	idx.mu.Unlock()

	if idx.store != nil {
		idx.store.TrackAccess(abs, time.Now())
	}
	idx.mmap.Touch(abs)
	return indexed
}

// RefreshGitStatus asks the git layer for the working tree status of the
// root and merges results onto entries, defaulting to Unknown for paths
// git doesn't report on or when there is no repository.
func (idx *Index) RefreshGitStatus() (int, error) {
	changed, err := idx.git.Refresh()
	if err != nil {
		return 0, err
	}

	idx.mu.Lock()
	for _, e := range idx.entries {
		e.GitStatus = idx.git.Status(e.Rel)
	}
	idx.mu.Unlock()
	return changed, nil
}

func buildIgnoreSet(root string, cfg Config) *ignoreSet {
	s := &ignoreSet{extraExts: make(map[string]bool)}
	for _, e := range cfg.ExtraIgnoreExtensions {
		s.extraExts[strings.TrimPrefix(e, ".")] = true
	}
	if cfg.RespectGitignore {
		if gi, err := gitignore.CompileIgnoreFile(filepath.Join(root, ".gitignore")); err == nil {
			s.gitignore = gi
		}
	}
	return s
}

// ignoreSet decides whether a path should be excluded from the index.
type ignoreSet struct {
	gitignore *gitignore.GitIgnore
	extraExts map[string]bool
}

func (s *ignoreSet) shouldSkipDir(name string) bool {
	return BuiltinIgnoreDirs[name]
}

func (s *ignoreSet) shouldSkipPath(relPath, ext string) bool {
	if s.gitignore != nil && s.gitignore.MatchesPath(relPath) {
		return true
	}
	if BuiltinIgnoreExtensions["."+ext] || s.extraExts[ext] {
		return true
	}
	return false
}
