package index

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// Scan performs a full recursive walk from the root, replacing the
// index's contents with what it finds. The walk fans out one goroutine
// per top-level subtree (bounded by cfg.ScanConcurrency) so large trees
// scan in parallel; a single lock-holding upsert per discovered file
// keeps writer serialization simple without stalling the whole walk on
// one mutex acquisition per directory.
func (idx *Index) Scan(ctx context.Context) error {
	gen := idx.scanGen.Add(1)
	idx.scanning.Store(true)
	idx.scannedCount.Store(0)

	idx.scanDoneMu.Lock()
	done := make(chan struct{})
	idx.scanDone = done
	idx.scanDoneMu.Unlock()

	defer func() {
		idx.scanning.Store(false)
		close(done)
	}()

	idx.mu.Lock()
	idx.entries = make(map[int64]*FileEntry)
	idx.byPath = make(map[string]int64)
	idx.order = nil
	idx.nextID = 0
	idx.mu.Unlock()

	top, err := os.ReadDir(idx.root)
	if err != nil {
		return err
	}

	concurrency := idx.cfg.ScanConcurrency
	if concurrency <= 0 {
		concurrency = max(4, runtime.NumCPU())
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for _, entry := range top {
		entry := entry
		abs := filepath.Join(idx.root, entry.Name())

		if !idx.cfg.FollowSymlinks && entry.Type()&fs.ModeSymlink != 0 {
			continue
		}
		if entry.IsDir() {
			if idx.ignore.shouldSkipDir(entry.Name()) {
				continue
			}
			g.Go(func() error {
				return idx.walkSubtree(gctx, abs, gen)
			})
			continue
		}

		if err := idx.maybeIndexFile(abs, entry, gen); err != nil {
			idx.log.Warn("stat failed during scan", "path", abs, "error", err)
		}
	}

	if err := g.Wait(); err != nil {
		return err
	}

	if idx.scanGen.Load() != gen {
		// Superseded by a newer scan (e.g. restart_index); leave the git
		// status refresh to that scan.
		return nil
	}
	if _, err := idx.RefreshGitStatus(); err != nil {
		idx.log.Warn("git status refresh after scan failed", "error", err)
	}
	return nil
}

func (idx *Index) walkSubtree(ctx context.Context, root string, gen int64) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if idx.scanGen.Load() != gen {
			return filepath.SkipAll
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if err != nil {
			idx.log.Warn("walk error", "path", path, "error", err)
			return nil
		}
		if d.IsDir() {
			if path != root && idx.ignore.shouldSkipDir(d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		if !idx.cfg.FollowSymlinks && d.Type()&fs.ModeSymlink != 0 {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			idx.log.Warn("stat failed during scan", "path", path, "error", err)
			return nil
		}
		idx.maybeIndexFile(path, d, gen, info)
		return nil
	})
}

func (idx *Index) maybeIndexFile(abs string, d interface{ Name() string }, gen int64, prefetched ...os.FileInfo) error {
	rel, err := filepath.Rel(idx.root, abs)
	if err != nil {
		rel = abs
	}
	rel = filepath.ToSlash(rel)
	ext := ""
	if name := d.Name(); len(name) > 0 {
		for i := len(name) - 1; i >= 0; i-- {
			if name[i] == '.' {
				ext = name[i+1:]
				break
			}
			if name[i] == '/' {
				break
			}
		}
	}
	if idx.ignore.shouldSkipPath(rel, ext) {
		return nil
	}

	var fi os.FileInfo
	if len(prefetched) > 0 {
		fi = prefetched[0]
	} else {
		info, err := os.Stat(abs)
		if err != nil {
			return err
		}
		fi = info
	}

	if idx.scanGen.Load() != gen {
		return nil
	}
	idx.upsert(abs, fi)
	idx.scannedCount.Add(1)
	return nil
}

// IsScanning reports whether a scan is currently in progress.
func (idx *Index) IsScanning() bool { return idx.scanning.Load() }

// ScanProgress returns the number of files observed by the current or
// most recent scan.
func (idx *Index) ScanProgress() int64 { return idx.scannedCount.Load() }

// WaitForScan blocks until scanning finishes or ctx is done, returning
// true if scanning had finished by then.
func (idx *Index) WaitForScan(ctx context.Context) bool {
	idx.scanDoneMu.Lock()
	done := idx.scanDone
	idx.scanDoneMu.Unlock()
	if done == nil {
		return !idx.IsScanning()
	}
	select {
	case <-done:
		return true
	case <-ctx.Done():
		return !idx.IsScanning()
	}
}
