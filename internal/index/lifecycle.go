package index

import (
	"path/filepath"

	"github.com/rybkr/ffpick/internal/gitstatus"
)

// Restart replaces the index wholesale with a fresh scan rooted at
// newRoot. If a watcher is running it is stopped first and started again
// against the new root once the scan succeeds.
func (idx *Index) Restart(newRoot string) error {
	abs, err := filepath.Abs(newRoot)
	if err != nil {
		return err
	}

	hadWatcher := idx.watcher != nil
	if hadWatcher {
		idx.StopWatcher()
	}

	idx.mu.Lock()
	idx.root = abs
	idx.mu.Unlock()

	idx.git = gitstatus.New(abs, idx.log)
	idx.ignore = buildIgnoreSet(abs, idx.cfg)

	if err := idx.Scan(noopContext{}); err != nil {
		return err
	}
	if hadWatcher {
		return idx.StartWatcher()
	}
	return nil
}

// Close releases the mmap cache and stops the watcher, if any.
func (idx *Index) Close() {
	idx.StopWatcher()
	idx.mmap.Close()
}
