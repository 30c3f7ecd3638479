// Package gitstatus tags indexed files with their working-tree git status,
// refreshed on demand (the index refreshes it after every full scan and
// when RefreshGitStatus is called; there is no timer). Absence of a git repository is not an
// error: every path simply reports query.GitStatusUnknown.
package gitstatus

import (
	"log/slog"
	"sync"

	"github.com/go-git/go-git/v5"

	"github.com/rybkr/ffpick/internal/query"
)

// Cache holds the most recent working-tree status for every path git
// reported, keyed by path relative to the repository root.
type Cache struct {
	root string
	log  *slog.Logger

	mu       sync.RWMutex
	statuses map[string]query.GitStatus
	hasRepo  bool
}

// New creates a Cache for the given index root. No git lookups happen
// until Refresh is called.
func New(root string, log *slog.Logger) *Cache {
	if log == nil {
		log = slog.Default()
	}
	return &Cache{
		root:     root,
		log:      log.With("component", "gitstatus"),
		statuses: make(map[string]query.GitStatus),
	}
}

// Status returns the cached status for relPath, or Unknown if unseen.
func (c *Cache) Status(relPath string) query.GitStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if s, ok := c.statuses[relPath]; ok {
		return s
	}
	return query.GitStatusUnknown
}

// HasRepository reports whether the last Refresh found a git repository.
func (c *Cache) HasRepository() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.hasRepo
}

// Refresh re-reads the working-tree status from git and returns the
// number of paths whose status changed (added, removed, or differing)
// relative to the previous snapshot. A missing repository clears the
// cache without error and returns the number of paths that were cached
// before (0 if nothing was).
func (c *Cache) Refresh() (int, error) {
	repo, err := git.PlainOpenWithOptions(c.root, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		c.mu.Lock()
		changed := len(c.statuses)
		c.statuses = make(map[string]query.GitStatus)
		c.hasRepo = false
		c.mu.Unlock()
		return changed, nil
	}

	wt, err := repo.Worktree()
	if err != nil {
		c.log.Warn("worktree unavailable", "error", err)
		return 0, nil
	}

	st, err := wt.Status()
	if err != nil {
		c.log.Warn("git status failed", "error", err)
		return 0, nil
	}

	next := make(map[string]query.GitStatus, len(st))
	for path, fs := range st {
		next[path] = classify(fs)
	}

	c.mu.Lock()
	changed := diffCount(c.statuses, next)
	c.statuses = next
	c.hasRepo = true
	c.mu.Unlock()

	return changed, nil
}

func diffCount(old, next map[string]query.GitStatus) int {
	changed := 0
	for p, s := range next {
		if prev, ok := old[p]; !ok || prev != s {
			changed++
		}
	}
	for p := range old {
		if _, ok := next[p]; !ok {
			changed++
		}
	}
	return changed
}

func classify(fs *git.FileStatus) query.GitStatus {
	switch {
	case fs.Staging == git.Untracked || fs.Worktree == git.Untracked:
		return query.GitStatusUntracked
	case fs.Staging == git.UpdatedButUnmerged || fs.Worktree == git.UpdatedButUnmerged:
		return query.GitStatusConflicted
	case fs.Staging == git.Renamed || fs.Worktree == git.Renamed:
		return query.GitStatusRenamed
	case fs.Worktree == git.Deleted || fs.Staging == git.Deleted:
		return query.GitStatusDeleted
	case fs.Staging != git.Unmodified:
		return query.GitStatusStaged
	case fs.Worktree == git.Modified:
		return query.GitStatusModified
	default:
		return query.GitStatusClean
	}
}
