package index

import "time"

// Config controls scanning, ignoring, watching, and caching behavior for
// an Index.
type Config struct {
	// RespectGitignore honors .gitignore files found under the root, in
	// addition to the built-in ignore set.
	RespectGitignore bool

	// ExtraIgnoreExtensions lists additional binary-looking extensions to
	// skip during scanning, on top of BuiltinIgnoreExtensions.
	ExtraIgnoreExtensions []string

	// FollowSymlinks controls whether symlinks are indexed. Default false:
	// symlinks under the root are skipped. When true, each symlink is
	// indexed as a single entry; symlinked directories are not descended
	// into either way.
	FollowSymlinks bool

	// DebounceWindow coalesces watcher events arriving within this
	// duration into a single writer transaction.
	DebounceWindow time.Duration

	// ScanConcurrency bounds the number of subtree walkers running at
	// once during an initial or repeat scan. Zero means a sensible
	// runtime-derived default.
	ScanConcurrency int

	// MmapCacheBytes bounds the total bytes held by the mmap LRU used to
	// accelerate repeated greps over the same files.
	MmapCacheBytes int64
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	return Config{
		RespectGitignore: true,
		FollowSymlinks:   false,
		DebounceWindow:   50 * time.Millisecond,
		MmapCacheBytes:   256 << 20,
	}
}

// BuiltinIgnoreDirs are always skipped regardless of .gitignore.
var BuiltinIgnoreDirs = map[string]bool{
	".git": true,
}

// BuiltinIgnoreExtensions are binary-looking extensions skipped by
// default; config may extend this list.
var BuiltinIgnoreExtensions = map[string]bool{
	".exe": true, ".o": true, ".so": true, ".dylib": true, ".dll": true,
	".bin": true, ".class": true, ".jar": true, ".png": true, ".jpg": true,
	".jpeg": true, ".gif": true, ".ico": true, ".pdf": true, ".zip": true,
	".tar": true, ".gz": true, ".7z": true, ".woff": true, ".woff2": true,
	".ttf": true, ".eot": true, ".bmp": true, ".webp": true, ".mp4": true,
	".mov": true, ".mp3": true, ".wasm": true,
}
