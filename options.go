package ffpick

import (
	"log/slog"
	"time"

	ffconfig "github.com/rybkr/ffpick/internal/config"
)

// Config holds settings for an Engine. Embedding internal/config.Config
// keeps the env-loaded ambient configuration (FromEnv) and the
// programmatic Engine configuration in sync.
type Config struct {
	ffconfig.Config

	// StartWatcher enables the fsnotify-based incremental watcher after
	// the initial scan completes. Defaults to true.
	StartWatcher *bool

	Logger *slog.Logger
}

// NewConfig returns Config defaults rooted at root, equivalent to
// ffconfig.Default(root) plus engine-level defaults.
func NewConfig(root string) Config {
	return Config{Config: ffconfig.Default(root)}
}

// ConfigFromEnv layers FFPICK_* environment overrides onto NewConfig(root).
func ConfigFromEnv(root string) Config {
	return Config{Config: ffconfig.FromEnv(root)}
}

func (c *Config) defaults() {
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.StartWatcher == nil {
		enabled := true
		c.StartWatcher = &enabled
	}
}

// SearchRequest parameterizes Engine.Search.
type SearchRequest struct {
	Query       string
	PageIndex   int
	PageSize    int
	CurrentFile string
}

// GrepRequest parameterizes Engine.LiveGrep.
type GrepRequest struct {
	Mode       string // "plain", "regex", or "fuzzy"
	Pattern    string
	Constraint string // additional structured query run as a pre-filter
	Cursor     string // opaque token from a previous GrepResult, or ""
	MaxMatches int
	Deadline   time.Duration
}
