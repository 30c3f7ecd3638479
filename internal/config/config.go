// Package config assembles engine configuration from explicit options and
// environment variables, and documents the defaults for every tunable
// named across the index, ranker, store, and monitor layers.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/rybkr/ffpick/internal/index"
	"github.com/rybkr/ffpick/internal/ranker"
	"github.com/rybkr/ffpick/internal/store"
)

// Config is the top-level engine configuration.
type Config struct {
	Root string

	Index index.Config
	Store store.Config
	Ranker ranker.Options

	// MonitorAddr, if non-empty, starts the optional local debug/monitor
	// HTTP server on this address (e.g. "127.0.0.1:7766"). Empty disables
	// it, which is the default.
	MonitorAddr string

	LogLevel string // "debug", "info", "warn", "error"
}

// Default returns a Config with every documented default, rooted at root.
// Persistence is disabled (Store.Path == "") until the caller opts in.
func Default(root string) Config {
	return Config{
		Root:   root,
		Index:  index.DefaultConfig(),
		Store:  store.DefaultConfig(),
		Ranker: ranker.DefaultOptions(),
		LogLevel: "info",
	}
}

// Environment variable names read by FromEnv. Exported so bindings and
// the CLI can document or override the same names.
const (
	EnvRoot             = "FFPICK_ROOT"
	EnvDBPath           = "FFPICK_DB_PATH"
	EnvMonitorAddr      = "FFPICK_MONITOR_ADDR"
	EnvLogLevel         = "FFPICK_LOG_LEVEL"
	EnvUnsafeNoLock     = "FFPICK_UNSAFE_NO_LOCK"
	EnvFollowSymlinks   = "FFPICK_FOLLOW_SYMLINKS"
	EnvDebounceMillis   = "FFPICK_DEBOUNCE_MS"
	EnvMinComboCount    = "FFPICK_MIN_COMBO_COUNT"
	EnvComboBoost       = "FFPICK_COMBO_BOOST_MULTIPLIER"
)

// FromEnv layers environment variable overrides onto Default(root).
// Omitting FFPICK_DB_PATH disables frecency/combo/history persistence
// entirely, per the documented "omitting a path disables that store"
// behavior.
func FromEnv(root string) Config {
	cfg := Default(root)

	if v, ok := os.LookupEnv(EnvRoot); ok && root == "" {
		cfg.Root = v
	}
	if v, ok := os.LookupEnv(EnvDBPath); ok {
		cfg.Store.Path = v
	}
	if v, ok := os.LookupEnv(EnvMonitorAddr); ok {
		cfg.MonitorAddr = v
	}
	if v, ok := os.LookupEnv(EnvLogLevel); ok {
		cfg.LogLevel = v
	}
	if v, ok := os.LookupEnv(EnvUnsafeNoLock); ok {
		cfg.Store.UnsafeNoLock = parseBool(v, cfg.Store.UnsafeNoLock)
	}
	if v, ok := os.LookupEnv(EnvFollowSymlinks); ok {
		cfg.Index.FollowSymlinks = parseBool(v, cfg.Index.FollowSymlinks)
	}
	if v, ok := os.LookupEnv(EnvDebounceMillis); ok {
		if ms, err := strconv.Atoi(v); err == nil {
			cfg.Index.DebounceWindow = time.Duration(ms) * time.Millisecond
		}
	}
	if v, ok := os.LookupEnv(EnvMinComboCount); ok {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Ranker.MinComboCount = n
			cfg.Store.MinComboCount = n
		}
	}
	if v, ok := os.LookupEnv(EnvComboBoost); ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Ranker.ComboBoostMultiplier = f
			cfg.Store.ComboBoostMultiplier = f
		}
	}
	return cfg
}

func parseBool(v string, fallback bool) bool {
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}
