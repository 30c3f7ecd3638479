// Package store persists frecency, query-combo, and query-history state in
// an embedded bbolt database, the only durable state the engine keeps
// (the file index itself is rebuilt fresh on every start).
package store

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"go.etcd.io/bbolt"
)

var (
	bucketFrecency = []byte("frecency")
	bucketCombos   = []byte("combos")
	bucketHistory  = []byte("history")
)

const recordVersion = 1

// Config tunes decay and boost behavior. Exact decay constants are not
// pinned by any upstream reference; these defaults are documented and
// fully overridable rather than guessed at silently.
type Config struct {
	// Path to the bbolt file. Empty disables the store: writes are no-ops
	// and reads return zero values.
	Path string

	AccessHalfLifeDays float64
	ModHalfLifeDays    float64
	HorizonDays        float64

	AccessWeight float64
	ModWeight    float64

	MinComboCount        int
	ComboBoostMultiplier float64

	// UnsafeNoLock opens the database with bbolt's NoFreelistSync set,
	// trading crash-safety for write throughput. It does not skip bbolt's
	// file lock or any other locking.
	UnsafeNoLock bool
}

// DefaultConfig returns documented defaults for the decay model.
func DefaultConfig() Config {
	return Config{
		AccessHalfLifeDays:   3,
		ModHalfLifeDays:      7,
		HorizonDays:          90,
		AccessWeight:         1.0,
		ModWeight:            0.5,
		MinComboCount:        3,
		ComboBoostMultiplier: 1.5,
	}
}

// Event is a single access or modification timestamp.
type Event struct {
	Unix int64 `json:"t"`
}

// FrecencyRecord holds the raw event log for one path. Score is derived,
// not stored, so changing the decay model doesn't require a migration.
type FrecencyRecord struct {
	Version int     `json:"v"`
	Access  []Event `json:"a,omitempty"`
	Mod     []Event `json:"m,omitempty"`
}

// ComboRecord counts how many times a normalized query has resolved to a
// given path.
type ComboRecord struct {
	Version int `json:"v"`
	Count   int `json:"count"`
}

// HistoryEntry is one confirmed query selection, in insertion order.
type HistoryEntry struct {
	Version      int    `json:"v"`
	Query        string `json:"query"`
	SelectedPath string `json:"selected_path"`
	Unix         int64  `json:"ts"`
}

// Store wraps a bbolt database. A nil *bbolt.DB (degraded mode) causes all
// writes to become no-ops and all reads to return zero values, matching
// the "database errors degrade silently" propagation policy.
type Store struct {
	cfg Config
	db  *bbolt.DB
	log *slog.Logger

	degraded bool
}

// Open opens (creating if necessary) the bbolt database at cfg.Path. An
// empty Path yields a Store that runs entirely in degraded (no-op) mode.
// A failure to open the file also degrades to that no-op mode rather than
// returning an error; nothing is kept in memory instead. The caller
// should surface db.Degraded() via health_check.
func Open(cfg Config, log *slog.Logger) *Store {
	if log == nil {
		log = slog.Default()
	}
	s := &Store{cfg: cfg, log: log.With("component", "store")}

	if cfg.Path == "" {
		s.degraded = true
		return s
	}

	opts := &bbolt.Options{Timeout: 2 * time.Second, NoSync: false}
	if cfg.UnsafeNoLock {
		opts.ReadOnly = false
		opts.NoFreelistSync = true
	}

	db, err := bbolt.Open(cfg.Path, 0o600, opts)
	if err != nil {
		s.log.Warn("opening frecency database failed, degrading to no-op mode", "error", err, "path", cfg.Path)
		s.degraded = true
		return s
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, b := range [][]byte{bucketFrecency, bucketCombos, bucketHistory} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		s.log.Warn("initializing database buckets failed, degrading to no-op mode", "error", err)
		_ = db.Close()
		s.degraded = true
		return s
	}

	s.db = db
	return s
}

// Degraded reports whether the store is running without persistence,
// either by configuration or because of an earlier I/O failure.
func (s *Store) Degraded() bool { return s.degraded }

// Close flushes and closes the underlying database. Safe to call on a
// degraded store.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// TrackAccess records an access event for path and bumps its frecency.
func (s *Store) TrackAccess(path string, now time.Time) {
	s.updateFrecency(path, now, true)
}

// TrackModification records a modification event for path.
func (s *Store) TrackModification(path string, now time.Time) {
	s.updateFrecency(path, now, false)
}

func (s *Store) updateFrecency(path string, now time.Time, access bool) {
	if s.degraded {
		return
	}
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketFrecency)
		rec := decodeFrecency(b.Get([]byte(path)))
		horizon := now.Add(-time.Duration(s.cfg.HorizonDays*24) * time.Hour).Unix()
		ev := Event{Unix: now.Unix()}
		if access {
			rec.Access = prune(append(rec.Access, ev), horizon)
		} else {
			rec.Mod = prune(append(rec.Mod, ev), horizon)
		}
		rec.Version = recordVersion
		return b.Put([]byte(path), encode(rec))
	})
	if err != nil {
		s.log.Warn("frecency write failed, update dropped", "error", err, "path", path)
		s.degraded = true
	}
}

func prune(events []Event, horizonUnix int64) []Event {
	out := events[:0:0]
	for _, e := range events {
		if e.Unix >= horizonUnix {
			out = append(out, e)
		}
	}
	return out
}

// FrecencyScore returns (access_score, mod_score) for path at the given
// instant.
func (s *Store) FrecencyScore(path string, now time.Time) (access, mod float64) {
	if s.degraded {
		return 0, 0
	}
	var rec FrecencyRecord
	_ = s.db.View(func(tx *bbolt.Tx) error {
		rec = decodeFrecency(tx.Bucket(bucketFrecency).Get([]byte(path)))
		return nil
	})
	return weighSum(rec.Access, now, s.cfg.AccessHalfLifeDays), weighSum(rec.Mod, now, s.cfg.ModHalfLifeDays)
}

func weighSum(events []Event, now time.Time, halfLifeDays float64) float64 {
	if halfLifeDays <= 0 {
		halfLifeDays = 1
	}
	var total float64
	for _, e := range events {
		ageDays := now.Sub(time.Unix(e.Unix, 0)).Hours() / 24
		if ageDays < 0 {
			ageDays = 0
		}
		total += 1 / (1 + ageDays/halfLifeDays)
	}
	return total
}

// TrackQuery increments the combo count for (normalized query, path) and
// appends a history entry. Returns false if the store is degraded (the
// caller still treats this as a successful no-op per policy, but the
// boundary layer's track_query surfaces false so callers can tell).
func (s *Store) TrackQuery(query, selectedPath string, now time.Time) bool {
	if s.degraded {
		return false
	}
	norm := NormalizeQuery(query)
	key := comboKey(norm, selectedPath)

	err := s.db.Update(func(tx *bbolt.Tx) error {
		combos := tx.Bucket(bucketCombos)
		rec := decodeCombo(combos.Get(key))
		rec.Count++
		rec.Version = recordVersion
		if err := combos.Put(key, encode(rec)); err != nil {
			return err
		}

		history := tx.Bucket(bucketHistory)
		id := ulid.Make()
		entry := HistoryEntry{Version: recordVersion, Query: query, SelectedPath: selectedPath, Unix: now.Unix()}
		return history.Put(id[:], encode(entry))
	})
	if err != nil {
		s.log.Warn("combo/history write failed, update dropped", "error", err)
		s.degraded = true
		return false
	}
	return true
}

// ComboCount returns the confirmed-selection count for (query, path).
func (s *Store) ComboCount(query, path string) int {
	if s.degraded {
		return 0
	}
	var rec ComboRecord
	_ = s.db.View(func(tx *bbolt.Tx) error {
		rec = decodeCombo(tx.Bucket(bucketCombos).Get(comboKey(NormalizeQuery(query), path)))
		return nil
	})
	return rec.Count
}

// ComboPrefixBoost reports whether any combo key's normalized query has
// query as a prefix, and if so the maximum count found — used for the
// empty-query "combo-prefix boost" ordering term. This resolves the open
// question about combo-prefix semantics by choosing literal string-prefix
// matching over the stored normalized query, not fuzzy matching, since
// that is the cheapest rule consistent with "optionally by fuzzy-prefix"
// being described as a tunable rather than a mandate.
func (s *Store) ComboPrefixBoost(queryPrefix, path string) int {
	if s.degraded || queryPrefix == "" {
		return 0
	}
	norm := NormalizeQuery(queryPrefix)
	best := 0
	_ = s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(bucketCombos).Cursor()
		prefix := []byte(norm)
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			parts := bytes.SplitN(k, []byte{0}, 2)
			if len(parts) == 2 && string(parts[1]) == path {
				rec := decodeCombo(v)
				if rec.Count > best {
					best = rec.Count
				}
			}
		}
		return nil
	})
	return best
}

// HistoricalQuery returns the offset-th most recent distinct query string
// from the history log (offset 0 = most recent), or ("", false) if there
// are fewer than offset+1 distinct queries.
func (s *Store) HistoricalQuery(offset int) (string, bool) {
	if s.degraded || offset < 0 {
		return "", false
	}
	var entries []HistoryEntry
	_ = s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(bucketHistory).Cursor()
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			entries = append(entries, decodeHistory(v))
		}
		return nil
	})

	seen := make(map[string]bool)
	var distinct []string
	for _, e := range entries {
		if !seen[e.Query] {
			seen[e.Query] = true
			distinct = append(distinct, e.Query)
		}
	}
	if offset >= len(distinct) {
		return "", false
	}
	return distinct[offset], true
}

// NormalizeQuery lowercases and collapses whitespace, the canonical form
// combo keys are stored under.
func NormalizeQuery(q string) string {
	return strings.Join(strings.Fields(strings.ToLower(q)), " ")
}

func comboKey(normalizedQuery, path string) []byte {
	var b bytes.Buffer
	b.WriteString(normalizedQuery)
	b.WriteByte(0)
	b.WriteString(path)
	return b.Bytes()
}

func encode(v any) []byte {
	b, _ := json.Marshal(v)
	return b
}

func decodeFrecency(raw []byte) FrecencyRecord {
	var rec FrecencyRecord
	if len(raw) == 0 {
		return rec
	}
	if err := json.Unmarshal(raw, &rec); err != nil || rec.Version != recordVersion {
		return FrecencyRecord{}
	}
	return rec
}

func decodeCombo(raw []byte) ComboRecord {
	var rec ComboRecord
	if len(raw) == 0 {
		return rec
	}
	if err := json.Unmarshal(raw, &rec); err != nil || rec.Version != recordVersion {
		return ComboRecord{}
	}
	return rec
}

func decodeHistory(raw []byte) HistoryEntry {
	var rec HistoryEntry
	if len(raw) == 0 {
		return rec
	}
	_ = json.Unmarshal(raw, &rec)
	return rec
}

// sortedPaths is a small helper used by tests to get deterministic
// iteration order over the frecency bucket.
func (s *Store) sortedPaths() []string {
	var paths []string
	if s.db == nil {
		return nil
	}
	_ = s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketFrecency).ForEach(func(k, v []byte) error {
			paths = append(paths, string(k))
			return nil
		})
	})
	sort.Strings(paths)
	return paths
}
