// Package cache implements the runtime's two-tier tool result cache: a
// bounded in-memory LRU tier backed by hashicorp/golang-lru, and an optional
// persistent SQLite tier grounded on the teacher's pkg/storage/sqlite.go
// (WAL mode, busy_timeout, private file permissions). Concurrent identical
// calls are coalesced with golang.org/x/sync/singleflight so a cache miss
// triggers exactly one computation no matter how many callers are waiting
// on it — the Go-native replacement for a process-wide compute lock.
package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	_ "modernc.org/sqlite"
	"golang.org/x/sync/singleflight"

	"github.com/voocel/toolrt/internal/obslog"
	"github.com/voocel/toolrt/internal/rterrors"
	"github.com/voocel/toolrt/internal/toolapi"
)

// Entry is one cached tool result plus its bookkeeping.
type Entry struct {
	Result    *toolapi.Result
	Version   string
	ExpiresAt time.Time
	CreatedAt time.Time
	Hits      int64
}

func (e *Entry) expired(now time.Time) bool {
	return !e.ExpiresAt.IsZero() && now.After(e.ExpiresAt)
}

// Stats reports cumulative cache counters, mirroring the teacher's
// toolSelectionCache hit/miss/eviction atomics.
type Stats struct {
	Hits            int64
	Misses          int64
	MemoryHits      int64
	PersistentHits  int64
	VersionMismatch int64
	Coalesced       int64
}

// Engine is the two-tier cache. Safe for concurrent use.
type Engine struct {
	memory *lru.Cache[string, *Entry]
	db     *sql.DB
	group  singleflight.Group
	log    *obslog.Logger

	hits            atomic.Int64
	misses          atomic.Int64
	memoryHits      atomic.Int64
	persistentHits  atomic.Int64
	versionMismatch atomic.Int64
	coalesced       atomic.Int64
}

// Options configures a new Engine.
type Options struct {
	MemorySize int    // 0 defaults to 128
	Persist    bool   // enable the SQLite tier
	Path       string // SQLite file path, ignored if Persist is false
	Logger     *obslog.Logger
}

// New builds an Engine. If opts.Persist is true but opening the database
// fails, New degrades to a memory-only cache and logs the failure rather
// than returning an error — a missing/unwritable cache file should never
// prevent the runtime from starting.
func New(opts Options) (*Engine, error) {
	size := opts.MemorySize
	if size <= 0 {
		size = 128
	}
	mem, err := lru.New[string, *Entry](size)
	if err != nil {
		return nil, fmt.Errorf("cache: building memory tier: %w", err)
	}

	log := opts.Logger
	if log == nil {
		log = obslog.Nop()
	}

	e := &Engine{memory: mem, log: log}

	if opts.Persist && opts.Path != "" {
		db, err := openPersistentTier(opts.Path)
		if err != nil {
			log.Error("cache: persistent tier unavailable, degrading to memory-only", "error", err)
		} else {
			e.db = db
		}
	}

	return e, nil
}

func openPersistentTier(path string) (*sql.DB, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("creating cache directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening cache database: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(0)

	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy_timeout: %w", err)
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("applying cache schema: %w", err)
	}
	return db, nil
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS cache_entries (
	namespace   TEXT NOT NULL,
	version     TEXT NOT NULL,
	key         TEXT NOT NULL,
	value       TEXT NOT NULL,
	created_at  INTEGER NOT NULL,
	expires_at  INTEGER,
	hits        INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (namespace, version, key)
);
CREATE INDEX IF NOT EXISTS idx_cache_entries_expires_at ON cache_entries(expires_at);
`

// Close releases the persistent tier's connection, if any.
func (e *Engine) Close() error {
	if e.db == nil {
		return nil
	}
	return e.db.Close()
}

// Get looks up key, checking the memory tier first and falling back to the
// persistent tier. A persistent hit is promoted into the memory tier. A
// memory-tier entry with a different version or past its expiry is treated
// as a miss and evicted; an expired persistent row is deleted.
func (e *Engine) Get(ctx context.Context, namespace, key, version string) (*toolapi.Result, bool) {
	now := time.Now()

	if entry, ok := e.memory.Get(key); ok {
		if e.validEntry(entry, version, now) {
			atomic.AddInt64(&entry.Hits, 1)
			e.hits.Add(1)
			e.memoryHits.Add(1)
			return entry.Result, true
		}
		if entry.Version != version {
			e.versionMismatch.Add(1)
		}
		e.memory.Remove(key)
	}

	if e.db != nil {
		entry, err := e.getPersistent(ctx, namespace, key, version)
		if err != nil {
			e.log.Error("cache: persistent get failed", "error", rterrors.Cache("get", err))
		} else if entry != nil {
			if e.validEntry(entry, version, now) {
				entry.Hits++
				e.memory.Add(key, entry)
				e.hits.Add(1)
				e.persistentHits.Add(1)
				return entry.Result, true
			}
			if _, err := e.db.ExecContext(ctx, `DELETE FROM cache_entries WHERE namespace = ? AND version = ? AND key = ?`, namespace, version, key); err != nil {
				e.log.Error("cache: deleting expired persistent entry failed", "error", rterrors.Cache("delete", err))
			}
		}
	}

	e.misses.Add(1)
	return nil, false
}

func (e *Engine) validEntry(entry *Entry, version string, now time.Time) bool {
	if entry.Version != version {
		return false
	}
	return !entry.expired(now)
}

// Set writes an entry to both tiers. A persistent-tier write failure is
// logged and absorbed: the memory-tier write still succeeds, so the
// runtime degrades gracefully rather than surfacing a CacheError to the
// caller (§4.3 failure semantics).
func (e *Engine) Set(ctx context.Context, namespace, key, version string, result *toolapi.Result, ttl time.Duration) {
	now := time.Now()
	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = now.Add(ttl)
	}
	entry := &Entry{Result: result, Version: version, CreatedAt: now, ExpiresAt: expiresAt}

	e.memory.Add(key, entry)

	if e.db != nil {
		if err := e.setPersistent(ctx, namespace, key, entry); err != nil {
			e.log.Error("cache: persistent set failed", "error", rterrors.Cache("set", err))
		}
	}
}

// GetOrCompute returns a cached value for key, or calls compute exactly once
// across all concurrent callers sharing that key (singleflight), storing
// the fresh result with ttl before returning it.
func (e *Engine) GetOrCompute(ctx context.Context, namespace, key, version string, ttl time.Duration, compute func() (*toolapi.Result, error)) (*toolapi.Result, error) {
	if result, ok := e.Get(ctx, namespace, key, version); ok {
		return result, nil
	}

	sfKey := namespace + "\x00" + key
	v, err, shared := e.group.Do(sfKey, func() (any, error) {
		result, err := compute()
		if err != nil {
			return nil, err
		}
		e.Set(ctx, namespace, key, version, result, ttl)
		return result, nil
	})
	if shared {
		e.coalesced.Add(1)
	}
	if err != nil {
		return nil, err
	}
	return v.(*toolapi.Result), nil
}

// Clear removes every entry under namespace from the persistent tier. Memory
// entries do not record their namespace, so the memory tier is emptied
// entirely, including entries that belong to other namespaces.
func (e *Engine) Clear(ctx context.Context, namespace string) error {
	for _, key := range e.memory.Keys() {
		e.memory.Remove(key)
	}
	if e.db == nil {
		return nil
	}
	_, err := e.db.ExecContext(ctx, `DELETE FROM cache_entries WHERE namespace = ?`, namespace)
	if err != nil {
		return rterrors.Cache("clear", err)
	}
	return nil
}

// Dump returns a snapshot of every entry currently in the memory tier, keyed
// by cache key, for diagnostics and the RPC surface's introspection needs.
func (e *Engine) Dump() map[string]*Entry {
	out := make(map[string]*Entry, e.memory.Len())
	for _, key := range e.memory.Keys() {
		if entry, ok := e.memory.Peek(key); ok {
			out[key] = entry
		}
	}
	return out
}

// Stats returns a snapshot of the cache's cumulative counters.
func (e *Engine) Stats() Stats {
	return Stats{
		Hits:            e.hits.Load(),
		Misses:          e.misses.Load(),
		MemoryHits:      e.memoryHits.Load(),
		PersistentHits:  e.persistentHits.Load(),
		VersionMismatch: e.versionMismatch.Load(),
		Coalesced:       e.coalesced.Load(),
	}
}

func (e *Engine) getPersistent(ctx context.Context, namespace, key, version string) (*Entry, error) {
	row := e.db.QueryRowContext(ctx, `
		SELECT version, value, created_at, expires_at, hits
		FROM cache_entries WHERE namespace = ? AND version = ? AND key = ?`, namespace, version, key)

	var storedVersion, value string
	var createdAtUnix int64
	var expiresAtUnix sql.NullInt64
	var hits int64
	if err := row.Scan(&storedVersion, &value, &createdAtUnix, &expiresAtUnix, &hits); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}

	var result toolapi.Result
	if err := json.Unmarshal([]byte(value), &result); err != nil {
		return nil, fmt.Errorf("decoding cached value: %w", err)
	}

	entry := &Entry{
		Result:    &result,
		Version:   storedVersion,
		CreatedAt: time.Unix(createdAtUnix, 0),
		Hits:      hits,
	}
	if expiresAtUnix.Valid {
		entry.ExpiresAt = time.Unix(expiresAtUnix.Int64, 0)
	}
	return entry, nil
}

func (e *Engine) setPersistent(ctx context.Context, namespace, key string, entry *Entry) error {
	value, err := json.Marshal(entry.Result)
	if err != nil {
		return fmt.Errorf("encoding cached value: %w", err)
	}

	var expiresAtUnix any
	if !entry.ExpiresAt.IsZero() {
		expiresAtUnix = entry.ExpiresAt.Unix()
	}

	_, err = e.db.ExecContext(ctx, `
		INSERT INTO cache_entries (namespace, key, version, value, created_at, expires_at, hits)
		VALUES (?, ?, ?, ?, ?, ?, 0)
		ON CONFLICT(namespace, version, key) DO UPDATE SET
			value = excluded.value,
			created_at = excluded.created_at,
			expires_at = excluded.expires_at`,
		namespace, key, entry.Version, string(value), entry.CreatedAt.Unix(), expiresAtUnix)
	return err
}
