// Package cache persists effect summaries between runs in a SQLite file.
package cache

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/gnolang/dealint/internal/effect"
)

// FileName is the database file created inside the cache directory.
const FileName = "summaries.db"

const schema = `
CREATE TABLE IF NOT EXISTS summaries (
	qual          TEXT PRIMARY KEY,
	tree_hash     TEXT NOT NULL,
	deps          TEXT NOT NULL,
	summary       TEXT NOT NULL,
	created_at    INTEGER NOT NULL,
	last_accessed INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER PRIMARY KEY
);
INSERT OR REPLACE INTO schema_version (version) VALUES (1);
`

// Cache stores one summary per qualified function name. An entry is only
// returned while the function's tree hash and the fingerprints of every
// callee summary it was computed from are unchanged.
type Cache struct {
	CacheDir string
	db       *sql.DB
	mutex    sync.RWMutex
	maxAge   time.Duration
	log      *zap.Logger
}

// NewCache opens or creates the cache database in cacheDir.
func NewCache(cacheDir string) (*Cache, error) {
	if err := os.MkdirAll(cacheDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}
	db, err := sql.Open("sqlite", filepath.Join(cacheDir, FileName))
	if err != nil {
		return nil, fmt.Errorf("failed to open cache database: %w", err)
	}
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA busy_timeout=5000"} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize cache schema: %w", err)
	}
	return &Cache{CacheDir: cacheDir, db: db, log: zap.NewNop()}, nil
}

// SetLogger sets where failed lookups and bookkeeping writes are logged.
// They never fail a Get.
func (c *Cache) SetLogger(l *zap.Logger) {
	if l == nil {
		l = zap.NewNop()
	}
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.log = l
}

// Close releases the database.
func (c *Cache) Close() error {
	if c == nil || c.db == nil {
		return nil
	}
	return c.db.Close()
}

// SetMaxAge makes entries older than d invalid. Zero disables expiry.
func (c *Cache) SetMaxAge(d time.Duration) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.maxAge = d
}

// Get returns the cached summary for qual if it is still valid for the
// given tree hash and callee fingerprints.
func (c *Cache) Get(qual, treeHash string, deps map[string]string) (*effect.Summary, bool) {
	if c == nil {
		return nil, false
	}
	c.mutex.Lock()
	defer c.mutex.Unlock()

	var (
		storedHash, storedDeps, body string
		created                      int64
	)
	row := c.db.QueryRow(`SELECT tree_hash, deps, summary, created_at FROM summaries WHERE qual = ?`, qual)
	if err := row.Scan(&storedHash, &storedDeps, &body, &created); err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			c.log.Warn("Cache lookup failed", zap.String("func", qual), zap.Error(err))
		}
		return nil, false
	}
	if c.isEntryInvalid(treeHash, deps, storedHash, storedDeps, created) {
		if _, err := c.db.Exec(`DELETE FROM summaries WHERE qual = ?`, qual); err != nil {
			c.log.Warn("Failed to drop stale cache entry", zap.String("func", qual), zap.Error(err))
		}
		return nil, false
	}
	var s effect.Summary
	if err := json.Unmarshal([]byte(body), &s); err != nil {
		c.log.Warn("Corrupt cache entry", zap.String("func", qual), zap.Error(err))
		return nil, false
	}
	if _, err := c.db.Exec(`UPDATE summaries SET last_accessed = ? WHERE qual = ?`, time.Now().Unix(), qual); err != nil {
		c.log.Warn("Failed to update cache access time", zap.String("func", qual), zap.Error(err))
	}
	return &s, true
}

func (c *Cache) isEntryInvalid(treeHash string, deps map[string]string, storedHash, storedDeps string, created int64) bool {
	if c.maxAge > 0 && time.Since(time.Unix(created, 0)) > c.maxAge {
		return true
	}
	if storedHash != treeHash {
		return true
	}
	var old map[string]string
	if err := json.Unmarshal([]byte(storedDeps), &old); err != nil {
		return true
	}
	if len(old) != len(deps) {
		return true
	}
	for callee, fp := range deps {
		if old[callee] != fp {
			return true
		}
	}
	return false
}

// Set stores the summary computed for qual.
func (c *Cache) Set(qual, treeHash string, deps map[string]string, s *effect.Summary) error {
	if c == nil {
		return nil
	}
	if s == nil {
		return errors.New("nil summary")
	}
	body, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to encode summary: %w", err)
	}
	if deps == nil {
		deps = map[string]string{}
	}
	depJSON, err := json.Marshal(deps)
	if err != nil {
		return fmt.Errorf("failed to encode dependencies: %w", err)
	}

	c.mutex.Lock()
	defer c.mutex.Unlock()
	now := time.Now().Unix()
	_, err = c.db.Exec(`
		INSERT INTO summaries (qual, tree_hash, deps, summary, created_at, last_accessed)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(qual) DO UPDATE SET
			tree_hash = excluded.tree_hash,
			deps = excluded.deps,
			summary = excluded.summary,
			created_at = excluded.created_at,
			last_accessed = excluded.last_accessed`,
		qual, treeHash, string(depJSON), string(body), now, now)
	if err != nil {
		return fmt.Errorf("failed to store summary for %s: %w", qual, err)
	}
	return nil
}

// Len returns the number of stored entries.
func (c *Cache) Len() int {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	var n int
	if err := c.db.QueryRow(`SELECT COUNT(*) FROM summaries`).Scan(&n); err != nil {
		return 0
	}
	return n
}

// InvalidateAll drops every entry.
func (c *Cache) InvalidateAll() error {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if _, err := c.db.Exec(`DELETE FROM summaries`); err != nil {
		return fmt.Errorf("failed to clear cache: %w", err)
	}
	return nil
}
