// Package sqlite caches raw recommendation responses keyed by prompt hash.
//
// A hit is served without a model call and costs nothing. The prompt embeds
// the wardrobe snapshot, so any wardrobe change produces a new key.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"github.com/pario-ai/stylist/pkg/models"
)

// Cache is an exact-match response cache backed by SQLite.
type Cache struct {
	db     *sql.DB
	ttl    time.Duration
	now    func() time.Time
	hits   atomic.Int64
	misses atomic.Int64
}

const createCacheTable = `
CREATE TABLE IF NOT EXISTS response_cache (
	prompt_hash TEXT NOT NULL,
	model TEXT NOT NULL,
	response BLOB NOT NULL,
	created_at INTEGER NOT NULL,
	ttl_seconds INTEGER NOT NULL,
	PRIMARY KEY (prompt_hash, model)
);
`

// New creates a Cache with the given database path and TTL.
func New(dbPath string, ttl time.Duration) (*Cache, error) {
	db, err := sql.Open("sqlite", dbPath+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open cache db: %w", err)
	}

	if _, err := db.Exec(createCacheTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate cache db: %w", err)
	}

	return &Cache{db: db, ttl: ttl, now: time.Now}, nil
}

// Get returns a cached response, or false if absent or expired.
func (c *Cache) Get(ctx context.Context, promptHash, model string) (string, bool) {
	var (
		response   []byte
		createdAt  int64
		ttlSeconds int64
	)
	err := c.db.QueryRowContext(ctx,
		`SELECT response, created_at, ttl_seconds FROM response_cache WHERE prompt_hash = ? AND model = ?`,
		promptHash, model,
	).Scan(&response, &createdAt, &ttlSeconds)
	if err != nil {
		c.misses.Add(1)
		return "", false
	}

	if c.now().Sub(time.Unix(0, createdAt)) > time.Duration(ttlSeconds)*time.Second {
		c.misses.Add(1)
		return "", false
	}

	c.hits.Add(1)
	return string(response), true
}

// Put stores a response, replacing any previous entry for the key.
func (c *Cache) Put(ctx context.Context, promptHash, model, response string) error {
	_, err := c.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO response_cache (prompt_hash, model, response, created_at, ttl_seconds)
		 VALUES (?, ?, ?, ?, ?)`,
		promptHash, model, []byte(response), c.now().UTC().UnixNano(), int64(c.ttl.Seconds()),
	)
	if err != nil {
		return fmt.Errorf("cache put: %w", err)
	}
	return nil
}

// Entry returns the stored entry for a key regardless of expiry.
func (c *Cache) Entry(ctx context.Context, promptHash, model string) (models.CacheEntry, error) {
	var (
		e          = models.CacheEntry{PromptHash: promptHash, Model: model}
		createdAt  int64
		ttlSeconds int64
	)
	err := c.db.QueryRowContext(ctx,
		`SELECT response, created_at, ttl_seconds FROM response_cache WHERE prompt_hash = ? AND model = ?`,
		promptHash, model,
	).Scan(&e.Response, &createdAt, &ttlSeconds)
	if errors.Is(err, sql.ErrNoRows) {
		return e, fmt.Errorf("cache entry %s/%s not found", promptHash, model)
	}
	if err != nil {
		return e, fmt.Errorf("cache entry: %w", err)
	}
	e.CreatedAt = time.Unix(0, createdAt).UTC()
	e.TTL = time.Duration(ttlSeconds) * time.Second
	return e, nil
}

// Stats returns cache performance metrics.
func (c *Cache) Stats(ctx context.Context) (models.CacheStats, error) {
	var count int64
	err := c.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM response_cache`).Scan(&count)
	if err != nil {
		return models.CacheStats{}, fmt.Errorf("cache stats: %w", err)
	}
	return models.CacheStats{
		Entries: count,
		Hits:    c.hits.Load(),
		Misses:  c.misses.Load(),
	}, nil
}

// Clear removes cache entries. If expiredOnly is true, only expired entries are removed.
func (c *Cache) Clear(ctx context.Context, expiredOnly bool) (int64, error) {
	var (
		res sql.Result
		err error
	)
	if expiredOnly {
		res, err = c.db.ExecContext(ctx,
			`DELETE FROM response_cache WHERE created_at + ttl_seconds * 1000000000 < ?`,
			c.now().UTC().UnixNano())
	} else {
		res, err = c.db.ExecContext(ctx, `DELETE FROM response_cache`)
	}
	if err != nil {
		return 0, fmt.Errorf("cache clear: %w", err)
	}
	return res.RowsAffected()
}

// Prune removes expired entries. The cutoff is ignored; each entry carries its own TTL.
func (c *Cache) Prune(ctx context.Context, _ time.Time) (int64, error) {
	return c.Clear(ctx, true)
}

// Close releases the database connection.
func (c *Cache) Close() error {
	return c.db.Close()
}
