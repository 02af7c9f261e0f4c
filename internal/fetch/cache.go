package fetch

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Cache stores raw HTTP response bodies in SQLite, keyed by a hash of the request.
type Cache struct {
	db  *sql.DB
	ttl time.Duration
	now func() time.Time
}

// OpenCache opens or creates the cache database at path. Entries older than ttl are
// treated as missing; a zero ttl keeps entries forever.
func OpenCache(path string, ttl time.Duration) (*Cache, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create cache directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open cache database: %w", err)
	}
	db.SetMaxOpenConns(1)

	c := &Cache{db: db, ttl: ttl, now: time.Now}
	if err := c.initialize(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return c, nil
}

func (c *Cache) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS responses (
		key TEXT PRIMARY KEY,
		url TEXT NOT NULL,
		body BLOB NOT NULL,
		fetched_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_responses_fetched ON responses(fetched_at);
	`
	if _, err := c.db.Exec(schema); err != nil {
		return fmt.Errorf("create cache schema: %w", err)
	}
	return nil
}

// Key hashes a request into a cache key.
func Key(method, url string, body []byte) string {
	h := sha256.New()
	h.Write([]byte(method))
	h.Write([]byte{0})
	h.Write([]byte(url))
	h.Write([]byte{0})
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}

// Get returns the stored body for key, or ok=false when it is missing or expired.
func (c *Cache) Get(ctx context.Context, key string) (body []byte, ok bool, err error) {
	var fetched int64
	row := c.db.QueryRowContext(ctx, `SELECT body, fetched_at FROM responses WHERE key = ?`, key)
	if err := row.Scan(&body, &fetched); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("read cache entry: %w", err)
	}
	if c.ttl > 0 && c.now().Sub(time.Unix(fetched, 0)) > c.ttl {
		return nil, false, nil
	}
	return body, true, nil
}

// Put stores body under key, replacing any previous entry.
func (c *Cache) Put(ctx context.Context, key, url string, body []byte) error {
	_, err := c.db.ExecContext(ctx,
		`INSERT INTO responses (key, url, body, fetched_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET url = excluded.url, body = excluded.body, fetched_at = excluded.fetched_at`,
		key, url, body, c.now().Unix())
	if err != nil {
		return fmt.Errorf("write cache entry: %w", err)
	}
	return nil
}

// Purge deletes expired entries and returns how many were removed.
func (c *Cache) Purge(ctx context.Context) (int64, error) {
	if c.ttl <= 0 {
		return 0, nil
	}
	cutoff := c.now().Add(-c.ttl).Unix()
	res, err := c.db.ExecContext(ctx, `DELETE FROM responses WHERE fetched_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge cache: %w", err)
	}
	return res.RowsAffected()
}

// Stats reports how many entries the cache holds and their total body size.
func (c *Cache) Stats(ctx context.Context) (entries, size int64, err error) {
	row := c.db.QueryRowContext(ctx, `SELECT COUNT(*), COALESCE(SUM(LENGTH(body)), 0) FROM responses`)
	if err := row.Scan(&entries, &size); err != nil {
		return 0, 0, fmt.Errorf("read cache stats: %w", err)
	}
	return entries, size, nil
}

// Clear deletes every entry and returns how many were removed.
func (c *Cache) Clear(ctx context.Context) (int64, error) {
	res, err := c.db.ExecContext(ctx, `DELETE FROM responses`)
	if err != nil {
		return 0, fmt.Errorf("clear cache: %w", err)
	}
	return res.RowsAffected()
}

// Close releases the database.
func (c *Cache) Close() error {
	return c.db.Close()
}
