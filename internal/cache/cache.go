// Package cache stores finished block translations so that repeated
// requests for the same text, language and model skip the provider call.
// It also keeps extracted documents keyed by URL.
package cache

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"
)

// DefaultTTL is how long a translation stays valid.
const DefaultTTL = 24 * time.Hour

// Key identifies one translation.
type Key struct {
	Provider string
	Model    string
	Language string
	Text     string
	Prompt   string // rendered template prompt; empty for the default instruction
}

// Hash returns the hex SHA-256 of the key fields. Source text can be long,
// so it is never used as a key directly.
func (k Key) Hash() string {
	h := sha256.New()
	for _, part := range []string{k.Provider, k.Model, k.Language, k.Text, k.Prompt} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Entry is a cached translation.
type Entry struct {
	Translation string
	TokensUsed  int
	CreatedAt   time.Time
}

// Stats reports cache effectiveness since the cache was opened.
type Stats struct {
	Hits    int64 `json:"hits"`
	Misses  int64 `json:"misses"`
	Entries int64 `json:"entries"`

	Documents int64 `json:"documents"`
}

// Cache is a translation cache.
type Cache interface {
	// Get returns the entry for key; ok is false on a miss or an expired entry.
	Get(ctx context.Context, key Key) (entry *Entry, ok bool, err error)
	Put(ctx context.Context, key Key, entry Entry) error
	// GetDocument returns the stored extraction result for url.
	GetDocument(ctx context.Context, url string) (data []byte, ok bool, err error)
	PutDocument(ctx context.Context, url string, data []byte) error
	Stats(ctx context.Context) (Stats, error)
	// Purge deletes expired translations and documents and returns how many were removed.
	Purge(ctx context.Context) (int64, error)
	Close() error
}

// --- SQLite implementation ---

type sqliteCache struct {
	db     *sql.DB
	ttl    time.Duration
	now    func() time.Time
	hits   atomic.Int64
	misses atomic.Int64
}

const schema = `
CREATE TABLE IF NOT EXISTS translations (
    key          TEXT PRIMARY KEY,
    provider     TEXT NOT NULL,
    model        TEXT NOT NULL,
    language     TEXT NOT NULL,
    translation  TEXT NOT NULL,
    tokens_used  INTEGER NOT NULL DEFAULT 0,
    created_at   INTEGER NOT NULL,
    expires_at   INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS translations_expires_at ON translations(expires_at);

CREATE TABLE IF NOT EXISTS documents (
    url          TEXT PRIMARY KEY,
    data         BLOB NOT NULL,
    created_at   INTEGER NOT NULL,
    expires_at   INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS documents_expires_at ON documents(expires_at);
`

// Open opens (or creates) a SQLite cache at path. A non-positive ttl means DefaultTTL.
func Open(path string, ttl time.Duration) (Cache, error) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("cache: failed to create directory %s: %w", dir, err)
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("cache: failed to open database %s: %w", path, err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("cache: failed to initialize schema: %w", err)
	}

	return &sqliteCache{db: db, ttl: ttl, now: time.Now}, nil
}

func (c *sqliteCache) Close() error {
	return c.db.Close()
}

func (c *sqliteCache) Get(ctx context.Context, key Key) (*Entry, bool, error) {
	var (
		entry     Entry
		createdAt int64
	)
	err := c.db.QueryRowContext(ctx,
		`SELECT translation, tokens_used, created_at FROM translations WHERE key = ? AND expires_at > ?`,
		key.Hash(), c.now().Unix()).
		Scan(&entry.Translation, &entry.TokensUsed, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		c.misses.Add(1)
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("cache: get: %w", err)
	}

	c.hits.Add(1)
	entry.CreatedAt = time.Unix(createdAt, 0).UTC()
	return &entry, true, nil
}

func (c *sqliteCache) Put(ctx context.Context, key Key, entry Entry) error {
	now := c.now()
	_, err := c.db.ExecContext(ctx,
		`INSERT INTO translations (key, provider, model, language, translation, tokens_used, created_at, expires_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET
		     translation = excluded.translation,
		     tokens_used = excluded.tokens_used,
		     created_at  = excluded.created_at,
		     expires_at  = excluded.expires_at`,
		key.Hash(), key.Provider, key.Model, key.Language,
		entry.Translation, entry.TokensUsed, now.Unix(), now.Add(c.ttl).Unix())
	if err != nil {
		return fmt.Errorf("cache: put: %w", err)
	}
	return nil
}

func (c *sqliteCache) GetDocument(ctx context.Context, url string) ([]byte, bool, error) {
	var data []byte
	err := c.db.QueryRowContext(ctx,
		`SELECT data FROM documents WHERE url = ? AND expires_at > ?`, url, c.now().Unix()).
		Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("cache: get document: %w", err)
	}
	return data, true, nil
}

func (c *sqliteCache) PutDocument(ctx context.Context, url string, data []byte) error {
	now := c.now()
	_, err := c.db.ExecContext(ctx,
		`INSERT INTO documents (url, data, created_at, expires_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(url) DO UPDATE SET
		     data       = excluded.data,
		     created_at = excluded.created_at,
		     expires_at = excluded.expires_at`,
		url, data, now.Unix(), now.Add(c.ttl).Unix())
	if err != nil {
		return fmt.Errorf("cache: put document: %w", err)
	}
	return nil
}

func (c *sqliteCache) Stats(ctx context.Context) (Stats, error) {
	stats := Stats{Hits: c.hits.Load(), Misses: c.misses.Load()}
	now := c.now().Unix()
	err := c.db.QueryRowContext(ctx,
		`SELECT (SELECT COUNT(*) FROM translations WHERE expires_at > ?),
		        (SELECT COUNT(*) FROM documents WHERE expires_at > ?)`, now, now).
		Scan(&stats.Entries, &stats.Documents)
	if err != nil {
		return stats, fmt.Errorf("cache: stats: %w", err)
	}
	return stats, nil
}

func (c *sqliteCache) Purge(ctx context.Context) (int64, error) {
	now := c.now().Unix()
	var total int64
	for _, table := range []string{"translations", "documents"} {
		res, err := c.db.ExecContext(ctx, `DELETE FROM `+table+` WHERE expires_at <= ?`, now)
		if err != nil {
			return total, fmt.Errorf("cache: purge %s: %w", table, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return total, fmt.Errorf("cache: purge %s: %w", table, err)
		}
		total += n
	}
	return total, nil
}

// --- No-op implementation ---

// Nop is a Cache that stores nothing. Used when caching is disabled.
type Nop struct{}

func (Nop) Get(context.Context, Key) (*Entry, bool, error) { return nil, false, nil }
func (Nop) Put(context.Context, Key, Entry) error          { return nil }
func (Nop) Stats(context.Context) (Stats, error)           { return Stats{}, nil }
func (Nop) Purge(context.Context) (int64, error)           { return 0, nil }
func (Nop) Close() error                                   { return nil }

func (Nop) GetDocument(context.Context, string) ([]byte, bool, error) { return nil, false, nil }
func (Nop) PutDocument(context.Context, string, []byte) error         { return nil }
