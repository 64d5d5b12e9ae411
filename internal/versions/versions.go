// Package versions keeps a short history of finished document translations
// so earlier renderings of a page can be compared or restored.
package versions

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/haowjy/luminote-go"
)

// DefaultKeep is how many versions are kept per document.
const DefaultKeep = 5

// Block is one translated block of a version.
type Block struct {
	ID             string             `json:"id"`
	Type           luminote.BlockType `json:"type"`
	OriginalText   string             `json:"original_text"`
	TranslatedText string             `json:"translated_text"`
	Metadata       map[string]any     `json:"metadata"`
}

// Metadata describes how a version was produced.
type Metadata struct {
	Provider          string            `json:"provider"`
	Model             string            `json:"model"`
	TargetLanguage    string            `json:"target_language"`
	TemplateID        string            `json:"template_id,omitempty"`
	TemplateVariables map[string]string `json:"template_variables,omitempty"`
}

// Version is a saved translation of a document.
type Version struct {
	ID          string    `json:"version_id"`
	DocumentURL string    `json:"document_url"`
	CreatedAt   time.Time `json:"created_at"`
	Blocks      []Block   `json:"blocks"`
	Metadata    Metadata  `json:"metadata"`
}

// Store persists versions.
type Store interface {
	// Save stores v, filling ID and CreatedAt, then prunes the document's
	// history down to the store's keep count.
	Save(ctx context.Context, v *Version) error
	// List returns a document's versions, newest first.
	List(ctx context.Context, documentURL string) ([]*Version, error)
	// Get returns the version with id, or a VERSION_NOT_FOUND error.
	Get(ctx context.Context, id string) (*Version, error)
	Count(ctx context.Context, documentURL string) (int, error)
	// Prune deletes all but the newest keep versions and returns how many went.
	Prune(ctx context.Context, documentURL string, keep int) (int64, error)
	Close() error
}

// URLHash groups versions by document.
func URLHash(url string) string {
	sum := sha256.Sum256([]byte(url))
	return hex.EncodeToString(sum[:])[:16]
}

// NotFoundError reports an unknown version id.
func NotFoundError(id string) *luminote.TranslationError {
	return &luminote.TranslationError{
		Code:       luminote.ErrorCodeVersionNotFound,
		Message:    fmt.Sprintf("Version not found: %s", id),
		StatusCode: http.StatusNotFound,
		Details:    map[string]any{"version_id": id},
		Err:        luminote.ErrInvalidRequest,
	}
}

// --- SQLite implementation ---

type sqliteStore struct {
	db   *sql.DB
	keep int
	now  func() time.Time
}

const schema = `
CREATE TABLE IF NOT EXISTS versions (
    id            TEXT PRIMARY KEY,
    url_hash      TEXT NOT NULL,
    document_url  TEXT NOT NULL,
    created_at    INTEGER NOT NULL,
    blocks        TEXT NOT NULL,
    metadata      TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS versions_url_hash ON versions(url_hash, created_at);
`

// Open opens (or creates) a version store at path. A non-positive keep
// means DefaultKeep.
func Open(path string, keep int) (Store, error) {
	if keep <= 0 {
		keep = DefaultKeep
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("versions: failed to create directory %s: %w", dir, err)
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("versions: failed to open database %s: %w", path, err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("versions: failed to initialize schema: %w", err)
	}

	return &sqliteStore{db: db, keep: keep, now: time.Now}, nil
}

func (s *sqliteStore) Close() error {
	return s.db.Close()
}

func (s *sqliteStore) Save(ctx context.Context, v *Version) error {
	if v.ID == "" {
		v.ID = uuid.NewString()
	}
	if v.CreatedAt.IsZero() {
		v.CreatedAt = s.now().UTC()
	}
	if v.Blocks == nil {
		v.Blocks = []Block{}
	}

	blocks, err := json.Marshal(v.Blocks)
	if err != nil {
		return fmt.Errorf("versions: encode blocks: %w", err)
	}
	metadata, err := json.Marshal(v.Metadata)
	if err != nil {
		return fmt.Errorf("versions: encode metadata: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO versions (id, url_hash, document_url, created_at, blocks, metadata) VALUES (?, ?, ?, ?, ?, ?)`,
		v.ID, URLHash(v.DocumentURL), v.DocumentURL, v.CreatedAt.UnixNano(), string(blocks), string(metadata))
	if err != nil {
		return fmt.Errorf("versions: save: %w", err)
	}

	if _, err := s.Prune(ctx, v.DocumentURL, s.keep); err != nil {
		return err
	}
	return nil
}

func (s *sqliteStore) List(ctx context.Context, documentURL string) ([]*Version, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, document_url, created_at, blocks, metadata FROM versions
		 WHERE url_hash = ? ORDER BY created_at DESC, rowid DESC`, URLHash(documentURL))
	if err != nil {
		return nil, fmt.Errorf("versions: list: %w", err)
	}
	defer rows.Close()

	var out []*Version
	for rows.Next() {
		v, err := scanVersion(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("versions: list: %w", err)
	}
	return out, nil
}

func (s *sqliteStore) Get(ctx context.Context, id string) (*Version, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, document_url, created_at, blocks, metadata FROM versions WHERE id = ?`, id)
	v, err := scanVersion(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, NotFoundError(id)
	}
	return v, err
}

func (s *sqliteStore) Count(ctx context.Context, documentURL string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM versions WHERE url_hash = ?`, URLHash(documentURL)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("versions: count: %w", err)
	}
	return n, nil
}

func (s *sqliteStore) Prune(ctx context.Context, documentURL string, keep int) (int64, error) {
	if keep < 0 {
		keep = 0
	}
	hash := URLHash(documentURL)
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM versions WHERE url_hash = ? AND id NOT IN (
		     SELECT id FROM versions WHERE url_hash = ? ORDER BY created_at DESC, rowid DESC LIMIT ?
		 )`, hash, hash, keep)
	if err != nil {
		return 0, fmt.Errorf("versions: prune: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("versions: prune: %w", err)
	}
	return n, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanVersion(row scanner) (*Version, error) {
	var (
		v                Version
		createdAt        int64
		blocks, metadata string
	)
	if err := row.Scan(&v.ID, &v.DocumentURL, &createdAt, &blocks, &metadata); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("versions: scan: %w", err)
	}
	v.CreatedAt = time.Unix(0, createdAt).UTC()
	if err := json.Unmarshal([]byte(blocks), &v.Blocks); err != nil {
		return nil, fmt.Errorf("versions: decode blocks of %s: %w", v.ID, err)
	}
	if err := json.Unmarshal([]byte(metadata), &v.Metadata); err != nil {
		return nil, fmt.Errorf("versions: decode metadata of %s: %w", v.ID, err)
	}
	return &v, nil
}
