package blobstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/padak/ceo-xmass-review/internal/logger"
)

// SQLite stores blobs and their tag index in a local SQLite database. It
// implements the same contract as the remote backend, so deployments
// without object storage keep the full feature set.
type SQLite struct {
	db  *sql.DB
	log *logger.Logger
}

var _ Backend = (*SQLite)(nil)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS blobs (
    id         TEXT PRIMARY KEY,
    name       TEXT NOT NULL,
    size       INTEGER NOT NULL,
    created_at TEXT NOT NULL,
    data       BLOB NOT NULL
);
CREATE TABLE IF NOT EXISTS blob_tags (
    blob_id TEXT NOT NULL REFERENCES blobs(id) ON DELETE CASCADE,
    tag     TEXT NOT NULL,
    PRIMARY KEY (blob_id, tag)
);
CREATE INDEX IF NOT EXISTS idx_blob_tags_tag ON blob_tags(tag);
`

// OpenSQLite opens (creating if needed) the blob database at path.
func OpenSQLite(path string, log *logger.Logger) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %q: %w", path, err)
	}
	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
	}
	for _, stmt := range pragmas {
		if _, err := db.Exec(stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply sqlite pragma %q: %w", stmt, err)
		}
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply sqlite schema: %w", err)
	}
	return &SQLite{db: db, log: log}, nil
}

func (s *SQLite) Close() error { return s.db.Close() }

func (s *SQLite) List(ctx context.Context, tag string) ([]Blob, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT b.id, b.name, b.size, b.created_at
		   FROM blobs b JOIN blob_tags t ON t.blob_id = b.id
		  WHERE t.tag = ?`, tag)
	if err != nil {
		return nil, fmt.Errorf("list blobs by tag %q: %w", tag, err)
	}
	defer rows.Close()

	out := []Blob{}
	for rows.Next() {
		var b Blob
		var created string
		if err := rows.Scan(&b.ID, &b.Name, &b.Size, &created); err != nil {
			return nil, err
		}
		if ts, err := time.Parse(time.RFC3339Nano, created); err == nil {
			b.Created = ts
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range out {
		tags, err := s.tagsFor(ctx, out[i].ID)
		if err != nil {
			return nil, err
		}
		out[i].Tags = tags
	}
	return out, nil
}

func (s *SQLite) tagsFor(ctx context.Context, id string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT tag FROM blob_tags WHERE blob_id = ?`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var tags []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		tags = append(tags, t)
	}
	return tags, rows.Err()
}

func (s *SQLite) Download(ctx context.Context, id string) ([]byte, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, `SELECT data FROM blobs WHERE id = ?`, id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("download blob %s: %w", id, err)
	}
	return data, nil
}

func (s *SQLite) Upload(ctx context.Context, name string, tags []string, data []byte) (Blob, error) {
	blob := Blob{
		ID:      uuid.NewString(),
		Name:    name,
		Tags:    append([]string(nil), tags...),
		Size:    int64(len(data)),
		Created: time.Now().UTC(),
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Blob{}, err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO blobs (id, name, size, created_at, data) VALUES (?, ?, ?, ?, ?)`,
		blob.ID, blob.Name, blob.Size, blob.Created.Format(time.RFC3339Nano), data); err != nil {
		return Blob{}, fmt.Errorf("insert blob %q: %w", name, err)
	}
	for _, tag := range blob.Tags {
		if strings.TrimSpace(tag) == "" {
			continue
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO blob_tags (blob_id, tag) VALUES (?, ?)`, blob.ID, tag); err != nil {
			return Blob{}, fmt.Errorf("insert tag %q: %w", tag, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return Blob{}, err
	}
	return blob, nil
}

func (s *SQLite) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM blobs WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete blob %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}
