// Package artifact stores rendered digests under date-and-source keys, the
// way a bucket would. Writing an existing key replaces it.
package artifact

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"listing-hunter/pkg/models"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "modernc.org/sqlite"
)

// Key is "{source}/{YYYY-MM-DD}.html" for the UTC day of t.
func Key(source string, t time.Time) string {
	return fmt.Sprintf("%s/%s.html", source, t.UTC().Format("2006-01-02"))
}

type Store interface {
	Put(ctx context.Context, key string, body []byte, contentType string) error
	Get(ctx context.Context, key string) ([]byte, error)
}

type Object struct {
	Key         string
	Body        []byte
	ContentType string
	UpdatedAt   time.Time
}

// Bucket is a Store backed by a single SQLite file.
type Bucket struct {
	db  *sql.DB
	now func() time.Time
}

var _ Store = (*Bucket)(nil)

func OpenBucket(path string) (*Bucket, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("artifact: open bucket: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("artifact: set busy timeout: %w", err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS objects (
			key TEXT PRIMARY KEY,
			body BLOB NOT NULL,
			content_type TEXT NOT NULL,
			updated_at DATETIME NOT NULL
		)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("artifact: create table: %w", err)
	}

	return &Bucket{db: db, now: time.Now}, nil
}

func (b *Bucket) Put(ctx context.Context, key string, body []byte, contentType string) error {
	if key == "" {
		return fmt.Errorf("artifact: empty key")
	}

	query, args, err := sq.Insert("objects").
		Columns("key", "body", "content_type", "updated_at").
		Values(key, body, contentType, b.now().UTC()).
		Suffix(`ON CONFLICT (key) DO UPDATE SET body = excluded.body,
			content_type = excluded.content_type, updated_at = excluded.updated_at`).
		ToSql()
	if err != nil {
		return fmt.Errorf("artifact: build put: %w", err)
	}

	if _, err := b.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("artifact: put %s: %w", key, err)
	}
	return nil
}

func (b *Bucket) Get(ctx context.Context, key string) ([]byte, error) {
	obj, err := b.Head(ctx, key)
	if err != nil {
		return nil, err
	}
	return obj.Body, nil
}

// Head returns the object together with its metadata.
func (b *Bucket) Head(ctx context.Context, key string) (Object, error) {
	query, args, err := sq.Select("key", "body", "content_type", "updated_at").
		From("objects").
		Where(sq.Eq{"key": key}).
		ToSql()
	if err != nil {
		return Object{}, fmt.Errorf("artifact: build get: %w", err)
	}

	var obj Object
	err = b.db.QueryRowContext(ctx, query, args...).Scan(&obj.Key, &obj.Body, &obj.ContentType, &obj.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Object{}, fmt.Errorf("artifact: %s: %w", key, models.ErrArtifactNotFound)
	}
	if err != nil {
		return Object{}, fmt.Errorf("artifact: get %s: %w", key, err)
	}
	return obj, nil
}

func (b *Bucket) Close() error {
	return b.db.Close()
}
