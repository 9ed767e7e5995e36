package novelty

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

type SQLiteStore struct {
	db    *sql.DB
	table string
	now   func() time.Time
}

var _ Store = (*SQLiteStore)(nil)

// OpenSQLite opens (or creates) the database at path and ensures the
// listings table exists. Several processes may share the file.
func OpenSQLite(path, table string) (*SQLiteStore, error) {
	if !ValidTable(table) {
		return nil, fmt.Errorf("novelty: invalid table name %q", table)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("novelty: open database: %w", err)
	}
	// One connection keeps ":memory:" databases coherent and serialises
	// writers inside this process; busy_timeout covers other processes.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{"PRAGMA busy_timeout = 5000", "PRAGMA journal_mode = WAL"} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("novelty: %s: %w", pragma, err)
		}
	}

	if _, err := db.Exec(createTableSQL(table, "DATETIME")); err != nil {
		db.Close()
		return nil, fmt.Errorf("novelty: create table %s: %w", table, err)
	}

	return &SQLiteStore{db: db, table: table, now: time.Now}, nil
}

func (s *SQLiteStore) InsertIfAbsent(ctx context.Context, l models.Listing) (Outcome, error) {
	query, args, err := insertStatement(sq.StatementBuilder, s.table, l, s.now())
	if err != nil {
		return Failed, fmt.Errorf("novelty: build insert: %w", err)
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return Failed, fmt.Errorf("novelty: insert %s: %w", l.ID, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return Failed, fmt.Errorf("novelty: rows affected for %s: %w", l.ID, err)
	}
	return outcomeFromRows(n), nil
}

// Lookup returns the stored record for id.
func (s *SQLiteStore) Lookup(ctx context.Context, id string) (models.NoveltyRecord, bool, error) {
	query, args, err := sq.Select(columns...).From(s.table).Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return models.NoveltyRecord{}, false, fmt.Errorf("novelty: build lookup: %w", err)
	}

	var rec models.NoveltyRecord
	l := &rec.Listing
	err = s.db.QueryRowContext(ctx, query, args...).
		Scan(&l.ID, &l.Brand, &l.Title, &l.Price, &l.Size, &l.Condition, &l.URL, &l.ImageURL, &rec.FirstSeenAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.NoveltyRecord{}, false, nil
	}
	if err != nil {
		return models.NoveltyRecord{}, false, fmt.Errorf("novelty: lookup %s: %w", id, err)
	}
	rec.Source = s.table
	return rec, true, nil
}

func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	query, args, err := sq.Select("COUNT(*)").From(s.table).ToSql()
	if err != nil {
		return 0, err
	}
	var n int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("novelty: count: %w", err)
	}
	return n, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
