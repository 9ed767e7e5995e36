package novelty

import (
	"context"
	"fmt"
	"listing-hunter/pkg/models"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore keeps the ledger in a shared Postgres table, for
// deployments where scraper runs happen on different hosts.
type PostgresStore struct {
	pool  *pgxpool.Pool
	table string
	now   func() time.Time
}

var _ Store = (*PostgresStore)(nil)

var pgBuilder = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

func OpenPostgres(ctx context.Context, dsn, table string) (*PostgresStore, error) {
	if !ValidTable(table) {
		return nil, fmt.Errorf("novelty: invalid table name %q", table)
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("novelty: connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("novelty: ping postgres: %w", err)
	}

	if _, err := pool.Exec(ctx, createTableSQL(table, "TIMESTAMPTZ")); err != nil {
		pool.Close()
		return nil, fmt.Errorf("novelty: create table %s: %w", table, err)
	}

	return &PostgresStore{pool: pool, table: table, now: time.Now}, nil
}

func (s *PostgresStore) InsertIfAbsent(ctx context.Context, l models.Listing) (Outcome, error) {
	query, args, err := insertStatement(pgBuilder, s.table, l, s.now())
	if err != nil {
		return Failed, fmt.Errorf("novelty: build insert: %w", err)
	}

	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return Failed, fmt.Errorf("novelty: insert %s: %w", l.ID, err)
	}
	return outcomeFromRows(tag.RowsAffected()), nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
