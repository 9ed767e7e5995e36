// Package novelty is the deduplication ledger. Each listing id is written
// at most once per table, and the write itself decides whether the listing
// is new: there is no read-then-write anywhere in this package.
package novelty

import (
	"context"
	"fmt"
	"listing-hunter/pkg/models"
	"regexp"
	"time"

	sq "github.com/Masterminds/squirrel"
)

type Outcome int

const (
	Failed Outcome = iota
	Inserted
	AlreadyExists
)

func (o Outcome) String() string {
	switch o {
	case Inserted:
		return "inserted"
	case AlreadyExists:
		return "already_exists"
	default:
		return "failed"
	}
}

// Store is implemented by every backend. InsertIfAbsent must be a single
// atomic conditional write; a non-nil error always comes with Failed.
type Store interface {
	InsertIfAbsent(ctx context.Context, l models.Listing) (Outcome, error)
	Close() error
}

var tableName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,62}$`)

// ValidTable reports whether name can be used as a table identifier.
func ValidTable(name string) bool {
	return tableName.MatchString(name)
}

var columns = []string{"id", "brand", "title", "price", "size", "condition", "url", "image_url", "first_seen_at"}

func createTableSQL(table, timeType string) string {
	return fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			brand TEXT NOT NULL,
			title TEXT NOT NULL DEFAULT '',
			price TEXT NOT NULL,
			size TEXT NOT NULL DEFAULT '',
			condition TEXT NOT NULL DEFAULT '',
			url TEXT NOT NULL,
			image_url TEXT NOT NULL,
			first_seen_at %s NOT NULL
		)`, table, timeType)
}

func insertStatement(b sq.StatementBuilderType, table string, l models.Listing, seen time.Time) (string, []any, error) {
	return b.Insert(table).
		Columns(columns...).
		Values(l.ID, l.Brand, l.Title, l.Price, l.Size, l.Condition, l.URL, l.ImageURL, seen.UTC()).
		Suffix("ON CONFLICT (id) DO NOTHING").
		ToSql()
}

func outcomeFromRows(n int64) Outcome {
	if n == 0 {
		return AlreadyExists
	}
	return Inserted
}
