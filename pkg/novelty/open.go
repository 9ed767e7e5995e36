package novelty

import (
	"context"
	"fmt"
)

// Open picks a backend by driver name ("sqlite" or "postgres").
func Open(ctx context.Context, driver, dsn, table string) (Store, error) {
	switch driver {
	case "", "sqlite":
		return OpenSQLite(dsn, table)
	case "postgres", "pgx":
		return OpenPostgres(ctx, dsn, table)
	default:
		return nil, fmt.Errorf("novelty: unknown driver %q", driver)
	}
}
