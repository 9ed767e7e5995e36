package novelty

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostgresInsertStatement(t *testing.T) {
	query, args, err := insertStatement(pgBuilder, "vinted_listings", listing("42"), time.Unix(0, 0))
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(query, "INSERT INTO vinted_listings (id,brand,title,price,size,condition,url,image_url,first_seen_at)"))
	assert.Contains(t, query, "$9")
	assert.True(t, strings.HasSuffix(query, "ON CONFLICT (id) DO NOTHING"))
	assert.Len(t, args, len(columns))
}

func TestPostgresInsertIfAbsent(t *testing.T) {
	dsn := os.Getenv("NOVELTY_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("NOVELTY_TEST_POSTGRES_DSN not set")
	}

	ctx := context.Background()
	table := "test_listings_" + strings.ReplaceAll(time.Now().Format("150405.000"), ".", "")
	s, err := OpenPostgres(ctx, dsn, table)
	require.NoError(t, err)
	t.Cleanup(func() {
		_, _ = s.pool.Exec(ctx, "DROP TABLE IF EXISTS "+table)
		s.Close()
	})

	outcome, err := s.InsertIfAbsent(ctx, listing("a"))
	require.NoError(t, err)
	assert.Equal(t, Inserted, outcome)

	outcome, err = s.InsertIfAbsent(ctx, listing("a"))
	require.NoError(t, err)
	assert.Equal(t, AlreadyExists, outcome)
}
