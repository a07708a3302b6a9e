// Package dbtest provides a migrated PostgreSQL pool for integration tests.
// Tests using it are skipped unless PG_CONN_URL is set.
package dbtest

import (
	"context"
	"os"
	"sync"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"

	"github.com/kanbanhq/demandkit/internal/db/migrations"
	"github.com/kanbanhq/demandkit/pkg/logger"
	"github.com/kanbanhq/demandkit/pkg/pg"
)

var (
	migrateOnce sync.Once
	migrateErr  error
)

// Pool connects to PG_CONN_URL, applies migrations once per test binary and
// closes the pool when t finishes.
func Pool(t *testing.T) *pgxpool.Pool {
	t.Helper()

	url := os.Getenv("PG_CONN_URL")
	if url == "" {
		t.Skip("PG_CONN_URL not set")
	}

	ctx := context.Background()
	cfg := pg.Config{
		ConnectionString: url,
		MaxOpenConns:     4,
		MaxIdleConns:     1,
		RetryAttempts:    1,
		MigrationsTable:  "schema_migrations",
	}
	pool, err := pg.Connect(ctx, cfg)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	migrateOnce.Do(func() {
		migrateErr = pg.Migrate(ctx, pool, cfg, migrations.FS, logger.Discard())
	})
	require.NoError(t, migrateErr)

	return pool
}
