package integration

import (
	"context"
	"testing"

	"github.com/aliuyar1234/traineeportal/internal/db"
	"github.com/stretchr/testify/require"
)

func TestIntegration_MigrationsApplyToFreshPostgres(t *testing.T) {
	pool, cleanup := newEmptyDB(t)
	t.Cleanup(cleanup)

	ctx := context.Background()

	pending, err := db.PendingMigrations(ctx, pool)
	require.NoError(t, err)
	require.NotEmpty(t, pending)

	require.NoError(t, db.RunMigrations(ctx, pool))

	for _, table := range []string{"users", "profiles", "cohorts", "signup_tokens", "audit_log", "notifications"} {
		var count int
		err := pool.QueryRow(ctx, `
			SELECT COUNT(*)
			FROM information_schema.tables
			WHERE table_schema = 'public' AND table_name = $1
		`, table).Scan(&count)
		require.NoError(t, err)
		require.Equal(t, 1, count, table)
	}

	pending, err = db.PendingMigrations(ctx, pool)
	require.NoError(t, err)
	require.Empty(t, pending)

	require.NoError(t, db.RunMigrations(ctx, pool), "re-running is a no-op")
}
