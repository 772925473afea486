package postgres_test

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/conference-central/backend/config"
	"github.com/conference-central/backend/internal/store"
	"github.com/conference-central/backend/internal/store/postgres"
	"github.com/conference-central/backend/internal/store/storetest"
	"github.com/conference-central/backend/pkg/database"
)

const truncateAll = `TRUNCATE session_wishlist, conference_attendees, sessions, conferences, profiles RESTART IDENTITY CASCADE`

// Set DATABASE_URL to a disposable database to run these tests; every case
// truncates all tables.
func TestStore(t *testing.T) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set")
	}
	require.NoError(t, database.Migrate(dsn, nil))

	storetest.Run(t, func(t *testing.T) store.Store {
		ctx := context.Background()
		pool, err := database.NewPostgresPool(ctx, config.DatabaseConfig{URL: dsn, MaxConns: 10}, nil)
		require.NoError(t, err)
		_, err = pool.Exec(ctx, truncateAll)
		require.NoError(t, err)

		st := postgres.New(pool)
		t.Cleanup(st.Close)
		return st
	})
}
