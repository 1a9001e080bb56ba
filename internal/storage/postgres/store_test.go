package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"testing"

	"coffeemaker/internal/storage"
	"coffeemaker/internal/storage/storagetest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestDB connects to the Postgres described by the PG* variables, migrates it and
// skips the test when none is reachable.
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	connStr := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		envOr("PGHOST", "localhost"),
		envOr("PGPORT", "5432"),
		envOr("PGUSER", "coffeemaker"),
		envOr("PGPASSWORD", "coffeemaker"),
		envOr("PGDATABASE", "coffeemaker_test"),
	)

	db, err := Open(context.Background(), connStr)
	if err != nil {
		t.Skipf("skipping: could not connect to postgres: %v", err)
	}
	require.NoError(t, Migrate(context.Background(), db))
	t.Cleanup(func() { db.Close() })
	return db
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func truncate(t *testing.T, db *sql.DB) {
	t.Helper()
	_, err := db.Exec(`TRUNCATE recipes, inventory`)
	require.NoError(t, err)
}

func TestStore(t *testing.T) {
	db := setupTestDB(t)
	storagetest.Run(t, func(t *testing.T) storagetest.Store {
		truncate(t, db)
		return NewStore(db)
	})
}

func TestMigrateIsRepeatable(t *testing.T) {
	db := setupTestDB(t)
	require.NoError(t, Migrate(context.Background(), db))
}

func TestClosedDatabaseIsUnavailable(t *testing.T) {
	db := setupTestDB(t)
	s := NewStore(db)
	db.Close()

	_, err := s.LoadRecipes(context.Background())
	assert.ErrorIs(t, err, storage.ErrUnavailable)
	_, err = s.LoadInventory(context.Background())
	assert.ErrorIs(t, err, storage.ErrUnavailable)
}
