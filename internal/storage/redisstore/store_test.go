package redisstore

import (
	"context"
	"os"
	"testing"

	"coffeemaker/internal/ingredient"
	"coffeemaker/internal/storage"
	"coffeemaker/internal/storage/storagetest"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestClient connects to REDIS_ADDR and skips the test when nothing answers.
func setupTestClient(t *testing.T) *redis.Client {
	t.Helper()
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}
	client, err := Open(context.Background(), addr)
	if err != nil {
		t.Skipf("skipping: could not connect to redis: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

func newTestStore(t *testing.T, client *redis.Client) *Store {
	t.Helper()
	s := NewStore(client, "coffeemaker-test-"+uuid.NewString())
	t.Cleanup(func() { _ = s.Clear(context.Background()) })
	return s
}

func TestStore(t *testing.T) {
	client := setupTestClient(t)
	storagetest.Run(t, func(t *testing.T) storagetest.Store {
		return newTestStore(t, client)
	})
}

func TestStoresArePrefixed(t *testing.T) {
	client := setupTestClient(t)
	ctx := context.Background()
	a := newTestStore(t, client)
	b := newTestStore(t, client)

	require.NoError(t, a.SaveInventory(ctx, ingredient.Uniform(3)))
	_, err := b.LoadInventory(ctx)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestClosedClientIsUnavailable(t *testing.T) {
	client := setupTestClient(t)
	s := NewStore(client, "coffeemaker-test-"+uuid.NewString())
	require.NoError(t, client.Close())

	_, err := s.LoadRecipes(context.Background())
	assert.ErrorIs(t, err, storage.ErrUnavailable)
}
