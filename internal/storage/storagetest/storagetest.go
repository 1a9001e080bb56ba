// internal/storage/storagetest/storagetest.go
package storagetest

import (
	"context"
	"testing"

	"coffeemaker/internal/ingredient"
	"coffeemaker/internal/recipe"
	"coffeemaker/internal/storage"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Store is the persistence surface every backend implements.
type Store interface {
	LoadRecipes(ctx context.Context) ([]recipe.Recipe, error)
	SaveRecipe(ctx context.Context, r recipe.Recipe) error
	UpdateRecipe(ctx context.Context, r recipe.Recipe) error
	DeleteRecipe(ctx context.Context, r recipe.Recipe) error
	LoadInventory(ctx context.Context) (ingredient.Amounts, error)
	SaveInventory(ctx context.Context, levels ingredient.Amounts) error
}

func newRecipe(t *testing.T, name string, price int) recipe.Recipe {
	t.Helper()
	r, err := recipe.New(name, price, 3, 1, 1, 2)
	require.NoError(t, err)
	r.ID = uuid.New()
	return r
}

// Run checks the behaviour the recipe book and inventory rely on. newStore must return
// an empty store.
func Run(t *testing.T, newStore func(t *testing.T) Store) {
	t.Run("recipes keep insertion order", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		for i, name := range []string{"Mocha", "Latte", "Americano"} {
			require.NoError(t, s.SaveRecipe(ctx, newRecipe(t, name, 10*(i+1))))
		}
		got, err := s.LoadRecipes(ctx)
		require.NoError(t, err)
		require.Len(t, got, 3)
		assert.Equal(t, "Mocha", got[0].Name)
		assert.Equal(t, "Latte", got[1].Name)
		assert.Equal(t, "Americano", got[2].Name)
		assert.Equal(t, ingredient.Amounts{Coffee: 3, Milk: 1, Sugar: 1, Chocolate: 2}, got[0].Amounts)
		assert.Equal(t, 20, got[1].Price)
	})

	t.Run("empty store has no recipes", func(t *testing.T) {
		s := newStore(t)
		got, err := s.LoadRecipes(context.Background())
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("names are unique ignoring case", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		require.NoError(t, s.SaveRecipe(ctx, newRecipe(t, "Mocha", 50)))
		err := s.SaveRecipe(ctx, newRecipe(t, "MOCHA", 50))
		assert.ErrorIs(t, err, storage.ErrConflict)

		got, err := s.LoadRecipes(ctx)
		require.NoError(t, err)
		assert.Len(t, got, 1)
	})

	t.Run("update keeps position", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		first := newRecipe(t, "Mocha", 50)
		second := newRecipe(t, "Latte", 40)
		require.NoError(t, s.SaveRecipe(ctx, first))
		require.NoError(t, s.SaveRecipe(ctx, second))

		first.Name = "Hot Chocolate"
		first.Price = 35
		require.NoError(t, s.UpdateRecipe(ctx, first))

		got, err := s.LoadRecipes(ctx)
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, first.ID, got[0].ID)
		assert.Equal(t, "Hot Chocolate", got[0].Name)
		assert.Equal(t, 35, got[0].Price)

		second.Name = "hot chocolate"
		assert.ErrorIs(t, s.UpdateRecipe(ctx, second), storage.ErrConflict)

		assert.ErrorIs(t, s.UpdateRecipe(ctx, newRecipe(t, "Ghost", 1)), storage.ErrNotFound)
	})

	t.Run("delete", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		r := newRecipe(t, "Mocha", 50)
		require.NoError(t, s.SaveRecipe(ctx, r))
		require.NoError(t, s.DeleteRecipe(ctx, r))
		assert.ErrorIs(t, s.DeleteRecipe(ctx, r), storage.ErrNotFound)

		got, err := s.LoadRecipes(ctx)
		require.NoError(t, err)
		assert.Empty(t, got)

		// The name is free again.
		require.NoError(t, s.SaveRecipe(ctx, newRecipe(t, "mocha", 50)))
	})

	t.Run("inventory round trip", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		_, err := s.LoadInventory(ctx)
		assert.ErrorIs(t, err, storage.ErrNotFound)

		levels := ingredient.Amounts{Coffee: 15, Milk: 4, Sugar: 0, Chocolate: 9}
		require.NoError(t, s.SaveInventory(ctx, levels))
		got, err := s.LoadInventory(ctx)
		require.NoError(t, err)
		assert.Equal(t, levels, got)

		levels.Coffee = 3
		require.NoError(t, s.SaveInventory(ctx, levels))
		got, err = s.LoadInventory(ctx)
		require.NoError(t, err)
		assert.Equal(t, levels, got)
	})
}
