package chaos

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"coffeemaker/internal/clients"
	"coffeemaker/internal/coffeemaker"
	"coffeemaker/internal/ingredient"
	"coffeemaker/internal/inventory"
	"coffeemaker/internal/platform/logger"
	"coffeemaker/internal/recipebook"
	"coffeemaker/internal/storage/memory"
	"coffeemaker/pkg/eventstore"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startMachine(t *testing.T, levels ingredient.Amounts) *clients.CoffeeMakerClient {
	t.Helper()
	ctx := context.Background()
	store := memory.NewStore()
	inv, err := inventory.New(store, levels)
	require.NoError(t, err)
	require.NoError(t, inv.Load(ctx))
	book, err := recipebook.New(ctx, store)
	require.NoError(t, err)

	svc := coffeemaker.NewService(book, inv, eventstore.NewMemoryStore(), logger.Nop())
	srv := httptest.NewServer(coffeemaker.NewRouter(coffeemaker.NewHandler(svc, logger.Nop()), logger.Nop(), nil))
	t.Cleanup(srv.Close)
	return clients.NewCoffeeMakerClient(srv.URL, srv.Client())
}

var quick = ExperimentConfig{Concurrency: 20, Duration: 20 * time.Millisecond}

var _ Machine = (*clients.CoffeeMakerClient)(nil)

func TestConcurrentPurchaseRace(t *testing.T) {
	client := startMachine(t, ingredient.Uniform(15))
	e := newTestEngine()

	result, err := e.RunExperiment(context.Background(), ConcurrentPurchaseRace(client, quick))
	require.NoError(t, err)
	assert.True(t, result.HypothesisHeld, "failed: %v", result.FailedAssertions)
	assert.Empty(t, result.ErrorEvents)

	// Rollback restored the stock and removed the recipe.
	levels, err := client.Inventory(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ingredient.Uniform(15), levels)
	recipes, err := client.ListRecipes(context.Background())
	require.NoError(t, err)
	assert.Empty(t, recipes)
}

func TestRecipeBookCapacity(t *testing.T) {
	client := startMachine(t, ingredient.Uniform(15))
	e := newTestEngine()

	result, err := e.RunExperiment(context.Background(), RecipeBookCapacity(client, quick))
	require.NoError(t, err)
	assert.True(t, result.HypothesisHeld, "failed: %v", result.FailedAssertions)
	obs := result.Observations["recipe_count"]
	require.NotEmpty(t, obs)
	assert.Equal(t, float64(recipebook.MaxRecipes), obs[len(obs)-1].Value)

	recipes, err := client.ListRecipes(context.Background())
	require.NoError(t, err)
	assert.Empty(t, recipes)
}

func TestInvalidReplenish(t *testing.T) {
	client := startMachine(t, ingredient.Uniform(15))
	e := newTestEngine()

	result, err := e.RunExperiment(context.Background(), InvalidReplenish(client, quick))
	require.NoError(t, err)
	assert.True(t, result.HypothesisHeld, "failed: %v", result.FailedAssertions)
	assert.Empty(t, result.ErrorEvents)
}

func TestRegisterExperiments(t *testing.T) {
	client := startMachine(t, ingredient.Uniform(15))
	e := newTestEngine()
	e.RegisterExperiments(client, quick)

	var names []string
	for _, exp := range e.Experiments() {
		names = append(names, exp.Name)
	}
	assert.Equal(t, []string{"concurrent-purchase-race", "recipe-book-capacity", "invalid-replenish"}, names)
}
