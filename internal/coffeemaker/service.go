// internal/coffeemaker/service.go
package coffeemaker

import (
	"context"
	"errors"

	"coffeemaker/internal/ingredient"
	"coffeemaker/internal/recipe"
	"coffeemaker/pkg/eventstore"

	"github.com/google/uuid"
)

// ErrRecipeNotFound is returned when a purchase names a recipe the book does not hold.
var ErrRecipeNotFound = errors.New("recipe not found")

// Journal records domain events. Both eventstore.EventStore and eventstore.MemoryStore satisfy it.
type Journal interface {
	AppendEvents(ctx context.Context, aggregateID uuid.UUID, aggregateType string, expectedVersion int, events []eventstore.Event) error
	GetCurrentVersion(ctx context.Context, aggregateID uuid.UUID) (int, error)
	StreamEvents(ctx context.Context, fromID int64, batchSize int) ([]eventstore.Event, error)
}

// Service defines the operations of the coffee maker.
type Service interface {
	Purchase(ctx context.Context, name string, amountPaid int) (int, error)
	PurchaseAt(ctx context.Context, index int, amountPaid int) (int, error)

	ListRecipes(ctx context.Context) []recipe.Recipe
	GetRecipe(ctx context.Context, name string) (recipe.Recipe, error)
	AddRecipe(ctx context.Context, r recipe.Recipe) (recipe.Recipe, error)
	DeleteRecipe(ctx context.Context, name string) error
	EditRecipe(ctx context.Context, index int, r recipe.Recipe) (string, error)
	UpdateRecipe(ctx context.Context, name string, r recipe.Recipe) (string, error)

	Inventory(ctx context.Context) (ingredient.Amounts, error)
	Replenish(ctx context.Context, amounts ingredient.Amounts) (ingredient.Amounts, error)

	Events(ctx context.Context, afterID int64, limit int) ([]eventstore.Event, error)
}
