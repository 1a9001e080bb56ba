// internal/coffeemaker/domain.go
package coffeemaker

import (
	"coffeemaker/internal/ingredient"

	"github.com/google/uuid"
)

// Aggregate types used in the journal.
const (
	AggregateRecipe    = "recipe"
	AggregateInventory = "inventory"
	AggregatePurchase  = "purchase"
)

// Reasons a purchase is declined. Both hand the full payment back.
const (
	DeclineInsufficientPayment   = "insufficient_payment"
	DeclineInsufficientInventory = "insufficient_inventory"
)

// RecipeAddedEvent is journaled when a recipe joins the book.
type RecipeAddedEvent struct {
	ID    uuid.UUID `json:"id"`
	Name  string    `json:"name"`
	Price int       `json:"price"`
	ingredient.Amounts
}

// RecipeUpdatedEvent is journaled when a recipe is edited in place.
type RecipeUpdatedEvent struct {
	ID           uuid.UUID `json:"id"`
	PreviousName string    `json:"previous_name"`
	Name         string    `json:"name"`
	Price        int       `json:"price"`
	ingredient.Amounts
}

// RecipeDeletedEvent is journaled when a recipe leaves the book.
type RecipeDeletedEvent struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
}

// InventoryReplenishedEvent is journaled after stock is added.
type InventoryReplenishedEvent struct {
	Added  ingredient.Amounts `json:"added"`
	Levels ingredient.Amounts `json:"levels"`
}

// CoffeePurchasedEvent is journaled when a beverage is made.
type CoffeePurchasedEvent struct {
	Recipe     string             `json:"recipe"`
	Price      int                `json:"price"`
	AmountPaid int                `json:"amount_paid"`
	Change     int                `json:"change"`
	Used       ingredient.Amounts `json:"used"`
}

// PurchaseDeclinedEvent is journaled when the money is handed back.
type PurchaseDeclinedEvent struct {
	Recipe     string `json:"recipe"`
	Price      int    `json:"price"`
	AmountPaid int    `json:"amount_paid"`
	Reason     string `json:"reason"`
}
