// internal/recipe/domain.go
package recipe

import (
	"errors"
	"fmt"
	"strings"

	"coffeemaker/internal/ingredient"

	"github.com/google/uuid"
)

// ErrInvalidRecipe is returned for recipes that cannot be stored, such as one without a name.
var ErrInvalidRecipe = errors.New("invalid recipe")

// Recipe is a named beverage formula with a price and the ingredients needed to make it.
// Recipes are values: the book hands out copies, and changes go through Update.
type Recipe struct {
	ID    uuid.UUID `json:"-"`
	Name  string    `json:"name"`
	Price int       `json:"price"`
	ingredient.Amounts
}

// New builds a validated recipe.
func New(name string, price, coffee, milk, sugar, chocolate int) (Recipe, error) {
	r := Recipe{
		Name:  strings.TrimSpace(name),
		Price: price,
		Amounts: ingredient.Amounts{
			Coffee:    coffee,
			Milk:      milk,
			Sugar:     sugar,
			Chocolate: chocolate,
		},
	}
	if err := r.Validate(); err != nil {
		return Recipe{}, err
	}
	return r, nil
}

// Validate checks the name and that all five numeric fields are non-negative.
func (r Recipe) Validate() error {
	if strings.TrimSpace(r.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidRecipe)
	}
	if r.Price < 0 {
		return fmt.Errorf("%w: price must be a non-negative integer", ingredient.ErrInvalidQuantity)
	}
	return r.Amounts.Validate()
}

// Requirements returns the ingredient amounts one serving consumes.
func (r Recipe) Requirements() ingredient.Amounts {
	return r.Amounts
}

// HasName reports whether the recipe is called name, ignoring case and surrounding space.
func (r Recipe) HasName(name string) bool {
	return strings.EqualFold(strings.TrimSpace(r.Name), strings.TrimSpace(name))
}

// Update replaces the name, price and ingredients with those of other. The identifier is kept.
// Nothing changes when other is invalid.
func (r *Recipe) Update(other Recipe) error {
	if err := other.Validate(); err != nil {
		return err
	}
	r.Name = strings.TrimSpace(other.Name)
	r.Price = other.Price
	r.Amounts = other.Amounts
	return nil
}
