// internal/storage/memory/store.go
package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"coffeemaker/internal/ingredient"
	"coffeemaker/internal/recipe"
	"coffeemaker/internal/storage"
)

// Store keeps recipes and inventory levels in process memory. It satisfies the
// recipe book and inventory store contracts and can be told to fail, which lets
// tests exercise the store-unavailable paths.
type Store struct {
	mu        sync.RWMutex
	recipes   []recipe.Recipe
	levels    ingredient.Amounts
	hasLevels bool
	failure   error
}

func NewStore() *Store {
	return &Store{}
}

// FailWith makes every following call return err wrapped as storage.ErrUnavailable.
// A nil err restores normal operation.
func (s *Store) FailWith(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failure = err
}

func (s *Store) check(op string) error {
	if s.failure != nil {
		return storage.Unavailable(op, s.failure)
	}
	return nil
}

func (s *Store) LoadRecipes(ctx context.Context) ([]recipe.Recipe, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check("load recipes"); err != nil {
		return nil, err
	}
	out := make([]recipe.Recipe, len(s.recipes))
	copy(out, s.recipes)
	return out, nil
}

func (s *Store) SaveRecipe(ctx context.Context, r recipe.Recipe) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check("save recipe"); err != nil {
		return err
	}
	for _, existing := range s.recipes {
		if existing.ID == r.ID || existing.HasName(r.Name) {
			return fmt.Errorf("save recipe %q: %w", r.Name, storage.ErrConflict)
		}
	}
	s.recipes = append(s.recipes, r)
	return nil
}

func (s *Store) UpdateRecipe(ctx context.Context, r recipe.Recipe) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check("update recipe"); err != nil {
		return err
	}
	idx := -1
	for i, existing := range s.recipes {
		if existing.ID == r.ID {
			idx = i
			continue
		}
		if existing.HasName(r.Name) {
			return fmt.Errorf("update recipe %q: %w", r.Name, storage.ErrConflict)
		}
	}
	if idx < 0 {
		return fmt.Errorf("update recipe %s: %w", r.ID, storage.ErrNotFound)
	}
	s.recipes[idx] = r
	return nil
}

func (s *Store) DeleteRecipe(ctx context.Context, r recipe.Recipe) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check("delete recipe"); err != nil {
		return err
	}
	for i, existing := range s.recipes {
		if existing.ID == r.ID {
			s.recipes = append(s.recipes[:i], s.recipes[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("delete recipe %s: %w", r.ID, storage.ErrNotFound)
}

func (s *Store) LoadInventory(ctx context.Context) (ingredient.Amounts, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check("load inventory"); err != nil {
		return ingredient.Amounts{}, err
	}
	if !s.hasLevels {
		return ingredient.Amounts{}, fmt.Errorf("load inventory: %w", storage.ErrNotFound)
	}
	return s.levels, nil
}

func (s *Store) SaveInventory(ctx context.Context, levels ingredient.Amounts) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check("save inventory"); err != nil {
		return err
	}
	s.levels = levels
	s.hasLevels = true
	return nil
}

// RecipeNames lists stored names in order; handy for assertions.
func (s *Store) RecipeNames() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.recipes))
	for _, r := range s.recipes {
		names = append(names, strings.TrimSpace(r.Name))
	}
	return names
}
