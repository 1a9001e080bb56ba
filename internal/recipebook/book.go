// internal/recipebook/book.go
package recipebook

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"coffeemaker/internal/recipe"
	"coffeemaker/internal/storage"

	"github.com/google/uuid"
)

// MaxRecipes is the number of recipes the machine can hold.
const MaxRecipes = 3

var (
	ErrCapacityExceeded = errors.New("recipe book is full")
	ErrDuplicateName    = errors.New("recipe with that name already exists")
	ErrNotFound         = errors.New("recipe not found")

	// ErrStale wraps a reload failure that followed a committed write. The write
	// landed; the in-memory list is reloaded before the next mutation.
	ErrStale = errors.New("recipe book out of date")
)

// Store persists recipes. Each call is expected to be committed when it returns.
type Store interface {
	LoadRecipes(ctx context.Context) ([]recipe.Recipe, error)
	SaveRecipe(ctx context.Context, r recipe.Recipe) error
	DeleteRecipe(ctx context.Context, r recipe.Recipe) error
	UpdateRecipe(ctx context.Context, r recipe.Recipe) error
}

// Book is the ordered, bounded recipe catalog. After every write the in-memory list
// is re-read from the store so that it always mirrors what was committed.
type Book struct {
	mu      sync.RWMutex
	recipes []recipe.Recipe
	store   Store
	stale   bool
}

// New loads the book from store.
func New(ctx context.Context, store Store) (*Book, error) {
	b := &Book{store: store}
	if err := b.Sync(ctx); err != nil {
		return nil, err
	}
	return b, nil
}

// Sync replaces the in-memory list with the store's.
func (b *Book) Sync(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.syncLocked(ctx)
}

// SyncIfStale reloads the list only when an earlier reload failed.
func (b *Book) SyncIfStale(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.freshLocked(ctx)
}

// Stale reports whether the last reload from the store failed.
func (b *Book) Stale() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.stale
}

// syncLocked keeps every stored recipe, even past MaxRecipes, so that each one stays
// reachable; Add refuses to grow such a book.
func (b *Book) syncLocked(ctx context.Context) error {
	recipes, err := b.store.LoadRecipes(ctx)
	if err != nil {
		b.stale = true
		return fmt.Errorf("load recipes: %w", err)
	}
	b.recipes = recipes
	b.stale = false
	return nil
}

// freshLocked reloads a list that missed a committed write. Every mutation calls it first.
func (b *Book) freshLocked(ctx context.Context) error {
	if !b.stale {
		return nil
	}
	return b.syncLocked(ctx)
}

func (b *Book) resyncAfterWrite(ctx context.Context, name string) error {
	if err := b.syncLocked(ctx); err != nil {
		return fmt.Errorf("%w: %q committed: %w", ErrStale, name, err)
	}
	return nil
}

// Recipes returns a copy of the recipes in insertion order.
func (b *Book) Recipes() []recipe.Recipe {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]recipe.Recipe, len(b.recipes))
	copy(out, b.recipes)
	return out
}

// Len returns the number of recipes held.
func (b *Book) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.recipes)
}

// Find returns the recipe called name, ignoring case.
func (b *Book) Find(name string) (recipe.Recipe, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	i := b.indexOfName(name)
	if i < 0 {
		return recipe.Recipe{}, false
	}
	return b.recipes[i], true
}

// At returns the recipe at position i.
func (b *Book) At(i int) (recipe.Recipe, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if i < 0 || i >= len(b.recipes) {
		return recipe.Recipe{}, fmt.Errorf("%w: no recipe at position %d", ErrNotFound, i)
	}
	return b.recipes[i], nil
}

func (b *Book) indexOfName(name string) int {
	for i, r := range b.recipes {
		if r.HasName(name) {
			return i
		}
	}
	return -1
}

// Add appends r. The returned recipe carries the identifier it was stored under; it is
// also returned alongside ErrStale, when the save committed but the reload failed.
func (b *Book) Add(ctx context.Context, r recipe.Recipe) (recipe.Recipe, error) {
	if err := r.Validate(); err != nil {
		return recipe.Recipe{}, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.freshLocked(ctx); err != nil {
		return recipe.Recipe{}, err
	}
	if len(b.recipes) >= MaxRecipes {
		return recipe.Recipe{}, fmt.Errorf("%w: cannot add %q to %d recipes", ErrCapacityExceeded, r.Name, len(b.recipes))
	}
	if b.indexOfName(r.Name) >= 0 {
		return recipe.Recipe{}, fmt.Errorf("%w: %q", ErrDuplicateName, r.Name)
	}

	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	if err := b.store.SaveRecipe(ctx, r); err != nil {
		if errors.Is(err, storage.ErrConflict) {
			return recipe.Recipe{}, fmt.Errorf("%w: %q", ErrDuplicateName, r.Name)
		}
		return recipe.Recipe{}, fmt.Errorf("save recipe: %w", err)
	}
	return r, b.resyncAfterWrite(ctx, r.Name)
}

// DeleteAt removes the recipe at position i and returns it, also alongside ErrStale.
func (b *Book) DeleteAt(ctx context.Context, i int) (recipe.Recipe, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.freshLocked(ctx); err != nil {
		return recipe.Recipe{}, err
	}
	if i < 0 || i >= len(b.recipes) {
		return recipe.Recipe{}, fmt.Errorf("%w: no recipe at position %d", ErrNotFound, i)
	}
	return b.deleteLocked(ctx, i)
}

// Delete removes r, matched by identifier or, failing that, by name.
func (b *Book) Delete(ctx context.Context, r recipe.Recipe) (recipe.Recipe, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.freshLocked(ctx); err != nil {
		return recipe.Recipe{}, err
	}

	i := -1
	if r.ID != uuid.Nil {
		for j, existing := range b.recipes {
			if existing.ID == r.ID {
				i = j
				break
			}
		}
	}
	if i < 0 {
		i = b.indexOfName(r.Name)
	}
	if i < 0 {
		return recipe.Recipe{}, fmt.Errorf("%w: %q", ErrNotFound, r.Name)
	}
	return b.deleteLocked(ctx, i)
}

func (b *Book) deleteLocked(ctx context.Context, i int) (recipe.Recipe, error) {
	target := b.recipes[i]
	if err := b.store.DeleteRecipe(ctx, target); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			// Gone from the store already; converge on its view.
			if syncErr := b.syncLocked(ctx); syncErr != nil {
				return recipe.Recipe{}, syncErr
			}
			return recipe.Recipe{}, fmt.Errorf("%w: %q", ErrNotFound, target.Name)
		}
		return recipe.Recipe{}, fmt.Errorf("delete recipe: %w", err)
	}
	return target, b.resyncAfterWrite(ctx, target.Name)
}

// Edit overwrites the recipe at position i with the fields of r and returns the
// resulting name, which is also returned alongside ErrStale.
func (b *Book) Edit(ctx context.Context, i int, r recipe.Recipe) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.freshLocked(ctx); err != nil {
		return "", err
	}
	if i < 0 || i >= len(b.recipes) {
		return "", fmt.Errorf("%w: no recipe at position %d", ErrNotFound, i)
	}
	return b.editLocked(ctx, i, r)
}

// EditByName is Edit addressed by the current name of the recipe.
func (b *Book) EditByName(ctx context.Context, name string, r recipe.Recipe) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.freshLocked(ctx); err != nil {
		return "", err
	}
	i := b.indexOfName(name)
	if i < 0 {
		return "", fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	return b.editLocked(ctx, i, r)
}

func (b *Book) editLocked(ctx context.Context, i int, r recipe.Recipe) (string, error) {
	if j := b.indexOfName(r.Name); j >= 0 && j != i {
		return "", fmt.Errorf("%w: %q", ErrDuplicateName, r.Name)
	}

	updated := b.recipes[i]
	if err := updated.Update(r); err != nil {
		return "", err
	}
	if err := b.store.UpdateRecipe(ctx, updated); err != nil {
		switch {
		case errors.Is(err, storage.ErrConflict):
			return "", fmt.Errorf("%w: %q", ErrDuplicateName, r.Name)
		case errors.Is(err, storage.ErrNotFound):
			if syncErr := b.syncLocked(ctx); syncErr != nil {
				return "", syncErr
			}
			return "", fmt.Errorf("%w: %q", ErrNotFound, updated.Name)
		}
		return "", fmt.Errorf("update recipe: %w", err)
	}
	return updated.Name, b.resyncAfterWrite(ctx, updated.Name)
}
