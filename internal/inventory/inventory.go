// internal/inventory/inventory.go
package inventory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"coffeemaker/internal/ingredient"
	"coffeemaker/internal/storage"
)

// DefaultStock is the level of every ingredient in a freshly provisioned machine.
const DefaultStock = 15

// Store persists the inventory levels. LoadInventory returns storage.ErrNotFound when
// nothing has been saved yet.
type Store interface {
	LoadInventory(ctx context.Context) (ingredient.Amounts, error)
	SaveInventory(ctx context.Context, levels ingredient.Amounts) error
}

// Inventory is the shared ingredient stock. All writes hold the lock for the whole
// check-persist-apply sequence, so counters never go negative and a concurrent
// consume cannot spend stock another consume already took.
type Inventory struct {
	mu     sync.RWMutex
	levels ingredient.Amounts
	store  Store
}

// New returns an inventory backed by store and starting at initial. Call Load to pick up
// levels that are already persisted.
func New(store Store, initial ingredient.Amounts) (*Inventory, error) {
	if err := initial.Validate(); err != nil {
		return nil, err
	}
	return &Inventory{levels: initial, store: store}, nil
}

// Load reads the persisted levels, seeding the store with the current levels when it is empty.
func (inv *Inventory) Load(ctx context.Context) error {
	inv.mu.Lock()
	defer inv.mu.Unlock()

	levels, err := inv.store.LoadInventory(ctx)
	if errors.Is(err, storage.ErrNotFound) {
		if err := inv.store.SaveInventory(ctx, inv.levels); err != nil {
			return fmt.Errorf("seed inventory: %w", err)
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("load inventory: %w", err)
	}
	if err := levels.Validate(); err != nil {
		return fmt.Errorf("stored inventory: %w", err)
	}
	inv.levels = levels
	return nil
}

// Refresh replaces the in-memory levels with the persisted ones.
func (inv *Inventory) Refresh(ctx context.Context) error {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	return inv.refreshLocked(ctx)
}

func (inv *Inventory) refreshLocked(ctx context.Context) error {
	levels, err := inv.store.LoadInventory(ctx)
	if err != nil {
		return fmt.Errorf("refresh inventory: %w", err)
	}
	if err := levels.Validate(); err != nil {
		return fmt.Errorf("stored inventory: %w", err)
	}
	inv.levels = levels
	return nil
}

// Replenish adds amounts to every counter. A negative amount rejects the whole call.
func (inv *Inventory) Replenish(ctx context.Context, amounts ingredient.Amounts) (ingredient.Amounts, error) {
	if err := amounts.Validate(); err != nil {
		return inv.Snapshot(), err
	}

	inv.mu.Lock()
	defer inv.mu.Unlock()
	return inv.replenishLocked(ctx, amounts)
}

// RefreshAndReplenish is Replenish applied to freshly read levels under one lock.
func (inv *Inventory) RefreshAndReplenish(ctx context.Context, amounts ingredient.Amounts) (ingredient.Amounts, error) {
	if err := amounts.Validate(); err != nil {
		return inv.Snapshot(), err
	}

	inv.mu.Lock()
	defer inv.mu.Unlock()

	if err := inv.refreshLocked(ctx); err != nil {
		return inv.levels, err
	}
	return inv.replenishLocked(ctx, amounts)
}

func (inv *Inventory) replenishLocked(ctx context.Context, amounts ingredient.Amounts) (ingredient.Amounts, error) {
	next := inv.levels.Add(amounts)
	if err := inv.store.SaveInventory(ctx, next); err != nil {
		return inv.levels, fmt.Errorf("replenish inventory: %w", err)
	}
	inv.levels = next
	return next, nil
}

// CanFulfill reports whether the stock covers need.
func (inv *Inventory) CanFulfill(need ingredient.Amounts) bool {
	inv.mu.RLock()
	defer inv.mu.RUnlock()
	return inv.levels.Covers(need)
}

// Consume takes need out of the stock if every counter covers it. It returns false and
// leaves the stock alone otherwise.
func (inv *Inventory) Consume(ctx context.Context, need ingredient.Amounts) (bool, error) {
	if err := need.Validate(); err != nil {
		return false, err
	}

	inv.mu.Lock()
	defer inv.mu.Unlock()
	return inv.consumeLocked(ctx, need)
}

func (inv *Inventory) consumeLocked(ctx context.Context, need ingredient.Amounts) (bool, error) {
	if !inv.levels.Covers(need) {
		return false, nil
	}
	next := inv.levels.Sub(need)
	if err := inv.store.SaveInventory(ctx, next); err != nil {
		return false, fmt.Errorf("consume inventory: %w", err)
	}
	inv.levels = next
	return true, nil
}

// RefreshAndConsume re-reads the persisted levels and consumes need from them in the
// same critical section, so the saved levels are always derived from the ones just read.
func (inv *Inventory) RefreshAndConsume(ctx context.Context, need ingredient.Amounts) (bool, error) {
	if err := need.Validate(); err != nil {
		return false, err
	}

	inv.mu.Lock()
	defer inv.mu.Unlock()

	if err := inv.refreshLocked(ctx); err != nil {
		return false, err
	}
	return inv.consumeLocked(ctx, need)
}

// Snapshot returns a copy of the current levels.
func (inv *Inventory) Snapshot() ingredient.Amounts {
	inv.mu.RLock()
	defer inv.mu.RUnlock()
	return inv.levels
}
