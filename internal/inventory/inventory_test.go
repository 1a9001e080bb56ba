package inventory

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"coffeemaker/internal/ingredient"
	"coffeemaker/internal/storage"
	"coffeemaker/internal/storage/memory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"pgregory.net/rapid"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newInventory(t testing.TB, levels ingredient.Amounts) (*Inventory, *memory.Store) {
	t.Helper()
	store := memory.NewStore()
	inv, err := New(store, levels)
	require.NoError(t, err)
	require.NoError(t, inv.Load(context.Background()))
	return inv, store
}

func TestLoadSeedsEmptyStore(t *testing.T) {
	inv, store := newInventory(t, ingredient.Uniform(DefaultStock))

	stored, err := store.LoadInventory(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ingredient.Uniform(DefaultStock), stored)
	assert.Equal(t, stored, inv.Snapshot())
}

func TestLoadPrefersStoredLevels(t *testing.T) {
	store := memory.NewStore()
	require.NoError(t, store.SaveInventory(context.Background(), ingredient.Amounts{Coffee: 2}))

	inv, err := New(store, ingredient.Uniform(DefaultStock))
	require.NoError(t, err)
	require.NoError(t, inv.Load(context.Background()))
	assert.Equal(t, ingredient.Amounts{Coffee: 2}, inv.Snapshot())
}

func TestNewRejectsNegativeInitialStock(t *testing.T) {
	_, err := New(memory.NewStore(), ingredient.Amounts{Milk: -1})
	assert.ErrorIs(t, err, ingredient.ErrInvalidQuantity)
}

func TestReplenishAddsToEveryCounter(t *testing.T) {
	inv, _ := newInventory(t, ingredient.Uniform(15))

	levels, err := inv.Replenish(context.Background(), ingredient.Amounts{Coffee: 5, Milk: 3, Sugar: 7, Chocolate: 2})
	require.NoError(t, err)
	assert.Equal(t, ingredient.Amounts{Coffee: 20, Milk: 18, Sugar: 22, Chocolate: 17}, levels)
	assert.Equal(t, levels, inv.Snapshot())
}

func TestReplenishNegativeIsAllOrNothing(t *testing.T) {
	inv, store := newInventory(t, ingredient.Uniform(15))

	_, err := inv.Replenish(context.Background(), ingredient.Amounts{Coffee: -1})
	assert.ErrorIs(t, err, ingredient.ErrInvalidQuantity)
	assert.Equal(t, ingredient.Uniform(15), inv.Snapshot())

	_, err = inv.Replenish(context.Background(), ingredient.Amounts{Coffee: 5, Milk: 5, Sugar: 5, Chocolate: -3})
	assert.ErrorIs(t, err, ingredient.ErrInvalidQuantity)
	assert.Equal(t, ingredient.Uniform(15), inv.Snapshot())

	stored, err := store.LoadInventory(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ingredient.Uniform(15), stored)
}

func TestReplenishStoreFailureKeepsLevels(t *testing.T) {
	inv, store := newInventory(t, ingredient.Uniform(15))
	store.FailWith(errors.New("connection refused"))

	_, err := inv.Replenish(context.Background(), ingredient.Uniform(1))
	assert.ErrorIs(t, err, storage.ErrUnavailable)
	assert.Equal(t, ingredient.Uniform(15), inv.Snapshot())
}

func TestConsume(t *testing.T) {
	inv, _ := newInventory(t, ingredient.Uniform(15))
	mocha := ingredient.Amounts{Coffee: 3, Milk: 1, Sugar: 1, Chocolate: 2}

	ok, err := inv.Consume(context.Background(), mocha)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, ingredient.Amounts{Coffee: 12, Milk: 14, Sugar: 14, Chocolate: 13}, inv.Snapshot())
}

func TestConsumeInsufficientLeavesStock(t *testing.T) {
	inv, _ := newInventory(t, ingredient.Amounts{Coffee: 2, Milk: 15, Sugar: 15, Chocolate: 15})

	assert.False(t, inv.CanFulfill(ingredient.Amounts{Coffee: 3}))
	ok, err := inv.Consume(context.Background(), ingredient.Amounts{Coffee: 3})
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, ingredient.Amounts{Coffee: 2, Milk: 15, Sugar: 15, Chocolate: 15}, inv.Snapshot())
}

func TestConsumeStoreFailureKeepsLevels(t *testing.T) {
	inv, store := newInventory(t, ingredient.Uniform(15))
	store.FailWith(errors.New("timeout"))

	ok, err := inv.Consume(context.Background(), ingredient.Uniform(1))
	assert.False(t, ok)
	assert.ErrorIs(t, err, storage.ErrUnavailable)
	assert.Equal(t, ingredient.Uniform(15), inv.Snapshot())
}

func TestRefreshPicksUpOutOfBandChanges(t *testing.T) {
	inv, store := newInventory(t, ingredient.Uniform(15))
	require.NoError(t, store.SaveInventory(context.Background(), ingredient.Uniform(4)))

	require.NoError(t, inv.Refresh(context.Background()))
	assert.Equal(t, ingredient.Uniform(4), inv.Snapshot())
}

func TestRefreshRejectsNegativeStoredLevels(t *testing.T) {
	inv, store := newInventory(t, ingredient.Uniform(15))
	require.NoError(t, store.SaveInventory(context.Background(), ingredient.Amounts{Sugar: -2}))

	assert.ErrorIs(t, inv.Refresh(context.Background()), ingredient.ErrInvalidQuantity)
	assert.Equal(t, ingredient.Uniform(15), inv.Snapshot())
}

func TestRefreshAndConsumeWorksOnStoredLevels(t *testing.T) {
	inv, store := newInventory(t, ingredient.Uniform(15))
	require.NoError(t, store.SaveInventory(context.Background(), ingredient.Uniform(4)))

	ok, err := inv.RefreshAndConsume(context.Background(), ingredient.Amounts{Coffee: 3, Milk: 1})
	require.NoError(t, err)
	assert.True(t, ok)

	stored, err := store.LoadInventory(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ingredient.Amounts{Coffee: 1, Milk: 3, Sugar: 4, Chocolate: 4}, stored)
	assert.Equal(t, stored, inv.Snapshot())

	ok, err = inv.RefreshAndConsume(context.Background(), ingredient.Amounts{Coffee: 3})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRefreshAndConsumeStoreDown(t *testing.T) {
	inv, store := newInventory(t, ingredient.Uniform(15))
	store.FailWith(errors.New("timeout"))

	ok, err := inv.RefreshAndConsume(context.Background(), ingredient.Amounts{Coffee: 1})
	assert.ErrorIs(t, err, storage.ErrUnavailable)
	assert.False(t, ok)
	assert.Equal(t, ingredient.Uniform(15), inv.Snapshot())
}

func TestRefreshAndReplenishAddsToStoredLevels(t *testing.T) {
	inv, store := newInventory(t, ingredient.Uniform(15))
	require.NoError(t, store.SaveInventory(context.Background(), ingredient.Uniform(2)))

	levels, err := inv.RefreshAndReplenish(context.Background(), ingredient.Amounts{Milk: 5})
	require.NoError(t, err)
	assert.Equal(t, ingredient.Amounts{Coffee: 2, Milk: 7, Sugar: 2, Chocolate: 2}, levels)

	_, err = inv.RefreshAndReplenish(context.Background(), ingredient.Amounts{Sugar: -1})
	assert.ErrorIs(t, err, ingredient.ErrInvalidQuantity)
	assert.Equal(t, levels, inv.Snapshot())
}

func TestConcurrentRefreshingPurchasesAndRestocksBalance(t *testing.T) {
	inv, store := newInventory(t, ingredient.Uniform(10))

	var wg sync.WaitGroup
	var made atomic.Int64
	for i := 0; i < 30; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			ok, err := inv.RefreshAndConsume(context.Background(), ingredient.Amounts{Coffee: 1})
			assert.NoError(t, err)
			if ok {
				made.Add(1)
			}
		}()
		go func() {
			defer wg.Done()
			_, err := inv.RefreshAndReplenish(context.Background(), ingredient.Amounts{Coffee: 1})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	stored, err := store.LoadInventory(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 10+30-int(made.Load()), stored.Coffee)
	assert.GreaterOrEqual(t, stored.Coffee, 0)
}

func TestConcurrentConsumeNeverOversells(t *testing.T) {
	inv, _ := newInventory(t, ingredient.Amounts{Coffee: 10, Milk: 10, Sugar: 10, Chocolate: 10})
	need := ingredient.Amounts{Coffee: 3, Milk: 1, Sugar: 1, Chocolate: 2}

	var wg sync.WaitGroup
	var served atomic.Int32
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := inv.Consume(context.Background(), need)
			if err == nil && ok {
				served.Add(1)
			}
			snap := inv.Snapshot()
			assert.NoError(t, snap.Validate())
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(3), served.Load())
	assert.Equal(t, ingredient.Amounts{Coffee: 1, Milk: 7, Sugar: 7, Chocolate: 4}, inv.Snapshot())
}

func TestConsumeProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		qty := rapid.IntRange(0, 30)
		start := ingredient.Amounts{Coffee: qty.Draw(t, "coffee"), Milk: qty.Draw(t, "milk"), Sugar: qty.Draw(t, "sugar"), Chocolate: qty.Draw(t, "chocolate")}
		need := ingredient.Amounts{Coffee: qty.Draw(t, "needCoffee"), Milk: qty.Draw(t, "needMilk"), Sugar: qty.Draw(t, "needSugar"), Chocolate: qty.Draw(t, "needChocolate")}

		inv, err := New(memory.NewStore(), start)
		if err != nil {
			t.Fatal(err)
		}
		ok, err := inv.Consume(context.Background(), need)
		if err != nil {
			t.Fatal(err)
		}

		if ok != start.Covers(need) {
			t.Fatalf("consume=%v but covers=%v for stock %+v need %+v", ok, start.Covers(need), start, need)
		}
		want := start
		if ok {
			want = start.Sub(need)
		}
		if got := inv.Snapshot(); got != want {
			t.Fatalf("stock = %+v, want %+v", got, want)
		}
	})
}

func TestReplenishProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		qty := rapid.IntRange(-5, 30)
		add := ingredient.Amounts{Coffee: qty.Draw(t, "coffee"), Milk: qty.Draw(t, "milk"), Sugar: qty.Draw(t, "sugar"), Chocolate: qty.Draw(t, "chocolate")}

		inv, err := New(memory.NewStore(), ingredient.Uniform(15))
		if err != nil {
			t.Fatal(err)
		}
		_, err = inv.Replenish(context.Background(), add)

		if add.Validate() != nil {
			if !errors.Is(err, ingredient.ErrInvalidQuantity) {
				t.Fatalf("expected invalid quantity for %+v, got %v", add, err)
			}
			if inv.Snapshot() != ingredient.Uniform(15) {
				t.Fatalf("rejected replenish changed stock to %+v", inv.Snapshot())
			}
			return
		}
		if err != nil {
			t.Fatal(err)
		}
		if got, want := inv.Snapshot(), ingredient.Uniform(15).Add(add); got != want {
			t.Fatalf("stock = %+v, want %+v", got, want)
		}
	})
}
