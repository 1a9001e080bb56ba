package chaos

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"coffeemaker/internal/coffeemaker"
	"coffeemaker/internal/ingredient"
	"coffeemaker/internal/recipe"
	"coffeemaker/internal/recipebook"

	"github.com/google/uuid"
)

// Machine is the part of the coffee maker API the experiments drive.
// clients.CoffeeMakerClient implements it.
type Machine interface {
	MakeCoffee(ctx context.Context, name string, amountPaid int) (int, error)
	ListRecipes(ctx context.Context) ([]recipe.Recipe, error)
	AddRecipe(ctx context.Context, req coffeemaker.RecipeRequest) (recipe.Recipe, error)
	DeleteRecipe(ctx context.Context, name string) error
	Inventory(ctx context.Context) (ingredient.Amounts, error)
	Replenish(ctx context.Context, amounts ingredient.Amounts) (ingredient.Amounts, error)
}

type ExperimentConfig struct {
	Concurrency int
	Duration    time.Duration
}

func (c ExperimentConfig) withDefaults() ExperimentConfig {
	if c.Concurrency <= 0 {
		c.Concurrency = 50
	}
	if c.Duration <= 0 {
		c.Duration = 10 * time.Second
	}
	return c
}

// RegisterExperiments registers the vending experiments against m.
func (e *Engine) RegisterExperiments(m Machine, cfg ExperimentConfig) {
	e.RegisterExperiment(ConcurrentPurchaseRace(m, cfg))
	e.RegisterExperiment(RecipeBookCapacity(m, cfg))
	e.RegisterExperiment(InvalidReplenish(m, cfg))
}

func chaosName(prefix string) string {
	return prefix + "-" + uuid.NewString()[:8]
}

func negativeCounters(a ingredient.Amounts) float64 {
	n := 0
	for _, v := range []int{a.Coffee, a.Milk, a.Sugar, a.Chocolate} {
		if v < 0 {
			n++
		}
	}
	return float64(n)
}

func distance(a, b ingredient.Amounts) float64 {
	abs := func(v int) int {
		if v < 0 {
			return -v
		}
		return v
	}
	d := a.Sub(b)
	return float64(abs(d.Coffee) + abs(d.Milk) + abs(d.Sugar) + abs(d.Chocolate))
}

func times(a ingredient.Amounts, n int) ingredient.Amounts {
	return ingredient.Amounts{Coffee: a.Coffee * n, Milk: a.Milk * n, Sugar: a.Sugar * n, Chocolate: a.Chocolate * n}
}

func negativeCountersMetric(m Machine) Metric {
	return Metric{
		Name: "negative_counters",
		Query: func(ctx context.Context) (float64, error) {
			levels, err := m.Inventory(ctx)
			if err != nil {
				return 0, err
			}
			return negativeCounters(levels), nil
		},
		Threshold: Threshold{Operator: "==", Value: 0},
	}
}

func recipeCountMetric(m Machine) Metric {
	return Metric{
		Name: "recipe_count",
		Query: func(ctx context.Context) (float64, error) {
			recipes, err := m.ListRecipes(ctx)
			if err != nil {
				return 0, err
			}
			return float64(len(recipes)), nil
		},
		Threshold: Threshold{Operator: "<=", Value: recipebook.MaxRecipes},
	}
}

// ConcurrentPurchaseRace fires many purchases of one recipe at once. Stock must only
// go down by what was actually served and never below zero.
func ConcurrentPurchaseRace(m Machine, cfg ExperimentConfig) Experiment {
	cfg = cfg.withDefaults()
	req := coffeemaker.RecipeRequest{Name: chaosName("chaos-race"), Price: 50, Coffee: 3, Milk: 1, Sugar: 1, Chocolate: 2}
	need := ingredient.Amounts{Coffee: req.Coffee, Milk: req.Milk, Sugar: req.Sugar, Chocolate: req.Chocolate}

	var (
		mu      sync.Mutex
		before  ingredient.Amounts
		created bool
		served  atomic.Int64
	)
	snapshot := func() (ingredient.Amounts, bool) {
		mu.Lock()
		defer mu.Unlock()
		return before, created
	}

	return Experiment{
		Name:        "concurrent-purchase-race",
		Hypothesis:  "Concurrent purchases never oversell stock or drive a counter negative",
		SteadyState: []Metric{negativeCountersMetric(m)},
		Probes: []Metric{
			{
				Name: "unaccounted_stock",
				Query: func(ctx context.Context) (float64, error) {
					start, ok := snapshot()
					if !ok {
						return 0, nil
					}
					now, err := m.Inventory(ctx)
					if err != nil {
						return 0, err
					}
					consumed := start.Sub(now)
					return distance(consumed, times(need, int(served.Load()))), nil
				},
				Threshold: Threshold{Operator: "==", Value: 0},
			},
			{
				Name: "oversold",
				Query: func(ctx context.Context) (float64, error) {
					start, ok := snapshot()
					if !ok {
						return 0, nil
					}
					if start.Covers(times(need, int(served.Load()))) {
						return 0, nil
					}
					return 1, nil
				},
				Threshold: Threshold{Operator: "==", Value: 0},
			},
		},
		Method: []Action{
			{
				Type:   "prepare",
				Target: "recipe-book",
				Execute: func(ctx context.Context) error {
					if _, err := m.AddRecipe(ctx, req); err != nil {
						return fmt.Errorf("add race recipe: %w", err)
					}
					levels, err := m.Inventory(ctx)
					if err != nil {
						return err
					}
					mu.Lock()
					before, created = levels, true
					mu.Unlock()
					return nil
				},
			},
			{
				Type:       "concurrent-requests",
				Target:     "makecoffee",
				Parameters: map[string]interface{}{"concurrency": cfg.Concurrency, "recipe": req.Name},
				Execute: func(ctx context.Context) error {
					if _, ok := snapshot(); !ok {
						return errors.New("race recipe was not created")
					}
					var (
						wg     sync.WaitGroup
						failed atomic.Int64
					)
					for i := 0; i < cfg.Concurrency; i++ {
						wg.Add(1)
						go func() {
							defer wg.Done()
							change, err := m.MakeCoffee(ctx, req.Name, req.Price)
							switch {
							case err != nil:
								failed.Add(1)
							case change == 0:
								served.Add(1)
							}
						}()
					}
					wg.Wait()
					if n := failed.Load(); n > 0 {
						return fmt.Errorf("%d of %d purchases failed", n, cfg.Concurrency)
					}
					return nil
				},
			},
		},
		Rollback: []Action{
			{
				Type:   "restore-stock",
				Target: "inventory",
				Execute: func(ctx context.Context) error {
					start, ok := snapshot()
					if !ok {
						return nil
					}
					now, err := m.Inventory(ctx)
					if err != nil {
						return err
					}
					missing := start.Sub(now)
					if missing.Validate() != nil {
						return nil
					}
					_, err = m.Replenish(ctx, missing)
					return err
				},
			},
			{
				Type:   "remove-recipe",
				Target: "recipe-book",
				Execute: func(ctx context.Context) error {
					if _, ok := snapshot(); !ok {
						return nil
					}
					return m.DeleteRecipe(ctx, req.Name)
				},
			},
		},
		Validation: []Assertion{
			{
				Metric:    "negative_counters",
				Condition: func(v float64) bool { return v == 0 },
				Message:   "No inventory counter should go negative",
			},
			{
				Metric:    "unaccounted_stock",
				Condition: func(v float64) bool { return v == 0 },
				Message:   "Stock should drop by exactly what was served",
			},
			{
				Metric:    "oversold",
				Condition: func(v float64) bool { return v == 0 },
				Message:   "No more beverages should be served than the stock allows",
			},
		},
		Duration: cfg.Duration,
	}
}

// RecipeBookCapacity adds distinct recipes concurrently. The book must never hold more
// than its capacity.
func RecipeBookCapacity(m Machine, cfg ExperimentConfig) Experiment {
	cfg = cfg.withDefaults()
	var (
		mu    sync.Mutex
		added []string
	)

	return Experiment{
		Name:        "recipe-book-capacity",
		Hypothesis:  "Concurrent recipe additions never exceed the recipe book capacity",
		SteadyState: []Metric{recipeCountMetric(m)},
		Method: []Action{
			{
				Type:       "concurrent-requests",
				Target:     "recipes",
				Parameters: map[string]interface{}{"concurrency": cfg.Concurrency},
				Execute: func(ctx context.Context) error {
					var wg sync.WaitGroup
					for i := 0; i < cfg.Concurrency; i++ {
						wg.Add(1)
						go func(i int) {
							defer wg.Done()
							req := coffeemaker.RecipeRequest{Name: chaosName(fmt.Sprintf("chaos-cap-%d", i)), Price: 10, Coffee: 1}
							if _, err := m.AddRecipe(ctx, req); err == nil {
								mu.Lock()
								added = append(added, req.Name)
								mu.Unlock()
							}
						}(i)
					}
					wg.Wait()
					return nil
				},
			},
		},
		Rollback: []Action{
			{
				Type:   "remove-recipes",
				Target: "recipes",
				Execute: func(ctx context.Context) error {
					mu.Lock()
					names := append([]string(nil), added...)
					added = nil
					mu.Unlock()

					var errs []error
					for _, name := range names {
						if err := m.DeleteRecipe(ctx, name); err != nil {
							errs = append(errs, err)
						}
					}
					return errors.Join(errs...)
				},
			},
		},
		Validation: []Assertion{
			{
				Metric:    "recipe_count",
				Condition: func(v float64) bool { return v <= recipebook.MaxRecipes },
				Message:   "The recipe book should never hold more than its capacity",
			},
		},
		Duration: cfg.Duration,
	}
}

// InvalidReplenish sends a replenishment with a negative amount. It must be rejected
// without touching any counter.
func InvalidReplenish(m Machine, cfg ExperimentConfig) Experiment {
	cfg = cfg.withDefaults()
	var (
		mu     sync.Mutex
		before *ingredient.Amounts
	)

	return Experiment{
		Name:        "invalid-replenish",
		Hypothesis:  "A replenishment with a negative amount leaves the inventory unchanged",
		SteadyState: []Metric{negativeCountersMetric(m)},
		Probes: []Metric{
			{
				Name: "inventory_drift",
				Query: func(ctx context.Context) (float64, error) {
					mu.Lock()
					start := before
					mu.Unlock()
					if start == nil {
						return 0, nil
					}
					now, err := m.Inventory(ctx)
					if err != nil {
						return 0, err
					}
					return distance(now, *start), nil
				},
				Threshold: Threshold{Operator: "==", Value: 0},
			},
		},
		Method: []Action{
			{
				Type:       "invalid-request",
				Target:     "inventory",
				Parameters: map[string]interface{}{"coffee": 5, "milk": 5, "sugar": 5, "chocolate": -1},
				Execute: func(ctx context.Context) error {
					levels, err := m.Inventory(ctx)
					if err != nil {
						return err
					}
					mu.Lock()
					before = &levels
					mu.Unlock()

					if _, err := m.Replenish(ctx, ingredient.Amounts{Coffee: 5, Milk: 5, Sugar: 5, Chocolate: -1}); err == nil {
						return errors.New("negative replenishment was accepted")
					}
					return nil
				},
			},
		},
		Validation: []Assertion{
			{
				Metric:    "inventory_drift",
				Condition: func(v float64) bool { return v == 0 },
				Message:   "Inventory should not change after a rejected replenishment",
			},
		},
		Duration: cfg.Duration,
	}
}
