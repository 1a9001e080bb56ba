// internal/coffeemaker/implementation.go
package coffeemaker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"coffeemaker/internal/ingredient"
	"coffeemaker/internal/inventory"
	"coffeemaker/internal/platform/logger"
	"coffeemaker/internal/recipe"
	"coffeemaker/internal/recipebook"
	"coffeemaker/pkg/eventstore"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
)

const (
	defaultEventLimit = 100
	maxEventLimit     = 1000

	// appendAttempts bounds the re-reads of an aggregate's version after a conflict.
	appendAttempts = 5
)

// Purchase outcomes as recorded on the purchases counter.
const (
	outcomeSuccess  = "success"
	outcomeNotFound = "recipe_not_found"
	outcomeError    = "error"
)

// service implements the Service interface.
type service struct {
	book      *recipebook.Book
	inventory *inventory.Inventory
	journal   Journal
	log       *logger.Logger
	tracer    trace.Tracer
	purchases metric.Int64Counter
}

// NewService creates the coffee maker. journal may be nil, in which case nothing is journaled.
func NewService(book *recipebook.Book, inv *inventory.Inventory, journal Journal, log *logger.Logger) Service {
	if log == nil {
		log = logger.Nop()
	}
	purchases, err := otel.Meter("coffeemaker/coffeemaker").Int64Counter(
		"coffeemaker.purchases",
		metric.WithDescription("Purchase attempts by outcome"),
	)
	if err != nil {
		log.Warn("purchase counter unavailable", "error", err)
		purchases, _ = noop.NewMeterProvider().Meter("coffeemaker").Int64Counter("coffeemaker.purchases")
	}
	return &service{
		book:      book,
		inventory: inv,
		journal:   journal,
		log:       log,
		tracer:    otel.Tracer("coffeemaker/coffeemaker"),
		purchases: purchases,
	}
}

// Purchase makes the named beverage. It returns the change owed to the customer.
// A decline (underpaid or out of stock) is not an error: the whole payment comes back
// as change and nothing is consumed. An unknown name returns amountPaid together with
// ErrRecipeNotFound.
func (s *service) Purchase(ctx context.Context, name string, amountPaid int) (int, error) {
	s.syncBook(ctx)
	r, ok := s.book.Find(name)
	if !ok {
		s.count(ctx, outcomeNotFound)
		return amountPaid, fmt.Errorf("%w: %q", ErrRecipeNotFound, name)
	}
	return s.purchase(ctx, r, amountPaid)
}

// PurchaseAt is Purchase addressed by position in the recipe book.
func (s *service) PurchaseAt(ctx context.Context, index int, amountPaid int) (int, error) {
	s.syncBook(ctx)
	r, err := s.book.At(index)
	if err != nil {
		s.count(ctx, outcomeNotFound)
		return amountPaid, fmt.Errorf("%w: index %d", ErrRecipeNotFound, index)
	}
	return s.purchase(ctx, r, amountPaid)
}

func (s *service) purchase(ctx context.Context, r recipe.Recipe, amountPaid int) (int, error) {
	ctx, span := s.tracer.Start(ctx, "coffeemaker.purchase",
		trace.WithAttributes(
			attribute.String("recipe.name", r.Name),
			attribute.Int("recipe.price", r.Price),
			attribute.Int("amount.paid", amountPaid),
		),
	)
	defer span.End()

	if amountPaid < 0 {
		s.count(ctx, outcomeError)
		return amountPaid, fmt.Errorf("amount paid %d: %w", amountPaid, ingredient.ErrInvalidQuantity)
	}

	if amountPaid < r.Price {
		if err := s.inventory.Refresh(ctx); err != nil {
			return s.fail(ctx, span, r, amountPaid, "refresh failed", err)
		}
		return s.decline(ctx, span, r, amountPaid, DeclineInsufficientPayment), nil
	}

	made, err := s.inventory.RefreshAndConsume(ctx, r.Requirements())
	if err != nil {
		return s.fail(ctx, span, r, amountPaid, "consume failed", err)
	}
	if !made {
		return s.decline(ctx, span, r, amountPaid, DeclineInsufficientInventory), nil
	}

	change := amountPaid - r.Price
	span.SetAttributes(attribute.String("outcome", outcomeSuccess), attribute.Int("change", change))
	s.count(ctx, outcomeSuccess)
	s.log.Info("coffee purchased", "recipe", r.Name, "paid", amountPaid, "change", change)
	s.record(ctx, uuid.New(), AggregatePurchase, "CoffeePurchased", CoffeePurchasedEvent{
		Recipe:     r.Name,
		Price:      r.Price,
		AmountPaid: amountPaid,
		Change:     change,
		Used:       r.Requirements(),
	})
	return change, nil
}

func (s *service) fail(ctx context.Context, span trace.Span, r recipe.Recipe, amountPaid int, status string, err error) (int, error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, status)
	s.count(ctx, outcomeError)
	s.log.Error("purchase failed", "recipe", r.Name, "error", err)
	return amountPaid, err
}

func (s *service) decline(ctx context.Context, span trace.Span, r recipe.Recipe, amountPaid int, reason string) int {
	span.SetAttributes(attribute.String("outcome", reason))
	s.count(ctx, reason)
	s.log.Info("purchase declined", "recipe", r.Name, "paid", amountPaid, "reason", reason)
	s.record(ctx, uuid.New(), AggregatePurchase, "PurchaseDeclined", PurchaseDeclinedEvent{
		Recipe:     r.Name,
		Price:      r.Price,
		AmountPaid: amountPaid,
		Reason:     reason,
	})
	return amountPaid
}

func (s *service) count(ctx context.Context, outcome string) {
	s.purchases.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// record appends one event to the aggregate's stream. Failures are logged only.
func (s *service) record(ctx context.Context, aggregateID uuid.UUID, aggregateType, eventType string, payload interface{}) {
	if s.journal == nil {
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		s.log.Error("failed to marshal event", "event", eventType, "error", err)
		return
	}
	for attempt := 1; ; attempt++ {
		version, err := s.journal.GetCurrentVersion(ctx, aggregateID)
		if err != nil {
			s.log.Error("failed to read journal version", "event", eventType, "aggregate", aggregateID, "error", err)
			return
		}
		event := eventstore.Event{
			AggregateID:   aggregateID,
			AggregateType: aggregateType,
			EventType:     eventType,
			EventData:     data,
			Version:       version + 1,
		}
		err = s.journal.AppendEvents(ctx, aggregateID, aggregateType, version, []eventstore.Event{event})
		if err == nil {
			return
		}
		if !errors.Is(err, eventstore.ErrConcurrencyConflict) || attempt == appendAttempts {
			s.log.Error("failed to append event", "event", eventType, "aggregate", aggregateID, "attempt", attempt, "error", err)
			return
		}
	}
}

// syncBook retries a reload that failed after an earlier write. Reads fall back to the
// last good list when the store is still down.
func (s *service) syncBook(ctx context.Context) {
	if !s.book.Stale() {
		return
	}
	if err := s.book.SyncIfStale(ctx); err != nil {
		s.log.Warn("recipe book still out of date", "error", err)
	}
}

// committed reports whether err still means the book write landed.
func (s *service) committed(op, name string, err error) bool {
	if !errors.Is(err, recipebook.ErrStale) {
		return false
	}
	s.log.Warn("recipe book reload failed after write", "op", op, "recipe", name, "error", err)
	return true
}

func (s *service) ListRecipes(ctx context.Context) []recipe.Recipe {
	s.syncBook(ctx)
	return s.book.Recipes()
}

func (s *service) GetRecipe(ctx context.Context, name string) (recipe.Recipe, error) {
	s.syncBook(ctx)
	r, ok := s.book.Find(name)
	if !ok {
		return recipe.Recipe{}, fmt.Errorf("%w: %q", recipebook.ErrNotFound, name)
	}
	return r, nil
}

func (s *service) AddRecipe(ctx context.Context, r recipe.Recipe) (recipe.Recipe, error) {
	added, err := s.book.Add(ctx, r)
	if err != nil && !s.committed("add", r.Name, err) {
		return recipe.Recipe{}, err
	}
	s.log.Info("recipe added", "recipe", added.Name, "id", added.ID)
	s.record(ctx, added.ID, AggregateRecipe, "RecipeAdded", RecipeAddedEvent{
		ID:      added.ID,
		Name:    added.Name,
		Price:   added.Price,
		Amounts: added.Amounts,
	})
	return added, nil
}

func (s *service) DeleteRecipe(ctx context.Context, name string) error {
	r, ok := s.book.Find(name)
	if !ok {
		return fmt.Errorf("%w: %q", recipebook.ErrNotFound, name)
	}
	removed, err := s.book.Delete(ctx, r)
	if err != nil && !s.committed("delete", r.Name, err) {
		return err
	}
	s.log.Info("recipe deleted", "recipe", removed.Name, "id", removed.ID)
	s.record(ctx, removed.ID, AggregateRecipe, "RecipeDeleted", RecipeDeletedEvent{
		ID:   removed.ID,
		Name: removed.Name,
	})
	return nil
}

func (s *service) EditRecipe(ctx context.Context, index int, r recipe.Recipe) (string, error) {
	previous, err := s.book.At(index)
	if err != nil {
		return "", err
	}
	name, err := s.book.Edit(ctx, index, r)
	if err != nil && !s.committed("edit", previous.Name, err) {
		return "", err
	}
	s.recordUpdate(ctx, previous, r)
	return name, nil
}

func (s *service) UpdateRecipe(ctx context.Context, name string, r recipe.Recipe) (string, error) {
	previous, ok := s.book.Find(name)
	if !ok {
		return "", fmt.Errorf("%w: %q", recipebook.ErrNotFound, name)
	}
	newName, err := s.book.EditByName(ctx, name, r)
	if err != nil && !s.committed("edit", previous.Name, err) {
		return "", err
	}
	s.recordUpdate(ctx, previous, r)
	return newName, nil
}

func (s *service) recordUpdate(ctx context.Context, previous, r recipe.Recipe) {
	updated := previous
	if err := updated.Update(r); err != nil {
		return
	}
	s.log.Info("recipe updated", "previous", previous.Name, "recipe", updated.Name, "id", updated.ID)
	s.record(ctx, updated.ID, AggregateRecipe, "RecipeUpdated", RecipeUpdatedEvent{
		ID:           updated.ID,
		PreviousName: previous.Name,
		Name:         updated.Name,
		Price:        updated.Price,
		Amounts:      updated.Amounts,
	})
}

// Inventory returns the persisted stock levels.
func (s *service) Inventory(ctx context.Context) (ingredient.Amounts, error) {
	if err := s.inventory.Refresh(ctx); err != nil {
		return ingredient.Amounts{}, err
	}
	return s.inventory.Snapshot(), nil
}

// Replenish adds amounts to the stock and returns the new levels.
func (s *service) Replenish(ctx context.Context, amounts ingredient.Amounts) (ingredient.Amounts, error) {
	levels, err := s.inventory.RefreshAndReplenish(ctx, amounts)
	if err != nil {
		return levels, err
	}
	s.log.Info("inventory replenished", "added", amounts.String(), "levels", levels.String())
	s.record(ctx, uuid.New(), AggregateInventory, "InventoryReplenished", InventoryReplenishedEvent{
		Added:  amounts,
		Levels: levels,
	})
	return levels, nil
}

// Events pages through the journal after afterID.
func (s *service) Events(ctx context.Context, afterID int64, limit int) ([]eventstore.Event, error) {
	if s.journal == nil {
		return []eventstore.Event{}, nil
	}
	if limit <= 0 {
		limit = defaultEventLimit
	}
	if limit > maxEventLimit {
		limit = maxEventLimit
	}
	events, err := s.journal.StreamEvents(ctx, afterID, limit)
	if err != nil {
		return nil, fmt.Errorf("stream events: %w", err)
	}
	if events == nil {
		events = []eventstore.Event{}
	}
	return events, nil
}
