// internal/storage/postgres/store.go
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"coffeemaker/internal/ingredient"
	"coffeemaker/internal/recipe"
	"coffeemaker/internal/storage"
	"coffeemaker/pkg/eventstore"

	"github.com/lib/pq"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const uniqueViolation = "23505"

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS recipes (
		id UUID PRIMARY KEY,
		position BIGSERIAL NOT NULL,
		name TEXT NOT NULL,
		price INT NOT NULL CHECK (price >= 0),
		coffee INT NOT NULL CHECK (coffee >= 0),
		milk INT NOT NULL CHECK (milk >= 0),
		sugar INT NOT NULL CHECK (sugar >= 0),
		chocolate INT NOT NULL CHECK (chocolate >= 0),
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_recipes_name ON recipes (lower(name))`,
	`CREATE INDEX IF NOT EXISTS idx_recipes_position ON recipes (position)`,

	`CREATE TABLE IF NOT EXISTS inventory (
		id SMALLINT PRIMARY KEY DEFAULT 1 CHECK (id = 1),
		coffee INT NOT NULL CHECK (coffee >= 0),
		milk INT NOT NULL CHECK (milk >= 0),
		sugar INT NOT NULL CHECK (sugar >= 0),
		chocolate INT NOT NULL CHECK (chocolate >= 0),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,

	eventstore.Schema,
}

// Open connects to dsn and checks the connection.
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return db, nil
}

// Migrate creates the recipes, inventory and events tables.
func Migrate(ctx context.Context, db *sql.DB) error {
	for i, m := range migrations {
		if _, err := db.ExecContext(ctx, m); err != nil {
			return fmt.Errorf("migration %d: %w", i, err)
		}
	}
	return nil
}

// Store keeps recipes and inventory in Postgres.
type Store struct {
	db     *sql.DB
	tracer trace.Tracer
}

func NewStore(db *sql.DB) *Store {
	return &Store{
		db:     db,
		tracer: otel.Tracer("coffeemaker/storage/postgres"),
	}
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

func (s *Store) LoadRecipes(ctx context.Context) ([]recipe.Recipe, error) {
	ctx, span := s.tracer.Start(ctx, "postgres.load_recipes")
	defer span.End()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, price, coffee, milk, sugar, chocolate
		FROM recipes
		ORDER BY position ASC
	`)
	if err != nil {
		return nil, storage.Unavailable("load recipes", err)
	}
	defer rows.Close()

	var recipes []recipe.Recipe
	for rows.Next() {
		var r recipe.Recipe
		if err := rows.Scan(&r.ID, &r.Name, &r.Price, &r.Coffee, &r.Milk, &r.Sugar, &r.Chocolate); err != nil {
			return nil, storage.Unavailable("scan recipe", err)
		}
		recipes = append(recipes, r)
	}
	if err := rows.Err(); err != nil {
		return nil, storage.Unavailable("load recipes", err)
	}
	span.SetAttributes(attribute.Int("recipes.count", len(recipes)))
	return recipes, nil
}

func (s *Store) SaveRecipe(ctx context.Context, r recipe.Recipe) error {
	ctx, span := s.tracer.Start(ctx, "postgres.save_recipe",
		trace.WithAttributes(attribute.String("recipe.name", r.Name)),
	)
	defer span.End()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO recipes (id, name, price, coffee, milk, sugar, chocolate)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, r.ID, r.Name, r.Price, r.Coffee, r.Milk, r.Sugar, r.Chocolate)
	if isUniqueViolation(err) {
		return fmt.Errorf("save recipe %q: %w", r.Name, storage.ErrConflict)
	}
	if err != nil {
		return storage.Unavailable("save recipe", err)
	}
	return nil
}

func (s *Store) UpdateRecipe(ctx context.Context, r recipe.Recipe) error {
	ctx, span := s.tracer.Start(ctx, "postgres.update_recipe",
		trace.WithAttributes(attribute.String("recipe.id", r.ID.String())),
	)
	defer span.End()

	res, err := s.db.ExecContext(ctx, `
		UPDATE recipes
		SET name = $2, price = $3, coffee = $4, milk = $5, sugar = $6, chocolate = $7, updated_at = NOW()
		WHERE id = $1
	`, r.ID, r.Name, r.Price, r.Coffee, r.Milk, r.Sugar, r.Chocolate)
	if isUniqueViolation(err) {
		return fmt.Errorf("update recipe %q: %w", r.Name, storage.ErrConflict)
	}
	if err != nil {
		return storage.Unavailable("update recipe", err)
	}
	return expectOneRow(res, "update recipe", r)
}

func (s *Store) DeleteRecipe(ctx context.Context, r recipe.Recipe) error {
	ctx, span := s.tracer.Start(ctx, "postgres.delete_recipe",
		trace.WithAttributes(attribute.String("recipe.id", r.ID.String())),
	)
	defer span.End()

	res, err := s.db.ExecContext(ctx, `DELETE FROM recipes WHERE id = $1`, r.ID)
	if err != nil {
		return storage.Unavailable("delete recipe", err)
	}
	return expectOneRow(res, "delete recipe", r)
}

func expectOneRow(res sql.Result, op string, r recipe.Recipe) error {
	n, err := res.RowsAffected()
	if err != nil {
		return storage.Unavailable(op, err)
	}
	if n == 0 {
		return fmt.Errorf("%s %s: %w", op, r.ID, storage.ErrNotFound)
	}
	return nil
}

func (s *Store) LoadInventory(ctx context.Context) (ingredient.Amounts, error) {
	ctx, span := s.tracer.Start(ctx, "postgres.load_inventory")
	defer span.End()

	var levels ingredient.Amounts
	err := s.db.QueryRowContext(ctx, `
		SELECT coffee, milk, sugar, chocolate
		FROM inventory
		WHERE id = 1
	`).Scan(&levels.Coffee, &levels.Milk, &levels.Sugar, &levels.Chocolate)
	if errors.Is(err, sql.ErrNoRows) {
		return ingredient.Amounts{}, fmt.Errorf("load inventory: %w", storage.ErrNotFound)
	}
	if err != nil {
		return ingredient.Amounts{}, storage.Unavailable("load inventory", err)
	}
	return levels, nil
}

func (s *Store) SaveInventory(ctx context.Context, levels ingredient.Amounts) error {
	ctx, span := s.tracer.Start(ctx, "postgres.save_inventory")
	defer span.End()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO inventory (id, coffee, milk, sugar, chocolate, updated_at)
		VALUES (1, $1, $2, $3, $4, NOW())
		ON CONFLICT (id) DO UPDATE
		SET coffee = EXCLUDED.coffee, milk = EXCLUDED.milk, sugar = EXCLUDED.sugar,
			chocolate = EXCLUDED.chocolate, updated_at = EXCLUDED.updated_at
	`, levels.Coffee, levels.Milk, levels.Sugar, levels.Chocolate)
	if err != nil {
		return storage.Unavailable("save inventory", err)
	}
	return nil
}
