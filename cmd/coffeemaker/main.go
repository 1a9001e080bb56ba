// cmd/coffeemaker/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"coffeemaker/internal/coffeemaker"
	"coffeemaker/internal/config"
	"coffeemaker/internal/ingredient"
	"coffeemaker/internal/inventory"
	"coffeemaker/internal/observability"
	"coffeemaker/internal/platform/logger"
	"coffeemaker/internal/recipebook"
	"coffeemaker/internal/storage/memory"
	"coffeemaker/internal/storage/postgres"
	"coffeemaker/internal/storage/redisstore"
	"coffeemaker/pkg/eventstore"

	"golang.org/x/time/rate"
)

// store is what both aggregates need from a backend.
type store interface {
	inventory.Store
	recipebook.Store
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.LogMode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}

	if err := run(cfg, log); err != nil {
		log.Error("coffeemaker stopped", "error", err)
		log.Sync()
		os.Exit(1)
	}
	log.Sync()
}

// run returns instead of exiting so that every deferred cleanup runs.
func run(cfg *config.Config, log *logger.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing := observability.InitOTel(ctx, log, observability.OtelConfig{
		ServiceName: cfg.ServiceName,
		Environment: cfg.Environment,
	})
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(shutdownCtx); err != nil {
			log.Warn("otel shutdown failed", "error", err)
		}
	}()

	backend, journal, closeBackend, err := openBackend(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("open %s store: %w", cfg.StoreBackend, err)
	}
	defer closeBackend()

	inv, err := inventory.New(backend, ingredient.Uniform(cfg.InitialStock))
	if err != nil {
		return fmt.Errorf("initial stock: %w", err)
	}
	if err := inv.Load(ctx); err != nil {
		return err
	}
	book, err := recipebook.New(ctx, backend)
	if err != nil {
		return err
	}
	if book.Len() > recipebook.MaxRecipes {
		log.Warn("store holds more recipes than the machine allows; adds are refused until some are deleted",
			"recipes", book.Len(), "max", recipebook.MaxRecipes)
	}

	svc := coffeemaker.NewService(book, inv, journal, log.With("component", "coffeemaker"))

	var limiter *rate.Limiter
	if cfg.PurchaseRateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.PurchaseRateLimit), cfg.PurchaseRateBurst)
	}
	router := coffeemaker.NewRouter(coffeemaker.NewHandler(svc, log), log.With("component", "http"), limiter)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info("server starting", "port", cfg.Port, "backend", cfg.StoreBackend,
			"recipes", book.Len(), "inventory", inv.Snapshot().String())
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case err := <-serverErr:
		if err != nil {
			runErr = fmt.Errorf("serve: %w", err)
		}
	}

	log.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return errors.Join(runErr, fmt.Errorf("shutdown: %w", err))
	}
	log.Info("server exited properly")
	return runErr
}

func openBackend(ctx context.Context, cfg *config.Config, log *logger.Logger) (store, coffeemaker.Journal, func(), error) {
	switch cfg.StoreBackend {
	case config.BackendPostgres:
		db, err := postgres.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, nil, err
		}
		if err := postgres.Migrate(ctx, db); err != nil {
			db.Close()
			return nil, nil, nil, err
		}
		log.Info("using postgres store")
		return postgres.NewStore(db), eventstore.NewEventStore(db), func() { db.Close() }, nil

	case config.BackendRedis:
		client, err := redisstore.Open(ctx, cfg.RedisAddr)
		if err != nil {
			return nil, nil, nil, err
		}
		log.Info("using redis store", "addr", cfg.RedisAddr, "journal", "memory")
		return redisstore.NewStore(client, cfg.RedisPrefix), eventstore.NewMemoryStore(), func() { client.Close() }, nil

	default:
		log.Info("using in-memory store")
		return memory.NewStore(), eventstore.NewMemoryStore(), func() {}, nil
	}
}
