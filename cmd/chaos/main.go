// cmd/chaos/main.go
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"coffeemaker/internal/clients"
	"coffeemaker/internal/platform/logger"
	"coffeemaker/pkg/chaos"
)

func main() {
	log, err := logger.New(getEnv("LOG_MODE", "dev"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}

	code := 0
	if err := run(log); err != nil {
		log.Error("chaos game day failed", "error", err)
		code = 1
	}
	log.Sync()
	os.Exit(code)
}

func run(log *logger.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	baseURL := getEnv("COFFEEMAKER_URL", "http://localhost:8080")
	client := clients.NewCoffeeMakerClient(baseURL, nil)
	if err := client.Health(ctx); err != nil {
		return fmt.Errorf("coffeemaker at %s is not reachable: %w", baseURL, err)
	}

	engine := chaos.NewEngine(log.With("component", "chaos"))
	engine.RegisterExperiments(client, chaos.ExperimentConfig{})

	gameDay := chaos.GameDay{
		Name:      "Vending Chaos Game Day",
		Date:      time.Now(),
		Scenarios: engine.Experiments(),
	}

	results, err := engine.ExecuteGameDay(ctx, gameDay)
	if err != nil {
		return fmt.Errorf("game day interrupted: %w", err)
	}
	violated := 0
	for _, r := range results {
		if !r.HypothesisHeld {
			log.Error("hypothesis violated", "experiment", r.ExperimentName, "failed_assertions", r.FailedAssertions)
			violated++
		}
	}
	if violated > 0 {
		return fmt.Errorf("%d of %d hypotheses violated", violated, len(results))
	}
	log.Info("all hypotheses held", "experiments", len(results))
	return nil
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}
