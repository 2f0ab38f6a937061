// cmd/chaos/main.go
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

	jsoniter "github.com/json-iterator/go"

	"libraloans/internal/chaos"
	"libraloans/internal/clients"
	"libraloans/internal/config"
	"libraloans/internal/database"
	"libraloans/internal/logger"
	"libraloans/internal/telemetry"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "chaos: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log := logger.New(logger.Config{
		Format:      cfg.Logger.Format,
		Environment: cfg.App.Environment,
		Level:       logger.ParseLevel(cfg.Logger.Level),
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := telemetry.Setup(ctx, telemetry.Config{
		Endpoint:    cfg.Telemetry.Endpoint,
		ServiceName: cfg.Telemetry.ServiceName + "-chaos",
	})
	if err != nil {
		return fmt.Errorf("setup telemetry: %w", err)
	}
	defer shutdownTelemetry(context.Background())

	db, err := database.Open(ctx, cfg.Database.DSN(), database.PoolConfig{
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.Database.ConnMaxIdleTime,
	})
	if err != nil {
		return err
	}
	defer db.Close()

	api := clients.NewLoansClient(cfg.Chaos.APIURL, &http.Client{Timeout: 10 * time.Second})
	if err := api.Health(ctx); err != nil {
		return fmt.Errorf("loans API at %s is not healthy: %w", cfg.Chaos.APIURL, err)
	}

	bookID, err := chaos.CreateFixtureBook(ctx, db)
	if err != nil {
		return err
	}
	defer func() {
		if err := chaos.RemoveFixtureBook(context.Background(), db, bookID); err != nil {
			log.Error("failed to remove fixture book", "book_id", bookID, "error", err)
		}
	}()

	engine := chaos.NewEngine(log)
	chaos.Suite{
		API:         api,
		DB:          db,
		BookID:      bookID,
		Concurrency: cfg.Chaos.Concurrency,
		Duration:    cfg.Chaos.Duration,
		Interval:    cfg.Chaos.Interval,
	}.Register(engine)

	_, runErr := engine.ExecuteGameDay(ctx, chaos.GameDay{
		Name:      "Loan consistency game day",
		Scenarios: engine.Experiments(),
		Pause:     cfg.Chaos.Pause,
	})

	if cfg.Chaos.ReportPath != "" {
		if err := writeReport(cfg.Chaos.ReportPath, engine.Results()); err != nil {
			return errors.Join(runErr, err)
		}
		log.Info("report written", "path", cfg.Chaos.ReportPath)
	}
	return runErr
}

func writeReport(path string, results []chaos.Result) error {
	data, err := jsoniter.ConfigCompatibleWithStandardLibrary.MarshalIndent(results, "", "  ")
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}
