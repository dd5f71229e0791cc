package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/cuongbtq/docharvest/internal/bootstrap"
	"github.com/cuongbtq/docharvest/internal/config"
	"github.com/cuongbtq/docharvest/internal/harvester"
)

const serviceName = "harvester"

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables or flags")
	}

	defaultConfigPath := os.Getenv("HARVESTER_CONFIG_PATH")
	if defaultConfigPath == "" {
		defaultConfigPath = "configs/harvester/config.yaml"
	}
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.ValidateHarvesterConfig(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	appLogger, err := bootstrap.NewLogger(&cfg.Logging, serviceName)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer appLogger.Close()

	appLogger.Info("Starting harvester service",
		slog.String("app", cfg.App.Name),
		slog.String("version", cfg.App.Version),
		slog.String("environment", cfg.App.Environment),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	resources := bootstrap.NewResources(cfg, appLogger.Logger)
	defer resources.Close()

	queue, err := resources.NewQueue(ctx)
	if err != nil {
		return fmt.Errorf("failed to initialize job queue: %w", err)
	}

	artifactSaver, err := resources.NewSaver(ctx)
	if err != nil {
		return fmt.Errorf("failed to initialize saver: %w", err)
	}

	hc := cfg.Harvester
	h, err := harvester.New(&harvester.Config{
		Logger:       appLogger.Logger,
		Queue:        queue,
		Saver:        artifactSaver,
		Fetcher:      harvester.NewHTTPFetcher(&http.Client{}, hc.MaxBodyBytes),
		Concurrency:  hc.Concurrency,
		PollInterval: hc.PollInterval,
		FetchTimeout: hc.FetchTimeout,
		RateLimit:    hc.RateLimit,
		Burst:        hc.Burst,
	})
	if err != nil {
		return fmt.Errorf("failed to create harvester: %w", err)
	}

	errChan := make(chan error, 1)
	go func() {
		if err := h.Start(ctx); err != nil {
			errChan <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		appLogger.Info("Received signal, shutting down gracefully",
			slog.String("signal", sig.String()),
		)
	case err := <-errChan:
		appLogger.Error("Harvester error",
			slog.Any("error", err),
		)
		return err
	}

	shutdownTimeout := hc.ShutdownTimeout
	if shutdownTimeout <= 0 {
		shutdownTimeout = 30 * time.Second
	}

	// in-flight jobs finish before the context is canceled
	done := make(chan struct{})
	go func() {
		h.Stop()
		close(done)
	}()

	select {
	case <-done:
		appLogger.Info("Harvester stopped gracefully")
	case <-time.After(shutdownTimeout):
		appLogger.Warn("Harvester shutdown timeout exceeded, canceling in-flight jobs")
		cancel()
		<-done
	}

	appLogger.Info("Harvester service shutdown complete")
	return nil
}
