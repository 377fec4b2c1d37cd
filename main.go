package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"calsync_server/config"
	"calsync_server/internal/bootstrap"
	"calsync_server/pkg/logger"

	"github.com/joho/godotenv"
)

const (
	shutdownTimeout = 30 * time.Second // Maximum time to wait for graceful shutdown
)

func main() {
	// Load .env file if exists (for local development)
	envErr := godotenv.Load()

	mode := flag.String("mode", "all", "Run mode: api, worker, all, once")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load config: %v", err)
	}

	logger.Init(logger.Config{
		Level:   logger.ParseLevel(cfg.LogLevel),
		Service: "calsync",
	})
	if envErr != nil {
		logger.Debug("No .env file found, using environment variables")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := bootstrap.LoadSecrets(ctx, cfg); err != nil {
		logger.Fatal("Failed to load secrets: %v", err)
	}

	deps, cleanup, err := bootstrap.NewDependencies(ctx, cfg)
	if err != nil {
		logger.Fatal("Failed to initialize dependencies: %v", err)
	}
	defer cleanup()

	switch *mode {
	case "api":
		runAPI(ctx, deps)
	case "worker":
		runWorker(ctx, deps)
	case "all":
		workerDone := make(chan struct{})
		go func() {
			runWorker(ctx, deps)
			close(workerDone)
		}()
		runAPI(ctx, deps)
		<-workerDone
	case "once":
		runOnce(ctx, deps)
	default:
		logger.Fatal("Unknown mode: %s", *mode)
	}
}

func runAPI(ctx context.Context, deps *bootstrap.Dependencies) {
	app := bootstrap.NewAPI(deps)

	go func() {
		<-ctx.Done()
		logger.Info("Shutting down API server (timeout: %v)...", shutdownTimeout)
		if err := app.ShutdownWithTimeout(shutdownTimeout); err != nil {
			logger.Error("Error shutting down: %v", err)
		} else {
			logger.Info("API server shut down gracefully")
		}
	}()

	addr := ":" + deps.Config.Port
	logger.Info("Starting API server on %s", addr)
	if err := app.Listen(addr); err != nil {
		logger.Fatal("Failed to start server: %v", err)
	}
}

func runWorker(ctx context.Context, deps *bootstrap.Dependencies) {
	worker, err := bootstrap.NewWorker(deps)
	if err != nil {
		logger.Fatal("Failed to initialize worker: %v", err)
	}

	logger.Info("Starting worker...")
	worker.Start()
	<-ctx.Done()

	logger.Info("Shutting down worker (timeout: %v)...", shutdownTimeout)
	done := make(chan struct{})
	go func() {
		worker.Stop()
		close(done)
	}()

	select {
	case <-done:
		logger.Info("Worker shut down gracefully")
	case <-time.After(shutdownTimeout):
		logger.Warn("Worker shutdown timed out, forcing exit")
		os.Exit(1)
	}
}

// runOnce runs a single sync pass, for batch invocation.
func runOnce(ctx context.Context, deps *bootstrap.Dependencies) {
	report, err := deps.SyncService.RunSync(ctx)
	if err != nil {
		logger.Error("Sync pass failed: %v", err)
		os.Exit(1)
	}
	logger.Info("Sync pass %s done: created=%d cancelled=%d no_room=%d failed_users=%d",
		report.RunID, report.Created, report.Cancelled, report.NoRoom, len(report.FailedUsers))
}
