// Package cli provides common initialization for the bookkeeping commands:
// the server, the sync worker and the command line tool.
package cli

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"bookkeeping/internal/config"
	applog "bookkeeping/internal/log"
)

// LoadEnvFile loads the .env file for local development.
// Errors are ignored silently as this is optional in production.
func LoadEnvFile() {
	_ = godotenv.Load()
}

// SetupLogger builds the process logger at the level named by LOG_LEVEL
// and installs it as the slog default. An unknown level logs at info.
func SetupLogger(cfg *config.Config, component string) *applog.Logger {
	level, err := config.ParseLogLevel(cfg.LogLevel)
	logger := applog.New(applog.Config{
		Level:     level,
		Component: component,
		Output:    os.Stdout,
	})
	applog.SetDefault(logger)
	if err != nil {
		logger.Warn("Unknown log level, using info", "level", cfg.LogLevel)
	}
	return logger
}

// ValidateConfig runs Validate followed by the extra checks, stopping at
// the first failure.
func ValidateConfig(cfg *config.Config, extra ...func(*config.Config) error) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	for _, check := range extra {
		if err := check(cfg); err != nil {
			return err
		}
	}
	return nil
}

// Mirror is the extra check of the sync worker.
func Mirror(cfg *config.Config) error {
	return cfg.ValidateMirror()
}

// GracefulShutdown sets up signal handling for graceful shutdown.
// The returned context is cancelled on SIGINT or SIGTERM, after cleanup has
// run with a context bounded by timeout. done is closed once cleanup returns.
func GracefulShutdown(logger *slog.Logger, timeout time.Duration, cleanup func(context.Context)) (context.Context, <-chan struct{}) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		defer close(done)
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(sigChan)

		sig := <-sigChan
		logger.Info("Shutdown signal received", "signal", sig.String())

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), timeout)
		defer shutdownCancel()

		if cleanup != nil {
			cleanup(shutdownCtx)
		}
		cancel()

		if shutdownCtx.Err() != nil {
			logger.Warn("Shutdown timeout reached")
			return
		}
		logger.Info("Shutdown complete")
	}()

	return ctx, done
}

// WaitForShutdown blocks until the context is cancelled and cleanup finished.
func WaitForShutdown(ctx context.Context, done <-chan struct{}) {
	<-ctx.Done()
	<-done
}
