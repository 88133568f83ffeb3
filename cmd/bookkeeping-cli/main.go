package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"bookkeeping/internal/backend"
	"bookkeeping/internal/cli"
	"bookkeeping/internal/config"
	applog "bookkeeping/internal/log"
)

// storeOpener returns the configured store and its cleanup.
type storeOpener func(ctx context.Context) (*backend.BackendResult, error)

// app carries what every subcommand needs.
type app struct {
	out    io.Writer
	logger *applog.Logger
	open   storeOpener
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "bookkeeping-cli",
		Short:         "Import, summarize and delete bookkeeping transactions",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}
	root.SetOut(a.out)
	root.AddCommand(newImportCmd(a), newSummaryCmd(a), newDeleteCmd(a))
	return root
}

// newLogger sends slog records through charmbracelet/log on stderr.
func newLogger(cfg *config.Config) *applog.Logger {
	level, _ := config.ParseLogLevel(cfg.LogLevel)
	handler := log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
		Prefix:          "bookkeeping-cli",
		Level:           log.Level(level),
	})
	logger := applog.New(applog.Config{Handler: handler, Component: applog.ComponentCLI})
	applog.SetDefault(logger)
	return logger
}

// configStore opens the backend selected by DATA_BACKEND.
func configStore(cfg *config.Config, logger *slog.Logger) storeOpener {
	return func(ctx context.Context) (*backend.BackendResult, error) {
		bc, err := backend.FromAppConfig(cfg)
		if err != nil {
			return nil, err
		}
		return backend.NewFactory(logger).CreateBackend(ctx, bc)
	}
}

func main() {
	cli.LoadEnvFile()
	cfg := config.Load()
	logger := newLogger(cfg)

	if err := cli.ValidateConfig(cfg); err != nil {
		logger.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}

	a := &app{out: os.Stdout, logger: logger, open: configStore(cfg, logger.WithComponent(applog.ComponentStorage).Logger)}
	if err := newRootCmd(a).ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
