package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jacentio/twine/api"
	"github.com/jacentio/twine/internal/config"
	"github.com/jacentio/twine/service"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd(configFile *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Long: `Run the HTTP API. SQL schemas are migrated on startup;
DynamoDB tables must exist already (see "twine migrate").`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, *configFile)
		},
	}

	flags := cmd.Flags()
	flags.String("http.addr", ":8080", "listen address")
	flags.String("store.backend", "memory", "record store: memory, sqlite, postgres or dynamodb")
	flags.String("store.dsn", "twine.db", "sqlite path or postgres URL")
	flags.Bool("seed", false, "create the demo customers at startup (default true for the memory backend)")
	flags.String("log.level", "info", "log level")
	return cmd
}

func runServe(cmd *cobra.Command, configFile string) error {
	cfg, logger, err := loadConfig(configFile, cmd.Flags())
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	b, err := openBackend(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := b.close(); err != nil {
			logger.Warn("close store", "error", err)
		}
	}()

	if cfg.Store.Backend != config.BackendDynamoDB {
		if err := b.migrate(ctx); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}

	svc := service.New(b.store, logger)
	if cfg.Seed {
		if err := svc.Seed(ctx, service.DemoPairs); err != nil {
			return err
		}
	}

	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           api.NewRouter(svc, logger),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", cfg.HTTP.Addr, "backend", cfg.Store.Backend)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
