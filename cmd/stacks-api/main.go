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

	"github.com/spf13/cobra"

	httpadapter "github.com/PabloGalante/stacks/internal/adapters/http"
	"github.com/PabloGalante/stacks/internal/adapters/storage/postgres"
	"github.com/PabloGalante/stacks/internal/config"
	"github.com/PabloGalante/stacks/internal/observability"
)

var logLevel string

var rootCmd = &cobra.Command{
	Use:   "stacks-api",
	Short: "Stacks reflection API",
	Long: `Serves the Stacks HTTP API: guided reflection stacks, their transcripts,
semantic search and insights over a user's history.

Run without a subcommand to start the server.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if logLevel == "" {
			return nil
		}
		return observability.Init(logLevel)
	},
	RunE: runServe,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	RunE:  runServe,
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the Postgres schema",
	RunE:  runMigrate,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error); overrides STACKS_LOG_LEVEL")
	rootCmd.AddCommand(serveCmd, migrateCmd)
}

func main() {
	defer observability.Sync()
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if logLevel == "" {
		if err := observability.Init(cfg.LogLevel); err != nil {
			return nil, fmt.Errorf("init logger: %w", err)
		}
	}
	return cfg, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log := observability.Logger()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := build(ctx, cfg)
	if err != nil {
		log.Errorw("failed to build application", "error", err)
		return err
	}

	srv := &http.Server{
		Addr: cfg.Addr(),
		Handler: httpadapter.NewServer(app.conversation, app.insights, app.searcher, httpadapter.Options{
			SigningKeys:    cfg.SigningKeys,
			RateLimitRPS:   cfg.RateLimitRPS,
			RateLimitBurst: cfg.RateLimitBurst,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Infow("Stacks API listening",
			"addr", srv.Addr,
			"mode", cfg.Mode,
			"storage", cfg.StorageBackend,
			"vector", cfg.VectorBackend,
			"embedder", cfg.EmbeddingProvider,
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			log.Errorw("server failed", "error", err)
			_ = app.close(context.Background())
			return err
		}
	case <-ctx.Done():
	}

	log.Infow("shutting down", "timeout", cfg.ShutdownTimeout)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	var errs []error
	if err := srv.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("http shutdown: %w", err))
	}
	if err := app.close(shutdownCtx); err != nil {
		errs = append(errs, err)
	}
	if err := errors.Join(errs...); err != nil {
		log.Errorw("unclean shutdown", "error", err)
		return err
	}
	log.Infow("shutdown complete")
	return nil
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.StorageBackend != "postgres" {
		return fmt.Errorf("migrate needs STACKS_STORAGE_BACKEND=postgres, got %q", cfg.StorageBackend)
	}

	ctx := cmd.Context()
	store, err := postgres.Open(ctx, cfg.PostgresDSN, 5)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.Migrate(ctx); err != nil {
		return err
	}
	observability.Logger().Infow("schema migrated")
	return nil
}
