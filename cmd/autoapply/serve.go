package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/pranavsaji/autoapply-pro/internal/config"
	"github.com/pranavsaji/autoapply-pro/internal/driver"
	"github.com/pranavsaji/autoapply-pro/internal/driver/greenhouse"
	"github.com/pranavsaji/autoapply-pro/internal/driver/lever"
	"github.com/pranavsaji/autoapply-pro/internal/events"
	"github.com/pranavsaji/autoapply-pro/internal/httpapi"
	"github.com/pranavsaji/autoapply-pro/internal/orchestrator"
	"github.com/pranavsaji/autoapply-pro/internal/queue"
	"github.com/pranavsaji/autoapply-pro/internal/session"
	"github.com/pranavsaji/autoapply-pro/internal/store"
)

var serveCommand = &cobra.Command{
	Use:   "serve",
	Short: "Run the submission engine with its HTTP API",
	Long: `Starts the full engine: browser session pool, site drivers, work queue,
and the REST API for admitting plans and recording approval decisions.
Parked attempts from a previous run are restored from the database.`,
	RunE: runServeCmd,
}

var serveConfigPath string

func init() {
	serveCommand.Flags().StringVar(&serveConfigPath, "config", "", "Path to config.yaml (optional)")
	rootCmd.AddCommand(serveCommand)
}

func runServeCmd(cmd *cobra.Command, _ []string) error {
	ctx := context.Background()

	cfg, err := config.Load(serveConfigPath)
	if err != nil {
		return err
	}

	var st store.Store
	var pg *store.Postgres
	if cfg.DatabaseURL != "" {
		pg, err = store.ConnectPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer pg.Close()
		st = pg
	} else {
		log.Println("[serve] no DATABASE_URL set, attempts are kept in memory only")
		st = store.NewMemory()
	}

	provider := session.NewChromeProvider(ctx, session.Options{
		Headless: cfg.Headless,
		PoolSize: cfg.BrowserPoolSize,
	})
	defer provider.Close()

	registry := driver.NewRegistry(
		greenhouse.New(cfg.StepTimeout.Std()),
		lever.New(cfg.StepTimeout.Std()),
	)

	hub := events.NewHub()
	orch := orchestrator.New(registry, provider, st, hub, orchestrator.Config{
		MaxRetries:  cfg.MaxRetries,
		SnapshotDir: cfg.SnapshotDir,
	})

	q := queue.New(orch, registry, st, queue.Config{
		Concurrency:     cfg.Concurrency,
		RatePerMinute:   cfg.RatePerMinute,
		ApprovalTimeout: cfg.ApprovalTimeout.Std(),
		AllowAutoSubmit: !cfg.ApprovalRequired(),
	})
	q.Start(ctx)
	defer q.Shutdown()

	if err := q.Restore(ctx); err != nil {
		log.Printf("[serve] warning: %v", err)
	}

	srv, err := httpapi.New(cfg, q, hub)
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		log.Printf("[serve] received %s, shutting down", sig)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
