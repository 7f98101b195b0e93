package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/opsboard/opsboard/internal/auth/providers"
	"github.com/opsboard/opsboard/internal/config"
	httpapp "github.com/opsboard/opsboard/internal/http"
	"github.com/opsboard/opsboard/internal/http/handlers"
	"github.com/opsboard/opsboard/internal/kv"
	"github.com/opsboard/opsboard/internal/metrics"
	"github.com/opsboard/opsboard/internal/sync"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:         "serve",
	Short:       "Run the dashboard HTTP server with the background sync and scan loops.",
	Args:        cobra.NoArgs,
	Annotations: structuredLog,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe()
	},
}

func runServe() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := slog.Default()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := openRuntime(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer rt.Close()

	refresher, err := newRefresher(rt)
	if err != nil {
		return err
	}

	var syncer handlers.SyncRunner
	if len(refresher.Connectors()) > 0 {
		syncer = refresher
		scheduler := sync.Scheduler{Name: "connector-sync", Runner: refresher, Interval: cfg.SyncInterval, Logger: logger}
		go scheduler.Run(ctx)
	}
	if rt.scanner != nil {
		scheduler := sync.Scheduler{Name: "vulnerability-scan", Runner: sync.ScanRunner(rt.app.Patch), Interval: cfg.ScanInterval, Logger: logger}
		go scheduler.Run(ctx)
	}

	_, metricsErr := metrics.StartServer(ctx, cfg.MetricsAddr)

	var pool *pgxpool.Pool
	if pg, ok := rt.storage.(*kv.Postgres); ok {
		pool = pg.Pool()
	}

	var oidc *providers.OIDC
	if cfg.OIDC.Enabled() {
		oidc, err = providers.NewOIDC(ctx, providers.OIDCConfig{
			Issuer:       cfg.OIDC.Issuer,
			ClientID:     cfg.OIDC.ClientID,
			ClientSecret: cfg.OIDC.ClientSecret,
			RedirectURL:  cfg.OIDC.RedirectURL,
			GroupsClaim:  cfg.OIDC.GroupsClaim,
		}, rt.app.Admin)
		if err != nil {
			return fmt.Errorf("oidc: %w", err)
		}
	}

	srv := httpapp.NewEchoServer(rt.app, httpapp.Options{
		Logger:   logger,
		Sessions: httpapp.NewSessionManager(pool, cfg.AuthCookieSecure),
		OIDC:     oidc,
		Syncer:   syncer,
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start(cfg.HTTPAddr)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return nil
	case err := <-metricsErr:
		return fmt.Errorf("metrics server: %w", err)
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}
