package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/opsboard/opsboard/internal/config"
	"github.com/opsboard/opsboard/internal/sync"
	"github.com/spf13/cobra"
)

var syncWithScan bool

var syncCmd = &cobra.Command{
	Use:         "sync",
	Short:       "Run a one-off sync of Microsoft 365, Google Workspace and UniFi (if configured).",
	Args:        cobra.NoArgs,
	Annotations: structuredLog,
	RunE: func(cmd *cobra.Command, args []string) error {
		return jobExitError(runSync(syncWithScan))
	},
}

func init() {
	syncCmd.Flags().BoolVar(&syncWithScan, "scan", false, "Also run a SanerNow vulnerability scan.")
}

func runSync(withScan bool) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	rt, err := openRuntime(ctx, cfg, slog.Default())
	if err != nil {
		return err
	}
	defer rt.Close()

	refresher, err := newRefresher(rt)
	if err != nil {
		return err
	}
	var runner sync.Runner = refresher
	if withScan {
		runner = sync.NewCompositeRunner(refresher, sync.ScanRunner(rt.app.Patch))
	}
	if err := runner.RunOnce(ctx); err != nil {
		if errors.Is(err, sync.ErrNoEnabledConnectors) {
			slog.Warn("no connectors configured; nothing to sync")
			return nil
		}
		return err
	}
	slog.Info("sync complete", "connectors", refresher.Connectors())
	return nil
}
