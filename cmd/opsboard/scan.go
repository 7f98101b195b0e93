package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/opsboard/opsboard/internal/config"
	"github.com/spf13/cobra"
)

var scanCmd = &cobra.Command{
	Use:         "scan",
	Short:       "Run one vulnerability scan against SanerNow and store the results.",
	Args:        cobra.NoArgs,
	Annotations: structuredLog,
	RunE: func(cmd *cobra.Command, args []string) error {
		return jobExitError(runScan())
	},
}

func runScan() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if !cfg.SanerNow.Enabled() {
		return errors.New("SanerNow is not configured (set SANERNOW_BASE_URL and SANERNOW_ACCOUNT)")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	rt, err := openRuntime(ctx, cfg, slog.Default())
	if err != nil {
		return err
	}
	defer rt.Close()

	if err := rt.app.Patch.PerformScan(ctx); err != nil {
		return err
	}

	counts := rt.app.Patch.Counts()
	slog.Info("vulnerability scan complete",
		"findings", len(rt.app.Patch.State().Vulnerabilities),
		"critical", counts.Critical,
		"high", counts.High,
		"medium", counts.Medium,
		"low", counts.Low,
		"hygiene_score", counts.HygieneScore(),
	)
	return nil
}
