package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/opsboard/opsboard/internal/config"
	"github.com/opsboard/opsboard/internal/connectors/sanernow"
	"github.com/opsboard/opsboard/internal/credentials"
	"github.com/opsboard/opsboard/internal/kv"
	"github.com/opsboard/opsboard/internal/state"
)

const sanerNowSecretField = "token"

// runtime is everything a command needs once configuration is loaded.
type runtime struct {
	cfg     config.Config
	storage kv.Closer
	writer  *kv.WriteBehind
	scanner state.VulnerabilitySource
	app     *state.App
	logger  *slog.Logger
}

func openRuntime(ctx context.Context, cfg config.Config, logger *slog.Logger) (*runtime, error) {
	storage, err := kv.Open(ctx, cfg.StorageOptions())
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}

	writer := kv.NewWriteBehind(storage, logger, 0)
	scanner, err := newScanner(cfg, writer)
	if err != nil {
		_ = writer.Close()
		_ = storage.Close()
		return nil, err
	}

	app := state.NewApp(state.Options{
		Storage:     writer,
		Logger:      logger,
		Scanner:     scanner,
		ScanTimeout: cfg.ScanTimeout,
	})
	return &runtime{cfg: cfg, storage: storage, writer: writer, scanner: scanner, app: app, logger: logger}, nil
}

// Close drains queued state writes before closing the backend.
func (rt *runtime) Close() error {
	_ = rt.writer.Close()
	return rt.storage.Close()
}

// newScanner returns nil when SanerNow is not configured. The token comes
// from Vault, then SANERNOW_TOKEN, then the token stored in the dashboard.
func newScanner(cfg config.Config, storage kv.Storage) (state.VulnerabilitySource, error) {
	if !cfg.SanerNow.Enabled() {
		return nil, nil
	}

	var chain credentials.Chain
	if cfg.Vault.Enabled() {
		v, err := credentials.NewVault(credentials.VaultOptions{
			Address:    cfg.Vault.Addr,
			Namespace:  cfg.Vault.Namespace,
			Token:      cfg.Vault.Token,
			SecretPath: cfg.Vault.SecretPath,
			Field:      sanerNowSecretField,
		})
		if err != nil {
			return nil, fmt.Errorf("vault credentials: %w", err)
		}
		chain = append(chain, v)
	}
	chain = append(chain, credentials.Static(cfg.SanerNow.Token), credentials.Stored{Storage: storage})

	client, err := sanernow.New(sanernow.Options{
		BaseURL:     cfg.SanerNow.BaseURL,
		Account:     cfg.SanerNow.Account,
		Credentials: chain,
	})
	if err != nil {
		return nil, err
	}
	return client, nil
}
