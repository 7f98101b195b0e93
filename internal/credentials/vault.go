package credentials

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	vaultapi "github.com/hashicorp/vault/api"
)

// DefaultVaultField is the secret field read when VaultOptions.Field is empty.
const DefaultVaultField = "token"

type VaultOptions struct {
	Address    string
	Namespace  string
	Token      string
	SecretPath string
	Field      string
	HTTPClient *http.Client
}

// Vault reads the token from a Vault KV secret on every call, so rotations in
// Vault take effect without a restart.
type Vault struct {
	client *vaultapi.Client
	path   string
	field  string
}

func NewVault(opts VaultOptions) (*Vault, error) {
	address := strings.TrimSpace(opts.Address)
	if address == "" {
		return nil, errors.New("vault address is required")
	}
	path := strings.Trim(strings.TrimSpace(opts.SecretPath), "/")
	if path == "" {
		return nil, errors.New("vault secret path is required")
	}
	token := strings.TrimSpace(opts.Token)
	if token == "" {
		return nil, errors.New("vault token is required")
	}

	cfg := vaultapi.DefaultConfig()
	cfg.Address = address
	if opts.HTTPClient != nil {
		cfg.HttpClient = opts.HTTPClient
	} else {
		cfg.HttpClient = &http.Client{Timeout: 30 * time.Second}
	}
	client, err := vaultapi.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("vault client setup: %w", err)
	}
	if ns := strings.TrimSpace(opts.Namespace); ns != "" {
		client.SetNamespace(ns)
	}
	client.SetToken(token)

	field := strings.TrimSpace(opts.Field)
	if field == "" {
		field = DefaultVaultField
	}
	return &Vault{client: client, path: path, field: field}, nil
}

func (v *Vault) Token(ctx context.Context) (string, error) {
	secret, err := v.client.Logical().ReadWithContext(ctx, v.path)
	if err != nil {
		return "", fmt.Errorf("vault read %s: %w", v.path, err)
	}
	if secret == nil || secret.Data == nil {
		return "", ErrNoCredential
	}
	data := secret.Data
	// KV v2 nests the fields under "data".
	if nested, ok := data["data"].(map[string]any); ok {
		data = nested
	}
	token, _ := data[v.field].(string)
	token = strings.TrimSpace(token)
	if token == "" {
		return "", ErrNoCredential
	}
	return token, nil
}
