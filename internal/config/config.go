// Package config loads runtime configuration from the environment and an
// optional .env file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/opsboard/opsboard/internal/kv"
)

const (
	defaultHTTPAddr     = ":8080"
	defaultSQLitePath   = "opsboard.db"
	defaultScanTimeout  = 60 * time.Second
	defaultSyncInterval = 15 * time.Minute
	defaultGroupsClaim  = "groups"
)

type Config struct {
	HTTPAddr         string
	MetricsAddr      string
	AuthCookieSecure bool

	StorageBackend string
	SQLitePath     string
	DatabaseURL    string

	ScanTimeout  time.Duration
	ScanInterval time.Duration
	SyncInterval time.Duration

	SanerNow SanerNowConfig
	Vault    VaultConfig
	Graph    GraphConfig
	Google   GoogleConfig
	UniFi    UniFiConfig
	OIDC     OIDCConfig
}

type SanerNowConfig struct {
	BaseURL string
	Account string
	Token   string
}

func (c SanerNowConfig) Enabled() bool { return c.BaseURL != "" && c.Account != "" }

type VaultConfig struct {
	Addr       string
	Token      string
	Namespace  string
	SecretPath string
}

func (c VaultConfig) Enabled() bool { return c.Addr != "" && c.SecretPath != "" }

type GraphConfig struct {
	TenantID     string
	ClientID     string
	ClientSecret string
}

func (c GraphConfig) Enabled() bool { return c.TenantID != "" && c.ClientID != "" }

type GoogleConfig struct {
	CredentialsFile string
	AdminEmail      string
	CustomerID      string
}

func (c GoogleConfig) Enabled() bool { return c.CredentialsFile != "" && c.AdminEmail != "" }

type UniFiConfig struct {
	URL      string
	Username string
	Password string
}

func (c UniFiConfig) Enabled() bool { return c.URL != "" }

type OIDCConfig struct {
	Issuer       string
	ClientID     string
	ClientSecret string
	RedirectURL  string
	GroupsClaim  string
}

func (c OIDCConfig) Enabled() bool { return c.Issuer != "" && c.ClientID != "" }

func (c Config) StorageOptions() kv.Options {
	return kv.Options{Backend: c.StorageBackend, SQLitePath: c.SQLitePath, DatabaseURL: c.DatabaseURL}
}

// Load reads .env when present, then the environment.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil {
		var pathErr *os.PathError
		if !errors.As(err, &pathErr) {
			return Config{}, fmt.Errorf("load .env: %w", err)
		}
	}

	cfg := Config{
		HTTPAddr:         getenvDefault("HTTP_ADDR", defaultHTTPAddr),
		MetricsAddr:      getenv("METRICS_ADDR"),
		AuthCookieSecure: getenvBoolDefault("AUTH_COOKIE_SECURE", false),
		StorageBackend:   strings.ToLower(getenvDefault("STORAGE_BACKEND", kv.BackendSQLite)),
		SQLitePath:       getenvDefault("SQLITE_PATH", defaultSQLitePath),
		DatabaseURL:      getenv("DATABASE_URL"),
		ScanTimeout:      getenvDurationDefault("SCAN_TIMEOUT", defaultScanTimeout),
		ScanInterval:     getenvDurationDefault("SCAN_INTERVAL", 0),
		SyncInterval:     getenvDurationDefault("SYNC_INTERVAL", defaultSyncInterval),
		SanerNow: SanerNowConfig{
			BaseURL: getenv("SANERNOW_BASE_URL"),
			Account: getenv("SANERNOW_ACCOUNT"),
			Token:   getenv("SANERNOW_TOKEN"),
		},
		Vault: VaultConfig{
			Addr:       getenv("VAULT_ADDR"),
			Token:      getenv("VAULT_TOKEN"),
			Namespace:  getenv("VAULT_NAMESPACE"),
			SecretPath: getenv("VAULT_SECRET_PATH"),
		},
		Graph: GraphConfig{
			TenantID:     getenv("GRAPH_TENANT_ID"),
			ClientID:     getenv("GRAPH_CLIENT_ID"),
			ClientSecret: getenv("GRAPH_CLIENT_SECRET"),
		},
		Google: GoogleConfig{
			CredentialsFile: getenv("GOOGLE_CREDENTIALS_FILE"),
			AdminEmail:      getenv("GOOGLE_ADMIN_EMAIL"),
			CustomerID:      getenv("GOOGLE_CUSTOMER_ID"),
		},
		UniFi: UniFiConfig{
			URL:      getenv("UNIFI_URL"),
			Username: getenv("UNIFI_USERNAME"),
			Password: os.Getenv("UNIFI_PASSWORD"),
		},
		OIDC: OIDCConfig{
			Issuer:       getenv("OIDC_ISSUER"),
			ClientID:     getenv("OIDC_CLIENT_ID"),
			ClientSecret: getenv("OIDC_CLIENT_SECRET"),
			RedirectURL:  getenv("OIDC_REDIRECT_URL"),
			GroupsClaim:  getenvDefault("OIDC_GROUPS_CLAIM", defaultGroupsClaim),
		},
	}

	switch cfg.StorageBackend {
	case kv.BackendSQLite, kv.BackendMemory:
	case kv.BackendPostgres:
		if cfg.DatabaseURL == "" {
			return cfg, errors.New("DATABASE_URL is required when STORAGE_BACKEND=postgres")
		}
	default:
		return cfg, errors.New("STORAGE_BACKEND must be one of: sqlite, postgres, memory")
	}
	if cfg.ScanTimeout <= 0 {
		cfg.ScanTimeout = defaultScanTimeout
	}
	if cfg.OIDC.Enabled() && cfg.OIDC.RedirectURL == "" {
		return cfg, errors.New("OIDC_REDIRECT_URL is required when OIDC_ISSUER is set")
	}
	return cfg, nil
}

func getenv(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func getenvDefault(key, def string) string {
	if v := getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBoolDefault(key string, def bool) bool {
	switch strings.ToLower(getenv(key)) {
	case "1", "true", "yes":
		return true
	case "0", "false", "no":
		return false
	default:
		return def
	}
}

// getenvDurationDefault falls back to def for unset, malformed or negative
// values.
func getenvDurationDefault(key string, def time.Duration) time.Duration {
	v := getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d < 0 {
		return def
	}
	return d
}
