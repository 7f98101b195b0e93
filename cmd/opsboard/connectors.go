package main

import (
	"fmt"
	"os"

	"github.com/opsboard/opsboard/internal/config"
	"github.com/opsboard/opsboard/internal/connectors/googleworkspace"
	"github.com/opsboard/opsboard/internal/connectors/graph"
	"github.com/opsboard/opsboard/internal/connectors/unifi"
	"github.com/opsboard/opsboard/internal/state"
	"github.com/opsboard/opsboard/internal/sync"
)

// buildConnectors returns a connector for every configured directory and
// network source.
func buildConnectors(cfg config.Config, app *state.App) ([]sync.Connector, error) {
	var out []sync.Connector

	if cfg.Graph.Enabled() {
		client, err := graph.New(cfg.Graph.TenantID, cfg.Graph.ClientID, cfg.Graph.ClientSecret, graph.Options{})
		if err != nil {
			return nil, fmt.Errorf("microsoft graph: %w", err)
		}
		out = append(out, sync.UserDirectory{Source: state.SourceM365, Fetcher: client, Store: app.Users})
	}

	if cfg.Google.Enabled() {
		key, err := os.ReadFile(cfg.Google.CredentialsFile)
		if err != nil {
			return nil, fmt.Errorf("google workspace credentials: %w", err)
		}
		client, err := googleworkspace.New(googleworkspace.Config{
			CredentialsJSON: key,
			AdminEmail:      cfg.Google.AdminEmail,
			CustomerID:      cfg.Google.CustomerID,
		}, googleworkspace.Options{})
		if err != nil {
			return nil, fmt.Errorf("google workspace: %w", err)
		}
		out = append(out, sync.UserDirectory{Source: state.SourceGoogleWorkspace, Fetcher: client, Store: app.Users})
	}

	if cfg.UniFi.Enabled() {
		client, err := unifi.New(cfg.UniFi.URL, cfg.UniFi.Username, cfg.UniFi.Password, unifi.Options{})
		if err != nil {
			return nil, fmt.Errorf("unifi: %w", err)
		}
		out = append(out, sync.NetworkSites{Fetcher: client, Store: app.Network})
	}

	return out, nil
}

func newRefresher(rt *runtime) (*sync.Refresher, error) {
	conns, err := buildConnectors(rt.cfg, rt.app)
	if err != nil {
		return nil, err
	}
	return sync.NewRefresher(conns, sync.RefresherOptions{
		Notify: func(title, message string) {
			rt.app.Notify(state.NotificationError, title, message)
		},
		Logger:  rt.logger,
		Timeout: rt.cfg.ScanTimeout,
	}), nil
}
