package sync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/opsboard/opsboard/internal/state"
)

// Connector refreshes one slice of state from one external system.
type Connector interface {
	Name() string
	Refresh(ctx context.Context) error
}

type UserFetcher interface {
	FetchUsers(ctx context.Context) ([]state.DirectoryUser, error)
}

type SiteFetcher interface {
	FetchSites(ctx context.Context, at time.Time) ([]state.UnifiSite, error)
}

// UserDirectory replaces the users of one directory source.
type UserDirectory struct {
	Source  string
	Fetcher UserFetcher
	Store   *state.UserStore
	Now     func() time.Time
}

func (d UserDirectory) Name() string { return d.Source }

func (d UserDirectory) Refresh(ctx context.Context) error {
	d.Store.SetLoading(true)
	users, err := d.Fetcher.FetchUsers(ctx)
	if err != nil {
		d.Store.SetError(err.Error())
		return err
	}
	d.Store.SetError("")
	d.Store.ReplaceSource(d.Source, users, now(d.Now))
	return nil
}

// NetworkSites replaces the UniFi site list.
type NetworkSites struct {
	Fetcher SiteFetcher
	Store   *state.NetworkStore
	Now     func() time.Time
}

func (NetworkSites) Name() string { return "unifi" }

func (n NetworkSites) Refresh(ctx context.Context) error {
	at := now(n.Now)
	n.Store.SetLoading(true)
	sites, err := n.Fetcher.FetchSites(ctx, at)
	if err != nil {
		n.Store.SetError(err.Error())
		return err
	}
	n.Store.RefreshSites(sites, at)
	return nil
}

// ScanRunner runs a vulnerability scan as a scheduled job.
func ScanRunner(ps *state.PatchStore) Runner {
	return RunnerFunc(func(ctx context.Context) error {
		err := ps.PerformScan(ctx)
		switch {
		case errors.Is(err, state.ErrScanInFlight):
			return fmt.Errorf("vulnerability scan: %w", ErrSyncAlreadyRunning)
		case errors.Is(err, state.ErrNoScanner):
			return fmt.Errorf("vulnerability scan: %w", ErrNoEnabledConnectors)
		}
		return err
	})
}

func now(fn func() time.Time) time.Time {
	if fn != nil {
		return fn()
	}
	return time.Now().UTC()
}
