package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	gosync "sync"
	"sync/atomic"
	"time"

	"github.com/opsboard/opsboard/internal/metrics"
	"golang.org/x/sync/errgroup"
)

// Notifier receives one message per failed connector.
type Notifier func(title, message string)

// Refresher runs every connector concurrently. A pass is rejected with
// ErrSyncAlreadyRunning while another is in flight.
type Refresher struct {
	connectors []Connector
	notify     Notifier
	logger     *slog.Logger
	timeout    time.Duration

	running atomic.Bool
}

type RefresherOptions struct {
	Notify Notifier
	Logger *slog.Logger
	// Timeout bounds each connector; zero means no bound beyond ctx.
	Timeout time.Duration
}

func NewRefresher(connectors []Connector, opts RefresherOptions) *Refresher {
	filtered := make([]Connector, 0, len(connectors))
	for _, c := range connectors {
		if c != nil {
			filtered = append(filtered, c)
		}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Refresher{connectors: filtered, notify: opts.Notify, logger: logger, timeout: opts.Timeout}
}

// Connectors lists the configured connector names.
func (r *Refresher) Connectors() []string {
	names := make([]string, 0, len(r.connectors))
	for _, c := range r.connectors {
		names = append(names, c.Name())
	}
	return names
}

func (r *Refresher) RunOnce(ctx context.Context) error {
	if len(r.connectors) == 0 {
		return ErrNoEnabledConnectors
	}
	if !r.running.CompareAndSwap(false, true) {
		return ErrSyncAlreadyRunning
	}
	defer r.running.Store(false)

	var (
		g    errgroup.Group
		mu   gosync.Mutex
		errs []error
	)
	for _, c := range r.connectors {
		g.Go(func() error {
			name := strings.TrimSpace(c.Name())
			start := time.Now()

			err := r.refresh(ctx, c)
			if err != nil {
				metrics.ConnectorRefreshTotal.WithLabelValues(name, "failure").Inc()
				r.logger.Error("connector refresh failed", "connector", name, "duration", time.Since(start), "err", err)
				if r.notify != nil {
					r.notify(name+" sync failed", err.Error())
				}
				mu.Lock()
				errs = append(errs, fmt.Errorf("%s sync: %w", name, err))
				mu.Unlock()
				return nil
			}
			metrics.ConnectorRefreshTotal.WithLabelValues(name, "success").Inc()
			metrics.ConnectorLastSuccessTimestamp.WithLabelValues(name).Set(float64(time.Now().Unix()))
			r.logger.Info("connector refreshed", "connector", name, "duration", time.Since(start))
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}

func (r *Refresher) refresh(ctx context.Context, c Connector) error {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}
	return c.Refresh(ctx)
}
