// Package sync refreshes the dashboard stores from external systems.
package sync

import (
	"context"
	"errors"
)

// Runner executes a single refresh pass.
type Runner interface {
	RunOnce(context.Context) error
}

// RunnerFunc adapts a function to Runner.
type RunnerFunc func(context.Context) error

func (f RunnerFunc) RunOnce(ctx context.Context) error { return f(ctx) }

var ErrNoEnabledConnectors = errors.New("no enabled connectors are configured")

// ErrSyncAlreadyRunning is returned when another pass of the same runner is
// still in progress.
var ErrSyncAlreadyRunning = errors.New("sync is already running")
