package sync

import (
	"context"
	"errors"
)

type compositeRunner struct {
	runners []Runner
}

// NewCompositeRunner runs each runner in turn and folds their outcomes: any
// hard error wins, then any success, then busy, then nothing-to-do.
func NewCompositeRunner(runners ...Runner) Runner {
	filtered := make([]Runner, 0, len(runners))
	for _, runner := range runners {
		if runner != nil {
			filtered = append(filtered, runner)
		}
	}
	return &compositeRunner{runners: filtered}
}

func (r *compositeRunner) RunOnce(ctx context.Context) error {
	if r == nil || len(r.runners) == 0 {
		return ErrNoEnabledConnectors
	}

	var (
		hardErrs   []error
		anySuccess bool
		busyCount  int
	)
	for _, runner := range r.runners {
		err := runner.RunOnce(ctx)
		switch {
		case err == nil:
			anySuccess = true
		case errors.Is(err, ErrSyncAlreadyRunning):
			busyCount++
		case isOnlyNoWorkError(err):
			// disabled
		default:
			hardErrs = append(hardErrs, err)
		}
	}

	if len(hardErrs) > 0 {
		return errors.Join(hardErrs...)
	}
	if anySuccess {
		return nil
	}
	if busyCount > 0 {
		return ErrSyncAlreadyRunning
	}
	return ErrNoEnabledConnectors
}

// isOnlyNoWorkError reports whether every leaf of err is
// ErrNoEnabledConnectors.
func isOnlyNoWorkError(err error) bool {
	if err == nil {
		return false
	}
	type multiUnwrapper interface {
		Unwrap() []error
	}
	if joined, ok := err.(multiUnwrapper); ok {
		children := joined.Unwrap()
		if len(children) == 0 {
			return false
		}
		for _, child := range children {
			if !isOnlyNoWorkError(child) {
				return false
			}
		}
		return true
	}
	if next := errors.Unwrap(err); next != nil {
		return isOnlyNoWorkError(next)
	}
	return err == ErrNoEnabledConnectors
}
