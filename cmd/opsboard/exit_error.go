package main

import (
	"context"
	"errors"
	"fmt"
)

const exitCanceled = 130

// exitError carries the process exit code for a failed command. A silent
// exitError has already been reported.
type exitError struct {
	code   int
	err    error
	silent bool
}

func (e *exitError) Error() string {
	if e == nil {
		return ""
	}
	if e.err != nil {
		return e.err.Error()
	}
	return fmt.Sprintf("exit %d", e.code)
}

func (e *exitError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.err
}

func (e *exitError) cause(fallback error) error {
	if e != nil && e.err != nil {
		return e.err
	}
	return fallback
}

// jobExitError maps the result of a one-off job to an exit code. Interrupts
// exit quietly with 130.
func jobExitError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return &exitError{code: exitCanceled, err: err, silent: true}
	}
	return &exitError{code: 1, err: err}
}
