// Package credentials supplies bearer tokens to outbound API clients.
package credentials

import (
	"context"
	"errors"
	"strings"
)

// ErrNoCredential is returned when a source has nothing configured.
var ErrNoCredential = errors.New("no credential configured")

// Source yields the bearer token for the next request.
type Source interface {
	Token(ctx context.Context) (string, error)
}

// Static is a fixed token, usually read from the environment.
type Static string

func (s Static) Token(context.Context) (string, error) {
	token := strings.TrimSpace(string(s))
	if token == "" {
		return "", ErrNoCredential
	}
	return token, nil
}

// Chain returns the first token any of its sources yields. Sources reporting
// ErrNoCredential are skipped; any other error stops the walk.
type Chain []Source

func (c Chain) Token(ctx context.Context) (string, error) {
	for _, src := range c {
		if src == nil {
			continue
		}
		token, err := src.Token(ctx)
		if errors.Is(err, ErrNoCredential) {
			continue
		}
		if err != nil {
			return "", err
		}
		return token, nil
	}
	return "", ErrNoCredential
}

// Optional resolves src and treats a missing credential as an empty token.
func Optional(ctx context.Context, src Source) (string, error) {
	if src == nil {
		return "", nil
	}
	token, err := src.Token(ctx)
	if errors.Is(err, ErrNoCredential) {
		return "", nil
	}
	return token, err
}
