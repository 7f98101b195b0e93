package credentials

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/opsboard/opsboard/internal/kv"
)

// DefaultStoredKey is where the dashboard keeps the API token entered by an
// operator.
const DefaultStoredKey = "api-token"

// Stored reads the token from durable key-value storage.
type Stored struct {
	Storage kv.Storage
	Key     string
}

func (s Stored) key() string {
	if strings.TrimSpace(s.Key) == "" {
		return DefaultStoredKey
	}
	return s.Key
}

func (s Stored) Token(ctx context.Context) (string, error) {
	if s.Storage == nil {
		return "", ErrNoCredential
	}
	raw, err := s.Storage.Get(ctx, s.key())
	if errors.Is(err, kv.ErrNotFound) {
		return "", ErrNoCredential
	}
	if err != nil {
		return "", fmt.Errorf("read stored credential: %w", err)
	}
	token := strings.TrimSpace(string(raw))
	if token == "" {
		return "", ErrNoCredential
	}
	return token, nil
}

// Set replaces the stored token. An empty token clears it.
func (s Stored) Set(ctx context.Context, token string) error {
	if s.Storage == nil {
		return errors.New("credential storage is not configured")
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return s.Storage.Delete(ctx, s.key())
	}
	if err := s.Storage.Set(ctx, s.key(), []byte(token)); err != nil {
		return fmt.Errorf("write stored credential: %w", err)
	}
	return nil
}
