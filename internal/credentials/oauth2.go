package credentials

import (
	"context"
	"fmt"

	"golang.org/x/oauth2"
)

// TokenSource adapts an oauth2.TokenSource. The wrapped source caches and
// refreshes the access token.
type TokenSource struct {
	Source oauth2.TokenSource
}

func (t TokenSource) Token(context.Context) (string, error) {
	if t.Source == nil {
		return "", ErrNoCredential
	}
	tok, err := t.Source.Token()
	if err != nil {
		return "", fmt.Errorf("oauth2 token: %w", err)
	}
	if tok.AccessToken == "" {
		return "", ErrNoCredential
	}
	return tok.AccessToken, nil
}
