package providers

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	oidclib "github.com/coreos/go-oidc/v3/oidc"
	"github.com/opsboard/opsboard/internal/auth"
	"github.com/opsboard/opsboard/internal/state"
	"golang.org/x/oauth2"
)

const defaultGroupsClaim = "groups"

type OIDCConfig struct {
	Issuer       string
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Scopes       []string
	// GroupsClaim names the ID token claim holding group ids or names.
	GroupsClaim string
	HTTPClient  *http.Client
}

// OIDC signs admins in through an OpenID Connect provider. An identity
// with an admin record gets that record's role; otherwise its groups are
// resolved through the group mappings.
type OIDC struct {
	oauth       *oauth2.Config
	verifier    *oidclib.IDTokenVerifier
	groupsClaim string
	roles       RoleResolver
	httpClient  *http.Client
	now         func() time.Time
}

type oidcClaims struct {
	Subject           string `json:"sub"`
	Email             string `json:"email"`
	PreferredUsername string `json:"preferred_username"`
	Name              string `json:"name"`
}

func NewOIDC(ctx context.Context, cfg OIDCConfig, roles RoleResolver) (*OIDC, error) {
	issuer := strings.TrimSpace(cfg.Issuer)
	if issuer == "" {
		return nil, errors.New("oidc issuer is required")
	}
	if strings.TrimSpace(cfg.ClientID) == "" {
		return nil, errors.New("oidc client id is required")
	}
	if roles == nil {
		return nil, errors.New("oidc role resolver is required")
	}
	if cfg.HTTPClient != nil {
		ctx = oidclib.ClientContext(ctx, cfg.HTTPClient)
	}
	op, err := oidclib.NewProvider(ctx, issuer)
	if err != nil {
		return nil, fmt.Errorf("oidc discovery: %w", err)
	}

	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = []string{oidclib.ScopeOpenID, "profile", "email"}
	}
	groupsClaim := strings.TrimSpace(cfg.GroupsClaim)
	if groupsClaim == "" {
		groupsClaim = defaultGroupsClaim
	}
	return &OIDC{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Endpoint:     op.Endpoint(),
			Scopes:       scopes,
		},
		verifier:    op.Verifier(&oidclib.Config{ClientID: cfg.ClientID}),
		groupsClaim: groupsClaim,
		roles:       roles,
		httpClient:  cfg.HTTPClient,
		now:         func() time.Time { return time.Now().UTC() },
	}, nil
}

func (o *OIDC) Name() string { return auth.MethodOIDC }

// NewState returns a random state and nonce for one login attempt.
func NewState() (st, nonce string, err error) {
	if st, err = randomURLSafe(24); err != nil {
		return "", "", err
	}
	if nonce, err = randomURLSafe(24); err != nil {
		return "", "", err
	}
	return st, nonce, nil
}

func (o *OIDC) AuthCodeURL(st, nonce string) string {
	return o.oauth.AuthCodeURL(st, oauth2.SetAuthURLParam("nonce", nonce))
}

// Exchange redeems the authorization code and maps the verified identity to
// a dashboard user.
func (o *OIDC) Exchange(ctx context.Context, code, nonce string) (state.User, error) {
	if o.httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, o.httpClient)
	}
	token, err := o.oauth.Exchange(ctx, code)
	if err != nil {
		return state.User{}, fmt.Errorf("oidc code exchange: %w", err)
	}
	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok || rawIDToken == "" {
		return state.User{}, errors.New("oidc token response has no id_token")
	}
	idToken, err := o.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return state.User{}, fmt.Errorf("oidc verify id token: %w", err)
	}
	if idToken.Nonce != nonce {
		return state.User{}, errors.New("oidc nonce mismatch")
	}

	var claims oidcClaims
	if err := idToken.Claims(&claims); err != nil {
		return state.User{}, fmt.Errorf("oidc claims: %w", err)
	}
	var raw map[string]any
	if err := idToken.Claims(&raw); err != nil {
		return state.User{}, fmt.Errorf("oidc claims: %w", err)
	}
	claims.Subject = idToken.Subject
	return o.resolve(claims, groupsFromClaim(raw[o.groupsClaim]))
}

func (o *OIDC) resolve(claims oidcClaims, groups []string) (state.User, error) {
	email := auth.NormalizeEmail(claims.Email)
	if email == "" {
		email = auth.NormalizeEmail(claims.PreferredUsername)
	}

	if admin, ok := o.roles.FindByEmail(email); ok && email != "" {
		if admin.Status == state.AdminDisabled {
			return state.User{}, auth.ErrInvalidCredentials
		}
		o.roles.RecordLogin(admin.ID, o.now())
		u := admin.ToUser()
		u.Groups = groups
		return u, nil
	}

	role, ok := o.roles.ResolveRole(groups)
	if !ok {
		return state.User{}, auth.ErrNoRoleMapping
	}
	name := strings.TrimSpace(claims.Name)
	if name == "" {
		name = email
	}
	return state.User{
		ID:          "oidc:" + claims.Subject,
		Email:       email,
		DisplayName: name,
		Role:        role,
		Groups:      groups,
	}, nil
}

// groupsFromClaim accepts a list or a single string.
func groupsFromClaim(v any) []string {
	switch g := v.(type) {
	case string:
		if s := strings.TrimSpace(g); s != "" {
			return []string{s}
		}
	case []any:
		out := make([]string, 0, len(g))
		for _, item := range g {
			if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
				out = append(out, strings.TrimSpace(s))
			}
		}
		return out
	}
	return nil
}

func randomURLSafe(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
