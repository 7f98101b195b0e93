// Package auth authenticates dashboard administrators.
package auth

import (
	"errors"
	"strings"
)

const (
	MethodPassword = "password"
	MethodOIDC     = "oidc"
)

// ErrInvalidCredentials covers unknown accounts, disabled accounts and wrong
// passwords alike.
var ErrInvalidCredentials = errors.New("invalid credentials")

// ErrNoRoleMapping is returned when an OIDC identity matches no admin record
// and none of its groups map to a role.
var ErrNoRoleMapping = errors.New("no role mapping for identity")

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
