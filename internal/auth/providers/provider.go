// Package providers implements the dashboard login methods.
package providers

import (
	"context"
	"time"

	"github.com/opsboard/opsboard/internal/state"
)

type Provider interface {
	Name() string
	Authenticate(ctx context.Context, email, password string) (state.User, error)
}

// AdminDirectory is the admin record lookup the providers need.
type AdminDirectory interface {
	FindByEmail(email string) (state.DashboardAdmin, bool)
	RecordLogin(id string, at time.Time)
}

// RoleResolver maps identity-provider groups to a dashboard role.
type RoleResolver interface {
	AdminDirectory
	ResolveRole(groups []string) (state.Role, bool)
}
