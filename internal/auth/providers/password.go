package providers

import (
	"context"
	"sync"
	"time"

	"github.com/opsboard/opsboard/internal/auth"
	"github.com/opsboard/opsboard/internal/state"
)

// dummyHash is compared against when the account does not exist so that
// unknown emails cost the same as wrong passwords.
var dummyHash = sync.OnceValue(func() string {
	h, _ := auth.HashPassword("opsboard-unknown-account")
	return h
})

type PasswordProvider struct {
	Admins AdminDirectory
	Now    func() time.Time
}

func NewPasswordProvider(admins AdminDirectory) *PasswordProvider {
	return &PasswordProvider{Admins: admins}
}

func (p *PasswordProvider) Name() string {
	return auth.MethodPassword
}

func (p *PasswordProvider) Authenticate(_ context.Context, email, password string) (state.User, error) {
	email = auth.NormalizeEmail(email)
	if email == "" || password == "" {
		return state.User{}, auth.ErrInvalidCredentials
	}

	admin, ok := p.Admins.FindByEmail(email)
	if !ok || admin.PasswordHash == "" {
		_, _ = auth.ComparePassword(password, dummyHash())
		return state.User{}, auth.ErrInvalidCredentials
	}
	if admin.Status == state.AdminDisabled {
		return state.User{}, auth.ErrInvalidCredentials
	}

	match, err := auth.ComparePassword(password, admin.PasswordHash)
	if err != nil {
		return state.User{}, err
	}
	if !match {
		return state.User{}, auth.ErrInvalidCredentials
	}

	now := time.Now().UTC()
	if p.Now != nil {
		now = p.Now()
	}
	p.Admins.RecordLogin(admin.ID, now)
	return admin.ToUser(), nil
}
