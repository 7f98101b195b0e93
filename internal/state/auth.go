package state

import (
	"log/slog"
	"strings"

	"github.com/opsboard/opsboard/internal/kv"
	"github.com/opsboard/opsboard/internal/store"
)

// Role is a dashboard role. super_admin and admin are admin-tier; user is
// standard-tier.
type Role string

const (
	RoleSuperAdmin Role = "super_admin"
	RoleAdmin      Role = "admin"
	RoleUser       Role = "user"
)

// Roles lists every role from highest to lowest tier.
var Roles = []Role{RoleSuperAdmin, RoleAdmin, RoleUser}

func (r Role) IsAdminTier() bool {
	return r == RoleSuperAdmin || r == RoleAdmin
}

func (r Role) Valid() bool {
	switch r {
	case RoleSuperAdmin, RoleAdmin, RoleUser:
		return true
	}
	return false
}

// ParseRole normalizes raw into a Role.
func ParseRole(raw string) (Role, bool) {
	r := Role(strings.ToLower(strings.TrimSpace(raw)))
	return r, r.Valid()
}

// User is the identity of an authenticated dashboard session.
type User struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	DisplayName string `json:"displayName"`
	Role        Role   `json:"role"`
	// Permissions, when non-nil, is authoritative over AllowedPages.
	Permissions map[string]bool `json:"permissions,omitempty"`
	// AllowedPages is the legacy allow-list of page path prefixes.
	AllowedPages []string `json:"allowedPages,omitempty"`
	Groups       []string `json:"groups,omitempty"`
}

func (u User) clone() User {
	u.Permissions = cloneMap(u.Permissions)
	u.AllowedPages = cloneStrings(u.AllowedPages)
	u.Groups = cloneStrings(u.Groups)
	return u
}

type AuthState struct {
	User            *User  `json:"user"`
	IsAuthenticated bool   `json:"isAuthenticated"`
	Loading         bool   `json:"loading"`
	Error           string `json:"error,omitempty"`
}

type authPersisted struct {
	User            *User `json:"user"`
	IsAuthenticated bool  `json:"isAuthenticated"`
}

// AuthStore holds the current session. Only the user and the authenticated
// flag survive restarts.
type AuthStore struct {
	s *store.Store[AuthState]
}

func NewAuthStore(storage kv.Storage, logger *slog.Logger) *AuthStore {
	a := &AuthStore{s: store.New(AuthState{})}
	attach(a.s, storage, KeyAuth,
		func(st AuthState) authPersisted {
			return authPersisted{User: st.User, IsAuthenticated: st.IsAuthenticated}
		},
		func(cur AuthState, p authPersisted) AuthState {
			cur.User = p.User
			cur.IsAuthenticated = p.IsAuthenticated && p.User != nil
			return cur
		},
		logger,
	)
	return a
}

func (a *AuthStore) State() AuthState { return a.s.Get() }

func (a *AuthStore) Subscribe(fn store.Listener[AuthState]) func() { return a.s.Subscribe(fn) }

// Login replaces the session with user.
func (a *AuthStore) Login(user User) {
	u := user.clone()
	mutate(a.s, "auth", func(AuthState) AuthState {
		return AuthState{User: &u, IsAuthenticated: true}
	})
}

// Logout clears the session.
func (a *AuthStore) Logout() {
	mutate(a.s, "auth", func(AuthState) AuthState { return AuthState{} })
}

func (a *AuthStore) SetLoading(loading bool) {
	mutate(a.s, "auth", func(st AuthState) AuthState {
		st.Loading = loading
		return st
	})
}

func (a *AuthStore) SetError(msg string) {
	mutate(a.s, "auth", func(st AuthState) AuthState {
		st.Error = msg
		st.Loading = false
		return st
	})
}

// CurrentUser returns a copy of the signed-in user.
func (a *AuthStore) CurrentUser() (User, bool) {
	st := a.s.Get()
	if !st.IsAuthenticated || st.User == nil {
		return User{}, false
	}
	return st.User.clone(), true
}

// CanAccessPage evaluates the permission chain against the current session.
func (a *AuthStore) CanAccessPage(path string) bool {
	st := a.s.Get()
	if !st.IsAuthenticated {
		return CanAccessPage(nil, path)
	}
	return CanAccessPage(st.User, path)
}

func (a *AuthStore) IsAdmin() bool {
	u, ok := a.CurrentUser()
	return ok && u.Role.IsAdminTier()
}
