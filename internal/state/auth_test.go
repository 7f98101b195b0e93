package state

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/opsboard/opsboard/internal/kv"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestAuthStoreLoginLogout(t *testing.T) {
	t.Parallel()

	a := NewAuthStore(nil, testLogger())
	if a.CanAccessPage("/dashboard") {
		t.Fatal("CanAccessPage before login = true, want false")
	}

	perms := map[string]bool{CapUsers: true}
	a.Login(User{ID: "u1", Role: RoleUser, Permissions: perms})
	perms[CapUsers] = false

	if !a.CanAccessPage("/users") {
		t.Fatal("login did not copy the permission map")
	}
	if a.IsAdmin() {
		t.Fatal("IsAdmin() = true for standard user")
	}

	a.Login(User{ID: "u2", Role: RoleAdmin})
	u, ok := a.CurrentUser()
	if !ok || u.ID != "u2" || !a.IsAdmin() {
		t.Fatalf("CurrentUser() = %+v, %v, want u2 admin", u, ok)
	}

	a.Logout()
	if _, ok := a.CurrentUser(); ok {
		t.Fatal("CurrentUser() after logout ok = true")
	}
	if a.CanAccessPage("/dashboard") {
		t.Fatal("CanAccessPage after logout = true")
	}
}

func TestAuthStorePersistsOnlySession(t *testing.T) {
	t.Parallel()

	storage := kv.NewMemory()
	first := NewAuthStore(storage, testLogger())
	first.Login(User{ID: "u1", DisplayName: "Ada", Role: RoleUser})
	first.SetLoading(true)
	first.SetError("boom")

	second := NewAuthStore(storage, testLogger())
	st := second.State()
	if !st.IsAuthenticated || st.User == nil || st.User.DisplayName != "Ada" {
		t.Fatalf("rehydrated = %+v, want authenticated Ada", st)
	}
	if st.Loading || st.Error != "" {
		t.Fatalf("rehydrated loading=%v error=%q, want defaults", st.Loading, st.Error)
	}
}

func TestAuthStoreCorruptBlobFallsBack(t *testing.T) {
	t.Parallel()

	storage := kv.NewMemory()
	if err := storage.Set(context.Background(), KeyAuth, []byte("{not json")); err != nil {
		t.Fatalf("Set: %v", err)
	}
	a := NewAuthStore(storage, testLogger())
	if a.State().IsAuthenticated {
		t.Fatal("corrupt blob produced an authenticated session")
	}
	a.Login(User{ID: "u1", Role: RoleUser})
	if !a.State().IsAuthenticated {
		t.Fatal("store unusable after corrupt blob")
	}
}

func TestParseRole(t *testing.T) {
	t.Parallel()

	if r, ok := ParseRole(" Super_Admin "); !ok || r != RoleSuperAdmin {
		t.Fatalf("ParseRole = %q, %v, want super_admin", r, ok)
	}
	if _, ok := ParseRole("viewer"); ok {
		t.Fatal("ParseRole(viewer) ok = true")
	}
}
