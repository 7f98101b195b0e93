// Package authn loads the signed-in dashboard user from the session and
// gates routes on page access.
package authn

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strings"

	"github.com/alexedwards/scs/v2"
	"github.com/labstack/echo/v5"
	"github.com/opsboard/opsboard/internal/auth"
	"github.com/opsboard/opsboard/internal/state"
)

const (
	ContextKeyPrincipal = "auth_principal"

	SessionKeyUser   = "auth_user"
	SessionKeyMethod = "auth_method"
)

// AdminLookup resolves the admin record behind a session.
type AdminLookup interface {
	Get(id string) (state.DashboardAdmin, bool)
}

func PrincipalFromContext(c *echo.Context) (state.User, bool) {
	u, ok := c.Get(ContextKeyPrincipal).(state.User)
	return u, ok
}

// SignIn rotates the session token and stores u.
func SignIn(c *echo.Context, sessions *scs.SessionManager, u state.User, method string) error {
	ctx := c.Request().Context()
	raw, err := json.Marshal(u)
	if err != nil {
		return err
	}
	if err := sessions.RenewToken(ctx); err != nil {
		return err
	}
	sessions.Put(ctx, SessionKeyUser, raw)
	sessions.Put(ctx, SessionKeyMethod, method)
	return nil
}

// LoadPrincipal returns the session user. Users backed by an admin record
// are refreshed from it so role and permission edits apply at once; a
// missing or disabled record ends the session.
func LoadPrincipal(c *echo.Context, sessions *scs.SessionManager, admins AdminLookup) (state.User, bool, error) {
	ctx := c.Request().Context()
	raw := sessions.GetBytes(ctx, SessionKeyUser)
	if len(raw) == 0 {
		return state.User{}, false, nil
	}
	var u state.User
	if err := json.Unmarshal(raw, &u); err != nil || u.ID == "" {
		_ = sessions.Destroy(ctx)
		return state.User{}, false, nil
	}

	admin, ok := admins.Get(u.ID)
	switch {
	case ok && admin.Status == state.AdminDisabled:
		_ = sessions.Destroy(ctx)
		return state.User{}, false, nil
	case ok:
		groups := u.Groups
		u = admin.ToUser()
		u.Groups = groups
	case sessions.GetString(ctx, SessionKeyMethod) != auth.MethodOIDC:
		_ = sessions.Destroy(ctx)
		return state.User{}, false, nil
	}
	return u, true, nil
}

func RequireAuth(sessions *scs.SessionManager, admins AdminLookup) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c *echo.Context) error {
			principal, ok, err := LoadPrincipal(c, sessions, admins)
			if err != nil {
				return err
			}
			if !ok {
				return handleUnauth(c)
			}
			c.Set(ContextKeyPrincipal, principal)
			return next(c)
		}
	}
}

// RequirePage allows the request only when the principal may open page.
func RequirePage(page string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c *echo.Context) error {
			p, ok := PrincipalFromContext(c)
			if !ok {
				return handleUnauth(c)
			}
			if !state.CanAccessPage(&p, page) {
				return Forbidden(c)
			}
			return next(c)
		}
	}
}

func Forbidden(c *echo.Context) error {
	if isAPIRequest(c) {
		return c.JSON(http.StatusForbidden, map[string]string{"error": "forbidden"})
	}
	return c.String(http.StatusForbidden, "403 forbidden")
}

func isAPIRequest(c *echo.Context) bool {
	return strings.HasPrefix(c.Request().URL.Path, "/api/")
}

func handleUnauth(c *echo.Context) error {
	if isAPIRequest(c) {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
	}

	location := "/auth/oidc/login"
	if c.Request().Method == http.MethodGet {
		if next := SanitizeNext(c.Request().URL.RequestURI()); next != "" {
			location += "?next=" + url.QueryEscape(next)
		}
	}
	return c.Redirect(http.StatusSeeOther, location)
}

// SanitizeNext accepts only same-origin relative paths.
func SanitizeNext(next string) string {
	next = strings.TrimSpace(next)
	if next == "" || next == "/" || len(next) > 2048 {
		return ""
	}
	if !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") {
		return ""
	}
	if strings.Contains(next, "\\") {
		return ""
	}

	u, err := url.Parse(next)
	if err != nil || u.IsAbs() || u.Host != "" || u.Scheme != "" {
		return ""
	}
	if strings.HasPrefix(u.Path, "//") || strings.Contains(u.Path, "\\") || strings.HasPrefix(u.Path, "/auth/") {
		return ""
	}
	return next
}
