package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v5"
	"github.com/opsboard/opsboard/internal/auth"
	"github.com/opsboard/opsboard/internal/auth/providers"
	"github.com/opsboard/opsboard/internal/http/authn"
	"github.com/opsboard/opsboard/internal/state"
)

const (
	sessionKeyOIDCState = "oidc_state"
	sessionKeyOIDCNonce = "oidc_nonce"
	sessionKeyOIDCNext  = "oidc_next"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type sessionResponse struct {
	User  state.User `json:"user"`
	Pages []string   `json:"pages"`
}

func newSessionResponse(u state.User) sessionResponse {
	return sessionResponse{User: u, Pages: state.AccessiblePages(&u)}
}

func (h *Handlers) HandleLogin(c *echo.Context) error {
	if h.Sessions == nil || h.Password == nil {
		return h.RenderError(c, errors.New("password login not configured"))
	}

	var req loginRequest
	if err := decodeJSON(c, &req); err != nil {
		return jsonError(c, http.StatusBadRequest, err.Error())
	}
	email := auth.NormalizeEmail(req.Email)
	if email == "" || strings.TrimSpace(req.Password) == "" {
		return jsonError(c, http.StatusUnauthorized, "invalid email or password")
	}

	user, err := h.Password.Authenticate(c.Request().Context(), email, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			return jsonError(c, http.StatusUnauthorized, "invalid email or password")
		}
		return h.RenderError(c, err)
	}
	if err := authn.SignIn(c, h.Sessions, user, h.Password.Name()); err != nil {
		return h.RenderError(c, err)
	}
	return c.JSON(http.StatusOK, newSessionResponse(user))
}

func (h *Handlers) HandleLogout(c *echo.Context) error {
	if h.Sessions == nil {
		return h.RenderError(c, errors.New("auth sessions not configured"))
	}
	if err := h.Sessions.Destroy(c.Request().Context()); err != nil {
		return h.RenderError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handlers) HandleSession(c *echo.Context) error {
	u, ok := authn.PrincipalFromContext(c)
	if !ok {
		return jsonError(c, http.StatusUnauthorized, "unauthorized")
	}
	return c.JSON(http.StatusOK, newSessionResponse(u))
}

func (h *Handlers) HandleOIDCLogin(c *echo.Context) error {
	if h.OIDC == nil || h.Sessions == nil {
		return renderNotFound(c)
	}
	st, nonce, err := providers.NewState()
	if err != nil {
		return h.RenderError(c, err)
	}
	ctx := c.Request().Context()
	h.Sessions.Put(ctx, sessionKeyOIDCState, st)
	h.Sessions.Put(ctx, sessionKeyOIDCNonce, nonce)
	h.Sessions.Put(ctx, sessionKeyOIDCNext, authn.SanitizeNext(c.QueryParam("next")))
	return c.Redirect(http.StatusFound, h.OIDC.AuthCodeURL(st, nonce))
}

func (h *Handlers) HandleOIDCCallback(c *echo.Context) error {
	if h.OIDC == nil || h.Sessions == nil {
		return renderNotFound(c)
	}
	ctx := c.Request().Context()
	wantState := h.Sessions.PopString(ctx, sessionKeyOIDCState)
	nonce := h.Sessions.PopString(ctx, sessionKeyOIDCNonce)
	next := h.Sessions.PopString(ctx, sessionKeyOIDCNext)

	if errParam := strings.TrimSpace(c.QueryParam("error")); errParam != "" {
		return c.String(http.StatusUnauthorized, "sign-in was cancelled or rejected by the identity provider")
	}
	if wantState == "" || c.QueryParam("state") != wantState {
		return c.String(http.StatusBadRequest, "invalid or expired sign-in state")
	}
	code := strings.TrimSpace(c.QueryParam("code"))
	if code == "" {
		return c.String(http.StatusBadRequest, "missing authorization code")
	}

	user, err := h.OIDC.Exchange(ctx, code, nonce)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) || errors.Is(err, auth.ErrNoRoleMapping) {
			return c.String(http.StatusForbidden, "your account is not allowed to sign in to this dashboard")
		}
		return h.RenderError(c, err)
	}
	if err := authn.SignIn(c, h.Sessions, user, auth.MethodOIDC); err != nil {
		return h.RenderError(c, err)
	}
	if next == "" {
		next = "/"
	}
	return c.Redirect(http.StatusSeeOther, next)
}
