// Package handlers contains the HTTP handlers, split by domain.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/a-h/templ"
	"github.com/alexedwards/scs/v2"
	"github.com/labstack/echo/v5"
	"github.com/opsboard/opsboard/internal/auth/providers"
	"github.com/opsboard/opsboard/internal/state"
)

const (
	// ContextKeyRequestID stores the request id (X-Request-ID) for logging and client error references.
	ContextKeyRequestID = "request_id"

	// InternalErrorCode is a stable error code safe to return to clients.
	InternalErrorCode = "INTERNAL_ERROR"

	maxBodyBytes = 1 << 20
)

// SyncRunner triggers a connector refresh pass.
type SyncRunner interface {
	RunOnce(context.Context) error
}

// Handlers groups all HTTP handlers and shared dependencies.
type Handlers struct {
	App      *state.App
	Sessions *scs.SessionManager
	Password providers.Provider
	// OIDC is nil when single sign-on is not configured.
	OIDC   *providers.OIDC
	Syncer SyncRunner
	Now    func() time.Time
}

func (h *Handlers) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now().UTC()
}

func (h *Handlers) HandleHealthz(c *echo.Context) error {
	return c.String(http.StatusOK, "ok")
}

func (h *Handlers) RenderComponent(c *echo.Context, component templ.Component) error {
	c.Response().Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := component.Render(c.Request().Context(), c.Response()); err != nil {
		return h.RenderError(c, err)
	}
	return nil
}

// RenderError logs err and returns a generic 500 carrying the request id.
func (h *Handlers) RenderError(c *echo.Context, err error) error {
	requestID, _ := c.Get(ContextKeyRequestID).(string)
	req := c.Request()
	c.Logger().Error("http error",
		"request_id", requestID,
		"method", req.Method,
		"path", req.URL.Path,
		"ip", c.RealIP(),
		"error", err,
	)

	msg := "Internal server error."
	if requestID != "" {
		msg = fmt.Sprintf("%s Reference: %s.", msg, requestID)
	}
	return c.JSON(http.StatusInternalServerError, map[string]string{"error": msg, "code": InternalErrorCode})
}

func jsonError(c *echo.Context, status int, msg string) error {
	return c.JSON(status, map[string]string{"error": msg})
}

func renderNotFound(c *echo.Context) error {
	return jsonError(c, http.StatusNotFound, "not found")
}

// decodeJSON reads a single JSON document from the request body into v.
func decodeJSON(c *echo.Context, v any) error {
	dec := json.NewDecoder(io.LimitReader(c.Request().Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is empty")
		}
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}

func pathID(c *echo.Context, name string) string {
	return strings.TrimSpace(c.Param(name))
}

// ParseBoolForm parses a form or query value as a boolean.
func ParseBoolForm(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}
