package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v5"
	"github.com/opsboard/opsboard/internal/auth"
	"github.com/opsboard/opsboard/internal/state"
	"github.com/opsboard/opsboard/internal/sync"
)

// Users serves the directory. Records created here are manual entries;
// synced sources are replaced wholesale by the connectors.
func (h *Handlers) Users() Resource[state.DirectoryUser, state.UserPatch] {
	users := h.App.Users
	return Resource[state.DirectoryUser, state.UserPatch]{
		Name: "user",
		Filtered: func(c *echo.Context) []state.DirectoryUser {
			st := users.State()
			st.Filters = state.UserFilters{
				Search:     c.QueryParam("search"),
				Status:     c.QueryParam("status"),
				Department: c.QueryParam("department"),
				Source:     c.QueryParam("source"),
			}
			return st.Filtered()
		},
		Get:    users.Get,
		Add:    users.AddUser,
		Update: users.UpdateUser,
		Remove: users.RemoveUser,
		ID:     func(u *state.DirectoryUser) *string { return &u.ID },
		Prepare: func(u *state.DirectoryUser) error {
			u.Email = auth.NormalizeEmail(u.Email)
			u.DisplayName = strings.TrimSpace(u.DisplayName)
			if u.Email == "" {
				return errors.New("email is required")
			}
			if u.DisplayName == "" {
				u.DisplayName = u.Email
			}
			if u.Status == "" {
				u.Status = state.UserActive
			}
			if u.CreatedAt.IsZero() {
				u.CreatedAt = h.now()
			}
			u.Source = state.SourceManual
			return nil
		},
	}
}

func (h *Handlers) HandleUserStats(c *echo.Context) error {
	return c.JSON(http.StatusOK, h.App.Users.Stats())
}

// HandleSync runs one connector refresh pass.
func (h *Handlers) HandleSync(c *echo.Context) error {
	if h.Syncer == nil {
		return jsonError(c, http.StatusNotFound, "no connectors configured")
	}
	err := h.Syncer.RunOnce(c.Request().Context())
	switch {
	case err == nil:
		return c.NoContent(http.StatusNoContent)
	case errors.Is(err, sync.ErrSyncAlreadyRunning):
		return jsonError(c, http.StatusConflict, "sync is already running")
	case errors.Is(err, sync.ErrNoEnabledConnectors):
		return jsonError(c, http.StatusNotFound, "no connectors configured")
	default:
		c.Logger().Warn("manual sync failed", "error", err)
		return jsonError(c, http.StatusBadGateway, "sync failed")
	}
}
