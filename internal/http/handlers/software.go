package handlers

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v5"
	"github.com/opsboard/opsboard/internal/state"
)

func (h *Handlers) Software() Resource[state.Software, state.SoftwarePatch] {
	software := h.App.Software
	return Resource[state.Software, state.SoftwarePatch]{
		Name: "software",
		Filtered: func(c *echo.Context) []state.Software {
			st := software.State()
			st.Filters = state.SoftwareFilters{
				Search:   c.QueryParam("search"),
				Status:   c.QueryParam("status"),
				Category: c.QueryParam("category"),
				Vendor:   c.QueryParam("vendor"),
			}
			return st.Filtered()
		},
		Get:    software.Get,
		Add:    software.AddSoftware,
		Update: software.UpdateSoftware,
		Remove: software.RemoveSoftware,
		ID:     func(sw *state.Software) *string { return &sw.ID },
		Prepare: func(sw *state.Software) error {
			sw.Name = strings.TrimSpace(sw.Name)
			if sw.Name == "" {
				return errNameRequired
			}
			if sw.Status == "" {
				sw.Status = state.SoftwareActive
			}
			if sw.AssignedUserIDs == nil {
				sw.AssignedUserIDs = []string{}
			}
			return nil
		},
	}
}

func (h *Handlers) HandleSoftwareAssign(c *echo.Context) error {
	return h.changeAssignment(c, h.App.Software.AssignUser)
}

func (h *Handlers) HandleSoftwareUnassign(c *echo.Context) error {
	return h.changeAssignment(c, h.App.Software.UnassignUser)
}

func (h *Handlers) changeAssignment(c *echo.Context, apply func(id, userID string)) error {
	id := pathID(c, "id")
	userID := pathID(c, "userID")
	if _, ok := h.App.Software.Get(id); !ok {
		return renderNotFound(c)
	}
	if userID == "" {
		return jsonError(c, http.StatusBadRequest, "user id is required")
	}
	apply(id, userID)
	sw, _ := h.App.Software.Get(id)
	return c.JSON(http.StatusOK, sw)
}

// HandleSoftwareOutdated lists software whose latest version is newer than
// the installed one.
func (h *Handlers) HandleSoftwareOutdated(c *echo.Context) error {
	out := h.App.Software.Outdated()
	if out == nil {
		out = []state.Software{}
	}
	return c.JSON(http.StatusOK, out)
}
