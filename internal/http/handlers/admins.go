package handlers

import (
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v5"
	"github.com/opsboard/opsboard/internal/auth"
	"github.com/opsboard/opsboard/internal/http/authn"
	"github.com/opsboard/opsboard/internal/state"
)

type adminCreateRequest struct {
	state.DashboardAdmin
	Password string `json:"password"`
}

type adminPatchRequest struct {
	state.AdminPatch
	Password *string `json:"password"`
}

func (h *Handlers) Admins() Resource[state.DashboardAdmin, state.AdminPatch] {
	admins := h.App.Admin
	return Resource[state.DashboardAdmin, state.AdminPatch]{
		Name: "admin",
		Filtered: func(c *echo.Context) []state.DashboardAdmin {
			st := admins.State()
			st.Filters = state.AdminFilters{
				Search: c.QueryParam("search"),
				Role:   c.QueryParam("role"),
				Status: c.QueryParam("status"),
			}
			return st.Filtered()
		},
		Get:    admins.Get,
		Add:    admins.AddAdmin,
		Update: admins.UpdateAdmin,
		Remove: admins.RemoveAdmin,
		ID:     func(a *state.DashboardAdmin) *string { return &a.ID },
	}
}

// HandleAdminCreate adds a dashboard admin. A password is optional for
// accounts that only sign in through OIDC.
func (h *Handlers) HandleAdminCreate(c *echo.Context) error {
	var req adminCreateRequest
	if err := decodeJSON(c, &req); err != nil {
		return jsonError(c, http.StatusBadRequest, err.Error())
	}
	a := req.DashboardAdmin
	a.Email = auth.NormalizeEmail(a.Email)
	a.DisplayName = strings.TrimSpace(a.DisplayName)
	if a.Email == "" {
		return jsonError(c, http.StatusUnprocessableEntity, "email is required")
	}
	if _, exists := h.App.Admin.FindByEmail(a.Email); exists {
		return jsonError(c, http.StatusConflict, "an admin with this email already exists")
	}
	if a.Role == "" {
		a.Role = state.RoleAdmin
	}
	if !a.Role.Valid() {
		return jsonError(c, http.StatusUnprocessableEntity, "unknown role "+string(a.Role))
	}
	if a.Status == "" {
		a.Status = state.AdminActive
	}
	if a.DisplayName == "" {
		a.DisplayName = a.Email
	}
	if req.Password != "" {
		hash, err := auth.HashPassword(req.Password)
		if err != nil {
			return jsonError(c, http.StatusUnprocessableEntity, err.Error())
		}
		a.PasswordHash = hash
	}
	a.ID = uuid.NewString()
	if !h.App.Admin.AddAdmin(a) {
		return jsonError(c, http.StatusConflict, "admin "+a.ID+" already exists")
	}
	return c.JSON(http.StatusCreated, a)
}

func (h *Handlers) HandleAdminPatch(c *echo.Context) error {
	id := pathID(c, "id")
	if _, ok := h.App.Admin.Get(id); !ok {
		return renderNotFound(c)
	}
	var req adminPatchRequest
	if err := decodeJSON(c, &req); err != nil {
		return jsonError(c, http.StatusBadRequest, err.Error())
	}
	patch := req.AdminPatch
	if patch.Role != nil && !patch.Role.Valid() {
		return jsonError(c, http.StatusUnprocessableEntity, "unknown role "+string(*patch.Role))
	}
	if patch.Email != nil {
		email := auth.NormalizeEmail(*patch.Email)
		if other, exists := h.App.Admin.FindByEmail(email); email == "" || (exists && other.ID != id) {
			return jsonError(c, http.StatusConflict, "email is empty or already in use")
		}
		patch.Email = &email
	}
	if self, ok := authn.PrincipalFromContext(c); ok && self.ID == id {
		if patch.Status != nil && *patch.Status == state.AdminDisabled {
			return jsonError(c, http.StatusConflict, "you cannot disable your own account")
		}
	}
	if req.Password != nil {
		hash, err := auth.HashPassword(*req.Password)
		if err != nil {
			return jsonError(c, http.StatusUnprocessableEntity, err.Error())
		}
		patch.PasswordHash = &hash
	}
	h.App.Admin.UpdateAdmin(id, patch)
	updated, _ := h.App.Admin.Get(id)
	return c.JSON(http.StatusOK, updated)
}

func (h *Handlers) HandleAdminDelete(c *echo.Context) error {
	if self, ok := authn.PrincipalFromContext(c); ok && self.ID == pathID(c, "id") {
		return jsonError(c, http.StatusConflict, "you cannot delete your own account")
	}
	return h.Admins().Delete(c)
}

func (h *Handlers) HandleGroupMappings(c *echo.Context) error {
	return c.JSON(http.StatusOK, h.App.Admin.State().GroupMappings)
}

func (h *Handlers) HandleGroupMappingGet(c *echo.Context) error {
	role, ok := state.ParseRole(pathID(c, "role"))
	if !ok {
		return renderNotFound(c)
	}
	m, ok := h.App.Admin.GroupMapping(role)
	if !ok {
		return renderNotFound(c)
	}
	return c.JSON(http.StatusOK, m)
}

func (h *Handlers) HandleGroupMappingPatch(c *echo.Context) error {
	role, ok := state.ParseRole(pathID(c, "role"))
	if !ok {
		return renderNotFound(c)
	}
	if _, ok := h.App.Admin.GroupMapping(role); !ok {
		return renderNotFound(c)
	}
	var patch state.GroupMappingPatch
	if err := decodeJSON(c, &patch); err != nil {
		return jsonError(c, http.StatusBadRequest, err.Error())
	}
	if patch.GroupID == nil && patch.GroupName == nil && patch.AutoSync == nil {
		return jsonError(c, http.StatusBadRequest, "patch has no fields")
	}
	h.App.Admin.UpdateGroupMapping(role, patch)
	m, _ := h.App.Admin.GroupMapping(role)
	return c.JSON(http.StatusOK, m)
}
