package handlers

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v5"
	"github.com/opsboard/opsboard/internal/state"
	"github.com/opsboard/opsboard/internal/store"
)

func (h *Handlers) NetworkSites() Resource[state.UnifiSite, state.SitePatch] {
	network := h.App.Network
	return Resource[state.UnifiSite, state.SitePatch]{
		Name: "site",
		Filtered: func(c *echo.Context) []state.UnifiSite {
			st := network.State()
			st.Filters = state.SiteFilters{
				Search: c.QueryParam("search"),
				Status: c.QueryParam("status"),
			}
			return st.Filtered()
		},
		Get: func(id string) (state.UnifiSite, bool) {
			return store.FindByID(network.State().Sites, id, func(s state.UnifiSite) string { return s.ID })
		},
		Add:    network.AddSite,
		Update: network.UpdateSite,
		Remove: network.RemoveSite,
		ID:     func(s *state.UnifiSite) *string { return &s.ID },
		Prepare: func(s *state.UnifiSite) error {
			s.Name = strings.TrimSpace(s.Name)
			if s.Name == "" {
				return errNameRequired
			}
			if s.Status == "" {
				s.Status = state.SiteOffline
			}
			return nil
		},
	}
}

func (h *Handlers) HandleNetworkSummary(c *echo.Context) error {
	return c.JSON(http.StatusOK, h.App.Network.Summary())
}
