package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v5"
	"github.com/opsboard/opsboard/internal/state"
)

func (h *Handlers) Assets() Resource[state.Asset, state.AssetPatch] {
	assets := h.App.Assets
	return Resource[state.Asset, state.AssetPatch]{
		Name: "asset",
		Filtered: func(c *echo.Context) []state.Asset {
			st := assets.State()
			st.Filters = state.AssetFilters{
				Search:   c.QueryParam("search"),
				Type:     c.QueryParam("type"),
				Status:   c.QueryParam("status"),
				Location: c.QueryParam("location"),
			}
			return st.Filtered()
		},
		Get:    assets.Get,
		Add:    assets.AddAsset,
		Update: assets.UpdateAsset,
		Remove: assets.RemoveAsset,
		ID:     func(a *state.Asset) *string { return &a.ID },
		Prepare: func(a *state.Asset) error {
			a.Name = strings.TrimSpace(a.Name)
			if a.Name == "" {
				return errNameRequired
			}
			if a.Type == "" {
				a.Type = state.AssetOther
			}
			if a.Status == "" {
				a.Status = state.AssetActive
			}
			return nil
		},
	}
}

func (h *Handlers) HandleAssetStats(c *echo.Context) error {
	return c.JSON(http.StatusOK, h.App.Assets.Stats())
}

// HandleAssetsExpiring lists assets whose warranty ends within ?days (30).
func (h *Handlers) HandleAssetsExpiring(c *echo.Context) error {
	days, err := parseDaysParam(c, 30)
	if err != nil {
		return jsonError(c, http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, h.App.Assets.WarrantyExpiringWithin(h.now(), days))
}

func parseDaysParam(c *echo.Context, def int) (time.Duration, error) {
	days := def
	if raw := strings.TrimSpace(c.QueryParam("days")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			return 0, errors.New("days must be a positive integer")
		}
		days = parsed
	}
	return time.Duration(days) * 24 * time.Hour, nil
}
