package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v5"
	"github.com/opsboard/opsboard/internal/state"
	"github.com/opsboard/opsboard/internal/store"
)

type patchResponse struct {
	Items        []state.Vulnerability `json:"items"`
	Pagination   store.Pagination      `json:"pagination"`
	Counts       state.SeverityCounts  `json:"counts"`
	HygieneScore int                   `json:"hygieneScore"`
	ScanStatus   state.ScanStatus      `json:"scanStatus"`
	Scanning     bool                  `json:"scanning"`
	LastScan     time.Time             `json:"lastScan"`
	Error        string                `json:"error,omitempty"`
}

type vulnStatusRequest struct {
	Status state.VulnStatus `json:"status"`
}

func (h *Handlers) patchSnapshot(c *echo.Context) patchResponse {
	ps := h.App.Patch
	st := ps.State()
	st.Filters = state.PatchFilters{
		Search:   c.QueryParam("search"),
		Severity: c.QueryParam("severity"),
		Status:   c.QueryParam("status"),
		Host:     c.QueryParam("host"),
	}
	page := paginateList(c, st.Filtered())
	counts := state.CountSeverities(st.Vulnerabilities)
	return patchResponse{
		Items:        page.Items,
		Pagination:   page.Pagination,
		Counts:       counts,
		HygieneScore: counts.HygieneScore(),
		ScanStatus:   st.ScanStatus,
		Scanning:     ps.Scanning(),
		LastScan:     st.LastScan,
		Error:        st.Error,
	}
}

func (h *Handlers) HandlePatch(c *echo.Context) error {
	return c.JSON(http.StatusOK, h.patchSnapshot(c))
}

// HandlePatchScan runs a vulnerability scan and waits for it. The scan is
// detached from the client connection; the patch store bounds it with its
// own timeout.
func (h *Handlers) HandlePatchScan(c *echo.Context) error {
	err := h.App.Patch.PerformScan(context.WithoutCancel(c.Request().Context()))
	switch {
	case err == nil:
		return c.JSON(http.StatusOK, h.patchSnapshot(c))
	case errors.Is(err, state.ErrScanInFlight):
		return jsonError(c, http.StatusConflict, "a vulnerability scan is already in progress")
	case errors.Is(err, state.ErrNoScanner):
		return jsonError(c, http.StatusServiceUnavailable, "no vulnerability source is configured")
	default:
		c.Logger().Error("vulnerability scan failed", "error", err)
		return jsonError(c, http.StatusBadGateway, "vulnerability scan failed")
	}
}

func (h *Handlers) HandleVulnerabilityStatus(c *echo.Context) error {
	id := pathID(c, "id")
	if _, ok := store.FindByID(h.App.Patch.State().Vulnerabilities, id, func(v state.Vulnerability) string { return v.ID }); !ok {
		return renderNotFound(c)
	}
	var req vulnStatusRequest
	if err := decodeJSON(c, &req); err != nil {
		return jsonError(c, http.StatusBadRequest, err.Error())
	}
	if req.Status != state.VulnOpen && req.Status != state.VulnPatched {
		return jsonError(c, http.StatusUnprocessableEntity, "status must be open or patched")
	}
	h.App.Patch.SetStatus(id, req.Status)
	v, _ := store.FindByID(h.App.Patch.State().Vulnerabilities, id, func(v state.Vulnerability) string { return v.ID })
	return c.JSON(http.StatusOK, v)
}
