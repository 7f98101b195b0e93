package handlers

import (
	"slices"

	"github.com/labstack/echo/v5"
	"github.com/opsboard/opsboard/internal/http/viewmodels"
	"github.com/opsboard/opsboard/internal/http/views"
	"github.com/opsboard/opsboard/internal/state"
)

func severityRank(s state.Severity) int {
	if i := slices.Index(state.Severities, s); i >= 0 {
		return i
	}
	return len(state.Severities)
}

// SecurityReportData assembles the printable security posture report from
// the patch, software and network stores.
func (h *Handlers) SecurityReportData() viewmodels.SecurityReportData {
	patch := h.App.Patch.State()
	counts := state.CountSeverities(patch.Vulnerabilities)

	data := viewmodels.SecurityReportData{
		Title:       "Security posture report",
		GeneratedAt: h.now(),
		LastScan:    patch.LastScan,
		ScanStatus:  string(patch.ScanStatus),
		ScanError:   patch.Error,
		Critical:    counts.Critical,
		High:        counts.High,
		Medium:      counts.Medium,
		Low:         counts.Low,
		Open:        counts.Open(),
		Patched:     counts.Patched,
		Score:       counts.HygieneScore(),
	}

	open := make([]state.Vulnerability, 0, len(patch.Vulnerabilities))
	for _, v := range patch.Vulnerabilities {
		if v.Status != state.VulnPatched {
			open = append(open, v)
		}
	}
	slices.SortStableFunc(open, func(a, b state.Vulnerability) int {
		if d := severityRank(a.Severity) - severityRank(b.Severity); d != 0 {
			return d
		}
		return b.DetectedAt.Compare(a.DetectedAt)
	})
	for _, v := range open {
		data.Findings = append(data.Findings, viewmodels.ReportFinding{
			ID:          v.ID,
			Title:       v.Title,
			Severity:    string(v.Severity),
			ExternalRef: v.ExternalRef,
			Host:        v.Host,
			DetectedAt:  v.DetectedAt,
		})
	}

	for _, sw := range h.App.Software.Outdated() {
		data.OutdatedSoftware = append(data.OutdatedSoftware, viewmodels.ReportSoftware{
			Name:          sw.Name,
			Vendor:        sw.Vendor,
			Version:       sw.Version,
			LatestVersion: sw.LatestVersion,
		})
	}

	for _, s := range h.App.Network.State().Sites {
		if s.Status == state.SiteOnline {
			continue
		}
		data.OfflineSites = append(data.OfflineSites, viewmodels.ReportSite{
			Name:           s.Name,
			Status:         string(s.Status),
			DevicesOffline: s.DevicesOffline,
		})
	}
	return data
}

func (h *Handlers) HandleSecurityReport(c *echo.Context) error {
	return h.RenderComponent(c, views.SecurityReport(h.SecurityReportData()))
}
