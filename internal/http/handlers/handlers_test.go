package handlers

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v5"
	"github.com/opsboard/opsboard/internal/state"
)

func newTestHandlers(t *testing.T) *Handlers {
	t.Helper()
	app := state.NewApp(state.Options{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))})
	return &Handlers{
		App: app,
		Now: func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) },
	}
}

func newContext(method, target, body string) (*echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func streamNames(streams []stream) []string {
	out := make([]string, 0, len(streams))
	for _, s := range streams {
		out = append(out, s.name)
	}
	return out
}

func TestSelectStreams(t *testing.T) {
	t.Parallel()

	h := newTestHandlers(t)
	admin := state.User{ID: "a", Role: state.RoleAdmin}
	standard := state.User{ID: "u", Role: state.RoleUser}

	got, problem := h.selectStreams(admin, "")
	if problem != "" || len(got) != 8 {
		t.Fatalf("admin streams = %v (%q), want all 8", streamNames(got), problem)
	}

	got, problem = h.selectStreams(standard, "")
	if problem != "" {
		t.Fatalf("standard problem = %q, want none", problem)
	}
	if names := strings.Join(streamNames(got), ","); names != "assets,network,software,ui" {
		t.Fatalf("standard streams = %s, want assets,network,software,ui", names)
	}

	got, problem = h.selectStreams(standard, " Assets , ui,assets")
	if problem != "" || strings.Join(streamNames(got), ",") != "assets,ui" {
		t.Fatalf("explicit streams = %v (%q), want assets,ui", streamNames(got), problem)
	}

	if _, problem = h.selectStreams(standard, "users"); !strings.HasPrefix(problem, "access") {
		t.Fatalf("users for standard user problem = %q, want access denial", problem)
	}
	if _, problem = h.selectStreams(admin, "auth"); problem != "unknown store auth" {
		t.Fatalf("auth stream problem = %q, want unknown store auth", problem)
	}
}

func TestSecurityReportDataOrdersOpenFindings(t *testing.T) {
	t.Parallel()

	h := newTestHandlers(t)
	day := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	h.App.Patch.SetVulnerabilities([]state.Vulnerability{
		{ID: "v1", Title: "low one", Severity: state.SeverityLow, Status: state.VulnOpen, DetectedAt: day},
		{ID: "v2", Title: "old critical", Severity: state.SeverityCritical, Status: state.VulnOpen, DetectedAt: day},
		{ID: "v3", Title: "new critical", Severity: state.SeverityCritical, Status: state.VulnOpen, DetectedAt: day.Add(time.Hour)},
		{ID: "v4", Title: "fixed", Severity: state.SeverityHigh, Status: state.VulnPatched, DetectedAt: day},
	})
	h.App.Software.AddSoftware(state.Software{ID: "s1", Name: "Editor", Version: "1.2.0", LatestVersion: "1.3.0", Status: state.SoftwareActive})
	h.App.Software.AddSoftware(state.Software{ID: "s2", Name: "Current", Version: "2.0.0", LatestVersion: "2.0.0", Status: state.SoftwareActive})
	h.App.Network.AddSite(state.UnifiSite{ID: "n1", Name: "HQ", Status: state.SiteOnline})
	h.App.Network.AddSite(state.UnifiSite{ID: "n2", Name: "Branch", Status: state.SiteDegraded, DevicesOffline: 2})

	data := h.SecurityReportData()
	if data.Critical != 2 || data.Low != 1 || data.Patched != 1 || data.Open != 3 {
		t.Fatalf("counts = %+v, want critical=2 low=1 patched=1 open=3", data)
	}
	if data.Score != 79 {
		t.Fatalf("Score = %d, want 79", data.Score)
	}
	var ids []string
	for _, f := range data.Findings {
		ids = append(ids, f.ID)
	}
	if got := strings.Join(ids, ","); got != "v3,v2,v1" {
		t.Fatalf("finding order = %s, want v3,v2,v1", got)
	}
	if len(data.OutdatedSoftware) != 1 || data.OutdatedSoftware[0].Name != "Editor" {
		t.Fatalf("OutdatedSoftware = %+v, want Editor only", data.OutdatedSoftware)
	}
	if len(data.OfflineSites) != 1 || data.OfflineSites[0].Name != "Branch" {
		t.Fatalf("OfflineSites = %+v, want Branch only", data.OfflineSites)
	}
	if !data.GeneratedAt.Equal(h.now()) {
		t.Fatalf("GeneratedAt = %v, want %v", data.GeneratedAt, h.now())
	}
}

func TestPaginateListClampsPerPage(t *testing.T) {
	t.Parallel()

	items := make([]int, 450)
	for i := range items {
		items[i] = i
	}

	c, _ := newContext(http.MethodGet, "/api/x?page=2&per_page=500", "")
	got := paginateList(c, items)
	if got.Pagination.PageSize != maxPerPage || got.Pagination.Page != 2 || got.Pagination.TotalPages != 3 {
		t.Fatalf("pagination = %+v, want page 2 of 3 with size %d", got.Pagination, maxPerPage)
	}
	if len(got.Items) != maxPerPage || got.Items[0] != maxPerPage {
		t.Fatalf("items start at %d (len %d), want %d (len %d)", got.Items[0], len(got.Items), maxPerPage, maxPerPage)
	}

	c, _ = newContext(http.MethodGet, "/api/x?page=zero&per_page=-1", "")
	got = paginateList(c, items)
	if got.Pagination.Page != 1 || got.Pagination.PageSize != 25 {
		t.Fatalf("pagination = %+v, want defaults", got.Pagination)
	}
}

func TestDecodeJSON(t *testing.T) {
	t.Parallel()

	var v map[string]any
	c, _ := newContext(http.MethodPost, "/", "")
	if err := decodeJSON(c, &v); err == nil || err.Error() != "request body is empty" {
		t.Fatalf("decodeJSON(empty) = %v, want request body is empty", err)
	}
	c, _ = newContext(http.MethodPost, "/", "{nope")
	if err := decodeJSON(c, &v); err == nil || !strings.HasPrefix(err.Error(), "invalid JSON body") {
		t.Fatalf("decodeJSON(bad) = %v, want invalid JSON body", err)
	}
}

func TestHandlePatchScanWithoutSource(t *testing.T) {
	t.Parallel()

	h := newTestHandlers(t)
	c, rec := newContext(http.MethodPost, "/api/patch/scan", "")
	if err := h.HandlePatchScan(c); err != nil {
		t.Fatalf("HandlePatchScan() error = %v", err)
	}
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusServiceUnavailable)
	}
}

func TestHandleNotificationsUnreadFilter(t *testing.T) {
	t.Parallel()

	h := newTestHandlers(t)
	first := h.App.UI.AddNotification(state.Notification{Title: "first"})
	h.App.UI.AddNotification(state.Notification{Title: "second"})
	h.App.UI.MarkRead(first.ID)

	c, rec := newContext(http.MethodGet, "/api/notifications?unread=1", "")
	if err := h.HandleNotifications(c); err != nil {
		t.Fatalf("HandleNotifications() error = %v", err)
	}
	body := rec.Body.String()
	if strings.Contains(body, `"first"`) || !strings.Contains(body, `"second"`) {
		t.Fatalf("body = %s, want only the unread notification", body)
	}
	if !strings.Contains(body, `"unreadCount":1`) {
		t.Fatalf("body = %s, want unreadCount 1", body)
	}
}

func TestParseDaysParam(t *testing.T) {
	t.Parallel()

	c, _ := newContext(http.MethodGet, "/api/assets/expiring?days=7", "")
	if d, err := parseDaysParam(c, 30); err != nil || d != 7*24*time.Hour {
		t.Fatalf("parseDaysParam(7) = %v, %v", d, err)
	}
	c, _ = newContext(http.MethodGet, "/api/assets/expiring?days=soon", "")
	if _, err := parseDaysParam(c, 30); err == nil {
		t.Fatal("parseDaysParam(soon) error = nil, want error")
	}
}
