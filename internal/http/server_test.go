package httpapp

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v5"
	"github.com/opsboard/opsboard/internal/auth"
	"github.com/opsboard/opsboard/internal/http/handlers"
	"github.com/opsboard/opsboard/internal/state"
)

const testPassword = "correct-horse-battery"

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeScanner struct {
	body []byte
	err  error
}

func (f fakeScanner) FetchVulnerabilities(context.Context) ([]byte, error) {
	return f.body, f.err
}

type testServer struct {
	app *state.App
	srv *httptest.Server
}

func newTestServer(t *testing.T, scanner state.VulnerabilitySource) *testServer {
	t.Helper()

	app := state.NewApp(state.Options{Logger: discardLogger(), Scanner: scanner})
	hash, err := auth.HashPassword(testPassword)
	if err != nil {
		t.Fatalf("HashPassword() error = %v", err)
	}
	app.Admin.AddAdmin(state.DashboardAdmin{ID: "adm-super", Email: "root@example.com", Role: state.RoleSuperAdmin, Status: state.AdminActive, PasswordHash: hash})
	app.Admin.AddAdmin(state.DashboardAdmin{ID: "adm-std", Email: "staff@example.com", Role: state.RoleUser, Status: state.AdminActive, PasswordHash: hash})

	es := NewEchoServer(app, Options{Logger: discardLogger()})
	srv := httptest.NewServer(es.Handler())
	t.Cleanup(srv.Close)
	return &testServer{app: app, srv: srv}
}

func (ts *testServer) client(t *testing.T) *http.Client {
	t.Helper()
	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("cookiejar.New() error = %v", err)
	}
	return &http.Client{
		Jar: jar,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

func (ts *testServer) login(t *testing.T, email string) *http.Client {
	t.Helper()
	c := ts.client(t)
	resp := ts.do(t, c, http.MethodPost, "/api/session/login", `{"email":"`+email+`","password":"`+testPassword+`"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login %s status = %d, want 200", email, resp.StatusCode)
	}
	return c
}

func (ts *testServer) do(t *testing.T, c *http.Client, method, path, body string) *http.Response {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, ts.srv.URL+path, r)
	if err != nil {
		t.Fatalf("NewRequest() error = %v", err)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.Do(req)
	if err != nil {
		t.Fatalf("%s %s error = %v", method, path, err)
	}
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	return v
}

func TestHTTPErrorHandlerInternalErrorIsGeneric(t *testing.T) {
	e := echo.New()
	e.Logger = discardLogger()

	req := httptest.NewRequest(http.MethodGet, "http://example.com/api/test", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.Set(handlers.ContextKeyRequestID, "req-123")

	es := &EchoServer{h: &handlers.Handlers{}, e: e, logger: discardLogger()}
	es.httpErrorHandler(c, errors.New("very sensitive error"))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status=%d want %d", rec.Code, http.StatusInternalServerError)
	}

	body := rec.Body.String()
	if strings.Contains(body, "very sensitive") {
		t.Fatalf("response leaked error details: %q", body)
	}
	if !strings.Contains(body, "Internal server error") {
		t.Fatalf("response missing generic message: %q", body)
	}
	if !strings.Contains(body, "Reference: req-123") {
		t.Fatalf("response missing request reference: %q", body)
	}
	if !strings.Contains(body, handlers.InternalErrorCode) {
		t.Fatalf("response missing error code: %q", body)
	}
}

func TestHTTPErrorHandlerNotFoundDoesNotLeakMessage(t *testing.T) {
	e := echo.New()
	e.Logger = discardLogger()

	req := httptest.NewRequest(http.MethodGet, "http://example.com/missing", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	es := &EchoServer{h: &handlers.Handlers{}, e: e, logger: discardLogger()}
	es.httpErrorHandler(c, echo.NewHTTPError(http.StatusNotFound, "leaky not found"))

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status=%d want %d", rec.Code, http.StatusNotFound)
	}
	body := rec.Body.String()
	if strings.Contains(body, "leaky") {
		t.Fatalf("response leaked error details: %q", body)
	}
	if !strings.Contains(body, "404 page not found") {
		t.Fatalf("response missing not found message: %q", body)
	}
}

func TestHTTPStatusFromErrorUsesStatusCoder(t *testing.T) {
	if got := httpStatusFromError(echo.ErrNotFound); got != http.StatusNotFound {
		t.Fatalf("status=%d want %d", got, http.StatusNotFound)
	}
	if got := httpStatusFromError(echo.ErrForbidden); got != http.StatusForbidden {
		t.Fatalf("status=%d want %d", got, http.StatusForbidden)
	}
	if got := httpStatusFromError(errors.New("boom")); got != http.StatusInternalServerError {
		t.Fatalf("status=%d want %d", got, http.StatusInternalServerError)
	}
}

func TestUnauthenticatedRequests(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t, nil)
	c := ts.client(t)

	if resp := ts.do(t, c, http.MethodGet, "/healthz", ""); resp.StatusCode != http.StatusOK {
		t.Fatalf("/healthz status = %d, want 200", resp.StatusCode)
	}
	if resp := ts.do(t, c, http.MethodGet, "/api/assets", ""); resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("/api/assets status = %d, want 401", resp.StatusCode)
	}

	resp := ts.do(t, c, http.MethodGet, "/reports/security", "")
	if resp.StatusCode != http.StatusSeeOther {
		t.Fatalf("/reports/security status = %d, want 303", resp.StatusCode)
	}
	if loc := resp.Header.Get("Location"); loc != "/auth/oidc/login?next="+url.QueryEscape("/reports/security") {
		t.Fatalf("Location = %q", loc)
	}

	resp = ts.do(t, c, http.MethodPost, "/api/session/login", `{"email":"root@example.com","password":"wrong-password-123"}`)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("bad login status = %d, want 401", resp.StatusCode)
	}
	if resp.Header.Get("X-Request-ID") == "" {
		t.Fatal("X-Request-ID header missing")
	}
}

func TestLoginSessionAndLogout(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t, nil)
	c := ts.login(t, "STAFF@example.com")

	resp := ts.do(t, c, http.MethodGet, "/api/session", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("/api/session status = %d, want 200", resp.StatusCode)
	}
	session := decodeBody[struct {
		User  state.User `json:"user"`
		Pages []string   `json:"pages"`
	}](t, resp)
	if session.User.ID != "adm-std" {
		t.Fatalf("session user = %+v, want adm-std", session.User)
	}
	if got := strings.Join(session.Pages, ","); got != "/dashboard,/assets,/software,/network" {
		t.Fatalf("pages = %s", got)
	}
	if a, _ := ts.app.Admin.Get("adm-std"); a.LastLogin.IsZero() {
		t.Fatal("LastLogin not recorded")
	}

	if resp := ts.do(t, c, http.MethodPost, "/api/session/logout", ""); resp.StatusCode != http.StatusNoContent {
		t.Fatalf("logout status = %d, want 204", resp.StatusCode)
	}
	if resp := ts.do(t, c, http.MethodGet, "/api/session", ""); resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("/api/session after logout status = %d, want 401", resp.StatusCode)
	}
}

func TestPageGating(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t, nil)
	staff := ts.login(t, "staff@example.com")
	root := ts.login(t, "root@example.com")

	tests := []struct {
		path string
		want int
	}{
		{"/api/assets", http.StatusOK},
		{"/api/software", http.StatusOK},
		{"/api/network/sites", http.StatusOK},
		{"/api/users", http.StatusForbidden},
		{"/api/proxmox/vms", http.StatusForbidden},
		{"/api/patch", http.StatusForbidden},
		{"/api/admins", http.StatusForbidden},
		{"/api/notifications", http.StatusOK},
		{"/reports/security", http.StatusForbidden},
	}
	for _, tt := range tests {
		if resp := ts.do(t, staff, http.MethodGet, tt.path, ""); resp.StatusCode != tt.want {
			t.Fatalf("staff GET %s = %d, want %d", tt.path, resp.StatusCode, tt.want)
		}
		if resp := ts.do(t, root, http.MethodGet, tt.path, ""); resp.StatusCode != http.StatusOK {
			t.Fatalf("super admin GET %s = %d, want 200", tt.path, resp.StatusCode)
		}
	}
}

func TestConcurrentCreateWithSameIDInsertsOnce(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t, nil)
	c := ts.login(t, "root@example.com")

	const workers = 8
	codes := make(chan int, workers)
	for range workers {
		go func() {
			req, err := http.NewRequest(http.MethodPost, ts.srv.URL+"/api/assets", strings.NewReader(`{"id":"asset-race","name":"Racer"}`))
			if err != nil {
				codes <- 0
				return
			}
			req.Header.Set("Content-Type", "application/json")
			resp, err := c.Do(req)
			if err != nil {
				codes <- 0
				return
			}
			_ = resp.Body.Close()
			codes <- resp.StatusCode
		}()
	}

	created, conflicts := 0, 0
	for range workers {
		switch code := <-codes; code {
		case http.StatusCreated:
			created++
		case http.StatusConflict:
			conflicts++
		default:
			t.Fatalf("create status = %d, want 201 or 409", code)
		}
	}
	if created != 1 || conflicts != workers-1 {
		t.Fatalf("created = %d conflicts = %d, want 1 and %d", created, conflicts, workers-1)
	}
	if n := len(ts.app.Assets.State().Assets); n != 1 {
		t.Fatalf("assets = %d, want 1", n)
	}
}

func TestAssetCRUD(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t, nil)
	c := ts.login(t, "root@example.com")

	resp := ts.do(t, c, http.MethodPost, "/api/assets", `{"name":"  Laptop 7 ","serialNumber":"SN-7"}`)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create status = %d, want 201", resp.StatusCode)
	}
	created := decodeBody[state.Asset](t, resp)
	if created.ID == "" || created.Name != "Laptop 7" || created.Status != state.AssetActive {
		t.Fatalf("created = %+v", created)
	}

	if resp := ts.do(t, c, http.MethodPost, "/api/assets", `{"id":"`+created.ID+`","name":"dup"}`); resp.StatusCode != http.StatusConflict {
		t.Fatalf("duplicate create status = %d, want 409", resp.StatusCode)
	}
	if resp := ts.do(t, c, http.MethodPost, "/api/assets", `{"name":"  "}`); resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("nameless create status = %d, want 422", resp.StatusCode)
	}

	resp = ts.do(t, c, http.MethodPatch, "/api/assets/"+created.ID, `{"location":"Berlin"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("patch status = %d, want 200", resp.StatusCode)
	}
	if patched := decodeBody[state.Asset](t, resp); patched.Location != "Berlin" || patched.SerialNumber != "SN-7" {
		t.Fatalf("patched = %+v", patched)
	}

	resp = ts.do(t, c, http.MethodGet, "/api/assets?search=laptop&location=Berlin", "")
	list := decodeBody[struct {
		Items []state.Asset `json:"items"`
	}](t, resp)
	if len(list.Items) != 1 {
		t.Fatalf("filtered list = %+v, want one asset", list.Items)
	}
	if st := ts.app.Assets.State(); st.Filters.Search != "" {
		t.Fatalf("store filters mutated by list request: %+v", st.Filters)
	}

	if resp := ts.do(t, c, http.MethodDelete, "/api/assets/"+created.ID, ""); resp.StatusCode != http.StatusNoContent {
		t.Fatalf("delete status = %d, want 204", resp.StatusCode)
	}
	if resp := ts.do(t, c, http.MethodGet, "/api/assets/"+created.ID, ""); resp.StatusCode != http.StatusNotFound {
		t.Fatalf("get deleted status = %d, want 404", resp.StatusCode)
	}
}

func TestAdminSelfProtection(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t, nil)
	c := ts.login(t, "root@example.com")

	if resp := ts.do(t, c, http.MethodDelete, "/api/admins/adm-super", ""); resp.StatusCode != http.StatusConflict {
		t.Fatalf("self delete status = %d, want 409", resp.StatusCode)
	}
	if resp := ts.do(t, c, http.MethodPatch, "/api/admins/adm-super", `{"status":"disabled"}`); resp.StatusCode != http.StatusConflict {
		t.Fatalf("self disable status = %d, want 409", resp.StatusCode)
	}
	if resp := ts.do(t, c, http.MethodPost, "/api/admins", `{"email":"staff@example.com"}`); resp.StatusCode != http.StatusConflict {
		t.Fatalf("duplicate admin status = %d, want 409", resp.StatusCode)
	}

	resp := ts.do(t, c, http.MethodPatch, "/api/admins/adm-std", `{"role":"admin"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("promote status = %d, want 200", resp.StatusCode)
	}
	if a, _ := ts.app.Admin.Get("adm-std"); a.Role != state.RoleAdmin {
		t.Fatalf("role = %s, want admin", a.Role)
	}
}

func TestPatchScanFlow(t *testing.T) {
	t.Parallel()

	body := []byte(`{"response":{"vulnerabilities":{"vulnerability":[
		{"severity":"critical","cve_id":"CVE-2026-1","vulnerability_name":"Remote code execution","host_name":"web-1"},
		{"severity":"low","cve_id":"CVE-2026-2","vulnerability_name":"Banner disclosure","host_name":"web-2"}
	]}}}`)
	ts := newTestServer(t, fakeScanner{body: body})
	c := ts.login(t, "root@example.com")

	resp := ts.do(t, c, http.MethodPost, "/api/patch/scan", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("scan status = %d, want 200", resp.StatusCode)
	}
	got := decodeBody[struct {
		Items      []state.Vulnerability `json:"items"`
		Counts     state.SeverityCounts  `json:"counts"`
		ScanStatus state.ScanStatus      `json:"scanStatus"`
	}](t, resp)
	if len(got.Items) != 2 || got.Counts.Critical != 1 || got.ScanStatus != state.ScanSucceeded {
		t.Fatalf("scan result = %+v", got)
	}

	id := got.Items[0].ID
	if resp := ts.do(t, c, http.MethodPatch, "/api/patch/"+id, `{"status":"ignored"}`); resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("bad status patch = %d, want 422", resp.StatusCode)
	}
	if resp := ts.do(t, c, http.MethodPatch, "/api/patch/"+id, `{"status":"patched"}`); resp.StatusCode != http.StatusOK {
		t.Fatalf("status patch = %d, want 200", resp.StatusCode)
	}
	if counts := ts.app.Patch.Counts(); counts.Patched != 1 {
		t.Fatalf("counts = %+v, want one patched", counts)
	}

	resp = ts.do(t, c, http.MethodGet, "/reports/security", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("report status = %d, want 200", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Fatalf("report Content-Type = %q", ct)
	}
	html, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(html), "Banner disclosure") || strings.Contains(string(html), "Remote code execution") {
		t.Fatalf("report should list only the open finding: %s", html)
	}
}

func TestPatchScanVendorFailure(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t, fakeScanner{err: errors.New("upstream 503")})
	c := ts.login(t, "root@example.com")

	scan := ts.do(t, c, http.MethodPost, "/api/patch/scan", "")
	if scan.StatusCode != http.StatusBadGateway {
		t.Fatalf("scan status = %d, want 502", scan.StatusCode)
	}
	if body := decodeBody[map[string]string](t, scan); body["error"] != "vulnerability scan failed" {
		t.Fatalf("scan error body = %q, want generic message", body["error"])
	}
	if st := ts.app.Patch.State(); st.ScanStatus != state.ScanFailed {
		t.Fatalf("ScanStatus = %s, want failed", st.ScanStatus)
	}

	resp := ts.do(t, c, http.MethodGet, "/api/notifications", "")
	got := decodeBody[struct {
		Notifications []state.Notification `json:"notifications"`
		UnreadCount   int                  `json:"unreadCount"`
	}](t, resp)
	if got.UnreadCount != 1 || got.Notifications[0].Kind != state.NotificationError {
		t.Fatalf("notifications = %+v", got)
	}

	id := got.Notifications[0].ID
	if resp := ts.do(t, c, http.MethodPost, "/api/notifications/"+id+"/read", ""); resp.StatusCode != http.StatusNoContent {
		t.Fatalf("mark read status = %d, want 204", resp.StatusCode)
	}
	if n := ts.app.UI.State().UnreadCount; n != 0 {
		t.Fatalf("UnreadCount = %d, want 0", n)
	}
	if resp := ts.do(t, c, http.MethodDelete, "/api/notifications/missing", ""); resp.StatusCode != http.StatusNotFound {
		t.Fatalf("delete unknown status = %d, want 404", resp.StatusCode)
	}
}

func TestStateStream(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t, nil)
	c := ts.login(t, "staff@example.com")

	base, _ := url.Parse(ts.srv.URL)
	header := http.Header{}
	for _, cookie := range c.Jar.Cookies(base) {
		header.Add("Cookie", cookie.String())
	}
	wsURL := "ws" + strings.TrimPrefix(ts.srv.URL, "http") + "/api/ws?stores=assets"

	if _, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.srv.URL, "http")+"/api/ws?stores=users", header); err == nil {
		t.Fatal("dial users stream succeeded, want forbidden")
	} else if resp == nil || resp.StatusCode != http.StatusForbidden {
		t.Fatalf("dial users stream err = %v resp = %v, want 403", err, resp)
	}

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, header)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var msg struct {
		Store string           `json:"store"`
		State state.AssetState `json:"state"`
	}
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read snapshot: %v", err)
	}
	if msg.Store != "assets" || len(msg.State.Assets) != 0 {
		t.Fatalf("snapshot = %+v, want empty assets", msg)
	}

	ts.app.Assets.AddAsset(state.Asset{ID: "a-1", Name: "Switch", Status: state.AssetActive})
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read update: %v", err)
	}
	if len(msg.State.Assets) != 1 || msg.State.Assets[0].ID != "a-1" {
		t.Fatalf("update = %+v, want asset a-1", msg.State)
	}
}
