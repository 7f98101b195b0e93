package unifi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/opsboard/opsboard/internal/apiclient"
	"github.com/opsboard/opsboard/internal/state"
)

func newController(t *testing.T, expireFirstSession bool) (*httptest.Server, *int) {
	t.Helper()

	logins := 0
	served := 0
	mux := http.NewServeMux()
	mux.HandleFunc("/api/login", func(w http.ResponseWriter, r *http.Request) {
		var creds map[string]string
		_ = json.NewDecoder(r.Body).Decode(&creds)
		if creds["username"] != "ops" || creds["password"] != "secret" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = io.WriteString(w, `{"meta":{"rc":"error","msg":"api.err.Invalid"},"data":[]}`)
			return
		}
		logins++
		http.SetCookie(w, &http.Cookie{Name: "unifises", Value: "session", Path: "/"})
		_, _ = io.WriteString(w, `{"meta":{"rc":"ok"},"data":[]}`)
	})
	mux.HandleFunc("/api/stat/sites", func(w http.ResponseWriter, r *http.Request) {
		if _, err := r.Cookie("unifises"); err != nil {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		served++
		if expireFirstSession && served == 1 {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = io.WriteString(w, `{"meta":{"rc":"error","msg":"api.err.LoginRequired"}}`)
			return
		}
		_, _ = io.WriteString(w, `{"meta":{"rc":"ok"},"data":[
			{"_id":"s1","name":"default","desc":"HQ","health":[
				{"subsystem":"wan","status":"ok","wan_ip":"203.0.113.5","isp_name":"Fiber Co","num_adopted":1},
				{"subsystem":"lan","status":"ok","num_adopted":4,"num_user":20},
				{"subsystem":"wlan","status":"ok","num_adopted":6,"num_user":35},
				{"subsystem":"vpn","status":"unknown"}]},
			{"_id":"s2","name":"branch","desc":"Branch","health":[
				{"subsystem":"wan","status":"ok"},
				{"subsystem":"wlan","status":"warning","num_adopted":3,"num_disconnected":1,"num_user":4}]},
			{"_id":"s3","name":"warehouse","desc":"","health":[
				{"subsystem":"wan","status":"error"},
				{"subsystem":"lan","status":"warning","num_adopted":2,"num_disconnected":2}]},
			{"_id":"s4","name":"new","desc":"New","health":[]},
			{"name":"orphan"}
		]}`)
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server, &logins
}

func TestFetchSitesRollup(t *testing.T) {
	t.Parallel()

	server, logins := newController(t, false)
	c, err := New(server.URL, "ops", "secret", Options{Transport: server.Client().Transport})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	at := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	sites, err := c.FetchSites(context.Background(), at)
	if err != nil {
		t.Fatalf("FetchSites: %v", err)
	}
	if len(sites) != 4 {
		t.Fatalf("len(sites) = %d, want 4", len(sites))
	}

	hq := sites[0]
	if hq.Name != "HQ" || hq.Status != state.SiteOnline || hq.WANIP != "203.0.113.5" || hq.ISP != "Fiber Co" {
		t.Fatalf("hq = %+v", hq)
	}
	if hq.Devices != 11 || hq.Clients != 55 || hq.DevicesOffline != 0 || !hq.LastSeen.Equal(at) {
		t.Fatalf("hq counts = %+v", hq)
	}
	if sites[1].Status != state.SiteDegraded {
		t.Fatalf("branch status = %s, want degraded", sites[1].Status)
	}
	if sites[2].Status != state.SiteOffline || sites[2].Name != "warehouse" {
		t.Fatalf("warehouse = %+v, want offline named by short name", sites[2])
	}
	if sites[3].Status != state.SiteOffline {
		t.Fatalf("site without health status = %s, want offline", sites[3].Status)
	}

	if _, err := c.FetchSites(context.Background(), at); err != nil {
		t.Fatalf("second FetchSites: %v", err)
	}
	if *logins != 1 {
		t.Fatalf("logins = %d, want 1 (session cookie reused)", *logins)
	}
}

func TestFetchSitesReloginOnExpiredSession(t *testing.T) {
	t.Parallel()

	server, logins := newController(t, true)
	c, err := New(server.URL, "ops", "secret", Options{Transport: server.Client().Transport})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	sites, err := c.FetchSites(context.Background(), time.Now())
	if err != nil {
		t.Fatalf("FetchSites: %v", err)
	}
	if len(sites) != 4 || *logins != 2 {
		t.Fatalf("sites=%d logins=%d, want 4 and 2", len(sites), *logins)
	}
}

func TestLoginFailureCarriesControllerMessage(t *testing.T) {
	t.Parallel()

	server, _ := newController(t, false)
	c, err := New(server.URL, "ops", "wrong", Options{Transport: server.Client().Transport})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	_, err = c.FetchSites(context.Background(), time.Now())
	if apiclient.StatusCode(err) != http.StatusBadRequest {
		t.Fatalf("error = %v, want 400", err)
	}
	var apiErr *apiclient.Error
	if !errors.As(err, &apiErr) || apiErr.Message != "api.err.Invalid" {
		t.Fatalf("error message = %v, want api.err.Invalid", err)
	}
}
