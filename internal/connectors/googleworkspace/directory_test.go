package googleworkspace

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/opsboard/opsboard/internal/state"
	"golang.org/x/oauth2"
)

func TestParseGoogleTime(t *testing.T) {
	t.Parallel()

	rfc := "2026-02-20T10:00:00Z"
	if got := parseGoogleTime(rfc); got.Format(time.RFC3339) != rfc {
		t.Fatalf("parseGoogleTime(%q) = %q, want %q", rfc, got.Format(time.RFC3339), rfc)
	}
	if got := parseGoogleTime("1768884000000"); got.IsZero() {
		t.Fatal("parseGoogleTime(unix ms) returned zero time")
	}
	if got := parseGoogleTime("not-a-time"); !got.IsZero() {
		t.Fatal("parseGoogleTime(invalid) should return zero")
	}
}

func TestFetchUsersPaginates(t *testing.T) {
	t.Parallel()

	var usersCalls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/admin/directory/v1/users" {
			http.NotFound(w, r)
			return
		}
		usersCalls.Add(1)
		if got := r.Header.Get("Authorization"); got != "Bearer access-token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if got := r.URL.Query().Get("customer"); got != "C0123" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Query().Get("pageToken") {
		case "":
			_, _ = io.WriteString(w, `{"users":[{"id":"u-1","primaryEmail":"Alice@example.com","name":{"fullName":"Alice A"},"organizations":[{"department":"Ops","title":"SRE","primary":true}],"creationTime":"2024-05-01T00:00:00.000Z"}],"nextPageToken":"p2"}`)
		case "p2":
			_, _ = io.WriteString(w, `{"users":[{"id":"u-2","primaryEmail":"bob@example.com","suspended":true},{"id":"u-3","primaryEmail":"new@example.com","agreedToTerms":false}]}`)
		default:
			w.WriteHeader(http.StatusBadRequest)
		}
	}))
	defer server.Close()

	c, err := New(Config{CustomerID: "C0123"}, Options{
		HTTPClient:       server.Client(),
		DirectoryBaseURL: server.URL + "/admin/directory/v1",
		TokenSource:      oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "access-token"}),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	users, err := c.FetchUsers(context.Background())
	if err != nil {
		t.Fatalf("FetchUsers: %v", err)
	}
	if got := usersCalls.Load(); got != 2 {
		t.Fatalf("users calls = %d, want 2", got)
	}
	if len(users) != 3 {
		t.Fatalf("len(users) = %d, want 3", len(users))
	}
	alice := users[0]
	if alice.ID != "gws:u-1" || alice.Email != "alice@example.com" || alice.Department != "Ops" || alice.JobTitle != "SRE" || alice.Source != state.SourceGoogleWorkspace {
		t.Fatalf("users[0] = %+v", alice)
	}
	if alice.CreatedAt.IsZero() {
		t.Fatal("users[0].CreatedAt is zero")
	}
	if users[1].Status != state.UserDisabled || users[1].DisplayName != "bob@example.com" {
		t.Fatalf("users[1] = %+v, want disabled with email display name", users[1])
	}
	if users[2].Status != state.UserPending {
		t.Fatalf("users[2].Status = %s, want pending", users[2].Status)
	}
}

func TestServiceAccountTokenExchange(t *testing.T) {
	t.Parallel()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	der, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		t.Fatalf("MarshalPKCS8PrivateKey: %v", err)
	}
	pemKey := pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der})

	var tokenCalls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/token":
			tokenCalls.Add(1)
			_ = r.ParseForm()
			if !strings.Contains(r.PostForm.Get("grant_type"), "jwt-bearer") || r.PostForm.Get("assertion") == "" {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			_, _ = io.WriteString(w, `{"access_token":"sa-token","token_type":"Bearer","expires_in":3600}`)
		case "/users":
			if r.Header.Get("Authorization") != "Bearer sa-token" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			_, _ = io.WriteString(w, `{"users":[{"id":"u-1","primaryEmail":"a@example.com"}]}`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	keyJSON, err := json.Marshal(map[string]string{
		"type":           "service_account",
		"client_email":   "opsboard@example.iam.gserviceaccount.com",
		"private_key_id": "k1",
		"private_key":    string(pemKey),
		"token_uri":      server.URL + "/token",
	})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	c, err := New(Config{CredentialsJSON: keyJSON, AdminEmail: "admin@example.com"}, Options{
		HTTPClient:       server.Client(),
		DirectoryBaseURL: server.URL,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	users, err := c.FetchUsers(context.Background())
	if err != nil {
		t.Fatalf("FetchUsers: %v", err)
	}
	if len(users) != 1 || tokenCalls.Load() != 1 {
		t.Fatalf("users=%d tokenCalls=%d, want 1 and 1", len(users), tokenCalls.Load())
	}
}

func TestNewRequiresAdminEmail(t *testing.T) {
	t.Parallel()

	if _, err := New(Config{CredentialsJSON: []byte(`{}`)}, Options{}); err == nil {
		t.Fatal("New without admin email succeeded")
	}
	if _, err := New(Config{AdminEmail: "a@example.com"}, Options{}); err == nil {
		t.Fatal("New without credentials succeeded")
	}
}
