// Package googleworkspace lists Google Workspace directory users through the
// Admin SDK Directory API using a domain-wide delegated service account.
package googleworkspace

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/opsboard/opsboard/internal/apiclient"
	"github.com/opsboard/opsboard/internal/credentials"
	"github.com/opsboard/opsboard/internal/state"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

const (
	defaultDirectoryBaseURL = "https://admin.googleapis.com/admin/directory/v1"
	defaultTimeout          = 120 * time.Second
	defaultCustomer         = "my_customer"
	directoryUserScope      = "https://www.googleapis.com/auth/admin.directory.user.readonly"
)

type Options struct {
	HTTPClient       *http.Client
	DirectoryBaseURL string
	// TokenURL overrides the token_uri of the service account key.
	TokenURL string
	// TokenSource skips the service account flow entirely.
	TokenSource oauth2.TokenSource
}

type Config struct {
	// CredentialsJSON is the service account key file contents.
	CredentialsJSON []byte
	// AdminEmail is the super admin the service account impersonates.
	AdminEmail string
	CustomerID string
}

type Client struct {
	api        *apiclient.Client
	customerID string
}

type workspaceUser struct {
	ID            string `json:"id"`
	PrimaryEmail  string `json:"primaryEmail"`
	Suspended     bool   `json:"suspended"`
	AgreedToTerms *bool  `json:"agreedToTerms"`
	CreationTime  string `json:"creationTime"`
	Name          struct {
		FullName string `json:"fullName"`
	} `json:"name"`
	Organizations []struct {
		Department string `json:"department"`
		Title      string `json:"title"`
		Primary    bool   `json:"primary"`
	} `json:"organizations"`
}

func New(cfg Config, opts Options) (*Client, error) {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}

	ts := opts.TokenSource
	if ts == nil {
		if len(cfg.CredentialsJSON) == 0 {
			return nil, errors.New("google workspace service account credentials are required")
		}
		subject := strings.TrimSpace(cfg.AdminEmail)
		if subject == "" {
			return nil, errors.New("google workspace admin email is required")
		}
		jwtCfg, err := google.JWTConfigFromJSON(cfg.CredentialsJSON, directoryUserScope)
		if err != nil {
			return nil, fmt.Errorf("parse google service account: %w", err)
		}
		jwtCfg.Subject = subject
		if tokenURL := strings.TrimSpace(opts.TokenURL); tokenURL != "" {
			jwtCfg.TokenURL = tokenURL
		}
		ts = jwtCfg.TokenSource(context.WithValue(context.Background(), oauth2.HTTPClient, httpClient))
	}

	baseURL := strings.TrimRight(strings.TrimSpace(opts.DirectoryBaseURL), "/")
	if baseURL == "" {
		baseURL = defaultDirectoryBaseURL
	}
	api, err := apiclient.New(baseURL, apiclient.Options{
		HTTPClient:  httpClient,
		Credentials: credentials.TokenSource{Source: ts},
	})
	if err != nil {
		return nil, fmt.Errorf("google workspace client setup: %w", err)
	}

	customer := strings.TrimSpace(cfg.CustomerID)
	if customer == "" {
		customer = defaultCustomer
	}
	return &Client{api: api, customerID: customer}, nil
}

// FetchUsers pages through the directory following nextPageToken.
func (c *Client) FetchUsers(ctx context.Context) ([]state.DirectoryUser, error) {
	var out []state.DirectoryUser
	pageToken := ""
	for {
		query := url.Values{
			"customer":   {c.customerID},
			"maxResults": {"500"},
			"projection": {"full"},
		}
		if pageToken != "" {
			query.Set("pageToken", pageToken)
		}

		var page struct {
			Users         []json.RawMessage `json:"users"`
			NextPageToken string            `json:"nextPageToken"`
		}
		if err := c.api.Get(ctx, "/users", query, &page); err != nil {
			return nil, fmt.Errorf("google workspace list users: %w", err)
		}
		for _, raw := range page.Users {
			var u workspaceUser
			if err := json.Unmarshal(raw, &u); err != nil {
				return nil, fmt.Errorf("decode google workspace user: %w", err)
			}
			if strings.TrimSpace(u.ID) == "" {
				continue
			}
			out = append(out, mapUser(u))
		}

		pageToken = strings.TrimSpace(page.NextPageToken)
		if pageToken == "" {
			return out, nil
		}
	}
}

func mapUser(u workspaceUser) state.DirectoryUser {
	email := strings.ToLower(strings.TrimSpace(u.PrimaryEmail))
	status := state.UserActive
	switch {
	case u.Suspended:
		status = state.UserDisabled
	case u.AgreedToTerms != nil && !*u.AgreedToTerms:
		status = state.UserPending
	}
	out := state.DirectoryUser{
		ID:                "gws:" + u.ID,
		DisplayName:       strings.TrimSpace(u.Name.FullName),
		Email:             email,
		UserPrincipalName: email,
		Status:            status,
		Source:            state.SourceGoogleWorkspace,
		CreatedAt:         parseGoogleTime(u.CreationTime),
	}
	for i, org := range u.Organizations {
		if org.Primary || i == 0 {
			out.Department = strings.TrimSpace(org.Department)
			out.JobTitle = strings.TrimSpace(org.Title)
		}
		if org.Primary {
			break
		}
	}
	if out.DisplayName == "" {
		out.DisplayName = email
	}
	return out
}

func parseGoogleTime(raw string) time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}
	}
	if parsed, err := time.Parse(time.RFC3339, raw); err == nil {
		return parsed.UTC()
	}
	if unixMS, err := strconv.ParseInt(raw, 10, 64); err == nil && unixMS > 0 {
		return time.UnixMilli(unixMS).UTC()
	}
	return time.Time{}
}
