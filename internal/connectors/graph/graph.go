// Package graph lists Microsoft 365 directory users through Microsoft Graph.
package graph

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/opsboard/opsboard/internal/apiclient"
	"github.com/opsboard/opsboard/internal/credentials"
	"github.com/opsboard/opsboard/internal/state"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

const (
	defaultTimeout    = 120 * time.Second
	defaultGraphBase  = "https://graph.microsoft.com/v1.0"
	defaultAuthority  = "https://login.microsoftonline.com"
	defaultTokenScope = "https://graph.microsoft.com/.default"
	userSelect        = "id,displayName,mail,userPrincipalName,department,jobTitle,accountEnabled,createdDateTime,assignedLicenses"
)

type Options struct {
	HTTPClient       *http.Client
	GraphBaseURL     string
	AuthorityBaseURL string
}

type Client struct {
	api *apiclient.Client
}

type graphUser struct {
	ID                string  `json:"id"`
	DisplayName       string  `json:"displayName"`
	Mail              string  `json:"mail"`
	UserPrincipalName string  `json:"userPrincipalName"`
	Department        *string `json:"department"`
	JobTitle          *string `json:"jobTitle"`
	AccountEnabled    *bool   `json:"accountEnabled"`
	CreatedDateTime   string  `json:"createdDateTime"`
	AssignedLicenses  []struct {
		SKUID string `json:"skuId"`
	} `json:"assignedLicenses"`
}

func New(tenantID, clientID, clientSecret string, opts Options) (*Client, error) {
	tenantID = strings.TrimSpace(tenantID)
	clientID = strings.TrimSpace(clientID)
	clientSecret = strings.TrimSpace(clientSecret)
	if tenantID == "" {
		return nil, errors.New("graph tenant id is required")
	}
	if clientID == "" {
		return nil, errors.New("graph client id is required")
	}
	if clientSecret == "" {
		return nil, errors.New("graph client secret is required")
	}

	graphBase := strings.TrimRight(strings.TrimSpace(opts.GraphBaseURL), "/")
	if graphBase == "" {
		graphBase = defaultGraphBase
	}
	authority := strings.TrimRight(strings.TrimSpace(opts.AuthorityBaseURL), "/")
	if authority == "" {
		authority = defaultAuthority
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}

	cc := clientcredentials.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		TokenURL:     authority + "/" + url.PathEscape(tenantID) + "/oauth2/v2.0/token",
		Scopes:       []string{defaultTokenScope},
		AuthStyle:    oauth2.AuthStyleInParams,
	}
	tokenCtx := context.WithValue(context.Background(), oauth2.HTTPClient, httpClient)

	api, err := apiclient.New(graphBase, apiclient.Options{
		HTTPClient:  httpClient,
		Credentials: credentials.TokenSource{Source: cc.TokenSource(tokenCtx)},
	})
	if err != nil {
		return nil, fmt.Errorf("graph client setup: %w", err)
	}
	return &Client{api: api}, nil
}

// FetchUsers pages through /users following @odata.nextLink.
func (c *Client) FetchUsers(ctx context.Context) ([]state.DirectoryUser, error) {
	path := "/users"
	query := url.Values{"$select": {userSelect}, "$top": {"999"}}

	var out []state.DirectoryUser
	for {
		var page struct {
			Value    []json.RawMessage `json:"value"`
			NextLink string            `json:"@odata.nextLink"`
		}
		if err := c.api.Get(ctx, path, query, &page); err != nil {
			return nil, fmt.Errorf("graph list users: %w", err)
		}
		for _, raw := range page.Value {
			var u graphUser
			if err := json.Unmarshal(raw, &u); err != nil {
				return nil, fmt.Errorf("graph decode user: %w", err)
			}
			if strings.TrimSpace(u.ID) == "" {
				continue
			}
			out = append(out, mapUser(u))
		}

		next := strings.TrimSpace(page.NextLink)
		if next == "" {
			return out, nil
		}
		// nextLink already carries the query.
		path, query = next, nil
	}
}

func mapUser(u graphUser) state.DirectoryUser {
	email := strings.TrimSpace(u.Mail)
	if email == "" {
		email = strings.TrimSpace(u.UserPrincipalName)
	}
	status := state.UserActive
	if u.AccountEnabled != nil && !*u.AccountEnabled {
		status = state.UserDisabled
	}
	var licenses []string
	for _, l := range u.AssignedLicenses {
		if sku := strings.TrimSpace(l.SKUID); sku != "" {
			licenses = append(licenses, sku)
		}
	}
	out := state.DirectoryUser{
		ID:                "m365:" + u.ID,
		DisplayName:       strings.TrimSpace(u.DisplayName),
		Email:             strings.ToLower(email),
		UserPrincipalName: strings.TrimSpace(u.UserPrincipalName),
		Status:            status,
		Source:            state.SourceM365,
		Licenses:          licenses,
	}
	if u.Department != nil {
		out.Department = strings.TrimSpace(*u.Department)
	}
	if u.JobTitle != nil {
		out.JobTitle = strings.TrimSpace(*u.JobTitle)
	}
	if t, err := time.Parse(time.RFC3339, strings.TrimSpace(u.CreatedDateTime)); err == nil {
		out.CreatedAt = t.UTC()
	}
	return out
}
