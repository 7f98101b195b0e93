// Package sanernow fetches vulnerability scan results from the SanerNow
// vulnerability management API.
package sanernow

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/opsboard/opsboard/internal/apiclient"
	"github.com/opsboard/opsboard/internal/credentials"
)

const vulnerabilitiesPath = "/api/v1/vulnerabilities"

type Options struct {
	BaseURL     string
	Account     string
	Credentials credentials.Source
	HTTPClient  *http.Client
}

// Client returns raw scan payloads. Decoding is left to the caller so that
// shape variations in the vendor response are handled in one place.
type Client struct {
	api     *apiclient.Client
	account string
}

func New(opts Options) (*Client, error) {
	account := strings.TrimSpace(opts.Account)
	if account == "" {
		return nil, errors.New("sanernow account is required")
	}
	api, err := apiclient.New(opts.BaseURL, apiclient.Options{
		HTTPClient:  opts.HTTPClient,
		Credentials: opts.Credentials,
	})
	if err != nil {
		return nil, fmt.Errorf("sanernow client setup: %w", err)
	}
	return &Client{api: api, account: account}, nil
}

func (c *Client) FetchVulnerabilities(ctx context.Context) ([]byte, error) {
	body, err := c.api.GetRaw(ctx, vulnerabilitiesPath, url.Values{"account": {c.account}})
	if err != nil {
		return nil, fmt.Errorf("sanernow fetch vulnerabilities: %w", err)
	}
	return body, nil
}
