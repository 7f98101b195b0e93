// Package unifi reads site health from a UniFi Network controller.
package unifi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/opsboard/opsboard/internal/apiclient"
	"github.com/opsboard/opsboard/internal/state"
	"golang.org/x/net/publicsuffix"
)

const (
	defaultTimeout = 60 * time.Second
	maxBodySize    = 32 << 20
	subsystemOK    = "ok"
)

type Options struct {
	// Transport is used for every request; the client installs its own
	// cookie jar on top.
	Transport http.RoundTripper
}

// Client keeps the controller session cookie and logs in again when the
// controller rejects it.
type Client struct {
	baseURL  string
	username string
	password string
	http     *http.Client

	mu       sync.Mutex
	loggedIn bool
}

type site struct {
	ID     string      `json:"_id"`
	Name   string      `json:"name"`
	Desc   string      `json:"desc"`
	Health []subsystem `json:"health"`
}

type subsystem struct {
	Subsystem       string `json:"subsystem"`
	Status          string `json:"status"`
	WANIP           string `json:"wan_ip"`
	ISPName         string `json:"isp_name"`
	NumAdopted      int    `json:"num_adopted"`
	NumDisconnected int    `json:"num_disconnected"`
	NumUser         int    `json:"num_user"`
}

func New(baseURL, username, password string, opts Options) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, errors.New("unifi controller url is required")
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("parse unifi controller url: %w", err)
	}
	if strings.TrimSpace(username) == "" || password == "" {
		return nil, errors.New("unifi username and password are required")
	}
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("unifi cookie jar: %w", err)
	}
	return &Client{
		baseURL:  baseURL,
		username: strings.TrimSpace(username),
		password: password,
		http:     &http.Client{Timeout: defaultTimeout, Jar: jar, Transport: opts.Transport},
	}, nil
}

// FetchSites returns every site with its health rollup, stamped with at.
func (c *Client) FetchSites(ctx context.Context, at time.Time) ([]state.UnifiSite, error) {
	body, err := c.get(ctx, "/api/stat/sites")
	if err != nil {
		return nil, fmt.Errorf("unifi list sites: %w", err)
	}
	var payload struct {
		Data []site `json:"data"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("decode unifi sites: %w", err)
	}
	out := make([]state.UnifiSite, 0, len(payload.Data))
	for _, s := range payload.Data {
		if strings.TrimSpace(s.ID) == "" {
			continue
		}
		out = append(out, rollup(s, at))
	}
	return out, nil
}

func (c *Client) get(ctx context.Context, path string) ([]byte, error) {
	if err := c.ensureLogin(ctx); err != nil {
		return nil, err
	}
	body, status, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	if status == http.StatusUnauthorized {
		c.mu.Lock()
		c.loggedIn = false
		c.mu.Unlock()
		if err := c.ensureLogin(ctx); err != nil {
			return nil, err
		}
		body, status, err = c.do(ctx, http.MethodGet, path, nil)
		if err != nil {
			return nil, err
		}
	}
	if status < 200 || status >= 300 {
		return nil, &apiclient.Error{Status: status, Message: controllerMessage(body), URL: c.baseURL + path}
	}
	return body, nil
}

func (c *Client) ensureLogin(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.loggedIn {
		return nil
	}
	payload, err := json.Marshal(map[string]string{"username": c.username, "password": c.password})
	if err != nil {
		return err
	}
	body, status, err := c.do(ctx, http.MethodPost, "/api/login", payload)
	if err != nil {
		return fmt.Errorf("unifi login: %w", err)
	}
	if status < 200 || status >= 300 {
		return fmt.Errorf("unifi login: %w", &apiclient.Error{Status: status, Message: controllerMessage(body)})
	}
	c.loggedIn = true
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, payload []byte) ([]byte, int, error) {
	var reqBody io.Reader
	if payload != nil {
		reqBody = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "opsboard")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, resp.StatusCode, err
	}
	return body, resp.StatusCode, nil
}

// controllerMessage reads {"meta":{"rc":"error","msg":"..."}}.
func controllerMessage(body []byte) string {
	var payload struct {
		Meta struct {
			Msg string `json:"msg"`
		} `json:"meta"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && payload.Meta.Msg != "" {
		return payload.Meta.Msg
	}
	msg := strings.Join(strings.Fields(string(body)), " ")
	if len(msg) > 300 {
		msg = msg[:300] + "…"
	}
	return msg
}
