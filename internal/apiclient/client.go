// Package apiclient is the authenticated JSON client used by vendor
// connectors.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/opsboard/opsboard/internal/credentials"
)

const (
	defaultUserAgent  = "opsboard"
	maxRetries        = 3
	maxErrorBodySize  = 1 << 20
	maxErrorMsgLength = 300
)

// Error is a non-2xx response.
type Error struct {
	Status  int
	Message string
	URL     string
}

func (e *Error) Error() string {
	text := http.StatusText(e.Status)
	if e.Message != "" {
		return fmt.Sprintf("api request failed: %d %s: %s", e.Status, text, e.Message)
	}
	return fmt.Sprintf("api request failed: %d %s", e.Status, text)
}

// StatusCode reports the HTTP status carried by err, or 0.
func StatusCode(err error) int {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Status
	}
	return 0
}

type Options struct {
	HTTPClient  *http.Client
	Credentials credentials.Source
	UserAgent   string
	// Header is added to every request.
	Header http.Header
	// RetryBackoff overrides the wait before retry attempt n.
	RetryBackoff func(attempt int) time.Duration
}

type Client struct {
	baseURL   *url.URL
	http      *http.Client
	creds     credentials.Source
	userAgent string
	header    http.Header
	backoff   func(int) time.Duration
}

func New(baseURL string, opts Options) (*Client, error) {
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		return nil, errors.New("api base URL is required")
	}
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse api base URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("api base URL must be http or https, got %q", u.Scheme)
	}

	c := &Client{
		baseURL:   u,
		http:      opts.HTTPClient,
		creds:     opts.Credentials,
		userAgent: strings.TrimSpace(opts.UserAgent),
		header:    opts.Header.Clone(),
		backoff:   opts.RetryBackoff,
	}
	if c.http == nil {
		c.http = &http.Client{Timeout: 60 * time.Second}
	}
	if c.userAgent == "" {
		c.userAgent = defaultUserAgent
	}
	if c.backoff == nil {
		c.backoff = retryBackoff
	}
	return c, nil
}

// Get decodes the JSON response of path into out. A nil out discards the body.
func (c *Client) Get(ctx context.Context, path string, query url.Values, out any) error {
	body, err := c.Do(ctx, http.MethodGet, path, query, nil)
	if err != nil {
		return err
	}
	return decode(body, out)
}

// Post sends in as JSON and decodes the response into out.
func (c *Client) Post(ctx context.Context, path string, in, out any) error {
	body, err := c.Do(ctx, http.MethodPost, path, nil, in)
	if err != nil {
		return err
	}
	return decode(body, out)
}

// GetRaw returns the undecoded response body.
func (c *Client) GetRaw(ctx context.Context, path string, query url.Values) ([]byte, error) {
	return c.Do(ctx, http.MethodGet, path, query, nil)
}

// Do performs one logical request, retrying throttled responses.
func (c *Client) Do(ctx context.Context, method, path string, query url.Values, in any) ([]byte, error) {
	endpoint := c.resolve(path, query)

	var payload []byte
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
		payload = b
	}

	token, err := credentials.Optional(ctx, c.creds)
	if err != nil {
		return nil, fmt.Errorf("resolve credential: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		var reqBody io.Reader
		if payload != nil {
			reqBody = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, endpoint, reqBody)
		if err != nil {
			return nil, err
		}
		for k, vs := range c.header {
			for _, v := range vs {
				req.Header.Add(k, v)
			}
		}
		req.Header.Set("Accept", "application/json")
		req.Header.Set("User-Agent", c.userAgent)
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, err
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			body, readErr := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
			resp.Body.Close()
			if readErr != nil {
				return nil, readErr
			}
			lastErr = &Error{Status: resp.StatusCode, Message: extractErrorMessage(body), URL: safeURL(endpoint)}
			if !retryable(resp.StatusCode) || attempt == maxRetries {
				return nil, lastErr
			}
			wait, ok := retryAfterDuration(resp.Header.Get("Retry-After"))
			if !ok {
				wait = c.backoff(attempt)
			}
			if err := sleep(ctx, wait); err != nil {
				return nil, err
			}
			continue
		}

		body, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			return nil, readErr
		}
		return body, nil
	}
	return nil, lastErr
}

func (c *Client) resolve(path string, query url.Values) string {
	u := *c.baseURL
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		if parsed, err := url.Parse(path); err == nil {
			u = *parsed
		}
	} else if path != "" {
		u.Path = strings.TrimRight(u.Path, "/") + "/" + strings.TrimLeft(path, "/")
	}
	if len(query) > 0 {
		q := u.Query()
		for k, vs := range query {
			for _, v := range vs {
				q.Add(k, v)
			}
		}
		u.RawQuery = q.Encode()
	}
	return u.String()
}

func decode(body []byte, out any) error {
	if out == nil || len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func retryable(status int) bool {
	return status == http.StatusTooManyRequests || status == http.StatusServiceUnavailable || status == http.StatusGatewayTimeout
}

// extractErrorMessage understands {"error":{"code","message"}},
// {"error":"..."} and {"message":"..."}; anything else is returned as
// collapsed text.
func extractErrorMessage(body []byte) string {
	var payload struct {
		Error   json.RawMessage `json:"error"`
		Message string          `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		var nested struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		}
		var flat string
		switch {
		case len(payload.Error) > 0 && json.Unmarshal(payload.Error, &nested) == nil:
			msg := strings.TrimSpace(nested.Message)
			code := strings.TrimSpace(nested.Code)
			if msg != "" && code != "" {
				return code + ": " + msg
			}
			if msg != "" {
				return msg
			}
			if code != "" {
				return code
			}
		case len(payload.Error) > 0 && json.Unmarshal(payload.Error, &flat) == nil && strings.TrimSpace(flat) != "":
			return strings.TrimSpace(flat)
		}
		if msg := strings.TrimSpace(payload.Message); msg != "" {
			return msg
		}
	}

	msg := strings.Join(strings.Fields(string(body)), " ")
	if len(msg) > maxErrorMsgLength {
		msg = msg[:maxErrorMsgLength] + "…"
	}
	return msg
}

func retryAfterDuration(header string) (time.Duration, bool) {
	header = strings.TrimSpace(header)
	if header == "" {
		return 0, false
	}
	secs, err := strconv.Atoi(header)
	if err != nil || secs < 0 {
		return 0, false
	}
	return time.Duration(secs) * time.Second, true
}

func retryBackoff(attempt int) time.Duration {
	d := time.Duration(1<<attempt) * 500 * time.Millisecond
	if d > 8*time.Second {
		return 8 * time.Second
	}
	return d
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func safeURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	u.User = nil
	u.RawQuery = ""
	u.Fragment = ""
	return u.String()
}
