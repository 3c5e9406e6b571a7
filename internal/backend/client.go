// Package backend is the HTTP client for the extension backend: the session
// and mode commands of the wikidata extension, the CSRF token command, and the
// core preference commands.
package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	wberrors "github.com/systmms/wbctl/internal/errors"
	"github.com/systmms/wbctl/internal/logging"
)

// Command paths relative to the backend root.
const (
	PathLogin         = "command/wikidata/login"
	PathMode          = "command/wikidata/mode"
	PathAuthorize     = "command/wikidata/authorize"
	PathCSRFToken     = "command/core/get-csrf-token"
	PathGetPreference = "command/core/get-preference"
	PathSetPreference = "command/core/set-preference"
)

// maxBodyBytes bounds every response body read from the backend.
const maxBodyBytes = 1 << 20

// Session is the body returned by every call to the login command.
type Session struct {
	LoggedIn bool   `json:"logged_in"`
	Username string `json:"username"`
}

// Client talks to the extension backend.
type Client struct {
	base   *url.URL
	http   *http.Client
	logger *logging.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithJar installs a cookie jar on the underlying HTTP client.
func WithJar(jar http.CookieJar) Option {
	return func(c *Client) {
		c.http.Jar = jar
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(c *Client) {
		c.logger = l.Named("backend")
	}
}

// New creates a client for the backend rooted at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid backend url %q: %w", baseURL, err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid backend url %q: scheme and host are required", baseURL)
	}

	c := &Client{
		base:   base,
		http:   &http.Client{Timeout: 10 * time.Second},
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// BaseURL returns the backend root. Cookies are scoped to it.
func (c *Client) BaseURL() *url.URL {
	u := *c.base
	return &u
}

// Jar returns the cookie jar in use, if any.
func (c *Client) Jar() http.CookieJar {
	return c.http.Jar
}

// AuthorizeURL is the page that starts the delegated authorization exchange.
func (c *Client) AuthorizeURL() string {
	return c.resolve(PathAuthorize, nil)
}

// Session returns the current session as seen by the backend.
func (c *Client) Session(ctx context.Context) (Session, error) {
	var s Session
	err := c.getJSON(ctx, PathLogin, nil, &s)
	return s, err
}

// Login posts credentials to the login command.
func (c *Client) Login(ctx context.Context, form url.Values) (Session, error) {
	var s Session
	err := c.postCSRF(ctx, PathLogin, nil, form, &s)
	return s, err
}

// Logout asks the backend to drop the session and forget stored credentials.
func (c *Client) Logout(ctx context.Context) (Session, error) {
	var s Session
	err := c.postCSRF(ctx, PathLogin, nil, url.Values{"logout": {"true"}}, &s)
	return s, err
}

// Mode asks the backend which login flow it supports.
func (c *Client) Mode(ctx context.Context) (Mode, error) {
	var body struct {
		Mode string `json:"mode"`
	}
	if err := c.getJSON(ctx, PathMode, nil, &body); err != nil {
		return "", err
	}
	return ParseMode(body.Mode), nil
}

// GetPreference reads a preference value. Unset or JSON null values return "".
func (c *Client) GetPreference(ctx context.Context, name string) (string, error) {
	var body struct {
		Value json.RawMessage `json:"value"`
	}
	if err := c.getJSON(ctx, PathGetPreference, url.Values{"name": {name}}, &body); err != nil {
		return "", err
	}
	return decodePreference(body.Value)
}

// SetPreference writes a preference value.
func (c *Client) SetPreference(ctx context.Context, name, value string) error {
	var body struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	if err := c.postCSRF(ctx, PathSetPreference, url.Values{"name": {name}}, url.Values{"value": {value}}, &body); err != nil {
		return err
	}
	if body.Code == "error" {
		return fmt.Errorf("set-preference %s: %s", name, body.Message)
	}
	return nil
}

func decodePreference(raw json.RawMessage) (string, error) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return "", nil
	}
	if strings.HasPrefix(trimmed, `"`) {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", fmt.Errorf("decode preference: %w", err)
		}
		return s, nil
	}
	// Some backends store structured values unquoted.
	return trimmed, nil
}

func (c *Client) csrfToken(ctx context.Context) (string, error) {
	var body struct {
		Token string `json:"token"`
	}
	if err := c.getJSON(ctx, PathCSRFToken, nil, &body); err != nil {
		return "", err
	}
	if body.Token == "" {
		return "", &wberrors.TransportError{
			Transport: "http",
			URL:       c.resolve(PathCSRFToken, nil),
			Err:       fmt.Errorf("empty csrf token"),
		}
	}
	return body.Token, nil
}

func (c *Client) resolve(path string, query url.Values) string {
	u := c.base.ResolveReference(&url.URL{Path: path})
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	return u.String()
}

func (c *Client) getJSON(ctx context.Context, path string, query url.Values, out interface{}) error {
	target := c.resolve(path, query)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	return c.do(req, out)
}

// postCSRF fetches a fresh CSRF token and posts form with it.
func (c *Client) postCSRF(ctx context.Context, path string, query, form url.Values, out interface{}) error {
	token, err := c.csrfToken(ctx)
	if err != nil {
		return err
	}

	body := url.Values{}
	for k, v := range form {
		body[k] = v
	}
	body.Set("csrf_token", token)
	c.logger.Debug("posting %d field(s) to %s with token %s", len(form), path, logging.Secret(token))

	target := c.resolve(path, query)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, strings.NewReader(body.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out interface{}) error {
	target := req.URL.Redacted()
	c.logger.Debug("%s %s", req.Method, target)

	resp, err := c.http.Do(req)
	if err != nil {
		return &wberrors.TransportError{Transport: "http", URL: target, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return &wberrors.TransportError{Transport: "http", URL: target, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &wberrors.TransportError{
			Transport: "http",
			URL:       target,
			Status:    resp.StatusCode,
			Err:       fmt.Errorf("%s", strings.TrimSpace(string(data))),
		}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return &wberrors.TransportError{Transport: "http", URL: target, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}
