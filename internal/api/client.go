// Package api is the session-aware HTTP client for the library backend.
//
// Every call carries the stored access token. A 401 on a non-auth
// endpoint triggers one shared token refresh; the failed request is
// replayed once with the new token, or fails with its original error
// when the refresh does not succeed.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"github.com/libra-app/libra-cli/internal/credstore"
	"github.com/libra-app/libra-cli/internal/logging"
)

// Auth endpoint paths. Requests to these never trigger a refresh.
const (
	LoginPath     = "/auth/login/"
	RegisterPath  = "/auth/register/"
	RefreshPath   = "/auth/refresh/"
	LogoutPath    = "/auth/logout/"
	LogoutAllPath = "/auth/logout-all/"
	MePath        = "/auth/me/"
)

// DefaultTimeout bounds a single request/response exchange.
const DefaultTimeout = 30 * time.Second

// ClientConfig holds configuration for creating a Client.
type ClientConfig struct {
	// BaseURL is the REST API root, e.g. "http://127.0.0.1:8000".
	BaseURL string
	// Store holds the credential pair. Required.
	Store credstore.Store
	// HTTPClient is used for all requests. If nil, a client with
	// Timeout is created.
	HTTPClient *http.Client
	// Timeout applies when HTTPClient is nil. Zero means DefaultTimeout.
	Timeout time.Duration
	// Logger defaults to a disabled logger.
	Logger *zerolog.Logger
}

// Client is the authenticated HTTP client.
type Client struct {
	httpClient *http.Client
	baseURL    string
	store      credstore.Store
	log        zerolog.Logger
	refresher  *refreshCoordinator
}

// NewClient creates a Client.
func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("api: BaseURL is required")
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("api: invalid BaseURL %q: %w", cfg.BaseURL, err)
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("api: Store is required")
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	log := logging.OrNop(cfg.Logger).With().Str("component", "api").Logger()

	return &Client{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		store:      cfg.Store,
		log:        log,
		refresher:  &refreshCoordinator{},
	}, nil
}

// BaseURL returns the API root without a trailing slash.
func (c *Client) BaseURL() string { return c.baseURL }

// Store returns the credential store the client reads tokens from.
func (c *Client) Store() credstore.Store { return c.store }

// Refreshes returns how many refresh requests this client has sent.
func (c *Client) Refreshes() int64 { return c.refresher.calls.Load() }

// RequestOption configures a single call.
type RequestOption func(*request)

// WithQuery merges query parameters into the request URL.
func WithQuery(values url.Values) RequestOption {
	return func(r *request) {
		for k, vs := range values {
			for _, v := range vs {
				r.query.Add(k, v)
			}
		}
	}
}

// WithParam sets a single query parameter. Empty values are skipped.
func WithParam(key, value string) RequestOption {
	return func(r *request) {
		if value != "" {
			r.query.Set(key, value)
		}
	}
}

// WithHeader sets a request header.
func WithHeader(key, value string) RequestOption {
	return func(r *request) {
		r.header.Set(key, value)
	}
}

// request is everything needed to (re)issue a call. The body is encoded
// once so a replay after refresh sends identical bytes.
type request struct {
	method  string
	path    string
	query   url.Values
	header  http.Header
	body    []byte
	retried bool
}

func (c *Client) Get(ctx context.Context, path string, out any, opts ...RequestOption) error {
	return c.do(ctx, http.MethodGet, path, nil, out, opts...)
}

func (c *Client) Post(ctx context.Context, path string, body, out any, opts ...RequestOption) error {
	return c.do(ctx, http.MethodPost, path, body, out, opts...)
}

func (c *Client) Put(ctx context.Context, path string, body, out any, opts ...RequestOption) error {
	return c.do(ctx, http.MethodPut, path, body, out, opts...)
}

func (c *Client) Patch(ctx context.Context, path string, body, out any, opts ...RequestOption) error {
	return c.do(ctx, http.MethodPatch, path, body, out, opts...)
}

func (c *Client) Delete(ctx context.Context, path string, out any, opts ...RequestOption) error {
	return c.do(ctx, http.MethodDelete, path, nil, out, opts...)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any, opts ...RequestOption) error {
	req := &request{
		method: method,
		path:   path,
		query:  url.Values{},
		header: http.Header{},
	}
	for _, opt := range opts {
		opt(req)
	}
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshaling request: %w", err)
		}
		req.body = data
	}

	token, _ := c.store.Get(credstore.KeyAccess)
	respBody, err := c.send(ctx, req, token)

	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusUnauthorized && c.recoverable(ctx, req) {
		fresh, refreshErr := c.freshToken(ctx, token)
		if refreshErr != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			if errors.Is(refreshErr, ErrSessionExpired) {
				apiErr.cause = ErrSessionExpired
			}
			return apiErr
		}
		req.retried = true
		c.log.Debug().Str("method", method).Str("path", path).Msg("replaying request with refreshed token")
		respBody, err = c.send(ctx, req, fresh)
	}
	if err != nil {
		return err
	}

	if out != nil && len(bytes.TrimSpace(respBody)) > 0 {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}
	}
	return nil
}

// recoverable reports whether a 401 for req may be answered with a
// refresh and a single replay.
func (c *Client) recoverable(ctx context.Context, req *request) bool {
	if req.retried || isAuthEndpoint(req.path) {
		return false
	}
	return ctx.Err() == nil
}

func isAuthEndpoint(path string) bool {
	return strings.Contains(path, "/auth/login") ||
		strings.Contains(path, "/auth/register") ||
		strings.Contains(path, "/auth/refresh")
}

// freshToken returns a token to replay with. If another caller already
// replaced the token this request was sent with, that token is reused
// without sending a new refresh. The check is repeated inside the flight
// for callers that start one just after the previous flight landed.
func (c *Client) freshToken(ctx context.Context, used string) (string, error) {
	if current := c.replacedToken(used); current != "" {
		return current, nil
	}
	return c.refresher.do(ctx, func(ctx context.Context) (string, error) {
		if current := c.replacedToken(used); current != "" {
			return current, nil
		}
		return c.refreshAccessToken(ctx)
	})
}

func (c *Client) replacedToken(used string) string {
	current, _ := c.store.Get(credstore.KeyAccess)
	if current != "" && current != used {
		return current
	}
	return ""
}

// refreshAccessToken exchanges the stored refresh token for a new access
// token. Any failure clears the session.
func (c *Client) refreshAccessToken(ctx context.Context) (string, error) {
	refresh, _ := c.store.Get(credstore.KeyRefresh)
	if refresh == "" {
		c.clearSession()
		return "", ErrSessionExpired
	}

	payload, err := json.Marshal(map[string]string{"refresh": refresh})
	if err != nil {
		return "", err
	}
	req := &request{
		method: http.MethodPost,
		path:   RefreshPath,
		query:  url.Values{},
		header: http.Header{},
		body:   payload,
	}

	c.refresher.calls.Add(1)
	c.log.Debug().Msg("refreshing access token")
	respBody, err := c.send(ctx, req, "")
	if err != nil {
		c.log.Info().Err(err).Msg("token refresh failed, clearing session")
		c.clearSession()
		return "", fmt.Errorf("%w: %v", ErrSessionExpired, err)
	}

	var resp RefreshResponse
	if err := json.Unmarshal(respBody, &resp); err != nil || resp.Access == "" {
		c.clearSession()
		return "", fmt.Errorf("%w: refresh response without access token", ErrSessionExpired)
	}

	if err := c.store.Set(credstore.KeyAccess, resp.Access); err != nil {
		c.log.Warn().Err(err).Msg("could not persist refreshed access token")
	}
	if resp.Refresh != "" {
		if err := c.store.Set(credstore.KeyRefresh, resp.Refresh); err != nil {
			c.log.Warn().Err(err).Msg("could not persist rotated refresh token")
		}
	}
	return resp.Access, nil
}

func (c *Client) clearSession() {
	if err := credstore.Clear(c.store); err != nil {
		c.log.Warn().Err(err).Msg("could not clear stored credentials")
	}
}

// send performs one HTTP exchange. Non-2xx responses become *APIError.
func (c *Client) send(ctx context.Context, req *request, token string) ([]byte, error) {
	fullURL := c.baseURL + req.path
	if len(req.query) > 0 {
		fullURL += "?" + req.query.Encode()
	}

	var reqBody io.Reader
	if req.body != nil {
		reqBody = bytes.NewReader(req.body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.method, fullURL, reqBody)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	for k, vs := range req.header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}
	httpReq.Header.Set("Accept", "application/json")
	if req.body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}
	requestID := ulid.Make().String()
	httpReq.Header.Set("X-Request-ID", requestID)

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	c.log.Debug().
		Str("method", req.method).
		Str("path", req.path).
		Int("status", resp.StatusCode).
		Str("request_id", requestID).
		Bool("retry", req.retried).
		Dur("elapsed", time.Since(start)).
		Msg("request")

	if resp.StatusCode >= 400 {
		return nil, newAPIError(req.method, req.path, resp.StatusCode, respBody)
	}
	return respBody, nil
}
