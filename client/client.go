package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	interrors "github.com/turfbook/turf-client/internal/errors"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"
)

const (
	DefaultTimeout       = 10 * time.Second
	DefaultLoginPath     = "/auth/login"
	DefaultRefreshPath   = "/auth/refresh-token"
	DefaultLoginRedirect = "/auth/login"

	// HeaderRequestID correlates a logical request with its retry
	HeaderRequestID = "X-Request-ID"
	// HeaderRefreshToken carries the refresh token for clients without a cookie jar
	HeaderRefreshToken = "X-Refresh-Token"

	maxResponseBytes = 1 << 20
)

// TokenStore is the part of the session store the HTTP client reads and writes
type TokenStore interface {
	AccessToken() string
	RefreshToken() string
	// ReplaceAccessToken stores accessToken only while the session still holds
	// refreshToken, reporting whether it did
	ReplaceAccessToken(ctx context.Context, refreshToken, accessToken string) (bool, error)
	Logout(ctx context.Context) error
}

// errSessionChanged reports a refresh whose session was logged out or replaced
// before the new access token arrived
var errSessionChanged = errors.New("session changed during refresh")

// Config holds configuration for creating a Client.
type Config struct {
	// BaseURL is the REST API root, e.g. "http://localhost:5000/api/v1"
	BaseURL string
	// Timeout bounds each attempt. Zero uses DefaultTimeout.
	Timeout time.Duration
	// LoginPath is never refreshed on 401. Empty uses DefaultLoginPath.
	LoginPath string
	// RefreshPath mints a new access token. Empty uses DefaultRefreshPath.
	RefreshPath string
	// LoginRedirect is the location handed to the session-expired hook.
	LoginRedirect string
	// HTTPClient is used for all requests. If nil, a client with a cookie jar is created.
	HTTPClient *http.Client
}

// Client dispatches REST requests, attaching the bearer token and recovering
// once from an expired access token.
type Client struct {
	baseURL       string
	timeout       time.Duration
	loginPath     string
	refreshPath   string
	loginRedirect string
	httpClient    *http.Client
	store         TokenStore
	logger        zerolog.Logger

	onSessionExpired func(location string)
	observer         Observer
	dedupeRefresh    bool
	refreshGroup     singleflight.Group
	newRequestID     func() string
}

// Option defines a function type to modify the Client instance.
type Option func(*Client)

func WithLogger(logger zerolog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithSessionExpiredHandler is called with the login location after a failed
// refresh has cleared the session.
func WithSessionExpiredHandler(fn func(location string)) Option {
	return func(c *Client) {
		c.onSessionExpired = fn
	}
}

// WithObserver reports every request state transition to fn
func WithObserver(fn Observer) Option {
	return func(c *Client) {
		c.observer = fn
	}
}

// WithRefreshDeduplication controls whether concurrent 401s share one refresh
// call (the default) or each issue their own.
func WithRefreshDeduplication(enabled bool) Option {
	return func(c *Client) {
		c.dedupeRefresh = enabled
	}
}

// WithRequestIDGenerator sets the request ID source (primarily for testing)
func WithRequestIDGenerator(fn func() string) Option {
	return func(c *Client) {
		c.newRequestID = fn
	}
}

func New(config Config, store TokenStore, options ...Option) (*Client, error) {
	if config.BaseURL == "" {
		return nil, errors.New("[client.New] BaseURL is required")
	}
	if _, err := url.Parse(config.BaseURL); err != nil {
		return nil, fmt.Errorf("[client.New] invalid BaseURL %q: %w", config.BaseURL, err)
	}
	if store == nil {
		return nil, errors.New("[client.New] token store is required")
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		jar, err := cookiejar.New(nil)
		if err != nil {
			return nil, fmt.Errorf("[client.New] cookie jar: %w", err)
		}
		httpClient = &http.Client{Jar: jar}
	}

	c := &Client{
		baseURL:       strings.TrimRight(config.BaseURL, "/"),
		timeout:       orDuration(config.Timeout, DefaultTimeout),
		loginPath:     orString(config.LoginPath, DefaultLoginPath),
		refreshPath:   orString(config.RefreshPath, DefaultRefreshPath),
		loginRedirect: orString(config.LoginRedirect, DefaultLoginRedirect),
		httpClient:    httpClient,
		store:         store,
		logger:        log.Logger,
		dedupeRefresh: true,
		newRequestID:  uuid.NewString,
	}
	for _, opt := range options {
		opt(c)
	}
	return c, nil
}

// Request describes one call to the backend. Path is relative to BaseURL.
type Request struct {
	Method string
	Path   string
	Query  url.Values
	Body   any
	Header http.Header
	// SkipRefresh fails a 401 immediately instead of refreshing and retrying
	SkipRefresh bool
}

// Response is a decoded 2xx envelope
type Response struct {
	StatusCode int
	Header     http.Header
	Message    string
	Data       json.RawMessage
	RequestID  string
	// Trace lists the states the request passed through
	Trace []RequestState
}

// Decode unmarshals the envelope's data field into v
func (r *Response) Decode(v any) error {
	if len(r.Data) == 0 || string(r.Data) == "null" {
		return fmt.Errorf("[Response.Decode] response has no data: %w", interrors.ErrServer)
	}
	if err := json.Unmarshal(r.Data, v); err != nil {
		return fmt.Errorf("[Response.Decode] %w: %w", interrors.ErrServer, err)
	}
	return nil
}

type envelope struct {
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Do sends req. A 401 from any path other than the login path triggers one
// refresh and one resend; the resend is never retried again.
func (c *Client) Do(ctx context.Context, req Request) (*Response, error) {
	if req.Method == "" {
		req.Method = http.MethodGet
	}

	var body []byte
	if req.Body != nil {
		encoded, err := json.Marshal(req.Body)
		if err != nil {
			return nil, fmt.Errorf("[Client.Do] encode body: %w", err)
		}
		body = encoded
	}

	requestID := c.newRequestID()
	machine := newRequestMachine(requestID, req.Method, req.Path, c.observer)

	resp, err := c.attempt(ctx, machine, StateSent, req, body, c.store.AccessToken())
	if err == nil {
		return resp, nil
	}

	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusUnauthorized {
		return nil, err
	}
	if c.isLoginPath(req.Path) || req.SkipRefresh || !machine.canRetry() {
		return nil, err
	}

	c.mustAdvance(machine, StateUnauthorized)
	c.mustAdvance(machine, StateRefreshing)

	accessToken, refreshErr := c.refresh(ctx)
	if refreshErr != nil {
		c.mustAdvance(machine, StateFailed)
		return nil, fmt.Errorf("[Client.Do] %s %s: %w: %w", req.Method, req.Path, interrors.ErrSessionExpired, refreshErr)
	}

	return c.attempt(ctx, machine, StateRetried, req, body, accessToken)
}

// attempt sends one HTTP request and classifies the outcome. A 401 leaves the
// machine in its current state so Do can decide whether to refresh.
func (c *Client) attempt(ctx context.Context, machine *requestMachine, state RequestState, req Request, body []byte, accessToken string) (*Response, error) {
	c.mustAdvance(machine, state)

	statusCode, header, env, err := c.send(ctx, req, body, accessToken, machine.requestID)
	if err != nil {
		c.mustAdvance(machine, StateFailed)
		return nil, err
	}

	c.logger.Debug().
		Str("method", req.Method).
		Str("path", req.Path).
		Int("status", statusCode).
		Str("request_id", machine.requestID).
		Str("state", string(state)).
		Msg("API request")

	if statusCode >= 200 && statusCode < 300 {
		c.mustAdvance(machine, StateCompleted)
		return &Response{
			StatusCode: statusCode,
			Header:     header,
			Message:    env.Message,
			Data:       env.Data,
			RequestID:  machine.requestID,
			Trace:      machine.history(),
		}, nil
	}

	apiErr := newAPIError(statusCode, env.Message, req.Method, req.Path, machine.requestID, c.errorKind(statusCode, req.Path))
	if statusCode != http.StatusUnauthorized || state == StateRetried || c.isLoginPath(req.Path) || req.SkipRefresh {
		c.mustAdvance(machine, StateFailed)
	}
	return nil, apiErr
}

func (c *Client) send(ctx context.Context, req Request, body []byte, accessToken, requestID string) (int, http.Header, envelope, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	requestURL := c.baseURL + req.Path
	if len(req.Query) > 0 {
		requestURL += "?" + req.Query.Encode()
	}

	var bodyReader io.Reader
	if body != nil {
		bodyReader = bytes.NewReader(body)
	}

	httpReq, err := http.NewRequestWithContext(attemptCtx, req.Method, requestURL, bodyReader)
	if err != nil {
		return 0, nil, envelope{}, fmt.Errorf("[Client.send] create request: %w", err)
	}
	for name, values := range req.Header {
		for _, v := range values {
			httpReq.Header.Add(name, v)
		}
	}
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set(HeaderRequestID, requestID)
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if accessToken != "" {
		(&oauth2.Token{AccessToken: accessToken, TokenType: "Bearer"}).SetAuthHeader(httpReq)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return 0, nil, envelope{}, classifyTransportError(ctx, req, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return 0, nil, envelope{}, classifyTransportError(ctx, req, err)
	}

	var env envelope
	if len(bytes.TrimSpace(raw)) > 0 {
		if jsonErr := json.Unmarshal(raw, &env); jsonErr != nil {
			if resp.StatusCode >= 200 && resp.StatusCode < 300 {
				return 0, nil, envelope{}, fmt.Errorf("[Client.send] %s %s: malformed response: %w", req.Method, req.Path, interrors.ErrServer)
			}
			// Non-JSON error bodies (proxies, HTML error pages) fall back to the status text
			env = envelope{}
		}
	}
	return resp.StatusCode, resp.Header, env, nil
}

// refresh obtains a new access token and stores it, keeping the current refresh
// token. A failed refresh expires the session once, however many requests
// were waiting on it.
func (c *Client) refresh(ctx context.Context) (string, error) {
	if !c.dedupeRefresh {
		return c.refreshOrExpire(ctx)
	}

	// The first caller's cancellation must not fail everyone sharing the call
	shared := context.WithoutCancel(ctx)
	v, err, _ := c.refreshGroup.Do("refresh", func() (any, error) {
		return c.refreshOrExpire(shared)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (c *Client) refreshOrExpire(ctx context.Context) (string, error) {
	accessToken, err := c.doRefresh(ctx)
	if err != nil && !errors.Is(err, errSessionChanged) {
		c.expireSession(ctx)
	}
	return accessToken, err
}

func (c *Client) doRefresh(ctx context.Context) (string, error) {
	refreshToken := c.store.RefreshToken()
	req := Request{Method: http.MethodPost, Path: c.refreshPath}
	if refreshToken != "" {
		req.Header = http.Header{HeaderRefreshToken: []string{refreshToken}}
	}
	requestID := c.newRequestID()

	statusCode, _, env, err := c.send(ctx, req, nil, "", requestID)
	if err != nil {
		return "", fmt.Errorf("[Client.refresh] %w: %w", interrors.ErrRefreshFailed, err)
	}
	if statusCode < 200 || statusCode >= 300 {
		return "", fmt.Errorf("[Client.refresh] %w: %w", interrors.ErrRefreshFailed,
			newAPIError(statusCode, env.Message, req.Method, req.Path, requestID, interrors.ErrSessionExpired))
	}

	var payload struct {
		AccessToken string `json:"accessToken"`
	}
	if len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, &payload); err != nil {
			return "", fmt.Errorf("[Client.refresh] %w: decode: %w", interrors.ErrRefreshFailed, err)
		}
	}
	if payload.AccessToken == "" {
		return "", fmt.Errorf("[Client.refresh] %w: response carried no access token", interrors.ErrRefreshFailed)
	}

	applied, err := c.store.ReplaceAccessToken(ctx, refreshToken, payload.AccessToken)
	if !applied {
		if err != nil {
			return "", fmt.Errorf("[Client.refresh] %w: %w", interrors.ErrRefreshFailed, err)
		}
		c.logger.Debug().Str("request_id", requestID).Msg("Discarding refreshed token for a session that has ended")
		return "", fmt.Errorf("[Client.refresh] %w", errSessionChanged)
	}
	if err != nil {
		// The in-memory token is updated; only persistence failed
		c.logger.Warn().Err(err).Msg("Failed to persist refreshed token")
	}
	c.logger.Debug().Str("request_id", requestID).Msg("Access token refreshed")
	return payload.AccessToken, nil
}

func (c *Client) expireSession(ctx context.Context) {
	if err := c.store.Logout(ctx); err != nil {
		c.logger.Warn().Err(err).Msg("Failed to clear session after refresh failure")
	}
	c.logger.Info().Str("location", c.loginRedirect).Msg("Session expired")
	if c.onSessionExpired != nil {
		c.onSessionExpired(c.loginRedirect)
	}
}

func (c *Client) errorKind(statusCode int, path string) error {
	if statusCode != http.StatusUnauthorized {
		return interrors.ErrServer
	}
	if c.isLoginPath(path) {
		return interrors.ErrInvalidCredentials
	}
	return interrors.ErrSessionExpired
}

func (c *Client) isLoginPath(path string) bool {
	if i := strings.IndexAny(path, "?#"); i >= 0 {
		path = path[:i]
	}
	return strings.TrimRight(path, "/") == strings.TrimRight(c.loginPath, "/")
}

func (c *Client) mustAdvance(machine *requestMachine, to RequestState) {
	if err := machine.advance(to); err != nil {
		c.logger.Error().Err(err).Str("request_id", machine.requestID).Msg("Request state machine violation")
	}
}

func classifyTransportError(ctx context.Context, req Request, err error) error {
	if ctx.Err() != nil {
		return fmt.Errorf("[Client.send] %s %s: %w", req.Method, req.Path, ctx.Err())
	}
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return fmt.Errorf("[Client.send] %s %s: %w: %w", req.Method, req.Path, interrors.ErrTimeout, err)
	}
	return fmt.Errorf("[Client.send] %s %s: %w: %w", req.Method, req.Path, interrors.ErrServer, err)
}

// Get, Post, Put, Patch and Delete are shorthands for Do

func (c *Client) Get(ctx context.Context, path string, query url.Values) (*Response, error) {
	return c.Do(ctx, Request{Method: http.MethodGet, Path: path, Query: query})
}

func (c *Client) Post(ctx context.Context, path string, body any) (*Response, error) {
	return c.Do(ctx, Request{Method: http.MethodPost, Path: path, Body: body})
}

func (c *Client) Put(ctx context.Context, path string, body any) (*Response, error) {
	return c.Do(ctx, Request{Method: http.MethodPut, Path: path, Body: body})
}

func (c *Client) Patch(ctx context.Context, path string, body any) (*Response, error) {
	return c.Do(ctx, Request{Method: http.MethodPatch, Path: path, Body: body})
}

func (c *Client) Delete(ctx context.Context, path string) (*Response, error) {
	return c.Do(ctx, Request{Method: http.MethodDelete, Path: path})
}

// BaseURL returns the API root requests are resolved against
func (c *Client) BaseURL() string {
	return c.baseURL
}

func orString(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

func orDuration(v, fallback time.Duration) time.Duration {
	if v <= 0 {
		return fallback
	}
	return v
}
