package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"rdportal/client/internal/config"
	"rdportal/client/internal/ids"
	"rdportal/client/internal/models"
	"rdportal/client/internal/tokenstore"
)

const defaultTimeout = 30 * time.Second

// envelope is the standard response wrapper on read endpoints:
// { "code": 0, "message": "ok", "data": ... }.
type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// LoginResult is the flat body returned by POST /auth/login.
type LoginResult struct {
	User         *models.UserProfile
	AccessToken  string
	RefreshToken string
	ExpiresIn    int64
}

// Client talks to the portal backend. It reads the bearer token from the
// shared token store on every request and owns the global 401 reaction:
// when an authenticated request is rejected, the store is cleared through
// the same handle the session manager uses and the registered observer is
// notified. Requests sent without a token never trigger that path, so
// public pages cannot loop through forced logouts.
type Client struct {
	baseURL string
	http    *http.Client
	tokens  tokenstore.Store
	log     zerolog.Logger

	mu             sync.Mutex
	onUnauthorized func()
}

func New(cfg config.APIConfig, tokens tokenstore.Store, log zerolog.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		tokens:  tokens,
		log:     log,
	}
}

// SetUnauthorizedHandler registers the observer invoked after a forced
// token clear. The session manager uses it to drop its in-memory user.
func (c *Client) SetUnauthorizedHandler(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onUnauthorized = fn
}

// FetchCurrentUser issues GET /users/me and returns the normalized profile.
func (c *Client) FetchCurrentUser(ctx context.Context) (*models.UserProfile, error) {
	resp, body, authed, err := c.do(ctx, http.MethodGet, "/users/me", nil)
	if err != nil {
		return nil, err
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		c.handleUnauthorized(ctx, authed)
		return nil, fmt.Errorf("fetch current user: %w", ErrUnauthorized)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, &ServerError{Status: resp.StatusCode, Message: envelopeMessage(body)}
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, &ServerError{Status: resp.StatusCode, Message: "malformed response envelope"}
	}
	if env.Code != 0 {
		return nil, &ServerError{Status: resp.StatusCode, Message: env.Message}
	}
	return normalizeProfile(env.Data)
}

// Login issues POST /auth/login. A 400 or 401 answer maps to
// ErrInvalidCredentials and deliberately bypasses the global 401 handling:
// a rejected login attempt must not tear down an existing session.
func (c *Client) Login(ctx context.Context, username string, password string) (*LoginResult, error) {
	payload := map[string]string{"username": username, "password": password}
	resp, body, _, err := c.do(ctx, http.MethodPost, "/auth/login", payload)
	if err != nil {
		return nil, err
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusBadRequest:
		return nil, fmt.Errorf("login: %w", ErrInvalidCredentials)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, &ServerError{Status: resp.StatusCode, Message: envelopeMessage(body)}
	}

	var wire struct {
		User         json.RawMessage `json:"user"`
		AccessToken  string          `json:"access_token"`
		RefreshToken string          `json:"refresh_token"`
		ExpiresIn    int64           `json:"expires_in"`
	}
	if err := json.Unmarshal(body, &wire); err != nil {
		return nil, &ServerError{Status: resp.StatusCode, Message: "malformed login response"}
	}
	if wire.AccessToken == "" || len(wire.User) == 0 {
		return nil, &ServerError{Status: resp.StatusCode, Message: "incomplete login response"}
	}

	user, err := normalizeProfile(wire.User)
	if err != nil {
		return nil, err
	}
	return &LoginResult{
		User:         user,
		AccessToken:  wire.AccessToken,
		RefreshToken: wire.RefreshToken,
		ExpiresIn:    wire.ExpiresIn,
	}, nil
}

// Logout issues POST /auth/logout on a best-effort basis. Failures are
// logged and swallowed: local session teardown must succeed even when the
// backend is unreachable.
func (c *Client) Logout(ctx context.Context) {
	resp, _, _, err := c.do(ctx, http.MethodPost, "/auth/logout", nil)
	if err != nil {
		c.log.Warn().Err(err).Msg("remote logout failed")
		return
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.log.Warn().Int("status", resp.StatusCode).Msg("remote logout rejected")
	}
}

// RefreshAccessToken exchanges the stored refresh token for a new access
// token. The caller decides whether to persist it.
func (c *Client) RefreshAccessToken(ctx context.Context) (string, error) {
	refresh, err := c.tokens.Refresh(ctx)
	if err != nil {
		return "", fmt.Errorf("read refresh token: %w", err)
	}
	if refresh == "" {
		return "", fmt.Errorf("refresh: %w", ErrUnauthorized)
	}

	payload := map[string]string{"refresh_token": refresh}
	resp, body, authed, err := c.do(ctx, http.MethodPost, "/auth/refresh", payload)
	if err != nil {
		return "", err
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		c.handleUnauthorized(ctx, authed)
		return "", fmt.Errorf("refresh: %w", ErrUnauthorized)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return "", &ServerError{Status: resp.StatusCode, Message: envelopeMessage(body)}
	}

	var wire struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.Unmarshal(body, &wire); err != nil || wire.AccessToken == "" {
		return "", &ServerError{Status: resp.StatusCode, Message: "malformed refresh response"}
	}
	return wire.AccessToken, nil
}

// do performs one request. The returned bool reports whether a bearer token
// was attached, which gates the forced-logout reaction to 401 answers.
func (c *Client) do(ctx context.Context, method string, path string, payload any) (*http.Response, []byte, bool, error) {
	var reqBody io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, nil, false, fmt.Errorf("encode request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return nil, nil, false, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-Id", ids.Request())

	token, err := c.tokens.Access(ctx)
	if err != nil {
		c.log.Warn().Err(err).Msg("token store read failed, sending unauthenticated")
		token = ""
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, nil, token != "", &NetworkError{Op: method + " " + path, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, token != "", &NetworkError{Op: "read " + path, Err: err}
	}
	return resp, body, token != "", nil
}

// handleUnauthorized runs the forced-logout path: clear the shared store,
// then tell the observer. Only fires when the rejected request actually
// carried a token.
func (c *Client) handleUnauthorized(ctx context.Context, tokenAttached bool) {
	if !tokenAttached {
		return
	}
	if err := c.tokens.Clear(ctx); err != nil {
		c.log.Error().Err(err).Msg("clear token store after 401 failed")
	}

	c.mu.Lock()
	fn := c.onUnauthorized
	c.mu.Unlock()
	if fn != nil {
		fn()
	}
	c.log.Debug().Msg("session invalidated by 401")
}

func envelopeMessage(body []byte) string {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return ""
	}
	return env.Message
}
