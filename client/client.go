// Package client is the Go SDK for the centsible auth API: a thin HTTP
// client, redundant local credential persistence, and a refresh
// orchestrator that keeps the stored access token alive.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// ErrUnauthenticated is returned when the server definitively rejects the
// presented credentials (HTTP 401). Callers must treat it differently from
// transport errors: a 401 means the credential is dead, a transport error
// means nothing is known.
var ErrUnauthenticated = errors.New("unauthenticated")

// Config holds configuration for the auth API client.
type Config struct {
	BaseURL    string        // e.g. "https://api.centsible.app"
	Timeout    time.Duration // per-request timeout
	HTTPClient *http.Client  // optional, overrides Timeout when set
}

// Client talks to the auth endpoints of the centsible server.
type Client struct {
	baseURL string
	http    *http.Client
}

// UserSummary identifies the account owning a credential pair.
type UserSummary struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// AuthResponse is the body of a successful signup/login/refresh call.
type AuthResponse struct {
	User             UserSummary `json:"user"`
	AccessToken      string      `json:"accessToken"`
	RefreshToken     string      `json:"refreshToken"`
	SessionExpiresAt time.Time   `json:"sessionExpiresAt"`
}

// VerifyResponse is the body of a verify call.
type VerifyResponse struct {
	Valid  bool   `json:"valid"`
	UserID string `json:"userId,omitempty"`
}

// KeepaliveResponse is the body of a keepalive call.
type KeepaliveResponse struct {
	Extended bool `json:"extended"`
}

type apiErrorBody struct {
	Code       string `json:"error"`
	Message    string `json:"message"`
	RetryAfter int    `json:"retry_after,omitempty"`
}

// NewClient creates an API client for the given base URL.
func NewClient(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	return &Client{baseURL: cfg.BaseURL, http: httpClient}
}

// Signup registers a new account and returns the issued credential pair.
func (c *Client) Signup(ctx context.Context, email, password string) (*AuthResponse, error) {
	body := map[string]string{"email": email, "password": password}
	var out AuthResponse
	if err := c.do(ctx, http.MethodPost, "/auth/signup", "", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Login authenticates and returns the issued credential pair.
func (c *Client) Login(ctx context.Context, email, password string) (*AuthResponse, error) {
	body := map[string]string{"email": email, "password": password}
	var out AuthResponse
	if err := c.do(ctx, http.MethodPost, "/auth/login", "", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Refresh exchanges the refresh token for a fresh pair. A 401 means the
// refresh token is revoked, expired or unknown and surfaces as
// ErrUnauthenticated.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*AuthResponse, error) {
	body := map[string]string{"refreshToken": refreshToken}
	var out AuthResponse
	if err := c.do(ctx, http.MethodPost, "/auth/refresh", "", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Logout revokes the session owning refreshToken. The server answers 204
// regardless of whether the session existed.
func (c *Client) Logout(ctx context.Context, accessToken, refreshToken string) error {
	body := map[string]string{"refreshToken": refreshToken}
	return c.do(ctx, http.MethodPost, "/auth/logout", accessToken, body, nil)
}

// Verify checks an access token without touching any session state.
func (c *Client) Verify(ctx context.Context, accessToken string) (*VerifyResponse, error) {
	var out VerifyResponse
	if err := c.do(ctx, http.MethodGet, "/auth/verify", accessToken, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Keepalive asks the server to extend the session backing refreshToken.
func (c *Client) Keepalive(ctx context.Context, accessToken, refreshToken string) (*KeepaliveResponse, error) {
	body := map[string]string{"refreshToken": refreshToken}
	var out KeepaliveResponse
	if err := c.do(ctx, http.MethodPost, "/auth/keepalive", accessToken, body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// do performs one JSON request/response round trip. Non-2xx responses become
// errors: 401 maps to ErrUnauthenticated, everything else carries the
// server's error body.
func (c *Client) do(ctx context.Context, method, path, bearer string, reqBody, respBody any) error {
	var reader io.Reader
	if reqBody != nil {
		encoded, err := json.Marshal(reqBody)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return ErrUnauthenticated
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var apiErr apiErrorBody
		if err := json.NewDecoder(resp.Body).Decode(&apiErr); err == nil && apiErr.Message != "" {
			return fmt.Errorf("%s (%d %s)", apiErr.Message, resp.StatusCode, apiErr.Code)
		}
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	if respBody == nil {
		return nil
	}
	if resp.StatusCode == http.StatusNoContent {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(respBody)
}
