// Package gateway is the HTTP client for the remote auth service. It
// owns the request/response contract, bearer header attachment, and the
// global 401 behavior; callers only ever see normalized errors.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	errs "codeberg.org/algorave/passage/internal/errors"
	"codeberg.org/algorave/passage/internal/logger"
	"codeberg.org/algorave/passage/internal/model"
	"codeberg.org/algorave/passage/internal/telemetry"
)

const requestTimeout = 30 * time.Second

// manages HTTP requests to the auth service REST API
type Client struct {
	endpoint   string
	httpClient *http.Client
}

// creates an auth gateway client. tokenSource supplies the current
// bearer token (empty when unauthenticated); onUnauthorized fires once
// per 401 response from any endpoint.
func New(endpoint string, tokenSource func() string, onUnauthorized func()) *Client {
	return &Client{
		endpoint: endpoint,
		httpClient: &http.Client{
			Timeout: requestTimeout,
			Transport: &authTransport{
				base:           http.DefaultTransport,
				tokenSource:    tokenSource,
				onUnauthorized: onUnauthorized,
			},
		},
	}
}

// attaches the bearer header on the way out and watches for 401 on the
// way back, so session teardown is cross-cutting rather than per-call
type authTransport struct {
	base           http.RoundTripper
	tokenSource    func() string
	onUnauthorized func()
}

func (t *authTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.tokenSource != nil {
		if token := t.tokenSource(); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := t.base.RoundTrip(req)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode == http.StatusUnauthorized && t.onUnauthorized != nil {
		telemetry.ForcedTeardowns.Inc()
		logger.Warn("unauthorized response, forcing session teardown", "url", req.URL.Path)
		t.onUnauthorized()
	}

	return resp, nil
}

// registers a new account
func (c *Client) Signup(ctx context.Context, name, email, password string) (*AuthData, error) {
	payload := signupRequest{Name: name, Email: email, Password: password}

	var data AuthData
	if _, err := c.do(ctx, "signup", http.MethodPost, "/api/v1/auth/signup", payload, &data); err != nil {
		return nil, err
	}

	return &data, nil
}

// exchanges credentials for a session
func (c *Client) Login(ctx context.Context, email, password string) (*AuthData, error) {
	payload := loginRequest{Email: email, Password: password}

	var data AuthData
	if _, err := c.do(ctx, "login", http.MethodPost, "/api/v1/auth/login", payload, &data); err != nil {
		return nil, err
	}

	return &data, nil
}

// requests a one-time reset code for the given address
func (c *Client) ForgotPassword(ctx context.Context, email string) (string, error) {
	payload := forgotPasswordRequest{Email: email}

	return c.do(ctx, "forgot_password", http.MethodPost, "/api/v1/auth/forgot-password", payload, nil)
}

// redeems a one-time code for a new password. The returned AuthData is
// nil unless the server chose to re-authenticate the user.
func (c *Client) ResetPassword(ctx context.Context, email, otp, newPassword string) (string, *AuthData, error) {
	payload := resetPasswordRequest{Email: email, OTP: otp, NewPassword: newPassword}

	var data AuthData
	message, err := c.do(ctx, "reset_password", http.MethodPost, "/api/v1/auth/reset-password", payload, &data)
	if err != nil {
		return "", nil, err
	}

	if data.Token == "" || data.User == nil {
		return message, nil, nil
	}

	return message, &data, nil
}

// fetches the user directory
func (c *Client) ListUsers(ctx context.Context) ([]model.User, error) {
	var users []model.User
	if _, err := c.do(ctx, "list_users", http.MethodGet, "/api/v1/auth/users", nil, &users); err != nil {
		return nil, err
	}

	return users, nil
}

// reports whether the OAuth provider is configured and where to send
// the browser
func (c *Client) OAuthStatus(ctx context.Context) (*OAuthStatus, error) {
	var status OAuthStatus
	if _, err := c.do(ctx, "oauth_status", http.MethodGet, "/api/v1/auth/oauth/status", nil, &status); err != nil {
		return nil, err
	}

	return &status, nil
}

// sends one request and decodes the response envelope. Returns the
// envelope message; data, when present and wanted, is decoded into out.
func (c *Client) do(ctx context.Context, operation, method, path string, payload, out any) (string, error) {
	var body io.Reader

	if payload != nil {
		payloadBytes, err := json.Marshal(payload)
		if err != nil {
			return "", fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(payloadBytes)
	}

	url := c.endpoint + path

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		telemetry.GatewayErrors.WithLabelValues(operation).Inc()
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck

	respBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		telemetry.GatewayErrors.WithLabelValues(operation).Inc()
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode == http.StatusUnauthorized {
		telemetry.GatewayErrors.WithLabelValues(operation).Inc()
		return "", errs.ErrUnauthorized
	}

	var envelope apiResponse
	if err := json.Unmarshal(respBytes, &envelope); err != nil {
		telemetry.GatewayErrors.WithLabelValues(operation).Inc()
		return "", fmt.Errorf("failed to parse response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 || !envelope.Success {
		telemetry.GatewayErrors.WithLabelValues(operation).Inc()
		return "", &errs.GatewayError{StatusCode: resp.StatusCode, Message: envelope.Message}
	}

	if out != nil && len(envelope.Data) > 0 {
		if err := json.Unmarshal(envelope.Data, out); err != nil {
			telemetry.GatewayErrors.WithLabelValues(operation).Inc()
			return "", fmt.Errorf("failed to parse response data: %w", err)
		}
	}

	return envelope.Message, nil
}
