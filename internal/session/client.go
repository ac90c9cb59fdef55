package session

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/courierdesk/gateway/internal/token"
	"github.com/courierdesk/gateway/internal/user"
	apperrors "github.com/courierdesk/gateway/pkg/errors"
	"github.com/sethvargo/go-retry"
)

// Client talks to the gateway's auth endpoints. Error responses are
// returned as *apperrors.AppError so callers can match them with errors.Is.
type Client struct {
	baseURL    string
	httpClient *http.Client
	backoff    func() retry.Backoff
}

// ClientOption configures a Client
type ClientOption func(*Client)

// WithHTTPClient replaces the default http.Client
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = hc }
}

// WithRetries sets how often transport failures and 5xx answers are retried
func WithRetries(max uint64, base time.Duration) ClientOption {
	return func(c *Client) {
		c.backoff = func() retry.Backoff {
			return retry.WithMaxRetries(max, retry.NewExponential(base))
		}
	}
}

// NewClient creates a client for the gateway at baseURL
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
	WithRetries(2, 200*time.Millisecond)(c)
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
		Reason  string `json:"reason"`
	} `json:"error"`
}

// LoginResult is the body of a successful login
type LoginResult struct {
	Token *token.TokenPair `json:"token"`
	User  user.Profile     `json:"user"`
}

// Login authenticates with email and password
func (c *Client) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	var out LoginResult
	body := map[string]string{"email": email, "password": password}
	// Not retried: every attempt counts against the rate limit
	if err := c.do(ctx, http.MethodPost, "/auth/login", "", body, &out, false); err != nil {
		return nil, err
	}
	return &out, nil
}

// Refresh exchanges a refresh token for a new pair
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*token.TokenPair, error) {
	var out struct {
		Token *token.TokenPair `json:"token"`
	}
	// Not retried: a lost response after a successful rotation cannot be replayed
	if err := c.do(ctx, http.MethodPost, "/auth/refresh", "", map[string]string{"refresh_token": refreshToken}, &out, false); err != nil {
		return nil, err
	}
	return out.Token, nil
}

// Logout revokes the refresh token of the user owning accessToken
func (c *Client) Logout(ctx context.Context, accessToken string) error {
	return c.do(ctx, http.MethodPost, "/auth/logout", accessToken, nil, nil, true)
}

// Me returns the profile of the user owning accessToken
func (c *Client) Me(ctx context.Context, accessToken string) (*user.Profile, error) {
	var out struct {
		User user.Profile `json:"user"`
	}
	if err := c.do(ctx, http.MethodGet, "/auth/me", accessToken, nil, &out, true); err != nil {
		return nil, err
	}
	return &out.User, nil
}

func (c *Client) do(ctx context.Context, method, path, bearer string, in, out any, retryable bool) error {
	var payload []byte
	if in != nil {
		var err error
		if payload, err = json.Marshal(in); err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
	}

	attempt := func(ctx context.Context) error {
		err := c.roundTrip(ctx, method, path, bearer, payload, out)
		var transient *transientError
		if retryable && errors.As(err, &transient) {
			return retry.RetryableError(err)
		}
		return err
	}

	return retry.Do(ctx, c.backoff(), attempt)
}

// transientError marks failures worth another attempt
type transientError struct {
	err error
}

func (e *transientError) Error() string { return e.err.Error() }
func (e *transientError) Unwrap() error { return e.err }

func (c *Client) roundTrip(ctx context.Context, method, path, bearer string, payload []byte, out any) error {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &transientError{err: fmt.Errorf("request %s failed: %w", path, err)}
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&env); err != nil {
		err = fmt.Errorf("unexpected response from %s (status %d): %w", path, resp.StatusCode, err)
		if resp.StatusCode >= http.StatusInternalServerError {
			return &transientError{err: err}
		}
		return err
	}

	if !env.Success {
		if env.Error == nil {
			return fmt.Errorf("request %s failed with status %d", path, resp.StatusCode)
		}
		appErr := apperrors.NewAppError(env.Error.Code, env.Error.Message, resp.StatusCode).WithReason(env.Error.Reason)
		if resp.StatusCode >= http.StatusInternalServerError {
			return &transientError{err: appErr}
		}
		return appErr
	}

	if out == nil || len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", path, err)
	}
	return nil
}
