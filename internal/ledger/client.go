// Package ledger is a client for the external credit/credential service,
// the system of record for balances, credentials, rate limits and spending.
package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/devportal/devportal/internal/model"
)

// ErrInvalidResponse is returned when the ledger answers with a body that is not JSON.
var ErrInvalidResponse = errors.New("ledger returned an invalid response body")

// StatusError is a non-2xx answer from the ledger service.
type StatusError struct {
	Op     string
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: ledger returned status %d", e.Op, e.Status)
}

// StatusCode extracts the downstream status from err, if it carries one.
func StatusCode(err error) (int, bool) {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Status, true
	}
	return 0, false
}

// IsNotFound reports whether the ledger answered 404.
func IsNotFound(err error) bool {
	status, ok := StatusCode(err)
	return ok && status == http.StatusNotFound
}

// Observer is notified after every ledger call.
type Observer func(op string, err error, duration time.Duration)

// Option configures a Client.
type Option func(*Client)

// WithObserver registers a hook for call latency and outcome.
func WithObserver(o Observer) Option {
	return func(c *Client) { c.observe = o }
}

// Client talks to the ledger with a static service bearer token.
// It never retries; every failure is returned to the caller.
type Client struct {
	http    *resty.Client
	observe Observer
}

// New creates a ledger client for baseURL authenticated with token.
func New(baseURL, token string, timeout time.Duration, opts ...Option) *Client {
	c := &Client{
		http: resty.New().
			SetBaseURL(strings.TrimRight(baseURL, "/")).
			SetTimeout(timeout).
			SetAuthToken(token).
			SetHeader("Accept", "application/json").
			SetRetryCount(0),
	}
	for _, opt := range opts {
		opt(c)
	}

	return c
}

// CreateCredential registers a new credential.
func (c *Client) CreateCredential(ctx context.Context, req model.LedgerCredentialCreate) (json.RawMessage, error) {
	return c.doJSON(ctx, "create credential", http.MethodPost, "/credential", nil, req)
}

// DeleteCredential removes a credential.
func (c *Client) DeleteCredential(ctx context.Context, credentialID string) error {
	_, err := c.do(ctx, "delete credential", http.MethodDelete, "/credential/{id}", map[string]string{"id": credentialID}, nil)
	return err
}

// GetCredential fetches a single credential, used for ownership checks.
func (c *Client) GetCredential(ctx context.Context, credentialID string) (*model.Credential, error) {
	body, err := c.do(ctx, "get credential", http.MethodGet, "/credential/{id}", map[string]string{"id": credentialID}, nil)
	if err != nil {
		return nil, err
	}

	var cred model.Credential
	if err := json.Unmarshal(body, &cred); err != nil {
		return nil, fmt.Errorf("get credential: %w: %v", ErrInvalidResponse, err)
	}
	return &cred, nil
}

// ListCredentials returns every credential of a user as the ledger sent it.
func (c *Client) ListCredentials(ctx context.Context, userID string) (json.RawMessage, error) {
	return c.doJSON(ctx, "list credentials", http.MethodGet, "/credential/user/{userId}", map[string]string{"userId": userID}, nil)
}

// GetRateLimits returns the limits and current spend of a credential.
func (c *Client) GetRateLimits(ctx context.Context, credentialID string) (json.RawMessage, error) {
	return c.doJSON(ctx, "get rate limits", http.MethodGet, "/credential/{id}/rate-limits", map[string]string{"id": credentialID}, nil)
}

// UpdateRateLimits replaces the limits of a credential. limits is sent as-is.
func (c *Client) UpdateRateLimits(ctx context.Context, credentialID string, limits any) (json.RawMessage, error) {
	return c.doJSON(ctx, "update rate limits", http.MethodPut, "/credential/{id}/rate-limits", map[string]string{"id": credentialID}, limits)
}

// GetSpending returns the spending events of a credential.
func (c *Client) GetSpending(ctx context.Context, credentialID string) (json.RawMessage, error) {
	return c.doJSON(ctx, "get spending", http.MethodGet, "/credential/{id}/spending", map[string]string{"id": credentialID}, nil)
}

// CreateUser creates a ledger account with a zero balance.
func (c *Client) CreateUser(ctx context.Context, userID string) (json.RawMessage, error) {
	return c.doJSON(ctx, "create user", http.MethodPost, "/users", nil, model.LedgerUserCreate{UserID: userID, Balance: 0})
}

// GetUser returns a ledger account and its balance.
func (c *Client) GetUser(ctx context.Context, userID string) (json.RawMessage, error) {
	return c.doJSON(ctx, "get user", http.MethodGet, "/users/{id}", map[string]string{"id": userID}, nil)
}

// TopUp adds amount to a user's balance.
func (c *Client) TopUp(ctx context.Context, userID string, amount float64) (json.RawMessage, error) {
	return c.doJSON(ctx, "top up", http.MethodPost, "/users/topup", nil, model.TopUpRequest{UserID: userID, Amount: &amount})
}

// Ping checks that the ledger is reachable. Any HTTP answer counts.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.http.R().SetContext(ctx).Get("/")
	if err != nil {
		return fmt.Errorf("ledger unreachable: %w", err)
	}
	return nil
}

// doJSON performs a request and checks that the answer is a JSON document.
func (c *Client) doJSON(ctx context.Context, op, method, path string, pathParams map[string]string, body any) (json.RawMessage, error) {
	data, err := c.do(ctx, op, method, path, pathParams, body)
	if err != nil {
		return nil, err
	}
	if !json.Valid(data) {
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidResponse)
	}
	return json.RawMessage(data), nil
}

func (c *Client) do(ctx context.Context, op, method, path string, pathParams map[string]string, body any) (data []byte, err error) {
	if c.observe != nil {
		start := time.Now()
		defer func() { c.observe(op, err, time.Since(start)) }()
	}

	req := c.http.R().SetContext(ctx)
	if pathParams != nil {
		req.SetPathParams(pathParams)
	}
	if body != nil {
		req.SetHeader("Content-Type", "application/json").SetBody(body)
	}

	resp, err := req.Execute(method, path)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if resp.IsError() {
		return nil, &StatusError{Op: op, Status: resp.StatusCode(), Body: resp.String()}
	}

	return resp.Body(), nil
}
