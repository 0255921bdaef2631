package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/devportal/devportal/internal/model"
)

// UpstreamError is a non-2xx answer from the inference API.
type UpstreamError struct {
	Status int
	Body   []byte
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("inference API returned status %d", e.Status)
}

// Details returns the upstream body as JSON when it parses, else as text.
func (e *UpstreamError) Details() any {
	var v any
	if err := json.Unmarshal(e.Body, &v); err == nil {
		return v
	}
	return string(e.Body)
}

// Message returns the upstream "error" field when it is a string.
func (e *UpstreamError) Message() string {
	var body struct {
		Error any `json:"error"`
	}
	if err := json.Unmarshal(e.Body, &body); err == nil {
		if s, ok := body.Error.(string); ok && s != "" {
			return s
		}
	}
	return "Request failed"
}

// InferenceConfig configures the inference API proxies.
type InferenceConfig struct {
	APIURL   string
	UsageURL string
	Timeout  time.Duration
}

// InferenceService proxies dashboard test requests and usage statistics to
// the inference API using the caller's own API key.
type InferenceService struct {
	credits *CreditService
	api     *resty.Client
	usage   *resty.Client
	logger  *slog.Logger
}

// NewInferenceService creates a new InferenceService.
func NewInferenceService(credits *CreditService, logger *slog.Logger, cfg InferenceConfig) *InferenceService {
	if logger == nil {
		logger = slog.Default()
	}
	newClient := func(base string) *resty.Client {
		return resty.New().
			SetBaseURL(strings.TrimRight(base, "/")).
			SetTimeout(cfg.Timeout).
			SetHeader("Accept", "application/json")
	}
	return &InferenceService{
		credits: credits,
		api:     newClient(cfg.APIURL),
		usage:   newClient(cfg.UsageURL),
		logger:  logger,
	}
}

// Usage returns usage statistics for the user's first API key.
func (s *InferenceService) Usage(ctx context.Context, userID string) (json.RawMessage, error) {
	keys, err := s.credits.UserAPIKeys(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(keys) == 0 {
		return nil, ErrNoAPIKey
	}

	resp, err := s.usage.R().
		SetContext(ctx).
		SetAuthToken(keys[0].CredentialKey).
		Get("/v1/usage")
	if err != nil {
		return nil, fmt.Errorf("fetch usage: %w", err)
	}

	return s.upstreamBody("usage", resp)
}

// TestRequest sends a single response request with the caller's API key.
func (s *InferenceService) TestRequest(ctx context.Context, req model.TestRequest) (json.RawMessage, error) {
	if req.APIKey == "" {
		return nil, ErrAPIKeyRequired
	}

	resp, err := s.api.R().
		SetContext(ctx).
		SetAuthToken(req.APIKey).
		SetHeader("Content-Type", "application/json").
		SetBody(req.WithDefaults()).
		Post("/v1/responses")
	if err != nil {
		return nil, fmt.Errorf("send test request: %w", err)
	}

	return s.upstreamBody("test request", resp)
}

func (s *InferenceService) upstreamBody(op string, resp *resty.Response) (json.RawMessage, error) {
	if resp.IsError() {
		s.logger.Warn("inference API error",
			slog.String("op", op),
			slog.Int("status", resp.StatusCode()),
			slog.String("body", resp.String()),
		)
		return nil, &UpstreamError{Status: resp.StatusCode(), Body: resp.Body()}
	}

	body := resp.Body()
	if !json.Valid(body) {
		return nil, fmt.Errorf("inference API returned a non-JSON body (status %d)", resp.StatusCode())
	}
	return json.RawMessage(body), nil
}
