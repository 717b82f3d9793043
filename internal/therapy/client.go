package therapy

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"
)

const maxResponseBytes = 1 << 20

// ErrUnconfigured is returned by Exchange when no service endpoint is set.
var ErrUnconfigured = errors.New("therapy service not configured")

// ClientConfig holds configuration for the HTTP client.
type ClientConfig struct {
	Endpoint string
	// Timeout bounds a single exchange. Zero means no deadline: a failure is
	// detected via transport error, not via a clock.
	Timeout time.Duration
}

// HTTPClient talks JSON to the conversational-response service. One request
// per turn, no retries; degradation on failure is the caller's policy.
type HTTPClient struct {
	endpoint string
	hc       *http.Client
	logger   *slog.Logger
}

// NewHTTPClient creates a client for the given endpoint.
func NewHTTPClient(cfg ClientConfig, logger *slog.Logger) (*HTTPClient, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("therapy endpoint cannot be empty")
	}
	u, err := url.Parse(cfg.Endpoint)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid therapy endpoint %q", cfg.Endpoint)
	}

	return &HTTPClient{
		endpoint: cfg.Endpoint,
		hc:       &http.Client{Timeout: cfg.Timeout},
		logger:   logger,
	}, nil
}

// Exchange sends the transcript and decodes the service's reply. The body is
// decoded regardless of HTTP status: the service serves its own fallback
// question with a non-2xx status and a valid body, and that still counts as
// a successful exchange. Only transport and decode failures are errors.
func (c *HTTPClient) Exchange(ctx context.Context, req Request) (*Response, error) {
	if req.Messages == nil {
		req.Messages = []Turn{}
	}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode therapy request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build therapy request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	start := time.Now()
	httpResp, err := c.hc.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("therapy request failed: %w", err)
	}
	defer func() {
		if closeErr := httpResp.Body.Close(); closeErr != nil {
			c.logger.Debug("failed to close therapy response body", "error", closeErr)
		}
	}()

	var resp Response
	if err := json.NewDecoder(io.LimitReader(httpResp.Body, maxResponseBytes)).Decode(&resp); err != nil {
		return nil, fmt.Errorf("decode therapy response: %w", err)
	}

	c.logger.Debug("therapy exchange complete",
		"status", httpResp.StatusCode,
		"turns", len(req.Messages),
		"session_state", req.SessionState,
		"should_end", resp.ShouldEnd,
		"duration", time.Since(start),
	)
	return &resp, nil
}

// Unconfigured is an exchange backend used when no service endpoint is set.
// Every call fails, which lands the conversation on its local fallback
// prompts and keeps the session usable offline.
type Unconfigured struct{}

// Exchange always returns ErrUnconfigured.
func (Unconfigured) Exchange(context.Context, Request) (*Response, error) {
	return nil, ErrUnconfigured
}
