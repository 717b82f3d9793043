// Package feedback submits end-of-session feedback to an external sink.
// Submission is best-effort telemetry: failures are logged and swallowed,
// and the user always sees success.
package feedback

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// Submission is the sink payload.
type Submission struct {
	UserAgent string `json:"userAgent"`
	Platform  string `json:"platform"`
	Language  string `json:"language"`
	Timestamp string `json:"timestamp"`
	Feedback  string `json:"feedback"`
}

// Client posts submissions to the sink. An empty endpoint disables the
// client; Submit then logs and returns without an error.
type Client struct {
	endpoint string
	hc       *http.Client
	logger   *slog.Logger
}

// New creates a feedback client. timeout zero disables the request deadline.
func New(endpoint string, timeout time.Duration, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		endpoint: endpoint,
		hc:       &http.Client{Timeout: timeout},
		logger:   logger,
	}
}

// Enabled reports whether a sink endpoint is configured.
func (c *Client) Enabled() bool {
	return c != nil && c.endpoint != ""
}

// Submit sends one submission. The returned error exists for logging; the
// caller treats every outcome as submitted.
func (c *Client) Submit(ctx context.Context, s Submission) error {
	if !c.Enabled() {
		c.logger.Debug("feedback sink not configured, dropping submission")
		return nil
	}
	if s.Timestamp == "" {
		s.Timestamp = time.Now().UTC().Format(time.RFC3339)
	}

	body, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode feedback: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build feedback request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.hc.Do(req)
	if err != nil {
		return fmt.Errorf("feedback request failed: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("feedback sink returned status %d", resp.StatusCode)
	}
	return nil
}
