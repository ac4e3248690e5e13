package task

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/louistrue/openBIM-service/internal/observability"
)

// DispatcherConfig tunes callback delivery.
type DispatcherConfig struct {
	// MaxAttempts is the per-event delivery attempt ceiling.
	MaxAttempts int
	// BaseDelay seeds the exponential backoff between attempts.
	BaseDelay time.Duration
	// MaxDelay caps the backoff.
	MaxDelay time.Duration
	// AttemptTimeout bounds each individual POST, distinct from any
	// overall task deadline.
	AttemptTimeout time.Duration
}

// DefaultDispatcherConfig returns the delivery policy used when the
// config file does not override it.
func DefaultDispatcherConfig() DispatcherConfig {
	return DispatcherConfig{
		MaxAttempts:    4,
		BaseDelay:      500 * time.Millisecond,
		MaxDelay:       10 * time.Second,
		AttemptTimeout: 10 * time.Second,
	}
}

// Dispatcher POSTs task events to caller-supplied webhooks with bearer
// token auth, retrying transient failures with bounded exponential
// backoff. Delivery is at-least-once: a caller may receive a duplicate
// terminal event when a retry succeeds after a late timeout.
type Dispatcher struct {
	logger *observability.Logger
	client *http.Client
	cfg    DispatcherConfig
}

// NewDispatcher creates a dispatcher with a shared HTTP client.
func NewDispatcher(logger *observability.Logger, cfg DispatcherConfig) *Dispatcher {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = 500 * time.Millisecond
	}
	if cfg.MaxDelay < cfg.BaseDelay {
		cfg.MaxDelay = cfg.BaseDelay
	}
	return &Dispatcher{
		logger: logger,
		client: &http.Client{Timeout: cfg.AttemptTimeout},
		cfg:    cfg,
	}
}

// Deliver POSTs one event payload, retrying network errors and non-2xx
// responses until the attempt ceiling. The returned error reflects the
// last attempt.
func (d *Dispatcher) Deliver(ctx context.Context, cb CallbackConfig, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal callback payload: %w", err)
	}

	delay := d.cfg.BaseDelay
	var lastErr error
	for attempt := 1; attempt <= d.cfg.MaxAttempts; attempt++ {
		lastErr = d.post(ctx, cb, body)
		if lastErr == nil {
			return nil
		}

		d.logger.Warn().
			Err(lastErr).
			Str("url", cb.URL).
			Int("attempt", attempt).
			Msg("Callback delivery failed")

		if attempt == d.cfg.MaxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
		if delay > d.cfg.MaxDelay {
			delay = d.cfg.MaxDelay
		}
	}
	return fmt.Errorf("callback delivery exhausted after %d attempts: %w", d.cfg.MaxAttempts, lastErr)
}

// post sends a single POST with the bearer token.
func (d *Dispatcher) post(ctx context.Context, cb CallbackConfig, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cb.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if cb.Token != "" {
		req.Header.Set("Authorization", "Bearer "+cb.Token)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("callback request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("callback returned %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}
