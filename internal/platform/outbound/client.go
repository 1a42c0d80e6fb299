// Package outbound delivers the gateway's asynchronous protocol calls
// (discovery, consent notifications, data fetch and data push) to bridge
// callback URLs. Every call carries the correlation id the bridge must echo
// back on its webhook response.
package outbound

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Message is one asynchronous protocol call to a bridge.
type Message struct {
	Kind          string      `json:"kind"`
	CorrelationID string      `json:"correlationId"`
	Timestamp     time.Time   `json:"timestamp"`
	Body          interface{} `json:"body"`
}

// TokenSource supplies the bearer token attached to outbound calls.
type TokenSource func(ctx context.Context) (string, error)

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.httpClient = c }
}

// WithMaxAttempts sets the attempt budget used by PostWithRetry.
func WithMaxAttempts(n int) Option {
	return func(cl *Client) { cl.maxAttempts = n }
}

// WithRetryDelays overrides the backoff schedule between attempts.
func WithRetryDelays(d []time.Duration) Option {
	return func(cl *Client) { cl.retryDelays = d }
}

// WithTokenSource sets the bearer token source for outbound calls.
func WithTokenSource(ts TokenSource) Option {
	return func(cl *Client) { cl.tokens = ts }
}

// Client posts protocol messages to bridge callback URLs.
type Client struct {
	httpClient  *http.Client
	maxAttempts int
	retryDelays []time.Duration
	cmID        string
	tokens      TokenSource
	logger      zerolog.Logger
}

func NewClient(cmID string, logger zerolog.Logger, opts ...Option) *Client {
	c := &Client{
		httpClient:  &http.Client{Timeout: 10 * time.Second},
		maxAttempts: 3,
		retryDelays: []time.Duration{1 * time.Second, 5 * time.Second, 15 * time.Second},
		cmID:        cmID,
		logger:      logger,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Post delivers a single message, failing on transport errors and non-2xx
// responses. Callers must not hold entity locks across this call.
func (c *Client) Post(ctx context.Context, url string, msg Message) error {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal outbound message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build outbound request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-Id", uuid.New().String())
	req.Header.Set("X-Timestamp", msg.Timestamp.Format(time.RFC3339))
	req.Header.Set("X-CM-ID", c.cmID)
	if c.tokens != nil {
		tok, err := c.tokens(ctx)
		if err != nil {
			return fmt.Errorf("obtain outbound token: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("deliver %s to %s: %w", msg.Kind, url, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 1024))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("deliver %s to %s: non-2xx response %d", msg.Kind, url, resp.StatusCode)
	}
	return nil
}

// PostWithRetry delivers with a bounded attempt budget and backoff. Used only
// at forwarding steps; exhausting the budget returns the last error so the
// caller can mark its entity FAILED.
func (c *Client) PostWithRetry(ctx context.Context, url string, msg Message) error {
	var lastErr error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		lastErr = c.Post(ctx, url, msg)
		if lastErr == nil {
			return nil
		}
		c.logger.Warn().
			Err(lastErr).
			Str("kind", msg.Kind).
			Str("correlation_id", msg.CorrelationID).
			Int("attempt", attempt).
			Msg("outbound delivery failed")

		if attempt == c.maxAttempts {
			break
		}
		delay := c.retryDelays[len(c.retryDelays)-1]
		if attempt-1 < len(c.retryDelays) {
			delay = c.retryDelays[attempt-1]
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return fmt.Errorf("delivery exhausted after %d attempts: %w", c.maxAttempts, lastErr)
}
