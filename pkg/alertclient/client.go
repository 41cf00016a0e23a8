package alertclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"golang.org/x/time/rate"
)

// ErrThrottled is returned when the local rate limit dropped the alert.
var ErrThrottled = errors.New("alert dropped: rate limit exceeded")

// Payload is the wire shape posted to the alert sink.
type Payload struct {
	Type     string            `json:"type"`
	Message  string            `json:"message"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

type Client struct {
	cfg     Config
	http    *http.Client
	limiter *rate.Limiter
	breaker CircuitBreaker
}

func NewFromEnv() *Client {
	return New(LoadFromEnv())
}

func New(cfg Config) *Client {
	return &Client{
		cfg:     cfg,
		http:    &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(rate.Limit(cfg.RateLimit)/60, cfg.RateBurst),
		breaker: NewCircuitBreaker(cfg),
	}
}

// Configured reports whether an alert endpoint is set.
func (c *Client) Configured() bool {
	return c.cfg.BaseURL != ""
}

// Send posts one alert. Alerts beyond the local rate limit are dropped
// rather than queued; the caller treats all errors as non-fatal.
func (c *Client) Send(ctx context.Context, payload Payload) error {
	if !c.limiter.Allow() {
		return ErrThrottled
	}

	return c.breaker.Execute(func() error {
		return c.post(ctx, payload)
	})
}

func (c *Client) post(ctx context.Context, payload Payload) error {
	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/alerts", bytes.NewBuffer(b))
	if err != nil {
		return err
	}

	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("alert sink error: %s (failed to read body: %v)", resp.Status, err)
		}
		return fmt.Errorf("alert sink error: %s: %s", resp.Status, string(body))
	}

	return nil
}
