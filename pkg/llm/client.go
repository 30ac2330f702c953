// Package llm calls the recommendation model and meters what it costs.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/pario-ai/stylist/pkg/config"
	"github.com/pario-ai/stylist/pkg/models"
)

// Request is one chat completion. Nil Temperature and MaxTokens use the
// client defaults.
type Request struct {
	Messages    []models.ChatMessage
	Temperature *float64
	MaxTokens   *int
	// JSON asks the provider for a JSON object response.
	JSON bool
	// Items is the wardrobe embedded in the prompt. Offline clients answer from it.
	Items []models.ClothingItemRef
}

// Response is a successful completion with its metering.
type Response struct {
	Content string
	Model   string
	Usage   models.Usage
	// CostUSD is the cost of the attempt that succeeded.
	CostUSD float64
	// BilledCostUSD sums every billable attempt, including failed ones.
	BilledCostUSD float64
	Attempts      int
}

// Client performs chat completions.
type Client interface {
	Complete(ctx context.Context, req Request) (*Response, error)
	// Model is the configured model name.
	Model() string
}

// HTTPClient talks to an OpenAI-compatible /v1/chat/completions endpoint.
//
// Timeouts, network errors and 5xx responses are retried with exponential
// backoff. 4xx, 429 and undecodable bodies are not. Every attempt that got
// an HTTP response is billable: priced from reported usage, or zero.
type HTTPClient struct {
	cfg     config.LLMConfig
	pricing Pricing
	http    *http.Client
	logger  *slog.Logger
}

// Option configures an HTTPClient.
type Option func(*HTTPClient)

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *HTTPClient) { c.http = hc }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *HTTPClient) { c.logger = l }
}

// NewHTTPClient creates a client from the llm config section.
func NewHTTPClient(cfg config.LLMConfig, opts ...Option) *HTTPClient {
	c := &HTTPClient{
		cfg:     cfg,
		pricing: NewPricing(cfg.Pricing),
		http:    &http.Client{},
		logger:  slog.Default(),
	}
	for _, o := range opts {
		o(c)
	}
	c.logger = c.logger.With("component", "llm", "model", cfg.Model)
	return c
}

// Model returns the configured model name.
func (c *HTTPClient) Model() string { return c.cfg.Model }

// Pricing returns the client's price table.
func (c *HTTPClient) Pricing() Pricing { return c.pricing }

// Complete sends the request, retrying transient failures.
func (c *HTTPClient) Complete(ctx context.Context, req Request) (*Response, error) {
	body, err := json.Marshal(c.buildRequest(req))
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	maxAttempts := c.cfg.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = c.cfg.BackoffBase
	eb.MaxInterval = c.cfg.BackoffMax
	eb.Multiplier = 2
	eb.RandomizationFactor = 0
	eb.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(eb, uint64(maxAttempts-1)), ctx)

	var (
		attempts int
		billed   float64
		resp     *Response
		last     *Error
	)
	op := func() error {
		attempts++
		r, cost, aerr := c.attempt(ctx, body)
		billed += cost
		if aerr == nil {
			resp = r
			return nil
		}
		last = aerr
		if ctx.Err() != nil || !aerr.retryable() {
			return backoff.Permanent(aerr)
		}
		return aerr
	}
	notify := func(err error, wait time.Duration) {
		c.logger.Warn("model call failed, retrying", "attempt", attempts, "wait", wait, "error", err)
	}

	if err := backoff.RetryNotify(op, policy, notify); err != nil {
		switch {
		case ctx.Err() != nil:
			cause := ctx.Err()
			if last != nil {
				cause = fmt.Errorf("%w after %v", cause, last.Err)
			}
			last = &Error{Kind: KindTimeout, Err: cause}
		case last == nil:
			last = &Error{Kind: KindTimeout, Err: err}
		}
		last.Attempts = attempts
		last.BilledCostUSD = billed
		return nil, last
	}

	resp.Attempts = attempts
	resp.BilledCostUSD = billed
	return resp, nil
}

func (c *HTTPClient) buildRequest(req Request) models.ChatCompletionRequest {
	out := models.ChatCompletionRequest{
		Model:       c.cfg.Model,
		Messages:    req.Messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}
	if out.Temperature == nil {
		t := c.cfg.Temperature
		out.Temperature = &t
	}
	if out.MaxTokens == nil && c.cfg.MaxTokens > 0 {
		n := c.cfg.MaxTokens
		out.MaxTokens = &n
	}
	if req.JSON {
		out.ResponseFormat = &models.ResponseFormat{Type: "json_object"}
	}
	return out
}

// attempt performs one HTTP round trip. The returned cost is what the
// provider billed for this attempt.
func (c *HTTPClient) attempt(ctx context.Context, body []byte) (*Response, float64, *Error) {
	actx := ctx
	if c.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		actx, cancel = context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()
	}

	endpoint := strings.TrimRight(c.cfg.URL, "/") + "/v1/chat/completions"
	hreq, err := http.NewRequestWithContext(actx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, 0, &Error{Kind: KindProvider, Err: fmt.Errorf("create request: %w", err)}
	}
	hreq.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		hreq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	hresp, err := c.http.Do(hreq)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return nil, 0, &Error{Kind: KindTimeout, Err: err}
		}
		return nil, 0, &Error{Kind: KindProvider, Err: err}
	}
	defer hresp.Body.Close()

	raw, err := io.ReadAll(hresp.Body)
	if err != nil {
		if actx.Err() != nil {
			return nil, 0, &Error{Kind: KindTimeout, StatusCode: hresp.StatusCode, Err: err}
		}
		return nil, 0, &Error{Kind: KindProvider, StatusCode: hresp.StatusCode, Err: fmt.Errorf("read response: %w", err)}
	}

	var parsed models.ChatCompletionResponse
	decodeErr := json.Unmarshal(raw, &parsed)
	model := parsed.Model
	if model == "" {
		model = c.cfg.Model
	}
	var cost float64
	var usage models.Usage
	if decodeErr == nil && parsed.Usage != nil {
		usage = *parsed.Usage
		cost = c.pricing.Cost(model, usage)
	}

	switch {
	case hresp.StatusCode == http.StatusTooManyRequests:
		return nil, cost, &Error{Kind: KindRateLimited, StatusCode: hresp.StatusCode, Err: errors.New(snippet(raw))}
	case hresp.StatusCode >= 400:
		return nil, cost, &Error{Kind: KindProvider, StatusCode: hresp.StatusCode, Err: errors.New(snippet(raw))}
	case decodeErr != nil:
		return nil, cost, &Error{Kind: KindMalformed, StatusCode: hresp.StatusCode, Err: fmt.Errorf("decode response: %w", decodeErr)}
	case len(parsed.Choices) == 0 || strings.TrimSpace(parsed.Choices[0].Message.Content) == "":
		return nil, cost, &Error{Kind: KindMalformed, StatusCode: hresp.StatusCode, Err: errors.New("response has no content")}
	}

	c.logger.Debug("model call completed",
		"prompt_tokens", usage.PromptTokens,
		"completion_tokens", usage.CompletionTokens,
		"cost_usd", cost,
	)
	return &Response{
		Content: parsed.Choices[0].Message.Content,
		Model:   model,
		Usage:   usage,
		CostUSD: cost,
	}, cost, nil
}

func snippet(b []byte) string {
	const max = 200
	s := strings.TrimSpace(string(b))
	if len(s) > max {
		s = s[:max] + "..."
	}
	if s == "" {
		s = "empty body"
	}
	return s
}
