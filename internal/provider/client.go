// Package provider issues outbound lookups against the configured
// vendor endpoints with timeout, retry, and failover.
//
// The externally-facing aggregators this talks to are frequently
// rate-limited or geo-blocked, so the identity category rotates through
// a shuffled endpoint/credential plan; a blind single call has a low
// success probability. Single-vendor categories make exactly one
// attempt and surface failures as terminal for that request.
package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"time"

	"github.com/lookupd/lookupd/internal/metrics"
	"github.com/lookupd/lookupd/internal/model"
)

// Sentinel errors for lookup operations.
var (
	// ErrNoEndpoints means the category has no configured endpoint.
	ErrNoEndpoints = errors.New("no endpoints configured for category")
	// ErrExhausted means every candidate endpoint failed or was blocked.
	ErrExhausted = errors.New("all lookup endpoints exhausted")
)

// Response is one provider payload. It is owned by the work unit that
// produced it and is never shared across work units.
type Response struct {
	Category model.Category
	Query    string
	Endpoint string // name of the attempt that answered
	Body     []byte
	Attempts int // candidates tried, including the successful one
}

// Client walks attempt plans and returns the first usable payload.
type Client struct {
	http    *http.Client
	plans   Plans
	timeout time.Duration
	logger  *slog.Logger
	metrics metrics.Recorder

	// shuffle rearranges the identity plan per lookup. Swappable so
	// tests get a deterministic order.
	shuffle func([]Attempt)
}

// NewClient creates a provider client with a bounded per-attempt timeout.
func NewClient(plans Plans, timeout time.Duration, logger *slog.Logger, recorder metrics.Recorder) *Client {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		http:    NewHTTPClient(),
		plans:   plans,
		timeout: timeout,
		logger:  logger.With("component", "provider"),
		metrics: recorder,
		shuffle: func(attempts []Attempt) {
			rand.Shuffle(len(attempts), func(i, j int) {
				attempts[i], attempts[j] = attempts[j], attempts[i]
			})
		},
	}
}

// SetShuffleFunc overrides the plan shuffle for tests.
func (c *Client) SetShuffleFunc(fn func([]Attempt)) {
	c.shuffle = fn
}

// Lookup tries the category's candidates in plan order and returns the
// first well-formed, non-blocked payload. A transport failure, non-2xx
// status, or blocked payload advances to the next candidate; when every
// candidate fails the result is ErrExhausted.
func (c *Client) Lookup(ctx context.Context, category model.Category, query string) (*Response, error) {
	plan, ok := c.plans[category]
	if !ok || len(plan) == 0 {
		return nil, fmt.Errorf("lookup %s: %w", category, ErrNoEndpoints)
	}

	attempts := plan
	if category == model.CategoryIdentity && len(plan) > 1 {
		attempts = make([]Attempt, len(plan))
		copy(attempts, plan)
		c.shuffle(attempts)
	}

	for i, attempt := range attempts {
		body, err := c.try(ctx, attempt, query)
		if err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("lookup %s: %w", category, ctx.Err())
			}
			c.metrics.IncProviderAttempt(string(category), attemptResult(err))
			c.logger.Warn("attempt failed",
				"category", category,
				"endpoint", attempt.Name,
				"attempt", i+1,
				"error", err,
			)
			continue
		}

		if isBlocked(body) {
			c.metrics.IncProviderAttempt(string(category), "blocked")
			c.logger.Warn("attempt blocked",
				"category", category,
				"endpoint", attempt.Name,
				"attempt", i+1,
			)
			continue
		}

		c.metrics.IncProviderAttempt(string(category), "ok")
		return &Response{
			Category: category,
			Query:    query,
			Endpoint: attempt.Name,
			Body:     body,
			Attempts: i + 1,
		}, nil
	}

	c.metrics.IncProviderExhausted(string(category))
	return nil, fmt.Errorf("lookup %s: tried %d candidates: %w", category, len(attempts), ErrExhausted)
}

// blockedMarkers are substrings aggregators return when a credential
// or source address is throttled. These payloads carry no records and
// must not consume a credit downstream.
var blockedMarkers = []string{
	"blocked",
	"rate limit",
	"ratelimit",
	"quota exceeded",
	"access denied",
	"too many requests",
}

func isBlocked(body []byte) bool {
	lower := bytes.ToLower(body)
	for _, marker := range blockedMarkers {
		if bytes.Contains(lower, []byte(marker)) {
			return true
		}
	}
	return false
}

// httpStatusError marks a non-2xx vendor response.
type httpStatusError struct {
	status int
}

func (e *httpStatusError) Error() string {
	return fmt.Sprintf("http status %d", e.status)
}

func attemptResult(err error) string {
	var statusErr *httpStatusError
	if errors.As(err, &statusErr) {
		return "http_error"
	}
	return "transport_error"
}

// try issues a single attempt with a bounded timeout.
func (c *Client) try(ctx context.Context, attempt Attempt, query string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var req *http.Request
	var err error

	if attempt.PostJSON {
		payload, merr := json.Marshal(map[string]string{"query": query})
		if merr != nil {
			return nil, fmt.Errorf("marshal query: %w", merr)
		}
		req, err = http.NewRequestWithContext(ctx, http.MethodPost, attempt.URL, bytes.NewReader(payload))
		if req != nil {
			req.Header.Set("Content-Type", "application/json")
		}
	} else {
		req, err = http.NewRequestWithContext(ctx, http.MethodGet, attempt.BuildURL(query), nil)
	}
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	if attempt.Token != "" {
		req.Header.Set("Authorization", "Bearer "+attempt.Token)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &httpStatusError{status: resp.StatusCode}
	}

	return body, nil
}
