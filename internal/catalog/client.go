// Segue - Listening Telemetry and Autoplay Recommendation
// Copyright 2026 Segue Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/seguefm/segue

// Package catalog is the client for the external music-catalog service:
// track metadata, audio features, the saved-tracks library, and the playback
// queue. All outbound calls pass through a rate limiter and a circuit
// breaker, with bounded timeouts. The catalog is best-effort from the core's
// point of view; callers degrade when it is unavailable.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/seguefm/segue/internal/config"
	"github.com/seguefm/segue/internal/metrics"
)

// ErrNotFound marks a catalog 404: the entity does not exist upstream.
var ErrNotFound = errors.New("catalog: not found")

// Client talks to the catalog's REST API.
type Client struct {
	cfg     *config.CatalogConfig
	http    *http.Client
	limiter *rate.Limiter
	breaker *breaker
}

// NewClient builds a catalog client from configuration.
func NewClient(cfg *config.CatalogConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &Client{
		cfg:     cfg,
		http:    &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSecond), cfg.Burst),
		breaker: newBreaker("catalog-api", cfg),
	}
}

// statusError carries a non-2xx upstream status.
type statusError struct {
	status int
	body   string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("catalog: upstream status %d: %s", e.status, e.body)
}

// do performs one catalog request through the limiter and breaker, returning
// the response body. operation labels metrics; query may be nil.
func (c *Client) do(ctx context.Context, operation, method, path string, query url.Values) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("catalog: rate limiter: %w", err)
	}

	body, err := c.breaker.execute(func() ([]byte, error) {
		return c.roundTrip(ctx, method, path, query)
	})
	if err != nil {
		metrics.CatalogRequests.WithLabelValues(operation, "error").Inc()
		return nil, err
	}

	metrics.CatalogRequests.WithLabelValues(operation, "success").Inc()
	return body, nil
}

func (c *Client) roundTrip(ctx context.Context, method, path string, query url.Values) ([]byte, error) {
	u := strings.TrimSuffix(c.cfg.BaseURL, "/") + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, u, nil)
	if err != nil {
		return nil, fmt.Errorf("catalog: build request: %w", err)
	}
	if c.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("catalog: %s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("catalog: read response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, ErrNotFound
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return nil, &statusError{status: resp.StatusCode, body: truncate(string(body), 200)}
	}

	return body, nil
}

// IsUnavailable reports whether err means the catalog cannot currently serve
// (breaker open, timeout, upstream 5xx) as opposed to a definitive answer.
func IsUnavailable(err error) bool {
	if err == nil || errors.Is(err, ErrNotFound) {
		return false
	}
	return true
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
