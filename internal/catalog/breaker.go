// Segue - Listening Telemetry and Autoplay Recommendation
// Copyright 2026 Segue Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/seguefm/segue

package catalog

import (
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/seguefm/segue/internal/config"
	"github.com/seguefm/segue/internal/logging"
	"github.com/seguefm/segue/internal/metrics"
)

// breaker wraps catalog calls with circuit breaker protection so a dead or
// slow catalog fails fast instead of stalling every recommendation.
//
// The breaker uses real time for its interval and timeout calculations. The
// timing governs recovery, not data integrity; tests mock the transport
// underneath rather than the breaker.
type breaker struct {
	cb   *gobreaker.CircuitBreaker[[]byte]
	name string
}

func newBreaker(name string, cfg *config.CatalogConfig) *breaker {
	maxFailures := cfg.BreakerMaxFailures
	if maxFailures == 0 {
		maxFailures = 5
	}
	openFor := cfg.BreakerOpenFor
	if openFor <= 0 {
		openFor = 30 * time.Second
	}

	metrics.CatalogBreakerState.WithLabelValues(name).Set(0) // 0 = closed

	cb := gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        name,
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     openFor,

		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},

		// A 404 is a definitive upstream answer, not an outage; it must not
		// accumulate toward opening the breaker.
		IsSuccessful: func(err error) bool {
			return !IsUnavailable(err)
		},

		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Info().
				Str("breaker", name).
				Str("from", stateToString(from)).
				Str("to", stateToString(to)).
				Msg("catalog breaker state transition")
			metrics.CatalogBreakerState.WithLabelValues(name).Set(stateToFloat(to))
		},
	})

	return &breaker{cb: cb, name: name}
}

func (b *breaker) execute(fn func() ([]byte, error)) ([]byte, error) {
	return b.cb.Execute(fn)
}

func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}

func stateToString(state gobreaker.State) string {
	switch state {
	case gobreaker.StateClosed:
		return "closed"
	case gobreaker.StateHalfOpen:
		return "half-open"
	case gobreaker.StateOpen:
		return "open"
	default:
		return "unknown"
	}
}
