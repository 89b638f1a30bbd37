// SentinelX - Multi-Modal Threat Detection and Response Pipeline
// Copyright 2026 Shivam Gawade (shivamgawade-droid)
// SPDX-License-Identifier: MIT
// https://github.com/shivamgawade-droid/sentinelx

package dispatch

import (
	"context"
	"errors"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/shivamgawade-droid/sentinelx/internal/action"
	"github.com/shivamgawade-droid/sentinelx/internal/logging"
	"github.com/shivamgawade-droid/sentinelx/internal/metrics"
)

// BreakerConfig configures the per-effector circuit breaker.
type BreakerConfig struct {
	// FailureThreshold is the consecutive failure count that opens the breaker.
	FailureThreshold uint32 `json:"failure_threshold" koanf:"failure_threshold"`

	// OpenTimeout is how long the breaker stays open before probing.
	OpenTimeout time.Duration `json:"open_timeout" koanf:"open_timeout"`

	// MaxHalfOpenRequests bounds probe requests while half-open.
	MaxHalfOpenRequests uint32 `json:"max_half_open_requests" koanf:"max_half_open_requests"`
}

// DefaultBreakerConfig returns production defaults.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold:    5,
		OpenTimeout:         30 * time.Second,
		MaxHalfOpenRequests: 1,
	}
}

// breakerEffector wraps an effector with circuit breaker protection.
// An open breaker maps to a retryable outcome: the dispatcher's backoff
// naturally spaces probes while the external collaborator recovers.
type breakerEffector struct {
	inner action.Effector
	cb    *gobreaker.CircuitBreaker[interface{}]
}

// newBreakerEffector wraps eff with a breaker built from cfg.
func newBreakerEffector(eff action.Effector, cfg BreakerConfig) *breakerEffector {
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = 30 * time.Second
	}
	settings := gobreaker.Settings{
		Name:        "effector-" + string(eff.Kind()),
		MaxRequests: cfg.MaxHalfOpenRequests,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("effector circuit breaker state change")
		},
	}
	return &breakerEffector{
		inner: eff,
		cb:    gobreaker.NewCircuitBreaker[interface{}](settings),
	}
}

// Execute runs the wrapped effector through the breaker.
func (b *breakerEffector) Execute(ctx context.Context, act action.Action) (action.Outcome, error) {
	var (
		outcome action.Outcome
		execErr error
	)
	_, err := b.cb.Execute(func() (interface{}, error) {
		outcome, execErr = b.inner.Execute(ctx, act)
		if outcome == action.OutcomeSucceeded {
			return nil, nil
		}
		if execErr != nil {
			return nil, execErr
		}
		return nil, errors.New("effector reported " + string(outcome))
	})

	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		metrics.CircuitBreakerOpen.WithLabelValues(string(act.Kind)).Inc()
		return action.OutcomeFailedRetryable, err
	}
	if outcome == "" {
		outcome = action.OutcomeFailedRetryable
	}
	return outcome, execErr
}
