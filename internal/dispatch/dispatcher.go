// SentinelX - Multi-Modal Threat Detection and Response Pipeline
// Copyright 2026 Shivam Gawade (shivamgawade-droid)
// SPDX-License-Identifier: MIT
// https://github.com/shivamgawade-droid/sentinelx

// Package dispatch executes actions against their effectors with retry,
// idempotency, and failure isolation.
//
// Delivery is at-least-once: a crash between effect and confirmation means
// the action is dispatched again on recovery. The idempotency record,
// written with atomic check-and-set against the durable store, guarantees
// the external effect itself happens at most once per idempotency key.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"github.com/shivamgawade-droid/sentinelx/internal/action"
	"github.com/shivamgawade-droid/sentinelx/internal/audit"
	"github.com/shivamgawade-droid/sentinelx/internal/logging"
	"github.com/shivamgawade-droid/sentinelx/internal/metrics"
	"github.com/shivamgawade-droid/sentinelx/internal/store"
)

// ErrNoEffector is returned when an action's kind has no registered effector.
var ErrNoEffector = errors.New("dispatch: no effector for action kind")

// ErrClaimHeld is returned when another dispatcher holds the in-flight
// claim for an idempotency key.
var ErrClaimHeld = errors.New("dispatch: idempotency claim held by another dispatcher")

// Config configures the dispatcher.
type Config struct {
	// MaxAttempts bounds execution attempts per action, first try included.
	MaxAttempts int `json:"max_attempts" koanf:"max_attempts" validate:"gt=0"`

	// BackoffBase is the initial retry delay; attempt n waits
	// base * 2^(n-1), capped at BackoffCap.
	BackoffBase time.Duration `json:"backoff_base" koanf:"backoff_base" validate:"gt=0"`

	// BackoffCap is the maximum retry delay.
	BackoffCap time.Duration `json:"backoff_cap" koanf:"backoff_cap"`

	// EffectorTimeout bounds each individual effector call, independent of
	// the overall request deadline.
	EffectorTimeout time.Duration `json:"effector_timeout" koanf:"effector_timeout" validate:"gt=0"`

	// Breaker configures the per-effector circuit breaker.
	Breaker BreakerConfig `json:"breaker" koanf:"breaker"`
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:     5,
		BackoffBase:     500 * time.Millisecond,
		BackoffCap:      5 * time.Minute,
		EffectorTimeout: 10 * time.Second,
		Breaker:         DefaultBreakerConfig(),
	}
}

// Dispatcher executes actions. Safe for concurrent use.
type Dispatcher struct {
	cfg       Config
	store     store.Store
	monitor   *audit.Monitor
	effectors map[action.Kind]*breakerEffector
	mu        sync.RWMutex
}

// NewDispatcher creates a dispatcher over the given idempotency store.
// The monitor is optional; when present, action outcomes are recorded in
// the security event history.
func NewDispatcher(cfg Config, st store.Store, monitor *audit.Monitor) *Dispatcher {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = 500 * time.Millisecond
	}
	if cfg.BackoffCap <= 0 {
		cfg.BackoffCap = 5 * time.Minute
	}
	if cfg.EffectorTimeout <= 0 {
		cfg.EffectorTimeout = 10 * time.Second
	}
	return &Dispatcher{
		cfg:       cfg,
		store:     st,
		monitor:   monitor,
		effectors: make(map[action.Kind]*breakerEffector),
	}
}

// Register wires an effector for its action kind, wrapped in a circuit
// breaker. Registering a second effector for the same kind replaces the
// first.
func (d *Dispatcher) Register(eff action.Effector) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.effectors[eff.Kind()] = newBreakerEffector(eff, d.cfg.Breaker)
}

// effector returns the registered effector for a kind.
func (d *Dispatcher) effector(kind action.Kind) (*breakerEffector, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	eff, ok := d.effectors[kind]
	return eff, ok
}

// DispatchAll executes a verdict's full action batch.
//
// Log actions go first and sequentially, so the audit trail exists before
// any containment or notification effect runs. The remaining actions then
// execute concurrently; each is an independent failure domain, and the
// returned slice always has one terminal entry per input action.
func (d *Dispatcher) DispatchAll(ctx context.Context, actions []action.Action) []action.Action {
	results := make([]action.Action, len(actions))
	var rest []int

	for i, act := range actions {
		if act.Kind == action.KindLog {
			results[i] = d.Dispatch(ctx, act)
		} else {
			rest = append(rest, i)
		}
	}

	var wg sync.WaitGroup
	for _, i := range rest {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = d.Dispatch(ctx, actions[i])
		}(i)
	}
	wg.Wait()
	return results
}

// Dispatch executes one action to a terminal status and returns the final
// action record. Errors are folded into the returned status and LastError;
// a terminal failure is surfaced in the record, never swallowed.
func (d *Dispatcher) Dispatch(ctx context.Context, act action.Action) action.Action {
	start := time.Now()

	if cached, ok := d.completedRecord(ctx, act.IdempotencyKey); ok {
		metrics.IdempotencyHits.Inc()
		logging.Debug().
			Str("request_id", act.RequestID).
			Str("kind", string(act.Kind)).
			Str("status", string(cached.Status)).
			Msg("dispatch short-circuited by idempotency record")
		return cached
	}

	claimed, existing, err := d.claim(ctx, act)
	if err != nil {
		act.Status = action.StatusFailedRetryable
		act.LastError = err.Error()
		return act
	}
	if !claimed {
		// Another dispatcher is executing or already finished this key.
		if existing.Status.Terminal() {
			metrics.IdempotencyHits.Inc()
			return existing
		}
		act.Status = action.StatusInFlight
		act.LastError = ErrClaimHeld.Error()
		return act
	}

	final := d.execute(ctx, act)
	d.persist(ctx, final)
	d.recordOutcome(final)
	metrics.RecordDispatch(string(final.Kind), string(final.Status), time.Since(start))
	return final
}

// execute runs the retry loop for a claimed action until a terminal status.
func (d *Dispatcher) execute(ctx context.Context, act action.Action) action.Action {
	eff, ok := d.effector(act.Kind)
	if !ok {
		act.Status = action.StatusFailedTerminal
		act.LastError = fmt.Sprintf("%v: %s", ErrNoEffector, act.Kind)
		return act
	}

	for act.AttemptCount < d.cfg.MaxAttempts {
		act.Status = action.StatusInFlight
		act.AttemptCount++

		callCtx, cancel := context.WithTimeout(ctx, d.cfg.EffectorTimeout)
		outcome, execErr := eff.Execute(callCtx, act)
		cancel()

		switch outcome {
		case action.OutcomeSucceeded:
			act.Status = action.StatusSucceeded
			act.LastError = ""
			return finalize(act)

		case action.OutcomeFailedTerminal:
			act.Status = action.StatusFailedTerminal
			act.LastError = errText(execErr)
			logging.Error().
				Str("request_id", act.RequestID).
				Str("kind", string(act.Kind)).
				Str("target", act.Target).
				Str("error", act.LastError).
				Msg("action failed terminally")
			return finalize(act)

		default: // retryable
			act.Status = action.StatusFailedRetryable
			act.LastError = errText(execErr)
			if act.AttemptCount >= d.cfg.MaxAttempts {
				break
			}
			metrics.ActionRetries.WithLabelValues(string(act.Kind)).Inc()
			if d.monitor != nil {
				d.monitor.Record(audit.Event{
					Type:        audit.EventTypeActionRetried,
					Source:      "dispatch",
					RequestID:   act.RequestID,
					Description: fmt.Sprintf("retrying %s action after attempt %d: %s", act.Kind, act.AttemptCount, act.LastError),
				})
			}
			if !sleepBackoff(ctx, d.backoff(act.AttemptCount)) {
				act.LastError = ctx.Err().Error()
				return finalize(act)
			}
		}
	}

	// Retries exhausted: surface as terminal, never drop.
	act.Status = action.StatusFailedTerminal
	logging.Error().
		Str("request_id", act.RequestID).
		Str("kind", string(act.Kind)).
		Int("attempts", act.AttemptCount).
		Str("error", act.LastError).
		Msg("action exhausted retries")
	return finalize(act)
}

// finalize stamps the completion time on a terminal action.
func finalize(act action.Action) action.Action {
	if act.Status.Terminal() || act.Status == action.StatusFailedRetryable {
		now := time.Now().UTC()
		act.CompletedAt = &now
	}
	return act
}

// backoff computes the delay before the next attempt: base * 2^(n-1),
// capped.
func (d *Dispatcher) backoff(attempt int) time.Duration {
	if attempt > 50 {
		return d.cfg.BackoffCap
	}
	delay := time.Duration(float64(d.cfg.BackoffBase) * math.Pow(2, float64(attempt-1)))
	if delay < 0 || delay > d.cfg.BackoffCap {
		delay = d.cfg.BackoffCap
	}
	return delay
}

// sleepBackoff waits for the delay or context cancellation. Returns false
// when the context ended first.
func sleepBackoff(ctx context.Context, delay time.Duration) bool {
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// errText extracts a stable message from an effector error.
func errText(err error) string {
	if err == nil {
		return "effector reported failure"
	}
	return err.Error()
}

// completedRecord looks up a terminal idempotency record.
func (d *Dispatcher) completedRecord(ctx context.Context, key string) (action.Action, bool) {
	data, err := d.store.Get(ctx, store.PrefixAction+key)
	if err != nil {
		return action.Action{}, false
	}
	var rec action.Action
	if err := json.Unmarshal(data, &rec); err != nil {
		logging.Warn().Err(err).Str("idempotency_key", key).Msg("corrupt idempotency record ignored")
		return action.Action{}, false
	}
	return rec, rec.Status.Terminal()
}

// claim atomically takes the in-flight claim for the action's idempotency
// key. Returns claimed=false with the existing record when another
// dispatcher already holds or completed it.
func (d *Dispatcher) claim(ctx context.Context, act action.Action) (bool, action.Action, error) {
	claim := act
	claim.Status = action.StatusInFlight
	data, err := json.Marshal(claim)
	if err != nil {
		return false, action.Action{}, fmt.Errorf("dispatch: marshal claim: %w", err)
	}
	existing, stored, err := d.store.SetIfAbsent(ctx, store.PrefixAction+act.IdempotencyKey, data)
	if err != nil {
		return false, action.Action{}, err
	}
	if stored {
		return true, action.Action{}, nil
	}
	var rec action.Action
	if err := json.Unmarshal(existing, &rec); err != nil {
		return false, action.Action{}, fmt.Errorf("dispatch: corrupt claim record: %w", err)
	}
	return false, rec, nil
}

// ReleaseStale deletes non-terminal idempotency records for the given
// actions. Called during crash-recovery replay, when any in-flight claim
// belongs to a dispatcher that no longer exists and would otherwise block
// re-execution forever. Terminal records are left intact so the replay
// still short-circuits on completed effects.
func (d *Dispatcher) ReleaseStale(ctx context.Context, actions []action.Action) {
	for _, act := range actions {
		key := store.PrefixAction + act.IdempotencyKey
		data, err := d.store.Get(ctx, key)
		if err != nil {
			continue
		}
		var rec action.Action
		if err := json.Unmarshal(data, &rec); err == nil && rec.Status.Terminal() {
			continue
		}
		if err := d.store.Delete(ctx, key); err != nil {
			logging.Warn().Err(err).Str("idempotency_key", act.IdempotencyKey).Msg("release stale claim failed")
			continue
		}
		logging.Warn().
			Str("request_id", act.RequestID).
			Str("kind", string(act.Kind)).
			Str("idempotency_key", act.IdempotencyKey).
			Msg("released stale in-flight claim")
	}
}

// persist overwrites the claim with the terminal record.
func (d *Dispatcher) persist(ctx context.Context, act action.Action) {
	data, err := json.Marshal(act)
	if err != nil {
		logging.Error().Err(err).Str("idempotency_key", act.IdempotencyKey).Msg("marshal action record failed")
		return
	}
	// Persist with a background-derived context so a cancelled request
	// cannot lose the completion record after the effect already ran.
	putCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := d.store.Put(putCtx, store.PrefixAction+act.IdempotencyKey, data); err != nil {
		logging.Error().Err(err).Str("idempotency_key", act.IdempotencyKey).Msg("persist action record failed")
	}
}

// recordOutcome writes the action's terminal outcome to the event history.
func (d *Dispatcher) recordOutcome(act action.Action) {
	if d.monitor == nil {
		return
	}
	event := audit.Event{
		Source:      "dispatch",
		RequestID:   act.RequestID,
		Description: fmt.Sprintf("%s action on %s finished with status %s", act.Kind, act.Target, act.Status),
	}
	if act.Status == action.StatusSucceeded {
		event.Type = audit.EventTypeActionSucceeded
	} else {
		event.Type = audit.EventTypeActionFailed
	}
	d.monitor.Record(event)
}
