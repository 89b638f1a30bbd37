// SentinelX - Multi-Modal Threat Detection and Response Pipeline
// Copyright 2026 Shivam Gawade (shivamgawade-droid)
// SPDX-License-Identifier: MIT
// https://github.com/shivamgawade-droid/sentinelx

// Package coordinator owns the per-request lifecycle: it accumulates
// evidence records, triggers fusion when the expected set is complete or
// the collection deadline elapses, runs the decision policy, hands the
// action batch to the dispatcher, and finalizes the request's terminal
// state.
//
// All mutation of one request's state is serialized through that
// request's lock; independent requests proceed in parallel. Every state
// transition is persisted, so replaying a request from its last persisted
// lifecycle position after a crash produces neither a second verdict nor
// a duplicate external effect.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/shivamgawade-droid/sentinelx/internal/action"
	"github.com/shivamgawade-droid/sentinelx/internal/audit"
	"github.com/shivamgawade-droid/sentinelx/internal/dispatch"
	"github.com/shivamgawade-droid/sentinelx/internal/evidence"
	"github.com/shivamgawade-droid/sentinelx/internal/fusion"
	"github.com/shivamgawade-droid/sentinelx/internal/logging"
	"github.com/shivamgawade-droid/sentinelx/internal/metrics"
	"github.com/shivamgawade-droid/sentinelx/internal/policy"
	"github.com/shivamgawade-droid/sentinelx/internal/store"
)

// Sentinel errors exposed to callers.
var (
	// ErrRequestNotFound is returned for an unknown request id.
	ErrRequestNotFound = errors.New("coordinator: request not found")

	// ErrDuplicateEvidence is returned when a modality arrives twice and
	// the duplicate policy is reject.
	ErrDuplicateEvidence = errors.New("coordinator: duplicate evidence for modality")

	// ErrRequestFinalized is returned when evidence arrives after the
	// request left the collecting state.
	ErrRequestFinalized = errors.New("coordinator: request no longer accepting evidence")

	// ErrCancelNotAllowed is returned when cancellation is requested after
	// fusion has started; the request must reach a terminal verdict.
	ErrCancelNotAllowed = errors.New("coordinator: request can only be cancelled while collecting")
)

// DuplicatePolicy controls handling of a second record for a modality.
type DuplicatePolicy string

const (
	// DuplicateReject refuses the second record.
	DuplicateReject DuplicatePolicy = "reject"

	// DuplicateSupersede replaces the earlier record in place. Records are
	// never merged.
	DuplicateSupersede DuplicatePolicy = "supersede"
)

// Config configures the coordinator.
type Config struct {
	// RequestTypes maps a request type name to its expected modality set.
	RequestTypes map[string][]evidence.Modality `json:"request_types" koanf:"request_types"`

	// DefaultModalities is the expected set for unknown request types and
	// for requests implicitly opened by evidence arrival.
	DefaultModalities []evidence.Modality `json:"default_modalities" koanf:"default_modalities"`

	// CollectionDeadline bounds how long collection waits for the full
	// expected set before fusing whatever arrived.
	CollectionDeadline time.Duration `json:"collection_deadline" koanf:"collection_deadline" validate:"gt=0"`

	// DuplicatePolicy is reject or supersede.
	DuplicatePolicy DuplicatePolicy `json:"duplicate_policy" koanf:"duplicate_policy"`

	// RetainTerminal is how long a terminal request stays in the in-memory
	// index before it is evicted. The persisted state outlives eviction, so
	// verdict and status queries for evicted requests fall back to the
	// store.
	RetainTerminal time.Duration `json:"retain_terminal" koanf:"retain_terminal" validate:"gte=0"`
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		RequestTypes: map[string][]evidence.Modality{
			"media":   {evidence.ModalityVideo, evidence.ModalityAudio, evidence.ModalityText, evidence.ModalityMetadata},
			"message": {evidence.ModalityText, evidence.ModalityMetadata},
		},
		DefaultModalities:  append([]evidence.Modality(nil), evidence.Modalities...),
		CollectionDeadline: 30 * time.Second,
		DuplicatePolicy:    DuplicateSupersede,
		RetainTerminal:     15 * time.Minute,
	}
}

// VerdictResult is the caller-facing answer to a verdict query. A nil
// Verdict with a non-terminal lifecycle means the request is pending.
// Terminal dispatch failures are reported alongside the verdict; partial
// success is never masked.
type VerdictResult struct {
	Lifecycle     Lifecycle         `json:"lifecycle"`
	Verdict       *evidence.Verdict `json:"verdict,omitempty"`
	FailedActions []action.Action   `json:"failed_actions,omitempty"`
}

// requestEntry pairs a request's state with its critical section and
// deadline timer.
type requestEntry struct {
	mu    sync.Mutex
	state State
	timer *time.Timer
}

// Coordinator drives requests through the fusion pipeline.
type Coordinator struct {
	cfg        Config
	engine     *fusion.Engine
	policy     *policy.Policy
	dispatcher *dispatch.Dispatcher
	store      store.Store
	monitor    *audit.Monitor

	mu       sync.Mutex
	requests map[string]*requestEntry
}

// New creates a coordinator. The store persists request state for crash
// recovery; the monitor records lifecycle events.
func New(cfg Config, engine *fusion.Engine, pol *policy.Policy, disp *dispatch.Dispatcher, st store.Store, monitor *audit.Monitor) *Coordinator {
	if cfg.CollectionDeadline <= 0 {
		cfg.CollectionDeadline = 30 * time.Second
	}
	if cfg.DuplicatePolicy != DuplicateReject && cfg.DuplicatePolicy != DuplicateSupersede {
		cfg.DuplicatePolicy = DuplicateSupersede
	}
	if len(cfg.DefaultModalities) == 0 {
		cfg.DefaultModalities = append([]evidence.Modality(nil), evidence.Modalities...)
	}
	if cfg.RetainTerminal <= 0 {
		cfg.RetainTerminal = 15 * time.Minute
	}
	return &Coordinator{
		cfg:        cfg,
		engine:     engine,
		policy:     pol,
		dispatcher: disp,
		store:      st,
		monitor:    monitor,
		requests:   make(map[string]*requestEntry),
	}
}

// expectedFor resolves the expected modality set for a request type.
func (c *Coordinator) expectedFor(requestType string) []evidence.Modality {
	if mods, ok := c.cfg.RequestTypes[requestType]; ok && len(mods) > 0 {
		return append([]evidence.Modality(nil), mods...)
	}
	return append([]evidence.Modality(nil), c.cfg.DefaultModalities...)
}

// Open registers a request and starts its collection deadline. An empty
// id is assigned a fresh UUID. Opening an id that already exists in a
// non-terminal state returns the existing state unchanged: duplicate
// submissions supplement, they never fork a parallel request.
func (c *Coordinator) Open(ctx context.Context, requestID, requestType string, deadline time.Duration) (State, error) {
	if requestID == "" {
		requestID = uuid.New().String()
	}
	if deadline <= 0 {
		deadline = c.cfg.CollectionDeadline
	}

	c.mu.Lock()
	if entry, ok := c.requests[requestID]; ok {
		c.mu.Unlock()
		entry.mu.Lock()
		defer entry.mu.Unlock()
		return entry.state.clone(), nil
	}

	now := time.Now().UTC()
	entry := &requestEntry{
		state: State{
			RequestID:   requestID,
			RequestType: requestType,
			Expected:    c.expectedFor(requestType),
			Deadline:    now.Add(deadline),
			Lifecycle:   LifecycleCollecting,
			CreatedAt:   now,
		},
	}
	entry.timer = time.AfterFunc(deadline, func() { c.onDeadline(requestID) })
	c.requests[requestID] = entry
	c.mu.Unlock()

	metrics.ActiveRequests.Inc()
	c.monitor.Record(audit.Event{
		Type:        audit.EventTypeRequestOpened,
		Source:      "coordinator",
		RequestID:   requestID,
		Description: fmt.Sprintf("request opened with type %q, expecting %d modalities", requestType, len(entry.state.Expected)),
	})

	entry.mu.Lock()
	defer entry.mu.Unlock()
	c.persist(ctx, &entry.state)
	return entry.state.clone(), nil
}

// Submit applies one evidence record to its request. Unknown request ids
// are opened implicitly with the default expected set, supporting
// analyzers that race ahead of the request registration.
//
// When the record completes the expected set, fusion, decision, and
// dispatch run before Submit returns.
func (c *Coordinator) Submit(ctx context.Context, rec evidence.Record) error {
	if err := rec.Validate(); err != nil {
		metrics.EvidenceRejected.WithLabelValues("invalid").Inc()
		return err
	}
	if rec.ProducedAt.IsZero() {
		rec.ProducedAt = time.Now().UTC()
	}

	entry, err := c.entryOrOpen(ctx, rec.RequestID)
	if err != nil {
		if errors.Is(err, ErrRequestFinalized) {
			metrics.EvidenceRejected.WithLabelValues("finalized").Inc()
		}
		return err
	}

	entry.mu.Lock()
	state := &entry.state

	if state.Lifecycle != LifecycleCollecting {
		lifecycle := state.Lifecycle
		entry.mu.Unlock()
		metrics.EvidenceRejected.WithLabelValues("finalized").Inc()
		c.monitor.Record(audit.Event{
			Type:        audit.EventTypeEvidenceRejected,
			Source:      "coordinator",
			RequestID:   rec.RequestID,
			Description: fmt.Sprintf("%s evidence rejected: request is %s", rec.Modality, lifecycle),
		})
		return fmt.Errorf("%w: %s", ErrRequestFinalized, lifecycle)
	}

	if idx, ok := state.has(rec.Modality); ok {
		if c.cfg.DuplicatePolicy == DuplicateReject {
			entry.mu.Unlock()
			metrics.EvidenceRejected.WithLabelValues("duplicate").Inc()
			c.monitor.Record(audit.Event{
				Type:        audit.EventTypeEvidenceRejected,
				Source:      "coordinator",
				RequestID:   rec.RequestID,
				Description: fmt.Sprintf("duplicate %s evidence rejected", rec.Modality),
			})
			return fmt.Errorf("%w: %s", ErrDuplicateEvidence, rec.Modality)
		}
		// Supersede in place: the arrival position of the modality is kept
		// so fusion input order stays stable.
		state.Records[idx] = rec
		c.persist(ctx, state)
		entry.mu.Unlock()
		c.monitor.Record(audit.Event{
			Type:        audit.EventTypeEvidenceSuperseded,
			Source:      "coordinator",
			RequestID:   rec.RequestID,
			Description: fmt.Sprintf("%s evidence superseded by newer record", rec.Modality),
		})
		return nil
	}

	state.Records = append(state.Records, rec)
	c.persist(ctx, state)
	metrics.EvidenceReceived.WithLabelValues(string(rec.Modality)).Inc()
	c.monitor.Record(audit.Event{
		Type:        audit.EventTypeEvidenceReceived,
		Source:      "coordinator",
		RequestID:   rec.RequestID,
		Description: fmt.Sprintf("%s evidence accepted (%d/%d modalities)", rec.Modality, len(state.Records), len(state.Expected)),
	})

	if !state.complete() {
		entry.mu.Unlock()
		return nil
	}

	// Full expected set arrived: finalize now. The deadline timer is
	// disarmed first so partial fusion cannot race the full one.
	if entry.timer != nil {
		entry.timer.Stop()
	}
	c.finalizeLocked(ctx, entry, false, false)
	return nil
}

// entryOrOpen returns the live entry for a request, implicitly opening a
// default-typed request when none exists. A terminal request that was
// evicted from the in-memory index must not be reopened: its persisted
// state rejects late evidence just like a live entry would.
func (c *Coordinator) entryOrOpen(ctx context.Context, requestID string) (*requestEntry, error) {
	c.mu.Lock()
	entry, ok := c.requests[requestID]
	c.mu.Unlock()
	if ok {
		return entry, nil
	}
	if state, err := c.loadState(ctx, requestID); err == nil && state.Lifecycle.Terminal() {
		return nil, fmt.Errorf("%w: %s", ErrRequestFinalized, state.Lifecycle)
	}
	if _, err := c.Open(ctx, requestID, "", 0); err != nil {
		return nil, err
	}
	c.mu.Lock()
	entry = c.requests[requestID]
	c.mu.Unlock()
	if entry == nil {
		return nil, ErrRequestNotFound
	}
	return entry, nil
}

// onDeadline fires when a request's collection deadline elapses. With at
// least one record the request fuses in degraded mode; with none it
// expires.
func (c *Coordinator) onDeadline(requestID string) {
	c.mu.Lock()
	entry, ok := c.requests[requestID]
	c.mu.Unlock()
	if !ok {
		return
	}

	ctx := context.Background()
	entry.mu.Lock()
	if entry.state.Lifecycle != LifecycleCollecting {
		entry.mu.Unlock()
		return
	}

	if len(entry.state.Records) == 0 {
		entry.state.Lifecycle = LifecycleExpired
		c.persist(ctx, &entry.state)
		entry.mu.Unlock()

		c.scheduleEvict(requestID)
		metrics.ActiveRequests.Dec()
		metrics.RequestsFinalized.WithLabelValues(string(LifecycleExpired)).Inc()
		c.monitor.Record(audit.Event{
			Type:        audit.EventTypeRequestExpired,
			Source:      "coordinator",
			RequestID:   requestID,
			Description: "collection deadline elapsed with no evidence",
		})
		logging.Warn().Str("request_id", requestID).Msg("request expired without evidence")
		return
	}

	logging.Info().
		Str("request_id", requestID).
		Int("records", len(entry.state.Records)).
		Int("expected", len(entry.state.Expected)).
		Msg("deadline elapsed, fusing partial evidence")
	c.finalizeLocked(ctx, entry, true, false)
}

// finalizeLocked drives a request from collecting to done. The entry lock
// must be held on entry; it is released during dispatch so verdict and
// status queries never block on effector I/O, then retaken to record the
// outcome. replay marks a crash-recovery re-run, which releases stale
// idempotency claims left by the previous process before dispatching.
func (c *Coordinator) finalizeLocked(ctx context.Context, entry *requestEntry, degraded, replay bool) {
	state := &entry.state

	// At-most-one verdict: only the transition out of collecting may fuse.
	if state.Lifecycle != LifecycleCollecting || state.Verdict != nil {
		entry.mu.Unlock()
		return
	}

	state.Lifecycle = LifecycleFusing
	c.persist(ctx, state)

	start := time.Now()
	verdict, err := c.engine.Fuse(state.RequestID, state.Records, state.Expected, degraded, time.Now())
	if err != nil {
		// Fusing with zero records cannot happen from the normal triggers;
		// treat it as expiry so the request still terminates.
		state.Lifecycle = LifecycleExpired
		c.persist(ctx, state)
		requestID := state.RequestID
		entry.mu.Unlock()
		c.scheduleEvict(requestID)
		metrics.ActiveRequests.Dec()
		metrics.RequestsFinalized.WithLabelValues(string(LifecycleExpired)).Inc()
		logging.Error().Err(err).Str("request_id", requestID).Msg("fusion failed, request expired")
		return
	}
	metrics.RecordFusion(string(verdict.Level), time.Since(start))

	state.Verdict = verdict
	state.Lifecycle = LifecycleDeciding
	c.persist(ctx, state)

	actions := c.policy.Decide(verdict)

	state.Lifecycle = LifecycleDispatching
	c.persist(ctx, state)

	requestID := state.RequestID
	level := verdict.Level
	entry.mu.Unlock()

	// Dispatch outside the lock: effector I/O and retries must not block
	// evidence submission on other requests or verdict queries on this one.
	// The context is detached from the submitting caller: once a verdict
	// exists, a client disconnect must not abort the action batch or strand
	// the audit log action. The dispatcher bounds its own runtime through
	// attempt limits and per-call effector timeouts.
	dispatchCtx := context.WithoutCancel(ctx)
	if replay {
		c.dispatcher.ReleaseStale(dispatchCtx, actions)
	}
	results := c.dispatcher.DispatchAll(dispatchCtx, actions)

	entry.mu.Lock()
	entry.state.Actions = results
	entry.state.Lifecycle = LifecycleDone
	c.persist(ctx, &entry.state)
	failed := entry.state.FailedActions()
	entry.mu.Unlock()

	c.scheduleEvict(requestID)
	metrics.ActiveRequests.Dec()
	metrics.RequestsFinalized.WithLabelValues(string(LifecycleDone)).Inc()
	c.monitor.Record(audit.Event{
		Type:        audit.EventTypeRequestFinalized,
		Level:       level,
		Source:      "coordinator",
		RequestID:   requestID,
		Description: fmt.Sprintf("request finalized at level %s with %d actions (%d failed)", level, len(results), len(failed)),
	})
	logging.Info().
		Str("request_id", requestID).
		Str("threat_level", string(level)).
		Int("actions", len(results)).
		Int("failed_actions", len(failed)).
		Bool("degraded", degraded).
		Msg("request finalized")
}

// Cancel aborts a request. Only permitted while collecting: once fusion
// has started the request must reach a terminal verdict so no action is
// silently abandoned.
func (c *Coordinator) Cancel(ctx context.Context, requestID string) error {
	c.mu.Lock()
	entry, ok := c.requests[requestID]
	c.mu.Unlock()
	if !ok {
		// An evicted terminal request is finalized, not unknown.
		if state, err := c.loadState(ctx, requestID); err == nil && state.Lifecycle.Terminal() {
			return fmt.Errorf("%w (state %s)", ErrCancelNotAllowed, state.Lifecycle)
		}
		return ErrRequestNotFound
	}

	entry.mu.Lock()
	if entry.state.Lifecycle != LifecycleCollecting {
		lifecycle := entry.state.Lifecycle
		entry.mu.Unlock()
		return fmt.Errorf("%w (state %s)", ErrCancelNotAllowed, lifecycle)
	}
	if entry.timer != nil {
		entry.timer.Stop()
	}
	entry.state.Lifecycle = LifecycleCancelled
	c.persist(ctx, &entry.state)
	entry.mu.Unlock()

	c.scheduleEvict(requestID)
	metrics.ActiveRequests.Dec()
	metrics.RequestsFinalized.WithLabelValues(string(LifecycleCancelled)).Inc()
	c.monitor.Record(audit.Event{
		Type:        audit.EventTypeRequestCancelled,
		Source:      "coordinator",
		RequestID:   requestID,
		Description: "request cancelled while collecting",
	})
	return nil
}

// GetVerdict answers a verdict query. A request that finished fusion but
// suffered dispatch failures still returns its verdict together with the
// failed actions. Requests evicted from the in-memory index are answered
// from their persisted state.
func (c *Coordinator) GetVerdict(ctx context.Context, requestID string) (VerdictResult, error) {
	c.mu.Lock()
	entry, ok := c.requests[requestID]
	c.mu.Unlock()
	if !ok {
		state, err := c.loadState(ctx, requestID)
		if err != nil {
			return VerdictResult{}, err
		}
		return VerdictResult{
			Lifecycle:     state.Lifecycle,
			Verdict:       state.Verdict,
			FailedActions: state.FailedActions(),
		}, nil
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()
	state := entry.state.clone()
	return VerdictResult{
		Lifecycle:     state.Lifecycle,
		Verdict:       state.Verdict,
		FailedActions: state.FailedActions(),
	}, nil
}

// GetStatus returns a request's lifecycle position, falling back to the
// persisted state for evicted requests.
func (c *Coordinator) GetStatus(ctx context.Context, requestID string) (Lifecycle, error) {
	c.mu.Lock()
	entry, ok := c.requests[requestID]
	c.mu.Unlock()
	if !ok {
		state, err := c.loadState(ctx, requestID)
		if err != nil {
			return "", err
		}
		return state.Lifecycle, nil
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	return entry.state.Lifecycle, nil
}

// loadState reads a request's persisted state from the store.
func (c *Coordinator) loadState(ctx context.Context, requestID string) (State, error) {
	if c.store == nil {
		return State{}, ErrRequestNotFound
	}
	data, err := c.store.Get(ctx, store.PrefixRequest+requestID)
	if err != nil {
		return State{}, ErrRequestNotFound
	}
	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		return State{}, fmt.Errorf("coordinator: corrupt state for %s: %w", requestID, err)
	}
	return state, nil
}

// scheduleEvict drops a terminal request from the in-memory index after
// the retention window. The persisted state outlives the eviction, so
// queries keep working through the store fallback.
func (c *Coordinator) scheduleEvict(requestID string) {
	time.AfterFunc(c.cfg.RetainTerminal, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		entry, ok := c.requests[requestID]
		if !ok {
			return
		}
		entry.mu.Lock()
		terminal := entry.state.Lifecycle.Terminal()
		entry.mu.Unlock()
		if terminal {
			delete(c.requests, requestID)
		}
	})
}

// persist writes the state to the durable store. Persistence failures are
// logged, not fatal: the in-memory pipeline keeps its guarantees and only
// crash recovery degrades.
func (c *Coordinator) persist(ctx context.Context, state *State) {
	if c.store == nil {
		return
	}
	data, err := json.Marshal(state)
	if err != nil {
		logging.Error().Err(err).Str("request_id", state.RequestID).Msg("marshal request state failed")
		return
	}
	putCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := c.store.Put(putCtx, store.PrefixRequest+state.RequestID, data); err != nil {
		logging.Error().Err(err).Str("request_id", state.RequestID).Msg("persist request state failed")
	}
}

// Recover reloads persisted requests after a restart and resumes each one
// from its last persisted lifecycle position. Fusion is deterministic and
// every action dispatch is idempotent, so replaying fusing, deciding, or
// dispatching requests cannot double-execute an external effect.
func (c *Coordinator) Recover(ctx context.Context) error {
	if c.store == nil {
		return nil
	}
	entries, err := c.store.List(ctx, store.PrefixRequest)
	if err != nil {
		return fmt.Errorf("coordinator: recover: %w", err)
	}

	var resumed, terminal int
	for key, data := range entries {
		var state State
		if err := json.Unmarshal(data, &state); err != nil {
			logging.Warn().Err(err).Str("key", key).Msg("corrupt request state skipped during recovery")
			continue
		}
		if state.Lifecycle.Terminal() {
			// Terminal requests stay out of the in-memory index; queries
			// reach them through the store fallback.
			terminal++
			continue
		}

		entry := &requestEntry{state: state}
		c.mu.Lock()
		c.requests[state.RequestID] = entry
		c.mu.Unlock()
		metrics.ActiveRequests.Inc()
		resumed++

		switch state.Lifecycle {
		case LifecycleCollecting:
			remaining := time.Until(state.Deadline)
			if remaining <= 0 {
				go c.onDeadline(state.RequestID)
			} else {
				entry.timer = time.AfterFunc(remaining, func() { c.onDeadline(state.RequestID) })
			}
		default:
			// Mid-pipeline: rewind to collecting and replay. The verdict is
			// recomputed deterministically from the same records; completed
			// actions short-circuit on their idempotency keys, and claims
			// stranded in flight by the crash are released before dispatch.
			go func(id string) {
				c.mu.Lock()
				e := c.requests[id]
				c.mu.Unlock()
				e.mu.Lock()
				e.state.Lifecycle = LifecycleCollecting
				e.state.Verdict = nil
				c.finalizeLocked(ctx, e, !e.state.complete(), true)
			}(state.RequestID)
		}
	}

	logging.Info().Int("resumed", resumed).Int("terminal", terminal).Msg("coordinator recovery complete")
	return nil
}
