// SentinelX - Multi-Modal Threat Detection and Response Pipeline
// Copyright 2026 Shivam Gawade (shivamgawade-droid)
// SPDX-License-Identifier: MIT
// https://github.com/shivamgawade-droid/sentinelx

package coordinator

import (
	"time"

	"github.com/shivamgawade-droid/sentinelx/internal/action"
	"github.com/shivamgawade-droid/sentinelx/internal/evidence"
)

// Lifecycle is the request state machine position.
//
// collecting → fusing → deciding → dispatching → done, with expired
// reachable from collecting when the deadline elapses with no usable
// evidence, and cancelled reachable from collecting on external request.
type Lifecycle string

const (
	LifecycleCollecting  Lifecycle = "collecting"
	LifecycleFusing      Lifecycle = "fusing"
	LifecycleDeciding    Lifecycle = "deciding"
	LifecycleDispatching Lifecycle = "dispatching"
	LifecycleDone        Lifecycle = "done"
	LifecycleExpired     Lifecycle = "expired"
	LifecycleCancelled   Lifecycle = "cancelled"
)

// Terminal reports whether the lifecycle state is terminal.
func (l Lifecycle) Terminal() bool {
	return l == LifecycleDone || l == LifecycleExpired || l == LifecycleCancelled
}

// State is the coordinator-owned record of one request. The coordinator
// is the only writer; callers receive copies.
type State struct {
	// RequestID is the opaque, stable request identifier.
	RequestID string `json:"request_id"`

	// RequestType selects the expected modality set.
	RequestType string `json:"request_type"`

	// Expected is the modality set that completes collection.
	Expected []evidence.Modality `json:"expected_modalities"`

	// Records holds accepted evidence in arrival order. Supersession
	// replaces a record in place, preserving its arrival position.
	Records []evidence.Record `json:"received"`

	// Deadline is when collection gives up waiting for missing modalities.
	Deadline time.Time `json:"deadline"`

	// Lifecycle is the state machine position.
	Lifecycle Lifecycle `json:"lifecycle"`

	// Verdict is set once fusion completes; immutable afterwards.
	Verdict *evidence.Verdict `json:"verdict,omitempty"`

	// Actions holds the dispatched action records once dispatch completes.
	Actions []action.Action `json:"actions,omitempty"`

	// CreatedAt is when the request was opened.
	CreatedAt time.Time `json:"created_at"`
}

// has reports whether a modality has already been received.
func (s *State) has(m evidence.Modality) (int, bool) {
	for i := range s.Records {
		if s.Records[i].Modality == m {
			return i, true
		}
	}
	return -1, false
}

// complete reports whether every expected modality has arrived.
func (s *State) complete() bool {
	for _, m := range s.Expected {
		if _, ok := s.has(m); !ok {
			return false
		}
	}
	return true
}

// clone returns a deep copy safe to hand to callers.
func (s *State) clone() State {
	out := *s
	out.Expected = append([]evidence.Modality(nil), s.Expected...)
	out.Records = append([]evidence.Record(nil), s.Records...)
	out.Actions = append([]action.Action(nil), s.Actions...)
	if s.Verdict != nil {
		v := *s.Verdict
		v.Contributing = append([]evidence.Record(nil), s.Verdict.Contributing...)
		out.Verdict = &v
	}
	return out
}

// FailedActions returns the actions that did not succeed. Terminal
// failures and actions stranded in a non-terminal status are both
// surfaced; partial success is never masked.
func (s *State) FailedActions() []action.Action {
	var failed []action.Action
	for _, a := range s.Actions {
		if a.Status != action.StatusSucceeded {
			failed = append(failed, a)
		}
	}
	return failed
}
