// SentinelX - Multi-Modal Threat Detection and Response Pipeline
// Copyright 2026 Shivam Gawade (shivamgawade-droid)
// SPDX-License-Identifier: MIT
// https://github.com/shivamgawade-droid/sentinelx

package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"github.com/shivamgawade-droid/sentinelx/internal/action"
	"github.com/shivamgawade-droid/sentinelx/internal/store"
)

// ContainmentDirective is the durable record a block or quarantine action
// leaves behind. The enforcement plane (gateway, content store) reads
// these directives; writing one is the externally visible effect.
type ContainmentDirective struct {
	RequestID string      `json:"request_id"`
	Kind      action.Kind `json:"kind"`
	Target    string      `json:"target"`
	IssuedAt  time.Time   `json:"issued_at"`
}

// ContainmentEffector persists block and quarantine directives to the
// durable store. One instance serves one kind so the dispatcher's
// per-effector breaker isolates the two containment paths.
type ContainmentEffector struct {
	kind  action.Kind
	store store.Store
}

// NewContainmentEffector creates a containment effector for block or
// quarantine actions.
func NewContainmentEffector(kind action.Kind, st store.Store) *ContainmentEffector {
	return &ContainmentEffector{kind: kind, store: st}
}

// Kind returns the action kind this effector handles.
func (e *ContainmentEffector) Kind() action.Kind {
	return e.kind
}

// Execute writes the containment directive. An empty target is permanently
// invalid; store failures are retryable.
func (e *ContainmentEffector) Execute(ctx context.Context, act action.Action) (action.Outcome, error) {
	if act.Target == "" {
		return action.OutcomeFailedTerminal, fmt.Errorf("containment effector: empty target")
	}

	directive := ContainmentDirective{
		RequestID: act.RequestID,
		Kind:      act.Kind,
		Target:    act.Target,
		IssuedAt:  time.Now().UTC(),
	}
	data, err := json.Marshal(directive)
	if err != nil {
		return action.OutcomeFailedTerminal, fmt.Errorf("containment effector: marshal directive: %w", err)
	}

	key := fmt.Sprintf("%s%s/%s", store.PrefixContainment, act.Kind, act.Target)
	if err := e.store.Put(ctx, key, data); err != nil {
		return action.OutcomeFailedRetryable, fmt.Errorf("containment effector: persist directive: %w", err)
	}
	return action.OutcomeSucceeded, nil
}
