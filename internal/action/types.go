// SentinelX - Multi-Modal Threat Detection and Response Pipeline
// Copyright 2026 Shivam Gawade (shivamgawade-droid)
// SPDX-License-Identifier: MIT
// https://github.com/shivamgawade-droid/sentinelx

// Package action defines the directives emitted by the decision policy and
// the contracts the dispatcher uses to execute them. The decision policy
// relinquishes ownership of an action once emitted; from then on the
// dispatcher is the only writer.
package action

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Kind enumerates the externally visible effects an action can produce.
type Kind string

const (
	KindBlock      Kind = "block"
	KindAlert      Kind = "alert"
	KindQuarantine Kind = "quarantine"
	KindLog        Kind = "log"
	KindNotify     Kind = "notify"
)

// Valid reports whether the kind is a known value.
func (k Kind) Valid() bool {
	switch k {
	case KindBlock, KindAlert, KindQuarantine, KindLog, KindNotify:
		return true
	}
	return false
}

// Status tracks an action through the dispatcher lifecycle.
type Status string

const (
	StatusPending         Status = "pending"
	StatusInFlight        Status = "in_flight"
	StatusSucceeded       Status = "succeeded"
	StatusFailedRetryable Status = "failed_retryable"
	StatusFailedTerminal  Status = "failed_terminal"
)

// Terminal reports whether the status is a terminal state.
func (s Status) Terminal() bool {
	return s == StatusSucceeded || s == StatusFailedTerminal
}

// Outcome is the tri-state result an effector reports for one execution
// attempt. The dispatcher depends only on this contract; transport details
// (HTTP, SMTP, store writes) are the effector's concern.
type Outcome string

const (
	OutcomeSucceeded       Outcome = "succeeded"
	OutcomeFailedRetryable Outcome = "failed_retryable"
	OutcomeFailedTerminal  Outcome = "failed_terminal"
)

// Action is a directive to produce one externally visible effect.
type Action struct {
	// RequestID is the request the action belongs to.
	RequestID string `json:"request_id"`

	// Kind selects the effector that executes the action.
	Kind Kind `json:"kind"`

	// Target identifies the object acted upon (content id, user id, channel).
	Target string `json:"target"`

	// IdempotencyKey is a deterministic function of (request_id, kind,
	// target). Re-dispatch of the same logical action never double-executes
	// the external effect.
	IdempotencyKey string `json:"idempotency_key"`

	// Annotation carries supplementary context, e.g. the error text when an
	// unresolvable containment action was downgraded to a log entry.
	Annotation string `json:"annotation,omitempty"`

	// AttemptCount is the number of execution attempts so far.
	AttemptCount int `json:"attempt_count"`

	// Status is the current dispatcher lifecycle state.
	Status Status `json:"status"`

	// LastError is the error text from the most recent failed attempt.
	LastError string `json:"last_error,omitempty"`

	// CompletedAt is set when the action reaches a terminal status.
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// New creates a pending action with its idempotency key derived from the
// identifying triple.
func New(requestID string, kind Kind, target string) Action {
	return Action{
		RequestID:      requestID,
		Kind:           kind,
		Target:         target,
		IdempotencyKey: IdempotencyKey(requestID, kind, target),
		Status:         StatusPending,
	}
}

// IdempotencyKey derives the deterministic key for an action triple.
// SHA-256 keeps the key fixed-length and collision-resistant even when
// targets contain separator characters.
func IdempotencyKey(requestID string, kind Kind, target string) string {
	h := sha256.New()
	h.Write([]byte(requestID))
	h.Write([]byte{0})
	h.Write([]byte(kind))
	h.Write([]byte{0})
	h.Write([]byte(target))
	return hex.EncodeToString(h.Sum(nil))
}

// Effector performs the external effect for one action kind.
type Effector interface {
	// Kind returns the action kind this effector handles.
	Kind() Kind

	// Execute performs the effect once and reports the tri-state outcome.
	// A non-nil error accompanies the failed outcomes with detail.
	Execute(ctx context.Context, act Action) (Outcome, error)
}
