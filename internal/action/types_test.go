// SentinelX - Multi-Modal Threat Detection and Response Pipeline
// Copyright 2026 Shivam Gawade (shivamgawade-droid)
// SPDX-License-Identifier: MIT
// https://github.com/shivamgawade-droid/sentinelx

package action

import "testing"

func TestIdempotencyKeyDeterministic(t *testing.T) {
	a := IdempotencyKey("req-1", KindBlock, "content:req-1")
	b := IdempotencyKey("req-1", KindBlock, "content:req-1")
	if a != b {
		t.Error("same triple produced different keys")
	}
	if len(a) != 64 {
		t.Errorf("key length = %d, want 64 hex chars", len(a))
	}
}

func TestIdempotencyKeyDistinguishesFields(t *testing.T) {
	base := IdempotencyKey("req-1", KindBlock, "content:req-1")

	if IdempotencyKey("req-2", KindBlock, "content:req-1") == base {
		t.Error("request id not part of the key")
	}
	if IdempotencyKey("req-1", KindQuarantine, "content:req-1") == base {
		t.Error("kind not part of the key")
	}
	if IdempotencyKey("req-1", KindBlock, "content:req-2") == base {
		t.Error("target not part of the key")
	}

	// The separator must prevent ambiguous concatenations.
	if IdempotencyKey("req-1x", KindBlock, "t") == IdempotencyKey("req-1", Kind("xblock"), "t") {
		t.Error("field boundaries are ambiguous")
	}
}

func TestNewAction(t *testing.T) {
	act := New("req-1", KindAlert, "channel:security")
	if act.Status != StatusPending {
		t.Errorf("Status = %v, want pending", act.Status)
	}
	if act.IdempotencyKey != IdempotencyKey("req-1", KindAlert, "channel:security") {
		t.Error("idempotency key not derived from the triple")
	}
	if act.AttemptCount != 0 {
		t.Errorf("AttemptCount = %d, want 0", act.AttemptCount)
	}
}

func TestStatusTerminal(t *testing.T) {
	tests := []struct {
		status Status
		want   bool
	}{
		{StatusPending, false},
		{StatusInFlight, false},
		{StatusFailedRetryable, false},
		{StatusSucceeded, true},
		{StatusFailedTerminal, true},
	}
	for _, tt := range tests {
		if got := tt.status.Terminal(); got != tt.want {
			t.Errorf("%v.Terminal() = %v, want %v", tt.status, got, tt.want)
		}
	}
}
