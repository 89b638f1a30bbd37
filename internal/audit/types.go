// SentinelX - Multi-Modal Threat Detection and Response Pipeline
// Copyright 2026 Shivam Gawade (shivamgawade-droid)
// SPDX-License-Identifier: MIT
// https://github.com/shivamgawade-droid/sentinelx

// Package audit records security events for every finalized request and
// dispatched action. It keeps a bounded in-memory window for fast queries
// and drains asynchronously to the durable store for forensics.
package audit

import (
	"time"

	"github.com/goccy/go-json"

	"github.com/shivamgawade-droid/sentinelx/internal/evidence"
)

// EventType categorizes audit events.
type EventType string

const (
	// Request lifecycle events
	EventTypeRequestOpened    EventType = "request.opened"
	EventTypeRequestFinalized EventType = "request.finalized"
	EventTypeRequestExpired   EventType = "request.expired"
	EventTypeRequestCancelled EventType = "request.cancelled"

	// Evidence events
	EventTypeEvidenceReceived   EventType = "evidence.received"
	EventTypeEvidenceSuperseded EventType = "evidence.superseded"
	EventTypeEvidenceRejected   EventType = "evidence.rejected"

	// Decision events
	EventTypeDecisionAudit EventType = "decision.audit"

	// Action events
	EventTypeActionSucceeded EventType = "action.succeeded"
	EventTypeActionFailed    EventType = "action.failed"
	EventTypeActionRetried   EventType = "action.retried"
)

// Event is one entry in the security event history.
type Event struct {
	// ID is a unique identifier for this event.
	ID string `json:"event_id"`

	// Timestamp when the event occurred.
	Timestamp time.Time `json:"timestamp"`

	// Level is the threat level associated with the event.
	Level evidence.ThreatLevel `json:"threat_level"`

	// Type categorizes the event.
	Type EventType `json:"event_type"`

	// Source names the component that emitted the event.
	Source string `json:"source"`

	// RequestID links the event to a pipeline request.
	RequestID string `json:"request_id,omitempty"`

	// Description provides human-readable detail.
	Description string `json:"description"`

	// Metadata contains event-specific details.
	Metadata json.RawMessage `json:"details,omitempty"`
}

// Filter selects events from the history. Zero-value fields match
// everything.
type Filter struct {
	// MinLevel keeps events at or above this threat level.
	MinLevel evidence.ThreatLevel `json:"min_level,omitempty"`

	// Type keeps events of exactly this type.
	Type EventType `json:"event_type,omitempty"`

	// Source keeps events from this component (case-insensitive).
	Source string `json:"source,omitempty"`

	// Start keeps events at or after this time.
	Start *time.Time `json:"start_time,omitempty"`

	// End keeps events at or before this time.
	End *time.Time `json:"end_time,omitempty"`
}

// Summary aggregates the event history.
type Summary struct {
	TotalEvents    int                          `json:"total_events"`
	EventsByType   map[EventType]int            `json:"events_by_type"`
	EventsBySource map[string]int               `json:"events_by_source"`
	ByLevel        map[evidence.ThreatLevel]int `json:"threat_summary"`
	CriticalEvents int                          `json:"critical_events"`
	LatestEvent    *Event                       `json:"latest_event,omitempty"`
}

// Status is a point-in-time snapshot of the monitor.
type Status struct {
	Name            string                       `json:"name"`
	TotalEvents     int                          `json:"total_events"`
	MaxCapacity     int                          `json:"max_capacity"`
	CapacityUsedPct float64                      `json:"capacity_usage_percent"`
	ThreatSummary   map[evidence.ThreatLevel]int `json:"threat_summary"`
	Timestamp       time.Time                    `json:"timestamp"`
}
