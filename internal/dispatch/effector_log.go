// SentinelX - Multi-Modal Threat Detection and Response Pipeline
// Copyright 2026 Shivam Gawade (shivamgawade-droid)
// SPDX-License-Identifier: MIT
// https://github.com/shivamgawade-droid/sentinelx

package dispatch

import (
	"context"
	"fmt"

	"github.com/shivamgawade-droid/sentinelx/internal/action"
	"github.com/shivamgawade-droid/sentinelx/internal/audit"
	"github.com/shivamgawade-droid/sentinelx/internal/evidence"
)

// LogEffector writes the decision audit entry for a verdict into the
// security event history. It is deliberately failure-proof: the audit
// trail must exist even when every other effector is down.
type LogEffector struct {
	monitor *audit.Monitor
}

// NewLogEffector creates the audit log effector.
func NewLogEffector(monitor *audit.Monitor) *LogEffector {
	return &LogEffector{monitor: monitor}
}

// Kind returns the action kind this effector handles.
func (e *LogEffector) Kind() action.Kind {
	return action.KindLog
}

// Execute records the audit event. The annotation carries either the
// verdict's threat level (normal audit entries) or the resolution error
// (fail-closed downgrades from containment/notification rules).
func (e *LogEffector) Execute(ctx context.Context, act action.Action) (action.Outcome, error) {
	_ = ctx

	level := evidence.ThreatLevel(act.Annotation)
	description := fmt.Sprintf("decision audit for %s", act.Target)
	if !level.Valid() {
		level = evidence.ThreatNone
		if act.Annotation != "" {
			description = fmt.Sprintf("decision audit for %s: %s", act.Target, act.Annotation)
		}
	}

	e.monitor.Record(audit.Event{
		Type:        audit.EventTypeDecisionAudit,
		Level:       level,
		Source:      "policy",
		RequestID:   act.RequestID,
		Description: description,
	})
	return action.OutcomeSucceeded, nil
}
