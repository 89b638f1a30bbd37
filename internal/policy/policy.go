// SentinelX - Multi-Modal Threat Detection and Response Pipeline
// Copyright 2026 Shivam Gawade (shivamgawade-droid)
// SPDX-License-Identifier: MIT
// https://github.com/shivamgawade-droid/sentinelx

// Package policy maps fused verdicts to ordered action sets. Rules are
// data, not code: an ordered table of (category, minimum level, kind,
// target template) entries validated at load time. Rule evaluation is
// first-match-wins within a category; categories are independent, so one
// verdict may yield containment, notification, and audit actions together.
package policy

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/shivamgawade-droid/sentinelx/internal/action"
	"github.com/shivamgawade-droid/sentinelx/internal/evidence"
)

// Category groups rules into independent failure and trigger domains.
type Category string

const (
	// CategoryContainment covers block and quarantine directives.
	CategoryContainment Category = "containment"

	// CategoryNotification covers alert and notify directives.
	CategoryNotification Category = "notification"

	// CategoryAudit covers the unconditional log directive.
	CategoryAudit Category = "audit"
)

// kindsByCategory constrains which action kinds each category may emit.
var kindsByCategory = map[Category][]action.Kind{
	CategoryContainment:  {action.KindBlock, action.KindQuarantine},
	CategoryNotification: {action.KindAlert, action.KindNotify},
	CategoryAudit:        {action.KindLog},
}

// Rule is one entry in the decision table.
type Rule struct {
	// Category the rule belongs to. Evaluation is first-match-wins within
	// a category, in table order.
	Category Category `json:"category" koanf:"category"`

	// MinLevel is the minimum threat level (inclusive) that triggers the rule.
	MinLevel evidence.ThreatLevel `json:"min_level" koanf:"min_level"`

	// Kind is the action to emit. Must be valid for the category.
	Kind action.Kind `json:"kind" koanf:"kind"`

	// Target is a template resolved against the verdict. Supported
	// placeholders: {request_id}, {level}, {score}.
	Target string `json:"target" koanf:"target"`
}

// Config holds the decision rule table.
type Config struct {
	// Rules is the ordered decision table.
	Rules []Rule `json:"rules" koanf:"rules"`

	// AuditTarget is the target template for the unconditional audit log
	// action emitted for every finalized verdict.
	AuditTarget string `json:"audit_target" koanf:"audit_target"`
}

// DefaultConfig returns the default decision table: block at high,
// quarantine at medium, alert at high, notify at low, audit always.
func DefaultConfig() Config {
	return Config{
		Rules: []Rule{
			{Category: CategoryContainment, MinLevel: evidence.ThreatHigh, Kind: action.KindBlock, Target: "content:{request_id}"},
			{Category: CategoryContainment, MinLevel: evidence.ThreatMedium, Kind: action.KindQuarantine, Target: "content:{request_id}"},
			{Category: CategoryNotification, MinLevel: evidence.ThreatHigh, Kind: action.KindAlert, Target: "channel:security"},
			{Category: CategoryNotification, MinLevel: evidence.ThreatLow, Kind: action.KindNotify, Target: "channel:ops"},
		},
		AuditTarget: "request:{request_id}",
	}
}

// Policy evaluates the decision table against verdicts. Stateless and safe
// for concurrent use.
type Policy struct {
	cfg Config
}

// New creates a policy from the given rule table, validating every rule.
func New(cfg Config) (*Policy, error) {
	if cfg.AuditTarget == "" {
		cfg.AuditTarget = "request:{request_id}"
	}
	for i, r := range cfg.Rules {
		if err := validateRule(r); err != nil {
			return nil, fmt.Errorf("policy rule %d: %w", i, err)
		}
	}
	return &Policy{cfg: cfg}, nil
}

// validateRule checks a single table entry.
func validateRule(r Rule) error {
	allowed, ok := kindsByCategory[r.Category]
	if !ok {
		return fmt.Errorf("unknown category %q", r.Category)
	}
	if !r.MinLevel.Valid() {
		return fmt.Errorf("unknown threat level %q", r.MinLevel)
	}
	for _, k := range allowed {
		if r.Kind == k {
			if r.Target == "" {
				return fmt.Errorf("empty target for kind %q", r.Kind)
			}
			return nil
		}
	}
	return fmt.Errorf("kind %q not permitted in category %q", r.Kind, r.Category)
}

// Decide maps a verdict to its ordered action set.
//
// The audit log action is always present, so no finalized verdict is ever
// silently dropped. A containment or notification rule whose target cannot
// be resolved fails closed: it is converted to a log action carrying the
// resolution error rather than discarded.
func (p *Policy) Decide(v *evidence.Verdict) []action.Action {
	actions := make([]action.Action, 0, 3)

	// Audit first so the trail exists even if later rules misfire. The
	// audit target falls back to the raw request id on resolution failure;
	// the audit entry itself must never be lost.
	auditTarget, err := resolveTarget(p.cfg.AuditTarget, v)
	if err != nil {
		auditTarget = "request:" + v.RequestID
	}
	audit := action.New(v.RequestID, action.KindLog, auditTarget)
	audit.Annotation = string(v.Level)
	actions = append(actions, audit)

	for _, cat := range []Category{CategoryContainment, CategoryNotification} {
		if act, ok := p.firstMatch(cat, v); ok {
			actions = append(actions, act)
		}
	}
	return actions
}

// firstMatch evaluates one category's rules in order and returns the action
// for the first rule the verdict satisfies.
func (p *Policy) firstMatch(cat Category, v *evidence.Verdict) (action.Action, bool) {
	for _, r := range p.cfg.Rules {
		if r.Category != cat {
			continue
		}
		if !v.Level.AtLeast(r.MinLevel) {
			continue
		}
		target, err := resolveTarget(r.Target, v)
		if err != nil {
			// Fail closed: keep the decision visible as an annotated log
			// entry instead of dropping it.
			fallback := action.New(v.RequestID, action.KindLog, "unresolved:"+string(r.Kind))
			fallback.Annotation = fmt.Sprintf("target %q unresolvable: %v", r.Target, err)
			return fallback, true
		}
		return action.New(v.RequestID, r.Kind, target), true
	}
	return action.Action{}, false
}

// resolveTarget substitutes verdict fields into a target template.
func resolveTarget(template string, v *evidence.Verdict) (string, error) {
	out := template
	out = strings.ReplaceAll(out, "{request_id}", v.RequestID)
	out = strings.ReplaceAll(out, "{level}", string(v.Level))
	out = strings.ReplaceAll(out, "{score}", strconv.FormatFloat(v.AggregateScore, 'f', 4, 64))
	if i := strings.IndexByte(out, '{'); i >= 0 {
		if j := strings.IndexByte(out[i:], '}'); j >= 0 {
			return "", fmt.Errorf("unknown placeholder %s", out[i:i+j+1])
		}
	}
	if out == "" {
		return "", fmt.Errorf("resolved target is empty")
	}
	return out, nil
}
