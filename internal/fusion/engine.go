// SentinelX - Multi-Modal Threat Detection and Response Pipeline
// Copyright 2026 Shivam Gawade (shivamgawade-droid)
// SPDX-License-Identifier: MIT
// https://github.com/shivamgawade-droid/sentinelx

// Package fusion combines per-modality evidence records into a single
// verdict. The engine is a pure function of its inputs plus configuration:
// no side effects, deterministic output, and order-independent aggregation,
// which makes fusion safe to replay during coordinator crash recovery.
package fusion

import (
	"errors"
	"fmt"
	"time"

	"github.com/shivamgawade-droid/sentinelx/internal/evidence"
)

// ErrInsufficientEvidence is returned when fusion is attempted with zero
// evidence records. The request moves to the expired state.
var ErrInsufficientEvidence = errors.New("fusion: no evidence records")

// Thresholds are the ordered cut points on the aggregate score that map a
// verdict to a threat level. Each field is the minimum score (inclusive)
// for that level.
type Thresholds struct {
	Low      float64 `json:"low" koanf:"low" validate:"gte=0,lte=1"`
	Medium   float64 `json:"medium" koanf:"medium" validate:"gte=0,lte=1,gtefield=Low"`
	High     float64 `json:"high" koanf:"high" validate:"gte=0,lte=1,gtefield=Medium"`
	Critical float64 `json:"critical" koanf:"critical" validate:"gte=0,lte=1,gtefield=High"`
}

// DefaultThresholds returns the default threat level cut points.
func DefaultThresholds() Thresholds {
	return Thresholds{
		Low:      0.25,
		Medium:   0.50,
		High:     0.75,
		Critical: 0.95,
	}
}

// Config configures the fusion engine.
type Config struct {
	// BaseWeights assigns each modality its base weight. A record's
	// effective weight is base weight multiplied by the analyzer's
	// confidence. Missing modalities default to weight 1.0.
	BaseWeights map[evidence.Modality]float64 `json:"base_weights" koanf:"base_weights"`

	// Thresholds map aggregate score to threat level.
	Thresholds Thresholds `json:"thresholds" koanf:"thresholds"`

	// MinConfidence is the aggregate confidence floor below which the
	// threat level is capped at low regardless of score. Prevents partial,
	// low-quality evidence from triggering high-severity containment.
	MinConfidence float64 `json:"min_confidence" koanf:"min_confidence" validate:"gte=0,lte=1"`
}

// DefaultConfig returns sensible fusion defaults.
func DefaultConfig() Config {
	weights := make(map[evidence.Modality]float64, len(evidence.Modalities))
	for _, m := range evidence.Modalities {
		weights[m] = 1.0
	}
	return Config{
		BaseWeights:   weights,
		Thresholds:    DefaultThresholds(),
		MinConfidence: 0.3,
	}
}

// Validate checks configuration invariants.
func (c Config) Validate() error {
	for m, w := range c.BaseWeights {
		if !m.Valid() {
			return fmt.Errorf("fusion config: unknown modality %q in base_weights", m)
		}
		if w < 0 {
			return fmt.Errorf("fusion config: negative base weight %v for %q", w, m)
		}
	}
	t := c.Thresholds
	if t.Low > t.Medium || t.Medium > t.High || t.High > t.Critical {
		return fmt.Errorf("fusion config: thresholds must be non-decreasing (low=%v medium=%v high=%v critical=%v)",
			t.Low, t.Medium, t.High, t.Critical)
	}
	if t.Critical > 1 || t.Low < 0 {
		return fmt.Errorf("fusion config: thresholds must lie in [0,1]")
	}
	if c.MinConfidence < 0 || c.MinConfidence > 1 {
		return fmt.Errorf("fusion config: min_confidence %v outside [0,1]", c.MinConfidence)
	}
	return nil
}

// Engine fuses evidence records into verdicts. Stateless and safe for
// concurrent use.
type Engine struct {
	cfg Config
}

// NewEngine creates a fusion engine with the given configuration.
func NewEngine(cfg Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if len(cfg.BaseWeights) == 0 {
		cfg.BaseWeights = DefaultConfig().BaseWeights
	}
	return &Engine{cfg: cfg}, nil
}

// baseWeight returns the configured base weight for a modality, defaulting
// to 1.0 when unconfigured.
func (e *Engine) baseWeight(m evidence.Modality) float64 {
	if w, ok := e.cfg.BaseWeights[m]; ok {
		return w
	}
	return 1.0
}

// Fuse combines the given records into a verdict.
//
// The records slice must be in arrival order; the aggregate itself is
// commutative so reordering retried submissions never changes the outcome.
// The expected set determines how much missing evidence depresses the
// aggregate confidence: records that never arrived contribute zero
// effective weight against the full expected base weight.
func (e *Engine) Fuse(requestID string, records []evidence.Record, expected []evidence.Modality, degraded bool, now time.Time) (*evidence.Verdict, error) {
	if len(records) == 0 {
		return nil, ErrInsufficientEvidence
	}

	var weightedSum, effectiveTotal, plainSum float64
	for _, r := range records {
		eff := e.baseWeight(r.Modality) * r.Confidence
		weightedSum += r.Score * eff
		effectiveTotal += eff
		plainSum += r.Score
	}

	var score, confidence float64
	if effectiveTotal > 0 {
		score = weightedSum / effectiveTotal
		confidence = effectiveTotal / e.expectedWeight(expected, records)
		if confidence > 1 {
			confidence = 1
		}
	} else {
		// All confidences were zero: fall back to the unweighted mean and
		// report zero confidence so the level is capped below escalation.
		score = plainSum / float64(len(records))
		confidence = 0
	}

	v := &evidence.Verdict{
		RequestID:           requestID,
		AggregateScore:      score,
		AggregateConfidence: confidence,
		Contributing:        append([]evidence.Record(nil), records...),
		Level:               e.level(score, confidence),
		FinalizedAt:         now.UTC(),
		Degraded:            degraded,
	}
	return v, nil
}

// expectedWeight sums base weights over the expected modality set. When no
// expectation is configured, the modalities actually received serve as the
// expectation so confidence stays meaningful.
func (e *Engine) expectedWeight(expected []evidence.Modality, records []evidence.Record) float64 {
	var total float64
	if len(expected) > 0 {
		for _, m := range expected {
			total += e.baseWeight(m)
		}
	} else {
		for _, r := range records {
			total += e.baseWeight(r.Modality)
		}
	}
	if total <= 0 {
		return 1
	}
	return total
}

// level maps an aggregate score to a threat level, applying the confidence
// floor: below MinConfidence the level is capped at low.
func (e *Engine) level(score, confidence float64) evidence.ThreatLevel {
	t := e.cfg.Thresholds
	var lvl evidence.ThreatLevel
	switch {
	case score >= t.Critical:
		lvl = evidence.ThreatCritical
	case score >= t.High:
		lvl = evidence.ThreatHigh
	case score >= t.Medium:
		lvl = evidence.ThreatMedium
	case score >= t.Low:
		lvl = evidence.ThreatLow
	default:
		lvl = evidence.ThreatNone
	}
	if confidence < e.cfg.MinConfidence && lvl.AtLeast(evidence.ThreatMedium) {
		lvl = evidence.ThreatLow
	}
	return lvl
}
