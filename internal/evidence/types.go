// SentinelX - Multi-Modal Threat Detection and Response Pipeline
// Copyright 2026 Shivam Gawade (shivamgawade-droid)
// SPDX-License-Identifier: MIT
// https://github.com/shivamgawade-droid/sentinelx

// Package evidence defines the data model shared by the fusion pipeline:
// per-analyzer evidence records, fused verdicts, and the ordered threat
// level scale. Records are immutable once created; the coordinator rejects
// or supersedes duplicates but never merges them.
package evidence

import (
	"fmt"
	"time"
)

// Modality identifies which analyzer family produced an evidence record.
// The set is closed so fusion logic can be exhaustively checked.
type Modality string

const (
	ModalityVideo    Modality = "video"
	ModalityAudio    Modality = "audio"
	ModalityText     Modality = "text"
	ModalityMetadata Modality = "metadata"
)

// Modalities lists all known modalities in a stable order.
var Modalities = []Modality{ModalityVideo, ModalityAudio, ModalityText, ModalityMetadata}

// Valid reports whether the modality is one of the known kinds.
func (m Modality) Valid() bool {
	switch m {
	case ModalityVideo, ModalityAudio, ModalityText, ModalityMetadata:
		return true
	}
	return false
}

// ThreatLevel is the coarse severity derived from a fused verdict.
type ThreatLevel string

const (
	ThreatNone     ThreatLevel = "none"
	ThreatLow      ThreatLevel = "low"
	ThreatMedium   ThreatLevel = "medium"
	ThreatHigh     ThreatLevel = "high"
	ThreatCritical ThreatLevel = "critical"
)

// threatRank orders threat levels from least to most severe.
var threatRank = map[ThreatLevel]int{
	ThreatNone:     0,
	ThreatLow:      1,
	ThreatMedium:   2,
	ThreatHigh:     3,
	ThreatCritical: 4,
}

// Valid reports whether the threat level is a known value.
func (t ThreatLevel) Valid() bool {
	_, ok := threatRank[t]
	return ok
}

// Less reports whether t is strictly less severe than other.
func (t ThreatLevel) Less(other ThreatLevel) bool {
	return threatRank[t] < threatRank[other]
}

// AtLeast reports whether t is at least as severe as other.
func (t ThreatLevel) AtLeast(other ThreatLevel) bool {
	return threatRank[t] >= threatRank[other]
}

// Record is one analyzer's scored opinion about one request.
// A request receives at most one record per modality.
type Record struct {
	// RequestID is the opaque identifier of the request this record belongs to.
	RequestID string `json:"request_id"`

	// Modality identifies the producing analyzer family.
	Modality Modality `json:"modality"`

	// Score is the analyzer's threat estimate in [0,1].
	Score float64 `json:"score"`

	// Confidence is the analyzer's certainty in its own score, in [0,1].
	Confidence float64 `json:"confidence"`

	// Tags carry explanatory markers such as "face_swap" or "sync_mismatch".
	// They are informational only and never drive decisions.
	Tags []string `json:"evidence_tags,omitempty"`

	// ProducedAt is when the analyzer emitted the record.
	ProducedAt time.Time `json:"produced_at"`
}

// Validate checks that the record is structurally sound.
func (r *Record) Validate() error {
	if r.RequestID == "" {
		return fmt.Errorf("evidence record: request_id is empty")
	}
	if !r.Modality.Valid() {
		return fmt.Errorf("evidence record: unknown modality %q", r.Modality)
	}
	if r.Score < 0 || r.Score > 1 {
		return fmt.Errorf("evidence record: score %v outside [0,1]", r.Score)
	}
	if r.Confidence < 0 || r.Confidence > 1 {
		return fmt.Errorf("evidence record: confidence %v outside [0,1]", r.Confidence)
	}
	return nil
}

// Verdict is the fused, finalized assessment for one request.
// A verdict is produced at most once per request and is immutable after
// finalization.
type Verdict struct {
	RequestID string `json:"request_id"`

	// AggregateScore is the confidence-weighted fused score in [0,1].
	AggregateScore float64 `json:"aggregate_score"`

	// AggregateConfidence captures both analyzer certainty and how much of
	// the expected evidence set actually arrived, in [0,1].
	AggregateConfidence float64 `json:"aggregate_confidence"`

	// Contributing lists the records used in fusion, in arrival order.
	Contributing []Record `json:"contributing_evidence"`

	// Level is the threat level derived from score and confidence.
	Level ThreatLevel `json:"threat_level"`

	// FinalizedAt is when fusion completed.
	FinalizedAt time.Time `json:"finalized_at"`

	// Degraded marks a verdict fused from a partial evidence set after the
	// collection deadline elapsed.
	Degraded bool `json:"degraded,omitempty"`
}
