// SentinelX - Multi-Modal Threat Detection and Response Pipeline
// Copyright 2026 Shivam Gawade (shivamgawade-droid)
// SPDX-License-Identifier: MIT
// https://github.com/shivamgawade-droid/sentinelx

package fusion

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/shivamgawade-droid/sentinelx/internal/evidence"
)

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func rec(modality evidence.Modality, score, confidence float64) evidence.Record {
	return evidence.Record{
		RequestID:  "req-1",
		Modality:   modality,
		Score:      score,
		Confidence: confidence,
		ProducedAt: time.Now().UTC(),
	}
}

func newTestEngine(t *testing.T, cfg Config) *Engine {
	t.Helper()
	engine, err := NewEngine(cfg)
	if err != nil {
		t.Fatalf("NewEngine() error = %v", err)
	}
	return engine
}

func TestFuseNoRecords(t *testing.T) {
	engine := newTestEngine(t, DefaultConfig())

	_, err := engine.Fuse("req-1", nil, evidence.Modalities, false, time.Now())
	if !errors.Is(err, ErrInsufficientEvidence) {
		t.Errorf("Fuse() error = %v, want ErrInsufficientEvidence", err)
	}
}

func TestFuseSingleModalityMissingExpected(t *testing.T) {
	// A confident video-only submission against a three-modality
	// expectation: the score passes through, but the missing audio and
	// text evidence depresses aggregate confidence.
	engine := newTestEngine(t, DefaultConfig())
	expected := []evidence.Modality{evidence.ModalityVideo, evidence.ModalityAudio, evidence.ModalityText}

	v, err := engine.Fuse("req-1", []evidence.Record{rec(evidence.ModalityVideo, 0.92, 0.98)}, expected, false, time.Now())
	if err != nil {
		t.Fatalf("Fuse() error = %v", err)
	}

	if !almostEqual(v.AggregateScore, 0.92) {
		t.Errorf("AggregateScore = %v, want 0.92", v.AggregateScore)
	}
	wantConfidence := 0.98 / 3.0
	if !almostEqual(v.AggregateConfidence, wantConfidence) {
		t.Errorf("AggregateConfidence = %v, want %v", v.AggregateConfidence, wantConfidence)
	}
	if v.Level != evidence.ThreatHigh {
		t.Errorf("Level = %v, want high", v.Level)
	}
}

func TestFuseOrderIndependence(t *testing.T) {
	engine := newTestEngine(t, DefaultConfig())
	records := []evidence.Record{
		rec(evidence.ModalityVideo, 0.80, 0.90),
		rec(evidence.ModalityAudio, 0.40, 0.70),
		rec(evidence.ModalityText, 0.60, 0.50),
	}
	reversed := []evidence.Record{records[2], records[1], records[0]}
	now := time.Now()

	forward, err := engine.Fuse("req-1", records, evidence.Modalities, false, now)
	if err != nil {
		t.Fatalf("Fuse(forward) error = %v", err)
	}
	backward, err := engine.Fuse("req-1", reversed, evidence.Modalities, false, now)
	if err != nil {
		t.Fatalf("Fuse(backward) error = %v", err)
	}

	if !almostEqual(forward.AggregateScore, backward.AggregateScore) {
		t.Errorf("score differs by order: %v vs %v", forward.AggregateScore, backward.AggregateScore)
	}
	if !almostEqual(forward.AggregateConfidence, backward.AggregateConfidence) {
		t.Errorf("confidence differs by order: %v vs %v", forward.AggregateConfidence, backward.AggregateConfidence)
	}
	if forward.Level != backward.Level {
		t.Errorf("level differs by order: %v vs %v", forward.Level, backward.Level)
	}
}

func TestFuseWeightsByConfidence(t *testing.T) {
	// The confident analyzer should dominate the aggregate.
	engine := newTestEngine(t, DefaultConfig())
	records := []evidence.Record{
		rec(evidence.ModalityVideo, 1.0, 0.9),
		rec(evidence.ModalityAudio, 0.0, 0.1),
	}

	v, err := engine.Fuse("req-1", records, nil, false, time.Now())
	if err != nil {
		t.Fatalf("Fuse() error = %v", err)
	}
	want := 0.9 / 1.0 // (1.0*0.9 + 0.0*0.1) / (0.9 + 0.1)
	if !almostEqual(v.AggregateScore, want) {
		t.Errorf("AggregateScore = %v, want %v", v.AggregateScore, want)
	}
}

func TestFuseZeroConfidenceFallback(t *testing.T) {
	engine := newTestEngine(t, DefaultConfig())
	records := []evidence.Record{
		rec(evidence.ModalityVideo, 0.8, 0),
		rec(evidence.ModalityAudio, 0.6, 0),
	}

	v, err := engine.Fuse("req-1", records, evidence.Modalities, false, time.Now())
	if err != nil {
		t.Fatalf("Fuse() error = %v", err)
	}

	if !almostEqual(v.AggregateScore, 0.7) {
		t.Errorf("AggregateScore = %v, want unweighted mean 0.7", v.AggregateScore)
	}
	if v.AggregateConfidence != 0 {
		t.Errorf("AggregateConfidence = %v, want 0", v.AggregateConfidence)
	}
	// Zero confidence caps the level below escalation.
	if v.Level != evidence.ThreatLow {
		t.Errorf("Level = %v, want low", v.Level)
	}
}

func TestFuseConfidenceFloorCapsLevel(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinConfidence = 0.5
	engine := newTestEngine(t, cfg)

	// High score, but only one weak record out of four expected.
	records := []evidence.Record{rec(evidence.ModalityVideo, 0.97, 0.8)}

	v, err := engine.Fuse("req-1", records, evidence.Modalities, false, time.Now())
	if err != nil {
		t.Fatalf("Fuse() error = %v", err)
	}
	if v.AggregateConfidence >= cfg.MinConfidence {
		t.Fatalf("AggregateConfidence = %v, expected below floor %v", v.AggregateConfidence, cfg.MinConfidence)
	}
	if v.Level != evidence.ThreatLow {
		t.Errorf("Level = %v, want low (capped by confidence floor)", v.Level)
	}
}

func TestFusePartialEvidenceLowerConfidence(t *testing.T) {
	engine := newTestEngine(t, DefaultConfig())
	full := []evidence.Record{
		rec(evidence.ModalityVideo, 0.6, 0.9),
		rec(evidence.ModalityAudio, 0.6, 0.9),
	}
	partial := full[:1]
	expected := []evidence.Modality{evidence.ModalityVideo, evidence.ModalityAudio}

	fullVerdict, err := engine.Fuse("req-1", full, expected, false, time.Now())
	if err != nil {
		t.Fatalf("Fuse(full) error = %v", err)
	}
	partialVerdict, err := engine.Fuse("req-1", partial, expected, true, time.Now())
	if err != nil {
		t.Fatalf("Fuse(partial) error = %v", err)
	}

	if partialVerdict.AggregateConfidence > fullVerdict.AggregateConfidence {
		t.Errorf("partial confidence %v exceeds full confidence %v",
			partialVerdict.AggregateConfidence, fullVerdict.AggregateConfidence)
	}
	if !partialVerdict.Degraded {
		t.Error("partial verdict not marked degraded")
	}
	if fullVerdict.Degraded {
		t.Error("full verdict incorrectly marked degraded")
	}
}

func TestFuseConfidenceCappedAtOne(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BaseWeights[evidence.ModalityVideo] = 3.0
	engine := newTestEngine(t, cfg)

	// Expectation covers only audio, yet a heavyweight video record arrives.
	v, err := engine.Fuse("req-1",
		[]evidence.Record{rec(evidence.ModalityVideo, 0.5, 1.0)},
		[]evidence.Modality{evidence.ModalityAudio}, false, time.Now())
	if err != nil {
		t.Fatalf("Fuse() error = %v", err)
	}
	if v.AggregateConfidence != 1 {
		t.Errorf("AggregateConfidence = %v, want capped at 1", v.AggregateConfidence)
	}
}

func TestLevelThresholds(t *testing.T) {
	engine := newTestEngine(t, DefaultConfig())

	tests := []struct {
		name  string
		score float64
		want  evidence.ThreatLevel
	}{
		{"below low", 0.10, evidence.ThreatNone},
		{"at low", 0.25, evidence.ThreatLow},
		{"at medium", 0.50, evidence.ThreatMedium},
		{"at high", 0.75, evidence.ThreatHigh},
		{"at critical", 0.95, evidence.ThreatCritical},
		{"max", 1.00, evidence.ThreatCritical},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := engine.level(tt.score, 1.0)
			if got != tt.want {
				t.Errorf("level(%v) = %v, want %v", tt.score, got, tt.want)
			}
		})
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(c *Config) {}, false},
		{"unknown modality", func(c *Config) { c.BaseWeights["thermal"] = 1.0 }, true},
		{"negative weight", func(c *Config) { c.BaseWeights[evidence.ModalityAudio] = -0.5 }, true},
		{"decreasing thresholds", func(c *Config) { c.Thresholds.Medium = 0.1 }, true},
		{"threshold above one", func(c *Config) {
			c.Thresholds.Critical = 1.5
		}, true},
		{"min confidence above one", func(c *Config) { c.MinConfidence = 1.1 }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
