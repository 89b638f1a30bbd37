// SentinelX - Multi-Modal Threat Detection and Response Pipeline
// Copyright 2026 Shivam Gawade (shivamgawade-droid)
// SPDX-License-Identifier: MIT
// https://github.com/shivamgawade-droid/sentinelx

package evidence

import "testing"

func TestThreatLevelOrdering(t *testing.T) {
	ordered := []ThreatLevel{ThreatNone, ThreatLow, ThreatMedium, ThreatHigh, ThreatCritical}
	for i := 1; i < len(ordered); i++ {
		if !ordered[i-1].Less(ordered[i]) {
			t.Errorf("%v should be less than %v", ordered[i-1], ordered[i])
		}
		if !ordered[i].AtLeast(ordered[i-1]) {
			t.Errorf("%v should be at least %v", ordered[i], ordered[i-1])
		}
	}
	if !ThreatHigh.AtLeast(ThreatHigh) {
		t.Error("AtLeast is not reflexive")
	}
	if ThreatLevel("severe").Valid() {
		t.Error("unknown level reported valid")
	}
}

func TestModalityValid(t *testing.T) {
	for _, m := range Modalities {
		if !m.Valid() {
			t.Errorf("modality %v reported invalid", m)
		}
	}
	if Modality("thermal").Valid() {
		t.Error("unknown modality reported valid")
	}
}

func TestRecordValidate(t *testing.T) {
	valid := Record{RequestID: "req-1", Modality: ModalityVideo, Score: 0.5, Confidence: 0.5}

	tests := []struct {
		name    string
		mutate  func(*Record)
		wantErr bool
	}{
		{"valid", func(r *Record) {}, false},
		{"boundary scores", func(r *Record) { r.Score, r.Confidence = 0, 1 }, false},
		{"empty request id", func(r *Record) { r.RequestID = "" }, true},
		{"unknown modality", func(r *Record) { r.Modality = "thermal" }, true},
		{"score above one", func(r *Record) { r.Score = 1.01 }, true},
		{"negative score", func(r *Record) { r.Score = -0.1 }, true},
		{"confidence above one", func(r *Record) { r.Confidence = 1.5 }, true},
		{"negative confidence", func(r *Record) { r.Confidence = -0.5 }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := valid
			tt.mutate(&rec)
			err := rec.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
