// SentinelX - Multi-Modal Threat Detection and Response Pipeline
// Copyright 2026 Shivam Gawade (shivamgawade-droid)
// SPDX-License-Identifier: MIT
// https://github.com/shivamgawade-droid/sentinelx

package api

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/shivamgawade-droid/sentinelx/internal/action"
	"github.com/shivamgawade-droid/sentinelx/internal/audit"
	"github.com/shivamgawade-droid/sentinelx/internal/coordinator"
	"github.com/shivamgawade-droid/sentinelx/internal/dispatch"
	"github.com/shivamgawade-droid/sentinelx/internal/evidence"
	"github.com/shivamgawade-droid/sentinelx/internal/fusion"
	"github.com/shivamgawade-droid/sentinelx/internal/policy"
	"github.com/shivamgawade-droid/sentinelx/internal/store"
)

func newTestServer(t *testing.T) (*Server, *audit.Monitor) {
	t.Helper()

	engine, err := fusion.NewEngine(fusion.DefaultConfig())
	if err != nil {
		t.Fatalf("fusion.NewEngine() error = %v", err)
	}
	pol, err := policy.New(policy.DefaultConfig())
	if err != nil {
		t.Fatalf("policy.New() error = %v", err)
	}

	st := store.NewMemoryStore()
	monitor := audit.NewMonitor(audit.DefaultConfig(), nil)

	dispCfg := dispatch.DefaultConfig()
	dispCfg.BackoffBase = time.Millisecond
	disp := dispatch.NewDispatcher(dispCfg, st, monitor)
	disp.Register(dispatch.NewLogEffector(monitor))
	disp.Register(dispatch.NewContainmentEffector(action.KindBlock, st))
	disp.Register(dispatch.NewContainmentEffector(action.KindQuarantine, st))

	coord := coordinator.New(coordinator.DefaultConfig(), engine, pol, disp, st, monitor)
	return NewServer(Options{Port: 0}, coord, monitor), monitor
}

func postJSON(t *testing.T, handler http.Handler, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func get(handler http.Handler, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestOpenRequestEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)
	handler := srv.Routes()

	rec := postJSON(t, handler, "/api/v1/requests", map[string]interface{}{
		"request_id":   "req-1",
		"request_type": "message",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %s", rec.Code, rec.Body.String())
	}

	var state coordinator.State
	if err := json.Unmarshal(rec.Body.Bytes(), &state); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if state.RequestID != "req-1" || state.Lifecycle != coordinator.LifecycleCollecting {
		t.Errorf("state = %+v", state)
	}
	if len(state.Expected) != 2 {
		t.Errorf("expected modalities = %v, want text+metadata", state.Expected)
	}
}

func TestSubmitEvidenceFlow(t *testing.T) {
	srv, _ := newTestServer(t)
	handler := srv.Routes()

	postJSON(t, handler, "/api/v1/requests", map[string]string{"request_id": "req-1", "request_type": "message"})

	rec := postJSON(t, handler, "/api/v1/evidence", map[string]interface{}{
		"request_id": "req-1",
		"modality":   "text",
		"score":      0.85,
		"confidence": 0.95,
	})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202: %s", rec.Code, rec.Body.String())
	}

	// Verdict still pending.
	rec = get(handler, "/api/v1/requests/req-1/verdict")
	if rec.Code != http.StatusOK {
		t.Fatalf("verdict status = %d: %s", rec.Code, rec.Body.String())
	}
	var pending map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &pending); err != nil {
		t.Fatalf("unmarshal pending: %v", err)
	}
	if pending["status"] != "pending" {
		t.Errorf("status = %q, want pending", pending["status"])
	}

	// Completing the set finalizes inline.
	rec = postJSON(t, handler, "/api/v1/evidence", map[string]interface{}{
		"request_id": "req-1",
		"modality":   "metadata",
		"score":      0.85,
		"confidence": 0.95,
	})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202: %s", rec.Code, rec.Body.String())
	}

	rec = get(handler, "/api/v1/requests/req-1/verdict")
	var result coordinator.VerdictResult
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("unmarshal verdict: %v", err)
	}
	if result.Verdict == nil {
		t.Fatal("verdict missing after full evidence set")
	}
	if result.Verdict.Level != evidence.ThreatHigh {
		t.Errorf("level = %v, want high", result.Verdict.Level)
	}
}

func TestSubmitEvidenceValidation(t *testing.T) {
	srv, _ := newTestServer(t)
	handler := srv.Routes()

	rec := postJSON(t, handler, "/api/v1/evidence", map[string]interface{}{
		"request_id": "req-1",
		"modality":   "thermal",
		"score":      0.5,
		"confidence": 0.5,
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400 for unknown modality", rec.Code)
	}

	rec = postJSON(t, handler, "/api/v1/evidence", map[string]interface{}{
		"request_id": "req-1",
		"modality":   "text",
		"score":      1.5,
		"confidence": 0.5,
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400 for out-of-range score", rec.Code)
	}
}

func TestSubmitEvidenceAfterFinalizationConflict(t *testing.T) {
	srv, _ := newTestServer(t)
	handler := srv.Routes()

	postJSON(t, handler, "/api/v1/requests", map[string]string{"request_id": "req-1", "request_type": "message"})
	for _, m := range []string{"text", "metadata"} {
		postJSON(t, handler, "/api/v1/evidence", map[string]interface{}{
			"request_id": "req-1", "modality": m, "score": 0.5, "confidence": 0.9,
		})
	}

	rec := postJSON(t, handler, "/api/v1/evidence", map[string]interface{}{
		"request_id": "req-1", "modality": "text", "score": 0.5, "confidence": 0.9,
	})
	if rec.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409 after finalization", rec.Code)
	}
}

func TestCancelEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)
	handler := srv.Routes()

	postJSON(t, handler, "/api/v1/requests", map[string]string{"request_id": "req-1", "request_type": "media"})

	rec := postJSON(t, handler, "/api/v1/requests/req-1/cancel", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("cancel status = %d: %s", rec.Code, rec.Body.String())
	}

	// Cancelling twice conflicts; unknown ids 404.
	rec = postJSON(t, handler, "/api/v1/requests/req-1/cancel", nil)
	if rec.Code != http.StatusConflict {
		t.Errorf("second cancel status = %d, want 409", rec.Code)
	}
	rec = postJSON(t, handler, "/api/v1/requests/nope/cancel", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown cancel status = %d, want 404", rec.Code)
	}
}

func TestStatusEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)
	handler := srv.Routes()

	postJSON(t, handler, "/api/v1/requests", map[string]string{"request_id": "req-1", "request_type": "media"})

	rec := get(handler, "/api/v1/requests/req-1/status")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if body["lifecycle"] != "collecting" {
		t.Errorf("lifecycle = %q, want collecting", body["lifecycle"])
	}

	if rec := get(handler, "/api/v1/requests/nope/status"); rec.Code != http.StatusNotFound {
		t.Errorf("unknown status = %d, want 404", rec.Code)
	}
}

func TestVerdictUnknownRequest(t *testing.T) {
	srv, _ := newTestServer(t)
	if rec := get(srv.Routes(), "/api/v1/requests/nope/verdict"); rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestAuditEndpoints(t *testing.T) {
	srv, monitor := newTestServer(t)
	handler := srv.Routes()

	monitor.Record(audit.Event{Type: audit.EventTypeRequestFinalized, Source: "coordinator", Level: evidence.ThreatHigh, Description: "finalized"})
	monitor.Record(audit.Event{Type: audit.EventTypeActionFailed, Source: "dispatch", Level: evidence.ThreatLow, Description: "failed"})

	rec := get(handler, "/api/v1/audit/events?min_level=high")
	if rec.Code != http.StatusOK {
		t.Fatalf("events status = %d", rec.Code)
	}
	var events struct {
		Total  int           `json:"total"`
		Events []audit.Event `json:"events"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &events); err != nil {
		t.Fatalf("unmarshal events: %v", err)
	}
	if events.Total != 1 {
		t.Errorf("total = %d, want 1 high event", events.Total)
	}

	if rec := get(handler, "/api/v1/audit/events?start=not-a-time"); rec.Code != http.StatusBadRequest {
		t.Errorf("bad start filter status = %d, want 400", rec.Code)
	}

	rec = get(handler, "/api/v1/audit/summary")
	if rec.Code != http.StatusOK {
		t.Fatalf("summary status = %d", rec.Code)
	}
	var summary audit.Summary
	if err := json.Unmarshal(rec.Body.Bytes(), &summary); err != nil {
		t.Fatalf("unmarshal summary: %v", err)
	}
	if summary.TotalEvents != 2 {
		t.Errorf("TotalEvents = %d, want 2", summary.TotalEvents)
	}

	if rec := get(handler, "/api/v1/status"); rec.Code != http.StatusOK {
		t.Errorf("monitor status = %d", rec.Code)
	}
}

func TestHealthAndMetrics(t *testing.T) {
	srv, _ := newTestServer(t)
	handler := srv.Routes()

	for _, path := range []string{"/api/v1/health/live", "/api/v1/health/ready", "/metrics"} {
		if rec := get(handler, path); rec.Code != http.StatusOK {
			t.Errorf("GET %s = %d, want 200", path, rec.Code)
		}
	}
}
