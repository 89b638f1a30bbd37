// SentinelX - Multi-Modal Threat Detection and Response Pipeline
// Copyright 2026 Shivam Gawade (shivamgawade-droid)
// SPDX-License-Identifier: MIT
// https://github.com/shivamgawade-droid/sentinelx

package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"github.com/shivamgawade-droid/sentinelx/internal/audit"
	"github.com/shivamgawade-droid/sentinelx/internal/coordinator"
	"github.com/shivamgawade-droid/sentinelx/internal/evidence"
	"github.com/shivamgawade-droid/sentinelx/internal/logging"
)

// errorResponse is the uniform error body.
type errorResponse struct {
	Error string `json:"error"`
}

// writeJSON serializes v with the shared JSON codec.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Warn().Err(err).Msg("response encode failed")
	}
}

// writeError maps an error to a JSON error response.
func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

// openRequestBody is the request registration payload.
type openRequestBody struct {
	RequestID   string `json:"request_id,omitempty"`
	RequestType string `json:"request_type,omitempty"`
	DeadlineMs  int64  `json:"deadline_ms,omitempty"`
}

// OpenRequest registers a request and starts evidence collection.
func (s *Server) OpenRequest(w http.ResponseWriter, r *http.Request) {
	var body openRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	state, err := s.coord.Open(r.Context(), body.RequestID, body.RequestType, time.Duration(body.DeadlineMs)*time.Millisecond)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusCreated, state)
}

// submitEvidenceBody is the analyzer submission payload.
type submitEvidenceBody struct {
	RequestID  string            `json:"request_id"`
	Modality   evidence.Modality `json:"modality"`
	Score      float64           `json:"score"`
	Confidence float64           `json:"confidence"`
	Tags       []string          `json:"evidence_tags,omitempty"`
}

// SubmitEvidence accepts one evidence record from an analyzer.
func (s *Server) SubmitEvidence(w http.ResponseWriter, r *http.Request) {
	var body submitEvidenceBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	rec := evidence.Record{
		RequestID:  body.RequestID,
		Modality:   body.Modality,
		Score:      body.Score,
		Confidence: body.Confidence,
		Tags:       body.Tags,
		ProducedAt: time.Now().UTC(),
	}
	err := s.coord.Submit(r.Context(), rec)
	switch {
	case err == nil:
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
	case errors.Is(err, coordinator.ErrDuplicateEvidence),
		errors.Is(err, coordinator.ErrRequestFinalized):
		writeError(w, http.StatusConflict, err)
	default:
		writeError(w, http.StatusBadRequest, err)
	}
}

// GetVerdict answers a verdict query: the verdict when finalized, a
// pending marker while the pipeline is still running, 404 for unknown
// ids. Terminal dispatch failures ride along with the verdict.
func (s *Server) GetVerdict(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	result, err := s.coord.GetVerdict(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	if result.Verdict == nil {
		status := "pending"
		if result.Lifecycle.Terminal() {
			status = string(result.Lifecycle)
		}
		writeJSON(w, http.StatusOK, map[string]string{
			"status":    status,
			"lifecycle": string(result.Lifecycle),
		})
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// GetStatus returns a request's lifecycle position.
func (s *Server) GetStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	lifecycle, err := s.coord.GetStatus(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"lifecycle": string(lifecycle)})
}

// CancelRequest cancels a request that is still collecting.
func (s *Server) CancelRequest(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	err := s.coord.Cancel(r.Context(), id)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
	case errors.Is(err, coordinator.ErrRequestNotFound):
		writeError(w, http.StatusNotFound, err)
	case errors.Is(err, coordinator.ErrCancelNotAllowed):
		writeError(w, http.StatusConflict, err)
	default:
		writeError(w, http.StatusInternalServerError, err)
	}
}

// AuditEvents lists security events matching the query filters:
// min_level, type, source, start, end (RFC 3339).
func (s *Server) AuditEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := audit.Filter{
		MinLevel: evidence.ThreatLevel(q.Get("min_level")),
		Type:     audit.EventType(q.Get("type")),
		Source:   q.Get("source"),
	}
	if raw := q.Get("start"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		filter.Start = &t
	}
	if raw := q.Get("end"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		filter.End = &t
	}
	events := s.monitor.Events(filter)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"total":  len(events),
		"events": events,
	})
}

// AuditSummary aggregates the event history.
func (s *Server) AuditSummary(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.monitor.Summary())
}

// MonitorStatus returns the monitor snapshot.
func (s *Server) MonitorStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.monitor.Status())
}

// HealthLive reports process liveness.
func (s *Server) HealthLive(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// HealthReady reports readiness to accept evidence.
func (s *Server) HealthReady(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
