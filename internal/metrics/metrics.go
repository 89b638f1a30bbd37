// SentinelX - Multi-Modal Threat Detection and Response Pipeline
// Copyright 2026 Shivam Gawade (shivamgawade-droid)
// SPDX-License-Identifier: MIT
// https://github.com/shivamgawade-droid/sentinelx

// Package metrics exposes Prometheus instrumentation for the fusion
// pipeline: request lifecycle, fusion latency, dispatch outcomes, retries,
// and idempotency short-circuits.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Request lifecycle metrics
	RequestsFinalized = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentinelx_requests_finalized_total",
			Help: "Total requests reaching a terminal lifecycle state",
		},
		[]string{"state"}, // done, expired, cancelled
	)

	ActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sentinelx_active_requests",
			Help: "Requests currently in a non-terminal lifecycle state",
		},
	)

	EvidenceReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentinelx_evidence_received_total",
			Help: "Evidence records accepted, by modality",
		},
		[]string{"modality"},
	)

	EvidenceRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentinelx_evidence_rejected_total",
			Help: "Evidence records rejected, by reason",
		},
		[]string{"reason"}, // duplicate, invalid, finalized
	)

	// Fusion metrics
	FusionDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sentinelx_fusion_duration_seconds",
			Help:    "Time spent fusing evidence into a verdict",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1},
		},
	)

	VerdictsByLevel = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentinelx_verdicts_total",
			Help: "Verdicts produced, by threat level",
		},
		[]string{"threat_level"},
	)

	// Dispatch metrics
	ActionsDispatched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentinelx_actions_dispatched_total",
			Help: "Action executions reaching a terminal status, by kind and status",
		},
		[]string{"kind", "status"},
	)

	ActionRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentinelx_action_retries_total",
			Help: "Retry attempts after retryable effector failures, by kind",
		},
		[]string{"kind"},
	)

	IdempotencyHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sentinelx_idempotency_hits_total",
			Help: "Dispatches short-circuited by a completed idempotency record",
		},
	)

	DispatchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sentinelx_dispatch_duration_seconds",
			Help:    "End-to-end dispatch time per action, including retries",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"kind"},
	)

	CircuitBreakerOpen = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentinelx_effector_breaker_open_total",
			Help: "Executions rejected by an open effector circuit breaker",
		},
		[]string{"kind"},
	)
)

// RecordFusion observes one fusion run.
func RecordFusion(level string, elapsed time.Duration) {
	FusionDuration.Observe(elapsed.Seconds())
	VerdictsByLevel.WithLabelValues(level).Inc()
}

// RecordDispatch observes one action reaching a terminal status.
func RecordDispatch(kind, status string, elapsed time.Duration) {
	ActionsDispatched.WithLabelValues(kind, status).Inc()
	DispatchDuration.WithLabelValues(kind).Observe(elapsed.Seconds())
}
