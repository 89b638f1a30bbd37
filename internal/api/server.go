// SentinelX - Multi-Modal Threat Detection and Response Pipeline
// Copyright 2026 Shivam Gawade (shivamgawade-droid)
// SPDX-License-Identifier: MIT
// https://github.com/shivamgawade-droid/sentinelx

// Package api exposes the pipeline over HTTP using the Chi router:
// evidence submission, verdict and status queries, cancellation, the
// audit event history, and operational endpoints.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shivamgawade-droid/sentinelx/internal/audit"
	"github.com/shivamgawade-droid/sentinelx/internal/coordinator"
	"github.com/shivamgawade-droid/sentinelx/internal/logging"
)

// Server hosts the HTTP API. It implements suture.Service so the
// supervisor tree owns its lifecycle.
type Server struct {
	addr            string
	readTimeout     time.Duration
	writeTimeout    time.Duration
	shutdownTimeout time.Duration
	rateLimit       int
	rateWindow      time.Duration

	coord   *coordinator.Coordinator
	monitor *audit.Monitor
}

// Options configures the server.
type Options struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	RateLimit       int
	RateLimitWindow time.Duration
}

// NewServer creates the API server.
func NewServer(opts Options, coord *coordinator.Coordinator, monitor *audit.Monitor) *Server {
	if opts.RateLimit <= 0 {
		opts.RateLimit = 300
	}
	if opts.RateLimitWindow <= 0 {
		opts.RateLimitWindow = time.Minute
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = 10 * time.Second
	}
	return &Server{
		addr:            fmt.Sprintf("%s:%d", opts.Host, opts.Port),
		readTimeout:     opts.ReadTimeout,
		writeTimeout:    opts.WriteTimeout,
		shutdownTimeout: opts.ShutdownTimeout,
		rateLimit:       opts.RateLimit,
		rateWindow:      opts.RateLimitWindow,
		coord:           coord,
		monitor:         monitor,
	}
}

// Routes builds the router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)

	r.Route("/api/v1", func(r chi.Router) {
		// Submission endpoints carry analyzer traffic and get the
		// configured per-client budget.
		r.Group(func(r chi.Router) {
			r.Use(httprate.LimitByIP(s.rateLimit, s.rateWindow))
			r.Post("/evidence", s.SubmitEvidence)
			r.Post("/requests", s.OpenRequest)
			r.Post("/requests/{id}/cancel", s.CancelRequest)
		})

		r.Get("/requests/{id}/verdict", s.GetVerdict)
		r.Get("/requests/{id}/status", s.GetStatus)

		r.Get("/audit/events", s.AuditEvents)
		r.Get("/audit/summary", s.AuditSummary)
		r.Get("/status", s.MonitorStatus)

		r.Get("/health/live", s.HealthLive)
		r.Get("/health/ready", s.HealthReady)
	})

	r.Handle("/metrics", promhttp.Handler())
	return r
}

// Serve runs the HTTP server until the context is cancelled. Implements
// suture.Service.
func (s *Server) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.addr,
		Handler:      s.Routes(),
		ReadTimeout:  s.readTimeout,
		WriteTimeout: s.writeTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logging.Info().Str("addr", s.addr).Msg("API server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logging.Warn().Err(err).Msg("API server shutdown incomplete")
		}
		return ctx.Err()
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
