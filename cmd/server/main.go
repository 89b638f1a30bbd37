// SentinelX - Multi-Modal Threat Detection and Response Pipeline
// Copyright 2026 Shivam Gawade (shivamgawade-droid)
// SPDX-License-Identifier: MIT
// https://github.com/shivamgawade-droid/sentinelx

// Package main is the entry point for the SentinelX server.
//
// SentinelX fuses threat evidence from multiple analyzer modalities
// (video, audio, text, metadata) into a single verdict per detection
// request, applies a data-driven decision policy, and dispatches the
// resulting response actions with idempotency and retry guarantees.
//
// # Application Architecture
//
// The server initializes components in the following order:
//
//  1. Configuration: layered load from defaults, YAML, environment (Koanf v2)
//  2. Store: BadgerDB (or in-memory) for request, action, and audit state
//  3. Audit monitor: bounded security-event history with async persistence
//  4. Fusion engine and decision policy: stateless, built from config
//  5. Dispatcher: effectors wrapped in circuit breakers
//  6. Coordinator: per-request lifecycle plus crash recovery
//  7. HTTP server: evidence submission, verdict queries, audit endpoints
//
// Components run under a suture supervision tree; the audit writer lives
// in the data layer and the HTTP server in the api layer.
//
// # Configuration
//
// Configuration is loaded via Koanf v2 with layered sources (highest
// priority wins):
//   - SENTINELX_-prefixed environment variables
//   - Config file (config.yaml, or SENTINELX_CONFIG)
//   - Built-in defaults
//
// # Signal Handling
//
// The server shuts down gracefully on SIGINT and SIGTERM: the HTTP
// server drains in-flight requests, the audit monitor flushes buffered
// events, and the store is closed last.
//
// # Example Usage
//
// Development with the in-memory store:
//
//	export SENTINELX_STORE__BACKEND=memory
//	export SENTINELX_LOGGING__LEVEL=debug
//	./sentinelx
//
// Production with alert delivery:
//
//	export SENTINELX_STORE__BADGER__PATH=/data/sentinelx/store
//	export SENTINELX_EFFECTORS__ALERT_WEBHOOK__URL=https://hooks.example.com/security
//	./sentinelx
package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"github.com/shivamgawade-droid/sentinelx/internal/action"
	"github.com/shivamgawade-droid/sentinelx/internal/api"
	"github.com/shivamgawade-droid/sentinelx/internal/audit"
	"github.com/shivamgawade-droid/sentinelx/internal/config"
	"github.com/shivamgawade-droid/sentinelx/internal/coordinator"
	"github.com/shivamgawade-droid/sentinelx/internal/dispatch"
	"github.com/shivamgawade-droid/sentinelx/internal/fusion"
	"github.com/shivamgawade-droid/sentinelx/internal/logging"
	"github.com/shivamgawade-droid/sentinelx/internal/policy"
	"github.com/shivamgawade-droid/sentinelx/internal/store"
	"github.com/shivamgawade-droid/sentinelx/internal/supervisor"
)

func main() {
	// Load configuration first to get logging settings
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	logging.Info().
		Str("store_backend", cfg.Store.Backend).
		Int("port", cfg.Server.Port).
		Msg("Starting SentinelX")

	st, err := newStore(cfg)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize store")
	}
	defer func() {
		if err := st.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing store")
		}
	}()

	monitor := audit.NewMonitor(cfg.Audit, st)

	engine, err := fusion.NewEngine(cfg.Fusion)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to build fusion engine")
	}

	pol, err := policy.New(cfg.Policy)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to build decision policy")
	}

	disp := dispatch.NewDispatcher(cfg.Dispatch, st, monitor)
	disp.Register(dispatch.NewLogEffector(monitor))
	disp.Register(dispatch.NewContainmentEffector(action.KindBlock, st))
	disp.Register(dispatch.NewContainmentEffector(action.KindQuarantine, st))
	disp.Register(dispatch.NewWebhookEffector(action.KindAlert, cfg.Effectors.AlertWebhook))
	disp.Register(dispatch.NewWebhookEffector(action.KindNotify, cfg.Effectors.NotifyWebhook))

	coord := coordinator.New(cfg.Coordinator, engine, pol, disp, st, monitor)

	// Resume requests interrupted by a previous crash before traffic
	// arrives.
	if err := coord.Recover(context.Background()); err != nil {
		logging.Fatal().Err(err).Msg("Failed to recover persisted requests")
	}

	server := api.NewServer(api.Options{
		Host:            cfg.Server.Host,
		Port:            cfg.Server.Port,
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
		RateLimit:       cfg.Server.RateLimit,
		RateLimitWindow: cfg.Server.RateLimitWindow,
	}, coord, monitor)

	tree := supervisor.NewTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	tree.AddDataService(monitor)
	tree.AddAPIService(server)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := tree.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logging.Error().Err(err).Msg("Supervisor tree exited with error")
	}

	logging.Info().Msg("SentinelX stopped")
}

// newStore builds the configured persistence backend.
func newStore(cfg *config.Config) (store.Store, error) {
	if cfg.Store.Backend == "memory" {
		logging.Warn().Msg("Using in-memory store; state will not survive restarts")
		return store.NewMemoryStore(), nil
	}
	return store.NewBadgerStore(cfg.Store.Badger)
}
