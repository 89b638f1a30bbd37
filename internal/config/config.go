// SentinelX - Multi-Modal Threat Detection and Response Pipeline
// Copyright 2026 Shivam Gawade (shivamgawade-droid)
// SPDX-License-Identifier: MIT
// https://github.com/shivamgawade-droid/sentinelx

// Package config loads SentinelX configuration with Koanf v2 from three
// layered sources: built-in defaults, an optional YAML file, and
// environment variables (highest priority).
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"github.com/shivamgawade-droid/sentinelx/internal/audit"
	"github.com/shivamgawade-droid/sentinelx/internal/coordinator"
	"github.com/shivamgawade-droid/sentinelx/internal/dispatch"
	"github.com/shivamgawade-droid/sentinelx/internal/fusion"
	"github.com/shivamgawade-droid/sentinelx/internal/logging"
	"github.com/shivamgawade-droid/sentinelx/internal/policy"
	"github.com/shivamgawade-droid/sentinelx/internal/store"
)

// DefaultConfigPaths lists where config files are searched, in order.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/sentinelx/config.yaml",
	"/etc/sentinelx/config.yml",
}

// ConfigPathEnvVar overrides the config file path.
const ConfigPathEnvVar = "SENTINELX_CONFIG"

// envPrefix namespaces SentinelX environment variables.
const envPrefix = "SENTINELX_"

// ServerConfig configures the HTTP API server.
type ServerConfig struct {
	// Host is the listen address.
	Host string `json:"host" koanf:"host"`

	// Port is the listen port.
	Port int `json:"port" koanf:"port" validate:"gt=0,lte=65535"`

	// ReadTimeout bounds request reads.
	ReadTimeout time.Duration `json:"read_timeout" koanf:"read_timeout"`

	// WriteTimeout bounds response writes.
	WriteTimeout time.Duration `json:"write_timeout" koanf:"write_timeout"`

	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout time.Duration `json:"shutdown_timeout" koanf:"shutdown_timeout"`

	// RateLimit is the per-client request budget for evidence submission.
	RateLimit int `json:"rate_limit" koanf:"rate_limit" validate:"gt=0"`

	// RateLimitWindow is the window the budget applies to.
	RateLimitWindow time.Duration `json:"rate_limit_window" koanf:"rate_limit_window"`
}

// LoggingConfig configures log output.
type LoggingConfig struct {
	Level  string `json:"level" koanf:"level" validate:"oneof=trace debug info warn error fatal disabled"`
	Format string `json:"format" koanf:"format" validate:"oneof=json console"`
	Caller bool   `json:"caller" koanf:"caller"`
}

// StoreConfig selects and configures the persistence backend.
type StoreConfig struct {
	// Backend is badger or memory. The memory backend loses all state on
	// restart and exists for tests and evaluation.
	Backend string `json:"backend" koanf:"backend" validate:"oneof=badger memory"`

	// Badger configures the durable backend.
	Badger store.BadgerConfig `json:"badger" koanf:"badger"`
}

// EffectorsConfig configures the built-in effectors.
type EffectorsConfig struct {
	// AlertWebhook receives alert action deliveries.
	AlertWebhook dispatch.WebhookConfig `json:"alert_webhook" koanf:"alert_webhook"`

	// NotifyWebhook receives notify action deliveries.
	NotifyWebhook dispatch.WebhookConfig `json:"notify_webhook" koanf:"notify_webhook"`
}

// Config is the root configuration object. It is assembled once at
// startup and passed explicitly to component constructors; there is no
// ambient mutable configuration.
type Config struct {
	Server      ServerConfig       `json:"server" koanf:"server"`
	Logging     LoggingConfig      `json:"logging" koanf:"logging"`
	Store       StoreConfig        `json:"store" koanf:"store"`
	Fusion      fusion.Config      `json:"fusion" koanf:"fusion"`
	Policy      policy.Config      `json:"policy" koanf:"policy"`
	Dispatch    dispatch.Config    `json:"dispatch" koanf:"dispatch"`
	Coordinator coordinator.Config `json:"coordinator" koanf:"coordinator"`
	Audit       audit.Config       `json:"audit" koanf:"audit"`
	Effectors   EffectorsConfig    `json:"effectors" koanf:"effectors"`
}

// defaultConfig returns the full default configuration.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8484,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			RateLimit:       300,
			RateLimitWindow: time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Store: StoreConfig{
			Backend: "badger",
			Badger:  store.DefaultBadgerConfig(),
		},
		Fusion:      fusion.DefaultConfig(),
		Policy:      policy.DefaultConfig(),
		Dispatch:    dispatch.DefaultConfig(),
		Coordinator: coordinator.DefaultConfig(),
		Audit:       audit.DefaultConfig(),
		Effectors: EffectorsConfig{
			AlertWebhook:  dispatch.WebhookConfig{Timeout: 10 * time.Second},
			NotifyWebhook: dispatch.WebhookConfig{Timeout: 10 * time.Second},
		},
	}
}

// Load builds the configuration from defaults, an optional YAML file, and
// SENTINELX_-prefixed environment variables, then validates it.
//
// Environment names map to koanf paths by stripping the prefix, lowering,
// and splitting on double underscore: SENTINELX_SERVER__PORT →
// server.port.
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("config: load defaults: %w", err)
	}

	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("config: load file %s: %w", path, err)
		}
		logging.Info().Str("path", path).Msg("config file loaded")
	}

	envProvider := env.Provider(envPrefix, ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, envPrefix)), "__", ".")
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("config: load environment: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// findConfigFile returns the first existing config path, env override
// first.
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// Validate checks structural constraints and component invariants.
func (c *Config) Validate() error {
	v := validator.New()
	if err := v.Struct(c); err != nil {
		return fmt.Errorf("config: validation failed: %w", err)
	}
	if err := c.Fusion.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	// The policy rule table gets its full load-time validation when the
	// policy is constructed; doing it here surfaces bad rules before any
	// component starts.
	if _, err := policy.New(c.Policy); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}
