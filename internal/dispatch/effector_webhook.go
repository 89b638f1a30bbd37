// SentinelX - Multi-Modal Threat Detection and Response Pipeline
// Copyright 2026 Shivam Gawade (shivamgawade-droid)
// SPDX-License-Identifier: MIT
// https://github.com/shivamgawade-droid/sentinelx

package dispatch

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/goccy/go-json"

	"github.com/shivamgawade-droid/sentinelx/internal/action"
)

// WebhookConfig configures a webhook effector.
type WebhookConfig struct {
	// URL is the webhook endpoint.
	URL string `json:"url" koanf:"url"`

	// Headers are added to every delivery (e.g. authorization).
	Headers map[string]string `json:"headers,omitempty" koanf:"headers"`

	// Timeout bounds the HTTP client; the dispatcher applies its own
	// per-call context timeout on top.
	Timeout time.Duration `json:"timeout" koanf:"timeout"`
}

// WebhookEffector delivers alert and notify actions as JSON POSTs.
//
// Outcome mapping follows the effector contract: 2xx succeeds, 4xx is a
// permanently invalid delivery (terminal, except 408 and 429), everything
// else including transport errors is retryable.
type WebhookEffector struct {
	kind    action.Kind
	url     string
	headers map[string]string
	client  *http.Client
}

// WebhookPayload is the JSON body sent to the endpoint.
type WebhookPayload struct {
	Action    action.Action `json:"action"`
	EventType string        `json:"event_type"`
	Timestamp time.Time     `json:"timestamp"`
	Source    string        `json:"source"`
}

// NewWebhookEffector creates a webhook effector for the given action kind
// (alert or notify).
func NewWebhookEffector(kind action.Kind, cfg WebhookConfig) *WebhookEffector {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	headers := make(map[string]string, len(cfg.Headers))
	for k, v := range cfg.Headers {
		headers[k] = v
	}
	return &WebhookEffector{
		kind:    kind,
		url:     cfg.URL,
		headers: headers,
		client:  &http.Client{Timeout: timeout},
	}
}

// Kind returns the action kind this effector handles.
func (e *WebhookEffector) Kind() action.Kind {
	return e.kind
}

// Execute delivers the action payload to the webhook endpoint.
func (e *WebhookEffector) Execute(ctx context.Context, act action.Action) (action.Outcome, error) {
	if e.url == "" {
		return action.OutcomeFailedTerminal, fmt.Errorf("webhook effector %s: no URL configured", e.kind)
	}

	payload := WebhookPayload{
		Action:    act,
		EventType: "threat_" + string(e.kind),
		Timestamp: time.Now().UTC(),
		Source:    "sentinelx",
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return action.OutcomeFailedTerminal, fmt.Errorf("webhook effector: marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.url, bytes.NewReader(body))
	if err != nil {
		return action.OutcomeFailedTerminal, fmt.Errorf("webhook effector: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range e.headers {
		req.Header.Set(k, v)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return action.OutcomeFailedRetryable, fmt.Errorf("webhook effector: deliver: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return action.OutcomeSucceeded, nil
	case resp.StatusCode == http.StatusRequestTimeout || resp.StatusCode == http.StatusTooManyRequests:
		return action.OutcomeFailedRetryable, fmt.Errorf("webhook effector: endpoint returned %d", resp.StatusCode)
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return action.OutcomeFailedTerminal, fmt.Errorf("webhook effector: endpoint rejected delivery with %d", resp.StatusCode)
	default:
		return action.OutcomeFailedRetryable, fmt.Errorf("webhook effector: endpoint returned %d", resp.StatusCode)
	}
}
