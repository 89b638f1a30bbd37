// SentinelX - Multi-Modal Threat Detection and Response Pipeline
// Copyright 2026 Shivam Gawade (shivamgawade-droid)
// SPDX-License-Identifier: MIT
// https://github.com/shivamgawade-droid/sentinelx

package audit

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/shivamgawade-droid/sentinelx/internal/evidence"
	"github.com/shivamgawade-droid/sentinelx/internal/logging"
	"github.com/shivamgawade-droid/sentinelx/internal/store"
)

// Config holds monitor configuration.
type Config struct {
	// Name identifies this monitor instance.
	Name string `json:"name" koanf:"name"`

	// MaxEvents bounds the in-memory event window; the oldest event is
	// evicted when full.
	MaxEvents int `json:"max_events" koanf:"max_events" validate:"gt=0"`

	// BufferSize is the capacity of the async persistence buffer.
	BufferSize int `json:"buffer_size" koanf:"buffer_size" validate:"gt=0"`
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Name:       "sentinelx-monitor",
		MaxEvents:  10000,
		BufferSize: 1000,
	}
}

// Monitor is the security event history. In-memory queries are served from
// a bounded window; every event is also queued for durable persistence,
// drained by Serve under the supervisor tree.
type Monitor struct {
	cfg   Config
	store store.Store

	mu     sync.RWMutex
	events []Event

	eventChan chan Event
	dropped   int64
}

// NewMonitor creates a monitor backed by the given store. A nil store
// disables persistence; the in-memory window still works.
func NewMonitor(cfg Config, st store.Store) *Monitor {
	if cfg.Name == "" {
		cfg.Name = "sentinelx-monitor"
	}
	if cfg.MaxEvents <= 0 {
		cfg.MaxEvents = 10000
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1000
	}
	return &Monitor{
		cfg:       cfg,
		store:     st,
		events:    make([]Event, 0, 128),
		eventChan: make(chan Event, cfg.BufferSize),
	}
}

// Record appends an event to the history. Missing ID and timestamp are
// filled in. Recording never blocks the caller: when the persistence
// buffer is full the event is still kept in memory and the drop is counted.
func (m *Monitor) Record(event Event) {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	if !event.Level.Valid() {
		event.Level = evidence.ThreatNone
	}

	m.mu.Lock()
	if len(m.events) >= m.cfg.MaxEvents {
		m.events = m.events[1:]
	}
	m.events = append(m.events, event)
	m.mu.Unlock()

	logging.Debug().
		Str("event_id", event.ID).
		Str("event_type", string(event.Type)).
		Str("threat_level", string(event.Level)).
		Str("request_id", event.RequestID).
		Msg(event.Description)

	if m.store == nil {
		return
	}
	select {
	case m.eventChan <- event:
	default:
		m.mu.Lock()
		m.dropped++
		m.mu.Unlock()
		logging.Warn().Str("event_id", event.ID).Msg("audit persistence buffer full, event kept in memory only")
	}
}

// Serve drains the persistence buffer until the context is cancelled.
// Implements suture.Service.
func (m *Monitor) Serve(ctx context.Context) error {
	if m.store == nil {
		<-ctx.Done()
		return ctx.Err()
	}
	for {
		select {
		case <-ctx.Done():
			// Drain what is already buffered before shutting down.
			for {
				select {
				case event := <-m.eventChan:
					m.persist(context.Background(), event)
				default:
					return ctx.Err()
				}
			}
		case event := <-m.eventChan:
			m.persist(ctx, event)
		}
	}
}

// persist writes one event to the durable store.
func (m *Monitor) persist(ctx context.Context, event Event) {
	data, err := json.Marshal(event)
	if err != nil {
		logging.Error().Err(err).Str("event_id", event.ID).Msg("audit event marshal failed")
		return
	}
	key := fmt.Sprintf("%s%s/%s", store.PrefixAudit, event.Timestamp.UTC().Format(time.RFC3339Nano), event.ID)
	if err := m.store.Put(ctx, key, data); err != nil {
		logging.Error().Err(err).Str("event_id", event.ID).Msg("audit event persist failed")
	}
}

// Events returns the in-memory events matching the filter, oldest first.
func (m *Monitor) Events(filter Filter) []Event {
	m.mu.RLock()
	snapshot := append([]Event(nil), m.events...)
	m.mu.RUnlock()

	out := snapshot[:0]
	for _, e := range snapshot {
		if filter.MinLevel.Valid() && filter.MinLevel != evidence.ThreatNone && !e.Level.AtLeast(filter.MinLevel) {
			continue
		}
		if filter.Type != "" && e.Type != filter.Type {
			continue
		}
		if filter.Source != "" && !strings.EqualFold(e.Source, filter.Source) {
			continue
		}
		if filter.Start != nil && e.Timestamp.Before(*filter.Start) {
			continue
		}
		if filter.End != nil && e.Timestamp.After(*filter.End) {
			continue
		}
		out = append(out, e)
	}
	return out
}

// CriticalEvents returns all high and critical events in the window.
func (m *Monitor) CriticalEvents() []Event {
	return m.Events(Filter{MinLevel: evidence.ThreatHigh})
}

// Summary aggregates the current event window by type, source, and level.
func (m *Monitor) Summary() Summary {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s := Summary{
		TotalEvents:    len(m.events),
		EventsByType:   make(map[EventType]int),
		EventsBySource: make(map[string]int),
		ByLevel:        make(map[evidence.ThreatLevel]int),
	}
	for i := range m.events {
		e := m.events[i]
		s.EventsByType[e.Type]++
		s.EventsBySource[e.Source]++
		s.ByLevel[e.Level]++
		if e.Level.AtLeast(evidence.ThreatHigh) {
			s.CriticalEvents++
		}
	}
	if n := len(m.events); n > 0 {
		latest := m.events[n-1]
		s.LatestEvent = &latest
	}
	return s
}

// Status returns a point-in-time monitor snapshot.
func (m *Monitor) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()

	byLevel := make(map[evidence.ThreatLevel]int)
	for i := range m.events {
		byLevel[m.events[i].Level]++
	}
	usage := 0.0
	if m.cfg.MaxEvents > 0 {
		usage = float64(len(m.events)) / float64(m.cfg.MaxEvents) * 100
	}
	return Status{
		Name:            m.cfg.Name,
		TotalEvents:     len(m.events),
		MaxCapacity:     m.cfg.MaxEvents,
		CapacityUsedPct: usage,
		ThreatSummary:   byLevel,
		Timestamp:       time.Now().UTC(),
	}
}

// Clear removes events from the in-memory window. With a valid cutoff,
// only events at or below that level are removed; otherwise everything is.
// Returns the number of events cleared. Persisted events are unaffected.
func (m *Monitor) Clear(cutoff evidence.ThreatLevel) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !cutoff.Valid() {
		cleared := len(m.events)
		m.events = m.events[:0]
		return cleared
	}

	kept := m.events[:0]
	cleared := 0
	for _, e := range m.events {
		if e.Level.AtLeast(cutoff) && e.Level != cutoff {
			kept = append(kept, e)
		} else {
			cleared++
		}
	}
	m.events = kept
	logging.Info().Int("cleared", cleared).Str("cutoff", string(cutoff)).Msg("audit events cleared")
	return cleared
}
