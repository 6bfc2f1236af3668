package observability

import (
	"time"

	"github.com/rs/zerolog"
)

// BackendOverride lets a plugin's pre_request hook redirect a request to
// a different backend. Unused by any plugin shipped here, per spec, but
// part of the surface.
type BackendOverride struct {
	BackendID string
}

// Plugin is the Observability Hub's extension surface.
type Plugin interface {
	Name() string
	PreRequest(ctx *RequestContext) *BackendOverride
	PostResponse(ctx *RequestContext)
}

// RequestContext is the narrow handle passed to plugins, avoiding the
// cyclic reference the design notes call out (proxy -> observability ->
// proxy status): plugins see a record, not the proxy server itself.
type RequestContext struct {
	Record *Record
}

// Hub is the bounded ring plus per-backend aggregates plus plugin chain.
type Hub struct {
	ring       *ring
	aggregates *aggregates
	plugins    []Plugin
	log        zerolog.Logger
}

func NewHub(capacity int, log zerolog.Logger) *Hub {
	return &Hub{
		ring:       newRing(capacity),
		aggregates: newAggregates(),
		log:        log.With().Str("component", "observability").Logger(),
	}
}

// RegisterPlugin adds a plugin to the chain. Call during wiring, before
// serving traffic.
func (h *Hub) RegisterPlugin(p Plugin) {
	h.plugins = append(h.plugins, p)
}

// PreRequest runs every plugin's PreRequest hook, catching panics so one
// bad plugin never takes the proxy down, and returns the first override
// offered (if any).
func (h *Hub) PreRequest(rec *Record) *BackendOverride {
	rc := &RequestContext{Record: rec}
	for _, p := range h.plugins {
		override := h.safePreRequest(p, rc)
		if override != nil {
			return override
		}
	}
	return nil
}

func (h *Hub) safePreRequest(p Plugin, rc *RequestContext) (override *BackendOverride) {
	defer func() {
		if r := recover(); r != nil {
			h.log.Error().Interface("panic", r).Str("plugin", p.Name()).Msg("plugin pre_request panicked")
			override = nil
		}
	}()
	return p.PreRequest(rc)
}

// Push finalizes a record into the ring, updates the backend's aggregate,
// and runs every plugin's PostResponse hook.
func (h *Hub) Push(rec *Record) {
	h.ring.push(rec)
	if rec.BackendID != "" {
		h.aggregates.forBackend(rec.BackendID).record(rec)
	}

	rc := &RequestContext{Record: rec}
	for _, p := range h.plugins {
		h.safePostResponse(p, rc)
	}
}

func (h *Hub) safePostResponse(p Plugin, rc *RequestContext) {
	defer func() {
		if r := recover(); r != nil {
			h.log.Error().Interface("panic", r).Str("plugin", p.Name()).Msg("plugin post_response panicked")
		}
	}()
	p.PostResponse(rc)
}

// FindRecord looks up a record by request id, for the pre-request hook /
// response wrapper pairing.
func (h *Hub) FindRecord(id string) (*Record, bool) {
	return h.ring.findByID(id)
}

// Snapshot is exposed over the Command Bus.
type Snapshot struct {
	GeneratedAt time.Time
	PerBackend  map[string]AggregateSnapshot
	Recent      []*Record
}

func (h *Hub) Snapshot() Snapshot {
	return Snapshot{
		GeneratedAt: time.Now(),
		PerBackend:  h.aggregates.snapshotAll(),
		Recent:      h.ring.snapshot(),
	}
}

// Percentiles computes p50/p95/p99 from a fresh sorted snapshot,
// optionally restricted to one backend.
func (h *Hub) Percentiles(backendID string) Percentiles {
	return computePercentiles(h.ring.snapshot(), backendID)
}
