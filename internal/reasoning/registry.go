// Package reasoning implements the reasoning-block registry: per-session
// ownership tracking for opaque, provider-signed reasoning blocks, so a
// backend switch never forwards a block signed by a different backend.
package reasoning

import (
	"sync"
	"time"
)

// Entry is a tracked reasoning block.
type Entry struct {
	Hash         BlockHash
	SessionID    uint64
	Confirmed    bool
	RegisteredAt time.Time
}

// Registry holds registry state and enforces the extract/confirm/
// cleanup/filter protocol. All mutating operations take the registry
// lock; the critical section is O(blocks in the current request).
type Registry struct {
	mu sync.Mutex

	currentSessionID uint64
	currentBackendID string
	entries          map[BlockHash]*Entry
	orphanThreshold  time.Duration

	now func() time.Time // overridable for tests
}

func New(initialBackendID string, orphanThreshold time.Duration) *Registry {
	if orphanThreshold <= 0 {
		orphanThreshold = 5 * time.Minute
	}
	return &Registry{
		currentBackendID: initialBackendID,
		entries:          make(map[BlockHash]*Entry),
		orphanThreshold:  orphanThreshold,
		now:              time.Now,
	}
}

// CurrentSessionID returns the session counter, for observability/tests.
func (r *Registry) CurrentSessionID() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.currentSessionID
}

// NotifyBackendSwitch increments the session id when newID differs from
// the currently tracked backend. Session id is monotonically
// non-decreasing over the registry's lifetime.
func (r *Registry) NotifyBackendSwitch(newID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if newID == r.currentBackendID {
		return
	}
	r.currentBackendID = newID
	r.currentSessionID++
}

// confirmLocked marks extracted hashes present in state as confirmed
// (step 2 of the outbound protocol). The caller holds r.mu.
func (r *Registry) confirmLocked(hashes []BlockHash) {
	for _, h := range hashes {
		if e, ok := r.entries[h]; ok {
			e.Confirmed = true
		}
	}
}

// cleanupLocked removes entries per the three cleanup rules. present is
// the set of hashes extracted from the current outbound request.
func (r *Registry) cleanupLocked(present map[BlockHash]bool) {
	now := r.now()
	for h, e := range r.entries {
		inRequest := present[h]
		switch {
		case e.SessionID != r.currentSessionID:
			delete(r.entries, h)
		case e.Confirmed && !inRequest:
			delete(r.entries, h)
		case !e.Confirmed && !inRequest && now.Sub(e.RegisteredAt) > r.orphanThreshold:
			delete(r.entries, h)
		}
	}
}

// filterLocked reports, for each extracted hash, whether it remains valid
// for outbound forwarding after cleanup.
func (r *Registry) filterLocked(h BlockHash) bool {
	e, ok := r.entries[h]
	return ok && e.SessionID == r.currentSessionID
}

// ProcessOutbound runs the extract→confirm→cleanup→filter protocol given
// the hashes of reasoning items found in the outbound request (in
// document order) and returns which of those hashes survive filtering.
func (r *Registry) ProcessOutbound(extracted []BlockHash) (keep map[BlockHash]bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	present := make(map[BlockHash]bool, len(extracted))
	for _, h := range extracted {
		present[h] = true
	}

	r.confirmLocked(extracted)
	r.cleanupLocked(present)

	keep = make(map[BlockHash]bool, len(extracted))
	for _, h := range extracted {
		keep[h] = r.filterLocked(h)
	}
	return keep
}

// RegisterResponseBlock inserts a newly observed reasoning block from an
// upstream response. Always unconfirmed at registration; it becomes
// confirmed the next time the client sends it back.
func (r *Registry) RegisterResponseBlock(h BlockHash) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.entries[h]; exists {
		return
	}
	r.entries[h] = &Entry{
		Hash:         h,
		SessionID:    r.currentSessionID,
		Confirmed:    false,
		RegisteredAt: r.now(),
	}
}

// Len reports the number of tracked entries, for tests and observability.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
