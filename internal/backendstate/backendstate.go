// Package backendstate holds the currently-active backend id behind a
// read-heavy shared lock and broadcasts switches to interested
// subscribers (the Reasoning Registry, the Reasoning Transformer).
package backendstate

import (
	"context"
	"errors"
	"sync"

	"github.com/anyclaude/anyclaude/internal/config"
	"github.com/anyclaude/anyclaude/internal/credential"
)

var (
	ErrNotFound      = errors.New("backendstate: backend not found")
	ErrNotConfigured = errors.New("backendstate: backend not configured")
)

// Switch describes a completed backend change, delivered to subscribers
// after the state has already been updated.
type Switch struct {
	From string
	To   string
}

// Listener receives backend switches. Implementations must not block; the
// broadcast loop calls listeners synchronously, outside any lock, and Set
// returns only after every listener has returned.
type Listener func(Switch)

// State holds the active backend id.
type State struct {
	mu        sync.RWMutex
	currentID string

	listenersMu sync.Mutex
	listeners   []Listener
}

// New creates a State seeded with the configured default active backend.
func New(snap *config.Snapshot) *State {
	return &State{currentID: snap.Defaults().ActiveBackendID}
}

// Subscribe registers a listener invoked on every successful Set. Intended
// to be called once per subscriber at wiring time.
func (s *State) Subscribe(l Listener) {
	s.listenersMu.Lock()
	defer s.listenersMu.Unlock()
	s.listeners = append(s.listeners, l)
}

// Get returns the current active backend id.
func (s *State) Get() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.currentID
}

// Set switches the active backend, validating it exists in snap and is
// usable, then broadcasts the switch to subscribers.
func (s *State) Set(snap *config.Snapshot, newID string) (string, error) {
	backend, ok := snap.BackendByID(newID)
	if !ok {
		return "", ErrNotFound
	}
	decl := credential.DeclarationFromBackend(backend)
	if _, err := credential.Resolve(context.Background(), newID, decl); err != nil {
		var missing *credential.ErrMissingCredential
		if errors.As(err, &missing) {
			return "", ErrNotConfigured
		}
		return "", err
	}

	s.mu.Lock()
	prev := s.currentID
	s.currentID = newID
	s.mu.Unlock()

	if prev != newID {
		s.broadcast(Switch{From: prev, To: newID})
	}
	return newID, nil
}

// UpdateConfig re-checks whether the active id still exists after a
// hot-reload. It does not switch backends on its own; the caller (the
// supervisor) decides what to do when the active backend has vanished —
// per the spec, the next request simply fails with backend_not_found.
func (s *State) UpdateConfig(snap *config.Snapshot) error {
	s.mu.RLock()
	id := s.currentID
	s.mu.RUnlock()

	if _, ok := snap.BackendByID(id); !ok {
		return ErrNotFound
	}
	return nil
}

func (s *State) broadcast(sw Switch) {
	s.listenersMu.Lock()
	listeners := make([]Listener, len(s.listeners))
	copy(listeners, s.listeners)
	s.listenersMu.Unlock()

	for _, l := range listeners {
		l(sw)
	}
}
