package alerts

// RecoveryState tracks an in-progress recovery, e.g. "Retrying 2/3 …"
// surfaced to the operator by the Upstream Client's retry loop.
type RecoveryState string

const (
	RecoveryInProgress RecoveryState = "in_progress"
	RecoverySucceeded  RecoveryState = "succeeded"
	RecoveryFailed     RecoveryState = "failed"
)

// Recovery is a named, updatable operation (e.g. "backend_connection") the
// Error Registry surfaces to the front-end while it is in flight.
type Recovery struct {
	Name        string
	State       RecoveryState
	Attempt     int
	MaxAttempts int
	LastError   string
}

// StartRecovery begins (or restarts) tracking a named recovery.
func (r *Registry) StartRecovery(name string, maxAttempts int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.recoveries[name] = &Recovery{Name: name, State: RecoveryInProgress, MaxAttempts: maxAttempts}
}

// UpdateRecovery records another attempt against a named recovery.
func (r *Registry) UpdateRecovery(name string, attempt int, lastErr string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.recoveries[name]
	if !ok {
		rec = &Recovery{Name: name, State: RecoveryInProgress}
		r.recoveries[name] = rec
	}
	rec.Attempt = attempt
	rec.LastError = lastErr
}

// SucceedRecovery marks a named recovery as resolved.
func (r *Registry) SucceedRecovery(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rec, ok := r.recoveries[name]; ok {
		rec.State = RecoverySucceeded
	}
}

// FailRecovery marks a named recovery as exhausted and records a
// corresponding Error Event.
func (r *Registry) FailRecovery(name, message string) {
	r.mu.Lock()
	if rec, ok := r.recoveries[name]; ok {
		rec.State = RecoveryFailed
	}
	r.mu.Unlock()

	r.Report(Event{
		Severity: SeverityError,
		Category: CategoryNetwork,
		Message:  message,
	})
}

// GetRecovery returns the current state of a named recovery, if tracked.
func (r *Registry) GetRecovery(name string) (Recovery, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.recoveries[name]
	if !ok {
		return Recovery{}, false
	}
	return *rec, true
}

// SetFeatureDegraded marks a feature (clipboard, metrics, config
// hot-reload, backend switch) as degraded with a human-readable reason.
func (r *Registry) SetFeatureDegraded(feature, reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.features[feature] = reason
}

// ClearFeatureDegraded marks a feature healthy again.
func (r *Registry) ClearFeatureDegraded(feature string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.features, feature)
}

// DegradedFeatures returns a snapshot of feature name -> reason for every
// currently degraded feature.
func (r *Registry) DegradedFeatures() map[string]string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]string, len(r.features))
	for k, v := range r.features {
		out[k] = v
	}
	return out
}
