// Package observability implements the Observability Hub: a bounded ring
// of Request Records plus per-backend running aggregates, percentiles
// computed on demand, and a plugin interface.
package observability

import "time"

// RoutingInfo mirrors a routing.Decision without importing that package,
// avoiding a cyclic dependency between routing and observability.
type RoutingInfo struct {
	RuleName string
	Reason   string
}

// RequestAnalysis captures what the Upstream Client learned by tapping
// the inbound body before rewriting it.
type RequestAnalysis struct {
	Model              string
	InputTokenEstimate int
	ImageCount         int
	ReasoningRequested bool
}

// ResponseAnalysis captures what the response wrapper learned.
type ResponseAnalysis struct {
	OutputTokens int
	StopReason   string
	CostUSD      float64
}

// Record is one inbound request's full observability trace.
type Record struct {
	ID            string
	StartedAt     time.Time
	FirstByteAt   *time.Time
	CompletedAt   *time.Time
	BackendID     string
	Status        *int
	RequestBytes  int64
	ResponseBytes int64

	Request  *RequestAnalysis
	Response *ResponseAnalysis
	Routing  *RoutingInfo

	// Checkpoints is the optional ordered span trace (dns, connect, tls,
	// first_byte), populated only at debug.level=full.
	Checkpoints []Checkpoint
}

type Checkpoint struct {
	Name string
	At   time.Time
}

// TotalLatencyMs returns the computed total latency, or -1 if the request
// has not completed.
func (r *Record) TotalLatencyMs() int64 {
	if r.CompletedAt == nil {
		return -1
	}
	return r.CompletedAt.Sub(r.StartedAt).Milliseconds()
}

// TimeToFirstByteMs returns the computed TTFB, or -1 if no byte has
// arrived yet.
func (r *Record) TimeToFirstByteMs() int64 {
	if r.FirstByteAt == nil {
		return -1
	}
	return r.FirstByteAt.Sub(r.StartedAt).Milliseconds()
}

// MarkFirstByte stamps the first-byte time, once.
func (r *Record) MarkFirstByte(at time.Time) {
	if r.FirstByteAt != nil {
		return
	}
	r.FirstByteAt = &at
}

// MarkCompleted stamps completion. status is nil when the request was
// cancelled before a status was known.
func (r *Record) MarkCompleted(at time.Time, status *int) {
	r.CompletedAt = &at
	r.Status = status
}
