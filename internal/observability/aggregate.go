package observability

import (
	"sort"
	"sync"
	"sync/atomic"
)

// BackendAggregate holds running per-backend counters, updated
// atomically on every push. Grounded on the teacher's MetricsCollector,
// generalized from compression-specific counters to status-class and
// latency counters.
type BackendAggregate struct {
	total     atomic.Int64
	status2xx atomic.Int64
	status4xx atomic.Int64
	status5xx atomic.Int64
	timeouts  atomic.Int64

	// Running sums for mean latency / TTFB; divide by total for the mean.
	latencySumMs atomic.Int64
	ttfbSumMs    atomic.Int64
	ttfbCount    atomic.Int64
}

func newBackendAggregate() *BackendAggregate { return &BackendAggregate{} }

func (a *BackendAggregate) record(rec *Record) {
	a.total.Add(1)
	if rec.Status != nil {
		switch {
		case *rec.Status >= 200 && *rec.Status < 300:
			a.status2xx.Add(1)
		case *rec.Status >= 400 && *rec.Status < 500:
			a.status4xx.Add(1)
		case *rec.Status >= 500:
			a.status5xx.Add(1)
		}
		if *rec.Status == 504 {
			a.timeouts.Add(1)
		}
	} else {
		a.timeouts.Add(1)
	}
	if lat := rec.TotalLatencyMs(); lat >= 0 {
		a.latencySumMs.Add(lat)
	}
	if ttfb := rec.TimeToFirstByteMs(); ttfb >= 0 {
		a.ttfbSumMs.Add(ttfb)
		a.ttfbCount.Add(1)
	}
}

// AggregateSnapshot is the point-in-time-consistent (per backend) view
// exposed over the Command Bus.
type AggregateSnapshot struct {
	Total         int64
	Status2xx     int64
	Status4xx     int64
	Status5xx     int64
	Timeouts      int64
	MeanLatencyMs float64
	MeanTTFBMs    float64
}

func (a *BackendAggregate) Snapshot() AggregateSnapshot {
	total := a.total.Load()
	s := AggregateSnapshot{
		Total:     total,
		Status2xx: a.status2xx.Load(),
		Status4xx: a.status4xx.Load(),
		Status5xx: a.status5xx.Load(),
		Timeouts:  a.timeouts.Load(),
	}
	if total > 0 {
		s.MeanLatencyMs = float64(a.latencySumMs.Load()) / float64(total)
	}
	if c := a.ttfbCount.Load(); c > 0 {
		s.MeanTTFBMs = float64(a.ttfbSumMs.Load()) / float64(c)
	}
	return s
}

// aggregates holds one BackendAggregate per backend id, created lazily.
type aggregates struct {
	mu sync.Mutex
	m  map[string]*BackendAggregate
}

func newAggregates() *aggregates {
	return &aggregates{m: make(map[string]*BackendAggregate)}
}

func (a *aggregates) forBackend(id string) *BackendAggregate {
	a.mu.Lock()
	defer a.mu.Unlock()
	agg, ok := a.m[id]
	if !ok {
		agg = newBackendAggregate()
		a.m[id] = agg
	}
	return agg
}

func (a *aggregates) snapshotAll() map[string]AggregateSnapshot {
	a.mu.Lock()
	ids := make([]string, 0, len(a.m))
	aggs := make([]*BackendAggregate, 0, len(a.m))
	for id, agg := range a.m {
		ids = append(ids, id)
		aggs = append(aggs, agg)
	}
	a.mu.Unlock()

	out := make(map[string]AggregateSnapshot, len(ids))
	for i, id := range ids {
		out[id] = aggs[i].Snapshot()
	}
	return out
}

// Percentiles computes p50/p95/p99 latency from a sorted snapshot of the
// given records, restricted to the given backend if non-empty.
type Percentiles struct {
	P50Ms float64
	P95Ms float64
	P99Ms float64
}

func computePercentiles(records []*Record, backendID string) Percentiles {
	var latencies []float64
	for _, r := range records {
		if backendID != "" && r.BackendID != backendID {
			continue
		}
		if lat := r.TotalLatencyMs(); lat >= 0 {
			latencies = append(latencies, float64(lat))
		}
	}
	if len(latencies) == 0 {
		return Percentiles{}
	}
	sort.Float64s(latencies)
	return Percentiles{
		P50Ms: percentileOf(latencies, 0.50),
		P95Ms: percentileOf(latencies, 0.95),
		P99Ms: percentileOf(latencies, 0.99),
	}
}

func percentileOf(sorted []float64, p float64) float64 {
	if len(sorted) == 1 {
		return sorted[0]
	}
	idx := int(p * float64(len(sorted)-1))
	return sorted[idx]
}
