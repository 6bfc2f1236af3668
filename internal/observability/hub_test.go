package observability

import (
	"testing"
	"time"

	"github.com/anyclaude/anyclaude/internal/config"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func completedRecord(id, backend string, status int, latency time.Duration) *Record {
	start := time.Now()
	end := start.Add(latency)
	s := status
	return &Record{ID: id, StartedAt: start, BackendID: backend, CompletedAt: &end, Status: &s}
}

func TestPushUpdatesAggregate(t *testing.T) {
	hub := NewHub(10, zerolog.Nop())
	hub.Push(completedRecord("1", "a", 200, 10*time.Millisecond))
	hub.Push(completedRecord("2", "a", 500, 20*time.Millisecond))

	snap := hub.Snapshot()
	agg := snap.PerBackend["a"]
	require.Equal(t, int64(2), agg.Total)
	require.Equal(t, int64(1), agg.Status2xx)
	require.Equal(t, int64(1), agg.Status5xx)
}

func TestRingEvictsOldest(t *testing.T) {
	hub := NewHub(2, zerolog.Nop())
	hub.Push(completedRecord("1", "a", 200, time.Millisecond))
	hub.Push(completedRecord("2", "a", 200, time.Millisecond))
	hub.Push(completedRecord("3", "a", 200, time.Millisecond))

	snap := hub.Snapshot()
	require.Len(t, snap.Recent, 2)
	require.Equal(t, "2", snap.Recent[0].ID)
	require.Equal(t, "3", snap.Recent[1].ID)
}

func TestEveryRequestHasExactlyOneRecordByID(t *testing.T) {
	hub := NewHub(100, zerolog.Nop())
	rec := completedRecord("req-1", "a", 200, time.Millisecond)
	hub.Push(rec)

	found, ok := hub.FindRecord("req-1")
	require.True(t, ok)
	require.Same(t, rec, found)
}

func TestPluginPanicIsCaught(t *testing.T) {
	hub := NewHub(10, zerolog.Nop())
	hub.RegisterPlugin(panickyPlugin{})

	require.NotPanics(t, func() {
		hub.Push(completedRecord("1", "a", 200, time.Millisecond))
	})
}

type panickyPlugin struct{}

func (panickyPlugin) Name() string                                { return "panicky" }
func (panickyPlugin) PreRequest(*RequestContext) *BackendOverride { panic("boom") }
func (panickyPlugin) PostResponse(*RequestContext)                { panic("boom") }

func TestPercentiles(t *testing.T) {
	hub := NewHub(100, zerolog.Nop())
	for i := 1; i <= 100; i++ {
		hub.Push(completedRecord("x", "a", 200, time.Duration(i)*time.Millisecond))
	}
	p := hub.Percentiles("a")
	require.InDelta(t, 50, p.P50Ms, 2)
	require.InDelta(t, 95, p.P95Ms, 2)
}

func TestCalculateCostNoPricingIsZero(t *testing.T) {
	require.Zero(t, CalculateCost(config.Backend{}, 1000, 1000))
}

func TestCalculateCostWithPricing(t *testing.T) {
	b := config.Backend{PriceInputPerMillion: 3, PriceOutputPerMillion: 15}
	cost := CalculateCost(b, 1_000_000, 1_000_000)
	require.InDelta(t, 18.0, cost, 0.001)
}
