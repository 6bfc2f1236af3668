package alerts

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestReportAssignsMonotonicIDs(t *testing.T) {
	r := NewRegistry(10)
	e1 := r.Report(Event{Message: "first"})
	e2 := r.Report(Event{Message: "second"})
	require.Equal(t, uint64(1), e1.ID)
	require.Equal(t, uint64(2), e2.ID)
}

func TestBoundedRingEvictsOldest(t *testing.T) {
	r := NewRegistry(2)
	r.Report(Event{Message: "a"})
	r.Report(Event{Message: "b"})
	r.Report(Event{Message: "c"})

	recent := r.Recent()
	require.Len(t, recent, 2)
	require.Equal(t, "b", recent[0].Message)
	require.Equal(t, "c", recent[1].Message)
}

func TestSubscribersNotifiedOnReport(t *testing.T) {
	r := NewRegistry(10)
	var got Event
	r.Subscribe(func(e Event) { got = e })

	r.Report(Event{Message: "hi"})
	require.Equal(t, "hi", got.Message)
}

func TestRecoveryLifecycle(t *testing.T) {
	r := NewRegistry(10)
	r.StartRecovery("backend_connection", 3)
	r.UpdateRecovery("backend_connection", 1, "connection refused")
	r.UpdateRecovery("backend_connection", 2, "connection refused")

	rec, ok := r.GetRecovery("backend_connection")
	require.True(t, ok)
	require.Equal(t, 2, rec.Attempt)
	require.Equal(t, RecoveryInProgress, rec.State)

	r.FailRecovery("backend_connection", "exhausted retries")
	rec, _ = r.GetRecovery("backend_connection")
	require.Equal(t, RecoveryFailed, rec.State)

	events := r.Recent()
	require.Len(t, events, 1)
	require.Equal(t, SeverityError, events[0].Severity)
}

func TestFeatureDegradation(t *testing.T) {
	r := NewRegistry(10)
	r.SetFeatureDegraded("config_hot_reload", "watcher failed to start")

	degraded := r.DegradedFeatures()
	require.Equal(t, "watcher failed to start", degraded["config_hot_reload"])

	r.ClearFeatureDegraded("config_hot_reload")
	require.Empty(t, r.DegradedFeatures())
}

func TestAcknowledge(t *testing.T) {
	r := NewRegistry(10)
	e := r.Report(Event{Message: "needs ack"})

	require.True(t, r.Acknowledge(e.ID))
	require.False(t, r.Acknowledge(999))

	recent := r.Recent()
	require.True(t, recent[0].Acknowledged)
}
