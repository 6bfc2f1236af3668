package reasoning

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestHashBoundaryExactly256Bytes(t *testing.T) {
	content := strings.Repeat("a", 256)
	h := HashContent(content)
	// Prefix and suffix windows both cover the entire content; hashing
	// the same content twice must be stable.
	require.Equal(t, h, HashContent(content))
}

func TestHashMultiByteBoundary(t *testing.T) {
	// Build a string where a multi-byte rune straddles byte offset 256.
	var b strings.Builder
	b.WriteString(strings.Repeat("a", 255))
	b.WriteString("€") // 3-byte rune, occupies bytes 255-257
	b.WriteString(strings.Repeat("b", 300))
	content := b.String()

	// Must not panic and must be stable.
	h1 := HashContent(content)
	h2 := HashContent(content)
	require.Equal(t, h1, h2)
}

func TestSessionIDMonotonicNonDecreasing(t *testing.T) {
	reg := New("a", time.Minute)
	require.Equal(t, uint64(0), reg.CurrentSessionID())

	reg.NotifyBackendSwitch("a") // same id, no increment
	require.Equal(t, uint64(0), reg.CurrentSessionID())

	reg.NotifyBackendSwitch("b")
	require.Equal(t, uint64(1), reg.CurrentSessionID())

	reg.NotifyBackendSwitch("a")
	require.Equal(t, uint64(2), reg.CurrentSessionID())
}

func TestConfirmedNeverRemovedByOrphanSweepAlone(t *testing.T) {
	fixed := time.Now()
	reg := New("a", time.Millisecond)
	reg.now = func() time.Time { return fixed }

	h := HashContent("thinking content")
	reg.RegisterResponseBlock(h)
	reg.ProcessOutbound([]BlockHash{h}) // confirms it

	// Advance time far past the orphan threshold.
	reg.now = func() time.Time { return fixed.Add(time.Hour) }
	keep := reg.ProcessOutbound([]BlockHash{h})
	require.True(t, keep[h], "confirmed entries survive even when old")
}

func TestOrphanSweepRemovesUnconfirmedStale(t *testing.T) {
	fixed := time.Now()
	reg := New("a", time.Millisecond)
	reg.now = func() time.Time { return fixed }

	h := HashContent("never sent back")
	reg.RegisterResponseBlock(h)

	reg.now = func() time.Time { return fixed.Add(time.Hour) }
	// A request that does not include h triggers cleanup during its own
	// protocol run.
	keep := reg.ProcessOutbound([]BlockHash{})
	require.False(t, keep[h])
	require.Equal(t, 0, reg.Len())
}

func TestFilterDropsBlocksFromPriorSession(t *testing.T) {
	reg := New("a", time.Minute)
	h := HashContent("old session block")
	reg.RegisterResponseBlock(h)

	reg.NotifyBackendSwitch("b")

	keep := reg.ProcessOutbound([]BlockHash{h})
	require.False(t, keep[h], "block registered before the switch must not survive filter")
}

func TestPauseThenReturnToleratesReconfirm(t *testing.T) {
	// Confirm runs before cleanup, so a block that comes back after a
	// pause longer than the orphan threshold is confirmed rather than
	// swept as an orphan, as long as the session has not changed.
	fixed := time.Now()
	reg := New("a", time.Minute)
	reg.now = func() time.Time { return fixed }

	h := HashContent("paused block")
	reg.RegisterResponseBlock(h)

	// The user pauses well past the orphan threshold...
	reg.now = func() time.Time { return fixed.Add(time.Hour) }

	// ...then the block comes back in the next request.
	keep := reg.ProcessOutbound([]BlockHash{h})
	require.True(t, keep[h], "a returning block is confirmed before the orphan sweep runs")
}
