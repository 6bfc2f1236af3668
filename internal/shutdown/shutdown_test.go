package shutdown

import (
	"bytes"
	"context"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/anyclaude/anyclaude/internal/ptyhandle"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

type fakeWriteCloser struct {
	bytes.Buffer
	closed atomic.Bool
}

func (f *fakeWriteCloser) Close() error {
	f.closed.Store(true)
	return nil
}

type fakeChild struct {
	stdin        *fakeWriteCloser
	exited       atomic.Bool
	sigTermSeen  atomic.Bool
	sigKillSeen  atomic.Bool
	waitBlocksAt time.Duration
}

func newFakeChild() *fakeChild {
	return &fakeChild{stdin: &fakeWriteCloser{}}
}

func (f *fakeChild) Stdin() io.WriteCloser { return f.stdin }

func (f *fakeChild) Signal(sig ptyhandle.Signal) error {
	switch sig {
	case ptyhandle.SignalTerm:
		f.sigTermSeen.Store(true)
	case ptyhandle.SignalKill:
		f.sigKillSeen.Store(true)
		f.exited.Store(true)
	}
	return nil
}

func (f *fakeChild) Wait(ctx context.Context) error {
	if f.exited.Load() {
		return nil
	}
	if f.waitBlocksAt == 0 {
		return nil
	}
	select {
	case <-time.After(f.waitBlocksAt):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (f *fakeChild) Exited() bool { return f.exited.Load() }

func (f *fakeChild) PublishEnv(map[string]string) {}

type fakeProxy struct {
	shutdownCalled atomic.Bool
}

func (f *fakeProxy) Shutdown(ctx context.Context, drain time.Duration) error {
	f.shutdownCalled.Store(true)
	return nil
}

type fakeAsync struct {
	shutdownCalled atomic.Bool
}

func (f *fakeAsync) Shutdown(ctx context.Context) error {
	f.shutdownCalled.Store(true)
	return nil
}

func TestRunReachesCompleteWhenChildExitsQuickly(t *testing.T) {
	child := newFakeChild()
	proxy := &fakeProxy{}
	async := &fakeAsync{}

	c := New(child, proxy, async, zerolog.Nop())
	err := c.Run(context.Background())

	require.NoError(t, err)
	require.Equal(t, Complete, c.Phase())
	require.True(t, child.stdin.closed.Load())
	require.True(t, child.sigTermSeen.Load())
	require.False(t, child.sigKillSeen.Load())
	require.True(t, proxy.shutdownCalled.Load())
	require.True(t, async.shutdownCalled.Load())
}

func TestRunEscalatesToSIGKILLWhenChildHangs(t *testing.T) {
	child := newFakeChild()
	child.waitBlocksAt = 2 * time.Second // longer than ChildSIGTERMGrace

	c := New(child, &fakeProxy{}, &fakeAsync{}, zerolog.Nop())
	err := c.Run(context.Background())

	require.NoError(t, err)
	require.True(t, child.sigTermSeen.Load())
	require.True(t, child.sigKillSeen.Load())
}

func TestRunWithNilChildAndProxySkipsThem(t *testing.T) {
	c := New(nil, nil, nil, zerolog.Nop())
	err := c.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, Complete, c.Phase())
}

func TestPhaseStringsAreStable(t *testing.T) {
	require.Equal(t, "running", Running.String())
	require.Equal(t, "signaled", Signaled.String())
	require.Equal(t, "stopping_input", StoppingInput.String())
	require.Equal(t, "terminating_child", TerminatingChild.String())
	require.Equal(t, "closing_proxy", ClosingProxy.String())
	require.Equal(t, "cleanup", Cleanup.String())
	require.Equal(t, "complete", Complete.String())
}
