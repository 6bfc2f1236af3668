// Package shutdown implements the Shutdown Coordinator: a phased,
// monotonic state machine that sequences child-process termination
// and proxy shutdown within a bounded wall-clock budget.
//
// Grounded on the teacher's atomic-counter style in
// internal/monitoring.MetricsCollector (fields read without a lock via
// atomic.Int64/atomic.Add), applied here to a finite state machine
// instead of running totals.
package shutdown

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/anyclaude/anyclaude/internal/ptyhandle"
	"github.com/rs/zerolog"
)

// Phase is a monotonically increasing stage of shutdown. Owners observe
// it via Coordinator.Phase, a cheap atomic load.
type Phase int32

const (
	Running Phase = iota
	Signaled
	StoppingInput
	TerminatingChild
	ClosingProxy
	Cleanup
	Complete
)

func (p Phase) String() string {
	switch p {
	case Running:
		return "running"
	case Signaled:
		return "signaled"
	case StoppingInput:
		return "stopping_input"
	case TerminatingChild:
		return "terminating_child"
	case ClosingProxy:
		return "closing_proxy"
	case Cleanup:
		return "cleanup"
	case Complete:
		return "complete"
	default:
		return "unknown"
	}
}

// Timing knobs, per the coordinator's documented budget.
const (
	ChildSIGTERMGrace  = 300 * time.Millisecond
	ProxyDrainDeadline = 500 * time.Millisecond
	CleanupDeadline    = 2 * time.Second
)

// ProxyCloser is the subset of the Proxy Server's lifecycle the
// coordinator needs; satisfied by *proxyserver.Server.
type ProxyCloser interface {
	Shutdown(ctx context.Context, drain time.Duration) error
}

// AsyncRuntime is the subset of the supervisor's background-task
// lifecycle the coordinator needs to join during Cleanup.
type AsyncRuntime interface {
	Shutdown(ctx context.Context) error
}

// Coordinator sequences the supervisor's shutdown. Create one per
// process lifetime; Run is idempotent after the first call returns.
type Coordinator struct {
	phase atomic.Int32

	child ptyhandle.Handle
	proxy ProxyCloser
	async AsyncRuntime

	log zerolog.Logger
}

// New constructs a Coordinator. child or async may be nil if this
// process has no attached child process or async runtime to join
// (e.g. a doctor/version command that never reached Running).
func New(child ptyhandle.Handle, proxy ProxyCloser, async AsyncRuntime, log zerolog.Logger) *Coordinator {
	return &Coordinator{
		child: child,
		proxy: proxy,
		async: async,
		log:   log.With().Str("component", "shutdown").Logger(),
	}
}

// Phase returns the current phase via a single atomic load.
func (c *Coordinator) Phase() Phase {
	return Phase(c.phase.Load())
}

func (c *Coordinator) setPhase(p Phase) {
	c.phase.Store(int32(p))
	c.log.Debug().Str("phase", p.String()).Msg("shutdown phase transition")
}

// Run drives the coordinator through every phase to Complete. Safe to
// call from the goroutine that observed the signal (OS signal,
// operator quit, or unrecoverable failure) that set Signaled.
func (c *Coordinator) Run(ctx context.Context) error {
	if !c.phase.CompareAndSwap(int32(Running), int32(Signaled)) {
		return nil
	}
	c.log.Debug().Str("phase", Signaled.String()).Msg("shutdown phase transition")

	c.setPhase(StoppingInput)
	if c.child != nil {
		_ = c.child.Stdin().Close()
	}

	c.setPhase(TerminatingChild)
	childDone := make(chan struct{})
	go func() {
		c.terminateChild(ctx)
		close(childDone)
	}()

	c.setPhase(ClosingProxy)
	proxyDone := make(chan error, 1)
	go func() {
		if c.proxy == nil {
			proxyDone <- nil
			return
		}
		drainCtx, cancel := context.WithTimeout(ctx, ProxyDrainDeadline)
		defer cancel()
		proxyDone <- c.proxy.Shutdown(drainCtx, ProxyDrainDeadline)
	}()

	<-childDone
	proxyErr := <-proxyDone
	if proxyErr != nil {
		c.log.Warn().Err(proxyErr).Msg("proxy shutdown did not complete cleanly")
	}

	c.setPhase(Cleanup)
	var cleanupErr error
	if c.async != nil {
		cleanupCtx, cancel := context.WithTimeout(ctx, CleanupDeadline)
		defer cancel()
		cleanupErr = c.async.Shutdown(cleanupCtx)
	}

	c.setPhase(Complete)
	return cleanupErr
}

// terminateChild runs the documented sequence: SIGTERM, wait up to
// ChildSIGTERMGrace, SIGKILL if still alive, join.
func (c *Coordinator) terminateChild(ctx context.Context) {
	if c.child == nil {
		return
	}
	if c.child.Exited() {
		return
	}

	if err := c.child.Signal(ptyhandle.SignalTerm); err != nil {
		c.log.Debug().Err(err).Msg("SIGTERM delivery failed")
	}

	graceCtx, cancel := context.WithTimeout(ctx, ChildSIGTERMGrace)
	defer cancel()
	if err := c.child.Wait(graceCtx); err == nil {
		return
	}

	if !c.child.Exited() {
		if err := c.child.Signal(ptyhandle.SignalKill); err != nil {
			c.log.Debug().Err(err).Msg("SIGKILL delivery failed")
		}
	}

	joinCtx, cancel2 := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel2()
	_ = c.child.Wait(joinCtx)
}
