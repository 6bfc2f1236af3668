// Package commandbus decouples the synchronous front-end from the
// asynchronous mediation runtime: a bounded channel of typed commands,
// each carrying a one-shot reply channel.
package commandbus

import (
	"context"
	"errors"
	"time"
)

const Capacity = 16

// DefaultReplyDeadline is applied by callers to each reply wait; expiry is
// treated as non-fatal.
const DefaultReplyDeadline = time.Second

var ErrReplyTimeout = errors.New("commandbus: reply deadline exceeded")

// Kind identifies a command's shape.
type Kind int

const (
	KindSwitchBackend Kind = iota
	KindGetStatus
	KindGetMetrics
	KindListBackends
	KindSetDebugLogging
	KindGetDebugLogging
)

// Command is the envelope sent from front-end to runtime.
type Command struct {
	Kind  Kind
	Reply chan Reply

	SwitchBackendID  string
	MetricsBackendID string // optional filter for GetMetrics
	DebugLoggingCfg  any
}

// Reply carries a command's result back through its one-shot channel.
type Reply struct {
	Value any
	Err   error
}

// Bus is the bounded channel itself. The front-end holds a Sender; the
// runtime holds a Receiver. Both are thin wrappers to keep direction
// explicit at call sites.
type Bus struct {
	ch chan Command
}

func New() *Bus {
	return &Bus{ch: make(chan Command, Capacity)}
}

func (b *Bus) Sender() Sender     { return Sender{ch: b.ch} }
func (b *Bus) Receiver() Receiver { return Receiver{ch: b.ch} }

// Sender is the front-end's handle onto the bus.
type Sender struct {
	ch chan Command
}

// Send submits a command and waits up to deadline for a reply. If the
// runtime's receiver has dropped (channel send would block forever), ctx
// cancellation unblocks the caller instead of hanging.
func (s Sender) Send(ctx context.Context, cmd Command) (Reply, error) {
	if cmd.Reply == nil {
		cmd.Reply = make(chan Reply, 1)
	}

	select {
	case s.ch <- cmd:
	case <-ctx.Done():
		return Reply{}, ctx.Err()
	}

	select {
	case r := <-cmd.Reply:
		return r, nil
	case <-ctx.Done():
		return Reply{}, ErrReplyTimeout
	}
}

// SendWithDeadline is a convenience wrapper applying DefaultReplyDeadline
// (or the given one) as a fresh context.
func (s Sender) SendWithDeadline(cmd Command, deadline time.Duration) (Reply, error) {
	if deadline <= 0 {
		deadline = DefaultReplyDeadline
	}
	ctx, cancel := context.WithTimeout(context.Background(), deadline)
	defer cancel()
	return s.Send(ctx, cmd)
}

// Close closes the sender's side of the bus. The runtime is expected to
// treat a closed channel as a shutdown signal for the front-end's side
// only; it keeps serving otherwise.
func (s Sender) Close() { close(s.ch) }

// Receiver is the runtime's handle onto the bus.
type Receiver struct {
	ch chan Command
}

// Recv returns the channel to range/select over. If the channel is
// closed, the runtime treats it as "front-end is gone" and keeps serving
// without a command source.
func (r Receiver) Recv() <-chan Command { return r.ch }

// Respond is a convenience for handlers to send a value/error back and
// never block even if the caller gave up waiting.
func Respond(cmd Command, value any, err error) {
	select {
	case cmd.Reply <- Reply{Value: value, Err: err}:
	default:
	}
}
