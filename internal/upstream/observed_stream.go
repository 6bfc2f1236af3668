package upstream

import (
	"bytes"
	"context"
	"io"
	"strings"
	"time"

	"github.com/anyclaude/anyclaude/internal/observability"
	"github.com/anyclaude/anyclaude/internal/reasoning"
	"github.com/anyclaude/anyclaude/internal/transform"
	"github.com/rs/zerolog"
)

// observedStream wraps an upstream response body so the Upstream Client
// can stamp first-byte time, count bytes, apply the SSE reverse model
// rewriter, feed SSE events into the Reasoning Registry's response-side
// protocol, and call the Request Record's completion hook at stream end —
// all as a side effect of the client's own Read calls, exactly as the
// teacher's streamResponse/sseUsageParser pair observes bytes while
// copying them, generalized here from usage-extraction to the fuller
// response-side rewriter pipeline this system needs.
type observedStream struct {
	upstream io.ReadCloser
	rec      *observability.Record
	hub      *observability.Hub

	sseRewriter *transform.SSEModelRewriter
	accumulator *reasoning.StreamAccumulator
	sseBuf      *sseLineBuffer

	isSSE       bool
	nonJSONRead bool

	idleTimeout time.Duration
	lastByteAt  time.Time

	// carry holds rewritten bytes that did not fit in the caller's
	// buffer on a prior Read; drained before reading more from upstream.
	carry []byte

	closed bool
}

func newObservedStream(
	upstream io.ReadCloser,
	rec *observability.Record,
	hub *observability.Hub,
	reasoningReg *reasoning.Registry,
	rewriteModel bool,
	requestedModel, mappedModel string,
	isSSE bool,
	idleTimeout time.Duration,
	log zerolog.Logger,
) *observedStream {
	s := &observedStream{
		upstream:    upstream,
		rec:         rec,
		hub:         hub,
		isSSE:       isSSE,
		idleTimeout: idleTimeout,
		lastByteAt:  time.Now(),
	}
	if isSSE {
		s.accumulator = reasoning.NewStreamAccumulator(reasoningReg)
		s.sseBuf = newSSELineBuffer()
		if rewriteModel {
			s.sseRewriter = transform.NewSSEModelRewriter(requestedModel, mappedModel, log)
		}
	}
	return s
}

func (s *observedStream) Read(p []byte) (int, error) {
	if len(s.carry) > 0 {
		n := copy(p, s.carry)
		s.carry = s.carry[n:]
		return n, nil
	}

	if s.isSSE && s.idleTimeout > 0 && time.Since(s.lastByteAt) > s.idleTimeout {
		s.finish(nil)
		return 0, context.DeadlineExceeded
	}

	n, err := s.upstream.Read(p)
	if n > 0 {
		s.lastByteAt = time.Now()
		s.rec.MarkFirstByte(s.lastByteAt)
		s.rec.ResponseBytes += int64(n)

		if s.isSSE {
			rewritten := s.observeSSEChunk(p[:n])
			n = copy(p, rewritten)
			if n < len(rewritten) {
				s.carry = append([]byte(nil), rewritten[n:]...)
			}
		}
	}

	if err != nil {
		status := 200
		if err == io.EOF {
			s.finish(&status)
		} else {
			s.finish(nil)
		}
	}

	return n, err
}

// observeSSEChunk feeds complete lines to the reasoning accumulator and
// the model rewriter, returning the (possibly rewritten) bytes to emit.
func (s *observedStream) observeSSEChunk(chunk []byte) []byte {
	out := chunk
	if s.sseRewriter != nil {
		out = s.sseRewriter.Rewrite(chunk)
	}
	s.sseBuf.Feed(out, s.accumulator)
	return out
}

func (s *observedStream) Close() error {
	s.finish(nil)
	return s.upstream.Close()
}

func (s *observedStream) finish(status *int) {
	if s.closed {
		return
	}
	s.closed = true
	s.rec.MarkCompleted(time.Now(), status)
	s.hub.Push(s.rec)
}

// sseLineBuffer accumulates SSE "event:"/"data:" line pairs across
// Read-sized chunks so the reasoning response-side protocol only ever
// sees complete events, never a partial one split by a chunk boundary.
type sseLineBuffer struct {
	partial   []byte
	eventType string
}

func newSSELineBuffer() *sseLineBuffer {
	return &sseLineBuffer{}
}

func (b *sseLineBuffer) Feed(chunk []byte, acc *reasoning.StreamAccumulator) {
	b.partial = append(b.partial, chunk...)

	for {
		idx := bytes.IndexByte(b.partial, '\n')
		if idx == -1 {
			return
		}
		line := b.partial[:idx]
		b.partial = b.partial[idx+1:]
		b.handleLine(line, acc)
	}
}

func (b *sseLineBuffer) handleLine(line []byte, acc *reasoning.StreamAccumulator) {
	line = bytes.TrimRight(line, "\r")
	switch {
	case bytes.HasPrefix(line, []byte("event:")):
		b.eventType = strings.TrimSpace(string(line[len("event:"):]))
	case bytes.HasPrefix(line, []byte("data:")):
		data := bytes.TrimSpace(line[len("data:"):])
		if len(data) > 0 && b.eventType != "" {
			acc.HandleEvent(b.eventType, data)
		}
	case len(line) == 0:
		b.eventType = ""
	}
}
