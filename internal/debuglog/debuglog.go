// Package debuglog implements the Debug Logger plugin: a level-gated,
// redacting, optionally-rotated request/response logger.
package debuglog

import (
	"sync/atomic"

	"github.com/anyclaude/anyclaude/internal/config"
	"github.com/anyclaude/anyclaude/internal/observability"
	"github.com/rs/zerolog"
)

// Level ordering matches the config string values; higher is more
// verbose.
const (
	LevelOff = iota
	LevelBasic
	LevelVerbose
	LevelFull
)

func levelFromString(s string) int {
	switch s {
	case "basic":
		return LevelBasic
	case "verbose":
		return LevelVerbose
	case "full":
		return LevelFull
	default:
		return LevelOff
	}
}

// Logger is the plugin. Its configuration is atomically swappable so
// SetDebugLogging (via the Command Bus) takes effect on the very next
// request with no lock on the hot path.
type Logger struct {
	cfg atomic.Pointer[config.DebugConfig]
	log zerolog.Logger

	writer *rotatingWriter
}

func New(initial config.DebugConfig, base zerolog.Logger) *Logger {
	l := &Logger{log: base.With().Str("component", "debug_logger").Logger()}
	l.cfg.Store(&initial)
	return l
}

func (l *Logger) Name() string { return "debug_logger" }

// SetConfig atomically swaps the active configuration.
func (l *Logger) SetConfig(cfg config.DebugConfig) {
	l.cfg.Store(&cfg)
}

func (l *Logger) Config() config.DebugConfig {
	return *l.cfg.Load()
}

func (l *Logger) PreRequest(rc *observability.RequestContext) *observability.BackendOverride {
	return nil
}

func (l *Logger) PostResponse(rc *observability.RequestContext) {
	cfg := l.Config()
	level := levelFromString(cfg.Level)
	if level == LevelOff {
		return
	}
	l.logRecord(level, cfg, rc.Record)
}

func (l *Logger) logRecord(level int, cfg config.DebugConfig, rec *observability.Record) {
	ev := l.log.Info()
	ev = ev.Str("request_id", rec.ID).
		Str("backend", rec.BackendID).
		Int64("latency_ms", rec.TotalLatencyMs())
	if rec.Status != nil {
		ev = ev.Int("status", *rec.Status)
	}

	if level >= LevelVerbose && rec.Request != nil {
		ev = ev.Str("model", rec.Request.Model).
			Int("input_tokens", rec.Request.InputTokenEstimate).
			Int("image_count", rec.Request.ImageCount)
	}
	if level >= LevelVerbose && rec.Response != nil {
		ev = ev.Int("output_tokens", rec.Response.OutputTokens).
			Str("stop_reason", rec.Response.StopReason).
			Float64("cost_usd", rec.Response.CostUSD)
	}
	if level >= LevelVerbose && rec.Routing != nil {
		ev = ev.Str("routing_rule", rec.Routing.RuleName).Str("routing_reason", rec.Routing.Reason)
	}

	ev.Msg("request")
}
