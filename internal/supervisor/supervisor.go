// Package supervisor implements the Runtime Supervisor: it wires the
// Config Store, session token, Observability Hub, Backend State,
// Reasoning Registry, Reasoning Transformer, Upstream Client, Routing
// Middleware, Proxy Server, Command Bus, file watcher, and sub-agent
// shim into a single running system, and reacts to config hot-reload.
//
// Grounded on the teacher's cmd/agent.go overall wiring style (manual
// construction in dependency order, no DI framework), restructured so
// the wiring itself lives in internal/supervisor rather than cmd/, per
// the package layout this system uses.
package supervisor

import (
	"context"
	"fmt"
	"time"

	"github.com/anyclaude/anyclaude/internal/alerts"
	"github.com/anyclaude/anyclaude/internal/backendstate"
	"github.com/anyclaude/anyclaude/internal/commandbus"
	"github.com/anyclaude/anyclaude/internal/config"
	"github.com/anyclaude/anyclaude/internal/debuglog"
	"github.com/anyclaude/anyclaude/internal/observability"
	"github.com/anyclaude/anyclaude/internal/proxyserver"
	"github.com/anyclaude/anyclaude/internal/reasoning"
	"github.com/anyclaude/anyclaude/internal/routing"
	"github.com/anyclaude/anyclaude/internal/session"
	"github.com/anyclaude/anyclaude/internal/shim"
	"github.com/anyclaude/anyclaude/internal/transform"
	"github.com/anyclaude/anyclaude/internal/upstream"
	"github.com/rs/zerolog"
)

const (
	observabilityRingCapacity = 1000
	alertsRingCapacity        = 500
)

// Supervisor owns every long-lived component and is the single thing
// cmd/anyclaude's run command starts and stops.
type Supervisor struct {
	configStore *config.Store
	token       session.Token

	hub          *observability.Hub
	backendState *backendstate.State
	reasoningReg *reasoning.Registry
	alertsReg    *alerts.Registry
	debugLogger  *debuglog.Logger

	upstreamClient *upstream.Client
	router         *routing.Middleware
	proxy          *proxyserver.Server
	bus            *commandbus.Bus
	shimHandle     *shim.Shim

	log zerolog.Logger
}

// Options configures New.
type Options struct {
	ConfigPath      string
	MultiplexerName string // default "tmux"
	GuestBinaryName string // default "claude"
	Log             zerolog.Logger
}

// New loads the config, mints the session token, and constructs every
// component, in dependency order. It does not start the proxy listener
// or the file watcher; call Start for that.
func New(opts Options) (*Supervisor, error) {
	log := opts.Log
	store := config.NewStore(log)
	snap, err := store.Load(opts.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("supervisor: load config: %w", err)
	}

	s := &Supervisor{
		configStore: store,
		token:       session.Mint(),
		log:         log.With().Str("component", "supervisor").Logger(),
	}

	s.hub = observability.NewHub(observabilityRingCapacity, log)
	s.backendState = backendstate.New(snap)
	s.reasoningReg = reasoning.New(s.backendState.Get(), 5*time.Minute)
	s.alertsReg = alerts.NewRegistry(alertsRingCapacity)
	s.debugLogger = debuglog.New(snap.Debug(), log)
	s.hub.RegisterPlugin(s.debugLogger)

	transformer, err := s.buildTransformer(snap)
	if err != nil {
		return nil, err
	}

	s.upstreamClient = upstream.New(snap, s.backendState, s.reasoningReg, transformer, s.hub, s.alertsReg, log)
	s.backendState.Subscribe(func(sw backendstate.Switch) {
		s.reasoningReg.NotifyBackendSwitch(sw.To)
	})
	s.router = buildRouter(snap)
	s.bus = commandbus.New()

	multiplexerName := opts.MultiplexerName
	if multiplexerName == "" {
		multiplexerName = "tmux"
	}
	guestBinaryName := opts.GuestBinaryName
	if guestBinaryName == "" {
		guestBinaryName = "claude"
	}

	s.proxy = proxyserver.New(s.token, s.upstreamClient, s.hub, s.configStore.Current, func() *routing.Middleware { return s.router }, log)

	if snap.SubAgent().TeammateBackendID != "" {
		sh, err := shim.Create(snap.Proxy().BaseURL, snap.SubAgent().PathPrefix, multiplexerName, guestBinaryName, log)
		if err != nil {
			return nil, fmt.Errorf("supervisor: create sub-agent shim: %w", err)
		}
		s.shimHandle = sh
	}

	return s, nil
}

func (s *Supervisor) buildTransformer(snap *config.Snapshot) (transform.Transformer, error) {
	switch snap.Reasoning().Mode {
	case "summarize":
		sc := snap.Reasoning().Summarize
		return transform.NewSummarize(transform.SummarizeConfig{
			BaseURL:   sc.BaseURL,
			APIKey:    sc.APIKey,
			Model:     sc.Model,
			MaxTokens: sc.MaxTokens,
		}, s.alertsReg, s.log), nil
	case "strip", "":
		return transform.NewStrip(), nil
	default:
		return nil, fmt.Errorf("supervisor: unknown reasoning.mode %q", snap.Reasoning().Mode)
	}
}

func buildRouter(snap *config.Snapshot) *routing.Middleware {
	sa := snap.SubAgent()
	if sa.TeammateBackendID == "" {
		return nil
	}
	return routing.New(routing.PathPrefixRule{
		Prefix:    sa.PathPrefix,
		BackendID: sa.TeammateBackendID,
		Reason:    "sub_agent_prefix_match",
	})
}

// Start begins serving: the proxy listener, the config file watcher,
// and command bus consumption. It blocks until the proxy listener
// exits (normally via Shutdown closing it).
func (s *Supervisor) Start(ctx context.Context) error {
	watchDir := configParentDir(s.configStore.Current().SourcePath())
	if err := s.configStore.StartWatch(watchDir, config.DefaultDebounce, s.onConfigReloaded); err != nil {
		s.log.Warn().Err(err).Msg("failed to start config file watcher, hot-reload disabled")
	}

	go s.serveCommands(ctx)

	return s.proxy.Start()
}

// BoundAddr returns the proxy's actually-bound address, valid only
// after Start has begun listening.
func (s *Supervisor) BoundAddr() string {
	return s.proxy.BoundAddr()
}

// ProxyCloser adapts the Supervisor's proxy to
// internal/shutdown.ProxyCloser; Supervisor itself can't implement
// that interface directly since it already has a single-argument
// Shutdown method satisfying internal/shutdown.AsyncRuntime instead.
type ProxyCloser struct {
	s *Supervisor
}

// Proxy returns the adapter the Shutdown Coordinator should use for
// this supervisor's proxy half of shutdown.
func (s *Supervisor) Proxy() ProxyCloser {
	return ProxyCloser{s: s}
}

func (p ProxyCloser) Shutdown(ctx context.Context, drain time.Duration) error {
	return p.s.proxy.Shutdown(ctx, drain)
}

// Token returns the process-lifetime session token the guest must
// present on every request.
func (s *Supervisor) Token() session.Token {
	return s.token
}

// CommandSender returns the front-end's handle onto the command bus.
func (s *Supervisor) CommandSender() commandbus.Sender {
	return s.bus.Sender()
}

// Shutdown stops the file watcher and hands off to the caller's
// Shutdown Coordinator for proxy/child/cleanup sequencing; this method
// itself only tears down supervisor-owned background state that the
// coordinator doesn't know about.
func (s *Supervisor) Shutdown(ctx context.Context) error {
	s.configStore.StopWatch()
	if s.shimHandle != nil {
		if err := s.shimHandle.Close(); err != nil {
			s.log.Warn().Err(err).Msg("failed to remove sub-agent shim directory")
		}
	}
	return nil
}

// onConfigReloaded implements the documented hot-reload reaction:
// re-check the active backend still exists, swap the Reasoning
// Transformer if its mode changed, push the new Debug Logger config.
// Upstream Client timeouts/pool settings are fixed at construction and
// require a restart, per the documented limitation.
func (s *Supervisor) onConfigReloaded(snap *config.Snapshot) {
	if err := s.backendState.UpdateConfig(snap); err != nil {
		s.log.Warn().Err(err).Msg("active backend no longer exists after config reload")
	}

	transformer, err := s.buildTransformer(snap)
	if err != nil {
		s.log.Warn().Err(err).Msg("failed to rebuild reasoning transformer after config reload")
	} else {
		s.upstreamClient.SetTransformer(transformer)
	}

	s.debugLogger.SetConfig(snap.Debug())
	s.router = buildRouter(snap)
}

func (s *Supervisor) serveCommands(ctx context.Context) {
	recv := s.bus.Receiver()
	for {
		select {
		case <-ctx.Done():
			return
		case cmd, ok := <-recv.Recv():
			if !ok {
				return
			}
			s.handleCommand(cmd)
		}
	}
}

func (s *Supervisor) handleCommand(cmd commandbus.Command) {
	switch cmd.Kind {
	case commandbus.KindSwitchBackend:
		newID, err := s.backendState.Set(s.configStore.Current(), cmd.SwitchBackendID)
		commandbus.Respond(cmd, newID, err)
	case commandbus.KindGetStatus:
		commandbus.Respond(cmd, s.statusSnapshot(), nil)
	case commandbus.KindGetMetrics:
		commandbus.Respond(cmd, s.hub.Snapshot(), nil)
	case commandbus.KindListBackends:
		commandbus.Respond(cmd, s.configStore.Current().Backends(), nil)
	case commandbus.KindSetDebugLogging:
		if cfg, ok := cmd.DebugLoggingCfg.(config.DebugConfig); ok {
			s.debugLogger.SetConfig(cfg)
			commandbus.Respond(cmd, nil, nil)
		} else {
			commandbus.Respond(cmd, nil, fmt.Errorf("supervisor: SetDebugLogging payload has wrong type"))
		}
	case commandbus.KindGetDebugLogging:
		commandbus.Respond(cmd, s.debugLogger.Config(), nil)
	default:
		commandbus.Respond(cmd, nil, fmt.Errorf("supervisor: unknown command kind %d", cmd.Kind))
	}
}

// statusSnapshot is the ProxyStatus payload for GetStatus.
type statusSnapshot struct {
	ActiveBackendID string
	BoundAddr       string
	Degraded        map[string]string
}

func (s *Supervisor) statusSnapshot() statusSnapshot {
	return statusSnapshot{
		ActiveBackendID: s.backendState.Get(),
		BoundAddr:       s.proxy.BoundAddr(),
		Degraded:        s.alertsReg.DegradedFeatures(),
	}
}

func configParentDir(path string) string {
	dir := "."
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' {
			dir = path[:i]
			break
		}
	}
	return dir
}
