// Package proxyserver implements the Proxy Server: the sole owner of the
// TCP listener, authenticating and id-tagging every inbound request
// before delegating to the Upstream Client.
//
// Grounded on cgistar-clisimplehub's internal/proxy/server.go
// (ProxyServer.Start/Stop, http.Server field shape, handleHealth) and on
// the teacher's getRequestID/writeError conventions in
// internal/gateway/handler.go, generalized with the session-token auth
// check, monotonic request id, and routing-middleware dispatch this
// system adds.
package proxyserver

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/anyclaude/anyclaude/internal/config"
	"github.com/anyclaude/anyclaude/internal/observability"
	"github.com/anyclaude/anyclaude/internal/routing"
	"github.com/anyclaude/anyclaude/internal/session"
	"github.com/anyclaude/anyclaude/internal/upstream"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// MaxPortProbes bounds how many additional ports are tried after the
// configured bind_addr's port is busy.
const MaxPortProbes = 5

// ConfigProvider supplies the current snapshot to each request without
// the Server holding a reference to the Store directly, keeping the
// dependency direction one way (config -> proxyserver, never back).
type ConfigProvider func() *config.Snapshot

// Server owns the TCP listener.
type Server struct {
	token    session.Token
	client   *upstream.Client
	hub      *observability.Hub
	snapFn   ConfigProvider
	routerFn func() *routing.Middleware

	httpServer *http.Server
	listener   net.Listener
	boundAddr  string

	requestSeq atomic.Uint64
	log        zerolog.Logger
}

// New constructs a Server. routerFn is resolved per-request (not frozen
// at construction) so a hot-reloaded sub_agent section takes effect
// without restarting the listener.
func New(token session.Token, client *upstream.Client, hub *observability.Hub, snapFn ConfigProvider, routerFn func() *routing.Middleware, log zerolog.Logger) *Server {
	return &Server{
		token:    token,
		client:   client,
		hub:      hub,
		snapFn:   snapFn,
		routerFn: routerFn,
		log:      log.With().Str("component", "proxyserver").Logger(),
	}
}

// BoundAddr returns the address actually bound after Start, which may
// differ from the configured bind_addr if the configured port was busy.
func (s *Server) BoundAddr() string {
	return s.boundAddr
}

// Start binds the configured address, probing up to MaxPortProbes
// subsequent ports if it's busy, then serves until the listener is
// closed by Shutdown.
func (s *Server) Start() error {
	addr := s.snapFn().Proxy().BindAddr
	listener, boundAddr, err := bindWithProbing(addr, MaxPortProbes)
	if err != nil {
		return fmt.Errorf("proxyserver: %w", err)
	}
	s.listener = listener
	s.boundAddr = boundAddr

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handle)

	s.httpServer = &http.Server{
		Handler:      mux,
		ReadTimeout:  300 * time.Second,
		WriteTimeout: 0, // streaming responses have no fixed upper bound
		IdleTimeout:  120 * time.Second,
	}

	s.log.Info().Str("addr", boundAddr).Msg("proxy server listening")
	err = s.httpServer.Serve(listener)
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown stops accepting new connections and waits up to drain for
// active streams to finish before cancelling them.
func (s *Server) Shutdown(ctx context.Context, drain time.Duration) error {
	if s.httpServer == nil {
		return nil
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, drain)
	defer cancel()
	return s.httpServer.Shutdown(shutdownCtx)
}

func bindWithProbing(addr string, extraProbes int) (net.Listener, string, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, "", fmt.Errorf("invalid bind_addr %q: %w", addr, err)
	}
	basePort, err := strconv.Atoi(portStr)
	if err != nil && portStr != "0" {
		return nil, "", fmt.Errorf("invalid bind_addr port %q: %w", portStr, err)
	}

	var lastErr error
	for i := 0; i <= extraProbes; i++ {
		candidate := net.JoinHostPort(host, strconv.Itoa(basePort+i))
		if portStr == "0" {
			candidate = addr // :0 means "any free port", never probe past it
		}
		l, err := net.Listen("tcp", candidate)
		if err == nil {
			return l, l.Addr().String(), nil
		}
		lastErr = err
		if portStr == "0" {
			break
		}
	}
	return nil, "", fmt.Errorf("no free port found near %s: %w", addr, lastErr)
}

// handle is the single entry point for every inbound connection.
func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == "/health" {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
		return
	}

	if !s.token.Validate(r.Header.Get("Authorization")) {
		s.writeError(w, http.StatusUnauthorized, "unauthorized", "invalid or missing session token", "")
		return
	}

	requestID := s.mintRequestID(r)
	w.Header().Set("X-Request-Id", requestID)

	snap := s.snapFn()
	router := s.routerFn()

	var decision routing.Decision
	hasRouting := false
	if router != nil {
		decision, hasRouting = router.Evaluate(r)
		if hasRouting && decision.StripPrefix != "" {
			r.URL.Path = routing.StripPrefix(r.URL.Path, decision.StripPrefix)
		}
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid_request", "failed to read request body", requestID)
		return
	}

	rec := &observability.Record{ID: requestID, StartedAt: time.Now()}
	if hasRouting {
		rec.Routing = &observability.RoutingInfo{RuleName: decision.Reason, Reason: decision.Reason}
	}
	s.hub.PreRequest(rec)

	resp, proxyErr := s.client.Forward(r.Context(), &upstream.Request{
		HTTPRequest: r,
		Body:        body,
		Routing:     decision,
		HasRouting:  hasRouting,
		RequestID:   requestID,
	}, snap, rec)

	if proxyErr != nil {
		rec.MarkCompleted(time.Now(), nil)
		s.hub.Push(rec)
		s.writeError(w, proxyErr.Status, proxyErr.Type, proxyErr.Message, requestID)
		return
	}
	defer resp.Body.Close()

	for k, vs := range resp.Header {
		for _, v := range vs {
			w.Header().Add(k, v)
		}
	}
	w.WriteHeader(resp.StatusCode)

	flusher, canFlush := w.(http.Flusher)
	buf := make([]byte, 32*1024)
	for {
		n, rerr := resp.Body.Read(buf)
		if n > 0 {
			if _, werr := w.Write(buf[:n]); werr != nil {
				s.log.Debug().Err(werr).Str("request_id", requestID).Msg("client disconnected mid-stream")
				break
			}
			if canFlush {
				flusher.Flush()
			}
		}
		if rerr != nil {
			break
		}
	}
}

func (s *Server) mintRequestID(r *http.Request) string {
	if id := r.Header.Get("X-Request-Id"); id != "" {
		return id
	}
	seq := s.requestSeq.Add(1)
	return fmt.Sprintf("%d-%s", seq, uuid.New().String())
}

// errorEnvelope matches the standard JSON error body every ProxyError is
// converted to, per the Upstream Client's error taxonomy.
type errorEnvelope struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	Type      string `json:"type"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

func (s *Server) writeError(w http.ResponseWriter, status int, typ, message, requestID string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(errorEnvelope{Error: errorBody{Type: typ, Message: message, RequestID: requestID}})
}
