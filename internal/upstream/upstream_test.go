package upstream

import (
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/anyclaude/anyclaude/internal/alerts"
	"github.com/anyclaude/anyclaude/internal/backendstate"
	"github.com/anyclaude/anyclaude/internal/config"
	"github.com/anyclaude/anyclaude/internal/observability"
	"github.com/anyclaude/anyclaude/internal/reasoning"
	"github.com/anyclaude/anyclaude/internal/routing"
	"github.com/anyclaude/anyclaude/internal/transform"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func testSnapshot(t *testing.T, backends []config.Backend, activeID string) *config.Snapshot {
	t.Helper()
	store := config.NewStore(zerolog.Nop())

	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")

	content := "[defaults]\nactive_backend_id = \"" + activeID + "\"\n\n"
	for _, b := range backends {
		content += "[[backends]]\n"
		content += "id = \"" + b.ID + "\"\n"
		content += "base_url = \"" + b.BaseURL + "\"\n"
		content += "auth = \"forward\"\n\n"
	}
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	snap, err := store.Load(path)
	require.NoError(t, err)
	return snap
}

func newTestClient(t *testing.T, snap *config.Snapshot) (*Client, *backendstate.State, *observability.Hub, *alerts.Registry, *reasoning.Registry) {
	t.Helper()
	state := backendstate.New(snap)
	hub := observability.NewHub(100, zerolog.Nop())
	alertsReg := alerts.NewRegistry(100)
	reasoningReg := reasoning.New(state.Get(), time.Minute)
	strip := transform.NewStrip()
	client := New(snap, state, reasoningReg, strip, hub, alertsReg, zerolog.Nop())
	return client, state, hub, alertsReg, reasoningReg
}

func TestForwardNonStreamingBasicPassthrough(t *testing.T) {
	upstreamSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"content":[{"type":"text","text":"hi"}]}`))
	}))
	defer upstreamSrv.Close()

	snap := testSnapshot(t, []config.Backend{{ID: "a", BaseURL: upstreamSrv.URL}}, "a")
	client, _, hub, _, _ := newTestClient(t, snap)

	httpReq := httptest.NewRequest("POST", "/v1/messages", nil)
	httpReq.Header.Set("Content-Type", "application/json")

	rec := &observability.Record{ID: "r1", StartedAt: time.Now()}
	resp, perr := client.Forward(httpReq.Context(), &Request{
		HTTPRequest: httpReq,
		Body:        []byte(`{"model":"claude-3-sonnet","messages":[]}`),
	}, snap, rec)
	require.Nil(t, perr)
	require.Equal(t, 200, resp.StatusCode)

	snapshot := hub.Snapshot()
	require.Len(t, snapshot.Recent, 1)
}

func TestForwardStreamingSSEIsReadableToEOF(t *testing.T) {
	upstreamSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		flusher := w.(http.Flusher)
		fmt.Fprint(w, "event: message_start\ndata: {\"type\":\"message_start\"}\n\n")
		flusher.Flush()
		fmt.Fprint(w, "event: message_stop\ndata: {\"type\":\"message_stop\"}\n\n")
		flusher.Flush()
	}))
	defer upstreamSrv.Close()

	snap := testSnapshot(t, []config.Backend{{ID: "a", BaseURL: upstreamSrv.URL}}, "a")
	client, _, hub, _, _ := newTestClient(t, snap)

	httpReq := httptest.NewRequest("POST", "/v1/messages", nil)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")

	rec := &observability.Record{ID: "r-sse", StartedAt: time.Now()}
	resp, perr := client.Forward(httpReq.Context(), &Request{
		HTTPRequest: httpReq,
		Body:        []byte(`{"model":"claude-3-sonnet","stream":true,"messages":[]}`),
	}, snap, rec)
	require.Nil(t, perr)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Contains(t, string(body), "message_start")
	require.Contains(t, string(body), "message_stop")

	snapshot := hub.Snapshot()
	require.Len(t, snapshot.Recent, 1)
}

func TestForwardUnknownBackendIsBadGateway(t *testing.T) {
	snap := testSnapshot(t, []config.Backend{{ID: "a", BaseURL: "http://example.invalid"}}, "a")
	client, _, _, _, _ := newTestClient(t, snap)

	httpReq := httptest.NewRequest("POST", "/v1/messages", nil)
	httpReq.Header.Set("Content-Type", "application/json")

	rec := &observability.Record{ID: "r2", StartedAt: time.Now()}
	_, perr := client.Forward(httpReq.Context(), &Request{
		HTTPRequest: httpReq,
		Body:        []byte(`{}`),
		HasRouting:  true,
		Routing:     routing.Decision{BackendID: "missing"},
	}, snap, rec)

	require.NotNil(t, perr)
	require.Equal(t, http.StatusBadGateway, perr.Status)
	require.Equal(t, "backend_not_found", perr.Type)
}

func TestBuildUpstreamURLStripsRoutingPrefix(t *testing.T) {
	inbound, _ := url.Parse("/teammate/v1/messages?foo=bar")
	decision := routing.Decision{BackendID: "x", StripPrefix: "/teammate"}
	got, err := buildUpstreamURL("https://x.example", inbound, decision, true)
	require.NoError(t, err)
	require.Equal(t, "https://x.example/v1/messages?foo=bar", got)
}

func TestCopyForwardHeadersDropsHopByHop(t *testing.T) {
	src := http.Header{}
	src.Set("Authorization", "Bearer xyz")
	src.Set("Connection", "keep-alive")
	src.Set("Host", "example.com")
	src.Set("X-Custom", "value")

	dst := http.Header{}
	copyForwardHeaders(dst, src)

	require.Equal(t, "Bearer xyz", dst.Get("Authorization"))
	require.Empty(t, dst.Get("Connection"))
	require.Empty(t, dst.Get("Host"))
	require.Equal(t, "value", dst.Get("X-Custom"))
}

func TestIsRetryableNilIsFalse(t *testing.T) {
	require.False(t, isRetryable(nil))
}
