// Package upstream implements the Upstream Client: a pooled HTTP/1.1+
// HTTP/2 connector that resolves a backend, applies the request-side
// rewriters, forwards with retry/backoff, and wraps the response body so
// timing, bytes, and response-side rewriters can be observed as the
// stream flows to the client.
//
// Grounded on the teacher's forwardPassthrough/streamResponse/
// sseUsageParser in internal/gateway/handler.go, generalized from a
// single hard-coded target to backend resolution plus the reasoning and
// model-mapping rewriters this system adds.
package upstream

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"math/rand"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/anyclaude/anyclaude/internal/alerts"
	"github.com/anyclaude/anyclaude/internal/backendstate"
	"github.com/anyclaude/anyclaude/internal/config"
	"github.com/anyclaude/anyclaude/internal/credential"
	"github.com/anyclaude/anyclaude/internal/observability"
	"github.com/anyclaude/anyclaude/internal/reasoning"
	"github.com/anyclaude/anyclaude/internal/routing"
	"github.com/anyclaude/anyclaude/internal/transform"
	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"
)

// hopByHopHeaders are never copied onto the outbound request, per RFC
// 7230 §6.1, plus Host which net/http sets from the URL.
var hopByHopHeaders = map[string]bool{
	"connection":          true,
	"proxy-connection":    true,
	"keep-alive":          true,
	"te":                  true,
	"trailer":             true,
	"transfer-encoding":   true,
	"upgrade":             true,
	"proxy-authenticate":  true,
	"proxy-authorization": true,
}

// ProxyError is the taxonomy of forwarding failures the Proxy Server
// turns into the standard JSON error envelope.
type ProxyError struct {
	Status  int
	Type    string
	Message string
}

func (e *ProxyError) Error() string { return e.Message }

func newProxyError(status int, typ, message string) *ProxyError {
	return &ProxyError{Status: status, Type: typ, Message: message}
}

// Request is what the Proxy Server hands to Client.Forward: the inbound
// request, its already-read body, and the routing decision (if any).
type Request struct {
	HTTPRequest *http.Request
	Body        []byte
	Routing     routing.Decision
	HasRouting  bool
	RequestID   string
}

// Client is the pooled connector plus everything Forward needs to apply
// the rewriter pipeline.
type Client struct {
	httpClient *http.Client

	connectTimeout time.Duration
	totalTimeout   time.Duration
	idleTimeout    time.Duration
	maxRetries     int
	backoffBaseMs  int

	state        *backendstate.State
	reasoningReg *reasoning.Registry
	transformer  transform.Transformer
	hub          *observability.Hub
	alertsReg    *alerts.Registry
	log          zerolog.Logger
}

// New builds a Client from the current snapshot's pool settings. Per the
// design notes, timeouts and pool sizing are fixed at construction;
// changing them via hot-reload requires a process restart.
func New(snap *config.Snapshot, state *backendstate.State, reasoningReg *reasoning.Registry, transformer transform.Transformer, hub *observability.Hub, alertsReg *alerts.Registry, log zerolog.Logger) *Client {
	d := snap.Defaults()

	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout: snap.ConnectTimeout(),
		}).DialContext,
		MaxIdleConnsPerHost: d.PoolMaxIdlePerHost,
		IdleConnTimeout:     snap.PoolIdleTimeout(),
		ForceAttemptHTTP2:   true,
	}

	return &Client{
		httpClient:     &http.Client{Transport: transport},
		connectTimeout: snap.ConnectTimeout(),
		totalTimeout:   snap.TotalTimeout(),
		idleTimeout:    snap.IdleTimeout(),
		maxRetries:     d.MaxRetries,
		backoffBaseMs:  d.RetryBackoffBaseMs,
		state:          state,
		reasoningReg:   reasoningReg,
		transformer:    transformer,
		hub:            hub,
		alertsReg:      alertsReg,
		log:            log.With().Str("component", "upstream").Logger(),
	}
}

// SetTransformer swaps the active Reasoning Transformer variant, called
// by the supervisor when reasoning.mode changes on hot-reload.
func (c *Client) SetTransformer(t transform.Transformer) {
	c.transformer = t
}

// Forward implements the numbered forwarding protocol. For an SSE
// response the returned *http.Response's Body is the observed stream
// wrapper; for any other response it is the already-buffered (and
// possibly rewritten) body. Callers must still Close it.
func (c *Client) Forward(ctx context.Context, req *Request, snap *config.Snapshot, rec *observability.Record) (*http.Response, *ProxyError) {
	backendID := c.resolveBackendID(req)
	backend, ok := snap.BackendByID(backendID)
	if !ok {
		return nil, newProxyError(http.StatusBadGateway, "backend_not_found", fmt.Sprintf("backend %q is not configured", backendID))
	}
	rec.BackendID = backendID

	decl := credential.DeclarationFromBackend(backend)
	resolved, err := credential.Resolve(ctx, backendID, decl)
	if err != nil {
		return nil, newProxyError(http.StatusBadGateway, "credential_not_configured", err.Error())
	}

	upstreamURL, err := buildUpstreamURL(backend.BaseURL, req.HTTPRequest.URL, req.Routing, req.HasRouting)
	if err != nil {
		return nil, newProxyError(http.StatusBadGateway, "invalid_backend_url", err.Error())
	}

	body, bodyRewritten, requestedModel, mappedModel, err := c.applyRequestRewriters(ctx, req.Body, req.HTTPRequest.Header, backend, rec, req.RequestID)
	if err != nil {
		return nil, newProxyError(http.StatusBadRequest, "invalid_request", err.Error())
	}

	var sigv4 *credential.SigV4Signer
	if decl.Kind == "aws_sigv4" {
		sigv4 = credential.NewSigV4Signer(decl.AWSRegion, decl.AWSProfile)
	}

	resp, proxyErr := c.sendWithRetry(ctx, upstreamURL, req.HTTPRequest.Header, body, resolved, sigv4, bodyRewritten, rec)
	if proxyErr != nil {
		return nil, proxyErr
	}

	isSSE := strings.HasPrefix(resp.Header.Get("Content-Type"), "text/event-stream")
	rewriteResponse := bodyRewritten.modelMapped

	if isSSE {
		resp.Body = newObservedStream(resp.Body, rec, c.hub, c.reasoningReg, rewriteResponse, requestedModel, mappedModel, true, c.idleTimeout, c.log)
		if bodyRewritten.anyRewrite() {
			resp.Header.Del("Content-Length")
		}
		return resp, nil
	}

	if err := c.observeNonStreamingResponse(resp, rec, rewriteResponse, requestedModel, mappedModel); err != nil {
		return nil, newProxyError(http.StatusInternalServerError, "internal", err.Error())
	}
	return resp, nil
}

// observeNonStreamingResponse buffers a non-SSE response body (Content-
// Length must match whatever bytes actually go out, so it cannot be
// rewritten in flight the way an SSE chunk stream can), applies the
// reverse model mapping and reasoning-block response registration, and
// pushes the finished Request Record.
func (c *Client) observeNonStreamingResponse(resp *http.Response, rec *observability.Record, rewriteModel bool, requestedModel, mappedModel string) error {
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	rec.MarkFirstByte(time.Now())

	changed := false
	if rewriteModel {
		out, didChange, rerr := transform.MapReverseJSON(body, requestedModel, mappedModel)
		if rerr == nil {
			body = out
			changed = didChange
		}
	}

	reasoning.RegisterFromResponse(c.reasoningReg, body)

	rec.ResponseBytes = int64(len(body))
	status := resp.StatusCode
	rec.MarkCompleted(time.Now(), &status)
	c.hub.Push(rec)

	resp.Body = io.NopCloser(bytes.NewReader(body))
	if changed {
		// Bytes changed length; recompute rather than leave the upstream's
		// stale value, matching the example's Content-Length-absent case.
		resp.Header.Set("Content-Length", strconv.Itoa(len(body)))
	}
	return nil
}

func (c *Client) resolveBackendID(req *Request) string {
	if req.HasRouting && req.Routing.BackendID != "" {
		return req.Routing.BackendID
	}
	return c.state.Get()
}

// requestRewriteInfo records what the rewriter pipeline did, so the
// caller knows whether Content-Length needs stripping and which reverse
// model mapping to apply to the response.
type requestRewriteInfo struct {
	reasoningFiltered bool
	transformApplied  bool
	modelMapped       bool
}

func (r requestRewriteInfo) anyRewrite() bool {
	return r.reasoningFiltered || r.transformApplied || r.modelMapped
}

func (c *Client) applyRequestRewriters(ctx context.Context, body []byte, hdr http.Header, backend config.Backend, rec *observability.Record, requestID string) ([]byte, requestRewriteInfo, string, string, error) {
	var info requestRewriteInfo

	if !strings.HasPrefix(hdr.Get("Content-Type"), "application/json") {
		return body, info, "", "", nil
	}

	filterResult, err := reasoning.ApplyFilter(c.reasoningReg, body)
	if err == nil && filterResult.Removed > 0 {
		info.reasoningFiltered = true
	}
	body = filterResult.Body

	analyzeRequest(body, rec)

	if c.transformer != nil {
		out, stats, terr := c.transformer.TransformRequest(ctx, body, transform.RequestContext{RequestID: requestID})
		if terr != nil {
			// Per spec: transform errors never fail the request; the
			// original body is forwarded and an event is recorded.
			c.alertsReg.Report(alerts.Event{
				Severity: alerts.SeverityWarning,
				Category: alerts.CategoryBackend,
				Message:  "reasoning transform failed, forwarding original body: " + terr.Error(),
			})
		} else {
			body = out
			if stats.Changed {
				info.transformApplied = true
			}
		}
	}

	mappedBody, requestedModel, mapped, merr := transform.MapForward(body, backend)
	if merr != nil {
		return body, info, requestedModel, "", nil
	}
	mappedModel := ""
	if mapped {
		info.modelMapped = true
		mappedModel = modelFieldOf(mappedBody)
		body = mappedBody
	}

	return body, info, requestedModel, mappedModel, nil
}

func analyzeRequest(body []byte, rec *observability.Record) {
	model := modelFieldOf(body)
	rec.Request = &observability.RequestAnalysis{
		Model:              model,
		InputTokenEstimate: observability.EstimateInputTokens(model, string(body)),
		ImageCount:         countImageBlocks(body),
		ReasoningRequested: bytes.Contains(body, []byte(`"thinking"`)),
	}
}

func buildUpstreamURL(baseURL string, inbound *url.URL, decision routing.Decision, hasRouting bool) (string, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("invalid backend base_url: %w", err)
	}

	path := inbound.Path
	if hasRouting && decision.StripPrefix != "" {
		path = routing.StripPrefix(path, decision.StripPrefix)
	}

	base.Path = strings.TrimSuffix(base.Path, "/") + path
	base.RawQuery = inbound.RawQuery
	return base.String(), nil
}

func copyForwardHeaders(dst, src http.Header) {
	for k, vs := range src {
		lower := strings.ToLower(k)
		if lower == "host" || hopByHopHeaders[lower] {
			continue
		}
		cp := make([]string, len(vs))
		copy(cp, vs)
		dst[k] = cp
	}
}

func (c *Client) sendWithRetry(ctx context.Context, upstreamURL string, inboundHeaders http.Header, body []byte, resolved credential.Resolved, sigv4 *credential.SigV4Signer, rewrite requestRewriteInfo, rec *observability.Record) (*http.Response, *ProxyError) {
	attempts := c.maxRetries + 1
	var lastErr error

	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			c.alertsReg.UpdateRecovery("backend_connection", attempt, lastErr.Error())
			backoff(c.backoffBaseMs, attempt)
		} else if c.maxRetries > 0 {
			c.alertsReg.StartRecovery("backend_connection", attempts)
		}

		reqCtx := ctx
		var cancel context.CancelFunc
		if !isSSERequest(body) {
			reqCtx, cancel = context.WithTimeout(ctx, c.totalTimeout)
		}

		httpReq, err := http.NewRequestWithContext(reqCtx, "POST", upstreamURL, bytes.NewReader(body))
		if err != nil {
			if cancel != nil {
				cancel()
			}
			return nil, newProxyError(http.StatusInternalServerError, "internal", err.Error())
		}
		copyForwardHeaders(httpReq.Header, inboundHeaders)
		resolved.Apply(httpReq)
		if rewrite.anyRewrite() {
			httpReq.Header.Del("Content-Length")
			httpReq.ContentLength = int64(len(body))
		}

		if sigv4 != nil {
			if err := sigv4.Sign(reqCtx, httpReq, body); err != nil {
				if cancel != nil {
					cancel()
				}
				return nil, newProxyError(http.StatusBadGateway, "signing_failed", err.Error())
			}
		}

		resp, err := c.httpClient.Do(httpReq)
		if cancel != nil && err != nil {
			cancel()
		}
		if err == nil {
			if c.maxRetries > 0 {
				c.alertsReg.SucceedRecovery("backend_connection")
			}
			return resp, nil
		}

		lastErr = err
		if !isRetryable(err) {
			break
		}
	}

	if c.maxRetries > 0 {
		c.alertsReg.FailRecovery("backend_connection", lastErr.Error())
	}

	if isTimeoutErr(lastErr) {
		return nil, newProxyError(http.StatusGatewayTimeout, "request_timeout", lastErr.Error())
	}
	return nil, newProxyError(http.StatusBadGateway, "connection_failed", lastErr.Error())
}

func backoff(baseMs, attempt int) {
	delay := time.Duration(baseMs) * time.Duration(1<<uint(attempt-1)) * time.Millisecond
	jitter := time.Duration(rand.Intn(baseMs+1)) * time.Millisecond
	time.Sleep(delay + jitter)
}

// isRetryable reports whether err is a connection or timeout error
// detected before the first response byte; per spec, once streaming has
// begun errors are reported without retry (the caller never calls this
// after Do has returned a response).
func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	if _, ok := err.(net.Error); ok {
		return true
	}
	return strings.Contains(err.Error(), "connection refused") ||
		strings.Contains(err.Error(), "connection reset") ||
		strings.Contains(err.Error(), "EOF")
}

func isTimeoutErr(err error) bool {
	ne, ok := err.(net.Error)
	return ok && ne.Timeout()
}

func isSSERequest(body []byte) bool {
	return bytes.Contains(body, []byte(`"stream":true`)) || bytes.Contains(body, []byte(`"stream": true`))
}

func modelFieldOf(body []byte) string {
	return gjson.GetBytes(body, "model").String()
}

func countImageBlocks(body []byte) int {
	return strings.Count(string(body), `"type":"image"`) + strings.Count(string(body), `"type": "image"`)
}
