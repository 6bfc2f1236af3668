package transform

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/anyclaude/anyclaude/internal/alerts"
	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

const systemReminderTag = "system-reminder"

// Summarize snapshots the conversation on every request, prepends any
// pending summary into the first user message, strips reasoning blocks
// the same way Strip does, and on a backend switch calls out to a
// configured summarizer endpoint to produce the next pending summary.
// Grounded on the teacher's preemptive.Summarizer: same
// SummarizeInput/SummarizeOutput shape, same cutoff-free "summarize
// everything captured so far" call on switch instead of token-budget
// cutoff walking (this spec has no token-budget trigger, only a
// backend-switch trigger).
type Summarize struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	model      string
	maxTokens  int

	mu             sync.Mutex
	lastMessages   []byte // snapshot of the most recent outbound messages array
	pendingSummary string

	strip *Strip

	alerts *alerts.Registry
	log    zerolog.Logger
}

type SummarizeConfig struct {
	BaseURL   string
	APIKey    string
	Model     string
	MaxTokens int
}

func NewSummarize(cfg SummarizeConfig, reg *alerts.Registry, log zerolog.Logger) *Summarize {
	return &Summarize{
		httpClient: &http.Client{Timeout: 60 * time.Second},
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
		maxTokens:  cfg.MaxTokens,
		strip:      NewStrip(),
		alerts:     reg,
		log:        log.With().Str("component", "reasoning_transformer").Str("variant", "summarize").Logger(),
	}
}

func (s *Summarize) Name() string { return "summarize" }

func (s *Summarize) TransformRequest(ctx context.Context, body []byte, rc RequestContext) ([]byte, Stats, error) {
	out, stats, err := s.strip.TransformRequest(ctx, body, rc)
	if err != nil {
		return body, Stats{}, err
	}

	s.mu.Lock()
	messages := gjson.GetBytes(out, "messages")
	if messages.Exists() {
		s.lastMessages = []byte(messages.Raw)
	}
	pending := s.pendingSummary
	s.pendingSummary = ""
	s.mu.Unlock()

	if pending == "" {
		return out, stats, nil
	}

	out, err = prependSummaryToFirstUserMessage(out, pending)
	if err != nil {
		// Transform errors never fail the request; forward unmodified.
		s.log.Warn().Err(err).Msg("failed to prepend pending summary, forwarding original body")
		return body, stats, nil
	}
	stats.Changed = true
	stats.Note = "prepended pending summary"
	return out, stats, nil
}

func prependSummaryToFirstUserMessage(body []byte, summary string) ([]byte, error) {
	messages := gjson.GetBytes(body, "messages")
	if !messages.IsArray() {
		return body, nil
	}
	for i, m := range messages.Array() {
		if m.Get("role").String() != "user" {
			continue
		}
		path := "messages." + itoa(i) + ".content"
		content := m.Get("content")

		wrapped := "[CONTEXT FROM PREVIOUS SESSION]" + summary + "[/CONTEXT FROM PREVIOUS SESSION]\n\n"

		if content.Type == gjson.String {
			return sjson.SetBytes(body, path, wrapped+content.String())
		}
		// Structured content: prepend a new text block ahead of the rest.
		items := []string{`{"type":"text","text":` + quoteJSON(wrapped) + `}`}
		for _, item := range content.Array() {
			items = append(items, item.Raw)
		}
		return sjson.SetRawBytes(body, path, []byte("["+strings.Join(items, ",")+"]"))
	}
	return body, nil
}

func itoa(n int) string { return fmt.Sprintf("%d", n) }

func quoteJSON(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

// OnBackendSwitch fires the summarizer call synchronously, per spec: the
// switch proceeds regardless of outcome, and a failure is recorded to the
// Error Registry rather than blocking or rolling back the switch.
func (s *Summarize) OnBackendSwitch(from, to string) {
	s.mu.Lock()
	messages := s.lastMessages
	s.mu.Unlock()

	if len(messages) == 0 {
		return
	}

	summary, err := s.callSummarizer(context.Background(), messages)
	if err != nil {
		s.log.Warn().Err(err).Str("from", from).Str("to", to).Msg("summarization failed, switch proceeds")
		if s.alerts != nil {
			s.alerts.Report(alerts.Event{
				Severity: alerts.SeverityWarning,
				Category: alerts.CategoryBackend,
				Message:  "summarization failed during backend switch",
				Details:  err.Error(),
			})
		}
		return
	}

	s.mu.Lock()
	s.pendingSummary = summary
	s.mu.Unlock()
}

func (s *Summarize) callSummarizer(ctx context.Context, messages []byte) (string, error) {
	reqBody, err := sjson.SetRawBytes([]byte(`{}`), "messages", messages)
	if err != nil {
		return "", err
	}
	reqBody, _ = sjson.SetBytes(reqBody, "model", s.model)
	reqBody, _ = sjson.SetBytes(reqBody, "max_tokens", s.maxTokens)
	reqBody, _ = sjson.SetBytes(reqBody, "stream", true)
	reqBody, _ = sjson.SetBytes(reqBody, "system",
		"Summarize the conversation above concisely, preserving any decisions, open tasks, and facts a continuation would need.")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/v1/messages", bytes.NewReader(reqBody))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.apiKey)
	req.Header.Set("anthropic-version", "2023-06-01")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("summarizer endpoint returned status %d", resp.StatusCode)
	}

	return extractSummaryText(resp.Body)
}

// extractSummaryText reads an Anthropic-compatible SSE stream and returns
// the concatenated text deltas, with <system-reminder> content filtered
// out.
func extractSummaryText(body io.Reader) (string, error) {
	var out strings.Builder
	var inReminder bool

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "" || data == "[DONE]" {
			continue
		}
		if gjson.Get(data, "type").String() != "content_block_delta" {
			continue
		}
		delta := gjson.Get(data, "delta.text").String()
		if delta == "" {
			continue
		}

		// Strip any <system-reminder>...</system-reminder> spans that may
		// appear inline in a delta chunk.
		for delta != "" {
			if inReminder {
				if end := strings.Index(delta, "</"+systemReminderTag+">"); end != -1 {
					delta = delta[end+len("</"+systemReminderTag+">"):]
					inReminder = false
					continue
				}
				break
			}
			start := strings.Index(delta, "<"+systemReminderTag)
			if start == -1 {
				out.WriteString(delta)
				break
			}
			out.WriteString(delta[:start])
			rest := delta[start:]
			closeIdx := strings.Index(rest, ">")
			if closeIdx == -1 {
				break
			}
			delta = rest[closeIdx+1:]
			inReminder = true
		}
	}
	if err := scanner.Err(); err != nil {
		return "", err
	}
	return strings.TrimSpace(out.String()), nil
}
