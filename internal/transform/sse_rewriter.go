package transform

import (
	"bytes"
	"strings"

	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

const messageStartMarker = `"message_start"`

// SSEModelRewriter is a stateful byte rewriter attached to a streaming
// response when the forward mapper substituted the model. Each chunk is
// first scanned with a cheap substring check; chunks without the marker
// pass through unchanged at zero parsing cost. The first chunk containing
// a complete marker is rewritten in place and the rewriter then marks
// itself done, so every subsequent chunk is a pure passthrough.
//
// Grounded on the teacher's nextSSEEvent/anthropicSSEUsage chunk scanner
// in internal/gateway/handler.go, generalized from usage-accumulation to
// a single in-place substitution.
type SSEModelRewriter struct {
	requestedModel string
	mappedModel    string
	done           bool
	log            zerolog.Logger
}

func NewSSEModelRewriter(requestedModel, mappedModel string, log zerolog.Logger) *SSEModelRewriter {
	return &SSEModelRewriter{requestedModel: requestedModel, mappedModel: mappedModel, log: log}
}

// Rewrite processes one chunk and returns the bytes to emit downstream.
// If "message_start" straddles two chunks, neither contains the complete
// marker and both pass through unchanged; the rewriter simply never
// commits for that stream, which is the documented boundary behavior.
func (r *SSEModelRewriter) Rewrite(chunk []byte) []byte {
	if r.done {
		return chunk
	}

	if !bytes.Contains(chunk, []byte(messageStartMarker)) {
		return chunk
	}

	rewritten := r.rewriteChunk(chunk)
	r.done = true
	return rewritten
}

func (r *SSEModelRewriter) rewriteChunk(chunk []byte) []byte {
	lines := bytes.Split(chunk, []byte("\n"))
	changed := false

	for i, line := range lines {
		if !bytes.HasPrefix(line, []byte("data:")) {
			continue
		}
		data := bytes.TrimSpace(bytes.TrimPrefix(line, []byte("data:")))
		if len(data) == 0 {
			continue
		}
		if gjson.GetBytes(data, "type").String() != "message_start" {
			continue
		}

		reported := gjson.GetBytes(data, "message.model").String()
		if reported != r.mappedModel {
			if reported != r.requestedModel {
				r.log.Warn().Str("reported_model", reported).
					Str("requested_model", r.requestedModel).
					Str("mapped_model", r.mappedModel).
					Msg("upstream reported unexpected model in message_start, passing through")
			}
			continue
		}

		newData, err := sjson.SetBytes(data, "message.model", r.requestedModel)
		if err != nil {
			r.log.Warn().Err(err).Msg("failed to rewrite message_start model, passing through")
			continue
		}
		lines[i] = append([]byte("data: "), bytes.TrimSpace(newData)...)
		changed = true
	}

	if !changed {
		return chunk
	}
	return bytes.Join(lines, []byte("\n"))
}

// stripContentLengthKey reports whether a header name is Content-Length,
// compared case-insensitively. It removes nothing itself and has no
// callers in this module.
func stripContentLengthKey(key string) bool {
	return strings.EqualFold(key, "Content-Length")
}
