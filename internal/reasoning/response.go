package reasoning

import "github.com/tidwall/gjson"

// RegisterFromResponse parses a non-streaming JSON response body and
// registers each reasoning item found in content[*]. It returns nothing:
// a body without a content array registers no blocks, so registration
// never fails the response delivery to the client.
func RegisterFromResponse(reg *Registry, body []byte) {
	content := gjson.GetBytes(body, "content")
	if !content.IsArray() {
		return
	}
	content.ForEach(func(_, item gjson.Result) bool {
		typ := item.Get("type").String()
		field, ok := reasoningTypes[typ]
		if !ok {
			return true
		}
		reg.RegisterResponseBlock(HashContent(item.Get(field).String()))
		return true
	})
}

// StreamAccumulator collects reasoning content across SSE
// content_block_start/delta/stop events and registers each completed
// block exactly once, never a partial one.
type StreamAccumulator struct {
	reg *Registry

	// blockIndex -> in-progress reasoning block being accumulated.
	pending map[int]*pendingBlock
}

type pendingBlock struct {
	field   string // "text" or "data"
	content []byte
}

func NewStreamAccumulator(reg *Registry) *StreamAccumulator {
	return &StreamAccumulator{reg: reg, pending: make(map[int]*pendingBlock)}
}

// HandleEvent feeds one parsed SSE event (its "data:" JSON payload) to the
// accumulator. eventType is the SSE "event:" line value.
func (a *StreamAccumulator) HandleEvent(eventType string, data []byte) {
	switch eventType {
	case "content_block_start":
		idx := int(gjson.GetBytes(data, "index").Int())
		block := gjson.GetBytes(data, "content_block")
		typ := block.Get("type").String()
		field, ok := reasoningTypes[typ]
		if !ok {
			return
		}
		a.pending[idx] = &pendingBlock{field: field}

	case "content_block_delta":
		idx := int(gjson.GetBytes(data, "index").Int())
		pb, ok := a.pending[idx]
		if !ok {
			return
		}
		delta := gjson.GetBytes(data, "delta")
		// thinking_delta carries "thinking"; signature_delta and
		// redacted content deltas carry other field names, but the only
		// content that must accumulate for hashing purposes is the same
		// field the block itself will register under.
		var chunk string
		switch pb.field {
		case "text":
			chunk = delta.Get("thinking").String()
		case "data":
			chunk = delta.Get("data").String()
		}
		pb.content = append(pb.content, chunk...)

	case "content_block_stop":
		idx := int(gjson.GetBytes(data, "index").Int())
		pb, ok := a.pending[idx]
		if !ok {
			return
		}
		delete(a.pending, idx)
		a.reg.RegisterResponseBlock(HashContent(string(pb.content)))
	}
}
