package transform

import (
	"context"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

var reasoningTypeSet = map[string]bool{
	"thinking":          true,
	"redacted_thinking": true,
}

// Strip removes all reasoning items from messages[*].content and the
// top-level context_management field. Applying it twice is idempotent:
// the second pass finds nothing left to remove.
type Strip struct{}

func NewStrip() *Strip { return &Strip{} }

func (s *Strip) Name() string { return "strip" }

func (s *Strip) OnBackendSwitch(from, to string) {}

func (s *Strip) TransformRequest(ctx context.Context, body []byte, rc RequestContext) ([]byte, Stats, error) {
	out := body
	removed := 0

	messages := gjson.GetBytes(out, "messages")
	if messages.IsArray() {
		// Walk messages/content from the highest index down so deletions
		// don't invalidate not-yet-visited indices.
		msgs := messages.Array()
		for mi := len(msgs) - 1; mi >= 0; mi-- {
			content := msgs[mi].Get("content")
			if !content.IsArray() {
				continue
			}
			items := content.Array()
			for ci := len(items) - 1; ci >= 0; ci-- {
				if !reasoningTypeSet[items[ci].Get("type").String()] {
					continue
				}
				path := arrayPath(mi, ci)
				var err error
				out, err = sjson.DeleteBytes(out, path)
				if err != nil {
					return body, Stats{}, err
				}
				removed++
			}
		}
	}

	if gjson.GetBytes(out, "context_management").Exists() {
		var err error
		out, err = sjson.DeleteBytes(out, "context_management")
		if err != nil {
			return body, Stats{}, err
		}
	}

	if removed == 0 && len(out) == len(body) {
		return body, Stats{Changed: false}, nil
	}
	return out, Stats{Changed: true, ItemsRemoved: removed}, nil
}
