package reasoning

import (
	"strconv"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// reasoningTypes are the content-item "type" values the registry tracks.
// A textual block carries its content in "text"; a redacted block carries
// opaque bytes in "data". Both hash on their respective content field.
var reasoningTypes = map[string]string{
	"thinking":          "text",
	"redacted_thinking": "data",
}

type extractedItem struct {
	msgIndex     int
	contentIndex int
	hash         BlockHash
}

// extract walks outbound JSON messages[*].content[*] and computes hashes
// for every reasoning item found, in document order.
func extract(body []byte) []extractedItem {
	var items []extractedItem

	messages := gjson.GetBytes(body, "messages")
	if !messages.IsArray() {
		return items
	}

	messages.ForEach(func(msgKey, msg gjson.Result) bool {
		msgIdx := int(msgKey.Int())
		content := msg.Get("content")
		if !content.IsArray() {
			return true
		}
		content.ForEach(func(contentKey, item gjson.Result) bool {
			contentIdx := int(contentKey.Int())
			typ := item.Get("type").String()
			field, ok := reasoningTypes[typ]
			if !ok {
				return true
			}
			value := item.Get(field).String()
			items = append(items, extractedItem{
				msgIndex:     msgIdx,
				contentIndex: contentIdx,
				hash:         HashContent(value),
			})
			return true
		})
		return true
	})

	return items
}

// FilterResult carries the outcome of running the outbound protocol over
// one request body.
type FilterResult struct {
	Extracted int
	Kept      int
	Removed   int
	Body      []byte // re-serialized body; equals input if nothing changed
}

// ApplyFilter runs extract, delegates confirm/cleanup/filter to reg, and
// re-serializes the body with any now-invalid reasoning items removed.
// Idempotent: filtering an already-filtered body with no new reasoning
// items removed produces byte-identical output, since there is nothing
// left to strip.
func ApplyFilter(reg *Registry, body []byte) (FilterResult, error) {
	items := extract(body)
	if len(items) == 0 {
		return FilterResult{Body: body}, nil
	}

	hashes := make([]BlockHash, len(items))
	for i, it := range items {
		hashes[i] = it.hash
	}
	keep := reg.ProcessOutbound(hashes)

	// Removal by index must proceed from the highest message/content index
	// down to the lowest so earlier sjson.Delete calls don't invalidate
	// the indices of items not yet processed.
	toRemove := make([]extractedItem, 0, len(items))
	kept := 0
	for _, it := range items {
		if keep[it.hash] {
			kept++
		} else {
			toRemove = append(toRemove, it)
		}
	}

	out := body
	var err error
	for i := len(toRemove) - 1; i >= 0; i-- {
		it := toRemove[i]
		path := arrayPath(it.msgIndex, it.contentIndex)
		out, err = sjson.DeleteBytes(out, path)
		if err != nil {
			// Per spec: serialization failure during filter never
			// suppresses the request; fall back to the unfiltered body.
			return FilterResult{Extracted: len(items), Kept: len(items), Removed: 0, Body: body}, err
		}
	}

	return FilterResult{
		Extracted: len(items),
		Kept:      kept,
		Removed:   len(toRemove),
		Body:      out,
	}, nil
}

func arrayPath(msgIdx, contentIdx int) string {
	return "messages." + strconv.Itoa(msgIdx) + ".content." + strconv.Itoa(contentIdx)
}
