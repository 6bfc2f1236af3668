package transform

import (
	"strings"

	"github.com/anyclaude/anyclaude/internal/config"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// familyKeywords are matched case-insensitively as substrings of the
// request's "model" field, in this priority order.
var familyKeywords = []string{"opus", "sonnet", "haiku"}

// MapForward rewrites the request body's "model" field per the backend's
// family remap, if any. Returns the (possibly unchanged) body, the
// original requested model (needed later for the reverse rewrite), and
// whether a substitution occurred.
func MapForward(body []byte, b config.Backend) (out []byte, requestedModel string, mapped bool, err error) {
	modelField := gjson.GetBytes(body, "model")
	if !modelField.Exists() || modelField.Type != gjson.String {
		return body, "", false, nil
	}
	requestedModel = modelField.String()

	if !b.HasModelRemap() {
		return body, requestedModel, false, nil
	}

	replacement := familyReplacement(requestedModel, b)
	if replacement == "" {
		return body, requestedModel, false, nil
	}

	out, err = sjson.SetBytes(body, "model", replacement)
	if err != nil {
		return body, requestedModel, false, err
	}
	return out, requestedModel, true, nil
}

func familyReplacement(model string, b config.Backend) string {
	lower := strings.ToLower(model)
	for _, kw := range familyKeywords {
		if !strings.Contains(lower, kw) {
			continue
		}
		switch kw {
		case "opus":
			if b.ModelOpus != "" {
				return b.ModelOpus
			}
		case "sonnet":
			if b.ModelSonnet != "" {
				return b.ModelSonnet
			}
		case "haiku":
			if b.ModelHaiku != "" {
				return b.ModelHaiku
			}
		}
	}
	return ""
}

// MapReverseJSON rewrites a non-streaming JSON response's "model" field
// back to the guest-requested value. If the upstream-reported model
// matches neither the mapped nor the requested value, it is passed
// through unchanged (caller should log a warning in that case).
func MapReverseJSON(body []byte, requestedModel, mappedModel string) ([]byte, bool, error) {
	reported := gjson.GetBytes(body, "model").String()
	if reported != mappedModel {
		return body, false, nil
	}
	out, err := sjson.SetBytes(body, "model", requestedModel)
	if err != nil {
		return body, false, err
	}
	return out, true, nil
}
