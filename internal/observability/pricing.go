package observability

import (
	"strings"

	"github.com/anyclaude/anyclaude/internal/config"
)

// CalculateCost computes the USD cost of a request from the backend's
// configured per-million pricing. Ported from the teacher's
// costcontrol.CalculateCost, trimmed to the two price points this spec's
// Backend carries (no separate cache-write/cache-read multipliers, since
// the data model has no cache-token fields).
func CalculateCost(b config.Backend, inputTokens, outputTokens int) float64 {
	if !b.HasPricing() {
		return 0
	}
	inputCost := float64(inputTokens) / 1_000_000 * b.PriceInputPerMillion
	outputCost := float64(outputTokens) / 1_000_000 * b.PriceOutputPerMillion
	return inputCost + outputCost
}

// EstimateTokensHeuristic is the len/4 fallback used when no tokenizer
// encoding is available for a model name.
func EstimateTokensHeuristic(text string) int {
	return len(text) / 4
}

// modelFamilyHint reports whether a model is Claude/GPT-family enough for
// the cl100k_base encoding to be used; an empty result means the len/4
// heuristic applies. It has no relationship to the backend's own family
// remap.
func modelFamilyHint(model string) string {
	lower := strings.ToLower(model)
	switch {
	case strings.Contains(lower, "claude"):
		return "cl100k_base"
	case strings.Contains(lower, "gpt-4"), strings.Contains(lower, "gpt-3.5"):
		return "cl100k_base"
	default:
		return ""
	}
}
