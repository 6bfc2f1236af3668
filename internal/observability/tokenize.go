package observability

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

var (
	encodingOnce sync.Once
	encoding     *tiktoken.Tiktoken
	encodingErr  error
)

func loadEncoding() (*tiktoken.Tiktoken, error) {
	encodingOnce.Do(func() {
		encoding, encodingErr = tiktoken.GetEncoding("cl100k_base")
	})
	return encoding, encodingErr
}

// EstimateInputTokens returns a real BPE token count for text when an
// encoding is available for the model's family, falling back to the
// len/4 heuristic otherwise. This replaces a pure heuristic with the
// teacher's actual dependency (pkoukk/tiktoken-go is already in its
// go.mod) wherever the model is Claude/GPT-family enough for cl100k_base
// to be a reasonable proxy encoding.
func EstimateInputTokens(model, text string) int {
	if modelFamilyHint(model) == "" {
		return EstimateTokensHeuristic(text)
	}
	enc, err := loadEncoding()
	if err != nil {
		return EstimateTokensHeuristic(text)
	}
	return len(enc.Encode(text, nil, nil))
}
