package llm

import (
	"log/slog"

	"github.com/tiktoken-go/tokenizer"
)

// tokenCounter estimates token counts with the cl100k_base encoding.
// The estimate is provider-agnostic and only feeds usage statistics.
type tokenCounter struct {
	codec tokenizer.Codec
}

func newTokenCounter() *tokenCounter {
	codec, err := tokenizer.Get(tokenizer.Cl100kBase)
	if err != nil {
		slog.Warn("token counting disabled", "error", err)
		return &tokenCounter{}
	}
	return &tokenCounter{codec: codec}
}

// Count returns the estimated token count of text, or a 4-chars-per-token
// guess when no codec is available.
func (t *tokenCounter) Count(text string) int64 {
	if t == nil || t.codec == nil {
		return int64(len(text) / 4)
	}
	ids, _, err := t.codec.Encode(text)
	if err != nil {
		return int64(len(text) / 4)
	}
	return int64(len(ids))
}
