package assistant

import (
	"sync"

	"github.com/tiktoken-go/tokenizer"
)

// Prompts longer than maxEncodedBytes, usually inflated by base64 images, are
// estimated from their length instead of being tokenized.
const (
	maxEncodedBytes = 32 << 10
	bytesPerToken   = 4
)

var (
	codec     tokenizer.Codec
	codecOnce sync.Once
	codecErr  error
)

// PromptTokens returns an approximate cl100k_base token count for text.
func PromptTokens(text string) int {
	if len(text) > maxEncodedBytes {
		return approxTokens(text)
	}
	codecOnce.Do(func() {
		codec, codecErr = tokenizer.Get(tokenizer.Cl100kBase)
	})
	if codecErr != nil {
		return approxTokens(text)
	}
	ids, _, err := codec.Encode(text)
	if err != nil {
		return approxTokens(text)
	}
	return len(ids)
}

func approxTokens(text string) int {
	return (len(text) + bytesPerToken - 1) / bytesPerToken
}
