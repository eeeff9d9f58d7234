// Package token provides token counting and truncation for prompt budgeting.
package token

import (
	"strings"
	"sync"
	"unicode"

	"github.com/pkoukk/tiktoken-go"
)

const encodingName = "cl100k_base"

var (
	encodingOnce sync.Once
	encoding     *tiktoken.Tiktoken
	encodingErr  error
)

func getEncoding() (*tiktoken.Tiktoken, error) {
	encodingOnce.Do(func() {
		encoding, encodingErr = tiktoken.GetEncoding(encodingName)
	})
	return encoding, encodingErr
}

// CountTokens returns the exact token count for text, falling back to a
// heuristic estimate when the encoding cannot be loaded.
func CountTokens(text string) int {
	if text == "" {
		return 0
	}
	enc, err := getEncoding()
	if err != nil {
		return EstimateFast(text)
	}
	return len(enc.Encode(text, nil, nil))
}

// EstimateFast approximates token counts without the tokenizer. Latin text
// averages ~4 chars/token, CJK closer to 1 token per rune.
func EstimateFast(text string) int {
	if text == "" {
		return 0
	}
	var latin, wide int
	for _, r := range text {
		if r >= 0x2E80 && r <= 0x9FFF || unicode.In(r, unicode.Hangul, unicode.Hiragana, unicode.Katakana) {
			wide++
		} else {
			latin++
		}
	}
	estimate := latin/4 + wide
	if estimate == 0 {
		estimate = 1
	}
	return estimate
}

// TruncateToTokens trims text to at most maxTokens tokens, appending a marker
// when anything was removed.
func TruncateToTokens(text string, maxTokens int) string {
	if maxTokens <= 0 {
		return ""
	}
	enc, err := getEncoding()
	if err != nil {
		return truncateByEstimate(text, maxTokens)
	}
	tokens := enc.Encode(text, nil, nil)
	if len(tokens) <= maxTokens {
		return text
	}
	return enc.Decode(tokens[:maxTokens]) + "\n...[truncated]"
}

func truncateByEstimate(text string, maxTokens int) string {
	if EstimateFast(text) <= maxTokens {
		return text
	}
	// Roughly 4 chars per token for the fallback path.
	limit := maxTokens * 4
	if limit >= len(text) {
		return text
	}
	cut := text[:limit]
	if idx := strings.LastIndexByte(cut, ' '); idx > limit/2 {
		cut = cut[:idx]
	}
	return cut + "\n...[truncated]"
}
