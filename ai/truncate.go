package ai

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// Truncator trims manuscript text to a token budget. Without an encoding
// it assumes four characters per token.
type Truncator struct {
	enc *tiktoken.Tiktoken
}

var (
	encOnce   sync.Once
	encErr    error
	sharedEnc *tiktoken.Tiktoken
)

// NewTruncator loads the cl100k_base encoding, falling back to the
// character heuristic when it cannot be loaded.
func NewTruncator() *Truncator {
	encOnce.Do(func() {
		sharedEnc, encErr = tiktoken.GetEncoding("cl100k_base")
	})
	if encErr != nil {
		return &Truncator{}
	}
	return &Truncator{enc: sharedEnc}
}

// HeuristicTruncator never loads an encoding
func HeuristicTruncator() *Truncator {
	return &Truncator{}
}

// Count returns the number of tokens in text
func (t *Truncator) Count(text string) int {
	if t.enc != nil {
		return len(t.enc.Encode(text, nil, nil))
	}
	return (len([]rune(text)) + 3) / 4
}

// Truncate returns text cut to at most maxTokens tokens. It reports
// whether anything was removed.
func (t *Truncator) Truncate(text string, maxTokens int) (string, bool) {
	if maxTokens <= 0 {
		return text, false
	}
	if t.enc != nil {
		tokens := t.enc.Encode(text, nil, nil)
		if len(tokens) <= maxTokens {
			return text, false
		}
		return t.enc.Decode(tokens[:maxTokens]), true
	}
	runes := []rune(text)
	limit := maxTokens * 4
	if limit >= len(runes) {
		return text, false
	}
	return string(runes[:limit]), true
}
