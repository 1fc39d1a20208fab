// internal/transcript/estimator.go
package transcript

import (
	"fmt"

	"github.com/pkoukk/tiktoken-go"
)

// SizeEstimator approximates the token cost of a piece of text. Pruning
// only ever needs a cheap proxy, but the interface lets an embedder
// swap in an exact tokenizer without touching the pruning logic.
type SizeEstimator interface {
	Estimate(text string) int
}

// CharEstimator estimates size as character count divided by an average
// characters-per-token constant. Never touches a tokenizer.
type CharEstimator struct {
	CharsPerToken int
}

// DefaultCharsPerToken is the rough average for English prose.
const DefaultCharsPerToken = 4

func (e CharEstimator) Estimate(text string) int {
	per := e.CharsPerToken
	if per <= 0 {
		per = DefaultCharsPerToken
	}
	return (len(text) + per - 1) / per
}

// TokenEstimator counts exact tokens with the model's tokenizer.
type TokenEstimator struct {
	enc *tiktoken.Tiktoken
}

// NewTokenEstimator creates an exact estimator for the given model,
// falling back to cl100k_base for unknown models.
func NewTokenEstimator(model string) (*TokenEstimator, error) {
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		enc, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			return nil, fmt.Errorf("get tokenizer: %w", err)
		}
	}
	return &TokenEstimator{enc: enc}, nil
}

func (e *TokenEstimator) Estimate(text string) int {
	return len(e.enc.Encode(text, nil, nil))
}
