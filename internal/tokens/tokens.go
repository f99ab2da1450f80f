// Package tokens counts sub-word tokens with the cl100k_base encoding.
//
// Every token-denominated quantity in ctxcompress (compression ratios, list
// density, drift baselines) is measured through a Counter from this package
// so that scores and drift readings stay comparable across components.
package tokens

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/tiktoken-go/tokenizer"
)

// ErrTokenizerUnavailable is returned when the cl100k_base codec cannot be loaded.
var ErrTokenizerUnavailable = errors.New("tokenizer unavailable")

// Counter encodes text into token ids.
type Counter interface {
	// Encode returns the token id sequence for text.
	Encode(text string) ([]uint, error)
	// Count returns the number of tokens in text.
	Count(text string) (int, error)
}

// Tiktoken is a Counter backed by the cl100k_base codec.
type Tiktoken struct {
	codec tokenizer.Codec
}

var (
	sharedOnce  sync.Once
	sharedCodec tokenizer.Codec
	sharedErr   error
)

// NewTiktoken returns a Counter using cl100k_base. The codec is loaded once
// per process and shared between counters.
func NewTiktoken() (*Tiktoken, error) {
	sharedOnce.Do(func() {
		sharedCodec, sharedErr = tokenizer.Get(tokenizer.Cl100kBase)
	})
	if sharedErr != nil {
		return nil, fmt.Errorf("%w: %v", ErrTokenizerUnavailable, sharedErr)
	}
	return &Tiktoken{codec: sharedCodec}, nil
}

// Encode implements Counter.
func (t *Tiktoken) Encode(text string) ([]uint, error) {
	if text == "" {
		return nil, nil
	}
	ids, _, err := t.codec.Encode(text)
	if err != nil {
		return nil, fmt.Errorf("encode: %w", err)
	}
	return ids, nil
}

// Count implements Counter.
func (t *Tiktoken) Count(text string) (int, error) {
	ids, err := t.Encode(text)
	if err != nil {
		return 0, err
	}
	return len(ids), nil
}

// EstimateWords approximates a token count as words * 1.3.
// Only explicit fallback paths use it; it is never a silent substitute for Count.
func EstimateWords(text string) int {
	words := len(strings.Fields(text))
	if words == 0 {
		return 0
	}
	return int(float64(words) * 1.3)
}
