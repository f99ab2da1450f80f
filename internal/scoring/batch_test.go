package scoring

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBatchScore_PreservesOrder(t *testing.T) {
	s := newTiktokenScorer(t)
	texts := []string{verboseProse, denseList, "", verboseProse}

	results, err := BatchScore(context.Background(), s, texts, 2)
	require.NoError(t, err)
	require.Len(t, results, len(texts))

	for i, text := range texts {
		want, err := s.Score(context.Background(), text)
		require.NoError(t, err)
		assert.Equal(t, want.OverallScore, results[i].OverallScore, "index %d", i)
	}
}

func TestBatchScore_PropagatesError(t *testing.T) {
	s, err := New(failingCounter{})
	require.NoError(t, err)

	_, err = BatchScore(context.Background(), s, []string{"one", "two"}, 0)
	assert.ErrorIs(t, err, ErrTokenization)
}

func TestFallbackScore(t *testing.T) {
	tests := []struct {
		name string
		text string
		want float64
	}{
		{"blank", "  \n ", 0},
		{"all list lines", "- a\n- b", 0.7 + (1-3.0/100)*0.3},
		{"single prose line", "plain text line", (1 - 15.0/100) * 0.3},
		{"bullet glyph", "• x", 0.7 + (1-3.0/100)*0.3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, FallbackScore(tt.text), 1e-9)
		})
	}
}
