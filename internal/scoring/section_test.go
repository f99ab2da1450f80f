package scoring

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSectionScorer(t *testing.T) {
	s, err := New(newWordCounter())
	require.NoError(t, err)
	ss := SectionScorer{Scorer: s}

	score, m, err := ss.ScoreSection(context.Background(), denseList)
	require.NoError(t, err)

	want, err := s.Score(context.Background(), denseList)
	require.NoError(t, err)
	assert.Equal(t, want.OverallScore, score)
	assert.Equal(t, want.Metrics, m)
}

func TestSectionScorer_Error(t *testing.T) {
	s, err := New(failingCounter{})
	require.NoError(t, err)

	_, _, err = SectionScorer{Scorer: s}.ScoreSection(context.Background(), "text here")
	assert.ErrorIs(t, err, ErrTokenization)
}
