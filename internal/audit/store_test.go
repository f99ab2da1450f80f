package audit

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/Dudley70/compression-framework/internal/entities"
	"github.com/Dudley70/compression-framework/internal/logging"
	"github.com/Dudley70/compression-framework/internal/safety"
	"github.com/Dudley70/compression-framework/internal/scoring"
)

func newStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "audit", "verdicts.db"), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// tickingClock returns a clock that advances one second per call.
func tickingClock() func() time.Time {
	now := time.Date(2025, 10, 14, 9, 0, 0, 0, time.UTC)
	return func() time.Time {
		now = now.Add(time.Second)
		return now
	}
}

func report(rec safety.Recommendation, failures ...safety.Failure) *safety.Report {
	ratio := 0.5
	if failures == nil {
		failures = []safety.Failure{}
	}
	return &safety.Report{
		Safe:           rec == safety.RecommendAccept,
		Recommendation: rec,
		Failures:       failures,
		Summary:        "summary " + string(rec),
		Checks: safety.Checks{
			MinimalBenefit: &safety.BenefitResult{
				Passed:           true,
				OriginalTokens:   100,
				CompressedTokens: 50,
				CompressionRatio: &ratio,
			},
		},
		Parameters: &safety.Parameters{Sigma: 0.5, Gamma: 0.5, Kappa: 0.5},
	}
}

func TestOpen(t *testing.T) {
	_, err := Open("")
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "v.db")
	s1, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s1.Record(context.Background(), "a.md", report(safety.RecommendAccept)))
	require.NoError(t, s1.Close())

	s2, err := Open(path)
	require.NoError(t, err)
	defer s2.Close()
	entries, err := s2.List(context.Background(), 0)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestRecordAndList(t *testing.T) {
	s := newStore(t, WithClock(tickingClock()))
	ctx := context.Background()

	loss := safety.Failure{Check: safety.CheckEntityPreservation, Message: "lost entities"}
	require.NoError(t, s.Record(ctx, "a.md", report(safety.RecommendAccept)))
	require.NoError(t, s.Record(ctx, "b.md", report(safety.RecommendWarn, loss)))
	noBenefit := report(safety.RecommendRefuse)
	noBenefit.Checks.MinimalBenefit = nil
	noBenefit.Failures = nil
	require.NoError(t, s.Record(ctx, "c.md", noBenefit))

	entries, err := s.List(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 3)

	assert.Equal(t, []string{"c.md", "b.md", "a.md"},
		[]string{entries[0].Document, entries[1].Document, entries[2].Document})

	c := entries[0]
	assert.Equal(t, safety.RecommendRefuse, c.Recommendation)
	assert.False(t, c.Safe)
	assert.Empty(t, c.Failures)
	assert.Nil(t, c.OriginalTokens)
	assert.Nil(t, c.CompressedTokens)
	assert.Equal(t, time.Date(2025, 10, 14, 9, 0, 3, 0, time.UTC), c.CreatedAt)

	b := entries[1]
	assert.Equal(t, []safety.Failure{loss}, b.Failures)
	require.NotNil(t, b.OriginalTokens)
	assert.Equal(t, 100, *b.OriginalTokens)
	assert.Equal(t, 50, *b.CompressedTokens)
	assert.Equal(t, "summary warn", b.Report.Summary)
	assert.InDelta(t, 0.5, b.Report.Ratio(), 1e-9)
	assert.Equal(t, 0.5, b.Report.Parameters.Sigma)

	a := entries[2]
	assert.True(t, a.Safe)
	assert.Len(t, a.ID, 36)
	assert.NotEqual(t, a.ID, b.ID)
}

func TestList_Limit(t *testing.T) {
	s := newStore(t, WithClock(tickingClock()))
	ctx := context.Background()
	for i := 0; i < DefaultListLimit+5; i++ {
		require.NoError(t, s.Record(ctx, "doc.md", report(safety.RecommendAccept)))
	}

	tests := []struct {
		name  string
		limit int
		want  int
	}{
		{"explicit", 3, 3},
		{"zero uses default", 0, DefaultListLimit},
		{"negative uses default", -1, DefaultListLimit},
		{"above total", 1000, DefaultListLimit + 5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entries, err := s.List(ctx, tt.limit)
			require.NoError(t, err)
			assert.Len(t, entries, tt.want)
		})
	}
}

func TestList_Empty(t *testing.T) {
	entries, err := newStore(t).List(context.Background(), 5)
	require.NoError(t, err)
	assert.NotNil(t, entries)
	assert.Empty(t, entries)
}

func TestCounts(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	for _, rec := range []safety.Recommendation{
		safety.RecommendAccept, safety.RecommendAccept, safety.RecommendWarn,
		safety.RecommendRefuse, safety.RecommendAccept,
	} {
		require.NoError(t, s.Record(ctx, "d.md", report(rec)))
	}

	counts, err := s.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[safety.Recommendation]int{
		safety.RecommendAccept: 3,
		safety.RecommendWarn:   1,
		safety.RecommendRefuse: 1,
	}, counts)
}

func TestRecord_NilReport(t *testing.T) {
	assert.Error(t, newStore(t).Record(context.Background(), "x", nil))
}

func TestClose(t *testing.T) {
	s := newStore(t)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	ctx := context.Background()
	assert.ErrorIs(t, s.Record(ctx, "a", report(safety.RecommendAccept)), ErrClosed)
	_, err := s.List(ctx, 1)
	assert.ErrorIs(t, err, ErrClosed)
	_, err = s.Counts(ctx)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestRecord_Logs(t *testing.T) {
	logger := logging.NewTestLogger()
	s := newStore(t, WithLogger(logger.Logger))
	require.NoError(t, s.Record(context.Background(), "a.md", report(safety.RecommendWarn)))
	logger.AssertLogged(t, zapcore.DebugLevel, "recorded safety verdict")
	logger.AssertField(t, "recorded safety verdict", "recommendation", "warn")
}

type wordCounter struct{}

func (wordCounter) Encode(text string) ([]uint, error) {
	return make([]uint, len(strings.Fields(text))), nil
}

func (w wordCounter) Count(text string) (int, error) {
	ids, _ := w.Encode(text)
	return len(ids), nil
}

type lowScorer struct{}

func (lowScorer) Score(context.Context, string) (*scoring.Result, error) {
	return &scoring.Result{OverallScore: 0.2, Interpretation: scoring.Interpret(0.2)}, nil
}

type noEntities struct{}

func (noEntities) Extract(context.Context, string) (entities.Set, error) {
	return entities.NewSet(), nil
}

type fixedSimilarity float64

func (f fixedSimilarity) Similarity(context.Context, string, string) (float64, error) {
	return float64(f), nil
}

func TestStoreAsValidatorRecorder(t *testing.T) {
	s := newStore(t)
	v, err := safety.NewValidator(safety.Backends{
		Scorer:     lowScorer{},
		Counter:    wordCounter{},
		Entities:   noEntities{},
		Similarity: fixedSimilarity(0.4),
	}, safety.WithRecorder(s))
	require.NoError(t, err)

	ctx := logging.WithDocument(context.Background(), "notes/design.md")
	rep, err := v.Validate(ctx, "one two three four five six seven eight", "one two three", nil)
	require.NoError(t, err)
	require.Equal(t, safety.RecommendWarn, rep.Recommendation)

	entries, err := s.List(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "notes/design.md", entries[0].Document)
	assert.Equal(t, safety.RecommendWarn, entries[0].Recommendation)
	require.Len(t, entries[0].Failures, 1)
	assert.Equal(t, safety.CheckSemanticSimilarity, entries[0].Failures[0].Check)
	assert.Equal(t, 8, *entries[0].OriginalTokens)
	assert.Equal(t, 3, *entries[0].CompressedTokens)
}
