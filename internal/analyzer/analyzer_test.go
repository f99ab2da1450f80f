package analyzer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/Dudley70/compression-framework/internal/logging"
	"github.com/Dudley70/compression-framework/internal/scoring"
)

type wordCounter struct{ err error }

func (w wordCounter) Encode(text string) ([]uint, error) {
	if w.err != nil {
		return nil, w.err
	}
	return make([]uint, len(strings.Fields(text))), nil
}

func (w wordCounter) Count(text string) (int, error) {
	ids, err := w.Encode(text)
	return len(ids), err
}

// markerScorer scores by markers embedded in the text.
type markerScorer struct{}

func (markerScorer) Score(_ context.Context, text string) (*scoring.Result, error) {
	switch {
	case strings.Contains(text, "[tokfail]"):
		return nil, fmt.Errorf("%w: codec broken", scoring.ErrTokenization)
	case strings.Contains(text, "[boom]"):
		return nil, errors.New("boom")
	case strings.Contains(text, "[c]"):
		return &scoring.Result{OverallScore: 0.9}, nil
	case strings.Contains(text, "[v]"):
		return &scoring.Result{OverallScore: 0.2}, nil
	}
	return &scoring.Result{OverallScore: 0.5}, nil
}

func newAnalyzer(t *testing.T, opts ...Option) *Analyzer {
	t.Helper()
	a, err := New(markerScorer{}, wordCounter{}, opts...)
	require.NoError(t, err)
	return a
}

func ptr(v float64) *float64 { return &v }

func TestNew(t *testing.T) {
	_, err := New(nil, wordCounter{})
	assert.ErrorIs(t, err, ErrMissingBackend)
	_, err = New(markerScorer{}, nil)
	assert.ErrorIs(t, err, ErrMissingBackend)

	bad := DefaultOptions()
	bad.VerboseThreshold = 0.8
	_, err = New(markerScorer{}, wordCounter{}, WithOptions(bad))
	assert.ErrorIs(t, err, ErrInvalidOptions)

	a := newAnalyzer(t)
	assert.Equal(t, DefaultOptions(), a.Options())
}

func TestOptionsValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Options)
		ok     bool
	}{
		{"defaults", func(*Options) {}, true},
		{"negative verbose", func(o *Options) { o.VerboseThreshold = -0.1 }, false},
		{"compressed above one", func(o *Options) { o.CompressedThreshold = 1.1 }, false},
		{"equal thresholds", func(o *Options) { o.CompressedThreshold = 0.4 }, false},
		{"negative floor", func(o *Options) { o.MinSectionTokens = -1 }, false},
		{"drift at one", func(o *Options) { o.DriftThreshold = 1 }, false},
		{"zero floor", func(o *Options) { o.MinSectionTokens = 0 }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := DefaultOptions()
			tt.mutate(&o)
			if tt.ok {
				assert.NoError(t, o.Validate())
			} else {
				assert.ErrorIs(t, o.Validate(), ErrInvalidOptions)
			}
		})
	}
}

const sectioned = "Intro line one two three\n" +
	"\n" +
	"# Title A\n" +
	"alpha beta gamma delta\n" +
	"#### Deep header\n" +
	"more words here\n" +
	"## B\n" +
	"tiny\n" +
	"### C\n" +
	"one two three"

func TestSplit(t *testing.T) {
	got := newAnalyzer(t).Split(sectioned)
	require.Len(t, got, 3)

	assert.Equal(t, "Introduction", got[0].Title)
	assert.Equal(t, 1, got[0].Level)
	assert.Equal(t, "Intro line one two three", got[0].Content)
	assert.Equal(t, 1, got[0].StartLine)
	assert.Equal(t, 2, got[0].EndLine)

	assert.Equal(t, "Title A", got[1].Title)
	assert.Equal(t, 1, got[1].Level)
	assert.Equal(t, "alpha beta gamma delta\n#### Deep header\nmore words here", got[1].Content)
	assert.Equal(t, 3, got[1].StartLine)
	assert.Equal(t, 6, got[1].EndLine)

	assert.Equal(t, "C", got[2].Title)
	assert.Equal(t, 3, got[2].Level)
	assert.Equal(t, 9, got[2].StartLine)
	assert.Equal(t, 10, got[2].EndLine)
}

func TestSplit_MergeShortSections(t *testing.T) {
	o := DefaultOptions()
	o.MergeShortSections = true
	got := newAnalyzer(t, WithOptions(o)).Split(sectioned)
	require.Len(t, got, 3)

	assert.Equal(t, "Title A", got[1].Title)
	assert.Equal(t, "alpha beta gamma delta\n#### Deep header\nmore words here\n\n## B\ntiny", got[1].Content)
	assert.Equal(t, 8, got[1].EndLine)
}

func TestSplit_MergeKeepsLeadingShortSection(t *testing.T) {
	o := DefaultOptions()
	o.MergeShortSections = true
	got := newAnalyzer(t, WithOptions(o)).Split("# Short\nhi\n# Long\nenough words in here")
	require.Len(t, got, 2)
	assert.Equal(t, "Short", got[0].Title)
	assert.Equal(t, "hi", got[0].Content)
}

func TestSplit_EdgeCases(t *testing.T) {
	a := newAnalyzer(t)
	assert.Empty(t, a.Split("   \n\n"))
	assert.Empty(t, a.Split("#hashtag only"), "a header needs whitespace after the hashes")

	got := a.Split("\n\n  ## Indented header\nwords words words")
	require.Len(t, got, 1)
	assert.Equal(t, "Indented header", got[0].Title)
	assert.Equal(t, 2, got[0].Level)
	assert.Equal(t, 3, got[0].StartLine)
}

func TestSplit_CounterFailureUsesWordCount(t *testing.T) {
	a, err := New(markerScorer{}, wordCounter{err: errors.New("codec broken")})
	require.NoError(t, err)
	got := a.Split("# A\none two three\n# B\none two")
	require.Len(t, got, 1)
	assert.Equal(t, "A", got[0].Title)
}

func TestAnalyzeSection(t *testing.T) {
	a := newAnalyzer(t)
	ctx := context.Background()
	tests := []struct {
		content string
		score   float64
		state   SectionState
		needs   bool
	}{
		{"", 0, SectionEmpty, false},
		{"[v] wordy", 0.2, SectionVerbose, true},
		{"[c] terse", 0.9, SectionCompressed, false},
		{"plain", 0.5, SectionModerate, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.state), func(t *testing.T) {
			s, err := a.AnalyzeSection(ctx, tt.content)
			require.NoError(t, err)
			assert.Equal(t, tt.score, s.Score)
			assert.Equal(t, tt.state, s.State)
			assert.Equal(t, tt.needs, s.NeedsCompression)
		})
	}
}

func TestAnalyzeSection_TokenizerFallback(t *testing.T) {
	a := newAnalyzer(t)
	logger := logging.NewTestLogger()
	ctx := logging.WithLogger(context.Background(), logger.Logger)

	content := "- [tokfail]\n- b\n- c"
	s, err := a.AnalyzeSection(ctx, content)
	require.NoError(t, err)
	assert.Equal(t, scoring.FallbackScore(content), s.Score)
	assert.Equal(t, SectionCompressed, s.State)
	assert.Nil(t, s.Metrics)
	assert.Contains(t, s.ScoreError, "codec broken")
	logger.AssertLogged(t, zapcore.WarnLevel, "fallback heuristic")
}

func TestAnalyzeSection_OtherErrorsPropagate(t *testing.T) {
	_, err := newAnalyzer(t).AnalyzeSection(context.Background(), "[boom]")
	assert.EqualError(t, err, "boom")
}

func TestClassifyState(t *testing.T) {
	a := newAnalyzer(t)
	tests := []struct {
		name   string
		scores []float64
		drift  *float64
		want   State
	}{
		{"empty", nil, nil, StateEmpty},
		{"all compressed", []float64{0.8, 0.9}, nil, StateCompressed},
		{"all verbose", []float64{0.1, 0.39}, nil, StateUncompressed},
		{"mixed", []float64{0.1, 0.9}, nil, StateMixed},
		{"moderate", []float64{0.5, 0.6}, nil, StateModerate},
		{"boundaries are moderate", []float64{0.4, 0.7}, nil, StateModerate},
		{"compressed and moderate", []float64{0.9, 0.5}, nil, StateModerate},
		{"drift with verbose", []float64{0.1, 0.9}, ptr(1.2), StateEdited},
		{"drift all verbose", []float64{0.1}, ptr(1.2), StateEdited},
		{"drift without verbose", []float64{0.9}, ptr(2.0), StateCompressed},
		{"drift at threshold", []float64{0.1, 0.9}, ptr(1.15), StateMixed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, a.ClassifyState(tt.scores, tt.drift))
		})
	}
}

func TestRecommend(t *testing.T) {
	a := newAnalyzer(t)
	secs := []Section{{NeedsCompression: true}, {}, {NeedsCompression: true}}
	significant := &TokenDrift{SignificantDrift: true}

	tests := []struct {
		name  string
		state State
		secs  []Section
		td    *TokenDrift
		want  string
	}{
		{"empty", StateEmpty, nil, nil, "none"},
		{"compressed", StateCompressed, secs, nil, "none"},
		{"uncompressed", StateUncompressed, secs, nil, "compress_all"},
		{"mixed", StateMixed, secs, nil, "compress_sections: [0, 2]"},
		{"mixed ignores drift", StateMixed, secs, significant, "compress_sections: [0, 2]"},
		{"edited", StateEdited, secs, significant, "compress_sections: [0, 2], update_baseline"},
		{"edited without drift info", StateEdited, secs, nil, "compress_sections: [0, 2]"},
		{"nothing to compress", StateModerate, []Section{{}}, nil, "none"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, a.Recommend(tt.secs, tt.state, tt.td))
		})
	}
}

func TestAnalyze_Empty(t *testing.T) {
	r, err := newAnalyzer(t).Analyze(context.Background(), " \n ", nil)
	require.NoError(t, err)
	assert.Equal(t, StateEmpty, r.OverallState)
	assert.Empty(t, r.Sections)
	assert.NotNil(t, r.Sections)
	assert.Equal(t, Summary{}, r.Summary)
	assert.Equal(t, "none", r.Recommendation)
	assert.Nil(t, r.TokenDrift)
}

func TestAnalyze_WholeDocumentSection(t *testing.T) {
	r, err := newAnalyzer(t).Analyze(context.Background(), "hi", nil)
	require.NoError(t, err)
	require.Len(t, r.Sections, 1)
	assert.Equal(t, "Document", r.Sections[0].Title)
	assert.Equal(t, SectionModerate, r.Sections[0].State)
	assert.Equal(t, StateModerate, r.OverallState)
}

func TestAnalyze_Mixed(t *testing.T) {
	doc := "# A\nthe [v] verbose words here\n# B\n[c] list words here now"
	r, err := newAnalyzer(t).Analyze(context.Background(), doc, nil)
	require.NoError(t, err)

	assert.Equal(t, StateMixed, r.OverallState)
	assert.Equal(t, "compress_sections: [0]", r.Recommendation)
	assert.Equal(t, 2, r.Summary.TotalSections)
	assert.Equal(t, 1, r.Summary.CompressedSections)
	assert.Equal(t, 1, r.Summary.UncompressedSections)
	assert.InDelta(t, 0.55, r.Summary.AvgScore, 1e-9)
	assert.True(t, r.Sections[0].NeedsCompression)
	assert.NotNil(t, r.Sections[0].Metrics)
}

func TestAnalyze_EditedWithHeader(t *testing.T) {
	doc := "# A\nthe [v] verbose words here\n# B\n[c] list words here now"
	header := map[string]any{"compression": map[string]any{"baseline_tokens": 10}}

	r, err := newAnalyzer(t).Analyze(context.Background(), doc, header)
	require.NoError(t, err)

	require.NotNil(t, r.TokenDrift)
	assert.True(t, r.TokenDrift.HasHeader)
	assert.Equal(t, 14, r.TokenDrift.CurrentTokens)
	assert.InDelta(t, 1.4, *r.TokenDrift.DriftRatio, 1e-9)
	assert.True(t, r.TokenDrift.SignificantDrift)
	assert.Equal(t, StateEdited, r.OverallState)
	assert.Equal(t, "compress_sections: [0], update_baseline", r.Recommendation)
}

func TestAnalyze_HeaderWithoutBaseline(t *testing.T) {
	doc := "# A\nthe [v] verbose words here"
	r, err := newAnalyzer(t).Analyze(context.Background(), doc, map[string]any{"doc_type": "PLAN"})
	require.NoError(t, err)
	require.NotNil(t, r.TokenDrift)
	assert.False(t, r.TokenDrift.HasHeader)
	assert.Nil(t, r.TokenDrift.DriftRatio)
	assert.False(t, r.TokenDrift.SignificantDrift)
	assert.Equal(t, StateUncompressed, r.OverallState)
}

func TestAnalyze_Errors(t *testing.T) {
	a := newAnalyzer(t)

	_, err := a.Analyze(context.Background(), "# A\n[boom] goes here now", nil)
	assert.ErrorContains(t, err, `section 0 "A"`)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = a.Analyze(ctx, "# A\nwords", nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestAnalyzeContent(t *testing.T) {
	a := newAnalyzer(t)
	content := "---\ncompression:\n  baseline_tokens: 100\n---\n# A\n[c] terse words here"

	r, err := a.AnalyzeContent(context.Background(), content)
	require.NoError(t, err)
	require.NotNil(t, r.TokenDrift)
	assert.Equal(t, 100, *r.TokenDrift.BaselineTokens)
	assert.Equal(t, StateCompressed, r.OverallState)
	assert.Equal(t, "none", r.Recommendation)

	r, err = a.AnalyzeContent(context.Background(), "# A\n[c] terse words here")
	require.NoError(t, err)
	assert.Nil(t, r.TokenDrift)
}
