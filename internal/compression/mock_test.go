package compression

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Dudley70/compression-framework/internal/scoring"
)

// markerScorer scores text containing "[dense]" as compressed and
// everything else as verbose.
type markerScorer struct {
	err   error
	calls int
}

func (m *markerScorer) Score(_ context.Context, text string) (*scoring.Result, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	score := 0.3
	if strings.Contains(text, "[dense]") {
		score = 0.85
	}
	return &scoring.Result{OverallScore: score, Interpretation: scoring.Interpret(score)}, nil
}

// wordCounter counts whitespace-separated words as tokens.
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

const (
	verboseDoc = "Gateway validates JWT tokens for every request.\n" +
		"the token is checked again and again, in other words, the same token is verified repeatedly for every single request made to the service."
	entityLossDoc = "Gateway validates JWT tokens for every request.\n" +
		"the token is re-checked, in other words, the Vault service verifies it again for every single request made."
)

var stripScaffolding = Params{Sigma: 0.5, Gamma: 0.9, Kappa: 0.3}

func newMock(t *testing.T) (*MockCompressor, *markerScorer) {
	t.Helper()
	s := &markerScorer{}
	m, err := NewMockCompressor(s, wordCounter{})
	require.NoError(t, err)
	return m, s
}

func TestNewMockCompressor(t *testing.T) {
	_, err := NewMockCompressor(nil, wordCounter{})
	assert.Error(t, err)
	_, err = NewMockCompressor(&markerScorer{}, nil)
	assert.Error(t, err)

	m, _ := newMock(t)
	assert.Equal(t, DefaultMockThresholds(), m.Thresholds())
}

func TestMockCompressor_Refusals(t *testing.T) {
	tests := []struct {
		name   string
		text   string
		params Params
		reason Refusal
		msg    string
	}{
		{
			name:   "empty input",
			text:   "   \n\t",
			params: Params{Sigma: 1.5},
			reason: RefuseEmptyInput,
			msg:    "Cannot compress empty or whitespace-only content.",
		},
		{
			name:   "invalid parameters",
			text:   verboseDoc,
			params: Params{Sigma: 1.5, Gamma: 0.5, Kappa: 0.5},
			reason: RefuseInvalidParameters,
			msg:    "Parameters must be between 0 and 1. Got: σ=1.5, γ=0.5, κ=0.5",
		},
		{
			name:   "already compressed",
			text:   "[dense] API→DB ✓",
			params: stripScaffolding,
			reason: RefuseAlreadyCompressed,
			msg:    "Document already compressed (score: 0.85). Refusing to prevent information loss. Threshold: 0.8",
		},
		{
			name:   "minimal benefit",
			text:   "Short line here.",
			params: Params{Sigma: 0.5, Gamma: 0.9, Kappa: 0.9},
			reason: RefuseMinimalBenefit,
			msg:    "Compression achieves only 0.0% reduction (ratio: 1.000). Risk vs benefit too high. Minimum reduction required: 15.0%",
		},
		{
			name:   "entity loss",
			text:   entityLossDoc,
			params: stripScaffolding,
			reason: RefuseEntityLoss,
			msg:    "Compression would lose 33.3% of entities (3 → 2 entities). Refusing to prevent information loss. Minimum preservation: 80%",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, _ := newMock(t)
			res, err := m.Compress(context.Background(), tt.text, tt.params)
			require.NoError(t, err)
			assert.True(t, res.Refused)
			assert.Equal(t, tt.reason, res.Reason)
			assert.Equal(t, tt.msg, res.Message)
			assert.Empty(t, res.CompressedText)
		})
	}
}

func TestMockCompressor_EmptyBeforeScoring(t *testing.T) {
	m, s := newMock(t)
	_, err := m.Compress(context.Background(), "", DefaultParams())
	require.NoError(t, err)
	assert.Zero(t, s.calls)
}

func TestMockCompressor_Success(t *testing.T) {
	m, _ := newMock(t)

	res, err := m.Compress(context.Background(), verboseDoc, stripScaffolding)
	require.NoError(t, err)

	assert.False(t, res.Refused)
	assert.Equal(t, "Gateway validates JWT tokens for every request.\nthe token is checked again and again,", res.CompressedText)
	assert.Equal(t, 31, res.OriginalTokens)
	assert.Equal(t, 14, res.CompressedTokens)
	assert.InDelta(t, 14.0/31.0, res.CompressionRatio, 1e-9)
	assert.InDelta(t, (1-14.0/31.0)*100, res.ReductionPercent, 1e-9)
	assert.Equal(t, 1.0, res.EntitiesPreserved)
	assert.Equal(t, 2, res.EntitiesOriginal)
	require.NotNil(t, res.Parameters)
	assert.Equal(t, stripScaffolding, *res.Parameters)
}

func TestMockCompressor_BackendErrors(t *testing.T) {
	s := &markerScorer{err: errors.New("scorer down")}
	m, err := NewMockCompressor(s, wordCounter{})
	require.NoError(t, err)
	_, err = m.Compress(context.Background(), verboseDoc, stripScaffolding)
	assert.ErrorContains(t, err, "scorer down")

	m, err = NewMockCompressor(&markerScorer{}, wordCounter{err: errors.New("no tokenizer")})
	require.NoError(t, err)
	_, err = m.Compress(context.Background(), verboseDoc, stripScaffolding)
	assert.ErrorContains(t, err, "no tokenizer")
}

func TestMockRewrite(t *testing.T) {
	long := "alpha beta gamma delta epsilon zeta eta theta iota kappa lambda mu nu xi omicron pi rho sigma tau upsilon"

	tests := []struct {
		name   string
		text   string
		params Params
		want   string
	}{
		{"empty", "  ", DefaultParams(), ""},
		{"strip starter", "For example, the cache is warm.", Params{Sigma: 0.5, Gamma: 0.9, Kappa: 0.3}, "the cache is warm."},
		{"low granularity keeps a quarter", long, Params{Sigma: 0.5, Gamma: 0.2, Kappa: 0.9}, "alpha beta gamma delta epsilon"},
		{"mid granularity keeps half", long, Params{Sigma: 0.5, Gamma: 0.4, Kappa: 0.9}, "alpha beta gamma delta epsilon zeta eta theta iota kappa"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MockRewrite(tt.text, tt.params))
		})
	}
}

func TestMockRewrite_Bullets(t *testing.T) {
	paragraph := "The gateway validates every incoming token carefully. It retries failed lookups three times before giving up. Short one."

	got := MockRewrite(paragraph, Params{Sigma: 0.9, Gamma: 0.9, Kappa: 0.9})

	lines := strings.Split(got, "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "- The gateway validates every incoming token carefully", lines[0])
	assert.True(t, strings.HasPrefix(lines[1], "- It retries"))
}

func TestMockRewrite_KeepsLineBreaks(t *testing.T) {
	got := MockRewrite(verboseDoc, stripScaffolding)
	assert.Contains(t, got, "\n")
	assert.Equal(t, got, MockRewrite(verboseDoc, stripScaffolding))
}

func TestMockRewriter(t *testing.T) {
	var rw MockRewriter
	assert.Equal(t, MockName, rw.Name())

	got, err := rw.Rewrite(context.Background(), verboseDoc, stripScaffolding)
	require.NoError(t, err)
	assert.Equal(t, MockRewrite(verboseDoc, stripScaffolding), got)

	_, err = rw.Rewrite(context.Background(), verboseDoc, Params{Gamma: -1})
	assert.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = rw.Rewrite(ctx, verboseDoc, stripScaffolding)
	assert.ErrorIs(t, err, context.Canceled)
}
