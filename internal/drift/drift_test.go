package drift

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

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

func newDetector(t *testing.T, opts ...Option) *Detector {
	t.Helper()
	d, err := NewDetector(wordCounter{}, opts...)
	require.NoError(t, err)
	return d
}

func doc(baseline string, words int) string {
	body := strings.TrimSpace(strings.Repeat("word ", words))
	if baseline == "" {
		return body
	}
	return fmt.Sprintf("---\ndoc_type: PLAN\ncompression:\n  baseline_tokens: %s\n---\n%s", baseline, body)
}

func intp(v int) *int { return &v }

func TestNewDetector(t *testing.T) {
	_, err := NewDetector(nil)
	assert.ErrorIs(t, err, ErrNoCounter)

	_, err = NewDetector(wordCounter{}, WithThresholds(Thresholds{Flag: 1.3, Review: 1.2, Compress: 1.5}))
	assert.ErrorIs(t, err, ErrInvalidThresholds)

	d := newDetector(t)
	assert.Equal(t, DefaultThresholds(), d.Thresholds())
}

func TestCalculate_Bands(t *testing.T) {
	d := newDetector(t)
	tests := []struct {
		current int
		want    Recommendation
	}{
		{1000, RecommendNone},
		{800, RecommendNone},
		{1149, RecommendNone},
		{1150, RecommendFlag},
		{1249, RecommendFlag},
		{1250, RecommendReview},
		{1499, RecommendReview},
		{1500, RecommendCompress},
		{3000, RecommendCompress},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.current), func(t *testing.T) {
			r := d.Calculate(intp(1000), tt.current)
			assert.Equal(t, tt.want, r.Recommendation)
			assert.True(t, r.HasHeader)
			assert.InDelta(t, float64(tt.current)/1000, r.Ratio(), 1e-12)
			assert.Equal(t, tt.current-1000, *r.AbsoluteDrift)
		})
	}
}

func TestCalculate_FlagBoundaryExact(t *testing.T) {
	r := newDetector(t).Calculate(intp(1000), 1150)
	assert.Equal(t, 1.15, *r.DriftRatio)
	assert.Equal(t, RecommendFlag, r.Recommendation)
}

func TestCalculate_Explanations(t *testing.T) {
	d := newDetector(t)
	assert.Equal(t, "Minimal drift (5.0%), no action needed.", d.Calculate(intp(1000), 1050).Explanation)
	assert.Equal(t, "Minimal drift (-20.0%), no action needed.", d.Calculate(intp(1000), 800).Explanation)
	assert.Equal(t, "Document has grown 20.0% since compression. Monitor for further growth.",
		d.Calculate(intp(1000), 1200).Explanation)
	assert.Equal(t, "Document has grown 30.0% since compression. Review for new content that needs compression.",
		d.Calculate(intp(1000), 1300).Explanation)
	assert.Equal(t, "Document has grown 60.0% since compression. Recommend full re-compression.",
		d.Calculate(intp(1000), 1600).Explanation)
}

func TestCalculate_NoBaseline(t *testing.T) {
	r := newDetector(t).Calculate(nil, 42)
	assert.False(t, r.HasHeader)
	assert.Equal(t, RecommendUntracked, r.Recommendation)
	assert.Nil(t, r.BaselineTokens)
	assert.Nil(t, r.DriftRatio)
	assert.Nil(t, r.DriftPercentage)
	assert.Nil(t, r.AbsoluteDrift)
	assert.Equal(t, 42, r.CurrentTokens)
	assert.Equal(t, "Document has no compression baseline. Cannot detect drift.", r.Explanation)
}

func TestCustomThresholds(t *testing.T) {
	d := newDetector(t, WithThresholds(Thresholds{Flag: 1.15, Review: 1.30, Compress: 1.50}))
	assert.Equal(t, RecommendFlag, d.Calculate(intp(100), 127).Recommendation)
}

func TestBaseline(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    *int
	}{
		{"valid", doc("1000", 3), intp(1000)},
		{"no header", doc("", 3), nil},
		{"float", doc("1000.5", 3), nil},
		{"bool", doc("true", 3), nil},
		{"zero", doc("0", 3), nil},
		{"malformed yaml", "---\ncompression: [unclosed\n---\nbody", nil},
		{"unterminated", "---\ncompression:\n  baseline_tokens: 10\nbody", nil},
		{"missing field", "---\ndoc_type: PLAN\n---\nbody", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Baseline(tt.content))
		})
	}
}

func TestCheckContent(t *testing.T) {
	d := newDetector(t)
	ctx := context.Background()

	r, err := d.CheckContent(ctx, doc("1000", 1500))
	require.NoError(t, err)
	assert.Equal(t, RecommendCompress, r.Recommendation)
	assert.Equal(t, 1500, r.CurrentTokens, "header tokens are excluded")

	r, err = d.CheckContent(ctx, "---\ncompression: [bad\n---\none two three")
	require.NoError(t, err)
	assert.Equal(t, RecommendUntracked, r.Recommendation)
	assert.Equal(t, 3, r.CurrentTokens)

	_, err = newDetectorWith(t, wordCounter{err: errors.New("boom")}).CheckContent(ctx, "x")
	assert.ErrorContains(t, err, "boom")
}

func newDetectorWith(t *testing.T, c wordCounter) *Detector {
	t.Helper()
	d, err := NewDetector(c)
	require.NoError(t, err)
	return d
}

func TestCheckFile(t *testing.T) {
	d := newDetector(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "guide.md")
	require.NoError(t, os.WriteFile(path, []byte(doc("100", 118)), 0o644))

	r, err := d.CheckFile(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, path, r.Path)
	assert.Equal(t, RecommendFlag, r.Recommendation)

	_, err = d.CheckFile(context.Background(), filepath.Join(dir, "missing.md"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}
