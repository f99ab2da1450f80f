package frontmatter

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const header = `---
doc_type: API_REFERENCE
audience: llm-only
layer: Operational
phase: Active
purpose: Reference
target_style:
  sigma: 0.8
  gamma: 0.7
  kappa: 0.2
compression:
  last_full_compression: 2025-10-14 09:30 UTC
  baseline_tokens: 1000
  parameters:
    σ: 0.8
    γ: 0.7
    κ: 0.2
  validation:
    entity_preservation: 0.95
    semantic_similarity: 0.88
---
# Title

Body text.`

func TestSplit(t *testing.T) {
	tests := []struct {
		name    string
		content string
		ok      bool
		raw     string
		body    string
	}{
		{"no header", "# Title\nbody", false, "", ""},
		{"unterminated", "---\na: 1\nbody", false, "", ""},
		{"simple", "---\na: 1\n---\nbody\nmore", true, "a: 1", "body\nmore"},
		{"closing with spaces", "---\na: 1\n  ---  \nbody", true, "a: 1", "body"},
		{"empty block", "---\n---\nbody", true, "", "body"},
		{"nothing after", "---\na: 1\n---", true, "a: 1", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, ok := Split(tt.content)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.raw, b.Raw)
			assert.Equal(t, tt.body, b.Body)
		})
	}

	assert.Equal(t, "# Title\nbody", Body("# Title\nbody"))
	assert.Equal(t, "body", Body("---\na: 1\n---\nbody"))
}

func TestParse(t *testing.T) {
	meta, err := Parse("a: 1\nnested:\n  b: two\n")
	require.NoError(t, err)
	assert.Equal(t, 1, meta["a"])
	nested, ok := Section(meta, "nested")
	require.True(t, ok)
	assert.Equal(t, "two", nested["b"])

	meta, err = Parse("   ")
	require.NoError(t, err)
	assert.Empty(t, meta)

	for _, bad := range []string{"- a\n- b", "just a scalar", "a: [unclosed"} {
		_, err := Parse(bad)
		assert.ErrorIs(t, err, ErrInvalidHeader, bad)
	}
}

func TestRead(t *testing.T) {
	meta, body, err := Read(header)
	require.NoError(t, err)
	assert.Equal(t, "API_REFERENCE", meta["doc_type"])
	assert.Equal(t, "# Title\n\nBody text.", body)

	_, body, err = Read("no header")
	assert.ErrorIs(t, err, ErrInvalidHeader)
	assert.Equal(t, "no header", body)
}

func TestBaselineTokens(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want int
		ok   bool
	}{
		{"valid", "compression:\n  baseline_tokens: 1000", 1000, true},
		{"missing block", "doc_type: PLAN", 0, false},
		{"missing field", "compression:\n  parameters: {}", 0, false},
		{"zero", "compression:\n  baseline_tokens: 0", 0, false},
		{"negative", "compression:\n  baseline_tokens: -5", 0, false},
		{"float", "compression:\n  baseline_tokens: 1000.0", 0, false},
		{"bool", "compression:\n  baseline_tokens: true", 0, false},
		{"string", "compression:\n  baseline_tokens: \"1000\"", 0, false},
		{"block not a map", "compression: 1000", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			meta, err := Parse(tt.raw)
			require.NoError(t, err)
			got, ok := BaselineTokens(meta)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRender_RoundTrip(t *testing.T) {
	meta, body, err := Read(header)
	require.NoError(t, err)

	out, err := Render(meta, body)
	require.NoError(t, err)

	meta2, body2, err := Read(out)
	require.NoError(t, err)
	assert.Equal(t, meta, meta2)
	assert.Equal(t, body, body2)
}

func TestSetCompression(t *testing.T) {
	at := time.Date(2025, 10, 14, 9, 30, 0, 0, time.UTC)
	meta := SetCompression(nil, CompressionRecord{
		At:                 at,
		BaselineTokens:     420,
		Sigma:              0.81234,
		Gamma:              0.7,
		Kappa:              0.2,
		EntityPreservation: 0.9,
		SemanticSimilarity: 0.876543,
	})

	n, ok := BaselineTokens(meta)
	require.True(t, ok)
	assert.Equal(t, 420, n)

	comp, _ := Section(meta, "compression")
	assert.Equal(t, "2025-10-14 09:30 UTC", comp["last_full_compression"])
	params := comp["parameters"].(map[string]any)
	assert.Equal(t, 0.812, params["σ"])
	validation := comp["validation"].(map[string]any)
	assert.Equal(t, 0.877, validation["semantic_similarity"])
}

func TestFormatTimestamp(t *testing.T) {
	at := time.Date(2025, 1, 2, 3, 4, 0, 0, time.FixedZone("+0530", 5*3600+1800))
	assert.Equal(t, "2025-01-01 21:34 UTC", FormatTimestamp(at))

	est := time.Date(2025, 1, 2, 3, 4, 0, 0, time.FixedZone("EST", -5*3600))
	assert.Equal(t, "2025-01-02 03:04 EST", FormatTimestamp(est))
}
