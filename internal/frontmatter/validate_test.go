package frontmatter

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fields(vs []Violation) []string {
	out := make([]string, len(vs))
	for i, v := range vs {
		out[i] = v.Field
	}
	return out
}

func TestValidate_Conformant(t *testing.T) {
	meta, _, err := Read(header)
	require.NoError(t, err)
	assert.Empty(t, Validate(meta, ValidateOptions{RequireCompression: true}))
}

func TestValidate_MissingRequired(t *testing.T) {
	meta, err := Parse("doc_type: PLAN")
	require.NoError(t, err)

	got := fields(Validate(meta, ValidateOptions{}))
	assert.Equal(t, []string{"audience", "layer", "phase", "purpose", "target_style"}, got)

	got = fields(Validate(meta, ValidateOptions{RequireCompression: true}))
	assert.Contains(t, got, "compression")
}

func TestValidate_Violations(t *testing.T) {
	base := `doc_type: PLAN
audience: llm-only
layer: Session
phase: Active
purpose: Planning
target_style: {sigma: 0.5, gamma: 0.5, kappa: 0.5}
`
	tests := []struct {
		name  string
		extra string
		swap  map[string]string
		field string
		msg   string
	}{
		{name: "bad doc_type", swap: map[string]string{"doc_type: PLAN": "doc_type: MEMO"}, field: "doc_type", msg: `invalid value "MEMO"`},
		{name: "bad audience", swap: map[string]string{"audience: llm-only": "audience: robots"}, field: "audience", msg: "invalid value"},
		{name: "bad layer", swap: map[string]string{"layer: Session": "layer: session"}, field: "layer", msg: "invalid value"},
		{name: "bad phase", swap: map[string]string{"phase: Active": "phase: Draft"}, field: "phase", msg: "invalid value"},
		{name: "bad purpose", swap: map[string]string{"purpose: Planning": "purpose: 7"}, field: "purpose", msg: "must be a string"},
		{name: "sigma out of range", swap: map[string]string{"sigma: 0.5": "sigma: 1.5"}, field: "target_style.sigma", msg: "not in [0.0, 1.0]"},
		{name: "kappa missing", swap: map[string]string{", kappa: 0.5": ""}, field: "target_style.kappa", msg: "required parameter missing"},
		{name: "gamma not numeric", swap: map[string]string{"gamma: 0.5": "gamma: high"}, field: "target_style.gamma", msg: "must be numeric"},
		{name: "bad timestamp", extra: `compression:
  last_full_compression: "2025-10-14T09:30:00Z"
  baseline_tokens: 10
  parameters: {}
  validation: {entity_preservation: 1, semantic_similarity: 1}
`, field: "compression.last_full_compression", msg: "invalid timestamp format"},
		{name: "bad baseline", extra: `compression:
  last_full_compression: 2025-10-14 09:30 UTC
  baseline_tokens: 10.5
  parameters: {}
  validation: {entity_preservation: 1, semantic_similarity: 1}
`, field: "compression.baseline_tokens", msg: "positive integer"},
		{name: "greek parameter out of range", extra: `compression:
  last_full_compression: 2025-10-14 09:30 UTC
  baseline_tokens: 10
  parameters: {σ: 2}
  validation: {entity_preservation: 1, semantic_similarity: 1}
`, field: "compression.parameters.σ", msg: "not in [0.0, 1.0]"},
		{name: "validation missing field", extra: `compression:
  last_full_compression: 2025-10-14 09:30 UTC
  baseline_tokens: 10
  parameters: {}
  validation: {entity_preservation: 0.9}
`, field: "compression.validation.semantic_similarity", msg: "required field missing"},
		{name: "writing guide value", extra: "writing_guide: {tone: terse, depth: 3}\n", field: "writing_guide.depth", msg: "must be a string"},
		{name: "writing guide not a map", extra: "writing_guide: terse\n", field: "writing_guide", msg: "must be a mapping"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := base
			for from, to := range tt.swap {
				require.Contains(t, raw, from)
				raw = strings.Replace(raw, from, to, 1)
			}
			meta, err := Parse(raw + tt.extra)
			require.NoError(t, err)

			vs := Validate(meta, ValidateOptions{})
			require.Len(t, vs, 1, "violations: %v", vs)
			assert.Equal(t, tt.field, vs[0].Field)
			assert.Contains(t, vs[0].Message, tt.msg)
		})
	}
}

func TestViolation_String(t *testing.T) {
	assert.Equal(t, "layer: invalid", Violation{Field: "layer", Message: "invalid"}.String())
}

func TestCheck(t *testing.T) {
	tests := []struct {
		name      string
		content   string
		hasHeader bool
		valid     bool
		errText   string
		fields    []string
	}{
		{"conformant", header, true, true, "", []string{}},
		{"no header", "# Title\n\nBody.", false, false, "no frontmatter block", []string{}},
		{"malformed yaml", "---\ndoc_type: [unclosed\n---\nbody", true, false, "invalid frontmatter", []string{}},
		{"violations", "---\ndoc_type: PLAN\naudience: llm-only\nlayer: Session\nphase: Active\npurpose: Planning\n---\nbody", true, false, "", []string{"target_style"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Check(tt.content, ValidateOptions{})
			assert.Equal(t, tt.hasHeader, got.HasHeader)
			assert.Equal(t, tt.valid, got.Valid)
			if tt.errText == "" {
				assert.Empty(t, got.Error)
			} else {
				assert.Contains(t, got.Error, tt.errText)
			}
			assert.Equal(t, tt.fields, fields(got.Violations))
		})
	}
}

func TestCheck_RequireCompression(t *testing.T) {
	body := strings.SplitN(header, "compression:", 2)[0] + "---\nbody"
	got := Check(body, ValidateOptions{RequireCompression: true})
	assert.False(t, got.Valid)
	assert.Equal(t, []string{"compression"}, fields(got.Violations))
}
