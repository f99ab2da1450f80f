package frontmatter

import (
	"math"
	"time"
)

// TimestampLayout is the last_full_compression format.
const TimestampLayout = "2006-01-02 15:04 MST"

// CompressionRecord is the compression block written after a pass.
type CompressionRecord struct {
	At                 time.Time
	BaselineTokens     int
	Sigma              float64
	Gamma              float64
	Kappa              float64
	EntityPreservation float64
	SemanticSimilarity float64
}

// FormatTimestamp renders t in TimestampLayout. Zones without a letter
// abbreviation are rendered in UTC so the result stays conformant.
func FormatTimestamp(t time.Time) string {
	name, _ := t.Zone()
	for _, r := range name {
		if r < 'A' || r > 'Z' {
			t = t.UTC()
			break
		}
	}
	if name == "" {
		t = t.UTC()
	}
	return t.Format(TimestampLayout)
}

// SetCompression replaces meta's compression block with rec and returns
// meta. A nil meta is allocated.
func SetCompression(meta map[string]any, rec CompressionRecord) map[string]any {
	if meta == nil {
		meta = map[string]any{}
	}
	meta["compression"] = map[string]any{
		"last_full_compression": FormatTimestamp(rec.At),
		"baseline_tokens":       rec.BaselineTokens,
		"parameters": map[string]any{
			"σ": round3(rec.Sigma),
			"γ": round3(rec.Gamma),
			"κ": round3(rec.Kappa),
		},
		"validation": map[string]any{
			"entity_preservation": round3(rec.EntityPreservation),
			"semantic_similarity": round3(rec.SemanticSimilarity),
		},
	}
	return meta
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
