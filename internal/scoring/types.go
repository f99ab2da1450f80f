package scoring

import "context"

// Interpretation is a coarse label for an overall score.
type Interpretation string

const (
	// InterpretationVerbose marks scores below 0.3.
	InterpretationVerbose Interpretation = "verbose"
	// InterpretationModerate marks scores in [0.3, 0.6).
	InterpretationModerate Interpretation = "moderately_compressed"
	// InterpretationCompressed marks scores in [0.6, 0.8).
	InterpretationCompressed Interpretation = "compressed"
	// InterpretationHighlyCompressed marks scores of 0.8 and above.
	InterpretationHighlyCompressed Interpretation = "highly_compressed"
)

// SafeThreshold is the score at or above which content counts as already compressed.
const SafeThreshold = 0.8

// Metrics holds the six raw measurements for one text span.
type Metrics struct {
	ListDensity        float64 `json:"list_density"`
	ProseRatio         float64 `json:"prose_ratio"`
	AvgSentenceLength  float64 `json:"avg_sentence_length"`
	Redundancy         float64 `json:"redundancy"`
	ExplanationMarkers int     `json:"explanation_markers"`
	InformationEntropy float64 `json:"information_entropy"`
}

// Result is the outcome of scoring one text span.
type Result struct {
	OverallScore   float64        `json:"overall_score"`
	Metrics        Metrics        `json:"metrics"`
	Interpretation Interpretation `json:"interpretation"`
	SafeToCompress bool           `json:"safe_to_compress"`
}

// Scorer scores text. CompressionScorer is the production implementation;
// tests substitute fakes.
type Scorer interface {
	Score(ctx context.Context, text string) (*Result, error)
}
