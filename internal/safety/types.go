package safety

import (
	"fmt"
)

// Recommendation is the aggregated verdict.
type Recommendation string

const (
	RecommendAccept Recommendation = "accept"
	RecommendWarn   Recommendation = "warn"
	RecommendRefuse Recommendation = "refuse"
)

// CheckName identifies a safety check in failures and telemetry.
type CheckName string

const (
	CheckPre                CheckName = "pre_check"
	CheckEntityPreservation CheckName = "entity_preservation"
	CheckMinimalBenefit     CheckName = "minimal_benefit"
	CheckSemanticSimilarity CheckName = "semantic_similarity"
)

// Thresholds holds the configurable check limits.
type Thresholds struct {
	Refusal  float64 `json:"refusal" koanf:"refusal_threshold"`
	Entity   float64 `json:"entity" koanf:"entity_threshold"`
	Benefit  float64 `json:"benefit" koanf:"benefit_threshold"`
	Semantic float64 `json:"semantic" koanf:"semantic_threshold"`
}

// DefaultThresholds returns refusal 0.8, entity 0.80, benefit 0.85 and
// semantic 0.75.
func DefaultThresholds() Thresholds {
	return Thresholds{Refusal: 0.8, Entity: 0.80, Benefit: 0.85, Semantic: 0.75}
}

// Validate checks every threshold lies in [0,1].
func (t Thresholds) Validate() error {
	for _, f := range []namedValue{
		{"refusal", t.Refusal}, {"entity", t.Entity}, {"benefit", t.Benefit}, {"semantic", t.Semantic},
	} {
		if f.value < 0 || f.value > 1 {
			return fmt.Errorf("%w: %s threshold %v outside [0,1]", ErrInvalidThresholds, f.name, f.value)
		}
	}
	return nil
}

// namedValue keeps validation order, and so the reported field, fixed.
type namedValue struct {
	name  string
	value float64
}

// Parameters are the style parameters a rewrite was produced with.
type Parameters struct {
	Sigma float64 `json:"sigma" yaml:"sigma"` // structure
	Gamma float64 `json:"gamma" yaml:"gamma"` // granularity
	Kappa float64 `json:"kappa" yaml:"kappa"` // scaffolding
}

// Validate checks each parameter lies in [0,1].
func (p Parameters) Validate() error {
	for _, f := range []namedValue{{"sigma", p.Sigma}, {"gamma", p.Gamma}, {"kappa", p.Kappa}} {
		if f.value < 0 || f.value > 1 {
			return fmt.Errorf("%s=%v outside [0,1]", f.name, f.value)
		}
	}
	return nil
}

// PreCheckResult is the outcome of scoring the original text.
type PreCheckResult struct {
	Passed    bool    `json:"passed"`
	Score     float64 `json:"score"`
	Threshold float64 `json:"threshold"`
	Message   string  `json:"message"`
}

// EntityResult is the outcome of the entity preservation check.
type EntityResult struct {
	Passed            bool     `json:"passed"`
	OriginalEntities  int      `json:"original_entities"`
	PreservedEntities int      `json:"preserved_entities"`
	PreservationRate  float64  `json:"preservation_rate"`
	Threshold         float64  `json:"threshold"`
	LostEntities      []string `json:"lost_entities"`
	Message           string   `json:"message"`
}

// BenefitResult is the outcome of the minimal benefit check.
// CompressionRatio is nil when the original has no tokens but the
// candidate does.
type BenefitResult struct {
	Passed           bool     `json:"passed"`
	OriginalTokens   int      `json:"original_tokens"`
	CompressedTokens int      `json:"compressed_tokens"`
	CompressionRatio *float64 `json:"compression_ratio"`
	ReductionPct     float64  `json:"reduction_pct"`
	Threshold        float64  `json:"threshold"`
	Message          string   `json:"message"`
}

// SimilarityResult is the outcome of the semantic similarity check.
type SimilarityResult struct {
	Passed          bool    `json:"passed"`
	SimilarityScore float64 `json:"similarity_score"`
	Threshold       float64 `json:"threshold"`
	Message         string  `json:"message"`
}

// Checks holds every check that ran. When the pre-check fails only PreCheck
// is set.
type Checks struct {
	PreCheck           *PreCheckResult   `json:"pre_check"`
	EntityPreservation *EntityResult     `json:"entity_preservation,omitempty"`
	MinimalBenefit     *BenefitResult    `json:"minimal_benefit,omitempty"`
	SemanticSimilarity *SimilarityResult `json:"semantic_similarity,omitempty"`
}

// Failure names a failed check and its message.
type Failure struct {
	Check   CheckName `json:"check"`
	Message string    `json:"message"`
}

// Report is the full validation outcome.
type Report struct {
	Safe           bool           `json:"safe"`
	Checks         Checks         `json:"checks"`
	Failures       []Failure      `json:"failures"`
	Recommendation Recommendation `json:"recommendation"`
	Summary        string         `json:"summary"`
	Parameters     *Parameters    `json:"parameters"`
}

// Ratio returns the candidate/original token ratio, or 0 when the benefit
// check did not run or the ratio is unbounded.
func (r *Report) Ratio() float64 {
	b := r.Checks.MinimalBenefit
	if b == nil || b.CompressionRatio == nil {
		return 0
	}
	return *b.CompressionRatio
}
