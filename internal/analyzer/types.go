package analyzer

import (
	"errors"
	"fmt"

	"github.com/Dudley70/compression-framework/internal/scoring"
)

// ErrInvalidOptions is returned for thresholds outside [0, 1] or out of order.
var ErrInvalidOptions = errors.New("analyzer: invalid options")

// State is the overall compression state of a document.
type State string

const (
	StateEmpty        State = "empty"
	StateEdited       State = "edited"
	StateCompressed   State = "compressed"
	StateUncompressed State = "uncompressed"
	StateMixed        State = "mixed"
	StateModerate     State = "moderately_compressed"
)

// SectionState is the compression state of one section.
type SectionState string

const (
	SectionEmpty      SectionState = "empty"
	SectionVerbose    SectionState = "verbose"
	SectionModerate   SectionState = "moderately_compressed"
	SectionCompressed SectionState = "compressed"
)

// Recommendation strings that carry no section list.
const (
	RecommendNone        = "none"
	RecommendCompressAll = "compress_all"
)

// DefaultDriftThreshold is the growth ratio above which drift is significant.
const DefaultDriftThreshold = 1.15

// Options tunes sectioning and classification.
type Options struct {
	VerboseThreshold    float64 `json:"verbose_threshold"`
	CompressedThreshold float64 `json:"compressed_threshold"`
	MinSectionTokens    int     `json:"min_section_tokens"`
	MergeShortSections  bool    `json:"merge_short_sections"`
	DriftThreshold      float64 `json:"drift_threshold"`
}

// DefaultOptions returns 0.4 / 0.7 / 3 tokens with short sections dropped.
func DefaultOptions() Options {
	return Options{
		VerboseThreshold:    0.4,
		CompressedThreshold: 0.7,
		MinSectionTokens:    3,
		DriftThreshold:      DefaultDriftThreshold,
	}
}

// Validate checks threshold ranges and ordering.
func (o Options) Validate() error {
	if o.VerboseThreshold < 0 || o.CompressedThreshold > 1 || o.VerboseThreshold >= o.CompressedThreshold {
		return fmt.Errorf("%w: want 0 <= verbose < compressed <= 1, got %v/%v",
			ErrInvalidOptions, o.VerboseThreshold, o.CompressedThreshold)
	}
	if o.MinSectionTokens < 0 {
		return fmt.Errorf("%w: min_section_tokens must not be negative", ErrInvalidOptions)
	}
	if o.DriftThreshold <= 1 {
		return fmt.Errorf("%w: drift_threshold must exceed 1, got %v", ErrInvalidOptions, o.DriftThreshold)
	}
	return nil
}

// Section is one H1-H3 section of a document. Line numbers are 1-based and
// inclusive.
type Section struct {
	Title            string           `json:"title"`
	Level            int              `json:"level"`
	Content          string           `json:"content"`
	StartLine        int              `json:"start_line"`
	EndLine          int              `json:"end_line"`
	Score            float64          `json:"score"`
	State            SectionState     `json:"state"`
	NeedsCompression bool             `json:"needs_compression"`
	Metrics          *scoring.Metrics `json:"metrics,omitempty"`
	ScoreError       string           `json:"score_error,omitempty"`
}

// Summary aggregates section counts.
type Summary struct {
	TotalSections        int     `json:"total_sections"`
	CompressedSections   int     `json:"compressed_sections"`
	UncompressedSections int     `json:"uncompressed_sections"`
	AvgScore             float64 `json:"avg_score"`
}

// TokenDrift is the drift reading derived from header metadata.
type TokenDrift struct {
	HasHeader        bool     `json:"has_header"`
	BaselineTokens   *int     `json:"baseline_tokens"`
	CurrentTokens    int      `json:"current_tokens"`
	DriftRatio       *float64 `json:"drift_ratio"`
	SignificantDrift bool     `json:"significant_drift"`
	Error            string   `json:"error,omitempty"`
}

// Analysis is the full result of analyzing a document.
type Analysis struct {
	OverallState   State       `json:"overall_state"`
	Sections       []Section   `json:"sections"`
	Summary        Summary     `json:"summary"`
	Recommendation string      `json:"recommendation"`
	TokenDrift     *TokenDrift `json:"token_drift,omitempty"`
}
