// Package drift detects documents that have grown since their last
// compression pass, by comparing the body token count with the
// compression.baseline_tokens recorded in the frontmatter.
package drift

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/Dudley70/compression-framework/internal/frontmatter"
	"github.com/Dudley70/compression-framework/internal/tokens"
)

// Recommendation is the action suggested for a document.
type Recommendation string

const (
	RecommendUntracked Recommendation = "untracked"
	RecommendNone      Recommendation = "none"
	RecommendFlag      Recommendation = "flag"
	RecommendReview    Recommendation = "review"
	RecommendCompress  Recommendation = "compress"
)

var (
	// ErrNoCounter is returned when no token counter is supplied.
	ErrNoCounter = errors.New("drift: token counter is required")

	// ErrInvalidThresholds is returned for bands that are not 1 < flag < review < compress.
	ErrInvalidThresholds = errors.New("drift: invalid thresholds")
)

// Thresholds are the lower bounds of the flag, review and compress bands.
type Thresholds struct {
	Flag     float64 `json:"flag"`
	Review   float64 `json:"review"`
	Compress float64 `json:"compress"`
}

// DefaultThresholds returns 1.15 / 1.25 / 1.50.
func DefaultThresholds() Thresholds {
	return Thresholds{Flag: 1.15, Review: 1.25, Compress: 1.50}
}

// Validate requires 1 < Flag < Review < Compress.
func (t Thresholds) Validate() error {
	if !(t.Flag > 1 && t.Flag < t.Review && t.Review < t.Compress) {
		return fmt.Errorf("%w: want 1 < flag < review < compress, got %v/%v/%v",
			ErrInvalidThresholds, t.Flag, t.Review, t.Compress)
	}
	return nil
}

// Band maps a ratio to its recommendation. A ratio equal to a bound falls
// in the higher band.
func (t Thresholds) Band(ratio float64) Recommendation {
	switch {
	case ratio < t.Flag:
		return RecommendNone
	case ratio < t.Review:
		return RecommendFlag
	case ratio < t.Compress:
		return RecommendReview
	default:
		return RecommendCompress
	}
}

// Result is the drift analysis of one document. Pointer fields are null
// when the document has no baseline.
type Result struct {
	Path            string         `json:"path,omitempty"`
	HasHeader       bool           `json:"has_header"`
	BaselineTokens  *int           `json:"baseline_tokens"`
	CurrentTokens   int            `json:"current_tokens"`
	DriftRatio      *float64       `json:"drift_ratio"`
	DriftPercentage *float64       `json:"drift_percentage"`
	AbsoluteDrift   *int           `json:"absolute_drift"`
	Recommendation  Recommendation `json:"recommendation"`
	Explanation     string         `json:"explanation"`
}

// Ratio returns the drift ratio or 0 when untracked.
func (r Result) Ratio() float64 {
	if r.DriftRatio == nil {
		return 0
	}
	return *r.DriftRatio
}

// Detector computes drift with a token counter.
type Detector struct {
	counter    tokens.Counter
	thresholds Thresholds
}

// Option configures a Detector.
type Option func(*Detector)

// WithThresholds overrides the default bands.
func WithThresholds(t Thresholds) Option {
	return func(d *Detector) { d.thresholds = t }
}

// NewDetector returns a Detector counting tokens with counter.
func NewDetector(counter tokens.Counter, opts ...Option) (*Detector, error) {
	if counter == nil {
		return nil, ErrNoCounter
	}
	d := &Detector{counter: counter, thresholds: DefaultThresholds()}
	for _, opt := range opts {
		opt(d)
	}
	if err := d.thresholds.Validate(); err != nil {
		return nil, err
	}
	return d, nil
}

// Thresholds returns the active bands.
func (d *Detector) Thresholds() Thresholds {
	return d.thresholds
}

// Calculate derives the drift result for a baseline (nil when unknown)
// and a current body token count.
func (d *Detector) Calculate(baseline *int, current int) Result {
	if baseline == nil || *baseline <= 0 {
		return Result{
			CurrentTokens:  current,
			Recommendation: RecommendUntracked,
			Explanation:    "Document has no compression baseline. Cannot detect drift.",
		}
	}

	b := *baseline
	ratio := float64(current) / float64(b)
	pct := float64(current-b) / float64(b) * 100
	abs := current - b
	rec := d.thresholds.Band(ratio)

	return Result{
		HasHeader:       true,
		BaselineTokens:  &b,
		CurrentTokens:   current,
		DriftRatio:      &ratio,
		DriftPercentage: &pct,
		AbsoluteDrift:   &abs,
		Recommendation:  rec,
		Explanation:     explain(rec, pct),
	}
}

func explain(rec Recommendation, pct float64) string {
	switch rec {
	case RecommendNone:
		return fmt.Sprintf("Minimal drift (%.1f%%), no action needed.", pct)
	case RecommendFlag:
		return fmt.Sprintf("Document has grown %.1f%% since compression. Monitor for further growth.", pct)
	case RecommendReview:
		return fmt.Sprintf("Document has grown %.1f%% since compression. Review for new content that needs compression.", pct)
	default:
		return fmt.Sprintf("Document has grown %.1f%% since compression. Recommend full re-compression.", pct)
	}
}

// Baseline extracts compression.baseline_tokens from content. Missing,
// unterminated or malformed frontmatter yields nil.
func Baseline(content string) *int {
	block, ok := frontmatter.Split(content)
	if !ok {
		return nil
	}
	meta, err := frontmatter.Parse(block.Raw)
	if err != nil {
		return nil
	}
	n, ok := frontmatter.BaselineTokens(meta)
	if !ok {
		return nil
	}
	return &n
}

// CheckContent measures drift of a whole document. Only the body after a
// complete frontmatter block is counted.
func (d *Detector) CheckContent(ctx context.Context, content string) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	current, err := d.counter.Count(frontmatter.Body(content))
	if err != nil {
		return Result{}, fmt.Errorf("count tokens: %w", err)
	}
	return d.Calculate(Baseline(content), current), nil
}

// CheckFile reads path and measures its drift. A missing file is an error
// matching os.ErrNotExist.
func (d *Detector) CheckFile(ctx context.Context, path string) (Result, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Result{}, fmt.Errorf("read %s: %w", path, err)
	}
	r, err := d.CheckContent(ctx, string(data))
	if err != nil {
		return Result{}, fmt.Errorf("check %s: %w", path, err)
	}
	r.Path = path
	return r, nil
}
