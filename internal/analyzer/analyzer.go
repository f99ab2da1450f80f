package analyzer

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/Dudley70/compression-framework/internal/drift"
	"github.com/Dudley70/compression-framework/internal/frontmatter"
	"github.com/Dudley70/compression-framework/internal/logging"
	"github.com/Dudley70/compression-framework/internal/scoring"
	"github.com/Dudley70/compression-framework/internal/tokens"
)

const tracerName = "github.com/Dudley70/compression-framework/internal/analyzer"

// documentTitle names the single section used when no section survives
// splitting.
const documentTitle = "Document"

// ErrMissingBackend is returned when the scorer or token counter is nil.
var ErrMissingBackend = errors.New("analyzer: scorer and token counter are required")

// Analyzer scores documents section by section.
type Analyzer struct {
	scorer   scoring.SectionScorer
	counter  tokens.Counter
	detector *drift.Detector
	opts     Options
	tracer   trace.Tracer
}

// Option configures an Analyzer.
type Option func(*Analyzer)

// WithOptions replaces the default thresholds.
func WithOptions(o Options) Option {
	return func(a *Analyzer) { a.opts = o }
}

// WithDriftDetector sets the detector used for header drift. By default a
// detector with default bands is built on the analyzer's counter.
func WithDriftDetector(d *drift.Detector) Option {
	return func(a *Analyzer) { a.detector = d }
}

// New returns an Analyzer.
func New(scorer scoring.Scorer, counter tokens.Counter, opts ...Option) (*Analyzer, error) {
	if scorer == nil || counter == nil {
		return nil, ErrMissingBackend
	}
	a := &Analyzer{
		scorer:  scoring.SectionScorer{Scorer: scorer},
		counter: counter,
		opts:    DefaultOptions(),
		tracer:  otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(a)
	}
	if err := a.opts.Validate(); err != nil {
		return nil, err
	}
	if a.detector == nil {
		d, err := drift.NewDetector(counter)
		if err != nil {
			return nil, err
		}
		a.detector = d
	}
	return a, nil
}

// Options returns the active options.
func (a *Analyzer) Options() Options {
	return a.opts
}

// AnalyzeSection scores one section's content. Only a tokenizer failure
// triggers the line-shape fallback; other errors are returned.
func (a *Analyzer) AnalyzeSection(ctx context.Context, content string) (Section, error) {
	var s Section
	if strings.TrimSpace(content) == "" {
		s.State = SectionEmpty
		return s, nil
	}

	score, m, err := a.scorer.ScoreSection(ctx, content)
	switch {
	case err == nil:
		s.Metrics = &m
	case errors.Is(err, scoring.ErrTokenization):
		score = scoring.FallbackScore(content)
		s.ScoreError = err.Error()
		logging.FromContext(ctx).Warn(ctx, "section scored with fallback heuristic",
			zap.Error(err),
			zap.Float64("score", score),
		)
	default:
		return Section{}, err
	}

	s.Score = score
	switch {
	case score < a.opts.VerboseThreshold:
		s.State = SectionVerbose
		s.NeedsCompression = true
	case score > a.opts.CompressedThreshold:
		s.State = SectionCompressed
	default:
		s.State = SectionModerate
	}
	return s, nil
}

// Analyze classifies document. header is the parsed frontmatter of the
// document, or nil; the document itself must not include it.
func (a *Analyzer) Analyze(ctx context.Context, document string, header map[string]any) (*Analysis, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ctx, span := a.tracer.Start(ctx, "analyzer.analyze",
		trace.WithAttributes(attribute.Int("content_length", len(document))),
	)
	defer span.End()

	if strings.TrimSpace(document) == "" {
		return &Analysis{
			OverallState:   StateEmpty,
			Sections:       []Section{},
			Recommendation: RecommendNone,
		}, nil
	}

	sections := a.Split(document)
	if len(sections) == 0 {
		sections = []Section{{
			Title:     documentTitle,
			Level:     1,
			Content:   document,
			StartLine: 1,
			EndLine:   strings.Count(document, "\n") + 1,
		}}
	}

	scores := make([]float64, len(sections))
	for i := range sections {
		scored, err := a.AnalyzeSection(ctx, sections[i].Content)
		if err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("section %d %q: %w", i, sections[i].Title, err)
		}
		sections[i].Score = scored.Score
		sections[i].State = scored.State
		sections[i].NeedsCompression = scored.NeedsCompression
		sections[i].Metrics = scored.Metrics
		sections[i].ScoreError = scored.ScoreError
		scores[i] = scored.Score
	}

	result := &Analysis{
		Sections: sections,
		Summary:  a.summarize(scores),
	}

	var ratio *float64
	if len(header) > 0 {
		result.TokenDrift = a.headerDrift(document, header)
		ratio = result.TokenDrift.DriftRatio
	}

	result.OverallState = a.ClassifyState(scores, ratio)
	result.Recommendation = a.Recommend(sections, result.OverallState, result.TokenDrift)

	span.SetAttributes(
		attribute.Int("sections", len(sections)),
		attribute.String("overall_state", string(result.OverallState)),
	)
	return result, nil
}

// AnalyzeContent analyzes a whole file's content, reading header metadata
// from its frontmatter. A malformed header is ignored and only the body is
// analyzed.
func (a *Analyzer) AnalyzeContent(ctx context.Context, content string) (*Analysis, error) {
	meta, body, err := frontmatter.Read(content)
	if err != nil {
		return a.Analyze(ctx, body, nil)
	}
	return a.Analyze(ctx, body, meta)
}

func (a *Analyzer) summarize(scores []float64) Summary {
	s := Summary{TotalSections: len(scores)}
	if len(scores) == 0 {
		return s
	}
	var sum float64
	for _, v := range scores {
		sum += v
		if v > a.opts.CompressedThreshold {
			s.CompressedSections++
		}
		if v < a.opts.VerboseThreshold {
			s.UncompressedSections++
		}
	}
	s.AvgScore = sum / float64(len(scores))
	return s
}

func (a *Analyzer) headerDrift(body string, header map[string]any) *TokenDrift {
	current, err := a.counter.Count(body)
	if err != nil {
		return &TokenDrift{Error: err.Error()}
	}

	var baseline *int
	if n, ok := frontmatter.BaselineTokens(header); ok {
		baseline = &n
	}
	r := a.detector.Calculate(baseline, current)
	return &TokenDrift{
		HasHeader:        r.HasHeader,
		BaselineTokens:   r.BaselineTokens,
		CurrentTokens:    r.CurrentTokens,
		DriftRatio:       r.DriftRatio,
		SignificantDrift: r.DriftRatio != nil && *r.DriftRatio > a.opts.DriftThreshold,
	}
}

// ClassifyState folds section scores and an optional drift ratio into an
// overall state. The rules apply in order: significant drift with any
// verbose section is edited; then all compressed, all verbose, a mix of
// both, and otherwise moderately compressed.
func (a *Analyzer) ClassifyState(scores []float64, driftRatio *float64) State {
	if len(scores) == 0 {
		return StateEmpty
	}

	compressed, verbose := 0, 0
	for _, s := range scores {
		if s > a.opts.CompressedThreshold {
			compressed++
		}
		if s < a.opts.VerboseThreshold {
			verbose++
		}
	}

	switch {
	case driftRatio != nil && *driftRatio > a.opts.DriftThreshold && verbose > 0:
		return StateEdited
	case compressed == len(scores):
		return StateCompressed
	case verbose == len(scores):
		return StateUncompressed
	case compressed > 0 && verbose > 0:
		return StateMixed
	default:
		return StateModerate
	}
}

// Recommend builds the action string for an analyzed document:
// "none", "compress_all", or "compress_sections: [i, j]" with
// ", update_baseline" appended for edited documents with significant drift.
func (a *Analyzer) Recommend(sections []Section, state State, td *TokenDrift) string {
	switch state {
	case StateEmpty, StateCompressed:
		return RecommendNone
	case StateUncompressed:
		return RecommendCompressAll
	}

	var idx []string
	for i, s := range sections {
		if s.NeedsCompression {
			idx = append(idx, strconv.Itoa(i))
		}
	}
	if len(idx) == 0 {
		return RecommendNone
	}

	rec := "compress_sections: [" + strings.Join(idx, ", ") + "]"
	if state == StateEdited && td != nil && td.SignificantDrift {
		rec += ", update_baseline"
	}
	return rec
}
