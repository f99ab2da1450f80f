package safety

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Dudley70/compression-framework/internal/entities"
	"github.com/Dudley70/compression-framework/internal/logging"
	"github.com/Dudley70/compression-framework/internal/scoring"
	"github.com/Dudley70/compression-framework/internal/tokens"
)

const (
	tracerName = "github.com/Dudley70/compression-framework/internal/safety"
	meterName  = "ctxcompress.safety"

	maxLostEntities = 5
)

var (
	// ErrMissingBackend is returned when a required collaborator is nil.
	ErrMissingBackend = errors.New("safety backend not configured")

	// ErrInvalidThresholds is returned for thresholds outside [0,1].
	ErrInvalidThresholds = errors.New("invalid safety thresholds")
)

// EntityExtractor extracts the normalized entity set of a text.
type EntityExtractor interface {
	Extract(ctx context.Context, text string) (entities.Set, error)
}

// SimilarityScorer scores the semantic similarity of two texts.
type SimilarityScorer interface {
	Similarity(ctx context.Context, a, b string) (float64, error)
}

// Recorder receives every finished report.
type Recorder interface {
	Record(ctx context.Context, document string, report *Report) error
}

// Backends groups the collaborators a Validator needs. All are required.
type Backends struct {
	Scorer     scoring.Scorer
	Counter    tokens.Counter
	Entities   EntityExtractor
	Similarity SimilarityScorer
}

// Validator runs the safety checks.
type Validator struct {
	backends   Backends
	thresholds Thresholds
	recorder   Recorder
	logger     *logging.Logger

	tracer   trace.Tracer
	verdicts metric.Int64Counter
	failures metric.Int64Counter
	duration metric.Float64Histogram
}

// Option configures a Validator.
type Option func(*Validator)

// WithThresholds overrides the default thresholds.
func WithThresholds(t Thresholds) Option {
	return func(v *Validator) { v.thresholds = t }
}

// WithRecorder sends every report to r. Recording errors are logged.
func WithRecorder(r Recorder) Option {
	return func(v *Validator) { v.recorder = r }
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(v *Validator) { v.logger = l }
}

// WithTracerProvider sets the trace provider (default: global).
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(v *Validator) { v.tracer = tp.Tracer(tracerName) }
}

// WithMeterProvider sets the meter provider (default: global).
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(v *Validator) { v.initMetrics(mp.Meter(meterName)) }
}

// NewValidator builds a Validator. Every backend must be non-nil.
func NewValidator(b Backends, opts ...Option) (*Validator, error) {
	switch {
	case b.Scorer == nil:
		return nil, fmt.Errorf("%w: scorer", ErrMissingBackend)
	case b.Counter == nil:
		return nil, fmt.Errorf("%w: token counter", ErrMissingBackend)
	case b.Entities == nil:
		return nil, fmt.Errorf("%w: entity extractor", ErrMissingBackend)
	case b.Similarity == nil:
		return nil, fmt.Errorf("%w: semantic comparator", ErrMissingBackend)
	}

	v := &Validator{
		backends:   b,
		thresholds: DefaultThresholds(),
		logger:     logging.NewNop(),
		tracer:     otel.Tracer(tracerName),
	}
	v.initMetrics(otel.Meter(meterName))
	for _, opt := range opts {
		opt(v)
	}
	if err := v.thresholds.Validate(); err != nil {
		return nil, err
	}
	return v, nil
}

func (v *Validator) initMetrics(m metric.Meter) {
	// Creation only fails on malformed names; the returned no-op is usable.
	v.verdicts, _ = m.Int64Counter("ctxcompress.safety.verdicts_total",
		metric.WithDescription("Safety verdicts by recommendation"))
	v.failures, _ = m.Int64Counter("ctxcompress.safety.check_failures_total",
		metric.WithDescription("Failed safety checks by check name"))
	v.duration, _ = m.Float64Histogram("ctxcompress.safety.validation_duration_seconds",
		metric.WithDescription("Time to validate one candidate"),
		metric.WithUnit("s"))
}

// Thresholds returns the active thresholds.
func (v *Validator) Thresholds() Thresholds {
	return v.thresholds
}

// Validate checks whether compressed may replace original. params, when
// non-nil, is echoed into the report. Backend failures fail the affected
// check; the returned error is non-nil only when ctx is already done.
func (v *Validator) Validate(ctx context.Context, original, compressed string, params *Parameters) (*Report, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ctx, span := v.tracer.Start(ctx, "safety.validate",
		trace.WithAttributes(
			attribute.Int("original_length", len(original)),
			attribute.Int("compressed_length", len(compressed)),
		),
	)
	defer span.End()
	start := time.Now()

	report := &Report{Parameters: params, Failures: []Failure{}}

	pre := v.preCheck(ctx, original)
	report.Checks.PreCheck = pre
	if !pre.Passed {
		report.Failures = append(report.Failures, Failure{Check: CheckPre, Message: pre.Message})
		report.Recommendation = RecommendRefuse
		report.Summary = "Pre-check failed: content already compressed"
		v.finish(ctx, span, start, report)
		return report, nil
	}

	// The three pair checks are independent; each writes only its own slot.
	var g errgroup.Group
	g.Go(func() error {
		report.Checks.EntityPreservation = v.entityPreservation(ctx, original, compressed)
		return nil
	})
	g.Go(func() error {
		report.Checks.MinimalBenefit = v.minimalBenefit(ctx, original, compressed)
		return nil
	})
	g.Go(func() error {
		report.Checks.SemanticSimilarity = v.semanticSimilarity(ctx, original, compressed)
		return nil
	})
	_ = g.Wait()

	c := report.Checks
	if !c.EntityPreservation.Passed {
		report.Failures = append(report.Failures, Failure{Check: CheckEntityPreservation, Message: c.EntityPreservation.Message})
	}
	if !c.MinimalBenefit.Passed {
		report.Failures = append(report.Failures, Failure{Check: CheckMinimalBenefit, Message: c.MinimalBenefit.Message})
	}
	if !c.SemanticSimilarity.Passed {
		report.Failures = append(report.Failures, Failure{Check: CheckSemanticSimilarity, Message: c.SemanticSimilarity.Message})
	}

	report.Recommendation, report.Safe = Aggregate(report.Failures)
	report.Summary = Summarize(report.Failures)
	v.finish(ctx, span, start, report)
	return report, nil
}

// QuickCheck reports whether the pair is accepted.
func (v *Validator) QuickCheck(ctx context.Context, original, compressed string) (bool, error) {
	r, err := v.Validate(ctx, original, compressed, nil)
	if err != nil {
		return false, err
	}
	return r.Safe, nil
}

func (v *Validator) finish(ctx context.Context, span trace.Span, start time.Time, r *Report) {
	rec := attribute.String("recommendation", string(r.Recommendation))
	span.SetAttributes(rec, attribute.Bool("safe", r.Safe), attribute.Int("failures", len(r.Failures)))

	v.verdicts.Add(ctx, 1, metric.WithAttributes(rec))
	for _, f := range r.Failures {
		v.failures.Add(ctx, 1, metric.WithAttributes(attribute.String("check", string(f.Check))))
	}
	v.duration.Record(ctx, time.Since(start).Seconds(), metric.WithAttributes(rec))

	v.logger.Info(ctx, "safety validation finished",
		zap.String("recommendation", string(r.Recommendation)),
		zap.Bool("safe", r.Safe),
		zap.Int("failures", len(r.Failures)),
		zap.Duration("duration", time.Since(start)),
	)

	if v.recorder == nil {
		return
	}
	if err := v.recorder.Record(ctx, logging.DocumentFromContext(ctx), r); err != nil {
		v.logger.Warn(ctx, "failed to record safety verdict", zap.Error(err))
	}
}

// Aggregate maps failures to a recommendation: none accepts, one warns,
// two or more refuse. Only accept is safe.
func Aggregate(failures []Failure) (Recommendation, bool) {
	switch len(failures) {
	case 0:
		return RecommendAccept, true
	case 1:
		return RecommendWarn, false
	default:
		return RecommendRefuse, false
	}
}

// Summarize renders the one-line summary for pair-check failures.
func Summarize(failures []Failure) string {
	switch len(failures) {
	case 0:
		return "All safety checks passed. Compression is safe."
	case 1:
		return fmt.Sprintf("Safety concern: %s - review recommended.", words(failures[0].Check))
	default:
		names := make([]string, len(failures))
		for i, f := range failures {
			names[i] = words(f.Check)
		}
		return fmt.Sprintf("Multiple safety concerns: %s - compression refused.", strings.Join(names, ", "))
	}
}

func words(c CheckName) string {
	return strings.ReplaceAll(string(c), "_", " ")
}
