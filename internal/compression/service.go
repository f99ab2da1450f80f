package compression

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

	"github.com/Dudley70/compression-framework/internal/logging"
	"github.com/Dudley70/compression-framework/internal/safety"
	"github.com/Dudley70/compression-framework/internal/scoring"
)

const (
	tracerName = "github.com/Dudley70/compression-framework/internal/compression"
	meterName  = "github.com/Dudley70/compression-framework/internal/compression"
)

// AutoName selects a rewriter from the detected content type.
const AutoName = "auto"

var (
	// ErrEmptyContent is returned for blank input.
	ErrEmptyContent = errors.New("content cannot be empty")

	// ErrInvalidParams is returned for σ/γ/κ outside [0, 1].
	ErrInvalidParams = errors.New("invalid style parameters")
)

// Request is one compression attempt.
type Request struct {
	Text     string
	Rewriter string // registry name, "" or "auto" to detect
	Params   Params
}

// Outcome is the result of a compression attempt. Candidate is empty when
// the original was refused before rewriting.
type Outcome struct {
	Applied     bool           `json:"applied"`
	NeedsReview bool           `json:"needs_review"`
	Rewriter    string         `json:"rewriter"`
	ContentType ContentType    `json:"content_type"`
	Candidate   string         `json:"candidate"`
	Report      *safety.Report `json:"report"`
	ScoreBefore float64        `json:"score_before"`
	ScoreAfter  *float64       `json:"score_after"`
}

// Service rewrites text and gates the candidate through the safety
// validator.
type Service struct {
	scorer    scoring.Scorer
	validator *safety.Validator
	registry  *Registry
	logger    *logging.Logger

	tracer     trace.Tracer
	operations metric.Int64Counter
	duration   metric.Float64Histogram
	ratio      metric.Float64Histogram
	failures   metric.Int64Counter
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithServiceLogger sets the logger.
func WithServiceLogger(l *logging.Logger) ServiceOption {
	return func(s *Service) { s.logger = l }
}

// WithServiceTracerProvider sets the trace provider (default: global).
func WithServiceTracerProvider(tp trace.TracerProvider) ServiceOption {
	return func(s *Service) { s.tracer = tp.Tracer(tracerName) }
}

// WithServiceMeterProvider sets the meter provider (default: global).
func WithServiceMeterProvider(mp metric.MeterProvider) ServiceOption {
	return func(s *Service) { s.initMetrics(mp.Meter(meterName)) }
}

// NewService builds a Service.
func NewService(scorer scoring.Scorer, validator *safety.Validator, registry *Registry, opts ...ServiceOption) (*Service, error) {
	if scorer == nil || validator == nil || registry == nil {
		return nil, errors.New("compression service: scorer, validator and registry are required")
	}
	s := &Service{
		scorer:    scorer,
		validator: validator,
		registry:  registry,
		logger:    logging.NewNop(),
		tracer:    otel.Tracer(tracerName),
	}
	s.initMetrics(otel.Meter(meterName))
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *Service) initMetrics(m metric.Meter) {
	s.operations, _ = m.Int64Counter("ctxcompress.compression.operations_total",
		metric.WithDescription("Compression attempts by rewriter and recommendation"))
	s.duration, _ = m.Float64Histogram("ctxcompress.compression.duration_seconds",
		metric.WithDescription("Time spent rewriting and validating"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 5.0))
	s.ratio, _ = m.Float64Histogram("ctxcompress.compression.ratio",
		metric.WithDescription("Candidate to original token ratio"),
		metric.WithExplicitBucketBoundaries(0.2, 0.4, 0.6, 0.8, 0.85, 1.0, 1.5))
	s.failures, _ = m.Int64Counter("ctxcompress.compression.errors_total",
		metric.WithDescription("Compression attempts that failed with an error"))
}

// Registry returns the rewriter registry.
func (s *Service) Registry() *Registry {
	return s.registry
}

// Compress scores the original, refuses it early when already compressed,
// rewrites it and validates the candidate. A warn verdict is applied with
// NeedsReview set; a refusal is never applied.
func (s *Service) Compress(ctx context.Context, req Request) (*Outcome, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.Text) == "" {
		return nil, ErrEmptyContent
	}
	if err := req.Params.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidParams, err)
	}

	ct := DetectContentType(req.Text)
	name := req.Rewriter
	if name == "" || name == AutoName {
		name = AutoRewriter(req.Text)
	}

	ctx, span := s.tracer.Start(ctx, "compression.compress",
		trace.WithAttributes(
			attribute.String("rewriter", name),
			attribute.String("content_type", string(ct)),
			attribute.Int("content_length", len(req.Text)),
		),
	)
	defer span.End()
	start := time.Now()

	fail := func(kind string, err error) (*Outcome, error) {
		span.RecordError(err)
		s.failures.Add(ctx, 1, metric.WithAttributes(
			attribute.String("rewriter", name),
			attribute.String("error_type", kind),
		))
		return nil, err
	}

	rw, err := s.registry.Get(name)
	if err != nil {
		return fail("unknown_rewriter", err)
	}

	before, err := s.scorer.Score(ctx, req.Text)
	if err != nil {
		return fail("score_failed", fmt.Errorf("score original: %w", err))
	}

	out := &Outcome{
		Rewriter:    name,
		ContentType: ct,
		ScoreBefore: before.OverallScore,
	}
	params := req.Params

	if before.OverallScore >= s.validator.Thresholds().Refusal {
		// The pre-check short-circuits, so no candidate is needed.
		out.Report, err = s.validator.Validate(ctx, req.Text, req.Text, &params)
		if err != nil {
			return fail("validate_failed", err)
		}
		s.record(ctx, span, start, out)
		return out, nil
	}

	candidate, err := rw.Rewrite(ctx, req.Text, params)
	if err != nil {
		return fail("rewrite_failed", fmt.Errorf("rewrite with %s: %w", name, err))
	}
	out.Candidate = candidate

	out.Report, err = s.validator.Validate(ctx, req.Text, candidate, &params)
	if err != nil {
		return fail("validate_failed", err)
	}

	if after, err := s.scorer.Score(ctx, candidate); err == nil {
		out.ScoreAfter = &after.OverallScore
	} else {
		s.logger.Warn(ctx, "failed to score candidate", zap.Error(err))
	}

	switch out.Report.Recommendation {
	case safety.RecommendAccept:
		out.Applied = true
	case safety.RecommendWarn:
		out.Applied = true
		out.NeedsReview = true
	}

	s.record(ctx, span, start, out)
	return out, nil
}

func (s *Service) record(ctx context.Context, span trace.Span, start time.Time, out *Outcome) {
	rec := string(out.Report.Recommendation)
	attrs := metric.WithAttributes(
		attribute.String("rewriter", out.Rewriter),
		attribute.String("recommendation", rec),
	)
	elapsed := time.Since(start).Seconds()

	s.operations.Add(ctx, 1, attrs)
	s.duration.Record(ctx, elapsed, metric.WithAttributes(attribute.String("rewriter", out.Rewriter)))
	if r := out.Report.Ratio(); r > 0 {
		s.ratio.Record(ctx, r, metric.WithAttributes(attribute.String("rewriter", out.Rewriter)))
	}

	span.SetAttributes(
		attribute.String("recommendation", rec),
		attribute.Bool("applied", out.Applied),
		attribute.Float64("score_before", out.ScoreBefore),
		attribute.Float64("compression_ratio", out.Report.Ratio()),
	)
	s.logger.Info(ctx, "compression finished",
		zap.String("rewriter", out.Rewriter),
		zap.String("recommendation", rec),
		zap.Bool("applied", out.Applied),
		zap.Float64("score_before", out.ScoreBefore),
		zap.Float64("ratio", out.Report.Ratio()),
		zap.Duration("elapsed", time.Since(start)),
	)
}
