package convergence

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Dudley70/compression-framework/internal/compression"
	"github.com/Dudley70/compression-framework/internal/logging"
	"github.com/Dudley70/compression-framework/internal/safety"
	"github.com/Dudley70/compression-framework/internal/tokens"
)

const tracerName = "github.com/Dudley70/compression-framework/internal/convergence"

const (
	// DefaultMaxRounds bounds a full run.
	DefaultMaxRounds = 30
	// QuickTestLimit caps the number of trajectories in quick mode.
	QuickTestLimit = 60

	defaultWorkers = 4
)

// Harness runs convergence trajectories.
type Harness struct {
	counter   tokens.Counter
	validator *safety.Validator
	registry  *compression.Registry
	params    compression.Params
	logger    *logging.Logger
	tracer    trace.Tracer
	now       func() time.Time
}

// Option configures a Harness.
type Option func(*Harness)

// WithParams sets the style parameters passed to every rewrite.
func WithParams(p compression.Params) Option {
	return func(h *Harness) { h.params = p }
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(h *Harness) { h.logger = l }
}

// WithTracerProvider sets the trace provider (default: global).
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(h *Harness) { h.tracer = tp.Tracer(tracerName) }
}

// WithClock overrides the clock used for metadata timestamps.
func WithClock(now func() time.Time) Option {
	return func(h *Harness) { h.now = now }
}

// New builds a Harness. validator gates candidates in safety-on runs and
// may be nil when only safety-off runs are requested.
func New(counter tokens.Counter, validator *safety.Validator, registry *compression.Registry, opts ...Option) (*Harness, error) {
	if counter == nil || registry == nil {
		return nil, errors.New("convergence: token counter and rewriter registry are required")
	}
	h := &Harness{
		counter:   counter,
		validator: validator,
		registry:  registry,
		params:    compression.DefaultParams(),
		logger:    logging.NewNop(),
		tracer:    otel.Tracer(tracerName),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	if err := h.params.Validate(); err != nil {
		return nil, fmt.Errorf("convergence: %w", err)
	}
	return h, nil
}

// Run rewrites doc with the named rewriter up to maxRounds times, each
// round taking the previous round's output as input. The run converges when
// a round reproduces its input. With safetyOn a refused candidate is
// discarded and the round keeps its input, so a refusal converges.
//
// Round failures end the run and are recorded on the trajectory; the
// returned error covers setup problems and cancellation only.
func (h *Harness) Run(ctx context.Context, doc Document, rewriter string, safetyOn bool, maxRounds int) (*Trajectory, error) {
	if maxRounds <= 0 {
		maxRounds = DefaultMaxRounds
	}
	rw, err := h.registry.Get(rewriter)
	if err != nil {
		return nil, err
	}
	if safetyOn && h.validator == nil {
		return nil, errors.New("convergence: safety run requested without a validator")
	}

	ctx, span := h.tracer.Start(ctx, "convergence.run", trace.WithAttributes(
		attribute.String("document", doc.Name),
		attribute.String("technique", rewriter),
		attribute.Bool("safety", safetyOn),
		attribute.Int("max_rounds", maxRounds),
	))
	defer span.End()

	originalTokens, err := h.counter.Count(doc.Text)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "count original")
		return nil, fmt.Errorf("count %s: %w", doc.Name, err)
	}

	t := &Trajectory{
		Document:       doc.Name,
		Technique:      rewriter,
		SafetyEnabled:  safetyOn,
		OriginalTokens: originalTokens,
		OriginalChars:  len(doc.Text),
		Rounds:         []Round{},
	}

	current := doc.Text
	currentTokens := originalTokens
	var previousHash string

	for round := 0; round < maxRounds; round++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		out, refused, err := h.step(ctx, rw, current, safetyOn)
		var n int
		if err == nil {
			n, err = h.counter.Count(out)
		}
		if err != nil {
			h.logger.Warn(ctx, "convergence round failed",
				zap.String("document", doc.Name),
				zap.String("technique", rewriter),
				zap.Int("round", round),
				zap.Error(err),
			)
			t.Error = err.Error()
			t.FailedAtRound = &round
			break
		}

		hash := contentHash(out)
		r := Round{
			Round:               round,
			Tokens:              n,
			Chars:               len(out),
			RatioToOriginal:     ratio(n, originalTokens),
			RatioToPrevious:     ratio(n, currentTokens),
			IdenticalToPrevious: round > 0 && hash == previousHash,
			ContentHash:         hash,
			Refused:             refused,
		}
		t.Rounds = append(t.Rounds, r)
		t.outputs = append(t.outputs, out)

		if r.IdenticalToPrevious {
			t.Converged = true
			t.ConvergedAtRound = &round
			break
		}
		current, currentTokens, previousHash = out, n, hash
	}

	t.FinalTokens = originalTokens
	if len(t.Rounds) > 0 {
		t.FinalTokens = t.Rounds[len(t.Rounds)-1].Tokens
	}
	if originalTokens > 0 {
		t.TotalReduction = 1 - float64(t.FinalTokens)/float64(originalTokens)
	}

	span.SetAttributes(
		attribute.Bool("converged", t.Converged),
		attribute.Int("rounds", len(t.Rounds)),
	)
	if t.Failed() {
		span.SetStatus(codes.Error, t.Error)
	}
	return t, nil
}

func (h *Harness) step(ctx context.Context, rw compression.Rewriter, text string, safetyOn bool) (string, bool, error) {
	params := h.params
	candidate, err := rw.Rewrite(ctx, text, params)
	if err != nil {
		return "", false, err
	}
	if !safetyOn {
		return candidate, false, nil
	}
	report, err := h.validator.Validate(ctx, text, candidate, &params)
	if err != nil {
		return "", false, err
	}
	if report.Recommendation == safety.RecommendRefuse {
		return text, true, nil
	}
	return candidate, false, nil
}

func contentHash(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

func ratio(n, of int) float64 {
	if of <= 0 {
		return 1
	}
	return float64(n) / float64(of)
}

// MatrixOptions bounds a matrix run.
type MatrixOptions struct {
	MaxRounds int
	Workers   int
	Mode      Mode
	// SafetyModes restricts the safety settings tested; nil means on then off.
	SafetyModes []bool
}

// RunMatrix runs every document under every rewriter in each safety mode,
// bounded by opts.Workers. Quick mode stops after QuickTestLimit
// trajectories. Results are ordered by document, rewriter, then safety mode
// as given. Trajectories whose setup fails are logged and skipped.
func (h *Harness) RunMatrix(ctx context.Context, docs []Document, rewriters []string, opts MatrixOptions) (*Results, error) {
	if opts.Workers <= 0 {
		opts.Workers = defaultWorkers
	}
	if opts.MaxRounds <= 0 {
		opts.MaxRounds = DefaultMaxRounds
	}
	if opts.Mode == "" {
		opts.Mode = ModeFull
	}
	modes := opts.SafetyModes
	if modes == nil {
		modes = []bool{true, false}
	}

	type job struct {
		doc      Document
		rewriter string
		safety   bool
	}
	var jobs []job
	for _, d := range docs {
		for _, rw := range rewriters {
			for _, s := range modes {
				jobs = append(jobs, job{d, rw, s})
			}
		}
	}
	if opts.Mode == ModeQuick && len(jobs) > QuickTestLimit {
		jobs = jobs[:QuickTestLimit]
	}

	start := h.now()
	h.logger.Info(ctx, "starting convergence matrix",
		zap.String("mode", string(opts.Mode)),
		zap.Int("max_rounds", opts.MaxRounds),
		zap.Int("tests", len(jobs)),
	)

	slots := make([]*Trajectory, len(jobs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Workers)
	for i, j := range jobs {
		g.Go(func() error {
			t, err := h.Run(gctx, j.doc, j.rewriter, j.safety, opts.MaxRounds)
			if err != nil {
				if cerr := gctx.Err(); cerr != nil {
					return cerr
				}
				h.logger.Warn(gctx, "skipping convergence test",
					zap.String("document", j.doc.Name),
					zap.String("technique", j.rewriter),
					zap.Bool("safety", j.safety),
					zap.Error(err),
				)
				return nil
			}
			slots[i] = t
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	res := &Results{
		Metadata: Metadata{
			Timestamp:   start,
			Mode:        opts.Mode,
			TotalTests:  len(jobs),
			Documents:   len(docs),
			Techniques:  len(rewriters),
			MaxRounds:   opts.MaxRounds,
			SafetyModes: len(modes),
		},
		Tests: make([]Trajectory, 0, len(slots)),
	}
	for _, t := range slots {
		if t != nil {
			res.Tests = append(res.Tests, *t)
		}
	}
	res.Metadata.ActualTests = len(res.Tests)
	res.Metadata.ExecutionTime = h.now().Sub(start).Seconds()

	h.logger.Info(ctx, "convergence matrix complete",
		zap.Int("tests", res.Metadata.ActualTests),
		zap.Float64("seconds", res.Metadata.ExecutionTime),
	)
	return res, nil
}
