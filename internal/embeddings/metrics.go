package embeddings

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/Dudley70/compression-framework/internal/embeddings"

// Metrics are the embedding instruments. A nil instrument is skipped, so
// a meter that fails to create one only loses that series.
type Metrics struct {
	duration  metric.Float64Histogram
	batchSize metric.Int64Histogram
	errors    metric.Int64Counter
	cacheHits metric.Int64Counter
	scores    metric.Float64Histogram
}

// NewMetrics creates the instruments on mp, or on the global provider
// when mp is nil. Creation errors go to the OTEL error handler.
func NewMetrics(mp metric.MeterProvider) *Metrics {
	if mp == nil {
		mp = otel.GetMeterProvider()
	}
	meter := mp.Meter(instrumentationName)

	var m Metrics
	var errs []error
	collect := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	var err error
	m.duration, err = meter.Float64Histogram("ctxcompress.embedding.generation_duration_seconds",
		metric.WithDescription("Embedding generation time by model and operation"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10),
	)
	collect(err)
	m.batchSize, err = meter.Int64Histogram("ctxcompress.embedding.batch_size",
		metric.WithDescription("Texts per embedding request"),
		metric.WithUnit("{text}"),
		metric.WithExplicitBucketBoundaries(1, 2, 5, 10, 25, 50, 100),
	)
	collect(err)
	m.errors, err = meter.Int64Counter("ctxcompress.embedding.errors_total",
		metric.WithDescription("Failed embedding requests by model and operation"),
		metric.WithUnit("{error}"),
	)
	collect(err)
	m.cacheHits, err = meter.Int64Counter("ctxcompress.embedding.cache_lookups_total",
		metric.WithDescription("Embedding cache lookups by result (hit, miss)"),
		metric.WithUnit("{lookup}"),
	)
	collect(err)
	m.scores, err = meter.Float64Histogram("ctxcompress.embedding.similarity",
		metric.WithDescription("Cosine similarity of compared text pairs"),
		metric.WithExplicitBucketBoundaries(0.5, 0.6, 0.7, 0.75, 0.8, 0.85, 0.9, 0.95, 1),
	)
	collect(err)

	if len(errs) > 0 {
		otel.Handle(errors.Join(errs...))
	}
	return &m
}

// RecordGeneration records one embedding request. batchSize 0 skips the
// batch histogram.
func (m *Metrics) RecordGeneration(ctx context.Context, model, operation string, d time.Duration, batchSize int, err error) {
	attrs := metric.WithAttributes(
		attribute.String("model", model),
		attribute.String("operation", operation),
	)
	if m.duration != nil {
		m.duration.Record(ctx, d.Seconds(), attrs)
	}
	if m.batchSize != nil && batchSize > 0 {
		m.batchSize.Record(ctx, int64(batchSize), attrs)
	}
	if m.errors != nil && err != nil {
		m.errors.Add(ctx, 1, attrs)
	}
}

func (m *Metrics) RecordCacheLookup(ctx context.Context, hit bool) {
	if m.cacheHits == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheHits.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}

// RecordSimilarity records the score of a successful comparison.
func (m *Metrics) RecordSimilarity(ctx context.Context, score float64) {
	if m.scores != nil {
		m.scores.Record(ctx, score)
	}
}
