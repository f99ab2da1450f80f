package embeddings

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"go.opentelemetry.io/otel/metric"
)

// ErrNoProvider is returned by NewComparator when no provider is supplied.
var ErrNoProvider = errors.New("embedding provider is required")

const defaultCompareTimeout = 30 * time.Second

// Cosine returns the cosine similarity of a and b. Mismatched lengths and
// zero vectors yield 0.
func Cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// Comparator scores the semantic similarity of two texts.
type Comparator struct {
	provider Provider
	timeout  time.Duration
	metrics  *Metrics
}

// ComparatorOption configures a Comparator.
type ComparatorOption func(*Comparator)

// WithMeterProvider records similarity scores on mp instead of the global
// provider.
func WithMeterProvider(mp metric.MeterProvider) ComparatorOption {
	return func(c *Comparator) { c.metrics = NewMetrics(mp) }
}

// NewComparator creates a comparator. A non-positive timeout selects 30s.
func NewComparator(provider Provider, timeout time.Duration, opts ...ComparatorOption) (*Comparator, error) {
	if provider == nil {
		return nil, ErrNoProvider
	}
	if timeout <= 0 {
		timeout = defaultCompareTimeout
	}
	c := &Comparator{provider: provider, timeout: timeout}
	for _, opt := range opts {
		opt(c)
	}
	if c.metrics == nil {
		c.metrics = NewMetrics(nil)
	}
	return c, nil
}

// Similarity embeds a and b as one batch and returns their cosine similarity.
func (c *Comparator) Similarity(ctx context.Context, a, b string) (float64, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	vectors, err := c.provider.EmbedDocuments(ctx, []string{a, b})
	if err != nil {
		return 0, fmt.Errorf("embedding texts: %w", err)
	}
	if len(vectors) != 2 {
		return 0, fmt.Errorf("%w: got %d vectors for 2 inputs", ErrEmbeddingFailed, len(vectors))
	}
	score := Cosine(vectors[0], vectors[1])
	c.metrics.RecordSimilarity(ctx, score)
	return score, nil
}
