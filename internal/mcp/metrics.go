package mcp

import (
	"context"
	"errors"
	"io/fs"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/Dudley70/compression-framework/internal/compression"
)

const meterName = "github.com/Dudley70/compression-framework/internal/mcp"

type toolMetrics struct {
	calls    metric.Int64Counter
	duration metric.Float64Histogram
	failures metric.Int64Counter
	inFlight metric.Int64UpDownCounter
	saved    metric.Int64Counter
}

func newToolMetrics(mp metric.MeterProvider) *toolMetrics {
	if mp == nil {
		mp = otel.GetMeterProvider()
	}
	meter := mp.Meter(meterName)

	var (
		m    toolMetrics
		errs [5]error
	)
	m.calls, errs[0] = meter.Int64Counter("ctxcompress.mcp.tool.invocations_total",
		metric.WithDescription("Tool calls by tool"),
		metric.WithUnit("{invocation}"),
	)
	m.duration, errs[1] = meter.Float64Histogram("ctxcompress.mcp.tool.duration_seconds",
		metric.WithDescription("Tool call latency by tool"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30),
	)
	m.failures, errs[2] = meter.Int64Counter("ctxcompress.mcp.tool.errors_total",
		metric.WithDescription("Failed tool calls by tool and reason"),
		metric.WithUnit("{error}"),
	)
	m.inFlight, errs[3] = meter.Int64UpDownCounter("ctxcompress.mcp.tool.active_requests",
		metric.WithDescription("Tool calls in flight"),
		metric.WithUnit("{request}"),
	)
	m.saved, errs[4] = meter.Int64Counter("ctxcompress.mcp.tokens_saved_total",
		metric.WithDescription("Tokens removed by accepted compress_text calls"),
		metric.WithUnit("{token}"),
	)
	if err := errors.Join(errs[:]...); err != nil {
		otel.Handle(err)
	}
	return &m
}

// begin counts a call as in flight. The returned func records its
// outcome and must be called exactly once.
func (m *toolMetrics) begin(ctx context.Context, tool string) func(error) {
	start := time.Now()
	attrs := metric.WithAttributes(attribute.String("tool", tool))
	if m.inFlight != nil {
		m.inFlight.Add(ctx, 1, attrs)
	}
	return func(err error) {
		if m.inFlight != nil {
			m.inFlight.Add(ctx, -1, attrs)
		}
		if m.calls != nil {
			m.calls.Add(ctx, 1, attrs)
		}
		if m.duration != nil {
			m.duration.Record(ctx, time.Since(start).Seconds(), attrs)
		}
		if err != nil && m.failures != nil {
			m.failures.Add(ctx, 1, metric.WithAttributes(
				attribute.String("tool", tool),
				attribute.String("reason", errorReason(err)),
			))
		}
	}
}

// tokensSaved adds n for rewriter; n <= 0 is ignored.
func (m *toolMetrics) tokensSaved(ctx context.Context, rewriter string, n int) {
	if n > 0 && m.saved != nil {
		m.saved.Add(ctx, int64(n), metric.WithAttributes(attribute.String("rewriter", rewriter)))
	}
}

// errorReason maps err to a low-cardinality label.
func errorReason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "cancelled"
	case errors.Is(err, compression.ErrUnknownRewriter):
		return "validation_error"
	case errors.Is(err, fs.ErrNotExist):
		return "not_found"
	}

	msg := strings.ToLower(err.Error())
	has := func(subs ...string) bool {
		for _, s := range subs {
			if strings.Contains(msg, s) {
				return true
			}
		}
		return false
	}
	switch {
	case has("required", "invalid", "unknown", "not both"):
		return "validation_error"
	case has("not found", "no such file"):
		return "not_found"
	case has("timeout"):
		return "timeout"
	case has("tokenizer", "embedding"):
		return "backend_error"
	default:
		return "internal_error"
	}
}
