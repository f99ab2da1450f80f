package http

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/Dudley70/compression-framework/internal/http"

// requestMetrics are the OTEL request instruments. The Prometheus scrape
// counters in prom.go are kept separately.
type requestMetrics struct {
	total    metric.Int64Counter
	duration metric.Float64Histogram
	size     metric.Int64Histogram
	inFlight metric.Int64UpDownCounter
}

func newRequestMetrics(mp metric.MeterProvider) *requestMetrics {
	if mp == nil {
		mp = otel.GetMeterProvider()
	}
	meter := mp.Meter(meterName)

	var (
		m    requestMetrics
		errs [4]error
	)
	m.total, errs[0] = meter.Int64Counter("ctxcompress.http.requests_total",
		metric.WithDescription("Requests by method, route and status"),
		metric.WithUnit("{request}"),
	)
	m.duration, errs[1] = meter.Float64Histogram("ctxcompress.http.request_duration_seconds",
		metric.WithDescription("Request latency by method, route and status"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30),
	)
	m.size, errs[2] = meter.Int64Histogram("ctxcompress.http.response_size_bytes",
		metric.WithDescription("Response body size"),
		metric.WithUnit("By"),
		metric.WithExplicitBucketBoundaries(100, 500, 1e3, 5e3, 1e4, 5e4, 1e5, 5e5, 1e6),
	)
	m.inFlight, errs[3] = meter.Int64UpDownCounter("ctxcompress.http.active_requests",
		metric.WithDescription("Requests in flight"),
		metric.WithUnit("{request}"),
	)
	if err := errors.Join(errs[:]...); err != nil {
		otel.Handle(err)
	}
	return &m
}

// middleware records every request once its status is final.
func (m *requestMetrics) middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := c.Request().Context()
			start := time.Now()
			m.track(ctx, 1)
			defer m.track(ctx, -1)

			if err := next(c); err != nil {
				// The error handler would otherwise set the status after us.
				c.Error(err)
			}
			m.observe(ctx, c, time.Since(start))
			return nil
		}
	}
}

func (m *requestMetrics) track(ctx context.Context, delta int64) {
	if m.inFlight != nil {
		m.inFlight.Add(ctx, delta)
	}
}

func (m *requestMetrics) observe(ctx context.Context, c echo.Context, elapsed time.Duration) {
	res := c.Response()
	attrs := metric.WithAttributes(
		attribute.String("method", c.Request().Method),
		attribute.String("endpoint", routeLabel(c.Path())),
		attribute.String("status", strconv.Itoa(res.Status)),
	)
	if m.total != nil {
		m.total.Add(ctx, 1, attrs)
	}
	if m.duration != nil {
		m.duration.Record(ctx, elapsed.Seconds(), attrs)
	}
	if m.size != nil {
		m.size.Record(ctx, res.Size, attrs)
	}
}

// routeLabel is the registered route pattern. Unmatched requests share a
// label so arbitrary paths cannot grow the series count.
func routeLabel(path string) string {
	if path == "" {
		return "unmatched"
	}
	return path
}
