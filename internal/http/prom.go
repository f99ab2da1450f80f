package http

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// promMetrics are the scrape-side counters served on /metrics. Each server
// owns its registry so several servers can coexist in one process.
type promMetrics struct {
	registry *prometheus.Registry

	// Labels: endpoint, recommendation
	verdicts *prometheus.CounterVec

	// Labels: recommendation
	drift *prometheus.CounterVec

	// Labels: rewriter, applied
	compressions *prometheus.CounterVec

	rateLimited prometheus.Counter
}

func newPromMetrics() *promMetrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	auto := promauto.With(reg)

	return &promMetrics{
		registry: reg,
		verdicts: auto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "ctxcompress",
				Subsystem: "http",
				Name:      "safety_verdicts_total",
				Help:      "Safety verdicts returned by the API",
			},
			[]string{"endpoint", "recommendation"},
		),
		drift: auto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "ctxcompress",
				Subsystem: "http",
				Name:      "drift_checks_total",
				Help:      "Drift checks by recommendation",
			},
			[]string{"recommendation"},
		),
		compressions: auto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "ctxcompress",
				Subsystem: "http",
				Name:      "compressions_total",
				Help:      "Compression attempts by rewriter and whether the candidate was applied",
			},
			[]string{"rewriter", "applied"},
		),
		rateLimited: auto.NewCounter(
			prometheus.CounterOpts{
				Namespace: "ctxcompress",
				Subsystem: "http",
				Name:      "rate_limited_total",
				Help:      "Requests rejected by the rate limiter",
			},
		),
	}
}
