// Package telemetry wires OpenTelemetry tracing and metrics for ctxcompress.
//
// Scoring, validation, compression and the HTTP and MCP surfaces take
// trace and meter providers as options. New builds OTLP-backed providers
// from Config, or leaves the global no-op providers in place when export is
// disabled:
//
//	tel, err := telemetry.New(ctx, cfg)
//	if err != nil {
//	    return err
//	}
//	defer tel.Shutdown(ctx)
//
//	v, err := safety.NewValidator(backends,
//	    safety.WithTracerProvider(tel.TracerProvider()),
//	    safety.WithMeterProvider(tel.MeterProvider()),
//	)
//
// The matching configuration section:
//
//	observability:
//	  enable_telemetry: true
//	  endpoint: "localhost:4317"
//	  protocol: grpc   # or http
//	  sample_rate: 1.0
//
// Exporter failures mark the instance degraded rather than failing startup.
// Tests use NewTestTelemetry, which records spans and metrics in memory.
package telemetry
