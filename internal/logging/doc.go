// Package logging provides structured logging with OpenTelemetry integration.
//
// The package wraps Zap with:
//   - a Trace level (-2, below Debug)
//   - stderr and OpenTelemetry outputs
//   - context field injection (trace_id, request.id, document.path, operation)
//   - truncation of document bodies and masking of secrets
//   - per-level sampling (errors never sampled)
//
// Create a logger from config:
//
//	cfg := logging.NewDefaultConfig()
//	logger, err := logging.NewLogger(cfg, otelProvider)
//	if err != nil {
//	    return err
//	}
//	defer logger.Sync()
//
// Log with context:
//
//	ctx = logging.WithDocument(ctx, "docs/guide.md")
//	ctx = logging.WithOperation(ctx, "validate")
//	logger.Info(ctx, "validation finished", zap.String("recommendation", "accept"))
//
// Fields named content, original, compressed, candidate or text are cut to
// Truncation.MaxRunes by the encoder, so a full document never reaches a
// log line. Tests use NewTestLogger and its Assert helpers.
package logging
