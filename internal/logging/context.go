package logging

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"unicode/utf8"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type ctxKey int

const (
	requestKey ctxKey = iota
	documentKey
	operationKey
	loggerKey
)

const (
	maxIDLen       = 128
	maxDocumentLen = 4096
)

// correlated lists the string values copied onto every entry, in order.
var correlated = []struct {
	key   ctxKey
	field string
}{
	{requestKey, "request.id"},
	{documentKey, "document.path"},
	{operationKey, "operation"},
}

// ContextFields returns the trace and correlation fields carried by ctx.
func ContextFields(ctx context.Context) []zap.Field {
	var fields []zap.Field
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		fields = append(fields,
			zap.String("trace_id", sc.TraceID().String()),
			zap.String("span_id", sc.SpanID().String()),
		)
		if sc.IsSampled() {
			fields = append(fields, zap.Bool("trace_sampled", true))
		}
	}
	for _, c := range correlated {
		if v := stringValue(ctx, c.key); v != "" {
			fields = append(fields, zap.String(c.field, v))
		}
	}
	return fields
}

func stringValue(ctx context.Context, k ctxKey) string {
	s, _ := ctx.Value(k).(string)
	return s
}

var idPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

func checkRequestID(id string) error {
	switch {
	case id == "":
		return errors.New("requestID cannot be empty")
	case len(id) > maxIDLen:
		return fmt.Errorf("requestID exceeds max length %d", maxIDLen)
	case !idPattern.MatchString(id):
		return errors.New("requestID must be alphanumeric, hyphen or underscore")
	}
	return nil
}

// ValidRequestID reports whether WithRequestID accepts id. Client
// supplied X-Request-ID headers are checked with it before use.
func ValidRequestID(id string) bool { return checkRequestID(id) == nil }

// WithRequestID panics on an id ValidRequestID rejects.
func WithRequestID(ctx context.Context, id string) context.Context {
	if err := checkRequestID(id); err != nil {
		panic("logging: " + err.Error())
	}
	return context.WithValue(ctx, requestKey, id)
}

func RequestIDFromContext(ctx context.Context) string { return stringValue(ctx, requestKey) }

// WithDocument tags ctx with the path being processed. "" leaves ctx as
// is; invalid UTF-8 is quoted and the result capped at 4096 bytes.
func WithDocument(ctx context.Context, path string) context.Context {
	if path == "" {
		return ctx
	}
	if !utf8.ValidString(path) {
		path = fmt.Sprintf("%q", path)
	}
	if len(path) > maxDocumentLen {
		path = path[:maxDocumentLen]
	}
	return context.WithValue(ctx, documentKey, path)
}

func DocumentFromContext(ctx context.Context) string { return stringValue(ctx, documentKey) }

// WithOperation tags ctx with the command or tool name.
func WithOperation(ctx context.Context, op string) context.Context {
	if op == "" {
		return ctx
	}
	return context.WithValue(ctx, operationKey, op)
}

func OperationFromContext(ctx context.Context) string { return stringValue(ctx, operationKey) }

func WithLogger(ctx context.Context, l *Logger) context.Context {
	return context.WithValue(ctx, loggerKey, l)
}

// FromContext returns the logger stored by WithLogger, or a nop logger.
func FromContext(ctx context.Context) *Logger {
	if l, ok := ctx.Value(loggerKey).(*Logger); ok && l != nil {
		return l
	}
	return NewNop()
}
