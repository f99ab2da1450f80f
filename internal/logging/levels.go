package logging

import (
	"fmt"
	"strings"

	"go.uber.org/zap/zapcore"
)

// TraceLevel sits below Debug. Per-section metric dumps and tokenizer
// details are logged here and almost always filtered out.
const TraceLevel = zapcore.Level(-2)

// LevelFromString parses a level name, case-insensitively. Besides zap's
// names it accepts "trace" and "warning". Unknown names return InfoLevel
// and an error.
func LevelFromString(level string) (zapcore.Level, error) {
	switch s := strings.ToLower(strings.TrimSpace(level)); s {
	case "trace":
		return TraceLevel, nil
	case "warning":
		return zapcore.WarnLevel, nil
	default:
		l, err := zapcore.ParseLevel(s)
		if err != nil {
			return zapcore.InfoLevel, fmt.Errorf("unknown level %q", level)
		}
		return l, nil
	}
}
