package logging

import (
	"errors"
	"fmt"
	"time"

	"github.com/Dudley70/compression-framework/internal/config"
	"go.uber.org/zap/zapcore"
)

// Config is the logger setup derived from the logging section of the
// application config.
type Config struct {
	Level  zapcore.Level `koanf:"level"`
	Format string        `koanf:"format"` // json or console

	Output     OutputConfig      `koanf:"output"`
	Sampling   SamplingConfig    `koanf:"sampling"`
	Truncation TruncationConfig  `koanf:"truncation"`
	Fields     map[string]string `koanf:"fields"`

	// Caller annotates entries with file:line, skipping CallerSkip frames.
	Caller     bool `koanf:"caller"`
	CallerSkip int  `koanf:"caller_skip"`
	// StacktraceLevel attaches stacks at this level and above.
	StacktraceLevel zapcore.Level `koanf:"stacktrace_level"`
}

// OutputConfig selects the sinks. Stdout belongs to command output, so
// the local sink is stderr.
type OutputConfig struct {
	Stderr bool `koanf:"stderr"`
	OTEL   bool `koanf:"otel"`
}

// SamplingConfig thins repeated entries per tick. Error and above are
// never sampled.
type SamplingConfig struct {
	Enabled bool                                  `koanf:"enabled"`
	Tick    config.Duration                       `koanf:"tick"`
	Levels  map[zapcore.Level]LevelSamplingConfig `koanf:"levels"`
}

type LevelSamplingConfig struct {
	Initial    int `koanf:"initial"`
	Thereafter int `koanf:"thereafter"`
}

// TruncationConfig bounds document bodies in log fields. ContentFields
// are cut to MaxRunes; SecretFields are masked outright.
type TruncationConfig struct {
	Enabled       bool     `koanf:"enabled"`
	MaxRunes      int      `koanf:"max_runes"`
	ContentFields []string `koanf:"content_fields"`
	SecretFields  []string `koanf:"secret_fields"`
}

func NewDefaultConfig() *Config {
	return &Config{
		Level:  zapcore.InfoLevel,
		Format: "console",
		Output: OutputConfig{Stderr: true},
		Sampling: SamplingConfig{
			Enabled: true,
			Tick:    config.Duration(time.Second),
			Levels:  DefaultLevelSamplingConfig(),
		},
		Truncation: TruncationConfig{
			Enabled:       true,
			MaxRunes:      120,
			ContentFields: []string{"content", "original", "compressed", "candidate", "text"},
			SecretFields:  []string{"api_key", "authorization", "bearer", "token"},
		},
		Fields:          map[string]string{"service": "ctxcompress"},
		Caller:          true,
		CallerSkip:      2,
		StacktraceLevel: zapcore.ErrorLevel,
	}
}

// DefaultLevelSamplingConfig keeps every trace entry's first occurrence
// and samples info heavily, since the watch loop logs per event.
func DefaultLevelSamplingConfig() map[zapcore.Level]LevelSamplingConfig {
	return map[zapcore.Level]LevelSamplingConfig{
		TraceLevel:         {Initial: 1},
		zapcore.DebugLevel: {Initial: 10},
		zapcore.InfoLevel:  {Initial: 100, Thereafter: 10},
		zapcore.WarnLevel:  {Initial: 100, Thereafter: 100},
	}
}

// Validate reports every problem at once.
func (c *Config) Validate() error {
	var errs []error
	fail := func(format string, args ...any) { errs = append(errs, fmt.Errorf(format, args...)) }

	switch c.Format {
	case "json", "console":
	default:
		fail("format must be 'json' or 'console', got %q", c.Format)
	}
	if !c.Output.Stderr && !c.Output.OTEL {
		fail("at least one output must be enabled (stderr or otel)")
	}
	if c.Sampling.Enabled {
		if c.Sampling.Tick.Duration() <= 0 {
			fail("sampling tick must be > 0 when sampling enabled")
		}
		for lvl := range c.Sampling.Levels {
			if lvl >= zapcore.ErrorLevel {
				fail("sampling cannot be configured for %v and above", zapcore.ErrorLevel)
				break
			}
		}
	}
	if c.CallerSkip < 0 {
		fail("caller skip must be >= 0, got %d", c.CallerSkip)
	}
	if c.Truncation.Enabled && c.Truncation.MaxRunes <= 0 {
		fail("truncation max_runes must be > 0, got %d", c.Truncation.MaxRunes)
	}
	for k, v := range c.Fields {
		switch {
		case k == "":
			fail("field key cannot be empty")
		case v == "":
			fail("field %q has empty value", k)
		}
	}
	return errors.Join(errs...)
}
