package logging

import (
	"go.uber.org/zap/zapcore"
)

// samplingLevels are the levels eligible for sampling, lowest first.
var samplingLevels = []zapcore.Level{
	TraceLevel,
	zapcore.DebugLevel,
	zapcore.InfoLevel,
	zapcore.WarnLevel,
}

// newSampledCore gives every configured level below Error its own
// sampler. Levels without an entry and Error+ pass through unsampled.
func newSampledCore(core zapcore.Core, cfg SamplingConfig) zapcore.Core {
	if !cfg.Enabled || len(cfg.Levels) == 0 {
		return core
	}

	cores := make([]zapcore.Core, 0, len(samplingLevels)+1)
	for _, lvl := range samplingLevels {
		scope := &levelRangeCore{Core: core, min: lvl, max: lvl}
		rate, ok := cfg.Levels[lvl]
		if !ok {
			cores = append(cores, scope)
			continue
		}
		cores = append(cores, zapcore.NewSamplerWithOptions(
			scope, cfg.Tick.Duration(), rate.Initial, rate.Thereafter,
		))
	}
	cores = append(cores, &levelRangeCore{Core: core, min: zapcore.ErrorLevel, max: zapcore.FatalLevel})

	return zapcore.NewTee(cores...)
}

// levelRangeCore passes only entries with min <= level <= max.
type levelRangeCore struct {
	zapcore.Core
	min, max zapcore.Level
}

func (c *levelRangeCore) Enabled(lvl zapcore.Level) bool {
	return lvl >= c.min && lvl <= c.max && c.Core.Enabled(lvl)
}

func (c *levelRangeCore) Check(e zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if !c.Enabled(e.Level) {
		return ce
	}
	return c.Core.Check(e, ce)
}

func (c *levelRangeCore) With(fields []zapcore.Field) zapcore.Core {
	return &levelRangeCore{Core: c.Core.With(fields), min: c.min, max: c.max}
}
