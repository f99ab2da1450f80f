package logging

import (
	"reflect"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// TestLogger records every entry, trace level included, for assertions.
type TestLogger struct {
	*Logger
	observed *observer.ObservedLogs
}

func NewTestLogger() *TestLogger {
	core, observed := observer.New(TraceLevel)
	return &TestLogger{
		Logger:   &Logger{zap: zap.New(core), config: NewDefaultConfig()},
		observed: observed,
	}
}

func (t *TestLogger) All() []observer.LoggedEntry { return t.observed.All() }

// FilterMessage returns the entries whose message contains msg.
func (t *TestLogger) FilterMessage(msg string) *observer.ObservedLogs {
	return t.observed.FilterMessageSnippet(msg)
}

// Reset drops everything recorded so far.
func (t *TestLogger) Reset() { t.observed.TakeAll() }

// matching returns the entries at level whose message contains msg.
func (t *TestLogger) matching(level zapcore.Level, msg string) []observer.LoggedEntry {
	return t.observed.FilterLevelExact(level).FilterMessageSnippet(msg).All()
}

func (t *TestLogger) AssertLogged(tb testing.TB, level zapcore.Level, msg string) {
	tb.Helper()
	if len(t.matching(level, msg)) == 0 {
		tb.Errorf("no %v entry containing %q; got %s", level, msg, t.messages())
	}
}

func (t *TestLogger) AssertNotLogged(tb testing.TB, level zapcore.Level, msg string) {
	tb.Helper()
	if n := len(t.matching(level, msg)); n > 0 {
		tb.Errorf("%d unexpected %v entries containing %q", n, level, msg)
	}
}

// AssertField checks that some entry whose message contains msg carries
// key with the expected value, compared after zap's own encoding (ints
// arrive as int64, durations as time.Duration).
func (t *TestLogger) AssertField(tb testing.TB, msg, key string, expected interface{}) {
	tb.Helper()
	for _, e := range t.FilterMessage(msg).All() {
		if v, ok := e.ContextMap()[key]; ok && reflect.DeepEqual(v, expected) {
			return
		}
	}
	tb.Errorf("no entry %q with %s=%v; got %s", msg, key, expected, t.messages())
}

// AssertDocument checks that an entry containing msg was correlated with
// the document at path.
func (t *TestLogger) AssertDocument(tb testing.TB, msg, path string) {
	tb.Helper()
	t.AssertField(tb, msg, "document.path", path)
}

// AssertNoContent fails when any string field holds more than max runes,
// which means a document body escaped truncation.
func (t *TestLogger) AssertNoContent(tb testing.TB, max int) {
	tb.Helper()
	for _, e := range t.observed.All() {
		for _, f := range e.Context {
			if n := len([]rune(f.String)); f.Type == zapcore.StringType && n > max {
				tb.Errorf("field %q of %q holds %d runes", f.Key, e.Message, n)
			}
		}
	}
}

func (t *TestLogger) messages() string {
	entries := t.observed.All()
	msgs := make([]string, len(entries))
	for i, e := range entries {
		msgs[i] = e.Level.String() + ":" + e.Message
	}
	return "[" + strings.Join(msgs, ", ") + "]"
}
