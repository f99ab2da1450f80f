package watch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Dudley70/compression-framework/internal/drift"
	"github.com/Dudley70/compression-framework/internal/logging"
)

type wordCounter struct{}

func (wordCounter) Encode(text string) ([]uint, error) {
	return make([]uint, len(strings.Fields(text))), nil
}

func (w wordCounter) Count(text string) (int, error) {
	ids, _ := w.Encode(text)
	return len(ids), nil
}

type countingChecker struct {
	calls atomic.Int32
	err   error
}

func (c *countingChecker) CheckFile(_ context.Context, path string) (drift.Result, error) {
	c.calls.Add(1)
	if c.err != nil {
		return drift.Result{}, c.err
	}
	return drift.Result{Path: path, Recommendation: drift.RecommendNone}, nil
}

func startWatcher(t *testing.T, checker Checker, opts ...Option) (*Watcher, string) {
	t.Helper()
	dir := t.TempDir()
	w, err := New(checker, append([]Option{WithDebounce(50 * time.Millisecond)}, opts...)...)
	require.NoError(t, err)
	require.NoError(t, w.Add(dir))

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(func() {
		cancel()
		w.Stop()
	})
	require.NoError(t, w.Start(ctx))
	return w, dir
}

func next(t *testing.T, w *Watcher) Event {
	t.Helper()
	select {
	case ev, ok := <-w.Events():
		require.True(t, ok, "events channel closed")
		return ev
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for drift event")
		return Event{}
	}
}

const tracked = "---\ncompression:\n  baseline_tokens: 4\n---\none two three four five six\n"

func TestWatcher_ChecksMarkdown(t *testing.T) {
	det, err := drift.NewDetector(wordCounter{})
	require.NoError(t, err)
	w, dir := startWatcher(t, det)

	path := filepath.Join(dir, "design.md")
	require.NoError(t, os.WriteFile(path, []byte(tracked), 0o644))

	ev := next(t, w)
	require.NoError(t, ev.Err)
	assert.Equal(t, path, ev.Path)
	assert.Equal(t, path, ev.Result.Path)
	assert.Equal(t, 6, ev.Result.CurrentTokens)
	assert.Equal(t, drift.RecommendCompress, ev.Result.Recommendation)
}

func TestWatcher_IgnoresOtherFiles(t *testing.T) {
	checker := &countingChecker{}
	w, dir := startWatcher(t, checker)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.MD"), []byte("y"), 0o644))

	ev := next(t, w)
	assert.Equal(t, filepath.Join(dir, "README.MD"), ev.Path)
	assert.Equal(t, int32(1), checker.calls.Load())
}

func TestWatcher_Debounces(t *testing.T) {
	checker := &countingChecker{}
	w, dir := startWatcher(t, checker, WithDebounce(200*time.Millisecond))

	path := filepath.Join(dir, "busy.md")
	for i := 0; i < 5; i++ {
		require.NoError(t, os.WriteFile(path, []byte(strings.Repeat("word ", i+1)), 0o644))
		time.Sleep(10 * time.Millisecond)
	}

	next(t, w)
	select {
	case ev := <-w.Events():
		t.Fatalf("unexpected second event: %+v", ev)
	case <-time.After(400 * time.Millisecond):
	}
	assert.Equal(t, int32(1), checker.calls.Load())
}

func TestWatcher_CheckErrorIsReported(t *testing.T) {
	logger := logging.NewTestLogger()
	checker := &countingChecker{err: errors.New("disk on fire")}
	w, dir := startWatcher(t, checker, WithLogger(logger.Logger))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.md"), []byte("a"), 0o644))

	ev := next(t, w)
	assert.EqualError(t, ev.Err, "disk on fire")
	logger.AssertField(t, "drift check failed", "document.path", filepath.Join(dir, "a.md"))
}

func TestWatcher_Stop(t *testing.T) {
	w, _ := startWatcher(t, &countingChecker{})
	w.Stop()
	w.Stop()

	select {
	case _, ok := <-w.Events():
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("events not closed after Stop")
	}
	assert.ErrorIs(t, w.Start(context.Background()), ErrStopped)
}

func TestWatcher_StopBeforeStart(t *testing.T) {
	w, err := New(&countingChecker{})
	require.NoError(t, err)
	w.Stop()
	_, ok := <-w.Events()
	assert.False(t, ok)
}

func TestWatcher_ContextCancelClosesEvents(t *testing.T) {
	w, err := New(&countingChecker{})
	require.NoError(t, err)
	defer w.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, w.Start(ctx))
	assert.Error(t, w.Start(ctx))
	cancel()

	select {
	case _, ok := <-w.Events():
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("events not closed after cancel")
	}
}

func TestNew_RequiresChecker(t *testing.T) {
	_, err := New(nil)
	assert.Error(t, err)
}

func TestWatcher_AddMissingDir(t *testing.T) {
	w, err := New(&countingChecker{})
	require.NoError(t, err)
	defer w.Stop()
	assert.Error(t, w.Add(filepath.Join(t.TempDir(), "missing")))
}

func TestRelevant(t *testing.T) {
	tests := []struct {
		name string
		ev   fsnotify.Event
		want bool
	}{
		{"write md", fsnotify.Event{Name: "a.md", Op: fsnotify.Write}, true},
		{"create markdown", fsnotify.Event{Name: "a.markdown", Op: fsnotify.Create}, true},
		{"upper case", fsnotify.Event{Name: "A.MD", Op: fsnotify.Write}, true},
		{"remove md", fsnotify.Event{Name: "a.md", Op: fsnotify.Remove}, false},
		{"chmod md", fsnotify.Event{Name: "a.md", Op: fsnotify.Chmod}, false},
		{"write txt", fsnotify.Event{Name: "a.txt", Op: fsnotify.Write}, false},
		{"no extension", fsnotify.Event{Name: "md", Op: fsnotify.Write}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, relevant(tt.ev))
		})
	}
}
