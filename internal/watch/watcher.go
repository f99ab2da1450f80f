// Package watch re-checks markdown documents for drift as they change on disk.
package watch

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/Dudley70/compression-framework/internal/drift"
	"github.com/Dudley70/compression-framework/internal/logging"
)

// DefaultDebounce is the quiet period before a changed file is checked.
const DefaultDebounce = 500 * time.Millisecond

var (
	// ErrWatcherFailed indicates the filesystem watcher failed to initialize.
	ErrWatcherFailed = errors.New("failed to initialize filesystem watcher")

	// ErrStopped is returned when starting a stopped watcher.
	ErrStopped = errors.New("watcher stopped")
)

// Checker measures drift of a file on disk. *drift.Detector satisfies it.
type Checker interface {
	CheckFile(ctx context.Context, path string) (drift.Result, error)
}

// Event is the drift result for one changed file.
type Event struct {
	Path   string
	Result drift.Result
	Err    error
}

// Watcher watches directories and emits a drift Event for each markdown
// file once its writes settle.
type Watcher struct {
	checker  Checker
	watcher  *fsnotify.Watcher
	debounce time.Duration
	logger   *logging.Logger

	events chan Event
	fire   chan string
	stop   chan struct{}

	mu      sync.Mutex
	pending map[string]*time.Timer
	started bool
	stopped bool
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithDebounce sets the quiet period. Non-positive values keep the default.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(w *Watcher) { w.logger = l }
}

// New returns a watcher reporting through checker.
func New(checker Checker, opts ...Option) (*Watcher, error) {
	if checker == nil {
		return nil, errors.New("drift checker is required")
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrWatcherFailed, err)
	}
	w := &Watcher{
		checker:  checker,
		watcher:  fw,
		debounce: DefaultDebounce,
		logger:   logging.NewNop(),
		events:   make(chan Event, 16),
		fire:     make(chan string, 16),
		stop:     make(chan struct{}),
		pending:  make(map[string]*time.Timer),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Add watches each directory. Subdirectories are not followed.
func (w *Watcher) Add(dirs ...string) error {
	for _, dir := range dirs {
		if err := w.watcher.Add(dir); err != nil {
			return fmt.Errorf("watch %s: %w", dir, err)
		}
	}
	return nil
}

// Start processes filesystem events until ctx is done or Stop is called.
// Events is closed when processing ends.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return ErrStopped
	}
	if w.started {
		return errors.New("watcher already started")
	}
	w.started = true
	go w.run(ctx)
	return nil
}

// Stop ends watching and releases the underlying watcher. It is safe to
// call more than once.
func (w *Watcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return
	}
	w.stopped = true
	close(w.stop)
	for path, t := range w.pending {
		t.Stop()
		delete(w.pending, path)
	}
	_ = w.watcher.Close()
	if !w.started {
		close(w.events)
	}
}

// Events returns the channel of drift results.
func (w *Watcher) Events() <-chan Event {
	return w.events
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.events)
	for {
		select {
		case <-w.stop:
			return
		case <-ctx.Done():
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if relevant(ev) {
				w.schedule(filepath.Clean(ev.Name))
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn(ctx, "filesystem watcher error", zap.Error(err))
		case path := <-w.fire:
			if !w.check(ctx, path) {
				return
			}
		}
	}
}

// relevant reports whether ev is a write or create of a markdown file.
func relevant(ev fsnotify.Event) bool {
	if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
		return false
	}
	switch strings.ToLower(filepath.Ext(ev.Name)) {
	case ".md", ".markdown":
		return true
	}
	return false
}

// schedule starts or restarts the debounce timer for path.
func (w *Watcher) schedule(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return
	}
	if t, ok := w.pending[path]; ok {
		t.Reset(w.debounce)
		return
	}
	w.pending[path] = time.AfterFunc(w.debounce, func() {
		select {
		case w.fire <- path:
		case <-w.stop:
		}
	})
}

// check runs the drift check and emits its event. It returns false when
// the watcher is shutting down.
func (w *Watcher) check(ctx context.Context, path string) bool {
	w.mu.Lock()
	delete(w.pending, path)
	w.mu.Unlock()

	ctx = logging.WithDocument(ctx, path)
	res, err := w.checker.CheckFile(ctx, path)
	if err != nil {
		w.logger.Warn(ctx, "drift check failed", zap.Error(err))
	} else {
		w.logger.Debug(ctx, "drift checked",
			zap.String("recommendation", string(res.Recommendation)),
			zap.Float64("drift_ratio", res.Ratio()),
		)
	}

	select {
	case w.events <- Event{Path: path, Result: res, Err: err}:
		return true
	case <-w.stop:
		return false
	case <-ctx.Done():
		return false
	}
}
