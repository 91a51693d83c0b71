package watcher

// The watcher package observes the request and template directories and emits
// an event once a request file has stopped changing.

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

const (
	requestExt  = ".json"
	eventBuffer = 64

	minTick = 10 * time.Millisecond
	maxTick = 100 * time.Millisecond
)

// EventKind distinguishes watcher events.
type EventKind int

const (
	// EventRequest reports a request file that is complete and ready.
	EventRequest EventKind = iota
	// EventTemplateChanged reports a modified template. It is informational.
	EventTemplateChanged
)

func (k EventKind) String() string {
	switch k {
	case EventRequest:
		return "request"
	case EventTemplateChanged:
		return "template_changed"
	default:
		return "unknown"
	}
}

// Event is emitted on the Events channel.
type Event struct {
	Kind EventKind
	Path string
}

// Options configures a Watcher.
type Options struct {
	RequestsDir     string
	TemplatesDir    string        // Optional
	TemplatePattern string        // Glob matched against template base names
	Stability       time.Duration // Quiet period before a request is emitted
}

// Stats counts watcher activity.
type Stats struct {
	RequestsEmitted  int
	TemplatesChanged int
	Errors           int
}

// Watcher watches the request directory (non-recursively) and the template
// directory.
type Watcher struct {
	mu       sync.Mutex
	fs       *fsnotify.Watcher
	logger   zerolog.Logger
	opts     Options
	pending  map[string]time.Time
	events   chan Event
	stopCh   chan struct{}
	doneCh   chan struct{}
	running  bool
	stopOnce sync.Once
	stats    Stats
}

// New creates a Watcher. Start must be called to begin watching.
func New(logger zerolog.Logger, opts Options) (*Watcher, error) {
	if opts.RequestsDir == "" {
		return nil, fmt.Errorf("requests directory is required")
	}
	if opts.TemplatePattern == "" {
		opts.TemplatePattern = "*.latex"
	}
	if _, err := filepath.Match(opts.TemplatePattern, ""); err != nil {
		return nil, fmt.Errorf("invalid template pattern %q: %w", opts.TemplatePattern, err)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	return &Watcher{
		fs:      fsw,
		logger:  logger,
		opts:    opts,
		pending: make(map[string]time.Time),
		events:  make(chan Event, eventBuffer),
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}, nil
}

// Events returns the channel events are delivered on. It is closed when the
// watcher stops.
func (w *Watcher) Events() <-chan Event {
	return w.events
}

// Start adds the watched directories, queues request files already present
// and starts the event loop. It does not block.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	if err := w.fs.Add(w.opts.RequestsDir); err != nil {
		w.mu.Lock()
		w.running = false
		w.mu.Unlock()
		w.fs.Close()
		return fmt.Errorf("failed to watch %s: %w", w.opts.RequestsDir, err)
	}
	w.logger.Info().Str("dir", w.opts.RequestsDir).Msg("Watching for test requests")

	if w.opts.TemplatesDir != "" {
		if err := w.fs.Add(w.opts.TemplatesDir); err != nil {
			w.logger.Warn().Err(err).Str("dir", w.opts.TemplatesDir).Msg("Failed to watch template directory")
		} else {
			w.logger.Debug().Str("dir", w.opts.TemplatesDir).Msg("Watching templates")
		}
	}

	// Files added before the watch was established are picked up here
	if err := w.Scan(); err != nil {
		w.logger.Error().Err(err).Msg("Initial scan failed")
	}

	go w.run(ctx)
	return nil
}

// Stop stops the event loop and releases the file watcher.
func (w *Watcher) Stop() {
	w.mu.Lock()
	running := w.running
	w.mu.Unlock()
	if !running {
		return
	}

	w.stopOnce.Do(func() {
		close(w.stopCh)
		<-w.doneCh
		if err := w.fs.Close(); err != nil {
			w.logger.Error().Err(err).Msg("Failed to close file watcher")
		}
		w.logger.Debug().Msg("Watcher stopped")
	})
}

// Scan queues every request file currently in the requests directory. The
// files are emitted once they are stable, like files seen by the watch.
func (w *Watcher) Scan() error {
	entries, err := os.ReadDir(w.opts.RequestsDir)
	if err != nil {
		return fmt.Errorf("failed to scan %s: %w", w.opts.RequestsDir, err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	for _, entry := range entries {
		if entry.IsDir() || !isRequestName(entry.Name()) {
			continue
		}
		path := filepath.Join(w.opts.RequestsDir, entry.Name())
		if _, ok := w.pending[path]; !ok {
			w.pending[path] = time.Time{}
		}
	}
	return nil
}

// Stats returns a snapshot of the activity counters.
func (w *Watcher) Stats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stats
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.doneCh)
	defer close(w.events)

	ticker := time.NewTicker(tickInterval(w.opts.Stability))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-w.stopCh:
			return

		case event, ok := <-w.fs.Events:
			if !ok {
				return
			}
			if !w.handleEvent(ctx, event) {
				return
			}

		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			w.logger.Error().Err(err).Msg("File watcher error")
			w.mu.Lock()
			w.stats.Errors++
			w.mu.Unlock()

		case <-ticker.C:
			if !w.flush(ctx) {
				return
			}
		}
	}
}

// handleEvent records request writes for debouncing and forwards template
// changes. It returns false if the watcher is shutting down.
func (w *Watcher) handleEvent(ctx context.Context, event fsnotify.Event) bool {
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
		return true
	}

	dir := filepath.Dir(event.Name)
	base := filepath.Base(event.Name)

	switch {
	case dir == filepath.Clean(w.opts.RequestsDir) && isRequestName(base):
		w.logger.Debug().Str("path", event.Name).Str("op", event.Op.String()).Msg("Request file changed")
		w.mu.Lock()
		w.pending[event.Name] = time.Now()
		w.mu.Unlock()

	case w.opts.TemplatesDir != "" && dir == filepath.Clean(w.opts.TemplatesDir) && w.isTemplate(base):
		w.logger.Info().Str("template", base).Msg("Template changed")
		w.mu.Lock()
		w.stats.TemplatesChanged++
		w.mu.Unlock()
		return w.emit(ctx, Event{Kind: EventTemplateChanged, Path: event.Name})
	}
	return true
}

type settled struct {
	path string
	last time.Time
}

// flush emits every request that has been quiet for the stability period.
func (w *Watcher) flush(ctx context.Context) bool {
	now := time.Now()

	w.mu.Lock()
	var ready []settled
	for path, last := range w.pending {
		if now.Sub(last) >= w.opts.Stability {
			ready = append(ready, settled{path: path, last: last})
			delete(w.pending, path)
		}
	}
	w.mu.Unlock()

	// Oldest write first; the startup backlog (zero times) goes by name
	sort.Slice(ready, func(i, j int) bool {
		if !ready[i].last.Equal(ready[j].last) {
			return ready[i].last.Before(ready[j].last)
		}
		return ready[i].path < ready[j].path
	})

	for _, r := range ready {
		path := r.path
		if _, err := os.Stat(path); err != nil {
			w.logger.Debug().Str("path", path).Msg("Request file vanished before it settled")
			continue
		}
		w.mu.Lock()
		w.stats.RequestsEmitted++
		w.mu.Unlock()
		if !w.emit(ctx, Event{Kind: EventRequest, Path: path}) {
			return false
		}
	}
	return true
}

func (w *Watcher) emit(ctx context.Context, event Event) bool {
	select {
	case w.events <- event:
		return true
	case <-ctx.Done():
		return false
	case <-w.stopCh:
		return false
	}
}

func (w *Watcher) isTemplate(name string) bool {
	ok, _ := filepath.Match(w.opts.TemplatePattern, name)
	return ok
}

// isRequestName matches request files; editor and atomic-write temp files
// such as name.json.tmp or .name.json.swp do not match.
func isRequestName(name string) bool {
	return strings.HasSuffix(name, requestExt) && !strings.HasPrefix(name, ".")
}

func tickInterval(stability time.Duration) time.Duration {
	tick := stability / 4
	if tick < minTick {
		return minTick
	}
	if tick > maxTick {
		return maxTick
	}
	return tick
}
