package store

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is the quiet period before a change triggers a reload.
const DefaultDebounce = 100 * time.Millisecond

// Watcher reloads a FileSource when its file changes.
//
// The parent directory is watched rather than the file itself: editors and
// config management tools commonly replace files by rename, which drops a
// watch placed on the old inode.
type Watcher struct {
	source   *FileSource
	debounce time.Duration

	// reloaded receives the outcome of each reload; tests hook it.
	reloaded func(changed bool, err error)
}

// NewWatcher creates a watcher for source. A non-positive debounce uses
// DefaultDebounce.
func NewWatcher(source *FileSource, debounce time.Duration) *Watcher {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Watcher{source: source, debounce: debounce}
}

// Watch blocks until ctx is cancelled, reloading the source after each burst
// of writes, creates or renames of the rule file. Reload failures are logged
// and the previous rules stay in effect.
func (w *Watcher) Watch(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	defer fsw.Close()

	target := filepath.Clean(w.source.Path())
	if err := fsw.Add(filepath.Dir(target)); err != nil {
		return fmt.Errorf("failed to watch %q: %w", filepath.Dir(target), err)
	}

	logger := w.source.opts.logger
	logger.Info("watching rule file", "path", target, "debounce", w.debounce)

	d := newDebouncer(w.debounce)
	defer d.stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("rule file watcher stopped")
			return nil

		case event, ok := <-fsw.Events:
			if !ok {
				return fmt.Errorf("watcher events channel closed")
			}
			if filepath.Clean(event.Name) != target || event.Op == fsnotify.Chmod {
				continue
			}
			logger.Debug("rule file event", "op", event.Op.String())
			d.trigger(func() { w.reload(ctx) })

		case err, ok := <-fsw.Errors:
			if !ok {
				return fmt.Errorf("watcher errors channel closed")
			}
			logger.Error("rule file watcher error", "err", err)
		}
	}
}

func (w *Watcher) reload(ctx context.Context) {
	changed, err := w.source.Reload(ctx)
	if err != nil {
		w.source.opts.logger.Error("rule reload failed", "err", err)
	} else if !changed {
		w.source.opts.logger.Debug("rule file unchanged")
	}
	if w.reloaded != nil {
		w.reloaded(changed, err)
	}
}

// debouncer runs only the last callback of a burst, after a quiet interval.
type debouncer struct {
	interval time.Duration

	mu      sync.Mutex
	timer   *time.Timer
	stopped bool
}

func newDebouncer(interval time.Duration) *debouncer {
	return &debouncer{interval: interval}
}

func (d *debouncer) trigger(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.interval, func() {
		d.mu.Lock()
		stopped := d.stopped
		d.mu.Unlock()
		if !stopped {
			fn()
		}
	})
}

func (d *debouncer) stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
	}
}
