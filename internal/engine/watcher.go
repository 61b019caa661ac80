package engine

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/openmined/deltasync/internal/delta"
	"github.com/rjeczalik/notify"
)

const (
	defaultWatchDebounce = 500 * time.Millisecond
	watchBufferSize      = 64
)

// Watcher turns filesystem events below a root into coalesced triggers.
// A burst of events produces one trigger once the root has been quiet for
// the debounce period.
type Watcher struct {
	root     string
	realRoot string
	ignore   *delta.IgnoreList
	debounce time.Duration

	raw      chan notify.EventInfo
	triggers chan struct{}
	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

type WatcherOption func(*Watcher)

func WithWatchIgnore(ignore *delta.IgnoreList) WatcherOption {
	return func(w *Watcher) {
		w.ignore = ignore
	}
}

func WithDebounce(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

func NewWatcher(root string, opts ...WatcherOption) *Watcher {
	w := &Watcher{
		root:     root,
		realRoot: root,
		debounce: defaultWatchDebounce,
		triggers: make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
	if real, err := filepath.EvalSymlinks(root); err == nil {
		w.realRoot = real
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Triggers is closed when the watcher stops.
func (w *Watcher) Triggers() <-chan struct{} {
	return w.triggers
}

func (w *Watcher) Start(ctx context.Context) error {
	w.raw = make(chan notify.EventInfo, watchBufferSize)
	if err := notify.Watch(filepath.Join(w.root, "..."), w.raw, notify.All); err != nil {
		return err
	}
	slog.Info("watcher start", "root", w.root, "debounce", w.debounce)

	w.wg.Add(1)
	go w.loop(ctx)
	return nil
}

func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.done)
		if w.raw != nil {
			notify.Stop(w.raw)
		}
		w.wg.Wait()
		slog.Info("watcher stopped", "root", w.root)
	})
}

func (w *Watcher) loop(ctx context.Context) {
	defer func() {
		close(w.triggers)
		w.wg.Done()
	}()

	// go1.23 timers: Reset never delivers a stale tick
	timer := time.NewTimer(w.debounce)
	timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case event, ok := <-w.raw:
			if !ok {
				return
			}
			relPath, ok := w.relative(event.Path())
			if !ok || w.ignored(relPath) {
				continue
			}
			slog.Debug("watcher event", "event", event.Event(), "path", relPath)
			timer.Reset(w.debounce)
		case <-timer.C:
			select {
			case w.triggers <- struct{}{}:
			default:
				// a trigger is already queued
			}
		}
	}
}

func (w *Watcher) relative(absPath string) (string, bool) {
	for _, root := range []string{w.root, w.realRoot} {
		rel, err := filepath.Rel(root, absPath)
		if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			continue
		}
		return filepath.ToSlash(rel), true
	}
	return "", false
}

// ignored also drops the metadata dir so state writes never retrigger a pass.
func (w *Watcher) ignored(relPath string) bool {
	if relPath == "." {
		return true
	}
	if relPath == delta.MetadataDirName || strings.HasPrefix(relPath, delta.MetadataDirName+"/") {
		return true
	}
	return w.ignore.ShouldIgnore(relPath, false)
}
