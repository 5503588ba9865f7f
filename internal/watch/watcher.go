// Package watch signals changes to artifact files in the group directories.
package watch

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/oshokin/mc-provisioner/internal/domain/artifact"
	"github.com/oshokin/mc-provisioner/internal/logger"
)

// DefaultDebounce coalesces bursts of events, e.g. a large file being copied in.
const DefaultDebounce = 500 * time.Millisecond

// Watcher reports debounced changes to jar files in a set of directories.
type Watcher struct {
	fsWatcher *fsnotify.Watcher
	dirs      []string
	debounce  time.Duration
	onChange  chan struct{}
	done      chan struct{}
	stopOnce  sync.Once
}

// Config holds watcher configuration options.
type Config struct {
	// Dirs are the directories to watch. Each must exist.
	Dirs []string
	// Debounce is the quiet period before a change is signalled.
	Debounce time.Duration
}

// New creates a watcher for cfg.Dirs.
func New(cfg Config) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating fsnotify watcher: %w", err)
	}

	debounce := cfg.Debounce
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	return &Watcher{
		fsWatcher: fsw,
		dirs:      cfg.Dirs,
		debounce:  debounce,
		onChange:  make(chan struct{}, 1),
		done:      make(chan struct{}),
	}, nil
}

// Start begins watching. The returned channel receives a signal after changes settle.
func (w *Watcher) Start(ctx context.Context) (<-chan struct{}, error) {
	for _, dir := range w.dirs {
		if err := w.fsWatcher.Add(dir); err != nil {
			return nil, fmt.Errorf("watching directory %s: %w", dir, err)
		}
	}

	go w.loop(ctx)

	return w.onChange, nil
}

// Stop terminates the watcher and releases resources. It is safe to call more than once.
func (w *Watcher) Stop() error {
	var err error

	w.stopOnce.Do(func() {
		close(w.done)
		err = w.fsWatcher.Close()
	})

	return err
}

func (w *Watcher) loop(ctx context.Context) {
	var timer *time.Timer

	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		var fire <-chan time.Time
		if timer != nil {
			fire = timer.C
		}

		select {
		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}

			if !isRelevantEvent(event) {
				continue
			}

			logger.DebugKV(ctx, "Artifact directory changed", "path", event.Name, "op", event.Op.String())

			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}

		case <-fire:
			timer = nil

			// Drop the signal if one is already pending.
			select {
			case w.onChange <- struct{}{}:
			default:
			}

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}

			logger.WarnKV(ctx, "Filesystem watcher error", "error", err)

		case <-ctx.Done():
			return

		case <-w.done:
			return
		}
	}
}

// isRelevantEvent keeps changes that can alter an artifact's content or presence.
func isRelevantEvent(event fsnotify.Event) bool {
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
		return false
	}

	return strings.EqualFold(filepath.Ext(event.Name), artifact.Extension)
}
