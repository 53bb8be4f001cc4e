// Package watcher follows X lock files with filesystem notifications.
//
// The supervisor itself polls; this package backs the CLI's wait and watch
// commands, which are happy to block on inotify for as long as it takes.
package watcher

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/mvp-joe/xvfb-supervisor/internal/display"
	xlog "github.com/mvp-joe/xvfb-supervisor/internal/log"
)

// Event is one lock-file change.
type Event struct {
	Display string
	Locked  bool
}

// lockWatcher implements LockWatcher.
type lockWatcher struct {
	watcher   *fsnotify.Watcher
	probe     *display.Probe
	logger    *slog.Logger
	closeOnce sync.Once
}

// NewLockWatcher watches the probe's lock directory.
func NewLockWatcher(probe *display.Probe, logger *slog.Logger) (LockWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := w.Add(probe.Dir()); err != nil {
		w.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", probe.Dir(), err)
	}
	if logger == nil {
		logger = xlog.Discard()
	}
	return &lockWatcher{
		watcher: w,
		probe:   probe,
		logger:  xlog.WithComponent(logger, "watcher"),
	}, nil
}

// WaitFor blocks until the display's lock file reaches the wanted state.
func (lw *lockWatcher) WaitFor(ctx context.Context, d string, present bool) error {
	path := lw.probe.PathFor(d)

	// The watch is already armed, so a change after this check is not missed.
	if lw.probe.Exists(path) == present {
		return nil
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-lw.watcher.Events:
			if !ok {
				return fmt.Errorf("watcher closed")
			}
			if event.Name != path {
				continue
			}
			// Re-stat rather than trusting the op; create and remove can
			// arrive back to back.
			if lw.probe.Exists(path) == present {
				return nil
			}

		case err, ok := <-lw.watcher.Errors:
			if !ok {
				return fmt.Errorf("watcher closed")
			}
			lw.logger.Warn("lock watcher error", xlog.Error(err))
		}
	}
}

// Events streams lock-file changes until ctx is done. The channel is closed
// when the stream ends.
func (lw *lockWatcher) Events(ctx context.Context) (<-chan Event, error) {
	out := make(chan Event, 16)

	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return

			case event, ok := <-lw.watcher.Events:
				if !ok {
					return
				}
				d, ok := displayOf(event.Name)
				if !ok {
					continue
				}
				var ev Event
				switch {
				case event.Op&fsnotify.Create != 0:
					ev = Event{Display: d, Locked: true}
				case event.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
					ev = Event{Display: d, Locked: false}
				default:
					continue
				}
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}

			case err, ok := <-lw.watcher.Errors:
				if !ok {
					return
				}
				lw.logger.Warn("lock watcher error", xlog.Error(err))
			}
		}
	}()

	return out, nil
}

// Close stops the watcher. It is safe to call more than once.
func (lw *lockWatcher) Close() error {
	var err error
	lw.closeOnce.Do(func() {
		err = lw.watcher.Close()
	})
	return err
}

// displayOf maps a lock-file path back to its display identifier.
func displayOf(path string) (string, bool) {
	base := filepath.Base(path)
	if !strings.HasPrefix(base, ".X") || !strings.HasSuffix(base, "-lock") {
		return "", false
	}
	num := strings.TrimSuffix(strings.TrimPrefix(base, ".X"), "-lock")
	n, err := strconv.Atoi(num)
	if err != nil {
		return "", false
	}
	return display.Format(n), true
}
