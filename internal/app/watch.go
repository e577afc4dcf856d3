package app

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// DefaultDebounce groups bursts of file events into one reload.
const DefaultDebounce = 500 * time.Millisecond

type watcher struct {
	fs     *fsnotify.Watcher
	cancel context.CancelFunc
	done   chan struct{}
}

// Watch reloads the analyzer when CSV files in the data directory change.
// It returns once the watcher is installed; the loop runs until ctx ends or
// StopWatch is called. onReload, when non-nil, receives each reload outcome.
func (a *App) Watch(ctx context.Context, debounce time.Duration, onReload func(error)) error {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	a.watchMu.Lock()
	defer a.watchMu.Unlock()
	if a.watch != nil {
		return nil
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	if err := fw.Add(a.cfg.DataDir); err != nil {
		fw.Close()
		return fmt.Errorf("watch %s: %w", a.cfg.DataDir, err)
	}
	ctx, cancel := context.WithCancel(ctx)
	w := &watcher{fs: fw, cancel: cancel, done: make(chan struct{})}
	a.watch = w
	a.logger.Info("watching data dir", zap.String("dir", a.cfg.DataDir))
	go a.watchLoop(ctx, w, debounce, onReload)
	return nil
}

// StopWatch stops a running watcher and waits for its loop to exit.
func (a *App) StopWatch() {
	a.watchMu.Lock()
	w := a.watch
	a.watch = nil
	a.watchMu.Unlock()
	if w == nil {
		return
	}
	w.cancel()
	<-w.done
}

func (a *App) watchLoop(ctx context.Context, w *watcher, debounce time.Duration, onReload func(error)) {
	defer close(w.done)
	defer w.fs.Close()

	timer := time.NewTimer(debounce)
	timer.Stop()
	defer timer.Stop()
	pending := false

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.fs.Events:
			if !ok {
				return
			}
			if !isDataEvent(ev) {
				continue
			}
			a.logger.Debug("data file changed", zap.String("path", ev.Name), zap.String("op", ev.Op.String()))
			pending = true
			timer.Reset(debounce)
		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			a.logger.Warn("watcher error", zap.Error(err))
		case <-timer.C:
			if !pending {
				continue
			}
			pending = false
			err := a.Reload(ctx)
			if err != nil {
				a.logger.Warn("reload failed", zap.Error(err))
			}
			if onReload != nil {
				onReload(err)
			}
		}
	}
}

func isDataEvent(ev fsnotify.Event) bool {
	if !strings.EqualFold(filepath.Ext(ev.Name), ".csv") {
		return false
	}
	return ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) != 0
}
