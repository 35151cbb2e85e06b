package tui

import (
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// watchSettle is how long a file must stay quiet after a change before it
// is re-ingested. Traces are usually still being appended to.
const watchSettle = 500 * time.Millisecond

// fileWatcher reports, debounced, when one file is written or replaced.
// It watches the parent directory so editors and solvers that rename a new
// file into place are still seen.
type fileWatcher struct {
	w      *fsnotify.Watcher
	path   string
	notify func()
	logger *slog.Logger

	mu    sync.Mutex
	timer *time.Timer
	done  chan struct{}
}

func newFileWatcher(path string, notify func(), logger *slog.Logger) (*fileWatcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := w.Add(filepath.Dir(abs)); err != nil {
		_ = w.Close()
		return nil, err
	}
	fw := &fileWatcher{w: w, path: abs, notify: notify, logger: logger, done: make(chan struct{})}
	go fw.loop()
	return fw, nil
}

func (fw *fileWatcher) loop() {
	defer close(fw.done)
	for {
		select {
		case ev, ok := <-fw.w.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != fw.path {
				continue
			}
			if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) || ev.Has(fsnotify.Rename) {
				fw.logger.Debug("trace changed", "file", fw.path, "op", ev.Op.String())
				fw.kick()
			}
		case err, ok := <-fw.w.Errors:
			if !ok {
				return
			}
			fw.logger.Warn("file watch error", "file", fw.path, "err", err)
		}
	}
}

func (fw *fileWatcher) kick() {
	fw.mu.Lock()
	defer fw.mu.Unlock()
	if fw.timer != nil {
		fw.timer.Stop()
	}
	fw.timer = time.AfterFunc(watchSettle, fw.notify)
}

// Close stops watching and drops any pending notification.
func (fw *fileWatcher) Close() error {
	err := fw.w.Close()
	<-fw.done
	fw.mu.Lock()
	if fw.timer != nil {
		fw.timer.Stop()
	}
	fw.mu.Unlock()
	return err
}
