package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/roach88/kllcore/internal/ir"
)

// DefaultDebounce is how long the watcher waits after the last file event
// before reloading.
const DefaultDebounce = 100 * time.Millisecond

// TableLoader turns a tables path into a table set.
type TableLoader func(path string) (*ir.TableSet, error)

// TableWatcher watches a tables file or directory and reloads it on change.
//
// A directory is reloaded when any .cue or .json file in it changes; a file
// only when that file changes. Reload failures are reported on Errors and
// the callbacks are not invoked, so the previous tables stay live.
type TableWatcher struct {
	path     string
	load     TableLoader
	debounce time.Duration

	mu       sync.Mutex
	onChange []func(*ir.TableSet)

	watcher *fsnotify.Watcher
	ctx     context.Context
	cancel  context.CancelFunc
	errChan chan error
	done    chan struct{}
}

// NewTableWatcher creates a watcher for path. Call Start to begin watching.
func NewTableWatcher(path string, load TableLoader) *TableWatcher {
	ctx, cancel := context.WithCancel(context.Background())
	return &TableWatcher{
		path:     path,
		load:     load,
		debounce: DefaultDebounce,
		ctx:      ctx,
		cancel:   cancel,
		errChan:  make(chan error, 1),
		done:     make(chan struct{}),
	}
}

// SetDebounce overrides the debounce delay. Must be called before Start.
func (w *TableWatcher) SetDebounce(d time.Duration) {
	w.debounce = d
}

// OnChange registers a callback invoked with every successfully loaded table set.
func (w *TableWatcher) OnChange(cb func(*ir.TableSet)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onChange = append(w.onChange, cb)
}

// Errors returns a channel for load and watch errors.
// Errors are dropped when nobody is reading.
func (w *TableWatcher) Errors() <-chan error {
	return w.errChan
}

// Start begins watching.
func (w *TableWatcher) Start() error {
	info, err := os.Stat(w.path)
	if err != nil {
		return fmt.Errorf("stat tables path: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}

	dir := w.path
	if !info.IsDir() {
		dir = filepath.Dir(w.path)
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return fmt.Errorf("watch directory: %w", err)
	}
	w.watcher = watcher

	go w.watchLoop(info.IsDir())
	return nil
}

// Close stops the watcher and waits for the watch loop to exit.
func (w *TableWatcher) Close() error {
	w.cancel()
	if w.watcher == nil {
		return nil
	}
	err := w.watcher.Close()
	<-w.done
	return err
}

func (w *TableWatcher) relevant(name string, isDir bool) bool {
	if isDir {
		ext := filepath.Ext(name)
		return ext == ".cue" || ext == ".json"
	}
	return filepath.Base(name) == filepath.Base(w.path)
}

func (w *TableWatcher) watchLoop(isDir bool) {
	defer close(w.done)

	var debounceTimer *time.Timer
	defer func() {
		if debounceTimer != nil {
			debounceTimer.Stop()
		}
	}()

	for {
		select {
		case <-w.ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !w.relevant(event.Name, isDir) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
				continue
			}

			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.AfterFunc(w.debounce, w.reload)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.report(err)
		}
	}
}

func (w *TableWatcher) reload() {
	if w.ctx.Err() != nil {
		return
	}

	ts, err := w.load(w.path)
	if err != nil {
		w.report(fmt.Errorf("reload tables: %w", err))
		return
	}
	slog.Info("tables reloaded", "path", w.path, "name", ts.Name)

	w.mu.Lock()
	callbacks := append([]func(*ir.TableSet){}, w.onChange...)
	w.mu.Unlock()

	for _, cb := range callbacks {
		cb(ts)
	}
}

func (w *TableWatcher) report(err error) {
	slog.Warn("table watcher error", "path", w.path, "error", err)
	select {
	case w.errChan <- err:
	default:
	}
}
