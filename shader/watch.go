package shader

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/gogpu/lumen/internal/logging"
)

// Watcher watches one shader source file and keeps its latest contents.
// The directory is watched rather than the file, so editors that replace
// the file by renaming are seen too.
type Watcher struct {
	path    string
	watcher *fsnotify.Watcher
	done    chan struct{}
	wg      sync.WaitGroup

	mu      sync.Mutex
	source  string
	pending bool
	closed  bool
}

// Watch reads path and starts watching it for changes. The initial
// contents are available from Source; Poll reports only later changes.
func Watch(path string) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("shader: watch %s: %w", path, err)
	}
	src, err := os.ReadFile(abs)
	if err != nil {
		return nil, fmt.Errorf("shader: watch: %w", err)
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("shader: watch %s: %w", path, err)
	}
	if err := fw.Add(filepath.Dir(abs)); err != nil {
		_ = fw.Close()
		return nil, fmt.Errorf("shader: watch %s: %w", path, err)
	}
	w := &Watcher{
		path:    abs,
		watcher: fw,
		done:    make(chan struct{}),
		source:  string(src),
	}
	w.wg.Add(1)
	go w.loop()
	return w, nil
}

func (w *Watcher) loop() {
	defer w.wg.Done()
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			w.reload()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logging.Logger().Warn("shader: watch error", "path", w.path, "err", err)
		}
	}
}

func (w *Watcher) reload() {
	src, err := os.ReadFile(w.path)
	if err != nil {
		// A rename-replace briefly leaves no file; the following Create
		// event reloads it.
		if !errors.Is(err, os.ErrNotExist) {
			logging.Logger().Warn("shader: reload failed", "path", w.path, "err", err)
		}
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if string(src) == w.source {
		return
	}
	w.source = string(src)
	w.pending = true
}

// Path returns the absolute path being watched.
func (w *Watcher) Path() string { return w.path }

// Source returns the latest contents read.
func (w *Watcher) Source() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.source
}

// Poll returns the latest contents and true if the file changed since the
// previous Poll. It never blocks.
func (w *Watcher) Poll() (string, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.pending {
		return "", false
	}
	w.pending = false
	return w.source, true
}

// Close stops watching. Calling Close again does nothing.
func (w *Watcher) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	w.mu.Unlock()

	close(w.done)
	err := w.watcher.Close()
	w.wg.Wait()
	return err
}
