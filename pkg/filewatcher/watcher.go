// Package filewatcher reports debounced changes of individual files.
package filewatcher

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

const defaultDebounce = 300 * time.Millisecond

// Watcher calls onChange once a watched file has been written and left alone for the
// debounce period. Parent directories are watched, so editors that save by
// rename-and-replace are still seen.
type Watcher struct {
	watcher  *fsnotify.Watcher
	files    map[string]struct{}
	dirs     []string
	logger   *slog.Logger
	onChange func(path string)
	debounce time.Duration

	changesMu sync.Mutex
	changes   map[string]time.Time

	done     chan struct{}
	stopOnce sync.Once
	loopDone chan struct{}
}

// New creates a Watcher for files. onChange receives the cleaned absolute path.
func New(onChange func(path string), files []string, opts ...Option) (*Watcher, error) {
	if onChange == nil {
		return nil, errors.New("filewatcher: onChange must not be nil")
	}
	if len(files) == 0 {
		return nil, errors.New("filewatcher: no files to watch")
	}

	w := &Watcher{
		files:    make(map[string]struct{}, len(files)),
		logger:   slog.Default(),
		onChange: onChange,
		debounce: defaultDebounce,
		changes:  make(map[string]time.Time),
		done:     make(chan struct{}),
		loopDone: make(chan struct{}),
	}
	seenDirs := make(map[string]bool)
	for _, f := range files {
		abs, err := filepath.Abs(f)
		if err != nil {
			return nil, err
		}
		w.files[abs] = struct{}{}
		dir := filepath.Dir(abs)
		if !seenDirs[dir] {
			seenDirs[dir] = true
			w.dirs = append(w.dirs, dir)
		}
	}
	for _, opt := range opts {
		opt(w)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w.watcher = watcher
	return w, nil
}

// Start begins watching. Changes are reported on the watcher's own goroutine.
func (w *Watcher) Start() error {
	for _, dir := range w.dirs {
		w.logger.Info(fmt.Sprintf("Watching directory %s", dir))
		if err := w.watcher.Add(dir); err != nil {
			return err
		}
	}
	go w.watchLoop()
	return nil
}

// Stop stops watching and waits for the loop to exit. It is safe to call more than once.
func (w *Watcher) Stop() error {
	var err error
	w.stopOnce.Do(func() {
		close(w.done)
		err = w.watcher.Close()
	})
	select {
	case <-w.loopDone:
	case <-time.After(time.Second):
	}
	return err
}

func (w *Watcher) watchLoop() {
	defer close(w.loopDone)
	ticker := time.NewTicker(w.debounce / 2)
	defer ticker.Stop()

	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			path := filepath.Clean(event.Name)
			if _, watched := w.files[path]; !watched {
				continue
			}
			w.changesMu.Lock()
			w.changes[path] = time.Now()
			w.changesMu.Unlock()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error(fmt.Sprintf("Watcher error: %v", err))
		case <-ticker.C:
			w.flush()
		}
	}
}

// flush reports files that have been quiet for the debounce period.
func (w *Watcher) flush() {
	now := time.Now()
	var ready []string
	w.changesMu.Lock()
	for file, changed := range w.changes {
		if now.Sub(changed) >= w.debounce {
			ready = append(ready, file)
			delete(w.changes, file)
		}
	}
	w.changesMu.Unlock()

	for _, file := range ready {
		w.logger.Info(fmt.Sprintf("File changed: %s", file))
		w.onChange(file)
	}
}
