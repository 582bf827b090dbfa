// Package watcher reports when the expansion data file changes on disk, so
// edits made by expanderctl or by hand go live without a restart.
//
// The file's directory is watched rather than the file itself: stores
// replace the file atomically with a rename, which drops a watch on the old
// inode. Bursts of writes are debounced and a change is only reported when
// the content hash differs from the last one seen.
package watcher

import (
	"crypto/sha256"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is how long the file must stay quiet before a change is
// reported.
const DefaultDebounce = 200 * time.Millisecond

// Event reports new content in the watched file.
type Event struct {
	Path      string
	Hash      [32]byte
	Size      int64
	Timestamp time.Time
}

// Watcher monitors one file for content changes.
type Watcher struct {
	fsWatcher *fsnotify.Watcher
	path      string
	debounce  time.Duration
	logger    *slog.Logger

	mu       sync.Mutex
	dirtyAt  time.Time
	lastHash [32]byte

	events chan Event
	errors chan error

	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// New creates a watcher for path. A non-positive debounce selects
// DefaultDebounce.
func New(path string, debounce time.Duration) (*Watcher, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	return &Watcher{
		fsWatcher: fsWatcher,
		path:      absPath,
		debounce:  debounce,
		logger:    slog.Default().With("component", "watcher"),
		events:    make(chan Event, 8),
		errors:    make(chan error, 10),
		done:      make(chan struct{}),
	}, nil
}

// Events returns the channel of change events. It is closed by Stop.
func (w *Watcher) Events() <-chan Event {
	return w.events
}

// Errors returns the channel of errors.
func (w *Watcher) Errors() <-chan error {
	return w.errors
}

// Path returns the watched file.
func (w *Watcher) Path() string {
	return w.path
}

// Start begins watching. The directory must exist; the file need not.
func (w *Watcher) Start() error {
	if err := w.fsWatcher.Add(filepath.Dir(w.path)); err != nil {
		return err
	}

	if hash, _, err := HashFile(w.path); err == nil {
		w.lastHash = hash
	} else if !errors.Is(err, os.ErrNotExist) {
		return err
	}

	w.wg.Add(2)
	go w.eventLoop()
	go w.debounceLoop()

	w.logger.Debug("watching data file", "path", w.path)
	return nil
}

// Stop shuts down the watcher and closes its channels.
func (w *Watcher) Stop() error {
	var err error
	w.stopOnce.Do(func() {
		close(w.done)
		err = w.fsWatcher.Close()
		w.wg.Wait()
		close(w.events)
		close(w.errors)
	})
	return err
}

// eventLoop marks the file dirty on every event that may have changed it.
func (w *Watcher) eventLoop() {
	defer w.wg.Done()

	for {
		select {
		case <-w.done:
			return

		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			w.mu.Lock()
			w.dirtyAt = time.Now()
			w.mu.Unlock()

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			w.sendErr(err)
		}
	}
}

// debounceLoop reports the file once it has been quiet for the debounce
// interval.
func (w *Watcher) debounceLoop() {
	defer w.wg.Done()

	tick := w.debounce / 4
	if tick < 10*time.Millisecond {
		tick = 10 * time.Millisecond
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-w.done:
			return
		case now := <-ticker.C:
			w.checkStable(now)
		}
	}
}

func (w *Watcher) checkStable(now time.Time) {
	w.mu.Lock()
	dirtyAt := w.dirtyAt
	w.mu.Unlock()
	if dirtyAt.IsZero() || now.Sub(dirtyAt) < w.debounce {
		return
	}

	hash, size, err := HashFile(w.path)

	w.mu.Lock()
	if !w.dirtyAt.Equal(dirtyAt) {
		// Modified while hashing; wait for it to settle again.
		w.mu.Unlock()
		return
	}
	w.dirtyAt = time.Time{}
	unchanged := err == nil && hash == w.lastHash
	w.mu.Unlock()

	switch {
	case err != nil:
		if !errors.Is(err, os.ErrNotExist) {
			w.sendErr(err)
		}
		return
	case unchanged:
		return
	}

	select {
	case w.events <- Event{Path: w.path, Hash: hash, Size: size, Timestamp: now}:
		w.mu.Lock()
		w.lastHash = hash
		w.mu.Unlock()
	case <-w.done:
	}
}

func (w *Watcher) sendErr(err error) {
	select {
	case w.errors <- err:
	default:
		w.logger.Warn("watcher error dropped", "error", err)
	}
}

// HashFile computes SHA-256 hash of a file using streaming.
func HashFile(path string) ([32]byte, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return [32]byte{}, 0, err
	}
	defer f.Close()

	h := sha256.New()
	size, err := io.Copy(h, f)
	if err != nil {
		return [32]byte{}, 0, err
	}

	var hash [32]byte
	copy(hash[:], h.Sum(nil))
	return hash, size, nil
}
