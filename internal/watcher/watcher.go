// Package watcher watches a layers directory with debouncing so a collection
// can be regenerated after its assets change.
package watcher

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/zjrosen/layerforge/internal/log"
)

// Watcher monitors a layers directory and its slot subdirectories.
type Watcher struct {
	fsWatcher *fsnotify.Watcher
	root      string
	debounce  time.Duration
	onChange  chan struct{}
	done      chan struct{}
}

// Config holds watcher configuration options.
type Config struct {
	LayersDir   string
	DebounceDur time.Duration
}

// DefaultConfig returns sensible defaults for the watcher.
func DefaultConfig(layersDir string) Config {
	return Config{
		LayersDir:   layersDir,
		DebounceDur: 1 * time.Second,
	}
}

// New creates a new layers watcher.
func New(cfg Config) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating fsnotify watcher: %w", err)
	}

	return &Watcher{
		fsWatcher: fsw,
		root:      cfg.LayersDir,
		debounce:  cfg.DebounceDur,
		onChange:  make(chan struct{}, 1),
		done:      make(chan struct{}),
	}, nil
}

// Start begins watching the layers directory and every slot directory in it.
// Returns a channel that receives a signal when any asset changes.
func (w *Watcher) Start() (<-chan struct{}, error) {
	if err := w.fsWatcher.Add(w.root); err != nil {
		return nil, fmt.Errorf("watching directory %s: %w", w.root, err)
	}
	entries, err := os.ReadDir(w.root)
	if err != nil {
		return nil, fmt.Errorf("reading directory %s: %w", w.root, err)
	}
	for _, e := range entries {
		if e.IsDir() && !isHidden(e.Name()) {
			dir := filepath.Join(w.root, e.Name())
			if err := w.fsWatcher.Add(dir); err != nil {
				return nil, fmt.Errorf("watching directory %s: %w", dir, err)
			}
		}
	}

	go w.loop()

	return w.onChange, nil
}

// Stop terminates the watcher and releases resources.
func (w *Watcher) Stop() error {
	close(w.done)
	return w.fsWatcher.Close()
}

// loop processes file system events with debouncing.
func (w *Watcher) loop() {
	var (
		timer   *time.Timer
		pending bool
	)

	for {
		select {
		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}

			if !w.isRelevantEvent(event) {
				continue
			}
			w.trackNewSlot(event)

			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(w.debounce)
			}
			pending = true

		case <-func() <-chan time.Time {
			if timer != nil {
				return timer.C
			}
			return nil
		}():
			if pending {
				// Drop if a signal is already queued.
				select {
				case w.onChange <- struct{}{}:
				default:
				}
				pending = false
			}

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			log.Warn(log.CatWatch, "Watcher error", "error", err)

		case <-w.done:
			if timer != nil {
				timer.Stop()
			}
			return
		}
	}
}

// trackNewSlot starts watching a slot directory created after Start.
func (w *Watcher) trackNewSlot(event fsnotify.Event) {
	if !event.Has(fsnotify.Create) || filepath.Dir(event.Name) != filepath.Clean(w.root) {
		return
	}
	info, err := os.Stat(event.Name)
	if err != nil || !info.IsDir() {
		return
	}
	if err := w.fsWatcher.Add(event.Name); err != nil {
		log.Warn(log.CatWatch, "Failed to watch new layer directory", "dir", event.Name, "error", err)
		return
	}
	log.Debug(log.CatWatch, "Watching new layer directory", "dir", event.Name)
}

// isRelevantEvent reports whether the event changes the layer set. Chmod and
// hidden files are ignored.
func (w *Watcher) isRelevantEvent(event fsnotify.Event) bool {
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
		return false
	}
	return !isHidden(filepath.Base(event.Name))
}

func isHidden(name string) bool {
	return strings.HasPrefix(name, ".")
}
