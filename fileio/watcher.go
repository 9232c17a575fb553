package fileio

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/penwyp/claudequota/logging"
	"github.com/penwyp/claudequota/models"
)

// EventType represents the type of file system event
type EventType int

const (
	EventCreate EventType = iota
	EventModify
	EventDelete
)

func (e EventType) String() string {
	switch e {
	case EventCreate:
		return "CREATE"
	case EventModify:
		return "MODIFY"
	case EventDelete:
		return "DELETE"
	default:
		return "UNKNOWN"
	}
}

// FileEvent is a debounced change to a conversation log.
type FileEvent struct {
	Path      string
	Type      EventType
	Timestamp time.Time
}

// WatcherConfig holds configuration for the file watcher
type WatcherConfig struct {
	BufferSize   int
	DebounceTime time.Duration
}

var DefaultWatcherConfig = WatcherConfig{
	BufferSize:   100,
	DebounceTime: models.DefaultWatchDebounce,
}

// Watcher reports changes to log files anywhere under a root directory.
// Sub-directories created after Start are picked up automatically.
type Watcher struct {
	watcher  *fsnotify.Watcher
	root     string
	events   chan FileEvent
	errors   chan error
	stopCh   chan struct{}
	doneCh   chan struct{}
	mu       sync.Mutex
	running  bool
	debounce time.Duration
	pending  map[string]*time.Timer
}

func NewWatcher(root string, config WatcherConfig) (*Watcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	if config.BufferSize <= 0 {
		config.BufferSize = DefaultWatcherConfig.BufferSize
	}

	return &Watcher{
		watcher:  fsWatcher,
		root:     root,
		events:   make(chan FileEvent, config.BufferSize),
		errors:   make(chan error, config.BufferSize),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
		debounce: config.DebounceTime,
		pending:  make(map[string]*time.Timer),
	}, nil
}

// Start adds the root and all of its sub-directories and begins delivering events.
func (w *Watcher) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return fmt.Errorf("watcher is already running")
	}
	if err := w.addTree(w.root); err != nil {
		w.watcher.Close()
		return err
	}
	w.running = true
	go w.processEvents()
	return nil
}

// Close stops the watcher, cancels pending debounce timers and closes the channels.
func (w *Watcher) Close() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return w.watcher.Close()
	}
	w.running = false
	close(w.stopCh)
	for path, timer := range w.pending {
		timer.Stop()
		delete(w.pending, path)
	}
	w.mu.Unlock()

	err := w.watcher.Close()
	<-w.doneCh
	close(w.events)
	close(w.errors)
	return err
}

func (w *Watcher) Events() <-chan FileEvent {
	return w.events
}

func (w *Watcher) Errors() <-chan error {
	return w.errors
}

// WatchedPaths returns the directories currently registered with fsnotify.
func (w *Watcher) WatchedPaths() []string {
	return w.watcher.WatchList()
}

func (w *Watcher) addTree(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return fmt.Errorf("failed to watch path %s: %w", path, err)
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if err := w.watcher.Add(path); err != nil {
			if path == root {
				return fmt.Errorf("failed to watch path %s: %w", path, err)
			}
			logging.LogWarnf("watch %s: %v", path, err)
		}
		return nil
	})
}

func (w *Watcher) processEvents() {
	defer close(w.doneCh)

	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			select {
			case w.errors <- err:
			default:
				// Drop error if channel is full
			}

		case <-w.stopCh:
			return
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if event.Op&fsnotify.Create == fsnotify.Create {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			w.mu.Lock()
			if w.running {
				if err := w.addTree(event.Name); err != nil {
					logging.LogWarnf("watch new directory: %v", err)
				}
			}
			w.mu.Unlock()
			return
		}
	}
	if !strings.EqualFold(filepath.Ext(event.Name), models.LogFileExtension) {
		return
	}

	if w.debounce <= 0 {
		w.sendEvent(event)
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.running {
		return
	}
	if timer, exists := w.pending[event.Name]; exists {
		timer.Stop()
	}
	w.pending[event.Name] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		defer w.mu.Unlock()
		delete(w.pending, event.Name)
		if w.running {
			w.sendEvent(event)
		}
	})
}

func (w *Watcher) sendEvent(event fsnotify.Event) {
	var eventType EventType
	switch {
	case event.Op&fsnotify.Create == fsnotify.Create:
		eventType = EventCreate
	case event.Op&fsnotify.Write == fsnotify.Write:
		eventType = EventModify
	case event.Op&fsnotify.Remove == fsnotify.Remove, event.Op&fsnotify.Rename == fsnotify.Rename:
		eventType = EventDelete
	default:
		return
	}

	select {
	case w.events <- FileEvent{Path: event.Name, Type: eventType, Timestamp: time.Now()}:
	case <-w.stopCh:
	default:
		// Drop event if channel is full
	}
}
