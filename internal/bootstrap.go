package internal

import (
	"fmt"

	"github.com/penwyp/claudequota/cache"
	"github.com/penwyp/claudequota/fileio"
	"github.com/penwyp/claudequota/logging"
	"github.com/penwyp/claudequota/orchestrator"
)

// bootstrap initializes all components
func (a *WatchApplication) bootstrap() error {
	if a.config == nil {
		return fmt.Errorf("configuration is nil")
	}

	a.setupCache()
	a.engine = orchestrator.NewEngineFromConfig(a.config, a.eventCache())

	if err := a.setupFileWatcher(); err != nil {
		return fmt.Errorf("failed to setup file watcher: %w", err)
	}

	a.setupMonitor()
	return nil
}

// setupCache opens the parsed-event cache. Watch mode still works without it,
// only slower.
func (a *WatchApplication) setupCache() {
	c, err := cache.NewEventCache(cache.BadgerConfig{LogLevel: a.config.App.LogLevel})
	if err != nil {
		logging.LogWarnf("Running without event cache: %v", err)
		return
	}
	a.cache = c
}

func (a *WatchApplication) eventCache() fileio.EventCache {
	if a.cache == nil {
		return nil
	}
	return a.cache
}

// setupFileWatcher watches the log root. A missing root falls back to
// interval refreshes; the report carries the error in-band.
func (a *WatchApplication) setupFileWatcher() error {
	root, err := fileio.ResolveLogDir(a.config.LogDir())
	if err != nil {
		logging.LogWarnf("Not watching for changes: %v", err)
		return nil
	}

	w, err := fileio.NewWatcher(root, fileio.WatcherConfig{
		BufferSize:   fileio.DefaultWatcherConfig.BufferSize,
		DebounceTime: a.config.Watch.Debounce,
	})
	if err != nil {
		return err
	}
	if err := w.Start(); err != nil {
		return err
	}
	a.watcher = w
	logging.LogInfof("Watching %d directories under %s", len(w.WatchedPaths()), root)
	return nil
}

func (a *WatchApplication) setupMonitor() {
	var changes orchestrator.ChangeSource
	if a.watcher != nil {
		changes = a.watcher
	}
	a.monitor = orchestrator.NewMonitor(a.engine, a.config.Watch.Interval, changes)
	a.monitor.RegisterUpdateCallback(a.printReport)
}
