package internal

import (
	"errors"
	"fmt"

	"github.com/penwyp/claudequota/logging"
)

// shutdown stops components in reverse order of initialization.
func (a *WatchApplication) shutdown() error {
	a.mu.Lock()
	a.running = false
	a.mu.Unlock()

	shutdownSteps := []struct {
		name string
		fn   func() error
	}{
		{"File Watcher", a.stopFileWatcher},
		{"Cache", a.stopCache},
		{"Logger", a.syncLogger},
	}

	var errs []error
	for _, step := range shutdownSteps {
		if err := step.fn(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", step.name, err))
			logging.LogErrorf("Failed to stop %s: %v", step.name, err)
		} else {
			logging.LogDebugf("%s stopped", step.name)
		}
	}
	return errors.Join(errs...)
}

func (a *WatchApplication) stopFileWatcher() error {
	if a.watcher == nil {
		return nil
	}
	w := a.watcher
	a.watcher = nil
	return w.Close()
}

func (a *WatchApplication) stopCache() error {
	if a.cache == nil {
		return nil
	}
	c := a.cache
	a.cache = nil
	return c.Close()
}

// syncLogger flushes buffered log output. Syncing stderr fails on some
// platforms, which is not worth reporting.
func (a *WatchApplication) syncLogger() error {
	logging.Sync()
	return nil
}
