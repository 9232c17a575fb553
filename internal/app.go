package internal

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/penwyp/claudequota/cache"
	"github.com/penwyp/claudequota/config"
	"github.com/penwyp/claudequota/fileio"
	"github.com/penwyp/claudequota/logging"
	"github.com/penwyp/claudequota/orchestrator"
	"github.com/penwyp/claudequota/output"
)

// WatchApplication keeps recomputing the usage report and prints one JSON
// line per computation.
type WatchApplication struct {
	config  *config.Config
	out     io.Writer
	cache   *cache.EventCache
	watcher *fileio.Watcher
	engine  *orchestrator.Engine
	monitor *orchestrator.Monitor

	running bool
	mu      sync.Mutex
}

// NewWatchApplication wires the cache, file watcher and monitor for cfg.
func NewWatchApplication(cfg *config.Config, out io.Writer) (*WatchApplication, error) {
	app := &WatchApplication{
		config: cfg,
		out:    out,
	}

	if err := app.bootstrap(); err != nil {
		if shutdownErr := app.shutdown(); shutdownErr != nil {
			logging.LogWarnf("cleanup after failed bootstrap: %v", shutdownErr)
		}
		return nil, fmt.Errorf("bootstrap failed: %w", err)
	}
	return app, nil
}

// Run blocks until ctx is done, then releases every component.
func (a *WatchApplication) Run(ctx context.Context) error {
	a.mu.Lock()
	if a.running {
		a.mu.Unlock()
		return fmt.Errorf("application is already running")
	}
	a.running = true
	a.mu.Unlock()

	logging.LogInfof("Starting watch mode (interval %s)", a.config.Watch.Interval)
	runErr := a.monitor.Run(ctx)

	if err := a.shutdown(); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}

// Monitor exposes the running monitor for callers that need the last report.
func (a *WatchApplication) Monitor() *orchestrator.Monitor {
	return a.monitor
}

func (a *WatchApplication) printReport(rep orchestrator.Report) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := output.WriteJSONLine(a.out, rep); err != nil {
		logging.LogErrorf("Failed to print report: %v", err)
	}
}
