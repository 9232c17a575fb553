package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/penwyp/claudequota/fileio"
	"github.com/penwyp/claudequota/logging"
)

// UpdateCallback receives every report the monitor computes.
type UpdateCallback func(Report)

// ChangeSource signals that log files changed. *fileio.Watcher satisfies it.
type ChangeSource interface {
	Events() <-chan fileio.FileEvent
	Errors() <-chan error
}

// Monitor recomputes the report on a fixed interval and whenever the logs
// change. All computations run on the goroutine that calls Run, so window
// state transitions never race.
type Monitor struct {
	engine   *Engine
	interval time.Duration
	changes  ChangeSource
	clock    func() time.Time

	callbacks []UpdateCallback
	running   bool
	last      *Report
	mu        sync.RWMutex
}

// NewMonitor creates a monitor. changes may be nil for interval-only refresh.
func NewMonitor(engine *Engine, interval time.Duration, changes ChangeSource) *Monitor {
	return &Monitor{
		engine:   engine,
		interval: interval,
		changes:  changes,
		clock:    time.Now,
	}
}

// RegisterUpdateCallback registers a callback for new reports.
func (m *Monitor) RegisterUpdateCallback(callback UpdateCallback) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callbacks = append(m.callbacks, callback)
}

// LastReport returns the most recent report, if any.
func (m *Monitor) LastReport() (Report, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.last == nil {
		return Report{}, false
	}
	return *m.last, true
}

// Run computes once, then keeps recomputing until ctx is done.
func (m *Monitor) Run(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return fmt.Errorf("monitor already running")
	}
	m.running = true
	m.mu.Unlock()
	defer func() {
		m.mu.Lock()
		m.running = false
		m.mu.Unlock()
	}()

	m.refresh("startup")

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	var events <-chan fileio.FileEvent
	var errs <-chan error
	if m.changes != nil {
		events = m.changes.Events()
		errs = m.changes.Errors()
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			m.refresh("interval")
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			m.refresh(ev.Path)
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			logging.LogWarnf("watch error: %v", err)
		}
	}
}

func (m *Monitor) refresh(reason string) {
	start := time.Now()
	rep := m.engine.Compute(m.clock())
	logging.LogDebugf("refresh (%s) completed in %.3fs", reason, time.Since(start).Seconds())

	m.mu.Lock()
	m.last = &rep
	callbacks := make([]UpdateCallback, len(m.callbacks))
	copy(callbacks, m.callbacks)
	m.mu.Unlock()

	for _, callback := range callbacks {
		func() {
			defer func() {
				if r := recover(); r != nil {
					logging.LogErrorf("Callback panic: %v", r)
				}
			}()
			callback(rep)
		}()
	}
}
