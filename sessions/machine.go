package sessions

import (
	"iter"
	"sort"
	"time"

	"github.com/penwyp/claudequota/models"
)

// ScanFunc yields events from files modified at or after since.
type ScanFunc func(since time.Time) iter.Seq[models.Event]

// Resolution is the outcome of one state machine step.
type Resolution struct {
	Phase   Phase
	Window  *Window
	ResetAt *time.Time
	// Events holds the window's user messages and usage-bearing responses,
	// ordered by timestamp with file order kept for ties.
	Events []models.Event
	// State is what should be persisted. Changed is false when it equals the input.
	State   State
	Changed bool
}

// Machine decides the current window from persisted state and the event logs.
type Machine struct {
	scan ScanFunc
}

func NewMachine(scan ScanFunc) *Machine {
	return &Machine{scan: scan}
}

// Resolve advances state to now. It performs no writes; callers persist
// Resolution.State when Changed is set.
func (m *Machine) Resolve(state State, now time.Time) Resolution {
	var res Resolution
	switch state.Phase() {
	case PhaseActive:
		res = m.resolveActive(state, now)
	case PhaseExpired:
		res = m.resolveExpired(*state.ResetTimestamp, now)
	default:
		res = m.resolveUninitialized(now)
	}
	res.Changed = !res.State.Equal(state)
	return res
}

func (m *Machine) resolveUninitialized(now time.Time) Resolution {
	since := now.Add(-models.WindowDuration)

	var latest *models.Event
	for ev := range m.scan(since) {
		if !ev.Qualifies() || ev.Timestamp.Before(since) || ev.Timestamp.After(now) {
			continue
		}
		if latest == nil || ev.Timestamp.After(latest.Timestamp) {
			e := ev
			latest = &e
		}
	}

	if latest == nil {
		// Nothing recent: open an empty window at now and wait for activity.
		w := NewWindow(now)
		return Resolution{
			Phase:  PhaseActive,
			Window: &w,
			State:  State{WindowStart: timePtr(now)},
		}
	}

	w := NewWindow(latest.Timestamp)
	return Resolution{
		Phase:  PhaseActive,
		Window: &w,
		Events: m.collect(w),
		State:  State{WindowStart: timePtr(w.Start), FirstMessageTimestamp: timePtr(latest.Timestamp)},
	}
}

func (m *Machine) resolveActive(state State, now time.Time) Resolution {
	if ShouldReset(state.WindowStart, now) {
		return expired(now)
	}

	w := NewWindow(*state.WindowStart)
	events := m.collect(w)

	next := state
	if next.FirstMessageTimestamp == nil {
		if first := firstQualifying(events); first != nil {
			next.FirstMessageTimestamp = timePtr(*first)
		}
	}
	return Resolution{Phase: PhaseActive, Window: &w, Events: events, State: next}
}

// resolveExpired opens the next window at the earliest qualifying event at or
// after the reset marker. Windows that have already run out by now are
// skipped so the marker catches up with the logs.
func (m *Machine) resolveExpired(marker, now time.Time) Resolution {
	cursor := marker
	for {
		start := m.earliestQualifying(cursor, now)
		if start == nil {
			return expired(cursor)
		}
		w := NewWindow(*start)
		if ShouldReset(start, now) {
			cursor = w.End
			continue
		}
		return Resolution{
			Phase:  PhaseActive,
			Window: &w,
			Events: m.collect(w),
			State:  State{WindowStart: timePtr(w.Start), FirstMessageTimestamp: timePtr(*start)},
		}
	}
}

func expired(marker time.Time) Resolution {
	at := timePtr(marker)
	return Resolution{
		Phase:   PhaseExpired,
		ResetAt: at,
		State:   State{ResetTimestamp: at},
	}
}

func (m *Machine) earliestQualifying(from, now time.Time) *time.Time {
	var earliest *time.Time
	for ev := range m.scan(from) {
		if !ev.Qualifies() || ev.Timestamp.Before(from) || ev.Timestamp.After(now) {
			continue
		}
		if earliest == nil || ev.Timestamp.Before(*earliest) {
			ts := ev.Timestamp
			earliest = &ts
		}
	}
	return earliest
}

// collect gathers the window's events in timestamp order.
func (m *Machine) collect(w Window) []models.Event {
	var events []models.Event
	for ev := range m.scan(w.Start) {
		if !w.Contains(ev.Timestamp) {
			continue
		}
		if ev.Qualifies() {
			events = append(events, ev)
		}
	}
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Timestamp.Before(events[j].Timestamp)
	})
	return events
}

func firstQualifying(events []models.Event) *time.Time {
	for _, ev := range events {
		if ev.Qualifies() {
			ts := ev.Timestamp
			return &ts
		}
	}
	return nil
}
