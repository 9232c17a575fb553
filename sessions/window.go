package sessions

import (
	"time"

	"github.com/penwyp/claudequota/models"
)

// Window is the current accounting period.
type Window struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// NewWindow builds the window that opens at start.
func NewWindow(start time.Time) Window {
	return Window{Start: start, End: WindowEnd(start)}
}

// Contains reports whether t falls in [Start, End).
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}

// TimeUntilReset returns the time left before End, never negative.
func (w Window) TimeUntilReset(now time.Time) time.Duration {
	remaining := w.End.Sub(now)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// FloorToHour truncates t to the start of its hour.
func FloorToHour(t time.Time) time.Time {
	return t.Truncate(time.Hour)
}

// WindowEnd returns the end of the window that opened at start. The end is
// measured from the hour containing start, not from start itself.
func WindowEnd(start time.Time) time.Time {
	return FloorToHour(start).Add(models.WindowDuration)
}

// ShouldReset reports whether a new window is due: no window has been
// opened yet, or a full window length has passed since its hour-floored start.
func ShouldReset(start *time.Time, now time.Time) bool {
	if start == nil || start.IsZero() {
		return true
	}
	return now.Sub(FloorToHour(*start)) >= models.WindowDuration
}
