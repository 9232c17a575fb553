package sessions

import (
	"os"
	"time"

	"github.com/bytedance/sonic"

	apperrors "github.com/penwyp/claudequota/errors"
	"github.com/penwyp/claudequota/fileio"
	"github.com/penwyp/claudequota/logging"
)

// Phase is the lifecycle stage of the persisted window.
type Phase int

const (
	PhaseUninitialized Phase = iota
	PhaseActive
	PhaseExpired
)

func (p Phase) String() string {
	switch p {
	case PhaseActive:
		return "active"
	case PhaseExpired:
		return "expired"
	default:
		return "uninitialized"
	}
}

// State is the persisted window record. A set ResetTimestamp means the last
// window expired and no event has opened the next one yet.
type State struct {
	WindowStart           *time.Time `json:"windowStart"`
	FirstMessageTimestamp *time.Time `json:"firstMessageTimestamp"`
	ResetTimestamp        *time.Time `json:"resetTimestamp"`
}

// Phase derives the lifecycle stage from which fields are set.
func (s State) Phase() Phase {
	switch {
	case s.WindowStart != nil && !s.WindowStart.IsZero():
		return PhaseActive
	case s.ResetTimestamp != nil && !s.ResetTimestamp.IsZero():
		return PhaseExpired
	default:
		return PhaseUninitialized
	}
}

// Equal compares two states by instant.
func (s State) Equal(o State) bool {
	return timePtrEqual(s.WindowStart, o.WindowStart) &&
		timePtrEqual(s.FirstMessageTimestamp, o.FirstMessageTimestamp) &&
		timePtrEqual(s.ResetTimestamp, o.ResetTimestamp)
}

func timePtrEqual(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}

func timePtr(t time.Time) *time.Time {
	u := t.UTC()
	return &u
}

// StateStore reads and writes the window state file.
type StateStore struct {
	path string
}

func NewStateStore(path string) *StateStore {
	return &StateStore{path: path}
}

func (s *StateStore) Path() string {
	return s.path
}

// Load returns the persisted state. A missing or unreadable file yields the
// zero state; corruption is logged, never returned.
func (s *StateStore) Load() State {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			logging.LogWarnf("window state %s unreadable, starting fresh: %v", s.path, err)
		}
		return State{}
	}

	var st State
	if err := sonic.Unmarshal(data, &st); err != nil {
		logging.LogWarnf("%v", apperrors.Wrap(apperrors.TypeStateCorrupt, "load window state", s.path, err))
		return State{}
	}
	return st
}

// Save writes st atomically through a temp file and rename.
func (s *StateStore) Save(st State) error {
	data, err := sonic.ConfigStd.MarshalIndent(st, "", "  ")
	if err != nil {
		return apperrors.Wrap(apperrors.TypeUnexpected, "encode window state", s.path, err)
	}
	return fileio.WriteFileAtomic(s.path, data)
}
