package models

import "time"

// Window constants
const (
	WindowDuration = 5 * time.Hour
	WindowHours    = 5
)

// Calibration constants
const (
	MaxCalibrationHistory = 10
	MedianMinSamples      = 3
	StatusViewEntries     = 5
)

// Report constants
const (
	DefaultWarnThreshold = 80.0
	ExitCodeWarn         = 1
	ExitCodeFailure      = 2
)

// Scanner limits
const (
	DefaultMaxFiles     = 5000
	DefaultMaxLineBytes = 10 * 1024 * 1024
	InitialLineBuffer   = 64 * 1024
	LogFileExtension    = ".jsonl"
)

// File names under the Claude home directory
const (
	ClaudeDirName        = ".claude"
	WindowStateFileName  = "usage-window-state.json"
	CalibrationFileName  = "usage-calibration.json"
	ModelCalibrationFile = "model-calibration.json"
	PlanConfigFileName   = "usage-config.json"
	ConfigFileName       = ".claudequota.yaml"
)

// Watch mode defaults
const (
	DefaultWatchInterval = 5 * time.Minute
	DefaultWatchDebounce = 500 * time.Millisecond
)

// Time formats
const (
	ReportTimeFormat  = time.RFC3339
	DisplayTimeFormat = "2006-01-02 15:04:05"
)
