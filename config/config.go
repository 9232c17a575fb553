package config

import (
	"path/filepath"
	"time"

	"github.com/penwyp/claudequota/fileio"
	"github.com/penwyp/claudequota/models"
)

// Config holds all runtime settings.
type Config struct {
	App    AppConfig    `mapstructure:"app" yaml:"app"`
	Data   DataConfig   `mapstructure:"data" yaml:"data"`
	State  StateConfig  `mapstructure:"state" yaml:"state"`
	Plan   PlanConfig   `mapstructure:"plan" yaml:"plan"`
	Models ModelsConfig `mapstructure:"models" yaml:"models"`
	Report ReportConfig `mapstructure:"report" yaml:"report"`
	Watch  WatchConfig  `mapstructure:"watch" yaml:"watch"`
}

// AppConfig controls logging.
type AppConfig struct {
	LogLevel string `mapstructure:"log_level" yaml:"log_level"`
	LogFile  string `mapstructure:"log_file" yaml:"log_file"`
}

// DataConfig locates and bounds the conversation logs.
type DataConfig struct {
	// LogDir overrides discovery of the log root when set.
	LogDir       string `mapstructure:"log_dir" yaml:"log_dir"`
	MaxFiles     int    `mapstructure:"max_files" yaml:"max_files"`
	MaxLineBytes int    `mapstructure:"max_line_bytes" yaml:"max_line_bytes"`
}

// StateConfig names the two persisted state files.
type StateConfig struct {
	Dir             string `mapstructure:"dir" yaml:"dir"`
	WindowFile      string `mapstructure:"window_file" yaml:"window_file"`
	CalibrationFile string `mapstructure:"calibration_file" yaml:"calibration_file"`
}

// PlanConfig selects the subscription plan. Name wins over ConfigFile.
type PlanConfig struct {
	Name       string `mapstructure:"name" yaml:"name"`
	ConfigFile string `mapstructure:"config_file" yaml:"config_file"`
}

type ModelsConfig struct {
	ConfigFile string `mapstructure:"config_file" yaml:"config_file"`
}

type ReportConfig struct {
	WarnThreshold float64 `mapstructure:"warn_threshold" yaml:"warn_threshold"`
}

type WatchConfig struct {
	Interval time.Duration `mapstructure:"interval" yaml:"interval"`
	Debounce time.Duration `mapstructure:"debounce" yaml:"debounce"`
}

// DefaultConfig returns the built-in settings.
func DefaultConfig() *Config {
	return &Config{
		App: AppConfig{
			LogLevel: "warn",
		},
		Data: DataConfig{
			MaxFiles:     models.DefaultMaxFiles,
			MaxLineBytes: models.DefaultMaxLineBytes,
		},
		State: StateConfig{
			Dir:             filepath.Join("~", models.ClaudeDirName),
			WindowFile:      models.WindowStateFileName,
			CalibrationFile: models.CalibrationFileName,
		},
		Report: ReportConfig{
			WarnThreshold: models.DefaultWarnThreshold,
		},
		Watch: WatchConfig{
			Interval: models.DefaultWatchInterval,
			Debounce: models.DefaultWatchDebounce,
		},
	}
}

// WindowStatePath is the absolute path of the window state file.
func (c *Config) WindowStatePath() string {
	return c.statePath(c.State.WindowFile)
}

// CalibrationPath is the absolute path of the calibration history file.
func (c *Config) CalibrationPath() string {
	return c.statePath(c.State.CalibrationFile)
}

// PlanConfigPath is the plan selection file, defaulting to the state dir.
func (c *Config) PlanConfigPath() string {
	if c.Plan.ConfigFile != "" {
		return fileio.ExpandHome(c.Plan.ConfigFile)
	}
	return c.statePath(models.PlanConfigFileName)
}

// ModelConfigPath is the per-model cost config, defaulting to the state dir.
func (c *Config) ModelConfigPath() string {
	if c.Models.ConfigFile != "" {
		return fileio.ExpandHome(c.Models.ConfigFile)
	}
	return c.statePath(models.ModelCalibrationFile)
}

// LogDir is the configured log root with ~ expanded, or "" for discovery.
func (c *Config) LogDir() string {
	return fileio.ExpandHome(c.Data.LogDir)
}

func (c *Config) statePath(name string) string {
	name = fileio.ExpandHome(name)
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(fileio.ExpandHome(c.State.Dir), name)
}
