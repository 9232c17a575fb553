package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	apperrors "github.com/penwyp/claudequota/errors"
	"github.com/penwyp/claudequota/limits"
)

// Validate checks every section and reports all problems at once.
func Validate(cfg *Config) error {
	var errs []string

	if err := validateApp(&cfg.App); err != nil {
		errs = append(errs, fmt.Sprintf("app: %v", err))
	}
	if err := validateData(&cfg.Data); err != nil {
		errs = append(errs, fmt.Sprintf("data: %v", err))
	}
	if err := validateState(&cfg.State); err != nil {
		errs = append(errs, fmt.Sprintf("state: %v", err))
	}
	if cfg.Plan.Name != "" {
		if err := ValidatePlan(cfg.Plan.Name); err != nil {
			errs = append(errs, fmt.Sprintf("plan: %v", err))
		}
	}
	if t := cfg.Report.WarnThreshold; t <= 0 || t > 100 {
		errs = append(errs, "report: warn_threshold: must be in (0, 100]")
	}
	if err := validateWatch(&cfg.Watch); err != nil {
		errs = append(errs, fmt.Sprintf("watch: %v", err))
	}

	if len(errs) > 0 {
		return apperrors.New(apperrors.TypeValidation, "config.validate", strings.Join(errs, "; "))
	}
	return nil
}

func validateApp(app *AppConfig) error {
	var errs []string

	if err := ValidateLogLevel(app.LogLevel); err != nil {
		errs = append(errs, fmt.Sprintf("log_level: %v", err))
	}

	if app.LogFile != "" {
		dir := filepath.Dir(app.LogFile)
		if dir != "." {
			if _, err := os.Stat(dir); os.IsNotExist(err) {
				errs = append(errs, fmt.Sprintf("log_file: directory does not exist: %s", dir))
			}
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func validateData(data *DataConfig) error {
	var errs []string

	if data.MaxFiles < 1 {
		errs = append(errs, "max_files: must be at least 1")
	}
	if data.MaxLineBytes < 1024 {
		errs = append(errs, "max_line_bytes: must be at least 1KB")
	}
	if data.MaxLineBytes > 1<<30 {
		errs = append(errs, "max_line_bytes: must not exceed 1GB")
	}

	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func validateState(state *StateConfig) error {
	var errs []string

	if state.Dir == "" {
		errs = append(errs, "dir: must not be empty")
	}
	if state.WindowFile == "" {
		errs = append(errs, "window_file: must not be empty")
	}
	if state.CalibrationFile == "" {
		errs = append(errs, "calibration_file: must not be empty")
	}
	if state.WindowFile != "" && state.WindowFile == state.CalibrationFile {
		errs = append(errs, "window_file and calibration_file must differ")
	}

	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func validateWatch(w *WatchConfig) error {
	var errs []string

	if w.Interval < time.Second {
		errs = append(errs, "interval: must be at least 1s")
	}
	if w.Debounce < 0 {
		errs = append(errs, "debounce: must be non-negative")
	}
	if w.Debounce > 10*time.Second {
		errs = append(errs, "debounce: must not exceed 10s")
	}

	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

// ValidatePlan validates a subscription plan name or alias.
func ValidatePlan(plan string) error {
	if _, ok := limits.ParsePlan(plan); !ok {
		return fmt.Errorf("invalid plan: %s (valid: %s)", plan, strings.Join(limits.PlanNames(), ", "))
	}
	return nil
}

// ValidateLogLevel validates log level.
func ValidateLogLevel(level string) error {
	validLevels := map[string]bool{
		"debug":   true,
		"info":    true,
		"warn":    true,
		"warning": true,
		"error":   true,
	}

	if !validLevels[strings.ToLower(level)] {
		return fmt.Errorf("invalid log level: %s (valid: debug, info, warn, error)", level)
	}
	return nil
}
