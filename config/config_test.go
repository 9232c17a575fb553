package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/penwyp/claudequota/errors"
	"github.com/penwyp/claudequota/limits"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "claudequota.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, Validate(cfg))

	home, err := os.UserHomeDir()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".claude", "usage-window-state.json"), cfg.WindowStatePath())
	assert.Equal(t, filepath.Join(home, ".claude", "usage-calibration.json"), cfg.CalibrationPath())
	assert.Equal(t, filepath.Join(home, ".claude", "usage-config.json"), cfg.PlanConfigPath())
	assert.Equal(t, filepath.Join(home, ".claude", "model-calibration.json"), cfg.ModelConfigPath())
	assert.Equal(t, 80.0, cfg.Report.WarnThreshold)
	assert.Empty(t, cfg.LogDir())
}

func TestStatePathsHonourAbsoluteNames(t *testing.T) {
	cfg := DefaultConfig()
	cfg.State.Dir = "/var/lib/quota"
	cfg.State.CalibrationFile = "/tmp/cal.json"

	assert.Equal(t, "/var/lib/quota/usage-window-state.json", cfg.WindowStatePath())
	assert.Equal(t, "/tmp/cal.json", cfg.CalibrationPath())
}

func TestLoader_FileEnvAndFlags(t *testing.T) {
	path := writeConfig(t, `
app:
  log_level: info
data:
  log_dir: /data/logs
  max_files: 100
report:
  warn_threshold: 70
watch:
  interval: 30s
`)
	t.Setenv("CLAUDEQUOTA_DATA_MAX_FILES", "250")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterFlags(flags)
	require.NoError(t, flags.Parse([]string{"--warn-threshold", "90", "--plan", "max5"}))

	loader := NewLoader(path, flags)
	cfg, err := loader.Load()
	require.NoError(t, err)

	assert.Equal(t, path, loader.ConfigFileUsed())
	assert.Equal(t, "info", cfg.App.LogLevel)
	assert.Equal(t, "/data/logs", cfg.LogDir())
	assert.Equal(t, 250, cfg.Data.MaxFiles, "environment beats file")
	assert.Equal(t, 90.0, cfg.Report.WarnThreshold, "flag beats file")
	assert.Equal(t, 30*time.Second, cfg.Watch.Interval)
	assert.Equal(t, limits.PlanMax100, cfg.ResolvePlan())
}

func TestLoader_MissingExplicitFile(t *testing.T) {
	_, err := NewLoader(filepath.Join(t.TempDir(), "absent.yaml"), nil).Load()
	assert.Error(t, err)
}

func TestLoader_RejectsInvalidValues(t *testing.T) {
	path := writeConfig(t, `
app:
  log_level: loud
report:
  warn_threshold: 0
`)
	_, err := NewLoader(path, nil).Load()
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.TypeValidation))
	assert.Contains(t, err.Error(), "log_level")
	assert.Contains(t, err.Error(), "warn_threshold")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"unknown plan", func(c *Config) { c.Plan.Name = "enterprise" }, "plan"},
		{"no files", func(c *Config) { c.Data.MaxFiles = 0 }, "max_files"},
		{"tiny line cap", func(c *Config) { c.Data.MaxLineBytes = 10 }, "max_line_bytes"},
		{"same state files", func(c *Config) { c.State.CalibrationFile = c.State.WindowFile }, "must differ"},
		{"fast interval", func(c *Config) { c.Watch.Interval = time.Millisecond }, "interval"},
		{"threshold above 100", func(c *Config) { c.Report.WarnThreshold = 101 }, "warn_threshold"},
		{"missing log file dir", func(c *Config) { c.App.LogFile = "/nonexistent/dir/app.log" }, "log_file"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := Validate(cfg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.field)
		})
	}
}

func TestValidateLogLevel(t *testing.T) {
	for _, level := range []string{"debug", "INFO", "warn", "warning", "error"} {
		assert.NoError(t, ValidateLogLevel(level), level)
	}
	assert.Error(t, ValidateLogLevel("trace"))
}

func TestLoadPlan(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name string
		body string
		want limits.PlanType
	}{
		{"max", `{"plan": "max-200"}`, limits.PlanMax200},
		{"alias", `{"plan": "max20"}`, limits.PlanMax200},
		{"unknown", `{"plan": "team"}`, limits.PlanPro},
		{"corrupt", `{plan`, limits.PlanPro},
		{"empty", `{}`, limits.PlanPro},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, tt.name+".json")
			require.NoError(t, os.WriteFile(path, []byte(tt.body), 0o644))
			assert.Equal(t, tt.want, LoadPlan(path))
		})
	}

	assert.Equal(t, limits.PlanPro, LoadPlan(filepath.Join(dir, "missing.json")))
}

func TestResolvePlan_NameWinsOverFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "usage-config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"plan":"free"}`), 0o644))

	cfg := DefaultConfig()
	cfg.Plan.ConfigFile = path
	assert.Equal(t, limits.PlanFree, cfg.ResolvePlan())

	cfg.Plan.Name = "max-200"
	assert.Equal(t, limits.PlanMax200, cfg.ResolvePlan())
}
