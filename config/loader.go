package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/penwyp/claudequota/fileio"
	"github.com/penwyp/claudequota/models"
)

// EnvPrefix prefixes every environment override, e.g. CLAUDEQUOTA_DATA_LOG_DIR.
const EnvPrefix = "CLAUDEQUOTA"

// flagKeys maps command-line flags to config keys.
var flagKeys = map[string]string{
	"log-level":      "app.log_level",
	"log-file":       "app.log_file",
	"log-dir":        "data.log_dir",
	"max-files":      "data.max_files",
	"state-dir":      "state.dir",
	"plan":           "plan.name",
	"plan-config":    "plan.config_file",
	"model-config":   "models.config_file",
	"warn-threshold": "report.warn_threshold",
	"interval":       "watch.interval",
	"debounce":       "watch.debounce",
}

// Loader resolves configuration from defaults, a YAML file, the environment
// and command-line flags, in increasing order of precedence.
type Loader struct {
	configFile string
	flags      *pflag.FlagSet
	v          *viper.Viper
}

// NewLoader creates a loader. An empty configFile means ~/.claudequota.yaml
// when it exists. flags may be nil.
func NewLoader(configFile string, flags *pflag.FlagSet) *Loader {
	return &Loader{configFile: configFile, flags: flags, v: viper.New()}
}

// Load reads every source and validates the result.
func (l *Loader) Load() (*Config, error) {
	v := l.v
	setDefaults(v, DefaultConfig())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if err := l.readFile(v); err != nil {
		return nil, err
	}
	if err := l.bindFlags(v); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// ConfigFileUsed returns the file that was read, if any.
func (l *Loader) ConfigFileUsed() string {
	return l.v.ConfigFileUsed()
}

func (l *Loader) readFile(v *viper.Viper) error {
	if l.configFile != "" {
		v.SetConfigFile(fileio.ExpandHome(os.ExpandEnv(l.configFile)))
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("failed to read config file %s: %w", l.configFile, err)
		}
		return nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return nil
	}
	v.AddConfigPath(home)
	v.SetConfigName(strings.TrimSuffix(models.ConfigFileName, ".yaml"))
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}
	return nil
}

func (l *Loader) bindFlags(v *viper.Viper) error {
	if l.flags == nil {
		return nil
	}
	for name, key := range flagKeys {
		f := l.flags.Lookup(name)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return fmt.Errorf("bind flag --%s: %w", name, err)
		}
	}
	return nil
}

// setDefaults registers every key so environment overrides are seen by Unmarshal.
func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("app.log_level", d.App.LogLevel)
	v.SetDefault("app.log_file", d.App.LogFile)

	v.SetDefault("data.log_dir", d.Data.LogDir)
	v.SetDefault("data.max_files", d.Data.MaxFiles)
	v.SetDefault("data.max_line_bytes", d.Data.MaxLineBytes)

	v.SetDefault("state.dir", d.State.Dir)
	v.SetDefault("state.window_file", d.State.WindowFile)
	v.SetDefault("state.calibration_file", d.State.CalibrationFile)

	v.SetDefault("plan.name", d.Plan.Name)
	v.SetDefault("plan.config_file", d.Plan.ConfigFile)
	v.SetDefault("models.config_file", d.Models.ConfigFile)

	v.SetDefault("report.warn_threshold", d.Report.WarnThreshold)

	v.SetDefault("watch.interval", d.Watch.Interval)
	v.SetDefault("watch.debounce", d.Watch.Debounce)
}

// RegisterFlags adds the config flags shared by every command.
func RegisterFlags(flags *pflag.FlagSet) {
	d := DefaultConfig()
	flags.String("log-level", d.App.LogLevel, "log level (debug, info, warn, error)")
	flags.String("log-file", "", "write logs to this file instead of stderr")
	flags.String("log-dir", "", "conversation log directory (default: discovered)")
	flags.Int("max-files", d.Data.MaxFiles, "maximum number of log files to scan")
	flags.String("state-dir", d.State.Dir, "directory holding window and calibration state")
	flags.String("plan", "", "subscription plan (free, pro, max-100, max-200)")
	flags.String("plan-config", "", "plan selection file (default: <state-dir>/usage-config.json)")
	flags.String("model-config", "", "per-model cost config, JSON or YAML (default: <state-dir>/model-calibration.json)")
	flags.Float64("warn-threshold", d.Report.WarnThreshold, "exit with status 1 at or above this percentage")
}
