package logging

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger wraps a sugared zap logger with the printf-style surface used across the module.
type Logger struct {
	sugar *zap.SugaredLogger
}

var (
	globalLogger *Logger
	loggerMu     sync.RWMutex
)

// NewLogger builds a console logger at the given level. Output goes to logFile
// when set, otherwise to stderr; stdout is reserved for reports.
func NewLogger(levelStr, logFile string) (*Logger, error) {
	level, err := ParseLevel(levelStr)
	if err != nil {
		return nil, err
	}

	sink := zapcore.Lock(os.Stderr)
	if logFile != "" {
		f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open log file %s: %w", logFile, err)
		}
		sink = zapcore.Lock(f)
	}

	encCfg := zap.NewDevelopmentEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), sink, zap.NewAtomicLevelAt(level))

	l := zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1), zap.AddStacktrace(zapcore.ErrorLevel))
	return &Logger{sugar: l.Sugar()}, nil
}

// NewNop returns a logger that discards everything.
func NewNop() *Logger {
	return &Logger{sugar: zap.NewNop().Sugar()}
}

// ParseLevel accepts debug, info, warn/warning and error. Empty means info.
func ParseLevel(levelStr string) (zapcore.Level, error) {
	s := strings.ToLower(strings.TrimSpace(levelStr))
	if s == "" {
		return zapcore.InfoLevel, nil
	}
	if s == "warning" {
		s = "warn"
	}
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return level, fmt.Errorf("invalid log level %q: %w", levelStr, err)
	}
	return level, nil
}

func (l *Logger) Debugf(format string, args ...interface{}) { l.sugar.Debugf(format, args...) }
func (l *Logger) Infof(format string, args ...interface{})  { l.sugar.Infof(format, args...) }
func (l *Logger) Warnf(format string, args ...interface{})  { l.sugar.Warnf(format, args...) }
func (l *Logger) Errorf(format string, args ...interface{}) { l.sugar.Errorf(format, args...) }

// Sync flushes buffered entries.
func (l *Logger) Sync() error {
	return l.sugar.Sync()
}

// InitGlobalLogger installs the process-wide logger.
func InitGlobalLogger(logLevel, logFile string) error {
	l, err := NewLogger(logLevel, logFile)
	if err != nil {
		return err
	}
	SetGlobalLogger(l)
	return nil
}

// SetGlobalLogger replaces the process-wide logger. Tests use it to install a nop.
func SetGlobalLogger(l *Logger) {
	loggerMu.Lock()
	globalLogger = l
	loggerMu.Unlock()
}

// GetGlobalLogger returns the installed logger, or a nop logger if none is set.
func GetGlobalLogger() *Logger {
	loggerMu.RLock()
	defer loggerMu.RUnlock()
	if globalLogger == nil {
		return NewNop()
	}
	return globalLogger
}

// Sync flushes the global logger.
func Sync() {
	_ = GetGlobalLogger().Sync()
}

func LogDebugf(format string, args ...interface{}) {
	GetGlobalLogger().Debugf(format, args...)
}

func LogInfof(format string, args ...interface{}) {
	GetGlobalLogger().Infof(format, args...)
}

func LogWarnf(format string, args ...interface{}) {
	GetGlobalLogger().Warnf(format, args...)
}

func LogErrorf(format string, args ...interface{}) {
	GetGlobalLogger().Errorf(format, args...)
}
