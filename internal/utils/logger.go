package utils

import (
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/term"
)

// LogConfig selects the log level and output format.
type LogConfig struct {
	// Level is one of debug, info, warn, error. Default: info
	Level string `yaml:"level" validate:"omitempty,oneof=trace debug info warn error"`

	// Format is json, console or auto. Auto picks console when stderr is a terminal.
	Format string `yaml:"format" validate:"omitempty,oneof=auto json console"`

	Output io.Writer `yaml:"-" json:"-"`
}

// Logger provides leveled logging with verbose mode support on top of zerolog.
type Logger struct {
	mu      sync.RWMutex
	verbose bool
	base    zerolog.Logger
	level   zerolog.Level
}

var (
	globalLogger *Logger
	loggerOnce   sync.Once
)

// GetLogger returns the global logger instance
func GetLogger() *Logger {
	loggerOnce.Do(func() {
		base := newZerolog(LogConfig{})
		globalLogger = &Logger{base: base, level: base.GetLevel()}
	})
	return globalLogger
}

// InitLogging reconfigures the global logger.
func InitLogging(cfg LogConfig) {
	l := GetLogger()
	l.mu.Lock()
	defer l.mu.Unlock()
	l.base = newZerolog(cfg)
	l.level = l.base.GetLevel()
	if l.verbose {
		l.base = l.base.Level(zerolog.DebugLevel)
	}
}

func newZerolog(cfg LogConfig) zerolog.Logger {
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}

	format := strings.ToLower(cfg.Format)
	if format == "" || format == "auto" {
		format = "json"
		if f, ok := out.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
			format = "console"
		}
	}
	if format == "console" {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.Kitchen}
	}

	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}

	return zerolog.New(out).Level(level).With().Timestamp().Logger()
}

// SetVerbose enables or disables verbose logging
func (l *Logger) SetVerbose(verbose bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.verbose = verbose
	if verbose {
		l.base = l.base.Level(zerolog.DebugLevel)
	} else {
		l.base = l.base.Level(l.level)
	}
}

// IsVerbose returns whether verbose logging is enabled
func (l *Logger) IsVerbose() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.verbose
}

// Zerolog returns the underlying structured logger.
func (l *Logger) Zerolog() zerolog.Logger {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.base
}

// Debug logs a debug message (only when verbose is enabled)
func (l *Logger) Debug(format string, args ...interface{}) {
	z := l.Zerolog()
	z.Debug().Msgf(format, args...)
}

// Info logs an informational message
func (l *Logger) Info(format string, args ...interface{}) {
	z := l.Zerolog()
	z.Info().Msgf(format, args...)
}

// Warn logs a warning message
func (l *Logger) Warn(format string, args ...interface{}) {
	z := l.Zerolog()
	z.Warn().Msgf(format, args...)
}

// Error logs an error message
func (l *Logger) Error(format string, args ...interface{}) {
	z := l.Zerolog()
	z.Error().Msgf(format, args...)
}

// Component returns a structured logger tagged with a component name.
func Component(name string) zerolog.Logger {
	return GetLogger().Zerolog().With().Str("component", name).Logger()
}

// Debugf is a convenience function for debug logging
func Debugf(format string, args ...interface{}) {
	GetLogger().Debug(format, args...)
}

// Infof is a convenience function for info logging
func Infof(format string, args ...interface{}) {
	GetLogger().Info(format, args...)
}

// Warnf is a convenience function for warning logging
func Warnf(format string, args ...interface{}) {
	GetLogger().Warn(format, args...)
}

// Errorf is a convenience function for error logging
func Errorf(format string, args ...interface{}) {
	GetLogger().Error(format, args...)
}

// SetVerboseMode is a convenience function to set global verbose mode
func SetVerboseMode(verbose bool) {
	GetLogger().SetVerbose(verbose)
}

// LogOperation logs the start and end of an operation
func LogOperation(operation string, fn func() error) error {
	logger := GetLogger()
	logger.Debug("Starting operation: %s", operation)

	start := time.Now()
	err := fn()

	if err != nil {
		logger.Debug("Operation failed: %s after %s - %v", operation, time.Since(start), err)
	} else {
		logger.Debug("Operation completed: %s in %s", operation, time.Since(start))
	}

	return err
}
