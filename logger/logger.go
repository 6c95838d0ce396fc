package logger

import (
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Logger represents a structured logger
type Logger struct {
	logger zerolog.Logger
}

// Fields represents log fields
type Fields map[string]interface{}

// Default is the default logger instance
var Default *Logger

// Init initializes the logger with the given configuration
func Init() {
	level := getLogLevel()

	zerolog.TimeFieldFormat = time.RFC3339
	zerolog.SetGlobalLevel(level)

	output := zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: time.RFC3339,
	}

	log := zerolog.New(output).With().Timestamp().Logger()

	Default = &Logger{logger: log}

	Default.Info().
		Str("level", level.String()).
		Msg("Logger initialized")
}

// getLogLevel returns the log level from environment variables
func getLogLevel() zerolog.Level {
	levelStr := os.Getenv("LOG_LEVEL")
	if levelStr == "" {
		if os.Getenv("SENTRY_ENVIRONMENT") == "production" {
			return zerolog.InfoLevel
		}
		return zerolog.DebugLevel
	}

	level, err := zerolog.ParseLevel(levelStr)
	if err != nil {
		return zerolog.InfoLevel
	}
	return level
}

// WithFields creates a new logger with fields
func (l *Logger) WithFields(fields Fields) *Logger {
	ctx := l.logger.With()
	for k, v := range fields {
		ctx = ctx.Interface(k, v)
	}
	return &Logger{logger: ctx.Logger()}
}

// WithField creates a new logger with a single field
func (l *Logger) WithField(key string, value interface{}) *Logger {
	return &Logger{logger: l.logger.With().Interface(key, value).Logger()}
}

// Debug returns a debug event
func (l *Logger) Debug() *zerolog.Event {
	return l.logger.Debug()
}

// Info returns an info event
func (l *Logger) Info() *zerolog.Event {
	return l.logger.Info()
}

// Warn returns a warn event
func (l *Logger) Warn() *zerolog.Event {
	return l.logger.Warn()
}

// Error returns an error event
func (l *Logger) Error() *zerolog.Event {
	return l.logger.Error()
}

// Fatal returns a fatal event
func (l *Logger) Fatal() *zerolog.Event {
	return l.logger.Fatal()
}

// Global functions for packages that do not carry a logger reference

// Debug logs a debug message
func Debug(format string, v ...interface{}) {
	get().Debug().Msgf(format, v...)
}

// Info logs an info message
func Info(format string, v ...interface{}) {
	get().Info().Msgf(format, v...)
}

// Warn logs a warning message
func Warn(format string, v ...interface{}) {
	get().Warn().Msgf(format, v...)
}

// Error logs an error message
func Error(format string, v ...interface{}) {
	get().Error().Msgf(format, v...)
}

func get() *Logger {
	if Default == nil {
		Init()
	}
	return Default
}

// ForScheduler creates a logger for the refresh engine
func ForScheduler() *Logger {
	return get().WithField("component", "scheduler")
}

// ForMarketplace creates a logger for a marketplace client
func ForMarketplace(name string) *Logger {
	return get().WithField("marketplace", name)
}

// ForBrowser creates a logger for the browser session
func ForBrowser() *Logger {
	return get().WithField("component", "browser")
}

// ForStore creates a logger for the persistence layer
func ForStore() *Logger {
	return get().WithField("component", "store")
}

// ForNotifier creates a logger for the notifier
func ForNotifier() *Logger {
	return get().WithField("component", "notifier")
}

// ForCache creates a logger for the cooldown cache
func ForCache() *Logger {
	return get().WithField("component", "cache")
}
