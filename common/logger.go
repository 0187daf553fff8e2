// Package common provides the shared logging setup and the error taxonomy
// used across the receipt engine. All packages log through a configured
// logrus instance; failures are reported as one structured line carrying
// the operation name, the object key where applicable, and the error kind.
package common

import (
	"time"

	"github.com/sirupsen/logrus"
)

// Logger is the process-wide default logger. Services replace its
// configuration at startup via ConfigureLogger; tests use it as-is.
var Logger = logrus.New()

// LogLevel represents standard logging levels.
type LogLevel string

const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// LoggerConfig contains configuration for creating a logger.
type LoggerConfig struct {
	Level      LogLevel // Minimum log level
	Format     string   // "json" or "text"
	Service    string   // Service name added to every entry
	TimeFormat string   // Timestamp format
}

// DefaultLoggerConfig returns a logger config with sensible defaults.
func DefaultLoggerConfig() LoggerConfig {
	return LoggerConfig{
		Level:      LogLevelInfo,
		Format:     "text",
		TimeFormat: time.RFC3339,
	}
}

// NewLogger creates a new configured logger instance.
func NewLogger(config LoggerConfig) *logrus.Logger {
	logger := logrus.New()
	applyConfig(logger, config)
	return logger
}

// ConfigureLogger applies config to the shared Logger and returns it.
func ConfigureLogger(config LoggerConfig) *logrus.Logger {
	applyConfig(Logger, config)
	return Logger
}

func applyConfig(logger *logrus.Logger, config LoggerConfig) {
	switch config.Level {
	case LogLevelDebug:
		logger.SetLevel(logrus.DebugLevel)
	case LogLevelInfo:
		logger.SetLevel(logrus.InfoLevel)
	case LogLevelWarn:
		logger.SetLevel(logrus.WarnLevel)
	case LogLevelError:
		logger.SetLevel(logrus.ErrorLevel)
	default:
		logger.SetLevel(logrus.InfoLevel)
	}

	timeFormat := config.TimeFormat
	if timeFormat == "" {
		timeFormat = time.RFC3339
	}

	if config.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: timeFormat,
		})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{
			TimestampFormat: timeFormat,
			FullTimestamp:   true,
		})
	}
}

// ServiceLogger returns an entry with the service field attached.
func ServiceLogger(logger *logrus.Logger, service string) *logrus.Entry {
	if logger == nil {
		logger = Logger
	}
	return logger.WithField("service", service)
}
