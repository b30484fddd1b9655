// Package log provides the logger used across the crawler core.
package log

import (
	"io"
	"strings"

	"github.com/bombsimon/logrusr/v2"
	"github.com/go-logr/logr"
	"github.com/sirupsen/logrus"
)

// Level is a crawler-internal log level, decoupled from logrus's.
type Level int8

const (
	DebugLevel Level = iota
	InfoLevel
	WarnLevel
	ErrorLevel
)

// ParseLevel maps a string to a Level, defaulting to InfoLevel for unknown
// input so a typo'd env var never prevents the crawler from starting.
func ParseLevel(s string) Level {
	switch strings.ToLower(s) {
	case "debug":
		return DebugLevel
	case "warn", "warning":
		return WarnLevel
	case "error":
		return ErrorLevel
	default:
		return InfoLevel
	}
}

func (l Level) logrusLevel() logrus.Level {
	switch l {
	case DebugLevel:
		return logrus.DebugLevel
	case WarnLevel:
		return logrus.WarnLevel
	case ErrorLevel:
		return logrus.ErrorLevel
	default:
		return logrus.InfoLevel
	}
}

// Logger wraps logr.Logger, giving every component in the core the same
// structured-logging surface without depending on logrus directly.
type Logger struct {
	logr.Logger
}

// New creates a Logger backed by logrus, writing JSON lines.
func New(level Level) *Logger {
	l := logrus.New()
	l.SetLevel(level.logrusLevel())
	l.SetFormatter(&logrus.JSONFormatter{})
	return fromLogrus(l)
}

// NewDiscard returns a Logger that drops everything; used as a safe default
// when callers don't provide one.
func NewDiscard() *Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return fromLogrus(l)
}

func fromLogrus(l *logrus.Logger) *Logger {
	return &Logger{Logger: logrusr.New(l)}
}

// Or returns l if non-nil, otherwise a discard logger. Components call this
// in their constructors so a nil *Logger never panics.
func Or(l *Logger) *Logger {
	if l == nil {
		return NewDiscard()
	}
	return l
}
