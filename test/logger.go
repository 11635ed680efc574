package test

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// NewLogger returns a logger for tests. Output is discarded unless TEST_LOGS
// is set: 1 logs at info, 2 at debug and 3 at trace level.
func NewLogger() *logrus.Logger {
	l := logrus.New()

	v := os.Getenv("TEST_LOGS")
	if v == "" {
		l.SetOutput(io.Discard)
		return l
	}

	switch v {
	case "2":
		l.SetLevel(logrus.DebugLevel)
	case "3":
		l.SetLevel(logrus.TraceLevel)
	default:
		l.SetLevel(logrus.InfoLevel)
	}

	return l
}

// NewLoggerAt returns a logger that always discards its output but evaluates
// every entry at level, so code guarded by level checks runs.
func NewLoggerAt(level logrus.Level) *logrus.Logger {
	l := NewLogger()
	if os.Getenv("TEST_LOGS") == "" {
		l.SetLevel(level)
	}
	return l
}
