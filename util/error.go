package util

import (
	"errors"
	"fmt"
	"maps"

	"github.com/sirupsen/logrus"
)

// ContextualError carries the fields needed to log a failure in a structured
// way alongside the error itself.
type ContextualError struct {
	RealError error
	Fields    map[string]any
	Context   string
}

func NewContextualError(msg string, fields map[string]any, realError error) *ContextualError {
	return &ContextualError{Context: msg, Fields: fields, RealError: realError}
}

// ContextualizeIfNeeded is a helper function to turn an error into a ContextualError if it is not already one
func ContextualizeIfNeeded(msg string, err error) error {
	var ce *ContextualError
	if errors.As(err, &ce) {
		return err
	}
	return NewContextualError(msg, nil, err)
}

// LogWithContextIfNeeded is a helper function to log an error line for an error or ContextualError
func LogWithContextIfNeeded(msg string, err error, l *logrus.Logger) {
	var ce *ContextualError
	if errors.As(err, &ce) {
		ce.Log(l)
		return
	}
	l.WithError(err).Error(msg)
}

// AllFields merges the fields of ce with those of any ContextualError it
// wraps. Outer fields win.
func (ce *ContextualError) AllFields() map[string]any {
	out := make(map[string]any, len(ce.Fields))
	var inner *ContextualError
	if errors.As(ce.RealError, &inner) {
		maps.Copy(out, inner.AllFields())
	}
	maps.Copy(out, ce.Fields)
	return out
}

func (ce *ContextualError) Error() string {
	if ce.RealError == nil {
		return ce.Context
	}
	return fmt.Errorf("%s (%v): %w", ce.Context, ce.Fields, ce.RealError).Error()
}

func (ce *ContextualError) Unwrap() error {
	if ce.RealError == nil {
		return errors.New(ce.Context)
	}
	return ce.RealError
}

func (ce *ContextualError) Log(lr *logrus.Logger) {
	entry := lr.WithFields(ce.AllFields())
	if ce.RealError != nil {
		entry = entry.WithError(ce.RealError)
	}
	entry.Error(ce.Context)
}
