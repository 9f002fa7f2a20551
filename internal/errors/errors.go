// Package errors defines the typed error taxonomy shared by the pipeline
// stages. Structural and compute errors abort a run; only IO errors are
// retryable.
package errors

import (
	"errors"
	"fmt"
)

// Kind classifies a pipeline error.
type Kind string

const (
	KindSourceFormat     Kind = "source_format"
	KindSchemaMismatch   Kind = "schema_mismatch"
	KindDataQuality      Kind = "data_quality"
	KindInsufficientData Kind = "insufficient_data"
	KindDegenerateColumn Kind = "degenerate_column"
	KindDuplicateFeature Kind = "duplicate_feature"
	KindIO               Kind = "io"
)

// Error is a pipeline error with the stage and column it originated from.
type Error struct {
	Kind      Kind   `json:"kind"`
	Stage     string `json:"stage,omitempty"`
	Column    string `json:"column,omitempty"`
	Message   string `json:"message"`
	Cause     error  `json:"-"`
	Retryable bool   `json:"retryable"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Message
	if e.Column != "" {
		msg = fmt.Sprintf("column %q: %s", e.Column, msg)
	}
	if e.Stage != "" {
		msg = fmt.Sprintf("[%s] %s", e.Stage, msg)
	}
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches errors by kind, so sentinel comparisons like
// errors.Is(err, &Error{Kind: KindIO}) work across wrapping.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return e.Kind == t.Kind
}

// NewSourceFormat reports content that does not match the declared format.
func NewSourceFormat(stage, message string, cause error) *Error {
	return &Error{Kind: KindSourceFormat, Stage: stage, Message: message, Cause: cause}
}

// NewSchemaMismatch reports an expected column that is absent or mistyped.
func NewSchemaMismatch(stage, column, message string) *Error {
	return &Error{Kind: KindSchemaMismatch, Stage: stage, Column: column, Message: message}
}

// NewInsufficientData reports a column with too few usable values.
func NewInsufficientData(stage, column, message string) *Error {
	return &Error{Kind: KindInsufficientData, Stage: stage, Column: column, Message: message}
}

// NewDegenerateColumn reports a column whose statistics cannot support the
// requested transform (zero range or zero standard deviation).
func NewDegenerateColumn(stage, column, message string) *Error {
	return &Error{Kind: KindDegenerateColumn, Stage: stage, Column: column, Message: message}
}

// NewDuplicateFeature reports a feature name registered twice in one run.
func NewDuplicateFeature(name string) *Error {
	return &Error{Kind: KindDuplicateFeature, Message: fmt.Sprintf("feature %q already registered", name)}
}

// NewIO reports a read or write failure. IO errors are retryable.
func NewIO(stage, message string, cause error) *Error {
	return &Error{Kind: KindIO, Stage: stage, Message: message, Cause: cause, Retryable: true}
}

// IsRetryable reports whether err (or anything it wraps) is retryable.
func IsRetryable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Retryable
	}
	return false
}

// KindOf returns the kind of err, or the empty kind for foreign errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// WithStage attaches a stage name to err if it is a pipeline error without
// one, and wraps foreign errors into the pipeline taxonomy.
func WithStage(err error, stage string) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		if e.Stage == "" {
			e.Stage = stage
		}
		return err
	}
	return &Error{Kind: KindDataQuality, Stage: stage, Message: "stage failed", Cause: err}
}
