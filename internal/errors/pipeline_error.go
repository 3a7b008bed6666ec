// Package errors defines the error taxonomy shared by every pipeline stage.
// All kinds except ZeroVariance (in non-strict mode) abort the current run.
package errors

import (
	"fmt"
)

// Kind classifies a pipeline failure.
type Kind int

const (
	KindInvalidInput Kind = iota
	KindLoad
	KindEmptyColumn
	KindUnmappedLabel
	KindZeroVariance
	KindInsufficientSamples
	KindColumnNotFound
)

func (k Kind) String() string {
	switch k {
	case KindLoad:
		return "LoadError"
	case KindEmptyColumn:
		return "EmptyColumnError"
	case KindUnmappedLabel:
		return "UnmappedLabelError"
	case KindZeroVariance:
		return "ZeroVarianceError"
	case KindInsufficientSamples:
		return "InsufficientSamplesError"
	case KindColumnNotFound:
		return "ColumnNotFoundError"
	default:
		return "InvalidInputError"
	}
}

// PipelineError carries the failing operation and, when known, the offending
// column and value.
type PipelineError struct {
	Kind    Kind
	Op      string // Operation name (e.g., "Load", "Sanitize", "Select")
	Column  string // Column name if applicable
	Value   string // Offending value if applicable
	Message string
	Cause   error
}

func (e *PipelineError) Error() string {
	msg := e.Message
	if e.Value != "" {
		msg = fmt.Sprintf("%s (value %q)", msg, e.Value)
	}
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	if e.Column != "" {
		return fmt.Sprintf("%s: %s failed on column '%s': %s", e.Kind, e.Op, e.Column, msg)
	}
	return fmt.Sprintf("%s: %s failed: %s", e.Kind, e.Op, msg)
}

func (e *PipelineError) Unwrap() error {
	return e.Cause
}

// Is matches on Kind so that errors.Is(err, ErrColumnNotFound) holds for any
// column.
func (e *PipelineError) Is(target error) bool {
	if pe, ok := target.(*PipelineError); ok {
		return e.Kind == pe.Kind
	}
	return false
}

// Sentinels for errors.Is.
var (
	ErrInvalidInput        = &PipelineError{Kind: KindInvalidInput}
	ErrLoad                = &PipelineError{Kind: KindLoad}
	ErrEmptyColumn         = &PipelineError{Kind: KindEmptyColumn}
	ErrUnmappedLabel       = &PipelineError{Kind: KindUnmappedLabel}
	ErrZeroVariance        = &PipelineError{Kind: KindZeroVariance}
	ErrInsufficientSamples = &PipelineError{Kind: KindInsufficientSamples}
	ErrColumnNotFound      = &PipelineError{Kind: KindColumnNotFound}
)

func NewLoadError(path string, cause error) *PipelineError {
	return &PipelineError{
		Kind:    KindLoad,
		Op:      "Load",
		Value:   path,
		Message: "dataset could not be read",
		Cause:   cause,
	}
}

func NewEmptyColumnError(op, column string) *PipelineError {
	return &PipelineError{
		Kind:    KindEmptyColumn,
		Op:      op,
		Column:  column,
		Message: "column has no non-missing values",
	}
}

func NewUnmappedLabelError(column, value string) *PipelineError {
	return &PipelineError{
		Kind:    KindUnmappedLabel,
		Op:      "Select",
		Column:  column,
		Value:   value,
		Message: "target value is not a key of the label remap",
	}
}

func NewZeroVarianceError(column string) *PipelineError {
	return &PipelineError{
		Kind:    KindZeroVariance,
		Op:      "Scale",
		Column:  column,
		Message: "fitted standard deviation is zero",
	}
}

func NewInsufficientSamplesError(class string, have, need int) *PipelineError {
	return &PipelineError{
		Kind:    KindInsufficientSamples,
		Op:      "Balance",
		Value:   class,
		Message: fmt.Sprintf("class has %d samples, synthesis needs at least %d", have, need),
	}
}

func NewColumnNotFoundError(op, column string) *PipelineError {
	return &PipelineError{
		Kind:    KindColumnNotFound,
		Op:      op,
		Column:  column,
		Message: "column does not exist",
	}
}

func NewInvalidInputError(op, message string) *PipelineError {
	return &PipelineError{
		Kind:    KindInvalidInput,
		Op:      op,
		Message: message,
	}
}

// NewValidationError is an invalid-input error bound to a column.
func NewValidationError(op, column, message string) *PipelineError {
	return &PipelineError{
		Kind:    KindInvalidInput,
		Op:      op,
		Column:  column,
		Message: message,
	}
}
