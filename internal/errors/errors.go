// Package errors provides the error taxonomy shared by the ingest, validation and analysis layers.
package errors

import (
	"errors"
	"fmt"
	"strings"

	"go.uber.org/multierr"
)

// Standard sentinel errors
var (
	ErrNoTrades          = errors.New("no trades")
	ErrDataNotFound      = errors.New("data not found")
	ErrUnsupportedFormat = errors.New("unsupported file format")
	ErrUnknownSource     = errors.New("unknown data source")
	ErrUnknownAnalysis   = errors.New("unknown analysis type")
	ErrNotComputable     = errors.New("not computable")
	ErrConfigInvalid     = errors.New("invalid configuration")
	ErrDatabaseError     = errors.New("database error")
	ErrInvalidDataset    = errors.New("invalid dataset")
)

// SchemaError reports that a normalizer could not map every required canonical field.
type SchemaError struct {
	Source  string
	Missing []string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("schema error [%s]: missing required fields: %s", e.Source, strings.Join(e.Missing, ", "))
}

// NewSchemaError creates a new SchemaError.
func NewSchemaError(source string, missing []string) *SchemaError {
	return &SchemaError{
		Source:  source,
		Missing: missing,
	}
}

// FieldError is a single validation rule violation.
// Trade is the 1-based trade number, or 0 for dataset-level issues.
type FieldError struct {
	Trade   int
	Field   string
	Value   interface{}
	Message string
}

func (e *FieldError) Error() string {
	if e.Trade > 0 {
		return fmt.Sprintf("Trade %d: %s", e.Trade, e.Message)
	}
	return e.Message
}

// NewFieldError creates a new FieldError.
func NewFieldError(trade int, field string, value interface{}, message string) *FieldError {
	return &FieldError{
		Trade:   trade,
		Field:   field,
		Value:   value,
		Message: message,
	}
}

// ValidationError aggregates every rule violation found in a dataset.
type ValidationError struct {
	Issues error
}

func (e *ValidationError) Error() string {
	n := len(multierr.Errors(e.Issues))
	return fmt.Sprintf("validation failed with %d error(s): %v", n, e.Issues)
}

func (e *ValidationError) Unwrap() []error {
	return multierr.Errors(e.Issues)
}

// NewValidationError combines issues into a ValidationError. Returns nil when issues is empty.
func NewValidationError(issues ...error) error {
	combined := multierr.Combine(issues...)
	if combined == nil {
		return nil
	}
	return &ValidationError{Issues: combined}
}

// InsufficientDataError reports that an analysis needs more trades than it was given.
type InsufficientDataError struct {
	Analysis string
	Required int
	Actual   int
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("insufficient data for %s: need at least %d trades, got %d", e.Analysis, e.Required, e.Actual)
}

// NewInsufficientDataError creates a new InsufficientDataError.
func NewInsufficientDataError(analysis string, required, actual int) *InsufficientDataError {
	return &InsufficientDataError{
		Analysis: analysis,
		Required: required,
		Actual:   actual,
	}
}

// ParseError represents a failure reading a tabular export.
type ParseError struct {
	File   string
	Row    int
	Column string
	Err    error
}

func (e *ParseError) Error() string {
	switch {
	case e.Row > 0 && e.Column != "":
		return fmt.Sprintf("parse error [%s] row %d column %q: %v", e.File, e.Row, e.Column, e.Err)
	case e.Row > 0:
		return fmt.Sprintf("parse error [%s] row %d: %v", e.File, e.Row, e.Err)
	default:
		return fmt.Sprintf("parse error [%s]: %v", e.File, e.Err)
	}
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// NewParseError creates a new ParseError.
func NewParseError(file string, row int, column string, err error) *ParseError {
	return &ParseError{
		File:   file,
		Row:    row,
		Column: column,
		Err:    err,
	}
}

// Wrap wraps an error with additional context.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with formatted context.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// Errors flattens a combined error into its parts.
func Errors(err error) []error {
	return multierr.Errors(err)
}
