package models

import (
	"fmt"
	"strings"
)

// DataLoadError reports a missing or malformed table source. Fatal at startup.
type DataLoadError struct {
	Source string
	Reason string
	Err    error
}

func (e *DataLoadError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("load %s: %s: %v", e.Source, e.Reason, e.Err)
	}
	return fmt.Sprintf("load %s: %s", e.Source, e.Reason)
}

func (e *DataLoadError) Unwrap() error { return e.Err }

// IsTransient returns false as a bad source does not fix itself
func (e *DataLoadError) IsTransient() bool { return false }

// UnknownFactorError reports a factor name that resolves to no column.
type UnknownFactorError struct {
	Factor       string
	ValidFactors []string
}

func (e *UnknownFactorError) Error() string {
	return fmt.Sprintf("invalid factor: %s (valid factors: %s)", e.Factor, strings.Join(e.ValidFactors, ", "))
}

func (e *UnknownFactorError) IsTransient() bool { return false }

// InsufficientDataError reports a subset too small to fit or aggregate.
type InsufficientDataError struct {
	Operation string
	Required  int
	Available int
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("insufficient data for %s: %d rows available, %d required", e.Operation, e.Available, e.Required)
}

func (e *InsufficientDataError) IsTransient() bool { return false }

// InternalComputationError wraps an unexpected numeric failure.
type InternalComputationError struct {
	Operation string
	Err       error
}

func (e *InternalComputationError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Operation, e.Err)
}

func (e *InternalComputationError) Unwrap() error { return e.Err }

func (e *InternalComputationError) IsTransient() bool { return false }

// ValidationError represents a data validation error
type ValidationError struct {
	Field   string
	Value   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// IsTransient returns false as validation errors are permanent
func (e *ValidationError) IsTransient() bool {
	return false
}
