// Package errorkit provides the sentinel errors and validation accumulators
// shared by the reload/reconciliation and packet-in validation paths.
package errorkit

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for config-induced and precondition failures.
var (
	ErrUnknownPort       = errors.New("unknown port")
	ErrUnknownVLAN       = errors.New("unknown vlan")
	ErrTableNotFound     = errors.New("table not found in pipeline")
	ErrPipelineInvalid   = errors.New("pipeline configuration invalid")
	ErrLACPBundleMixed   = errors.New("lacp bundle is not uniform across its ports")
	ErrPortInMultipleLAG = errors.New("port is a member of more than one lacp bundle")
	ErrPreconditionFailed = errors.New("precondition not met")
	ErrValidationFailed   = errors.New("validation failed")
	ErrArenaLocked        = errors.New("stack arena locked by another coordinator")
	ErrValveNotFound      = errors.New("valve not registered in arena")
	ErrUnknownDatapath    = errors.New("datapath id does not match configuration")
)

// PreconditionError records a single failed structural precondition.
type PreconditionError struct {
	Operation    string
	Resource     string
	Precondition string
	Details      string
}

func (e *PreconditionError) Error() string {
	msg := fmt.Sprintf("precondition failed for %s on %s: %s", e.Operation, e.Resource, e.Precondition)
	if e.Details != "" {
		msg += " (" + e.Details + ")"
	}
	return msg
}

func (e *PreconditionError) Unwrap() error { return ErrPreconditionFailed }

// NewPreconditionError builds a PreconditionError.
func NewPreconditionError(operation, resource, precondition, details string) *PreconditionError {
	return &PreconditionError{Operation: operation, Resource: resource, Precondition: precondition, Details: details}
}

// ValidationError collects one or more invariant violations found while
// validating a DP config or a config diff.
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	if len(e.Errors) == 1 {
		return "validation failed: " + e.Errors[0]
	}
	return fmt.Sprintf("validation failed:\n  - %s", strings.Join(e.Errors, "\n  - "))
}

func (e *ValidationError) Unwrap() error { return ErrValidationFailed }

// Builder accumulates validation failures so every config invariant can be
// checked in one pass instead of failing fast on the first violation.
type Builder struct {
	errors []string
}

// Check appends message if condition is false.
func (b *Builder) Check(condition bool, message string) *Builder {
	if !condition {
		b.errors = append(b.errors, message)
	}
	return b
}

// Checkf appends a formatted message if condition is false.
func (b *Builder) Checkf(condition bool, format string, args ...interface{}) *Builder {
	if !condition {
		b.errors = append(b.errors, fmt.Sprintf(format, args...))
	}
	return b
}

// HasErrors reports whether any check failed.
func (b *Builder) HasErrors() bool { return len(b.errors) > 0 }

// Err returns the accumulated ValidationError, or nil if nothing failed.
func (b *Builder) Err() error {
	if len(b.errors) == 0 {
		return nil
	}
	return &ValidationError{Errors: b.errors}
}
