// Package backuperr defines the typed errors shared by the BackupFlow packages.
package backuperr

import (
	"errors"
	"fmt"
)

// Kind categorizes an error
type Kind string

const (
	// KindInvalidURI marks a malformed or unsupported database or storage URI
	KindInvalidURI Kind = "invalid_uri"
	// KindStrategyConfiguration marks inconsistent or missing strategy settings
	KindStrategyConfiguration Kind = "strategy_configuration"
	// KindClientUnavailable marks missing database client tooling
	KindClientUnavailable Kind = "client_unavailable"
	// KindConnectivity marks a failed connection test
	KindConnectivity Kind = "connectivity"
	// KindBackupExecution marks a failed dump, verification or upload
	KindBackupExecution Kind = "backup_execution"
)

// Error is a categorized error with an optional cause
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// New creates an error of the given kind
func New(kind Kind, cause error, format string, args ...any) *Error {
	return &Error{
		Kind:    kind,
		Message: fmt.Sprintf(format, args...),
		Cause:   cause,
	}
}

// InvalidURI creates a KindInvalidURI error
func InvalidURI(cause error, format string, args ...any) *Error {
	return New(KindInvalidURI, cause, format, args...)
}

// StrategyConfiguration creates a KindStrategyConfiguration error
func StrategyConfiguration(cause error, format string, args ...any) *Error {
	return New(KindStrategyConfiguration, cause, format, args...)
}

// ClientUnavailable creates a KindClientUnavailable error
func ClientUnavailable(cause error, format string, args ...any) *Error {
	return New(KindClientUnavailable, cause, format, args...)
}

// Connectivity creates a KindConnectivity error
func Connectivity(cause error, format string, args ...any) *Error {
	return New(KindConnectivity, cause, format, args...)
}

// BackupExecution creates a KindBackupExecution error
func BackupExecution(cause error, format string, args ...any) *Error {
	return New(KindBackupExecution, cause, format, args...)
}

// KindOf returns the kind of the outermost *Error in err's chain, or "" if none
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsKind reports whether any *Error in err's chain has the given kind
func IsKind(err error, kind Kind) bool {
	for err != nil {
		var e *Error
		if !errors.As(err, &e) {
			return false
		}
		if e.Kind == kind {
			return true
		}
		err = e.Cause
	}
	return false
}
