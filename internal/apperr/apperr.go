// Package apperr defines the typed error kinds surfaced by the logops core.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an error for dispatch at the orchestrator boundary.
type Kind int

const (
	// KindInternal is the zero value; anything unclassified lands here.
	KindInternal Kind = iota
	KindInvalidRegion
	KindNotConnected
	KindPermissionDenied
	KindValidation
	KindSafetyRule
	KindSQLSafety
	KindDuplicateKey
	KindDBUnavailable
	KindTimeout
	KindParseFailure
)

// String returns the stable name of the kind, used in logs and card payloads.
func (k Kind) String() string {
	switch k {
	case KindInvalidRegion:
		return "invalid_region"
	case KindNotConnected:
		return "not_connected"
	case KindPermissionDenied:
		return "permission_denied"
	case KindValidation:
		return "validation_error"
	case KindSafetyRule:
		return "safety_rule_violation"
	case KindSQLSafety:
		return "sql_safety_violation"
	case KindDuplicateKey:
		return "duplicate_key"
	case KindDBUnavailable:
		return "db_unavailable"
	case KindTimeout:
		return "timeout"
	case KindParseFailure:
		return "parse_failure"
	default:
		return "internal"
	}
}

// Error carries a kind, a user-presentable message and an optional cause.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap exposes the cause for errors.Is/As chains.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches two *Error values by kind, so sentinel-style comparisons work.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return e.Kind == t.Kind
}

// New creates an error of the given kind.
func New(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a kind and message to an underlying cause.
func Wrap(kind Kind, err error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// KindOf extracts the kind from any error in the chain.
// Plain errors report KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// IsKind reports whether any error in the chain carries the given kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// Convenience constructors for the common kinds.

// InvalidRegion reports an unknown or inactive region.
func InvalidRegion(region string) *Error {
	return New(KindInvalidRegion, "region %q is not valid", region)
}

// NotConnected reports an operation against a region without a live engine.
func NotConnected(region string) *Error {
	return New(KindNotConnected, "not connected to region %q", region)
}

// PermissionDenied reports a role that does not grant the requested operation.
func PermissionDenied(role, operation string) *Error {
	return New(KindPermissionDenied, "role %q does not permit %s", role, operation)
}

// Validation reports bad input such as an unknown table or malformed filters.
func Validation(format string, args ...interface{}) *Error {
	return New(KindValidation, format, args...)
}

// SafetyRule reports a retention-gate refusal.
func SafetyRule(format string, args ...interface{}) *Error {
	return New(KindSafetyRule, format, args...)
}

// SQLSafety reports a rejected candidate SQL statement.
func SQLSafety(format string, args ...interface{}) *Error {
	return New(KindSQLSafety, format, args...)
}
