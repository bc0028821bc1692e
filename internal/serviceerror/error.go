// Package serviceerror carries the operation code and failure kind shared by every domain service.
package serviceerror

import (
	"errors"
	"fmt"
)

// Kind classifies a failure for transport mapping.
type Kind string

const (
	KindUnauthorized Kind = "unauthorized"
	KindNotFound     Kind = "not_found"
	KindValidation   Kind = "validation"
	KindForbidden    Kind = "forbidden"
	KindDependency   Kind = "dependency"
	KindUnavailable  Kind = "unavailable"
)

// Error is returned by services; its code is "<operation>.<reason>".
type Error struct {
	operation string
	reason    string
	kind      Kind
	err       error
}

// New constructs an Error for the operation and reason.
func New(operation, reason string, kind Kind, cause error) error {
	return &Error{operation: operation, reason: reason, kind: kind, err: cause}
}

func (e *Error) Error() string {
	if e.err == nil {
		return e.Code()
	}
	return fmt.Sprintf("%s: %v", e.Code(), e.err)
}

func (e *Error) Unwrap() error {
	return e.err
}

// Code returns the dotted operation and reason.
func (e *Error) Code() string {
	return fmt.Sprintf("%s.%s", e.operation, e.reason)
}

// Reason returns the snake case reason without the operation prefix.
func (e *Error) Reason() string {
	return e.reason
}

// Kind returns the failure classification.
func (e *Error) Kind() Kind {
	return e.kind
}

// Message returns the innermost error text suitable for display.
func (e *Error) Message() string {
	if e.err == nil {
		return e.reason
	}
	return e.err.Error()
}

// KindOf reports the kind of err, treating unclassified errors as dependency failures.
func KindOf(err error) Kind {
	var serviceErr *Error
	if errors.As(err, &serviceErr) {
		return serviceErr.kind
	}
	return KindDependency
}
