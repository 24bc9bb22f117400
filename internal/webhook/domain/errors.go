package domain

import (
	"errors"
	"strings"
)

// ErrorClass groups pipeline failures by how the provider should react.
type ErrorClass string

const (
	ClassSecurity       ErrorClass = "security_error"
	ClassData           ErrorClass = "data_error"
	ClassInfrastructure ErrorClass = "infrastructure_error"
	ClassCanceled       ErrorClass = "canceled"
)

// Error is a classified pipeline failure. Code is a stable snake_case
// identifier safe to return to the caller.
type Error struct {
	Class ErrorClass
	Code  string
	Err   error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return string(e.Class) + ": " + e.Code
	}
	return string(e.Class) + ": " + e.Code + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Retryable reports whether the provider should redeliver the event.
func (e *Error) Retryable() bool {
	switch e.Class {
	case ClassData, ClassInfrastructure:
		return true
	default:
		return false
	}
}

func NewSecurityError(code string, err error) *Error {
	return &Error{Class: ClassSecurity, Code: normalizeCode(code, "invalid_signature"), Err: err}
}

func NewDataError(code string, err error) *Error {
	return &Error{Class: ClassData, Code: normalizeCode(code, "invalid_event"), Err: err}
}

func NewInfrastructureError(code string, err error) *Error {
	return &Error{Class: ClassInfrastructure, Code: normalizeCode(code, "service_unavailable"), Err: err}
}

func NewCanceledError(err error) *Error {
	return &Error{Class: ClassCanceled, Code: "client_closed_request", Err: err}
}

// AsError extracts the classified error from err, if any.
func AsError(err error) (*Error, bool) {
	var target *Error
	if errors.As(err, &target) && target != nil {
		return target, true
	}
	return nil, false
}

// ClassOf returns the class of err. Unclassified errors are treated as
// infrastructure failures.
func ClassOf(err error) ErrorClass {
	if target, ok := AsError(err); ok {
		return target.Class
	}
	return ClassInfrastructure
}

func normalizeCode(code, fallback string) string {
	code = strings.TrimSpace(code)
	if code == "" {
		return fallback
	}
	return code
}
