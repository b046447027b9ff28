// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package errors defines the typed failures that cross component boundaries
// in wxbridge.
package errors

import (
	"errors"
	"fmt"
)

// Error types
const (
	// ErrInvalidGrant is a user-correctable credential exchange failure:
	// wrong grant type, missing or consumed code, unregistered account.
	ErrInvalidGrant = "invalid_grant"

	// ErrUpstream is a platform transport or protocol failure.
	ErrUpstream = "upstream"

	// ErrSecurityViolation is a callback whose signature does not match.
	ErrSecurityViolation = "security_violation"

	// ErrSoftDelivery is a platform-reported business failure on message send.
	ErrSoftDelivery = "soft_delivery"

	// ErrDelivery is a transport failure on message send.
	ErrDelivery = "delivery"

	// ErrInvalidArgument is returned when an invalid argument is provided
	ErrInvalidArgument = "invalid_argument"

	// ErrInternal is returned when there is an internal error
	ErrInternal = "internal"
)

// Error is a classified failure with an optional cause.
type Error struct {
	// Type is one of the Err* constants
	Type string

	// Message is the human-readable reason
	Message string

	// Cause is the underlying error
	Cause error
}

// Error returns the error message
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %s", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a new error
func NewError(errorType, message string, cause error) *Error {
	return &Error{
		Type:    errorType,
		Message: message,
		Cause:   cause,
	}
}

// NewInvalidGrantError creates a new invalid grant error
func NewInvalidGrantError(message string, cause error) *Error {
	return NewError(ErrInvalidGrant, message, cause)
}

// NewUpstreamError creates a new upstream error
func NewUpstreamError(message string, cause error) *Error {
	return NewError(ErrUpstream, message, cause)
}

// NewSecurityViolationError creates a new security violation error
func NewSecurityViolationError(message string, cause error) *Error {
	return NewError(ErrSecurityViolation, message, cause)
}

// NewSoftDeliveryError creates a new soft delivery error
func NewSoftDeliveryError(message string, cause error) *Error {
	return NewError(ErrSoftDelivery, message, cause)
}

// NewDeliveryError creates a new delivery error
func NewDeliveryError(message string, cause error) *Error {
	return NewError(ErrDelivery, message, cause)
}

// NewInvalidArgumentError creates a new invalid argument error
func NewInvalidArgumentError(message string, cause error) *Error {
	return NewError(ErrInvalidArgument, message, cause)
}

// NewInternalError creates a new internal error
func NewInternalError(message string, cause error) *Error {
	return NewError(ErrInternal, message, cause)
}

// TypeOf returns the type of the first *Error in err's chain, or "".
func TypeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Type
	}
	return ""
}

func isType(err error, errorType string) bool {
	var e *Error
	for err != nil {
		if !errors.As(err, &e) {
			return false
		}
		if e.Type == errorType {
			return true
		}
		err = e.Cause
	}
	return false
}

// IsInvalidGrant checks if the error chain contains an invalid grant error
func IsInvalidGrant(err error) bool {
	return isType(err, ErrInvalidGrant)
}

// IsUpstream checks if the error chain contains an upstream error
func IsUpstream(err error) bool {
	return isType(err, ErrUpstream)
}

// IsSecurityViolation checks if the error chain contains a security violation
func IsSecurityViolation(err error) bool {
	return isType(err, ErrSecurityViolation)
}

// IsSoftDelivery checks if the error chain contains a soft delivery error
func IsSoftDelivery(err error) bool {
	return isType(err, ErrSoftDelivery)
}

// IsDelivery checks if the error chain contains a delivery error
func IsDelivery(err error) bool {
	return isType(err, ErrDelivery)
}

// IsInvalidArgument checks if the error chain contains an invalid argument error
func IsInvalidArgument(err error) bool {
	return isType(err, ErrInvalidArgument)
}

// IsInternal checks if the error chain contains an internal error
func IsInternal(err error) bool {
	return isType(err, ErrInternal)
}
