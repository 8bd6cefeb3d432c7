// Package errors provides structured error types for quickmod.
//
// Every failure that crosses a package boundary carries a machine-readable
// [Code] so that the resolver, the install orchestrator, the CLI and the HTTP
// API can classify it without string matching:
//
//   - FETCH_FAILED / NOT_FOUND: a single locator could not be fetched
//   - PARSE_FAILED: a descriptor payload was malformed or failed validation
//   - STORE_WRITE_FAILED: the local descriptor cache could not be written
//   - STORE_UNUSABLE: the descriptor store itself is gone (fatal)
//   - PARTIAL_INSTALL: one or more versions failed to download
//
// # Usage
//
//	err := errors.New(errors.ErrCodeInvalidInput, "invalid mod uid: %s", uid)
//	if errors.Is(err, errors.ErrCodeInvalidInput) {
//	    // Handle validation error
//	}
//
//	// Wrap existing errors
//	err := errors.Wrap(errors.ErrCodeFetchFailed, origErr, "error downloading %s", url)
package errors

import (
	"errors"
	"fmt"
)

// Code represents a machine-readable error code.
type Code string

// Error codes for different error categories.
const (
	// Input validation errors
	ErrCodeInvalidInput    Code = "INVALID_INPUT"
	ErrCodeInvalidUID      Code = "INVALID_UID"
	ErrCodeInvalidManifest Code = "INVALID_MANIFEST"

	// Resolution and download errors
	ErrCodeFetchFailed      Code = "FETCH_FAILED"
	ErrCodeNotFound         Code = "NOT_FOUND"
	ErrCodeParseFailed      Code = "PARSE_FAILED"
	ErrCodeChecksumMismatch Code = "CHECKSUM_MISMATCH"
	ErrCodePartialInstall   Code = "PARTIAL_INSTALL"

	// Store errors
	ErrCodeStoreWriteFailed Code = "STORE_WRITE_FAILED"
	ErrCodeStoreUnusable    Code = "STORE_UNUSABLE"

	// Internal errors
	ErrCodeCanceled    Code = "CANCELED"
	ErrCodeInternal    Code = "INTERNAL_ERROR"
	ErrCodeUnsupported Code = "UNSUPPORTED"
)

// Error is a structured error with a code and optional cause.
type Error struct {
	Code    Code   // Machine-readable error code
	Message string // Human-readable message
	Cause   error  // Underlying error (optional)
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As compatibility.
func (e *Error) Unwrap() error {
	return e.Cause
}

// New creates a new Error with the given code and formatted message.
func New(code Code, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// Wrap creates a new Error wrapping an existing error.
func Wrap(code Code, cause error, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Cause:   cause,
	}
}

// Is reports whether err has the given error code.
// It unwraps the error chain looking for an *Error with a matching code.
func Is(err error, code Code) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// GetCode extracts the error code from an error, if available.
// Returns empty string if the error is not an *Error.
func GetCode(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// UserMessage returns a user-friendly message for the error.
// For *Error types, returns the message (and cause) without the code prefix.
// For other errors, returns the error string as-is.
func UserMessage(err error) string {
	var e *Error
	if errors.As(err, &e) {
		if e.Cause != nil {
			return fmt.Sprintf("%s: %s", e.Message, UserMessage(e.Cause))
		}
		return e.Message
	}
	return err.Error()
}

// IsFatal reports whether err should abort a whole resolution rather than
// being reported against a single locator.
func IsFatal(err error) bool {
	return Is(err, ErrCodeStoreUnusable)
}
