// Package errors provides structured error types for psresget.
//
// Every failure the install core can surface carries a machine-readable
// [Code] plus enough context (package id, repository, requested constraint)
// to diagnose it without re-running the command.
//
// # Error Codes
//
// Only [ErrCodePackageNotFound] is recoverable: the repository selector turns
// it into "still outstanding" and falls back to the next repository. Every
// other code terminates the top-level invocation.
//
// # Usage
//
//	err := errors.New(errors.ErrCodeCommandClobber, "commands already exported: %s", names).
//		WithPackage("Foo")
//	if errors.Is(err, errors.ErrCodeCommandClobber) {
//	    // Handle clobber
//	}
//
//	// Wrap existing errors
//	err := errors.Wrap(errors.ErrCodeRepositoryUnavailable, origErr, "open feed").
//		WithRepository(repo.URL)
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Code represents a machine-readable error code.
type Code string

// Error codes for different error categories.
const (
	// Install core
	ErrCodeRepositoryUnavailable       Code = "REPOSITORY_UNAVAILABLE"
	ErrCodePackageNotFound             Code = "PACKAGE_NOT_FOUND"
	ErrCodeConstraintParse             Code = "CONSTRAINT_PARSE"
	ErrCodeModuleNotInstalledForUpdate Code = "MODULE_NOT_INSTALLED_FOR_UPDATE"
	ErrCodeLicenseTextNotFound         Code = "LICENSE_TEXT_NOT_FOUND"
	ErrCodeLicenseNotAccepted          Code = "LICENSE_NOT_ACCEPTED"
	ErrCodeCommandClobber              Code = "COMMAND_CLOBBER"
	ErrCodeManifestFormat              Code = "MANIFEST_FORMAT"
	ErrCodeDependencyConflict          Code = "DEPENDENCY_CONFLICT"

	// Input validation errors
	ErrCodeInvalidInput   Code = "INVALID_INPUT"
	ErrCodeInvalidPackage Code = "INVALID_PACKAGE"
	ErrCodeInvalidPath    Code = "INVALID_PATH"

	// Network errors
	ErrCodeNetwork      Code = "NETWORK_ERROR"
	ErrCodeUnauthorized Code = "UNAUTHORIZED"

	// Internal errors
	ErrCodeInternal Code = "INTERNAL_ERROR"
)

// Error is a structured error with a code and optional cause.
type Error struct {
	Code    Code   // Machine-readable error code
	Message string // Human-readable message
	Cause   error  // Underlying error (optional)

	Package    string // Package id the error pertains to (optional)
	Repository string // Repository name or URL (optional)
	Constraint string // Requested version constraint (optional)
}

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Code))
	b.WriteString(": ")
	b.WriteString(e.Message)
	if ctx := e.context(); ctx != "" {
		b.WriteString(" (")
		b.WriteString(ctx)
		b.WriteString(")")
	}
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

func (e *Error) context() string {
	var parts []string
	if e.Package != "" {
		parts = append(parts, "package="+e.Package)
	}
	if e.Constraint != "" {
		parts = append(parts, "constraint="+e.Constraint)
	}
	if e.Repository != "" {
		parts = append(parts, "repository="+e.Repository)
	}
	return strings.Join(parts, " ")
}

// Unwrap returns the underlying cause for errors.Is/As compatibility.
func (e *Error) Unwrap() error {
	return e.Cause
}

// WithPackage sets the package id context and returns e.
func (e *Error) WithPackage(id string) *Error {
	e.Package = id
	return e
}

// WithRepository sets the repository context and returns e.
func (e *Error) WithRepository(repo string) *Error {
	e.Repository = repo
	return e
}

// WithConstraint sets the requested constraint context and returns e.
func (e *Error) WithConstraint(c string) *Error {
	e.Constraint = c
	return e
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
	for err != nil {
		var e *Error
		if !errors.As(err, &e) {
			return false
		}
		if e.Code == code {
			return true
		}
		err = e.Cause
	}
	return false
}

// GetCode extracts the outermost error code from an error, if available.
// Returns empty string if the error is not an *Error.
func GetCode(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// Recoverable reports whether err only concerns a single repository attempt.
// PACKAGE_NOT_FOUND is the only such code.
func Recoverable(err error) bool {
	return GetCode(err) == ErrCodePackageNotFound
}

// UserMessage returns a user-friendly message for the error.
// For *Error types, returns the message plus its context without the code prefix.
// For other errors, returns the error string as-is.
func UserMessage(err error) string {
	var e *Error
	if errors.As(err, &e) {
		if ctx := e.context(); ctx != "" {
			return e.Message + " (" + ctx + ")"
		}
		return e.Message
	}
	return err.Error()
}
