// Package errs defines the closed error taxonomy surfaced by the br engine.
//
// Every domain failure carries a Code plus payload fields so callers (and the
// --json surface) can handle known codes exhaustively. CodeInternal is the
// catch-all for invariant violations.
package errs

import (
	"errors"
	"fmt"
)

// Code identifies an error class. The set is closed.
type Code string

// Error codes.
const (
	CodeIssueNotFound     Code = "IssueNotFound"
	CodeIDCollision       Code = "IdCollision"
	CodeInvalidID         Code = "InvalidId"
	CodeInvalidPrefix     Code = "InvalidPrefix"
	CodeInvalidArgument   Code = "InvalidArgument"
	CodeCycleDetected     Code = "CycleDetected"
	CodeParentExists      Code = "ParentExists"
	CodeHasDependents     Code = "HasDependents"
	CodeNotClosed         Code = "NotClosed"
	CodeInvalidTransition Code = "InvalidTransition"
	CodeLockContention    Code = "LockContention"
	CodeStaleDatabase     Code = "StaleDatabase"
	CodeParseError        Code = "ParseError"
	CodeIOError           Code = "IoError"
	CodeSchemaError       Code = "SchemaError"
	CodeInternal          Code = "Internal"
)

// Error is the structured error carrier for the engine.
type Error struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
	IssueID string `json:"issue_id,omitempty"`
	Line    int    `json:"line_number,omitempty"`
	Hint    string `json:"hint,omitempty"`
	Wrapped error  `json:"-"`
}

func (e *Error) Error() string {
	if e.IssueID != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.IssueID)
	}
	if e.Line > 0 {
		return fmt.Sprintf("%s: %s (line %d)", e.Code, e.Message, e.Line)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap exposes the underlying cause for errors.Is/As chains.
func (e *Error) Unwrap() error {
	return e.Wrapped
}

// Is matches errors by code so sentinel comparisons work across wrapping.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Code == t.Code
	}
	return false
}

// New creates an Error with a formatted message.
func New(code Code, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to an underlying error.
func Wrap(code Code, err error, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Wrapped: err}
}

// WithIssue returns a copy of the error annotated with an issue ID.
func (e *Error) WithIssue(id string) *Error {
	c := *e
	c.IssueID = id
	return &c
}

// WithLine returns a copy of the error annotated with a line number.
func (e *Error) WithLine(n int) *Error {
	c := *e
	c.Line = n
	return &c
}

// WithHint returns a copy of the error annotated with a remediation hint.
func (e *Error) WithHint(hint string) *Error {
	c := *e
	c.Hint = hint
	return &c
}

// NotFound builds the standard issue-not-found error.
func NotFound(id string) *Error {
	return &Error{Code: CodeIssueNotFound, Message: "issue not found", IssueID: id}
}

// CodeOf extracts the Code from any error, defaulting to CodeInternal.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

// IsDomain reports whether the error is a user/domain error (exit code 1)
// rather than an internal or IO failure (exit code 2).
func IsDomain(err error) bool {
	switch CodeOf(err) {
	case CodeIssueNotFound, CodeIDCollision, CodeInvalidID, CodeInvalidPrefix,
		CodeInvalidArgument, CodeCycleDetected, CodeParentExists,
		CodeHasDependents, CodeNotClosed, CodeInvalidTransition,
		CodeStaleDatabase, CodeParseError:
		return true
	}
	return false
}
