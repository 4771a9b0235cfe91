package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Error codes for categorizing errors
const (
	ErrAuth         = "AUTH"
	ErrNetwork      = "NETWORK"
	ErrTimeout      = "TIMEOUT"
	ErrNotConnected = "NOT_CONNECTED"
	ErrCommand      = "COMMAND"
	ErrConfig       = "CONFIG"
	ErrSecret       = "SECRET"
	ErrSSH          = "SSH"
)

// Error represents a structured error with code, message, suggestion, and optional cause.
// Rendered as:
//
//	✗ <What failed>
//
//	  <Why it failed - technical details>
//
//	  <How to fix it - actionable steps>
type Error struct {
	Code       string
	Message    string
	Suggestion string
	Cause      error
}

// New creates a new structured error with the given code, message, and suggestion.
func New(code, message, suggestion string) *Error {
	return &Error{
		Code:       code,
		Message:    message,
		Suggestion: suggestion,
	}
}

// Wrap wraps an existing error with a message, defaulting to ErrSSH code.
func Wrap(err error, message string) *Error {
	return &Error{
		Code:    ErrSSH,
		Message: message,
		Cause:   err,
	}
}

// WrapWithCode wraps an existing error with a specific code, message, and suggestion.
func WrapWithCode(err error, code, message, suggestion string) *Error {
	return &Error{
		Code:       code,
		Message:    message,
		Suggestion: suggestion,
		Cause:      err,
	}
}

// NewNotConnected reports an operation against a connection with no live transport.
func NewNotConnected(id string) *Error {
	return &Error{
		Code:       ErrNotConnected,
		Message:    fmt.Sprintf("Connection '%s' is not connected", id),
		Suggestion: "Connect the profile first, or wait for the reconnect to finish.",
	}
}

// CommandFailure carries the exit status and captured stderr of a remote
// command that exited nonzero. It is the Cause of every ErrCommand error
// produced by NewCommandError.
type CommandFailure struct {
	Command  string
	ExitCode int
	Stderr   string
}

func (f *CommandFailure) Error() string {
	return fmt.Sprintf("exit status %d", f.ExitCode)
}

// NewCommandError builds the error for a command that exited nonzero. The
// message is the command's stderr, or a generic exit status line when the
// command wrote nothing to stderr.
func NewCommandError(command string, exitCode int, stderr string) *Error {
	msg := strings.TrimSpace(stderr)
	if msg == "" {
		msg = fmt.Sprintf("command exited with status %d", exitCode)
	}
	return &Error{
		Code:    ErrCommand,
		Message: msg,
		Cause: &CommandFailure{
			Command:  command,
			ExitCode: exitCode,
			Stderr:   stderr,
		},
	}
}

// AsCommandFailure extracts the CommandFailure from err, if any.
func AsCommandFailure(err error) (*CommandFailure, bool) {
	var f *CommandFailure
	if errors.As(err, &f) {
		return f, true
	}
	return nil, false
}

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder

	// First line: failure symbol + main message
	b.WriteString(fmt.Sprintf("✗ %s\n", e.Message))

	// Include cause if present (why it failed)
	if e.Cause != nil {
		b.WriteString(fmt.Sprintf("\n  %s\n", e.Cause.Error()))
	}

	// Include suggestion if present (how to fix)
	if e.Suggestion != "" {
		b.WriteString(fmt.Sprintf("\n  %s\n", e.Suggestion))
	}

	return b.String()
}

// Unwrap returns the underlying cause for use with errors.Is/errors.As.
func (e *Error) Unwrap() error {
	return e.Cause
}

// IsCode checks if an error is a structured Error with the given code.
// Only the outermost structured error in the chain is consulted.
func IsCode(err error, code string) bool {
	if err == nil {
		return false
	}
	var sErr *Error
	if errors.As(err, &sErr) {
		return sErr.Code == code
	}
	return false
}

// Code returns the code of the outermost structured error, or "" if err has none.
func Code(err error) string {
	var sErr *Error
	if errors.As(err, &sErr) {
		return sErr.Code
	}
	return ""
}
