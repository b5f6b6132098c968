// Package apperr implements the core's closed error taxonomy (spec §7):
// OK is represented by a nil error; every failure path returns one of the
// ErrorType values below, wrapped with enough context to log and to act
// on (retry, fall back to defaults, abort a task).
package apperr

import (
	"errors"
	"fmt"
)

// ErrorType is one member of the closed taxonomy from spec §7. It is
// intentionally not an HTTP status code — this core has no network
// transport.
type ErrorType string

const (
	InvalidParam   ErrorType = "invalid_param"
	NotInitialized ErrorType = "not_initialized"
	Hardware       ErrorType = "hardware"
	Busy           ErrorType = "busy"
	QueueFull      ErrorType = "queue_full"
	Timeout        ErrorType = "timeout"
	Config         ErrorType = "config"
	RTCFailure     ErrorType = "rtc_failure"
	Storage        ErrorType = "storage"
	DataCorrupt    ErrorType = "data_corrupt"
	InvalidData    ErrorType = "invalid_data"
	BufferFull     ErrorType = "buffer_full"
	NoMemory       ErrorType = "no_memory"
	SolarFallback  ErrorType = "solar_fallback"
	Internal       ErrorType = "internal"
)

// Error is the core's structured error value. Every entry point in
// spec.md returns one of these (or nil) instead of a raw error, so
// callers can branch on Type without string matching.
type Error struct {
	Type    ErrorType
	Message string
	Details string
	Cause   error
}

// New creates an Error with no underlying cause.
func New(t ErrorType, message string) *Error {
	return &Error{Type: t, Message: message}
}

// Newf creates an Error with a formatted message.
func Newf(t ErrorType, format string, args ...any) *Error {
	return &Error{Type: t, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches an ErrorType and message to an underlying cause.
func Wrap(cause error, t ErrorType, message string) *Error {
	return &Error{Type: t, Message: message, Cause: cause}
}

// Wrapf is Wrap with a formatted message.
func Wrapf(cause error, t ErrorType, format string, args ...any) *Error {
	return &Error{Type: t, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// WithDetails attaches extra context, modifying the receiver in place
// and returning it so call sites can chain construction.
func (e *Error) WithDetails(details string) *Error {
	e.Details = details
	return e
}

// WithDetailsf is WithDetails with a formatted string.
func (e *Error) WithDetailsf(format string, args ...any) *Error {
	e.Details = fmt.Sprintf(format, args...)
	return e
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Type, e.Message)
	if e.Details != "" {
		msg = fmt.Sprintf("%s (%s)", msg, e.Details)
	}
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Cause }

// IsType reports whether err is an *Error of the given type.
func IsType(err error, t ErrorType) bool {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Type == t
	}
	return false
}

// GetType returns the ErrorType of err, or Internal if err is not an
// *Error (or is nil, in which case it still returns Internal — callers
// should not call GetType on a nil error).
func GetType(err error) ErrorType {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Type
	}
	return Internal
}

// LogFields renders err as a structured field map suitable for
// logrus.WithFields.
func LogFields(err error) map[string]any {
	fields := map[string]any{"error": err.Error()}
	var ae *Error
	if errors.As(err, &ae) {
		fields["error_type"] = string(ae.Type)
		if ae.Details != "" {
			fields["error_details"] = ae.Details
		}
		if ae.Cause != nil {
			fields["underlying_error"] = ae.Cause.Error()
		}
	}
	return fields
}

// Chain joins non-nil errors into a single error, skipping nils. It
// returns nil if every argument is nil, the single error unchanged if
// exactly one is non-nil, and otherwise a joined error whose message
// concatenates each with " -> ". Used by cancel_all_tasks-style bulk
// operations that must report every failure, not just the first.
func Chain(errs ...error) error {
	var nonNil []error
	for _, e := range errs {
		if e != nil {
			nonNil = append(nonNil, e)
		}
	}
	switch len(nonNil) {
	case 0:
		return nil
	case 1:
		return nonNil[0]
	default:
		msg := nonNil[0].Error()
		for _, e := range nonNil[1:] {
			msg += " -> " + e.Error()
		}
		return errors.New(msg)
	}
}
