// Unified error handling for the winder host
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package errors

import (
	"fmt"
	"runtime"
)

// ErrorCode represents the category of error
type ErrorCode string

const (
	// Configuration errors (bad calibration, invalid specs - caught before dispatch)
	ErrConfigSection    ErrorCode = "CONFIG_SECTION"
	ErrConfigOption     ErrorCode = "CONFIG_OPTION"
	ErrConfigValidation ErrorCode = "CONFIG_VALIDATION"
	ErrConfigSpec       ErrorCode = "CONFIG_SPEC"

	// Protocol errors (malformed command construction or parsing)
	ErrProtocolParse      ErrorCode = "PROTOCOL_PARSE"
	ErrProtocolUnknownCmd ErrorCode = "PROTOCOL_UNKNOWN_CMD"
	ErrProtocolNoAxes     ErrorCode = "PROTOCOL_NO_AXES"
	ErrProtocolWord       ErrorCode = "PROTOCOL_WORD"

	// Execution link errors (dispatch failures, surfaced to the caller)
	ErrLinkClosed      ErrorCode = "LINK_CLOSED"
	ErrLinkUnavailable ErrorCode = "LINK_UNAVAILABLE"
	ErrLinkRejected    ErrorCode = "LINK_REJECTED"

	// Hardware timing violations (cadence below minimum pulse width)
	ErrTimingCadence ErrorCode = "TIMING_CADENCE"

	// Runtime errors
	ErrRuntime         ErrorCode = "RUNTIME"
	ErrRuntimeInit     ErrorCode = "RUNTIME_INIT"
	ErrRuntimeBusy     ErrorCode = "RUNTIME_BUSY"
	ErrRuntimeNotHomed ErrorCode = "RUNTIME_NOT_HOMED"
)

// WinderError is the unified error type for the winder host system
type WinderError struct {
	// Code is the error category
	Code ErrorCode

	// Message is a human-readable error description
	Message string

	// Axis names the axis the error concerns (if applicable)
	Axis string

	// Section is the config section or context
	Section string

	// Option is the config option name (if applicable)
	Option string

	// Err wraps the underlying error
	Err error
}

// Error implements the error interface
func (e *WinderError) Error() string {
	switch {
	case e.Axis != "":
		return fmt.Sprintf("[%s:%s] %s", e.Code, e.Axis, e.Message)
	case e.Option != "":
		return fmt.Sprintf("[%s:%s] %s", e.Code, e.Option, e.Message)
	case e.Section != "":
		return fmt.Sprintf("[%s:%s] %s", e.Code, e.Section, e.Message)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *WinderError) Unwrap() error {
	return e.Err
}

// SetAxis sets the axis context
func (e *WinderError) SetAxis(axis string) *WinderError {
	e.Axis = axis
	return e
}

// SetSection sets the context section
func (e *WinderError) SetSection(section string) *WinderError {
	e.Section = section
	return e
}

// SetOption sets the config option
func (e *WinderError) SetOption(option string) *WinderError {
	e.Option = option
	return e
}

// New creates a new WinderError
func New(code ErrorCode, message string) *WinderError {
	return &WinderError{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an existing error with additional context
func Wrap(err error, code ErrorCode, message string) *WinderError {
	return &WinderError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Configuration errors

// SpecError creates an error for an invalid pulse or homing spec
func SpecError(axis, reason string) *WinderError {
	return New(ErrConfigSpec, reason).SetAxis(axis)
}

// CalibrationError creates an error for invalid axis calibration
func CalibrationError(axis, reason string) *WinderError {
	return New(ErrConfigValidation, reason).SetAxis(axis)
}

// Protocol errors

// ParseError creates an error for a command line that failed to parse
func ParseError(line, reason string) *WinderError {
	return New(ErrProtocolParse, fmt.Sprintf("failed to parse command %q: %s", line, reason))
}

// UnknownCommandError creates an error for an unknown letter code
func UnknownCommandError(code string) *WinderError {
	return New(ErrProtocolUnknownCmd, fmt.Sprintf("unknown command: %s", code))
}

// NoAxesError creates an error for a motion command with no axis words
func NoAxesError() *WinderError {
	return New(ErrProtocolNoAxes, "motion command must name at least one axis")
}

// WordError creates an error for a malformed axis word
func WordError(word, reason string) *WinderError {
	return New(ErrProtocolWord, fmt.Sprintf("invalid word %q: %s", word, reason))
}

// Link errors

// LinkError creates an error for an execution link failure
func LinkError(operation string, err error) *WinderError {
	return Wrap(err, ErrLinkUnavailable, fmt.Sprintf("link %s failed", operation))
}

// LinkRejectedError creates an error for a command rejected by the controller
func LinkRejectedError(response string) *WinderError {
	return New(ErrLinkRejected, fmt.Sprintf("controller rejected command: %s", response))
}

// Timing errors

// CadenceError creates an error for a requested cadence the hardware cannot produce.
// Rejected rather than clamped so commanded and actual feedrate never diverge silently.
func CadenceError(axis string, cycles, minCycles uint32) *WinderError {
	return New(ErrTimingCadence,
		fmt.Sprintf("requested cadence of %d cycles/step is below the %d cycle minimum pulse width", cycles, minCycles)).
		SetAxis(axis)
}

// Runtime errors

// RuntimeError creates a general runtime error
func RuntimeError(message string) *WinderError {
	return New(ErrRuntime, message)
}

// InitError creates an error for initialization failure
func InitError(component, reason string) *WinderError {
	return New(ErrRuntimeInit, fmt.Sprintf("failed to initialize %s: %s", component, reason))
}

// BusyError creates an error for dispatch to a non-terminal axis engine
func BusyError(axis string) *WinderError {
	return New(ErrRuntimeBusy, "axis engine has not reached a terminal state").SetAxis(axis)
}

// RecoverPanic safely recovers from panic and converts to error
func RecoverPanic() *WinderError {
	if r := recover(); r != nil {
		var err error
		switch x := r.(type) {
		case string:
			err = RuntimeError(fmt.Sprintf("panic: %s", x))
		case runtime.Error:
			err = RuntimeError(x.Error())
		case error:
			err = RuntimeError(x.Error())
		default:
			err = RuntimeError(fmt.Sprintf("panic: %v", x))
		}
		return err.(*WinderError)
	}
	return nil
}

// Is checks if error matches given error code
func Is(err error, code ErrorCode) bool {
	if werr, ok := err.(*WinderError); ok {
		return werr.Code == code
	}
	return false
}

// IsConfig checks if error is a configuration error
func IsConfig(err error) bool {
	return Is(err, ErrConfigSection) ||
		Is(err, ErrConfigOption) ||
		Is(err, ErrConfigValidation) ||
		Is(err, ErrConfigSpec)
}

// IsProtocol checks if error is a command protocol error
func IsProtocol(err error) bool {
	return Is(err, ErrProtocolParse) ||
		Is(err, ErrProtocolUnknownCmd) ||
		Is(err, ErrProtocolNoAxes) ||
		Is(err, ErrProtocolWord)
}

// IsLink checks if error is an execution link error
func IsLink(err error) bool {
	return Is(err, ErrLinkClosed) ||
		Is(err, ErrLinkUnavailable) ||
		Is(err, ErrLinkRejected)
}

// IsTiming checks if error is a hardware timing violation
func IsTiming(err error) bool {
	return Is(err, ErrTimingCadence)
}
