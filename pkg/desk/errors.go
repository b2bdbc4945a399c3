// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package desk

import (
	"errors"
	"fmt"
)

// ParseErrorKind classifies request decoding failures
type ParseErrorKind int

// Parse error kinds
const (
	Malformed ParseErrorKind = iota
	BadCommand
	BadSubcommand
	InvalidArgument
)

// Reason returns the machine-stable reply reason for the kind
func (k ParseErrorKind) Reason() string {
	switch k {
	case Malformed:
		return "malformed request"
	case BadCommand:
		return "bad command"
	case BadSubcommand:
		return "bad subcommand"
	case InvalidArgument:
		return "invalid argument"
	default:
		return "parse error"
	}
}

// ParseError is returned by Parse
type ParseError struct {
	Kind   ParseErrorKind
	Detail string
}

// Error implements the error interface
func (e *ParseError) Error() string {
	if e.Detail == "" {
		return e.Kind.Reason()
	}
	return e.Kind.Reason() + ": " + e.Detail
}

// Is matches another *ParseError of the same kind
func (e *ParseError) Is(target error) bool {
	t, ok := target.(*ParseError)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

func parseErrorf(kind ParseErrorKind, format string, args ...interface{}) *ParseError {
	return &ParseError{Kind: kind, Detail: fmt.Sprintf(format, args...)}
}

// ControllerErrorKind classifies controller failures
type ControllerErrorKind int

// Controller error kinds
const (
	OutOfRange ControllerErrorKind = iota
	NotImplemented
	DeviceUnavailable
)

// Reason returns the machine-stable reply reason for the kind
func (k ControllerErrorKind) Reason() string {
	switch k {
	case OutOfRange:
		return "out of range"
	case NotImplemented:
		return "not implemented"
	case DeviceUnavailable:
		return "device unavailable"
	default:
		return "controller error"
	}
}

// ControllerError is returned by Controller operations
type ControllerError struct {
	Kind   ControllerErrorKind
	Detail string
	Err    error
}

// Error implements the error interface
func (e *ControllerError) Error() string {
	msg := e.Kind.Reason()
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the transport error behind a DeviceUnavailable failure
func (e *ControllerError) Unwrap() error {
	return e.Err
}

// Is matches another *ControllerError of the same kind
func (e *ControllerError) Is(target error) bool {
	t, ok := target.(*ControllerError)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// Sentinels for errors.Is
var (
	ErrMalformed       = &ParseError{Kind: Malformed}
	ErrBadCommand      = &ParseError{Kind: BadCommand}
	ErrBadSubcommand   = &ParseError{Kind: BadSubcommand}
	ErrInvalidArgument = &ParseError{Kind: InvalidArgument}

	ErrOutOfRange        = &ControllerError{Kind: OutOfRange}
	ErrNotImplemented    = &ControllerError{Kind: NotImplemented}
	ErrDeviceUnavailable = &ControllerError{Kind: DeviceUnavailable}
)

// Transport and dispatch errors
var (
	// ErrLinkClosed means the device link is gone, not just slow
	ErrLinkClosed      = errors.New("device link closed")
	ErrSendTimeout     = errors.New("device write timed out")
	ErrShortWrite      = errors.New("short write to device")
	ErrNotEncodable    = errors.New("command has no direct frame encoding")
	ErrUnknownResource = errors.New("unknown resource")
)
