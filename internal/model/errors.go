package model

import (
	"errors"
	"fmt"
)

var (
	ErrMalformedPayload  = errors.New("malformed payload")
	ErrIllegalAction     = errors.New("illegal action")
	ErrProtocolViolation = errors.New("protocol violation")
	ErrTimeout           = errors.New("timeout")
	ErrChannelLoss       = errors.New("event channel lost")
	ErrNotFound          = errors.New("not found")
)

// MalformedPayloadError names the field that failed validation.
// Field is a dotted/indexed path, e.g. "players[1].eggs".
type MalformedPayloadError struct {
	Field  string
	Reason string
}

func (e *MalformedPayloadError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%s: %s", ErrMalformedPayload, e.Reason)
	}
	return fmt.Sprintf("%s: %s: %s", ErrMalformedPayload, e.Field, e.Reason)
}

func (e *MalformedPayloadError) Is(target error) bool { return target == ErrMalformedPayload }

func malformed(field, reason string) error {
	return &MalformedPayloadError{Field: field, Reason: reason}
}

// within prefixes the field path of a nested MalformedPayloadError.
func within(prefix string, err error) error {
	var mp *MalformedPayloadError
	if !errors.As(err, &mp) {
		return err
	}
	field := prefix
	if mp.Field != "" {
		if mp.Field[0] == '[' {
			field += mp.Field
		} else {
			field += "." + mp.Field
		}
	}
	return &MalformedPayloadError{Field: field, Reason: mp.Reason}
}

// Illegal / Protocol build sentinel-wrapped errors with a human readable reason.
func Illegal(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrIllegalAction, fmt.Sprintf(format, args...))
}

func Protocol(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrProtocolViolation, fmt.Sprintf(format, args...))
}

// Wire error codes.
const (
	CodeMalformedPayload  = "malformed_payload"
	CodeIllegalAction     = "illegal_action"
	CodeProtocolViolation = "protocol_violation"
	CodeTimeout           = "timeout"
	CodeNotFound          = "not_found"
	CodeUnauthorized      = "unauthorized"
	CodeInternal          = "internal"
)

// ErrorPayload is the structured error sent over HTTP and the event channel.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// CodeOf classifies err into a wire code.
func CodeOf(err error) string {
	switch {
	case errors.Is(err, ErrMalformedPayload):
		return CodeMalformedPayload
	case errors.Is(err, ErrIllegalAction):
		return CodeIllegalAction
	case errors.Is(err, ErrProtocolViolation):
		return CodeProtocolViolation
	case errors.Is(err, ErrTimeout):
		return CodeTimeout
	case errors.Is(err, ErrNotFound):
		return CodeNotFound
	default:
		return CodeInternal
	}
}

// ErrorFromCode is the client-side inverse of CodeOf.
func ErrorFromCode(code, msg string) error {
	var base error
	switch code {
	case CodeMalformedPayload:
		base = ErrMalformedPayload
	case CodeIllegalAction:
		base = ErrIllegalAction
	case CodeProtocolViolation:
		base = ErrProtocolViolation
	case CodeTimeout:
		base = ErrTimeout
	case CodeNotFound:
		base = ErrNotFound
	default:
		return fmt.Errorf("remote error %s: %s", code, msg)
	}
	return fmt.Errorf("%w: %s", base, msg)
}
