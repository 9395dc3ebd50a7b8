// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package hydrolink

import (
	"errors"
	"fmt"
)

var (
	// ErrDecode matches every *DecodeError via errors.Is.
	ErrDecode = errors.New("hydrolink: decode failed")

	// ErrArityMismatch is wrapped by a DecodeError when an SSTATE line carries
	// a different number of values than the configured schema.
	ErrArityMismatch = errors.New("hydrolink: sensor value count does not match schema")

	// ErrInvalidSchema is returned when a schema has no fields or duplicate names.
	ErrInvalidSchema = errors.New("hydrolink: invalid sensor schema")
)

// DecodeError describes an inbound line that could not be turned into a message.
// The whole record is discarded when this is returned.
type DecodeError struct {
	Line   string
	Reason string
	Err    error
}

// Error implements the error interface
func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("hydrolink: decode %q: %s: %v", e.Line, e.Reason, e.Err)
	}
	return fmt.Sprintf("hydrolink: decode %q: %s", e.Line, e.Reason)
}

// Unwrap returns the underlying cause, if any
func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Is reports whether target is ErrDecode
func (e *DecodeError) Is(target error) bool {
	return target == ErrDecode
}

func decodeError(line, reason string, err error) *DecodeError {
	return &DecodeError{Line: line, Reason: reason, Err: err}
}
