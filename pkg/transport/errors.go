// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package transport

import (
	"errors"
	"fmt"
)

var (
	// ErrConnection matches every *ConnectionError via errors.Is.
	ErrConnection = errors.New("transport: connection failed")

	// ErrWrite matches every *WriteError via errors.Is.
	ErrWrite = errors.New("transport: write failed")

	// ErrNoDevice is reported when discovery finds no candidate port.
	ErrNoDevice = errors.New("transport: no device found")

	// ErrLinkClosed is returned by operations on a closed or invalidated link.
	ErrLinkClosed = errors.New("transport: link closed")
)

// ConnectionError describes a failure to find, open or read from a device
type ConnectionError struct {
	Op     string
	Target string
	Err    error
}

// Error implements the error interface
func (e *ConnectionError) Error() string {
	if e.Target == "" {
		return fmt.Sprintf("transport: %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("transport: %s %s: %v", e.Op, e.Target, e.Err)
}

// Unwrap returns the underlying cause
func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// Is reports whether target is ErrConnection
func (e *ConnectionError) Is(target error) bool {
	return target == ErrConnection
}

// WriteError describes a failed write. The link that produced it is no
// longer usable.
type WriteError struct {
	Target string
	Err    error
}

// Error implements the error interface
func (e *WriteError) Error() string {
	if e.Target == "" {
		return fmt.Sprintf("transport: write: %v", e.Err)
	}
	return fmt.Sprintf("transport: write %s: %v", e.Target, e.Err)
}

// Unwrap returns the underlying cause
func (e *WriteError) Unwrap() error {
	return e.Err
}

// Is reports whether target is ErrWrite
func (e *WriteError) Is(target error) bool {
	return target == ErrWrite
}
