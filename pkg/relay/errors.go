// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package relay

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownDevice matches every *UnknownDeviceError via errors.Is.
	ErrUnknownDevice = errors.New("relay: unknown device")

	// ErrInvalidDevices is returned by NewRegistry for a bad device table.
	ErrInvalidDevices = errors.New("relay: invalid device table")
)

// UnknownDeviceError is returned when a key is not in the device table
type UnknownDeviceError struct {
	Key string
}

// Error implements the error interface
func (e *UnknownDeviceError) Error() string {
	return fmt.Sprintf("relay: unknown device %q", e.Key)
}

// Is reports whether target is ErrUnknownDevice
func (e *UnknownDeviceError) Is(target error) bool {
	return target == ErrUnknownDevice
}
