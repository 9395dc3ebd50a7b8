// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package session

import (
	"errors"

	"github.com/Thermoquad/hydrostat/pkg/transport"
)

// Status is the connectivity of the session
type Status int

const (
	Disconnected Status = iota
	Connecting
	Connected
)

// String returns the status name
func (s Status) String() string {
	switch s {
	case Disconnected:
		return "Disconnected"
	case Connecting:
		return "Connecting"
	case Connected:
		return "Connected"
	default:
		return "Unknown"
	}
}

var (
	// ErrNotConnected is returned by commands issued while no link is live.
	// It is a *transport.WriteError, so it also matches transport.ErrWrite.
	ErrNotConnected error = &transport.WriteError{Err: errors.New("session: not connected")}

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("session: closed")

	// ErrAlreadyStarted is returned by a second call to Start.
	ErrAlreadyStarted = errors.New("session: already started")
)
