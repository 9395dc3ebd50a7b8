// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package hydrolink implements the newline-delimited ASCII protocol spoken by
// the hydroponics controller firmware.
//
// The microcontroller reports relay state (RSTATE), sensor telemetry (SSTATE)
// and its wall clock (TIME), and answers liveness probes with PING_OK. The
// host sends relay commands, clock updates and schedule resets. This package
// decodes inbound lines into messages, formats outbound commands, and keeps
// line statistics. It performs no I/O.
package hydrolink

// Default link parameters
const (
	DefaultBaudRate = 9600
	MaxLineLength   = 1024
)

// Inbound message prefixes (Controller → Host)
const (
	PrefixRelayState  = "RSTATE:"
	PrefixSensorState = "SSTATE:"
	PrefixTime        = "TIME:"
	PingAck           = "PING_OK"
)

// Outbound commands (Host → Controller)
const (
	CmdPing          = "PING"
	CmdSetTime       = "SET_TIME"
	CmdResetSchedule = "RESET_SCHEDULE"
	CmdGetState      = "GET_STATE"
)

// Relay command states
const (
	StateOn  = "ON"
	StateOff = "OFF"
)

// Separators used on the wire
const (
	lineTerminator = "\n"
	entrySep       = ","
	assignSep      = "="
	fieldSep       = ":"
)

// MessageType identifies the kind of a decoded inbound line
type MessageType uint8

const (
	MsgUnknown MessageType = iota
	MsgRelayState
	MsgSensorState
	MsgTime
	MsgPingAck
)
