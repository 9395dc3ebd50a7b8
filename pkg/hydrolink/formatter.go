// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package hydrolink

import (
	"fmt"
	"strconv"
	"strings"
)

// FormatMessage formats a message into a human-readable string
func FormatMessage(m *Message, schema Schema) string {
	timestamp := m.timestamp.Format("15:04:05.000")
	result := fmt.Sprintf("[%s] %s\n", timestamp, m.msgType)

	switch m.msgType {
	case MsgRelayState:
		result += FormatRelayReport(m.relay)
	case MsgSensorState:
		result += FormatSensorReport(m.sensor, schema)
	case MsgTime:
		result += fmt.Sprintf("  device_time: %s\n", m.clock)
	}

	return result
}

// FormatRelayReport renders each code on its own line as ON/OFF
func FormatRelayReport(r RelayReport) string {
	var b strings.Builder
	for _, code := range r.Codes {
		on, _ := r.On(code)
		state := StateOff
		if on {
			state = StateOn
		}
		fmt.Fprintf(&b, "  %s: %s\n", code, state)
	}
	return b.String()
}

// FormatSensorReport renders each value with its schema name and unit
func FormatSensorReport(r SensorReport, schema Schema) string {
	var b strings.Builder
	for i, v := range r.Values {
		name := fmt.Sprintf("value_%d", i)
		var f Field
		if i < schema.Arity() {
			f = schema.Field(i)
			name = f.Name
		}
		fmt.Fprintf(&b, "  %s: %s\n", name, FormatValue(v, f))
	}
	return b.String()
}

// FormatValue renders a single reading according to its field kind
func FormatValue(v float64, f Field) string {
	switch f.Kind {
	case KindSwitch:
		if v != 0 {
			return "closed"
		}
		return "open"
	case KindInt:
		s := strconv.FormatInt(int64(v), 10)
		if f.Unit != "" {
			s += " " + f.Unit
		}
		return s
	default:
		s := strconv.FormatFloat(v, 'f', 1, 64)
		if f.Unit != "" {
			s += " " + f.Unit
		}
		return s
	}
}
