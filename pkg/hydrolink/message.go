// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package hydrolink

import (
	"fmt"
	"time"
)

// RelayReport is the decoded payload of an RSTATE line. Codes keeps wire
// order; a code repeated on one line keeps its last value.
type RelayReport struct {
	Codes  []string
	values map[string]int
}

// NewRelayReport builds a report from ordered (code, value) pairs
func NewRelayReport(codes []string, values []int) RelayReport {
	r := RelayReport{values: make(map[string]int, len(codes))}
	for i, code := range codes {
		if _, seen := r.values[code]; !seen {
			r.Codes = append(r.Codes, code)
		}
		r.values[code] = values[i]
	}
	return r
}

// Value returns the raw integer reported for code
func (r RelayReport) Value(code string) (int, bool) {
	v, ok := r.values[code]
	return v, ok
}

// On reports whether code was reported with a non-zero value
func (r RelayReport) On(code string) (on bool, ok bool) {
	v, ok := r.values[code]
	return v != 0, ok
}

// Len returns the number of distinct codes
func (r RelayReport) Len() int {
	return len(r.Codes)
}

// SensorReport is the decoded payload of an SSTATE line. Values are in
// schema order; int and switch kinds are stored as whole floats.
type SensorReport struct {
	Values []float64
}

// TimeReport is the device clock reported by a TIME line
type TimeReport struct {
	Hour   int
	Minute int
	Second int
}

// String formats the report as HH:MM:SS
func (t TimeReport) String() string {
	return fmt.Sprintf("%02d:%02d:%02d", t.Hour, t.Minute, t.Second)
}

// SecondsOfDay returns the clock as seconds since midnight
func (t TimeReport) SecondsOfDay() int {
	return t.Hour*3600 + t.Minute*60 + t.Second
}

// Drift returns how far the device clock is ahead of now's wall clock.
// The result is folded into (-12h, 12h] so a report straddling midnight
// does not show a day of drift.
func (t TimeReport) Drift(now time.Time) time.Duration {
	host := now.Hour()*3600 + now.Minute()*60 + now.Second()
	d := t.SecondsOfDay() - host
	const day = 24 * 3600
	if d > day/2 {
		d -= day
	} else if d <= -day/2 {
		d += day
	}
	return time.Duration(d) * time.Second
}

// Message represents one decoded inbound line
type Message struct {
	msgType   MessageType
	raw       string
	timestamp time.Time
	relay     RelayReport
	sensor    SensorReport
	clock     TimeReport
}

// Type returns the message kind
func (m *Message) Type() MessageType {
	return m.msgType
}

// Raw returns the line the message was decoded from
func (m *Message) Raw() string {
	return m.raw
}

// Timestamp returns when the message was decoded
func (m *Message) Timestamp() time.Time {
	return m.timestamp
}

// RelayReport returns the payload of an RSTATE message
func (m *Message) RelayReport() (RelayReport, bool) {
	return m.relay, m.msgType == MsgRelayState
}

// SensorReport returns the payload of an SSTATE message
func (m *Message) SensorReport() (SensorReport, bool) {
	return m.sensor, m.msgType == MsgSensorState
}

// TimeReport returns the payload of a TIME message
func (m *Message) TimeReport() (TimeReport, bool) {
	return m.clock, m.msgType == MsgTime
}

// String returns the short message type name
func (t MessageType) String() string {
	switch t {
	case MsgRelayState:
		return "RELAY_STATE"
	case MsgSensorState:
		return "SENSOR_STATE"
	case MsgTime:
		return "TIME"
	case MsgPingAck:
		return "PING_OK"
	default:
		return "UNKNOWN"
	}
}
