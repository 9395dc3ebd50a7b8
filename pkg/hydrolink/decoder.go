// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package hydrolink

import (
	"math"
	"strconv"
	"strings"
	"time"
)

// Decoder turns inbound lines into messages against a fixed sensor schema
type Decoder struct {
	schema Schema
	now    func() time.Time
}

// NewDecoder creates a decoder for the given sensor schema
func NewDecoder(schema Schema) *Decoder {
	return &Decoder{schema: schema, now: time.Now}
}

// Schema returns the sensor schema used for SSTATE lines
func (d *Decoder) Schema() Schema {
	return d.schema
}

// Decode parses one line (without terminator). Surrounding whitespace is
// ignored. Any failure returns a *DecodeError and no message.
func (d *Decoder) Decode(line string) (*Message, error) {
	line = strings.TrimSpace(line)
	msg := &Message{raw: line, timestamp: d.now()}

	switch {
	case line == "":
		return nil, decodeError(line, "empty line", nil)

	case line == PingAck:
		msg.msgType = MsgPingAck
		return msg, nil

	case strings.HasPrefix(line, PrefixRelayState):
		report, err := DecodeRelayReport(line)
		if err != nil {
			return nil, err
		}
		msg.msgType = MsgRelayState
		msg.relay = report
		return msg, nil

	case strings.HasPrefix(line, PrefixSensorState):
		report, err := DecodeSensorReport(line, d.schema)
		if err != nil {
			return nil, err
		}
		msg.msgType = MsgSensorState
		msg.sensor = report
		return msg, nil

	case strings.HasPrefix(line, PrefixTime):
		report, err := DecodeTimeReport(line)
		if err != nil {
			return nil, err
		}
		msg.msgType = MsgTime
		msg.clock = report
		return msg, nil
	}

	return nil, decodeError(line, "unknown message", nil)
}

// DecodeRelayReport parses "RSTATE:<code>=<int>,..."
func DecodeRelayReport(line string) (RelayReport, error) {
	payload, ok := strings.CutPrefix(line, PrefixRelayState)
	if !ok {
		return RelayReport{}, decodeError(line, "missing RSTATE prefix", nil)
	}
	payload = strings.TrimSpace(payload)
	if payload == "" {
		return RelayReport{}, decodeError(line, "empty relay payload", nil)
	}

	entries := strings.Split(payload, entrySep)
	codes := make([]string, 0, len(entries))
	values := make([]int, 0, len(entries))
	for _, entry := range entries {
		code, raw, found := strings.Cut(entry, assignSep)
		if !found {
			return RelayReport{}, decodeError(line, "entry "+strconv.Quote(entry)+" has no '='", nil)
		}
		code = strings.TrimSpace(code)
		if code == "" {
			return RelayReport{}, decodeError(line, "entry with empty code", nil)
		}
		v, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil {
			return RelayReport{}, decodeError(line, "relay "+code+" value", err)
		}
		codes = append(codes, code)
		values = append(values, v)
	}

	return NewRelayReport(codes, values), nil
}

// DecodeSensorReport parses "SSTATE:<v1>,...,<vN>" against schema
func DecodeSensorReport(line string, schema Schema) (SensorReport, error) {
	payload, ok := strings.CutPrefix(line, PrefixSensorState)
	if !ok {
		return SensorReport{}, decodeError(line, "missing SSTATE prefix", nil)
	}

	parts := strings.Split(payload, entrySep)
	if len(parts) != schema.Arity() {
		return SensorReport{}, decodeError(line,
			"got "+strconv.Itoa(len(parts))+" values, want "+strconv.Itoa(schema.Arity()), ErrArityMismatch)
	}

	values := make([]float64, len(parts))
	for i, raw := range parts {
		f := schema.Field(i)
		v, err := parseValue(strings.TrimSpace(raw), f.Kind)
		if err != nil {
			return SensorReport{}, decodeError(line, "sensor "+f.Name, err)
		}
		values[i] = v
	}

	return SensorReport{Values: values}, nil
}

// DecodeTimeReport parses "TIME:HH:MM:SS"
func DecodeTimeReport(line string) (TimeReport, error) {
	payload, ok := strings.CutPrefix(line, PrefixTime)
	if !ok {
		return TimeReport{}, decodeError(line, "missing TIME prefix", nil)
	}

	parts := strings.Split(strings.TrimSpace(payload), fieldSep)
	if len(parts) != 3 {
		return TimeReport{}, decodeError(line, "time must be HH:MM:SS", nil)
	}

	var hms [3]int
	for i, p := range parts {
		v, err := strconv.Atoi(p)
		if err != nil {
			return TimeReport{}, decodeError(line, "time component", err)
		}
		hms[i] = v
	}

	t := TimeReport{Hour: hms[0], Minute: hms[1], Second: hms[2]}
	if t.Hour < 0 || t.Hour > 23 || t.Minute < 0 || t.Minute > 59 || t.Second < 0 || t.Second > 59 {
		return TimeReport{}, decodeError(line, "time out of range", nil)
	}
	return t, nil
}

func parseValue(raw string, kind NumericKind) (float64, error) {
	switch kind {
	case KindInt:
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return 0, err
		}
		return float64(v), nil

	case KindSwitch:
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return 0, err
		}
		if v != 0 && v != 1 {
			return 0, strconv.ErrRange
		}
		return float64(v), nil

	default:
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return 0, err
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return 0, strconv.ErrSyntax
		}
		return v, nil
	}
}
