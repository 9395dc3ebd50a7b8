// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package export publishes periodic status snapshots of the controller to
// external sinks: a status.json file, MQTT, InfluxDB, DynamoDB and a local
// SQLite history.
//
// Sinks only read state. A failing sink is logged and never touches the
// device session.
package export

import (
	"time"

	"github.com/Thermoquad/hydrostat/internal/schedule"
	"github.com/Thermoquad/hydrostat/pkg/hydrolink"
	"github.com/Thermoquad/hydrostat/pkg/relay"
	"github.com/Thermoquad/hydrostat/pkg/sensor"
	"github.com/Thermoquad/hydrostat/pkg/session"
)

// Status is the document every sink receives
type Status struct {
	Timestamp  time.Time      `json:"timestamp" cbor:"timestamp" dynamodbav:"timestamp"`
	Connected  bool           `json:"connected" cbor:"connected" dynamodbav:"connected"`
	Connection string         `json:"connection" cbor:"connection" dynamodbav:"connection"`
	Relays     []RelayStatus  `json:"relays" cbor:"relays" dynamodbav:"relays"`
	Sensors    []SensorStatus `json:"sensors" cbor:"sensors" dynamodbav:"sensors"`
	SensorAge  float64        `json:"sensor_age_seconds" cbor:"sensor_age_seconds" dynamodbav:"sensor_age_seconds"`
	Clock      *ClockStatus   `json:"clock,omitempty" cbor:"clock,omitempty" dynamodbav:"clock,omitempty"`
	Link       LinkStats      `json:"link" cbor:"link" dynamodbav:"link"`
}

// RelayStatus is one relay row
type RelayStatus struct {
	Key         string `json:"key" cbor:"key" dynamodbav:"key"`
	Code        string `json:"code" cbor:"code" dynamodbav:"code"`
	Name        string `json:"name" cbor:"name" dynamodbav:"name"`
	On          bool   `json:"on" cbor:"on" dynamodbav:"on"`
	Schedule    string `json:"schedule,omitempty" cbor:"schedule,omitempty" dynamodbav:"schedule,omitempty"`
	ScheduledOn bool   `json:"scheduled_on" cbor:"scheduled_on" dynamodbav:"scheduled_on"`
}

// SensorStatus is one sensor reading
type SensorStatus struct {
	Name      string    `json:"name" cbor:"name" dynamodbav:"name"`
	Value     float64   `json:"value" cbor:"value" dynamodbav:"value"`
	Unit      string    `json:"unit,omitempty" cbor:"unit,omitempty" dynamodbav:"unit,omitempty"`
	Kind      string    `json:"kind" cbor:"kind" dynamodbav:"kind"`
	Display   string    `json:"display" cbor:"display" dynamodbav:"display"`
	UpdatedAt time.Time `json:"updated_at" cbor:"updated_at" dynamodbav:"updated_at"`
}

// ClockStatus is the last device clock report
type ClockStatus struct {
	Device       string    `json:"device" cbor:"device" dynamodbav:"device"`
	DriftSeconds float64   `json:"drift_seconds" cbor:"drift_seconds" dynamodbav:"drift_seconds"`
	ReceivedAt   time.Time `json:"received_at" cbor:"received_at" dynamodbav:"received_at"`
	LastSync     time.Time `json:"last_sync,omitempty" cbor:"last_sync,omitempty" dynamodbav:"last_sync,omitempty"`
}

// LinkStats is the subset of decoder counters worth exporting
type LinkStats struct {
	TotalLines    uint64 `json:"total_lines" cbor:"total_lines" dynamodbav:"total_lines"`
	ValidMessages uint64 `json:"valid_messages" cbor:"valid_messages" dynamodbav:"valid_messages"`
	DecodeErrors  uint64 `json:"decode_errors" cbor:"decode_errors" dynamodbav:"decode_errors"`
	Anomalies     uint64 `json:"anomalies" cbor:"anomalies" dynamodbav:"anomalies"`
}

// RelaySource is the read side of relay.Registry
type RelaySource interface {
	Devices() []relay.Device
	Snapshot() map[string]bool
}

// SensorSource is the read side of sensor.Cache
type SensorSource interface {
	Ordered() []sensor.Reading
	LastUpdate() time.Time
}

// SessionSource is the read side of session.Session
type SessionSource interface {
	Status() session.Status
	ConnectionInfo() string
	Clock() session.ClockInfo
	Stats() hydrolink.Counters
}

// Sources gathers everything a snapshot is built from. Schedule may be nil.
type Sources struct {
	Relays   RelaySource
	Sensors  SensorSource
	Session  SessionSource
	Schedule *schedule.Table
}

// Build takes a snapshot at now
func Build(src Sources, now time.Time) Status {
	st := Status{
		Timestamp: now.UTC(),
		Relays:    []RelayStatus{},
		Sensors:   []SensorStatus{},
	}

	if src.Session != nil {
		st.Connected = src.Session.Status() == session.Connected
		st.Connection = src.Session.ConnectionInfo()

		c := src.Session.Stats()
		st.Link = LinkStats{
			TotalLines:    c.TotalLines,
			ValidMessages: c.ValidMessages,
			DecodeErrors:  c.DecodeErrors,
			Anomalies:     c.AnomalousLines,
		}

		if clock := src.Session.Clock(); !clock.ReceivedAt.IsZero() {
			st.Clock = &ClockStatus{
				Device:       clock.Device.String(),
				DriftSeconds: clock.Drift.Seconds(),
				ReceivedAt:   clock.ReceivedAt.UTC(),
				LastSync:     clock.LastSync.UTC(),
			}
		}
	}

	if src.Relays != nil {
		state := src.Relays.Snapshot()
		for _, d := range src.Relays.Devices() {
			st.Relays = append(st.Relays, RelayStatus{
				Key:         d.Key,
				Code:        d.Code,
				Name:        d.DisplayName(),
				On:          state[d.Key],
				Schedule:    src.Schedule.Describe(d.Code),
				ScheduledOn: src.Schedule.Active(d.Code, now),
			})
		}
	}

	if src.Sensors != nil {
		for _, r := range src.Sensors.Ordered() {
			st.Sensors = append(st.Sensors, SensorStatus{
				Name:      r.Name,
				Value:     r.Value,
				Unit:      r.Unit,
				Kind:      r.Kind.String(),
				Display:   r.String(),
				UpdatedAt: r.UpdatedAt.UTC(),
			})
		}
		if last := src.Sensors.LastUpdate(); !last.IsZero() {
			st.SensorAge = now.Sub(last).Seconds()
		}
	}

	return st
}

// Relay returns the relay row for key
func (s Status) Relay(key string) (RelayStatus, bool) {
	for _, r := range s.Relays {
		if r.Key == key {
			return r, true
		}
	}
	return RelayStatus{}, false
}

// Sensor returns the reading for name
func (s Status) Sensor(name string) (SensorStatus, bool) {
	for _, r := range s.Sensors {
		if r.Name == name {
			return r, true
		}
	}
	return SensorStatus{}, false
}
