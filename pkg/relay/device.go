// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package relay holds the authoritative ON/OFF state of every relay on the
// controller. Local toggles flip state optimistically and emit a command;
// RSTATE reports from the device overwrite state unconditionally.
package relay

import "fmt"

// Device identifies one relay: a symbolic key, its two-letter wire code and a
// display name
type Device struct {
	Key         string
	Code        string
	Name        string
	Description string
}

// DefaultDevices is the relay table of the stock controller firmware
var DefaultDevices = []Device{
	{Key: "lights_top", Code: "LT", Name: "Lights (Top)"},
	{Key: "lights_bottom", Code: "LB", Name: "Lights (Bottom)"},
	{Key: "pump_top", Code: "PT", Name: "Pump (Top)"},
	{Key: "pump_bottom", Code: "PB", Name: "Pump (Bottom)"},
	{Key: "fan_vent", Code: "FV", Name: "Vent Fan"},
	{Key: "fan_circ", Code: "FC", Name: "Circulation Fan"},
	{Key: "heater", Code: "HE", Name: "Heater"},
}

// ValidateDevices checks that keys and codes are non-empty and that the
// key↔code mapping is one-to-one
func ValidateDevices(devices []Device) error {
	if len(devices) == 0 {
		return fmt.Errorf("%w: no devices", ErrInvalidDevices)
	}

	keys := make(map[string]bool, len(devices))
	codes := make(map[string]bool, len(devices))
	for i, d := range devices {
		if d.Key == "" || d.Code == "" {
			return fmt.Errorf("%w: device %d needs both key and code", ErrInvalidDevices, i)
		}
		if keys[d.Key] {
			return fmt.Errorf("%w: duplicate key %q", ErrInvalidDevices, d.Key)
		}
		if codes[d.Code] {
			return fmt.Errorf("%w: duplicate code %q", ErrInvalidDevices, d.Code)
		}
		keys[d.Key] = true
		codes[d.Code] = true
	}
	return nil
}

// DisplayName returns Name, falling back to Key
func (d Device) DisplayName() string {
	if d.Name != "" {
		return d.Name
	}
	return d.Key
}
