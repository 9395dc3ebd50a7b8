// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package relay

import (
	"sync"

	"github.com/Thermoquad/hydrostat/pkg/hydrolink"
)

// Sender delivers a relay command to the controller
type Sender interface {
	SendCommand(code string, on bool) error
}

// Source says where a state change came from
type Source int

const (
	SourceLocal Source = iota
	SourceRemote
)

// String returns "local" or "remote"
func (s Source) String() string {
	if s == SourceRemote {
		return "remote"
	}
	return "local"
}

// Change describes one relay transition
type Change struct {
	Device Device
	On     bool
	Source Source
}

// Observer is notified after every state change, outside the registry lock
type Observer interface {
	RelayChanged(Change)
}

// ObserverFunc adapts a function to Observer
type ObserverFunc func(Change)

// RelayChanged calls f(c)
func (f ObserverFunc) RelayChanged(c Change) {
	f(c)
}

// Registry is the authoritative relay state. Safe for concurrent use.
type Registry struct {
	mu        sync.Mutex
	devices   []Device
	byKey     map[string]int
	byCode    map[string]int
	state     []bool
	observers []Observer

	sender Sender
}

// NewRegistry builds a registry with every relay OFF
func NewRegistry(devices []Device, sender Sender) (*Registry, error) {
	if err := ValidateDevices(devices); err != nil {
		return nil, err
	}

	r := &Registry{
		devices: append([]Device(nil), devices...),
		byKey:   make(map[string]int, len(devices)),
		byCode:  make(map[string]int, len(devices)),
		state:   make([]bool, len(devices)),
		sender:  sender,
	}
	for i, d := range devices {
		r.byKey[d.Key] = i
		r.byCode[d.Code] = i
	}
	return r, nil
}

// Subscribe registers an observer
func (r *Registry) Subscribe(o Observer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.observers = append(r.observers, o)
}

// Toggle flips the relay and sends the matching command. The new state is
// kept even if sending fails; the send error is returned alongside it and the
// next RSTATE from the device reconciles.
func (r *Registry) Toggle(key string) (bool, error) {
	r.mu.Lock()
	i, ok := r.byKey[key]
	if !ok {
		r.mu.Unlock()
		return false, &UnknownDeviceError{Key: key}
	}
	r.state[i] = !r.state[i]
	on := r.state[i]
	dev := r.devices[i]
	sender := r.sender
	observers := r.observers
	r.mu.Unlock()

	notify(observers, Change{Device: dev, On: on, Source: SourceLocal})
	return on, send(sender, dev.Code, on)
}

// Set drives the relay to on and sends the command, even when the state
// already matches
func (r *Registry) Set(key string, on bool) error {
	r.mu.Lock()
	i, ok := r.byKey[key]
	if !ok {
		r.mu.Unlock()
		return &UnknownDeviceError{Key: key}
	}
	changed := r.state[i] != on
	r.state[i] = on
	dev := r.devices[i]
	sender := r.sender
	observers := r.observers
	r.mu.Unlock()

	if changed {
		notify(observers, Change{Device: dev, On: on, Source: SourceLocal})
	}
	return send(sender, dev.Code, on)
}

// ResendAll sends the current state of every relay in table order and stops
// at the first failure
func (r *Registry) ResendAll() error {
	r.mu.Lock()
	devices := append([]Device(nil), r.devices...)
	state := append([]bool(nil), r.state...)
	sender := r.sender
	r.mu.Unlock()

	for i, d := range devices {
		if err := send(sender, d.Code, state[i]); err != nil {
			return err
		}
	}
	return nil
}

// ApplyReport overwrites every known code in the report. Unknown codes are
// ignored and returned so callers can log them.
func (r *Registry) ApplyReport(report hydrolink.RelayReport) []string {
	var unknown []string
	var changes []Change

	r.mu.Lock()
	for _, code := range report.Codes {
		on, _ := report.On(code)
		i, ok := r.byCode[code]
		if !ok {
			unknown = append(unknown, code)
			continue
		}
		if r.state[i] != on {
			changes = append(changes, Change{Device: r.devices[i], On: on, Source: SourceRemote})
		}
		r.state[i] = on
	}
	observers := r.observers
	r.mu.Unlock()

	for _, c := range changes {
		notify(observers, c)
	}
	return unknown
}

// State returns the current state of key
func (r *Registry) State(key string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	i, ok := r.byKey[key]
	if !ok {
		return false, &UnknownDeviceError{Key: key}
	}
	return r.state[i], nil
}

// Snapshot returns the state of every relay keyed by device key
func (r *Registry) Snapshot() map[string]bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	snap := make(map[string]bool, len(r.devices))
	for i, d := range r.devices {
		snap[d.Key] = r.state[i]
	}
	return snap
}

// Devices returns the device table in configuration order
func (r *Registry) Devices() []Device {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Device(nil), r.devices...)
}

// Lookup returns the device for key
func (r *Registry) Lookup(key string) (Device, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	i, ok := r.byKey[key]
	if !ok {
		return Device{}, false
	}
	return r.devices[i], true
}

func send(sender Sender, code string, on bool) error {
	if sender == nil {
		return nil
	}
	return sender.SendCommand(code, on)
}

func notify(observers []Observer, c Change) {
	for _, o := range observers {
		o.RelayChanged(c)
	}
}
