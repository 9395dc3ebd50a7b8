// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package sensor caches the most recent SSTATE telemetry. Each report
// replaces every reading at once; there is no history or smoothing.
package sensor

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Thermoquad/hydrostat/pkg/hydrolink"
)

// Reading is the latest value of one schema field
type Reading struct {
	Name      string
	Value     float64
	Kind      hydrolink.NumericKind
	Unit      string
	UpdatedAt time.Time
}

// Bool reports a switch reading as closed (true) or open (false)
func (r Reading) Bool() bool {
	return r.Value != 0
}

// String renders the value with its unit
func (r Reading) String() string {
	return hydrolink.FormatValue(r.Value, hydrolink.Field{Name: r.Name, Kind: r.Kind, Unit: r.Unit})
}

// Observer is notified after each accepted report, outside the cache lock
type Observer interface {
	SensorsUpdated(map[string]Reading)
}

// ObserverFunc adapts a function to Observer
type ObserverFunc func(map[string]Reading)

// SensorsUpdated calls f(readings)
func (f ObserverFunc) SensorsUpdated(readings map[string]Reading) {
	f(readings)
}

// Cache holds the latest reading per field. Safe for concurrent use.
type Cache struct {
	schema hydrolink.Schema
	now    func() time.Time

	mu         sync.RWMutex
	readings   map[string]Reading
	lastUpdate time.Time
	observers  []Observer
}

// NewCache creates an empty cache for schema
func NewCache(schema hydrolink.Schema) *Cache {
	return &Cache{
		schema:   schema,
		now:      time.Now,
		readings: make(map[string]Reading, schema.Arity()),
	}
}

// Schema returns the field layout the cache expects
func (c *Cache) Schema() hydrolink.Schema {
	return c.schema
}

// Subscribe registers an observer
func (c *Cache) Subscribe(o Observer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.observers = append(c.observers, o)
}

// ApplyReport replaces all readings with the report's values. A report whose
// length differs from the schema is rejected and the cache is left as it was.
func (c *Cache) ApplyReport(report hydrolink.SensorReport) error {
	if len(report.Values) != c.schema.Arity() {
		return &hydrolink.DecodeError{
			Line:   fmt.Sprintf("%s<%d values>", hydrolink.PrefixSensorState, len(report.Values)),
			Reason: fmt.Sprintf("got %d values, want %d", len(report.Values), c.schema.Arity()),
			Err:    hydrolink.ErrArityMismatch,
		}
	}

	now := c.now()
	next := make(map[string]Reading, len(report.Values))
	for i, v := range report.Values {
		f := c.schema.Field(i)
		next[f.Name] = Reading{Name: f.Name, Value: v, Kind: f.Kind, Unit: f.Unit, UpdatedAt: now}
	}

	c.mu.Lock()
	c.readings = next
	c.lastUpdate = now
	observers := c.observers
	c.mu.Unlock()

	for _, o := range observers {
		o.SensorsUpdated(copyReadings(next))
	}
	return nil
}

// Snapshot returns a copy of every reading keyed by field name
func (c *Cache) Snapshot() map[string]Reading {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return copyReadings(c.readings)
}

// Get returns the reading for name
func (c *Cache) Get(name string) (Reading, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	r, ok := c.readings[name]
	return r, ok
}

// LastUpdate returns when the last report was accepted, or the zero time
func (c *Cache) LastUpdate() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastUpdate
}

// Stale reports whether no report arrived within maxAge of now
func (c *Cache) Stale(now time.Time, maxAge time.Duration) bool {
	last := c.LastUpdate()
	return last.IsZero() || now.Sub(last) > maxAge
}

// Ordered returns readings in schema order, skipping fields not yet reported
func (c *Cache) Ordered() []Reading {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]Reading, 0, len(c.readings))
	for _, name := range c.schema.Names() {
		if r, ok := c.readings[name]; ok {
			out = append(out, r)
		}
	}
	return out
}

// IsArityError reports whether err is a rejected report of the wrong length
func IsArityError(err error) bool {
	return errors.Is(err, hydrolink.ErrArityMismatch)
}

func copyReadings(in map[string]Reading) map[string]Reading {
	out := make(map[string]Reading, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
