// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package hydrolink

import (
	"fmt"
	"time"
)

// AnomalyType represents different kinds of suspicious but well-formed data
type AnomalyType int

const (
	AnomalyOutOfRange AnomalyType = iota
	AnomalyClockDrift
)

// String returns the anomaly name
func (a AnomalyType) String() string {
	switch a {
	case AnomalyOutOfRange:
		return "out_of_range"
	case AnomalyClockDrift:
		return "clock_drift"
	default:
		return "unknown"
	}
}

// ValidationError represents a non-fatal anomaly in a decoded report
type ValidationError struct {
	Type    AnomalyType
	Field   string
	Message string
	Details map[string]interface{}
}

// Error implements the error interface
func (v *ValidationError) Error() string {
	return v.Message
}

// ValidateSensorReport flags values outside their field's range.
// Fields without a range are never flagged.
func ValidateSensorReport(r SensorReport, schema Schema) []ValidationError {
	errors := []ValidationError{}

	for i, v := range r.Values {
		if i >= schema.Arity() {
			break
		}
		f := schema.Field(i)
		if f.Range == nil || f.Range.Contains(v) {
			continue
		}
		errors = append(errors, ValidationError{
			Type:    AnomalyOutOfRange,
			Field:   f.Name,
			Message: fmt.Sprintf("%s=%g outside [%g, %g]", f.Name, v, f.Range.Min, f.Range.Max),
			Details: map[string]interface{}{"value": v, "min": f.Range.Min, "max": f.Range.Max},
		})
	}

	return errors
}

// ValidateTimeReport flags a device clock further than tolerance from now
func ValidateTimeReport(r TimeReport, now time.Time, tolerance time.Duration) []ValidationError {
	drift := r.Drift(now)
	abs := drift
	if abs < 0 {
		abs = -abs
	}
	if abs <= tolerance {
		return nil
	}

	return []ValidationError{{
		Type:    AnomalyClockDrift,
		Field:   "time",
		Message: fmt.Sprintf("device clock %s drifts %s from host", r, drift),
		Details: map[string]interface{}{"device": r.String(), "drift": drift, "tolerance": tolerance},
	}}
}
