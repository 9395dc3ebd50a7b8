// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package hydrolink

import (
	"fmt"
	"strings"
)

// NumericKind selects how a single SSTATE value is parsed
type NumericKind uint8

const (
	KindInt NumericKind = iota
	KindFloat
	KindSwitch
)

// String returns the config name of the kind
func (k NumericKind) String() string {
	switch k {
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindSwitch:
		return "switch"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// ParseNumericKind maps a config name ("int", "float", "switch") to a kind
func ParseNumericKind(s string) (NumericKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "int", "integer":
		return KindInt, nil
	case "float", "decimal":
		return KindFloat, nil
	case "switch", "bool":
		return KindSwitch, nil
	default:
		return 0, fmt.Errorf("%w: unknown field kind %q", ErrInvalidSchema, s)
	}
}

// Range is an inclusive plausibility window used by ValidateSensorReport
type Range struct {
	Min float64
	Max float64
}

// Contains reports whether v lies within the range
func (r Range) Contains(v float64) bool {
	return v >= r.Min && v <= r.Max
}

// Field describes one positional value of an SSTATE line
type Field struct {
	Name  string
	Kind  NumericKind
	Unit  string
	Range *Range
}

// Schema is the ordered list of fields the firmware reports in SSTATE.
// It is fixed for the lifetime of a session.
type Schema struct {
	fields []Field
	index  map[string]int
}

// NewSchema builds a schema from fields in wire order. Names must be
// non-empty and unique.
func NewSchema(fields ...Field) (Schema, error) {
	if len(fields) == 0 {
		return Schema{}, fmt.Errorf("%w: no fields", ErrInvalidSchema)
	}

	s := Schema{
		fields: make([]Field, len(fields)),
		index:  make(map[string]int, len(fields)),
	}
	for i, f := range fields {
		if f.Name == "" {
			return Schema{}, fmt.Errorf("%w: field %d has no name", ErrInvalidSchema, i)
		}
		if _, dup := s.index[f.Name]; dup {
			return Schema{}, fmt.Errorf("%w: duplicate field %q", ErrInvalidSchema, f.Name)
		}
		if f.Range != nil && f.Range.Min > f.Range.Max {
			return Schema{}, fmt.Errorf("%w: field %q has min > max", ErrInvalidSchema, f.Name)
		}
		s.fields[i] = f
		s.index[f.Name] = i
	}
	return s, nil
}

// MustSchema is NewSchema that panics on error. Intended for package-level presets.
func MustSchema(fields ...Field) Schema {
	s, err := NewSchema(fields...)
	if err != nil {
		panic(err)
	}
	return s
}

// Arity returns the number of values an SSTATE line must carry
func (s Schema) Arity() int {
	return len(s.fields)
}

// Fields returns a copy of the fields in wire order
func (s Schema) Fields() []Field {
	out := make([]Field, len(s.fields))
	copy(out, s.fields)
	return out
}

// Field returns the field at position i
func (s Schema) Field(i int) Field {
	return s.fields[i]
}

// Index returns the position of the named field
func (s Schema) Index(name string) (int, bool) {
	i, ok := s.index[name]
	return i, ok
}

// Names returns field names in wire order
func (s Schema) Names() []string {
	names := make([]string, len(s.fields))
	for i, f := range s.fields {
		names[i] = f.Name
	}
	return names
}

func rangeOf(min, max float64) *Range {
	return &Range{Min: min, Max: max}
}

// Schema presets for the firmware revisions in the field
var (
	// SchemaV8 matches firmware reporting indoor and outdoor air sensors
	SchemaV8 = MustSchema(
		Field{Name: "air_temp_indoor", Kind: KindInt, Unit: "°C", Range: rangeOf(-20, 60)},
		Field{Name: "humidity_indoor", Kind: KindInt, Unit: "%", Range: rangeOf(0, 100)},
		Field{Name: "air_temp_outdoor", Kind: KindInt, Unit: "°C", Range: rangeOf(-40, 60)},
		Field{Name: "humidity_outdoor", Kind: KindInt, Unit: "%", Range: rangeOf(0, 100)},
		Field{Name: "water_temp_top", Kind: KindFloat, Unit: "°C", Range: rangeOf(0, 50)},
		Field{Name: "water_temp_bottom", Kind: KindFloat, Unit: "°C", Range: rangeOf(0, 50)},
		Field{Name: "float_top", Kind: KindSwitch},
		Field{Name: "float_bottom", Kind: KindSwitch},
	)

	// SchemaV6 matches firmware without the outdoor sensor
	SchemaV6 = MustSchema(
		Field{Name: "air_temp_indoor", Kind: KindInt, Unit: "°C", Range: rangeOf(-20, 60)},
		Field{Name: "humidity_indoor", Kind: KindInt, Unit: "%", Range: rangeOf(0, 100)},
		Field{Name: "water_temp_top", Kind: KindFloat, Unit: "°C", Range: rangeOf(0, 50)},
		Field{Name: "water_temp_bottom", Kind: KindFloat, Unit: "°C", Range: rangeOf(0, 50)},
		Field{Name: "float_top", Kind: KindSwitch},
		Field{Name: "float_bottom", Kind: KindSwitch},
	)
)

// SchemaPreset returns a named preset ("v8" or "v6")
func SchemaPreset(name string) (Schema, error) {
	switch strings.ToLower(name) {
	case "v8", "":
		return SchemaV8, nil
	case "v6":
		return SchemaV6, nil
	default:
		return Schema{}, fmt.Errorf("%w: unknown preset %q", ErrInvalidSchema, name)
	}
}
