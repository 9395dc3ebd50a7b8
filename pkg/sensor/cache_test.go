// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package sensor

import (
	"errors"
	"testing"
	"time"

	"github.com/Thermoquad/hydrostat/pkg/hydrolink"
)

func newTestCache(at time.Time) *Cache {
	c := NewCache(hydrolink.SchemaV6)
	c.now = func() time.Time { return at }
	return c
}

func TestCache_ApplyReport(t *testing.T) {
	at := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	c := newTestCache(at)

	if err := c.ApplyReport(hydrolink.SensorReport{Values: []float64{23, 48, 19.5, 19, 1, 0}}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	r, ok := c.Get("water_temp_top")
	if !ok {
		t.Fatal("water_temp_top missing")
	}
	if r.Value != 19.5 || r.Kind != hydrolink.KindFloat || r.Unit != "°C" || !r.UpdatedAt.Equal(at) {
		t.Errorf("unexpected reading %+v", r)
	}
	if f, _ := c.Get("float_top"); !f.Bool() {
		t.Error("float_top should read closed")
	}
	if !c.LastUpdate().Equal(at) {
		t.Errorf("LastUpdate: expected %v, got %v", at, c.LastUpdate())
	}
}

func TestCache_ArityMismatchLeavesCacheUntouched(t *testing.T) {
	at := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	c := newTestCache(at)
	c.ApplyReport(hydrolink.SensorReport{Values: []float64{23, 48, 19.5, 19, 1, 0}})
	before := c.Snapshot()

	c.now = func() time.Time { return at.Add(time.Minute) }
	err := c.ApplyReport(hydrolink.SensorReport{Values: []float64{1, 2, 3}})

	var de *hydrolink.DecodeError
	if !errors.As(err, &de) {
		t.Fatalf("expected DecodeError, got %v", err)
	}
	if !IsArityError(err) {
		t.Error("expected arity mismatch")
	}

	after := c.Snapshot()
	if len(after) != len(before) {
		t.Fatalf("cache size changed: %d -> %d", len(before), len(after))
	}
	for name, r := range before {
		if after[name] != r {
			t.Errorf("%s changed: %+v -> %+v", name, r, after[name])
		}
	}
	if !c.LastUpdate().Equal(at) {
		t.Error("LastUpdate must not move on a rejected report")
	}
}

func TestCache_ReplacesWholesale(t *testing.T) {
	t0 := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	c := newTestCache(t0)
	c.ApplyReport(hydrolink.SensorReport{Values: []float64{23, 48, 19.5, 19, 1, 0}})

	t1 := t0.Add(5 * time.Second)
	c.now = func() time.Time { return t1 }
	c.ApplyReport(hydrolink.SensorReport{Values: []float64{24, 50, 20, 19.5, 0, 0}})

	for name, r := range c.Snapshot() {
		if !r.UpdatedAt.Equal(t1) {
			t.Errorf("%s has stale timestamp %v", name, r.UpdatedAt)
		}
	}
	if r, _ := c.Get("air_temp_indoor"); r.Value != 24 {
		t.Errorf("expected 24, got %v", r.Value)
	}
}

func TestCache_SnapshotIsCopy(t *testing.T) {
	c := newTestCache(time.Now())
	c.ApplyReport(hydrolink.SensorReport{Values: []float64{23, 48, 19.5, 19, 1, 0}})

	snap := c.Snapshot()
	snap["air_temp_indoor"] = Reading{Value: -100}
	if r, _ := c.Get("air_temp_indoor"); r.Value != 23 {
		t.Error("mutating a snapshot must not affect the cache")
	}
}

func TestCache_Stale(t *testing.T) {
	at := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	c := newTestCache(at)

	if !c.Stale(at, time.Minute) {
		t.Error("an empty cache is stale")
	}
	c.ApplyReport(hydrolink.SensorReport{Values: []float64{23, 48, 19.5, 19, 1, 0}})
	if c.Stale(at.Add(30*time.Second), time.Minute) {
		t.Error("fresh data should not be stale")
	}
	if !c.Stale(at.Add(2*time.Minute), time.Minute) {
		t.Error("old data should be stale")
	}
}

func TestCache_OrderedAndObserver(t *testing.T) {
	c := newTestCache(time.Now())

	var got map[string]Reading
	c.Subscribe(ObserverFunc(func(m map[string]Reading) { got = m }))

	if len(c.Ordered()) != 0 {
		t.Error("empty cache should have no ordered readings")
	}
	c.ApplyReport(hydrolink.SensorReport{Values: []float64{23, 48, 19.5, 19, 1, 0}})

	ordered := c.Ordered()
	names := hydrolink.SchemaV6.Names()
	for i, r := range ordered {
		if r.Name != names[i] {
			t.Errorf("position %d: expected %s, got %s", i, names[i], r.Name)
		}
	}
	if len(got) != 6 {
		t.Errorf("observer expected 6 readings, got %d", len(got))
	}
}
