// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package transport

import (
	"errors"
	"reflect"
	"testing"

	"go.bug.st/serial/enumerator"
)

func listOf(ports ...*enumerator.PortDetails) portLister {
	return func() ([]*enumerator.PortDetails, error) { return ports, nil }
}

func globOf(matches map[string][]string) globber {
	return func(pattern string) ([]string, error) { return matches[pattern], nil }
}

func TestDiscover_KnownVendorsFirst(t *testing.T) {
	list := listOf(
		&enumerator.PortDetails{Name: "/dev/ttyUSB0", IsUSB: true, VID: "067b"},
		&enumerator.PortDetails{Name: "/dev/ttyACM1", IsUSB: true, VID: "2341"},
		&enumerator.PortDetails{Name: "/dev/ttyS0"},
		&enumerator.PortDetails{Name: "/dev/ttyACM0", IsUSB: true, VID: "1a86"},
	)

	got := discover([]string{"/dev/ttyACM*", "/dev/ttyUSB*"}, list, globOf(nil))
	want := []string{"/dev/ttyACM0", "/dev/ttyACM1", "/dev/ttyUSB0"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestDiscover_GlobFallback(t *testing.T) {
	failing := func() ([]*enumerator.PortDetails, error) { return nil, errors.New("no enumerator") }
	glob := globOf(map[string][]string{
		"/dev/ttyACM*": {"/dev/ttyACM1", "/dev/ttyACM0"},
		"/dev/ttyUSB*": {"/dev/ttyUSB0"},
		"/dev/tty*":    {"/dev/ttyACM0"},
	})

	got := discover([]string{"/dev/ttyACM*", "/dev/ttyUSB*", "/dev/tty*"}, failing, glob)
	want := []string{"/dev/ttyACM0", "/dev/ttyACM1", "/dev/ttyUSB0"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestDiscover_Empty(t *testing.T) {
	got := discover(nil, listOf(), globOf(nil))
	if len(got) != 0 {
		t.Errorf("expected no candidates, got %v", got)
	}
}

func TestIsKnownVendor(t *testing.T) {
	for vid, want := range map[string]bool{"2341": true, "2a03": true, "0403": true, "067B": false, "": false} {
		if got := IsKnownVendor(vid); got != want {
			t.Errorf("IsKnownVendor(%q) = %v, want %v", vid, got, want)
		}
	}
}
