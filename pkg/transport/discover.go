// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package transport

import (
	"path/filepath"
	"sort"
	"strings"

	"go.bug.st/serial/enumerator"
)

// DefaultPatterns match the device nodes Arduino-class boards usually appear as
var DefaultPatterns = []string{
	"/dev/ttyACM*",
	"/dev/ttyUSB*",
	"/dev/cu.usbmodem*",
	"/dev/cu.usbserial*",
	"COM*",
}

// knownVIDs are USB vendor IDs of Arduino boards and common USB-serial bridges
var knownVIDs = map[string]string{
	"2341": "Arduino",
	"2A03": "Arduino (arduino.org)",
	"1A86": "QinHeng CH340",
	"0403": "FTDI",
	"10C4": "Silicon Labs CP210x",
}

type portLister func() ([]*enumerator.PortDetails, error)

type globber func(pattern string) ([]string, error)

// Discover returns candidate device paths in preference order: enumerated
// USB ports from known vendors, then enumerated ports matching patterns,
// then filesystem matches for patterns when enumeration yields nothing.
// The result is de-duplicated and may be empty.
func Discover(patterns []string) []string {
	return discover(patterns, enumerator.GetDetailedPortsList, filepath.Glob)
}

func discover(patterns []string, list portLister, glob globber) []string {
	if len(patterns) == 0 {
		patterns = DefaultPatterns
	}

	seen := make(map[string]bool)
	var result []string
	add := func(names []string) {
		sort.Strings(names)
		for _, name := range names {
			if !seen[name] {
				seen[name] = true
				result = append(result, name)
			}
		}
	}

	ports, err := list()
	if err == nil && len(ports) > 0 {
		var preferred, matched []string
		for _, port := range ports {
			if port == nil || port.Name == "" {
				continue
			}
			if port.IsUSB && IsKnownVendor(port.VID) {
				preferred = append(preferred, port.Name)
				continue
			}
			if matchesAny(patterns, port.Name) {
				matched = append(matched, port.Name)
			}
		}
		add(preferred)
		add(matched)
	}

	if len(result) == 0 {
		for _, pattern := range patterns {
			names, err := glob(pattern)
			if err != nil {
				continue
			}
			add(names)
		}
	}

	return result
}

// IsKnownVendor reports whether vid (hex, any case) belongs to a known board vendor
func IsKnownVendor(vid string) bool {
	_, ok := knownVIDs[strings.ToUpper(vid)]
	return ok
}

// VendorName returns a display name for vid, or "" when unknown
func VendorName(vid string) string {
	return knownVIDs[strings.ToUpper(vid)]
}

func matchesAny(patterns []string, name string) bool {
	for _, pattern := range patterns {
		if ok, _ := filepath.Match(pattern, name); ok {
			return true
		}
	}
	return false
}

// PortInfo describes an enumerated serial port for listing
type PortInfo struct {
	Name    string
	IsUSB   bool
	VID     string
	PID     string
	Serial  string
	Product string
	Vendor  string
}

// ListPorts returns every port the OS enumerator reports
func ListPorts() ([]PortInfo, error) {
	ports, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return nil, &ConnectionError{Op: "enumerate", Err: err}
	}

	infos := make([]PortInfo, 0, len(ports))
	for _, p := range ports {
		infos = append(infos, PortInfo{
			Name:    p.Name,
			IsUSB:   p.IsUSB,
			VID:     p.VID,
			PID:     p.PID,
			Serial:  p.SerialNumber,
			Product: p.Product,
			Vendor:  VendorName(p.VID),
		})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos, nil
}
