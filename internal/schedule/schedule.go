// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package schedule reads the relay schedule table that the firmware runs,
// so the host can annotate relays. The host never executes it.
//
// Each non-comment line is
//
//	CODE START_TIME DURATION [DESCRIPTION]
//
// START_TIME is HH:MM or HH:MM:SS. DURATION is a Go duration ("16h", "15m")
// or a whole number of minutes.
package schedule

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"
)

const day = 24 * time.Hour

// ErrSyntax matches every *ParseError via errors.Is.
var ErrSyntax = errors.New("schedule: syntax error")

// ParseError reports a malformed line
type ParseError struct {
	Line int
	Msg  string
}

// Error implements the error interface
func (e *ParseError) Error() string {
	return fmt.Sprintf("schedule: line %d: %s", e.Line, e.Msg)
}

// Is reports whether target is ErrSyntax
func (e *ParseError) Is(target error) bool {
	return target == ErrSyntax
}

// Entry is one ON window for a relay
type Entry struct {
	Code        string
	Start       time.Duration // since midnight
	Duration    time.Duration
	Description string
}

// Contains reports whether the wall clock of at falls inside the window.
// Windows may wrap past midnight.
func (e Entry) Contains(at time.Time) bool {
	if e.Duration <= 0 {
		return false
	}
	if e.Duration >= day {
		return true
	}
	tod := time.Duration(at.Hour())*time.Hour + time.Duration(at.Minute())*time.Minute + time.Duration(at.Second())*time.Second
	offset := (tod - e.Start + day) % day
	return offset < e.Duration
}

// String renders the entry as "06:00 +16h0m0s Lights on"
func (e Entry) String() string {
	s := fmt.Sprintf("%s +%s", formatClock(e.Start), e.Duration)
	if e.Description != "" {
		s += " " + e.Description
	}
	return s
}

// Table is a parsed schedule file
type Table struct {
	entries []Entry
}

// Load parses the schedule file at path
func Load(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening schedule: %w", err)
	}
	defer f.Close()
	return Parse(f)
}

// Parse reads a schedule table. Blank lines and '#' comments are skipped.
func Parse(r io.Reader) (*Table, error) {
	t := &Table{}
	scanner := bufio.NewScanner(r)
	lineNo := 0

	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		if i := strings.IndexByte(line, '#'); i >= 0 {
			line = line[:i]
		}
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		if len(fields) < 3 {
			return nil, &ParseError{Line: lineNo, Msg: "want CODE START_TIME DURATION [DESCRIPTION]"}
		}

		start, err := parseClock(fields[1])
		if err != nil {
			return nil, &ParseError{Line: lineNo, Msg: err.Error()}
		}
		dur, err := parseDuration(fields[2])
		if err != nil {
			return nil, &ParseError{Line: lineNo, Msg: err.Error()}
		}

		t.entries = append(t.entries, Entry{
			Code:        fields[0],
			Start:       start,
			Duration:    dur,
			Description: strings.Join(fields[3:], " "),
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading schedule: %w", err)
	}

	return t, nil
}

// Entries returns every entry in file order
func (t *Table) Entries() []Entry {
	if t == nil {
		return nil
	}
	return append([]Entry(nil), t.entries...)
}

// ForCode returns the entries for a relay code in file order
func (t *Table) ForCode(code string) []Entry {
	if t == nil {
		return nil
	}
	var out []Entry
	for _, e := range t.entries {
		if e.Code == code {
			out = append(out, e)
		}
	}
	return out
}

// Active reports whether any window for code contains at
func (t *Table) Active(code string, at time.Time) bool {
	for _, e := range t.ForCode(code) {
		if e.Contains(at) {
			return true
		}
	}
	return false
}

// Describe summarises the windows for code, e.g. "06:00 +16h0m0s; 22:00 +15m0s"
func (t *Table) Describe(code string) string {
	entries := t.ForCode(code)
	parts := make([]string, len(entries))
	for i, e := range entries {
		parts[i] = e.String()
	}
	return strings.Join(parts, "; ")
}

func parseClock(s string) (time.Duration, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 2 && len(parts) != 3 {
		return 0, fmt.Errorf("start time %q must be HH:MM or HH:MM:SS", s)
	}

	limits := []int{23, 59, 59}
	units := []time.Duration{time.Hour, time.Minute, time.Second}
	var total time.Duration
	for i, p := range parts {
		v, err := strconv.Atoi(p)
		if err != nil || v < 0 || v > limits[i] {
			return 0, fmt.Errorf("start time %q out of range", s)
		}
		total += time.Duration(v) * units[i]
	}
	return total, nil
}

func parseDuration(s string) (time.Duration, error) {
	if minutes, err := strconv.Atoi(s); err == nil {
		if minutes <= 0 {
			return 0, fmt.Errorf("duration %q must be positive", s)
		}
		return time.Duration(minutes) * time.Minute, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("duration %q: %v", s, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("duration %q must be positive", s)
	}
	return d, nil
}

func formatClock(d time.Duration) string {
	h := int(d / time.Hour)
	m := int(d % time.Hour / time.Minute)
	s := int(d % time.Minute / time.Second)
	if s != 0 {
		return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%02d:%02d", h, m)
}
