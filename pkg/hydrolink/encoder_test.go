// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package hydrolink

import (
	"testing"
	"time"
)

func TestFormatCommand(t *testing.T) {
	tests := []struct {
		code string
		on   bool
		want string
	}{
		{"LT", true, "LT:ON\n"},
		{"LT", false, "LT:OFF\n"},
		{"PT", true, "PT:ON\n"},
		{"HE", false, "HE:OFF\n"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := FormatCommand(tt.code, tt.on); got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestFormatSetTime(t *testing.T) {
	if got := FormatSetTime(7, 5, 3); got != "SET_TIME:07:05:03\n" {
		t.Errorf("unexpected %q", got)
	}
	at := time.Date(2025, 3, 9, 21, 30, 0, 0, time.Local)
	if got := FormatSetTimeOf(at); got != "SET_TIME:21:30:00\n" {
		t.Errorf("unexpected %q", got)
	}
}

func TestFormatFixedCommands(t *testing.T) {
	tests := []struct {
		name string
		got  string
		want string
	}{
		{"reset schedule", FormatResetSchedule(), "RESET_SCHEDULE\n"},
		{"ping", FormatPing(), "PING\n"},
		{"get state", FormatGetState(), "GET_STATE\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, tt.got)
			}
		})
	}
}

// TestSetTime_DecodesAsTime checks that the clock format the host sends is the
// same one the firmware echoes back in TIME reports
func TestSetTime_DecodesAsTime(t *testing.T) {
	line := FormatSetTime(13, 45, 59)
	payload := line[len(CmdSetTime)+1 : len(line)-1]

	r, err := DecodeTimeReport(PrefixTime + payload)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r != (TimeReport{13, 45, 59}) {
		t.Errorf("unexpected %v", r)
	}
}
