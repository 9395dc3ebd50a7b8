// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package hydrolink

import (
	"fmt"
	"time"
)

// FormatCommand returns the relay command line "<code>:ON\n" or "<code>:OFF\n"
func FormatCommand(code string, on bool) string {
	state := StateOff
	if on {
		state = StateOn
	}
	return code + fieldSep + state + lineTerminator
}

// FormatSetTime returns "SET_TIME:HH:MM:SS\n"
func FormatSetTime(hour, minute, second int) string {
	return fmt.Sprintf("%s:%02d:%02d:%02d%s", CmdSetTime, hour, minute, second, lineTerminator)
}

// FormatSetTimeOf formats the wall clock of t as a SET_TIME command
func FormatSetTimeOf(t time.Time) string {
	return FormatSetTime(t.Hour(), t.Minute(), t.Second())
}

// FormatResetSchedule returns "RESET_SCHEDULE\n"
func FormatResetSchedule() string {
	return CmdResetSchedule + lineTerminator
}

// FormatPing returns "PING\n"
func FormatPing() string {
	return CmdPing + lineTerminator
}

// FormatGetState returns "GET_STATE\n"
func FormatGetState() string {
	return CmdGetState + lineTerminator
}
