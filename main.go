// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad
//
// Hydrostat - host companion for serial hydroponics controllers
//
// Talks the line protocol of the controller firmware over USB serial or a
// WebSocket bridge, mirrors relay and sensor state, and exports status.

package main

import (
	"os"

	"github.com/Thermoquad/hydrostat/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
