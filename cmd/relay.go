// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/hydrostat/internal/config"
	"github.com/Thermoquad/hydrostat/internal/schedule"
)

var relayTimeout int

var relayCmd = &cobra.Command{
	Use:   "relay [key] [on|off|toggle]",
	Short: "Show or switch relays",
	Long: `Without arguments, list the relay table with the current state reported
by the controller and the schedule windows (when schedule.file is set).

With a key and an action, switch that relay. toggle waits for the
controller's state report first so it flips the real state.

Examples:
  hydrostat relay
  hydrostat relay lights_top on
  hydrostat relay pump_bottom toggle`,
	Args: cobra.RangeArgs(0, 2),
	RunE: runRelay,
}

func init() {
	rootCmd.AddCommand(relayCmd)
	relayCmd.Flags().IntVar(&relayTimeout, "timeout", 10, "Timeout in seconds to connect and read state")
}

func runRelay(cmd *cobra.Command, args []string) error {
	if len(args) == 1 {
		return fmt.Errorf("missing action for %s: want on, off or toggle", args[0])
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := setupLogger(cfg)
	defer logger.Close()

	if len(args) == 2 {
		if _, err := parseRelayAction(args[1]); err != nil {
			return err
		}
		if !hasRelay(cfg, args[0]) {
			return fmt.Errorf("unknown relay %q (see 'hydrostat relay')", args[0])
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(relayTimeout)*time.Second)
	defer cancel()

	// No periodic clock sync for one-shot commands
	cfg.Session.TimeSyncInterval = 0
	cfg.Session.RequestStateOnConnect = true

	ctrl, err := connectController(ctx, cfg, logger, time.Duration(relayTimeout)*time.Second)
	if err != nil {
		return err
	}
	defer ctrl.Close()

	if len(args) == 0 {
		if err := ctrl.waitForRelayReport(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: %v, showing last known state\n", err)
		}
		printRelayTable(ctrl)
		return nil
	}

	key := args[0]
	action, _ := parseRelayAction(args[1])

	var on bool
	switch action {
	case "toggle":
		if err := ctrl.waitForRelayReport(ctx); err != nil {
			return err
		}
		on, err = ctrl.relays.Toggle(key)
	default:
		on = action == "on"
		err = ctrl.relays.Set(key, on)
	}
	if err != nil {
		return err
	}

	dev, _ := ctrl.relays.Lookup(key)
	fmt.Printf("%s (%s) -> %s\n", dev.DisplayName(), dev.Code, onOff(on))
	return nil
}

func parseRelayAction(s string) (string, error) {
	switch a := strings.ToLower(s); a {
	case "on", "off", "toggle":
		return a, nil
	}
	return "", fmt.Errorf("unknown action %q: want on, off or toggle", s)
}

func hasRelay(cfg *config.Config, key string) bool {
	for _, d := range cfg.Devices() {
		if d.Key == key {
			return true
		}
	}
	return false
}

func onOff(on bool) string {
	if on {
		return "ON"
	}
	return "OFF"
}

func printRelayTable(ctrl *controller) {
	state := ctrl.relays.Snapshot()
	now := time.Now()

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "KEY\tCODE\tNAME\tSTATE\tSCHEDULE")
	for _, d := range ctrl.relays.Devices() {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			d.Key, d.Code, d.DisplayName(), onOff(state[d.Key]), scheduleNote(ctrl.schedule, d.Code, now))
	}
	w.Flush()
}

// scheduleNote is "-" without a schedule, otherwise the windows with a
// marker when one is active now
func scheduleNote(table *schedule.Table, code string, now time.Time) string {
	desc := table.Describe(code)
	if desc == "" {
		return "-"
	}
	if table.Active(code, now) {
		return desc + " (scheduled on)"
	}
	return desc
}
