// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/hydrostat/internal/schedule"
)

var scheduleCmd = &cobra.Command{
	Use:   "schedule [file]",
	Short: "Check a relay schedule file",
	Long: `Parse a schedule file (default: schedule.file from the configuration)
and print each window with the relay it drives and whether it is active now.

File format, one window per line:
  CODE START_TIME DURATION [DESCRIPTION]

  LT 06:00 16h Lights on
  PT 08:00 15  Flood top tray    # integer durations are minutes

The schedule runs on the controller; hydrostat only reads it to annotate relays.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runSchedule,
}

func init() {
	rootCmd.AddCommand(scheduleCmd)
}

func runSchedule(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	path := cfg.Schedule.File
	if len(args) == 1 {
		path = args[0]
	}
	if path == "" {
		return fmt.Errorf("no schedule file: pass one or set schedule.file")
	}

	table, err := schedule.Load(path)
	if err != nil {
		return err
	}

	names := make(map[string]string)
	for _, d := range cfg.Devices() {
		names[d.Code] = d.DisplayName()
	}

	now := time.Now()
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "CODE\tRELAY\tWINDOW\tNOW")
	unknown := 0
	for _, e := range table.Entries() {
		name, ok := names[e.Code]
		if !ok {
			name = "(unknown code)"
			unknown++
		}
		active := ""
		if e.Contains(now) {
			active = "on"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", e.Code, name, e.String(), active)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	fmt.Printf("\n%d windows", len(table.Entries()))
	if unknown > 0 {
		fmt.Printf(", %d for codes not in the relay table", unknown)
	}
	fmt.Println()
	return nil
}
