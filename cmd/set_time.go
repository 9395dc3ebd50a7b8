// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/hydrostat/pkg/hydrolink"
)

var setTimeWait int

var setTimeCmd = &cobra.Command{
	Use:   "set_time [HH:MM:SS]",
	Short: "Set the controller clock",
	Long: `Send SET_TIME with the host's local time, or with the given time.

The controller runs its relay schedule from this clock. After sending, the
command waits up to --wait seconds for the next TIME report and prints the
remaining drift.

Exit codes:
  0 - Time sent
  2 - Connection error`,
	Args: cobra.MaximumNArgs(1),
	RunE: runSetTime,
}

func init() {
	rootCmd.AddCommand(setTimeCmd)
	setTimeCmd.Flags().IntVar(&setTimeWait, "wait", 0, "Seconds to wait for a TIME report afterwards")
}

func runSetTime(cmd *cobra.Command, args []string) error {
	line := ""
	if len(args) == 1 {
		t, err := hydrolink.DecodeTimeReport(hydrolink.PrefixTime + args[0])
		if err != nil {
			return fmt.Errorf("invalid time %q: want HH:MM:SS", args[0])
		}
		line = hydrolink.FormatSetTime(t.Hour, t.Minute, t.Second)
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := setupLogger(cfg)
	defer logger.Close()

	link, err := openLink(context.Background(), cfg, logger.Component("transport").Logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer link.Close()

	if line == "" {
		line = hydrolink.FormatSetTimeOf(time.Now())
	}

	fmt.Printf("Connection: %s\n", link.Name())
	if err := link.WriteLine(line); err != nil {
		fmt.Fprintf(os.Stderr, "Write error: %v\n", err)
		os.Exit(2)
	}
	fmt.Printf("Sent %s", line)

	if setTimeWait <= 0 {
		return nil
	}

	deadline := time.Now().Add(time.Duration(setTimeWait) * time.Second)
	for time.Now().Before(deadline) {
		raw, ok, err := link.ReadLine(time.Until(deadline))
		if err != nil || !ok {
			break
		}
		report, err := hydrolink.DecodeTimeReport(raw)
		if err != nil {
			continue
		}
		fmt.Printf("Device clock: %s (drift %v)\n", report, report.Drift(time.Now()))
		return nil
	}

	fmt.Printf("No TIME report within %ds\n", setTimeWait)
	return nil
}
