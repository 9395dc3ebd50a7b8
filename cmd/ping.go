// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var (
	pingTimeout int
	pingCount   int
)

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Check the controller answers PING",
	Long: `Send PING to the controller and wait for PING_OK.

This is useful for verifying:
  - The serial port (or WebSocket bridge) opens
  - The firmware is running and reading commands
  - Bidirectional line flow works

Exit codes:
  0 - All pings successful
  1 - One or more pings failed/timed out
  2 - Connection error`,
	RunE: runPing,
}

func init() {
	rootCmd.AddCommand(pingCmd)
	pingCmd.Flags().IntVar(&pingTimeout, "timeout", 2, "Timeout in seconds for each ping")
	pingCmd.Flags().IntVar(&pingCount, "count", 3, "Number of pings to send")
}

func runPing(cmd *cobra.Command, args []string) error {
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

	fmt.Printf("Hydrostat - Ping Test\n")
	fmt.Printf("Connection: %s\n", link.Name())
	fmt.Printf("Timeout: %d seconds per ping\n", pingTimeout)
	fmt.Printf("Count: %d pings\n\n", pingCount)

	timeout := time.Duration(pingTimeout) * time.Second
	successCount := 0
	failCount := 0

	for i := 1; i <= pingCount; i++ {
		fmt.Printf("Ping %d/%d: ", i, pingCount)

		start := time.Now()
		if link.Probe(timeout) {
			fmt.Printf("PING_OK, rtt=%v\n", time.Since(start).Round(time.Millisecond))
			successCount++
		} else if err := link.Err(); err != nil {
			fmt.Printf("LINK FAILED: %v\n", err)
			failCount += pingCount - i + 1
			break
		} else {
			fmt.Printf("TIMEOUT (no response in %ds)\n", pingTimeout)
			failCount++
		}

		if i < pingCount {
			time.Sleep(100 * time.Millisecond)
		}
	}

	fmt.Printf("\n--- Ping statistics ---\n")
	fmt.Printf("%d pings sent, %d responses received, %.0f%% loss\n",
		pingCount, successCount, float64(failCount)/float64(pingCount)*100)
	if n := link.Dropped(); n > 0 {
		fmt.Printf("%d unsolicited lines dropped\n", n)
	}

	if failCount > 0 {
		os.Exit(1)
	}
	return nil
}
