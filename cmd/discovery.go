// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/hydrostat/pkg/transport"
)

var (
	discoveryProbe   bool
	discoveryTimeout int
)

var discoveryCmd = &cobra.Command{
	Use:   "discovery",
	Short: "List serial ports and find the controller",
	Long: `List the serial ports the operating system reports, marking USB adapters
from known vendors (Arduino, CH340, FTDI, CP210x), then show the candidates
auto-discovery would try, in order.

With --probe each candidate is opened and sent PING; candidates that answer
PING_OK are reported as controllers.

Examples:
  hydrostat discovery
  hydrostat discovery --probe --timeout 3

Exit codes:
  0 - At least one candidate (or, with --probe, one controller) found
  1 - Nothing found
  2 - Port enumeration error`,
	RunE: runDiscovery,
}

func init() {
	rootCmd.AddCommand(discoveryCmd)
	discoveryCmd.Flags().BoolVar(&discoveryProbe, "probe", false, "Open each candidate and send PING")
	discoveryCmd.Flags().IntVar(&discoveryTimeout, "timeout", 2, "Timeout in seconds for each probe")
}

func runDiscovery(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := setupLogger(cfg)
	defer logger.Close()

	fmt.Printf("Hydrostat - Port Discovery\n\n")

	ports, err := transport.ListPorts()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Enumeration error: %v\n", err)
		os.Exit(2)
	}

	fmt.Printf("Serial ports: %d\n", len(ports))
	for _, p := range ports {
		if !p.IsUSB {
			fmt.Printf("  %s\n", p.Name)
			continue
		}
		vendor := p.Vendor
		if vendor == "" {
			vendor = "unknown vendor"
		}
		fmt.Printf("  %s  USB %s:%s (%s)", p.Name, p.VID, p.PID, vendor)
		if p.Product != "" {
			fmt.Printf(" %s", p.Product)
		}
		if p.Serial != "" {
			fmt.Printf(" serial=%s", p.Serial)
		}
		fmt.Println()
	}

	candidates := transport.Discover(cfg.Serial.Patterns)
	fmt.Printf("\nCandidates (in connect order): %d\n", len(candidates))
	for i, c := range candidates {
		fmt.Printf("  %d. %s\n", i+1, c)
	}

	if len(candidates) == 0 {
		fmt.Printf("\nNo candidates. Check the cable and serial.patterns.\n")
		os.Exit(1)
	}
	if !discoveryProbe {
		return nil
	}

	fmt.Printf("\nProbing (timeout %ds each)...\n", discoveryTimeout)
	timeout := time.Duration(discoveryTimeout) * time.Second
	found := 0
	for _, c := range candidates {
		fmt.Printf("  %s: ", c)
		ok, err := probePort(c, cfg.SerialSettings(), timeout)
		switch {
		case err != nil:
			fmt.Printf("OPEN FAILED: %v\n", err)
		case ok:
			fmt.Printf("controller (PING_OK)\n")
			found++
		default:
			fmt.Printf("no answer\n")
		}
	}

	fmt.Printf("\n--- Discovery summary ---\n")
	fmt.Printf("Controllers found: %d\n", found)
	if found == 0 {
		os.Exit(1)
	}
	return nil
}

func probePort(path string, settings transport.SerialConfig, timeout time.Duration) (bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), settings.SettleDelay+timeout+time.Second)
	defer cancel()

	link, err := transport.OpenSerial(ctx, path, settings)
	if err != nil {
		return false, err
	}
	defer link.Close()

	return link.Probe(timeout), nil
}
