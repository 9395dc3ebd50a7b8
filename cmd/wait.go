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

var (
	waitTimeout  int
	waitType     string
	waitGetState bool
)

var waitCmd = &cobra.Command{
	Use:   "wait",
	Short: "Wait for a valid controller message",
	Long: `Wait for a line that decodes as a valid controller message until timeout.

Malformed lines are skipped and counted. --type restricts which message
satisfies the wait (relay, sensor or time). With --get-state a GET_STATE
request is sent first so a relay report arrives promptly.

Exit codes:
  0 - Message received before timeout
  1 - Timeout reached without receiving a valid message
  2 - Connection error`,
	RunE: runWait,
}

func init() {
	rootCmd.AddCommand(waitCmd)
	waitCmd.Flags().IntVar(&waitTimeout, "timeout", 10, "Timeout in seconds to wait for a message")
	waitCmd.Flags().StringVar(&waitType, "type", "", "Only accept this message type (relay, sensor, time)")
	waitCmd.Flags().BoolVar(&waitGetState, "get-state", false, "Send GET_STATE before waiting")
}

func parseWaitType(s string) (hydrolink.MessageType, error) {
	switch s {
	case "":
		return hydrolink.MsgUnknown, nil
	case "relay", "rstate":
		return hydrolink.MsgRelayState, nil
	case "sensor", "sstate":
		return hydrolink.MsgSensorState, nil
	case "time":
		return hydrolink.MsgTime, nil
	}
	return hydrolink.MsgUnknown, fmt.Errorf("unknown message type %q (want relay, sensor or time)", s)
}

func runWait(cmd *cobra.Command, args []string) error {
	want, err := parseWaitType(waitType)
	if err != nil {
		return err
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

	schema, _ := cfg.Schema()

	fmt.Printf("Hydrostat - Message Wait\n")
	fmt.Printf("Connection: %s\n", link.Name())
	fmt.Printf("Timeout: %d seconds\n", waitTimeout)
	fmt.Printf("Waiting for valid message...\n\n")

	if waitGetState {
		if err := link.WriteLine(hydrolink.FormatGetState()); err != nil {
			fmt.Fprintf(os.Stderr, "Write error: %v\n", err)
			os.Exit(2)
		}
	}

	decoder := hydrolink.NewDecoder(schema)
	deadline := time.Now().Add(time.Duration(waitTimeout) * time.Second)
	skipped := 0

	for time.Now().Before(deadline) {
		line, ok, err := link.ReadLine(time.Until(deadline))
		if err != nil {
			fmt.Fprintf(os.Stderr, "Read error: %v\n", err)
			os.Exit(2)
		}
		if !ok {
			break
		}

		msg, decodeErr := decoder.Decode(line)
		if decodeErr != nil {
			skipped++
			continue
		}
		if want != hydrolink.MsgUnknown && msg.Type() != want {
			continue
		}

		if skipped > 0 {
			fmt.Printf("(skipped %d malformed lines)\n", skipped)
		}
		fmt.Printf("SUCCESS: Received valid message\n")
		fmt.Print(hydrolink.FormatMessage(msg, schema))
		os.Exit(0)
	}

	fmt.Fprintf(os.Stderr, "TIMEOUT: No valid message received within %d seconds\n", waitTimeout)
	os.Exit(1)
	return nil
}
