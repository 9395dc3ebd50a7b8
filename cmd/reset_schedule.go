// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var resetTimeout int

var resetScheduleCmd = &cobra.Command{
	Use:   "reset_schedule",
	Short: "Make the controller re-apply its relay schedule",
	Long: `Send RESET_SCHEDULE so the firmware drops manual overrides and
switches every relay to what its schedule says for the current time. The
resulting relay states are printed.`,
	Args: cobra.NoArgs,
	RunE: runResetSchedule,
}

func init() {
	rootCmd.AddCommand(resetScheduleCmd)
	resetScheduleCmd.Flags().IntVar(&resetTimeout, "timeout", 10, "Timeout in seconds to connect and read state")
}

func runResetSchedule(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := setupLogger(cfg)
	defer logger.Close()

	timeout := time.Duration(resetTimeout) * time.Second
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	cfg.Session.TimeSyncInterval = 0
	cfg.Session.RequestStateOnConnect = true

	ctrl, err := connectController(ctx, cfg, logger, timeout)
	if err != nil {
		return err
	}
	defer ctrl.Close()

	// The handshake's own GET_STATE answer must not count as the post-reset state
	if err := ctrl.waitForRelayReport(ctx); err != nil {
		return err
	}
	before := ctrl.session.Stats().RelayReports

	if err := ctrl.session.ResetSchedule(); err != nil {
		return err
	}
	fmt.Printf("Sent RESET_SCHEDULE\n")

	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for ctrl.session.Stats().RelayReports == before {
		select {
		case <-ctx.Done():
			return fmt.Errorf("no relay report after reset: %w", ctx.Err())
		case <-ticker.C:
		}
	}

	printRelayTable(ctrl)
	return nil
}
