// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/Thermoquad/hydrostat/pkg/relay"
	"github.com/Thermoquad/hydrostat/pkg/sensor"
	"github.com/Thermoquad/hydrostat/pkg/session"
)

var controlLogFile string

var controlCmd = &cobra.Command{
	Use:   "control",
	Short: "Interactive TUI for the hydroponics controller",
	Long: `Monitor and switch the controller from an interactive terminal UI.

Features:
  - Connectivity indicator with automatic reconnection
  - Relay list with schedule annotations
  - Sensor panel, marked stale while disconnected or when readings stop
  - Event log

Keys:
  up/down      select relay
  enter/space  toggle selected relay
  r            reset schedule
  t            sync device clock
  g            request state
  s            resend all relay states
  q            quit

Logs go to --log-file (or logging.output when it names a file) so they do
not draw over the UI.

Supports both serial and WebSocket connections.`,
	Args: cobra.NoArgs,
	RunE: runControl,
}

func init() {
	rootCmd.AddCommand(controlCmd)
	controlCmd.Flags().StringVar(&controlLogFile, "log-file", "", "Write logs to this file while the UI runs")
}

// Toggle flips a relay
func (c *controller) Toggle(key string) (bool, error) {
	return c.relays.Toggle(key)
}

// ResetSchedule asks the firmware to re-apply its schedule
func (c *controller) ResetSchedule() error {
	return c.session.ResetSchedule()
}

// SyncTime sets the device clock
func (c *controller) SyncTime() error {
	return c.session.SyncTime()
}

// RequestState asks for a fresh relay report
func (c *controller) RequestState() error {
	return c.session.RequestState()
}

// ResendAll pushes every relay state to the device
func (c *controller) ResendAll() error {
	return c.relays.ResendAll()
}

func runControl(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	// The terminal belongs to the UI
	switch {
	case controlLogFile != "":
		cfg.Logging.Output = controlLogFile
	case cfg.Logging.Output == "", strings.EqualFold(cfg.Logging.Output, "stderr"), strings.EqualFold(cfg.Logging.Output, "stdout"):
		cfg.Logging.Output = "discard"
	}
	logger := setupLogger(cfg)
	defer logger.Close()

	ctrl, err := newController(cfg, logger)
	if err != nil {
		return err
	}

	m := initialControlModel(controlSetup{
		actions:        ctrl,
		devices:        ctrl.relays.Devices(),
		relayState:     ctrl.relays.Snapshot(),
		readings:       ctrl.sensors.Snapshot(),
		schema:         ctrl.session.Schema(),
		schedule:       ctrl.schedule,
		reportInterval: cfg.Sensors.ReportInterval,
		stats:          ctrl.session.Stats,
		clock:          ctrl.session.Clock,
		connInfo:       ctrl.session.ConnectionInfo,
	})

	p := tea.NewProgram(m, tea.WithAltScreen())

	ctrl.session.Subscribe(func(st session.Status) {
		p.Send(statusMsg{status: st, info: ctrl.session.ConnectionInfo()})
	})
	ctrl.relays.Subscribe(relay.ObserverFunc(func(c relay.Change) {
		p.Send(relayMsg(c))
	}))
	ctrl.sensors.Subscribe(sensor.ObserverFunc(func(readings map[string]sensor.Reading) {
		p.Send(sensorsMsg(readings))
	}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := ctrl.session.Start(ctx); err != nil {
		return err
	}

	_, runErr := p.Run()
	cancel()
	ctrl.Close()

	if runErr != nil {
		return fmt.Errorf("TUI error: %v", runErr)
	}
	return nil
}
