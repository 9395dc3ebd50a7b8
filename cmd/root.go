// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"github.com/spf13/cobra"

	"github.com/Thermoquad/hydrostat/internal/config"
)

// Version is reported by --version and attached to every log line
const Version = "1.0.0"

var (
	configPath string
	logLevel   string

	// Serial connection flags
	portName string
	baudRate int

	// WebSocket connection flags
	wsURL         string
	wsUsername    string
	wsNoSSLVerify bool
)

var rootCmd = &cobra.Command{
	Use:   "hydrostat",
	Short: "Hydroponics controller link",
	Long: `Hydrostat - talk to a hydroponics relay/sensor controller over its serial line.

Keeps a live session with the controller: relay states (RSTATE), sensor
readings (SSTATE) and the device clock (TIME) are decoded as they arrive,
and relay switching, clock sync and schedule resets are sent back.

Connection modes:
  Serial:    --port /dev/ttyACM0 [--baud 9600]   (auto-discovered when omitted)
  WebSocket: --url ws://host/path [--username user]

For WebSocket authentication, the password is read from the HYDROSTAT_PASSWORD
environment variable, or prompted interactively if not set. The --password
flag is intentionally not provided to avoid leaking credentials in shell history.

Settings not covered by flags come from --config (YAML) and HYDROSTAT_*
environment variables.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: false,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to YAML configuration file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error)")

	// Serial connection flags
	rootCmd.PersistentFlags().StringVarP(&portName, "port", "p", "", "Serial port device (default: auto-discover)")
	rootCmd.PersistentFlags().IntVarP(&baudRate, "baud", "b", 0, "Baud rate (serial only, default 9600)")

	// WebSocket connection flags
	rootCmd.PersistentFlags().StringVarP(&wsURL, "url", "u", "", "WebSocket URL (ws:// or wss://)")
	rootCmd.PersistentFlags().StringVar(&wsUsername, "username", "", "Username for HTTP Basic auth")
	rootCmd.PersistentFlags().BoolVar(&wsNoSSLVerify, "no-ssl-verify", false, "Skip TLS certificate verification (wss:// only)")
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// loadConfig reads --config and applies command-line overrides on top
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	applyFlags(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyFlags(cfg *config.Config) {
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if portName != "" {
		cfg.Serial.Port = portName
	}
	if baudRate > 0 {
		cfg.Serial.BaudRate = baudRate
	}
	if wsURL != "" {
		cfg.WebSocket.URL = wsURL
	}
	if wsUsername != "" {
		cfg.WebSocket.Username = wsUsername
	}
	if wsNoSSLVerify {
		cfg.WebSocket.SkipSSLVerify = true
	}
}
