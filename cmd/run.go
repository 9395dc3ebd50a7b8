// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/hydrostat/internal/export"
	"github.com/Thermoquad/hydrostat/pkg/relay"
	"github.com/Thermoquad/hydrostat/pkg/sensor"
	"github.com/Thermoquad/hydrostat/pkg/session"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Keep a session with the controller and export its status",
	Long: `Run headless: connect to the controller (reconnecting as needed), keep
relay and sensor state current, sync the device clock periodically and
publish status snapshots to the sinks enabled under export:

  status_file  atomic status.json rewrite
  mqtt         retained documents per relay and sensor
  influxdb     hydro_sensor / hydro_relay time series
  dynamodb     latest item plus an expiring log
  history      local SQLite snapshots (see 'hydrostat history')

With --raw-log every inbound line is appended to a file as
"<RFC3339 timestamp> - <line>".

Stops on SIGINT or SIGTERM.`,
	Args: cobra.NoArgs,
	RunE: runRun,
}

var runRawLogPath string

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().StringVar(&runRawLogPath, "raw-log", "", "Append every inbound line to this file")
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := setupLogger(cfg)
	defer logger.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Opened before the session so it is closed after it
	var rawLog *os.File
	if runRawLogPath != "" {
		rawLog, err = openLineLog(runRawLogPath)
		if err != nil {
			return err
		}
		defer rawLog.Close()
	}

	ctrl, err := newController(cfg, logger)
	if err != nil {
		return err
	}
	defer ctrl.Close()

	ctrl.session.Subscribe(func(st session.Status) {
		logger.Info("connection status", "status", st.String(), "link", ctrl.session.ConnectionInfo())
	})
	ctrl.relays.Subscribe(relay.ObserverFunc(func(c relay.Change) {
		logger.Info("relay changed",
			"relay", c.Device.Key,
			"on", c.On,
			"source", c.Source.String(),
		)
	}))
	ctrl.sensors.Subscribe(sensor.ObserverFunc(func(readings map[string]sensor.Reading) {
		logger.Debug("sensors updated", "count", len(readings))
	}))

	if rawLog != nil {
		ctrl.session.OnLine(func(line string) {
			writeLineLog(rawLog, time.Now(), line)
		})
	}

	sinks := export.OpenSinks(ctx, cfg.Export, logger.Component("export").Logger)
	runner := export.NewRunner(ctrl.sources(), cfg.Export.Interval, logger.Component("export").Logger, sinks...)

	if err := ctrl.session.Start(ctx); err != nil {
		runner.Close()
		return err
	}

	logger.Info("hydrostat running",
		"version", Version,
		"sinks", len(sinks),
		"schema_arity", ctrl.session.Schema().Arity(),
	)

	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()
	runDone := make(chan struct{})
	go func() {
		defer close(runDone)
		runner.Run(runCtx)
	}()

	select {
	case <-ctx.Done():
	case <-ctrl.session.Done():
		logger.Warn("session ended")
	}

	logger.Info("shutting down")
	cancelRun()
	<-runDone

	// Final snapshot so sinks see the last known state
	finalCtx, cancelFinal := context.WithTimeout(context.Background(), cfg.Export.Interval)
	defer cancelFinal()
	if err := runner.ExportOnce(finalCtx); err != nil {
		logger.Warn("final export incomplete", "error", err)
	}
	return runner.Close()
}
