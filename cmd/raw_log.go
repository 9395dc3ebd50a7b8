// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/hydrostat/pkg/hydrolink"
	"github.com/Thermoquad/hydrostat/pkg/transport"
)

var (
	rawLogFile  string
	rawLogStats bool
	rawLogRaw   bool
)

var rawLogCmd = &cobra.Command{
	Use:   "raw_log",
	Short: "Display inbound controller lines in human-readable format",
	Long: `Continuously decode and display controller lines as they arrive.

Each line is shown with a timestamp, its message type and decoded fields.
Lines that fail to decode are shown as [ERROR]. Liveness acknowledgements
are consumed by the link and never shown.

With --log-file every raw line is also appended to the file as
"<RFC3339 timestamp> - <line>".

Supports both serial and WebSocket connections.`,
	RunE: runRawLog,
}

func init() {
	rootCmd.AddCommand(rawLogCmd)
	rawLogCmd.Flags().StringVar(&rawLogFile, "log-file", "", "Append raw lines to this file")
	rawLogCmd.Flags().BoolVar(&rawLogStats, "stats", false, "Print statistics every 10 seconds and on exit")
	rawLogCmd.Flags().BoolVar(&rawLogRaw, "raw", false, "Print lines verbatim instead of decoding them")
}

func runRawLog(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := setupLogger(cfg)
	defer logger.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	link, err := openLink(ctx, cfg, logger.Component("transport").Logger)
	if err != nil {
		return err
	}
	defer link.Close()

	var logFile io.Writer
	if rawLogFile != "" {
		f, err := openLineLog(rawLogFile)
		if err != nil {
			return err
		}
		defer f.Close()
		logFile = f
	}

	schema, _ := cfg.Schema()

	fmt.Printf("Hydrostat - Raw Line Log\n")
	fmt.Printf("Connection: %s\n", link.Name())
	fmt.Printf("Sensor schema: %s\n", formatSchema(schema))
	fmt.Printf("Press Ctrl+C to exit\n\n")

	decoder := hydrolink.NewDecoder(schema)
	stats := hydrolink.NewStatistics()
	lastStats := time.Now()

	defer func() {
		if rawLogStats {
			fmt.Print("\n" + stats.String())
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		line, ok, err := link.ReadLine(cfg.Session.LineTimeout)
		if err != nil {
			if errors.Is(err, transport.ErrLinkClosed) {
				return nil
			}
			fmt.Fprintf(os.Stderr, "Connection closed: %v\n", err)
			return nil
		}

		if rawLogStats && time.Since(lastStats) >= 10*time.Second {
			fmt.Print("\n" + stats.String() + "\n")
			lastStats = time.Now()
		}

		if !ok || line == "" {
			continue
		}

		if logFile != nil {
			writeLineLog(logFile, time.Now(), line)
		}

		msg, decodeErr := decoder.Decode(line)
		var anomalies []hydrolink.ValidationError
		if decodeErr == nil {
			if r, ok := msg.SensorReport(); ok {
				anomalies = hydrolink.ValidateSensorReport(r, schema)
			}
			if r, ok := msg.TimeReport(); ok {
				anomalies = hydrolink.ValidateTimeReport(r, time.Now(), cfg.Session.DriftTolerance)
			}
		}
		stats.Update(msg, decodeErr, anomalies)

		if rawLogRaw {
			fmt.Printf("[%s] %s\n", time.Now().Format("15:04:05.000"), line)
			continue
		}
		if decodeErr != nil {
			fmt.Printf("[ERROR] %v\n", decodeErr)
			continue
		}
		fmt.Print(hydrolink.FormatMessage(msg, schema))
		for _, a := range anomalies {
			fmt.Printf("  [%s] %s\n", a.Type, a.Message)
		}
	}
}

// formatSchema lists field names, e.g. "air_temp_indoor, humidity_indoor (2 values)"
func formatSchema(schema hydrolink.Schema) string {
	names := schema.Names()
	s := ""
	for i, n := range names {
		if i > 0 {
			s += ", "
		}
		s += n
	}
	return fmt.Sprintf("%s (%d values)", s, len(names))
}

// openLineLog opens path for appending raw controller lines
func openLineLog(path string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("opening log file: %w", err)
	}
	return f, nil
}

// writeLineLog appends "<RFC3339> - <line>"
func writeLineLog(w io.Writer, at time.Time, line string) {
	fmt.Fprintf(w, "%s - %s\n", at.Format(time.RFC3339), line)
}
