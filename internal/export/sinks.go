// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package export

import (
	"context"
	"errors"
	"log/slog"

	"github.com/Thermoquad/hydrostat/internal/config"
)

// OpenSinks creates every enabled sink in cfg. A sink that fails to start is
// logged and skipped; the others still run.
func OpenSinks(ctx context.Context, cfg config.ExportConfig, logger *slog.Logger) []Sink {
	if logger == nil {
		logger = slog.Default()
	}

	openers := []struct {
		name string
		open func() (Sink, error)
	}{
		{"file", func() (Sink, error) { return NewFileSink(cfg.StatusFile) }},
		{"mqtt", func() (Sink, error) {
			return NewMQTTSink(cfg.MQTT, logger.With("component", "export/mqtt"))
		}},
		{"influxdb", func() (Sink, error) {
			return NewInfluxSink(ctx, cfg.InfluxDB, logger.With("component", "export/influxdb"))
		}},
		{"dynamodb", func() (Sink, error) { return NewDynamoSink(ctx, cfg.DynamoDB) }},
		{"history", func() (Sink, error) { return NewHistorySink(ctx, cfg.History) }},
	}

	var sinks []Sink
	for _, o := range openers {
		sink, err := o.open()
		if errors.Is(err, ErrDisabled) {
			continue
		}
		if err != nil {
			logger.Error("export sink unavailable", "sink", o.name, "error", err)
			continue
		}
		logger.Info("export sink ready", "sink", o.name)
		sinks = append(sinks, sink)
	}
	return sinks
}
