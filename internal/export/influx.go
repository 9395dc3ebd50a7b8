// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package export

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/Thermoquad/hydrostat/internal/config"
)

const (
	influxPingTimeout = 5 * time.Second

	measurementSensor = "hydro_sensor"
	measurementRelay  = "hydro_relay"
)

// ErrInfluxConnect is returned when the server is unreachable or unhealthy
var ErrInfluxConnect = errors.New("influxdb: connection failed")

// InfluxSink writes readings and relay states as time series points. Writes
// are batched and non-blocking; asynchronous failures are logged.
type InfluxSink struct {
	client   influxdb2.Client
	writeAPI api.WriteAPI
	logger   *slog.Logger
}

// NewInfluxSink connects to the server in cfg and checks it is healthy
func NewInfluxSink(ctx context.Context, cfg config.InfluxDBConfig, logger *slog.Logger) (*InfluxSink, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}
	if logger == nil {
		logger = slog.Default()
	}

	batch := cfg.BatchSize
	if batch == 0 {
		batch = 100
	}
	flush := cfg.FlushInterval
	if flush <= 0 {
		flush = 10 * time.Second
	}

	client := influxdb2.NewClientWithOptions(
		cfg.URL,
		cfg.Token,
		influxdb2.DefaultOptions().
			SetBatchSize(batch).
			SetFlushInterval(uint(flush.Milliseconds())),
	)

	pctx, cancel := context.WithTimeout(ctx, influxPingTimeout)
	defer cancel()

	healthy, err := client.Ping(pctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: ping failed: %w", ErrInfluxConnect, err)
	}
	if !healthy {
		client.Close()
		return nil, fmt.Errorf("%w: server not healthy", ErrInfluxConnect)
	}

	s := &InfluxSink{
		client:   client,
		writeAPI: client.WriteAPI(cfg.Org, cfg.Bucket),
		logger:   logger,
	}
	go s.handleWriteErrors(s.writeAPI.Errors())
	return s, nil
}

func (s *InfluxSink) handleWriteErrors(errs <-chan error) {
	for err := range errs {
		s.logger.Warn("influxdb write failed", "error", err)
	}
}

// Name returns "influxdb"
func (s *InfluxSink) Name() string {
	return "influxdb"
}

// Export queues the points for st
func (s *InfluxSink) Export(ctx context.Context, st Status) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	for _, p := range statusPoints(st) {
		s.writeAPI.WritePoint(p)
	}
	return nil
}

// statusPoints converts a snapshot into one sensor point carrying every
// reading plus one point per relay
func statusPoints(st Status) []*write.Point {
	points := make([]*write.Point, 0, 1+len(st.Relays))

	if len(st.Sensors) > 0 {
		fields := make(map[string]interface{}, len(st.Sensors))
		for _, r := range st.Sensors {
			fields[r.Name] = r.Value
		}
		points = append(points, write.NewPoint(
			measurementSensor,
			map[string]string{},
			fields,
			st.Timestamp,
		))
	}

	for _, r := range st.Relays {
		points = append(points, write.NewPoint(
			measurementRelay,
			map[string]string{
				"device": r.Key,
				"code":   r.Code,
			},
			map[string]interface{}{
				"on": r.On,
			},
			st.Timestamp,
		))
	}

	return points
}

// Close flushes pending points and closes the client
func (s *InfluxSink) Close() error {
	s.writeAPI.Flush()
	s.client.Close()
	return nil
}
