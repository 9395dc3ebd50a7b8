// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Thermoquad/hydrostat/internal/config"
	"github.com/Thermoquad/hydrostat/internal/export"
	"github.com/Thermoquad/hydrostat/internal/logging"
	"github.com/Thermoquad/hydrostat/internal/schedule"
	"github.com/Thermoquad/hydrostat/pkg/relay"
	"github.com/Thermoquad/hydrostat/pkg/sensor"
	"github.com/Thermoquad/hydrostat/pkg/session"
	"github.com/Thermoquad/hydrostat/pkg/transport"
)

// newDialer picks the WebSocket bridge when a URL is configured, otherwise
// the serial port (auto-discovered when none is given)
func newDialer(cfg *config.Config, logger *slog.Logger) (*transport.Dialer, error) {
	var d *transport.Dialer

	if cfg.WebSocket.URL != "" {
		password := ""
		if cfg.WebSocket.Username != "" {
			var err error
			password, err = transport.GetPassword()
			if err != nil {
				return nil, err
			}
		}
		d = transport.WebSocketDialer(transport.WebSocketConfig{
			URL:           cfg.WebSocket.URL,
			Username:      cfg.WebSocket.Username,
			Password:      password,
			SkipSSLVerify: cfg.WebSocket.SkipSSLVerify,
		})
	} else {
		d = transport.SerialDialer(cfg.Serial.Port, cfg.Serial.Patterns, cfg.SerialSettings())
	}

	d.Backoff = cfg.Backoff()
	d.MaxAttempts = cfg.Session.Backoff.MaxAttempts
	d.Logger = logger
	return d, nil
}

// openLink makes a single connection attempt, for one-shot commands
func openLink(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*transport.Link, error) {
	d, err := newDialer(cfg, logger)
	if err != nil {
		return nil, err
	}
	d.MaxAttempts = 1
	return d.ConnectWithRetry(ctx)
}

// setupLogger builds the logger for cfg, falling back to stderr on error
func setupLogger(cfg *config.Config) *logging.Logger {
	logger, err := logging.New(cfg.Logging, Version)
	if err != nil {
		fallback := logging.Default()
		fallback.Warn("using stderr for logs", "error", err)
		return fallback
	}
	return logger
}

// controller wires a session to the relay registry and sensor cache
type controller struct {
	cfg      *config.Config
	logger   *logging.Logger
	session  *session.Session
	relays   *relay.Registry
	sensors  *sensor.Cache
	schedule *schedule.Table
}

func newController(cfg *config.Config, logger *logging.Logger) (*controller, error) {
	dialer, err := newDialer(cfg, logger.Component("transport").Logger)
	if err != nil {
		return nil, err
	}

	sessCfg := cfg.SessionConfig()
	sess := session.New(dialer, sessCfg, logger.Component("session").Logger)

	relays, err := relay.NewRegistry(cfg.Devices(), sess)
	if err != nil {
		return nil, fmt.Errorf("relay table: %w", err)
	}
	sensors := sensor.NewCache(sessCfg.Schema)
	sess.Route(relays, sensors)

	if cfg.Session.ResendStateOnConnect {
		sess.OnConnect(func() {
			if err := relays.ResendAll(); err != nil {
				logger.Warn("resending relay state failed", "error", err)
			}
		})
	}

	var table *schedule.Table
	if cfg.Schedule.File != "" {
		table, err = schedule.Load(cfg.Schedule.File)
		if err != nil {
			return nil, err
		}
	}

	return &controller{
		cfg:      cfg,
		logger:   logger,
		session:  sess,
		relays:   relays,
		sensors:  sensors,
		schedule: table,
	}, nil
}

func (c *controller) sources() export.Sources {
	return export.Sources{
		Relays:   c.relays,
		Sensors:  c.sensors,
		Session:  c.session,
		Schedule: c.schedule,
	}
}

func (c *controller) Close() error {
	return c.session.Close()
}

// connectController starts a session and waits for the first handshake
func connectController(ctx context.Context, cfg *config.Config, logger *logging.Logger, timeout time.Duration) (*controller, error) {
	ctrl, err := newController(cfg, logger)
	if err != nil {
		return nil, err
	}
	if err := ctrl.session.Start(ctx); err != nil {
		return nil, err
	}

	wctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := ctrl.session.WaitForStatus(wctx, session.Connected); err != nil {
		ctrl.Close()
		return nil, fmt.Errorf("controller not reachable: %w", err)
	}
	return ctrl, nil
}

// waitForRelayReport blocks until at least one RSTATE has been applied
func (c *controller) waitForRelayReport(ctx context.Context) error {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for c.session.Stats().RelayReports == 0 {
		select {
		case <-ctx.Done():
			return fmt.Errorf("no relay report: %w", ctx.Err())
		case <-c.session.Done():
			return session.ErrClosed
		case <-ticker.C:
		}
	}
	return nil
}
