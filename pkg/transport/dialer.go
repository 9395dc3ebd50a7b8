// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package transport

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Backoff computes the wait between connection attempts
type Backoff struct {
	Initial    time.Duration
	Max        time.Duration
	Multiplier float64
}

// DefaultBackoff doubles from 1s up to 30s
var DefaultBackoff = Backoff{Initial: time.Second, Max: 30 * time.Second, Multiplier: 2}

// Delay returns the wait after the given zero-based failed attempt.
// A multiplier of 1 or less gives a constant delay.
func (b Backoff) Delay(attempt int) time.Duration {
	d := b.Initial
	if b.Multiplier > 1 {
		for i := 0; i < attempt; i++ {
			d = time.Duration(float64(d) * b.Multiplier)
			if b.Max > 0 && d >= b.Max {
				return b.Max
			}
		}
	}
	if b.Max > 0 && d > b.Max {
		return b.Max
	}
	return d
}

// Dialer finds and opens a device, retrying until it succeeds
type Dialer struct {
	// Discover lists candidate targets for one attempt
	Discover func() []string

	// Open opens a single target
	Open func(ctx context.Context, target string) (*Link, error)

	Backoff Backoff

	// MaxAttempts of 0 retries forever
	MaxAttempts int

	// Sleep waits between attempts; defaults to SleepContext
	Sleep func(ctx context.Context, d time.Duration) error

	Logger *slog.Logger
}

// SerialDialer discovers ports matching patterns, or always uses port when set
func SerialDialer(port string, patterns []string, cfg SerialConfig) *Dialer {
	discover := func() []string { return Discover(patterns) }
	if port != "" {
		discover = func() []string { return []string{port} }
	}
	return &Dialer{
		Discover: discover,
		Open: func(ctx context.Context, target string) (*Link, error) {
			return OpenSerial(ctx, target, cfg)
		},
		Backoff: DefaultBackoff,
	}
}

// WebSocketDialer always dials the configured bridge URL
func WebSocketDialer(cfg WebSocketConfig) *Dialer {
	return &Dialer{
		Discover: func() []string { return []string{cfg.URL} },
		Open: func(ctx context.Context, _ string) (*Link, error) {
			return OpenWebSocket(ctx, cfg)
		},
		Backoff: DefaultBackoff,
	}
}

// ConnectWithRetry runs discover-then-open attempts until one succeeds,
// MaxAttempts is exhausted, or ctx is done. Each attempt calls Discover
// exactly once; consecutive attempts are separated by exactly one sleep.
func (d *Dialer) ConnectWithRetry(ctx context.Context) (*Link, error) {
	sleep := d.Sleep
	if sleep == nil {
		sleep = SleepContext
	}
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var lastErr error
	for attempt := 0; ; attempt++ {
		if attempt > 0 {
			delay := d.Backoff.Delay(attempt - 1)
			logger.Debug("waiting before reconnect", "attempt", attempt+1, "delay", delay)
			if err := sleep(ctx, delay); err != nil {
				return nil, &ConnectionError{Op: "connect", Err: err}
			}
		}
		if err := ctx.Err(); err != nil {
			return nil, &ConnectionError{Op: "connect", Err: err}
		}

		link, err := d.attempt(ctx, logger)
		if err == nil {
			logger.Info("device connected", "target", link.Name(), "attempt", attempt+1)
			return link, nil
		}
		lastErr = err

		if d.MaxAttempts > 0 && attempt+1 >= d.MaxAttempts {
			return nil, &ConnectionError{
				Op:  "connect",
				Err: fmt.Errorf("gave up after %d attempts: %w", attempt+1, lastErr),
			}
		}
	}
}

func (d *Dialer) attempt(ctx context.Context, logger *slog.Logger) (*Link, error) {
	candidates := d.Discover()
	if len(candidates) == 0 {
		logger.Debug("no candidate devices")
		return nil, ErrNoDevice
	}

	var lastErr error
	for _, target := range candidates {
		link, err := d.Open(ctx, target)
		if err == nil {
			return link, nil
		}
		logger.Warn("open failed", "target", target, "error", err)
		lastErr = err
		if ctx.Err() != nil {
			break
		}
	}
	return nil, lastErr
}
