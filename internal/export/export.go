// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package export

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

var (
	// ErrDisabled is returned by sink constructors when the sink is switched off
	ErrDisabled = errors.New("export: sink disabled")

	// ErrRunnerClosed is returned by ExportOnce after Close
	ErrRunnerClosed = errors.New("export: runner closed")
)

// Sink receives status snapshots
type Sink interface {
	Name() string
	Export(ctx context.Context, st Status) error
	Close() error
}

// Runner builds a snapshot every interval and hands it to each sink
type Runner struct {
	src      Sources
	sinks    []Sink
	interval time.Duration
	timeout  time.Duration
	logger   *slog.Logger
	now      func() time.Time

	// exportMu serialises exports with each other and with Close
	exportMu sync.Mutex
	closed   bool

	mu       sync.Mutex
	failures map[string]uint64
}

// NewRunner creates a runner. The per-sink timeout is half the interval.
func NewRunner(src Sources, interval time.Duration, logger *slog.Logger, sinks ...Sink) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		src:      src,
		sinks:    sinks,
		interval: interval,
		timeout:  interval / 2,
		logger:   logger,
		now:      time.Now,
		failures: make(map[string]uint64),
	}
}

// Run exports once immediately, then every interval until ctx is done or
// the runner is closed
func (r *Runner) Run(ctx context.Context) {
	if len(r.sinks) == 0 {
		return
	}

	if errors.Is(r.ExportOnce(ctx), ErrRunnerClosed) {
		return
	}

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if errors.Is(r.ExportOnce(ctx), ErrRunnerClosed) {
				return
			}
		}
	}
}

// ExportOnce sends one snapshot to every sink and returns the joined errors.
// It waits for an export already in progress.
func (r *Runner) ExportOnce(ctx context.Context) error {
	r.exportMu.Lock()
	defer r.exportMu.Unlock()
	if r.closed {
		return ErrRunnerClosed
	}

	st := Build(r.src, r.now())

	var errs []error
	for _, sink := range r.sinks {
		sctx := ctx
		var cancel context.CancelFunc = func() {}
		if r.timeout > 0 {
			sctx, cancel = context.WithTimeout(ctx, r.timeout)
		}
		err := sink.Export(sctx, st)
		cancel()

		if err != nil {
			r.mu.Lock()
			r.failures[sink.Name()]++
			count := r.failures[sink.Name()]
			r.mu.Unlock()

			r.logger.Warn("export failed",
				"sink", sink.Name(),
				"failures", count,
				"error", err,
			)
			errs = append(errs, err)
			continue
		}
		r.logger.Debug("exported status", "sink", sink.Name())
	}
	return errors.Join(errs...)
}

// Failures returns how many exports each sink has failed
func (r *Runner) Failures() map[string]uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make(map[string]uint64, len(r.failures))
	for k, v := range r.failures {
		out[k] = v
	}
	return out
}

// Close waits for an export in progress, then closes every sink. Later
// exports fail with ErrRunnerClosed.
func (r *Runner) Close() error {
	r.exportMu.Lock()
	defer r.exportMu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true

	var errs []error
	for _, sink := range r.sinks {
		if err := sink.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
