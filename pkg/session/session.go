// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package session owns the live link to the controller. It runs the single
// reader loop, routes decoded reports to the relay registry and sensor cache,
// tracks connectivity, and is the only path for outbound commands.
package session

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/Thermoquad/hydrostat/pkg/hydrolink"
	"github.com/Thermoquad/hydrostat/pkg/transport"
)

// Connector produces a live link, retrying as it sees fit
type Connector interface {
	ConnectWithRetry(ctx context.Context) (*transport.Link, error)
}

// RelaySink receives RSTATE reports and returns codes it did not recognise
type RelaySink interface {
	ApplyReport(hydrolink.RelayReport) []string
}

// SensorSink receives SSTATE reports
type SensorSink interface {
	ApplyReport(hydrolink.SensorReport) error
}

// Config tunes the session
type Config struct {
	Schema hydrolink.Schema

	// LineTimeout bounds each wait for an inbound line
	LineTimeout time.Duration

	// ProbeInterval is how long the link may stay silent before a PING
	ProbeInterval time.Duration
	ProbeTimeout  time.Duration

	// TimeSyncInterval of 0 syncs only on connect
	TimeSyncInterval time.Duration

	// DriftTolerance for TIME reports before an anomaly is logged
	DriftTolerance time.Duration

	// RequestStateOnConnect sends GET_STATE after connecting and after a schedule reset
	RequestStateOnConnect bool
	ResetStateDelay       time.Duration

	// Reconnect keeps the session alive across link failures
	Reconnect bool

	// Backoff paces reconnects after a link is lost. The count resets once a
	// link has stayed Connected for longer than ProbeInterval.
	Backoff transport.Backoff
}

// DefaultConfig returns the settings used by the stock controller
func DefaultConfig() Config {
	return Config{
		Schema:                hydrolink.SchemaV8,
		LineTimeout:           time.Second,
		ProbeInterval:         5 * time.Second,
		ProbeTimeout:          time.Second,
		TimeSyncInterval:      10 * time.Minute,
		DriftTolerance:        30 * time.Second,
		RequestStateOnConnect: true,
		ResetStateDelay:       time.Second,
		Reconnect:             true,
		Backoff:               transport.DefaultBackoff,
	}
}

// ClockInfo is the last device clock seen and how far it was from the host
type ClockInfo struct {
	Device     hydrolink.TimeReport
	Drift      time.Duration
	ReceivedAt time.Time
	LastSync   time.Time
}

type statusSub struct {
	id int
	fn func(Status)
}

// Session is the single owner of the controller link
type Session struct {
	connector Connector
	cfg       Config
	logger    *slog.Logger
	decoder   *hydrolink.Decoder
	stats     *hydrolink.Statistics
	now       func() time.Time

	mu         sync.RWMutex
	link       *transport.Link
	status     Status
	relays     RelaySink
	sensors    SensorSink
	statusSubs []statusSub
	nextSubID  int
	lineSubs   []func(string)
	hooks      []func()
	clock      ClockInfo
	started    bool

	cancel    context.CancelFunc
	done      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// New creates a session. Nothing happens until Start.
func New(connector Connector, cfg Config, logger *slog.Logger) *Session {
	def := DefaultConfig()
	if cfg.Schema.Arity() == 0 {
		cfg.Schema = def.Schema
	}
	if cfg.LineTimeout <= 0 {
		cfg.LineTimeout = def.LineTimeout
	}
	if cfg.ProbeInterval <= 0 {
		cfg.ProbeInterval = def.ProbeInterval
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = def.ProbeTimeout
	}
	if cfg.DriftTolerance <= 0 {
		cfg.DriftTolerance = def.DriftTolerance
	}
	if cfg.ResetStateDelay <= 0 {
		cfg.ResetStateDelay = def.ResetStateDelay
	}
	if cfg.Backoff.Initial <= 0 {
		cfg.Backoff = def.Backoff
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Session{
		connector: connector,
		cfg:       cfg,
		logger:    logger,
		decoder:   hydrolink.NewDecoder(cfg.Schema),
		stats:     hydrolink.NewStatistics(),
		now:       time.Now,
		done:      make(chan struct{}),
	}
}

// Route sets where decoded reports go. Either may be nil.
func (s *Session) Route(relays RelaySink, sensors SensorSink) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.relays = relays
	s.sensors = sensors
}

// Subscribe registers fn for status changes and returns a function that
// removes it
func (s *Session) Subscribe(fn func(Status)) (unsubscribe func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextSubID
	s.nextSubID++
	s.statusSubs = append(s.statusSubs, statusSub{id: id, fn: fn})

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		subs := make([]statusSub, 0, len(s.statusSubs))
		for _, sub := range s.statusSubs {
			if sub.id != id {
				subs = append(subs, sub)
			}
		}
		s.statusSubs = subs
	}
}

// OnLine registers fn to receive every inbound line before it is decoded
func (s *Session) OnLine(fn func(string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lineSubs = append(s.lineSubs, fn)
}

// OnConnect registers fn to run after each (re)connect handshake
func (s *Session) OnConnect(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hooks = append(s.hooks, fn)
}

// Status returns the current connectivity
func (s *Session) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// ConnectionInfo describes the live link, or "" when there is none
func (s *Session) ConnectionInfo() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.link == nil {
		return ""
	}
	return s.link.Name()
}

// Clock returns the last device time report
func (s *Session) Clock() ClockInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.clock
}

// Stats returns line counters
func (s *Session) Stats() hydrolink.Counters {
	return s.stats.Snapshot()
}

// Schema returns the sensor schema used to decode SSTATE
func (s *Session) Schema() hydrolink.Schema {
	return s.cfg.Schema
}

// Done is closed when the session stops for good
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Start connects in the background and keeps the reader loop running until
// ctx is cancelled or Close is called
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return ErrAlreadyStarted
	}
	s.started = true
	ctx, s.cancel = context.WithCancel(ctx)
	s.mu.Unlock()

	s.wg.Add(3)
	go s.run(ctx)
	go s.syncLoop(ctx)
	go func() {
		defer s.wg.Done()
		select {
		case <-ctx.Done():
			s.closeLink()
		case <-s.done:
		}
	}()
	return nil
}

// Close stops the session and releases the link
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		cancel := s.cancel
		started := s.started
		s.started = true
		s.mu.Unlock()

		if cancel != nil {
			cancel()
		}
		s.closeLink()
		s.wg.Wait()
		if !started {
			close(s.done)
		}
		s.setStatus(Disconnected)
	})
	return nil
}

// WaitForStatus blocks until the session reaches want
func (s *Session) WaitForStatus(ctx context.Context, want Status) error {
	reached := make(chan struct{}, 1)
	unsubscribe := s.Subscribe(func(st Status) {
		if st == want {
			select {
			case reached <- struct{}{}:
			default:
			}
		}
	})
	defer unsubscribe()

	if s.Status() == want {
		return nil
	}

	select {
	case <-reached:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-s.done:
		if s.Status() == want {
			return nil
		}
		return ErrClosed
	}
}

func (s *Session) run(ctx context.Context) {
	defer s.wg.Done()
	defer close(s.done)

	// failures counts links lost in a row, so a device that accepts and
	// then drops is not redialled in a tight loop
	failures := 0
	for {
		if failures > 0 {
			delay := s.cfg.Backoff.Delay(failures - 1)
			s.logger.Info("reconnecting", "delay", delay, "failures", failures)
			if transport.SleepContext(ctx, delay) != nil {
				return
			}
		}

		s.setStatus(Connecting)
		link, err := s.connector.ConnectWithRetry(ctx)
		if err != nil {
			s.setStatus(Disconnected)
			if ctx.Err() != nil {
				return
			}
			s.logger.Error("connect failed", "error", err)
			if !s.cfg.Reconnect {
				return
			}
			failures++
			continue
		}

		s.mu.Lock()
		s.link = link
		s.mu.Unlock()

		established := time.Now()
		s.handshake(link)
		s.readLoop(ctx, link)
		healthy := s.Status() == Connected && time.Since(established) > s.cfg.ProbeInterval
		s.markDisconnected(link)

		if ctx.Err() != nil || !s.cfg.Reconnect {
			return
		}
		if healthy {
			failures = 0
		}
		failures++
	}
}

func (s *Session) handshake(link *transport.Link) {
	if link.Probe(s.cfg.ProbeTimeout) {
		s.setStatus(Connected)
	} else {
		s.logger.Warn("no reply to PING, waiting for traffic", "link", link.Name())
	}

	if err := s.SyncTime(); err != nil {
		s.logger.Warn("time sync failed", "error", err)
	}
	if s.cfg.RequestStateOnConnect {
		if err := s.RequestState(); err != nil {
			s.logger.Warn("state request failed", "error", err)
		}
	}

	s.mu.RLock()
	hooks := s.hooks
	s.mu.RUnlock()
	for _, hook := range hooks {
		hook()
	}
}

func (s *Session) readLoop(ctx context.Context, link *transport.Link) {
	lastTraffic := time.Now()

	for ctx.Err() == nil {
		line, ok, err := link.ReadLine(s.cfg.LineTimeout)
		if err != nil {
			if ctx.Err() == nil {
				s.logger.Warn("link lost", "link", link.Name(), "error", err)
			}
			return
		}

		if !ok {
			if time.Since(lastTraffic) < s.cfg.ProbeInterval {
				continue
			}
			if !link.Probe(s.cfg.ProbeTimeout) {
				s.logger.Warn("liveness probe failed", "link", link.Name())
				return
			}
			s.setStatus(Connected)
			lastTraffic = time.Now()
			continue
		}

		lastTraffic = time.Now()
		s.setStatus(Connected)
		s.dispatch(line)
	}
}

func (s *Session) dispatch(line string) {
	s.mu.RLock()
	lineSubs := s.lineSubs
	relays := s.relays
	sensors := s.sensors
	s.mu.RUnlock()

	for _, fn := range lineSubs {
		fn(line)
	}

	if strings.TrimSpace(line) == "" {
		return
	}

	msg, err := s.decoder.Decode(line)
	if err != nil {
		s.stats.Update(nil, err, nil)
		s.logger.Warn("discarding malformed line", "line", line, "error", err)
		return
	}

	var anomalies []hydrolink.ValidationError
	switch msg.Type() {
	case hydrolink.MsgRelayState:
		report, _ := msg.RelayReport()
		if relays != nil {
			if unknown := relays.ApplyReport(report); len(unknown) > 0 {
				s.logger.Debug("ignoring unknown relay codes", "codes", unknown)
			}
		}

	case hydrolink.MsgSensorState:
		report, _ := msg.SensorReport()
		anomalies = hydrolink.ValidateSensorReport(report, s.cfg.Schema)
		if sensors != nil {
			if err := sensors.ApplyReport(report); err != nil {
				s.logger.Warn("sensor report rejected", "error", err)
				s.stats.Update(nil, err, nil)
				return
			}
		}

	case hydrolink.MsgTime:
		report, _ := msg.TimeReport()
		now := s.now()
		anomalies = hydrolink.ValidateTimeReport(report, now, s.cfg.DriftTolerance)
		s.mu.Lock()
		s.clock.Device = report
		s.clock.Drift = report.Drift(now)
		s.clock.ReceivedAt = now
		s.mu.Unlock()
	}

	for _, a := range anomalies {
		s.logger.Warn("anomalous report", "type", a.Type.String(), "field", a.Field, "detail", a.Message)
	}
	s.stats.Update(msg, nil, anomalies)
}

func (s *Session) syncLoop(ctx context.Context) {
	defer s.wg.Done()
	if s.cfg.TimeSyncInterval <= 0 {
		return
	}

	ticker := time.NewTicker(s.cfg.TimeSyncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.done:
			return
		case <-ticker.C:
			if s.Status() != Connected {
				continue
			}
			if err := s.SyncTime(); err != nil {
				s.logger.Warn("periodic time sync failed", "error", err)
			}
		}
	}
}

func (s *Session) setStatus(st Status) {
	s.mu.Lock()
	if s.status == st {
		s.mu.Unlock()
		return
	}
	prev := s.status
	s.status = st
	subs := s.statusSubs
	s.mu.Unlock()

	s.logger.Info("connection status changed", "from", prev.String(), "to", st.String())
	for _, sub := range subs {
		sub.fn(st)
	}
}

// markDisconnected drops link if it is still the live one
func (s *Session) markDisconnected(link *transport.Link) {
	s.mu.Lock()
	current := s.link == link
	if current {
		s.link = nil
	}
	s.mu.Unlock()

	link.Close()
	if current {
		s.setStatus(Disconnected)
	}
}

func (s *Session) closeLink() {
	s.mu.RLock()
	link := s.link
	s.mu.RUnlock()
	if link != nil {
		link.Close()
	}
}
