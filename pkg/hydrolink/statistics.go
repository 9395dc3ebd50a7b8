// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package hydrolink

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// Counters is a point-in-time copy of Statistics
type Counters struct {
	StartTime      time.Time
	LastUpdateTime time.Time

	// Counters
	TotalLines     uint64
	ValidMessages  uint64
	DecodeErrors   uint64
	ArityErrors    uint64
	RelayReports   uint64
	SensorReports  uint64
	TimeReports    uint64
	PingAcks       uint64
	OutOfRange     uint64
	ClockDrift     uint64
	AnomalousLines uint64

	// Rates (calculated)
	LineRate  float64 // lines/sec
	ErrorRate float64 // errors/sec
}

// Statistics tracks line statistics and error rates. Safe for concurrent use.
type Statistics struct {
	mu sync.Mutex
	c  Counters
}

// NewStatistics creates a new statistics tracker
func NewStatistics() *Statistics {
	now := time.Now()
	return &Statistics{c: Counters{StartTime: now, LastUpdateTime: now}}
}

// Update records one line given its decode result and anomalies
func (s *Statistics) Update(msg *Message, decodeErr error, anomalies []ValidationError) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.c.TotalLines++
	s.c.LastUpdateTime = time.Now()

	if decodeErr != nil {
		if errors.Is(decodeErr, ErrArityMismatch) {
			s.c.ArityErrors++
		}
		s.c.DecodeErrors++
		return
	}

	s.c.ValidMessages++
	if msg != nil {
		switch msg.Type() {
		case MsgRelayState:
			s.c.RelayReports++
		case MsgSensorState:
			s.c.SensorReports++
		case MsgTime:
			s.c.TimeReports++
		case MsgPingAck:
			s.c.PingAcks++
		}
	}

	if len(anomalies) > 0 {
		s.c.AnomalousLines++
	}
	for _, a := range anomalies {
		switch a.Type {
		case AnomalyOutOfRange:
			s.c.OutOfRange++
		case AnomalyClockDrift:
			s.c.ClockDrift++
		}
	}
}

// Snapshot returns a copy of the counters with rates calculated
func (s *Statistics) Snapshot() Counters {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.c
	c.calculateRates(time.Now())
	return c
}

// Reset clears all counters and restarts the rate window
func (s *Statistics) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	s.c = Counters{StartTime: now, LastUpdateTime: now}
}

// String returns a formatted statistics summary
func (s *Statistics) String() string {
	return s.Snapshot().String()
}

func (c *Counters) calculateRates(now time.Time) {
	elapsed := now.Sub(c.StartTime).Seconds()
	if elapsed > 0 {
		c.LineRate = float64(c.TotalLines) / elapsed
		c.ErrorRate = float64(c.DecodeErrors+c.AnomalousLines) / elapsed
	}
}

// String returns a formatted statistics summary
func (c Counters) String() string {
	var validPercent, decodePercent, anomalousPercent float64
	if c.TotalLines > 0 {
		validPercent = float64(c.ValidMessages) * 100.0 / float64(c.TotalLines)
		decodePercent = float64(c.DecodeErrors) * 100.0 / float64(c.TotalLines)
		anomalousPercent = float64(c.AnomalousLines) * 100.0 / float64(c.TotalLines)
	}

	elapsed := c.LastUpdateTime.Sub(c.StartTime)

	result := fmt.Sprintf("=== Statistics (%.0f seconds) ===\n", elapsed.Seconds())
	result += fmt.Sprintf("Total Lines:     %8d\n", c.TotalLines)
	result += fmt.Sprintf("Valid Messages:  %8d (%.1f%%)\n", c.ValidMessages, validPercent)
	result += fmt.Sprintf("  RSTATE:           %5d\n", c.RelayReports)
	result += fmt.Sprintf("  SSTATE:           %5d\n", c.SensorReports)
	result += fmt.Sprintf("  TIME:             %5d\n", c.TimeReports)
	if c.PingAcks > 0 {
		result += fmt.Sprintf("  PING_OK:          %5d\n", c.PingAcks)
	}

	if c.DecodeErrors > 0 {
		result += fmt.Sprintf("Decode Errors:   %8d (%.1f%%)\n", c.DecodeErrors, decodePercent)
		if c.ArityErrors > 0 {
			result += fmt.Sprintf("  Arity Mismatch:   %5d\n", c.ArityErrors)
		}
	}
	if c.AnomalousLines > 0 {
		result += fmt.Sprintf("Anomalous Lines: %8d (%.1f%%)\n", c.AnomalousLines, anomalousPercent)
		if c.OutOfRange > 0 {
			result += fmt.Sprintf("  Out of Range:     %5d\n", c.OutOfRange)
		}
		if c.ClockDrift > 0 {
			result += fmt.Sprintf("  Clock Drift:      %5d\n", c.ClockDrift)
		}
	}

	result += fmt.Sprintf("Line Rate:       %8.1f lines/sec\n", c.LineRate)
	result += fmt.Sprintf("Error Rate:      %8.1f errors/sec\n", c.ErrorRate)
	result += "================================\n"

	return result
}
