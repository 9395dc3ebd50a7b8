// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package session

import (
	"strings"
	"time"

	"github.com/Thermoquad/hydrostat/pkg/hydrolink"
)

// SendCommand switches the relay with the given wire code. It fails with
// ErrNotConnected when no link is live; nothing is queued.
func (s *Session) SendCommand(code string, on bool) error {
	return s.write(hydrolink.FormatCommand(code, on))
}

// SyncTime sets the device clock to the host's local time
func (s *Session) SyncTime() error {
	now := s.now()
	if err := s.write(hydrolink.FormatSetTimeOf(now)); err != nil {
		return err
	}
	s.mu.Lock()
	s.clock.LastSync = now
	s.mu.Unlock()
	return nil
}

// ResetSchedule asks the firmware to re-evaluate its schedule. When state
// requests are enabled, GET_STATE follows after a short delay.
func (s *Session) ResetSchedule() error {
	if err := s.write(hydrolink.FormatResetSchedule()); err != nil {
		return err
	}
	if s.cfg.RequestStateOnConnect {
		time.AfterFunc(s.cfg.ResetStateDelay, func() {
			if err := s.RequestState(); err != nil {
				s.logger.Debug("post-reset state request failed", "error", err)
			}
		})
	}
	return nil
}

// RequestState asks the firmware for a fresh RSTATE
func (s *Session) RequestState() error {
	return s.write(hydrolink.FormatGetState())
}

func (s *Session) write(line string) error {
	s.mu.RLock()
	link := s.link
	s.mu.RUnlock()

	if link == nil {
		return ErrNotConnected
	}

	if err := link.WriteLine(line); err != nil {
		s.logger.Warn("write failed", "line", strings.TrimSpace(line), "error", err)
		s.markDisconnected(link)
		return err
	}

	s.logger.Debug("sent", "line", strings.TrimSpace(line))
	return nil
}
