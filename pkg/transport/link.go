// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package transport

import (
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Thermoquad/hydrostat/pkg/hydrolink"
)

const (
	readBufferSize = 256
	lineQueueSize  = 64
)

// Link turns a byte Connection into a stream of lines. A single pump
// goroutine owns Read; liveness acknowledgements are consumed by the pump
// and never surface through ReadLine.
type Link struct {
	conn Connection
	name string

	lines chan string
	acks  chan struct{}
	dead  chan struct{}
	done  chan struct{}

	closeOnce sync.Once
	writeMu   sync.Mutex
	broken    atomic.Bool

	errMu sync.Mutex
	err   error

	overlong atomic.Uint64
	dropped  atomic.Uint64
}

// NewLink wraps conn and starts its read pump. name is used in errors and logs.
func NewLink(conn Connection, name string) *Link {
	l := &Link{
		conn:  conn,
		name:  name,
		lines: make(chan string, lineQueueSize),
		acks:  make(chan struct{}, 1),
		dead:  make(chan struct{}),
		done:  make(chan struct{}),
	}
	go l.pump()
	return l
}

// Name describes the underlying connection, e.g. "Serial: /dev/ttyACM0 @ 9600 baud"
func (l *Link) Name() string {
	return l.name
}

// Discarded returns how many overlong lines were dropped
func (l *Link) Discarded() uint64 {
	return l.overlong.Load()
}

// Dropped returns how many unread lines were discarded because the queue
// was full
func (l *Link) Dropped() uint64 {
	return l.dropped.Load()
}

// Dead is closed once the link can no longer read
func (l *Link) Dead() <-chan struct{} {
	return l.dead
}

// Err returns why the link died, or nil while it is alive
func (l *Link) Err() error {
	l.errMu.Lock()
	defer l.errMu.Unlock()
	return l.err
}

func (l *Link) pump() {
	buf := make([]byte, readBufferSize)
	pending := make([]byte, 0, readBufferSize)
	overflow := false

	for {
		n, err := l.conn.Read(buf)
		for _, b := range buf[:n] {
			if b == '\n' {
				if !overflow {
					l.deliver(pending)
				}
				pending = pending[:0]
				overflow = false
				continue
			}
			if overflow {
				continue
			}
			if len(pending) >= hydrolink.MaxLineLength {
				// Drop until the next terminator
				overflow = true
				pending = pending[:0]
				l.overlong.Add(1)
				continue
			}
			pending = append(pending, b)
		}

		select {
		case <-l.done:
			l.fail(ErrLinkClosed)
			return
		default:
		}

		if err != nil {
			l.fail(err)
			return
		}
	}
}

func (l *Link) deliver(raw []byte) {
	line := strings.TrimRight(strings.ToValidUTF8(string(raw), "�"), " \t\r\n")

	if strings.TrimSpace(line) == hydrolink.PingAck {
		select {
		case l.acks <- struct{}{}:
		default:
		}
		return
	}

	// A full queue drops its oldest line so the pump keeps reading acks
	for {
		select {
		case l.lines <- line:
			return
		case <-l.done:
			return
		default:
		}
		select {
		case <-l.lines:
			l.dropped.Add(1)
		default:
		}
	}
}

func (l *Link) fail(err error) {
	l.errMu.Lock()
	if l.err == nil {
		select {
		case <-l.done:
			l.err = ErrLinkClosed
		default:
			l.err = &ConnectionError{Op: "read", Target: l.name, Err: err}
		}
	}
	l.errMu.Unlock()
	close(l.dead)
}

// ReadLine returns the next line, waiting at most timeout. ok is false with
// a nil error when nothing complete arrived in time. Once the link is dead,
// queued lines are still returned before the error.
func (l *Link) ReadLine(timeout time.Duration) (string, bool, error) {
	select {
	case line := <-l.lines:
		return line, true, nil
	default:
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case line := <-l.lines:
		return line, true, nil
	case <-l.dead:
		select {
		case line := <-l.lines:
			return line, true, nil
		default:
		}
		return "", false, l.Err()
	case <-timer.C:
		return "", false, nil
	}
}

// WriteLine writes s verbatim. After the first failure every write fails
// immediately and the link is closed.
func (l *Link) WriteLine(s string) error {
	l.writeMu.Lock()
	defer l.writeMu.Unlock()

	if l.broken.Load() {
		return &WriteError{Target: l.name, Err: ErrLinkClosed}
	}

	if _, err := l.conn.Write([]byte(s)); err != nil {
		l.broken.Store(true)
		l.Close()
		return &WriteError{Target: l.name, Err: err}
	}
	return nil
}

// Probe sends PING and waits up to timeout for PING_OK
func (l *Link) Probe(timeout time.Duration) bool {
	// A stale ack from an earlier probe must not satisfy this one
	select {
	case <-l.acks:
	default:
	}

	if err := l.WriteLine(hydrolink.FormatPing()); err != nil {
		return false
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-l.acks:
		return true
	case <-l.dead:
		return false
	case <-timer.C:
		return false
	}
}

// Close releases the connection. Safe to call more than once.
func (l *Link) Close() error {
	var err error
	l.closeOnce.Do(func() {
		l.broken.Store(true)
		close(l.done)
		err = l.conn.Close()
	})
	return err
}
