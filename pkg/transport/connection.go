// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package transport moves newline-delimited lines between the host and the
// controller over a serial port or a WebSocket serial bridge. It discovers
// candidate ports, opens them, and reconnects with capped exponential backoff.
package transport

import (
	"bufio"
	"context"
	"crypto/tls"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"go.bug.st/serial"
	"golang.org/x/term"

	"github.com/Thermoquad/hydrostat/pkg/hydrolink"
)

// PasswordEnv is consulted by GetPassword before prompting
const PasswordEnv = "HYDROSTAT_PASSWORD"

// Connection provides a common interface for reading/writing bytes from serial or WebSocket
type Connection interface {
	io.Reader
	io.Writer
	io.Closer
}

// SerialConnection wraps a serial port
type SerialConnection struct {
	port serial.Port
}

func (s *SerialConnection) Read(p []byte) (int, error) {
	return s.port.Read(p)
}

func (s *SerialConnection) Write(p []byte) (int, error) {
	return s.port.Write(p)
}

func (s *SerialConnection) Close() error {
	return s.port.Close()
}

// WebSocketConnection wraps a WebSocket connection for byte-level reading.
// Text and binary frames are both treated as a slice of the line stream.
type WebSocketConnection struct {
	conn      *websocket.Conn
	buf       []byte
	bufOffset int
	closed    bool
}

func (w *WebSocketConnection) Read(p []byte) (int, error) {
	if w.closed {
		return 0, ErrLinkClosed
	}

	if w.bufOffset < len(w.buf) {
		n := copy(p, w.buf[w.bufOffset:])
		w.bufOffset += n
		return n, nil
	}

	for {
		messageType, data, err := w.conn.ReadMessage()
		if err != nil {
			w.closed = true
			return 0, err
		}

		if messageType != websocket.TextMessage && messageType != websocket.BinaryMessage {
			continue
		}

		w.buf = data
		w.bufOffset = 0
		n := copy(p, w.buf)
		w.bufOffset = n
		return n, nil
	}
}

func (w *WebSocketConnection) Write(p []byte) (int, error) {
	err := w.conn.WriteMessage(websocket.TextMessage, p)
	if err != nil {
		return 0, err
	}
	return len(p), nil
}

func (w *WebSocketConnection) Close() error {
	return w.conn.Close()
}

// SerialConfig controls how a serial port is opened
type SerialConfig struct {
	BaudRate    int
	ReadTimeout time.Duration
	SettleDelay time.Duration
}

// DefaultSerialConfig returns 9600 baud, 100ms read timeout and a 2s settle delay
func DefaultSerialConfig() SerialConfig {
	return SerialConfig{
		BaudRate:    hydrolink.DefaultBaudRate,
		ReadTimeout: 100 * time.Millisecond,
		SettleDelay: 2 * time.Second,
	}
}

// OpenSerial opens a serial port (8N1), waits for the board to come out of
// reset, and discards anything it printed meanwhile.
func OpenSerial(ctx context.Context, path string, cfg SerialConfig) (*Link, error) {
	if cfg.BaudRate <= 0 {
		cfg.BaudRate = hydrolink.DefaultBaudRate
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 100 * time.Millisecond
	}

	mode := &serial.Mode{
		BaudRate: cfg.BaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	port, err := serial.Open(path, mode)
	if err != nil {
		return nil, &ConnectionError{Op: "open", Target: path, Err: err}
	}

	if err := port.SetReadTimeout(cfg.ReadTimeout); err != nil {
		port.Close()
		return nil, &ConnectionError{Op: "configure", Target: path, Err: err}
	}

	// Opening the port toggles DTR, which resets most Arduino boards
	if err := SleepContext(ctx, cfg.SettleDelay); err != nil {
		port.Close()
		return nil, &ConnectionError{Op: "settle", Target: path, Err: err}
	}

	if err := port.ResetInputBuffer(); err != nil {
		port.Close()
		return nil, &ConnectionError{Op: "flush", Target: path, Err: err}
	}

	return NewLink(&SerialConnection{port: port}, fmt.Sprintf("Serial: %s @ %d baud", path, cfg.BaudRate)), nil
}

// WebSocketConfig describes a network serial bridge endpoint
type WebSocketConfig struct {
	URL           string
	Username      string
	Password      string
	SkipSSLVerify bool
}

// OpenWebSocket opens a WebSocket connection with optional HTTP Basic auth
func OpenWebSocket(ctx context.Context, cfg WebSocketConfig) (*Link, error) {
	u, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, &ConnectionError{Op: "parse", Target: cfg.URL, Err: err}
	}

	switch u.Scheme {
	case "ws", "wss":
	default:
		return nil, &ConnectionError{
			Op:     "dial",
			Target: cfg.URL,
			Err:    fmt.Errorf("unsupported URL scheme: %s (use ws:// or wss://)", u.Scheme),
		}
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}
	if u.Scheme == "wss" {
		dialer.TLSClientConfig = &tls.Config{
			InsecureSkipVerify: cfg.SkipSSLVerify,
		}
	}

	headers := http.Header{}
	if cfg.Username != "" && cfg.Password != "" {
		credentials := base64.StdEncoding.EncodeToString([]byte(cfg.Username + ":" + cfg.Password))
		headers.Set("Authorization", "Basic "+credentials)
	}

	dialCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	conn, resp, err := dialer.DialContext(dialCtx, cfg.URL, headers)
	if err != nil {
		if resp != nil {
			err = fmt.Errorf("HTTP %d: %w", resp.StatusCode, err)
		}
		return nil, &ConnectionError{Op: "dial", Target: cfg.URL, Err: err}
	}

	return NewLink(&WebSocketConnection{conn: conn}, fmt.Sprintf("WebSocket: %s", cfg.URL)), nil
}

// GetPassword retrieves password from environment or prompts user
func GetPassword() (string, error) {
	if pw := os.Getenv(PasswordEnv); pw != "" {
		return pw, nil
	}

	fmt.Fprint(os.Stderr, "Password: ")

	passwordBytes, err := term.ReadPassword(int(syscall.Stdin))
	if err != nil {
		// Not a terminal
		reader := bufio.NewReader(os.Stdin)
		password, err := reader.ReadString('\n')
		if err != nil {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		fmt.Fprintln(os.Stderr)
		return strings.TrimSpace(password), nil
	}

	fmt.Fprintln(os.Stderr)
	return string(passwordBytes), nil
}

// SleepContext waits for d or until ctx is done, whichever comes first
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
