// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package transport

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestBackoff_Delay(t *testing.T) {
	tests := []struct {
		name    string
		backoff Backoff
		attempt int
		want    time.Duration
	}{
		{"first", DefaultBackoff, 0, time.Second},
		{"second", DefaultBackoff, 1, 2 * time.Second},
		{"fifth", DefaultBackoff, 4, 16 * time.Second},
		{"capped", DefaultBackoff, 5, 30 * time.Second},
		{"far past cap", DefaultBackoff, 100, 30 * time.Second},
		{"constant", Backoff{Initial: 5 * time.Second, Multiplier: 1}, 7, 5 * time.Second},
		{"initial above max", Backoff{Initial: time.Minute, Max: 30 * time.Second}, 0, 30 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.backoff.Delay(tt.attempt); got != tt.want {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestConnectWithRetry_EmptyDiscoveriesThenSuccess(t *testing.T) {
	const emptyRounds = 4

	discovers := 0
	var sleeps []time.Duration
	var opened []string

	d := &Dialer{
		Discover: func() []string {
			discovers++
			if discovers <= emptyRounds {
				return nil
			}
			return []string{"/dev/ttyACM0"}
		},
		Open: func(ctx context.Context, target string) (*Link, error) {
			opened = append(opened, target)
			return NewLink(newFakeConn(), target), nil
		},
		Backoff: DefaultBackoff,
		Sleep: func(ctx context.Context, d time.Duration) error {
			sleeps = append(sleeps, d)
			return nil
		},
	}

	link, err := d.ConnectWithRetry(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer link.Close()

	if discovers != emptyRounds+1 {
		t.Errorf("expected %d discover calls, got %d", emptyRounds+1, discovers)
	}
	if len(sleeps) != emptyRounds {
		t.Errorf("expected %d sleeps, got %d", emptyRounds, len(sleeps))
	}
	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second}
	for i := range want {
		if i < len(sleeps) && sleeps[i] != want[i] {
			t.Errorf("sleep %d: expected %v, got %v", i, want[i], sleeps[i])
		}
	}
	if len(opened) != 1 || opened[0] != "/dev/ttyACM0" {
		t.Errorf("unexpected opens %v", opened)
	}
}

func TestConnectWithRetry_TriesEveryCandidate(t *testing.T) {
	var opened []string
	d := &Dialer{
		Discover: func() []string { return []string{"/dev/ttyACM0", "/dev/ttyUSB0"} },
		Open: func(ctx context.Context, target string) (*Link, error) {
			opened = append(opened, target)
			if target == "/dev/ttyACM0" {
				return nil, &ConnectionError{Op: "open", Target: target, Err: errors.New("busy")}
			}
			return NewLink(newFakeConn(), target), nil
		},
		Sleep: func(context.Context, time.Duration) error {
			t.Error("no sleep expected when a later candidate opens")
			return nil
		},
	}

	link, err := d.ConnectWithRetry(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer link.Close()

	if link.Name() != "/dev/ttyUSB0" || len(opened) != 2 {
		t.Errorf("expected fallback to second candidate, opened %v", opened)
	}
}

func TestConnectWithRetry_MaxAttempts(t *testing.T) {
	discovers := 0
	sleeps := 0
	d := &Dialer{
		Discover:    func() []string { discovers++; return nil },
		Open:        func(context.Context, string) (*Link, error) { return nil, errors.New("unreachable") },
		MaxAttempts: 3,
		Sleep:       func(context.Context, time.Duration) error { sleeps++; return nil },
	}

	_, err := d.ConnectWithRetry(context.Background())
	if !errors.Is(err, ErrConnection) {
		t.Fatalf("expected ErrConnection, got %v", err)
	}
	if !errors.Is(err, ErrNoDevice) {
		t.Errorf("expected ErrNoDevice cause, got %v", err)
	}
	if discovers != 3 || sleeps != 2 {
		t.Errorf("expected 3 discovers and 2 sleeps, got %d and %d", discovers, sleeps)
	}
}

func TestConnectWithRetry_ContextCancelInterruptsSleep(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	d := &Dialer{
		Discover: func() []string { return nil },
		Open:     func(context.Context, string) (*Link, error) { return nil, errors.New("unreachable") },
		Backoff:  Backoff{Initial: time.Hour, Max: time.Hour},
	}

	done := make(chan error, 1)
	go func() {
		_, err := d.ConnectWithRetry(ctx)
		done <- err
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("ConnectWithRetry did not return after cancel")
	}
}

func TestSleepContext(t *testing.T) {
	if err := SleepContext(context.Background(), time.Millisecond); err != nil {
		t.Errorf("unexpected error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	start := time.Now()
	if err := SleepContext(ctx, time.Hour); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if time.Since(start) > 100*time.Millisecond {
		t.Error("cancelled sleep should return immediately")
	}
}
