// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package export

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Thermoquad/hydrostat/internal/schedule"
	"github.com/Thermoquad/hydrostat/pkg/hydrolink"
	"github.com/Thermoquad/hydrostat/pkg/relay"
	"github.com/Thermoquad/hydrostat/pkg/sensor"
	"github.com/Thermoquad/hydrostat/pkg/session"
)

// ============================================================
// Test Helpers
// ============================================================

type fakeSession struct {
	status session.Status
	clock  session.ClockInfo
	stats  hydrolink.Counters
}

func (f *fakeSession) Status() session.Status    { return f.status }
func (f *fakeSession) ConnectionInfo() string    { return "Serial: /dev/ttyACM0 @ 9600 baud" }
func (f *fakeSession) Clock() session.ClockInfo  { return f.clock }
func (f *fakeSession) Stats() hydrolink.Counters { return f.stats }

type recordingSink struct {
	name string
	err  error

	mu       sync.Mutex
	received []Status
	closed   bool
}

func (r *recordingSink) Name() string { return r.name }

func (r *recordingSink) Export(_ context.Context, st Status) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.received = append(r.received, st)
	return r.err
}

func (r *recordingSink) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

func (r *recordingSink) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.received)
}

// blockingSink holds each export until release is closed and notes any
// export that arrives after Close
type blockingSink struct {
	started chan struct{}
	release chan struct{}

	mu          sync.Mutex
	exports     int
	closed      bool
	afterClose  int
	startedOnce sync.Once
}

func newBlockingSink() *blockingSink {
	return &blockingSink{started: make(chan struct{}), release: make(chan struct{})}
}

func (b *blockingSink) Name() string { return "blocking" }

func (b *blockingSink) Export(ctx context.Context, _ Status) error {
	b.startedOnce.Do(func() { close(b.started) })
	select {
	case <-b.release:
	case <-ctx.Done():
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.exports++
	if b.closed {
		b.afterClose++
	}
	return nil
}

func (b *blockingSink) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// testSources wires a real registry and cache with LT on and one sensor report
func testSources(t *testing.T) Sources {
	t.Helper()

	reg, err := relay.NewRegistry(relay.DefaultDevices, nil)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	if err := reg.Set("lights_top", true); err != nil {
		t.Fatalf("Set: %v", err)
	}

	cache := sensor.NewCache(hydrolink.SchemaV6)
	if err := cache.ApplyReport(hydrolink.SensorReport{Values: []float64{24, 55, 21.5, 20, 1, 0}}); err != nil {
		t.Fatalf("ApplyReport: %v", err)
	}

	table, err := schedule.Parse(strings.NewReader("LT 06:00 16h Lights on\n"))
	if err != nil {
		t.Fatalf("schedule.Parse: %v", err)
	}

	return Sources{
		Relays:  reg,
		Sensors: cache,
		Session: &fakeSession{
			status: session.Connected,
			clock: session.ClockInfo{
				Device:     hydrolink.TimeReport{Hour: 12, Minute: 0, Second: 42},
				Drift:      42 * time.Second,
				ReceivedAt: time.Now(),
			},
			stats: hydrolink.Counters{TotalLines: 10, ValidMessages: 9, DecodeErrors: 1},
		},
		Schedule: table,
	}
}

// ============================================================
// Status Tests
// ============================================================

func TestBuild(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.Local)
	st := Build(testSources(t), now)

	if !st.Connected {
		t.Error("expected connected")
	}
	if !st.Timestamp.Equal(now) {
		t.Errorf("timestamp = %v, want %v", st.Timestamp, now)
	}
	if len(st.Relays) != len(relay.DefaultDevices) {
		t.Fatalf("expected %d relays, got %d", len(relay.DefaultDevices), len(st.Relays))
	}

	lt, ok := st.Relay("lights_top")
	if !ok {
		t.Fatal("lights_top missing")
	}
	if !lt.On || lt.Code != "LT" || lt.Name != "Lights (Top)" {
		t.Errorf("unexpected LT row %+v", lt)
	}
	if !lt.ScheduledOn || lt.Schedule != "06:00 +16h0m0s Lights on" {
		t.Errorf("schedule annotation wrong: %+v", lt)
	}
	if pb, _ := st.Relay("pump_bottom"); pb.On || pb.Schedule != "" || pb.ScheduledOn {
		t.Errorf("unexpected PB row %+v", pb)
	}

	if len(st.Sensors) != hydrolink.SchemaV6.Arity() {
		t.Fatalf("expected %d sensors, got %d", hydrolink.SchemaV6.Arity(), len(st.Sensors))
	}
	wt, ok := st.Sensor("water_temp_top")
	if !ok || wt.Value != 21.5 || wt.Kind != "float" || wt.Display != "21.5 °C" {
		t.Errorf("unexpected water_temp_top %+v", wt)
	}
	if st.Sensors[0].Name != "air_temp_indoor" {
		t.Errorf("sensors not in schema order: first is %s", st.Sensors[0].Name)
	}

	if st.Clock == nil || st.Clock.Device != "12:00:42" || st.Clock.DriftSeconds != 42 {
		t.Errorf("unexpected clock %+v", st.Clock)
	}
	if st.Link.TotalLines != 10 || st.Link.DecodeErrors != 1 {
		t.Errorf("unexpected link stats %+v", st.Link)
	}
}

func TestBuild_EmptySources(t *testing.T) {
	st := Build(Sources{}, time.Now())

	if st.Connected {
		t.Error("expected disconnected without a session")
	}
	if st.Relays == nil || st.Sensors == nil {
		t.Error("relays and sensors should be empty slices, not nil")
	}
	if st.Clock != nil {
		t.Error("clock should be absent")
	}

	data, err := json.Marshal(st)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if !strings.Contains(string(data), `"relays":[]`) {
		t.Errorf("expected empty relay array in %s", data)
	}
}

// ============================================================
// Runner Tests
// ============================================================

func TestRunner_ExportOnce(t *testing.T) {
	good := &recordingSink{name: "good"}
	bad := &recordingSink{name: "bad", err: errors.New("broker down")}
	r := NewRunner(testSources(t), time.Minute, quietLogger(), bad, good)

	err := r.ExportOnce(context.Background())
	if err == nil {
		t.Fatal("expected the failing sink's error")
	}
	if good.count() != 1 {
		t.Errorf("a failing sink must not stop the others: good got %d", good.count())
	}

	r.ExportOnce(context.Background())
	if got := r.Failures()["bad"]; got != 2 {
		t.Errorf("expected 2 failures for bad, got %d", got)
	}
	if _, ok := r.Failures()["good"]; ok {
		t.Error("good sink should have no failures")
	}

	if err := r.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !good.closed || !bad.closed {
		t.Error("Close should close every sink")
	}
}

func TestRunner_Run(t *testing.T) {
	sink := &recordingSink{name: "rec"}
	r := NewRunner(testSources(t), 10*time.Millisecond, quietLogger(), sink)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Run(ctx)
		close(done)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for sink.count() < 3 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
	if sink.count() < 3 {
		t.Errorf("expected at least 3 exports, got %d", sink.count())
	}
}

func TestRunner_CloseWaitsForExport(t *testing.T) {
	sink := newBlockingSink()
	r := NewRunner(testSources(t), time.Minute, quietLogger(), sink)

	ctx, cancel := context.WithCancel(context.Background())
	runDone := make(chan struct{})
	go func() {
		r.Run(ctx)
		close(runDone)
	}()

	select {
	case <-sink.started:
	case <-time.After(time.Second):
		t.Fatal("Run did not start an export")
	}

	closeDone := make(chan struct{})
	go func() {
		r.Close()
		close(closeDone)
	}()

	select {
	case <-closeDone:
		t.Fatal("Close returned while an export was in progress")
	case <-time.After(30 * time.Millisecond):
	}

	close(sink.release)
	cancel()

	for name, ch := range map[string]chan struct{}{"Close": closeDone, "Run": runDone} {
		select {
		case <-ch:
		case <-time.After(time.Second):
			t.Fatalf("%s did not return", name)
		}
	}

	if err := r.ExportOnce(context.Background()); !errors.Is(err, ErrRunnerClosed) {
		t.Errorf("expected ErrRunnerClosed, got %v", err)
	}
	if err := r.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}

	sink.mu.Lock()
	defer sink.mu.Unlock()
	if sink.afterClose != 0 {
		t.Errorf("%d exports reached the sink after Close", sink.afterClose)
	}
	if sink.exports != 1 {
		t.Errorf("expected exactly 1 export, got %d", sink.exports)
	}
}

func TestRunner_NoSinks(t *testing.T) {
	r := NewRunner(Sources{}, time.Millisecond, nil)

	done := make(chan struct{})
	go func() {
		r.Run(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run without sinks should return immediately")
	}
}

// ============================================================
// File Sink Tests
// ============================================================

func TestFileSink(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "status.json")

	sink, err := NewFileSink(path)
	if err != nil {
		t.Fatalf("NewFileSink: %v", err)
	}

	st := Build(testSources(t), time.Now())
	for i := 0; i < 2; i++ {
		if err := sink.Export(context.Background(), st); err != nil {
			t.Fatalf("Export: %v", err)
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	var got Status
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("status file is not valid JSON: %v", err)
	}
	if len(got.Relays) != len(st.Relays) || !got.Connected {
		t.Errorf("round trip lost data: %+v", got)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("expected only status.json, found %d entries", len(entries))
	}
}

func TestFileSink_Disabled(t *testing.T) {
	if _, err := NewFileSink(""); !errors.Is(err, ErrDisabled) {
		t.Errorf("expected ErrDisabled, got %v", err)
	}
}

func TestFileSink_CancelledContext(t *testing.T) {
	path := filepath.Join(t.TempDir(), "status.json")
	sink, _ := NewFileSink(path)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := sink.Export(ctx, Status{}); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("nothing should be written after cancel")
	}
}
