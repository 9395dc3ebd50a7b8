// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/Thermoquad/hydrostat/internal/schedule"
	"github.com/Thermoquad/hydrostat/pkg/hydrolink"
	"github.com/Thermoquad/hydrostat/pkg/relay"
	"github.com/Thermoquad/hydrostat/pkg/sensor"
	"github.com/Thermoquad/hydrostat/pkg/session"
)

//////////////////////////////////////////////////////////////
// Fakes
//////////////////////////////////////////////////////////////

type fakeActions struct {
	mu      sync.Mutex
	calls   []string
	failErr error
}

func (f *fakeActions) record(call string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
	return f.failErr
}

func (f *fakeActions) Toggle(key string) (bool, error) {
	return true, f.record("toggle " + key)
}
func (f *fakeActions) ResetSchedule() error { return f.record("reset") }
func (f *fakeActions) SyncTime() error      { return f.record("time") }
func (f *fakeActions) RequestState() error  { return f.record("state") }
func (f *fakeActions) ResendAll() error     { return f.record("resend") }

var testNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.Local)

func newTestModel(t *testing.T, actions controlActions) controlModel {
	t.Helper()
	table, err := schedule.Parse(strings.NewReader("LT 06:00 16h Lights on\n"))
	if err != nil {
		t.Fatalf("schedule: %v", err)
	}
	m := initialControlModel(controlSetup{
		actions:        actions,
		devices:        relay.DefaultDevices[:2],
		relayState:     map[string]bool{"lights_top": true},
		schema:         hydrolink.SchemaV6,
		schedule:       table,
		reportInterval: 5 * time.Second,
	})
	m.now = func() time.Time { return testNow }
	m.updateRelayList()
	return m
}

func keyMsg(s string) tea.KeyMsg {
	switch s {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	default:
		return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
	}
}

func update(t *testing.T, m controlModel, msg tea.Msg) (controlModel, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	cm, ok := next.(controlModel)
	if !ok {
		t.Fatalf("Update returned %T", next)
	}
	return cm, cmd
}

//////////////////////////////////////////////////////////////
// Relay list
//////////////////////////////////////////////////////////////

func TestControlModel_RelayList(t *testing.T) {
	m := newTestModel(t, &fakeActions{})

	items := m.relayList.Items()
	if len(items) != 2 {
		t.Fatalf("expected 2 relay rows, got %d", len(items))
	}
	top := items[0].(relayItem)
	if !top.on {
		t.Error("lights_top should start ON")
	}
	if !strings.Contains(top.Description(), "(scheduled on)") {
		t.Errorf("noon is inside the lights window, got %q", top.Description())
	}
	bottom := items[1].(relayItem)
	if bottom.on || bottom.schedule != "-" {
		t.Errorf("lights_bottom: got on=%v schedule=%q", bottom.on, bottom.schedule)
	}

	m, _ = update(t, m, relayMsg(relay.Change{Device: relay.DefaultDevices[1], On: true, Source: relay.SourceRemote}))
	if !m.relayList.Items()[1].(relayItem).on {
		t.Error("relay change not reflected in the list")
	}
	if len(m.eventLog) != 1 || !strings.Contains(m.eventLog[0].message, "remote") {
		t.Errorf("expected one event naming the source, got %+v", m.eventLog)
	}
}

//////////////////////////////////////////////////////////////
// Actions
//////////////////////////////////////////////////////////////

func TestControlModel_ActionsRequireConnection(t *testing.T) {
	actions := &fakeActions{}
	m := newTestModel(t, actions)

	m, cmd := update(t, m, keyMsg("r"))
	if cmd != nil {
		t.Fatal("expected no command while disconnected")
	}
	if len(m.eventLog) != 1 || !m.eventLog[0].isError {
		t.Fatalf("expected an error event, got %+v", m.eventLog)
	}
	if len(actions.calls) != 0 {
		t.Errorf("no action should run, got %v", actions.calls)
	}
}

func TestControlModel_Actions(t *testing.T) {
	tests := []struct {
		key  string
		want string
	}{
		{"enter", "toggle lights_top"},
		{" ", "toggle lights_top"},
		{"r", "reset"},
		{"t", "time"},
		{"g", "state"},
		{"s", "resend"},
	}

	for _, tt := range tests {
		t.Run(tt.want+"/"+tt.key, func(t *testing.T) {
			actions := &fakeActions{}
			m := newTestModel(t, actions)
			m, _ = update(t, m, statusMsg{status: session.Connected, info: "Serial: test"})

			m, cmd := update(t, m, keyMsg(tt.key))
			if cmd == nil {
				t.Fatal("expected a command")
			}
			result, ok := cmd().(actionResultMsg)
			if !ok {
				t.Fatal("expected actionResultMsg")
			}
			if result.err != nil {
				t.Errorf("unexpected error: %v", result.err)
			}
			if len(actions.calls) != 1 || actions.calls[0] != tt.want {
				t.Errorf("calls = %v, want [%s]", actions.calls, tt.want)
			}

			m, _ = update(t, m, result)
			last := m.eventLog[len(m.eventLog)-1]
			if last.isError {
				t.Errorf("unexpected error entry %q", last.message)
			}
		})
	}
}

func TestControlModel_ActionFailure(t *testing.T) {
	actions := &fakeActions{failErr: errors.New("write failed")}
	m := newTestModel(t, actions)
	m, _ = update(t, m, statusMsg{status: session.Connected})

	_, cmd := update(t, m, keyMsg("t"))
	m, _ = update(t, m, cmd())

	last := m.eventLog[len(m.eventLog)-1]
	if !last.isError || !strings.Contains(last.message, "write failed") {
		t.Errorf("expected failure event, got %+v", last)
	}
}

func TestControlModel_Quit(t *testing.T) {
	m := newTestModel(t, &fakeActions{})
	m, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyCtrlC})
	if !m.quitting || cmd == nil {
		t.Fatal("ctrl+c should quit")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("expected tea.QuitMsg")
	}
}

//////////////////////////////////////////////////////////////
// Sensors
//////////////////////////////////////////////////////////////

func TestControlModel_SensorsStale(t *testing.T) {
	field := hydrolink.SchemaV6.Field(0)

	tests := []struct {
		name      string
		status    session.Status
		updatedAt time.Time
		want      bool
	}{
		{"no data", session.Connected, time.Time{}, true},
		{"fresh", session.Connected, testNow.Add(-10 * time.Second), false},
		{"three intervals", session.Connected, testNow.Add(-15 * time.Second), false},
		{"too old", session.Connected, testNow.Add(-16 * time.Second), true},
		{"disconnected", session.Disconnected, testNow.Add(-time.Second), true},
		{"connecting", session.Connecting, testNow.Add(-time.Second), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newTestModel(t, &fakeActions{})
			m, _ = update(t, m, statusMsg{status: tt.status})
			if !tt.updatedAt.IsZero() {
				m, _ = update(t, m, sensorsMsg{field.Name: sensor.Reading{
					Name:      field.Name,
					Value:     24,
					Kind:      field.Kind,
					Unit:      field.Unit,
					UpdatedAt: tt.updatedAt,
				}})
			}
			if got := m.sensorsStale(testNow); got != tt.want {
				t.Errorf("sensorsStale() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestControlModel_StatusEvents(t *testing.T) {
	m := newTestModel(t, &fakeActions{})

	m, _ = update(t, m, statusMsg{status: session.Connecting})
	m, _ = update(t, m, statusMsg{status: session.Connected, info: "WebSocket: ws://slate/serial"})
	m, _ = update(t, m, statusMsg{status: session.Connected})
	m, _ = update(t, m, statusMsg{status: session.Disconnected})

	if len(m.eventLog) != 3 {
		t.Fatalf("expected 3 events (repeat status ignored), got %d", len(m.eventLog))
	}
	if !strings.Contains(m.eventLog[1].message, "ws://slate/serial") {
		t.Errorf("connected event should name the link, got %q", m.eventLog[1].message)
	}
	if !m.eventLog[2].isError {
		t.Error("connection loss should be an error event")
	}
	if !strings.Contains(m.View(), "DISCONNECTED") {
		t.Error("view should show the disconnected indicator")
	}
}

//////////////////////////////////////////////////////////////
// Event log
//////////////////////////////////////////////////////////////

func TestControlModel_EventLogCap(t *testing.T) {
	m := newTestModel(t, &fakeActions{})
	for i := 0; i < maxLogEntries+25; i++ {
		m.addLogEntry("event", false)
	}
	if len(m.eventLog) != maxLogEntries {
		t.Errorf("event log length = %d, want %d", len(m.eventLog), maxLogEntries)
	}
}

//////////////////////////////////////////////////////////////
// Command helpers
//////////////////////////////////////////////////////////////

func TestParseRelayAction(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"on", "on", false},
		{"OFF", "off", false},
		{"Toggle", "toggle", false},
		{"flip", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseRelayAction(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestParseWaitType(t *testing.T) {
	tests := []struct {
		in      string
		want    hydrolink.MessageType
		wantErr bool
	}{
		{"", hydrolink.MsgUnknown, false},
		{"relay", hydrolink.MsgRelayState, false},
		{"sstate", hydrolink.MsgSensorState, false},
		{"time", hydrolink.MsgTime, false},
		{"ping", hydrolink.MsgUnknown, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseWaitType(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestScheduleNote(t *testing.T) {
	table, err := schedule.Parse(strings.NewReader("PT 08:00 15 Flood\n"))
	if err != nil {
		t.Fatal(err)
	}

	if got := scheduleNote(nil, "PT", testNow); got != "-" {
		t.Errorf("nil table: got %q", got)
	}
	if got := scheduleNote(table, "LT", testNow); got != "-" {
		t.Errorf("unscheduled code: got %q", got)
	}

	during := time.Date(2025, 6, 1, 8, 5, 0, 0, time.Local)
	if got := scheduleNote(table, "PT", during); !strings.HasSuffix(got, "(scheduled on)") {
		t.Errorf("inside window: got %q", got)
	}
	if got := scheduleNote(table, "PT", testNow); strings.Contains(got, "scheduled on") {
		t.Errorf("outside window: got %q", got)
	}
}
