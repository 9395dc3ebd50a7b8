// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package export

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"github.com/Thermoquad/hydrostat/internal/config"
)

const (
	historyDirPermissions = 0750
	historyPingTimeout    = 5 * time.Second
	msPerSecond           = 1000
)

const historySchema = `
CREATE TABLE IF NOT EXISTS snapshots (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	taken_at   INTEGER NOT NULL,
	connected  INTEGER NOT NULL,
	sensors    TEXT NOT NULL,
	relays     TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_snapshots_taken_at ON snapshots(taken_at);
`

// Snapshot is one stored history row
type Snapshot struct {
	ID        int64
	TakenAt   time.Time
	Connected bool
	Sensors   map[string]float64
	Relays    map[string]bool
}

// HistorySink appends snapshots to a SQLite database and prunes rows older
// than the retention period
type HistorySink struct {
	db        *sql.DB
	path      string
	retention time.Duration
}

// OpenHistory opens (or creates) the history database without requiring the
// sink to be enabled, so the history command can read it
func OpenHistory(ctx context.Context, cfg config.HistoryConfig) (*HistorySink, error) {
	if dir := filepath.Dir(cfg.Path); dir != "." {
		if err := os.MkdirAll(dir, historyDirPermissions); err != nil {
			return nil, fmt.Errorf("creating history directory: %w", err)
		}
	}

	connStr := fmt.Sprintf("file:%s?_busy_timeout=%d&_journal_mode=WAL",
		cfg.Path,
		cfg.BusyTimeout*msPerSecond,
	)
	db, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("opening history database: %w", err)
	}
	db.SetMaxOpenConns(1)

	pctx, cancel := context.WithTimeout(ctx, historyPingTimeout)
	defer cancel()
	if err := db.PingContext(pctx); err != nil {
		db.Close() //nolint:errcheck
		return nil, fmt.Errorf("verifying history database: %w", err)
	}

	if _, err := db.ExecContext(ctx, historySchema); err != nil {
		db.Close() //nolint:errcheck
		return nil, fmt.Errorf("creating history schema: %w", err)
	}

	return &HistorySink{db: db, path: cfg.Path, retention: cfg.Retention}, nil
}

// NewHistorySink opens the history database when the sink is enabled
func NewHistorySink(ctx context.Context, cfg config.HistoryConfig) (*HistorySink, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}
	return OpenHistory(ctx, cfg)
}

// Name returns "history"
func (h *HistorySink) Name() string {
	return "history"
}

// Export stores st and prunes expired rows
func (h *HistorySink) Export(ctx context.Context, st Status) error {
	sensors := make(map[string]float64, len(st.Sensors))
	for _, s := range st.Sensors {
		sensors[s.Name] = s.Value
	}
	relays := make(map[string]bool, len(st.Relays))
	for _, r := range st.Relays {
		relays[r.Key] = r.On
	}

	sensorJSON, err := json.Marshal(sensors)
	if err != nil {
		return fmt.Errorf("encoding sensors: %w", err)
	}
	relayJSON, err := json.Marshal(relays)
	if err != nil {
		return fmt.Errorf("encoding relays: %w", err)
	}

	_, err = h.db.ExecContext(ctx,
		`INSERT INTO snapshots (taken_at, connected, sensors, relays) VALUES (?, ?, ?, ?)`,
		st.Timestamp.UnixMilli(), st.Connected, string(sensorJSON), string(relayJSON),
	)
	if err != nil {
		return fmt.Errorf("inserting snapshot: %w", err)
	}

	if h.retention > 0 {
		if _, err := h.Prune(ctx, st.Timestamp.Add(-h.retention)); err != nil {
			return err
		}
	}
	return nil
}

// Prune deletes rows taken before cutoff and returns how many went
func (h *HistorySink) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := h.db.ExecContext(ctx, `DELETE FROM snapshots WHERE taken_at < ?`, cutoff.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("pruning history: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("pruning history: %w", err)
	}
	return n, nil
}

// Recent returns up to limit snapshots, newest first
func (h *HistorySink) Recent(ctx context.Context, limit int) ([]Snapshot, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := h.db.QueryContext(ctx,
		`SELECT id, taken_at, connected, sensors, relays FROM snapshots ORDER BY taken_at DESC, id DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying history: %w", err)
	}
	defer rows.Close()

	var out []Snapshot
	for rows.Next() {
		var (
			snap       Snapshot
			takenAt    int64
			sensorJSON string
			relayJSON  string
		)
		if err := rows.Scan(&snap.ID, &takenAt, &snap.Connected, &sensorJSON, &relayJSON); err != nil {
			return nil, fmt.Errorf("scanning history row: %w", err)
		}
		snap.TakenAt = time.UnixMilli(takenAt)
		if err := json.Unmarshal([]byte(sensorJSON), &snap.Sensors); err != nil {
			return nil, fmt.Errorf("decoding sensors of row %d: %w", snap.ID, err)
		}
		if err := json.Unmarshal([]byte(relayJSON), &snap.Relays); err != nil {
			return nil, fmt.Errorf("decoding relays of row %d: %w", snap.ID, err)
		}
		out = append(out, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating history: %w", err)
	}
	return out, nil
}

// Path returns the database file path
func (h *HistorySink) Path() string {
	return h.path
}

// Close closes the database
func (h *HistorySink) Close() error {
	return h.db.Close()
}
