// Package store persists shot history to a local sqlite database.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/fairwaylab/strobeshot/pkg/shot"
)

const initSchemaSQL = `
CREATE TABLE IF NOT EXISTS shots (
    id              INTEGER PRIMARY KEY AUTOINCREMENT,
    captured_at     DATETIME NOT NULL,
    correlation_id  TEXT,
    kind            TEXT NOT NULL,
    speed_mps       REAL,
    launch_angle    REAL,
    side_angle      REAL,
    back_spin_rpm   REAL,
    side_spin_rpm   REAL,
    spin_axis_deg   REAL,
    carry_m         REAL,
    message         TEXT
);
CREATE INDEX IF NOT EXISTS idx_shots_captured_at ON shots(captured_at);
`

const insertShotSQL = `
INSERT INTO shots (
    captured_at, correlation_id, kind, speed_mps, launch_angle, side_angle,
    back_spin_rpm, side_spin_rpm, spin_axis_deg, carry_m, message
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

const selectShotsSQL = `
SELECT captured_at, correlation_id, kind, speed_mps, launch_angle, side_angle,
       back_spin_rpm, side_spin_rpm, spin_axis_deg, carry_m, message
FROM shots ORDER BY id DESC LIMIT ?`

// Store is the shot-history database.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the shot database at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?_journal_mode=WAL&_synchronous=NORMAL", path))
	if err != nil {
		return nil, fmt.Errorf("opening shot database: %w", err)
	}
	if _, err := db.Exec(initSchemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Insert records one shot result.
func (s *Store) Insert(ctx context.Context, res shot.Result) error {
	_, err := s.db.ExecContext(ctx, insertShotSQL,
		res.CapturedAt.UTC(),
		res.CorrelationID,
		string(res.Kind),
		res.SpeedMPS,
		res.LaunchAngleDeg,
		res.SideAngleDeg,
		res.BackSpinRPM,
		res.SideSpinRPM,
		res.SpinAxisDeg,
		res.CarryMeters,
		res.Message,
	)
	if err != nil {
		return fmt.Errorf("inserting shot: %w", err)
	}
	return nil
}

// Recent returns up to limit shots, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]shot.Result, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, selectShotsSQL, limit)
	if err != nil {
		return nil, fmt.Errorf("querying shots: %w", err)
	}
	defer rows.Close()

	var out []shot.Result
	for rows.Next() {
		var r shot.Result
		var at time.Time
		var kind string
		if err := rows.Scan(&at, &r.CorrelationID, &kind, &r.SpeedMPS,
			&r.LaunchAngleDeg, &r.SideAngleDeg, &r.BackSpinRPM, &r.SideSpinRPM,
			&r.SpinAxisDeg, &r.CarryMeters, &r.Message); err != nil {
			return nil, fmt.Errorf("scanning shot: %w", err)
		}
		r.CapturedAt = at
		r.Kind = shot.Kind(kind)
		out = append(out, r)
	}
	return out, rows.Err()
}

// Latest returns the most recent shot, or nil when the history is empty.
func (s *Store) Latest(ctx context.Context) (*shot.Result, error) {
	res, err := s.Recent(ctx, 1)
	if err != nil {
		return nil, err
	}
	if len(res) == 0 {
		return nil, nil
	}
	return &res[0], nil
}

// Close releases the database.
func (s *Store) Close() error {
	return s.db.Close()
}
