package db

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/vinste/airzone-local/internal/airzone"
)

// Reading is one recorded zone observation.
type Reading struct {
	ZoneIdx    int       `json:"zone_idx"`
	SystemID   int       `json:"system_id"`
	ZoneID     int       `json:"zone_id"`
	RecordedAt time.Time `json:"recorded_at"`
	RoomTemp   float64   `json:"room_temp"`
	Humidity   *float64  `json:"humidity,omitempty"`
	Setpoint   float64   `json:"setpoint"`
	Mode       int       `json:"mode"`
	Power      bool      `json:"power"`
}

// RecordSnapshot inserts one reading per zone in a single transaction.
func RecordSnapshot(database *sql.DB, at time.Time, zones []airzone.Zone) error {
	tx, err := database.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`INSERT INTO readings (zone_idx, system_id, zone_id, recorded_at, room_temp, humidity, setpoint, mode, power) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	ts := at.UTC().Format(time.RFC3339)
	for i, z := range zones {
		var humidity sql.NullFloat64
		if z.Humidity != nil {
			humidity = sql.NullFloat64{Float64: *z.Humidity, Valid: true}
		}
		if _, err := stmt.Exec(i, z.SystemID, z.ZoneID, ts, z.RoomTemp, humidity, z.Setpoint, z.Mode, z.On != 0); err != nil {
			return fmt.Errorf("failed to insert reading for zone %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit readings: %w", err)
	}
	return nil
}

// ZoneHistory returns the recorded readings for a zone since the given time,
// oldest first.
func ZoneHistory(database *sql.DB, zoneIdx int, since time.Time) ([]Reading, error) {
	rows, err := database.Query(
		`SELECT zone_idx, system_id, zone_id, recorded_at, room_temp, humidity, setpoint, mode, power
		 FROM readings WHERE zone_idx = ? AND recorded_at >= ? ORDER BY recorded_at ASC`,
		zoneIdx, since.UTC().Format(time.RFC3339))
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	var readings []Reading
	for rows.Next() {
		r, err := scanReading(rows)
		if err != nil {
			return nil, err
		}
		readings = append(readings, r)
	}
	return readings, rows.Err()
}

// LatestReading returns the most recent reading for a zone, or nil when the
// zone has no history yet.
func LatestReading(database *sql.DB, zoneIdx int) (*Reading, error) {
	rows, err := database.Query(
		`SELECT zone_idx, system_id, zone_id, recorded_at, room_temp, humidity, setpoint, mode, power
		 FROM readings WHERE zone_idx = ? ORDER BY recorded_at DESC, id DESC LIMIT 1`, zoneIdx)
	if err != nil {
		return nil, fmt.Errorf("failed to query latest reading: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}
	r, err := scanReading(rows)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// PruneBefore deletes readings older than the cutoff and returns the number
// of rows removed.
func PruneBefore(database *sql.DB, cutoff time.Time) (int64, error) {
	res, err := database.Exec(`DELETE FROM readings WHERE recorded_at < ?`, cutoff.UTC().Format(time.RFC3339))
	if err != nil {
		return 0, fmt.Errorf("failed to prune readings: %w", err)
	}
	return res.RowsAffected()
}

func scanReading(rows *sql.Rows) (Reading, error) {
	var r Reading
	var ts string
	var humidity sql.NullFloat64
	if err := rows.Scan(&r.ZoneIdx, &r.SystemID, &r.ZoneID, &ts, &r.RoomTemp, &humidity, &r.Setpoint, &r.Mode, &r.Power); err != nil {
		return r, fmt.Errorf("failed to scan reading: %w", err)
	}
	r.RecordedAt, _ = time.Parse(time.RFC3339, ts)
	if humidity.Valid {
		h := humidity.Float64
		r.Humidity = &h
	}
	return r, nil
}
