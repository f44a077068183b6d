package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
)

const schema = `
CREATE TABLE IF NOT EXISTS readings (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	zone_idx INTEGER NOT NULL,
	system_id INTEGER NOT NULL,
	zone_id INTEGER NOT NULL,
	recorded_at TEXT NOT NULL,
	room_temp REAL NOT NULL,
	humidity REAL,
	setpoint REAL NOT NULL,
	mode INTEGER NOT NULL,
	power BOOLEAN NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_readings_zone_time ON readings (zone_idx, recorded_at);
`

// Open opens (creating if necessary) the reading history database and
// applies the schema.
func Open(path string) (*sql.DB, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create db directory: %w", err)
		}
	}

	database, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := database.Exec(schema); err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return database, nil
}
