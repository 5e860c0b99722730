package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/shovit/timerooms/internal/platform/optimization"
)

// MemoryPath opens a private in-memory database.
const MemoryPath = ":memory:"

// InitSQLite initializes the local SQLite database and creates the schemas for the event
// ledger, the room clock and the food exposure snapshots.
func InitSQLite(dbPath string, opt *optimization.Config) (*sql.DB, error) {
	if opt == nil {
		opt = optimization.DefaultConfig()
	}

	dsn := dbPath
	if dbPath != MemoryPath {
		// Ensure directory exists
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
		dsn = dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}

	if dbPath == MemoryPath {
		// every connection would get its own empty database
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(opt.DBMaxOpenConns)
		db.SetMaxIdleConns(opt.DBMaxIdleConns)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping sqlite database: %w", err)
	}

	if err := createSchemas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schemas: %w", err)
	}

	return db, nil
}

func createSchemas(db *sql.DB) error {
	schemas := []string{
		`CREATE TABLE IF NOT EXISTS events (
			id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			ts_unix_nano INTEGER NOT NULL,
			event_type TEXT NOT NULL,
			actor_id TEXT NOT NULL,
			target_id TEXT NOT NULL,
			payload TEXT NOT NULL,
			tick INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS room_clock (
			session_id TEXT PRIMARY KEY,
			tick INTEGER NOT NULL,
			year_s REAL NOT NULL,
			year_n REAL NOT NULL,
			year_f REAL NOT NULL,
			pause_requested BOOLEAN NOT NULL DEFAULT 0,
			pause_active BOOLEAN NOT NULL DEFAULT 0,
			pause_remaining REAL NOT NULL DEFAULT 0,
			updated_unix_nano INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS food_items (
			food_id TEXT NOT NULL,
			session_id TEXT NOT NULL,
			kind TEXT NOT NULL,
			started BOOLEAN NOT NULL DEFAULT 0,
			state TEXT NOT NULL,
			last_room INTEGER NOT NULL,
			last_observer_room INTEGER NOT NULL,
			baseline_year INTEGER NOT NULL,
			entry_year INTEGER NOT NULL,
			total_years INTEGER NOT NULL,
			fired_json TEXT NOT NULL,
			updated_unix_nano INTEGER NOT NULL,
			PRIMARY KEY (session_id, food_id)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_events_session_tick ON events(session_id, tick);`,
		`CREATE INDEX IF NOT EXISTS idx_events_type ON events(event_type);`,
		`CREATE INDEX IF NOT EXISTS idx_events_target ON events(target_id);`,
	}

	for _, query := range schemas {
		if _, err := db.Exec(query); err != nil {
			return err
		}
	}

	return nil
}
