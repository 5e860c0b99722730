// Package storage provides the persistence layer for the simulation server.
// This package implements the repository pattern to keep the engine free of SQL.
package storage

import (
	"context"
	"encoding/json"
	"time"
)

// EventRecord mirrors the engine event structure for persistence.
// The payload is kept as the JSON the engine produced.
type EventRecord struct {
	ID        string          `json:"id" db:"id"`
	SessionID string          `json:"session_id" db:"session_id"`
	Timestamp time.Time       `json:"timestamp" db:"ts_unix_nano"`
	EventType string          `json:"event_type" db:"event_type"`
	ActorID   string          `json:"actor_id" db:"actor_id"`
	TargetID  string          `json:"target_id" db:"target_id"`
	Payload   json.RawMessage `json:"payload" db:"payload"`
	Tick      int64           `json:"tick" db:"tick"`
}

// EventRepository defines the interface for event persistence.
type EventRepository interface {
	// Append adds a new event to the immutable ledger.
	Append(ctx context.Context, event EventRecord) error

	// GetBySession retrieves all events of a session (for replay).
	GetBySession(ctx context.Context, sessionID string) ([]EventRecord, error)

	// GetSinceTick retrieves the events emitted at or after tick.
	GetSinceTick(ctx context.Context, sessionID string, tick int64) ([]EventRecord, error)

	// GetByEventType retrieves all events of a specific type.
	GetByEventType(ctx context.Context, sessionID, eventType string) ([]EventRecord, error)

	// GetByTarget retrieves all events about one item, room or order.
	GetByTarget(ctx context.Context, sessionID, targetID string) ([]EventRecord, error)
}

// ClockRow is the persisted room clock.
type ClockRow struct {
	SessionID      string     `json:"session_id" db:"session_id"`
	Tick           int64      `json:"tick" db:"tick"`
	Years          [3]float64 `json:"years"`
	PauseRequested bool       `json:"pause_requested" db:"pause_requested"`
	PauseActive    bool       `json:"pause_active" db:"pause_active"`
	PauseRemaining float64    `json:"pause_remaining" db:"pause_remaining"`
	UpdatedAt      time.Time  `json:"updated_at" db:"updated_unix_nano"`
}

// FoodRow is the persisted exposure of one piece of food.
type FoodRow struct {
	FoodID           string    `json:"food_id" db:"food_id"`
	SessionID        string    `json:"session_id" db:"session_id"`
	Kind             string    `json:"kind" db:"kind"`
	Started          bool      `json:"started" db:"started"`
	State            string    `json:"state" db:"state"`
	LastRoom         int       `json:"last_room" db:"last_room"`
	LastObserverRoom int       `json:"last_observer_room" db:"last_observer_room"`
	BaselineYear     int       `json:"baseline_year" db:"baseline_year"`
	EntryYear        int       `json:"entry_year" db:"entry_year"`
	TotalYears       int       `json:"total_years" db:"total_years"`
	Fired            []string  `json:"fired" db:"fired_json"`
	UpdatedAt        time.Time `json:"updated_at" db:"updated_unix_nano"`
}

// StateRepository stores the latest clock and food state of a session.
type StateRepository interface {
	// SaveState replaces the clock row and the full food set in one transaction.
	SaveState(ctx context.Context, clock ClockRow, foods []FoodRow) error

	// GetClock returns nil when the session was never saved.
	GetClock(ctx context.Context, sessionID string) (*ClockRow, error)

	// GetFoods returns the foods of a session ordered by id.
	GetFoods(ctx context.Context, sessionID string) ([]FoodRow, error)

	// LatestSession returns the most recently saved session, or "" when nothing was saved.
	LatestSession(ctx context.Context) (string, error)
}
