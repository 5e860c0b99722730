package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// SQLiteEventRepository implements EventRepository for SQLite.
type SQLiteEventRepository struct {
	db *sql.DB
}

func NewSQLiteEventRepository(db *sql.DB) *SQLiteEventRepository {
	return &SQLiteEventRepository{db: db}
}

func (r *SQLiteEventRepository) Append(ctx context.Context, event EventRecord) error {
	payload := event.Payload
	if len(payload) == 0 {
		payload = json.RawMessage("null")
	}

	query := `
		INSERT INTO events (id, session_id, ts_unix_nano, event_type, actor_id, target_id, payload, tick)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.ExecContext(ctx, query,
		event.ID, event.SessionID, event.Timestamp.UnixNano(), event.EventType, event.ActorID,
		event.TargetID, string(payload), event.Tick,
	)
	if err != nil {
		return fmt.Errorf("failed to append event: %w", err)
	}
	return nil
}

const eventColumns = `id, session_id, ts_unix_nano, event_type, actor_id, target_id, payload, tick`

func (r *SQLiteEventRepository) getMany(ctx context.Context, query string, args ...interface{}) ([]EventRecord, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []EventRecord
	for rows.Next() {
		var e EventRecord
		var ts int64
		var payload string
		err := rows.Scan(
			&e.ID, &e.SessionID, &ts, &e.EventType, &e.ActorID,
			&e.TargetID, &payload, &e.Tick,
		)
		if err != nil {
			return nil, err
		}
		e.Timestamp = time.Unix(0, ts).UTC()
		e.Payload = json.RawMessage(payload)
		events = append(events, e)
	}
	return events, rows.Err()
}

func (r *SQLiteEventRepository) GetBySession(ctx context.Context, sessionID string) ([]EventRecord, error) {
	query := `SELECT ` + eventColumns + ` FROM events WHERE session_id = ? ORDER BY tick ASC, ts_unix_nano ASC`
	return r.getMany(ctx, query, sessionID)
}

func (r *SQLiteEventRepository) GetSinceTick(ctx context.Context, sessionID string, tick int64) ([]EventRecord, error) {
	query := `SELECT ` + eventColumns + ` FROM events WHERE session_id = ? AND tick >= ? ORDER BY tick ASC, ts_unix_nano ASC`
	return r.getMany(ctx, query, sessionID, tick)
}

func (r *SQLiteEventRepository) GetByEventType(ctx context.Context, sessionID, eventType string) ([]EventRecord, error) {
	query := `SELECT ` + eventColumns + ` FROM events WHERE session_id = ? AND event_type = ? ORDER BY tick ASC, ts_unix_nano ASC`
	return r.getMany(ctx, query, sessionID, eventType)
}

func (r *SQLiteEventRepository) GetByTarget(ctx context.Context, sessionID, targetID string) ([]EventRecord, error) {
	query := `SELECT ` + eventColumns + ` FROM events WHERE session_id = ? AND target_id = ? ORDER BY tick ASC, ts_unix_nano ASC`
	return r.getMany(ctx, query, sessionID, targetID)
}

// ---------------------------------------------------------
// SQLiteStateRepository
// ---------------------------------------------------------

type SQLiteStateRepository struct {
	db *sql.DB
}

func NewSQLiteStateRepository(db *sql.DB) *SQLiteStateRepository {
	return &SQLiteStateRepository{db: db}
}

func (r *SQLiteStateRepository) SaveState(ctx context.Context, clock ClockRow, foods []FoodRow) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UnixNano()
	_, err = tx.ExecContext(ctx, `
		INSERT INTO room_clock (session_id, tick, year_s, year_n, year_f, pause_requested, pause_active, pause_remaining, updated_unix_nano)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_id) DO UPDATE SET
			tick=excluded.tick,
			year_s=excluded.year_s,
			year_n=excluded.year_n,
			year_f=excluded.year_f,
			pause_requested=excluded.pause_requested,
			pause_active=excluded.pause_active,
			pause_remaining=excluded.pause_remaining,
			updated_unix_nano=excluded.updated_unix_nano
	`,
		clock.SessionID, clock.Tick, clock.Years[0], clock.Years[1], clock.Years[2],
		clock.PauseRequested, clock.PauseActive, clock.PauseRemaining, now,
	)
	if err != nil {
		return fmt.Errorf("save clock: %w", err)
	}

	// eaten or removed food must not linger
	if _, err := tx.ExecContext(ctx, `DELETE FROM food_items WHERE session_id = ?`, clock.SessionID); err != nil {
		return fmt.Errorf("clear foods: %w", err)
	}
	for _, f := range foods {
		fired, err := json.Marshal(f.Fired)
		if err != nil {
			return fmt.Errorf("marshal fired triggers: %w", err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO food_items (food_id, session_id, kind, started, state, last_room, last_observer_room, baseline_year, entry_year, total_years, fired_json, updated_unix_nano)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`,
			f.FoodID, clock.SessionID, f.Kind, f.Started, f.State, f.LastRoom, f.LastObserverRoom,
			f.BaselineYear, f.EntryYear, f.TotalYears, string(fired), now,
		)
		if err != nil {
			return fmt.Errorf("save food %s: %w", f.FoodID, err)
		}
	}
	return tx.Commit()
}

func (r *SQLiteStateRepository) GetClock(ctx context.Context, sessionID string) (*ClockRow, error) {
	query := `SELECT session_id, tick, year_s, year_n, year_f, pause_requested, pause_active, pause_remaining, updated_unix_nano FROM room_clock WHERE session_id = ?`
	var c ClockRow
	var updated int64
	err := r.db.QueryRowContext(ctx, query, sessionID).Scan(
		&c.SessionID, &c.Tick, &c.Years[0], &c.Years[1], &c.Years[2],
		&c.PauseRequested, &c.PauseActive, &c.PauseRemaining, &updated,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	c.UpdatedAt = time.Unix(0, updated).UTC()
	return &c, nil
}

func (r *SQLiteStateRepository) GetFoods(ctx context.Context, sessionID string) ([]FoodRow, error) {
	query := `SELECT food_id, session_id, kind, started, state, last_room, last_observer_room, baseline_year, entry_year, total_years, fired_json, updated_unix_nano FROM food_items WHERE session_id = ? ORDER BY food_id ASC`
	rows, err := r.db.QueryContext(ctx, query, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var foods []FoodRow
	for rows.Next() {
		var f FoodRow
		var fired string
		var updated int64
		if err := rows.Scan(&f.FoodID, &f.SessionID, &f.Kind, &f.Started, &f.State, &f.LastRoom, &f.LastObserverRoom,
			&f.BaselineYear, &f.EntryYear, &f.TotalYears, &fired, &updated); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(fired), &f.Fired); err != nil {
			return nil, fmt.Errorf("food %s fired triggers: %w", f.FoodID, err)
		}
		f.UpdatedAt = time.Unix(0, updated).UTC()
		foods = append(foods, f)
	}
	return foods, rows.Err()
}

func (r *SQLiteStateRepository) LatestSession(ctx context.Context) (string, error) {
	var id string
	err := r.db.QueryRowContext(ctx, `SELECT session_id FROM room_clock ORDER BY updated_unix_nano DESC, rowid DESC LIMIT 1`).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return id, err
}
