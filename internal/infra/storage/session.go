package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shovit/timerooms/internal/domain/food"
	"github.com/shovit/timerooms/internal/engine"
	"github.com/shovit/timerooms/internal/events"
)

const persistTimeout = 5 * time.Second

// EventPersister writes the in-memory event log through to an EventRepository.
type EventPersister struct {
	repo      EventRepository
	sessionID string
}

// NewEventPersister tags every event with sessionID.
func NewEventPersister(repo EventRepository, sessionID string) *EventPersister {
	return &EventPersister{repo: repo, sessionID: sessionID}
}

// Append implements events.EventPersister.
func (p *EventPersister) Append(e events.GameEvent) error {
	rec, err := RecordFromEvent(p.sessionID, e)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	return p.repo.Append(ctx, rec)
}

// RecordFromEvent converts an engine event into its stored form.
func RecordFromEvent(sessionID string, e events.GameEvent) (EventRecord, error) {
	payload, err := json.Marshal(e.Payload)
	if err != nil {
		return EventRecord{}, fmt.Errorf("failed to marshal payload of %s: %w", e.ID, err)
	}
	return EventRecord{
		ID:        e.ID,
		SessionID: sessionID,
		Timestamp: e.Timestamp,
		EventType: string(e.Type),
		ActorID:   e.ActorID,
		TargetID:  e.TargetID,
		Payload:   payload,
		Tick:      e.Tick,
	}, nil
}

// RowsFromSession flattens a session into the room_clock and food_items rows.
func RowsFromSession(sessionID string, s engine.Session) (ClockRow, []FoodRow) {
	clock := ClockRow{
		SessionID:      sessionID,
		Tick:           s.Tick,
		Years:          s.Clock.Years,
		PauseRequested: s.Clock.Pause.Requested,
		PauseActive:    s.Clock.Pause.Active,
		PauseRemaining: s.Clock.Pause.Remaining,
	}
	foods := make([]FoodRow, 0, len(s.Foods))
	for _, f := range s.Foods {
		foods = append(foods, FoodRow{
			FoodID:           f.ID,
			SessionID:        sessionID,
			Kind:             f.Kind,
			Started:          f.Started,
			State:            f.State.String(),
			LastRoom:         f.Exposure.LastRoom,
			LastObserverRoom: f.Exposure.LastObserverRoom,
			BaselineYear:     f.Exposure.BaselineYear,
			EntryYear:        f.Exposure.EntryYear,
			TotalYears:       f.Exposure.TotalYearsPassed,
			Fired:            f.Exposure.Fired,
		})
	}
	return clock, foods
}

// ClockState rebuilds the engine clock state from a row.
func (c ClockRow) ClockState() engine.ClockState {
	return engine.ClockState{
		Years: c.Years,
		Pause: engine.PauseState{
			Requested: c.PauseRequested,
			Active:    c.PauseActive,
			Remaining: c.PauseRemaining,
		},
	}
}

// Backup saves the current engine state of a session.
func Backup(ctx context.Context, repo StateRepository, sessionID string, s engine.Session) error {
	clock, foods := RowsFromSession(sessionID, s)
	if err := repo.SaveState(ctx, clock, foods); err != nil {
		return fmt.Errorf("backup session %s: %w", sessionID, err)
	}
	return nil
}

// LoadBackup reads the saved clocks and foods of a session back into engine form. It returns nil
// when the session was never saved.
func LoadBackup(ctx context.Context, repo StateRepository, sessionID string) (*engine.Backup, error) {
	clock, err := repo.GetClock(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load clock of %s: %w", sessionID, err)
	}
	if clock == nil {
		return nil, nil
	}
	rows, err := repo.GetFoods(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load foods of %s: %w", sessionID, err)
	}

	b := &engine.Backup{Tick: clock.Tick, Clock: clock.ClockState(), Foods: make([]engine.FoodSnapshot, 0, len(rows))}
	for _, f := range rows {
		state, err := food.ParseState(f.State)
		if err != nil {
			return nil, fmt.Errorf("food %s: %w", f.FoodID, err)
		}
		b.Foods = append(b.Foods, engine.FoodSnapshot{
			ID:      f.FoodID,
			Kind:    f.Kind,
			Started: f.Started,
			State:   state,
			Exposure: engine.ExposureState{
				LastRoom:         f.LastRoom,
				LastObserverRoom: f.LastObserverRoom,
				BaselineYear:     f.BaselineYear,
				EntryYear:        f.EntryYear,
				TotalYearsPassed: f.TotalYears,
				Fired:            f.Fired,
			},
		})
	}
	return b, nil
}
