// Package storage - reconstructor.go
// Rebuilds what happened while a client was away from the event ledger: state = f(events).
package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/shovit/timerooms/internal/domain/food"
	"github.com/shovit/timerooms/internal/domain/room"
	"github.com/shovit/timerooms/internal/engine"
	"github.com/shovit/timerooms/internal/events"
)

// Reconstructor rebuilds read models from the event ledger.
// This is used for:
// 1. The recap a reconnecting client shows
// 2. Auditing food stages against the live engine
type Reconstructor struct {
	eventRepo EventRepository
}

// NewReconstructor creates a new state reconstructor.
func NewReconstructor(eventRepo EventRepository) *Reconstructor {
	return &Reconstructor{eventRepo: eventRepo}
}

// RecapEvent is a simplified event for the recap list.
type RecapEvent struct {
	Tick      int64  `json:"tick"`
	EventType string `json:"event_type"`
	TargetID  string `json:"target_id,omitempty"`
	Summary   string `json:"summary"` // Human-readable description
	Impact    string `json:"impact"`  // "POSITIVE", "NEGATIVE", "NEUTRAL"
}

// RebuildFoodStates replays spawn and state-change events into the last known stage of every
// food item.
func (r *Reconstructor) RebuildFoodStates(ctx context.Context, sessionID string) (map[string]food.State, error) {
	all, err := r.eventRepo.GetBySession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get session events: %w", err)
	}

	states := make(map[string]food.State)
	for _, e := range all {
		switch events.EventType(e.EventType) {
		case events.EventTypeFoodSpawned:
			if _, seen := states[e.TargetID]; !seen {
				states[e.TargetID] = food.StateRaw
			}
		case events.EventTypeFoodStateChanged:
			var p engine.FoodStatePayload
			if err := json.Unmarshal(e.Payload, &p); err != nil {
				return nil, fmt.Errorf("event %s: %w", e.ID, err)
			}
			// stages never regress, so the highest one wins regardless of order
			if p.To > states[e.TargetID] {
				states[e.TargetID] = p.To
			}
		}
	}
	return states, nil
}

// GenerateRecap lists what happened from sinceTick on. Clock ticks are left out.
func (r *Reconstructor) GenerateRecap(ctx context.Context, sessionID string, sinceTick int64) ([]RecapEvent, error) {
	all, err := r.eventRepo.GetSinceTick(ctx, sessionID, sinceTick)
	if err != nil {
		return nil, err
	}

	recap := make([]RecapEvent, 0, len(all))
	for _, e := range all {
		if events.EventType(e.EventType) == events.EventTypeTimeTick {
			continue
		}
		recap = append(recap, RecapEvent{
			Tick:      e.Tick,
			EventType: e.EventType,
			TargetID:  e.TargetID,
			Summary:   summarizeEvent(e),
			Impact:    determineImpact(e),
		})
	}
	return recap, nil
}

// Describe returns the human-readable summary and impact of a stored event.
func Describe(e EventRecord) (summary, impact string) {
	return summarizeEvent(e), determineImpact(e)
}

// summarizeEvent creates a human-readable summary.
func summarizeEvent(e EventRecord) string {
	switch events.EventType(e.EventType) {
	case events.EventTypeRoomChanged:
		var p engine.RoomChangedPayload
		if json.Unmarshal(e.Payload, &p) == nil {
			return fmt.Sprintf("You walked from room %s into room %s.", room.Name(p.From), room.Name(p.To))
		}
	case events.EventTypeFoodStateChanged:
		var p engine.FoodStatePayload
		if json.Unmarshal(e.Payload, &p) == nil {
			return fmt.Sprintf("The %s turned %s after %d years.", p.Kind, p.To, p.Exposure)
		}
	case events.EventTypeTriggerFired:
		var p engine.TriggerFiredPayload
		if json.Unmarshal(e.Payload, &p) == nil {
			return fmt.Sprintf("%s reached %d years (%s).", p.ItemID, p.ThresholdYears, p.TriggerID)
		}
	case events.EventTypePauseStarted:
		return "Room N froze."
	case events.EventTypePauseEnded, events.EventTypePauseCancelled:
		return "Room N started moving again."
	case events.EventTypeCrystalShattered:
		return "A crystal shattered on the floor."
	case events.EventTypeAltarReward:
		return "The altar accepted both crystals."
	case events.EventTypeSandwichSubmitted:
		var s struct {
			OrderName string `json:"order_name"`
			Stars     int    `json:"stars"`
		}
		if json.Unmarshal(e.Payload, &s) == nil {
			return fmt.Sprintf("Delivered %s for %d stars.", s.OrderName, s.Stars)
		}
	}
	return "Something happened in the rooms."
}

// determineImpact classifies the event impact.
func determineImpact(e EventRecord) string {
	switch events.EventType(e.EventType) {
	case events.EventTypeCrystalShattered:
		return "NEGATIVE"
	case events.EventTypeFoodStateChanged:
		var p engine.FoodStatePayload
		if json.Unmarshal(e.Payload, &p) == nil && p.To == food.StateSpoiled {
			return "NEGATIVE"
		}
		return "NEUTRAL"
	case events.EventTypeAltarReward, events.EventTypeSandwichSubmitted:
		return "POSITIVE"
	default:
		return "NEUTRAL"
	}
}
