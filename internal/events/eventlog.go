// Package events provides the append-only event log of the simulation.
// Every room change, pause episode, trigger and spoilage transition is recorded here.
package events

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/shovit/timerooms/internal/platform/metrics"
)

// EventType defines the category of a simulation event.
type EventType string

const (
	EventTypeTimeTick          EventType = "TIME_TICK"
	EventTypeRoomChanged       EventType = "ROOM_CHANGED"
	EventTypePauseRequested    EventType = "PAUSE_REQUESTED"
	EventTypePauseStarted      EventType = "PAUSE_STARTED"
	EventTypePauseEnded        EventType = "PAUSE_ENDED"
	EventTypePauseCancelled    EventType = "PAUSE_CANCELLED"
	EventTypeTriggerFired      EventType = "TRIGGER_FIRED"
	EventTypeFoodStateChanged  EventType = "FOOD_STATE_CHANGED"
	EventTypeFoodSpawned       EventType = "FOOD_SPAWNED"
	EventTypeItemPickedUp      EventType = "ITEM_PICKED_UP"
	EventTypeItemDropped       EventType = "ITEM_DROPPED"
	EventTypePlayerTeleported  EventType = "PLAYER_TELEPORTED"
	EventTypeCrystalShattered  EventType = "CRYSTAL_SHATTERED"
	EventTypeCrystalDeposited  EventType = "CRYSTAL_DEPOSITED"
	EventTypeAltarReward       EventType = "ALTAR_REWARD"
	EventTypeOrderStarted      EventType = "ORDER_STARTED"
	EventTypeIngredientAdded   EventType = "INGREDIENT_ADDED"
	EventTypeSandwichComplete  EventType = "SANDWICH_COMPLETE"
	EventTypeSandwichSubmitted EventType = "SANDWICH_SUBMITTED"
)

// ActorSystem is the actor id used for events the simulation emits on its own.
const ActorSystem = "SYSTEM_CLOCK"

// GameEvent represents an immutable record of something that happened in the simulation.
type GameEvent struct {
	ID        string      `json:"id"`
	Timestamp time.Time   `json:"timestamp"`
	Type      EventType   `json:"type"`
	ActorID   string      `json:"actor_id"`  // Who performed the action
	TargetID  string      `json:"target_id"` // What was affected (optional)
	Payload   interface{} `json:"payload"`   // Event-specific data
	Tick      int64       `json:"tick"`
}

// New builds an event stamped with a fresh id and the current time.
func New(eventType EventType, actorID, targetID string, tick int64, payload interface{}) GameEvent {
	return GameEvent{
		ID:        GenerateEventID(),
		Timestamp: time.Now(),
		Type:      eventType,
		ActorID:   actorID,
		TargetID:  targetID,
		Payload:   payload,
		Tick:      tick,
	}
}

// EventPersister defines how an event is durably stored.
type EventPersister interface {
	Append(event GameEvent) error
}

const defaultPersistBuffer = 1024

// EventLog is the in-memory append-only log of simulation events.
// When a persister is attached, events are written through in append order by one goroutine.
type EventLog struct {
	mu        sync.RWMutex
	events    []GameEvent
	persister EventPersister

	// sendMu orders queue sends and guards closed, so a send never races Close.
	sendMu    sync.Mutex
	closed    bool
	queue     chan GameEvent
	done      chan struct{}
	closeOnce sync.Once
}

// NewEventLog creates a new event log with an optional persister.
func NewEventLog(persister EventPersister) *EventLog {
	return NewBufferedEventLog(persister, defaultPersistBuffer)
}

// NewBufferedEventLog is NewEventLog with an explicit write-through queue size.
func NewBufferedEventLog(persister EventPersister, buffer int) *EventLog {
	el := &EventLog{
		events:    make([]GameEvent, 0),
		persister: persister,
	}
	if persister != nil {
		if buffer < 1 {
			buffer = 1
		}
		el.queue = make(chan GameEvent, buffer)
		el.done = make(chan struct{})
		go el.drain()
	}
	return el
}

// Append adds a new event to the log. Events are immutable once appended.
// After Close, Append drops the event.
func (el *EventLog) Append(event GameEvent) {
	el.sendMu.Lock()
	defer el.sendMu.Unlock()
	if el.closed {
		return
	}

	el.mu.Lock()
	el.events = append(el.events, event)
	el.mu.Unlock()

	if el.queue != nil {
		el.queue <- event
	}
}

func (el *EventLog) drain() {
	defer close(el.done)
	for e := range el.queue {
		start := time.Now()
		err := el.persister.Append(e)
		metrics.Get().RecordEventWrite(time.Since(start), err)
	}
}

// Close flushes pending writes to the persister. Later appends are dropped.
func (el *EventLog) Close() {
	el.closeOnce.Do(func() {
		el.sendMu.Lock()
		el.closed = true
		if el.queue != nil {
			close(el.queue)
		}
		el.sendMu.Unlock()

		if el.done != nil {
			<-el.done
		}
	})
}

// Len returns the number of events in the log.
func (el *EventLog) Len() int {
	el.mu.RLock()
	defer el.mu.RUnlock()
	return len(el.events)
}

// Since returns a copy of every event at position offset or later.
func (el *EventLog) Since(offset int) []GameEvent {
	el.mu.RLock()
	defer el.mu.RUnlock()

	if offset < 0 {
		offset = 0
	}
	if offset >= len(el.events) {
		return nil
	}
	out := make([]GameEvent, len(el.events)-offset)
	copy(out, el.events[offset:])
	return out
}

// GetByType returns all events of one type.
func (el *EventLog) GetByType(eventType EventType) []GameEvent {
	el.mu.RLock()
	defer el.mu.RUnlock()

	var result []GameEvent
	for _, e := range el.events {
		if e.Type == eventType {
			result = append(result, e)
		}
	}
	return result
}

// GetByTarget returns all events that affected a specific item or room.
func (el *EventLog) GetByTarget(targetID string) []GameEvent {
	el.mu.RLock()
	defer el.mu.RUnlock()

	var result []GameEvent
	for _, e := range el.events {
		if e.TargetID == targetID {
			result = append(result, e)
		}
	}
	return result
}

// Replay returns the full history of events for state reconstruction.
func (el *EventLog) Replay() []GameEvent {
	return el.Since(0)
}

// GenerateEventID creates a unique event identifier.
func GenerateEventID() string {
	return uuid.NewString()
}
