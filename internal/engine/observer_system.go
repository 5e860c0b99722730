package engine

import (
	"errors"
	"fmt"

	"github.com/shovit/timerooms/internal/domain/room"
	"github.com/shovit/timerooms/internal/events"
	"github.com/shovit/timerooms/internal/platform/logger"
)

// ActorPlayer is the actor id of the single observer.
const ActorPlayer = "player"

// ErrTeleportRefused is returned when the player is outside every room or the target is unknown.
var ErrTeleportRefused = errors.New("teleport refused")

// RoomChangedPayload is attached to ROOM_CHANGED.
type RoomChangedPayload struct {
	From     int    `json:"from"`
	To       int    `json:"to"`
	FromName string `json:"from_name"`
	ToName   string `json:"to_name"`
}

// TeleportPayload is attached to PLAYER_TELEPORTED.
type TeleportPayload struct {
	From   room.Vec3 `json:"from"`
	To     room.Vec3 `json:"to"`
	Target int       `json:"target"`
}

// PlayerState is the serializable observer.
type PlayerState struct {
	Position room.Vec3 `json:"position"`
	Room     int       `json:"room"`
}

// ObserverSystem tracks where the player stands. The player's room drives every clock rate.
type ObserverSystem struct {
	eventLog        *events.EventLog
	logger          *logger.Logger
	layout          *room.Layout
	teleportYOffset float64

	position room.Vec3
	room     int
}

// NewObserverSystem places the player at start. The room is resolved on the first Resolve.
func NewObserverSystem(el *events.EventLog, log *logger.Logger, layout *room.Layout, start room.Vec3, teleportYOffset float64) *ObserverSystem {
	return &ObserverSystem{
		eventLog:        el,
		logger:          log,
		layout:          layout,
		teleportYOffset: teleportYOffset,
		position:        start,
		room:            room.NoRoom,
	}
}

// Move sets the player's position.
func (o *ObserverSystem) Move(pos room.Vec3) {
	o.position = pos
}

// Teleport jumps the player into target, keeping the relative spot inside the room.
func (o *ObserverSystem) Teleport(target int, tick int64) (room.Vec3, error) {
	to, ok := o.layout.TeleportTarget(o.position, target, o.teleportYOffset)
	if !ok {
		return o.position, fmt.Errorf("%w: from %v to room %s", ErrTeleportRefused, o.position, room.Name(target))
	}
	from := o.position
	o.position = to

	o.eventLog.Append(events.New(events.EventTypePlayerTeleported, ActorPlayer, room.Name(target), tick,
		TeleportPayload{From: from, To: to, Target: target}))
	o.logger.Event(string(events.EventTypePlayerTeleported), ActorPlayer,
		fmt.Sprintf("%s -> %s", room.Name(o.layout.RoomIndex(from)), room.Name(target)))
	return to, nil
}

// Resolve looks up the player's room and emits ROOM_CHANGED when it differs from the last one.
// It reports whether the room changed.
func (o *ObserverSystem) Resolve(tick int64) (int, bool) {
	now := o.layout.RoomIndex(o.position)
	if now == o.room {
		return now, false
	}
	prev := o.room
	o.room = now

	o.eventLog.Append(events.New(events.EventTypeRoomChanged, ActorPlayer, room.Name(now), tick, RoomChangedPayload{
		From:     prev,
		To:       now,
		FromName: room.Name(prev),
		ToName:   room.Name(now),
	}))
	o.logger.Event(string(events.EventTypeRoomChanged), ActorPlayer, room.Name(prev)+" -> "+room.Name(now))
	return now, true
}

// Position returns where the player stands.
func (o *ObserverSystem) Position() room.Vec3 {
	return o.position
}

// Room returns the room resolved on the last tick.
func (o *ObserverSystem) Room() int {
	return o.room
}

// State captures the observer for persistence.
func (o *ObserverSystem) State() PlayerState {
	return PlayerState{Position: o.position, Room: o.room}
}

// Restore reapplies a captured state.
func (o *ObserverSystem) Restore(s PlayerState) {
	o.position = s.Position
	o.room = s.Room
}
