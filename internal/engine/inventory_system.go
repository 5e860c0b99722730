package engine

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/shovit/timerooms/internal/domain/room"
	"github.com/shovit/timerooms/internal/events"
	"github.com/shovit/timerooms/internal/platform/logger"
)

// ItemKind says which system owns an item's behavior.
type ItemKind string

const (
	ItemFood    ItemKind = "FOOD"
	ItemCrystal ItemKind = "CRYSTAL"
	ItemReward  ItemKind = "REWARD"
)

// Hands of the player.
const (
	HandLeft  = 0
	HandRight = 1
	NoHand    = -1
	handCount = 2
)

var (
	ErrItemNotFound = errors.New("item not found")
	ErrHandsFull    = errors.New("both hands are full")
	ErrHandEmpty    = errors.New("hand is empty")
	ErrOutOfReach   = errors.New("item is out of reach")
	ErrInvalidHand  = errors.New("invalid hand")
)

// Item is anything in the world the player can hold.
type Item struct {
	ID       string    `json:"id"`
	Kind     ItemKind  `json:"kind"`
	Name     string    `json:"name"` // food kind or crystal tag
	Position room.Vec3 `json:"position"`
	Hand     int       `json:"hand"`
	Spawner  int       `json:"spawner"` // index of the spawner that made it, or -1
}

// Held reports whether the item is in one of the player's hands.
func (it Item) Held() bool {
	return it.Hand != NoHand
}

// Spawner keeps one item of a kind waiting at a spot and replaces it once it is picked up.
type Spawner struct {
	Kind     ItemKind  `json:"kind" yaml:"kind" jsonschema:"enum=FOOD,enum=CRYSTAL,enum=REWARD"`
	Name     string    `json:"name" yaml:"name"`
	Position room.Vec3 `json:"position" yaml:"position"`
	Respawn  bool      `json:"respawn" yaml:"respawn"`
}

// ItemTransferPayload is attached to ITEM_PICKED_UP and ITEM_DROPPED.
type ItemTransferPayload struct {
	ItemID   string    `json:"item_id"`
	Kind     ItemKind  `json:"kind"`
	Name     string    `json:"name"`
	Hand     int       `json:"hand"`
	Position room.Vec3 `json:"position"`
}

// InventoryState is the serializable inventory.
type InventoryState struct {
	Items []Item         `json:"items"`
	Seq   map[string]int `json:"seq"`
}

// InventorySystem owns every item's location and the player's two hands.
type InventorySystem struct {
	eventLog    *events.EventLog
	logger      *logger.Logger
	layout      room.Lookup
	pickupRange float64

	items    map[string]*Item
	hands    [handCount]string
	seq      map[string]int
	spawners []Spawner
}

// NewInventorySystem creates an empty inventory. pickupRange <= 0 disables the reach check.
func NewInventorySystem(el *events.EventLog, log *logger.Logger, layout room.Lookup, pickupRange float64) *InventorySystem {
	return &InventorySystem{
		eventLog:    el,
		logger:      log,
		layout:      layout,
		pickupRange: pickupRange,
		items:       make(map[string]*Item),
		seq:         make(map[string]int),
	}
}

// AddSpawners registers spawners and fills each with its first item.
func (is *InventorySystem) AddSpawners(spawners []Spawner) []*Item {
	var out []*Item
	for _, sp := range spawners {
		is.spawners = append(is.spawners, sp)
		out = append(out, is.spawn(sp.Kind, sp.Name, sp.Position, len(is.spawners)-1))
	}
	return out
}

// SetSpawners registers spawners without placing their items. Used when the items come from a
// saved session.
func (is *InventorySystem) SetSpawners(spawners []Spawner) {
	is.spawners = append(is.spawners[:0], spawners...)
}

// Spawn places a new free-standing item.
func (is *InventorySystem) Spawn(kind ItemKind, name string, pos room.Vec3) *Item {
	return is.spawn(kind, name, pos, -1)
}

func (is *InventorySystem) spawn(kind ItemKind, name string, pos room.Vec3, spawner int) *Item {
	is.seq[name]++
	it := &Item{
		ID:       fmt.Sprintf("%s-%d", name, is.seq[name]),
		Kind:     kind,
		Name:     name,
		Position: pos,
		Hand:     NoHand,
		Spawner:  spawner,
	}
	is.items[it.ID] = it
	return it
}

// Get returns a copy of an item.
func (is *InventorySystem) Get(id string) (Item, bool) {
	it, ok := is.items[id]
	if !ok {
		return Item{}, false
	}
	return *it, true
}

// Items returns copies of all items sorted by id.
func (is *InventorySystem) Items() []Item {
	out := make([]Item, 0, len(is.items))
	for _, it := range is.items {
		out = append(out, *it)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Hands returns the ids held in the left and right hand ("" when empty).
func (is *InventorySystem) Hands() [handCount]string {
	return is.hands
}

// InHand returns the item in a hand.
func (is *InventorySystem) InHand(hand int) (Item, error) {
	if hand < 0 || hand >= handCount {
		return Item{}, ErrInvalidHand
	}
	id := is.hands[hand]
	if id == "" {
		return Item{}, ErrHandEmpty
	}
	return *is.items[id], nil
}

// RoomOf returns the room an item is standing in. Held items are outside every room, so their
// exposure is counted in the observer's room.
func (is *InventorySystem) RoomOf(id string) int {
	it, ok := is.items[id]
	if !ok || it.Held() {
		return room.NoRoom
	}
	return is.layout.RoomIndex(it.Position)
}

// Pickup moves an item into the first free hand, left first. If the item came from a spawner
// with respawn enabled, a fresh one appears in its place.
func (is *InventorySystem) Pickup(id string, player room.Vec3, tick int64) (Item, *Item, error) {
	it, ok := is.items[id]
	if !ok {
		return Item{}, nil, fmt.Errorf("pickup %s: %w", id, ErrItemNotFound)
	}
	if it.Held() {
		return *it, nil, nil
	}

	hand := NoHand
	for h := 0; h < handCount; h++ {
		if is.hands[h] == "" {
			hand = h
			break
		}
	}
	if hand == NoHand {
		return Item{}, nil, ErrHandsFull
	}
	if is.pickupRange > 0 && distance(player, it.Position) > is.pickupRange {
		return Item{}, nil, fmt.Errorf("pickup %s: %w", id, ErrOutOfReach)
	}

	it.Hand = hand
	it.Position = player
	is.hands[hand] = it.ID

	var respawned *Item
	if it.Spawner >= 0 && it.Spawner < len(is.spawners) && is.spawners[it.Spawner].Respawn {
		sp := is.spawners[it.Spawner]
		respawned = is.spawn(sp.Kind, sp.Name, sp.Position, it.Spawner)
		it.Spawner = -1
	}

	is.emit(events.EventTypeItemPickedUp, *it, tick)
	is.logger.Info(fmt.Sprintf("[INVENTORY] Picked up %s into hand %d", it.ID, hand))
	return *it, respawned, nil
}

// Drop releases whatever is in hand at the player's position.
func (is *InventorySystem) Drop(hand int, player room.Vec3, tick int64) (Item, error) {
	it, err := is.release(hand, player)
	if err != nil {
		return Item{}, err
	}
	is.emit(events.EventTypeItemDropped, *it, tick)
	is.logger.Info(fmt.Sprintf("[INVENTORY] Dropped %s", it.ID))
	return *it, nil
}

// Remove takes an item out of the world, emptying its hand if held.
func (is *InventorySystem) Remove(id string) {
	it, ok := is.items[id]
	if !ok {
		return
	}
	if it.Held() {
		is.hands[it.Hand] = ""
	}
	delete(is.items, id)
}

// FollowPlayer keeps held items at the player's position.
func (is *InventorySystem) FollowPlayer(player room.Vec3) {
	for _, id := range is.hands {
		if id != "" {
			is.items[id].Position = player
		}
	}
}

func (is *InventorySystem) release(hand int, player room.Vec3) (*Item, error) {
	if hand < 0 || hand >= handCount {
		return nil, ErrInvalidHand
	}
	id := is.hands[hand]
	if id == "" {
		return nil, ErrHandEmpty
	}
	it := is.items[id]
	it.Hand = NoHand
	it.Position = player
	is.hands[hand] = ""
	return it, nil
}

func (is *InventorySystem) emit(t events.EventType, it Item, tick int64) {
	is.eventLog.Append(events.New(t, ActorPlayer, it.ID, tick, ItemTransferPayload{
		ItemID:   it.ID,
		Kind:     it.Kind,
		Name:     it.Name,
		Hand:     it.Hand,
		Position: it.Position,
	}))
}

// State captures the inventory for persistence.
func (is *InventorySystem) State() InventoryState {
	seq := make(map[string]int, len(is.seq))
	for k, v := range is.seq {
		seq[k] = v
	}
	return InventoryState{Items: is.Items(), Seq: seq}
}

// Restore replaces the inventory with a captured state. Spawners are kept.
func (is *InventorySystem) Restore(s InventoryState) {
	is.items = make(map[string]*Item, len(s.Items))
	is.hands = [handCount]string{}
	for _, it := range s.Items {
		it := it
		if it.Hand < NoHand || it.Hand >= handCount {
			it.Hand = NoHand
		}
		if it.Held() {
			if is.hands[it.Hand] != "" {
				it.Hand = NoHand
			} else {
				is.hands[it.Hand] = it.ID
			}
		}
		is.items[it.ID] = &it
	}
	is.seq = make(map[string]int, len(s.Seq))
	for k, v := range s.Seq {
		is.seq[k] = v
	}
}

func distance(a, b room.Vec3) float64 {
	dx, dy, dz := a.X-b.X, a.Y-b.Y, a.Z-b.Z
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}
