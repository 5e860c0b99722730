package engine

import (
	"errors"
	"fmt"

	"github.com/shovit/timerooms/internal/domain/altar"
	"github.com/shovit/timerooms/internal/domain/room"
	"github.com/shovit/timerooms/internal/events"
	"github.com/shovit/timerooms/internal/platform/logger"
)

// ErrNotACrystal is returned when a crystal action is made with something else in hand.
var ErrNotACrystal = errors.New("item is not a crystal")

// ErrDepositRejected is returned when the altar refuses an offering.
var ErrDepositRejected = errors.New("altar rejected the offering")

// CrystalPayload is attached to CRYSTAL_SHATTERED and CRYSTAL_DEPOSITED.
type CrystalPayload struct {
	ItemID   string    `json:"item_id"`
	Tag      string    `json:"tag"`
	Position room.Vec3 `json:"position"`
}

// AltarRewardPayload is attached to ALTAR_REWARD.
type AltarRewardPayload struct {
	RewardID string    `json:"reward_id"`
	Position room.Vec3 `json:"position"`
}

// PausePayload is attached to the PAUSE_* events.
type PausePayload struct {
	Room      int     `json:"room"`
	Remaining float64 `json:"remaining"`
	Reason    string  `json:"reason,omitempty"`
}

// AltarSystem handles crystals: shattering one on the floor freezes room N, and returning one of
// each kind to the altar spawns the reward.
type AltarSystem struct {
	eventLog   *events.EventLog
	logger     *logger.Logger
	clock      *RoomClock
	inventory  *InventorySystem
	altar      *altar.Altar
	rewardName string
	rewardPos  room.Vec3
}

// NewAltarSystem creates the altar manager.
func NewAltarSystem(el *events.EventLog, log *logger.Logger, clock *RoomClock, inv *InventorySystem, rewardName string, rewardPos room.Vec3) *AltarSystem {
	if rewardName == "" {
		rewardName = "reward"
	}
	return &AltarSystem{
		eventLog:   el,
		logger:     log,
		clock:      clock,
		inventory:  inv,
		altar:      altar.New(),
		rewardName: rewardName,
		rewardPos:  rewardPos,
	}
}

// Shatter drops the crystal in hand onto the floor. The crystal is destroyed and a room N
// pause is requested; the clock starts it on the next tick.
func (as *AltarSystem) Shatter(hand int, player room.Vec3, tick int64) error {
	it, err := as.inventory.InHand(hand)
	if err != nil {
		return err
	}
	if it.Kind != ItemCrystal {
		return fmt.Errorf("shatter %s: %w", it.ID, ErrNotACrystal)
	}
	as.inventory.Remove(it.ID)

	as.eventLog.Append(events.New(events.EventTypeCrystalShattered, ActorPlayer, it.ID, tick,
		CrystalPayload{ItemID: it.ID, Tag: it.Name, Position: player}))

	wasPaused := as.clock.Paused()
	as.clock.RequestPause()
	if !wasPaused {
		as.eventLog.Append(events.New(events.EventTypePauseRequested, ActorPlayer, room.Name(room.RoomN), tick,
			PausePayload{Room: room.RoomN, Reason: "crystal " + it.ID}))
	}
	as.logger.Event(string(events.EventTypeCrystalShattered), ActorPlayer, it.ID+" hit the floor")
	return nil
}

// Deposit offers the item in hand to the altar. Rejected items stay in hand.
func (as *AltarSystem) Deposit(hand int, tick int64) (altar.Result, *Item, error) {
	it, err := as.inventory.InHand(hand)
	if err != nil {
		return altar.Result{}, nil, err
	}
	res := as.altar.TryDeposit(altar.Tag(it.Name))
	if !res.Accepted {
		return res, nil, fmt.Errorf("deposit %s: %w", it.ID, ErrDepositRejected)
	}
	as.inventory.Remove(it.ID)
	as.eventLog.Append(events.New(events.EventTypeCrystalDeposited, ActorPlayer, it.ID, tick,
		CrystalPayload{ItemID: it.ID, Tag: it.Name, Position: as.rewardPos}))

	if !res.RewardSpawned {
		return res, nil, nil
	}
	reward := as.inventory.Spawn(ItemReward, as.rewardName, as.rewardPos)
	as.eventLog.Append(events.New(events.EventTypeAltarReward, events.ActorSystem, reward.ID, tick,
		AltarRewardPayload{RewardID: reward.ID, Position: as.rewardPos}))
	as.logger.Event(string(events.EventTypeAltarReward), events.ActorSystem, "both crystals returned")
	return res, reward, nil
}

// Altar returns a copy of the altar state.
func (as *AltarSystem) Altar() altar.Altar {
	return *as.altar
}

// Reset empties the altar.
func (as *AltarSystem) Reset() {
	as.altar.Reset()
}

// Restore reapplies a captured altar.
func (as *AltarSystem) Restore(a altar.Altar) {
	*as.altar = a
}
