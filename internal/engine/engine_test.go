package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shovit/timerooms/internal/domain/altar"
	"github.com/shovit/timerooms/internal/domain/food"
	"github.com/shovit/timerooms/internal/domain/room"
	"github.com/shovit/timerooms/internal/events"
	"github.com/shovit/timerooms/internal/platform/logger"
)

var (
	posS = room.Vec3{X: -12, Y: 1, Z: 0}
	posN = room.Vec3{X: 0, Y: 1, Z: 0}
	posF = room.Vec3{X: 12, Y: 1, Z: 0}
)

// newTestEngine builds an engine with no spawners so each test places its own items.
func newTestEngine(t *testing.T, mutate func(*Config)) (*Engine, *events.EventLog) {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Spawners = nil
	cfg.BroadcastEveryTicks = 1
	if mutate != nil {
		mutate(&cfg)
	}
	el := events.NewEventLog(nil)
	e, err := NewEngine(cfg, el, logger.Discard(), nil)
	require.NoError(t, err)
	return e, el
}

func countType(el *events.EventLog, t events.EventType) int {
	return len(el.GetByType(t))
}

func foodByID(t *testing.T, e *Engine, id string) FoodView {
	t.Helper()
	for _, f := range e.Foods() {
		if f.ID == id {
			return f
		}
	}
	t.Fatalf("food %s not found", id)
	return FoodView{}
}

func TestEngineRejectsBadConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Clock.Presets.Slow.Seconds = -1
	_, err := NewEngine(cfg, events.NewEventLog(nil), logger.Discard(), nil)
	assert.Error(t, err)

	cfg = DefaultConfig()
	cfg.ExposureMode = "sometimes"
	_, err = NewEngine(cfg, events.NewEventLog(nil), logger.Discard(), nil)
	assert.Error(t, err)

	cfg = DefaultConfig()
	cfg.Spawners = []Spawner{{Kind: ItemFood, Name: "durian"}}
	_, err = NewEngine(cfg, events.NewEventLog(nil), logger.Discard(), nil)
	assert.ErrorContains(t, err, "durian")
}

func TestEngineRoomChangeDrivesRates(t *testing.T) {
	e, el := newTestEngine(t, nil)

	e.MovePlayer(posN)
	e.Step(1)
	v := e.Rooms()
	assert.Equal(t, room.RoomN, v.ObserverRoom)
	assert.Equal(t, 3001, v.Rooms[room.RoomF].YearInt)

	e.MovePlayer(posS)
	e.Step(1)
	v = e.Rooms()
	assert.Equal(t, "S", v.ObserverName)
	assert.Equal(t, 3011, v.Rooms[room.RoomF].YearInt) // SuperFast
	assert.Equal(t, 2027, v.Rooms[room.RoomN].YearInt) // Fast

	assert.Equal(t, 2, countType(el, events.EventTypeRoomChanged))
	assert.Equal(t, 2, countType(el, events.EventTypeTimeTick))
}

func TestEngineFoodSpoilsInFastRoom(t *testing.T) {
	e, el := newTestEngine(t, nil)
	e.MovePlayer(posN)

	it, err := e.SpawnFood("wine", posF)
	require.NoError(t, err)
	e.Step(0)

	// Fast room at 1 y/s: 100 years to Aged, 1000 to Spoiled.
	for i := 0; i < 100; i++ {
		e.Step(1)
	}
	f := foodByID(t, e, it.ID)
	assert.Equal(t, food.StateAged, f.State)
	assert.Equal(t, room.RoomF, f.Room)
	assert.Equal(t, 100, f.Exposure)

	for i := 0; i < 900; i++ {
		e.Step(1)
	}
	assert.Equal(t, food.StateSpoiled, foodByID(t, e, it.ID).State)
	assert.Equal(t, 2, countType(el, events.EventTypeFoodStateChanged))
	assert.Equal(t, 1, countType(el, events.EventTypeFoodSpawned))
}

func TestEngineStartOnPickupGatesExposure(t *testing.T) {
	e, el := newTestEngine(t, nil)
	e.MovePlayer(posS)

	apple, err := e.SpawnFood("apple", room.Vec3{X: -11, Y: 1, Z: 0})
	require.NoError(t, err)

	// Observer in S pushes room N at 1 y/s, but the apple has not been touched yet.
	e.Step(1)
	require.False(t, foodByID(t, e, apple.ID).Started)

	_, err = e.Pickup(apple.ID)
	require.NoError(t, err)
	assert.True(t, foodByID(t, e, apple.ID).Started)

	// Carry it into N: held items count in the observer's room.
	e.MovePlayer(posN)
	e.Step(0)
	e.MovePlayer(posS)
	for i := 0; i < 12; i++ {
		e.Step(1) // N runs at Fast while the observer is in S
	}
	e.MovePlayer(posN)
	e.Step(0)

	f := foodByID(t, e, apple.ID)
	assert.Zero(t, f.Exposure, "carried food follows the observer's room, which is S here")

	e.MovePlayer(posF)
	e.Step(0)
	for i := 0; i < 12; i++ {
		e.Step(1) // F at Fast
	}
	f = foodByID(t, e, apple.ID)
	assert.Equal(t, 12, f.Exposure)
	assert.Equal(t, food.StateAged, f.State)

	fired := el.GetByType(events.EventTypeTriggerFired)
	require.Len(t, fired, 1)
	assert.Equal(t, "apple_aged", fired[0].Payload.(TriggerFiredPayload).TriggerID)
}

func TestEngineDroppedFoodAgesInItsRoom(t *testing.T) {
	e, _ := newTestEngine(t, func(c *Config) { c.PickupRange = 0 })
	e.MovePlayer(posF)

	wine, err := e.SpawnFood("wine", posN)
	require.NoError(t, err)
	e.Step(0)
	for i := 0; i < 10; i++ {
		e.Step(1)
	}
	// Observer in F: room N runs at Slow, far below a year.
	assert.Zero(t, foodByID(t, e, wine.ID).Exposure)

	_, err = e.Pickup(wine.ID)
	require.NoError(t, err)
	e.Step(0)
	_, err = e.Drop(HandLeft)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		e.Step(1)
	}
	f := foodByID(t, e, wine.ID)
	assert.Equal(t, room.RoomF, f.Room)
	assert.Equal(t, 10, f.Exposure)
}

func TestEnginePickupRules(t *testing.T) {
	e, _ := newTestEngine(t, nil)
	e.MovePlayer(posN)

	a, _ := e.SpawnFood("apple", posN)
	b, _ := e.SpawnFood("cheese", posN)
	c, _ := e.SpawnFood("wine", posN)
	far, _ := e.SpawnFood("wine", posF)

	_, err := e.Pickup(far.ID)
	assert.ErrorIs(t, err, ErrOutOfReach)

	got, err := e.Pickup(a.ID)
	require.NoError(t, err)
	assert.Equal(t, HandLeft, got.Hand)
	got, err = e.Pickup(b.ID)
	require.NoError(t, err)
	assert.Equal(t, HandRight, got.Hand)

	_, err = e.Pickup(c.ID)
	assert.ErrorIs(t, err, ErrHandsFull)
	_, err = e.Pickup("nope")
	assert.ErrorIs(t, err, ErrItemNotFound)

	assert.Equal(t, [2]string{a.ID, b.ID}, e.Player().Hands)

	_, err = e.Drop(HandLeft)
	require.NoError(t, err)
	_, err = e.Drop(HandLeft)
	assert.ErrorIs(t, err, ErrHandEmpty)
	_, err = e.Drop(5)
	assert.ErrorIs(t, err, ErrInvalidHand)
}

func TestEngineSpawnerRespawnsOnPickup(t *testing.T) {
	e, _ := newTestEngine(t, func(c *Config) {
		c.Spawners = []Spawner{{Kind: ItemFood, Name: "apple", Position: posN, Respawn: true}}
	})
	e.MovePlayer(posN)

	require.Len(t, e.Foods(), 1)
	_, err := e.Pickup("apple-1")
	require.NoError(t, err)

	foods := e.Foods()
	require.Len(t, foods, 2)
	assert.Equal(t, "apple-2", foods[1].ID)
	assert.False(t, foods[1].Started)
}

func TestEngineCrystalShatterPausesRoomN(t *testing.T) {
	e, el := newTestEngine(t, func(c *Config) {
		c.Spawners = []Spawner{{Kind: ItemCrystal, Name: string(altar.TagFCrystal), Position: posF}}
	})
	e.MovePlayer(posF)
	e.Step(0)

	_, err := e.Pickup("FCrystal-1")
	require.NoError(t, err)
	_, err = e.Drop(HandLeft)
	require.NoError(t, err)
	assert.Empty(t, e.Items())

	e.Step(1)
	v := e.Rooms()
	require.True(t, v.PauseActive)
	frozen := v.Rooms[room.RoomN].Year
	for i := 0; i < 29; i++ {
		e.Step(1)
		assert.Equal(t, frozen, e.Rooms().Rooms[room.RoomN].Year)
	}
	assert.False(t, e.Rooms().PauseActive)

	assert.Equal(t, 1, countType(el, events.EventTypeCrystalShattered))
	assert.Equal(t, 1, countType(el, events.EventTypePauseRequested))
	assert.Equal(t, 1, countType(el, events.EventTypePauseStarted))
	assert.Equal(t, 1, countType(el, events.EventTypePauseEnded))
}

func TestEngineDropCrystalRequiresCrystal(t *testing.T) {
	e, _ := newTestEngine(t, nil)
	e.MovePlayer(posN)
	a, _ := e.SpawnFood("apple", posN)
	_, err := e.Pickup(a.ID)
	require.NoError(t, err)

	assert.ErrorIs(t, e.DropCrystal(HandLeft), ErrNotACrystal)
	assert.ErrorIs(t, e.DropCrystal(HandRight), ErrHandEmpty)
}

func TestEngineCancelPause(t *testing.T) {
	e, el := newTestEngine(t, nil)
	assert.False(t, e.CancelPause())

	e.RequestPause()
	e.RequestPause()
	e.Step(1)
	require.True(t, e.Rooms().PauseActive)
	e.RequestPause() // already running

	assert.True(t, e.CancelPause())
	assert.False(t, e.Rooms().PauseActive)
	assert.Equal(t, 2, countType(el, events.EventTypePauseRequested))
	assert.Equal(t, 1, countType(el, events.EventTypePauseCancelled))
}

func TestEngineAltarReward(t *testing.T) {
	e, el := newTestEngine(t, func(c *Config) {
		c.PickupRange = 0
		c.Spawners = []Spawner{
			{Kind: ItemCrystal, Name: string(altar.TagSCrystal), Position: posS},
			{Kind: ItemCrystal, Name: string(altar.TagFCrystal), Position: posF},
			{Kind: ItemFood, Name: "apple", Position: posN},
		}
	})

	_, err := e.Pickup("apple-1")
	require.NoError(t, err)
	_, err = e.Deposit(HandLeft)
	assert.ErrorIs(t, err, ErrDepositRejected)
	_, err = e.Drop(HandLeft)
	require.NoError(t, err)

	_, err = e.Pickup("SCrystal-1")
	require.NoError(t, err)
	_, err = e.Pickup("FCrystal-1")
	require.NoError(t, err)

	res, err := e.Deposit(HandLeft)
	require.NoError(t, err)
	assert.True(t, res.Accepted)
	assert.False(t, res.RewardSpawned)

	res, err = e.Deposit(HandRight)
	require.NoError(t, err)
	assert.True(t, res.RewardSpawned)

	assert.True(t, e.Altar().RewardSpawned)
	assert.Equal(t, 1, countType(el, events.EventTypeAltarReward))
	assert.Equal(t, 2, countType(el, events.EventTypeCrystalDeposited))

	var rewards int
	for _, it := range e.Items() {
		if it.Kind == ItemReward {
			rewards++
		}
	}
	assert.Equal(t, 1, rewards)
}

func TestEngineKitchen(t *testing.T) {
	e, el := newTestEngine(t, nil)

	_, err := e.SubmitSandwich()
	assert.Error(t, err)

	o, err := e.StartNewOrder(1)
	require.NoError(t, err)
	assert.Equal(t, "Cheese Toastie", o.Name)

	for _, id := range []string{"bread", "cheese"} {
		done, err := e.AddIngredient(id)
		require.NoError(t, err)
		assert.False(t, done)
	}
	done, err := e.AddIngredient("bread")
	require.NoError(t, err)
	assert.True(t, done)
	assert.True(t, e.Kitchen().Complete)

	s, err := e.SubmitSandwich()
	require.NoError(t, err)
	assert.Equal(t, 3, s.Stars)

	k := e.Kitchen()
	assert.Equal(t, 1, k.Deliveries)
	assert.Equal(t, 3, k.TotalStars)
	assert.Empty(t, k.Stack)

	assert.Equal(t, 1, countType(el, events.EventTypeOrderStarted))
	assert.Equal(t, 3, countType(el, events.EventTypeIngredientAdded))
	assert.Equal(t, 1, countType(el, events.EventTypeSandwichComplete))
	assert.Equal(t, 1, countType(el, events.EventTypeSandwichSubmitted))
}

func TestEngineTeleport(t *testing.T) {
	e, el := newTestEngine(t, nil)
	e.MovePlayer(room.Vec3{X: -14.5, Y: 1, Z: 4})

	pos, err := e.Teleport(room.RoomF)
	require.NoError(t, err)
	assert.InDelta(t, 9.5, pos.X, 1e-9)
	assert.InDelta(t, 4, pos.Z, 1e-9)

	e.Step(0)
	assert.Equal(t, room.RoomF, e.Rooms().ObserverRoom)
	assert.Equal(t, 1, countType(el, events.EventTypePlayerTeleported))

	e.MovePlayer(room.Vec3{X: 100})
	_, err = e.Teleport(room.RoomN)
	assert.ErrorIs(t, err, ErrTeleportRefused)
}

func TestEngineSnapshotRestore(t *testing.T) {
	e, _ := newTestEngine(t, func(c *Config) { c.PickupRange = 0 })
	e.MovePlayer(posN)
	wine, _ := e.SpawnFood("wine", posF)
	e.Step(0)
	for i := 0; i < 150; i++ {
		e.Step(1)
	}
	apple, _ := e.SpawnFood("apple", posN)
	_, err := e.Pickup(apple.ID)
	require.NoError(t, err)
	e.RequestPause()
	e.Step(1)
	_, err = e.StartNewOrder(0)
	require.NoError(t, err)
	_, err = e.AddIngredient("bread")
	require.NoError(t, err)

	saved := e.Snapshot()

	other, _ := newTestEngine(t, nil)
	other.Restore(saved)

	assert.Equal(t, e.Rooms(), other.Rooms())
	assert.Equal(t, e.Foods(), other.Foods())
	assert.Equal(t, e.Player(), other.Player())
	assert.Equal(t, e.Kitchen().Stack, other.Kitchen().Stack)
	assert.Equal(t, food.StateAged, foodByID(t, other, wine.ID).State)

	// Both continue identically.
	for i := 0; i < 5; i++ {
		e.Step(1)
		other.Step(1)
	}
	assert.Equal(t, e.Foods(), other.Foods())
}

func TestResumeEngineDoesNotRespawnTheScene(t *testing.T) {
	e, err := NewEngine(DefaultConfig(), events.NewEventLog(nil), logger.Discard(), nil)
	require.NoError(t, err)
	e.MovePlayer(posN)
	e.Step(0)
	_, err = e.Pickup("apple-1")
	require.NoError(t, err)
	e.Step(1)
	saved := e.Snapshot()

	el := events.NewEventLog(nil)
	resumed, err := ResumeEngine(DefaultConfig(), saved, el, logger.Discard(), nil)
	require.NoError(t, err)

	assert.Zero(t, countType(el, events.EventTypeFoodSpawned))
	assert.Equal(t, e.Items(), resumed.Items())
	assert.Equal(t, e.Foods(), resumed.Foods())
	assert.Equal(t, "apple-1", resumed.Player().Hands[HandLeft])

	// The spawners still work: picking up the waiting apple places the next one.
	_, err = resumed.Pickup("apple-2")
	require.NoError(t, err)
	spawned := el.GetByType(events.EventTypeFoodSpawned)
	require.Len(t, spawned, 1)
	assert.Equal(t, "apple-3", spawned[0].TargetID)
}

func TestEngineRestoreBackupKeepsClocksAndExposure(t *testing.T) {
	e, err := NewEngine(DefaultConfig(), events.NewEventLog(nil), logger.Discard(), nil)
	require.NoError(t, err)
	e.MovePlayer(posS)
	e.Step(0)
	for i := 0; i < 12; i++ {
		e.Step(1)
	}
	saved := e.Snapshot()
	backup := Backup{
		Tick:  saved.Tick,
		Clock: saved.Clock,
		Foods: append(saved.Foods, FoodSnapshot{ID: "wine-7", Kind: "wine"}),
	}

	fresh, err := NewEngine(DefaultConfig(), events.NewEventLog(nil), logger.Discard(), nil)
	require.NoError(t, err)
	assert.Equal(t, 1, fresh.RestoreBackup(backup))

	restored := fresh.Snapshot()
	assert.Equal(t, saved.Tick, restored.Tick)
	assert.Equal(t, saved.Clock, restored.Clock)
	assert.Equal(t, saved.Foods, restored.Foods)
}
