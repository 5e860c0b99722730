package engine

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/shovit/timerooms/internal/domain/altar"
	"github.com/shovit/timerooms/internal/domain/food"
	"github.com/shovit/timerooms/internal/domain/room"
	"github.com/shovit/timerooms/internal/domain/sandwich"
	"github.com/shovit/timerooms/internal/events"
	"github.com/shovit/timerooms/internal/platform/logger"
	"github.com/shovit/timerooms/internal/platform/metrics"
)

// Config wires a session. The config package builds it from YAML.
type Config struct {
	Clock        ClockConfig
	ExposureMode ExposureMode

	Layout          *room.Layout
	PlayerStart     room.Vec3
	TeleportYOffset float64
	PickupRange     float64

	Catalog  *food.Catalog
	Spawners []Spawner

	AltarRewardName string
	AltarPosition   room.Vec3

	Orders  []sandwich.Order
	Kitchen sandwich.Settings
	Seed    int64

	TickRate            time.Duration
	TimeScale           float64
	BroadcastEveryTicks int
}

// DefaultConfig is the default scene: the three default rooms, an apple and a cheese on the
// normal room's table, a wine in the slow room and a crystal in each outer room.
func DefaultConfig() Config {
	return Config{
		Clock:           DefaultClockConfig(),
		ExposureMode:    ExposureLifetime,
		Layout:          room.DefaultLayout(),
		PlayerStart:     room.Vec3{X: 0, Y: 1, Z: 0},
		TeleportYOffset: 0.05,
		PickupRange:     3,
		Catalog:         food.NewCatalog(food.DefaultDefinitions()),
		Spawners: []Spawner{
			{Kind: ItemFood, Name: "apple", Position: room.Vec3{X: 1, Y: 1, Z: 1}, Respawn: true},
			{Kind: ItemFood, Name: "cheese", Position: room.Vec3{X: -1, Y: 1, Z: 1}},
			{Kind: ItemFood, Name: "wine", Position: room.Vec3{X: -12, Y: 1, Z: 2}},
			{Kind: ItemCrystal, Name: string(altar.TagSCrystal), Position: room.Vec3{X: -14, Y: 1, Z: -3}},
			{Kind: ItemCrystal, Name: string(altar.TagFCrystal), Position: room.Vec3{X: 14, Y: 1, Z: -3}},
		},
		AltarRewardName: "time_key",
		AltarPosition:   room.Vec3{X: 0, Y: 1, Z: -4},
		Orders: []sandwich.Order{
			{Name: "BLT", IngredientIDs: []string{"bread", "bacon", "lettuce", "tomato", "bread"}},
			{Name: "Cheese Toastie", IngredientIDs: []string{"bread", "cheese", "bread"}},
		},
		Kitchen:             sandwich.DefaultSettings(),
		Seed:                1,
		TickRate:            DefaultTickRate,
		TimeScale:           1,
		BroadcastEveryTicks: 20,
	}
}

// RoomView is the read model of the three clocks.
type RoomView struct {
	Index          int     `json:"index"`
	Name           string  `json:"name"`
	Year           float64 `json:"year"`
	YearInt        int     `json:"year_int"`
	YearsPerSecond float64 `json:"years_per_second"`
	Paused         bool    `json:"paused"`
}

// RoomsView is served by /api/rooms.
type RoomsView struct {
	Tick           int64      `json:"tick"`
	ObserverRoom   int        `json:"observer_room"`
	ObserverName   string     `json:"observer_name"`
	Rooms          []RoomView `json:"rooms"`
	PauseActive    bool       `json:"pause_active"`
	PauseRequested bool       `json:"pause_requested"`
	PauseRemaining float64    `json:"pause_remaining"`
}

// PlayerView is the observer with the contents of both hands.
type PlayerView struct {
	Position room.Vec3         `json:"position"`
	Room     int               `json:"room"`
	Hands    [handCount]string `json:"hands"`
}

// Session is everything needed to resume a simulation.
type Session struct {
	SavedAt   time.Time
	Tick      int64
	Clock     ClockState
	Player    PlayerState
	Inventory InventoryState
	Foods     []FoodSnapshot
	Altar     altar.Altar
	Kitchen   KitchenState
}

// Engine is the central orchestrator: it owns the clock, resolves the observer, and drives every
// system in tick order. One mutex serializes ticks and commands.
type Engine struct {
	mu       sync.RWMutex
	cfg      Config
	eventLog *events.EventLog
	logger   *logger.Logger
	metrics  *metrics.Collector
	ticker   *Ticker
	started  atomic.Bool

	clock *RoomClock
	tick  int64

	// Sub-systems
	observer  *ObserverSystem
	inventory *InventorySystem
	spoilage  *SpoilageSystem
	altar     *AltarSystem
	kitchen   *KitchenSystem
}

// NewEngine validates cfg, builds every system and places the initial items.
func NewEngine(cfg Config, eventLog *events.EventLog, log *logger.Logger, clk clockwork.Clock) (*Engine, error) {
	e, err := newEngine(cfg, eventLog, log, clk)
	if err != nil {
		return nil, err
	}
	for _, it := range e.inventory.AddSpawners(e.cfg.Spawners) {
		if err := e.registerItem(*it); err != nil {
			return nil, err
		}
	}
	return e, nil
}

// ResumeEngine builds the engine of a saved session. The spawners are registered for respawns
// but nothing is placed, so the log only records what happens after the resume.
func ResumeEngine(cfg Config, s Session, eventLog *events.EventLog, log *logger.Logger, clk clockwork.Clock) (*Engine, error) {
	e, err := newEngine(cfg, eventLog, log, clk)
	if err != nil {
		return nil, err
	}
	e.inventory.SetSpawners(e.cfg.Spawners)
	e.Restore(s)
	return e, nil
}

func newEngine(cfg Config, eventLog *events.EventLog, log *logger.Logger, clk clockwork.Clock) (*Engine, error) {
	clock, err := NewRoomClock(cfg.Clock)
	if err != nil {
		return nil, err
	}
	mode, err := ParseExposureMode(string(cfg.ExposureMode))
	if err != nil {
		return nil, err
	}
	cfg.ExposureMode = mode
	if cfg.Layout == nil {
		cfg.Layout = room.DefaultLayout()
	}
	if cfg.Catalog == nil {
		cfg.Catalog = food.NewCatalog(food.DefaultDefinitions())
	}
	if cfg.BroadcastEveryTicks < 1 {
		cfg.BroadcastEveryTicks = 1
	}

	e := &Engine{
		cfg:      cfg,
		eventLog: eventLog,
		logger:   log,
		metrics:  metrics.Get(),
		clock:    clock,
	}
	e.observer = NewObserverSystem(eventLog, log, cfg.Layout, cfg.PlayerStart, cfg.TeleportYOffset)
	e.inventory = NewInventorySystem(eventLog, log, cfg.Layout, cfg.PickupRange)
	e.spoilage = NewSpoilageSystem(eventLog, log, cfg.Catalog, mode, e.inventory)
	e.altar = NewAltarSystem(eventLog, log, clock, e.inventory, cfg.AltarRewardName, cfg.AltarPosition)
	e.kitchen = NewKitchenSystem(eventLog, log,
		sandwich.NewKitchen(cfg.Orders, cfg.Kitchen, rand.New(rand.NewSource(cfg.Seed))))
	e.ticker = NewTicker(clk, cfg.TickRate, cfg.TimeScale, e.Step, log)
	return e, nil
}

func (e *Engine) registerItem(it Item) error {
	if it.Kind != ItemFood {
		return nil
	}
	if _, err := e.spoilage.Register(it, e.tick); err != nil {
		e.inventory.Remove(it.ID)
		return err
	}
	return nil
}

// Start runs the ticker until ctx is cancelled or Stop is called.
func (e *Engine) Start(ctx context.Context) {
	e.logger.Info("Starting room clock engine...")
	e.started.Store(true)
	go e.ticker.Start(ctx)
}

// Stop halts the ticker and blocks until its last step has returned. After Stop no step runs
// on its own, so Snapshot reports the final state. Safe to call when Start was never called.
func (e *Engine) Stop() {
	e.ticker.Stop()
	if e.started.Load() {
		<-e.ticker.Done()
	}
}

// Step advances the simulation by dt real seconds: resolve the observer's room, advance the
// clock, then update every tracker against the new years.
func (e *Engine) Step(dt float64) {
	start := time.Now()
	e.mu.Lock()
	defer func() {
		e.mu.Unlock()
		e.metrics.RecordTick(time.Since(start))
	}()

	e.tick++
	observer, changed := e.observer.Resolve(e.tick)
	if changed {
		e.metrics.RecordRoomChange()
	}
	e.inventory.FollowPlayer(e.observer.Position())

	step := e.clock.Advance(dt, observer)
	if step.PauseStarted {
		e.metrics.RecordPause()
		e.eventLog.Append(events.New(events.EventTypePauseStarted, events.ActorSystem, room.Name(room.RoomN), e.tick,
			PausePayload{Room: room.RoomN, Remaining: e.cfg.Clock.PauseSec}))
		e.logger.Event(string(events.EventTypePauseStarted), events.ActorSystem, "room N frozen")
	}
	if step.PauseEnded {
		e.eventLog.Append(events.New(events.EventTypePauseEnded, events.ActorSystem, room.Name(room.RoomN), e.tick,
			PausePayload{Room: room.RoomN}))
		e.logger.Event(string(events.EventTypePauseEnded), events.ActorSystem, "room N resumed")
	}

	tickEvent := events.New(events.EventTypeTimeTick, events.ActorSystem, "", e.tick, e.tickPayload(dt, observer))
	e.dispatch(tickEvent)
	if e.tick%int64(e.cfg.BroadcastEveryTicks) == 0 {
		e.eventLog.Append(tickEvent)
	}
}

func (e *Engine) tickPayload(dt float64, observer int) TimeTickPayload {
	st := e.clock.State()
	p := TimeTickPayload{
		TickNumber:     e.tick,
		DT:             dt,
		ObserverRoom:   observer,
		Years:          st.Years,
		YearsInt:       e.clock.YearsInt(),
		Paused:         e.clock.Paused(),
		PauseRemaining: e.clock.PauseRemaining(),
	}
	for i := range p.Rates {
		p.Rates[i] = e.clock.YearsPerSecond(i, observer)
		if i == room.RoomN && p.Paused {
			p.Rates[i] = 0
		}
	}
	return p
}

// dispatch routes a GameEvent to the systems that react to it.
func (e *Engine) dispatch(event events.GameEvent) {
	switch event.Type {
	case events.EventTypeTimeTick:
		e.spoilage.OnTimeTick(event)
	}
}

// MovePlayer sets the observer's position. The room change is picked up on the next tick.
func (e *Engine) MovePlayer(pos room.Vec3) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.observer.Move(pos)
	e.inventory.FollowPlayer(pos)
}

// Teleport moves the player into the target room, keeping the relative position.
func (e *Engine) Teleport(target int) (room.Vec3, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	pos, err := e.observer.Teleport(target, e.tick)
	if err != nil {
		return pos, err
	}
	e.inventory.FollowPlayer(pos)
	return pos, nil
}

// Pickup puts an item into a free hand. Start-on-pickup food begins ageing from here.
func (e *Engine) Pickup(itemID string) (Item, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	it, respawned, err := e.inventory.Pickup(itemID, e.observer.Position(), e.tick)
	if err != nil {
		return Item{}, err
	}
	if it.Kind == ItemFood {
		e.spoilage.OnPickedUp(it.ID)
	}
	if respawned != nil {
		if err := e.registerItem(*respawned); err != nil {
			e.logger.Error("respawn failed: " + err.Error())
		}
	}
	return it, nil
}

// Drop releases the item in hand. A crystal shatters on the floor and requests the pause.
func (e *Engine) Drop(hand int) (Item, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	it, err := e.inventory.InHand(hand)
	if err != nil {
		return Item{}, err
	}
	if it.Kind == ItemCrystal {
		return it, e.altar.Shatter(hand, e.observer.Position(), e.tick)
	}
	return e.inventory.Drop(hand, e.observer.Position(), e.tick)
}

// DropCrystal shatters the crystal in hand. Anything else in that hand is an error.
func (e *Engine) DropCrystal(hand int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.altar.Shatter(hand, e.observer.Position(), e.tick)
}

// Deposit offers the item in hand to the altar.
func (e *Engine) Deposit(hand int) (altar.Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	res, _, err := e.altar.Deposit(hand, e.tick)
	return res, err
}

// SpawnFood places a new piece of food.
func (e *Engine) SpawnFood(kind string, pos room.Vec3) (Item, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.cfg.Catalog.Get(food.Kind(kind)); !ok {
		return Item{}, fmt.Errorf("spawn food: unknown kind %q", kind)
	}
	it := e.inventory.Spawn(ItemFood, kind, pos)
	if err := e.registerItem(*it); err != nil {
		return Item{}, err
	}
	return *it, nil
}

// RequestPause asks the clock to freeze room N from the next tick.
func (e *Engine) RequestPause() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.clock.Paused() {
		return
	}
	e.clock.RequestPause()
	e.eventLog.Append(events.New(events.EventTypePauseRequested, ActorPlayer, room.Name(room.RoomN), e.tick,
		PausePayload{Room: room.RoomN, Reason: "api"}))
}

// CancelPause unfreezes room N immediately. It reports whether anything was cancelled.
func (e *Engine) CancelPause() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	remaining := e.clock.PauseRemaining()
	if !e.clock.CancelPause() {
		return false
	}
	e.eventLog.Append(events.New(events.EventTypePauseCancelled, ActorPlayer, room.Name(room.RoomN), e.tick,
		PausePayload{Room: room.RoomN, Remaining: remaining}))
	return true
}

// StartNewOrder starts a sandwich order; a negative index picks one at random.
func (e *Engine) StartNewOrder(index int) (sandwich.Order, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.kitchen.StartNewOrder(index, e.tick)
}

// AddIngredient stacks an ingredient on the current sandwich.
func (e *Engine) AddIngredient(id string) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.kitchen.AddIngredient(id, e.tick)
}

// SubmitSandwich delivers the current sandwich and scores it.
func (e *Engine) SubmitSandwich() (sandwich.Score, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.kitchen.Submit(e.tick)
}

// Rooms returns the clocks as seen by the observer.
func (e *Engine) Rooms() RoomsView {
	e.mu.RLock()
	defer e.mu.RUnlock()

	observer := e.observer.Room()
	p := e.tickPayload(0, observer)
	st := e.clock.State()
	v := RoomsView{
		Tick:           e.tick,
		ObserverRoom:   observer,
		ObserverName:   room.Name(observer),
		PauseActive:    st.Pause.Active,
		PauseRequested: st.Pause.Requested,
		PauseRemaining: e.clock.PauseRemaining(),
	}
	for i := 0; i < room.Count; i++ {
		v.Rooms = append(v.Rooms, RoomView{
			Index:          i,
			Name:           room.Name(i),
			Year:           p.Years[i],
			YearInt:        p.YearsInt[i],
			YearsPerSecond: p.Rates[i],
			Paused:         i == room.RoomN && p.Paused,
		})
	}
	return v
}

// Foods returns every tracked food.
func (e *Engine) Foods() []FoodView {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.spoilage.Views()
}

// Kitchen returns the sandwich counter.
func (e *Engine) Kitchen() KitchenView {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.kitchen.View()
}

// Player returns the observer and what it carries.
func (e *Engine) Player() PlayerView {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return PlayerView{Position: e.observer.Position(), Room: e.observer.Room(), Hands: e.inventory.Hands()}
}

// Items returns every item in the world.
func (e *Engine) Items() []Item {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.inventory.Items()
}

// Altar returns the altar state.
func (e *Engine) Altar() altar.Altar {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.altar.Altar()
}

// Tick returns the number of steps taken.
func (e *Engine) Tick() int64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.tick
}

// GetEventLog exposes the event log to the network layer.
func (e *Engine) GetEventLog() *events.EventLog {
	return e.eventLog
}

// Snapshot captures the whole session.
func (e *Engine) Snapshot() Session {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return Session{
		SavedAt:   time.Now().UTC(),
		Tick:      e.tick,
		Clock:     e.clock.State(),
		Player:    e.observer.State(),
		Inventory: e.inventory.State(),
		Foods:     e.spoilage.Snapshot(),
		Altar:     e.altar.Altar(),
		Kitchen:   e.kitchen.State(),
	}
}

// Restore resumes a saved session. Food without an inventory item is dropped.
func (e *Engine) Restore(s Session) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.tick = s.Tick
	e.clock.Restore(s.Clock)
	e.observer.Restore(s.Player)
	e.inventory.Restore(s.Inventory)

	foods := make([]FoodSnapshot, 0, len(s.Foods))
	for _, f := range s.Foods {
		if _, ok := e.inventory.Get(f.ID); ok {
			foods = append(foods, f)
		}
	}
	e.spoilage.Restore(foods)
	e.altar.Restore(s.Altar)
	e.kitchen.Restore(s.Kitchen)
	e.logger.Info(fmt.Sprintf("Session restored at tick %d (%d foods)", s.Tick, len(foods)))
}

// Backup is the part of a session the state tables keep: the clocks and the exposure of every
// food. Items, hands, the altar and the kitchen are not in it.
type Backup struct {
	Tick  int64
	Clock ClockState
	Foods []FoodSnapshot
}

// RestoreBackup puts the saved clocks and exposure back onto a freshly placed scene. Foods whose
// item is not in the scene are skipped and counted.
func (e *Engine) RestoreBackup(b Backup) (skipped int) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.tick = b.Tick
	e.clock.Restore(b.Clock)

	foods := make([]FoodSnapshot, 0, len(b.Foods))
	for _, f := range b.Foods {
		if _, ok := e.inventory.Get(f.ID); ok {
			foods = append(foods, f)
		} else {
			skipped++
		}
	}
	// scene food the backup does not know keeps its fresh exposure
	for _, f := range e.spoilage.Snapshot() {
		if !containsFood(foods, f.ID) {
			foods = append(foods, f)
		}
	}
	e.spoilage.Restore(foods)
	e.logger.Info(fmt.Sprintf("Backup restored at tick %d (%d foods, %d skipped)", b.Tick, len(foods), skipped))
	return skipped
}

func containsFood(foods []FoodSnapshot, id string) bool {
	for _, f := range foods {
		if f.ID == id {
			return true
		}
	}
	return false
}
