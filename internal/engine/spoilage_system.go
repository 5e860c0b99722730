package engine

import (
	"fmt"
	"sort"

	"github.com/shovit/timerooms/internal/domain/food"
	"github.com/shovit/timerooms/internal/domain/room"
	"github.com/shovit/timerooms/internal/events"
	"github.com/shovit/timerooms/internal/platform/logger"
	"github.com/shovit/timerooms/internal/platform/metrics"
)

// ItemLocator tells the spoilage system which room holds an item.
type ItemLocator interface {
	RoomOf(id string) int
}

// TriggerFiredPayload is attached to TRIGGER_FIRED.
type TriggerFiredPayload struct {
	ItemID         string `json:"item_id"`
	Kind           string `json:"kind"`
	TriggerID      string `json:"trigger_id"`
	ThresholdYears int    `json:"threshold_years"`
	Exposure       int    `json:"exposure"`
	Room           int    `json:"room"`
}

// FoodStatePayload is attached to FOOD_STATE_CHANGED.
type FoodStatePayload struct {
	ItemID   string     `json:"item_id"`
	Kind     string     `json:"kind"`
	From     food.State `json:"from"`
	To       food.State `json:"to"`
	Exposure int        `json:"exposure"`
}

// FoodSpawnedPayload is attached to FOOD_SPAWNED.
type FoodSpawnedPayload struct {
	ItemID   string    `json:"item_id"`
	Kind     string    `json:"kind"`
	Position room.Vec3 `json:"position"`
}

// FoodItem is one piece of food with its exposure tracker and spoilage stage.
type FoodItem struct {
	ID       string
	Def      food.Definition
	Tracker  *ExposureTracker
	Spoilage *food.Spoilage
	Started  bool // false until the first pickup for start-on-pickup food
}

// FoodView is the read model served to clients.
type FoodView struct {
	ID               string        `json:"id"`
	Kind             string        `json:"kind"`
	Name             string        `json:"name"`
	Icon             string        `json:"icon,omitempty"`
	Room             int           `json:"room"`
	RoomName         string        `json:"room_name"`
	Started          bool          `json:"started"`
	State            food.State    `json:"state"`
	Exposure         int           `json:"exposure"`
	TotalYearsPassed int           `json:"total_years_passed"`
	Progress         food.Progress `json:"progress"`
	Triggers         []Trigger     `json:"triggers,omitempty"`
}

// FoodSnapshot is the serializable state of one food item.
type FoodSnapshot struct {
	ID       string        `json:"id"`
	Kind     string        `json:"kind"`
	Started  bool          `json:"started"`
	Exposure ExposureState `json:"exposure"`
	State    food.State    `json:"state"`
}

// SpoilageSystem ages food by the years of whatever room it sits in.
type SpoilageSystem struct {
	eventLog *events.EventLog
	logger   *logger.Logger
	catalog  *food.Catalog
	mode     ExposureMode
	locator  ItemLocator
	metrics  *metrics.Collector

	foods map[string]*FoodItem
}

// NewSpoilageSystem creates a new spoilage manager.
func NewSpoilageSystem(eventLog *events.EventLog, log *logger.Logger, catalog *food.Catalog, mode ExposureMode, locator ItemLocator) *SpoilageSystem {
	return &SpoilageSystem{
		eventLog: eventLog,
		logger:   log,
		catalog:  catalog,
		mode:     mode,
		locator:  locator,
		metrics:  metrics.Get(),
		foods:    make(map[string]*FoodItem),
	}
}

func triggersFor(def food.Definition) []Trigger {
	out := make([]Trigger, 0, len(def.Triggers))
	for _, t := range def.Triggers {
		out = append(out, Trigger{ID: t.ID, ThresholdYears: t.ThresholdYears, Once: t.Once})
	}
	return out
}

// Register starts tracking an inventory item as food of the given kind.
func (ss *SpoilageSystem) Register(it Item, tick int64) (*FoodItem, error) {
	def, ok := ss.catalog.Get(food.Kind(it.Name))
	if !ok {
		return nil, fmt.Errorf("unknown food kind %q", it.Name)
	}
	f := &FoodItem{
		ID:       it.ID,
		Def:      def,
		Tracker:  NewExposureTracker(ss.mode, triggersFor(def)),
		Spoilage: food.NewSpoilage(def.Thresholds),
		Started:  !def.StartOnPickup,
	}
	ss.foods[it.ID] = f

	ss.eventLog.Append(events.New(events.EventTypeFoodSpawned, events.ActorSystem, it.ID, tick,
		FoodSpawnedPayload{ItemID: it.ID, Kind: it.Name, Position: it.Position}))
	return f, nil
}

// Unregister stops tracking an item.
func (ss *SpoilageSystem) Unregister(id string) {
	delete(ss.foods, id)
}

// OnPickedUp starts exposure for start-on-pickup food.
func (ss *SpoilageSystem) OnPickedUp(id string) {
	f, ok := ss.foods[id]
	if !ok || f.Started {
		return
	}
	f.Started = true
	ss.logger.Info("[SPOILAGE] Exposure started for " + id)
}

// OnTimeTick updates every started food against the freshly advanced clock.
func (ss *SpoilageSystem) OnTimeTick(event events.GameEvent) {
	payload, ok := event.Payload.(TimeTickPayload)
	if !ok {
		return
	}

	for _, id := range ss.sortedIDs() {
		f := ss.foods[id]
		if !f.Started {
			continue
		}

		fired := f.Tracker.Update(ss.locator.RoomOf(id), payload.ObserverRoom, payload)
		exposure := f.Tracker.Exposure()

		for _, tr := range fired {
			ss.eventLog.Append(events.New(events.EventTypeTriggerFired, events.ActorSystem, id, payload.TickNumber, TriggerFiredPayload{
				ItemID:         id,
				Kind:           string(f.Def.Kind),
				TriggerID:      tr.ID,
				ThresholdYears: tr.ThresholdYears,
				Exposure:       exposure,
				Room:           f.Tracker.Room(),
			}))
		}
		ss.metrics.RecordTriggers(len(fired))

		prev, changed := f.Spoilage.Evaluate(exposure)
		if !changed {
			continue
		}
		ss.metrics.RecordStateTransition()
		ss.eventLog.Append(events.New(events.EventTypeFoodStateChanged, events.ActorSystem, id, payload.TickNumber, FoodStatePayload{
			ItemID:   id,
			Kind:     string(f.Def.Kind),
			From:     prev,
			To:       f.Spoilage.Current,
			Exposure: exposure,
		}))
		ss.logger.Event(string(events.EventTypeFoodStateChanged), id, fmt.Sprintf("%s -> %s at %d years", prev, f.Spoilage.Current, exposure))
	}
}

func (ss *SpoilageSystem) sortedIDs() []string {
	ids := make([]string, 0, len(ss.foods))
	for id := range ss.foods {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Get returns the tracked food item.
func (ss *SpoilageSystem) Get(id string) (*FoodItem, bool) {
	f, ok := ss.foods[id]
	return f, ok
}

// Views returns the read model of every food, sorted by id.
func (ss *SpoilageSystem) Views() []FoodView {
	out := make([]FoodView, 0, len(ss.foods))
	for _, id := range ss.sortedIDs() {
		f := ss.foods[id]
		r := ss.locator.RoomOf(id)
		out = append(out, FoodView{
			ID:               id,
			Kind:             string(f.Def.Kind),
			Name:             f.Def.Name,
			Icon:             f.Def.Icon,
			Room:             r,
			RoomName:         room.Name(r),
			Started:          f.Started,
			State:            f.Spoilage.Current,
			Exposure:         f.Tracker.Exposure(),
			TotalYearsPassed: f.Tracker.TotalYearsPassed(),
			Progress:         food.ProgressFor(f.Tracker.Exposure(), f.Def.Thresholds),
			Triggers:         f.Tracker.Triggers(),
		})
	}
	return out
}

// Snapshot captures every food for persistence.
func (ss *SpoilageSystem) Snapshot() []FoodSnapshot {
	out := make([]FoodSnapshot, 0, len(ss.foods))
	for _, id := range ss.sortedIDs() {
		f := ss.foods[id]
		out = append(out, FoodSnapshot{
			ID:       id,
			Kind:     string(f.Def.Kind),
			Started:  f.Started,
			Exposure: f.Tracker.State(),
			State:    f.Spoilage.Current,
		})
	}
	return out
}

// Restore rebuilds the food set. The stage is recomputed from the restored exposure and never
// ends lower than the saved stage. Unknown kinds are skipped.
func (ss *SpoilageSystem) Restore(snaps []FoodSnapshot) {
	ss.foods = make(map[string]*FoodItem, len(snaps))
	for _, s := range snaps {
		def, ok := ss.catalog.Get(food.Kind(s.Kind))
		if !ok {
			ss.logger.Warn("[SPOILAGE] Dropping restored food of unknown kind " + s.Kind)
			continue
		}
		tr := NewExposureTracker(ss.mode, triggersFor(def))
		tr.Restore(s.Exposure)

		sp := food.NewSpoilage(def.Thresholds)
		sp.Current = s.State
		sp.Evaluate(tr.Exposure())

		ss.foods[s.ID] = &FoodItem{ID: s.ID, Def: def, Tracker: tr, Spoilage: sp, Started: s.Started}
	}
}
