// Package config loads the designer-authored scene: clock rates, rooms, food, spawners, the
// altar and the kitchen. Files are YAML, checked against the embedded JSON Schema and then
// semantically before the engine sees them.
package config

import (
	"fmt"
	"math"
	"os"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/shovit/timerooms/internal/domain/altar"
	"github.com/shovit/timerooms/internal/domain/food"
	"github.com/shovit/timerooms/internal/domain/room"
	"github.com/shovit/timerooms/internal/domain/sandwich"
	"github.com/shovit/timerooms/internal/engine"
)

// Config is the root of a scene file.
type Config struct {
	Clock      ClockConfig       `json:"clock" yaml:"clock"`
	Exposure   ExposureConfig    `json:"exposure" yaml:"exposure"`
	Rooms      []room.Spec       `json:"rooms,omitempty" yaml:"rooms" jsonschema:"minItems=3,maxItems=3"`
	Player     PlayerConfig      `json:"player" yaml:"player"`
	Foods      []food.Definition `json:"foods" yaml:"foods"`
	Spawners   []engine.Spawner  `json:"spawners" yaml:"spawners"`
	Altar      AltarConfig       `json:"altar" yaml:"altar"`
	Kitchen    KitchenConfig     `json:"kitchen" yaml:"kitchen"`
	Simulation SimulationConfig  `json:"simulation" yaml:"simulation"`
}

// ClockConfig holds the room clock tuning.
type ClockConfig struct {
	StartingYears []float64    `json:"starting_years" yaml:"starting_years" jsonschema:"minItems=3,maxItems=3"`
	Presets       room.Presets `json:"presets" yaml:"presets"`
	PauseSec      float64      `json:"pause_sec" yaml:"pause_sec" jsonschema:"minimum=0"`
}

// ExposureConfig picks the exposure accounting for every food tracker.
type ExposureConfig struct {
	Mode string `json:"mode" yaml:"mode" jsonschema:"enum=lifetime,enum=per_entry"`
}

// PlayerConfig places the observer.
type PlayerConfig struct {
	Start           room.Vec3 `json:"start" yaml:"start"`
	TeleportYOffset float64   `json:"teleport_y_offset" yaml:"teleport_y_offset"`
	PickupRange     float64   `json:"pickup_range" yaml:"pickup_range" jsonschema:"minimum=0"`
}

// AltarConfig places the deposit altar and names its reward.
type AltarConfig struct {
	RewardName string    `json:"reward_name" yaml:"reward_name"`
	Position   room.Vec3 `json:"position" yaml:"position"`
}

// KitchenConfig lists the orders and scoring rules of the sandwich counter.
type KitchenConfig struct {
	Orders   []sandwich.Order  `json:"orders" yaml:"orders"`
	Settings sandwich.Settings `json:"settings" yaml:"settings"`
	Seed     int64             `json:"seed" yaml:"seed"`
}

// SimulationConfig controls the real-time loop.
type SimulationConfig struct {
	TickRateMS          int     `json:"tick_rate_ms" yaml:"tick_rate_ms" jsonschema:"minimum=1"`
	TimeScale           float64 `json:"time_scale" yaml:"time_scale"`
	BroadcastEveryTicks int     `json:"broadcast_every_ticks" yaml:"broadcast_every_ticks" jsonschema:"minimum=1"`
}

// Defaults returns the default scene.
func Defaults() Config {
	ec := engine.DefaultConfig()
	years := ec.Clock.StartingYears
	rooms := make([]room.Spec, 0, ec.Layout.RoomCount())
	for i := 0; i < ec.Layout.RoomCount(); i++ {
		s, _ := ec.Layout.Spec(i)
		rooms = append(rooms, s)
	}
	return Config{
		Clock: ClockConfig{
			StartingYears: years[:],
			Presets:       ec.Clock.Presets,
			PauseSec:      ec.Clock.PauseSec,
		},
		Exposure: ExposureConfig{Mode: string(ec.ExposureMode)},
		Rooms:    rooms,
		Player: PlayerConfig{
			Start:           ec.PlayerStart,
			TeleportYOffset: ec.TeleportYOffset,
			PickupRange:     ec.PickupRange,
		},
		Foods:    ec.Catalog.All(),
		Spawners: ec.Spawners,
		Altar:    AltarConfig{RewardName: ec.AltarRewardName, Position: ec.AltarPosition},
		Kitchen:  KitchenConfig{Orders: ec.Orders, Settings: ec.Kitchen, Seed: ec.Seed},
		Simulation: SimulationConfig{
			TickRateMS:          int(ec.TickRate / time.Millisecond),
			TimeScale:           ec.TimeScale,
			BroadcastEveryTicks: ec.BroadcastEveryTicks,
		},
	}
}

// Load reads and validates a scene file. An empty path returns the defaults.
func Load(path string) (Config, error) {
	if path == "" {
		return Defaults(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML over the defaults. Keys absent from the document keep their default value;
// lists given in the document replace the default list.
func Parse(data []byte) (Config, error) {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return Config{}, fmt.Errorf("parse yaml: %w", err)
	}
	if doc != nil {
		if err := validateSchema(doc); err != nil {
			return Config{}, err
		}
	}

	cfg := Defaults()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ValidationError lists every invalid field found in a config.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "invalid config: " + strings.Join(e.Problems, "; ")
}

func (e *ValidationError) add(field, format string, args ...any) {
	e.Problems = append(e.Problems, field+" "+fmt.Sprintf(format, args...))
}

// Validate checks what the schema cannot: cross references and finite rates.
func (c Config) Validate() error {
	v := &ValidationError{}

	if len(c.Clock.StartingYears) != room.Count {
		v.add("clock.starting_years", "must have %d entries, got %d", room.Count, len(c.Clock.StartingYears))
	}
	for i, y := range c.Clock.StartingYears {
		if math.IsNaN(y) || math.IsInf(y, 0) {
			v.add(fmt.Sprintf("clock.starting_years[%d]", i), "must be finite")
		}
	}
	for name, p := range map[string]room.RatePreset{
		"slow":       c.Clock.Presets.Slow,
		"super_slow": c.Clock.Presets.SuperSlow,
		"fast":       c.Clock.Presets.Fast,
		"super_fast": c.Clock.Presets.SuperFast,
	} {
		if !(p.Seconds > 0) || math.IsInf(p.Seconds, 0) {
			v.add("clock.presets."+name+".seconds", "must be a positive finite number")
		}
		if !(p.Years >= 0) || math.IsInf(p.Years, 0) {
			v.add("clock.presets."+name+".years", "must be a non-negative finite number")
		}
	}
	if !(c.Clock.PauseSec >= 0) {
		v.add("clock.pause_sec", "must be zero or positive")
	}

	if _, err := engine.ParseExposureMode(c.Exposure.Mode); err != nil {
		v.add("exposure.mode", "%v", err)
	}

	if len(c.Rooms) != 0 && len(c.Rooms) != room.Count {
		v.add("rooms", "must list exactly %d rooms (S, N, F)", room.Count)
	}
	for i, r := range c.Rooms {
		if r.SizeX <= 0 || r.SizeZ <= 0 {
			v.add(fmt.Sprintf("rooms[%d]", i), "needs a positive floor size")
		}
	}

	kinds := make(map[food.Kind]bool, len(c.Foods))
	for i, d := range c.Foods {
		field := fmt.Sprintf("foods[%d]", i)
		if d.Kind == "" {
			v.add(field+".kind", "is required")
		} else if kinds[d.Kind] {
			v.add(field+".kind", "duplicates %q", d.Kind)
		}
		kinds[d.Kind] = true
		if d.Thresholds.RawToAgedYears < 0 || d.Thresholds.AgedToSpoiledYears < 0 {
			v.add(field+".thresholds", "must not be negative")
		}
		for j, tr := range d.Triggers {
			if tr.ID == "" {
				v.add(fmt.Sprintf("%s.triggers[%d].id", field, j), "is required")
			}
			if tr.ThresholdYears < 0 {
				v.add(fmt.Sprintf("%s.triggers[%d].threshold_years", field, j), "must not be negative")
			}
		}
	}

	for i, s := range c.Spawners {
		field := fmt.Sprintf("spawners[%d]", i)
		switch s.Kind {
		case engine.ItemFood:
			if !kinds[food.Kind(s.Name)] {
				v.add(field+".name", "references unknown food %q", s.Name)
			}
		case engine.ItemCrystal:
			if s.Name != string(altar.TagSCrystal) && s.Name != string(altar.TagFCrystal) {
				v.add(field+".name", "must be %s or %s", altar.TagSCrystal, altar.TagFCrystal)
			}
		case engine.ItemReward:
		default:
			v.add(field+".kind", "unknown item kind %q", s.Kind)
		}
	}

	for i, o := range c.Kitchen.Orders {
		if o.Name == "" || len(o.IngredientIDs) == 0 {
			v.add(fmt.Sprintf("kitchen.orders[%d]", i), "needs a name and at least one ingredient")
		}
	}
	switch c.Kitchen.Settings.Mode {
	case sandwich.MatchIgnoreOrder, sandwich.MatchExactOrder:
	default:
		v.add("kitchen.settings.match_mode", "unknown mode %q", c.Kitchen.Settings.Mode)
	}
	if c.Kitchen.Settings.Rating.MaxStars < 1 {
		v.add("kitchen.settings.rating.max_stars", "must be at least 1")
	}

	if c.Simulation.TickRateMS < 1 {
		v.add("simulation.tick_rate_ms", "must be at least 1")
	}
	if !(c.Simulation.TimeScale > 0) {
		v.add("simulation.time_scale", "must be positive")
	}
	if c.Simulation.BroadcastEveryTicks < 1 {
		v.add("simulation.broadcast_every_ticks", "must be at least 1")
	}

	if len(v.Problems) == 0 {
		return nil
	}
	// map iteration order above is random
	sort.Strings(v.Problems)
	return v
}

// ToEngine builds the engine configuration for a validated config.
func (c Config) ToEngine() engine.Config {
	ec := engine.DefaultConfig()
	copy(ec.Clock.StartingYears[:], c.Clock.StartingYears)
	ec.Clock.Presets = c.Clock.Presets
	ec.Clock.PauseSec = c.Clock.PauseSec
	ec.ExposureMode = engine.ExposureMode(c.Exposure.Mode)
	if len(c.Rooms) > 0 {
		ec.Layout = room.NewLayout(c.Rooms)
	}
	ec.PlayerStart = c.Player.Start
	ec.TeleportYOffset = c.Player.TeleportYOffset
	ec.PickupRange = c.Player.PickupRange
	ec.Catalog = food.NewCatalog(c.Foods)
	ec.Spawners = c.Spawners
	ec.AltarRewardName = c.Altar.RewardName
	ec.AltarPosition = c.Altar.Position
	ec.Orders = c.Kitchen.Orders
	ec.Kitchen = c.Kitchen.Settings
	ec.Seed = c.Kitchen.Seed
	ec.TickRate = time.Duration(c.Simulation.TickRateMS) * time.Millisecond
	ec.TimeScale = c.Simulation.TimeScale
	ec.BroadcastEveryTicks = c.Simulation.BroadcastEveryTicks
	return ec
}
