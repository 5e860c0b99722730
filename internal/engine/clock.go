package engine

import (
	"fmt"
	"math"

	"github.com/shovit/timerooms/internal/domain/room"
)

// ClockConfig seeds a RoomClock.
type ClockConfig struct {
	StartingYears [room.Count]float64
	Presets       room.Presets
	PauseSec      float64 // how long room N stays frozen per pause episode
}

// DefaultClockConfig returns the default starting years, rates and a 30 second pause.
func DefaultClockConfig() ClockConfig {
	return ClockConfig{
		StartingYears: room.DefaultStartingYears(),
		Presets:       room.DefaultPresets(),
		PauseSec:      30,
	}
}

// ConfigError reports an invalid clock setting.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid clock config: %s %s", e.Field, e.Reason)
}

// Validate rejects settings that would produce NaN or Inf rates.
func (c ClockConfig) Validate() error {
	presets := []struct {
		name string
		p    room.RatePreset
	}{
		{"slow", c.Presets.Slow},
		{"super_slow", c.Presets.SuperSlow},
		{"fast", c.Presets.Fast},
		{"super_fast", c.Presets.SuperFast},
	}
	for _, p := range presets {
		if !(p.p.Seconds > 0) || math.IsInf(p.p.Seconds, 0) {
			return &ConfigError{Field: p.name + ".seconds", Reason: "must be a positive finite number"}
		}
		if !(p.p.Years >= 0) || math.IsInf(p.p.Years, 0) {
			return &ConfigError{Field: p.name + ".years", Reason: "must be a non-negative finite number"}
		}
	}
	for i, y := range c.StartingYears {
		if math.IsNaN(y) || math.IsInf(y, 0) {
			return &ConfigError{Field: fmt.Sprintf("starting_years[%d]", i), Reason: "must be finite"}
		}
	}
	if !(c.PauseSec >= 0) {
		return &ConfigError{Field: "pause_sec", Reason: "must be zero or positive"}
	}
	return nil
}

// Step describes what a single Advance did besides moving the counters.
type Step struct {
	PauseStarted bool
	PauseEnded   bool
}

// PauseState is the room N freeze.
type PauseState struct {
	Requested bool    `json:"requested"`
	Active    bool    `json:"active"`
	Remaining float64 `json:"remaining"`
}

// ClockState is the serializable state of a RoomClock.
type ClockState struct {
	Years [room.Count]float64 `json:"years"`
	Pause PauseState          `json:"pause"`
}

// RoomClock keeps one in-room year counter per room and advances them at rates that depend on
// where the observer stands. It has exactly one writer, the tick driver.
type RoomClock struct {
	years    [room.Count]float64
	presets  room.Presets
	pauseSec float64
	pause    PauseState
}

// NewRoomClock validates cfg and seeds the counters.
func NewRoomClock(cfg ClockConfig) (*RoomClock, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &RoomClock{
		years:    cfg.StartingYears,
		presets:  cfg.Presets,
		pauseSec: cfg.PauseSec,
	}, nil
}

// Advance moves every room forward by dt real seconds.
func (c *RoomClock) Advance(dt float64, observerRoom int) Step {
	var step Step
	if dt < 0 || math.IsNaN(dt) {
		dt = 0
	}

	// Do not restart the countdown if a pause is requested again while one runs.
	if c.pause.Requested && !c.pause.Active {
		c.pause.Active = true
		c.pause.Remaining = c.pauseSec
		step.PauseStarted = true
	}

	for i := 0; i < room.Count; i++ {
		if i == room.RoomN && c.pause.Active {
			continue
		}
		c.years[i] += c.presets.YearsPerSecond(i, observerRoom) * dt
	}

	if c.pause.Active {
		c.pause.Remaining -= dt
		if c.pause.Remaining <= 0 {
			c.pause = PauseState{}
			step.PauseEnded = true
		}
	}
	return step
}

// YearsPerSecond exposes the rate rule for room target with the observer in observerRoom.
func (c *RoomClock) YearsPerSecond(target, observerRoom int) float64 {
	return c.presets.YearsPerSecond(target, observerRoom)
}

// Year returns a room's counter, or 0 for an unknown room.
func (c *RoomClock) Year(i int) float64 {
	if !room.Valid(i) {
		return 0
	}
	return c.years[i]
}

// YearInt returns the floored counter of a room, or 0 for an unknown room.
func (c *RoomClock) YearInt(i int) int {
	return int(math.Floor(c.Year(i)))
}

// YearsInt returns all floored counters.
func (c *RoomClock) YearsInt() [room.Count]int {
	var out [room.Count]int
	for i := range out {
		out[i] = c.YearInt(i)
	}
	return out
}

// RequestPause asks for room N to freeze on the next Advance. It is a no-op while a pause is
// already running.
func (c *RoomClock) RequestPause() {
	if c.pause.Active {
		return
	}
	c.pause.Requested = true
}

// CancelPause ends a running pause and withdraws any pending request. It reports whether
// there was anything to cancel.
func (c *RoomClock) CancelPause() bool {
	had := c.pause.Active || c.pause.Requested
	c.pause = PauseState{}
	return had
}

// Paused reports whether room N is frozen.
func (c *RoomClock) Paused() bool {
	return c.pause.Active
}

// PauseRemaining returns the seconds left in the running pause.
func (c *RoomClock) PauseRemaining() float64 {
	if !c.pause.Active {
		return 0
	}
	return c.pause.Remaining
}

// State captures the clock for persistence.
func (c *RoomClock) State() ClockState {
	return ClockState{Years: c.years, Pause: c.pause}
}

// Restore reapplies a captured state.
func (c *RoomClock) Restore(s ClockState) {
	c.years = s.Years
	c.pause = s.Pause
}
