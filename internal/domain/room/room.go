// Package room defines the three time rooms and their spatial layout.
// This package is PURE and must NOT import any infrastructure packages.
package room

import "math"

// Fixed room indices. The order is the room index used everywhere else.
const (
	RoomS = 0 // slow room
	RoomN = 1 // normal room
	RoomF = 2 // fast room

	// Count is the number of rooms in a session.
	Count = 3

	// NoRoom is returned by lookups for positions outside every room.
	NoRoom = -1
)

// SecondsPerYear is the length of a calendar year at the Normal rate.
const SecondsPerYear = 365.0 * 24.0 * 60.0 * 60.0 // 31,536,000

// NormalYearsPerSecond is the implicit Normal preset.
const NormalYearsPerSecond = 1.0 / SecondsPerYear

// minPresetSeconds keeps YearsPerSecond finite for a zero seconds span.
const minPresetSeconds = 0.000001

// Valid reports whether i names one of the three rooms.
func Valid(i int) bool {
	return i >= 0 && i < Count
}

// Name returns the short name of a room index, or "-" for anything else.
func Name(i int) string {
	switch i {
	case RoomS:
		return "S"
	case RoomN:
		return "N"
	case RoomF:
		return "F"
	}
	return "-"
}

// RatePreset converts real seconds into in-room years: Seconds of real time equal Years.
type RatePreset struct {
	Seconds float64 `json:"seconds" yaml:"seconds"`
	Years   float64 `json:"years" yaml:"years"`
}

// YearsPerSecond returns Years/Seconds, clamping Seconds to a small epsilon.
func (p RatePreset) YearsPerSecond() float64 {
	return p.Years / math.Max(minPresetSeconds, p.Seconds)
}

// Presets is the full set of designer-editable rates.
type Presets struct {
	Slow      RatePreset `json:"slow" yaml:"slow"`
	SuperSlow RatePreset `json:"super_slow" yaml:"super_slow"`
	Fast      RatePreset `json:"fast" yaml:"fast"`
	SuperFast RatePreset `json:"super_fast" yaml:"super_fast"`
}

// DefaultPresets returns the default rates.
func DefaultPresets() Presets {
	return Presets{
		Slow:      RatePreset{Seconds: 31_536_000, Years: 1},  // 1 year = 1 sec
		SuperSlow: RatePreset{Seconds: 315_360_000, Years: 1}, // 10 years = 1 sec
		Fast:      RatePreset{Seconds: 1, Years: 1},           // 1 sec = 1 year
		SuperFast: RatePreset{Seconds: 1, Years: 10},          // 1 sec = 10 years
	}
}

// DefaultStartingYears is the year each room starts at (index 0=S, 1=N, 2=F).
func DefaultStartingYears() [Count]float64 {
	return [Count]float64{100, 2026, 3000}
}

// YearsPerSecond returns the rate at which target advances while the observer stands in
// observer. Being in the slow room makes the others race ahead and vice versa.
func (p Presets) YearsPerSecond(target, observer int) float64 {
	// Baseline (observer in N, or nowhere)
	s := p.Slow.YearsPerSecond()
	n := NormalYearsPerSecond
	f := p.Fast.YearsPerSecond()

	switch observer {
	case RoomS:
		n = p.Fast.YearsPerSecond()
		f = p.SuperFast.YearsPerSecond()
	case RoomF:
		n = p.Slow.YearsPerSecond()
		s = p.SuperSlow.YearsPerSecond()
	}

	switch target {
	case RoomS:
		return s
	case RoomN:
		return n
	case RoomF:
		return f
	}
	return NormalYearsPerSecond
}
