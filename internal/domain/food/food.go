// Package food defines spoilable food and its Raw -> Aged -> Spoiled state machine.
// This package is PURE and must NOT import any infrastructure packages.
package food

import (
	"encoding/json"
	"fmt"
)

// State is the spoilage stage of a food item.
type State int

const (
	StateRaw State = iota
	StateAged
	StateSpoiled
)

var stateNames = [...]string{"RAW", "AGED", "SPOILED"}

func (s State) String() string {
	if s < StateRaw || s > StateSpoiled {
		return "UNKNOWN"
	}
	return stateNames[s]
}

// ParseState is the inverse of String.
func ParseState(v string) (State, error) {
	for i, n := range stateNames {
		if n == v {
			return State(i), nil
		}
	}
	return StateRaw, fmt.Errorf("unknown food state %q", v)
}

func (s State) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *State) UnmarshalJSON(b []byte) error {
	var v string
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	parsed, err := ParseState(v)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Thresholds are the exposure spans of each stage, in whole years.
type Thresholds struct {
	RawToAgedYears     int `json:"raw_to_aged_years" yaml:"raw_to_aged_years"`
	AgedToSpoiledYears int `json:"aged_to_spoiled_years" yaml:"aged_to_spoiled_years"`
}

// SpoiledAt is the exposure at which food becomes Spoiled.
func (t Thresholds) SpoiledAt() int {
	return max(0, t.RawToAgedYears) + max(0, t.AgedToSpoiledYears)
}

// StateFor computes the stage for an exposure value. It is level-triggered: the result depends
// only on years, never on the previous stage.
func (t Thresholds) StateFor(years int) State {
	switch {
	case years >= t.SpoiledAt():
		return StateSpoiled
	case years >= max(0, t.RawToAgedYears):
		return StateAged
	default:
		return StateRaw
	}
}

// Spoilage holds the current stage of one item. The stage never moves backwards.
type Spoilage struct {
	Thresholds Thresholds `json:"thresholds"`
	Current    State      `json:"state"`
}

// NewSpoilage starts a Raw item.
func NewSpoilage(t Thresholds) *Spoilage {
	return &Spoilage{Thresholds: t, Current: StateRaw}
}

// Evaluate recomputes the stage from the accumulated exposure and reports the previous stage
// and whether it changed.
func (s *Spoilage) Evaluate(years int) (prev State, changed bool) {
	prev = s.Current
	next := s.Thresholds.StateFor(years)
	if next <= s.Current {
		return prev, false
	}
	s.Current = next
	return prev, true
}

// Progress is the read model behind a food progress bar.
type Progress struct {
	Age        int     `json:"age"`         // exposure clamped into [0, Total]
	Total      int     `json:"total"`       // span from Raw to Spoiled, at least 1
	AgedMarker float64 `json:"aged_marker"` // where Aged begins, as a fraction of Total
	Fraction   float64 `json:"fraction"`    // Age / Total
}

// ProgressFor builds the progress bar values for an exposure.
func ProgressFor(years int, t Thresholds) Progress {
	total := max(1, t.SpoiledAt())
	age := min(max(years, 0), total)
	return Progress{
		Age:        age,
		Total:      total,
		AgedMarker: float64(min(max(t.RawToAgedYears, 0), total)) / float64(total),
		Fraction:   float64(age) / float64(total),
	}
}
