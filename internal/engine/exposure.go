package engine

import (
	"fmt"

	"github.com/shovit/timerooms/internal/domain/room"
)

// ExposureMode selects how an ExposureTracker counts years.
type ExposureMode string

const (
	// ExposureLifetime accumulates every forward year the object has seen, across rooms.
	ExposureLifetime ExposureMode = "lifetime"
	// ExposurePerEntry counts only the years since the object last entered a room, and re-arms
	// every trigger on entry.
	ExposurePerEntry ExposureMode = "per_entry"
)

// ParseExposureMode accepts the config spelling. Empty means lifetime.
func ParseExposureMode(s string) (ExposureMode, error) {
	switch ExposureMode(s) {
	case "", ExposureLifetime:
		return ExposureLifetime, nil
	case ExposurePerEntry:
		return ExposurePerEntry, nil
	}
	return "", fmt.Errorf("unknown exposure mode %q", s)
}

// YearReader is the read side of the room clock that trackers depend on.
type YearReader interface {
	YearInt(i int) int
}

// Trigger is a threshold on a tracker's exposure.
type Trigger struct {
	ID             string `json:"id"`
	ThresholdYears int    `json:"threshold_years"`
	Once           bool   `json:"once"`
	HasFired       bool   `json:"has_fired"`
}

// ExposureState is the serializable state of a tracker.
type ExposureState struct {
	LastRoom         int      `json:"last_room"`
	LastObserverRoom int      `json:"last_observer_room"`
	BaselineYear     int      `json:"baseline_year"`
	EntryYear        int      `json:"entry_year"`
	TotalYearsPassed int      `json:"total_years_passed"`
	Fired            []string `json:"fired"`
}

// ExposureTracker accumulates the years an object experiences in whatever room holds it.
type ExposureTracker struct {
	mode     ExposureMode
	triggers []Trigger

	lastRoom         int
	lastObserverRoom int
	baselineYear     int
	entryYear        int
	total            int
	yearsInRoom      int
}

// NewExposureTracker copies triggers so several trackers can share one definition.
func NewExposureTracker(mode ExposureMode, triggers []Trigger) *ExposureTracker {
	if mode == "" {
		mode = ExposureLifetime
	}
	return &ExposureTracker{
		mode:             mode,
		triggers:         append([]Trigger(nil), triggers...),
		lastRoom:         room.NoRoom,
		lastObserverRoom: room.NoRoom,
	}
}

// Update observes the object in currentRoom (room.NoRoom when it is outside every room) and
// returns the triggers that fired this tick. An object outside every room is counted in the
// observer's room, or in the last room the observer was seen in.
func (t *ExposureTracker) Update(currentRoom, observerRoom int, clock YearReader) []Trigger {
	if room.Valid(observerRoom) {
		t.lastObserverRoom = observerRoom
	}

	observed := currentRoom
	if !room.Valid(observed) {
		observed = t.lastObserverRoom
	}
	if !room.Valid(observed) {
		return nil
	}

	if observed != t.lastRoom {
		t.baselineYear = clock.YearInt(observed)
		t.entryYear = t.baselineYear
		t.lastRoom = observed
		t.yearsInRoom = 0
		if t.mode == ExposurePerEntry {
			for i := range t.triggers {
				t.triggers[i].HasFired = false
			}
		}
	}

	now := clock.YearInt(observed)
	delta := max(0, now-t.baselineYear)
	t.total += delta
	t.baselineYear = now

	since := max(0, now-t.entryYear)
	advanced := delta > 0
	if t.mode == ExposurePerEntry {
		advanced = since > t.yearsInRoom
	}
	t.yearsInRoom = max(t.yearsInRoom, since)

	return t.evaluate(advanced)
}

func (t *ExposureTracker) evaluate(advanced bool) []Trigger {
	exposure := t.Exposure()

	var fired []Trigger
	for i := range t.triggers {
		tr := &t.triggers[i]
		if exposure < tr.ThresholdYears {
			continue
		}
		switch {
		case !tr.HasFired:
		case tr.Once:
			continue
		case !advanced:
			// Repeating triggers fire again only when exposure moved this tick.
			continue
		}
		tr.HasFired = true
		fired = append(fired, *tr)
	}
	return fired
}

// Mode returns the tracker's counting mode.
func (t *ExposureTracker) Mode() ExposureMode {
	return t.mode
}

// TotalYearsPassed is the lifetime accumulator. It never decreases.
func (t *ExposureTracker) TotalYearsPassed() int {
	return t.total
}

// YearsInRoom is the exposure since the last room entry.
func (t *ExposureTracker) YearsInRoom() int {
	return t.yearsInRoom
}

// Exposure is the value triggers and spoilage compare against for the tracker's mode.
func (t *ExposureTracker) Exposure() int {
	if t.mode == ExposurePerEntry {
		return t.yearsInRoom
	}
	return t.total
}

// Room is the last room the tracker counted in, or room.NoRoom before the first observation.
func (t *ExposureTracker) Room() int {
	return t.lastRoom
}

// Triggers returns a copy of the triggers with their fired flags.
func (t *ExposureTracker) Triggers() []Trigger {
	return append([]Trigger(nil), t.triggers...)
}

// State captures the tracker for persistence.
func (t *ExposureTracker) State() ExposureState {
	s := ExposureState{
		LastRoom:         t.lastRoom,
		LastObserverRoom: t.lastObserverRoom,
		BaselineYear:     t.baselineYear,
		EntryYear:        t.entryYear,
		TotalYearsPassed: t.total,
	}
	for _, tr := range t.triggers {
		if tr.HasFired {
			s.Fired = append(s.Fired, tr.ID)
		}
	}
	return s
}

// Restore reapplies a captured state. Fired ids that match no trigger are ignored.
func (t *ExposureTracker) Restore(s ExposureState) {
	t.lastRoom = s.LastRoom
	t.lastObserverRoom = s.LastObserverRoom
	t.baselineYear = s.BaselineYear
	t.entryYear = s.EntryYear
	t.total = max(0, s.TotalYearsPassed)
	t.yearsInRoom = max(0, s.BaselineYear-s.EntryYear)

	fired := make(map[string]bool, len(s.Fired))
	for _, id := range s.Fired {
		fired[id] = true
	}
	for i := range t.triggers {
		t.triggers[i].HasFired = fired[t.triggers[i].ID]
	}
}
