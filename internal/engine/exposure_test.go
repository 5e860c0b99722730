package engine

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shovit/timerooms/internal/domain/room"
)

// fakeYears is a hand-driven clock for tracker tests.
type fakeYears [room.Count]int

func (f *fakeYears) YearInt(i int) int {
	if !room.Valid(i) {
		return 0
	}
	return f[i]
}

func firedIDs(ts []Trigger) []string {
	var ids []string
	for _, t := range ts {
		ids = append(ids, t.ID)
	}
	return ids
}

func TestExposureCarriedIntoObserverRoom(t *testing.T) {
	years := &fakeYears{100, 2026, 3000}
	tr := NewExposureTracker(ExposureLifetime, nil)

	tr.Update(room.RoomS, room.RoomN, years)
	for i := 0; i < 5; i++ {
		years[room.RoomS]++
		tr.Update(room.RoomS, room.RoomN, years)
	}
	require.Equal(t, 5, tr.TotalYearsPassed())

	// Picked up: outside every room, counted in the observer's room.
	tr.Update(room.NoRoom, room.RoomN, years)
	assert.Equal(t, 5, tr.TotalYearsPassed())
	for i := 0; i < 3; i++ {
		years[room.RoomN]++
		tr.Update(room.NoRoom, room.RoomN, years)
	}
	assert.Equal(t, 8, tr.TotalYearsPassed())
	assert.Equal(t, room.RoomN, tr.Room())
}

func TestExposureFallsBackToLastObserverRoom(t *testing.T) {
	years := &fakeYears{0, 0, 0}
	tr := NewExposureTracker(ExposureLifetime, nil)

	tr.Update(room.NoRoom, room.RoomF, years)
	years[room.RoomF] += 4
	tr.Update(room.NoRoom, room.NoRoom, years)
	assert.Equal(t, 4, tr.TotalYearsPassed())
}

func TestExposureSkipsWithoutAnyRoom(t *testing.T) {
	years := &fakeYears{10, 20, 30}
	tr := NewExposureTracker(ExposureLifetime, nil)

	assert.Nil(t, tr.Update(room.NoRoom, room.NoRoom, years))
	assert.Equal(t, room.NoRoom, tr.Room())
	assert.Zero(t, tr.TotalYearsPassed())
}

func TestExposureReentryDoesNotJump(t *testing.T) {
	years := &fakeYears{0, 0, 0}
	tr := NewExposureTracker(ExposureLifetime, nil)

	tr.Update(room.RoomF, room.RoomN, years)
	years[room.RoomF] += 2
	tr.Update(room.RoomF, room.RoomN, years)

	tr.Update(room.RoomN, room.RoomN, years)
	years[room.RoomF] += 500 // happens while the object is elsewhere
	tr.Update(room.RoomF, room.RoomN, years)

	assert.Equal(t, 2, tr.TotalYearsPassed())
}

func TestOnceTriggerFiresOnce(t *testing.T) {
	years := &fakeYears{0, 0, 0}
	tr := NewExposureTracker(ExposureLifetime, []Trigger{{ID: "ten", ThresholdYears: 10, Once: true}})

	tr.Update(room.RoomF, room.RoomN, years)
	var fires int
	for i := 0; i < 20; i++ {
		years[room.RoomF]++
		fired := tr.Update(room.RoomF, room.RoomN, years)
		if len(fired) > 0 {
			fires++
			assert.Equal(t, 10, tr.TotalYearsPassed())
		}
		// Room changes do not re-arm it.
		tr.Update(room.RoomS, room.RoomN, years)
		tr.Update(room.RoomF, room.RoomN, years)
	}
	assert.Equal(t, 1, fires)
	assert.Equal(t, 20, tr.TotalYearsPassed())
}

func TestRepeatingTriggerFiresWhileAdvancing(t *testing.T) {
	years := &fakeYears{0, 0, 0}
	tr := NewExposureTracker(ExposureLifetime, []Trigger{{ID: "tick", ThresholdYears: 2}})

	tr.Update(room.RoomN, room.RoomN, years)
	years[room.RoomN] += 2
	assert.Equal(t, []string{"tick"}, firedIDs(tr.Update(room.RoomN, room.RoomN, years)))

	// No exposure change, no repeat.
	assert.Empty(t, tr.Update(room.RoomN, room.RoomN, years))

	years[room.RoomN]++
	assert.Equal(t, []string{"tick"}, firedIDs(tr.Update(room.RoomN, room.RoomN, years)))
}

func TestPerEntryModeResetsOnRoomChange(t *testing.T) {
	years := &fakeYears{0, 0, 0}
	tr := NewExposureTracker(ExposurePerEntry, []Trigger{{ID: "five", ThresholdYears: 5, Once: true}})

	tr.Update(room.RoomF, room.RoomN, years)
	years[room.RoomF] += 5
	assert.Equal(t, []string{"five"}, firedIDs(tr.Update(room.RoomF, room.RoomN, years)))
	assert.Equal(t, 5, tr.Exposure())

	tr.Update(room.RoomS, room.RoomN, years)
	assert.Zero(t, tr.Exposure())
	assert.False(t, tr.Triggers()[0].HasFired)

	tr.Update(room.RoomF, room.RoomN, years)
	years[room.RoomF] += 5
	assert.Equal(t, []string{"five"}, firedIDs(tr.Update(room.RoomF, room.RoomN, years)))

	// The lifetime counter keeps running underneath.
	assert.Equal(t, 10, tr.TotalYearsPassed())
}

func TestExposureMonotonicForRandomInputs(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for _, mode := range []ExposureMode{ExposureLifetime, ExposurePerEntry} {
		years := &fakeYears{100, 2026, 3000}
		tr := NewExposureTracker(mode, nil)
		prev := 0
		for i := 0; i < 2000; i++ {
			years[rng.Intn(room.Count)] += rng.Intn(3)
			tr.Update(rng.Intn(5)-1, rng.Intn(5)-1, years)
			require.GreaterOrEqual(t, tr.TotalYearsPassed(), prev)
			prev = tr.TotalYearsPassed()
		}
	}
}

func TestExposureStateRestore(t *testing.T) {
	triggers := []Trigger{{ID: "a", ThresholdYears: 1, Once: true}, {ID: "b", ThresholdYears: 50, Once: true}}
	years := &fakeYears{0, 0, 0}
	tr := NewExposureTracker(ExposureLifetime, triggers)
	tr.Update(room.RoomF, room.RoomN, years)
	years[room.RoomF] += 3
	tr.Update(room.RoomF, room.RoomN, years)

	other := NewExposureTracker(ExposureLifetime, triggers)
	other.Restore(tr.State())
	assert.Equal(t, tr.State(), other.State())
	assert.Equal(t, 3, other.TotalYearsPassed())

	// Continues from the restored baseline.
	years[room.RoomF]++
	assert.Empty(t, other.Update(room.RoomF, room.RoomN, years))
	assert.Equal(t, 4, other.TotalYearsPassed())
}

func TestParseExposureMode(t *testing.T) {
	m, err := ParseExposureMode("")
	require.NoError(t, err)
	assert.Equal(t, ExposureLifetime, m)

	m, err = ParseExposureMode("per_entry")
	require.NoError(t, err)
	assert.Equal(t, ExposurePerEntry, m)

	_, err = ParseExposureMode("forever")
	assert.Error(t, err)
}
