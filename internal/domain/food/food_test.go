package food

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStateForIsLevelTriggered(t *testing.T) {
	th := Thresholds{RawToAgedYears: 10, AgedToSpoiledYears: 20}

	cases := []struct {
		years int
		want  State
	}{
		{-3, StateRaw},
		{0, StateRaw},
		{9, StateRaw},
		{10, StateAged},
		{29, StateAged},
		{30, StateSpoiled},
		{500, StateSpoiled},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, th.StateFor(c.years), "years=%d", c.years)
	}
}

func TestSpoilageNeverRegresses(t *testing.T) {
	s := NewSpoilage(Thresholds{RawToAgedYears: 5, AgedToSpoiledYears: 5})

	prev, changed := s.Evaluate(6)
	assert.True(t, changed)
	assert.Equal(t, StateRaw, prev)
	assert.Equal(t, StateAged, s.Current)

	// A per-entry accumulator can drop back to zero; the stage must hold.
	_, changed = s.Evaluate(0)
	assert.False(t, changed)
	assert.Equal(t, StateAged, s.Current)

	prev, changed = s.Evaluate(11)
	assert.True(t, changed)
	assert.Equal(t, StateAged, prev)
	assert.Equal(t, StateSpoiled, s.Current)
}

func TestSpoilageSkipsStraightToSpoiled(t *testing.T) {
	s := NewSpoilage(Thresholds{RawToAgedYears: 1, AgedToSpoiledYears: 1})
	prev, changed := s.Evaluate(1000)
	assert.True(t, changed)
	assert.Equal(t, StateRaw, prev)
	assert.Equal(t, StateSpoiled, s.Current)
}

func TestStateJSON(t *testing.T) {
	b, err := json.Marshal(StateAged)
	require.NoError(t, err)
	assert.JSONEq(t, `"AGED"`, string(b))

	var s State
	require.NoError(t, json.Unmarshal([]byte(`"SPOILED"`), &s))
	assert.Equal(t, StateSpoiled, s)

	assert.Error(t, json.Unmarshal([]byte(`"MOULDY"`), &s))
	assert.Equal(t, "UNKNOWN", State(42).String())
}

func TestProgressFor(t *testing.T) {
	th := Thresholds{RawToAgedYears: 10, AgedToSpoiledYears: 30}

	p := ProgressFor(20, th)
	assert.Equal(t, 20, p.Age)
	assert.Equal(t, 40, p.Total)
	assert.InDelta(t, 0.25, p.AgedMarker, 1e-9)
	assert.InDelta(t, 0.5, p.Fraction, 1e-9)

	over := ProgressFor(99, th)
	assert.Equal(t, 40, over.Age)

	empty := ProgressFor(3, Thresholds{})
	assert.Equal(t, 1, empty.Total)
	assert.Equal(t, 1, empty.Age)
}

func TestCatalog(t *testing.T) {
	c := NewCatalog(DefaultDefinitions())

	apple, ok := c.Get("apple")
	require.True(t, ok)
	assert.True(t, apple.StartOnPickup)
	assert.Equal(t, 30, apple.Thresholds.SpoiledAt())

	_, ok = c.Get("durian")
	assert.False(t, ok)

	kinds := make([]Kind, 0)
	for _, d := range c.All() {
		kinds = append(kinds, d.Kind)
	}
	assert.Equal(t, []Kind{"apple", "cheese", "wine"}, kinds)
}
