package sandwich

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var blt = Order{Name: "BLT", IngredientIDs: []string{"bread", "bacon", "lettuce", "tomato", "bread"}}

func TestEvaluateIgnoreOrder(t *testing.T) {
	s := Evaluate(blt, []string{"Bread", "tomato", "BACON", "bread", "lettuce"}, MatchIgnoreOrder, DefaultRating())
	assert.Equal(t, 5, s.CorrectCount)
	assert.Equal(t, 0, s.WrongCount)
	assert.Equal(t, 0, s.MissingCount)
	assert.Equal(t, 3, s.Stars)
}

func TestEvaluateIgnoreOrderCountsExtrasAndMissing(t *testing.T) {
	s := Evaluate(blt, []string{"bread", "cheese", "bacon", "", "bacon"}, MatchIgnoreOrder, DefaultRating())
	assert.Equal(t, 2, s.CorrectCount)
	assert.Equal(t, 3, s.WrongCount)
	assert.Equal(t, 3, s.MissingCount)
	assert.Equal(t, 1, s.Stars) // 2/5 = 0.4
}

func TestEvaluateExactOrder(t *testing.T) {
	s := Evaluate(blt, []string{"bread", "lettuce", "bacon", "tomato"}, MatchExactOrder, DefaultRating())
	assert.Equal(t, 2, s.CorrectCount) // bread, tomato
	assert.Equal(t, 2, s.WrongCount)
	assert.Equal(t, 3, s.MissingCount)
	assert.Equal(t, 1, s.Stars)
}

func TestStarsPerfectRequiresNoExtras(t *testing.T) {
	r := DefaultRating()
	r.PerfectRequiresNoExtras = true

	s := Evaluate(blt, append(append([]string{}, blt.IngredientIDs...), "pickle"), MatchIgnoreOrder, r)
	assert.Equal(t, 5, s.CorrectCount)
	assert.Equal(t, 1, s.WrongCount)
	assert.Equal(t, 2, s.Stars)

	r.PerfectRequiresNoExtras = false
	assert.Equal(t, 3, r.Stars(s))
}

func TestStarsClampedToMax(t *testing.T) {
	r := DefaultRating()
	r.MaxStars = 2
	assert.Equal(t, 2, r.Stars(Score{RequiredCount: 1, CorrectCount: 1}))
	assert.Equal(t, 0, r.Stars(Score{}))
}

func TestKitchenFlow(t *testing.T) {
	k := NewKitchen([]Order{blt}, DefaultSettings(), rand.New(rand.NewSource(7)))

	_, err := k.Submit()
	assert.ErrorIs(t, err, ErrNoCurrentOrder)

	o, err := k.StartNewOrder(-1)
	require.NoError(t, err)
	assert.Equal(t, "BLT", o.Name)

	for i, id := range blt.IngredientIDs {
		done, err := k.Add(id)
		require.NoError(t, err)
		assert.Equal(t, i == len(blt.IngredientIDs)-1, done)
	}
	assert.True(t, k.IsComplete())

	_, err = k.Add("pickle")
	assert.ErrorIs(t, err, ErrStackLocked)

	s, err := k.Submit()
	require.NoError(t, err)
	assert.Equal(t, 3, s.Stars)
	assert.Empty(t, k.Stack())
	assert.False(t, k.IsComplete())
}

func TestKitchenNoOrders(t *testing.T) {
	k := NewKitchen(nil, DefaultSettings(), nil)
	_, err := k.StartNewOrder(0)
	assert.ErrorIs(t, err, ErrNoOrders)
	_, ok := k.CurrentOrder()
	assert.False(t, ok)
}

func TestKitchenSnapshotRestore(t *testing.T) {
	orders := []Order{blt, {Name: "Toast", IngredientIDs: []string{"bread"}}}
	k := NewKitchen(orders, DefaultSettings(), nil)
	_, err := k.StartNewOrder(5) // clamped to the last order
	require.NoError(t, err)
	_, err = k.Add("bread")
	require.NoError(t, err)

	other := NewKitchen(orders, DefaultSettings(), nil)
	other.Restore(k.Snapshot())

	o, ok := other.CurrentOrder()
	require.True(t, ok)
	assert.Equal(t, "Toast", o.Name)
	assert.Equal(t, []string{"bread"}, other.Stack())
	assert.True(t, other.IsComplete())
}
