package sandwich

import (
	"errors"
	"math/rand"
)

// ErrNoOrders is returned when the kitchen has no orders configured.
var ErrNoOrders = errors.New("no orders configured")

// ErrNoCurrentOrder is returned when a sandwich is submitted before an order is started.
var ErrNoCurrentOrder = errors.New("no current order")

// ErrStackLocked is returned when an ingredient is added to a completed stack.
var ErrStackLocked = errors.New("stack is locked")

// Settings tune the kitchen.
type Settings struct {
	Mode                  MatchMode `json:"match_mode" yaml:"match_mode" jsonschema:"enum=ignore_order,enum=exact_order"`
	Rating                Rating    `json:"rating" yaml:"rating"`
	RequireNoExtrasToLock bool      `json:"require_no_extras_to_lock" yaml:"require_no_extras_to_lock"`
	LockWhenComplete      bool      `json:"lock_when_complete" yaml:"lock_when_complete"`
	ResetOnNewOrder       bool      `json:"reset_on_new_order" yaml:"reset_on_new_order"`
}

// DefaultSettings are the kitchen defaults.
func DefaultSettings() Settings {
	return Settings{
		Mode:             MatchIgnoreOrder,
		Rating:           DefaultRating(),
		LockWhenComplete: true,
		ResetOnNewOrder:  true,
	}
}

// Kitchen holds the current order and the sandwich being stacked for it.
type Kitchen struct {
	settings Settings
	orders   []Order
	rng      *rand.Rand

	current  *Order
	index    int
	stack    []string
	complete bool
}

// NewKitchen creates a kitchen. rng picks random orders; pass a seeded source for determinism.
func NewKitchen(orders []Order, settings Settings, rng *rand.Rand) *Kitchen {
	if rng == nil {
		rng = rand.New(rand.NewSource(1))
	}
	return &Kitchen{
		settings: settings,
		orders:   append([]Order(nil), orders...),
		rng:      rng,
		index:    -1,
	}
}

// StartNewOrder selects orders[index], or a random order when index < 0. Out-of-range indices
// are clamped.
func (k *Kitchen) StartNewOrder(index int) (Order, error) {
	if len(k.orders) == 0 {
		k.current = nil
		k.index = -1
		return Order{}, ErrNoOrders
	}
	if index < 0 {
		index = k.rng.Intn(len(k.orders))
	}
	index = min(max(index, 0), len(k.orders)-1)

	k.index = index
	o := k.orders[index]
	k.current = &o

	if k.settings.ResetOnNewOrder {
		k.stack = nil
		k.complete = false
	}
	return o, nil
}

// CurrentOrder returns the active order.
func (k *Kitchen) CurrentOrder() (Order, bool) {
	if k.current == nil {
		return Order{}, false
	}
	return *k.current, true
}

// Add places an ingredient on top of the stack and reports whether the stack just completed.
func (k *Kitchen) Add(ingredientID string) (bool, error) {
	if k.complete && k.settings.LockWhenComplete {
		return false, ErrStackLocked
	}
	k.stack = append(k.stack, ingredientID)

	if k.current == nil || k.complete {
		return false, nil
	}
	s := k.Evaluate()
	if Complete(s, k.settings.RequireNoExtrasToLock) {
		k.complete = true
		return true, nil
	}
	return false, nil
}

// Stack returns the ingredient ids, bottom first.
func (k *Kitchen) Stack() []string {
	return append([]string(nil), k.stack...)
}

// IsComplete reports whether the current stack satisfies the order.
func (k *Kitchen) IsComplete() bool {
	return k.complete
}

// Evaluate scores the current stack. Without an order the score is named NO_ORDER.
func (k *Kitchen) Evaluate() Score {
	if k.current == nil {
		return Score{OrderName: "NO_ORDER"}
	}
	return Evaluate(*k.current, k.stack, k.settings.Mode, k.settings.Rating)
}

// Submit delivers the stack, scores it and clears the counter for the next sandwich.
func (k *Kitchen) Submit() (Score, error) {
	if k.current == nil {
		return Score{OrderName: "NO_ORDER"}, ErrNoCurrentOrder
	}
	s := k.Evaluate()
	k.stack = nil
	k.complete = false
	return s, nil
}

// State is the serializable kitchen state.
type State struct {
	OrderIndex int      `json:"order_index"`
	Stack      []string `json:"stack"`
	Complete   bool     `json:"complete"`
}

// Snapshot captures the kitchen for persistence.
func (k *Kitchen) Snapshot() State {
	return State{OrderIndex: k.index, Stack: k.Stack(), Complete: k.complete}
}

// Restore reapplies a snapshot. An index outside the configured orders clears the order.
func (k *Kitchen) Restore(s State) {
	k.stack = append([]string(nil), s.Stack...)
	k.complete = s.Complete
	if s.OrderIndex < 0 || s.OrderIndex >= len(k.orders) {
		k.current = nil
		k.index = -1
		return
	}
	o := k.orders[s.OrderIndex]
	k.current = &o
	k.index = s.OrderIndex
}
