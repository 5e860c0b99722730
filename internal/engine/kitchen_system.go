package engine

import (
	"fmt"

	"github.com/shovit/timerooms/internal/domain/sandwich"
	"github.com/shovit/timerooms/internal/events"
	"github.com/shovit/timerooms/internal/platform/logger"
)

// OrderPayload is attached to ORDER_STARTED.
type OrderPayload struct {
	Index int            `json:"index"`
	Order sandwich.Order `json:"order"`
}

// IngredientPayload is attached to INGREDIENT_ADDED and SANDWICH_COMPLETE.
type IngredientPayload struct {
	IngredientID string   `json:"ingredient_id"`
	Stack        []string `json:"stack"`
}

// KitchenView is the read model of the sandwich counter.
type KitchenView struct {
	Order      *sandwich.Order `json:"order,omitempty"`
	Stack      []string        `json:"stack"`
	Complete   bool            `json:"complete"`
	Preview    sandwich.Score  `json:"preview"`
	LastScore  *sandwich.Score `json:"last_score,omitempty"`
	Deliveries int             `json:"deliveries"`
	TotalStars int             `json:"total_stars"`
}

// KitchenState is the serializable kitchen.
type KitchenState struct {
	Kitchen    sandwich.State  `json:"kitchen"`
	LastScore  *sandwich.Score `json:"last_score,omitempty"`
	Deliveries int             `json:"deliveries"`
	TotalStars int             `json:"total_stars"`
}

// KitchenSystem runs the sandwich counter: orders, stacking and delivery.
type KitchenSystem struct {
	eventLog *events.EventLog
	logger   *logger.Logger
	kitchen  *sandwich.Kitchen

	lastScore  *sandwich.Score
	deliveries int
	totalStars int
}

// NewKitchenSystem wraps a kitchen.
func NewKitchenSystem(el *events.EventLog, log *logger.Logger, k *sandwich.Kitchen) *KitchenSystem {
	return &KitchenSystem{eventLog: el, logger: log, kitchen: k}
}

// StartNewOrder picks orders[index], or a random one for a negative index.
func (ks *KitchenSystem) StartNewOrder(index int, tick int64) (sandwich.Order, error) {
	o, err := ks.kitchen.StartNewOrder(index)
	if err != nil {
		return sandwich.Order{}, err
	}
	ks.eventLog.Append(events.New(events.EventTypeOrderStarted, events.ActorSystem, o.Name, tick,
		OrderPayload{Index: ks.kitchen.Snapshot().OrderIndex, Order: o}))
	ks.logger.Info("[KITCHEN] New order: " + o.Name)
	return o, nil
}

// AddIngredient stacks an ingredient and reports whether the sandwich just became complete.
func (ks *KitchenSystem) AddIngredient(id string, tick int64) (bool, error) {
	done, err := ks.kitchen.Add(id)
	if err != nil {
		return false, fmt.Errorf("add %s: %w", id, err)
	}
	payload := IngredientPayload{IngredientID: id, Stack: ks.kitchen.Stack()}
	ks.eventLog.Append(events.New(events.EventTypeIngredientAdded, ActorPlayer, id, tick, payload))
	if done {
		ks.eventLog.Append(events.New(events.EventTypeSandwichComplete, events.ActorSystem, id, tick, payload))
		ks.logger.Info("[KITCHEN] Sandwich complete")
	}
	return done, nil
}

// Submit delivers the current stack.
func (ks *KitchenSystem) Submit(tick int64) (sandwich.Score, error) {
	s, err := ks.kitchen.Submit()
	if err != nil {
		return s, err
	}
	ks.lastScore = &s
	ks.deliveries++
	ks.totalStars += s.Stars

	ks.eventLog.Append(events.New(events.EventTypeSandwichSubmitted, ActorPlayer, s.OrderName, tick, s))
	ks.logger.Event(string(events.EventTypeSandwichSubmitted), ActorPlayer, s.Summary())
	return s, nil
}

// View returns the read model.
func (ks *KitchenSystem) View() KitchenView {
	v := KitchenView{
		Stack:      ks.kitchen.Stack(),
		Complete:   ks.kitchen.IsComplete(),
		Preview:    ks.kitchen.Evaluate(),
		LastScore:  ks.lastScore,
		Deliveries: ks.deliveries,
		TotalStars: ks.totalStars,
	}
	if o, ok := ks.kitchen.CurrentOrder(); ok {
		v.Order = &o
	}
	return v
}

// State captures the kitchen for persistence.
func (ks *KitchenSystem) State() KitchenState {
	return KitchenState{
		Kitchen:    ks.kitchen.Snapshot(),
		LastScore:  ks.lastScore,
		Deliveries: ks.deliveries,
		TotalStars: ks.totalStars,
	}
}

// Restore reapplies a captured state.
func (ks *KitchenSystem) Restore(s KitchenState) {
	ks.kitchen.Restore(s.Kitchen)
	ks.lastScore = s.LastScore
	ks.deliveries = s.Deliveries
	ks.totalStars = s.TotalStars
}
