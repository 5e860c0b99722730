// Package engine contains the simulation loop: the room clock, the exposure trackers and the
// systems that react to every tick.
//
// ARCHITECTURAL RULE: the clock is fully advanced before any system reads it. Systems never
// advance the clock themselves; they receive the tick payload and emit events to the EventLog.
package engine

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/shovit/timerooms/internal/domain/room"
	"github.com/shovit/timerooms/internal/platform/logger"
)

// DefaultTickRate is how often the simulation steps in real time.
const DefaultTickRate = 50 * time.Millisecond

// maxStepSeconds caps dt after a stall so a suspended process does not jump decades at once.
const maxStepSeconds = 1.0

// TimeTickPayload is the data attached to each TIME_TICK. It is also the read-only view of the
// clock handed to systems, so it satisfies YearReader.
type TimeTickPayload struct {
	TickNumber     int64               `json:"tick_number"`
	DT             float64             `json:"dt"`
	ObserverRoom   int                 `json:"observer_room"`
	Years          [room.Count]float64 `json:"years"`
	YearsInt       [room.Count]int     `json:"years_int"`
	Rates          [room.Count]float64 `json:"rates"`
	Paused         bool                `json:"paused"`
	PauseRemaining float64             `json:"pause_remaining"`
}

// YearInt returns the floored year of room i as of this tick.
func (p TimeTickPayload) YearInt(i int) int {
	if !room.Valid(i) {
		return 0
	}
	return p.YearsInt[i]
}

// Ticker manages the simulation heartbeat.
// It does NOT know about rooms or food - only real time progression.
type Ticker struct {
	clock     clockwork.Clock
	interval  time.Duration
	timeScale float64
	step      func(dt float64)
	logger    *logger.Logger
	stopChan  chan struct{}
	stopOnce  sync.Once
	done      chan struct{}
}

// NewTicker creates a ticker that calls step with the elapsed real seconds, multiplied by
// timeScale, every interval.
func NewTicker(clock clockwork.Clock, interval time.Duration, timeScale float64, step func(dt float64), log *logger.Logger) *Ticker {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if interval <= 0 {
		interval = DefaultTickRate
	}
	if timeScale <= 0 {
		timeScale = 1
	}
	return &Ticker{
		clock:     clock,
		interval:  interval,
		timeScale: timeScale,
		step:      step,
		logger:    log,
		stopChan:  make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// Start begins the loop. Call in a goroutine, once. Done is closed when it returns.
func (t *Ticker) Start(ctx context.Context) {
	defer close(t.done)
	t.logger.Info("Room clock ticker started.")

	ticker := t.clock.NewTicker(t.interval)
	defer ticker.Stop()

	last := t.clock.Now()
	for {
		select {
		case <-ctx.Done():
			t.logger.Info("Room clock ticker stopped by context.")
			return
		case <-t.stopChan:
			t.logger.Info("Room clock ticker stopped manually.")
			return
		case now := <-ticker.Chan():
			dt := now.Sub(last).Seconds()
			last = now
			if dt > maxStepSeconds {
				t.logger.Warn("Tick stalled, clamping dt")
				dt = maxStepSeconds
			}
			t.step(dt * t.timeScale)
		}
	}
}

// Stop gracefully stops the ticker. It does not wait for an in-flight step; use Done for that.
func (t *Ticker) Stop() {
	t.stopOnce.Do(func() { close(t.stopChan) })
}

// Done is closed once Start has returned and no step is running.
func (t *Ticker) Done() <-chan struct{} {
	return t.done
}
