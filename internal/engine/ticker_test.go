package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shovit/timerooms/internal/events"
	"github.com/shovit/timerooms/internal/platform/logger"
)

type stepRecorder struct {
	mu  sync.Mutex
	dts []float64
	ch  chan struct{}
}

func (r *stepRecorder) step(dt float64) {
	r.mu.Lock()
	r.dts = append(r.dts, dt)
	r.mu.Unlock()
	r.ch <- struct{}{}
}

func (r *stepRecorder) wait(t *testing.T) {
	t.Helper()
	select {
	case <-r.ch:
	case <-time.After(2 * time.Second):
		t.Fatal("ticker did not step")
	}
}

func TestTickerStepsWithElapsedSeconds(t *testing.T) {
	clk := clockwork.NewFakeClock()
	rec := &stepRecorder{ch: make(chan struct{}, 4)}
	tk := NewTicker(clk, 100*time.Millisecond, 2, rec.step, logger.Discard())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		tk.Start(ctx)
		close(done)
	}()

	clk.BlockUntil(1)
	clk.Advance(100 * time.Millisecond)
	rec.wait(t)
	clk.Advance(100 * time.Millisecond)
	rec.wait(t)

	tk.Stop()
	<-done

	rec.mu.Lock()
	defer rec.mu.Unlock()
	require.Len(t, rec.dts, 2)
	for _, dt := range rec.dts {
		assert.InDelta(t, 0.2, dt, 1e-9) // 0.1 s scaled by 2
	}
}

func TestTickerDrivesEngine(t *testing.T) {
	clk := clockwork.NewFakeClock()
	cfg := DefaultConfig()
	cfg.Spawners = nil
	cfg.TickRate = time.Second
	e, err := NewEngine(cfg, events.NewEventLog(nil), logger.Discard(), clk)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	e.MovePlayer(posN)
	e.Start(ctx)

	clk.BlockUntil(1)
	for i := 0; i < 3; i++ {
		clk.Advance(time.Second)
		require.Eventually(t, func() bool { return e.Tick() == int64(i+1) }, 2*time.Second, time.Millisecond)
	}

	// Fast room at 1 y/s with the observer in N.
	assert.Equal(t, 3003, e.Rooms().Rooms[2].YearInt)
}

type discardPersister struct{}

func (discardPersister) Append(events.GameEvent) error { return nil }

// Stop then Snapshot then Close is the server's shutdown order. Nothing may step in between.
func TestEngineStopWaitsForTheLastStep(t *testing.T) {
	for i := 0; i < 25; i++ {
		clk := clockwork.NewFakeClock()
		cfg := DefaultConfig()
		cfg.TickRate = time.Millisecond
		cfg.BroadcastEveryTicks = 1
		el := events.NewBufferedEventLog(discardPersister{}, 1)
		e, err := NewEngine(cfg, el, logger.Discard(), clk)
		require.NoError(t, err)

		ctx, cancel := context.WithCancel(context.Background())
		e.Start(ctx)
		clk.BlockUntil(1)
		clk.Advance(time.Millisecond)

		cancel()
		e.Stop()
		saved := e.Snapshot()
		el.Close()

		clk.Advance(time.Millisecond)
		assert.Equal(t, saved.Tick, e.Tick())
		assert.NotPanics(t, func() { e.Step(1) })
	}
}

func TestEngineStopWithoutStart(t *testing.T) {
	e, _ := newTestEngine(t, nil)

	done := make(chan struct{})
	go func() {
		e.Stop()
		e.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop blocked on an engine that never started")
	}
}
