// Package metrics provides observability for the simulation server.
package metrics

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

// Collector gathers performance and simulation metrics.
type Collector struct {
	// Tick metrics
	TickCount      int64
	TickLatencySum int64 // nanoseconds
	TickLatencyMax int64
	LastTickTime   time.Time

	// Event metrics
	EventsWritten    int64
	EventWriteLatSum int64
	EventWriteLatMax int64
	EventWriteErrors int64

	// WebSocket metrics
	WSConnectionsActive int64
	WSMessagesIn        int64
	WSMessagesOut       int64
	WSErrors            int64

	// Simulation metrics
	TriggersFired    int64
	StateTransitions int64
	RoomChanges      int64
	PauseEpisodes    int64

	// System
	StartTime time.Time
	mu        sync.RWMutex
}

// Global collector instance
var collector = New()

// New returns an empty collector. Most callers want the shared one from Get.
func New() *Collector {
	return &Collector{StartTime: time.Now()}
}

// Get returns the global collector.
func Get() *Collector {
	return collector
}

func storeMax(addr *int64, v int64) {
	for {
		cur := atomic.LoadInt64(addr)
		if v <= cur || atomic.CompareAndSwapInt64(addr, cur, v) {
			return
		}
	}
}

// RecordTick records a tick cycle completion.
func (c *Collector) RecordTick(latency time.Duration) {
	atomic.AddInt64(&c.TickCount, 1)
	atomic.AddInt64(&c.TickLatencySum, int64(latency))
	storeMax(&c.TickLatencyMax, int64(latency))

	c.mu.Lock()
	c.LastTickTime = time.Now()
	c.mu.Unlock()
}

// RecordEventWrite records an event write to the database.
func (c *Collector) RecordEventWrite(latency time.Duration, err error) {
	atomic.AddInt64(&c.EventsWritten, 1)
	atomic.AddInt64(&c.EventWriteLatSum, int64(latency))
	storeMax(&c.EventWriteLatMax, int64(latency))

	if err != nil {
		atomic.AddInt64(&c.EventWriteErrors, 1)
	}
}

// RecordWSConnection records WebSocket connection changes.
func (c *Collector) RecordWSConnection(delta int64) {
	atomic.AddInt64(&c.WSConnectionsActive, delta)
}

// RecordWSMessage records WebSocket messages.
func (c *Collector) RecordWSMessage(incoming bool) {
	if incoming {
		atomic.AddInt64(&c.WSMessagesIn, 1)
	} else {
		atomic.AddInt64(&c.WSMessagesOut, 1)
	}
}

// RecordWSError records a WebSocket error.
func (c *Collector) RecordWSError() {
	atomic.AddInt64(&c.WSErrors, 1)
}

// RecordTriggers counts fired exposure triggers.
func (c *Collector) RecordTriggers(n int) {
	atomic.AddInt64(&c.TriggersFired, int64(n))
}

// RecordStateTransition counts a food moving to a later spoilage state.
func (c *Collector) RecordStateTransition() {
	atomic.AddInt64(&c.StateTransitions, 1)
}

// RecordRoomChange counts the observer crossing into another room.
func (c *Collector) RecordRoomChange() {
	atomic.AddInt64(&c.RoomChanges, 1)
}

// RecordPause counts a started room N pause episode.
func (c *Collector) RecordPause() {
	atomic.AddInt64(&c.PauseEpisodes, 1)
}

// Snapshot returns current metrics as a map.
func (c *Collector) Snapshot() map[string]interface{} {
	c.mu.RLock()
	defer c.mu.RUnlock()

	tickCount := atomic.LoadInt64(&c.TickCount)
	eventsWritten := atomic.LoadInt64(&c.EventsWritten)

	// Calculate averages
	var tickAvg, eventAvg float64
	if tickCount > 0 {
		tickAvg = float64(atomic.LoadInt64(&c.TickLatencySum)) / float64(tickCount) / 1e6 // ms
	}
	if eventsWritten > 0 {
		eventAvg = float64(atomic.LoadInt64(&c.EventWriteLatSum)) / float64(eventsWritten) / 1e6
	}

	return map[string]interface{}{
		"uptime_seconds": time.Since(c.StartTime).Seconds(),

		"tick": map[string]interface{}{
			"count":          tickCount,
			"avg_latency_ms": tickAvg,
			"max_latency_ms": float64(atomic.LoadInt64(&c.TickLatencyMax)) / 1e6,
			"last_tick":      c.LastTickTime.Format(time.RFC3339),
		},

		"events": map[string]interface{}{
			"written":          eventsWritten,
			"avg_write_lat_ms": eventAvg,
			"max_write_lat_ms": float64(atomic.LoadInt64(&c.EventWriteLatMax)) / 1e6,
			"errors":           atomic.LoadInt64(&c.EventWriteErrors),
		},

		"websocket": map[string]interface{}{
			"active_connections": atomic.LoadInt64(&c.WSConnectionsActive),
			"messages_in":        atomic.LoadInt64(&c.WSMessagesIn),
			"messages_out":       atomic.LoadInt64(&c.WSMessagesOut),
			"errors":             atomic.LoadInt64(&c.WSErrors),
		},

		"simulation": map[string]interface{}{
			"triggers_fired":    atomic.LoadInt64(&c.TriggersFired),
			"state_transitions": atomic.LoadInt64(&c.StateTransitions),
			"room_changes":      atomic.LoadInt64(&c.RoomChanges),
			"pause_episodes":    atomic.LoadInt64(&c.PauseEpisodes),
		},
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "no-cache")

		snapshot := collector.Snapshot()
		json.NewEncoder(w).Encode(snapshot)
	}
}

func writeMetric(w http.ResponseWriter, name, kind, help string, value interface{}) {
	fmt.Fprintf(w, "# HELP %s %s\n", name, help)
	fmt.Fprintf(w, "# TYPE %s %s\n", name, kind)
	switch v := value.(type) {
	case float64:
		fmt.Fprintf(w, "%s %.2f\n\n", name, v)
	default:
		fmt.Fprintf(w, "%s %v\n\n", name, v)
	}
}

// PrometheusHandler returns metrics in Prometheus format.
func PrometheusHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")

		c := collector

		// Tick metrics
		writeMetric(w, "timerooms_tick_count", "counter", "Total tick cycles", atomic.LoadInt64(&c.TickCount))
		writeMetric(w, "timerooms_tick_latency_max_ms", "gauge", "Maximum tick latency",
			float64(atomic.LoadInt64(&c.TickLatencyMax))/1e6)

		// Event metrics
		writeMetric(w, "timerooms_events_written", "counter", "Total events written", atomic.LoadInt64(&c.EventsWritten))
		writeMetric(w, "timerooms_event_write_errors", "counter", "Total event write errors", atomic.LoadInt64(&c.EventWriteErrors))

		// WebSocket metrics
		writeMetric(w, "timerooms_ws_connections", "gauge", "Active WebSocket connections", atomic.LoadInt64(&c.WSConnectionsActive))

		fmt.Fprintf(w, "# HELP timerooms_ws_messages_total Total WebSocket messages\n")
		fmt.Fprintf(w, "# TYPE timerooms_ws_messages_total counter\n")
		fmt.Fprintf(w, "timerooms_ws_messages_total{direction=\"in\"} %d\n", atomic.LoadInt64(&c.WSMessagesIn))
		fmt.Fprintf(w, "timerooms_ws_messages_total{direction=\"out\"} %d\n\n", atomic.LoadInt64(&c.WSMessagesOut))

		// Simulation metrics
		writeMetric(w, "timerooms_triggers_fired", "counter", "Exposure triggers fired", atomic.LoadInt64(&c.TriggersFired))
		writeMetric(w, "timerooms_state_transitions", "counter", "Food spoilage transitions", atomic.LoadInt64(&c.StateTransitions))
		writeMetric(w, "timerooms_room_changes", "counter", "Observer room changes", atomic.LoadInt64(&c.RoomChanges))
		writeMetric(w, "timerooms_pause_episodes", "counter", "Room N pause episodes", atomic.LoadInt64(&c.PauseEpisodes))
	}
}
