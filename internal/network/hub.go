package network

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/shovit/timerooms/internal/engine"
	"github.com/shovit/timerooms/internal/events"
	"github.com/shovit/timerooms/internal/platform/logger"
	"github.com/shovit/timerooms/internal/platform/metrics"
	"github.com/shovit/timerooms/internal/platform/optimization"
)

// DefaultPollInterval is how often the hub looks for new events.
const DefaultPollInterval = 100 * time.Millisecond

// Hub maintains the set of active clients and broadcasts messages to them.
type Hub struct {
	engine     *engine.Engine
	clients    map[*Client]bool
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	mu         sync.Mutex
	logger     *logger.Logger
	metrics    *metrics.Collector
	opt        *optimization.Config
}

// NewHub initializes a new WebSocket Hub.
func NewHub(eng *engine.Engine, log *logger.Logger, opt *optimization.Config) *Hub {
	if opt == nil {
		opt = optimization.DefaultConfig()
	}
	return &Hub{
		engine:     eng,
		broadcast:  make(chan []byte, opt.BroadcastChannelBuffer),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		clients:    make(map[*Client]bool),
		logger:     log,
		metrics:    metrics.Get(),
		opt:        opt,
	}
}

// Run starts the Hub's main loop to handle client connections and broadcasts.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.logger.Info("WebSocket Hub shutting down.")
			h.mu.Lock()
			for client := range h.clients {
				close(client.send)
				delete(h.clients, client)
			}
			h.mu.Unlock()
			return
		case client := <-h.register:
			h.mu.Lock()
			if len(h.clients) >= h.opt.MaxClients {
				h.mu.Unlock()
				h.logger.Warn("Client limit reached, refusing connection")
				close(client.send)
				continue
			}
			h.clients[client] = true
			h.mu.Unlock()
			h.metrics.RecordWSConnection(1)
			h.logger.Info("New WebSocket client connected")
		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
				h.metrics.RecordWSConnection(-1)
				h.logger.Info("WebSocket client disconnected")
			}
			h.mu.Unlock()
		case message := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				select {
				case client.send <- message:
					h.metrics.RecordWSMessage(false)
				default:
					// slow consumer
					close(client.send)
					delete(h.clients, client)
					h.metrics.RecordWSConnection(-1)
					h.metrics.RecordWSError()
				}
			}
			h.mu.Unlock()
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Message is the envelope of everything the server sends over the socket.
type Message struct {
	Type    string      `json:"type"` // "EVENT", "ACK", "ERROR", "STATE"
	Payload interface{} `json:"payload,omitempty"`
}

const (
	MsgTypeEvent = "EVENT"
	MsgTypeAck   = "ACK"
	MsgTypeError = "ERROR"
	MsgTypeState = "STATE"
)

// BroadcastEvent takes a GameEvent, serializes it to JSON, and sends it to all connected clients.
func (h *Hub) BroadcastEvent(ctx context.Context, event events.GameEvent) {
	payload, err := json.Marshal(Message{Type: MsgTypeEvent, Payload: event})
	if err != nil {
		h.logger.Error("Failed to serialize GameEvent for WebSocket broadcast: " + err.Error())
		return
	}
	select {
	case h.broadcast <- payload:
	case <-ctx.Done():
	}
}

// StartEventPoller spawns a goroutine that polls the EventLog and pushes new events to the Hub.
// This lets the Hub run independently from the engine's tick loop while picking up the same events.
func (h *Hub) StartEventPoller(ctx context.Context, eventLog *events.EventLog, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	go func() {
		pollInterval := time.NewTicker(interval)
		defer pollInterval.Stop()

		lastProcessed := eventLog.Len()
		for {
			select {
			case <-ctx.Done():
				return
			case <-pollInterval.C:
				newEvents := eventLog.Since(lastProcessed)
				for _, event := range newEvents {
					h.BroadcastEvent(ctx, event)
				}
				lastProcessed += len(newEvents)
			}
		}
	}()
}
