package network

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/shovit/timerooms/internal/engine"
	"github.com/shovit/timerooms/internal/platform/logger"
)

// API serves the read models and the player commands over plain HTTP.
type API struct {
	engine  *engine.Engine
	hub     *Hub
	logger  *logger.Logger
	actions *peerLimiter
}

// NewAPI creates the HTTP handlers. /api/action shares the websocket message budget, counted
// per remote host.
func NewAPI(eng *engine.Engine, hub *Hub, log *logger.Logger) *API {
	return &API{
		engine:  eng,
		hub:     hub,
		logger:  log,
		actions: newPeerLimiter(func() int { return hub.opt.MaxMessagesPerSecond }),
	}
}

// RegisterRoutes sets up the simulation API routes.
func (a *API) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/ws", a.ServeWs)
	mux.HandleFunc("/api/rooms", a.get(func() interface{} { return a.engine.Rooms() }))
	mux.HandleFunc("/api/foods", a.get(func() interface{} { return a.engine.Foods() }))
	mux.HandleFunc("/api/player", a.get(func() interface{} { return a.engine.Player() }))
	mux.HandleFunc("/api/items", a.get(func() interface{} { return a.engine.Items() }))
	mux.HandleFunc("/api/kitchen", a.get(func() interface{} { return a.engine.Kitchen() }))
	mux.HandleFunc("/api/altar", a.get(func() interface{} { return a.engine.Altar() }))
	mux.HandleFunc("/api/pause", a.HandlePause)
	mux.HandleFunc("/api/pause/cancel", a.HandleCancelPause)
	mux.HandleFunc("/api/order/new", a.HandleNewOrder)
	mux.HandleFunc("/api/action", a.HandleAction)
}

func (a *API) get(read func() interface{}) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			jsonError(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		jsonSuccess(w, read())
	}
}

// HandlePause freezes room N from the next tick.
// POST /api/pause
func (a *API) HandlePause(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		jsonError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	a.engine.RequestPause()
	a.logger.Event("PAUSE_API", "HTTP", "room N pause requested")
	jsonSuccess(w, a.engine.Rooms())
}

// HandleCancelPause unfreezes room N immediately.
// POST /api/pause/cancel
func (a *API) HandleCancelPause(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		jsonError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	jsonSuccess(w, map[string]bool{"cancelled": a.engine.CancelPause()})
}

// HandleNewOrder starts a sandwich order. The body may name an order index.
// POST /api/order/new {"index": 1}
func (a *API) HandleNewOrder(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		jsonError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req orderPayload
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		jsonError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	index := -1
	if req.Index != nil {
		index = *req.Index
	}
	order, err := a.engine.StartNewOrder(index)
	if err != nil {
		jsonError(w, err.Error(), http.StatusConflict)
		return
	}
	jsonSuccess(w, order)
}

// HandleAction runs the same player actions the websocket accepts.
// POST /api/action {"type": "PICKUP", "payload": {"item_id": "apple-1"}}
func (a *API) HandleAction(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		jsonError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !a.actions.allow(remoteHost(r), time.Now()) {
		a.logger.Warn("Rate limit exceeded for HTTP action from " + remoteHost(r))
		jsonError(w, "rate limit exceeded", http.StatusTooManyRequests)
		return
	}
	var action PlayerAction
	if err := json.NewDecoder(r.Body).Decode(&action); err != nil {
		jsonError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	data, err := a.hub.Dispatch(action)
	if err != nil {
		jsonError(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}
	jsonSuccess(w, ActionResult{Action: action.Type, Data: data})
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow cross-origin requests for the browser client dev server
	},
}

// ServeWs handles websocket requests from the peer.
func (a *API) ServeWs(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		a.logger.Error("Failed to upgrade websocket connection")
		a.hub.metrics.RecordWSError()
		return
	}

	client := NewClient(a.hub, conn)
	client.Register()

	// Allow collection of memory referenced by the caller by doing all work in
	// new goroutines.
	go client.WritePump()
	go client.ReadPump()
}

// jsonError sends an error response.
func jsonError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// jsonSuccess sends a success response.
func jsonSuccess(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(data)
}
