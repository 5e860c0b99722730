package network

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/gorilla/websocket"

	"github.com/shovit/timerooms/internal/domain/room"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second
	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second
	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10
	// Maximum message size allowed from peer.
	maxMessageSize = 1024
)

// Player action types accepted over the socket.
const (
	ActionMove           = "MOVE"
	ActionTeleport       = "TELEPORT"
	ActionPickup         = "PICKUP"
	ActionDrop           = "DROP"
	ActionDropCrystal    = "DROP_CRYSTAL"
	ActionDeposit        = "DEPOSIT"
	ActionAddIngredient  = "ADD_INGREDIENT"
	ActionSubmitSandwich = "SUBMIT_SANDWICH"
	ActionNewOrder       = "NEW_ORDER"
)

// PlayerAction represents an incoming command from the frontend.
type PlayerAction struct {
	Type    string          `json:"type"`    // "MOVE", "PICKUP", "DROP", ...
	Payload json.RawMessage `json:"payload"` // Action-specific data
}

// ActionResult is the ACK or ERROR sent back to the client that issued an action.
type ActionResult struct {
	Action string      `json:"action"`
	Error  string      `json:"error,omitempty"`
	Data   interface{} `json:"data,omitempty"`
}

// Client holds one websocket connection.
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	budget rateWindow
}

// NewClient creates a new WebSocket client and returns it.
func NewClient(hub *Hub, conn *websocket.Conn) *Client {
	return &Client{
		hub:  hub,
		conn: conn,
		send: make(chan []byte, hub.opt.ClientSendBuffer),
	}
}

// Register adds the client to the hub.
func (c *Client) Register() {
	select {
	case c.hub.register <- c:
	case <-c.hub.done:
		close(c.send)
	}
}

// ReadPump pumps actions from the websocket connection into the engine.
func (c *Client) ReadPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Warn("websocket read: " + err.Error())
			}
			break
		}
		c.hub.metrics.RecordWSMessage(true)

		var action PlayerAction
		if err := json.Unmarshal(message, &action); err != nil {
			c.hub.logger.Error("Failed to parse PlayerAction from WebSocket. err: " + err.Error())
			c.reply(MsgTypeError, ActionResult{Error: "malformed action"})
			continue
		}

		c.handlePlayerAction(action)
	}
}

// allow applies the per-client message budget over a one second window.
func (c *Client) allow(now time.Time) bool {
	return c.budget.allow(now, c.hub.opt.MaxMessagesPerSecond)
}

func (c *Client) handlePlayerAction(action PlayerAction) {
	// 1. Rate Limiting Check
	if !c.allow(time.Now()) {
		c.hub.logger.Warn("Rate limit exceeded for client action " + action.Type)
		c.reply(MsgTypeError, ActionResult{Action: action.Type, Error: "rate limit exceeded"})
		return
	}

	// 2. Route to the engine command
	data, err := c.hub.Dispatch(action)
	if err != nil {
		c.reply(MsgTypeError, ActionResult{Action: action.Type, Error: err.Error()})
		return
	}
	c.reply(MsgTypeAck, ActionResult{Action: action.Type, Data: data})
}

func (c *Client) reply(msgType string, res ActionResult) {
	b, err := json.Marshal(Message{Type: msgType, Payload: res})
	if err != nil {
		c.hub.logger.Error("Failed to serialize reply: " + err.Error())
		return
	}
	c.hub.sendTo(c, b)
}

// sendTo queues a message for one client. Closed or full queues drop it.
func (h *Hub) sendTo(c *Client, msg []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.clients[c] {
		return
	}
	select {
	case c.send <- msg:
	default:
		h.metrics.RecordWSError()
	}
}

type movePayload struct {
	Position room.Vec3 `json:"position"`
}

type roomPayload struct {
	Room int `json:"room"`
}

type itemPayload struct {
	ItemID string `json:"item_id"`
}

type handPayload struct {
	Hand int `json:"hand"`
}

type ingredientPayload struct {
	IngredientID string `json:"ingredient_id"`
}

type orderPayload struct {
	Index *int `json:"index"` // nil picks at random
}

// Dispatch runs a player action against the engine and returns its result.
func (h *Hub) Dispatch(action PlayerAction) (interface{}, error) {
	eng := h.engine
	switch action.Type {
	case ActionMove:
		var p movePayload
		if err := decode(action.Payload, &p); err != nil {
			return nil, err
		}
		eng.MovePlayer(p.Position)
		return eng.Player(), nil
	case ActionTeleport:
		var p roomPayload
		if err := decode(action.Payload, &p); err != nil {
			return nil, err
		}
		return eng.Teleport(p.Room)
	case ActionPickup:
		var p itemPayload
		if err := decode(action.Payload, &p); err != nil {
			return nil, err
		}
		return eng.Pickup(p.ItemID)
	case ActionDrop:
		var p handPayload
		if err := decode(action.Payload, &p); err != nil {
			return nil, err
		}
		return eng.Drop(p.Hand)
	case ActionDropCrystal:
		var p handPayload
		if err := decode(action.Payload, &p); err != nil {
			return nil, err
		}
		return nil, eng.DropCrystal(p.Hand)
	case ActionDeposit:
		var p handPayload
		if err := decode(action.Payload, &p); err != nil {
			return nil, err
		}
		return eng.Deposit(p.Hand)
	case ActionAddIngredient:
		var p ingredientPayload
		if err := decode(action.Payload, &p); err != nil {
			return nil, err
		}
		done, err := eng.AddIngredient(p.IngredientID)
		return map[string]bool{"complete": done}, err
	case ActionSubmitSandwich:
		return eng.SubmitSandwich()
	case ActionNewOrder:
		var p orderPayload
		if err := decode(action.Payload, &p); err != nil {
			return nil, err
		}
		index := -1
		if p.Index != nil {
			index = *p.Index
		}
		return eng.StartNewOrder(index)
	default:
		h.logger.Warn("Unknown PlayerAction type: " + action.Type)
		return nil, fmt.Errorf("unknown action %q", action.Type)
	}
}

func decode(raw json.RawMessage, v interface{}) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("bad payload: %w", err)
	}
	return nil
}

// WritePump pumps messages from the hub to the websocket connection.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			// Add queued messages to the current websocket message.
			n := len(c.send)
			for i := 0; i < n; i++ {
				w.Write([]byte{'\n'})
				w.Write(<-c.send)
			}

			if err := w.Close(); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
