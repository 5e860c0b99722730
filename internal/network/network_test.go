package network

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shovit/timerooms/internal/domain/room"
	"github.com/shovit/timerooms/internal/engine"
	"github.com/shovit/timerooms/internal/events"
	"github.com/shovit/timerooms/internal/infra/storage"
	"github.com/shovit/timerooms/internal/platform/logger"
	"github.com/shovit/timerooms/internal/platform/optimization"
)

type testServer struct {
	engine *engine.Engine
	log    *events.EventLog
	hub    *Hub
	srv    *httptest.Server
	ctx    context.Context
}

func newTestServer(t *testing.T, opt *optimization.Config) *testServer {
	t.Helper()
	return buildTestServer(t, opt, events.NewEventLog(nil), nil)
}

// newStoreTestServer writes every event through to an in-memory SQLite ledger.
func newStoreTestServer(t *testing.T) (*testServer, storage.EventRepository) {
	t.Helper()
	db, err := storage.InitSQLite(storage.MemoryPath, nil)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	repo := storage.NewSQLiteEventRepository(db)
	el := events.NewEventLog(storage.NewEventPersister(repo, "test"))
	t.Cleanup(el.Close)
	return buildTestServer(t, nil, el, repo), repo
}

func buildTestServer(t *testing.T, opt *optimization.Config, el *events.EventLog, repo storage.EventRepository) *testServer {
	t.Helper()
	eng, err := engine.NewEngine(engine.DefaultConfig(), el, logger.Discard(), nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	hub := NewHub(eng, logger.Discard(), opt)
	go hub.Run(ctx)

	mux := http.NewServeMux()
	NewAPI(eng, hub, logger.Discard()).RegisterRoutes(mux)
	history := NewHistoryHandler(el, nil, "test", logger.Discard())
	admin := NewAdminBridge(eng, el, hub, logger.Discard())
	if repo != nil {
		recon := storage.NewReconstructor(repo)
		history.recon = recon
		history.WithStore(repo)
		admin.WithAudit(recon, "test")
	}
	history.RegisterRoutes(mux)
	admin.RegisterRoutes(mux)
	srv := httptest.NewServer(mux)

	t.Cleanup(func() {
		srv.Close()
		cancel()
	})
	return &testServer{engine: eng, log: el, hub: hub, srv: srv, ctx: ctx}
}

func (ts *testServer) getJSON(t *testing.T, path string, v interface{}) int {
	t.Helper()
	resp, err := http.Get(ts.srv.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()
	if v != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
	}
	return resp.StatusCode
}

func (ts *testServer) postJSON(t *testing.T, path, body string, v interface{}) int {
	t.Helper()
	resp, err := http.Post(ts.srv.URL+path, "application/json", bytes.NewBufferString(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	if v != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
	}
	return resp.StatusCode
}

func (ts *testServer) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

// nextMessage reads frames until one carries a message of the wanted type.
func nextMessage(t *testing.T, conn *websocket.Conn, msgType string) map[string]interface{} {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		_, frame, err := conn.ReadMessage()
		require.NoError(t, err)
		for _, line := range bytes.Split(frame, []byte{'\n'}) {
			var m map[string]interface{}
			require.NoError(t, json.Unmarshal(line, &m))
			if m["type"] == msgType {
				return m
			}
		}
	}
}

func TestRoomsEndpoint(t *testing.T) {
	ts := newTestServer(t, nil)

	var rooms engine.RoomsView
	assert.Equal(t, http.StatusOK, ts.getJSON(t, "/api/rooms", &rooms))
	require.Len(t, rooms.Rooms, 3)
	assert.Equal(t, 100, rooms.Rooms[room.RoomS].YearInt)
	assert.Equal(t, 2026, rooms.Rooms[room.RoomN].YearInt)
	assert.Equal(t, 3000, rooms.Rooms[room.RoomF].YearInt)

	assert.Equal(t, http.StatusMethodNotAllowed, ts.postJSON(t, "/api/rooms", "{}", nil))
}

func TestReadModelEndpoints(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.engine.Step(1)

	var foods []engine.FoodView
	assert.Equal(t, http.StatusOK, ts.getJSON(t, "/api/foods", &foods))
	assert.Len(t, foods, 3)

	var items []engine.Item
	assert.Equal(t, http.StatusOK, ts.getJSON(t, "/api/items", &items))
	assert.Len(t, items, 5)

	var player engine.PlayerView
	assert.Equal(t, http.StatusOK, ts.getJSON(t, "/api/player", &player))
	assert.Equal(t, room.RoomN, player.Room)

	var kitchen engine.KitchenView
	assert.Equal(t, http.StatusOK, ts.getJSON(t, "/api/kitchen", &kitchen))
	assert.Nil(t, kitchen.Order)

	assert.Equal(t, http.StatusOK, ts.getJSON(t, "/api/altar", nil))
}

func TestPauseEndpoints(t *testing.T) {
	ts := newTestServer(t, nil)

	var rooms engine.RoomsView
	assert.Equal(t, http.StatusOK, ts.postJSON(t, "/api/pause", "", &rooms))
	assert.True(t, rooms.PauseRequested)

	ts.engine.Step(1)
	assert.True(t, ts.engine.Rooms().PauseActive)

	var res map[string]bool
	assert.Equal(t, http.StatusOK, ts.postJSON(t, "/api/pause/cancel", "", &res))
	assert.True(t, res["cancelled"])
	assert.False(t, ts.engine.Rooms().PauseActive)

	assert.Equal(t, http.StatusOK, ts.postJSON(t, "/api/pause/cancel", "", &res))
	assert.False(t, res["cancelled"], "nothing left to cancel")

	assert.Equal(t, http.StatusMethodNotAllowed, ts.getJSON(t, "/api/pause", nil))
}

func TestNewOrderEndpoint(t *testing.T) {
	ts := newTestServer(t, nil)

	var order struct {
		Name string `json:"name"`
	}
	assert.Equal(t, http.StatusOK, ts.postJSON(t, "/api/order/new", `{"index":1}`, &order))
	assert.Equal(t, "Cheese Toastie", order.Name)

	// an empty body picks at random
	assert.Equal(t, http.StatusOK, ts.postJSON(t, "/api/order/new", "", nil))
	assert.Equal(t, http.StatusBadRequest, ts.postJSON(t, "/api/order/new", "{", nil))
}

func TestActionEndpoint(t *testing.T) {
	ts := newTestServer(t, nil)

	var res ActionResult
	assert.Equal(t, http.StatusOK,
		ts.postJSON(t, "/api/action", `{"type":"PICKUP","payload":{"item_id":"apple-1"}}`, &res))
	assert.Equal(t, ActionPickup, res.Action)
	assert.Equal(t, "apple-1", ts.engine.Player().Hands[0])

	var bad map[string]string
	assert.Equal(t, http.StatusUnprocessableEntity,
		ts.postJSON(t, "/api/action", `{"type":"PICKUP","payload":{"item_id":"nope"}}`, &bad))
	assert.Contains(t, bad["error"], "not found")

	assert.Equal(t, http.StatusUnprocessableEntity, ts.postJSON(t, "/api/action", `{"type":"JUMP"}`, nil))
}

func TestDispatchRoutesActions(t *testing.T) {
	ts := newTestServer(t, nil)
	h := ts.hub

	data, err := h.Dispatch(PlayerAction{Type: ActionTeleport, Payload: json.RawMessage(`{"room":2}`)})
	require.NoError(t, err)
	pos, ok := data.(room.Vec3)
	require.True(t, ok)
	assert.Greater(t, pos.X, 0.0)

	ts.engine.Step(1)
	assert.Equal(t, room.RoomF, ts.engine.Player().Room)

	_, err = h.Dispatch(PlayerAction{Type: ActionTeleport, Payload: json.RawMessage(`{"room":7}`)})
	assert.ErrorIs(t, err, engine.ErrTeleportRefused)

	_, err = h.Dispatch(PlayerAction{Type: ActionNewOrder, Payload: json.RawMessage(`{"index":0}`)})
	require.NoError(t, err)
	data, err = h.Dispatch(PlayerAction{Type: ActionAddIngredient, Payload: json.RawMessage(`{"ingredient_id":"bread"}`)})
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"complete": false}, data)

	_, err = h.Dispatch(PlayerAction{Type: ActionSubmitSandwich})
	require.NoError(t, err)
	assert.Equal(t, 1, ts.engine.Kitchen().Deliveries)

	_, err = h.Dispatch(PlayerAction{Type: ActionDrop, Payload: json.RawMessage(`{"hand":1}`)})
	assert.ErrorIs(t, err, engine.ErrHandEmpty)

	_, err = h.Dispatch(PlayerAction{Type: ActionMove, Payload: json.RawMessage(`{"position":`)})
	assert.Error(t, err)
}

func TestClientRateLimit(t *testing.T) {
	opt := optimization.DefaultConfig()
	opt.MaxMessagesPerSecond = 2
	ts := newTestServer(t, opt)
	c := &Client{hub: ts.hub}

	now := time.Unix(100, 0)
	assert.True(t, c.allow(now))
	assert.True(t, c.allow(now.Add(100*time.Millisecond)))
	assert.False(t, c.allow(now.Add(200*time.Millisecond)))
	assert.True(t, c.allow(now.Add(time.Second)), "a new window resets the budget")
}

func TestWebsocketActionAck(t *testing.T) {
	ts := newTestServer(t, nil)
	conn := ts.dial(t)

	require.NoError(t, conn.WriteJSON(PlayerAction{Type: ActionPickup, Payload: json.RawMessage(`{"item_id":"apple-1"}`)}))
	ack := nextMessage(t, conn, MsgTypeAck)
	payload := ack["payload"].(map[string]interface{})
	assert.Equal(t, ActionPickup, payload["action"])

	require.NoError(t, conn.WriteJSON(PlayerAction{Type: ActionDrop, Payload: json.RawMessage(`{"hand":1}`)}))
	errMsg := nextMessage(t, conn, MsgTypeError)
	payload = errMsg["payload"].(map[string]interface{})
	assert.Equal(t, "hand is empty", payload["error"])

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json")))
	errMsg = nextMessage(t, conn, MsgTypeError)
	payload = errMsg["payload"].(map[string]interface{})
	assert.Equal(t, "malformed action", payload["error"])
}

func TestHubBroadcastsPolledEvents(t *testing.T) {
	ts := newTestServer(t, nil)
	conn := ts.dial(t)
	require.Eventually(t, func() bool { return ts.hub.ClientCount() == 1 }, time.Second, 5*time.Millisecond)

	ts.hub.StartEventPoller(ts.ctx, ts.log, 5*time.Millisecond)
	// the poller starts at the current end of the log
	time.Sleep(20 * time.Millisecond)
	ts.engine.MovePlayer(room.Vec3{X: 12, Y: 1})
	ts.engine.Step(1)

	msg := nextMessage(t, conn, MsgTypeEvent)
	payload := msg["payload"].(map[string]interface{})
	assert.Equal(t, string(events.EventTypeRoomChanged), payload["type"])
}

func TestHubRefusesClientsOverLimit(t *testing.T) {
	opt := optimization.DefaultConfig()
	opt.MaxClients = 1
	ts := newTestServer(t, opt)

	ts.dial(t)
	require.Eventually(t, func() bool { return ts.hub.ClientCount() == 1 }, time.Second, 5*time.Millisecond)

	second := ts.dial(t)
	require.NoError(t, second.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := second.ReadMessage()
	assert.Error(t, err, "the refused client is closed")
	assert.Equal(t, 1, ts.hub.ClientCount())
}

func TestHistoryEndpoints(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.engine.Step(1)
	ts.engine.MovePlayer(room.Vec3{X: 12, Y: 1})
	ts.engine.Step(1)
	ts.engine.RequestPause()

	var hist HistoryResponse
	assert.Equal(t, http.StatusOK, ts.getJSON(t, "/api/history", &hist))
	assert.Equal(t, "test", hist.SessionID)
	require.NotEmpty(t, hist.Events)

	assert.Equal(t, http.StatusOK, ts.getJSON(t, "/api/history?type=ROOM_CHANGED", &hist))
	assert.Len(t, hist.Events, 2)

	assert.Equal(t, http.StatusOK, ts.getJSON(t, "/api/history?type=ROOM_CHANGED&since=2", &hist))
	require.Len(t, hist.Events, 1)
	assert.Equal(t, "You walked from room N into room F.", hist.Events[0].Summary)
	assert.Equal(t, "type ROOM_CHANGED", hist.FilteredBy)

	var detail HistoryEvent
	assert.Equal(t, http.StatusOK, ts.getJSON(t, "/api/history/event?event_id="+hist.Events[0].ID, &detail))
	assert.NotNil(t, detail.Details)

	assert.Equal(t, http.StatusNotFound, ts.getJSON(t, "/api/history/event?event_id=missing", nil))
	assert.Equal(t, http.StatusBadRequest, ts.getJSON(t, "/api/history?since=x", nil))

	var stats struct {
		Total  int            `json:"total_events"`
		ByType map[string]int `json:"by_type"`
	}
	assert.Equal(t, http.StatusOK, ts.getJSON(t, "/api/history/stats", &stats))
	assert.Equal(t, 1, stats.ByType["PAUSE_REQUESTED"])
	assert.Equal(t, ts.log.Len(), stats.Total)

	assert.Equal(t, http.StatusServiceUnavailable, ts.getJSON(t, "/api/recap?since=0", nil))
}

func TestAdminSpawnAndStatus(t *testing.T) {
	ts := newTestServer(t, nil)

	var item engine.Item
	assert.Equal(t, http.StatusOK,
		ts.postJSON(t, "/api/admin/spawn", `{"kind":"wine","position":{"x":12,"y":1,"z":0}}`, &item))
	assert.Equal(t, "wine", item.Name)
	assert.Len(t, ts.engine.Foods(), 4)

	assert.Equal(t, http.StatusUnprocessableEntity,
		ts.postJSON(t, "/api/admin/spawn", `{"kind":"durian"}`, nil))
	assert.Equal(t, http.StatusBadRequest, ts.postJSON(t, "/api/admin/spawn", `{}`, nil))

	var status map[string]interface{}
	assert.Equal(t, http.StatusOK, ts.getJSON(t, "/api/admin/status", &status))
	assert.Equal(t, float64(0), status["tick"])
}

func TestActionEndpointSharesTheMessageBudget(t *testing.T) {
	opt := optimization.DefaultConfig()
	opt.MaxMessagesPerSecond = 2
	ts := newTestServer(t, opt)

	body := `{"type":"MOVE","payload":{"position":{"x":0,"y":1,"z":0}}}`
	assert.Equal(t, http.StatusOK, ts.postJSON(t, "/api/action", body, nil))
	assert.Equal(t, http.StatusOK, ts.postJSON(t, "/api/action", body, nil))

	var res map[string]string
	assert.Equal(t, http.StatusTooManyRequests, ts.postJSON(t, "/api/action", body, &res))
	assert.Equal(t, "rate limit exceeded", res["error"])
}

func TestPeerLimiterCountsHostsSeparately(t *testing.T) {
	l := newPeerLimiter(func() int { return 1 })
	now := time.Unix(100, 0)

	assert.True(t, l.allow("10.0.0.1", now))
	assert.False(t, l.allow("10.0.0.1", now.Add(10*time.Millisecond)))
	assert.True(t, l.allow("10.0.0.2", now.Add(10*time.Millisecond)))
	assert.True(t, l.allow("10.0.0.1", now.Add(time.Second)))
}

func TestStoredHistory(t *testing.T) {
	ts, repo := newStoreTestServer(t)
	ts.engine.MovePlayer(room.Vec3{X: 0, Y: 1, Z: 0})
	ts.engine.Step(1)
	ts.engine.MovePlayer(room.Vec3{X: 12, Y: 1, Z: 0})
	ts.engine.Step(1)

	// the ledger is written asynchronously
	require.Eventually(t, func() bool {
		recs, err := repo.GetByEventType(context.Background(), "test", string(events.EventTypeRoomChanged))
		return err == nil && len(recs) == 2
	}, 2*time.Second, 5*time.Millisecond)

	var byType HistoryResponse
	assert.Equal(t, http.StatusOK, ts.getJSON(t, "/api/history?source=store&type=ROOM_CHANGED&since=2", &byType))
	require.Len(t, byType.Events, 1)
	assert.Equal(t, "You walked from room N into room F.", byType.Events[0].Summary)
	assert.Equal(t, "type ROOM_CHANGED", byType.FilteredBy)

	var byTarget HistoryResponse
	assert.Equal(t, http.StatusOK, ts.getJSON(t, "/api/history?source=store&target=wine-1", &byTarget))
	require.NotEmpty(t, byTarget.Events)
	for _, e := range byTarget.Events {
		assert.Equal(t, "wine-1", e.TargetID)
	}
	assert.Equal(t, "FOOD_SPAWNED", byTarget.Events[0].Type)

	assert.Equal(t, http.StatusBadRequest, ts.getJSON(t, "/api/history?source=disk", nil))

	plain := newTestServer(t, nil)
	assert.Equal(t, http.StatusServiceUnavailable, plain.getJSON(t, "/api/history?source=store", nil))
}

func TestAdminAuditComparesLedgerWithEngine(t *testing.T) {
	ts, _ := newStoreTestServer(t)

	var report AuditReport
	require.Eventually(t, func() bool {
		report = AuditReport{}
		return ts.getJSON(t, "/api/admin/audit", &report) == http.StatusOK && report.Mismatches == 0
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, "test", report.SessionID)
	assert.Equal(t, len(ts.engine.Foods()), report.Checked)
	for _, f := range report.Foods {
		assert.True(t, f.Match, f.FoodID)
		require.NotNil(t, f.Ledger)
		assert.Equal(t, f.Live, *f.Ledger)
	}

	plain := newTestServer(t, nil)
	assert.Equal(t, http.StatusServiceUnavailable, plain.getJSON(t, "/api/admin/audit", nil))
}
