// Package network - history.go
// History endpoints: the in-memory event log for the live session, the stored ledger and the
// stored recap for clients that come back after a while.
package network

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/shovit/timerooms/internal/events"
	"github.com/shovit/timerooms/internal/infra/storage"
	"github.com/shovit/timerooms/internal/platform/logger"
)

const recapTimeout = 5 * time.Second

// HistoryHandler provides the history API.
type HistoryHandler struct {
	eventLog  *events.EventLog
	recon     *storage.Reconstructor
	store     storage.EventRepository
	sessionID string
	logger    *logger.Logger
}

// NewHistoryHandler creates a new history handler. recon may be nil when no database is attached.
func NewHistoryHandler(el *events.EventLog, recon *storage.Reconstructor, sessionID string, log *logger.Logger) *HistoryHandler {
	return &HistoryHandler{
		eventLog:  el,
		recon:     recon,
		sessionID: sessionID,
		logger:    log,
	}
}

// WithStore lets /api/history?source=store read the stored ledger.
func (hh *HistoryHandler) WithStore(repo storage.EventRepository) *HistoryHandler {
	hh.store = repo
	return hh
}

// HistoryEvent is an event as shown to the player.
type HistoryEvent struct {
	ID        string      `json:"id"`
	Timestamp string      `json:"timestamp"`
	Tick      int64       `json:"tick"`
	Type      string      `json:"type"`
	ActorID   string      `json:"actor_id"`
	TargetID  string      `json:"target_id,omitempty"`
	Summary   string      `json:"summary"`
	Impact    string      `json:"impact"`
	Details   interface{} `json:"details,omitempty"`
}

// HistoryResponse is the API response for the history list.
type HistoryResponse struct {
	SessionID   string         `json:"session_id"`
	TotalEvents int            `json:"total_events"`
	FilteredBy  string         `json:"filtered_by,omitempty"`
	GeneratedAt string         `json:"generated_at"`
	Events      []HistoryEvent `json:"events"`
}

// HandleHistory lists the events of the live session, or of the stored ledger with
// source=store. The stored ledger also holds what happened before the last restart.
// GET /api/history?since=TICK&type=FOOD_STATE_CHANGED&target=apple-1&source=store
func (hh *HistoryHandler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	q := r.URL.Query()
	var since int64
	if s := q.Get("since"); s != "" {
		v, err := strconv.ParseInt(s, 10, 64)
		if err != nil || v < 0 {
			jsonError(w, "Invalid since", http.StatusBadRequest)
			return
		}
		since = v
	}
	eventType := q.Get("type")
	target := q.Get("target")

	filterDesc := ""
	if eventType != "" {
		filterDesc = "type " + eventType
	}
	if target != "" {
		if filterDesc != "" {
			filterDesc += ", "
		}
		filterDesc += "target " + target
	}

	switch q.Get("source") {
	case "", "live":
	case "store":
		hh.handleStoredHistory(w, r, since, eventType, target, filterDesc)
		return
	default:
		jsonError(w, "Invalid source", http.StatusBadRequest)
		return
	}

	out := make([]HistoryEvent, 0)
	for _, e := range hh.eventLog.Replay() {
		if e.Tick < since {
			continue
		}
		if eventType != "" && string(e.Type) != eventType {
			continue
		}
		if target != "" && e.TargetID != target {
			continue
		}
		out = append(out, hh.convert(e, false))
	}

	jsonSuccess(w, HistoryResponse{
		SessionID:   hh.sessionID,
		TotalEvents: len(out),
		FilteredBy:  filterDesc,
		GeneratedAt: time.Now().Format(time.RFC3339),
		Events:      out,
	})
}

func (hh *HistoryHandler) handleStoredHistory(w http.ResponseWriter, r *http.Request, since int64, eventType, target, filterDesc string) {
	if hh.store == nil {
		jsonError(w, "No event store attached", http.StatusServiceUnavailable)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), recapTimeout)
	defer cancel()
	var (
		records []storage.EventRecord
		err     error
	)
	switch {
	case eventType != "":
		records, err = hh.store.GetByEventType(ctx, hh.sessionID, eventType)
	case target != "":
		records, err = hh.store.GetByTarget(ctx, hh.sessionID, target)
	default:
		records, err = hh.store.GetSinceTick(ctx, hh.sessionID, since)
	}
	if err != nil {
		hh.logger.Error("stored history failed: " + err.Error())
		jsonError(w, "History unavailable", http.StatusInternalServerError)
		return
	}

	out := make([]HistoryEvent, 0, len(records))
	for _, rec := range records {
		if rec.Tick < since || (target != "" && rec.TargetID != target) {
			continue
		}
		out = append(out, convertRecord(rec))
	}

	jsonSuccess(w, HistoryResponse{
		SessionID:   hh.sessionID,
		TotalEvents: len(out),
		FilteredBy:  filterDesc,
		GeneratedAt: time.Now().Format(time.RFC3339),
		Events:      out,
	})
}

// HandleEventDetail returns one event with its payload.
// GET /api/history/event?event_id=XXX
func (hh *HistoryHandler) HandleEventDetail(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	eventID := r.URL.Query().Get("event_id")
	if eventID == "" {
		jsonError(w, "Missing event_id", http.StatusBadRequest)
		return
	}

	for _, e := range hh.eventLog.Replay() {
		if e.ID == eventID {
			jsonSuccess(w, hh.convert(e, true))
			return
		}
	}
	jsonError(w, "Event not found", http.StatusNotFound)
}

// HandleStats counts the live session's events per type.
// GET /api/history/stats
func (hh *HistoryHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	all := hh.eventLog.Replay()
	byType := make(map[string]int)
	for _, e := range all {
		byType[string(e.Type)]++
	}

	jsonSuccess(w, map[string]interface{}{
		"generated_at": time.Now().Format(time.RFC3339),
		"total_events": len(all),
		"by_type":      byType,
	})
}

// HandleRecap summarizes the stored events from a tick on.
// GET /api/recap?since=TICK
func (hh *HistoryHandler) HandleRecap(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if hh.recon == nil {
		jsonError(w, "No event store attached", http.StatusServiceUnavailable)
		return
	}

	since, err := strconv.ParseInt(r.URL.Query().Get("since"), 10, 64)
	if err != nil || since < 0 {
		jsonError(w, "Invalid since", http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), recapTimeout)
	defer cancel()
	recap, err := hh.recon.GenerateRecap(ctx, hh.sessionID, since)
	if err != nil {
		hh.logger.Error("recap failed: " + err.Error())
		jsonError(w, "Recap unavailable", http.StatusInternalServerError)
		return
	}

	hh.logger.Event("RECAP", "HTTP", "since:"+strconv.FormatInt(since, 10)+" events:"+strconv.Itoa(len(recap)))
	jsonSuccess(w, map[string]interface{}{
		"session_id": hh.sessionID,
		"since_tick": since,
		"events":     recap,
	})
}

// RegisterRoutes sets up the history API routes.
func (hh *HistoryHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/history", hh.HandleHistory)
	mux.HandleFunc("/api/history/event", hh.HandleEventDetail)
	mux.HandleFunc("/api/history/stats", hh.HandleStats)
	mux.HandleFunc("/api/recap", hh.HandleRecap)
}

// convert describes an event the same way the stored recap does.
func (hh *HistoryHandler) convert(e events.GameEvent, withDetails bool) HistoryEvent {
	out := HistoryEvent{
		ID:        e.ID,
		Timestamp: e.Timestamp.Format("15:04:05"),
		Tick:      e.Tick,
		Type:      string(e.Type),
		ActorID:   e.ActorID,
		TargetID:  e.TargetID,
		Impact:    "NEUTRAL",
	}
	rec, err := storage.RecordFromEvent(hh.sessionID, e)
	if err != nil {
		out.Summary = "Something happened in the rooms."
		return out
	}
	out.Summary, out.Impact = storage.Describe(rec)
	if withDetails {
		out.Details = e.Payload
	}
	return out
}

func convertRecord(rec storage.EventRecord) HistoryEvent {
	out := HistoryEvent{
		ID:        rec.ID,
		Timestamp: rec.Timestamp.Format("15:04:05"),
		Tick:      rec.Tick,
		Type:      rec.EventType,
		ActorID:   rec.ActorID,
		TargetID:  rec.TargetID,
	}
	out.Summary, out.Impact = storage.Describe(rec)
	return out
}
