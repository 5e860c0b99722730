// Package network - admin.go
// AdminBridge lets an operator or a scenario script act on the rooms from outside a game client.
package network

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/shovit/timerooms/internal/domain/food"
	"github.com/shovit/timerooms/internal/domain/room"
	"github.com/shovit/timerooms/internal/engine"
	"github.com/shovit/timerooms/internal/events"
	"github.com/shovit/timerooms/internal/infra/storage"
	"github.com/shovit/timerooms/internal/platform/logger"
)

const auditTimeout = 5 * time.Second

// AdminBridge handles operator interactions.
type AdminBridge struct {
	engine   *engine.Engine
	eventLog *events.EventLog
	wsHub    *Hub
	logger   *logger.Logger

	recon     *storage.Reconstructor
	sessionID string
}

// NewAdminBridge creates a new operator handler.
func NewAdminBridge(eng *engine.Engine, el *events.EventLog, hub *Hub, log *logger.Logger) *AdminBridge {
	return &AdminBridge{
		engine:   eng,
		eventLog: el,
		wsHub:    hub,
		logger:   log,
	}
}

// WithAudit enables /api/admin/audit against the stored ledger of sessionID.
func (ab *AdminBridge) WithAudit(recon *storage.Reconstructor, sessionID string) *AdminBridge {
	ab.recon = recon
	ab.sessionID = sessionID
	return ab
}

// SpawnRequest is the payload for placing a food item.
type SpawnRequest struct {
	Kind       string    `json:"kind"`
	Position   room.Vec3 `json:"position"`
	OperatorID string    `json:"operator_id"`
}

// HandleSpawn places a fresh food item on the floor.
// POST /api/admin/spawn
func (ab *AdminBridge) HandleSpawn(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		jsonError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req SpawnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Kind == "" {
		jsonError(w, "Missing kind", http.StatusBadRequest)
		return
	}

	item, err := ab.engine.SpawnFood(req.Kind, req.Position)
	if err != nil {
		jsonError(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}

	ab.logger.Event("ADMIN_SPAWN", req.OperatorID, "Kind:"+req.Kind+" Item:"+item.ID)
	jsonSuccess(w, item)
}

// HandleStatus reports the session at a glance.
// GET /api/admin/status
func (ab *AdminBridge) HandleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	jsonSuccess(w, map[string]interface{}{
		"tick":         ab.engine.Tick(),
		"rooms":        ab.engine.Rooms(),
		"events":       ab.eventLog.Len(),
		"clients":      ab.wsHub.ClientCount(),
		"generated_at": time.Now().Format(time.RFC3339),
	})
}

// AuditEntry compares one food's live stage with the stage its stored events lead to.
type AuditEntry struct {
	FoodID string      `json:"food_id"`
	Live   food.State  `json:"live"`
	Ledger *food.State `json:"ledger"` // nil when the ledger never saw the food
	Match  bool        `json:"match"`
}

// AuditReport is the response of /api/admin/audit.
type AuditReport struct {
	SessionID   string       `json:"session_id"`
	Checked     int          `json:"checked"`
	Mismatches  int          `json:"mismatches"`
	Foods       []AuditEntry `json:"foods"`
	GeneratedAt string       `json:"generated_at"`
}

// HandleAudit replays the stored ledger and compares every live food against it. Events still
// queued for the database show up as mismatches until they are written.
// GET /api/admin/audit
func (ab *AdminBridge) HandleAudit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if ab.recon == nil {
		jsonError(w, "No event store attached", http.StatusServiceUnavailable)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), auditTimeout)
	defer cancel()
	rebuilt, err := ab.recon.RebuildFoodStates(ctx, ab.sessionID)
	if err != nil {
		ab.logger.Error("audit failed: " + err.Error())
		jsonError(w, "Audit unavailable", http.StatusInternalServerError)
		return
	}

	report := AuditReport{SessionID: ab.sessionID, Foods: make([]AuditEntry, 0)}
	for _, f := range ab.engine.Foods() {
		entry := AuditEntry{FoodID: f.ID, Live: f.State}
		if st, ok := rebuilt[f.ID]; ok {
			entry.Ledger = &st
			entry.Match = st == f.State
		}
		if !entry.Match {
			report.Mismatches++
		}
		report.Foods = append(report.Foods, entry)
	}
	report.Checked = len(report.Foods)
	report.GeneratedAt = time.Now().Format(time.RFC3339)

	if report.Mismatches > 0 {
		ab.logger.Warn("[AUDIT] " + strconv.Itoa(report.Mismatches) + " foods differ from the ledger")
	}
	jsonSuccess(w, report)
}

// RegisterRoutes sets up the operator API routes.
func (ab *AdminBridge) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/admin/spawn", ab.HandleSpawn)
	mux.HandleFunc("/api/admin/status", ab.HandleStatus)
	mux.HandleFunc("/api/admin/audit", ab.HandleAudit)
}
