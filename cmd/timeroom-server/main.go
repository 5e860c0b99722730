// Package main is the entry point for the time rooms server.
// It only handles dependency injection and server initialization.
// NO business logic belongs here.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/shovit/timerooms/internal/config"
	"github.com/shovit/timerooms/internal/engine"
	"github.com/shovit/timerooms/internal/events"
	"github.com/shovit/timerooms/internal/infra/snapshot"
	"github.com/shovit/timerooms/internal/infra/storage"
	"github.com/shovit/timerooms/internal/network"
	"github.com/shovit/timerooms/internal/platform/logger"
	"github.com/shovit/timerooms/internal/platform/metrics"
	"github.com/shovit/timerooms/internal/platform/optimization"
)

const shutdownTimeout = 10 * time.Second

func main() {
	log.Println("[TIMEROOM-SERVER] Initializing time rooms server...")

	if err := run(); err != nil {
		log.Fatalf("[TIMEROOM-SERVER] %v", err)
	}
}

func run() error {
	appLogger := logger.NewLogger()

	settings, err := config.LoadSettings()
	if err != nil {
		return err
	}
	cfg, err := config.Load(settings.ConfigPath)
	if err != nil {
		return err
	}
	opt := optimization.ForProfile(settings.Profile)

	appLogger.Info("Initializing SQLite database '" + settings.DBPath + "'...")
	db, err := storage.InitSQLite(settings.DBPath, opt)
	if err != nil {
		return err
	}
	defer db.Close()
	eventRepo := storage.NewSQLiteEventRepository(db)
	stateRepo := storage.NewSQLiteStateRepository(db)

	// Resume from the snapshot, else from the last state backup, else start fresh.
	var backup *engine.Backup
	sessionID := uuid.NewString()
	saved, err := snapshot.Read(settings.SnapshotPath)
	fromSnapshot := err == nil
	if fromSnapshot {
		sessionID = saved.Header.SessionID
		appLogger.Info("Resuming session " + sessionID + " from " + settings.SnapshotPath)
	} else {
		if errors.Is(err, os.ErrNotExist) {
			appLogger.Info("No snapshot found at " + settings.SnapshotPath)
		} else {
			appLogger.Warn("Snapshot unreadable, trying the state backup: " + err.Error())
		}
		id, b, lerr := latestBackup(context.Background(), stateRepo)
		if lerr != nil {
			return lerr
		}
		if b != nil {
			sessionID, backup = id, b
			appLogger.Info("Resuming session " + sessionID + " from the state backup")
		} else {
			appLogger.Info("Starting session " + sessionID)
		}
	}

	appLogger.Info("Bootstrapping EventLog...")
	eventLog := events.NewBufferedEventLog(storage.NewEventPersister(eventRepo, sessionID), opt.EventChannelBuffer)

	appLogger.Info("Bootstrapping Engine Subsystems...")
	var roomEngine *engine.Engine
	if fromSnapshot {
		roomEngine, err = engine.ResumeEngine(cfg.ToEngine(), saved.Session, eventLog, appLogger, nil)
	} else {
		roomEngine, err = engine.NewEngine(cfg.ToEngine(), eventLog, appLogger, nil)
	}
	if err != nil {
		eventLog.Close()
		return err
	}
	if backup != nil {
		if skipped := roomEngine.RestoreBackup(*backup); skipped > 0 {
			appLogger.Warn(fmt.Sprintf("%d backed up foods have no item in the scene", skipped))
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	roomEngine.Start(ctx)

	appLogger.Info("Bootstrapping WebSocket Hub...")
	hub := network.NewHub(roomEngine, appLogger, opt)
	go hub.Run(ctx)
	hub.StartEventPoller(ctx, eventLog, network.DefaultPollInterval)

	backupDone := make(chan struct{})
	go func() {
		defer close(backupDone)
		backupLoop(ctx, roomEngine, stateRepo, sessionID, settings, appLogger)
	}()

	mux := http.NewServeMux()
	network.NewAPI(roomEngine, hub, appLogger).RegisterRoutes(mux)
	recon := storage.NewReconstructor(eventRepo)
	network.NewHistoryHandler(eventLog, recon, sessionID, appLogger).WithStore(eventRepo).RegisterRoutes(mux)
	network.NewAdminBridge(roomEngine, eventLog, hub, appLogger).WithAudit(recon, sessionID).RegisterRoutes(mux)
	mux.HandleFunc("/metrics", metrics.Handler())
	mux.HandleFunc("/metrics/prometheus", metrics.PrometheusHandler())

	srv := &http.Server{Addr: settings.ListenAddr, Handler: mux}
	serveErr := make(chan error, 1)
	go func() {
		log.Println("[TIMEROOM-SERVER] HTTP API & WS Server listening on " + settings.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	log.Println("[TIMEROOM-SERVER] Server running. Press Ctrl+C to exit.")

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err = <-serveErr:
		appLogger.Error("Server failed: " + err.Error())
	}

	log.Println("[TIMEROOM-SERVER] Shutting down...")
	shutdownCtx, stop := context.WithTimeout(context.Background(), shutdownTimeout)
	defer stop()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.Warn("http shutdown: " + err.Error())
	}
	cancel()
	roomEngine.Stop()
	<-backupDone

	// No step runs after Stop, so this is the final state.
	save(context.Background(), roomEngine, stateRepo, sessionID, settings, appLogger)
	eventLog.Close()
	return err
}

// latestBackup loads the most recently backed up session. It returns a nil backup when the
// database holds none.
func latestBackup(ctx context.Context, repo storage.StateRepository) (string, *engine.Backup, error) {
	id, err := repo.LatestSession(ctx)
	if err != nil || id == "" {
		return "", nil, err
	}
	b, err := storage.LoadBackup(ctx, repo, id)
	if err != nil {
		return "", nil, err
	}
	return id, b, nil
}

// backupLoop mirrors the session into SQLite and the snapshot file until ctx ends.
func backupLoop(ctx context.Context, eng *engine.Engine, repo storage.StateRepository, sessionID string, settings config.Settings, log *logger.Logger) {
	if settings.BackupInterval <= 0 {
		return
	}
	backupTicker := time.NewTicker(settings.BackupInterval)
	defer backupTicker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-backupTicker.C:
			save(ctx, eng, repo, sessionID, settings, log)

			rec := optimization.Analyze(metrics.Get().Snapshot())
			if len(rec.Notes) > 0 {
				log.Warn("tuning: " + strings.Join(rec.Notes, "; "))
			}
		}
	}
}

func save(ctx context.Context, eng *engine.Engine, repo storage.StateRepository, sessionID string, settings config.Settings, log *logger.Logger) {
	s := eng.Snapshot()
	if err := storage.Backup(ctx, repo, sessionID, s); err != nil {
		log.Error("state backup failed: " + err.Error())
	}
	if err := snapshot.Write(settings.SnapshotPath, snapshot.New(sessionID, s)); err != nil {
		log.Error("snapshot failed: " + err.Error())
	}
}
