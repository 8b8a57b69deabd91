package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"

	"github.com/gorilla/websocket"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ferrymail/ferry/internal/actions"
	"github.com/ferrymail/ferry/internal/config"
	"github.com/ferrymail/ferry/internal/connectivity"
	"github.com/ferrymail/ferry/internal/db"
	"github.com/ferrymail/ferry/internal/events"
	"github.com/ferrymail/ferry/internal/mirror"
	"github.com/ferrymail/ferry/internal/models"
	"github.com/ferrymail/ferry/internal/notify"
	"github.com/ferrymail/ferry/internal/protocol"
	"github.com/ferrymail/ferry/internal/queue"
	"github.com/ferrymail/ferry/internal/syncer"
)

func main() {
	cfg, err := config.NewConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx := context.Background()
	pool, err := db.NewConnection(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.CloseConnection(pool)

	log.Printf("Successfully connected to database")

	app := newApp(ctx, cfg, pool)

	address := ":" + cfg.Port
	log.Printf("Ferry daemon starting on %s (environment: %s)", address, cfg.Environment)

	if err := http.ListenAndServe(address, app.routes()); err != nil {
		log.Fatalf("Server failed to start: %v", err)
	}
}

// app holds the wired core: sync orchestration, the action pipeline, the
// offline queue, and the notification hub.
type app struct {
	pool         *pgxpool.Pool
	bus          *events.Bus
	monitor      *connectivity.Monitor
	orchestrator *syncer.Orchestrator
	pipeline     *actions.Pipeline
	hub          *notify.Hub
	upgrader     websocket.Upgrader
}

func newApp(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool) *app {
	bus := events.NewBus()
	monitor := connectivity.NewMonitor(true)
	view := actions.NewView()
	hub := notify.NewHub(10)

	upserter := mirror.NewUpserter(pool, mirror.NewRuleCategorizer())

	adapterFactory := func(account *models.Account) (syncer.Adapter, error) {
		client, err := protocol.NewClient(account)
		if err != nil {
			return nil, err
		}
		return syncer.NewAdapter(account.Protocol, client, upserter, bus, cfg.SyncWorkerCap)
	}

	statusFunc := func(accountID string, status syncer.Status, progress *syncer.Progress, err error) {
		payload := map[string]any{"status": string(status)}
		if progress != nil {
			payload["progress"] = progress
		}
		if err != nil {
			payload["error"] = err.Error()
		}
		bus.Publish(events.Event{
			Type:      events.TypeSyncStatus,
			AccountID: accountID,
			Payload:   payload,
		})
	}

	orchestrator := syncer.NewOrchestrator(ctx, pool, adapterFactory, statusFunc, cfg.Lookback())
	orchestrator.Start(cfg.SyncInterval)

	clientFactory := func(accountID string) (protocol.Client, error) {
		account, err := db.GetAccount(ctx, pool, accountID)
		if err != nil {
			return nil, err
		}
		return protocol.NewClient(account)
	}

	pipeline := actions.NewPipeline(pool, clientFactory, monitor, bus, view, cfg.QueueMaxRetries)

	processor := queue.NewProcessor(pool, clientFactory, monitor, bus, cfg.QueueInterval)
	go processor.Run(ctx)
	go actions.RecordContacts(ctx, pool, bus)
	go notify.Bridge(ctx, bus, hub)

	return &app{
		pool:         pool,
		bus:          bus,
		monitor:      monitor,
		orchestrator: orchestrator,
		pipeline:     pipeline,
		hub:          hub,
		upgrader:     websocket.Upgrader{ReadBufferSize: 1024, WriteBufferSize: 1024},
	}
}

func (a *app) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/", handleRoot)
	mux.HandleFunc("/api/v1/sync/trigger", a.handleTriggerSync)
	mux.HandleFunc("/api/v1/sync/full", a.handleForceFullSync)
	mux.HandleFunc("/api/v1/actions", a.handleExecuteAction)
	mux.HandleFunc("/api/v1/threads", a.handleGetThreads)
	mux.HandleFunc("/api/v1/connectivity", a.handleSetConnectivity)
	mux.HandleFunc("/api/v1/ws", a.handleWebSocket)

	return mux
}

func handleRoot(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprintf(w, "Ferry daemon is running")
}

func (a *app) handleTriggerSync(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	done, err := a.orchestrator.TriggerSync(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	wait := r.URL.Query().Get("wait") == "true"
	if wait {
		select {
		case <-done:
		case <-r.Context().Done():
		}
	}

	writeJSON(w, map[string]bool{"started": true, "completed": wait})
}

func (a *app) handleForceFullSync(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	accountID := r.URL.Query().Get("account_id")
	if accountID == "" {
		http.Error(w, "account_id is required", http.StatusBadRequest)
		return
	}

	if _, err := a.orchestrator.ForceFullSync(r.Context(), []string{accountID}); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, map[string]bool{"started": true})
}

func (a *app) handleExecuteAction(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		AccountID string         `json:"account_id"`
		Action    actions.Action `json:"action"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.AccountID == "" {
		http.Error(w, "account_id is required", http.StatusBadRequest)
		return
	}

	result := a.pipeline.Execute(r.Context(), req.AccountID, req.Action)

	response := map[string]any{"success": result.Success, "queued": result.Queued}
	if result.Err != nil {
		response["error"] = result.Err.Error()
	}
	writeJSON(w, response)
}

func (a *app) handleGetThreads(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	accountID := r.URL.Query().Get("account_id")
	if accountID == "" {
		http.Error(w, "account_id is required", http.StatusBadRequest)
		return
	}

	label := r.URL.Query().Get("label")
	if label == "" {
		label = "inbox"
	}

	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}

	threads, err := db.GetThreadsByLabel(r.Context(), a.pool, accountID, label, limit, 0)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, threads)
}

func (a *app) handleSetConnectivity(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	online := r.URL.Query().Get("online") == "true"
	a.monitor.SetOnline(online)

	writeJSON(w, map[string]bool{"online": online})
}

// handleWebSocket upgrades the connection and keeps it registered until the
// peer goes away. Frames flow one way, daemon to UI.
func (a *app) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	accountID := r.URL.Query().Get("account_id")
	if accountID == "" {
		http.Error(w, "account_id is required", http.StatusBadRequest)
		return
	}

	conn, err := a.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("Warning: websocket upgrade failed: %v", err)
		return
	}

	if err := a.hub.Register(accountID, conn); err != nil {
		return
	}

	go func() {
		defer a.hub.Unregister(accountID, conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Warning: failed to encode response: %v", err)
	}
}
