package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"NetSentry/internal/config"
	"NetSentry/internal/model"
	"NetSentry/internal/probe"
	"NetSentry/internal/storage"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/nats-io/nats.go"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// wsHub fans alerts coming off the bus out to every connected websocket
// client. Clients that fail a write are dropped.
type wsHub struct {
	mu      sync.Mutex
	clients map[*websocket.Conn]bool
}

func newWSHub() *wsHub {
	return &wsHub{clients: make(map[*websocket.Conn]bool)}
}

func (h *wsHub) add(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[conn] = true
}

func (h *wsHub) remove(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients, conn)
}

func (h *wsHub) broadcast(message interface{}) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.clients {
		conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		if err := conn.WriteJSON(message); err != nil {
			log.Printf("WebSocket write error: %v", err)
			conn.Close()
			delete(h.clients, conn)
		}
	}
}

// APIHandler holds the dependencies for the API handlers. Either store may
// be nil when its backend is disabled in the config; the affected routes
// then answer 503.
type APIHandler struct {
	history *storage.HistoryStore
	live    *storage.LiveStore
	nc      *nats.Conn
	hub     *wsHub
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Failed to encode response: %v", err)
	}
}

func limitParam(r *http.Request, def, max int) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return def
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		return def
	}
	if limit > max {
		return max
	}
	return limit
}

// alertsHandler serves the persisted alert history with optional severity
// and detector filters.
func (h *APIHandler) alertsHandler(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		http.Error(w, "history store is not configured", http.StatusServiceUnavailable)
		return
	}
	limit := limitParam(r, 100, 1000)
	severity := r.URL.Query().Get("severity")
	detector := r.URL.Query().Get("detector")

	alerts, err := h.history.RecentAlerts(r.Context(), limit, severity, detector)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"alerts": alerts})
}

// activeAlertsHandler serves the unresolved alerts from the live store.
func (h *APIHandler) activeAlertsHandler(w http.ResponseWriter, r *http.Request) {
	if h.live == nil {
		http.Error(w, "live store is not configured", http.StatusServiceUnavailable)
		return
	}
	alerts, err := h.live.ActiveAlerts(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"alerts": alerts})
}

// resolveAlertHandler marks one active alert as resolved.
func (h *APIHandler) resolveAlertHandler(w http.ResponseWriter, r *http.Request) {
	if h.live == nil {
		http.Error(w, "live store is not configured", http.StatusServiceUnavailable)
		return
	}
	id := mux.Vars(r)["id"]
	alert, err := h.live.Resolve(r.Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"alert": alert})
}

// statsHandler serves traffic snapshots from the last `since` interval.
func (h *APIHandler) statsHandler(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		http.Error(w, "history store is not configured", http.StatusServiceUnavailable)
		return
	}
	since := time.Hour
	if raw := r.URL.Query().Get("since"); raw != "" {
		parsed, err := time.ParseDuration(raw)
		if err != nil || parsed <= 0 {
			http.Error(w, "invalid since duration", http.StatusBadRequest)
			return
		}
		since = parsed
	}
	limit := limitParam(r, 120, 1000)

	snapshots, err := h.history.RecentSnapshots(r.Context(), time.Now().Add(-since), limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"stats": snapshots})
}

// healthHandler reports the state of every configured backend.
func (h *APIHandler) healthHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := "ok"
	health := map[string]interface{}{"nats": h.nc.IsConnected()}
	if !h.nc.IsConnected() {
		status = "degraded"
	}
	if h.history != nil {
		err := h.history.Ping(ctx)
		health["clickhouse"] = err == nil
		if err != nil {
			status = "degraded"
		}
	}
	if h.live != nil {
		err := h.live.Ping(ctx)
		health["redis"] = err == nil
		if err != nil {
			status = "degraded"
		}
	}
	health["status"] = status

	code := http.StatusOK
	if status != "ok" {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, health)
}

// wsHandler upgrades the connection and keeps it registered until the
// client goes away.
func (h *APIHandler) wsHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade error: %v", err)
		return
	}
	defer conn.Close()

	h.hub.add(conn)
	defer h.hub.remove(conn)
	log.Println("New WebSocket client connected")

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func main() {
	configFile := flag.String("config", "configs/config.yaml", "Path to the configuration file")
	flag.Parse()

	// 1. Load configuration
	cfg, err := config.Load(*configFile)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if !cfg.ClickHouse.Enabled && !cfg.Redis.Enabled {
		log.Fatalf("Neither ClickHouse nor Redis is enabled in config. API server cannot start.")
	}

	// 2. Connect the configured stores
	handler := &APIHandler{hub: newWSHub()}
	if cfg.ClickHouse.Enabled {
		history, err := storage.NewHistoryStore(cfg.ClickHouse)
		if err != nil {
			log.Fatalf("Failed to connect to ClickHouse: %v", err)
		}
		defer history.Close()
		handler.history = history
	}
	if cfg.Redis.Enabled {
		live, err := storage.NewLiveStore(cfg.Redis)
		if err != nil {
			log.Fatalf("Failed to connect to Redis: %v", err)
		}
		defer live.Close()
		handler.live = live
	}

	// 3. Follow the alert bus and fan it out to websocket clients
	nc, err := nats.Connect(cfg.NATS.URL)
	if err != nil {
		log.Fatalf("Failed to connect to NATS: %v", err)
	}
	defer nc.Drain()
	handler.nc = nc

	_, err = probe.SubscribeAlerts(nc, cfg.NATS.AlertSubject, func(alert *model.Alert) {
		handler.hub.broadcast(map[string]interface{}{
			"type":    "alert",
			"payload": alert,
		})
	})
	if err != nil {
		log.Fatalf("Failed to subscribe to alerts: %v", err)
	}

	// 4. Define API routes
	r := mux.NewRouter()
	r.HandleFunc("/api/v1/alerts", handler.alertsHandler).Methods("GET")
	r.HandleFunc("/api/v1/alerts/active", handler.activeAlertsHandler).Methods("GET")
	r.HandleFunc("/api/v1/alerts/{id}/resolve", handler.resolveAlertHandler).Methods("POST")
	r.HandleFunc("/api/v1/stats", handler.statsHandler).Methods("GET")
	r.HandleFunc("/api/v1/health", handler.healthHandler).Methods("GET")
	r.HandleFunc("/ws", handler.wsHandler)

	// 5. Start the HTTP server
	server := &http.Server{
		Addr:    cfg.API.ListenAddr,
		Handler: corsMiddleware(r),
	}
	go func() {
		log.Printf("API server starting on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Could not listen on %s: %v", server.Addr, err)
		}
	}()

	// 6. Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("API server shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}
	log.Println("API server exited.")
}
