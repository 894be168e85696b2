package web

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gabikreal1/HLE/internal/engine"
	"github.com/gabikreal1/HLE/internal/logger"
	"github.com/gabikreal1/HLE/internal/metrics"
	"github.com/gabikreal1/HLE/internal/state"
)

var webLogger = logger.GetForComponent("web_server")

// WebServer exposes the engine's observability surface.
type WebServer struct {
	router *mux.Router
	addr   string
	engine *engine.Engine
}

// NewWebServer creates a new web server instance
func NewWebServer(addr string, eng *engine.Engine, m *metrics.Metrics) *WebServer {
	if addr == "" {
		addr = ":8080"
	}

	server := &WebServer{
		router: mux.NewRouter(),
		addr:   addr,
		engine: eng,
	}

	server.setupRoutes(m)
	return server
}

// setupRoutes configures all HTTP routes
func (ws *WebServer) setupRoutes(m *metrics.Metrics) {
	ws.router.HandleFunc("/health", ws.handleHealth).Methods("GET")
	ws.router.HandleFunc("/status", ws.handleStatus).Methods("GET")
	ws.router.HandleFunc("/receipts", ws.handleReceipts).Methods("GET")
	ws.router.Handle("/metrics", promhttp.HandlerFor(m.Registry(), promhttp.HandlerOpts{})).Methods("GET")

	ws.router.Use(ws.loggingMiddleware)
}

// Start starts the web server
func (ws *WebServer) Start() error {
	webLogger.Info().Str("addr", ws.addr).Msg("Starting web server")

	server := &http.Server{
		Addr:         ws.addr,
		Handler:      ws.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return server.ListenAndServe()
}

// handleHealth reports process liveness plus database reachability.
func (ws *WebServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "OK"
	dbHealthy := true
	if err := state.TestDBConnection(); err != nil {
		status = "DEGRADED"
		dbHealthy = false
	}

	code := http.StatusOK
	if !dbHealthy {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]any{
		"status":     status,
		"db_healthy": dbHealthy,
		"timestamp":  time.Now().UTC(),
	})
}

// handleStatus serves the engine's full state snapshot.
func (ws *WebServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	st, err := ws.engine.Status()
	if err != nil {
		webLogger.Error().Err(err).Msg("Failed to assemble status snapshot")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// handleReceipts serves recent rebalance receipts.
func (ws *WebServer) handleReceipts(w http.ResponseWriter, r *http.Request) {
	receipts, err := state.LoadRecentReceipts(50)
	if err != nil {
		webLogger.Error().Err(err).Msg("Failed to load rebalance receipts")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, receipts)
}

func writeJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		webLogger.Error().Err(err).Msg("Failed to encode response")
	}
}

// loggingMiddleware logs each request at debug level.
func (ws *WebServer) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		webLogger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Dur("duration", time.Since(start)).
			Msg("Request handled")
	})
}
