package web

import (
	"context"
	"encoding/json"
	"net/http"
	"runtime"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/OrionFinanceAI/orion-engine/internal/engine"
	"github.com/OrionFinanceAI/orion-engine/internal/logger"
	"github.com/OrionFinanceAI/orion-engine/internal/state"
)

var webLogger = logger.GetForComponent("web_server")

// WebServer exposes the engine's read-only ops surface over HTTP.
type WebServer struct {
	router *mux.Router
	port   string
	engine *engine.Engine
	server *http.Server
}

// NewWebServer creates a new web server instance
func NewWebServer(port string, eng *engine.Engine) *WebServer {
	if port == "" {
		port = "8080"
	}

	server := &WebServer{
		router: mux.NewRouter(),
		port:   port,
		engine: eng,
	}

	server.setupRoutes()
	return server
}

// setupRoutes configures all HTTP routes
func (ws *WebServer) setupRoutes() {
	// Health endpoint (direct route)
	ws.router.HandleFunc("/health", ws.handleHealth).Methods("GET")

	// Prometheus scrape endpoint
	ws.router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	// API endpoints
	api := ws.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/health", ws.handleHealth).Methods("GET")
	api.HandleFunc("/status", ws.handleStatus).Methods("GET")
	api.HandleFunc("/epochs", ws.handleGetEpochs).Methods("GET")
	api.HandleFunc("/epochs/latest", ws.handleGetLatestEpoch).Methods("GET")
	api.HandleFunc("/epochs/{number}", ws.handleGetEpoch).Methods("GET")
	api.HandleFunc("/buffer", ws.handleGetBuffer).Methods("GET")
	api.HandleFunc("/parameters", ws.handleGetParameters).Methods("GET")
	api.HandleFunc("/summary", ws.handleGetSummary).Methods("GET")

	// Add CORS middleware
	ws.router.Use(ws.corsMiddleware)
	ws.router.Use(ws.loggingMiddleware)
}

// Start starts the web server
func (ws *WebServer) Start() error {
	webLogger.Info().Str("port", ws.port).Msg("Starting web server")

	ws.server = &http.Server{
		Addr:         ":" + ws.port,
		Handler:      ws.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return ws.server.ListenAndServe()
}

// Shutdown drains in-flight requests and stops the server.
func (ws *WebServer) Shutdown(ctx context.Context) error {
	if ws.server == nil {
		return nil
	}
	webLogger.Info().Msg("Shutting down web server")
	return ws.server.Shutdown(ctx)
}

// handleHealth returns server health status
func (ws *WebServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	dbHealthy := true
	if err := state.TestDBConnection(); err != nil {
		dbHealthy = false
	}

	status := ws.engine.Status()
	overallStatus := "OK"
	if !dbHealthy {
		overallStatus = "DEGRADED"
	}

	response := map[string]interface{}{
		"status":    overallStatus,
		"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
		"system": map[string]interface{}{
			"version":          runtime.Version(),
			"goroutines_count": runtime.NumGoroutine(),
			"alloc_bytes":      memStats.Alloc,
			"sys_bytes":        memStats.Sys,
			"gc_cycles":        memStats.NumGC,
		},
		"component": map[string]interface{}{
			"name":    "orion-epoch-engine",
			"version": "1.0.0",
		},
		"engine_status": map[string]interface{}{
			"database_healthy": dbHealthy,
			"idle":             status.Idle,
			"epoch_number":     status.EpochNumber,
			"estimation_phase": status.EstimationPhase,
			"execution_phase":  status.ExecutionPhase,
		},
	}

	statusCode := http.StatusOK
	if !dbHealthy {
		statusCode = http.StatusServiceUnavailable
	}

	ws.writeJSONResponse(w, statusCode, response)
}

// handleStatus returns the live engine status
func (ws *WebServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	ws.writeJSONResponse(w, http.StatusOK, ws.engine.Status())
}

// handleGetEpochs returns paginated epoch reports
func (ws *WebServer) handleGetEpochs(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if parsedLimit, err := strconv.Atoi(limitStr); err == nil && parsedLimit > 0 && parsedLimit <= 100 {
			limit = parsedLimit
		}
	}

	reports, err := state.GetRecentEpochReports(limit)
	if err != nil {
		webLogger.Error().Err(err).Msg("Failed to get recent epoch reports")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to retrieve epochs")
		return
	}

	response := map[string]interface{}{
		"epochs": reports,
		"count":  len(reports),
		"limit":  limit,
	}

	ws.writeJSONResponse(w, http.StatusOK, response)
}

// handleGetEpoch returns a specific epoch report by number
func (ws *WebServer) handleGetEpoch(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	numberStr := vars["number"]

	number, err := strconv.ParseUint(numberStr, 10, 64)
	if err != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid epoch number")
		return
	}

	report, err := state.GetEpochReportByNumber(number)
	if err != nil {
		webLogger.Error().Err(err).Uint64("epoch", number).Msg("Failed to get epoch report")
		ws.writeErrorResponse(w, http.StatusNotFound, "Epoch not found")
		return
	}

	ws.writeJSONResponse(w, http.StatusOK, report)
}

// handleGetLatestEpoch returns the most recent epoch report
func (ws *WebServer) handleGetLatestEpoch(w http.ResponseWriter, r *http.Request) {
	reports, err := state.GetRecentEpochReports(1)
	if err != nil || len(reports) == 0 {
		webLogger.Error().Err(err).Msg("Failed to get latest epoch report")
		ws.writeErrorResponse(w, http.StatusNotFound, "No epochs found")
		return
	}

	ws.writeJSONResponse(w, http.StatusOK, reports[0])
}

// handleGetBuffer returns the solvency buffer balance
func (ws *WebServer) handleGetBuffer(w http.ResponseWriter, r *http.Request) {
	response := map[string]interface{}{
		"balance":       ws.engine.BufferBalance().String(),
		"protocol_fees": ws.engine.ProtocolFees().String(),
		"timestamp":     time.Now().UTC(),
	}
	ws.writeJSONResponse(w, http.StatusOK, response)
}

// handleGetParameters returns the live engine parameters
func (ws *WebServer) handleGetParameters(w http.ResponseWriter, r *http.Request) {
	params := ws.engine.Parameters()
	response := map[string]interface{}{
		"epoch_duration_seconds": int64(params.EpochDuration.Seconds()),
		"minibatch_size":         params.MinibatchSize,
		"volume_fee_rate":        params.VolumeFeeRate.String(),
		"revenue_share_rate":     params.RevenueShareRate.String(),
		"buffer_target_ratio":    params.BufferTargetRatio.String(),
		"slippage_tolerance":     params.SlippageTolerance.String(),
		"timestamp":              time.Now().UTC(),
	}
	ws.writeJSONResponse(w, http.StatusOK, response)
}

// handleGetSummary returns aggregate statistics over the epoch history
func (ws *WebServer) handleGetSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := state.GetEngineSummary()
	if err != nil {
		webLogger.Error().Err(err).Msg("Failed to get engine summary")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to retrieve summary")
		return
	}

	ws.writeJSONResponse(w, http.StatusOK, summary)
}

// writeJSONResponse writes a JSON response
func (ws *WebServer) writeJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		webLogger.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// writeErrorResponse writes an error response
func (ws *WebServer) writeErrorResponse(w http.ResponseWriter, statusCode int, message string) {
	response := map[string]interface{}{
		"error":     true,
		"message":   message,
		"timestamp": time.Now().UTC(),
	}

	ws.writeJSONResponse(w, statusCode, response)
}

// corsMiddleware adds CORS headers
func (ws *WebServer) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// loggingMiddleware logs HTTP requests
func (ws *WebServer) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		// Create a response writer wrapper to capture status code
		wrapper := &responseWriterWrapper{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapper, r)

		duration := time.Since(start)

		webLogger.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("remote_addr", r.RemoteAddr).
			Int("status", wrapper.statusCode).
			Dur("duration", duration).
			Msg("HTTP request")
	})
}

// responseWriterWrapper wraps http.ResponseWriter to capture status code
type responseWriterWrapper struct {
	http.ResponseWriter
	statusCode int
}

func (w *responseWriterWrapper) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}
