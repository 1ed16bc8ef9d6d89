package handler

import (
	"log/slog"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/stats-tracker/internal/domain"
	"github.com/stats-tracker/internal/service"
	"github.com/stats-tracker/internal/websocket"
)

const (
	// maxPayloadBytes bounds a stats POST body
	maxPayloadBytes = 1 << 20

	ingestMessage = "Blox Fruits stats received successfully!"
	clearMessage  = "All data cleared"
)

// Handler provides HTTP handlers for the tracker API and dashboard
type Handler struct {
	service  *service.TrackerService
	hub      *websocket.Hub
	logger   *slog.Logger
	feedSize int
}

// NewHandler creates a new HTTP handler. feedSize is the number of activity
// entries the dashboard shows
func NewHandler(service *service.TrackerService, hub *websocket.Hub, feedSize int, logger *slog.Logger) *Handler {
	return &Handler{
		service:  service,
		hub:      hub,
		logger:   logger,
		feedSize: feedSize,
	}
}

// ErrorResponse is the body of every failed request
type ErrorResponse struct {
	Error string `json:"error"`
}

// StatusResponse acknowledges a write
type StatusResponse struct {
	Status    string      `json:"status"`
	Message   string      `json:"message"`
	Timestamp interface{} `json:"timestamp,omitempty"`
	Player    string      `json:"player,omitempty"`
}

// Router creates and configures the HTTP router
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	r.Use(corsMiddleware)

	// Health check
	r.Get("/health", h.HealthCheck)
	r.Get("/ready", h.ReadyCheck)
	r.Handle("/metrics", promhttp.Handler())

	// Dashboard and live feed
	r.Get("/", h.Dashboard)
	r.Get("/ws", h.HandleWebSocket)

	r.Route("/api", func(r chi.Router) {
		r.Post("/bloxfruits/stats", h.ReceiveStats)

		r.Get("/dashboard", h.GetDashboard)
		r.Get("/recent-updates", h.GetRecentUpdates)
		r.Get("/recent-accounts", h.GetRecentAccounts)
		r.Get("/account-details/{player_name}", h.GetAccountDetails)
		r.Get("/sessions", h.GetSessions)

		r.Get("/export", h.ExportData)
		r.Post("/clear", h.ClearData)
		r.Get("/ping", h.Ping)
	})

	return r
}

// corsMiddleware adds CORS headers
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Accept, Content-Type, X-Request-ID")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// writeJSON writes a JSON response
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

// writeError writes an error JSON response
func (h *Handler) writeError(w http.ResponseWriter, status int, err error) {
	h.writeJSON(w, status, ErrorResponse{Error: err.Error()})
}

// writeServiceError maps a service error to its status code. Unexpected
// errors are logged and reported without detail
func (h *Handler) writeServiceError(w http.ResponseWriter, msg string, err error) {
	switch {
	case domain.IsValidationError(err):
		h.writeError(w, http.StatusBadRequest, err)
	case domain.IsNotFoundError(err):
		h.writeError(w, http.StatusNotFound, err)
	default:
		h.logger.Error(msg, "error", err)
		h.writeError(w, http.StatusInternalServerError, domain.ErrInternalError)
	}
}

// queryInt reads a non-negative integer query parameter, 0 when absent or invalid
func queryInt(r *http.Request, key string) int {
	n, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// HandleWebSocket handles WebSocket upgrade requests
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	if h.hub == nil {
		h.writeError(w, http.StatusServiceUnavailable, domain.ErrInternalError)
		return
	}
	websocket.ServeWs(h.hub, h.logger, w, r)
}

// HealthCheck returns service health status
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// ReadyCheck reports whether the store is reachable
func (h *Handler) ReadyCheck(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Ready(r.Context()); err != nil {
		h.logger.Warn("readiness check failed", "error", err)
		h.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// ReceiveStats ingests one stats snapshot
func (h *Handler) ReceiveStats(w http.ResponseWriter, r *http.Request) {
	payload, err := service.DecodePayload(http.MaxBytesReader(w, r.Body, maxPayloadBytes))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}

	result, err := h.service.Ingest(r.Context(), payload)
	if err != nil {
		h.writeServiceError(w, "failed to ingest stats", err)
		return
	}

	h.writeJSON(w, http.StatusOK, StatusResponse{
		Status:    "success",
		Message:   ingestMessage,
		Timestamp: result.Timestamp,
		Player:    result.Player,
	})
}

// GetDashboard returns the dashboard data as JSON
func (h *Handler) GetDashboard(w http.ResponseWriter, r *http.Request) {
	dashboard, err := h.service.Dashboard(r.Context())
	if err != nil {
		h.writeServiceError(w, "failed to build dashboard", err)
		return
	}
	h.writeJSON(w, http.StatusOK, dashboard)
}

// GetRecentUpdates returns the newest activity feed entries, oldest first
func (h *Handler) GetRecentUpdates(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit")
	if limit == 0 {
		limit = h.feedSize
	}

	updates := h.service.RecentActivity(limit)
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"updates": updates,
		"count":   len(updates),
	})
}

// GetRecentAccounts returns the most recently updated players
func (h *Handler) GetRecentAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.service.RecentAccounts(r.Context(), queryInt(r, "limit"))
	if err != nil {
		h.writeServiceError(w, "failed to list recent accounts", err)
		return
	}
	h.writeJSON(w, http.StatusOK, accounts)
}

// GetAccountDetails returns one player's latest stats with styles and items
func (h *Handler) GetAccountDetails(w http.ResponseWriter, r *http.Request) {
	playerName := chi.URLParam(r, "player_name")
	// chi matches on the raw path when the request carried escapes
	if r.URL.RawPath != "" {
		if unescaped, err := url.PathUnescape(playerName); err == nil {
			playerName = unescaped
		}
	}

	detail, err := h.service.AccountDetail(r.Context(), playerName)
	if err != nil {
		h.writeServiceError(w, "failed to get account details", err)
		return
	}
	h.writeJSON(w, http.StatusOK, detail)
}

// GetSessions returns the session tracker contents
func (h *Handler) GetSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.service.Sessions(r.Context())
	if err != nil {
		h.writeServiceError(w, "failed to list sessions", err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"sessions": sessions,
		"count":    len(sessions),
	})
}

// ExportData dumps every table as JSON
func (h *Handler) ExportData(w http.ResponseWriter, r *http.Request) {
	export, err := h.service.ExportAll(r.Context())
	if err != nil {
		h.writeServiceError(w, "failed to export data", err)
		return
	}
	h.writeJSON(w, http.StatusOK, export)
}

// ClearData wipes all stored and in-memory tracking data
func (h *Handler) ClearData(w http.ResponseWriter, r *http.Request) {
	if err := h.service.ClearAll(r.Context()); err != nil {
		h.writeServiceError(w, "failed to clear data", err)
		return
	}
	h.writeJSON(w, http.StatusOK, StatusResponse{
		Status:  "success",
		Message: clearMessage,
	})
}

// Ping is the liveness probe used by game clients
func (h *Handler) Ping(w http.ResponseWriter, r *http.Request) {
	info, err := h.service.Ping(r.Context())
	if err != nil {
		h.writeServiceError(w, "failed to ping", err)
		return
	}
	h.writeJSON(w, http.StatusOK, info)
}
