package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/zvdy/dbpulse/src/config"
	"github.com/zvdy/dbpulse/src/models"
	"github.com/zvdy/dbpulse/src/monitor"
)

// Handler handles API requests
type Handler struct {
	monitor    *monitor.Monitor
	log        *logrus.Logger
	prometheus bool
}

// NewHandler creates a new API handler. When exposeMetrics is set the
// Prometheus registry is served on /metrics.
func NewHandler(m *monitor.Monitor, log *logrus.Logger, exposeMetrics bool) *Handler {
	return &Handler{
		monitor:    m,
		log:        log,
		prometheus: exposeMetrics,
	}
}

// RegisterRoutes registers all API routes
func (h *Handler) RegisterRoutes(r *mux.Router) {
	r.Use(h.recoverMiddleware, h.logMiddleware)

	// Health check
	r.HandleFunc("/health", h.HealthCheck).Methods("GET")
	r.HandleFunc("/ready", h.ReadinessCheck).Methods("GET")
	if h.prometheus {
		r.Handle("/metrics", promhttp.Handler()).Methods("GET")
	}

	v1 := r.PathPrefix("/api/v1").Subrouter()

	v1.HandleFunc("/stats", h.GetStats).Methods("GET")

	// Alerts
	v1.HandleFunc("/alerts", h.GetAlerts).Methods("GET")
	v1.HandleFunc("/alerts/resolved", h.ClearResolvedAlerts).Methods("DELETE")
	v1.HandleFunc("/alerts/{id}/resolve", h.ResolveAlert).Methods("POST")

	// Runtime config
	v1.HandleFunc("/config", h.GetConfig).Methods("GET")
	v1.HandleFunc("/config", h.UpdateConfig).Methods("PATCH")

	// Index recommendations
	v1.HandleFunc("/indexes/analyze", h.AnalyzeIndexes).Methods("POST")
	v1.HandleFunc("/indexes/summary", h.GetRecommendationSummary).Methods("GET")

	// Archiving
	v1.HandleFunc("/archive/run", h.RunArchiving).Methods("POST")
	v1.HandleFunc("/archive/status", h.GetArchivingStatus).Methods("GET")
}

// HealthCheck returns the health status
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	response := map[string]string{
		"status": "ok",
	}
	h.respondJSON(w, http.StatusOK, response)
}

// ReadinessCheck checks if the observed store is reachable
func (h *Handler) ReadinessCheck(w http.ResponseWriter, r *http.Request) {
	response := map[string]interface{}{
		"status": "ready",
	}
	statusCode := http.StatusOK

	if err := h.monitor.Ping(r.Context()); err != nil {
		response["status"] = "not_ready"
		response["error"] = err.Error()
		statusCode = http.StatusServiceUnavailable
	}
	if stats, ok := h.monitor.PoolStats(); ok {
		response["pool"] = stats
	}

	h.respondJSON(w, statusCode, response)
}

// GetStats returns the aggregated performance stats
func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, h.monitor.Stats())
}

// GetAlerts returns all alerts. ?active=true limits the list to unresolved ones.
func (h *Handler) GetAlerts(w http.ResponseWriter, r *http.Request) {
	alerts := h.monitor.Alerts()
	if r.URL.Query().Get("active") == "true" {
		active := make([]models.Alert, 0, len(alerts))
		for _, a := range alerts {
			if !a.Resolved {
				active = append(active, a)
			}
		}
		alerts = active
	}
	h.respondJSON(w, http.StatusOK, alerts)
}

// ResolveAlert marks an alert as resolved
func (h *Handler) ResolveAlert(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	if err := h.monitor.ResolveAlert(r.Context(), id); err != nil {
		if errors.Is(err, models.ErrAlertNotFound) {
			h.respondError(w, http.StatusNotFound, "Alert not found")
			return
		}
		h.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]string{"id": id, "status": "resolved"})
}

// ClearResolvedAlerts drops resolved alerts
func (h *Handler) ClearResolvedAlerts(w http.ResponseWriter, r *http.Request) {
	n := h.monitor.ClearResolvedAlerts(r.Context())
	h.respondJSON(w, http.StatusOK, map[string]int{"cleared": n})
}

// GetConfig returns the runtime options
func (h *Handler) GetConfig(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, h.monitor.Config())
}

// UpdateConfig applies a partial update of the runtime options
func (h *Handler) UpdateConfig(w http.ResponseWriter, r *http.Request) {
	var patch config.MonitorPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	cfg, err := h.monitor.UpdateConfig(r.Context(), patch)
	if err != nil {
		h.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	h.respondJSON(w, http.StatusOK, cfg)
}

// AnalyzeIndexes runs an index analysis
func (h *Handler) AnalyzeIndexes(w http.ResponseWriter, r *http.Request) {
	result, err := h.monitor.AnalyzeAndRecommend(r.Context())
	if err != nil {
		h.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	h.respondJSON(w, http.StatusOK, result)
}

// GetRecommendationSummary condenses the latest index analysis
func (h *Handler) GetRecommendationSummary(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, h.monitor.RecommendationSummary())
}

// RunArchiving runs one smart archiving pass
func (h *Handler) RunArchiving(w http.ResponseWriter, r *http.Request) {
	result, err := h.monitor.PerformSmartArchiving(r.Context())
	if err != nil {
		h.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	h.respondJSON(w, http.StatusOK, result)
}

// GetArchivingStatus reports the state of the archiving loop
func (h *Handler) GetArchivingStatus(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, h.monitor.SmartArchivingStatus())
}

func (h *Handler) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if p := recover(); p != nil {
				h.log.WithFields(logrus.Fields{
					"method": r.Method,
					"path":   r.URL.Path,
				}).Errorf("Recovered from panic: %v", p)
				h.respondError(w, http.StatusInternalServerError, "Internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func (h *Handler) logMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		h.log.WithFields(logrus.Fields{
			"method":   r.Method,
			"path":     r.URL.Path,
			"duration": time.Since(start).String(),
		}).Debug("Handled request")
	})
}

// respondJSON sends a JSON response
func (h *Handler) respondJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Errorf("Failed to encode JSON response: %v", err)
	}
}

// respondError sends an error response
func (h *Handler) respondError(w http.ResponseWriter, statusCode int, message string) {
	response := map[string]string{
		"error": message,
	}
	h.respondJSON(w, statusCode, response)
}
