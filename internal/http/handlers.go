package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/kjstillabower/dwd-warning-service/internal/client"
	"github.com/kjstillabower/dwd-warning-service/internal/lifecycle"
	"github.com/kjstillabower/dwd-warning-service/internal/models"
	"github.com/kjstillabower/dwd-warning-service/internal/service"
	"github.com/kjstillabower/dwd-warning-service/internal/traffic"
	"github.com/kjstillabower/dwd-warning-service/internal/validation"
)

// CardProvider renders configured cards. Implemented by service.CardService.
type CardProvider interface {
	CardNames() []string
	GetCard(ctx context.Context, name string) (models.CardView, error)
}

// HealthConfig holds lifecycle thresholds for the health handler.
type HealthConfig struct {
	DegradedWindow   time.Duration
	DegradedErrorPct int
	// CachePing, when set, is called to check cache reachability. Used when backend is memcached.
	CachePing func() error
	// BreakerOpen, when set, reports whether the Home Assistant circuit breaker rejects calls.
	BreakerOpen func() bool
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	cards            CardProvider
	client           client.StatesClient
	healthConfig     *HealthConfig
	logger           *zap.Logger
	healthStatusMu   sync.Mutex
	healthStatusPrev string
}

// NewHandler returns a new Handler.
func NewHandler(cards CardProvider, client client.StatesClient, healthConfig *HealthConfig, logger *zap.Logger) *Handler {
	return &Handler{
		cards:        cards,
		client:       client,
		healthConfig: healthConfig,
		logger:       logger,
	}
}

// ListCards handles GET /cards.
func (h *Handler) ListCards(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"cards": h.cards.CardNames(),
	})
}

// GetCard handles GET /cards/{card}.
func (h *Handler) GetCard(w http.ResponseWriter, r *http.Request) {
	name, err := validation.ValidateCardName(mux.Vars(r)["card"])
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_CARD", err.Error())
		return
	}

	view, err := h.cards.GetCard(r.Context(), name)
	if err != nil {
		if errors.Is(err, service.ErrCardNotFound) {
			writeError(w, r, http.StatusNotFound, "CARD_NOT_FOUND", "card "+name+" is not configured")
			return
		}
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// healthResult holds the computed health status and metadata for logging.
type healthResult struct {
	status     string
	statusCode int
	reason     string
}

// GetHealth handles GET /health.
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	result := h.computeHealthStatus(r.Context())

	h.healthStatusMu.Lock()
	prev := h.healthStatusPrev
	if prev != "" && prev != result.status && h.logger != nil {
		h.logger.Info("health status transition",
			zap.String("previous_status", prev),
			zap.String("current_status", result.status),
			zap.String("reason", result.reason))
	}
	h.healthStatusPrev = result.status
	h.healthStatusMu.Unlock()

	checks := make(map[string]string)
	switch result.reason {
	case "home_assistant_unreachable", "error_rate_breach", "circuit_open":
		checks["homeAssistant"] = "unhealthy"
	default:
		checks["homeAssistant"] = "healthy"
	}
	if h.healthConfig != nil && h.healthConfig.BreakerOpen != nil {
		if h.healthConfig.BreakerOpen() {
			checks["circuitBreaker"] = "open"
		} else {
			checks["circuitBreaker"] = "closed"
		}
	}
	if h.healthConfig != nil && h.healthConfig.CachePing != nil {
		if h.healthConfig.CachePing() == nil {
			checks["cache"] = "healthy"
		} else {
			checks["cache"] = "unhealthy"
		}
	}
	writeJSON(w, result.statusCode, map[string]interface{}{
		"status":    result.status,
		"service":   "dwd-warning-service",
		"version":   "dev",
		"checks":    checks,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// computeHealthStatus evaluates conditions in priority order:
// shutting-down > starting > degraded (circuit open, Home Assistant unreachable, then error rate) > healthy.
func (h *Handler) computeHealthStatus(ctx context.Context) healthResult {
	if lifecycle.IsShuttingDown() {
		return healthResult{"shutting-down", http.StatusServiceUnavailable, "signal"}
	}
	if !lifecycle.IsReady() {
		return healthResult{"starting", http.StatusServiceUnavailable, "no_snapshot"}
	}
	if h.healthConfig != nil && h.healthConfig.BreakerOpen != nil && h.healthConfig.BreakerOpen() {
		return healthResult{"degraded", http.StatusServiceUnavailable, "circuit_open"}
	}
	if err := h.client.Ping(ctx); err != nil {
		return healthResult{"degraded", http.StatusServiceUnavailable, "home_assistant_unreachable"}
	}
	if h.healthConfig != nil && h.healthConfig.DegradedWindow > 0 && h.healthConfig.DegradedErrorPct > 0 {
		errs, total := traffic.ErrorRate(h.healthConfig.DegradedWindow)
		if total > 0 {
			pct := float64(errs) * 100 / float64(total)
			if pct >= float64(h.healthConfig.DegradedErrorPct) {
				return healthResult{"degraded", http.StatusServiceUnavailable, "error_rate_breach"}
			}
		}
	}
	return healthResult{"healthy", http.StatusOK, ""}
}

// writeJSON writes a JSON response with the specified HTTP status code.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes an error response in the standard error format with code, message,
// and requestId (correlation ID) if available in request context.
func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	corrID, _ := r.Context().Value("correlation_id").(string)
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]string{
			"code":      code,
			"message":   message,
			"requestId": corrID,
		},
	})
}

// writeServiceError writes a 503 Service Unavailable error response for upstream failures.
// Logs the underlying error at DEBUG level if logger is available in request context.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	writeError(w, r, http.StatusServiceUnavailable, "UPSTREAM_UNAVAILABLE", "Unable to fetch Home Assistant states")
	if logger, ok := r.Context().Value("logger").(*zap.Logger); ok && logger != nil {
		logger.Debug("upstream error", zap.Error(err))
	}
}
