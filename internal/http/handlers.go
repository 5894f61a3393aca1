package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/mux"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/kjstillabower/weather-lookup/internal/history"
	"github.com/kjstillabower/weather-lookup/internal/models"
	"github.com/kjstillabower/weather-lookup/internal/observability"
	"github.com/kjstillabower/weather-lookup/internal/service"
	"github.com/kjstillabower/weather-lookup/internal/traffic"
)

// HealthConfig holds the dependencies the health handler probes.
type HealthConfig struct {
	Version string
	// APIKeyConfigured reports whether a provider credential is present.
	APIKeyConfigured bool
	// StoragePing, when set, checks history backend reachability.
	StoragePing func() error
	// BreakerState, when set, reports the provider circuit breaker state.
	BreakerState func() string
	// Traffic, when set, records search outcomes. Health reports degraded
	// once the provider error rate over DegradedWindow reaches DegradedErrorPct.
	Traffic          *traffic.Tracker
	DegradedWindow   time.Duration
	DegradedErrorPct int
	StartTime        time.Time
}

// Handler serves the presentation API over the orchestrator.
type Handler struct {
	orchestrator *service.Orchestrator
	healthConfig *HealthConfig
	logger       *zap.Logger
	clock        clockwork.Clock

	shuttingDown atomic.Bool

	healthStatusMu   sync.Mutex
	healthStatusPrev string
}

// HandlerOption customizes a Handler.
type HandlerOption func(*Handler)

// WithClock sets the clock used for relative history times.
func WithClock(c clockwork.Clock) HandlerOption {
	return func(h *Handler) { h.clock = c }
}

// NewHandler returns a new Handler.
func NewHandler(orchestrator *service.Orchestrator, healthConfig *HealthConfig, logger *zap.Logger, opts ...HandlerOption) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if healthConfig == nil {
		healthConfig = &HealthConfig{}
	}
	h := &Handler{
		orchestrator: orchestrator,
		healthConfig: healthConfig,
		logger:       logger,
		clock:        clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// SetShuttingDown flips health to shutting-down so load balancers drain traffic.
func (h *Handler) SetShuttingDown(v bool) {
	h.shuttingDown.Store(v)
}

type searchRequest struct {
	City    string `json:"city"`
	Country string `json:"country"`
}

// Search handles POST /search.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, string(models.KindValidation), "Request body must be a JSON object with a city field")
		return
	}
	weather, err := h.orchestrator.Search(r.Context(), req.City, req.Country)
	if h.healthConfig.Traffic != nil {
		h.healthConfig.Traffic.Observe(err)
	}
	if err != nil {
		writeWeatherError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, weather)
}

// GetState handles GET /state.
func (h *Handler) GetState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.orchestrator.Snapshot())
}

type historyItem struct {
	models.HistoryEntry
	Label       string `json:"label"`
	SearchedAgo string `json:"searchedAgo"`
}

type historyResponse struct {
	Items     []historyItem `json:"items"`
	MaxLength int           `json:"maxLength"`
}

// GetHistory handles GET /history.
func (h *Handler) GetHistory(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.historyResponse())
}

func (h *Handler) historyResponse() historyResponse {
	state := h.orchestrator.History()
	now := h.clock.Now()
	items := make([]historyItem, 0, len(state.Items))
	for _, e := range state.Items {
		items = append(items, historyItem{
			HistoryEntry: e,
			Label:        history.Label(e.City, e.Country),
			SearchedAgo:  history.RelativeTime(e.Timestamp, now),
		})
	}
	return historyResponse{Items: items, MaxLength: state.MaxLength}
}

// DeleteHistoryEntry handles DELETE /history/{id}. Unknown ids still return 204.
func (h *Handler) DeleteHistoryEntry(w http.ResponseWriter, r *http.Request) {
	h.orchestrator.DeleteHistoryEntry(mux.Vars(r)["id"])
	w.WriteHeader(http.StatusNoContent)
}

// ClearHistory handles DELETE /history.
func (h *Handler) ClearHistory(w http.ResponseWriter, r *http.Request) {
	h.orchestrator.ClearHistory()
	w.WriteHeader(http.StatusNoContent)
}

type maxLengthRequest struct {
	MaxLength *int `json:"maxLength"`
}

// SetHistoryMaxLength handles PUT /history/max-length.
func (h *Handler) SetHistoryMaxLength(w http.ResponseWriter, r *http.Request) {
	var req maxLengthRequest
	if err := decodeBody(r, &req); err != nil || req.MaxLength == nil {
		writeError(w, r, http.StatusBadRequest, string(models.KindValidation), "Request body must be a JSON object with a maxLength field")
		return
	}
	if err := h.orchestrator.SetHistoryMaxLength(*req.MaxLength); err != nil {
		writeWeatherError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.historyResponse())
}

// healthResult holds the computed health status and metadata for logging.
type healthResult struct {
	status     string
	statusCode int
	reason     string
}

// GetHealth handles GET /health.
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	result, checks := h.computeHealthStatus()

	h.healthStatusMu.Lock()
	prev := h.healthStatusPrev
	if prev != "" && prev != result.status {
		h.logger.Info("health status transition",
			zap.String("previous_status", prev),
			zap.String("current_status", result.status),
			zap.String("reason", result.reason))
	}
	h.healthStatusPrev = result.status
	h.healthStatusMu.Unlock()

	version := h.healthConfig.Version
	if version == "" {
		version = "dev"
	}
	resp := map[string]interface{}{
		"status":    result.status,
		"service":   "weather-lookup",
		"version":   version,
		"checks":    checks,
		"timestamp": h.clock.Now().UTC().Format(time.RFC3339),
	}
	if !h.healthConfig.StartTime.IsZero() {
		resp["uptimeSeconds"] = int64(h.clock.Since(h.healthConfig.StartTime).Seconds())
	}
	writeJSON(w, result.statusCode, resp)
}

// computeHealthStatus evaluates storage, credential, breaker and provider
// error rate. Shutting-down overrides everything.
func (h *Handler) computeHealthStatus() (healthResult, map[string]string) {
	checks := map[string]string{"weatherApi": "healthy"}
	result := healthResult{"healthy", http.StatusOK, ""}

	if h.healthConfig.StoragePing != nil {
		if err := h.healthConfig.StoragePing(); err != nil {
			checks["storage"] = "unhealthy"
			result = healthResult{"degraded", http.StatusServiceUnavailable, "storage_unreachable"}
		} else {
			checks["storage"] = "healthy"
		}
	}
	if !h.healthConfig.APIKeyConfigured {
		checks["weatherApi"] = "unconfigured"
		if result.status == "healthy" {
			result = healthResult{"degraded", http.StatusServiceUnavailable, "api_key_missing"}
		}
	} else if h.healthConfig.BreakerState != nil && h.healthConfig.BreakerState() == "open" {
		checks["weatherApi"] = "circuit-open"
		if result.status == "healthy" {
			result = healthResult{"degraded", http.StatusServiceUnavailable, "circuit_open"}
		}
	} else if h.errorRateBreached() {
		checks["weatherApi"] = "unhealthy"
		if result.status == "healthy" {
			result = healthResult{"degraded", http.StatusServiceUnavailable, "error_rate_breach"}
		}
	}
	if h.shuttingDown.Load() {
		result = healthResult{"shutting-down", http.StatusServiceUnavailable, "signal"}
	}
	return result, checks
}

func (h *Handler) errorRateBreached() bool {
	hc := h.healthConfig
	if hc.Traffic == nil || hc.DegradedWindow <= 0 || hc.DegradedErrorPct <= 0 {
		return false
	}
	errs, total := hc.Traffic.ErrorRate(hc.DegradedWindow)
	return total > 0 && errs*100 >= hc.DegradedErrorPct*total
}

// decodeBody decodes a JSON request body into v. An empty body is an error.
func decodeBody(r *http.Request, v interface{}) error {
	if r.Body == nil {
		return io.EOF
	}
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<16))
	return dec.Decode(v)
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
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]string{
			"code":      code,
			"message":   message,
			"requestId": observability.CorrelationID(r.Context()),
		},
	})
}

// writeWeatherError maps a WeatherServiceError kind to an HTTP status.
func writeWeatherError(w http.ResponseWriter, r *http.Request, err error) {
	wse := models.AsWeatherError(err)
	status := statusForKind(wse.Kind)
	if status >= http.StatusInternalServerError {
		observability.LoggerFromContext(r.Context(), zap.NewNop()).Debug("weather error",
			zap.String("kind", string(wse.Kind)),
			zap.Error(errors.Unwrap(wse)))
	}
	writeError(w, r, status, string(wse.Kind), wse.Message)
}

func statusForKind(kind models.ErrorKind) int {
	switch kind {
	case models.KindValidation:
		return http.StatusBadRequest
	case models.KindNotFound:
		return http.StatusNotFound
	case models.KindInvalidKey, models.KindNetwork:
		return http.StatusBadGateway
	case models.KindTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
