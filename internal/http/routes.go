package http

import (
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/weather-lookup/internal/observability"
)

// RouterConfig holds per-route middleware settings.
type RouterConfig struct {
	// Limiter guards /search. Nil disables rate limiting.
	Limiter        *rate.Limiter
	RequestTimeout time.Duration
}

// NewRouter wires the presentation API routes.
func NewRouter(h *Handler, cfg RouterConfig, logger *zap.Logger) *mux.Router {
	router := mux.NewRouter()
	router.Use(CorrelationIDMiddleware(logger))
	router.Use(MetricsMiddleware)

	router.HandleFunc("/health", h.GetHealth).Methods("GET")
	router.Handle("/metrics", observability.MetricsHandler()).Methods("GET")
	router.HandleFunc("/state", h.GetState).Methods("GET")

	router.HandleFunc("/history", h.GetHistory).Methods("GET")
	router.HandleFunc("/history", h.ClearHistory).Methods("DELETE")
	router.HandleFunc("/history/max-length", h.SetHistoryMaxLength).Methods("PUT")
	router.HandleFunc("/history/{id}", h.DeleteHistoryEntry).Methods("DELETE")

	searchRouter := router.PathPrefix("/search").Subrouter()
	searchRouter.Use(RateLimitMiddleware(cfg.Limiter))
	if cfg.RequestTimeout > 0 {
		searchRouter.Use(TimeoutMiddleware(cfg.RequestTimeout))
	}
	searchRouter.HandleFunc("", h.Search).Methods("POST")

	return router
}
