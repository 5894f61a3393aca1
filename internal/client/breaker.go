package client

import (
	"time"

	"github.com/sony/gobreaker"

	"github.com/kjstillabower/weather-lookup/internal/models"
	"github.com/kjstillabower/weather-lookup/internal/observability"
)

// BreakerConfig holds circuit breaker parameters for provider calls.
type BreakerConfig struct {
	FailureThreshold int           // consecutive failures before opening
	HalfOpenRequests int           // probe requests allowed while half-open
	OpenTimeout      time.Duration // how long to stay open before probing
}

// NewCircuitBreaker builds a breaker that opens after FailureThreshold
// consecutive provider failures. NOT_FOUND and INVALID_KEY responses mean the
// provider answered, so they do not count against it.
func NewCircuitBreaker(cfg BreakerConfig) *gobreaker.CircuitBreaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.HalfOpenRequests <= 0 {
		cfg.HalfOpenRequests = 1
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = 30 * time.Second
	}
	threshold := uint32(cfg.FailureThreshold)
	observability.CircuitBreakerState.WithLabelValues("weather_api").Set(float64(gobreaker.StateClosed))
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "weather_api",
		MaxRequests: uint32(cfg.HalfOpenRequests),
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		IsSuccessful: func(err error) bool {
			switch models.KindOf(err) {
			case "", models.KindNotFound, models.KindInvalidKey:
				return true
			}
			return false
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			observability.RecordCircuitBreakerTransition(name, from.String(), to.String(), float64(to))
		},
	})
}
