package client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/kjstillabower/weather-lookup/internal/models"
)

// User-facing messages for each failure class.
const (
	msgInvalidKey = "Invalid API key"
	msgTimeout    = "Request timed out. Please try again."
	msgNetwork    = "Failed to fetch weather data. Please check your internet connection."
	msgUnknown    = "An unexpected error occurred."
)

// notFoundMessage names the city as the caller typed it.
func notFoundMessage(city string) string {
	return fmt.Sprintf("City %q not found. Please check the spelling and try again.", city)
}

// classifyStatus maps a provider HTTP status to a WeatherServiceError, or nil for 2xx.
func classifyStatus(statusCode int, requestedCity string) error {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return nil
	case statusCode == http.StatusNotFound:
		return models.NewError(models.KindNotFound, notFoundMessage(requestedCity))
	case statusCode == http.StatusUnauthorized:
		return models.NewError(models.KindInvalidKey, msgInvalidKey)
	default:
		return models.WrapError(models.KindNetwork, msgNetwork, fmt.Errorf("HTTP %d", statusCode))
	}
}

// classifyTransportError maps a failed round trip to TIMEOUT (deadline,
// cancellation or net timeout) or NETWORK_ERROR (everything else).
func classifyTransportError(err error) error {
	if isTimeout(err) {
		return models.WrapError(models.KindTimeout, msgTimeout, err)
	}
	return models.WrapError(models.KindNetwork, msgNetwork, err)
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
