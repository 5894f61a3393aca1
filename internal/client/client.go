package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/sony/gobreaker"

	"github.com/kjstillabower/weather-lookup/internal/models"
	"github.com/kjstillabower/weather-lookup/internal/observability"
	"github.com/kjstillabower/weather-lookup/internal/validation"
)

// RequestTimeout bounds every provider round trip.
const RequestTimeout = 10 * time.Second

// DefaultBaseURL is the OpenWeather 2.5 API root.
const DefaultBaseURL = "https://api.openweathermap.org/data/2.5"

// maxResponseBytes bounds a provider body; current-weather payloads are ~1KB.
const maxResponseBytes = 1 << 20

var errMissingMain = errors.New("parse response: missing main object")

// WeatherClient fetches current conditions for a query.
type WeatherClient interface {
	FetchWeather(ctx context.Context, query models.WeatherQuery) (models.NormalizedWeather, error)
}

// OpenWeatherClient calls the OpenWeather current-weather endpoint and maps
// the response into models.NormalizedWeather. Every failure is returned as
// a *models.WeatherServiceError. It never retries.
type OpenWeatherClient struct {
	apiKey  string
	baseURL string
	timeout time.Duration
	client  *http.Client
	clock   clockwork.Clock
	breaker *gobreaker.CircuitBreaker
}

// Option configures an OpenWeatherClient.
type Option func(*OpenWeatherClient)

// WithClock sets the clock used when the provider omits the observation time.
func WithClock(c clockwork.Clock) Option {
	return func(oc *OpenWeatherClient) { oc.clock = c }
}

// WithCircuitBreaker routes provider calls through cb.
func WithCircuitBreaker(cb *gobreaker.CircuitBreaker) Option {
	return func(oc *OpenWeatherClient) { oc.breaker = cb }
}

// WithTimeout overrides RequestTimeout. Intended for tests.
func WithTimeout(d time.Duration) Option {
	return func(oc *OpenWeatherClient) {
		if d > 0 {
			oc.timeout = d
			oc.client.Timeout = d
		}
	}
}

// NewOpenWeatherClient returns a client for baseURL. An empty apiKey is
// accepted here and reported as INVALID_KEY on the first fetch.
func NewOpenWeatherClient(apiKey, baseURL string, opts ...Option) *OpenWeatherClient {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = DefaultBaseURL
	}
	c := &OpenWeatherClient{
		apiKey:  strings.TrimSpace(apiKey),
		baseURL: baseURL,
		timeout: RequestTimeout,
		client: &http.Client{
			Timeout: RequestTimeout,
		},
		clock: clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Configured reports whether an API credential is present.
func (c *OpenWeatherClient) Configured() bool {
	return c.apiKey != ""
}

type openWeatherResponse struct {
	Name string `json:"name"`
	Sys  struct {
		Country string `json:"country"`
	} `json:"sys"`
	Main *struct {
		Temp      float64  `json:"temp"`
		FeelsLike float64  `json:"feels_like"`
		Humidity  float64  `json:"humidity"`
		Pressure  *float64 `json:"pressure"`
	} `json:"main"`
	Weather []struct {
		Main        string `json:"main"`
		Description string `json:"description"`
		Icon        string `json:"icon"`
	} `json:"weather"`
	Wind struct {
		Speed *float64 `json:"speed"`
		Deg   *float64 `json:"deg"`
	} `json:"wind"`
	Visibility *float64 `json:"visibility"`
	Dt         int64    `json:"dt"`
}

// FetchWeather performs a single provider round trip for query.
// Missing credentials and an empty city fail before any network call.
func (c *OpenWeatherClient) FetchWeather(ctx context.Context, query models.WeatherQuery) (models.NormalizedWeather, error) {
	data, err := c.fetch(ctx, query)
	if err != nil {
		wse := models.AsWeatherError(err)
		observability.WeatherAPIErrorsTotal.WithLabelValues(string(wse.Kind)).Inc()
		return models.NormalizedWeather{}, wse
	}
	return data, nil
}

func (c *OpenWeatherClient) fetch(ctx context.Context, query models.WeatherQuery) (models.NormalizedWeather, error) {
	if c.apiKey == "" {
		return models.NormalizedWeather{}, models.NewError(models.KindInvalidKey, "API key not configured")
	}
	city := strings.TrimSpace(query.City)
	if city == "" {
		return models.NormalizedWeather{}, models.NewError(models.KindValidation, validation.MessageCityRequired)
	}
	target := models.WeatherQuery{City: city, Country: strings.TrimSpace(query.Country)}.Target()

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := c.buildRequest(reqCtx, target)
	if err != nil {
		return models.NormalizedWeather{}, models.WrapError(models.KindUnknown, msgUnknown, err)
	}

	var apiResp openWeatherResponse
	if c.breaker != nil {
		var out interface{}
		out, err = c.breaker.Execute(func() (interface{}, error) {
			return c.roundTrip(req, query.City)
		})
		if err == nil {
			apiResp = out.(openWeatherResponse)
		}
	} else {
		apiResp, err = c.roundTrip(req, query.City)
	}
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return models.NormalizedWeather{}, models.WrapError(models.KindNetwork, msgNetwork, err)
		}
		return models.NormalizedWeather{}, err
	}

	return c.mapResponse(apiResp, city), nil
}

// roundTrip sends req and decodes a 2xx body. requestedCity is echoed in
// the NOT_FOUND message exactly as the caller supplied it.
func (c *OpenWeatherClient) roundTrip(req *http.Request, requestedCity string) (openWeatherResponse, error) {
	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		duration := time.Since(start).Seconds()
		observability.WeatherAPICallsTotal.WithLabelValues("error").Inc()
		observability.WeatherAPIDuration.WithLabelValues("error").Observe(duration)
		return openWeatherResponse{}, classifyTransportError(err)
	}
	defer resp.Body.Close()

	duration := time.Since(start).Seconds()
	status := statusLabel(resp.StatusCode)
	observability.WeatherAPICallsTotal.WithLabelValues(status).Inc()
	observability.WeatherAPIDuration.WithLabelValues(status).Observe(duration)

	if err := classifyStatus(resp.StatusCode, requestedCity); err != nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return openWeatherResponse{}, err
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return openWeatherResponse{}, classifyTransportError(fmt.Errorf("read response body: %w", err))
	}

	var apiResp openWeatherResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return openWeatherResponse{}, models.WrapError(models.KindNetwork, msgNetwork, fmt.Errorf("parse response: %w", err))
	}
	if apiResp.Main == nil {
		return openWeatherResponse{}, models.WrapError(models.KindNetwork, msgNetwork, errMissingMain)
	}
	return apiResp, nil
}

func (c *OpenWeatherClient) buildRequest(ctx context.Context, target string) (*http.Request, error) {
	endpoint, err := url.JoinPath(c.baseURL, "weather")
	if err != nil {
		return nil, fmt.Errorf("invalid API URL: %w", err)
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid API URL: %w", err)
	}

	params := url.Values{}
	params.Set("q", target)
	params.Set("appid", c.apiKey)
	params.Set("units", "metric")
	u.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	return req, nil
}

// mapResponse converts the provider payload. Temperatures round half away
// from zero (15.5 -> 16, 13.2 -> 13).
func (c *OpenWeatherClient) mapResponse(apiResp openWeatherResponse, requestedCity string) models.NormalizedWeather {
	condition, description, icon := models.DefaultCondition, models.DefaultDescription, models.DefaultIconCode
	if len(apiResp.Weather) > 0 {
		w := apiResp.Weather[0]
		if w.Main != "" {
			condition = w.Main
		}
		if w.Description != "" {
			description = w.Description
		}
		if w.Icon != "" {
			icon = w.Icon
		}
	}

	city := apiResp.Name
	if city == "" {
		city = requestedCity
	}

	observedAt := apiResp.Dt
	if observedAt == 0 {
		observedAt = c.clock.Now().Unix()
	}

	return models.NormalizedWeather{
		City:             city,
		Country:          apiResp.Sys.Country,
		TemperatureC:     roundInt(apiResp.Main.Temp),
		FeelsLikeC:       roundInt(apiResp.Main.FeelsLike),
		Condition:        condition,
		Description:      description,
		IconCode:         icon,
		HumidityPct:      roundInt(apiResp.Main.Humidity),
		PressureHpa:      roundIntPtr(apiResp.Main.Pressure),
		WindSpeedMs:      apiResp.Wind.Speed,
		WindDirectionDeg: roundIntPtr(apiResp.Wind.Deg),
		VisibilityM:      roundIntPtr(apiResp.Visibility),
		ObservedAt:       observedAt,
	}
}

func roundInt(f float64) int {
	return int(math.Round(f))
}

func roundIntPtr(f *float64) *int {
	if f == nil {
		return nil
	}
	v := roundInt(*f)
	return &v
}

func statusLabel(statusCode int) string {
	if statusCode >= 200 && statusCode < 300 {
		return "success"
	}
	if statusCode == 429 {
		return "rate_limited"
	}
	if statusCode >= 400 && statusCode < 500 {
		return "client_error"
	}
	if statusCode >= 500 {
		return "server_error"
	}
	return "error"
}
