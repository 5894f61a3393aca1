package models

// WeatherQuery is a normalized lookup request. Country is empty when absent.
type WeatherQuery struct {
	City    string `json:"city"`
	Country string `json:"country,omitempty"`
}

// Target returns the provider query string: "city" or "city,country".
func (q WeatherQuery) Target() string {
	if q.Country == "" {
		return q.City
	}
	return q.City + "," + q.Country
}

// NormalizedWeather is the provider-independent current conditions record.
// Optional provider fields are nil when the provider omitted them.
type NormalizedWeather struct {
	City             string   `json:"city"`
	Country          string   `json:"country"`
	TemperatureC     int      `json:"temperatureC"`
	FeelsLikeC       int      `json:"feelsLikeC"`
	Condition        string   `json:"condition"`
	Description      string   `json:"description"`
	IconCode         string   `json:"iconCode"`
	HumidityPct      int      `json:"humidityPct"`
	PressureHpa      *int     `json:"pressureHpa,omitempty"`
	WindSpeedMs      *float64 `json:"windSpeedMs,omitempty"`
	WindDirectionDeg *int     `json:"windDirectionDeg,omitempty"`
	VisibilityM      *int     `json:"visibilityM,omitempty"`
	ObservedAt       int64    `json:"observedAt"` // unix seconds
}

// Defaults applied when the provider returns no weather-condition data.
const (
	DefaultCondition   = "Unknown"
	DefaultDescription = "No description"
	DefaultIconCode    = "01d"
)
