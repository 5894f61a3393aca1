package validation

import (
	"strings"

	"github.com/kjstillabower/weather-lookup/internal/models"
)

// MessageCityRequired is the user-facing message for an empty city.
const MessageCityRequired = "City name is required"

// NormalizeQuery trims raw city and country input. An empty city after trim
// is a VALIDATION error; an empty country after trim means no country.
func NormalizeQuery(city, country string) (models.WeatherQuery, error) {
	c := strings.TrimSpace(city)
	if c == "" {
		return models.WeatherQuery{}, models.NewError(models.KindValidation, MessageCityRequired)
	}
	return models.WeatherQuery{
		City:    c,
		Country: strings.TrimSpace(country),
	}, nil
}

// HistoryKey returns the case-insensitive identity of a (city, country) pair.
func HistoryKey(city, country string) string {
	return strings.ToLower(strings.TrimSpace(city)) + "\x00" + strings.ToLower(strings.TrimSpace(country))
}
