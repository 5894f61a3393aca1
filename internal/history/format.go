package history

import (
	"fmt"
	"time"
)

// RelativeTime renders an entry timestamp (unix ms) relative to now:
// "Just now", "5m ago", "3h ago", "2d ago", or a local date after a week.
func RelativeTime(timestampMs int64, now time.Time) string {
	t := time.UnixMilli(timestampMs)
	diff := now.Sub(t)
	switch {
	case diff < time.Minute:
		return "Just now"
	case diff < time.Hour:
		return fmt.Sprintf("%dm ago", int(diff/time.Minute))
	case diff < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(diff/time.Hour))
	case diff < 7*24*time.Hour:
		return fmt.Sprintf("%dd ago", int(diff/(24*time.Hour)))
	}
	return t.Local().Format("2006-01-02 15:04")
}

// Label renders "City" or "City, CC".
func Label(city, country string) string {
	if country == "" {
		return city
	}
	return city + ", " + country
}
