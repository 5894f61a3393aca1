package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/kjstillabower/weather-lookup/internal/models"
)

func newSearchCmd(opts *globalOptions) *cobra.Command {
	var (
		country string
		jsonOut bool
	)
	cmd := &cobra.Command{
		Use:   "search <city>",
		Short: "Look up current weather for a city",
		Example: `  weather search London
  weather search "New York" --country US
  weather search Paris --json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			city := strings.Join(args, " ")
			return opts.withApp(cmd.Context(), func(a *app) error {
				weather, err := a.orchestrator.Search(cmd.Context(), city, country)
				if err != nil {
					return userError(err)
				}
				if jsonOut {
					enc := json.NewEncoder(cmd.OutOrStdout())
					enc.SetIndent("", "  ")
					return enc.Encode(weather)
				}
				printWeather(cmd.OutOrStdout(), weather)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&country, "country", "c", "", "Country code to disambiguate the city (e.g. GB)")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Print the result as JSON")
	return cmd
}

// userError reduces a lookup failure to its display message.
func userError(err error) error {
	wse := models.AsWeatherError(err)
	return fmt.Errorf("%s (%s)", wse.Message, wse.Kind)
}

func printWeather(w io.Writer, weather models.NormalizedWeather) {
	place := weather.City
	if weather.Country != "" {
		place += ", " + weather.Country
	}
	fmt.Fprintf(w, "%s\n", place)
	fmt.Fprintf(w, "  %s (%s)\n", weather.Condition, weather.Description)
	fmt.Fprintf(w, "  Temperature: %d°C (feels like %d°C)\n", weather.TemperatureC, weather.FeelsLikeC)
	fmt.Fprintf(w, "  Humidity:    %d%%\n", weather.HumidityPct)
	if weather.PressureHpa != nil {
		fmt.Fprintf(w, "  Pressure:    %d hPa\n", *weather.PressureHpa)
	}
	if weather.WindSpeedMs != nil {
		wind := fmt.Sprintf("%.1f m/s", *weather.WindSpeedMs)
		if weather.WindDirectionDeg != nil {
			wind += fmt.Sprintf(" from %d°", *weather.WindDirectionDeg)
		}
		fmt.Fprintf(w, "  Wind:        %s\n", wind)
	}
	if weather.VisibilityM != nil {
		fmt.Fprintf(w, "  Visibility:  %.1f km\n", float64(*weather.VisibilityM)/1000)
	}
	fmt.Fprintf(w, "  Observed:    %s\n", time.Unix(weather.ObservedAt, 0).Local().Format("2006-01-02 15:04"))
}
