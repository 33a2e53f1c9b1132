package tools

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/agrosage/agrosage/pkg/weather"
)

// WeatherTool exposes the weather subservice to the agent.
type WeatherTool struct {
	service *weather.Service
}

func NewWeatherTool(service *weather.Service) *WeatherTool {
	return &WeatherTool{service: service}
}

func (t *WeatherTool) GetName() string { return "weather_lookup" }

func (t *WeatherTool) GetDescription() string {
	return "Fetches current weather, forecast, and agricultural alerts for a region"
}

func (t *WeatherTool) GetInfo() ToolInfo {
	return ToolInfo{
		Name:        t.GetName(),
		Description: t.GetDescription(),
		Category:    CategoryUtility,
		Parameters: []ToolParameter{
			{Name: "location", Type: "string", Description: "Region or city name", Required: true},
			{Name: "days", Type: "integer", Description: "Forecast days", Default: weather.DefaultDays, Min: Float64(weather.MinForecastDays), Max: Float64(weather.MaxForecastDays)},
		},
		Outputs: []ToolParameter{
			{Name: "current", Type: "object", Description: "Current conditions"},
			{Name: "forecast", Type: "array", Description: "Daily forecast"},
			{Name: "insights", Type: "array", Description: "Threshold-derived agricultural alerts"},
		},
		Keywords:          []string{"weather", "rain", "temperature", "forecast", "humidity", "wind", "monsoon"},
		Patterns:          []string{`weather (in|for|at)`, `(will|going to) rain`, `forecast`, `temperature (in|at)`},
		Priority:          40,
		TerminalOnSuccess: true,
	}
}

func (t *WeatherTool) Execute(ctx context.Context, args map[string]any) (ToolResult, error) {
	location := GetString(args, "location", "")
	days := GetInt(args, "days", weather.DefaultDays)

	snapshot, err := t.service.Get(ctx, location, days)
	if err != nil {
		var unknownErr *weather.UnknownLocationError
		switch {
		case errors.As(err, &unknownErr):
			result := Fail(t.GetName(), ErrInvalidInput, "%s", unknownErr.Error())
			result.Metadata = map[string]any{"suggestions": unknownErr.Suggestions}
			return result, err
		case errors.Is(err, weather.ErrUpstreamUnavailable):
			return Fail(t.GetName(), ErrBackendUnavailable, "%s", err.Error()), err
		default:
			return Fail(t.GetName(), ErrInvalidInput, "%s", err.Error()), err
		}
	}

	return OK(t.GetName(), map[string]any{
		"location":   snapshot.Location,
		"current":    snapshot.Current,
		"forecast":   snapshot.Forecast,
		"insights":   snapshot.Insights,
		"fetched_at": snapshot.FetchedAt,
		"summary":    summarizeWeather(snapshot),
	}), nil
}

func summarizeWeather(s weather.Snapshot) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s: %.1f°C, %s, humidity %.0f%%, wind %.0f km/h, soil moisture %.2f m³/m³",
		s.Location, s.Current.TemperatureC, s.Current.Description,
		s.Current.HumidityPct, s.Current.WindKmh, s.Current.SoilMoistureM3M3)
	for _, insight := range s.Insights {
		sb.WriteString(". ")
		sb.WriteString(insight.Message)
	}
	return sb.String()
}

var _ Tool = (*WeatherTool)(nil)
