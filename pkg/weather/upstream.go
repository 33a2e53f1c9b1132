package weather

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/agrosage/agrosage/pkg/httpclient"
	"github.com/agrosage/agrosage/pkg/observability"
)

// Upstream fetches raw conditions for resolved coordinates. The
// returned snapshot has no insights attached; the service derives
// those.
type Upstream interface {
	Fetch(ctx context.Context, loc Location, days int) (Snapshot, error)
}

// ErrUpstreamUnavailable marks fetch failures that must not poison the
// cache.
var ErrUpstreamUnavailable = fmt.Errorf("weather upstream unavailable")

// OpenMeteoClient speaks the open-meteo forecast API.
type OpenMeteoClient struct {
	baseURL    string
	httpClient *httpclient.Client
}

type OpenMeteoConfig struct {
	Host    string
	Timeout time.Duration
}

func NewOpenMeteoClient(cfg OpenMeteoConfig) *OpenMeteoClient {
	baseURL := cfg.Host
	if baseURL == "" {
		baseURL = "https://api.open-meteo.com"
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}

	return &OpenMeteoClient{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: httpclient.New(
			httpclient.WithHTTPClient(&http.Client{Timeout: timeout}),
			httpclient.WithMaxRetries(1),
		),
	}
}

type openMeteoResponse struct {
	Current struct {
		Temperature2m       float64 `json:"temperature_2m"`
		RelativeHumidity2m  float64 `json:"relative_humidity_2m"`
		Precipitation       float64 `json:"precipitation"`
		WindSpeed10m        float64 `json:"wind_speed_10m"`
		SoilTemperature0cm  float64 `json:"soil_temperature_0cm"`
		SoilMoisture0To1cm  float64 `json:"soil_moisture_0_to_1cm"`
		WeatherCode         int     `json:"weather_code"`
	} `json:"current"`
	Daily struct {
		Time             []string  `json:"time"`
		Temperature2mMin []float64 `json:"temperature_2m_min"`
		Temperature2mMax []float64 `json:"temperature_2m_max"`
		PrecipitationSum []float64 `json:"precipitation_sum"`
		WeatherCode      []int     `json:"weather_code"`
	} `json:"daily"`
}

func (c *OpenMeteoClient) Fetch(ctx context.Context, loc Location, days int) (Snapshot, error) {
	tracer := observability.GetTracer("agrosage.weather")
	ctx, span := tracer.Start(ctx, observability.SpanWeatherFetch,
		trace.WithAttributes(
			attribute.String("weather.location", loc.Name),
			attribute.Int("weather.days", days),
		),
	)
	defer span.End()

	params := url.Values{}
	params.Set("latitude", fmt.Sprintf("%.4f", loc.Lat))
	params.Set("longitude", fmt.Sprintf("%.4f", loc.Lon))
	params.Set("current", "temperature_2m,relative_humidity_2m,precipitation,wind_speed_10m,soil_temperature_0cm,soil_moisture_0_to_1cm,weather_code")
	params.Set("daily", "temperature_2m_min,temperature_2m_max,precipitation_sum,weather_code")
	params.Set("forecast_days", fmt.Sprintf("%d", days))
	params.Set("timezone", "auto")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/v1/forecast?"+params.Encode(), nil)
	if err != nil {
		return Snapshot{}, fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if resp == nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "fetch failed")
		return Snapshot{}, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("%w: status %d", ErrUpstreamUnavailable, resp.StatusCode)
		span.RecordError(err)
		span.SetStatus(codes.Error, "bad status")
		return Snapshot{}, err
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return Snapshot{}, fmt.Errorf("%w: read failed: %v", ErrUpstreamUnavailable, err)
	}

	var parsed openMeteoResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return Snapshot{}, fmt.Errorf("%w: bad payload: %v", ErrUpstreamUnavailable, err)
	}

	snapshot := Snapshot{
		Location: loc.Name,
		Lat:      loc.Lat,
		Lon:      loc.Lon,
		Current: Current{
			TemperatureC:     parsed.Current.Temperature2m,
			HumidityPct:      parsed.Current.RelativeHumidity2m,
			RainfallMm:       parsed.Current.Precipitation,
			WindKmh:          parsed.Current.WindSpeed10m,
			SoilTemperatureC: parsed.Current.SoilTemperature0cm,
			SoilMoistureM3M3: parsed.Current.SoilMoisture0To1cm,
			Description:      describeWeatherCode(parsed.Current.WeatherCode),
		},
	}

	for i, day := range parsed.Daily.Time {
		forecast := DailyForecast{Date: day}
		if i < len(parsed.Daily.Temperature2mMin) {
			forecast.TempMinC = parsed.Daily.Temperature2mMin[i]
		}
		if i < len(parsed.Daily.Temperature2mMax) {
			forecast.TempMaxC = parsed.Daily.Temperature2mMax[i]
		}
		if i < len(parsed.Daily.PrecipitationSum) {
			forecast.RainfallMm = parsed.Daily.PrecipitationSum[i]
		}
		if i < len(parsed.Daily.WeatherCode) {
			forecast.Description = describeWeatherCode(parsed.Daily.WeatherCode[i])
		}
		snapshot.Forecast = append(snapshot.Forecast, forecast)
	}

	span.SetStatus(codes.Ok, "success")
	return snapshot, nil
}

// describeWeatherCode maps WMO codes to short human descriptions.
func describeWeatherCode(code int) string {
	switch {
	case code == 0:
		return "clear sky"
	case code <= 3:
		return "partly cloudy"
	case code <= 48:
		return "fog"
	case code <= 57:
		return "drizzle"
	case code <= 67:
		return "rain"
	case code <= 77:
		return "snow"
	case code <= 82:
		return "rain showers"
	case code <= 86:
		return "snow showers"
	default:
		return "thunderstorm"
	}
}

var _ Upstream = (*OpenMeteoClient)(nil)
