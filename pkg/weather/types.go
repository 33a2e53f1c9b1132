package weather

import "time"

// Current is the instantaneous conditions block.
type Current struct {
	TemperatureC      float64 `json:"temperature_c"`
	HumidityPct       float64 `json:"humidity_pct"`
	RainfallMm        float64 `json:"rainfall_mm"`
	WindKmh           float64 `json:"wind_kmh"`
	SoilTemperatureC  float64 `json:"soil_temperature_c"`
	SoilMoistureM3M3  float64 `json:"soil_moisture_m3m3"`
	Description       string  `json:"description"`
}

type DailyForecast struct {
	Date         string  `json:"date"`
	TempMinC     float64 `json:"temp_min_c"`
	TempMaxC     float64 `json:"temp_max_c"`
	RainfallMm   float64 `json:"rainfall_mm"`
	Description  string  `json:"description"`
}

// Insight is one threshold-derived agricultural alert.
type Insight struct {
	Kind     string `json:"kind"`
	Severity string `json:"severity"`
	Message  string `json:"message"`
}

// Snapshot is the cached unit: one location at one fetch time.
type Snapshot struct {
	Location  string          `json:"location"`
	Lat       float64         `json:"lat"`
	Lon       float64         `json:"lon"`
	Current   Current         `json:"current"`
	Forecast  []DailyForecast `json:"forecast"`
	Insights  []Insight       `json:"insights"`
	FetchedAt time.Time       `json:"fetched_at"`
}
