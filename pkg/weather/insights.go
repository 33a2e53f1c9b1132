package weather

import "fmt"

// Insight thresholds. Fixed rules, not tunable at runtime.
const (
	heatStressTempC     = 35.0
	coldStressTempC     = 10.0
	waterloggingRainMm  = 100.0
	droughtRainMm       = 10.0
	irrigationMoistureM = 0.15
)

// deriveInsights applies the fixed agronomic rules to a snapshot.
// Rainfall rules look at the 7-day forecast window (or whatever shorter
// window the snapshot carries).
func deriveInsights(s Snapshot) []Insight {
	var insights []Insight

	if s.Current.TemperatureC > heatStressTempC {
		insights = append(insights, Insight{
			Kind:     "heat_stress",
			Severity: "warning",
			Message: fmt.Sprintf("Temperature %.1f°C exceeds 35°C: risk of heat stress, consider shade nets and evening irrigation.",
				s.Current.TemperatureC),
		})
	}
	if s.Current.TemperatureC < coldStressTempC {
		insights = append(insights, Insight{
			Kind:     "cold_stress",
			Severity: "warning",
			Message: fmt.Sprintf("Temperature %.1f°C is below 10°C: risk of cold stress, protect sensitive crops.",
				s.Current.TemperatureC),
		})
	}

	window := s.Forecast
	if len(window) > 7 {
		window = window[:7]
	}
	if len(window) > 0 {
		var rainfall float64
		for _, day := range window {
			rainfall += day.RainfallMm
		}
		if rainfall > waterloggingRainMm {
			insights = append(insights, Insight{
				Kind:     "waterlogging",
				Severity: "warning",
				Message: fmt.Sprintf("Forecast rainfall %.0fmm over %d days exceeds 100mm: ensure field drainage to avoid waterlogging.",
					rainfall, len(window)),
			})
		}
		if rainfall < droughtRainMm {
			insights = append(insights, Insight{
				Kind:     "drought",
				Severity: "warning",
				Message: fmt.Sprintf("Forecast rainfall %.0fmm over %d days is below 10mm: plan supplemental irrigation.",
					rainfall, len(window)),
			})
		}
	}

	if s.Current.SoilMoistureM3M3 < irrigationMoistureM {
		insights = append(insights, Insight{
			Kind:     "irrigation",
			Severity: "info",
			Message: fmt.Sprintf("Soil moisture %.2f m³/m³ is below 0.15: irrigation recommended.",
				s.Current.SoilMoistureM3M3),
		})
	}

	return insights
}
