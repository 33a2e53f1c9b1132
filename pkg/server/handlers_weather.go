package server

import (
	"errors"
	"net/http"

	"github.com/agrosage/agrosage/pkg/weather"
)

type weatherRequest struct {
	Location string `json:"location"`
	Days     *int   `json:"days"`
}

func (s *Server) handleWeather(w http.ResponseWriter, r *http.Request) {
	var req weatherRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Location == "" {
		writeError(w, r, http.StatusBadRequest, "location is required")
		return
	}

	// Absent days falls back to the default; an explicit out-of-range
	// value is the caller's mistake.
	days := weather.DefaultDays
	if req.Days != nil {
		days = *req.Days
	}
	if days < weather.MinForecastDays || days > weather.MaxForecastDays {
		writeError(w, r, http.StatusBadRequest, "days must be between 1 and 16")
		return
	}

	snapshot, err := s.weather.Get(r.Context(), req.Location, days)
	if err != nil {
		var unknown *weather.UnknownLocationError
		if errors.As(err, &unknown) {
			writeJSON(w, http.StatusNotFound, errorBody{
				Error:       unknown.Error(),
				Suggestions: unknown.Suggestions,
			})
			return
		}
		if errors.Is(err, weather.ErrUpstreamUnavailable) {
			writeError(w, r, http.StatusServiceUnavailable, "weather service is unavailable")
			return
		}
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, snapshot)
}

func (s *Server) handleWeatherLocations(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.weather.Locations())
}

func (s *Server) handleWeatherCacheClear(w http.ResponseWriter, r *http.Request) {
	cleared := s.weather.ClearCache()
	writeJSON(w, http.StatusOK, map[string]any{"cleared": cleared})
}
