package weather

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeUpstream struct {
	calls    atomic.Int64
	snapshot Snapshot
	err      error
}

func (f *fakeUpstream) Fetch(_ context.Context, loc Location, days int) (Snapshot, error) {
	f.calls.Add(1)
	if f.err != nil {
		return Snapshot{}, f.err
	}
	s := f.snapshot
	s.Location = loc.Name
	s.Lat = loc.Lat
	s.Lon = loc.Lon
	return s, nil
}

func newTestService(t *testing.T, upstream Upstream, ttl time.Duration) *Service {
	t.Helper()
	g, err := LoadGazetteer()
	require.NoError(t, err)
	return NewService(g, upstream, ServiceConfig{CacheTTL: ttl})
}

func TestGetCachesWithinTTL(t *testing.T) {
	upstream := &fakeUpstream{snapshot: Snapshot{
		Current: Current{TemperatureC: 28, SoilMoistureM3M3: 0.3},
	}}
	svc := newTestService(t, upstream, 30*time.Minute)

	first, err := svc.Get(context.Background(), "Punjab", 3)
	require.NoError(t, err)

	second, err := svc.Get(context.Background(), "Punjab", 3)
	require.NoError(t, err)

	assert.Equal(t, int64(1), upstream.calls.Load())
	assert.Equal(t, first, second)
}

func TestGetDifferentDaysAreSeparateKeys(t *testing.T) {
	upstream := &fakeUpstream{snapshot: Snapshot{
		Current: Current{TemperatureC: 20, SoilMoistureM3M3: 0.3},
	}}
	svc := newTestService(t, upstream, 30*time.Minute)

	_, err := svc.Get(context.Background(), "Punjab", 3)
	require.NoError(t, err)
	_, err = svc.Get(context.Background(), "Punjab", 7)
	require.NoError(t, err)

	assert.Equal(t, int64(2), upstream.calls.Load())
}

func TestGetExpiredEntryRefetches(t *testing.T) {
	upstream := &fakeUpstream{snapshot: Snapshot{
		Current: Current{TemperatureC: 20, SoilMoistureM3M3: 0.3},
	}}
	svc := newTestService(t, upstream, 30*time.Minute)

	_, err := svc.Get(context.Background(), "Punjab", 3)
	require.NoError(t, err)

	// Wind the clock past the TTL.
	svc.cache.now = func() time.Time { return time.Now().Add(31 * time.Minute) }

	_, err = svc.Get(context.Background(), "Punjab", 3)
	require.NoError(t, err)
	assert.Equal(t, int64(2), upstream.calls.Load())
}

func TestGetUpstreamFailureNotCached(t *testing.T) {
	upstream := &fakeUpstream{err: ErrUpstreamUnavailable}
	svc := newTestService(t, upstream, 30*time.Minute)

	_, err := svc.Get(context.Background(), "Punjab", 3)
	require.ErrorIs(t, err, ErrUpstreamUnavailable)
	assert.Equal(t, 0, svc.CacheSize())

	// Next call must hit upstream again, not a poisoned entry.
	_, err = svc.Get(context.Background(), "Punjab", 3)
	require.Error(t, err)
	assert.Equal(t, int64(2), upstream.calls.Load())
}

func TestGetDaysValidation(t *testing.T) {
	upstream := &fakeUpstream{snapshot: Snapshot{}}
	svc := newTestService(t, upstream, time.Minute)

	_, err := svc.Get(context.Background(), "Punjab", 17)
	assert.Error(t, err)

	_, err = svc.Get(context.Background(), "Punjab", -1)
	assert.Error(t, err)

	_, err = svc.Get(context.Background(), "Punjab", 1)
	assert.NoError(t, err)
}

func TestGetDefaultDays(t *testing.T) {
	upstream := &fakeUpstream{snapshot: Snapshot{}}
	svc := newTestService(t, upstream, time.Minute)

	_, err := svc.Get(context.Background(), "Punjab", 0)
	assert.NoError(t, err)
}

func TestClearCache(t *testing.T) {
	upstream := &fakeUpstream{snapshot: Snapshot{}}
	svc := newTestService(t, upstream, time.Hour)

	_, err := svc.Get(context.Background(), "Punjab", 3)
	require.NoError(t, err)
	_, err = svc.Get(context.Background(), "Haryana", 3)
	require.NoError(t, err)

	assert.Equal(t, 2, svc.ClearCache())
	assert.Equal(t, 0, svc.CacheSize())

	_, err = svc.Get(context.Background(), "Punjab", 3)
	require.NoError(t, err)
	assert.Equal(t, int64(3), upstream.calls.Load())
}

func TestInsightRules(t *testing.T) {
	tests := []struct {
		name     string
		snapshot Snapshot
		want     []string
	}{
		{
			name: "heat stress",
			snapshot: Snapshot{Current: Current{TemperatureC: 41, SoilMoistureM3M3: 0.3}},
			want: []string{"heat_stress"},
		},
		{
			name: "cold stress",
			snapshot: Snapshot{Current: Current{TemperatureC: 4, SoilMoistureM3M3: 0.3}},
			want: []string{"cold_stress"},
		},
		{
			name: "waterlogging",
			snapshot: Snapshot{
				Current: Current{TemperatureC: 25, SoilMoistureM3M3: 0.3},
				Forecast: []DailyForecast{
					{RainfallMm: 40}, {RainfallMm: 40}, {RainfallMm: 40},
				},
			},
			want: []string{"waterlogging"},
		},
		{
			name: "drought plus irrigation",
			snapshot: Snapshot{
				Current: Current{TemperatureC: 25, SoilMoistureM3M3: 0.1},
				Forecast: []DailyForecast{
					{RainfallMm: 1}, {RainfallMm: 2}, {RainfallMm: 0},
				},
			},
			want: []string{"drought", "irrigation"},
		},
		{
			name:     "no alerts",
			snapshot: Snapshot{Current: Current{TemperatureC: 25, SoilMoistureM3M3: 0.3}},
			want:     nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			insights := deriveInsights(tt.snapshot)
			var kinds []string
			for _, in := range insights {
				kinds = append(kinds, in.Kind)
			}
			assert.Equal(t, tt.want, kinds)
		})
	}
}

func TestRainfallWindowCapsAtSevenDays(t *testing.T) {
	s := Snapshot{Current: Current{TemperatureC: 25, SoilMoistureM3M3: 0.3}}
	// 16 days of 15mm each would read as waterlogging over the full
	// range; the 7-day window keeps it at 105mm which still triggers.
	for i := 0; i < 16; i++ {
		s.Forecast = append(s.Forecast, DailyForecast{RainfallMm: 15})
	}
	insights := deriveInsights(s)
	require.Len(t, insights, 1)
	assert.Equal(t, "waterlogging", insights[0].Kind)
}
