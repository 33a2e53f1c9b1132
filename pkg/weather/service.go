package weather

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/agrosage/agrosage/pkg/observability"
)

const (
	MinForecastDays = 1
	MaxForecastDays = 16
	DefaultDays     = 3
	DefaultCacheTTL = 30 * time.Minute
)

// Service ties the gazetteer, the cache, and the upstream together.
type Service struct {
	gazetteer *Gazetteer
	upstream  Upstream
	cache     *snapshotCache
}

type ServiceConfig struct {
	CacheTTL time.Duration
}

func NewService(gazetteer *Gazetteer, upstream Upstream, cfg ServiceConfig) *Service {
	ttl := cfg.CacheTTL
	if ttl == 0 {
		ttl = DefaultCacheTTL
	}
	return &Service{
		gazetteer: gazetteer,
		upstream:  upstream,
		cache:     newSnapshotCache(ttl),
	}
}

// Locations returns the bundled gazetteer.
func (s *Service) Locations() []Location {
	return s.gazetteer.List()
}

// Get resolves a location, serves from cache when fresh, and otherwise
// fetches upstream. Failed fetches never enter the cache.
func (s *Service) Get(ctx context.Context, location string, days int) (Snapshot, error) {
	if days == 0 {
		days = DefaultDays
	}
	if days < MinForecastDays || days > MaxForecastDays {
		return Snapshot{}, fmt.Errorf("days must be between %d and %d, got %d", MinForecastDays, MaxForecastDays, days)
	}

	loc, err := s.gazetteer.Resolve(location)
	if err != nil {
		return Snapshot{}, err
	}

	key := cacheKey(loc.Name, days)
	if snapshot, ok := s.cache.get(key); ok {
		recordCacheMetric(ctx, true)
		slog.Debug("Weather cache hit", "location", loc.Name, "days", days)
		return snapshot, nil
	}
	recordCacheMetric(ctx, false)

	snapshot, err := s.upstream.Fetch(ctx, loc, days)
	if err != nil {
		return Snapshot{}, err
	}

	snapshot.Location = loc.Name
	snapshot.FetchedAt = time.Now().UTC()
	snapshot.Insights = deriveInsights(snapshot)

	s.cache.put(key, snapshot)
	return snapshot, nil
}

// ClearCache drops all cached snapshots. Admin operation.
func (s *Service) ClearCache() int {
	cleared := s.cache.clear()
	slog.Info("Weather cache cleared", "entries", cleared)
	return cleared
}

// CacheSize reports the live entry count for health reporting.
func (s *Service) CacheSize() int {
	return s.cache.size()
}

func recordCacheMetric(ctx context.Context, hit bool) {
	if metrics := observability.GetGlobalMetrics(); metrics != nil {
		metrics.RecordWeatherCache(ctx, hit)
	}
}
