package observability

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// Metrics records gateway-level measurements. A nil-safe noop is used
// when metrics are disabled.
type Metrics interface {
	RecordHTTPRequest(ctx context.Context, method, route string, status int, duration time.Duration, size int)
	RecordToolExecution(ctx context.Context, tool string, duration time.Duration, err error)
	RecordLLMRequest(ctx context.Context, model string, duration time.Duration, tokens int, err error)
	RecordWeatherCache(ctx context.Context, hit bool)
}

var (
	globalMetrics   Metrics
	globalMetricsMu sync.RWMutex
)

func SetGlobalMetrics(m Metrics) {
	globalMetricsMu.Lock()
	defer globalMetricsMu.Unlock()
	globalMetrics = m
}

func GetGlobalMetrics() Metrics {
	globalMetricsMu.RLock()
	defer globalMetricsMu.RUnlock()
	return globalMetrics
}

// InitMetrics builds Prometheus-backed metrics. The otel prometheus
// exporter registers with the default prometheus registry, so the
// /metrics handler picks these up without extra wiring.
func InitMetrics(ctx context.Context, cfg MetricsConfig) (Metrics, error) {
	if !cfg.Enabled {
		return &noopMetrics{}, nil
	}

	promExporter, err := prometheus.New()
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	meterProvider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(promExporter),
	)

	meter := meterProvider.Meter("agrosage")

	httpDuration, err := meter.Float64Histogram(
		"agrosage_http_request_duration_seconds",
		metric.WithDescription("HTTP request duration in seconds"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create http duration histogram: %w", err)
	}

	httpRequests, err := meter.Int64Counter(
		"agrosage_http_requests_total",
		metric.WithDescription("Total HTTP requests"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create http requests counter: %w", err)
	}

	toolDuration, err := meter.Float64Histogram(
		"agrosage_tool_execution_duration_seconds",
		metric.WithDescription("Tool execution duration in seconds"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create tool duration histogram: %w", err)
	}

	toolCalls, err := meter.Int64Counter(
		"agrosage_tool_calls_total",
		metric.WithDescription("Total tool calls"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create tool calls counter: %w", err)
	}

	toolErrors, err := meter.Int64Counter(
		"agrosage_tool_errors_total",
		metric.WithDescription("Total tool errors"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create tool errors counter: %w", err)
	}

	llmDuration, err := meter.Float64Histogram(
		"agrosage_llm_request_duration_seconds",
		metric.WithDescription("LLM request duration in seconds"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create llm duration histogram: %w", err)
	}

	llmTokens, err := meter.Int64Counter(
		"agrosage_llm_tokens_used_total",
		metric.WithDescription("Total tokens used"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create llm tokens counter: %w", err)
	}

	cacheHits, err := meter.Int64Counter(
		"agrosage_weather_cache_hits_total",
		metric.WithDescription("Weather cache hits"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create cache hits counter: %w", err)
	}

	cacheMisses, err := meter.Int64Counter(
		"agrosage_weather_cache_misses_total",
		metric.WithDescription("Weather cache misses"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create cache misses counter: %w", err)
	}

	return &prometheusMetrics{
		httpDuration: httpDuration,
		httpRequests: httpRequests,
		toolDuration: toolDuration,
		toolCalls:    toolCalls,
		toolErrors:   toolErrors,
		llmDuration:  llmDuration,
		llmTokens:    llmTokens,
		cacheHits:    cacheHits,
		cacheMisses:  cacheMisses,
	}, nil
}

type prometheusMetrics struct {
	httpDuration metric.Float64Histogram
	httpRequests metric.Int64Counter
	toolDuration metric.Float64Histogram
	toolCalls    metric.Int64Counter
	toolErrors   metric.Int64Counter
	llmDuration  metric.Float64Histogram
	llmTokens    metric.Int64Counter
	cacheHits    metric.Int64Counter
	cacheMisses  metric.Int64Counter
}

func (m *prometheusMetrics) RecordHTTPRequest(ctx context.Context, method, route string, status int, duration time.Duration, size int) {
	attrs := metric.WithAttributes(
		attribute.String("method", method),
		attribute.String("route", route),
		attribute.Int("status", status),
	)
	m.httpRequests.Add(ctx, 1, attrs)
	m.httpDuration.Record(ctx, duration.Seconds(), attrs)
}

func (m *prometheusMetrics) RecordToolExecution(ctx context.Context, tool string, duration time.Duration, err error) {
	attrs := metric.WithAttributes(attribute.String("tool", tool))
	m.toolCalls.Add(ctx, 1, attrs)
	m.toolDuration.Record(ctx, duration.Seconds(), attrs)
	if err != nil {
		m.toolErrors.Add(ctx, 1, attrs)
	}
}

func (m *prometheusMetrics) RecordLLMRequest(ctx context.Context, model string, duration time.Duration, tokens int, err error) {
	attrs := metric.WithAttributes(
		attribute.String("model", model),
		attribute.Bool("error", err != nil),
	)
	m.llmDuration.Record(ctx, duration.Seconds(), attrs)
	if tokens > 0 {
		m.llmTokens.Add(ctx, int64(tokens), attrs)
	}
}

func (m *prometheusMetrics) RecordWeatherCache(ctx context.Context, hit bool) {
	if hit {
		m.cacheHits.Add(ctx, 1)
	} else {
		m.cacheMisses.Add(ctx, 1)
	}
}

type noopMetrics struct{}

func (noopMetrics) RecordHTTPRequest(context.Context, string, string, int, time.Duration, int) {}
func (noopMetrics) RecordToolExecution(context.Context, string, time.Duration, error)          {}
func (noopMetrics) RecordLLMRequest(context.Context, string, time.Duration, int, error)        {}
func (noopMetrics) RecordWeatherCache(context.Context, bool)                                   {}
