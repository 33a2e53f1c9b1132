package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/agrosage/agrosage/pkg/config"
	"github.com/agrosage/agrosage/pkg/embedder"
	"github.com/agrosage/agrosage/pkg/llms"
	"github.com/agrosage/agrosage/pkg/predict"
	"github.com/agrosage/agrosage/pkg/tools"
	"github.com/agrosage/agrosage/pkg/vector"
	"github.com/agrosage/agrosage/pkg/weather"
)

// buildRegistry populates the tool catalog from configuration. The
// generator, the knowledge base, and the weather lookup are always
// present; backend-bound tools register only when their endpoint is
// configured. Returns the translator separately so the formatter can
// share it.
func (a *app) buildRegistry(ctx context.Context, cfg *config.Config, weatherSvc *weather.Service) (*tools.ToolRegistry, tools.Tool, error) {
	registry := tools.NewToolRegistry()
	defaultTimeout := time.Duration(cfg.Tools.DefaultTimeoutSeconds) * time.Second

	provider, err := llms.NewOpenAIProvider(llms.OpenAIConfig{
		Host:    cfg.Tools.LLM.Host,
		APIKey:  cfg.Tools.LLM.APIKey,
		Model:   cfg.Tools.LLM.Model,
		Timeout: time.Duration(cfg.Tools.LLM.TimeoutSeconds) * time.Second,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create LLM provider: %w", err)
	}
	if err := registry.RegisterTool(tools.NewGenerateTool(provider),
		tools.WithExtractor(tools.GenerateExtractor),
		tools.WithTimeout(time.Duration(cfg.Tools.LLM.TimeoutSeconds)*time.Second)); err != nil {
		return nil, nil, err
	}

	if err := a.registerKnowledge(ctx, cfg, registry); err != nil {
		return nil, nil, err
	}

	if err := registry.RegisterTool(tools.NewWeatherTool(weatherSvc),
		tools.WithExtractor(tools.WeatherExtractor),
		tools.WithTimeout(defaultTimeout)); err != nil {
		return nil, nil, err
	}

	var translator tools.Tool
	if cfg.Tools.Translate.Host != "" {
		translateTool, err := tools.NewTranslateTool(tools.TranslateConfig{
			Host:    cfg.Tools.Translate.Host,
			APIKey:  cfg.Tools.Translate.APIKey,
			Timeout: time.Duration(cfg.Tools.Translate.TimeoutSeconds) * time.Second,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create translator: %w", err)
		}
		if err := registry.RegisterTool(translateTool,
			tools.WithExtractor(tools.TranslateExtractor),
			tools.WithTimeout(time.Duration(cfg.Tools.Translate.TimeoutSeconds)*time.Second)); err != nil {
			return nil, nil, err
		}
		translator = translateTool
	} else {
		slog.Info("Translation disabled, no host configured")
	}

	if cfg.Tools.Predict.Host != "" {
		if err := registerPredictionTools(cfg, registry); err != nil {
			return nil, nil, err
		}
	} else {
		slog.Info("Prediction tools disabled, no backend configured")
	}

	if cfg.Tools.WebSearch.APIKey != "" {
		searchTool, err := tools.NewWebSearchTool(tools.WebSearchConfig{
			Host:    cfg.Tools.WebSearch.Host,
			APIKey:  cfg.Tools.WebSearch.APIKey,
			Timeout: time.Duration(cfg.Tools.WebSearch.TimeoutSeconds) * time.Second,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create web search: %w", err)
		}
		if err := registry.RegisterTool(searchTool,
			tools.WithExtractor(tools.WebSearchExtractor),
			tools.WithTimeout(time.Duration(cfg.Tools.WebSearch.TimeoutSeconds)*time.Second)); err != nil {
			return nil, nil, err
		}
	} else {
		slog.Info("Web search disabled, no API key configured")
	}

	slog.Info("Tool registry ready", "tools", len(registry.ListTools("")))
	return registry, translator, nil
}

func registerPredictionTools(cfg *config.Config, registry *tools.ToolRegistry) error {
	backend, err := predict.NewHTTPBackend(predict.HTTPBackendConfig{
		Host:    cfg.Tools.Predict.Host,
		Timeout: time.Duration(cfg.Tools.Predict.TimeoutSeconds) * time.Second,
	})
	if err != nil {
		return fmt.Errorf("failed to create prediction backend: %w", err)
	}

	timeout := tools.WithTimeout(time.Duration(cfg.Tools.Predict.TimeoutSeconds) * time.Second)
	registrations := []struct {
		tool      tools.Tool
		extractor tools.Extractor
	}{
		{tools.NewYieldTool(backend), tools.YieldExtractor},
		{tools.NewPestTool(backend), tools.PestExtractor},
		{tools.NewSoilMoistureTool(backend), tools.SoilMoistureExtractor},
		{tools.NewCropByNutrientsTool(backend), tools.CropByNutrientsExtractor},
		{tools.NewCropByClimateTool(backend), tools.CropByClimateExtractor},
		{tools.NewSoilFertilityTool(backend), tools.SoilFertilityExtractor},
	}
	for _, reg := range registrations {
		if err := registry.RegisterTool(reg.tool, tools.WithExtractor(reg.extractor), timeout); err != nil {
			return err
		}
	}
	return nil
}

func (a *app) registerKnowledge(ctx context.Context, cfg *config.Config, registry *tools.ToolRegistry) error {
	emb, err := buildEmbedder(cfg)
	if err != nil {
		return err
	}

	store, err := vector.NewChromemProvider(vector.ChromemConfig{
		PersistPath: cfg.Tools.Knowledge.PersistPath,
	})
	if err != nil {
		return fmt.Errorf("failed to create vector store: %w", err)
	}
	a.closers = append(a.closers, store.Close)

	if cfg.Tools.Knowledge.SeedPath != "" {
		if err := seedKnowledge(ctx, emb, store, cfg.Tools.Knowledge.Collection, cfg.Tools.Knowledge.SeedPath); err != nil {
			return err
		}
	}

	return registry.RegisterTool(
		tools.NewRetrievalTool(emb, store, cfg.Tools.Knowledge.Collection),
		tools.WithExtractor(tools.RetrievalExtractor),
		tools.WithTimeout(time.Duration(cfg.Tools.DefaultTimeoutSeconds)*time.Second))
}

func buildEmbedder(cfg *config.Config) (embedder.Embedder, error) {
	switch cfg.Tools.Knowledge.Embedder {
	case "openai":
		emb, err := embedder.NewOpenAIEmbedder(embedder.OpenAIEmbedderConfig{
			APIKey: cfg.Tools.Knowledge.EmbedderKey,
			Model:  "text-embedding-3-small",
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create embedder: %w", err)
		}
		return emb, nil
	default:
		return embedder.NewHashEmbedder(0), nil
	}
}

type seedDocument struct {
	ID      string   `yaml:"id"`
	Content string   `yaml:"content"`
	Source  string   `yaml:"source"`
	Tags    []string `yaml:"tags"`
}

type seedFile struct {
	Documents []seedDocument `yaml:"documents"`
}

// seedKnowledge loads documents from a YAML file into the knowledge
// collection. Upserts are keyed by document ID, so re-seeding on every
// start is safe.
func seedKnowledge(ctx context.Context, emb embedder.Embedder, store vector.Provider, collection, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read seed file: %w", err)
	}

	var seed seedFile
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return fmt.Errorf("failed to parse seed file %s: %w", path, err)
	}

	for i, doc := range seed.Documents {
		if doc.Content == "" {
			continue
		}
		id := doc.ID
		if id == "" {
			id = fmt.Sprintf("seed-%d", i)
		}

		vec, err := emb.Embed(ctx, doc.Content)
		if err != nil {
			return fmt.Errorf("failed to embed seed document %s: %w", id, err)
		}

		metadata := map[string]any{"content": doc.Content}
		if doc.Source != "" {
			metadata["source"] = doc.Source
		}
		if len(doc.Tags) > 0 {
			metadata["tags"] = strings.Join(doc.Tags, ",")
		}
		if err := store.Upsert(ctx, collection, id, vec, metadata); err != nil {
			return fmt.Errorf("failed to seed document %s: %w", id, err)
		}
	}

	slog.Info("Knowledge base seeded", "documents", len(seed.Documents), "collection", collection)
	return nil
}
