// Package config loads and validates the process configuration from a
// YAML file and the environment. Configuration is read once at
// startup; there is no hot reload.
package config

import (
	"fmt"
	"time"
)

type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Auth          AuthConfig          `yaml:"auth"`
	Agent         AgentConfig         `yaml:"agent"`
	Weather       WeatherConfig       `yaml:"weather"`
	Tools         ToolsConfig         `yaml:"tools"`
	Store         StoreConfig         `yaml:"store"`
	Logging       LoggingConfig       `yaml:"logging"`
	Observability ObservabilityConfig `yaml:"observability"`
}

type ServerConfig struct {
	ListenAddr          string `yaml:"listen_addr"`
	ReadTimeoutSeconds  int    `yaml:"read_timeout_seconds"`
	WriteTimeoutSeconds int    `yaml:"write_timeout_seconds"`
	MaxImageBytes       int64  `yaml:"max_image_bytes"`
}

type AuthConfig struct {
	TokenSecret        string `yaml:"token_secret"`
	TokenLifetimeHours int    `yaml:"token_lifetime_hours"`
	SuperAdminEmail    string `yaml:"super_admin_email"`
	SuperAdminPassword string `yaml:"super_admin_password"`
}

type AgentConfig struct {
	MaxIterations   int `yaml:"max_iterations"`
	DeadlineSeconds int `yaml:"deadline_seconds"`
}

type WeatherConfig struct {
	Host            string `yaml:"host"`
	CacheTTLMinutes int    `yaml:"cache_ttl_minutes"`
	TimeoutSeconds  int    `yaml:"timeout_seconds"`
}

type ToolsConfig struct {
	DefaultTimeoutSeconds int             `yaml:"default_timeout_seconds"`
	LLM                   LLMConfig       `yaml:"llm"`
	WebSearch             WebSearchConfig `yaml:"web_search"`
	Translate             TranslateConfig `yaml:"translate"`
	Predict               PredictConfig   `yaml:"predict"`
	Knowledge             KnowledgeConfig `yaml:"knowledge"`
}

type LLMConfig struct {
	Host           string `yaml:"host"`
	Model          string `yaml:"model"`
	APIKey         string `yaml:"api_key"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

type WebSearchConfig struct {
	Host           string `yaml:"host"`
	APIKey         string `yaml:"api_key"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

type TranslateConfig struct {
	Host           string `yaml:"host"`
	APIKey         string `yaml:"api_key"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

type PredictConfig struct {
	Host           string `yaml:"host"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

type KnowledgeConfig struct {
	Collection  string `yaml:"collection"`
	PersistPath string `yaml:"persist_path"`
	SeedPath    string `yaml:"seed_path"`
	Embedder    string `yaml:"embedder"`
	EmbedderKey string `yaml:"embedder_key"`
}

type StoreConfig struct {
	// SessionsDSN and UsersDSN select SQL persistence; empty values fall
	// back to in-memory stores.
	SessionsDSN string `yaml:"sessions_dsn"`
	UsersDSN    string `yaml:"users_dsn"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type ObservabilityConfig struct {
	MetricsEnabled bool `yaml:"metrics_enabled"`
	TracingEnabled bool `yaml:"tracing_enabled"`
}

func (c *Config) SetDefaults() {
	if c.Server.ListenAddr == "" {
		c.Server.ListenAddr = ":8080"
	}
	if c.Server.ReadTimeoutSeconds <= 0 {
		c.Server.ReadTimeoutSeconds = 30
	}
	if c.Server.WriteTimeoutSeconds <= 0 {
		c.Server.WriteTimeoutSeconds = 90
	}
	if c.Server.MaxImageBytes <= 0 {
		c.Server.MaxImageBytes = 10 << 20
	}

	if c.Auth.TokenLifetimeHours <= 0 {
		c.Auth.TokenLifetimeHours = 168
	}
	if c.Auth.SuperAdminEmail == "" {
		c.Auth.SuperAdminEmail = "admin@agrosage.local"
	}

	if c.Agent.MaxIterations <= 0 {
		c.Agent.MaxIterations = 5
	}
	if c.Agent.DeadlineSeconds <= 0 {
		c.Agent.DeadlineSeconds = 60
	}

	if c.Weather.CacheTTLMinutes <= 0 {
		c.Weather.CacheTTLMinutes = 30
	}
	if c.Weather.TimeoutSeconds <= 0 {
		c.Weather.TimeoutSeconds = 10
	}

	if c.Tools.DefaultTimeoutSeconds <= 0 {
		c.Tools.DefaultTimeoutSeconds = 15
	}
	if c.Tools.LLM.TimeoutSeconds <= 0 {
		c.Tools.LLM.TimeoutSeconds = 30
	}
	if c.Tools.LLM.Model == "" {
		c.Tools.LLM.Model = "gpt-4o-mini"
	}
	if c.Tools.WebSearch.TimeoutSeconds <= 0 {
		c.Tools.WebSearch.TimeoutSeconds = 10
	}
	if c.Tools.Translate.TimeoutSeconds <= 0 {
		c.Tools.Translate.TimeoutSeconds = c.Tools.DefaultTimeoutSeconds
	}
	if c.Tools.Predict.TimeoutSeconds <= 0 {
		c.Tools.Predict.TimeoutSeconds = c.Tools.DefaultTimeoutSeconds
	}
	if c.Tools.Knowledge.Collection == "" {
		c.Tools.Knowledge.Collection = "knowledge"
	}
	if c.Tools.Knowledge.Embedder == "" {
		c.Tools.Knowledge.Embedder = "hash"
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
}

func (c *Config) Validate() error {
	if c.Auth.TokenSecret == "" {
		return fmt.Errorf("auth.token_secret is required")
	}
	if c.Agent.MaxIterations < 2 {
		return fmt.Errorf("agent.max_iterations must be at least 2")
	}
	switch c.Logging.Format {
	case "json", "text":
	default:
		return fmt.Errorf("logging.format must be json or text, got %q", c.Logging.Format)
	}
	switch c.Tools.Knowledge.Embedder {
	case "hash", "openai":
	default:
		return fmt.Errorf("tools.knowledge.embedder must be hash or openai, got %q", c.Tools.Knowledge.Embedder)
	}
	return nil
}

func (c *Config) TokenLifetime() time.Duration {
	return time.Duration(c.Auth.TokenLifetimeHours) * time.Hour
}

func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.Weather.CacheTTLMinutes) * time.Minute
}

func (c *Config) AgentDeadline() time.Duration {
	return time.Duration(c.Agent.DeadlineSeconds) * time.Second
}
