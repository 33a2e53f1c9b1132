// Package server exposes the gateway HTTP API: auth, the agent
// endpoints, direct tool routes, weather, and conversation history.
package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/agrosage/agrosage/pkg/agent"
	"github.com/agrosage/agrosage/pkg/auth"
	"github.com/agrosage/agrosage/pkg/prompt"
	"github.com/agrosage/agrosage/pkg/session"
	"github.com/agrosage/agrosage/pkg/tools"
	"github.com/agrosage/agrosage/pkg/weather"
)

type Config struct {
	ListenAddr    string
	ReadTimeout   time.Duration
	WriteTimeout  time.Duration
	MaxImageBytes int64
}

func (c *Config) SetDefaults() {
	if c.ListenAddr == "" {
		c.ListenAddr = ":8080"
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = 30 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 90 * time.Second
	}
	if c.MaxImageBytes <= 0 {
		c.MaxImageBytes = 10 << 20
	}
}

// Dependencies is the composition root handed to the server. Nothing
// here is constructed inside the server.
type Dependencies struct {
	Auth      *auth.Service
	Agent     *agent.Agent
	Registry  *tools.ToolRegistry
	Weather   *weather.Service
	Sessions  session.Store
	Formatter *prompt.Formatter
}

type Server struct {
	config    Config
	auth      *auth.Service
	agent     *agent.Agent
	registry  *tools.ToolRegistry
	weather   *weather.Service
	sessions  session.Store
	formatter *prompt.Formatter

	httpServer *http.Server
}

func New(cfg Config, deps Dependencies) *Server {
	cfg.SetDefaults()

	s := &Server{
		config:    cfg,
		auth:      deps.Auth,
		agent:     deps.Agent,
		registry:  deps.Registry,
		weather:   deps.Weather,
		sessions:  deps.Sessions,
		formatter: deps.Formatter,
	}

	s.httpServer = &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      s.routes(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	return s
}

// Handler returns the assembled route tree, used directly by tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(s.instrument)
	r.Use(chimiddleware.Recoverer)

	// Public surface.
	r.Post("/auth/register", s.handleRegister)
	r.Post("/auth/login", s.handleLogin)
	r.Get("/health", s.handleHealth)
	r.Get("/weather/locations", s.handleWeatherLocations)
	r.Handle("/metrics", promhttp.Handler())

	// Everything else needs a bearer token.
	r.Group(func(pr chi.Router) {
		pr.Use(s.auth.Middleware)

		pr.Get("/auth/me", s.handleMe)

		pr.Post("/ask", s.handleAsk)
		pr.Post("/agent", s.handleAgent)
		pr.Post("/rag", s.handleRAG)
		pr.Post("/predict_yield", s.handlePredictYield)
		pr.Post("/detect_pest", s.handleDetectPest)
		pr.Post("/translate", s.handleTranslate)
		pr.Post("/weather", s.handleWeather)

		pr.Post("/conversations/save", s.handleConversationSave)
		pr.Post("/conversations/list", s.handleConversationList)
		pr.Post("/conversations/get", s.handleConversationGet)
		pr.Post("/conversations/delete", s.handleConversationDelete)

		pr.Group(func(ar chi.Router) {
			ar.Use(auth.RequireRole(auth.RoleAdmin))

			ar.Get("/auth/users", s.handleListUsers)
			ar.Post("/auth/users/{id}/manage", s.handleManageUser)
			ar.Post("/weather/cache/clear", s.handleWeatherCacheClear)
		})
	})

	return r
}

func (s *Server) Start() error {
	slog.Info("Gateway listening", "addr", s.config.ListenAddr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
