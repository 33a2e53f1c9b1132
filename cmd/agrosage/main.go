// Command agrosage runs the agricultural question-answering gateway.
//
// Usage:
//
//	agrosage serve --config config.yaml
//	agrosage validate --config config.yaml
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"golang.org/x/sync/errgroup"

	"github.com/agrosage/agrosage/pkg/agent"
	"github.com/agrosage/agrosage/pkg/auth"
	"github.com/agrosage/agrosage/pkg/config"
	"github.com/agrosage/agrosage/pkg/logger"
	"github.com/agrosage/agrosage/pkg/observability"
	"github.com/agrosage/agrosage/pkg/prompt"
	"github.com/agrosage/agrosage/pkg/router"
	"github.com/agrosage/agrosage/pkg/server"
	"github.com/agrosage/agrosage/pkg/session"
	"github.com/agrosage/agrosage/pkg/weather"
)

// CLI defines the command-line interface.
type CLI struct {
	Version  VersionCmd  `cmd:"" help:"Show version information."`
	Serve    ServeCmd    `cmd:"" help:"Start the gateway."`
	Validate ValidateCmd `cmd:"" help:"Validate configuration file."`

	Config string `short:"c" help:"Path to config file." type:"path"`
}

// VersionCmd shows version information.
type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	version := "dev"
	if info, ok := debug.ReadBuildInfo(); ok {
		if info.Main.Version != "(devel)" && info.Main.Version != "" {
			version = info.Main.Version
		}
	}
	fmt.Printf("agrosage version %s\n", version)
	return nil
}

// ValidateCmd loads and validates the configuration without serving.
type ValidateCmd struct{}

func (c *ValidateCmd) Run(cli *CLI) error {
	_ = config.LoadEnvFiles()
	if _, err := config.Load(cli.Config); err != nil {
		return err
	}
	fmt.Println("Configuration is valid")
	return nil
}

// ServeCmd starts the HTTP gateway.
type ServeCmd struct {
	ListenAddr string `help:"Listen address override (e.g. :8080)."`
}

func (c *ServeCmd) Run(cli *CLI) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	_ = config.LoadEnvFiles()
	cfg, err := config.Load(cli.Config)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if c.ListenAddr != "" {
		cfg.Server.ListenAddr = c.ListenAddr
	}

	logger.Init(logger.ParseLevel(cfg.Logging.Level), os.Stderr, cfg.Logging.Format)

	obs := observability.NewManager(observability.Config{
		Tracing: observability.TracerConfig{
			Enabled:     cfg.Observability.TracingEnabled,
			ServiceName: "agrosage",
		},
		Metrics: observability.MetricsConfig{
			Enabled: cfg.Observability.MetricsEnabled,
		},
	})
	if err := obs.Initialize(ctx); err != nil {
		return fmt.Errorf("failed to initialize observability: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := obs.Shutdown(shutdownCtx); err != nil {
			slog.Warn("Observability shutdown failed", "error", err)
		}
	}()

	app, err := buildApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer app.close()

	srv := server.New(server.Config{
		ListenAddr:    cfg.Server.ListenAddr,
		ReadTimeout:   time.Duration(cfg.Server.ReadTimeoutSeconds) * time.Second,
		WriteTimeout:  time.Duration(cfg.Server.WriteTimeoutSeconds) * time.Second,
		MaxImageBytes: cfg.Server.MaxImageBytes,
	}, app.deps)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(srv.Start)
	g.Go(func() error {
		<-ctx.Done()
		slog.Info("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func main() {
	cli := CLI{}
	ctx := kong.Parse(&cli,
		kong.Name("agrosage"),
		kong.Description("Agricultural question-answering gateway"),
		kong.UsageOnError(),
	)
	err := ctx.Run(&cli)
	ctx.FatalIfErrorf(err)
}

// app holds the assembled dependency graph and the handles that need
// closing on exit.
type app struct {
	deps    server.Dependencies
	closers []func() error
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			slog.Warn("Close failed during shutdown", "error", err)
		}
	}
}

// buildApp is the composition root. Everything the request handlers
// touch is constructed here and passed down by reference.
func buildApp(ctx context.Context, cfg *config.Config) (*app, error) {
	a := &app{}

	users, err := openUserStore(cfg)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, users.Close)

	issuer, err := auth.NewTokenIssuer(cfg.Auth.TokenSecret, cfg.TokenLifetime())
	if err != nil {
		return nil, fmt.Errorf("failed to create token issuer: %w", err)
	}
	authSvc := auth.NewService(users, issuer)

	if cfg.Auth.SuperAdminPassword != "" {
		if _, err := authSvc.EnsureSuperAdmin(ctx, cfg.Auth.SuperAdminEmail, cfg.Auth.SuperAdminPassword); err != nil {
			return nil, fmt.Errorf("failed to ensure super admin: %w", err)
		}
		slog.Info("Super admin account ready", "email", cfg.Auth.SuperAdminEmail)
	}

	sessions, err := openSessionStore(cfg)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, sessions.Close)

	gazetteer, err := weather.LoadGazetteer()
	if err != nil {
		return nil, fmt.Errorf("failed to load location gazetteer: %w", err)
	}
	weatherSvc := weather.NewService(gazetteer, weather.NewOpenMeteoClient(weather.OpenMeteoConfig{
		Host:    cfg.Weather.Host,
		Timeout: time.Duration(cfg.Weather.TimeoutSeconds) * time.Second,
	}), weather.ServiceConfig{CacheTTL: cfg.CacheTTL()})

	registry, translator, err := a.buildRegistry(ctx, cfg, weatherSvc)
	if err != nil {
		return nil, err
	}

	rt, err := router.New(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create router: %w", err)
	}
	formatter := prompt.NewFormatter(translator)

	a.deps = server.Dependencies{
		Auth:     authSvc,
		Registry: registry,
		Weather:  weatherSvc,
		Sessions: sessions,
		Agent: agent.New(registry, rt, formatter, agent.Config{
			MaxIterations: cfg.Agent.MaxIterations,
			Deadline:      cfg.AgentDeadline(),
		}),
		Formatter: formatter,
	}
	return a, nil
}

func openUserStore(cfg *config.Config) (auth.UserStore, error) {
	if cfg.Store.UsersDSN == "" {
		slog.Info("Using in-memory user store")
		return auth.NewMemoryUserStore(), nil
	}
	store, err := auth.OpenSQL(cfg.Store.UsersDSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open user store: %w", err)
	}
	slog.Info("User persistence enabled")
	return store, nil
}

func openSessionStore(cfg *config.Config) (session.Store, error) {
	if cfg.Store.SessionsDSN == "" {
		slog.Info("Using in-memory session store")
		return session.NewMemoryStore(), nil
	}
	store, err := session.OpenSQL(cfg.Store.SessionsDSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open session store: %w", err)
	}
	slog.Info("Session persistence enabled")
	return store, nil
}
