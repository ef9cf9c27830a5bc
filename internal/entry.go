// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/starford/synapse/internal/agent"
	"github.com/starford/synapse/internal/api"
	"github.com/starford/synapse/internal/briefing"
	"github.com/starford/synapse/internal/bulkedit"
	"github.com/starford/synapse/internal/directive"
	"github.com/starford/synapse/internal/handlers"
	"github.com/starford/synapse/internal/index"
	"github.com/starford/synapse/internal/mcpserver"
	"github.com/starford/synapse/internal/oracle"
	"github.com/starford/synapse/internal/search"
	"github.com/starford/synapse/internal/sse"
	"github.com/starford/synapse/internal/storage"
	"github.com/starford/synapse/internal/vault"
)

// App is the assembled engine shared by every command.
type App struct {
	Config     *Config
	Logger     *slog.Logger
	Vault      *vault.Service
	Directives *directive.Store
	Search     *search.Engine
	Engine     *agent.Engine
	Briefing   *briefing.Builder
	Events     *sse.Broker

	db  *index.DB
	now func() time.Time
}

// Close releases the catalog and stops the event broker.
func (a *App) Close() error {
	a.Events.Close()
	return a.db.Close()
}

// Build assembles storage, catalog, oracle, handlers and engine from the
// options. The catalog is synced with the vault before returning.
func Build(ctx context.Context, opts ...Option) (*App, error) {
	app := &application{}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return nil, fmt.Errorf("config is required")
	}
	cfg := app.config
	if app.logOutput == nil {
		app.logOutput = os.Stdout
	}
	if app.now == nil {
		app.now = time.Now
	}

	logger := slog.New(slog.NewJSONHandler(app.logOutput, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("vault_path", cfg.Vault.Path),
		slog.String("sqlite_path", cfg.SQLite.Path),
		slog.String("oracle_model", cfg.Oracle.Model),
		slog.String("log_level", cfg.App.LogLevel.String()))

	if err := os.MkdirAll(cfg.Vault.Path, 0o755); err != nil {
		return nil, fmt.Errorf("create vault dir: %w", err)
	}
	store, err := storage.NewFS(cfg.Vault.Path)
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}
	db, err := index.Open(cfg.SQLite.Path)
	if err != nil {
		return nil, fmt.Errorf("init index: %w", err)
	}

	broker := sse.NewBroker(2 * time.Second)
	v := vault.NewService(store, db,
		vault.WithCategories(cfg.Vault.Categories, cfg.Vault.DefaultCategory),
		vault.WithAttachmentsFolder(cfg.Vault.AttachmentsFolder),
		vault.WithProjectsFolder(cfg.Vault.ProjectsFolder),
		vault.WithLogger(logger),
		vault.WithClock(app.now),
		vault.WithChangeFunc(broker.PublishDocument),
	)
	if err := v.Sync(); err != nil {
		logger.Warn("initial sync failed", slog.String("error", err.Error()))
	}

	orc := app.oracle
	if orc == nil {
		orc = newOracle(ctx, cfg.Oracle, logger)
	}

	directives := directive.NewStore(v, cfg.Vault.DirectivesPath)
	searchEngine := search.NewEngine(v,
		search.WithFolders(v.Folders()),
		search.WithTopN(cfg.Search.TopN),
		search.WithWindow(cfg.Search.SnippetWindow),
		search.WithLogger(logger))
	candidates := search.NewEngine(v,
		search.WithFolders(v.Folders()),
		search.WithTopN(handlers.MaxCandidates),
		search.WithLogger(logger))

	hopts := []handlers.Option{handlers.WithClock(app.now), handlers.WithDirectives(directives)}
	registry, err := agent.NewRegistry(
		handlers.NewFile(orc, hopts...),
		handlers.NewQuery(orc, searchEngine, hopts...),
		handlers.NewEdit(bulkedit.NewPlanner(orc, logger), candidates, hopts...),
		handlers.NewMemory(directives),
	)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("register handlers: %w", err)
	}
	router := agent.NewRouter(orc, registry, directives,
		agent.WithRouterClock(app.now),
		agent.WithRouterLogger(logger))
	engine := agent.NewEngine(v, router, agent.NewDispatcher(registry, logger), logger)

	return &App{
		Config:     cfg,
		Logger:     logger,
		Vault:      v,
		Directives: directives,
		Search:     searchEngine,
		Engine:     engine,
		Briefing:   briefing.NewBuilder(v, v.Categories(), cfg.Briefing.RecentWindow()),
		Events:     broker,
		db:         db,
		now:        app.now,
	}, nil
}

// newOracle returns the rate-limited Gemini oracle, or oracle.Unavailable
// when no API key is configured.
func newOracle(ctx context.Context, cfg OracleConfig, logger *slog.Logger) oracle.Oracle {
	if cfg.APIKey == "" {
		logger.Warn("oracle: no api key configured, messages will fail")
		return oracle.Unavailable
	}
	g, err := oracle.NewGemini(ctx, cfg.APIKey, cfg.Model, logger)
	if err != nil {
		logger.Error("oracle: init failed", slog.String("error", err.Error()))
		return oracle.Unavailable
	}
	return oracle.Guard(g, oracle.NewLimiter(cfg.RequestsPerMinute, cfg.Burst), cfg.Timeout)
}

// Handler returns the HTTP handler: health endpoints plus the API under /api.
func (a *App) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/health/ready", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if _, err := a.db.Count(); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"unavailable"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Mount("/api", api.NewRouter(api.Deps{
		Engine:     a.Engine,
		Vault:      a.Vault,
		Directives: a.Directives,
		Search:     a.Search,
		Briefing:   a.Briefing,
		Events:     a.Events,
		Now:        a.now,
	}, a.Config.Auth.AuthEnabled(), a.Config.Auth.Token))
	return r
}

// publishBriefing sends a built briefing to SSE subscribers.
func (a *App) publishBriefing(_ context.Context, br *briefing.Briefing) {
	a.Events.Publish(sse.Event{
		Type: sse.BriefingPublished,
		Data: map[string]any{"text": br.Render(), "briefing": br},
	})
	a.Logger.Info("briefing published", slog.Int("clients", a.Events.ClientCount()))
}

// Run starts the HTTP server, the vault watcher and the briefing scheduler
// and blocks until a shutdown signal or ctx ends.
func Run(ctx context.Context, opts ...Option) error {
	a, err := Build(ctx, opts...)
	if err != nil {
		return err
	}
	defer a.Close()

	logger := a.Logger
	slog.SetDefault(logger)
	cfg := a.Config

	var scheduler *briefing.Scheduler
	if cfg.Briefing.Enabled {
		scheduler, err = briefing.NewScheduler(a.Briefing, cfg.Briefing.Schedule, a.publishBriefing, logger)
		if err != nil {
			return err
		}
	}

	httpServer := &http.Server{
		Addr:              cfg.App.HTTP.Address(),
		Handler:           a.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gCtx := errgroup.WithContext(ctx)

	// Keep the catalog in sync with edits made outside the engine.
	g.Go(func() error {
		if err := a.Vault.Watch(gCtx); err != nil {
			logger.Error("watcher failed", slog.String("error", err.Error()))
		}
		return nil
	})

	if scheduler != nil {
		g.Go(func() error {
			return scheduler.Run(gCtx)
		})
	}

	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	// Handle shutdown signals.
	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(quit)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		logger.Info("Shutting down server...")
		cancel()

		shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
		defer stop()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// RunMCP serves the MCP tools on stdin/stdout. Logs go to stderr unless
// WithLogOutput says otherwise.
func RunMCP(ctx context.Context, opts ...Option) error {
	a, err := Build(ctx, append([]Option{WithLogOutput(os.Stderr)}, opts...)...)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		if err := a.Vault.Watch(ctx); err != nil {
			a.Logger.Error("watcher failed", slog.String("error", err.Error()))
		}
	}()

	a.Logger.Info("MCP server starting on stdio")
	return mcpserver.New(a.Engine, a.Vault, a.Directives, a.Search).ServeStdio()
}

// Send processes a single message and returns the engine's reply.
func Send(ctx context.Context, msg agent.Message, opts ...Option) (agent.Result, error) {
	a, err := Build(ctx, append([]Option{WithLogOutput(os.Stderr)}, opts...)...)
	if err != nil {
		return agent.Result{}, err
	}
	defer a.Close()
	return a.Engine.Handle(ctx, msg), nil
}

// Brief builds today's briefing and returns it rendered.
func Brief(ctx context.Context, opts ...Option) (string, error) {
	a, err := Build(ctx, append([]Option{WithLogOutput(os.Stderr)}, opts...)...)
	if err != nil {
		return "", err
	}
	defer a.Close()
	br, err := a.Briefing.Build(ctx, a.now())
	if err != nil {
		return "", err
	}
	return br.Render(), nil
}
