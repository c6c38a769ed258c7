// Package prism is the public API for embedding the PRISM evaluation server.
//
// Programs import this package to run PRISM with their own backends or
// hooks without forking it:
//
//	app, err := prism.New(
//	    prism.WithVersion(version),
//	    prism.WithLogger(logger),
//	    prism.WithProvider(myBackend{}),
//	)
//	if err != nil { ... }
//	defer app.Close()
//	if err := app.Run(ctx); err != nil { ... }
//
// The root package imports internal/*, never the other way round. Public
// types (Provider, ModelInfo, RunSummary) carry no internal imports;
// adapters.go converts across the boundary.
package prism

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/ashita-ai/prism/api"
	"github.com/ashita-ai/prism/internal/config"
	"github.com/ashita-ai/prism/internal/engine"
	"github.com/ashita-ai/prism/internal/mcp"
	"github.com/ashita-ai/prism/internal/provider"
	"github.com/ashita-ai/prism/internal/ratelimit"
	"github.com/ashita-ai/prism/internal/registry"
	"github.com/ashita-ai/prism/internal/runstore"
	"github.com/ashita-ai/prism/internal/server"
	"github.com/ashita-ai/prism/internal/storage"
	"github.com/ashita-ai/prism/internal/telemetry"
	"github.com/ashita-ai/prism/migrations"
)

// shutdownTimeout bounds the HTTP drain when Run's context is cancelled.
const shutdownTimeout = 10 * time.Second

// App is the PRISM server lifecycle. Construct with New(), run with Run().
// App has no public fields; use New() options to configure it.
type App struct {
	cfg          config.Config
	registry     *registry.Registry
	engine       *engine.Engine
	runs         runstore.Store
	runStoreKind string
	srv          *server.Server
	closers      []func() error
	otelShutdown telemetry.Shutdown
	logger       *slog.Logger
	version      string
}

// New initialises PRISM from the environment and options. It builds the
// providers, opens the run store and its index, and wires the HTTP and MCP
// surfaces. It does NOT accept connections; call Run(). Call Close() when
// the App is not going to be run.
func New(opts ...Option) (*App, error) {
	o := resolvedOptions{}
	for _, fn := range opts {
		fn(&o)
	}

	logger := o.logger
	if logger == nil {
		logger = slog.Default()
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if o.port != 0 {
		cfg.Port = o.port
	}
	if o.runsDir != "" {
		if cfg.SQLitePath == filepath.Join(cfg.RunsDir, "index.db") {
			cfg.SQLitePath = filepath.Join(o.runsDir, "index.db")
		}
		cfg.RunsDir = o.runsDir
	}
	version := o.version
	if version == "" {
		version = "dev"
	}

	ctx := context.Background()
	otelShutdown, err := telemetry.Init(ctx, telemetry.Options{
		Endpoint:    cfg.OTELEndpoint,
		ServiceName: cfg.ServiceName,
		Version:     version,
		Insecure:    cfg.OTELInsecure,
	})
	if err != nil {
		return nil, fmt.Errorf("telemetry: %w", err)
	}

	a := &App{
		cfg:          cfg,
		otelShutdown: otelShutdown,
		logger:       logger,
		version:      version,
	}
	ready := false
	defer func() {
		if !ready {
			_ = a.Close()
		}
	}()

	providers, err := buildProviders(cfg, logger)
	if err != nil {
		return nil, err
	}
	taken := make(map[string]bool, len(providers))
	for _, p := range providers {
		taken[p.Name()] = true
	}
	regOpts := []registry.Option{
		registry.WithMaxModels(cfg.MaxModels),
		registry.WithCatalogTTL(cfg.CatalogTTL),
		registry.WithLogger(logger),
	}
	for _, p := range providers {
		regOpts = append(regOpts, registry.WithProvider(p))
	}
	for _, p := range o.providers {
		if p.Name() == "" || taken[p.Name()] {
			return nil, fmt.Errorf("provider %q: name is empty or already registered", p.Name())
		}
		taken[p.Name()] = true
		regOpts = append(regOpts, registry.WithProvider(externalProvider{p: p}))
	}
	a.registry = registry.New(regOpts...)

	if err := a.openRunStore(ctx); err != nil {
		return nil, err
	}

	var sink engine.RunStore = a.runs
	if len(o.runHooks) > 0 {
		sink = &hookedStore{RunStore: a.runs, hooks: o.runHooks, logger: logger}
	}
	a.engine = engine.New(a.registry, sink, engine.Config{
		RunTimeout:     cfg.RunTimeout,
		MaxPromptChars: cfg.MaxPromptChars,
	}, logger)

	var limiter ratelimit.Limiter = ratelimit.NoopLimiter{}
	if cfg.RateLimitEnabled {
		mem := ratelimit.NewMemoryLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
		a.closers = append(a.closers, mem.Close)
		limiter = mem
		logger.Info("rate limiting: memory (in-process token bucket)",
			"rps", cfg.RateLimitRPS, "burst", cfg.RateLimitBurst)
	} else {
		logger.Info("rate limiting: disabled")
	}

	var mcpSrv *mcpserver.MCPServer
	if cfg.MCPEnabled {
		mcpSrv = mcp.New(a.engine, a.runs, logger, version).MCPServer()
	}

	middlewares := make([]func(http.Handler) http.Handler, 0, len(o.middlewares))
	for _, mw := range o.middlewares {
		middlewares = append(middlewares, mw)
	}

	a.srv = server.New(server.ServerConfig{
		Engine:              a.engine,
		Logger:              logger,
		Runs:                a.runs,
		RunStoreKind:        a.runStoreKind,
		Limiter:             limiter,
		MCPServer:           mcpSrv,
		Port:                cfg.Port,
		ReadTimeout:         cfg.ReadTimeout,
		WriteTimeout:        cfg.WriteTimeout,
		Version:             version,
		MaxRequestBodyBytes: cfg.MaxRequestBodyBytes,
		OpenAPISpec:         api.OpenAPISpec,
		Middlewares:         middlewares,
	})

	logger.Info("prism ready",
		"version", version,
		"port", cfg.Port,
		"providers", len(a.registry.Providers()),
		"run_store", a.runStoreKind,
		"mcp", cfg.MCPEnabled,
	)
	ready = true
	return a, nil
}

// openRunStore opens the runs directory and, when configured, its index.
func (a *App) openRunStore(ctx context.Context) error {
	files, err := runstore.NewFileStore(a.cfg.RunsDir, a.logger)
	if err != nil {
		return fmt.Errorf("run store: %w", err)
	}

	var index runstore.Index
	switch a.cfg.Index {
	case config.IndexNone:
		a.runs, a.runStoreKind = files, "file"
		return nil
	case config.IndexSQLite:
		if err := os.MkdirAll(filepath.Dir(a.cfg.SQLitePath), 0o755); err != nil {
			return fmt.Errorf("sqlite index: %w", err)
		}
		idx, err := runstore.OpenSQLiteIndex(ctx, a.cfg.SQLitePath)
		if err != nil {
			return fmt.Errorf("sqlite index: %w", err)
		}
		index = idx
	case config.IndexPostgres:
		db, err := storage.New(ctx, a.cfg.DatabaseURL, a.logger)
		if err != nil {
			return fmt.Errorf("postgres index: %w", err)
		}
		if err := db.RunMigrations(ctx, migrations.FS); err != nil {
			_ = db.Close()
			return fmt.Errorf("postgres index: %w", err)
		}
		index = db
	default:
		return fmt.Errorf("run store: unknown index %q", a.cfg.Index)
	}

	indexed := runstore.NewIndexed(files, index, a.logger)
	a.closers = append(a.closers, indexed.Close)
	a.runs, a.runStoreKind = indexed, "file+"+a.cfg.Index

	// Runs written while the index was unreachable become listable again.
	n, err := indexed.Reindex(ctx)
	if err != nil {
		a.logger.Warn("run index: reindex incomplete", "indexed", n, "error", err)
	} else {
		a.logger.Info("run index: ready", "kind", a.cfg.Index, "runs", n)
	}
	return nil
}

// buildProviders constructs the configured backends in catalog order:
// mock, openai, anthropic, each ollama endpoint, then disabled entries.
func buildProviders(cfg config.Config, logger *slog.Logger) ([]provider.Provider, error) {
	catalog, err := cfg.Catalog()
	if err != nil {
		return nil, err
	}

	providers := []provider.Provider{
		provider.NewMock(cfg.MockDelayScale),
		provider.NewOpenAI(provider.OpenAIConfig{
			APIKey:     cfg.OpenAIAPIKey,
			BaseURL:    catalog.OpenAI.BaseURL,
			Models:     catalog.OpenAI.Models,
			Timeout:    cfg.OpenAITimeout,
			MaxRetries: cfg.OpenAIMaxRetries,
		}),
		provider.NewAnthropic(provider.AnthropicConfig{
			APIKey:     cfg.AnthropicAPIKey,
			BaseURL:    catalog.Anthropic.BaseURL,
			Models:     catalog.Anthropic.Models,
			MaxRetries: cfg.OpenAIMaxRetries,
		}),
	}
	for _, ep := range catalog.Ollama {
		providers = append(providers, provider.NewOllama(provider.OllamaConfig{
			Name:    ep.Name,
			BaseURL: ep.URL,
			Models:  ep.Models,
			Timeout: ep.Timeout,
		}))
		logger.Info("provider: ollama endpoint", "name", ep.Name, "url", ep.URL, "models", len(ep.Models))
	}
	for _, d := range catalog.Disabled {
		providers = append(providers, provider.NewDisabled(d.Name, d.Models, d.Reason))
	}
	return providers, nil
}

// Engine returns the evaluation engine for in-process use.
func (a *App) Engine() *engine.Engine { return a.engine }

// Runs returns the run store the App persists to.
func (a *App) Runs() runstore.Store { return a.runs }

// Handler returns the root HTTP handler, for mounting PRISM inside another
// server or for tests.
func (a *App) Handler() http.Handler { return a.srv.Handler() }

// Run serves HTTP until ctx is cancelled or the listener fails, then shuts
// down gracefully.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := a.srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return a.Shutdown(shutdownCtx)
}

// Shutdown drains in-flight HTTP requests and then releases resources.
func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("prism shutting down")
	if err := a.srv.Shutdown(ctx); err != nil {
		a.logger.Error("http shutdown error", "error", err)
	}
	err := a.Close()
	a.logger.Info("prism stopped")
	return err
}

// Close releases the run index, rate limiter and telemetry providers.
// It is safe to call more than once.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	a.closers = nil
	if a.otelShutdown != nil {
		errs = append(errs, a.otelShutdown(context.Background()))
		a.otelShutdown = nil
	}
	return errors.Join(errs...)
}
