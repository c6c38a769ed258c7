package prism

import (
	"log/slog"
)

// Option configures an App.
type Option func(*resolvedOptions)

// resolvedOptions holds all extension points after applying defaults.
// Unexported; callers use the With* functions.
type resolvedOptions struct {
	port        int
	runsDir     string
	logger      *slog.Logger
	version     string
	providers   []Provider
	runHooks    []RunHook
	middlewares []Middleware
}

// WithPort overrides the TCP port from config (PRISM_PORT env var).
func WithPort(port int) Option {
	return func(o *resolvedOptions) { o.port = port }
}

// WithRunStore persists runs under dir, overriding PRISM_RUNS_DIR.
func WithRunStore(dir string) Option {
	return func(o *resolvedOptions) { o.runsDir = dir }
}

// WithLogger sets the structured logger for the App.
// If not set, the default slog logger is used.
func WithLogger(logger *slog.Logger) Option {
	return func(o *resolvedOptions) { o.logger = logger }
}

// WithVersion sets the version string reported in the health endpoint, MCP
// handshake and logs.
func WithVersion(version string) Option {
	return func(o *resolvedOptions) { o.version = version }
}

// WithProvider registers an additional generation backend. Its name must not
// collide with a configured provider.
func WithProvider(p Provider) Option {
	return func(o *resolvedOptions) { o.providers = append(o.providers, p) }
}

// WithRunHook registers a hook notified after every persisted run.
func WithRunHook(hook RunHook) Option {
	return func(o *resolvedOptions) { o.runHooks = append(o.runHooks, hook) }
}

// WithMiddleware registers an outermost HTTP middleware.
func WithMiddleware(mw Middleware) Option {
	return func(o *resolvedOptions) { o.middlewares = append(o.middlewares, mw) }
}
