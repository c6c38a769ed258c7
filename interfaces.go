package prism

import (
	"context"
	"net/http"
)

// Provider is a text-generation backend supplied by an embedding program.
// When registered via WithProvider it sits alongside the configured
// backends; its models are addressed as "<Name()>:<model>".
//
// Generate must honor ctx: PRISM abandons calls that outlive the request
// timeout or whose client went away.
type Provider interface {
	Name() string
	Models(ctx context.Context) ([]ModelInfo, error)
	Generate(ctx context.Context, model, prompt string, p GenerateParams) (Generation, error)
}

// RunHook receives a notification after each run is persisted.
// Hooks run in their own goroutine; failures are logged and never affect
// the originating request.
type RunHook interface {
	OnRunCompleted(ctx context.Context, run RunSummary) error
}

// Middleware wraps the root HTTP handler.
// Applied outermost, so it sees every request including /health.
// Multiple middlewares are applied in registration order (first-registered = outermost).
type Middleware func(http.Handler) http.Handler
