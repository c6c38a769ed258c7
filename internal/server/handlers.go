package server

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/ashita-ai/prism/internal/engine"
	"github.com/ashita-ai/prism/internal/model"
	"github.com/ashita-ai/prism/internal/registry"
	"github.com/ashita-ai/prism/internal/runstore"
)

// Handlers holds HTTP handler dependencies.
type Handlers struct {
	engine              *engine.Engine
	runs                runstore.Store
	runStoreKind        string
	logger              *slog.Logger
	startedAt           time.Time
	version             string
	maxRequestBodyBytes int64
	openapiSpec         []byte
}

// HandlersDeps holds all dependencies for constructing Handlers.
// Runs and OpenAPISpec are optional.
type HandlersDeps struct {
	Engine              *engine.Engine
	Runs                runstore.Store
	RunStoreKind        string // Reported by /health, e.g. "file" or "file+sqlite".
	Logger              *slog.Logger
	Version             string
	MaxRequestBodyBytes int64
	OpenAPISpec         []byte
}

// NewHandlers creates a new Handlers with all dependencies.
func NewHandlers(d HandlersDeps) *Handlers {
	if d.MaxRequestBodyBytes <= 0 {
		d.MaxRequestBodyBytes = 1 << 20
	}
	return &Handlers{
		engine:              d.Engine,
		runs:                d.Runs,
		runStoreKind:        d.RunStoreKind,
		logger:              d.Logger,
		startedAt:           time.Now(),
		version:             d.Version,
		maxRequestBodyBytes: d.MaxRequestBodyBytes,
		openapiSpec:         d.OpenAPISpec,
	}
}

// HandleHealth handles GET /health.
func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	runStore := h.runStoreKind
	if h.runs == nil {
		runStore = "disabled"
	}
	writeJSON(w, r, http.StatusOK, model.HealthResponse{
		Status:    "healthy",
		Version:   h.version,
		Providers: len(h.engine.Registry().Providers()),
		RunStore:  runStore,
		Uptime:    int64(time.Since(h.startedAt).Seconds()),
	})
}

// HandleOpenAPISpec serves the embedded OpenAPI specification.
func (h *Handlers) HandleOpenAPISpec(w http.ResponseWriter, r *http.Request) {
	if len(h.openapiSpec) == 0 {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "application/yaml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(h.openapiSpec)
}

// HandleListModels handles GET /v1/models.
func (h *Handlers) HandleListModels(w http.ResponseWriter, r *http.Request) {
	models, err := h.engine.Registry().ListModels(r.Context())
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, model.ModelsResponse{Models: models})
}

// writeDomainError maps engine, registry and run store errors onto the API
// error envelope. Anything unrecognised is logged and reported as a 500
// without leaking its text.
func (h *Handlers) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	var unknown *registry.UnknownModelError
	switch {
	case errors.As(err, &unknown):
		writeErrorDetails(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, err.Error(), map[string]any{
			"missing":   unknown.Missing,
			"available": unknown.Available,
		})
	case errors.Is(err, model.ErrInvalidRequest),
		errors.Is(err, registry.ErrTooManyModels),
		errors.Is(err, model.ErrNoModelsAvailable):
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, err.Error())
	case errors.Is(err, runstore.ErrNotFound):
		writeError(w, r, http.StatusNotFound, model.ErrCodeNotFound, err.Error())
	default:
		h.logger.Error("http: request failed",
			"error", err,
			"path", r.URL.Path,
			"request_id", RequestIDFromContext(r.Context()),
		)
		writeError(w, r, http.StatusInternalServerError, model.ErrCodeInternalError, "internal error")
	}
}
