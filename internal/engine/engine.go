// Package engine runs one evaluation: it fans a prompt out to several models
// concurrently, collects exactly one outcome per model, reduces the outcomes
// to a synthesis and a comparison, and persists the run.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/ashita-ai/prism/internal/canonical"
	"github.com/ashita-ai/prism/internal/compare"
	"github.com/ashita-ai/prism/internal/metrics"
	"github.com/ashita-ai/prism/internal/model"
	"github.com/ashita-ai/prism/internal/registry"
	"github.com/ashita-ai/prism/internal/synthesis"
	"github.com/ashita-ai/prism/internal/telemetry"
)

var tracer = otel.Tracer("prism/engine")

// Defaults applied to zero Config fields.
const (
	DefaultRunTimeout     = 30 * time.Second
	DefaultMaxPromptChars = 8000
	DefaultPollInterval   = 250 * time.Millisecond
)

// Config bounds a single run.
type Config struct {
	// RunTimeout caps the whole fan-out. Models still running when it fires
	// are reported as cancelled with reason run_timeout.
	RunTimeout time.Duration

	// MaxPromptChars is the prompt limit in characters, after trimming.
	MaxPromptChars int

	// PollInterval is how often the abort signal is checked.
	PollInterval time.Duration
}

// RunStore persists completed runs.
type RunStore interface {
	Persist(ctx context.Context, doc model.RunDocument) error
}

// Engine evaluates prompts against the models of a registry.
// It is safe for concurrent use.
type Engine struct {
	registry *registry.Registry
	store    RunStore
	cfg      Config
	logger   *slog.Logger

	now        func() time.Time
	newID      func() string
	synthesize func(prompt string, results []model.ModelResult, s model.Strategy) model.SynthesisResult
	compare    func(prompt string, results []model.ModelResult) model.CompareResult

	generations        metric.Int64Counter
	generationDuration metric.Float64Histogram
	runs               metric.Int64Counter
}

// New creates an Engine. store may be nil, in which case runs are not persisted.
func New(reg *registry.Registry, store RunStore, cfg Config, logger *slog.Logger) *Engine {
	if cfg.RunTimeout <= 0 {
		cfg.RunTimeout = DefaultRunTimeout
	}
	if cfg.MaxPromptChars <= 0 {
		cfg.MaxPromptChars = DefaultMaxPromptChars
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	meter := telemetry.Meter("prism/engine")
	generations, _ := meter.Int64Counter("prism.generations",
		metric.WithDescription("Model generations by outcome status"),
	)
	genDur, _ := meter.Float64Histogram("prism.generation.duration",
		metric.WithDescription("Time to obtain one model outcome (ms)"),
		metric.WithUnit("ms"),
	)
	runs, _ := meter.Int64Counter("prism.runs",
		metric.WithDescription("Completed evaluation runs by status"),
	)

	return &Engine{
		registry:           reg,
		store:              store,
		cfg:                cfg,
		logger:             logger,
		now:                time.Now,
		newID:              newRunID,
		synthesize:         synthesis.Synthesize,
		compare:            compare.Compare,
		generations:        generations,
		generationDuration: genDur,
		runs:               runs,
	}
}

// Registry returns the registry the engine resolves models against.
func (e *Engine) Registry() *registry.Registry { return e.registry }

// newRunID returns a time-ordered UUIDv7 in 32-character hex form, so run
// files sort chronologically by name.
func newRunID() string {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return strings.ReplaceAll(id.String(), "-", "")
}

// Evaluate runs req. Request errors (bad parameters, unknown models, no
// models) are returned before any provider is contacted; per-model failures
// are reported in the response and never fail the call.
//
// abort may be nil. When it reports true the remaining models are cancelled
// with reason client_disconnected and the partial run is still returned and
// persisted. ctx bounds persistence and should outlive the client connection.
func (e *Engine) Evaluate(ctx context.Context, req model.EvaluateRequest, abort AbortSignal) (model.EvaluateResponse, error) {
	req = req.WithDefaults()
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		return model.EvaluateResponse{}, fmt.Errorf("%w: prompt cannot be empty", model.ErrInvalidRequest)
	}
	if utf8.RuneCountInString(prompt) > e.cfg.MaxPromptChars {
		return model.EvaluateResponse{}, fmt.Errorf("%w: prompt exceeds maximum length of %d characters",
			model.ErrInvalidRequest, e.cfg.MaxPromptChars)
	}
	if err := req.ValidateParams(); err != nil {
		return model.EvaluateResponse{}, err
	}

	ctx, span := tracer.Start(ctx, "engine.evaluate")
	defer span.End()

	models, err := e.registry.Resolve(ctx, req.Models)
	if err != nil {
		return model.EvaluateResponse{}, err
	}
	if len(models) == 0 {
		return model.EvaluateResponse{}, model.ErrNoModelsAvailable
	}

	ids := make([]string, len(models))
	for i, d := range models {
		ids[i] = d.ID
	}
	params := model.EvaluateParams{
		Models:          ids,
		Temperature:     req.Temperature,
		MaxTokens:       req.MaxTokens,
		TimeoutS:        req.TimeoutS,
		SynthesisMethod: req.SynthesisMethod,
	}
	_, canonicalBytes, runHash, err := canonical.Canonicalize(canonical.Input{
		Prompt:          prompt,
		Models:          ids,
		Temperature:     params.Temperature,
		MaxTokens:       params.MaxTokens,
		TimeoutS:        params.TimeoutS,
		SynthesisMethod: string(params.SynthesisMethod),
	})
	if err != nil {
		return model.EvaluateResponse{}, fmt.Errorf("engine: canonicalize request: %w", err)
	}

	requestID := e.newID()
	createdAt := e.now().UTC()
	span.SetAttributes(
		attribute.String("prism.request_id", requestID),
		attribute.String("prism.run_hash", runHash),
		attribute.Int("prism.model_count", len(models)),
	)

	start := time.Now()
	results, raws := e.dispatch(ctx, models, prompt, params, abort)
	annotate(prompt, results)

	resp := model.EvaluateResponse{
		RequestID:     requestID,
		CreatedAt:     createdAt,
		RunHash:       runHash,
		SchemaVersion: model.SchemaVersion,
		APIVersion:    model.APIVersion,
		Prompt:        prompt,
		Params:        params,
		Results:       results,
		Synthesis:     e.safeSynthesize(prompt, results, params.SynthesisMethod),
		Compare:       e.safeCompare(prompt, results),
		Status:        model.ClassifyRun(results),
	}
	resp.PartialSuccess = resp.Status == model.RunStatusPartial

	span.SetAttributes(attribute.String("prism.status", string(resp.Status)))
	e.runs.Add(ctx, 1, metric.WithAttributes(attribute.String("status", string(resp.Status))))
	e.logger.Info("engine: run complete",
		"request_id", requestID,
		"run_hash", runHash,
		"status", resp.Status,
		"models", len(models),
		"duration_ms", time.Since(start).Milliseconds(),
	)

	if e.store != nil {
		doc := e.document(req, resp, canonicalBytes, models, raws)
		if err := e.store.Persist(ctx, doc); err != nil {
			e.logger.Error("engine: persist run failed", "request_id", requestID, "error", err)
		}
	}
	return resp, nil
}

// annotate attaches per-generation format metrics to successful outcomes.
func annotate(prompt string, results []model.ModelResult) {
	for i := range results {
		r := &results[i]
		if !r.OK || !r.HasText() {
			continue
		}
		fc := metrics.FormatCompliance(prompt, *r.Text)
		hc := metrics.HedgeCount(*r.Text)
		r.FormatCompliance = &fc
		r.HedgeCount = &hc
	}
}

func (e *Engine) safeSynthesize(prompt string, results []model.ModelResult, s model.Strategy) (out model.SynthesisResult) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("engine: synthesis panicked", "strategy", s, "panic", r)
			out = model.SynthesisResult{
				OK:        false,
				Strategy:  model.StrategyNone,
				Rationale: fmt.Sprintf("synthesis failed: %v", r),
			}
		}
	}()
	return e.synthesize(prompt, results, s)
}

func (e *Engine) safeCompare(prompt string, results []model.ModelResult) (out model.CompareResult) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("engine: compare panicked", "panic", r)
			out = model.CompareResult{
				Pairs: []model.ComparePair{},
				Summary: model.CompareSummary{
					Notes:        fmt.Sprintf("compare failed: %v", r),
					Disagreement: model.Disagreement{Reason: "compare failed"},
				},
			}
		}
	}()
	return e.compare(prompt, results)
}

func (e *Engine) document(
	req model.EvaluateRequest,
	resp model.EvaluateResponse,
	canonicalBytes []byte,
	models []model.ModelDescriptor,
	raws []model.RawGeneration,
) model.RunDocument {
	providers := make([]model.ProviderRuntime, 0, len(models))
	for _, d := range models {
		p, ok := e.registry.Provider(d.Provider)
		if !ok {
			providers = append(providers, model.ProviderRuntime{
				ProviderName: d.Provider,
				ModelID:      d.ID,
				Runtime: model.ProviderRuntimeInfo{
					TimeoutS:    resp.Params.TimeoutS,
					Temperature: resp.Params.Temperature,
					MaxTokens:   resp.Params.MaxTokens,
				},
			})
			continue
		}
		providers = append(providers, providerRuntime(p, d, resp.Params))
	}
	return model.RunDocument{
		RequestID:        resp.RequestID,
		RunHash:          resp.RunHash,
		SchemaVersion:    model.SchemaVersion,
		APIVersion:       model.APIVersion,
		TimestampUTC:     resp.CreatedAt,
		CanonicalRequest: canonicalBytes,
		ExecutionContext: model.ExecutionContext{
			Runtime:   processRuntime(),
			Providers: providers,
		},
		Request:        req,
		Response:       resp,
		RawGenerations: raws,
	}
}
