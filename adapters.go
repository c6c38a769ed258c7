package prism

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ashita-ai/prism/internal/engine"
	"github.com/ashita-ai/prism/internal/model"
	"github.com/ashita-ai/prism/internal/provider"
)

// hookTimeout bounds a single RunHook call.
const hookTimeout = 30 * time.Second

// externalProvider adapts a public Provider to the internal interface.
type externalProvider struct {
	p Provider
}

func (e externalProvider) Name() string { return e.p.Name() }

func (e externalProvider) ListModels(ctx context.Context) ([]model.ModelDescriptor, error) {
	infos, err := e.p.Models(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]model.ModelDescriptor, 0, len(infos))
	for _, info := range infos {
		d := model.ModelDescriptor{
			ID:          provider.QualifiedID(e.p.Name(), info.ID),
			Provider:    e.p.Name(),
			Available:   info.Available,
			Description: info.Description,
		}
		if !info.Available {
			reason := info.Reason
			if reason == "" {
				reason = e.p.Name() + " model unavailable"
			}
			d.Reason = &reason
		}
		out = append(out, d)
	}
	return out, nil
}

func (e externalProvider) Generate(ctx context.Context, modelID, prompt string, p provider.Params) (model.GenerationResult, error) {
	name, bare, ok := provider.SplitModelID(modelID)
	if !ok || name != e.p.Name() {
		return model.GenerationResult{}, fmt.Errorf("%w: %s", provider.ErrUnknownModel, modelID)
	}

	start := time.Now()
	gen, err := e.p.Generate(ctx, bare, prompt, GenerateParams{
		Temperature: p.Temperature,
		MaxTokens:   p.MaxTokens,
	})
	if err != nil {
		return model.GenerationResult{}, err
	}
	latency := float64(time.Since(start).Microseconds()) / 1000
	text := gen.Text
	return model.GenerationResult{
		Text:      &text,
		Usage:     gen.Usage,
		Meta:      gen.Meta,
		LatencyMs: &latency,
	}, nil
}

// hookedStore notifies run hooks after each successful persist.
type hookedStore struct {
	engine.RunStore
	hooks  []RunHook
	logger *slog.Logger
}

func (s *hookedStore) Persist(ctx context.Context, doc model.RunDocument) error {
	if err := s.RunStore.Persist(ctx, doc); err != nil {
		return err
	}
	run := toPublicRun(doc)
	for _, h := range s.hooks {
		go func() {
			hookCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), hookTimeout)
			defer cancel()
			if err := h.OnRunCompleted(hookCtx, run); err != nil {
				s.logger.Warn("run hook failed", "run_id", run.RunID, "error", err)
			}
		}()
	}
	return nil
}

func toPublicRun(doc model.RunDocument) RunSummary {
	return RunSummary{
		RunID:     doc.RequestID,
		RunHash:   doc.RunHash,
		CreatedAt: doc.Response.CreatedAt,
		Status:    string(doc.Response.Status),
		Models:    append([]string(nil), doc.Response.Params.Models...),
	}
}
