package mcp

import (
	"context"
	"errors"
	"fmt"

	mcplib "github.com/mark3labs/mcp-go/mcp"

	"github.com/ashita-ai/prism/internal/engine"
	"github.com/ashita-ai/prism/internal/model"
	"github.com/ashita-ai/prism/internal/registry"
	"github.com/ashita-ai/prism/internal/runstore"
)

func (s *Server) registerTools() {
	// prism_evaluate: fan a prompt out to several models and reconcile.
	s.mcpServer.AddTool(
		mcplib.NewTool("prism_evaluate",
			mcplib.WithDescription(`Send one prompt to several models concurrently and get back every answer,
a synthesized answer and a measure of how much the models disagree.

WHEN TO USE: when a single model's answer is not enough, for example to
check a factual claim, to see whether models agree on a classification, or
to pick the best of several drafts.

WHAT YOU GET BACK:
- results: one entry per model (text truncated; full text is in the run resource)
- synthesis: the reconciled answer and the rationale for picking it
- compare: average similarity and the most disagreeing pair
- run_id: read prism://runs/{run_id} for the full run document`),
			mcplib.WithOpenWorldHintAnnotation(true),
			mcplib.WithString("prompt",
				mcplib.Description("The prompt to send to every selected model"),
				mcplib.Required(),
			),
			mcplib.WithArray("models",
				mcplib.Description("Model ids to evaluate (see prism_models). Omit to use every available model."),
				mcplib.WithStringItems(),
			),
			mcplib.WithNumber("temperature",
				mcplib.Description("Sampling temperature"),
				mcplib.Min(0),
				mcplib.Max(1),
				mcplib.DefaultNumber(model.DefaultTemperature),
			),
			mcplib.WithNumber("max_tokens",
				mcplib.Description("Maximum tokens per generation"),
				mcplib.Min(model.MinMaxTokens),
				mcplib.Max(model.MaxMaxTokens),
				mcplib.DefaultNumber(model.DefaultMaxTokens),
			),
			mcplib.WithNumber("timeout_s",
				mcplib.Description("Per-model timeout in seconds"),
				mcplib.Min(model.MinTimeoutS),
				mcplib.Max(model.MaxTimeoutS),
				mcplib.DefaultNumber(model.DefaultTimeoutS),
			),
			mcplib.WithString("synthesis_method",
				mcplib.Description("How to reduce the answers to one"),
				mcplib.Enum(
					string(model.StrategyLongestNonempty),
					string(model.StrategyConsensusOverlap),
					string(model.StrategyBestOfN),
				),
				mcplib.DefaultString(string(model.StrategyLongestNonempty)),
			),
		),
		s.handleEvaluate,
	)

	// prism_models: the catalog with availability.
	s.mcpServer.AddTool(
		mcplib.NewTool("prism_models",
			mcplib.WithDescription("List every known model with its provider and whether it is currently available."),
			mcplib.WithReadOnlyHintAnnotation(true),
			mcplib.WithIdempotentHintAnnotation(true),
		),
		s.handleModels,
	)

	// prism_runs: recent persisted runs.
	s.mcpServer.AddTool(
		mcplib.NewTool("prism_runs",
			mcplib.WithDescription("List recent evaluation runs, newest first."),
			mcplib.WithReadOnlyHintAnnotation(true),
			mcplib.WithIdempotentHintAnnotation(true),
			mcplib.WithOpenWorldHintAnnotation(false),
			mcplib.WithNumber("limit",
				mcplib.Description("Maximum number of runs to return"),
				mcplib.Min(1),
				mcplib.Max(runstore.MaxListLimit),
				mcplib.DefaultNumber(runstore.DefaultListLimit),
			),
			mcplib.WithString("status",
				mcplib.Description("Only return runs with this status"),
				mcplib.Enum(
					string(model.RunStatusSuccess),
					string(model.RunStatusPartial),
					string(model.RunStatusFailed),
				),
			),
			mcplib.WithString("hash",
				mcplib.Description("Only return runs with this configuration hash"),
			),
		),
		s.handleRuns,
	)

	// prism_get_run: one run, compacted.
	s.mcpServer.AddTool(
		mcplib.NewTool("prism_get_run",
			mcplib.WithDescription("Fetch one persisted evaluation run by id."),
			mcplib.WithReadOnlyHintAnnotation(true),
			mcplib.WithIdempotentHintAnnotation(true),
			mcplib.WithOpenWorldHintAnnotation(false),
			mcplib.WithString("run_id",
				mcplib.Description("The run id returned by prism_evaluate or prism_runs"),
				mcplib.Required(),
			),
		),
		s.handleGetRun,
	)
}

func (s *Server) handleEvaluate(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	prompt := request.GetString("prompt", "")
	if prompt == "" {
		return errorResult("prompt is required"), nil
	}

	req := model.EvaluateRequest{
		Prompt:          prompt,
		Models:          request.GetStringSlice("models", nil),
		Temperature:     request.GetFloat("temperature", model.DefaultTemperature),
		MaxTokens:       request.GetInt("max_tokens", model.DefaultMaxTokens),
		TimeoutS:        request.GetFloat("timeout_s", model.DefaultTimeoutS),
		SynthesisMethod: model.Strategy(request.GetString("synthesis_method", "")),
	}

	// The run is detached from the session context so it still completes and
	// persists; a closed session only cancels the models still in flight.
	resp, err := s.engine.Evaluate(context.WithoutCancel(ctx), req, engine.ContextAbort(ctx))
	if err != nil {
		if isClientError(err) {
			return errorResult(err.Error()), nil
		}
		s.logger.Error("mcp: evaluate failed", "error", err)
		return errorResult("evaluation failed"), nil
	}
	return jsonResult(compactResponse(resp))
}

func (s *Server) handleModels(ctx context.Context, _ mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	models, err := s.engine.Registry().ListModels(ctx)
	if err != nil {
		return errorResult(fmt.Sprintf("list models failed: %v", err)), nil
	}
	return jsonResult(model.ModelsResponse{Models: models})
}

func (s *Server) handleRuns(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	if s.runs == nil {
		return errorResult("run persistence is disabled"), nil
	}
	filter := runstore.ListFilter{
		Limit:  request.GetInt("limit", runstore.DefaultListLimit),
		Status: model.RunStatus(request.GetString("status", "")),
		Hash:   request.GetString("hash", ""),
	}
	if filter.Status != "" && !filter.Status.Valid() {
		return errorResult(fmt.Sprintf("unknown status %q", filter.Status)), nil
	}

	runs, err := s.runs.List(ctx, filter)
	if err != nil {
		return errorResult(fmt.Sprintf("list runs failed: %v", err)), nil
	}
	if runs == nil {
		runs = []model.RunSummary{}
	}
	return jsonResult(map[string]any{"runs": runs})
}

func (s *Server) handleGetRun(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	runID := request.GetString("run_id", "")
	if !runstore.ValidRunID(runID) {
		return errorResult("run_id is required and must be a run id"), nil
	}
	if s.runs == nil {
		return errorResult("run persistence is disabled"), nil
	}

	doc, err := s.runs.Get(ctx, runID)
	if errors.Is(err, runstore.ErrNotFound) {
		return errorResult(fmt.Sprintf("run %s not found", runID)), nil
	}
	if err != nil {
		return errorResult(fmt.Sprintf("get run failed: %v", err)), nil
	}
	return jsonResult(compactResponse(doc.Response))
}

// isClientError reports whether err rejects the request itself rather than
// signalling an internal failure.
func isClientError(err error) bool {
	return errors.Is(err, model.ErrInvalidRequest) ||
		errors.Is(err, model.ErrNoModelsAvailable) ||
		errors.Is(err, registry.ErrUnknownModel) ||
		errors.Is(err, registry.ErrTooManyModels)
}
