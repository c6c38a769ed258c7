package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	mcplib "github.com/mark3labs/mcp-go/mcp"

	"github.com/ashita-ai/prism/internal/model"
	"github.com/ashita-ai/prism/internal/runstore"
)

const (
	modelsURI     = "prism://models"
	recentRunsURI = "prism://runs/recent"
	runURIPrefix  = "prism://runs/"
)

func (s *Server) registerResources() {
	// prism://models: the catalog, same as GET /v1/models.
	s.mcpServer.AddResource(
		mcplib.NewResource(
			modelsURI,
			"Model Catalog",
			mcplib.WithResourceDescription("Every known model with provider and availability"),
			mcplib.WithMIMEType("application/json"),
		),
		s.handleModelsResource,
	)

	// prism://runs/recent: newest persisted runs.
	s.mcpServer.AddResource(
		mcplib.NewResource(
			recentRunsURI,
			"Recent Runs",
			mcplib.WithResourceDescription("The most recent evaluation runs, newest first"),
			mcplib.WithMIMEType("application/json"),
		),
		s.handleRecentRuns,
	)

	// prism://runs/{run_id}: the full persisted document.
	s.mcpServer.AddResourceTemplate(
		mcplib.NewResourceTemplate(
			"prism://runs/{run_id}",
			"Run Document",
			mcplib.WithTemplateDescription("The complete persisted record of one evaluation run"),
			mcplib.WithTemplateMIMEType("application/json"),
		),
		s.handleRunDocument,
	)
}

func (s *Server) handleModelsResource(ctx context.Context, _ mcplib.ReadResourceRequest) ([]mcplib.ResourceContents, error) {
	models, err := s.engine.Registry().ListModels(ctx)
	if err != nil {
		return nil, fmt.Errorf("mcp: list models: %w", err)
	}
	return jsonContents(modelsURI, model.ModelsResponse{Models: models})
}

func (s *Server) handleRecentRuns(ctx context.Context, _ mcplib.ReadResourceRequest) ([]mcplib.ResourceContents, error) {
	runs := []model.RunSummary{}
	if s.runs != nil {
		listed, err := s.runs.List(ctx, runstore.ListFilter{Limit: runstore.DefaultListLimit})
		if err != nil {
			return nil, fmt.Errorf("mcp: recent runs: %w", err)
		}
		runs = append(runs, listed...)
	}
	return jsonContents(recentRunsURI, map[string]any{"runs": runs})
}

func (s *Server) handleRunDocument(ctx context.Context, request mcplib.ReadResourceRequest) ([]mcplib.ResourceContents, error) {
	uri := request.Params.URI
	runID, ok := strings.CutPrefix(uri, runURIPrefix)
	if !ok || !runstore.ValidRunID(runID) {
		return nil, fmt.Errorf("mcp: invalid run URI: %s", uri)
	}
	if s.runs == nil {
		return nil, fmt.Errorf("mcp: run persistence is disabled")
	}

	doc, err := s.runs.Get(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("mcp: get run %s: %w", runID, err)
	}
	return jsonContents(uri, doc)
}

func jsonContents(uri string, v any) ([]mcplib.ResourceContents, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("mcp: marshal %s: %w", uri, err)
	}
	return []mcplib.ResourceContents{
		mcplib.TextResourceContents{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}
