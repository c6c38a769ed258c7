// Package mcp exposes PRISM over the Model Context Protocol.
//
// Agents get the same capabilities as the HTTP API: run an evaluation,
// inspect the model catalog and read back persisted runs. Tools return
// compact JSON; full run documents are available as resources.
package mcp

import (
	"encoding/json"
	"log/slog"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/ashita-ai/prism/internal/engine"
	"github.com/ashita-ai/prism/internal/runstore"
)

// Server wraps the mcp-go server with the evaluation engine.
type Server struct {
	mcpServer *mcpserver.MCPServer
	engine    *engine.Engine
	runs      runstore.Store
	logger    *slog.Logger
}

// New creates and configures an MCP server with all tools, resources and
// prompts. runs may be nil, in which case the run tools report that
// persistence is disabled.
func New(eng *engine.Engine, runs runstore.Store, logger *slog.Logger, version string) *Server {
	s := &Server{
		engine: eng,
		runs:   runs,
		logger: logger,
	}

	s.mcpServer = mcpserver.NewMCPServer(
		"prism",
		version,
		mcpserver.WithResourceCapabilities(false, true),
		mcpserver.WithToolCapabilities(true),
		mcpserver.WithPromptCapabilities(true),
		mcpserver.WithRecovery(),
	)

	s.registerTools()
	s.registerResources()
	s.registerPrompts()

	return s
}

// MCPServer returns the underlying mcp-go server for transport setup.
func (s *Server) MCPServer() *mcpserver.MCPServer {
	return s.mcpServer
}

func errorResult(msg string) *mcplib.CallToolResult {
	return &mcplib.CallToolResult{
		Content: []mcplib.Content{
			mcplib.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}

func jsonResult(v any) (*mcplib.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errorResult("failed to encode result: " + err.Error()), nil
	}
	return &mcplib.CallToolResult{
		Content: []mcplib.Content{
			mcplib.TextContent{Type: "text", Text: string(data)},
		},
	}, nil
}
