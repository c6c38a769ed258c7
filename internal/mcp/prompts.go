package mcp

import (
	"context"
	"fmt"

	mcplib "github.com/mark3labs/mcp-go/mcp"
)

func (s *Server) registerPrompts() {
	// cross-check: ask several models and reconcile.
	s.mcpServer.AddPrompt(
		mcplib.NewPrompt("cross-check",
			mcplib.WithPromptDescription("Cross-check a question against several models before answering"),
			mcplib.WithArgument("question",
				mcplib.ArgumentDescription("The question or claim to cross-check"),
				mcplib.RequiredArgument(),
			),
		),
		s.handleCrossCheckPrompt,
	)

	// review-run: interpret a finished run.
	s.mcpServer.AddPrompt(
		mcplib.NewPrompt("review-run",
			mcplib.WithPromptDescription("Review a finished evaluation run and explain where the models disagree"),
			mcplib.WithArgument("run_id",
				mcplib.ArgumentDescription("The run id to review"),
				mcplib.RequiredArgument(),
			),
		),
		s.handleReviewRunPrompt,
	)
}

func (s *Server) handleCrossCheckPrompt(_ context.Context, request mcplib.GetPromptRequest) (*mcplib.GetPromptResult, error) {
	question := request.Params.Arguments["question"]
	if question == "" {
		return nil, fmt.Errorf("question argument is required")
	}

	return &mcplib.GetPromptResult{
		Description: "Cross-check a question against several models",
		Messages: []mcplib.PromptMessage{
			{
				Role: mcplib.RoleUser,
				Content: mcplib.TextContent{
					Type: "text",
					Text: fmt.Sprintf(`Call prism_evaluate with this prompt:

%s

Then look at compare.avg_similarity. Above 0.6 the models broadly agree and
the synthesis text is a reasonable answer. Below that, read each result,
say where they differ and which answer you trust, and why.`, question),
				},
			},
		},
	}, nil
}

func (s *Server) handleReviewRunPrompt(_ context.Context, request mcplib.GetPromptRequest) (*mcplib.GetPromptResult, error) {
	runID := request.Params.Arguments["run_id"]
	if runID == "" {
		return nil, fmt.Errorf("run_id argument is required")
	}

	return &mcplib.GetPromptResult{
		Description: fmt.Sprintf("Review evaluation run %s", runID),
		Messages: []mcplib.PromptMessage{
			{
				Role: mcplib.RoleUser,
				Content: mcplib.TextContent{
					Type: "text",
					Text: fmt.Sprintf(`Read the resource prism://runs/%s.

Summarize:
1. Which models answered and which failed, with the error_code for failures.
2. The synthesized answer and the rationale behind it.
3. The most disagreeing pair from compare.summary, quoting the part of each
   answer where they diverge.`, runID),
				},
			},
		},
	}, nil
}
