package mcp

import (
	"context"
	"encoding/json"
	"testing"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashita-ai/prism/internal/engine"
	"github.com/ashita-ai/prism/internal/provider"
	"github.com/ashita-ai/prism/internal/registry"
	"github.com/ashita-ai/prism/internal/runstore"
	"github.com/ashita-ai/prism/internal/testutil"
)

func newTestServer(t *testing.T, withRuns bool) *Server {
	t.Helper()
	logger := testutil.TestLogger()
	reg := registry.New(
		registry.WithProvider(provider.NewMock(0)),
		registry.WithProvider(provider.NewDisabled("gemini", []string{"disabled"}, "Gemini provider disabled")),
	)

	var runs runstore.Store
	var sink engine.RunStore
	if withRuns {
		fs, err := runstore.NewFileStore(t.TempDir(), logger)
		require.NoError(t, err)
		runs, sink = fs, fs
	}
	eng := engine.New(reg, sink, engine.Config{}, logger)
	return New(eng, runs, logger, "test")
}

func callTool(name string, args map[string]any) mcplib.CallToolRequest {
	return mcplib.CallToolRequest{
		Params: mcplib.CallToolParams{Name: name, Arguments: args},
	}
}

func resultText(t *testing.T, res *mcplib.CallToolResult) string {
	t.Helper()
	require.NotNil(t, res)
	require.Len(t, res.Content, 1)
	tc, ok := res.Content[0].(mcplib.TextContent)
	require.True(t, ok, "expected text content, got %T", res.Content[0])
	return tc.Text
}

func decodeResult(t *testing.T, res *mcplib.CallToolResult) map[string]any {
	t.Helper()
	require.False(t, res.IsError, resultText(t, res))
	var out map[string]any
	require.NoError(t, json.Unmarshal([]byte(resultText(t, res)), &out))
	return out
}

func TestHandleEvaluate(t *testing.T) {
	s := newTestServer(t, true)
	ctx := context.Background()

	res, err := s.handleEvaluate(ctx, callTool("prism_evaluate", map[string]any{
		"prompt": "what is 2+2?",
		"models": []any{"mock:echo", "mock:reasoner"},
	}))
	require.NoError(t, err)
	out := decodeResult(t, res)

	assert.Equal(t, "success", out["status"])
	assert.Equal(t, false, out["partial_success"])
	assert.NotEmpty(t, out["run_id"])
	assert.Len(t, out["run_hash"], 64)

	results := out["results"].([]any)
	require.Len(t, results, 2)
	first := results[0].(map[string]any)
	assert.Equal(t, "mock:echo", first["model"])
	assert.Equal(t, "[echo:mock-echo] what is 2+2?", first["text"])

	synthesis := out["synthesis"].(map[string]any)
	assert.Equal(t, true, synthesis["ok"])
	assert.Equal(t, "longest_nonempty", synthesis["method"])

	// The run was persisted and is readable by id.
	got, err := s.handleGetRun(ctx, callTool("prism_get_run", map[string]any{"run_id": out["run_id"]}))
	require.NoError(t, err)
	assert.Equal(t, out["run_id"], decodeResult(t, got)["run_id"])
}

func TestHandleEvaluateRejections(t *testing.T) {
	s := newTestServer(t, false)
	ctx := context.Background()

	tests := []struct {
		name string
		args map[string]any
		want string
	}{
		{"missing prompt", map[string]any{}, "prompt is required"},
		{"unknown model", map[string]any{"prompt": "hi", "models": []any{"mock:nope"}}, "mock:nope"},
		{"bad temperature", map[string]any{"prompt": "hi", "temperature": 3.0}, "temperature"},
		{"bad method", map[string]any{"prompt": "hi", "synthesis_method": "vote"}, "synthesis_method"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := s.handleEvaluate(ctx, callTool("prism_evaluate", tt.args))
			require.NoError(t, err)
			assert.True(t, res.IsError)
			assert.Contains(t, resultText(t, res), tt.want)
		})
	}
}

func TestHandleModels(t *testing.T) {
	s := newTestServer(t, false)
	res, err := s.handleModels(context.Background(), callTool("prism_models", nil))
	require.NoError(t, err)

	out := decodeResult(t, res)
	models := out["models"].([]any)
	ids := make([]string, 0, len(models))
	for _, m := range models {
		ids = append(ids, m.(map[string]any)["id"].(string))
	}
	assert.Contains(t, ids, "mock:echo")
	assert.Contains(t, ids, "gemini:disabled")
}

func TestHandleRuns(t *testing.T) {
	s := newTestServer(t, true)
	ctx := context.Background()

	for range 3 {
		res, err := s.handleEvaluate(ctx, callTool("prism_evaluate", map[string]any{
			"prompt": "hello",
			"models": []any{"mock:echo"},
		}))
		require.NoError(t, err)
		require.False(t, res.IsError)
	}

	res, err := s.handleRuns(ctx, callTool("prism_runs", map[string]any{"limit": 2}))
	require.NoError(t, err)
	assert.Len(t, decodeResult(t, res)["runs"], 2)

	res, err = s.handleRuns(ctx, callTool("prism_runs", map[string]any{"status": "failed"}))
	require.NoError(t, err)
	assert.Empty(t, decodeResult(t, res)["runs"])

	res, err = s.handleRuns(ctx, callTool("prism_runs", map[string]any{"status": "bogus"}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
}

func TestRunToolsWithoutStore(t *testing.T) {
	s := newTestServer(t, false)
	ctx := context.Background()

	res, err := s.handleRuns(ctx, callTool("prism_runs", nil))
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Contains(t, resultText(t, res), "disabled")

	res, err = s.handleGetRun(ctx, callTool("prism_get_run", map[string]any{"run_id": "abc123"}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
}

func TestHandleGetRunErrors(t *testing.T) {
	s := newTestServer(t, true)
	ctx := context.Background()

	res, err := s.handleGetRun(ctx, callTool("prism_get_run", map[string]any{"run_id": "../etc/passwd"}))
	require.NoError(t, err)
	assert.True(t, res.IsError)

	res, err = s.handleGetRun(ctx, callTool("prism_get_run", map[string]any{"run_id": "deadbeef"}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Contains(t, resultText(t, res), "not found")
}

func TestResources(t *testing.T) {
	s := newTestServer(t, true)
	ctx := context.Background()

	res, err := s.handleEvaluate(ctx, callTool("prism_evaluate", map[string]any{
		"prompt": "hello",
		"models": []any{"mock:echo"},
	}))
	require.NoError(t, err)
	runID := decodeResult(t, res)["run_id"].(string)

	read := func(uri string) mcplib.ReadResourceRequest {
		return mcplib.ReadResourceRequest{Params: mcplib.ReadResourceParams{URI: uri}}
	}

	contents, err := s.handleModelsResource(ctx, read(modelsURI))
	require.NoError(t, err)
	require.Len(t, contents, 1)
	assert.Contains(t, contents[0].(mcplib.TextResourceContents).Text, "mock:echo")

	contents, err = s.handleRecentRuns(ctx, read(recentRunsURI))
	require.NoError(t, err)
	assert.Contains(t, contents[0].(mcplib.TextResourceContents).Text, runID)

	contents, err = s.handleRunDocument(ctx, read(runURIPrefix+runID))
	require.NoError(t, err)
	text := contents[0].(mcplib.TextResourceContents).Text
	assert.Contains(t, text, `"canonical_request"`)
	assert.Contains(t, text, `"raw_generations"`)

	_, err = s.handleRunDocument(ctx, read("prism://runs/not a run"))
	assert.Error(t, err)
	_, err = s.handleRunDocument(ctx, read(runURIPrefix+"deadbeef"))
	assert.ErrorIs(t, err, runstore.ErrNotFound)
}

func TestPrompts(t *testing.T) {
	s := newTestServer(t, false)
	ctx := context.Background()

	req := mcplib.GetPromptRequest{}
	req.Params.Arguments = map[string]string{"question": "Is Pluto a planet?"}
	res, err := s.handleCrossCheckPrompt(ctx, req)
	require.NoError(t, err)
	require.Len(t, res.Messages, 1)
	assert.Contains(t, res.Messages[0].Content.(mcplib.TextContent).Text, "Is Pluto a planet?")

	req.Params.Arguments = map[string]string{"run_id": "abc"}
	res, err = s.handleReviewRunPrompt(ctx, req)
	require.NoError(t, err)
	assert.Contains(t, res.Messages[0].Content.(mcplib.TextContent).Text, "prism://runs/abc")

	_, err = s.handleCrossCheckPrompt(ctx, mcplib.GetPromptRequest{})
	assert.Error(t, err)
	_, err = s.handleReviewRunPrompt(ctx, mcplib.GetPromptRequest{})
	assert.Error(t, err)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", truncate("abc", 3))
	assert.Equal(t, "ab...", truncate("abc", 2))
	assert.Equal(t, "日本...", truncate("日本語", 2))
}
