package mcp

import (
	"github.com/ashita-ai/prism/internal/model"
)

const maxCompactText = 600

// compactResult returns a minimal representation of one model outcome for
// tool responses. Usage, provider metadata and raw payloads are dropped;
// agents that need them read the run resource.
func compactResult(r model.ModelResult) map[string]any {
	m := map[string]any{
		"model":    r.Model,
		"provider": r.Provider,
		"ok":       r.OK,
		"status":   r.Status,
	}
	if r.Text != nil {
		m["text"] = truncate(*r.Text, maxCompactText)
	}
	if r.ErrorKind != nil {
		m["error_code"] = *r.ErrorKind
	}
	if r.ErrorMessage != nil {
		m["error_message"] = *r.ErrorMessage
	}
	if r.LatencyMs != nil {
		m["latency_ms"] = *r.LatencyMs
	}
	return m
}

// compactResponse trims an evaluation for agent consumption: per-model text
// is truncated, pairwise metrics are reduced to the summary.
func compactResponse(resp model.EvaluateResponse) map[string]any {
	results := make([]map[string]any, 0, len(resp.Results))
	for _, r := range resp.Results {
		results = append(results, compactResult(r))
	}

	synthesis := map[string]any{
		"ok":        resp.Synthesis.OK,
		"method":    resp.Synthesis.Strategy,
		"rationale": resp.Synthesis.Rationale,
	}
	if resp.Synthesis.Text != nil {
		synthesis["text"] = *resp.Synthesis.Text
	}

	compare := map[string]any{
		"avg_similarity": resp.Compare.Summary.AvgSimilarity,
		"notes":          resp.Compare.Summary.Notes,
	}
	if d := resp.Compare.Summary.Disagreement; d.Pair != nil {
		compare["most_disagree_pair"] = []string{d.Pair.A, d.Pair.B}
		compare["max_distance"] = d.MaxDistance
	}

	return map[string]any{
		"run_id":          resp.RequestID,
		"run_hash":        resp.RunHash,
		"status":          resp.Status,
		"partial_success": resp.PartialSuccess,
		"results":         results,
		"synthesis":       synthesis,
		"compare":         compare,
	}
}

// truncate shortens s to at most maxRunes runes, appending "..." when cut.
func truncate(s string, maxRunes int) string {
	runes := []rune(s)
	if len(runes) <= maxRunes {
		return s
	}
	return string(runes[:maxRunes]) + "..."
}
