// Package model defines the core domain types for PRISM.
//
// Types mirror the JSON documents returned by the HTTP API and written to the
// run store. Optional values are pointers so that "absent" and "zero" stay
// distinguishable on the wire.
package model

import (
	"encoding/json"
	"time"
)

// Version constants stamped into every response and persisted run.
const (
	SchemaVersion = "1.1.0"
	APIVersion    = "0.3.0"
)

// RunStatus classifies an evaluation run as a whole.
type RunStatus string

const (
	RunStatusSuccess RunStatus = "success"
	RunStatusPartial RunStatus = "partial"
	RunStatusFailed  RunStatus = "failed"
)

// Valid reports whether s is a known run status.
func (s RunStatus) Valid() bool {
	switch s {
	case RunStatusSuccess, RunStatusPartial, RunStatusFailed:
		return true
	}
	return false
}

// ClassifyRun derives the run status from per-model results: success when every
// result is ok, failed when none is, partial otherwise. An empty slice is failed.
func ClassifyRun(results []ModelResult) RunStatus {
	ok := 0
	for _, r := range results {
		if r.OK {
			ok++
		}
	}
	switch {
	case len(results) > 0 && ok == len(results):
		return RunStatusSuccess
	case ok > 0:
		return RunStatusPartial
	default:
		return RunStatusFailed
	}
}

// Strategy selects how the synthesizer reduces generations to one answer.
type Strategy string

const (
	StrategyLongestNonempty  Strategy = "longest_nonempty"
	StrategyConsensusOverlap Strategy = "consensus_overlap"
	StrategyBestOfN          Strategy = "best_of_n"
	// StrategyNone is only ever reported, never requested: it marks a
	// synthesis that produced nothing.
	StrategyNone Strategy = "none"
)

// Selectable reports whether s may be requested by a caller.
func (s Strategy) Selectable() bool {
	switch s {
	case StrategyLongestNonempty, StrategyConsensusOverlap, StrategyBestOfN:
		return true
	}
	return false
}

// EvaluateParams echoes the effective parameters of a run.
type EvaluateParams struct {
	Models          []string `json:"models"`
	Temperature     float64  `json:"temperature"`
	MaxTokens       int      `json:"max_tokens"`
	TimeoutS        float64  `json:"timeout_s"`
	SynthesisMethod Strategy `json:"synthesis_method"`
}

// ComparePair holds disagreement metrics for one unordered pair of models.
type ComparePair struct {
	A               string  `json:"a"`
	B               string  `json:"b"`
	Jaccard         float64 `json:"token_overlap_jaccard"`
	LengthRatio     float64 `json:"length_ratio"`
	KeywordCoverage float64 `json:"keyword_coverage"`
	OverlapScore    float64 `json:"overlap_score"`
}

// PairRef names the two sides of a pair without its metrics.
type PairRef struct {
	A string `json:"a"`
	B string `json:"b"`
}

// Disagreement reports the single most distant pair.
type Disagreement struct {
	MaxDistance float64  `json:"max_distance"`
	Pair        *PairRef `json:"pair"`
	Reason      string   `json:"reason"`
}

// CompareSummary aggregates the pairwise metrics.
type CompareSummary struct {
	AvgSimilarity       float64      `json:"avg_similarity"`
	MostDisagreeingPair *ComparePair `json:"most_disagree_pair"`
	Notes               string       `json:"notes"`
	Disagreement        Disagreement `json:"disagreement_summary"`
}

// CompareResult is the full comparator output.
type CompareResult struct {
	Pairs   []ComparePair  `json:"pairs"`
	Summary CompareSummary `json:"summary"`
}

// SynthesisResult is the synthesizer output. Rationale is always populated.
type SynthesisResult struct {
	OK        bool     `json:"ok"`
	Strategy  Strategy `json:"method"`
	Text      *string  `json:"text"`
	Rationale string   `json:"rationale"`
}

// EvaluateResponse is one complete evaluation run. It is immutable once
// written to the run store.
type EvaluateResponse struct {
	RequestID      string          `json:"request_id"`
	CreatedAt      time.Time       `json:"created_at"`
	RunHash        string          `json:"run_hash"`
	SchemaVersion  string          `json:"schema_version"`
	APIVersion     string          `json:"api_version"`
	Prompt         string          `json:"prompt"`
	Params         EvaluateParams  `json:"params"`
	Results        []ModelResult   `json:"results"`
	Synthesis      SynthesisResult `json:"synthesis"`
	Compare        CompareResult   `json:"compare"`
	Status         RunStatus       `json:"status"`
	PartialSuccess bool            `json:"partial_success"`
}

// RunSummary is the listing view of a persisted run.
type RunSummary struct {
	RunID     string    `json:"run_id"`
	CreatedAt time.Time `json:"created_at"`
	Status    RunStatus `json:"status"`
	RunHash   string    `json:"run_hash"`
}

// RuntimeInfo describes the process that produced a run.
type RuntimeInfo struct {
	GoVersion string  `json:"go_version"`
	Platform  string  `json:"platform"`
	GitCommit *string `json:"git_commit"`
}

// ProviderRuntimeInfo records how a provider was configured for a run.
type ProviderRuntimeInfo struct {
	BaseURL     *string `json:"base_url"`
	TimeoutS    float64 `json:"timeout_s"`
	Retries     int     `json:"retries"`
	Temperature float64 `json:"temperature"`
	MaxTokens   int     `json:"max_tokens"`
}

// ProviderRuntime pairs a model with its provider configuration.
type ProviderRuntime struct {
	ProviderName string              `json:"provider_name"`
	ModelID      string              `json:"model_id"`
	Runtime      ProviderRuntimeInfo `json:"runtime"`
}

// ExecutionContext is the reproducibility block of a persisted run.
type ExecutionContext struct {
	Runtime   RuntimeInfo       `json:"runtime"`
	Providers []ProviderRuntime `json:"providers"`
}

// RawGeneration is the redacted provider I/O audit trail for one model.
type RawGeneration struct {
	ModelID      string         `json:"model_id"`
	Provider     string         `json:"provider"`
	RawRequest   map[string]any `json:"raw_request"`
	RawResponse  map[string]any `json:"raw_response"`
	ErrorCode    *string        `json:"error_code"`
	ErrorMessage *string        `json:"error_message"`
}

// RunDocument is the self-contained persisted form of a run.
// CanonicalRequest holds the exact bytes that were hashed into RunHash.
type RunDocument struct {
	RequestID        string           `json:"request_id"`
	RunHash          string           `json:"run_hash"`
	SchemaVersion    string           `json:"schema_version"`
	APIVersion       string           `json:"api_version"`
	TimestampUTC     time.Time        `json:"timestamp_utc"`
	CanonicalRequest json.RawMessage  `json:"canonical_request"`
	ExecutionContext ExecutionContext `json:"execution_context"`
	Request          EvaluateRequest  `json:"request"`
	Response         EvaluateResponse `json:"response"`
	RawGenerations   []RawGeneration  `json:"raw_generations"`
}

// Summary returns the listing view of the document.
func (d RunDocument) Summary() RunSummary {
	return RunSummary{
		RunID:     d.RequestID,
		CreatedAt: d.Response.CreatedAt,
		Status:    d.Response.Status,
		RunHash:   d.RunHash,
	}
}
