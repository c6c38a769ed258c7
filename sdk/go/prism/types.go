package prism

import "time"

// Synthesis methods accepted by Evaluate.
const (
	MethodLongestNonempty  = "longest_nonempty"
	MethodConsensusOverlap = "consensus_overlap"
	MethodBestOfN          = "best_of_n"
)

// Run statuses.
const (
	StatusSuccess = "success"
	StatusPartial = "partial"
	StatusFailed  = "failed"
)

// EvaluateRequest is the body of POST /v1/evaluate. Zero numeric fields take
// the server defaults (temperature 0). A nil Models evaluates every available
// model.
type EvaluateRequest struct {
	Prompt          string   `json:"prompt"`
	Models          []string `json:"models,omitempty"`
	Temperature     float64  `json:"temperature,omitempty"`
	MaxTokens       int      `json:"max_tokens,omitempty"`
	TimeoutS        float64  `json:"timeout_s,omitempty"`
	SynthesisMethod string   `json:"synthesis_method,omitempty"`
}

// Params are the effective parameters of a run after defaults.
type Params struct {
	Models          []string `json:"models"`
	Temperature     float64  `json:"temperature"`
	MaxTokens       int      `json:"max_tokens"`
	TimeoutS        float64  `json:"timeout_s"`
	SynthesisMethod string   `json:"synthesis_method"`
}

// ModelResult is one model's outcome.
type ModelResult struct {
	Model            string         `json:"model"`
	Provider         string         `json:"provider"`
	OK               bool           `json:"ok"`
	Status           string         `json:"status"`
	Text             *string        `json:"text"`
	ErrorCode        *string        `json:"error_code"`
	ErrorMessage     *string        `json:"error_message"`
	CancelReason     *string        `json:"cancel_reason,omitempty"`
	LatencyMs        *float64       `json:"latency_ms"`
	Usage            map[string]any `json:"usage"`
	Meta             map[string]any `json:"meta"`
	FormatCompliance *float64       `json:"format_compliance"`
	HedgeCount       *int           `json:"hedge_count"`
}

// Synthesis is the reconciled answer.
type Synthesis struct {
	OK        bool    `json:"ok"`
	Method    string  `json:"method"`
	Text      *string `json:"text"`
	Rationale string  `json:"rationale"`
}

// ComparePair holds the disagreement metrics of two models.
type ComparePair struct {
	A               string  `json:"a"`
	B               string  `json:"b"`
	Jaccard         float64 `json:"token_overlap_jaccard"`
	LengthRatio     float64 `json:"length_ratio"`
	KeywordCoverage float64 `json:"keyword_coverage"`
	OverlapScore    float64 `json:"overlap_score"`
}

// CompareSummary aggregates the pairwise metrics.
type CompareSummary struct {
	AvgSimilarity       float64      `json:"avg_similarity"`
	MostDisagreeingPair *ComparePair `json:"most_disagree_pair"`
	Notes               string       `json:"notes"`
	Disagreement        struct {
		MaxDistance float64 `json:"max_distance"`
		Pair        *struct {
			A string `json:"a"`
			B string `json:"b"`
		} `json:"pair"`
		Reason string `json:"reason"`
	} `json:"disagreement_summary"`
}

// Compare is the comparator output.
type Compare struct {
	Pairs   []ComparePair  `json:"pairs"`
	Summary CompareSummary `json:"summary"`
}

// EvaluateResponse is one completed run.
type EvaluateResponse struct {
	RequestID      string        `json:"request_id"`
	CreatedAt      time.Time     `json:"created_at"`
	RunHash        string        `json:"run_hash"`
	SchemaVersion  string        `json:"schema_version"`
	APIVersion     string        `json:"api_version"`
	Prompt         string        `json:"prompt"`
	Params         Params        `json:"params"`
	Results        []ModelResult `json:"results"`
	Synthesis      Synthesis     `json:"synthesis"`
	Compare        Compare       `json:"compare"`
	Status         string        `json:"status"`
	PartialSuccess bool          `json:"partial_success"`
}

// Model describes one entry of the catalog.
type Model struct {
	ID          string  `json:"id"`
	Provider    string  `json:"provider"`
	Available   bool    `json:"available"`
	Reason      *string `json:"reason"`
	Description string  `json:"description,omitempty"`
}

// RunSummary is the listing view of a persisted run.
type RunSummary struct {
	RunID     string    `json:"run_id"`
	CreatedAt time.Time `json:"created_at"`
	Status    string    `json:"status"`
	RunHash   string    `json:"run_hash"`
}

// ListRunsOptions filters ListRuns. Zero fields are not sent.
type ListRunsOptions struct {
	Limit  int
	Status string
	Hash   string
}

// RunDocument is the complete persisted record of a run.
type RunDocument struct {
	RequestID        string           `json:"request_id"`
	RunHash          string           `json:"run_hash"`
	SchemaVersion    string           `json:"schema_version"`
	APIVersion       string           `json:"api_version"`
	TimestampUTC     time.Time        `json:"timestamp_utc"`
	CanonicalRequest map[string]any   `json:"canonical_request"`
	ExecutionContext map[string]any   `json:"execution_context"`
	Request          EvaluateRequest  `json:"request"`
	Response         EvaluateResponse `json:"response"`
	RawGenerations   []map[string]any `json:"raw_generations"`
}

type apiErrorEnvelope struct {
	Error struct {
		Code    string         `json:"code"`
		Message string         `json:"message"`
		Details map[string]any `json:"details"`
	} `json:"error"`
}
