package model

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// Request parameter bounds and defaults.
const (
	DefaultTemperature = 0.0
	DefaultMaxTokens   = 512
	DefaultTimeoutS    = 15.0

	MinMaxTokens = 1
	MaxMaxTokens = 4096
	MinTimeoutS  = 1.0
	MaxTimeoutS  = 120.0
)

// Sentinel errors shared by the engine and its transports. Each is a client
// error: the request is rejected before any provider is contacted.
var (
	ErrInvalidRequest    = errors.New("invalid request")
	ErrNoModelsAvailable = errors.New("no models available for evaluation")
)

// EvaluateRequest is the request body for POST /v1/evaluate.
// A nil Models slice means "every available model"; an empty, non-nil slice
// selects nothing.
type EvaluateRequest struct {
	Prompt          string   `json:"prompt"`
	Models          []string `json:"models"`
	Temperature     float64  `json:"temperature"`
	MaxTokens       int      `json:"max_tokens"`
	TimeoutS        float64  `json:"timeout_s"`
	SynthesisMethod Strategy `json:"synthesis_method"`
}

// WithDefaults fills unset numeric and strategy fields.
// Temperature defaults to zero, so it needs no filling.
func (r EvaluateRequest) WithDefaults() EvaluateRequest {
	if r.MaxTokens == 0 {
		r.MaxTokens = DefaultMaxTokens
	}
	if r.TimeoutS == 0 {
		r.TimeoutS = DefaultTimeoutS
	}
	if r.SynthesisMethod == "" {
		r.SynthesisMethod = StrategyLongestNonempty
	}
	return r
}

// ValidateParams checks parameter ranges. Prompt bounds are enforced by the
// engine, which owns the configured limit.
func (r EvaluateRequest) ValidateParams() error {
	if !finite(r.Temperature) || r.Temperature < 0 || r.Temperature > 1 {
		return fmt.Errorf("%w: temperature must be between 0 and 1", ErrInvalidRequest)
	}
	if r.MaxTokens < MinMaxTokens || r.MaxTokens > MaxMaxTokens {
		return fmt.Errorf("%w: max_tokens must be between %d and %d", ErrInvalidRequest, MinMaxTokens, MaxMaxTokens)
	}
	if !finite(r.TimeoutS) || r.TimeoutS < MinTimeoutS || r.TimeoutS > MaxTimeoutS {
		return fmt.Errorf("%w: timeout_s must be between %g and %g", ErrInvalidRequest, MinTimeoutS, MaxTimeoutS)
	}
	if !r.SynthesisMethod.Selectable() {
		return fmt.Errorf("%w: unknown synthesis_method %q", ErrInvalidRequest, r.SynthesisMethod)
	}
	seen := make(map[string]bool, len(r.Models))
	for _, id := range r.Models {
		if seen[id] {
			return fmt.Errorf("%w: model %q requested more than once", ErrInvalidRequest, id)
		}
		seen[id] = true
	}
	return nil
}

// finite reports whether v is neither NaN nor infinite. NaN compares false
// against every bound, so range checks alone let it through.
func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// APIResponse is the standard response envelope for all HTTP API responses.
type APIResponse struct {
	Data any          `json:"data,omitempty"`
	Meta ResponseMeta `json:"meta"`
}

// APIError is the standard error response envelope.
type APIError struct {
	Error ErrorDetail  `json:"error"`
	Meta  ResponseMeta `json:"meta"`
}

// ResponseMeta contains request metadata included in every response.
type ResponseMeta struct {
	RequestID string    `json:"request_id"`
	Timestamp time.Time `json:"timestamp"`
}

// ErrorDetail describes an API error.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// ErrorCode constants for standard API error codes.
const (
	ErrCodeInvalidInput  = "INVALID_INPUT"
	ErrCodeNotFound      = "NOT_FOUND"
	ErrCodeInternalError = "INTERNAL_ERROR"
	ErrCodeRateLimited   = "RATE_LIMITED"
)

// ModelsResponse is the response for GET /v1/models.
type ModelsResponse struct {
	Models []ModelDescriptor `json:"models"`
}

// RunsResponse is the response for GET /v1/runs.
type RunsResponse struct {
	Runs  []RunSummary `json:"runs"`
	Limit int          `json:"limit"`
}

// HealthResponse is the response for GET /health.
type HealthResponse struct {
	Status    string `json:"status"`
	Version   string `json:"version"`
	Providers int    `json:"providers"`
	RunStore  string `json:"run_store"`
	Uptime    int64  `json:"uptime_seconds"`
}
