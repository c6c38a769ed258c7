package model

// ModelDescriptor describes one model exposed by a provider. Descriptors are
// produced on demand by providers and never persisted on their own.
type ModelDescriptor struct {
	ID          string  `json:"id"`
	Provider    string  `json:"provider"`
	Available   bool    `json:"available"`
	Reason      *string `json:"reason"`
	Description string  `json:"description,omitempty"`
}

// GenerationResult is what a provider returns for a single generate call.
// A provider may report a failure either by returning an error or by setting
// ErrorCode; the engine treats both as a provider error.
type GenerationResult struct {
	Text         *string
	Usage        map[string]any
	Meta         map[string]any
	RawRequest   map[string]any
	RawResponse  map[string]any
	LatencyMs    *float64
	ErrorCode    string
	ErrorMessage string
}

// ErrorKind is the closed set of per-model failure kinds.
type ErrorKind string

const (
	ErrorKindUnavailable   ErrorKind = "unavailable"
	ErrorKindTimeout       ErrorKind = "timeout"
	ErrorKindCancelled     ErrorKind = "cancelled"
	ErrorKindProviderError ErrorKind = "provider_error"
)

// Cancellation triggers recorded on cancelled outcomes.
const (
	CancelReasonClientDisconnected = "client_disconnected"
	CancelReasonRunTimeout         = "run_timeout"
)

// ResultStatus is the coarse per-model status shown to callers.
type ResultStatus string

const (
	ResultStatusSuccess ResultStatus = "success"
	ResultStatusError   ResultStatus = "error"
	ResultStatusTimeout ResultStatus = "timeout"
)

// ModelResult is the terminal outcome of one model's generation attempt.
// Exactly one exists per requested model.
type ModelResult struct {
	Model            string         `json:"model"`
	Provider         string         `json:"provider"`
	OK               bool           `json:"ok"`
	Status           ResultStatus   `json:"status"`
	Text             *string        `json:"text"`
	ErrorKind        *ErrorKind     `json:"error_code"`
	ErrorMessage     *string        `json:"error_message"`
	CancelReason     *string        `json:"cancel_reason,omitempty"`
	LatencyMs        *float64       `json:"latency_ms"`
	Usage            map[string]any `json:"usage"`
	Meta             map[string]any `json:"meta"`
	FormatCompliance *float64       `json:"format_compliance"`
	HedgeCount       *int           `json:"hedge_count"`
}

// HasText reports whether the result carries non-empty generated text.
func (r ModelResult) HasText() bool {
	return r.Text != nil && *r.Text != ""
}

// Succeeded builds a successful result.
func Succeeded(modelID, provider string, gen GenerationResult, latencyMs float64) ModelResult {
	return ModelResult{
		Model:     modelID,
		Provider:  provider,
		OK:        true,
		Status:    ResultStatusSuccess,
		Text:      gen.Text,
		LatencyMs: &latencyMs,
		Usage:     gen.Usage,
		Meta:      gen.Meta,
	}
}

// Failed builds a failed result of the given kind.
func Failed(modelID, provider string, kind ErrorKind, message string, latencyMs *float64) ModelResult {
	status := ResultStatusError
	if kind == ErrorKindTimeout {
		status = ResultStatusTimeout
	}
	return ModelResult{
		Model:        modelID,
		Provider:     provider,
		OK:           false,
		Status:       status,
		ErrorKind:    &kind,
		ErrorMessage: &message,
		LatencyMs:    latencyMs,
	}
}

// Cancelled builds a cancelled result carrying the trigger as both reason and message.
func Cancelled(modelID, provider, reason string) ModelResult {
	r := Failed(modelID, provider, ErrorKindCancelled, reason, nil)
	r.CancelReason = &reason
	r.Meta = map[string]any{"cancel_reason": reason}
	return r
}
