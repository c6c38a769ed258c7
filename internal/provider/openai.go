package provider

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
	"unicode/utf8"

	openai "github.com/sashabaranov/go-openai"

	"github.com/ashita-ai/prism/internal/model"
	"github.com/ashita-ai/prism/internal/redact"
)

// OpenAIName is the provider name of the OpenAI backend.
const OpenAIName = "openai"

// DefaultOpenAIModels are advertised when no model list is configured.
var DefaultOpenAIModels = []string{"gpt-4o-mini"}

// OpenAIConfig configures the OpenAI chat-completions backend.
type OpenAIConfig struct {
	APIKey     string
	BaseURL    string // API base, e.g. https://api.openai.com/v1. Empty uses the library default.
	Models     []string
	Timeout    time.Duration
	MaxRetries int
	RetryDelay time.Duration // Base backoff; attempt n waits RetryDelay*(n+1).
}

// OpenAI generates text through the OpenAI chat-completions API.
// Without an API key every model is listed as unavailable.
type OpenAI struct {
	cfg    OpenAIConfig
	client *openai.Client
}

// NewOpenAI creates the OpenAI provider.
func NewOpenAI(cfg OpenAIConfig) *OpenAI {
	if len(cfg.Models) == 0 {
		cfg.Models = DefaultOpenAIModels
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 20 * time.Second
	}
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = 500 * time.Millisecond
	}
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	cfg.BaseURL = clientCfg.BaseURL
	return &OpenAI{cfg: cfg, client: openai.NewClientWithConfig(clientCfg)}
}

// Name implements Provider.
func (p *OpenAI) Name() string { return OpenAIName }

// Runtime implements RuntimeReporter.
func (p *OpenAI) Runtime() Runtime {
	return Runtime{BaseURL: p.endpoint(), Timeout: p.cfg.Timeout, Retries: p.cfg.MaxRetries}
}

func (p *OpenAI) endpoint() string { return p.cfg.BaseURL + "/chat/completions" }

// ListModels implements Provider.
func (p *OpenAI) ListModels(_ context.Context) ([]model.ModelDescriptor, error) {
	var reason *string
	if p.cfg.APIKey == "" {
		reason = ptr("OPENAI_API_KEY missing")
	}
	out := make([]model.ModelDescriptor, 0, len(p.cfg.Models))
	for _, m := range p.cfg.Models {
		out = append(out, model.ModelDescriptor{
			ID:          QualifiedID(OpenAIName, m),
			Provider:    OpenAIName,
			Available:   p.cfg.APIKey != "",
			Reason:      reason,
			Description: "OpenAI Chat Completions",
		})
	}
	return out, nil
}

// Generate implements Provider. Failed attempts are retried; after the last
// attempt the result carries the final error code (auth_error, http_<status>,
// or the transport error text) together with the redacted request.
func (p *OpenAI) Generate(ctx context.Context, modelID, prompt string, params Params) (model.GenerationResult, error) {
	start := time.Now()
	if p.cfg.APIKey == "" {
		return model.GenerationResult{
			LatencyMs:    sinceMs(start),
			ErrorCode:    "missing_api_key",
			ErrorMessage: "OPENAI_API_KEY is missing",
		}, nil
	}
	_, name, ok := SplitModelID(modelID)
	if !ok {
		name = modelID
	}

	// go-openai drops a zero temperature via omitempty; the smallest
	// positive float keeps the request deterministic.
	temperature := float32(params.Temperature)
	if temperature == 0 {
		temperature = math.SmallestNonzeroFloat32
	}
	req := openai.ChatCompletionRequest{
		Model:       name,
		Messages:    []openai.ChatCompletionMessage{{Role: openai.ChatMessageRoleUser, Content: prompt}},
		Temperature: temperature,
		MaxTokens:   params.MaxTokens,
	}
	rawRequest := redact.RawIO(p.endpoint(),
		map[string]any{"Authorization": "Bearer " + p.cfg.APIKey, "Content-Type": "application/json"},
		map[string]any{
			"model":       name,
			"messages":    []any{map[string]any{"role": "user", "content": prompt}},
			"temperature": params.Temperature,
			"max_tokens":  params.MaxTokens,
		})

	var resp openai.ChatCompletionResponse
	err := withRetry(ctx, p.cfg.MaxRetries, p.cfg.RetryDelay, func() error {
		attemptCtx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
		defer cancel()
		r, err := p.client.CreateChatCompletion(attemptCtx, req)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return &retryable{code: openAIErrorCode(err), err: err}
		}
		if len(r.Choices) == 0 {
			return &retryable{code: "empty_response", err: errors.New("no choices returned")}
		}
		resp = r
		return nil
	})
	if err != nil {
		var r *retryable
		if !errors.As(err, &r) {
			return model.GenerationResult{}, err
		}
		return model.GenerationResult{
			RawRequest:   rawRequest,
			LatencyMs:    sinceMs(start),
			ErrorCode:    r.code,
			ErrorMessage: fmt.Sprintf("OpenAI generation failed: %v", r.err),
		}, nil
	}

	choice := resp.Choices[0]
	text := choice.Message.Content
	return model.GenerationResult{
		Text: &text,
		Usage: map[string]any{
			"prompt_tokens":     resp.Usage.PromptTokens,
			"completion_tokens": resp.Usage.CompletionTokens,
			"total_tokens":      resp.Usage.TotalTokens,
		},
		Meta:       map[string]any{"finish_reason": string(choice.FinishReason), "model": name},
		RawRequest: rawRequest,
		RawResponse: redact.RawIO(p.endpoint(), redact.HTTPHeaders(resp.Header()), map[string]any{
			"id":            resp.ID,
			"model":         resp.Model,
			"finish_reason": string(choice.FinishReason),
			"body_snippet":  truncate(text, 500),
		}),
		LatencyMs: sinceMs(start),
	}, nil
}

func openAIErrorCode(err error) string {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return statusCode(apiErr.HTTPStatusCode)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return statusCode(reqErr.HTTPStatusCode)
	}
	return "transport_error"
}

// truncate keeps at most n characters of s.
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
