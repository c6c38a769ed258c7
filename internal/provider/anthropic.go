package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ashita-ai/prism/internal/model"
	"github.com/ashita-ai/prism/internal/redact"
)

// AnthropicName is the provider name of the Anthropic backend.
const AnthropicName = "anthropic"

const anthropicVersion = "2023-06-01"

// DefaultAnthropicModels are advertised when no model list is configured.
var DefaultAnthropicModels = []string{"claude-3-5-haiku-latest"}

// AnthropicConfig configures the Anthropic Messages backend.
type AnthropicConfig struct {
	APIKey     string
	BaseURL    string
	Models     []string
	Timeout    time.Duration
	MaxRetries int
	RetryDelay time.Duration
}

// Anthropic generates text through the Messages API.
type Anthropic struct {
	cfg        AnthropicConfig
	httpClient *http.Client
}

// NewAnthropic creates the Anthropic provider.
func NewAnthropic(cfg AnthropicConfig) *Anthropic {
	if len(cfg.Models) == 0 {
		cfg.Models = DefaultAnthropicModels
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.anthropic.com"
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = 500 * time.Millisecond
	}
	return &Anthropic{cfg: cfg, httpClient: &http.Client{Timeout: cfg.Timeout}}
}

// Name implements Provider.
func (p *Anthropic) Name() string { return AnthropicName }

// Runtime implements RuntimeReporter.
func (p *Anthropic) Runtime() Runtime {
	return Runtime{BaseURL: p.endpoint(), Timeout: p.cfg.Timeout, Retries: p.cfg.MaxRetries}
}

func (p *Anthropic) endpoint() string { return p.cfg.BaseURL + "/v1/messages" }

// ListModels implements Provider.
func (p *Anthropic) ListModels(_ context.Context) ([]model.ModelDescriptor, error) {
	var reason *string
	if p.cfg.APIKey == "" {
		reason = ptr("ANTHROPIC_API_KEY missing")
	}
	out := make([]model.ModelDescriptor, 0, len(p.cfg.Models))
	for _, m := range p.cfg.Models {
		out = append(out, model.ModelDescriptor{
			ID:          QualifiedID(AnthropicName, m),
			Provider:    AnthropicName,
			Available:   p.cfg.APIKey != "",
			Reason:      reason,
			Description: "Anthropic Messages",
		})
	}
	return out, nil
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicRequest struct {
	Model       string             `json:"model"`
	MaxTokens   int                `json:"max_tokens"`
	Temperature float64            `json:"temperature"`
	Messages    []anthropicMessage `json:"messages"`
}

type anthropicResponse struct {
	ID         string `json:"id"`
	Model      string `json:"model"`
	StopReason string `json:"stop_reason"`
	Content    []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Usage struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// Generate implements Provider.
func (p *Anthropic) Generate(ctx context.Context, modelID, prompt string, params Params) (model.GenerationResult, error) {
	start := time.Now()
	if p.cfg.APIKey == "" {
		return model.GenerationResult{
			LatencyMs:    sinceMs(start),
			ErrorCode:    "missing_api_key",
			ErrorMessage: "ANTHROPIC_API_KEY is missing",
		}, nil
	}
	_, name, ok := SplitModelID(modelID)
	if !ok {
		name = modelID
	}

	ctx, span := tracer.Start(ctx, "provider.anthropic.generate",
		trace.WithAttributes(attribute.String("prism.model_id", modelID)),
	)
	defer span.End()

	payload, err := json.Marshal(anthropicRequest{
		Model:       name,
		MaxTokens:   params.MaxTokens,
		Temperature: params.Temperature,
		Messages:    []anthropicMessage{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return model.GenerationResult{}, fmt.Errorf("anthropic: marshal request: %w", err)
	}
	reqHeaders := map[string]string{
		"x-api-key":         p.cfg.APIKey,
		"anthropic-version": anthropicVersion,
		"content-type":      "application/json",
	}
	rawRequest := redact.RawIO(p.endpoint(), redact.Headers(reqHeaders), map[string]any{
		"model": name, "max_tokens": params.MaxTokens, "temperature": params.Temperature,
		"messages": []any{map[string]any{"role": "user", "content": prompt}},
	})

	var (
		out     anthropicResponse
		headers http.Header
		status  int
	)
	err = withRetry(ctx, p.cfg.MaxRetries, p.cfg.RetryDelay, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint(), bytes.NewReader(payload))
		if err != nil {
			return fmt.Errorf("anthropic: create request: %w", err)
		}
		for k, v := range reqHeaders {
			req.Header.Set(k, v)
		}
		resp, err := p.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return &retryable{code: "transport_error", err: err}
		}
		defer func() { _ = resp.Body.Close() }()
		headers, status = resp.Header, resp.StatusCode
		if resp.StatusCode != http.StatusOK {
			msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
			return &retryable{code: statusCode(resp.StatusCode), err: fmt.Errorf("anthropic: status %d: %s", resp.StatusCode, string(msg))}
		}
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return &retryable{code: "decode_error", err: fmt.Errorf("anthropic: decode response: %w", err)}
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "anthropic generate failed")
		var r *retryable
		if errors.As(err, &r) {
			return model.GenerationResult{
				RawRequest:   rawRequest,
				LatencyMs:    sinceMs(start),
				ErrorCode:    r.code,
				ErrorMessage: r.err.Error(),
			}, nil
		}
		return model.GenerationResult{}, err
	}

	var b strings.Builder
	for _, c := range out.Content {
		if c.Type == "text" {
			b.WriteString(c.Text)
		}
	}
	text := b.String()
	return model.GenerationResult{
		Text: &text,
		Usage: map[string]any{
			"prompt_tokens":     out.Usage.InputTokens,
			"completion_tokens": out.Usage.OutputTokens,
			"total_tokens":      out.Usage.InputTokens + out.Usage.OutputTokens,
		},
		Meta:       map[string]any{"model": out.Model, "stop_reason": out.StopReason},
		RawRequest: rawRequest,
		RawResponse: redact.RawIO(p.endpoint(), redact.HTTPHeaders(headers), map[string]any{
			"status_code":  status,
			"id":           out.ID,
			"body_snippet": truncate(text, 500),
		}),
		LatencyMs: sinceMs(start),
	}, nil
}
