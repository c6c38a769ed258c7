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

// OllamaName is the default provider name of the Ollama backend.
const OllamaName = "ollama"

// OllamaConfig configures a local or remote Ollama server. Several servers
// can be registered side by side under distinct names.
type OllamaConfig struct {
	Name       string // Provider name and model id prefix; defaults to OllamaName.
	BaseURL    string
	Models     []string // Bare model names, e.g. "llama3.2".
	Timeout    time.Duration
	MaxRetries int
	RetryDelay time.Duration
}

// Ollama generates text through Ollama's /api/generate endpoint.
// Availability is checked against /api/tags on each ListModels call;
// callers are expected to cache the catalog.
type Ollama struct {
	cfg        OllamaConfig
	httpClient *http.Client
}

// NewOllama creates the Ollama provider.
func NewOllama(cfg OllamaConfig) *Ollama {
	if cfg.Name == "" {
		cfg.Name = OllamaName
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:11434"
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = 500 * time.Millisecond
	}
	return &Ollama{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

// Name implements Provider.
func (p *Ollama) Name() string { return p.cfg.Name }

// Runtime implements RuntimeReporter.
func (p *Ollama) Runtime() Runtime {
	return Runtime{BaseURL: p.cfg.BaseURL, Timeout: p.cfg.Timeout, Retries: p.cfg.MaxRetries}
}

type ollamaTagsResponse struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

// ListModels implements Provider. An unreachable server marks every
// configured model unavailable rather than failing the listing.
func (p *Ollama) ListModels(ctx context.Context) ([]model.ModelDescriptor, error) {
	pulled, err := p.tags(ctx)
	out := make([]model.ModelDescriptor, 0, len(p.cfg.Models))
	for _, m := range p.cfg.Models {
		d := model.ModelDescriptor{
			ID:          QualifiedID(p.cfg.Name, m),
			Provider:    p.cfg.Name,
			Available:   true,
			Description: "Ollama at " + p.cfg.BaseURL,
		}
		switch {
		case err != nil:
			d.Available = false
			d.Reason = ptr(fmt.Sprintf("ollama unreachable at %s: %v", p.cfg.BaseURL, err))
		case !pulled[m] && !pulled[m+":latest"]:
			d.Available = false
			d.Reason = ptr(fmt.Sprintf("model %s not pulled on %s", m, p.cfg.BaseURL))
		}
		out = append(out, d)
	}
	return out, nil
}

func (p *Ollama) tags(ctx context.Context) (map[string]bool, error) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.cfg.BaseURL+"/api/tags", nil)
	if err != nil {
		return nil, fmt.Errorf("ollama: create request: %w", err)
	}
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ollama: send request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ollama: status %d", resp.StatusCode)
	}
	var tags ollamaTagsResponse
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return nil, fmt.Errorf("ollama: decode tags: %w", err)
	}
	pulled := make(map[string]bool, len(tags.Models))
	for _, m := range tags.Models {
		pulled[m.Name] = true
	}
	return pulled, nil
}

type ollamaOptions struct {
	Temperature float64 `json:"temperature"`
	NumPredict  int     `json:"num_predict"`
}

type ollamaGenerateRequest struct {
	Model   string        `json:"model"`
	Prompt  string        `json:"prompt"`
	Stream  bool          `json:"stream"`
	Options ollamaOptions `json:"options"`
}

type ollamaGenerateResponse struct {
	Model           string `json:"model"`
	Response        string `json:"response"`
	Done            bool   `json:"done"`
	DoneReason      string `json:"done_reason"`
	PromptEvalCount int    `json:"prompt_eval_count"`
	EvalCount       int    `json:"eval_count"`
}

// Generate implements Provider.
func (p *Ollama) Generate(ctx context.Context, modelID, prompt string, params Params) (model.GenerationResult, error) {
	_, name, ok := SplitModelID(modelID)
	if !ok {
		name = modelID
	}
	ctx, span := tracer.Start(ctx, "provider.ollama.generate",
		trace.WithAttributes(
			attribute.String("prism.model_id", modelID),
			attribute.Int("prism.max_tokens", params.MaxTokens),
		),
	)
	defer span.End()

	start := time.Now()
	body := ollamaGenerateRequest{
		Model:   name,
		Prompt:  prompt,
		Stream:  false,
		Options: ollamaOptions{Temperature: params.Temperature, NumPredict: params.MaxTokens},
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return model.GenerationResult{}, fmt.Errorf("ollama: marshal request: %w", err)
	}
	url := p.cfg.BaseURL + "/api/generate"
	rawRequest := redact.RawIO(url, map[string]any{"Content-Type": "application/json"}, map[string]any{
		"model": name, "prompt": prompt, "stream": false,
		"options": map[string]any{"temperature": params.Temperature, "num_predict": params.MaxTokens},
	})

	var (
		out     ollamaGenerateResponse
		headers http.Header
		status  int
	)
	err = withRetry(ctx, p.cfg.MaxRetries, p.cfg.RetryDelay, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
		if err != nil {
			return fmt.Errorf("ollama: create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
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
			return &retryable{code: statusCode(resp.StatusCode), err: fmt.Errorf("ollama: status %d: %s", resp.StatusCode, string(msg))}
		}
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return &retryable{code: "decode_error", err: fmt.Errorf("ollama: decode response: %w", err)}
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "ollama generate failed")
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

	text := out.Response
	return model.GenerationResult{
		Text: &text,
		Usage: map[string]any{
			"prompt_tokens":     out.PromptEvalCount,
			"completion_tokens": out.EvalCount,
			"total_tokens":      out.PromptEvalCount + out.EvalCount,
		},
		Meta:       map[string]any{"model": out.Model, "done_reason": out.DoneReason},
		RawRequest: rawRequest,
		RawResponse: redact.RawIO(url, redact.HTTPHeaders(headers), map[string]any{
			"status_code":  status,
			"body_snippet": truncate(text, 500),
		}),
		LatencyMs: sinceMs(start),
	}, nil
}
