package provider

import (
	"context"
	"fmt"
	"hash/fnv"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/ashita-ai/prism/internal/metrics"
	"github.com/ashita-ai/prism/internal/model"
)

// MockName is the provider name of the built-in mock backend.
const MockName = "mock"

type mockModel struct {
	description string
	delay       time.Duration
	generate    func(prompt string) (text string, meta map[string]any)
}

// Mock is an offline provider with deterministic models. It is always
// available and is what tests and local runs use when no API keys are set.
//
//   - mock:echo     returns "[echo:mock-echo] <prompt>"
//   - mock:reasoner returns a templated step list seeded from the prompt
//   - mock:pseudo   is an alias of mock:reasoner
type Mock struct {
	order  []string
	models map[string]mockModel
}

// NewMock creates the mock provider. delayScale multiplies the built-in
// latencies (50ms echo, 100ms reasoner); pass 0 for instant responses.
func NewMock(delayScale float64) *Mock {
	scale := func(d time.Duration) time.Duration { return time.Duration(float64(d) * delayScale) }
	reasoner := mockModel{
		description: "Pseudo reasoning model",
		delay:       scale(100 * time.Millisecond),
		generate:    reason,
	}
	alias := reasoner
	alias.description = "Alias of mock:reasoner"

	return &Mock{
		order: []string{"mock:echo", "mock:reasoner", "mock:pseudo"},
		models: map[string]mockModel{
			"mock:echo": {
				description: "Deterministic echo model",
				delay:       scale(50 * time.Millisecond),
				generate: func(prompt string) (string, map[string]any) {
					return "[echo:mock-echo] " + strings.TrimSpace(prompt), nil
				},
			},
			"mock:reasoner": reasoner,
			"mock:pseudo":   alias,
		},
	}
}

// Name implements Provider.
func (m *Mock) Name() string { return MockName }

// ListModels implements Provider.
func (m *Mock) ListModels(_ context.Context) ([]model.ModelDescriptor, error) {
	out := make([]model.ModelDescriptor, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, model.ModelDescriptor{
			ID:          id,
			Provider:    MockName,
			Available:   true,
			Description: m.models[id].description,
		})
	}
	return out, nil
}

// Generate implements Provider.
func (m *Mock) Generate(ctx context.Context, modelID, prompt string, _ Params) (model.GenerationResult, error) {
	mm, ok := m.models[modelID]
	if !ok {
		return model.GenerationResult{}, fmt.Errorf("%w: %s", ErrUnknownModel, modelID)
	}
	start := time.Now()
	if err := sleep(ctx, mm.delay); err != nil {
		return model.GenerationResult{}, err
	}
	text, meta := mm.generate(prompt)
	if meta == nil {
		meta = map[string]any{}
	}
	meta["model"] = modelID

	promptTokens := len(metrics.Tokenize(prompt))
	completionTokens := len(metrics.Tokenize(text))
	return model.GenerationResult{
		Text: &text,
		Usage: map[string]any{
			"prompt_tokens":     promptTokens,
			"completion_tokens": completionTokens,
			"total_tokens":      promptTokens + completionTokens,
		},
		Meta:      meta,
		LatencyMs: sinceMs(start),
	}, nil
}

var (
	stances = []string{"concise", "cautious", "optimistic", "skeptical"}
	verbs   = []string{"consider", "estimate", "compare", "project", "outline", "contrast"}
	nouns   = []string{"impact", "tradeoff", "risk", "opportunity", "path", "constraint"}
)

// reason fabricates a 2-4 step analysis. The same prompt always yields the
// same text.
func reason(prompt string) (string, map[string]any) {
	h := fnv.New64a()
	_, _ = h.Write([]byte(prompt))
	seed := h.Sum64()
	rng := rand.New(rand.NewPCG(seed, seed>>1)) //nolint:gosec // deterministic fixture text

	stance := stances[rng.IntN(len(stances))]
	steps := 2 + rng.IntN(3)

	var b strings.Builder
	b.WriteString("analysis:")
	for i := range steps {
		fmt.Fprintf(&b, "\n- step %d: %s %s", i+1, verbs[rng.IntN(len(verbs))], nouns[rng.IntN(len(nouns))])
	}
	return b.String(), map[string]any{"stance": stance}
}
