package prism

import "time"

// ModelInfo describes one model served by an extension Provider. ID is the
// bare model name; PRISM exposes it as "<provider>:<id>".
type ModelInfo struct {
	ID          string
	Available   bool
	Reason      string // Why the model is unavailable. Ignored when Available.
	Description string
}

// GenerateParams are the sampling parameters forwarded to a Provider.
type GenerateParams struct {
	Temperature float64
	MaxTokens   int
}

// Generation is a successful Provider response.
type Generation struct {
	Text  string
	Usage map[string]any
	Meta  map[string]any
}

// RunSummary is the public view of a completed evaluation run, delivered to
// RunHook implementations.
type RunSummary struct {
	RunID     string
	RunHash   string
	CreatedAt time.Time
	Status    string // "success", "partial" or "failed".
	Models    []string
}
