package provider

import (
	"context"

	"github.com/ashita-ai/prism/internal/model"
)

// Disabled advertises a provider's models as unavailable. It stands in for
// a backend that was configured off so clients still see why its models
// cannot be selected.
type Disabled struct {
	name   string
	models []string
	reason string
}

// NewDisabled creates a placeholder for the named provider.
func NewDisabled(name string, models []string, reason string) *Disabled {
	return &Disabled{name: name, models: models, reason: reason}
}

// Name implements Provider.
func (d *Disabled) Name() string { return d.name }

// ListModels implements Provider.
func (d *Disabled) ListModels(_ context.Context) ([]model.ModelDescriptor, error) {
	out := make([]model.ModelDescriptor, 0, len(d.models))
	for _, m := range d.models {
		out = append(out, model.ModelDescriptor{
			ID:       QualifiedID(d.name, m),
			Provider: d.name,
			Reason:   ptr(d.reason),
		})
	}
	return out, nil
}

// Generate implements Provider.
func (d *Disabled) Generate(_ context.Context, _, _ string, _ Params) (model.GenerationResult, error) {
	return model.GenerationResult{ErrorCode: "provider_disabled", ErrorMessage: d.reason}, nil
}
