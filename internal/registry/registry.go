// Package registry maps namespaced model ids to the providers that serve them.
package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/ashita-ai/prism/internal/model"
	"github.com/ashita-ai/prism/internal/provider"
)

// DefaultMaxModels bounds how many models a single request may name.
const DefaultMaxModels = 6

// DefaultCatalogTTL is how long a merged catalog is reused.
const DefaultCatalogTTL = 30 * time.Second

const catalogKey = "catalog"

var (
	// ErrUnknownModel is wrapped by UnknownModelError.
	ErrUnknownModel = errors.New("unknown model")

	// ErrTooManyModels is returned when a request names more than MaxModels ids.
	ErrTooManyModels = errors.New("too many models")
)

// UnknownModelError lists the requested ids that no provider serves.
type UnknownModelError struct {
	Missing   []string
	Available []string
}

func (e *UnknownModelError) Error() string {
	return fmt.Sprintf("unknown models: %s; available: %s",
		strings.Join(e.Missing, ", "), strings.Join(e.Available, ", "))
}

func (e *UnknownModelError) Unwrap() error { return ErrUnknownModel }

// Registry holds the configured providers and a cached merged catalog.
// It is safe for concurrent use once constructed.
type Registry struct {
	providers []provider.Provider
	byName    map[string]provider.Provider
	maxModels int
	catalog   *cache.Cache
	logger    *slog.Logger
}

// Option configures a Registry.
type Option func(*Registry)

// WithProvider registers p. Providers are listed in registration order; a
// later provider with the same name replaces the earlier one.
func WithProvider(p provider.Provider) Option {
	return func(r *Registry) {
		if _, ok := r.byName[p.Name()]; ok {
			for i, existing := range r.providers {
				if existing.Name() == p.Name() {
					r.providers[i] = p
				}
			}
		} else {
			r.providers = append(r.providers, p)
		}
		r.byName[p.Name()] = p
	}
}

// WithMaxModels overrides DefaultMaxModels.
func WithMaxModels(n int) Option {
	return func(r *Registry) {
		if n > 0 {
			r.maxModels = n
		}
	}
}

// WithCatalogTTL sets how long ListModels results are cached. Zero disables
// caching.
func WithCatalogTTL(ttl time.Duration) Option {
	return func(r *Registry) {
		if ttl <= 0 {
			r.catalog = nil
			return
		}
		r.catalog = cache.New(ttl, 2*ttl)
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Registry) { r.logger = l }
}

// New constructs a registry.
func New(opts ...Option) *Registry {
	r := &Registry{
		byName:    make(map[string]provider.Provider),
		maxModels: DefaultMaxModels,
		catalog:   cache.New(DefaultCatalogTTL, 2*DefaultCatalogTTL),
		logger:    slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// MaxModels returns the per-request model limit.
func (r *Registry) MaxModels() int { return r.maxModels }

// Provider returns the provider registered under name.
func (r *Registry) Provider(name string) (provider.Provider, bool) {
	p, ok := r.byName[name]
	return p, ok
}

// Providers returns the registered providers in registration order.
func (r *Registry) Providers() []provider.Provider {
	out := make([]provider.Provider, len(r.providers))
	copy(out, r.providers)
	return out
}

// Invalidate drops the cached catalog.
func (r *Registry) Invalidate() {
	if r.catalog != nil {
		r.catalog.Flush()
	}
}

// ListModels merges every provider's catalog in registration order. A
// provider whose listing fails is logged and skipped.
func (r *Registry) ListModels(ctx context.Context) ([]model.ModelDescriptor, error) {
	if r.catalog != nil {
		if v, ok := r.catalog.Get(catalogKey); ok {
			return cloneDescriptors(v.([]model.ModelDescriptor)), nil
		}
	}
	var out []model.ModelDescriptor
	for _, p := range r.providers {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		models, err := p.ListModels(ctx)
		if err != nil {
			r.logger.Warn("registry: list models failed", "provider", p.Name(), "error", err)
			continue
		}
		out = append(out, models...)
	}
	if out == nil {
		out = []model.ModelDescriptor{}
	}
	if r.catalog != nil {
		r.catalog.SetDefault(catalogKey, cloneDescriptors(out))
	}
	return out, nil
}

// Resolve turns a request's model list into descriptors. A nil list selects
// every available model; an explicit list is returned in order with
// unavailable entries kept so the engine can report them.
func (r *Registry) Resolve(ctx context.Context, requested []string) ([]model.ModelDescriptor, error) {
	catalog, err := r.ListModels(ctx)
	if err != nil {
		return nil, fmt.Errorf("registry: list models: %w", err)
	}

	if requested == nil {
		out := make([]model.ModelDescriptor, 0, len(catalog))
		for _, d := range catalog {
			if d.Available {
				out = append(out, d)
			}
		}
		if len(out) > r.maxModels {
			return nil, fmt.Errorf("%w: %d models available by default, limit is %d; select models explicitly",
				ErrTooManyModels, len(out), r.maxModels)
		}
		return out, nil
	}

	if len(requested) > r.maxModels {
		return nil, fmt.Errorf("%w: %d requested, limit is %d", ErrTooManyModels, len(requested), r.maxModels)
	}
	seen := make(map[string]bool, len(requested))
	for _, id := range requested {
		if seen[id] {
			return nil, fmt.Errorf("%w: duplicate model %q", model.ErrInvalidRequest, id)
		}
		seen[id] = true
	}

	index := make(map[string]model.ModelDescriptor, len(catalog))
	available := make([]string, 0, len(catalog))
	for _, d := range catalog {
		index[d.ID] = d
		if d.Available {
			available = append(available, d.ID)
		}
	}
	out := make([]model.ModelDescriptor, 0, len(requested))
	var missing []string
	for _, id := range requested {
		d, ok := index[id]
		if !ok {
			missing = append(missing, id)
			continue
		}
		out = append(out, d)
	}
	if len(missing) > 0 {
		return nil, &UnknownModelError{Missing: missing, Available: available}
	}
	return out, nil
}

func cloneDescriptors(in []model.ModelDescriptor) []model.ModelDescriptor {
	out := make([]model.ModelDescriptor, len(in))
	copy(out, in)
	return out
}
