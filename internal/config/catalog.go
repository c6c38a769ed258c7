package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Catalog declares which provider backends are registered and which models
// each one advertises. It is assembled from the environment and, when
// PRISM_PROVIDERS_FILE is set, a YAML file such as:
//
//	openai:
//	  models: [gpt-4o-mini, gpt-4o]
//	anthropic:
//	  models: [claude-3-5-haiku-latest]
//	ollama:
//	  - name: ollama-gpu
//	    url: http://gpu-box:11434
//	    models: [llama3.2, qwen2.5]
//	disabled:
//	  - name: gemini
//	    models: [disabled]
//	    reason: Gemini provider disabled
type Catalog struct {
	OpenAI    HostedEntry      `yaml:"openai"`
	Anthropic HostedEntry      `yaml:"anthropic"`
	Ollama    []OllamaEndpoint `yaml:"ollama"`
	Disabled  []DisabledEntry  `yaml:"disabled"`
}

// HostedEntry lists the models of a hosted API. Empty fields fall back to
// the environment and then to the provider's defaults.
type HostedEntry struct {
	BaseURL string   `yaml:"base_url"`
	Models  []string `yaml:"models"`
}

// OllamaEndpoint is one Ollama server. Name becomes the model id prefix.
type OllamaEndpoint struct {
	Name    string        `yaml:"name"`
	URL     string        `yaml:"url"`
	Models  []string      `yaml:"models"`
	Timeout time.Duration `yaml:"timeout"`
}

// DisabledEntry advertises a backend whose models are always unavailable.
type DisabledEntry struct {
	Name   string   `yaml:"name"`
	Models []string `yaml:"models"`
	Reason string   `yaml:"reason"`
}

// DefaultDisabled is listed when no catalog file declares disabled backends.
var DefaultDisabled = []DisabledEntry{
	{Name: "gemini", Models: []string{"disabled"}, Reason: "Gemini provider disabled"},
}

// LoadCatalog parses a YAML catalog file. Unknown keys are rejected so a
// misspelled section does not silently drop a backend.
func LoadCatalog(path string) (Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Catalog{}, fmt.Errorf("config: read catalog %s: %w", path, err)
	}
	return parseCatalog(data, path)
}

func parseCatalog(data []byte, path string) (Catalog, error) {
	var cat Catalog
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cat); err != nil && !errors.Is(err, io.EOF) {
		return Catalog{}, fmt.Errorf("config: parse catalog %s: %w", path, err)
	}
	if err := cat.validate(); err != nil {
		return Catalog{}, fmt.Errorf("config: catalog %s: %w", path, err)
	}
	return cat, nil
}

func (c Catalog) validate() error {
	var errs []error
	seen := map[string]bool{"mock": true, "openai": true, "anthropic": true}
	claim := func(kind, name string) {
		if name == "" {
			errs = append(errs, fmt.Errorf("%s entry needs a name", kind))
			return
		}
		if seen[name] {
			errs = append(errs, fmt.Errorf("provider name %q is used more than once", name))
		}
		seen[name] = true
	}
	for _, e := range c.Ollama {
		claim("ollama", e.Name)
		if len(e.Models) == 0 {
			errs = append(errs, fmt.Errorf("ollama endpoint %q lists no models", e.Name))
		}
	}
	for _, d := range c.Disabled {
		claim("disabled", d.Name)
	}
	return errors.Join(errs...)
}

// Catalog merges the environment with the optional catalog file. Explicit
// environment values win over the file for the hosted APIs; OLLAMA_URL adds
// an endpoint named "ollama" ahead of the file's endpoints.
func (c Config) Catalog() (Catalog, error) {
	var cat Catalog
	if c.ProvidersFile != "" {
		var err error
		if cat, err = LoadCatalog(c.ProvidersFile); err != nil {
			return Catalog{}, err
		}
	}
	if c.OpenAIBaseURL != "" {
		cat.OpenAI.BaseURL = c.OpenAIBaseURL
	}
	if len(c.OpenAIModels) > 0 {
		cat.OpenAI.Models = c.OpenAIModels
	}
	if len(c.AnthropicModels) > 0 {
		cat.Anthropic.Models = c.AnthropicModels
	}
	if c.OllamaURL != "" {
		env := OllamaEndpoint{Name: "ollama", URL: c.OllamaURL, Models: c.OllamaModels}
		kept := make([]OllamaEndpoint, 0, len(cat.Ollama)+1)
		kept = append(kept, env)
		for _, e := range cat.Ollama {
			if e.Name != env.Name {
				kept = append(kept, e)
			}
		}
		cat.Ollama = kept
	}
	if c.ProvidersFile == "" {
		cat.Disabled = DefaultDisabled
	}
	return cat, nil
}
