// Package canonical produces the deterministic form and SHA-256 hash of an
// evaluation request. All functions are pure.
//
// Two requests that differ only in model order or in prompt padding hash
// identically. Any change to prompt content, parameters, or the model set
// changes the hash.
package canonical

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
)

// Input is the subset of a request that identifies a run.
type Input struct {
	Prompt          string
	Models          []string
	Temperature     float64
	MaxTokens       int
	TimeoutS        float64
	SynthesisMethod string
}

// Params is the fixed parameter block of the canonical form.
// Fields are declared in lexicographic key order so encoding/json emits
// sorted keys.
type Params struct {
	MaxTokens       int     `json:"max_tokens"`
	SynthesisMethod string  `json:"synthesis_method"`
	Temperature     float64 `json:"temperature"`
	TimeoutS        float64 `json:"timeout_s"`
}

// Form is the canonical representation of a request. Keys are in
// lexicographic order.
type Form struct {
	Models []string `json:"models"`
	Params Params   `json:"params"`
	Prompt string   `json:"prompt"`
}

// Canonicalize returns the canonical form, its compact serialization, and the
// hex SHA-256 digest of that serialization.
func Canonicalize(in Input) (Form, []byte, string, error) {
	models := slices.Clone(in.Models)
	if models == nil {
		models = []string{}
	}
	slices.Sort(models)

	form := Form{
		Models: models,
		Params: Params{
			MaxTokens:       in.MaxTokens,
			SynthesisMethod: in.SynthesisMethod,
			Temperature:     in.Temperature,
			TimeoutS:        in.TimeoutS,
		},
		Prompt: strings.TrimSpace(in.Prompt),
	}

	data, err := marshal(form)
	if err != nil {
		return Form{}, nil, "", err
	}
	return form, data, Hash(data), nil
}

// Hash returns the hex SHA-256 digest of data.
func Hash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Verify reports whether stored canonical bytes still hash to want. The bytes
// may have been re-indented by a JSON encoder since they were hashed; they
// are compacted before hashing.
func Verify(stored []byte, want string) bool {
	var buf bytes.Buffer
	if err := json.Compact(&buf, stored); err != nil {
		return false
	}
	return Hash(buf.Bytes()) == want
}

// marshal encodes without HTML escaping and without the trailing newline
// that json.Encoder appends.
func marshal(f Form) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(f); err != nil {
		return nil, fmt.Errorf("canonical: marshal: %w", err)
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
