package canonical

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func baseInput() Input {
	return Input{
		Prompt:          "List two benefits of testing.",
		Models:          []string{"mock:echo", "mock:reasoner"},
		Temperature:     0,
		MaxTokens:       512,
		TimeoutS:        15,
		SynthesisMethod: "longest_nonempty",
	}
}

func mustHash(t *testing.T, in Input) string {
	t.Helper()
	_, _, h, err := Canonicalize(in)
	require.NoError(t, err)
	return h
}

func TestCanonicalize_Deterministic(t *testing.T) {
	h1 := mustHash(t, baseInput())
	h2 := mustHash(t, baseInput())
	assert.Equal(t, h1, h2)
	assert.Len(t, h1, 64)
}

func TestCanonicalize_SortedCompactKeys(t *testing.T) {
	_, data, _, err := Canonicalize(baseInput())
	require.NoError(t, err)
	assert.Equal(t,
		`{"models":["mock:echo","mock:reasoner"],"params":{"max_tokens":512,"synthesis_method":"longest_nonempty","temperature":0,"timeout_s":15},"prompt":"List two benefits of testing."}`,
		string(data))
}

func TestCanonicalize_InvariantUnderModelOrderAndPadding(t *testing.T) {
	want := mustHash(t, baseInput())

	reordered := baseInput()
	reordered.Models = []string{"mock:reasoner", "mock:echo"}
	assert.Equal(t, want, mustHash(t, reordered), "model order must not change the hash")

	padded := baseInput()
	padded.Prompt = "  \n" + padded.Prompt + "\t "
	assert.Equal(t, want, mustHash(t, padded), "prompt padding must not change the hash")
}

func TestCanonicalize_DoesNotMutateInput(t *testing.T) {
	in := baseInput()
	in.Models = []string{"z", "a"}
	_, _, _, err := Canonicalize(in)
	require.NoError(t, err)
	assert.Equal(t, []string{"z", "a"}, in.Models)
}

func TestCanonicalize_SensitiveToContent(t *testing.T) {
	want := mustHash(t, baseInput())

	mutations := map[string]func(*Input){
		"prompt":      func(in *Input) { in.Prompt = "List three benefits of testing." },
		"temperature": func(in *Input) { in.Temperature = 0.5 },
		"max tokens":  func(in *Input) { in.MaxTokens = 256 },
		"timeout":     func(in *Input) { in.TimeoutS = 20 },
		"strategy":    func(in *Input) { in.SynthesisMethod = "best_of_n" },
		"model set":   func(in *Input) { in.Models = []string{"mock:echo"} },
		"model added": func(in *Input) { in.Models = append(in.Models, "mock:pseudo") },
	}
	for name, mutate := range mutations {
		t.Run(name, func(t *testing.T) {
			in := baseInput()
			in.Models = append([]string(nil), in.Models...)
			mutate(&in)
			assert.NotEqual(t, want, mustHash(t, in))
		})
	}
}

func TestCanonicalize_NilModels(t *testing.T) {
	in := baseInput()
	in.Models = nil
	form, data, _, err := Canonicalize(in)
	require.NoError(t, err)
	assert.NotNil(t, form.Models)
	assert.Contains(t, string(data), `"models":[]`)
}

func TestVerify_SurvivesReindent(t *testing.T) {
	_, data, hash, err := Canonicalize(baseInput())
	require.NoError(t, err)

	wrapped, err := json.MarshalIndent(map[string]json.RawMessage{"canonical_request": data}, "", "  ")
	require.NoError(t, err)

	var back map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(wrapped, &back))

	assert.True(t, Verify(back["canonical_request"], hash))
	assert.False(t, Verify(back["canonical_request"], Hash([]byte("other"))))
	assert.False(t, Verify([]byte("{not json"), hash))
}
