package model_test

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashita-ai/prism/internal/model"
)

func validRequest() model.EvaluateRequest {
	return model.EvaluateRequest{Prompt: "hello"}.WithDefaults()
}

func TestWithDefaults(t *testing.T) {
	r := model.EvaluateRequest{Prompt: "x"}.WithDefaults()
	assert.Equal(t, 0.0, r.Temperature)
	assert.Equal(t, model.DefaultMaxTokens, r.MaxTokens)
	assert.Equal(t, model.DefaultTimeoutS, r.TimeoutS)
	assert.Equal(t, model.StrategyLongestNonempty, r.SynthesisMethod)

	explicit := model.EvaluateRequest{MaxTokens: 10, TimeoutS: 3, SynthesisMethod: model.StrategyBestOfN}.WithDefaults()
	assert.Equal(t, 10, explicit.MaxTokens)
	assert.Equal(t, 3.0, explicit.TimeoutS)
	assert.Equal(t, model.StrategyBestOfN, explicit.SynthesisMethod)
}

func TestValidateParams(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*model.EvaluateRequest)
		errSub string
	}{
		{"defaults are valid", func(*model.EvaluateRequest) {}, ""},
		{"temperature too high", func(r *model.EvaluateRequest) { r.Temperature = 1.5 }, "temperature"},
		{"temperature negative", func(r *model.EvaluateRequest) { r.Temperature = -0.1 }, "temperature"},
		{"max tokens too large", func(r *model.EvaluateRequest) { r.MaxTokens = 5000 }, "max_tokens"},
		{"max tokens negative", func(r *model.EvaluateRequest) { r.MaxTokens = -1 }, "max_tokens"},
		{"timeout too small", func(r *model.EvaluateRequest) { r.TimeoutS = 0.5 }, "timeout_s"},
		{"timeout too large", func(r *model.EvaluateRequest) { r.TimeoutS = 121 }, "timeout_s"},
		{"temperature NaN", func(r *model.EvaluateRequest) { r.Temperature = math.NaN() }, "temperature"},
		{"temperature infinite", func(r *model.EvaluateRequest) { r.Temperature = math.Inf(1) }, "temperature"},
		{"timeout NaN", func(r *model.EvaluateRequest) { r.TimeoutS = math.NaN() }, "timeout_s"},
		{"timeout infinite", func(r *model.EvaluateRequest) { r.TimeoutS = math.Inf(-1) }, "timeout_s"},
		{"none is not selectable", func(r *model.EvaluateRequest) { r.SynthesisMethod = model.StrategyNone }, "synthesis_method"},
		{"unknown strategy", func(r *model.EvaluateRequest) { r.SynthesisMethod = "majority" }, "synthesis_method"},
		{"duplicate models", func(r *model.EvaluateRequest) { r.Models = []string{"a", "b", "a"} }, "more than once"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := validRequest()
			tt.mutate(&r)
			err := r.ValidateParams()
			if tt.errSub == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.ErrorIs(t, err, model.ErrInvalidRequest)
			assert.Contains(t, err.Error(), tt.errSub)
		})
	}
}

func TestClassifyRun(t *testing.T) {
	ok := model.ModelResult{OK: true}
	bad := model.ModelResult{OK: false}

	assert.Equal(t, model.RunStatusSuccess, model.ClassifyRun([]model.ModelResult{ok, ok}))
	assert.Equal(t, model.RunStatusPartial, model.ClassifyRun([]model.ModelResult{ok, bad}))
	assert.Equal(t, model.RunStatusFailed, model.ClassifyRun([]model.ModelResult{bad, bad}))
	assert.Equal(t, model.RunStatusFailed, model.ClassifyRun(nil))
}

func TestFailedStatusMapping(t *testing.T) {
	timeout := model.Failed("m", "p", model.ErrorKindTimeout, "timeout after 1s", nil)
	assert.Equal(t, model.ResultStatusTimeout, timeout.Status)
	assert.False(t, timeout.OK)

	unavailable := model.Failed("m", "p", model.ErrorKindUnavailable, "no key", nil)
	assert.Equal(t, model.ResultStatusError, unavailable.Status)
	assert.Nil(t, unavailable.Text)

	cancelled := model.Cancelled("m", "p", model.CancelReasonRunTimeout)
	require.NotNil(t, cancelled.CancelReason)
	assert.Equal(t, model.CancelReasonRunTimeout, *cancelled.CancelReason)
	assert.Equal(t, model.CancelReasonRunTimeout, *cancelled.ErrorMessage)
	assert.Equal(t, model.ErrorKindCancelled, *cancelled.ErrorKind)
}

func TestModelsFieldNullVersusEmpty(t *testing.T) {
	var omitted, empty model.EvaluateRequest
	require.NoError(t, json.Unmarshal([]byte(`{"prompt":"p"}`), &omitted))
	require.NoError(t, json.Unmarshal([]byte(`{"prompt":"p","models":[]}`), &empty))

	assert.Nil(t, omitted.Models)
	assert.NotNil(t, empty.Models)
	assert.Empty(t, empty.Models)
}
