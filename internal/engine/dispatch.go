package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/ashita-ai/prism/internal/model"
	"github.com/ashita-ai/prism/internal/provider"
)

// dispatch runs one unit per model and waits for all of them. Each unit
// writes only its own slot, so results keep request order.
//
// The run context is cancelled by whichever comes first: the run deadline,
// the abort signal, or the parent context. Units still running at that point
// resolve to cancelled outcomes.
func (e *Engine) dispatch(
	ctx context.Context,
	models []model.ModelDescriptor,
	prompt string,
	params model.EvaluateParams,
	abort AbortSignal,
) ([]model.ModelResult, []model.RawGeneration) {
	runCtx, cancelDeadline := context.WithTimeoutCause(ctx, e.cfg.RunTimeout, errRunTimeout)
	defer cancelDeadline()
	runCtx, cancelRun := context.WithCancelCause(runCtx)
	defer cancelRun(nil)

	done := make(chan struct{})
	defer close(done)
	if abort != nil {
		go watchAbort(abort, e.cfg.PollInterval, done, cancelRun)
	}

	results := make([]model.ModelResult, len(models))
	raws := make([]model.RawGeneration, len(models))
	timeout := time.Duration(params.TimeoutS * float64(time.Second))
	gp := provider.Params{Temperature: params.Temperature, MaxTokens: params.MaxTokens}

	var g errgroup.Group
	for i, d := range models {
		g.Go(func() error {
			results[i], raws[i] = e.runUnit(runCtx, d, prompt, gp, timeout)
			return nil
		})
	}
	_ = g.Wait()
	return results, raws
}

// runUnit produces the single terminal outcome for one model.
func (e *Engine) runUnit(
	runCtx context.Context,
	d model.ModelDescriptor,
	prompt string,
	params provider.Params,
	timeout time.Duration,
) (model.ModelResult, model.RawGeneration) {
	ctx, span := tracer.Start(runCtx, "engine.generate",
		trace.WithAttributes(
			attribute.String("prism.model_id", d.ID),
			attribute.String("prism.provider", d.Provider),
		),
	)
	defer span.End()

	start := time.Now()
	var (
		res model.ModelResult
		gen model.GenerationResult
	)
	switch p, ok := e.registry.Provider(d.Provider); {
	case !d.Available:
		reason := "Model unavailable"
		if d.Reason != nil && *d.Reason != "" {
			reason = *d.Reason
		}
		res = model.Failed(d.ID, d.Provider, model.ErrorKindUnavailable, reason, nil)
	case !ok:
		res = model.Failed(d.ID, d.Provider, model.ErrorKindProviderError,
			fmt.Sprintf("provider %s not registered", d.Provider), nil)
	default:
		gen, res = call(ctx, runCtx, p, d, prompt, params, timeout)
	}
	latency := float64(time.Since(start).Microseconds()) / 1000
	res.LatencyMs = &latency

	e.generations.Add(ctx, 1, metric.WithAttributes(
		attribute.String("provider", d.Provider),
		attribute.String("status", string(res.Status)),
	))
	e.generationDuration.Record(ctx, latency, metric.WithAttributes(attribute.String("provider", d.Provider)))

	raw := model.RawGeneration{
		ModelID:     d.ID,
		Provider:    d.Provider,
		RawRequest:  gen.RawRequest,
		RawResponse: gen.RawResponse,
	}
	if !res.OK {
		code := string(*res.ErrorKind)
		if gen.ErrorCode != "" {
			code = gen.ErrorCode
		}
		raw.ErrorCode = &code
		raw.ErrorMessage = res.ErrorMessage
		span.SetStatus(codes.Error, code)
		e.logger.Debug("engine: model failed", "model", d.ID, "error_code", code, "error", *res.ErrorMessage)
	}
	return res, raw
}

type reply struct {
	gen model.GenerationResult
	err error
}

// call invokes the provider under the per-model timeout. The provider runs
// in its own goroutine so a backend that ignores ctx cannot hold the unit
// past its deadline; its late reply lands in a buffered channel and is dropped.
func call(
	ctx, runCtx context.Context,
	p provider.Provider,
	d model.ModelDescriptor,
	prompt string,
	params provider.Params,
	timeout time.Duration,
) (model.GenerationResult, model.ModelResult) {
	unitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ch := make(chan reply, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- reply{err: fmt.Errorf("provider panic: %v", r)}
			}
		}()
		gen, err := p.Generate(unitCtx, d.ID, prompt, params)
		ch <- reply{gen: gen, err: err}
	}()

	var rep reply
	select {
	case rep = <-ch:
	case <-unitCtx.Done():
		rep.err = unitCtx.Err()
	}

	switch {
	case rep.err == nil && rep.gen.ErrorCode == "":
		// A success must carry text; a nil reply is a broken backend.
		if rep.gen.Text == nil {
			return rep.gen, model.Failed(d.ID, d.Provider, model.ErrorKindProviderError, "empty response", nil)
		}
		return rep.gen, model.Succeeded(d.ID, d.Provider, rep.gen, 0)
	case runCtx.Err() != nil:
		return model.GenerationResult{}, model.Cancelled(d.ID, d.Provider, cancelReason(runCtx))
	case errors.Is(unitCtx.Err(), context.DeadlineExceeded):
		return model.GenerationResult{}, model.Failed(d.ID, d.Provider, model.ErrorKindTimeout,
			fmt.Sprintf("timeout after %gs", timeout.Seconds()), nil)
	case rep.err != nil:
		return rep.gen, model.Failed(d.ID, d.Provider, model.ErrorKindProviderError, rep.err.Error(), nil)
	default:
		msg := rep.gen.ErrorMessage
		if msg == "" {
			msg = rep.gen.ErrorCode
		}
		res := model.Failed(d.ID, d.Provider, model.ErrorKindProviderError, msg, nil)
		res.Usage = rep.gen.Usage
		res.Meta = map[string]any{"provider_error_code": rep.gen.ErrorCode}
		return rep.gen, res
	}
}

// cancelReason maps the cause of the run context's cancellation to the
// reason recorded on cancelled outcomes.
func cancelReason(runCtx context.Context) string {
	cause := context.Cause(runCtx)
	if errors.Is(cause, errRunTimeout) || errors.Is(cause, context.DeadlineExceeded) {
		return model.CancelReasonRunTimeout
	}
	return model.CancelReasonClientDisconnected
}
