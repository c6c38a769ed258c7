// Package provider defines the text-generation capability consumed by the
// evaluation engine and its concrete backends.
//
// Model identifiers are namespaced "<provider>:<model>", e.g. "mock:echo" or
// "openai:gpt-4o-mini". A provider only ever sees its own ids.
package provider

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/ashita-ai/prism/internal/model"
)

var tracer = otel.Tracer("prism/provider")

// Params are the generation parameters forwarded to a backend.
type Params struct {
	Temperature float64
	MaxTokens   int
}

// Provider is a text-generation backend.
//
// Generate must honor ctx. The engine may stop waiting on a call at any time
// and must be able to abandon it without the provider corrupting shared state.
// Backend failures may be reported either as a returned error or as a result
// with ErrorCode set; the latter lets the provider keep its raw I/O for the
// audit trail.
type Provider interface {
	Name() string
	ListModels(ctx context.Context) ([]model.ModelDescriptor, error)
	Generate(ctx context.Context, modelID, prompt string, p Params) (model.GenerationResult, error)
}

// Runtime describes how a provider is configured. It is recorded in the
// execution context of persisted runs.
type Runtime struct {
	BaseURL string
	Timeout time.Duration
	Retries int
}

// RuntimeReporter is implemented by providers with network configuration.
type RuntimeReporter interface {
	Runtime() Runtime
}

// ErrUnknownModel is returned by Generate for ids the provider does not serve.
var ErrUnknownModel = errors.New("provider: unknown model")

// SplitModelID splits "provider:model" into its parts. ok is false when the
// id carries no provider prefix.
func SplitModelID(id string) (providerName, modelName string, ok bool) {
	providerName, modelName, ok = strings.Cut(id, ":")
	if !ok || providerName == "" || modelName == "" {
		return "", id, false
	}
	return providerName, modelName, true
}

// QualifiedID joins a provider name and a bare model name.
func QualifiedID(providerName, modelName string) string {
	return providerName + ":" + modelName
}

func ptr[T any](v T) *T { return &v }

func sinceMs(start time.Time) *float64 {
	return ptr(float64(time.Since(start).Microseconds()) / 1000)
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// retryable is returned by attempt functions to request another try.
type retryable struct {
	code string
	err  error
}

func (e *retryable) Error() string { return fmt.Sprintf("%s: %v", e.code, e.err) }
func (e *retryable) Unwrap() error { return e.err }

// withRetry runs fn up to maxRetries+1 times. Between attempts it waits
// baseDelay*(attempt+1), plus a little jitter, unless ctx ends first. Only
// *retryable errors are retried; the last one is returned when attempts run out.
func withRetry(ctx context.Context, maxRetries int, baseDelay time.Duration, fn func() error) error {
	var err error
	for attempt := range maxRetries + 1 {
		err = fn()
		var r *retryable
		if err == nil || !errors.As(err, &r) {
			return err
		}
		if attempt == maxRetries || ctx.Err() != nil {
			break
		}
		delay := baseDelay * time.Duration(attempt+1)
		if baseDelay > 0 {
			delay += time.Duration(rand.Int64N(int64(baseDelay)/10 + 1)) //nolint:gosec // jitter doesn't need crypto-strength randomness
		}
		if serr := sleep(ctx, delay); serr != nil {
			break
		}
	}
	return err
}

// statusCode maps an HTTP status to the error code recorded on a failed result.
func statusCode(status int) string {
	if status == 401 || status == 403 {
		return "auth_error"
	}
	return fmt.Sprintf("http_%d", status)
}
