package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/ashita-ai/prism/internal/model"
	"github.com/ashita-ai/prism/internal/registry"
	"github.com/ashita-ai/prism/internal/runstore"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestRequestIDMiddleware(t *testing.T) {
	var seen string
	handler := requestIDMiddleware(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		seen = RequestIDFromContext(r.Context())
	}))

	// Client value is reused.
	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	handler.ServeHTTP(rec, req)
	if seen != "abc-123" || rec.Header().Get("X-Request-ID") != "abc-123" {
		t.Errorf("client request id not reused: ctx=%q header=%q", seen, rec.Header().Get("X-Request-ID"))
	}

	// Oversized client value is replaced.
	rec = httptest.NewRecorder()
	req = httptest.NewRequest("GET", "/", nil)
	req.Header.Set("X-Request-ID", strings.Repeat("x", maxRequestIDLen+1))
	handler.ServeHTTP(rec, req)
	if len(seen) != 36 {
		t.Errorf("expected generated UUID, got %q", seen)
	}

	// Missing value is generated.
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))
	if seen == "" || rec.Header().Get("X-Request-ID") != seen {
		t.Errorf("generated id mismatch: ctx=%q header=%q", seen, rec.Header().Get("X-Request-ID"))
	}
}

func TestRecoveryMiddleware(t *testing.T) {
	handler := requestIDMiddleware(recoveryMiddleware(quietLogger(), http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	})))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("got status %d, want 500", rec.Code)
	}
	var body model.APIError
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Error.Code != model.ErrCodeInternalError {
		t.Errorf("got code %q, want %q", body.Error.Code, model.ErrCodeInternalError)
	}
	if strings.Contains(rec.Body.String(), "boom") {
		t.Error("panic value leaked into response body")
	}
	if body.Meta.RequestID == "" {
		t.Error("error envelope missing request id")
	}
}

func TestRecoveryMiddleware_AbortHandler(t *testing.T) {
	handler := recoveryMiddleware(quietLogger(), http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic(http.ErrAbortHandler)
	}))

	defer func() {
		if rec := recover(); rec != http.ErrAbortHandler {
			t.Errorf("expected ErrAbortHandler to propagate, got %v", rec)
		}
	}()
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/", nil))
}

func TestStatusWriterKeepsFirstStatus(t *testing.T) {
	rec := httptest.NewRecorder()
	sw := &statusWriter{ResponseWriter: rec, statusCode: http.StatusOK}

	sw.WriteHeader(http.StatusTeapot)
	sw.WriteHeader(http.StatusInternalServerError)
	if sw.statusCode != http.StatusTeapot {
		t.Errorf("got %d, want %d", sw.statusCode, http.StatusTeapot)
	}
	if sw.Unwrap() != rec {
		t.Error("Unwrap should return the underlying writer")
	}
	sw.Flush()
	if !rec.Flushed {
		t.Error("Flush should reach the underlying writer")
	}
}

func TestTracingMiddlewareRecordsRoute(t *testing.T) {
	var route string
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/runs/{run_id}", func(w http.ResponseWriter, r *http.Request) {
		route = r.Pattern
		w.WriteHeader(http.StatusNoContent)
	})
	handler := tracingMiddleware(newHTTPInstruments(), mux)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/v1/runs/abc", nil))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("got %d, want 204", rec.Code)
	}
	if route != "GET /v1/runs/{run_id}" {
		t.Errorf("got route %q", route)
	}
}

func TestWriteDomainError(t *testing.T) {
	h := &Handlers{logger: quietLogger()}

	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"invalid request", fmt.Errorf("%w: bad", model.ErrInvalidRequest), http.StatusBadRequest, model.ErrCodeInvalidInput},
		{"too many models", fmt.Errorf("%w: 9 requested", registry.ErrTooManyModels), http.StatusBadRequest, model.ErrCodeInvalidInput},
		{"no models", model.ErrNoModelsAvailable, http.StatusBadRequest, model.ErrCodeInvalidInput},
		{"unknown model", &registry.UnknownModelError{Missing: []string{"x:y"}}, http.StatusBadRequest, model.ErrCodeInvalidInput},
		{"not found", runstore.ErrNotFound, http.StatusNotFound, model.ErrCodeNotFound},
		{"internal", errors.New("disk on fire"), http.StatusInternalServerError, model.ErrCodeInternalError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.writeDomainError(rec, httptest.NewRequest("GET", "/", nil), tt.err)
			if rec.Code != tt.wantStatus {
				t.Errorf("got status %d, want %d", rec.Code, tt.wantStatus)
			}
			var body model.APIError
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if body.Error.Code != tt.wantCode {
				t.Errorf("got code %q, want %q", body.Error.Code, tt.wantCode)
			}
		})
	}

	// Internal errors never leak their text.
	rec := httptest.NewRecorder()
	h.writeDomainError(rec, httptest.NewRequest("GET", "/", nil), errors.New("disk on fire"))
	if strings.Contains(rec.Body.String(), "disk on fire") {
		t.Error("internal error text leaked into response")
	}
}

func TestBodyErrorMessage(t *testing.T) {
	if got := bodyErrorMessage(&http.MaxBytesError{Limit: 10}); got != "request body exceeds 10 bytes" {
		t.Errorf("got %q", got)
	}
	if got := bodyErrorMessage(errors.New("unexpected EOF")); got != "invalid request body: unexpected EOF" {
		t.Errorf("got %q", got)
	}
}
