package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/ashita-ai/prism/internal/engine"
	"github.com/ashita-ai/prism/internal/model"
)

// HandleEvaluate handles POST /v1/evaluate.
//
// The run executes on a context detached from the request so that a client
// disconnect cancels the outstanding models (via the abort signal) but the
// partial run is still synthesized and persisted.
func (h *Handlers) HandleEvaluate(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxRequestBodyBytes)
	var req model.EvaluateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, bodyErrorMessage(err))
		return
	}

	runCtx := context.WithoutCancel(r.Context())
	resp, err := h.engine.Evaluate(runCtx, req, engine.ContextAbort(r.Context()))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	if r.Context().Err() != nil {
		h.logger.Info("http: client left before evaluation finished",
			"request_id", RequestIDFromContext(r.Context()),
			"run_id", resp.RequestID,
			"status", resp.Status,
		)
		return
	}
	writeJSON(w, r, http.StatusOK, resp)
}

func bodyErrorMessage(err error) string {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit)
	}
	return "invalid request body: " + err.Error()
}
