package server

import (
	"net/http"
	"strconv"

	"github.com/ashita-ai/prism/internal/model"
	"github.com/ashita-ai/prism/internal/runstore"
)

// HandleListRuns handles GET /v1/runs?limit=&status=&hash=.
func (h *Handlers) HandleListRuns(w http.ResponseWriter, r *http.Request) {
	if h.runs == nil {
		writeJSON(w, r, http.StatusOK, model.RunsResponse{Runs: []model.RunSummary{}})
		return
	}
	filter, err := parseListFilter(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, err.Error())
		return
	}
	runs, err := h.runs.List(r.Context(), filter)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	if runs == nil {
		runs = []model.RunSummary{}
	}
	writeJSON(w, r, http.StatusOK, model.RunsResponse{Runs: runs, Limit: effectiveLimit(filter.Limit)})
}

// HandleGetRun handles GET /v1/runs/{run_id}.
func (h *Handlers) HandleGetRun(w http.ResponseWriter, r *http.Request) {
	runID := r.PathValue("run_id")
	if !runstore.ValidRunID(runID) {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "invalid run_id: "+strconv.Quote(runID))
		return
	}
	if h.runs == nil {
		h.writeDomainError(w, r, runstore.ErrNotFound)
		return
	}
	doc, err := h.runs.Get(r.Context(), runID)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, doc)
}

func parseListFilter(r *http.Request) (runstore.ListFilter, error) {
	q := r.URL.Query()
	var f runstore.ListFilter
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return f, errInvalidParam("limit", v)
		}
		f.Limit = n
	}
	if v := q.Get("status"); v != "" {
		s := model.RunStatus(v)
		if !s.Valid() {
			return f, errInvalidParam("status", v)
		}
		f.Status = s
	}
	f.Hash = q.Get("hash")
	return f, nil
}

func effectiveLimit(n int) int {
	switch {
	case n <= 0:
		return runstore.DefaultListLimit
	case n > runstore.MaxListLimit:
		return runstore.MaxListLimit
	}
	return n
}

type invalidParamError struct{ name, value string }

func (e invalidParamError) Error() string {
	return "invalid " + e.name + ": " + strconv.Quote(e.value)
}

func errInvalidParam(name, value string) error { return invalidParamError{name: name, value: value} }
