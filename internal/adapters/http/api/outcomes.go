package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/okian/broutes/internal/adapters/repository"
)

// OutcomesHandler serves stored job outcomes.
type OutcomesHandler struct {
	deps Dependencies
}

// NewOutcomesHandler creates a new outcomes handler.
func NewOutcomesHandler(deps Dependencies) *OutcomesHandler {
	return &OutcomesHandler{deps: deps}
}

// HandleList handles GET /outcomes?status=&route=&limit=.
func (h *OutcomesHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := repository.Filter{Status: q.Get("status"), Route: q.Get("route")}
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid_limit", fmt.Errorf("%w: limit must be a non-negative integer", ErrBadRequest))
			return
		}
		f.Limit = n
	}

	outcomes, err := h.deps.Outcomes(r.Context(), f)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal", err)
		return
	}
	writeJSON(w, http.StatusOK, outcomes)
}

// HandleGet handles GET /outcomes/{job id}. Job ids may contain slashes.
func (h *OutcomesHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "*")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing_id", fmt.Errorf("%w: missing job id", ErrBadRequest))
		return
	}

	o, err := h.deps.Outcome(r.Context(), id)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", err)
	case err != nil:
		writeError(w, http.StatusInternalServerError, "internal", err)
	default:
		writeJSON(w, http.StatusOK, o)
	}
}
