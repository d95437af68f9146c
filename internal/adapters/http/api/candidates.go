package api

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	repository "github.com/okian/dipscan/internal/adapters/repository"
	service "github.com/okian/dipscan/internal/app"
)

const defaultCandidateLimit = 10

// CandidateDependencies defines the interface for candidate reads.
type CandidateDependencies interface {
	TopN(ctx context.Context, n int) ([]repository.Entry, error)
	Candidate(ctx context.Context, targetID string) (service.CandidateDetail, error)
}

// CandidatesHandler serves the ranked discovery candidates.
type CandidatesHandler struct {
	deps     CandidateDependencies
	maxLimit int
}

// NewCandidatesHandler creates a new candidates handler.
func NewCandidatesHandler(deps CandidateDependencies, maxLimit int) *CandidatesHandler {
	return &CandidatesHandler{
		deps:     deps,
		maxLimit: maxLimit,
	}
}

// HandleTopN handles GET /candidates?limit=N requests.
func (h *CandidatesHandler) HandleTopN(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_candidates"
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	n := defaultCandidateLimit
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		var err error
		n, err = strconv.Atoi(limitStr)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "bad_request", NewKind(op, ErrBadRequest))
			return
		}
	}
	if n > h.maxLimit {
		writeError(w, http.StatusBadRequest, "limit_exceeded", NewKind(op, ErrBadRequest))
		return
	}
	entries, err := h.deps.TopN(r.Context(), n)
	if err != nil {
		writeFailure(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

// HandleCandidate handles GET /candidates/{target_id} requests.
func (h *CandidatesHandler) HandleCandidate(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_candidate"
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	id := strings.TrimSpace(strings.TrimPrefix(r.URL.Path, "/candidates/"))
	if id == "" || strings.Contains(id, "/") {
		writeError(w, http.StatusBadRequest, "bad_request", NewKind(op, ErrBadRequest))
		return
	}
	detail, err := h.deps.Candidate(r.Context(), id)
	if err != nil {
		writeFailure(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, detail)
}
