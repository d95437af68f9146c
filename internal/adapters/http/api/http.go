// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	repository "github.com/okian/dipscan/internal/adapters/repository"
	service "github.com/okian/dipscan/internal/app"
	"github.com/okian/dipscan/internal/domain/model"
)

// readyMessage is returned by GET /.
const readyMessage = "Dip discovery pipeline ready"

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	StageRunner
	CandidateDependencies
}

// Server wires HTTP routes for the pipeline API.
type Server struct {
	healthHandler     *HealthHandler
	statsHandler      *StatsHandler
	pipelineHandler   *PipelineHandler
	candidatesHandler *CandidatesHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider, maxLimit int) *Server {
	return &Server{
		healthHandler:     NewHealthHandler(),
		statsHandler:      NewStatsHandler(statsProvider),
		pipelineHandler:   NewPipelineHandler(deps),
		candidatesHandler: NewCandidatesHandler(deps, maxLimit),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	mux.HandleFunc("/healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("/stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))
	mux.HandleFunc("/candidates", MetricsMiddleware(s.candidatesHandler.HandleTopN, "candidates"))
	mux.HandleFunc("/candidates/", MetricsMiddleware(s.candidatesHandler.HandleCandidate, "candidate"))
	for _, route := range Routes {
		mux.HandleFunc(route.Path, MetricsMiddleware(s.pipelineHandler.Handle(route), route.Path))
	}
	mux.HandleFunc("/", MetricsMiddleware(handleRoot, "root"))
}

type messageResponse struct {
	Message string `json:"message"`
}

func handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" || r.Method != http.MethodGet {
		writeError(w, http.StatusNotFound, "not_found", NewKind("api.root", ErrUnknownRoute))
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: readyMessage})
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// statusFor maps domain errors to an HTTP status and error code.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, service.ErrBusy):
		return http.StatusConflict, "busy"
	case errors.Is(err, model.ErrModelNotTrained):
		return http.StatusPreconditionFailed, "model_not_trained"
	case errors.Is(err, model.ErrMissingInput):
		return http.StatusPreconditionFailed, "missing_input"
	case errors.Is(err, model.ErrSchemaMismatch):
		return http.StatusUnprocessableEntity, "schema_mismatch"
	case errors.Is(err, repository.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, ErrBadRequest), errors.Is(err, repository.ErrInvalidLimit):
		return http.StatusBadRequest, "bad_request"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

func writeFailure(w http.ResponseWriter, err error) {
	status, code := statusFor(err)
	writeError(w, status, code, err)
}
