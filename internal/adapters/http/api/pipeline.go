package api

import (
	"context"
	"net/http"

	service "github.com/okian/dipscan/internal/app"
)

// StageRunner runs pipeline stages in order.
type StageRunner interface {
	Run(ctx context.Context, stages ...service.Stage) ([]*service.StageResult, error)
}

// Route binds a POST endpoint to the stages it runs.
type Route struct {
	Path    string
	Message string
	Stages  []service.Stage
}

// Routes lists the pipeline trigger endpoints.
var Routes = []Route{ //nolint:gochecknoglobals // fixed route table
	{"/detect-dips", "Dips detected and saved.", []service.Stage{service.StageDetect}},
	{"/auto-label", "Auto-labeling complete.", []service.Stage{service.StageLabel}},
	{"/train-model", "Model trained and saved.", []service.Stage{service.StageTrain}},
	{"/predict", "New dips labeled with predictions.", []service.Stage{service.StagePredict}},
	{"/full-run", "Full pipeline complete.", service.FullRunStages},
	{"/crosscheck", "Catalog status resolved.", []service.Stage{service.StageCrosscheck}},
	{"/merge-metadata", "Stellar metadata merged.", []service.Stage{service.StageMerge}},
	{"/periodicity", "Periodicity flags computed.", []service.Stage{service.StagePeriodicity}},
	{"/estimate-radius", "Object radii estimated.", []service.Stage{service.StageRadius}},
	{"/score", "Discovery candidates scored.", []service.Stage{service.StageScore}},
	{"/discover", "Discovery pipeline complete.", service.DiscoverStages},
	{"/run", "Pipeline complete.", service.AllStages},
}

// PipelineHandler triggers stages.
type PipelineHandler struct {
	runner StageRunner
}

// NewPipelineHandler creates a new pipeline handler.
func NewPipelineHandler(runner StageRunner) *PipelineHandler {
	return &PipelineHandler{runner: runner}
}

type runResponse struct {
	Status  string                 `json:"status"`
	Results []*service.StageResult `json:"results"`
}

// Handle returns the handler for POST route.Path. Stages outlive the
// request, so a client disconnect does not abort a run midway.
func (h *PipelineHandler) Handle(route Route) http.HandlerFunc {
	op := "api.post" + route.Path
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.NotFound(w, r)
			return
		}
		results, err := h.runner.Run(context.WithoutCancel(r.Context()), route.Stages...)
		if err != nil {
			writeFailure(w, Wrap(op, err))
			return
		}
		writeJSON(w, http.StatusOK, runResponse{Status: route.Message, Results: results})
	}
}
