package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/okian/dipscan/internal/adapters/http/api"
	repository "github.com/okian/dipscan/internal/adapters/repository"
	service "github.com/okian/dipscan/internal/app"
	"github.com/okian/dipscan/internal/domain/model"
	"github.com/okian/dipscan/internal/domain/scoring"
	. "github.com/smartystreets/goconvey/convey"
)

// Mock implementations for testing
type mockPipeline struct {
	runErr  error
	runCtxs []error
	ran     [][]service.Stage
	entries []repository.Entry
	topErr  error
	details map[string]service.CandidateDetail
}

func (m *mockPipeline) Run(ctx context.Context, stages ...service.Stage) ([]*service.StageResult, error) {
	m.ran = append(m.ran, stages)
	m.runCtxs = append(m.runCtxs, ctx.Err())
	if m.runErr != nil {
		return nil, m.runErr
	}
	out := make([]*service.StageResult, len(stages))
	for i, s := range stages {
		out[i] = &service.StageResult{Stage: s, Outputs: []string{string(s) + ".csv"}}
	}
	return out, nil
}

func (m *mockPipeline) TopN(_ context.Context, n int) ([]repository.Entry, error) {
	if m.topErr != nil {
		return nil, m.topErr
	}
	if n > len(m.entries) {
		return m.entries, nil
	}
	return m.entries[:n], nil
}

func (m *mockPipeline) Candidate(_ context.Context, targetID string) (service.CandidateDetail, error) {
	d, ok := m.details[targetID]
	if !ok {
		return service.CandidateDetail{}, repository.ErrNotFound
	}
	return d, nil
}

type mockStatsProvider struct {
	stats map[string]interface{}
}

func (m *mockStatsProvider) GetStats() map[string]interface{} {
	return m.stats
}

func newMux(deps *mockPipeline) *http.ServeMux {
	server := api.NewServer(deps, &mockStatsProvider{stats: map[string]interface{}{"running": false}}, 50)
	mux := http.NewServeMux()
	server.Register(context.Background(), mux)
	return mux
}

func do(mux *http.ServeMux, method, target string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(""))
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	return w
}

func TestServer_Register(t *testing.T) {
	Convey("Given a registered API server", t, func() {
		deps := &mockPipeline{}
		mux := newMux(deps)

		Convey("When requesting the root", func() {
			w := do(mux, http.MethodGet, "/")

			Convey("Then it reports the pipeline as ready", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(w.Body.String(), ShouldContainSubstring, "ready")
			})
		})

		Convey("When requesting an unknown path", func() {
			So(do(mux, http.MethodGet, "/unknown").Code, ShouldEqual, http.StatusNotFound)
		})

		Convey("When requesting health and stats", func() {
			So(do(mux, http.MethodGet, "/healthz").Code, ShouldEqual, http.StatusOK)
			w := do(mux, http.MethodGet, "/stats")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldContainSubstring, "running")
		})

		Convey("When a stage endpoint is called with GET", func() {
			So(do(mux, http.MethodGet, "/detect-dips").Code, ShouldEqual, http.StatusNotFound)
			So(deps.ran, ShouldBeEmpty)
		})
	})
}

func TestPipelineRoutes(t *testing.T) {
	Convey("Given the pipeline routes", t, func() {
		cases := []struct {
			path   string
			stages []service.Stage
		}{
			{"/detect-dips", []service.Stage{service.StageDetect}},
			{"/auto-label", []service.Stage{service.StageLabel}},
			{"/train-model", []service.Stage{service.StageTrain}},
			{"/predict", []service.Stage{service.StagePredict}},
			{"/full-run", service.FullRunStages},
			{"/crosscheck", []service.Stage{service.StageCrosscheck}},
			{"/merge-metadata", []service.Stage{service.StageMerge}},
			{"/periodicity", []service.Stage{service.StagePeriodicity}},
			{"/estimate-radius", []service.Stage{service.StageRadius}},
			{"/score", []service.Stage{service.StageScore}},
			{"/discover", service.DiscoverStages},
			{"/run", service.AllStages},
		}

		for _, tc := range cases {
			Convey("When posting to "+tc.path, func() {
				deps := &mockPipeline{}
				w := do(newMux(deps), http.MethodPost, tc.path)

				Convey("Then the mapped stages run in order", func() {
					So(w.Code, ShouldEqual, http.StatusOK)
					So(deps.ran, ShouldHaveLength, 1)
					So(deps.ran[0], ShouldResemble, tc.stages)

					var body struct {
						Status  string                 `json:"status"`
						Results []*service.StageResult `json:"results"`
					}
					So(json.Unmarshal(w.Body.Bytes(), &body), ShouldBeNil)
					So(body.Status, ShouldNotBeEmpty)
					So(body.Results, ShouldHaveLength, len(tc.stages))
				})
			})
		}
	})
}

func TestPipelineClientDisconnect(t *testing.T) {
	Convey("Given a request whose client has gone away", t, func() {
		deps := &mockPipeline{}
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		req := httptest.NewRequest(http.MethodPost, "/train-model", strings.NewReader("")).WithContext(ctx)
		w := httptest.NewRecorder()
		newMux(deps).ServeHTTP(w, req)

		Convey("Then the stages still run on a live context", func() {
			So(deps.ran, ShouldHaveLength, 1)
			So(deps.runCtxs, ShouldHaveLength, 1)
			So(deps.runCtxs[0], ShouldBeNil)
			So(w.Code, ShouldEqual, http.StatusOK)
		})
	})
}

func TestPipelineErrors(t *testing.T) {
	Convey("Given stage failures", t, func() {
		cases := []struct {
			name string
			err  error
			code int
		}{
			{"busy", service.ErrBusy, http.StatusConflict},
			{"missing input", fmt.Errorf("label: %w", model.ErrMissingInput), http.StatusPreconditionFailed},
			{"untrained model", fmt.Errorf("predict: %w", model.ErrModelNotTrained), http.StatusPreconditionFailed},
			{"schema mismatch", fmt.Errorf("label: %w", model.ErrSchemaMismatch), http.StatusUnprocessableEntity},
			{"unexpected", errors.New("disk full"), http.StatusInternalServerError},
		}

		for _, tc := range cases {
			Convey("When a stage fails with "+tc.name, func() {
				w := do(newMux(&mockPipeline{runErr: tc.err}), http.MethodPost, "/predict")

				Convey("Then the status reflects the failure kind", func() {
					So(w.Code, ShouldEqual, tc.code)
					var body map[string]string
					So(json.Unmarshal(w.Body.Bytes(), &body), ShouldBeNil)
					So(body["message"], ShouldContainSubstring, "api.post/predict")
				})
			})
		}
	})
}

func TestCandidatesHandler(t *testing.T) {
	Convey("Given a ranked candidate list", t, func() {
		deps := &mockPipeline{
			entries: []repository.Entry{
				{Rank: 1, TargetID: "TIC 1", Score: 80, Label: model.DiscoveryLikelyPlanet},
				{Rank: 2, TargetID: "TIC 2", Score: 50, Label: model.DiscoveryPossibleAsteroid},
			},
			details: map[string]service.CandidateDetail{
				"TIC 1": {
					Entry:     repository.Entry{Rank: 1, TargetID: "TIC 1", Score: 80},
					Breakdown: []scoring.Contribution{{Criterion: scoring.CriterionNotInCatalog, Points: 20, Satisfied: true}},
				},
			},
		}
		mux := newMux(deps)

		Convey("When requesting the top candidates", func() {
			w := do(mux, http.MethodGet, "/candidates?limit=1")

			Convey("Then only the requested number is returned", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				var entries []repository.Entry
				So(json.Unmarshal(w.Body.Bytes(), &entries), ShouldBeNil)
				So(entries, ShouldHaveLength, 1)
				So(entries[0].TargetID, ShouldEqual, "TIC 1")
			})
		})

		Convey("When no limit is given", func() {
			w := do(mux, http.MethodGet, "/candidates")
			So(w.Code, ShouldEqual, http.StatusOK)
		})

		Convey("When the limit is invalid or too large", func() {
			So(do(mux, http.MethodGet, "/candidates?limit=abc").Code, ShouldEqual, http.StatusBadRequest)
			So(do(mux, http.MethodGet, "/candidates?limit=0").Code, ShouldEqual, http.StatusBadRequest)
			So(do(mux, http.MethodGet, "/candidates?limit=51").Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("When requesting one target", func() {
			w := do(mux, http.MethodGet, "/candidates/"+url.PathEscape("TIC 1"))

			Convey("Then its rank and breakdown are returned", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(w.Body.String(), ShouldContainSubstring, `"rank":1`)
				So(w.Body.String(), ShouldContainSubstring, "not_in_catalog")
			})
		})

		Convey("When requesting an unknown target", func() {
			So(do(mux, http.MethodGet, "/candidates/TIC%209").Code, ShouldEqual, http.StatusNotFound)
		})

		Convey("When the target segment is malformed", func() {
			So(do(mux, http.MethodGet, "/candidates/a/b").Code, ShouldEqual, http.StatusBadRequest)
		})
	})
}

func TestAPIErrors(t *testing.T) {
	Convey("Given wrapped API errors", t, func() {
		Convey("When wrapping with a kind", func() {
			err := api.WrapKind("api.op", api.ErrBadRequest, errors.New("bad limit"))
			So(errors.Is(err, api.ErrBadRequest), ShouldBeTrue)
			So(err.Error(), ShouldEqual, "api.op: bad request: bad limit")
		})

		Convey("When wrapping a domain error", func() {
			err := api.Wrap("api.op", repository.ErrNotFound)
			So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)
			So(api.Wrap("api.op", nil), ShouldBeNil)
		})

		Convey("When creating a bare kind", func() {
			So(api.NewKind("api.op", api.ErrUnknownRoute).Error(), ShouldEqual, "api.op: unknown route")
		})
	})
}
