package service_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	repository "github.com/okian/dipscan/internal/adapters/repository"
	service "github.com/okian/dipscan/internal/app"
	"github.com/okian/dipscan/internal/domain/classify"
	"github.com/okian/dipscan/internal/domain/model"
	"github.com/okian/dipscan/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

const predictedFixture = `target_id,start_index,end_index,start_time,end_time,depth,duration,predicted_label
TIC 1,3,6,0.06,0.12,0.03,0.06,planet
TIC 2,4,5,0.08,0.1,0.012,0.02,asteroid
TIC 1,40,40,0.8,0.8,0.02,0,noise
TIC 3,7,9,0.14,0.18,0.004,0.04,noise
`

const statusFixture = `target_id,depth,duration,predicted_label,external_catalog_status
TIC 1,0.03,0.06,planet,not-found
TIC 2,0.012,0.02,asteroid,known-object
TIC 9,0.02,0.1,planet,not-found
`

const metadataFixture = `tic_id,ra,dec,Tmag,rad,Teff
TIC 1,10,20,9.5,1,5800
TIC 1,11,21,14,2,5000
TIC 2,30,40,13.2,0.8,4000
`

const radiusFixture = `target_id,depth,duration,predicted_label,external_catalog_status,apparent_magnitude,dip_shape,near_edge
TIC 2,0.002,0.3,noise,known-object,14,,
TIC 1,0.03,0.1,planet,not-found,9.5,U_shaped,false
TIC 3,0.02,0.08,asteroid,found-no-object-listed,,,true
`

func TestService_New(t *testing.T) {
	Convey("Given a new service with default collaborators", t, func() {
		svc := service.New(testSettings(t.TempDir()))

		Convey("Then it should report idle statistics", func() {
			So(svc, ShouldNotBeNil)
			stats := svc.GetStats()
			So(stats["running"], ShouldEqual, false)
			So(stats["candidates"], ShouldEqual, 0)
		})
	})
}

func TestService_MissingInputs(t *testing.T) {
	Convey("Given a service with an empty output directory", t, func() {
		ctx := context.Background()
		settings := testSettings(t.TempDir())
		svc := service.New(settings, service.WithResolver(&mockResolver{}))

		Convey("When predicting without a trained model", func() {
			writeFile(t, settings.Path(service.FileAllDips), "target_id,depth,duration\nTIC 1,0.1,0.1\n")
			_, err := svc.RunStage(ctx, service.StagePredict)

			Convey("Then the run is rejected and nothing is written", func() {
				So(errors.Is(err, model.ErrModelNotTrained), ShouldBeTrue)
				So(exists(settings.Path(service.FilePredicted)), ShouldBeFalse)
			})
		})

		Convey("When the model is missing and the dips are missing too", func() {
			_, err := svc.RunStage(ctx, service.StagePredict)
			So(errors.Is(err, model.ErrModelNotTrained), ShouldBeTrue)
		})

		Convey("When labeling before detection", func() {
			_, err := svc.RunStage(ctx, service.StageLabel)
			So(errors.Is(err, model.ErrMissingInput), ShouldBeTrue)
		})

		Convey("When detecting without a target list", func() {
			_, err := svc.RunStage(ctx, service.StageDetect)
			So(errors.Is(err, model.ErrMissingInput), ShouldBeTrue)
		})

		Convey("When merging without the metadata catalog", func() {
			writeFile(t, settings.Path(service.FileCatalogStatus), statusFixture)
			_, err := svc.RunStage(ctx, service.StageMerge)
			So(errors.Is(err, model.ErrMissingInput), ShouldBeTrue)
			So(exists(settings.Path(service.FileMerged)), ShouldBeFalse)
		})

		Convey("When the key column cannot be found", func() {
			writeFile(t, settings.Path(service.FileAllDips), "star,depth,duration\na,0.1,0.1\n")
			_, err := svc.RunStage(ctx, service.StageLabel)
			So(errors.Is(err, model.ErrSchemaMismatch), ShouldBeTrue)
		})

		Convey("When training on fewer than two labeled rows", func() {
			writeFile(t, settings.Path(service.FileRuleLabels),
				"target_id,depth,duration,rule_label\nTIC 1,0.03,0.1,planet\nTIC 2,0.01,0.1,unknown\n")
			_, err := svc.RunStage(ctx, service.StageTrain)
			So(errors.Is(err, classify.ErrNotEnoughData), ShouldBeTrue)
			So(exists(settings.Path(service.FileModel)), ShouldBeFalse)
		})
	})
}

func TestService_Label(t *testing.T) {
	Convey("Given detected dips with a legacy depth column", t, func() {
		ctx := context.Background()
		settings := testSettings(t.TempDir())
		svc := service.New(settings, service.WithResolver(&mockResolver{}))
		writeFile(t, settings.Path(service.FileAllDips),
			"tic,dip_depth,duration,extra\nTIC 1,0.03,0.1,x\nTIC 2,0.001,0.1,y\nTIC 3,0.01,0.02,z\nTIC 4,0.01,0.1,w\n")

		Convey("When labeling", func() {
			r, err := svc.RunStage(ctx, service.StageLabel)
			So(err, ShouldBeNil)
			So(r.Rows, ShouldEqual, 4)

			Convey("Then every row carries its rule label and extra columns survive", func() {
				tab, err := repository.LoadTable(settings.Path(service.FileRuleLabels), repository.LabeledSchema)
				So(err, ShouldBeNil)
				want := []model.Label{model.LabelPlanet, model.LabelNoise, model.LabelAsteroid, model.LabelUnknown}
				for i, l := range want {
					v, _ := tab.Get(i, repository.ColRuleLabel)
					So(v, ShouldEqual, string(l))
				}
				v, _ := tab.Get(3, "extra")
				So(v, ShouldEqual, "w")
				So(r.Details["planet"], ShouldEqual, 1)
			})
		})
	})
}

func TestService_Crosscheck(t *testing.T) {
	Convey("Given predicted dips for three distinct targets", t, func() {
		ctx := context.Background()
		settings := testSettings(t.TempDir())
		writeFile(t, settings.Path(service.FilePredicted), predictedFixture)
		resolver := &mockResolver{
			statuses: map[string]model.CatalogStatus{
				"TIC 1": model.StatusNotFound,
				"TIC 2": model.StatusKnownObject,
			},
			fail: map[string]error{"TIC 3": errors.New("connection refused")},
		}
		svc := service.New(settings, service.WithResolver(resolver))

		Convey("When cross-checking", func() {
			r, err := svc.RunStage(ctx, service.StageCrosscheck)
			So(err, ShouldBeNil)

			Convey("Then each target is looked up exactly once", func() {
				So(resolver.calls.Load(), ShouldEqual, int64(3))
				So(r.Details["targets"], ShouldEqual, 3)
				So(r.Failed, ShouldResemble, []string{"TIC 3"})
			})

			Convey("And every row carries its target status", func() {
				tab, err := repository.LoadTable(settings.Path(service.FileCatalogStatus), repository.KeyedSchema)
				So(err, ShouldBeNil)
				So(tab.Len(), ShouldEqual, 4)
				want := []model.CatalogStatus{
					model.StatusNotFound, model.StatusKnownObject, model.StatusNotFound, model.StatusLookupError,
				}
				for i, st := range want {
					v, _ := tab.Get(i, repository.ColCatalogStatus)
					So(v, ShouldEqual, string(st))
				}
				detail, ok := tab.Get(3, repository.ColCatalogError)
				So(ok, ShouldBeTrue)
				So(detail, ShouldContainSubstring, "connection refused")
				_, ok = tab.Get(0, repository.ColCatalogError)
				So(ok, ShouldBeFalse)
			})
		})
	})
}

func TestService_Merge(t *testing.T) {
	Convey("Given cross-checked dips and a stellar catalog", t, func() {
		ctx := context.Background()
		settings := testSettings(t.TempDir())
		writeFile(t, settings.Path(service.FileCatalogStatus), statusFixture)
		writeFile(t, settings.MetadataFile, metadataFixture)
		svc := service.New(settings, service.WithResolver(&mockResolver{}))

		Convey("When merging", func() {
			r, err := svc.RunStage(ctx, service.StageMerge)
			So(err, ShouldBeNil)
			So(r.Details["matched_rows"], ShouldEqual, 2)
			tab, err := repository.LoadTable(settings.Path(service.FileMerged), repository.KeyedSchema)
			So(err, ShouldBeNil)

			Convey("Then every dip row is kept and the first catalog row wins", func() {
				So(tab.Len(), ShouldEqual, 3)
				mag, _ := tab.Get(0, repository.ColMagnitude)
				So(mag, ShouldEqual, "9.5")
				rad, _ := tab.Get(0, repository.ColStellarRadius)
				So(rad, ShouldEqual, "1")
			})

			Convey("And targets without metadata get null catalog cells", func() {
				_, ok := tab.Get(2, repository.ColMagnitude)
				So(ok, ShouldBeFalse)
				st, _ := tab.Get(2, repository.ColCatalogStatus)
				So(st, ShouldEqual, string(model.StatusNotFound))
			})

			Convey("And only bright targets reach the bright subset", func() {
				bright, err := repository.LoadTable(settings.Path(service.FileBrightCandidates), repository.KeyedSchema)
				So(err, ShouldBeNil)
				So(bright.Len(), ShouldEqual, 1)
				So(bright.TargetID(0), ShouldEqual, "TIC 1")
			})

			Convey("And merging the merged output again changes nothing", func() {
				first := readFile(t, settings.Path(service.FileMerged))
				writeFile(t, settings.Path(service.FileCatalogStatus), first)
				_, err := svc.RunStage(ctx, service.StageMerge)
				So(err, ShouldBeNil)
				So(readFile(t, settings.Path(service.FileMerged)), ShouldEqual, first)
			})
		})
	})
}

func TestService_Radius(t *testing.T) {
	Convey("Given merged dips with and without stellar radii", t, func() {
		ctx := context.Background()
		settings := testSettings(t.TempDir())
		writeFile(t, settings.Path(service.FileMerged),
			"target_id,depth,stellar_radius_solar\nTIC 1,0.04,1\nTIC 2,0,1\nTIC 3,0.01,\n")
		svc := service.New(settings, service.WithResolver(&mockResolver{}))

		Convey("When estimating radii", func() {
			r, err := svc.RunStage(ctx, service.StageRadius)
			So(err, ShouldBeNil)
			So(r.Details["estimated_rows"], ShouldEqual, 1)

			tab, err := repository.LoadTable(settings.Path(service.FileRadius), repository.KeyedSchema)
			So(err, ShouldBeNil)

			Convey("Then only rows with both inputs and a positive depth get a radius", func() {
				km, err := tab.Float(0, repository.ColObjectRadius)
				So(err, ShouldBeNil)
				So(*km, ShouldAlmostEqual, 139140, 1e-6)
				for _, row := range []int{1, 2} {
					v, err := tab.Float(row, repository.ColObjectRadius)
					So(err, ShouldBeNil)
					So(v, ShouldBeNil)
				}
			})
		})
	})
}

func TestService_Score(t *testing.T) {
	Convey("Given dips with radius estimates", t, func() {
		ctx := context.Background()
		settings := testSettings(t.TempDir())
		writeFile(t, settings.Path(service.FileRadius), radiusFixture)
		svc := service.New(settings, service.WithResolver(&mockResolver{}))

		scores := func() ([]string, []string) {
			tab, err := repository.LoadTable(settings.Path(service.FileScores), repository.CandidateSchema)
			So(err, ShouldBeNil)
			var ids, values []string
			for i := 0; i < tab.Len(); i++ {
				v, _ := tab.Get(i, repository.ColScore)
				ids = append(ids, tab.TargetID(i))
				values = append(values, v)
			}
			return ids, values
		}

		Convey("When scoring without periodicity flags", func() {
			r, err := svc.RunStage(ctx, service.StageScore)
			So(err, ShouldBeNil)
			So(r.Details["periodicity_joined"], ShouldEqual, false)

			Convey("Then rows are sorted by score descending", func() {
				ids, values := scores()
				So(ids, ShouldResemble, []string{"TIC 1", "TIC 3", "TIC 2"})
				So(values, ShouldResemble, []string{"80", "30", "10"})
			})

			Convey("And the candidate store serves the ranking", func() {
				top, err := svc.TopN(ctx, 2)
				So(err, ShouldBeNil)
				So(top, ShouldHaveLength, 2)
				So(top[0].TargetID, ShouldEqual, "TIC 1")
				So(top[0].Label, ShouldEqual, model.DiscoveryLikelyPlanet)

				detail, err := svc.Candidate(ctx, "TIC 3")
				So(err, ShouldBeNil)
				So(detail.Rank, ShouldEqual, 2)
				So(detail.Breakdown, ShouldHaveLength, 8)
			})
		})

		Convey("When periodicity flags are present", func() {
			writeFile(t, settings.Path(service.FilePeriodicity),
				"target_id,is_periodic,peak_power,best_period_days\nTIC 3,true,0.5,2\nTIC 2,false,0.01,1\n")
			r, err := svc.RunStage(ctx, service.StageScore)
			So(err, ShouldBeNil)
			So(r.Details["periodicity_joined"], ShouldEqual, true)

			Convey("Then periodic targets earn the periodicity points", func() {
				ids, values := scores()
				So(ids, ShouldResemble, []string{"TIC 1", "TIC 3", "TIC 2"})
				So(values, ShouldResemble, []string{"80", "50", "10"})
			})

			Convey("And scoring again gives the same file", func() {
				first := readFile(t, settings.Path(service.FileScores))
				_, err := svc.RunStage(ctx, service.StageScore)
				So(err, ShouldBeNil)
				So(readFile(t, settings.Path(service.FileScores)), ShouldEqual, first)
			})

			Convey("And a restarted service loads the ranking from disk", func() {
				restarted := service.New(settings, service.WithResolver(&mockResolver{}))
				So(restarted.Start(ctx), ShouldBeNil)
				top, err := restarted.TopN(ctx, 10)
				So(err, ShouldBeNil)
				So(top, ShouldHaveLength, 3)
				So(top[1].TargetID, ShouldEqual, "TIC 3")
				So(top[1].Score, ShouldEqual, 50)
			})
		})
	})
}

func TestService_Busy(t *testing.T) {
	Convey("Given a cross-check blocked on slow lookups", t, func() {
		ctx := context.Background()
		settings := testSettings(t.TempDir())
		writeFile(t, settings.Path(service.FilePredicted), predictedFixture)
		resolver := &mockResolver{block: make(chan struct{}), started: make(chan struct{})}
		svc := service.New(settings, service.WithResolver(resolver))

		done := make(chan error, 1)
		go func() {
			_, err := svc.RunStage(ctx, service.StageCrosscheck)
			done <- err
		}()
		<-resolver.started

		Convey("When another stage is triggered", func() {
			_, err := svc.RunStage(ctx, service.StageLabel)
			stats := svc.GetStats()
			close(resolver.block)

			Convey("Then it is rejected as busy", func() {
				So(errors.Is(err, service.ErrBusy), ShouldBeTrue)
				So(stats["running"], ShouldEqual, true)
				So(stats["currentStage"], ShouldEqual, string(service.StageCrosscheck))
			})

			Convey("And the running stage still completes", func() {
				select {
				case err := <-done:
					So(err, ShouldBeNil)
				case <-time.After(5 * time.Second):
					t.Fatal("cross-check did not finish")
				}
			})
		})
	})
}

// ruleLabelFixture writes n rows per rule class with small offsets.
func ruleLabelFixture(n int) string {
	var b strings.Builder
	b.WriteString("target_id,depth,duration,rule_label\n")
	for i := 0; i < n; i++ {
		off := float64(i) * 0.0001
		fmt.Fprintf(&b, "TIC %d,%.4f,%.4f,planet\n", 3*i, 0.03+off, 0.1+off)
		fmt.Fprintf(&b, "TIC %d,%.4f,%.4f,asteroid\n", 3*i+1, 0.01+off, 0.03+off)
		fmt.Fprintf(&b, "TIC %d,%.4f,%.4f,noise\n", 3*i+2, 0.001+off/10, 0.1+off)
	}
	return b.String()
}

func TestService_TrainReport(t *testing.T) {
	Convey("Given rule-labeled dips and info-level logging", t, func() {
		var buf bytes.Buffer
		So(logger.Init(logger.WithWriter(&buf), logger.WithLevel("info"), logger.WithFormat(logger.FormatJSON)), ShouldBeNil)
		Reset(func() { _ = logger.Init(logger.WithLevel("error")) })

		ctx := context.Background()
		settings := testSettings(t.TempDir())
		writeFile(t, settings.Path(service.FileRuleLabels), ruleLabelFixture(15))
		svc := service.New(settings, service.WithResolver(&mockResolver{}))

		Convey("When training", func() {
			r, err := svc.RunStage(ctx, service.StageTrain)
			So(err, ShouldBeNil)
			So(r.Rows, ShouldEqual, 45)

			Convey("Then the classification report is logged at info", func() {
				out := buf.String()
				So(out, ShouldContainSubstring, "classification report")
				So(out, ShouldContainSubstring, `"level":"INFO"`)
				So(out, ShouldContainSubstring, "_precision")
				So(out, ShouldContainSubstring, "_recall")
				So(out, ShouldContainSubstring, "_f1")
				So(out, ShouldContainSubstring, "macro_avg")
				So(out, ShouldContainSubstring, "weighted_avg")
				So(out, ShouldContainSubstring, "confusion_matrix")
			})
		})
	})
}

func TestService_CrosscheckBlankTargets(t *testing.T) {
	Convey("Given predicted dips where one row has no target id", t, func() {
		ctx := context.Background()
		settings := testSettings(t.TempDir())
		writeFile(t, settings.Path(service.FilePredicted),
			"target_id,depth,duration,predicted_label\nTIC 1,0.03,0.1,planet\n,0.02,0.1,planet\n")
		resolver := &mockResolver{statuses: map[string]model.CatalogStatus{"TIC 1": model.StatusKnownObject}}
		svc := service.New(settings, service.WithResolver(resolver))

		Convey("When cross-checking", func() {
			r, err := svc.RunStage(ctx, service.StageCrosscheck)
			So(err, ShouldBeNil)

			Convey("Then the blank row falls back to lookup-error without a lookup", func() {
				So(resolver.calls.Load(), ShouldEqual, int64(1))
				So(r.Details[string(model.StatusLookupError)], ShouldEqual, 1)
				tab, err := repository.LoadTable(settings.Path(service.FileCatalogStatus), repository.KeyedSchema)
				So(err, ShouldBeNil)
				v, _ := tab.Get(0, repository.ColCatalogStatus)
				So(v, ShouldEqual, string(model.StatusKnownObject))
				v, _ = tab.Get(1, repository.ColCatalogStatus)
				So(v, ShouldEqual, string(model.StatusLookupError))
				detail, _ := tab.Get(1, repository.ColCatalogError)
				So(detail, ShouldContainSubstring, "blank target id")
			})
		})
	})
}

func TestService_CrosscheckCancelled(t *testing.T) {
	Convey("Given a cross-check whose lookups never answer", t, func() {
		settings := testSettings(t.TempDir())
		settings.LookupConcurrency = 1
		settings.LookupQueueSize = 1
		writeFile(t, settings.Path(service.FilePredicted), predictedFixture)
		resolver := &mockResolver{block: make(chan struct{}), started: make(chan struct{})}
		svc := service.New(settings, service.WithResolver(resolver))

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		done := make(chan error, 1)
		go func() {
			_, err := svc.RunStage(ctx, service.StageCrosscheck)
			done <- err
		}()
		<-resolver.started

		Convey("When the run is cancelled while targets are still queued", func() {
			cancel()

			Convey("Then the workers are stopped and the stage reports the cancellation", func() {
				select {
				case err := <-done:
					So(errors.Is(err, context.Canceled), ShouldBeTrue)
				case <-time.After(5 * time.Second):
					t.Fatal("cross-check did not stop")
				}
				So(exists(settings.Path(service.FileCatalogStatus)), ShouldBeFalse)

				_, err := svc.RunStage(context.Background(), service.StageLabel)
				So(errors.Is(err, service.ErrBusy), ShouldBeFalse)
			})
		})
	})
}
