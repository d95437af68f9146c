package model_test

import (
	"errors"
	"testing"

	model "github.com/okian/dipscan/internal/domain/model"
	"github.com/smartystreets/goconvey/convey"
)

func TestLabel(t *testing.T) {
	convey.Convey("Given dip labels", t, func() {
		convey.Convey("When checking which labels are trainable", func() {
			convey.So(model.LabelNoise.Trainable(), convey.ShouldBeTrue)
			convey.So(model.LabelAsteroid.Trainable(), convey.ShouldBeTrue)
			convey.So(model.LabelPlanet.Trainable(), convey.ShouldBeTrue)
			convey.So(model.LabelUnknown.Trainable(), convey.ShouldBeFalse)
			convey.So(model.Label("").Trainable(), convey.ShouldBeFalse)
		})

		convey.Convey("When parsing labels from table cells", func() {
			convey.So(model.ParseLabel(" Planet "), convey.ShouldEqual, model.LabelPlanet)
			convey.So(model.ParseLabel("NOISE"), convey.ShouldEqual, model.LabelNoise)
		})
	})
}

func TestBatchReport(t *testing.T) {
	convey.Convey("Given a batch report", t, func() {
		report := model.NewBatchReport("detect")

		convey.Convey("When recording successes and failures", func() {
			report.Succeed()
			report.Succeed()
			ie := report.Fail("TIC 2", model.ErrSeriesUnavailable)
			report.Fail("TIC 1", errors.New("boom"))

			convey.Convey("Then counts and targets should be tracked", func() {
				convey.So(report.Processed, convey.ShouldEqual, 2)
				convey.So(report.Failed(), convey.ShouldEqual, 2)
				convey.So(report.FailedTargets(), convey.ShouldResemble, []string{"TIC 1", "TIC 2"})
			})

			convey.Convey("And item errors should unwrap to their cause", func() {
				convey.So(errors.Is(ie, model.ErrSeriesUnavailable), convey.ShouldBeTrue)
				convey.So(ie.Error(), convey.ShouldContainSubstring, "detect")
				convey.So(ie.Error(), convey.ShouldContainSubstring, "TIC 2")
			})
		})
	})
}
