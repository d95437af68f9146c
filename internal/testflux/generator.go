// Package testflux generates synthetic light curves with known dips for
// demos and end-to-end tests.
package testflux

import (
	"math"
	"math/rand"
	"strconv"

	"github.com/okian/dipscan/internal/domain/model"
)

// Default signal constants.
const (
	defaultCadence = 0.02
	defaultNoise   = 0.0005
)

// Constants for injected dip shapes. Lengths are in samples.
const (
	planetDepthMin    = 0.02
	planetDepthRange  = 0.02
	planetLengthMin   = 5
	planetLengthRange = 3
	asteroidDepthMin  = 0.01
	asteroidDepth     = 0.003
	asteroidLengthMin = 2
	noiseDepthMin     = 0.01
	noiseDepthRange   = 0.01
	dipMargin         = 3
)

// Constants for periodic signals and stellar parameters.
const (
	periodicAmplitude = 0.002
	periodMinDays     = 1.0
	periodRangeDays   = 3.0
	magnitudeMin      = 8.0
	magnitudeRange    = 7.0
	radiusMin         = 0.5
	radiusRange       = 1.5
	teffMin           = 3500.0
	teffRange         = 3500.0
	missingRadiusMod  = 5
	kindCount         = 3
)

// Generate builds cfg.Targets curves. Output depends only on cfg.
func Generate(cfg Config) []Curve {
	rng := rand.New(rand.NewSource(cfg.Seed)) //nolint:gosec // reproducible synthetic data
	curves := make([]Curve, cfg.Targets)
	periodicEvery := 0
	if cfg.PeriodicFraction > 0 {
		periodicEvery = int(math.Round(1 / cfg.PeriodicFraction))
	}
	for i := range curves {
		periodic := periodicEvery > 0 && i%periodicEvery == 0
		curves[i] = generateCurve(rng, cfg, TargetID(cfg.FirstID+i), i, periodic)
	}
	return curves
}

// TargetID formats a numeric id the way catalogs list it.
func TargetID(n int) string { return "TIC " + strconv.Itoa(n) }

func generateCurve(rng *rand.Rand, cfg Config, id string, index int, periodic bool) Curve {
	c := Curve{Series: model.Series{TargetID: id, Samples: make([]model.FluxSample, cfg.Samples)}}
	if periodic {
		c.Period = periodMinDays + rng.Float64()*periodRangeDays
	}
	phase := rng.Float64() * 2 * math.Pi
	for i := range c.Series.Samples {
		t := float64(i) * cfg.Cadence
		f := 1 + rng.NormFloat64()*cfg.Noise
		if periodic {
			f += periodicAmplitude * math.Sin(2*math.Pi*t/c.Period+phase)
		}
		c.Series.Samples[i] = model.FluxSample{Time: t, Flux: f}
	}

	c.Dips = placeDips(rng, cfg, index)
	for _, d := range c.Dips {
		for i := d.Start; i < d.Start+d.Length; i++ {
			c.Series.Samples[i].Flux -= d.Depth
		}
	}
	c.Metadata = generateMetadata(rng, id, index)
	return c
}

// placeDips spreads dips over equal slots so runs never touch.
func placeDips(rng *rand.Rand, cfg Config, index int) []InjectedDip {
	if cfg.DipsPerTarget < 1 {
		return nil
	}
	slot := cfg.Samples / cfg.DipsPerTarget
	dips := make([]InjectedDip, 0, cfg.DipsPerTarget)
	for k := 0; k < cfg.DipsPerTarget; k++ {
		d := newDip(rng, (index+k)%kindCount)
		room := slot - d.Length - 2*dipMargin
		if room < 1 {
			continue
		}
		d.Start = k*slot + dipMargin + rng.Intn(room)
		dips = append(dips, d)
	}
	return dips
}

func newDip(rng *rand.Rand, kind int) InjectedDip {
	switch kind {
	case 0:
		return InjectedDip{
			Kind:   model.LabelPlanet,
			Length: planetLengthMin + rng.Intn(planetLengthRange),
			Depth:  planetDepthMin + rng.Float64()*planetDepthRange,
		}
	case 1:
		return InjectedDip{
			Kind:   model.LabelAsteroid,
			Length: asteroidLengthMin + rng.Intn(2),
			Depth:  asteroidDepthMin + rng.Float64()*asteroidDepth,
		}
	default:
		return InjectedDip{
			Kind:   model.LabelNoise,
			Length: 1,
			Depth:  noiseDepthMin + rng.Float64()*noiseDepthRange,
		}
	}
}

func generateMetadata(rng *rand.Rand, id string, index int) model.TargetMetadata {
	ra := rng.Float64() * 360
	dec := rng.Float64()*180 - 90
	mag := magnitudeMin + rng.Float64()*magnitudeRange
	rad := radiusMin + rng.Float64()*radiusRange
	teff := teffMin + rng.Float64()*teffRange
	md := model.TargetMetadata{
		TargetID:             id,
		RA:                   &ra,
		Dec:                  &dec,
		ApparentMagnitude:    &mag,
		StellarRadiusSolar:   &rad,
		EffectiveTemperature: &teff,
	}
	if index%missingRadiusMod == missingRadiusMod-1 {
		md.StellarRadiusSolar = nil
	}
	return md
}
