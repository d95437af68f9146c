// Package periodicity flags targets whose light curve carries a periodic signal.
package periodicity

import (
	"errors"
	"math"

	"github.com/okian/dipscan/internal/domain/model"
)

// Default periodogram configuration constants.
const (
	DefaultPowerThreshold = 0.1
	defaultSamplesPerPeak = 5.0
	defaultNyquistFactor  = 2.0
	defaultMaxFrequencies = 2000
	minSamples            = 3
)

// ErrInsufficientData is returned for series that cannot support a periodogram.
var ErrInsufficientData = errors.New("insufficient data for periodogram")

// Result summarizes the periodogram of one series.
type Result struct {
	PeakPower      float64
	BestFrequency  float64 // cycles per day
	BestPeriodDays float64
	Frequencies    int
}

// Analyzer computes a Lomb-Scargle periodogram on an automatic frequency grid.
type Analyzer struct {
	samplesPerPeak float64
	nyquistFactor  float64
	maxFrequencies int
	powerThreshold float64
}

// Option applies a configuration option to the Analyzer.
type Option func(*Analyzer)

// WithPowerThreshold sets the peak power above which a series is periodic.
func WithPowerThreshold(threshold float64) Option {
	return func(a *Analyzer) {
		if threshold > 0 && threshold < 1 {
			a.powerThreshold = threshold
		}
	}
}

// WithMaxFrequencies caps the size of the frequency grid.
func WithMaxFrequencies(n int) Option {
	return func(a *Analyzer) {
		if n > 0 {
			a.maxFrequencies = n
		}
	}
}

// WithNyquistFactor sets the multiple of the average Nyquist frequency to scan up to.
func WithNyquistFactor(f float64) Option {
	return func(a *Analyzer) {
		if f > 0 {
			a.nyquistFactor = f
		}
	}
}

// NewAnalyzer creates an Analyzer.
func NewAnalyzer(opts ...Option) *Analyzer {
	a := &Analyzer{
		samplesPerPeak: defaultSamplesPerPeak,
		nyquistFactor:  defaultNyquistFactor,
		maxFrequencies: defaultMaxFrequencies,
		powerThreshold: DefaultPowerThreshold,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// IsPeriodic reports whether a result exceeds the configured power threshold.
func (a *Analyzer) IsPeriodic(r Result) bool { return r.PeakPower > a.powerThreshold }

// Flag analyzes a series and returns its periodicity flag.
func (a *Analyzer) Flag(series model.Series) (model.PeriodicityFlag, error) {
	r, err := a.Analyze(series)
	if err != nil {
		return model.PeriodicityFlag{}, err
	}
	return model.PeriodicityFlag{
		TargetID:       series.TargetID,
		IsPeriodic:     a.IsPeriodic(r),
		PeakPower:      r.PeakPower,
		BestPeriodDays: r.BestPeriodDays,
	}, nil
}

// Analyze returns the peak of the standard-normalized periodogram, where power
// is the fraction of variance explained by the best-fit sinusoid.
func (a *Analyzer) Analyze(series model.Series) (Result, error) {
	n := series.Len()
	if n < minSamples {
		return Result{}, ErrInsufficientData
	}
	t := make([]float64, n)
	y := make([]float64, n)
	tMin, tMax := math.Inf(1), math.Inf(-1)
	mean := 0.0
	for i, s := range series.Samples {
		t[i], y[i] = s.Time, s.Flux
		tMin = math.Min(tMin, s.Time)
		tMax = math.Max(tMax, s.Time)
		mean += s.Flux
	}
	baseline := tMax - tMin
	if !(baseline > 0) {
		return Result{}, ErrInsufficientData
	}
	mean /= float64(n)
	ss := 0.0
	for i := range y {
		y[i] -= mean
		ss += y[i] * y[i]
	}
	if ss == 0 {
		return Result{Frequencies: 0}, nil
	}

	df := 1 / (baseline * a.samplesPerPeak)
	fMin := df / 2
	fMax := a.nyquistFactor * 0.5 * float64(n) / baseline
	nf := 1 + int(math.Round((fMax-fMin)/df))
	if nf > a.maxFrequencies {
		nf = a.maxFrequencies
	}

	best := Result{Frequencies: nf}
	for k := 0; k < nf; k++ {
		f := fMin + float64(k)*df
		p := power(t, y, 2*math.Pi*f) / ss
		if p > best.PeakPower {
			best.PeakPower = p
			best.BestFrequency = f
		}
	}
	if best.BestFrequency > 0 {
		best.BestPeriodDays = 1 / best.BestFrequency
	}
	best.PeakPower = math.Min(1, best.PeakPower)
	return best, nil
}

// power returns the chi-square reduction of a sinusoid fit at angular frequency w.
func power(t, y []float64, w float64) float64 {
	var s2, c2 float64
	for _, ti := range t {
		s2 += math.Sin(2 * w * ti)
		c2 += math.Cos(2 * w * ti)
	}
	tau := math.Atan2(s2, c2) / (2 * w)

	var yc, ys, cc, sn float64
	for i, ti := range t {
		c := math.Cos(w * (ti - tau))
		s := math.Sin(w * (ti - tau))
		yc += y[i] * c
		ys += y[i] * s
		cc += c * c
		sn += s * s
	}
	p := 0.0
	if cc > 0 {
		p += yc * yc / cc
	}
	if sn > 0 {
		p += ys * ys / sn
	}
	return p
}
