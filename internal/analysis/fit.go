package analysis

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/nvandessel/timedilation/internal/decay"
	"github.com/nvandessel/timedilation/internal/physics"
)

// Point is one measured survival fraction at flight distance X (cm).
type Point struct {
	X     float64
	S     float64
	Sigma float64
}

// SurvivalPoint turns a survival count over a flight distance into a fit point.
func SurvivalPoint(flight float64, c SurvivalCount) Point {
	return Point{X: flight, S: c.Fraction, Sigma: c.Sigma}
}

// DecayFit is the result of FitDecayLength.
type DecayFit struct {
	Lambda    float64 // cm
	LambdaErr float64 // cm
	Chi2      float64
	NDF       int
}

// ErrTooFewPoints is returned when no point constrains the fit.
var ErrTooFewPoints = errors.New("decay-length fit needs at least one point with 0 < S < 1")

// FitDecayLength fits ln S = -x/λ through the origin by weighted least
// squares. Points with no decay (S = 1), no survivors or no flight carry no
// information and are skipped.
func FitDecayLength(points []Point) (DecayFit, error) {
	var xs, ys, ws []float64
	for _, p := range points {
		if !(p.X > 0 && p.S > 0 && p.S < 1 && p.Sigma > 0) {
			continue
		}
		sy := p.Sigma / p.S
		xs = append(xs, p.X)
		ys = append(ys, math.Log(p.S))
		ws = append(ws, 1/(sy*sy))
	}
	if len(xs) == 0 {
		return DecayFit{}, ErrTooFewPoints
	}

	_, slope := stat.LinearRegression(xs, ys, ws, true)
	if slope >= 0 {
		return DecayFit{}, ErrTooFewPoints
	}

	var sxx, chi2 float64
	for i := range xs {
		sxx += ws[i] * xs[i] * xs[i]
		r := ys[i] - slope*xs[i]
		chi2 += ws[i] * r * r
	}
	slopeErr := 1 / math.Sqrt(sxx)

	return DecayFit{
		Lambda:    -1 / slope,
		LambdaErr: slopeErr / (slope * slope),
		Chi2:      chi2,
		NDF:       len(xs) - 1,
	}, nil
}

// Lifetime converts the fitted decay length into a rest-frame lifetime (ns)
// for particles of the given βγ.
func (f DecayFit) Lifetime(betaGamma float64) (tau, tauErr float64) {
	scale := betaGamma * physics.SpeedOfLight
	return f.Lambda / scale, f.LambdaErr / scale
}

// KinkSummary describes the secondary tracks of a run.
type KinkSummary struct {
	Decays              int     `json:"decays"`
	MeanKink            float64 `json:"mean_kink_rad"`
	KinkStdDev          float64 `json:"kink_stddev_rad"`
	MeanProductMomentum float64 `json:"mean_product_momentum"` // GeV/c
}

// KinkStats summarizes the secondary tracks of every decay with a
// modelled product.
func KinkStats(out *decay.Outcomes) KinkSummary {
	var kinks, moms []float64
	for i := 0; i < out.Len(); i++ {
		if !out.Decayed[i] || out.Product[i] == physics.Unknown {
			continue
		}
		kinks = append(kinks, out.KinkAngle[i])
		moms = append(moms, out.ProductMomentum[i])
	}
	s := KinkSummary{Decays: len(kinks)}
	if len(kinks) == 0 {
		return s
	}
	s.MeanKink, s.KinkStdDev = stat.MeanStdDev(kinks, nil)
	s.MeanProductMomentum = stat.Mean(moms, nil)
	if math.IsNaN(s.KinkStdDev) {
		s.KinkStdDev = 0
	}
	return s
}
