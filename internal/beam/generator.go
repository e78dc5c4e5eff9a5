// Package beam generates the primary particle population of a run.
package beam

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/nvandessel/timedilation/internal/physics"
	"github.com/nvandessel/timedilation/internal/randstream"
)

// Config describes the beam of one run. It is never mutated after validation.
type Config struct {
	Events int

	// Species mixture; the three fractions sum to 1.
	PionFraction float64
	KaonFraction float64
	MuonFraction float64

	MomentumMean  float64 // GeV/c
	MomentumSigma float64 // GeV/c

	SpotMeanX float64 // cm
	SpotMeanY float64 // cm
	SpotSigma float64 // cm
	StartZ    float64 // cm, upstream of station 1 (z = 0)

	Divergence float64 // angular σ, rad
}

// DefaultConfig returns the reference beam: 95% π+ / 5% K+ at 8 ± 0.1 GeV/c.
func DefaultConfig() Config {
	return Config{
		Events:        10000,
		PionFraction:  0.95,
		KaonFraction:  0.05,
		MomentumMean:  8.0,
		MomentumSigma: 0.1,
		SpotSigma:     1.0,
		StartZ:        -50.0,
		Divergence:    2e-3,
	}
}

// Validate reports every invalid parameter.
func (c Config) Validate() error {
	var errs []error
	if c.Events <= 0 {
		errs = append(errs, physics.NewConfigError("beam.events", c.Events, "must be positive"))
	}
	for _, f := range []struct {
		name string
		v    float64
	}{
		{"beam.pion_fraction", c.PionFraction},
		{"beam.kaon_fraction", c.KaonFraction},
		{"beam.muon_fraction", c.MuonFraction},
	} {
		if f.v < 0 || f.v > 1 || math.IsNaN(f.v) {
			errs = append(errs, physics.NewConfigError(f.name, f.v, "must be in [0,1]"))
		}
	}
	if sum := c.PionFraction + c.KaonFraction + c.MuonFraction; math.Abs(sum-1) > 1e-9 {
		errs = append(errs, physics.NewConfigError("beam fractions", sum, "must sum to 1"))
	}
	if !(c.MomentumMean > 0) || c.MomentumMean > physics.MaxMomentum {
		errs = append(errs, physics.NewConfigError("beam.momentum_mean", c.MomentumMean,
			fmt.Sprintf("must be in (0,%g]", physics.MaxMomentum)))
	}
	if !(c.MomentumSigma >= 0) || c.MomentumSigma > physics.MaxMomentum {
		errs = append(errs, physics.NewConfigError("beam.momentum_sigma", c.MomentumSigma,
			fmt.Sprintf("must be in [0,%g]", physics.MaxMomentum)))
	}
	if c.SpotSigma < 0 || math.IsNaN(c.SpotSigma) {
		errs = append(errs, physics.NewConfigError("beam.spot_sigma", c.SpotSigma, "must be non-negative"))
	}
	if c.Divergence < 0 || math.IsNaN(c.Divergence) {
		errs = append(errs, physics.NewConfigError("beam.divergence", c.Divergence, "must be non-negative"))
	}
	return errors.Join(errs...)
}

// Primaries is the columnar primary particle population.
type Primaries struct {
	Species  []physics.Species
	Momentum []float64 // GeV/c, always > 0
	X, Y, Z  []float64 // start position, cm
	ThetaX   []float64 // direction slopes, rad
	ThetaY   []float64
}

// Len returns the number of particles.
func (p *Primaries) Len() int { return len(p.Species) }

// Generate draws cfg.Events primaries. It is a pure function of cfg and src.
func Generate(cfg Config, src randstream.Source) (*Primaries, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	n := cfg.Events
	p := &Primaries{
		Species:  make([]physics.Species, n),
		Momentum: make([]float64, n),
		X:        make([]float64, n),
		Y:        make([]float64, n),
		Z:        make([]float64, n),
		ThetaX:   make([]float64, n),
		ThetaY:   make([]float64, n),
	}

	pick := distuv.Uniform{Min: 0, Max: 1, Src: src.For(randstream.Species)}
	for i := range p.Species {
		p.Species[i] = cfg.pick(pick.Rand())
	}

	mom := distuv.Normal{Mu: cfg.MomentumMean, Sigma: cfg.MomentumSigma, Src: src.For(randstream.Momentum)}
	for i := range p.Momentum {
		p.Momentum[i] = positive(mom)
	}

	spotX := distuv.Normal{Mu: cfg.SpotMeanX, Sigma: cfg.SpotSigma, Src: src.For(randstream.SpotX)}
	spotY := distuv.Normal{Mu: cfg.SpotMeanY, Sigma: cfg.SpotSigma, Src: src.For(randstream.SpotY)}
	for i := 0; i < n; i++ {
		p.X[i] = spotX.Rand()
		p.Y[i] = spotY.Rand()
		p.Z[i] = cfg.StartZ
	}

	div := distuv.Normal{Mu: 0, Sigma: cfg.Divergence, Src: src.For(randstream.Divergence)}
	for i := 0; i < n; i++ {
		p.ThetaX[i] = div.Rand()
		p.ThetaY[i] = div.Rand()
	}

	return p, nil
}

func (c Config) pick(u float64) physics.Species {
	switch {
	case u < c.PionFraction:
		return physics.Pion
	case u < c.PionFraction+c.KaonFraction:
		return physics.Kaon
	case c.MuonFraction > 0:
		return physics.Muon
	case c.KaonFraction > 0:
		return physics.Kaon
	default:
		return physics.Pion
	}
}

// positive rejects and redraws non-positive momenta. Validation guarantees
// a positive mean, so each draw succeeds with probability above one half.
func positive(d distuv.Normal) float64 {
	for {
		if v := d.Rand(); v > 0 {
			return v
		}
	}
}
