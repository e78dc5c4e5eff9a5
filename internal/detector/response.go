// Package detector synthesizes the measured observables of each detector
// subsystem from the true kinematics and decay outcome of a population.
//
// Station 1 (RICH1, DWC1, SC1) sees every particle. Station 2 (RICH2, DWC2,
// SC2), the calorimeter and the time-of-flight only see survivors. Decayed
// particles get zero for every downstream observable: no secondary-track
// deposit is modelled.
package detector

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/nvandessel/timedilation/internal/beam"
	"github.com/nvandessel/timedilation/internal/decay"
	"github.com/nvandessel/timedilation/internal/physics"
	"github.com/nvandessel/timedilation/internal/randstream"
)

// Config holds the noise model of every subsystem.
type Config struct {
	// RICHResolution is the relative β resolution Δβ/β.
	RICHResolution float64
	// Photo-electron count is NPEOffset + Poisson(NPEMean).
	NPEOffset int
	NPEMean   float64

	// Calorimeter MIP deposit ~ Normal(CaloMIP, CaloSigma), GeV, redrawn while negative.
	CaloMIP   float64
	CaloSigma float64

	// Wire-chamber hit count is DWCBase + Poisson(DWCMean).
	DWCBase int
	DWCMean float64

	// TOF is the fixed time of flight recorded for survivors, ns.
	TOF float64
}

// DefaultConfig returns the reference noise model.
func DefaultConfig() Config {
	return Config{
		RICHResolution: 1e-3,
		NPEOffset:      50,
		NPEMean:        10,
		CaloMIP:        0.1,
		CaloSigma:      0.05,
		DWCBase:        10,
		DWCMean:        2,
		TOF:            50,
	}
}

// Validate reports every invalid parameter.
func (c Config) Validate() error {
	var errs []error
	nonNeg := func(name string, v float64) {
		if v < 0 || math.IsNaN(v) {
			errs = append(errs, physics.NewConfigError(name, v, "must be non-negative"))
		}
	}
	nonNeg("detector.rich_resolution", c.RICHResolution)
	nonNeg("detector.npe_mean", c.NPEMean)
	nonNeg("detector.calo_mip", c.CaloMIP)
	nonNeg("detector.calo_sigma", c.CaloSigma)
	nonNeg("detector.dwc_mean", c.DWCMean)
	nonNeg("detector.tof", c.TOF)
	if c.NPEOffset < 0 {
		errs = append(errs, physics.NewConfigError("detector.npe_offset", c.NPEOffset, "must be non-negative"))
	}
	if c.DWCBase < 0 {
		errs = append(errs, physics.NewConfigError("detector.dwc_base", c.DWCBase, "must be non-negative"))
	}
	return errors.Join(errs...)
}

// Responses is the columnar measurement bundle of a population.
type Responses struct {
	RICH1Beta []float64
	RICH1NPE  []int32
	RICH2Beta []float64
	RICH2NPE  []int32

	CaloE   []float64 // GeV
	CaloEoP []float64

	DWC1Hits []int32
	DWC2Hits []int32

	SC1 []bool
	SC2 []bool

	TOF []float64 // ns
}

// Len returns the number of particles.
func (r *Responses) Len() int { return len(r.RICH1Beta) }

// Respond draws every observable. Each subsystem reads its own random
// stream so no two observables are correlated through shared state.
func Respond(cfg Config, prim *beam.Primaries, kin *physics.Columns, out *decay.Outcomes, src randstream.Source) (*Responses, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	n := prim.Len()
	if kin.Len() != n || out.Len() != n {
		return nil, fmt.Errorf("column lengths differ: primaries %d, kinematics %d, outcomes %d", n, kin.Len(), out.Len())
	}

	r := &Responses{
		RICH1Beta: make([]float64, n),
		RICH1NPE:  make([]int32, n),
		RICH2Beta: make([]float64, n),
		RICH2NPE:  make([]int32, n),
		CaloE:     make([]float64, n),
		CaloEoP:   make([]float64, n),
		DWC1Hits:  make([]int32, n),
		DWC2Hits:  make([]int32, n),
		SC1:       make([]bool, n),
		SC2:       make([]bool, n),
		TOF:       make([]float64, n),
	}

	rich1 := newRICH(cfg, src, randstream.RICH1Beta, randstream.RICH1NPE)
	rich2 := newRICH(cfg, src, randstream.RICH2Beta, randstream.RICH2NPE)
	calo := distuv.Normal{Mu: cfg.CaloMIP, Sigma: cfg.CaloSigma, Src: src.For(randstream.Calorimeter)}
	dwc1 := counter{base: cfg.DWCBase, dist: poisson(cfg.DWCMean, src.For(randstream.DWC1))}
	dwc2 := counter{base: cfg.DWCBase, dist: poisson(cfg.DWCMean, src.For(randstream.DWC2))}

	for i := 0; i < n; i++ {
		beta := kin.Beta[i]

		r.RICH1Beta[i], r.RICH1NPE[i] = rich1.measure(beta)
		r.DWC1Hits[i] = dwc1.draw()
		r.SC1[i] = true

		if !out.Survived(i) {
			continue
		}
		r.RICH2Beta[i], r.RICH2NPE[i] = rich2.measure(beta)
		r.DWC2Hits[i] = dwc2.draw()
		r.SC2[i] = true
		r.CaloE[i] = nonNegative(calo)
		r.CaloEoP[i] = r.CaloE[i] / prim.Momentum[i]
		r.TOF[i] = cfg.TOF
	}
	return r, nil
}

// rich is one Cherenkov station: a β measurement with relative Gaussian
// smearing and an independent photo-electron count.
type rich struct {
	resolution float64
	beta       distuv.Normal
	npe        counter
}

func newRICH(cfg Config, src randstream.Source, betaStream, npeStream randstream.Stream) *rich {
	return &rich{
		resolution: cfg.RICHResolution,
		beta:       distuv.Normal{Mu: 0, Sigma: 1, Src: src.For(betaStream)},
		npe:        counter{base: cfg.NPEOffset, dist: poisson(cfg.NPEMean, src.For(npeStream))},
	}
}

func (r *rich) measure(trueBeta float64) (float64, int32) {
	measured := trueBeta + r.beta.Rand()*trueBeta*r.resolution
	return measured, r.npe.draw()
}

// counter draws base + Poisson(mean). A nil dist means a zero mean.
type counter struct {
	base int
	dist *distuv.Poisson
}

func (c counter) draw() int32 {
	if c.dist == nil {
		return int32(c.base)
	}
	return int32(c.base) + int32(c.dist.Rand())
}

func poisson(mean float64, src rand.Source) *distuv.Poisson {
	if mean <= 0 {
		return nil
	}
	return &distuv.Poisson{Lambda: mean, Src: src}
}

func nonNegative(d distuv.Normal) float64 {
	for {
		if v := d.Rand(); v >= 0 {
			return v
		}
	}
}
