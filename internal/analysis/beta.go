package analysis

import (
	"fmt"

	"go-hep.org/x/hep/hbook"

	"github.com/nvandessel/timedilation/internal/event"
	"github.com/nvandessel/timedilation/internal/physics"
)

// Histogram ranges of the RICH1 β spectrum and of its relative residual.
const (
	betaBins    = 400
	betaLow     = 0.99
	betaHigh    = 1.01
	residualLow = -0.01
	residualHi  = 0.01
)

// BetaSummary describes the RICH1 β measurement of one species.
type BetaSummary struct {
	Species    physics.Species
	Entries    int64
	TrueBeta   float64 // β at the mean generated momentum
	Mean       float64
	StdDev     float64
	Resolution float64 // spread of (β_meas - β_true)/β_true

	Spectrum *hbook.H1D
}

// BetaStats histograms the RICH1 β of every sp particle in t.
func BetaStats(t *event.Table, sp physics.Species) (BetaSummary, error) {
	props, ok := sp.Lookup()
	if !ok {
		return BetaSummary{}, physics.NewConfigError("species", sp, "not simulated")
	}
	spectrum := hbook.NewH1D(betaBins, betaLow, betaHigh)
	residual := hbook.NewH1D(betaBins, residualLow, residualHi)
	pdg := sp.PDG()

	var sumP float64
	for i := 0; i < t.Len(); i++ {
		if t.PrimaryPDG[i] != pdg {
			continue
		}
		k, err := physics.Kinematic(t.PrimaryMom[i], props.Mass)
		if err != nil {
			return BetaSummary{}, fmt.Errorf("event %d: %w", t.EventID[i], err)
		}
		spectrum.Fill(t.RICH1Beta[i], 1)
		residual.Fill((t.RICH1Beta[i]-k.Beta)/k.Beta, 1)
		sumP += t.PrimaryMom[i]
	}
	if spectrum.Entries() == 0 {
		return BetaSummary{}, fmt.Errorf("%w %s", ErrNoParticles, sp)
	}

	k, err := physics.Kinematic(sumP/float64(spectrum.Entries()), props.Mass)
	if err != nil {
		return BetaSummary{}, err
	}
	return BetaSummary{
		Species:    sp,
		Entries:    spectrum.Entries(),
		TrueBeta:   k.Beta,
		Mean:       spectrum.XMean(),
		StdDev:     spectrum.XStdDev(),
		Resolution: residual.XStdDev(),
		Spectrum:   spectrum,
	}, nil
}
