// Package physics holds the particle species table and the exact
// relativistic kinematics every other stage is built on.
//
// Units: GeV for mass, energy and momentum (c = 1), cm for lengths,
// ns for times. SpeedOfLight converts between the last two.
package physics

import (
	"math"
)

// SpeedOfLight is c in cm/ns.
const SpeedOfLight = 29.9792458

// MaxMomentum bounds configured beam momenta, GeV/c. Every species keeps
// β < 1 in float64 well beyond it.
const MaxMomentum = 1e4

// Kinematics is the derived state of a particle of known momentum and mass.
type Kinematics struct {
	Energy float64 // total energy, GeV
	Gamma  float64 // Lorentz factor E/m
	Beta   float64 // v/c, p/E
}

// BetaGamma returns β·γ, which equals p/m.
func (k Kinematics) BetaGamma() float64 {
	return k.Beta * k.Gamma
}

// Kinematic computes energy, γ and β from a momentum and a rest mass.
// It is exact: no noise is applied. It fails for a non-positive mass or
// momentum, and for p/m so large that β rounds to 1.
func Kinematic(momentum, mass float64) (Kinematics, error) {
	if !(mass > 0) || math.IsInf(mass, 0) {
		return Kinematics{}, NewConfigError("rest_mass", mass, "must be positive")
	}
	if !(momentum > 0) || math.IsInf(momentum, 0) {
		return Kinematics{}, NewConfigError("momentum", momentum, "must be positive")
	}
	energy := math.Hypot(momentum, mass)
	beta := momentum / energy
	if !(beta < 1) {
		return Kinematics{}, NewConfigError("momentum", momentum, "β rounds to 1 for this mass")
	}
	return Kinematics{
		Energy: energy,
		Gamma:  energy / mass,
		Beta:   beta,
	}, nil
}

// DecayLength returns the lab-frame mean decay length λ = β·γ·c·τ₀ in cm
// for a rest-frame lifetime tau in ns.
func DecayLength(k Kinematics, tau float64) (float64, error) {
	if !(tau > 0) {
		return 0, NewConfigError("lifetime", tau, "must be positive")
	}
	return k.BetaGamma() * SpeedOfLight * tau, nil
}

// SurvivalProbability returns exp(-distance/lambda), the expected fraction of
// particles that have not decayed after travelling distance.
func SurvivalProbability(distance, lambda float64) float64 {
	if distance <= 0 {
		return 1
	}
	return math.Exp(-distance / lambda)
}

// Columns is the columnar kinematic state of a particle population.
type Columns struct {
	Energy      []float64
	Gamma       []float64
	Beta        []float64
	DecayLength []float64 // cm
}

// Len returns the number of particles.
func (c *Columns) Len() int { return len(c.Beta) }

// ComputeKinematics evaluates Kinematic and DecayLength for every particle.
// species and momenta must have equal length.
func ComputeKinematics(species []Species, momenta []float64) (*Columns, error) {
	if len(species) != len(momenta) {
		return nil, NewConfigError("momenta", len(momenta), "length differs from species")
	}
	n := len(species)
	cols := &Columns{
		Energy:      make([]float64, n),
		Gamma:       make([]float64, n),
		Beta:        make([]float64, n),
		DecayLength: make([]float64, n),
	}
	for i, sp := range species {
		props, ok := sp.Lookup()
		if !ok {
			return nil, NewConfigError("species", int(sp), "not in species table")
		}
		k, err := Kinematic(momenta[i], props.Mass)
		if err != nil {
			return nil, err
		}
		lambda, err := DecayLength(k, props.Lifetime)
		if err != nil {
			return nil, err
		}
		cols.Energy[i] = k.Energy
		cols.Gamma[i] = k.Gamma
		cols.Beta[i] = k.Beta
		cols.DecayLength[i] = lambda
	}
	return cols, nil
}
