package analysis

import (
	"errors"
	"fmt"
	"math"

	"github.com/nvandessel/timedilation/internal/event"
	"github.com/nvandessel/timedilation/internal/physics"
)

// ErrNoParticles is returned when a table holds no particle of the
// requested species.
var ErrNoParticles = errors.New("no particles of species")

// SurvivalCount is the observed survival of one species.
type SurvivalCount struct {
	Species  physics.Species
	Total    int
	Survived int
	Fraction float64
	Sigma    float64 // binomial uncertainty of Fraction
}

// Survival counts the survivors of sp in t.
func Survival(t *event.Table, sp physics.Species) SurvivalCount {
	c := SurvivalCount{Species: sp}
	pdg := sp.PDG()
	for i := 0; i < t.Len(); i++ {
		if t.PrimaryPDG[i] != pdg {
			continue
		}
		c.Total++
		if t.Survived[i] == 1 {
			c.Survived++
		}
	}
	if c.Total > 0 {
		c.Fraction = float64(c.Survived) / float64(c.Total)
		c.Sigma = math.Sqrt(c.Fraction * (1 - c.Fraction) / float64(c.Total))
	}
	return c
}

// ExpectedSurvival is the closed-form survival of sp averaged over the
// particles actually generated: the mean of exp(-(planeZ - z)/λ(p)).
func ExpectedSurvival(t *event.Table, sp physics.Species, planeZ float64) (float64, error) {
	props, ok := sp.Lookup()
	if !ok {
		return 0, fmt.Errorf("expected survival: %w", physics.NewConfigError("species", sp, "not simulated"))
	}
	pdg := sp.PDG()
	var sum float64
	var n int
	for i := 0; i < t.Len(); i++ {
		if t.PrimaryPDG[i] != pdg {
			continue
		}
		k, err := physics.Kinematic(t.PrimaryMom[i], props.Mass)
		if err != nil {
			return 0, fmt.Errorf("event %d: %w", t.EventID[i], err)
		}
		lambda, err := physics.DecayLength(k, props.Lifetime)
		if err != nil {
			return 0, err
		}
		sum += physics.SurvivalProbability(planeZ-t.PrimaryPosZ[i], lambda)
		n++
	}
	if n == 0 {
		return 0, fmt.Errorf("%w %s", ErrNoParticles, sp)
	}
	return sum / float64(n), nil
}

// Tolerance is the pass criterion of a survival check.
type Tolerance struct {
	Relative float64 // maximum relative deviation
	Sigmas   float64 // maximum deviation in binomial standard deviations
}

// DefaultTolerance accepts 5% relative or 3σ.
func DefaultTolerance() Tolerance {
	return Tolerance{Relative: 0.05, Sigmas: 3}
}

// Check compares observed and expected survival of one species.
type Check struct {
	Species  physics.Species
	Total    int
	Observed float64
	Expected float64
	Sigma    float64
	RelErr   float64
	Passed   bool
}

// Validate checks every species present in t against its expectation at
// planeZ. A check passes on either criterion of tol.
func Validate(t *event.Table, planeZ float64, tol Tolerance) ([]Check, error) {
	var checks []Check
	for _, sp := range physics.All() {
		obs := Survival(t, sp)
		if obs.Total == 0 {
			continue
		}
		exp, err := ExpectedSurvival(t, sp, planeZ)
		if err != nil {
			return nil, err
		}
		c := Check{
			Species:  sp,
			Total:    obs.Total,
			Observed: obs.Fraction,
			Expected: exp,
			Sigma:    math.Sqrt(exp * (1 - exp) / float64(obs.Total)),
		}
		diff := math.Abs(obs.Fraction - exp)
		if exp > 0 {
			c.RelErr = diff / exp
		}
		c.Passed = (exp > 0 && c.RelErr < tol.Relative) || diff <= tol.Sigmas*c.Sigma
		checks = append(checks, c)
	}
	return checks, nil
}

// AllPassed reports whether every check passed.
func AllPassed(checks []Check) bool {
	for _, c := range checks {
		if !c.Passed {
			return false
		}
	}
	return true
}
