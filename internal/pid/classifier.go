// Package pid reconstructs a species label from the measured observables.
package pid

import (
	"errors"
	"fmt"
	"math"

	"github.com/nvandessel/timedilation/internal/detector"
	"github.com/nvandessel/timedilation/internal/physics"
)

// DefaultBetaThreshold separates kaon-like from pion-like tracks at 8 GeV/c.
const DefaultBetaThreshold = 0.999

// Config controls the classification rule.
type Config struct {
	BetaThreshold float64
	// UseCalorimeter enables the second stage: an E/p band check applied
	// to tracks that reached the calorimeter.
	UseCalorimeter bool
}

// DefaultConfig returns the β-only classifier.
func DefaultConfig() Config {
	return Config{BetaThreshold: DefaultBetaThreshold}
}

// Validate checks that the threshold is a physical velocity.
func (c Config) Validate() error {
	if !(c.BetaThreshold > 0 && c.BetaThreshold < 1) {
		return physics.NewConfigError("pid.beta_threshold", c.BetaThreshold, "must be in (0, 1)")
	}
	return nil
}

// E/p bands of the calorimeter stage.
const (
	pionEoPLow  = 0.5
	pionEoPHigh = 0.8
	muonEoPMax  = 0.3
)

// Measurement is what the classifier sees of a single particle.
type Measurement struct {
	RICH1Beta float64
	RICH1NPE  int32
	RICH2Beta float64
	RICH2NPE  int32
	EoP       float64
}

// Beta picks the downstream RICH when it saw photons, the upstream one
// otherwise.
func (m Measurement) Beta() (float64, error) {
	beta := m.RICH1Beta
	if m.RICH2NPE > 0 {
		beta = m.RICH2Beta
	}
	if !(beta > 0) || math.IsInf(beta, 0) {
		return 0, physics.ErrNoMeasurement
	}
	return beta, nil
}

// Classifier applies the threshold rule.
type Classifier struct {
	cfg Config
}

// New returns a classifier after validating cfg.
func New(cfg Config) (*Classifier, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Classifier{cfg: cfg}, nil
}

// Classify returns the reconstructed species. A particle without a usable
// β measurement resolves to Unknown.
func (c *Classifier) Classify(m Measurement) physics.Species {
	sp, err := c.classify(m)
	if errors.Is(err, physics.ErrNoMeasurement) {
		return physics.Unknown
	}
	return sp
}

func (c *Classifier) classify(m Measurement) (physics.Species, error) {
	beta, err := m.Beta()
	if err != nil {
		return physics.Unknown, err
	}
	if beta < c.cfg.BetaThreshold {
		return physics.Kaon, nil
	}
	if !c.cfg.UseCalorimeter || m.EoP <= 0 {
		return physics.Pion, nil
	}
	switch {
	case m.EoP > pionEoPLow && m.EoP < pionEoPHigh:
		return physics.Pion, nil
	case m.EoP < muonEoPMax:
		return physics.Muon, nil
	default:
		return physics.Pion, nil
	}
}

// ReconstructAll classifies a whole population.
func (c *Classifier) ReconstructAll(r *detector.Responses) ([]physics.Species, error) {
	n := r.Len()
	if len(r.RICH1NPE) != n || len(r.RICH2Beta) != n || len(r.RICH2NPE) != n || len(r.CaloEoP) != n {
		return nil, fmt.Errorf("detector responses have ragged columns (%d particles)", n)
	}
	out := make([]physics.Species, n)
	for i := range out {
		out[i] = c.Classify(Measurement{
			RICH1Beta: r.RICH1Beta[i],
			RICH1NPE:  r.RICH1NPE[i],
			RICH2Beta: r.RICH2Beta[i],
			RICH2NPE:  r.RICH2NPE[i],
			EoP:       r.CaloEoP[i],
		})
	}
	return out, nil
}
