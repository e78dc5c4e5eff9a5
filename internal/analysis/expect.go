package analysis

import (
	"fmt"

	"github.com/nvandessel/timedilation/internal/physics"
)

// Expectation is the closed-form prediction for one species at one momentum.
type Expectation struct {
	Species     string    `json:"species"`
	PDG         int32     `json:"pdg"`
	Mass        float64   `json:"mass_gev"`
	Lifetime    float64   `json:"lifetime_ns"`
	Beta        float64   `json:"beta"`
	Gamma       float64   `json:"gamma"`
	DecayLength float64   `json:"decay_length_cm"`
	Survival    []float64 `json:"survival"` // one per flight distance
}

// Expect predicts β, γ, λ and the survival over each flight distance (cm)
// for every simulated species at the given momentum.
func Expect(momentum float64, flights []float64) ([]Expectation, error) {
	out := make([]Expectation, 0, len(physics.All()))
	for _, sp := range physics.All() {
		props, _ := sp.Lookup()
		k, err := physics.Kinematic(momentum, props.Mass)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", sp, err)
		}
		lambda, err := physics.DecayLength(k, props.Lifetime)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", sp, err)
		}
		e := Expectation{
			Species:     sp.String(),
			PDG:         props.PDG,
			Mass:        props.Mass,
			Lifetime:    props.Lifetime,
			Beta:        k.Beta,
			Gamma:       k.Gamma,
			DecayLength: lambda,
			Survival:    make([]float64, len(flights)),
		}
		for i, x := range flights {
			e.Survival[i] = physics.SurvivalProbability(x, lambda)
		}
		out = append(out, e)
	}
	return out, nil
}

// SpeciesFit is the decay-length fit of one species across runs.
type SpeciesFit struct {
	Species   string  `json:"species"`
	Lambda    float64 `json:"lambda_cm"`
	LambdaErr float64 `json:"lambda_err_cm"`
	Expected  float64 `json:"expected_lambda_cm"` // at the nominal momentum
	Lifetime  float64 `json:"lifetime_ns"`
	TauErr    float64 `json:"lifetime_err_ns"`
	Chi2      float64 `json:"chi2"`
	NDF       int     `json:"ndf"`
	Points    int     `json:"points"`
	Error     string  `json:"error,omitempty"`
}

// FitRuns fits the decay length of every species seen in the summaries,
// measuring flight from startZ (cm) to each run's downstream plane. The
// implied lifetime uses βγ at momentum.
func FitRuns(summaries []Summary, startZ, momentum float64) []SpeciesFit {
	var fits []SpeciesFit
	for _, sp := range physics.All() {
		var pts []Point
		for _, s := range summaries {
			r, ok := s.Result(sp)
			if !ok {
				continue
			}
			pts = append(pts, Point{X: s.PlaneZ - startZ, S: r.Fraction, Sigma: r.Sigma})
		}
		if len(pts) == 0 {
			continue
		}

		props, _ := sp.Lookup()
		f := SpeciesFit{Species: sp.String(), Expected: props.NominalDecayLength, Points: len(pts)}
		fit, err := FitDecayLength(pts)
		if err != nil {
			f.Error = err.Error()
			fits = append(fits, f)
			continue
		}
		f.Lambda, f.LambdaErr, f.Chi2, f.NDF = fit.Lambda, fit.LambdaErr, fit.Chi2, fit.NDF
		if k, err := physics.Kinematic(momentum, props.Mass); err == nil {
			f.Lifetime, f.TauErr = fit.Lifetime(k.BetaGamma())
		}
		fits = append(fits, f)
	}
	return fits
}
