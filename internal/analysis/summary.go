package analysis

import (
	"github.com/nvandessel/timedilation/internal/decay"
	"github.com/nvandessel/timedilation/internal/event"
	"github.com/nvandessel/timedilation/internal/physics"
)

// Summary is the per-run result reported after each run.
type Summary struct {
	Run       int             `json:"run"`
	DistanceM float64         `json:"distance_m"`
	PlaneZ    float64         `json:"plane_z_cm"`
	Events    int             `json:"events"`
	Decayed   int             `json:"decayed"`
	Survival  []SpeciesResult `json:"survival"`
	Kink      KinkSummary     `json:"kink"`
}

// SpeciesResult is the observed and expected survival of one species.
type SpeciesResult struct {
	Species  string  `json:"species"`
	PDG      int32   `json:"pdg"`
	Total    int     `json:"total"`
	Survived int     `json:"survived"`
	Fraction float64 `json:"fraction"`
	Sigma    float64 `json:"sigma"`
	Expected float64 `json:"expected"`
	Passed   bool    `json:"passed"`
}

// Summarize condenses a finished run. out may be nil when the run was read
// back from storage, in which case no kink statistics are reported.
func Summarize(t *event.Table, out *decay.Outcomes, planeZ float64, tol Tolerance) (Summary, error) {
	s := Summary{
		Run:       t.Run.Number,
		DistanceM: t.Run.DistanceM,
		PlaneZ:    planeZ,
		Events:    t.Len(),
	}
	for _, d := range t.Decayed {
		s.Decayed += int(d)
	}

	checks, err := Validate(t, planeZ, tol)
	if err != nil {
		return Summary{}, err
	}
	for _, c := range checks {
		obs := Survival(t, c.Species)
		s.Survival = append(s.Survival, SpeciesResult{
			Species:  c.Species.String(),
			PDG:      c.Species.PDG(),
			Total:    obs.Total,
			Survived: obs.Survived,
			Fraction: obs.Fraction,
			Sigma:    obs.Sigma,
			Expected: c.Expected,
			Passed:   c.Passed,
		})
	}
	if out != nil {
		s.Kink = KinkStats(out)
	}
	return s, nil
}

// Fractions maps species name to observed survival fraction.
func (s Summary) Fractions() map[string]float64 {
	m := make(map[string]float64, len(s.Survival))
	for _, r := range s.Survival {
		m[r.Species] = r.Fraction
	}
	return m
}

// Result returns the survival of sp, or false if sp was not generated.
func (s Summary) Result(sp physics.Species) (SpeciesResult, bool) {
	for _, r := range s.Survival {
		if r.PDG == sp.PDG() {
			return r, true
		}
	}
	return SpeciesResult{}, false
}
