package analysis

import (
	"github.com/nvandessel/timedilation/internal/event"
	"github.com/nvandessel/timedilation/internal/physics"
)

// Rows and columns of the confusion matrix.
var (
	TrueSpecies = []physics.Species{physics.Pion, physics.Kaon, physics.Muon}
	RecoSpecies = []physics.Species{physics.Pion, physics.Kaon, physics.Muon, physics.Unknown}
)

// ConfusionMatrix counts reconstructed labels per true species.
// Counts[i][j] is the number of TrueSpecies[i] reconstructed as RecoSpecies[j].
type ConfusionMatrix struct {
	Counts [3][4]int
}

// Confusion builds the matrix of t.
func Confusion(t *event.Table) ConfusionMatrix {
	var m ConfusionMatrix
	for i := 0; i < t.Len(); i++ {
		ti := index(TrueSpecies, physics.FromPDG(t.PrimaryPDG[i]))
		ri := index(RecoSpecies, physics.FromPDG(t.ReconstructedPID[i]))
		if ti < 0 || ri < 0 {
			continue
		}
		m.Counts[ti][ri]++
	}
	return m
}

func index(set []physics.Species, sp physics.Species) int {
	for i, s := range set {
		if s == sp {
			return i
		}
	}
	return -1
}

// Efficiency is the fraction of true sp reconstructed as sp. ok is false
// when no particle of sp was generated.
func (m ConfusionMatrix) Efficiency(sp physics.Species) (eff float64, ok bool) {
	ti := index(TrueSpecies, sp)
	if ti < 0 {
		return 0, false
	}
	var total int
	for _, n := range m.Counts[ti] {
		total += n
	}
	if total == 0 {
		return 0, false
	}
	return float64(m.Counts[ti][ti]) / float64(total), true
}

// Purity is the fraction of particles reconstructed as sp that truly are
// sp. ok is false when nothing was reconstructed as sp.
func (m ConfusionMatrix) Purity(sp physics.Species) (purity float64, ok bool) {
	ri := index(RecoSpecies, sp)
	ti := index(TrueSpecies, sp)
	if ri < 0 || ti < 0 {
		return 0, false
	}
	var total int
	for i := range TrueSpecies {
		total += m.Counts[i][ri]
	}
	if total == 0 {
		return 0, false
	}
	return float64(m.Counts[ti][ri]) / float64(total), true
}
