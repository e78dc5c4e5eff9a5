package physics

import "fmt"

// Species identifies a particle type in the simulation.
type Species int

const (
	Unknown Species = iota
	Pion
	Kaon
	Muon
)

// PDG codes of the fixed species set.
const (
	PDGUnknown int32 = 0
	PDGPion    int32 = 211
	PDGKaon    int32 = 321
	PDGMuon    int32 = -13 // μ+
)

// NominalMomentum is the central beam momentum (GeV/c) at which the
// expected β and decay length of each species are quoted.
const NominalMomentum = 8.0

// Properties is the static record of one species.
type Properties struct {
	Name     string
	PDG      int32
	Mass     float64 // GeV
	Lifetime float64 // rest-frame mean lifetime, ns
	Product  Species // dominant decay product, Unknown if not modelled

	NominalBeta        float64 // β at NominalMomentum
	NominalDecayLength float64 // λ at NominalMomentum, cm
}

var table = map[Species]Properties{
	Pion: {Name: "pion", PDG: PDGPion, Mass: 0.13957, Lifetime: 26.03, Product: Muon},
	Kaon: {Name: "kaon", PDG: PDGKaon, Mass: 0.49368, Lifetime: 12.38, Product: Muon},
	Muon: {Name: "muon", PDG: PDGMuon, Mass: 0.10566, Lifetime: 2196.98, Product: Unknown},
}

func init() {
	for sp, p := range table {
		k, err := Kinematic(NominalMomentum, p.Mass)
		if err != nil {
			panic(fmt.Sprintf("physics: species table: %v", err))
		}
		lambda, err := DecayLength(k, p.Lifetime)
		if err != nil {
			panic(fmt.Sprintf("physics: species table: %v", err))
		}
		p.NominalBeta = k.Beta
		p.NominalDecayLength = lambda
		table[sp] = p
	}
}

// All returns the simulated species in a stable order.
func All() []Species {
	return []Species{Pion, Kaon, Muon}
}

// Lookup returns the properties of s. ok is false for Unknown.
func (s Species) Lookup() (Properties, bool) {
	p, ok := table[s]
	return p, ok
}

// PDG returns the PDG code of s, or PDGUnknown.
func (s Species) PDG() int32 {
	if p, ok := table[s]; ok {
		return p.PDG
	}
	return PDGUnknown
}

func (s Species) String() string {
	if p, ok := table[s]; ok {
		return p.Name
	}
	return "unknown"
}

// FromPDG maps a PDG code to a species. Codes outside the fixed set map to Unknown.
func FromPDG(code int32) Species {
	switch code {
	case PDGPion:
		return Pion
	case PDGKaon:
		return Kaon
	case PDGMuon:
		return Muon
	default:
		return Unknown
	}
}

// ValidPDG reports whether code belongs to the fixed PDG set, including the
// unknown sentinel.
func ValidPDG(code int32) bool {
	switch code {
	case PDGPion, PDGKaon, PDGMuon, PDGUnknown:
		return true
	}
	return false
}
