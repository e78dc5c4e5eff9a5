// Package decay samples decay-in-flight for a primary population and builds
// the two-body secondary track of every decay.
package decay

import (
	"fmt"
	"math"

	"go-hep.org/x/hep/fmom"
	"gonum.org/v1/gonum/spatial/r3"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/nvandessel/timedilation/internal/beam"
	"github.com/nvandessel/timedilation/internal/physics"
	"github.com/nvandessel/timedilation/internal/randstream"
)

// Outcomes is the columnar decay record of a population. For surviving
// particles every decay field is zero and Product is Unknown.
type Outcomes struct {
	Decayed  []bool
	Distance []float64 // sampled decay distance from the start position, cm
	X, Y, Z  []float64 // decay vertex, cm
	Time     []float64 // lab-frame time of flight to the vertex, ns
	Product  []physics.Species

	// Secondary track of the decay product; zero when there is none.
	ProductMomentum []float64 // GeV/c
	KinkAngle       []float64 // rad, between primary and secondary directions
}

// Len returns the number of particles.
func (o *Outcomes) Len() int { return len(o.Decayed) }

// Survived reports whether particle i reached the downstream plane.
func (o *Outcomes) Survived(i int) bool { return !o.Decayed[i] }

// Sample decides decay versus survival for every primary, given its
// kinematics and the downstream plane position planeZ (cm).
func Sample(prim *beam.Primaries, kin *physics.Columns, planeZ float64, src randstream.Source) (*Outcomes, error) {
	n := prim.Len()
	if kin.Len() != n {
		return nil, fmt.Errorf("kinematics has %d particles, primaries %d", kin.Len(), n)
	}
	out := &Outcomes{
		Decayed:         make([]bool, n),
		Distance:        make([]float64, n),
		X:               make([]float64, n),
		Y:               make([]float64, n),
		Z:               make([]float64, n),
		Time:            make([]float64, n),
		Product:         make([]physics.Species, n),
		ProductMomentum: make([]float64, n),
		KinkAngle:       make([]float64, n),
	}

	dist := src.For(randstream.DecayDistance)
	angles := distuv.Uniform{Min: 0, Max: 1, Src: src.For(randstream.DecayAngle)}

	for i := 0; i < n; i++ {
		lambda := kin.DecayLength[i]
		// Exponential with mean λ; memoryless, so N(x) = N0·exp(-x/λ) in aggregate.
		d := distuv.Exponential{Rate: 1 / lambda, Src: dist}.Rand()
		out.Distance[i] = d

		flight := planeZ - prim.Z[i]
		if !(d < flight) {
			continue
		}

		out.Decayed[i] = true
		out.X[i] = prim.X[i] + prim.ThetaX[i]*d
		out.Y[i] = prim.Y[i] + prim.ThetaY[i]*d
		out.Z[i] = prim.Z[i] + d
		out.Time[i] = d / (kin.Beta[i] * physics.SpeedOfLight)

		props, _ := prim.Species[i].Lookup()
		out.Product[i] = props.Product
		if props.Product == physics.Unknown {
			continue
		}
		product, _ := props.Product.Lookup()
		p, kink := secondary(
			props.Mass, product.Mass,
			prim.Momentum[i], kin.Energy[i],
			prim.ThetaX[i], prim.ThetaY[i],
			angles.Rand(), angles.Rand(),
		)
		out.ProductMomentum[i] = p
		out.KinkAngle[i] = kink
	}
	return out, nil
}

// secondary generates the charged product of a two-body decay
// parent -> product + massless neutrino, isotropic in the parent rest frame
// (u, v uniform in [0,1)), and returns its lab momentum and the angle to the
// parent direction.
func secondary(parentMass, productMass, p, e, thetaX, thetaY, u, v float64) (float64, float64) {
	pStar := (parentMass*parentMass - productMass*productMass) / (2 * parentMass)
	eStar := math.Hypot(pStar, productMass)

	cosTheta := 2*u - 1
	sinTheta := math.Sqrt(1 - cosTheta*cosTheta)
	phi := 2 * math.Pi * v
	rest := fmom.NewPxPyPzE(
		pStar*sinTheta*math.Cos(phi),
		pStar*sinTheta*math.Sin(phi),
		pStar*cosTheta,
		eStar,
	)

	dir := r3.Unit(r3.Vec{X: thetaX, Y: thetaY, Z: 1})
	parent := fmom.NewPxPyPzE(p*dir.X, p*dir.Y, p*dir.Z, e)

	lab := fmom.Boost(&rest, fmom.BoostOf(&parent))
	labP := r3.Vec{X: lab.Px(), Y: lab.Py(), Z: lab.Pz()}
	cos := math.Max(-1, math.Min(1, r3.Cos(labP, dir)))
	return r3.Norm(labP), math.Acos(cos)
}
