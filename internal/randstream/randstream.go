// Package randstream derives independent, reproducible random streams for a
// simulation run. Every observable of every stage draws from its own stream,
// so adding, removing or reordering stages never shifts another stage's
// numbers and no two observables share state.
package randstream

import (
	"math/rand/v2"
)

// Stream identifies one random observable.
type Stream uint64

const (
	Species Stream = iota + 1
	Momentum
	SpotX
	SpotY
	Divergence
	DecayDistance
	DecayAngle
	RICH1Beta
	RICH1NPE
	RICH2Beta
	RICH2NPE
	Calorimeter
	DWC1
	DWC2
)

// Source is the seed material of one run.
type Source struct {
	Seed uint64
	Run  int
}

// New returns the source of run index run for a base seed.
func New(seed uint64, run int) Source {
	return Source{Seed: seed, Run: run}
}

// For returns a fresh PCG stream for s. Calling For twice with the same
// stream yields identical sequences.
func (src Source) For(s Stream) *rand.PCG {
	hi := splitmix64(src.Seed ^ splitmix64(uint64(src.Run)+1))
	lo := splitmix64(hi ^ uint64(s))
	return rand.NewPCG(hi, lo)
}

// Rand wraps For in a *rand.Rand.
func (src Source) Rand(s Stream) *rand.Rand {
	return rand.New(src.For(s))
}

// splitmix64 is the finaliser of the SplitMix64 generator, used to spread
// small seeds over the whole 64-bit space.
func splitmix64(x uint64) uint64 {
	x += 0x9e3779b97f4a7c15
	x = (x ^ (x >> 30)) * 0xbf58476d1ce4e5b9
	x = (x ^ (x >> 27)) * 0x94d049bb133111eb
	return x ^ (x >> 31)
}
