package decay

import (
	"math"
	"testing"

	"github.com/nvandessel/timedilation/internal/beam"
	"github.com/nvandessel/timedilation/internal/physics"
	"github.com/nvandessel/timedilation/internal/randstream"
)

// monoBeam builds n particles of one species at a fixed momentum on axis.
func monoBeam(t *testing.T, sp physics.Species, n int, momentum, startZ float64) (*beam.Primaries, *physics.Columns) {
	t.Helper()
	prim := &beam.Primaries{
		Species:  make([]physics.Species, n),
		Momentum: make([]float64, n),
		X:        make([]float64, n),
		Y:        make([]float64, n),
		Z:        make([]float64, n),
		ThetaX:   make([]float64, n),
		ThetaY:   make([]float64, n),
	}
	for i := 0; i < n; i++ {
		prim.Species[i] = sp
		prim.Momentum[i] = momentum
		prim.Z[i] = startZ
	}
	kin, err := physics.ComputeKinematics(prim.Species, prim.Momentum)
	if err != nil {
		t.Fatalf("ComputeKinematics: %v", err)
	}
	return prim, kin
}

func survivalFraction(out *Outcomes) float64 {
	var n int
	for i := 0; i < out.Len(); i++ {
		if out.Survived(i) {
			n++
		}
	}
	return float64(n) / float64(out.Len())
}

func TestSample_SurvivalConvergence(t *testing.T) {
	const n = 100000
	tests := []struct {
		species  physics.Species
		distance float64 // cm
	}{
		{physics.Pion, 1500},
		{physics.Kaon, 1500},
		{physics.Kaon, 500},
	}

	for _, tt := range tests {
		t.Run(tt.species.String(), func(t *testing.T) {
			prim, kin := monoBeam(t, tt.species, n, 8.0, 0)
			out, err := Sample(prim, kin, tt.distance, randstream.New(11, 0))
			if err != nil {
				t.Fatal(err)
			}
			want := physics.SurvivalProbability(tt.distance, kin.DecayLength[0])
			got := survivalFraction(out)
			sigma := math.Sqrt(want * (1 - want) / n)
			if math.Abs(got-want) > 3*sigma+1e-12 {
				t.Errorf("survival = %.5f, want %.5f ± %.5f (3σ)", got, want, 3*sigma)
			}
		})
	}
}

func TestSample_DecayedFields(t *testing.T) {
	const startZ = -50.0
	const planeZ = 1500.0
	prim, kin := monoBeam(t, physics.Kaon, 20000, 8.0, startZ)
	for i := range prim.ThetaX {
		prim.ThetaX[i] = 0.002
		prim.X[i] = 1
	}

	out, err := Sample(prim, kin, planeZ, randstream.New(5, 1))
	if err != nil {
		t.Fatal(err)
	}

	var decays int
	for i := 0; i < out.Len(); i++ {
		if !out.Decayed[i] {
			if out.Z[i] != 0 || out.Time[i] != 0 || out.Product[i] != physics.Unknown || out.KinkAngle[i] != 0 {
				t.Fatalf("survivor %d has decay fields set", i)
			}
			continue
		}
		decays++
		if !(out.Z[i] > startZ && out.Z[i] < planeZ) {
			t.Fatalf("decay z %v outside (%v, %v)", out.Z[i], startZ, planeZ)
		}
		wantT := out.Distance[i] / (kin.Beta[i] * physics.SpeedOfLight)
		if math.Abs(out.Time[i]-wantT) > 1e-9 {
			t.Fatalf("decay time %v, want %v", out.Time[i], wantT)
		}
		if math.Abs(out.X[i]-(1+0.002*out.Distance[i])) > 1e-9 {
			t.Fatalf("decay x %v not on the primary track", out.X[i])
		}
		if out.Product[i] != physics.Muon {
			t.Fatalf("product %v, want muon", out.Product[i])
		}
		// A backward neutrino lets the muon carry slightly more than the parent momentum.
		if out.ProductMomentum[i] <= 0 || out.ProductMomentum[i] > 8.01 {
			t.Fatalf("secondary momentum %v outside (0, 8.01]", out.ProductMomentum[i])
		}
		if out.KinkAngle[i] < 0 || out.KinkAngle[i] > math.Pi {
			t.Fatalf("kink angle %v out of range", out.KinkAngle[i])
		}
	}
	if decays == 0 {
		t.Fatal("no kaon decayed over 15.5 m")
	}
}

func TestSample_ZeroFlight(t *testing.T) {
	prim, kin := monoBeam(t, physics.Kaon, 1000, 8.0, 0)
	out, err := Sample(prim, kin, 0, randstream.New(1, 0))
	if err != nil {
		t.Fatal(err)
	}
	if got := survivalFraction(out); got != 1 {
		t.Errorf("survival with no flight distance = %v, want 1", got)
	}
}

func TestSample_MuonHasNoModelledProduct(t *testing.T) {
	// Low momentum so that some muons decay within a short distance.
	prim, kin := monoBeam(t, physics.Muon, 5000, 0.05, 0)
	out, err := Sample(prim, kin, 5000, randstream.New(2, 0))
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < out.Len(); i++ {
		if out.Decayed[i] && (out.Product[i] != physics.Unknown || out.ProductMomentum[i] != 0) {
			t.Fatalf("muon decay %d recorded a product", i)
		}
	}
}

func TestSample_LengthMismatch(t *testing.T) {
	prim, kin := monoBeam(t, physics.Pion, 10, 8.0, 0)
	kin.Beta = kin.Beta[:5]
	if _, err := Sample(prim, kin, 100, randstream.New(0, 0)); err == nil {
		t.Fatal("expected error for mismatched columns")
	}
}

func TestSecondary_Kinematics(t *testing.T) {
	pion, _ := physics.Pion.Lookup()
	muon, _ := physics.Muon.Lookup()
	k, _ := physics.Kinematic(8.0, pion.Mass)

	// Forward emission in the rest frame gives the maximum lab momentum.
	pFwd, kinkFwd := secondary(pion.Mass, muon.Mass, 8.0, k.Energy, 0, 0, 1, 0)
	// Backward emission gives the minimum.
	pBwd, _ := secondary(pion.Mass, muon.Mass, 8.0, k.Energy, 0, 0, 0, 0)

	if !(pFwd > pBwd) {
		t.Errorf("forward momentum %v not above backward %v", pFwd, pBwd)
	}
	// Momentum balance: the backward neutrino carries γ·p*·(1-β).
	if pFwd > 8.0+1e-3 {
		t.Errorf("forward momentum %v exceeds parent beyond the neutrino recoil", pFwd)
	}
	// For π→μν at high γ the muon keeps between (mμ/mπ)² ≈ 57% and 100% of p.
	if lo := 8.0 * (muon.Mass * muon.Mass) / (pion.Mass * pion.Mass); pBwd < lo-0.01 {
		t.Errorf("backward momentum %v below kinematic limit %v", pBwd, lo)
	}
	if kinkFwd > 1e-6 {
		t.Errorf("forward kink %v, want ≈ 0", kinkFwd)
	}
}
