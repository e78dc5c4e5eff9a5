package beam

import (
	"errors"
	"math"
	"testing"

	"github.com/nvandessel/timedilation/internal/physics"
	"github.com/nvandessel/timedilation/internal/randstream"
)

func TestDefaultConfig_Valid(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		param  string
	}{
		{"no events", func(c *Config) { c.Events = 0 }, "beam.events"},
		{"zero momentum", func(c *Config) { c.MomentumMean = 0 }, "beam.momentum_mean"},
		{"negative momentum", func(c *Config) { c.MomentumMean = -8 }, "beam.momentum_mean"},
		{"negative sigma", func(c *Config) { c.MomentumSigma = -0.1 }, "beam.momentum_sigma"},
		{"momentum too large", func(c *Config) { c.MomentumMean = 1e7 }, "beam.momentum_mean"},
		{"sigma too large", func(c *Config) { c.MomentumSigma = 1e6 }, "beam.momentum_sigma"},
		{"negative spot", func(c *Config) { c.SpotSigma = -1 }, "beam.spot_sigma"},
		{"bad fraction", func(c *Config) { c.KaonFraction = 1.5 }, "beam.kaon_fraction"},
		{"fractions do not sum", func(c *Config) { c.PionFraction = 0.5 }, "beam fractions"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			var cfgErr *physics.ConfigError
			if !errors.As(err, &cfgErr) {
				t.Fatalf("expected *ConfigError in %v", err)
			}
			found := false
			for _, e := range unwrapAll(err) {
				if errors.As(e, &cfgErr) && cfgErr.Param == tt.param {
					found = true
				}
			}
			if !found {
				t.Errorf("error %q does not name %s", err, tt.param)
			}
		})
	}
}

func unwrapAll(err error) []error {
	if j, ok := err.(interface{ Unwrap() []error }); ok {
		return j.Unwrap()
	}
	return []error{err}
}

func TestGenerate_Reproducible(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Events = 500

	a, err := Generate(cfg, randstream.New(7, 2))
	if err != nil {
		t.Fatal(err)
	}
	b, err := Generate(cfg, randstream.New(7, 2))
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < a.Len(); i++ {
		if a.Species[i] != b.Species[i] || a.Momentum[i] != b.Momentum[i] || a.X[i] != b.X[i] {
			t.Fatalf("particle %d differs between identical seeds", i)
		}
	}
}

func TestGenerate_Distributions(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Events = 20000

	p, err := Generate(cfg, randstream.New(1, 0))
	if err != nil {
		t.Fatal(err)
	}
	if p.Len() != cfg.Events {
		t.Fatalf("Len() = %d, want %d", p.Len(), cfg.Events)
	}

	var kaons int
	var sumP, sumX float64
	for i := 0; i < p.Len(); i++ {
		if p.Species[i] == physics.Kaon {
			kaons++
		}
		if p.Species[i] != physics.Pion && p.Species[i] != physics.Kaon {
			t.Fatalf("unexpected species %v with zero muon fraction", p.Species[i])
		}
		if p.Z[i] != cfg.StartZ {
			t.Fatalf("Z[%d] = %v, want %v", i, p.Z[i], cfg.StartZ)
		}
		sumP += p.Momentum[i]
		sumX += p.X[i]
	}

	n := float64(cfg.Events)
	frac := float64(kaons) / n
	sigma := math.Sqrt(0.05 * 0.95 / n)
	if math.Abs(frac-0.05) > 4*sigma {
		t.Errorf("kaon fraction = %.4f, want 0.05 ± %.4f", frac, 4*sigma)
	}
	if mean := sumP / n; math.Abs(mean-8.0) > 4*0.1/math.Sqrt(n) {
		t.Errorf("mean momentum = %.5f, want 8.0", mean)
	}
	if mean := sumX / n; math.Abs(mean) > 4/math.Sqrt(n) {
		t.Errorf("mean x = %.5f, want 0", mean)
	}
}

func TestGenerate_MomentumAlwaysPositive(t *testing.T) {
	// A spread far wider than the mean forces the redraw path often.
	cfg := DefaultConfig()
	cfg.Events = 5000
	cfg.MomentumMean = 0.5
	cfg.MomentumSigma = 2.0

	p, err := Generate(cfg, randstream.New(99, 0))
	if err != nil {
		t.Fatal(err)
	}
	for i, mom := range p.Momentum {
		if mom <= 0 {
			t.Fatalf("Momentum[%d] = %v, want > 0", i, mom)
		}
	}
}

func TestGenerate_MuonFraction(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Events = 2000
	cfg.PionFraction = 0
	cfg.KaonFraction = 0
	cfg.MuonFraction = 1

	p, err := Generate(cfg, randstream.New(3, 0))
	if err != nil {
		t.Fatal(err)
	}
	for i, sp := range p.Species {
		if sp != physics.Muon {
			t.Fatalf("Species[%d] = %v, want muon", i, sp)
		}
	}
}

func TestGenerate_InvalidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MomentumMean = -1
	if _, err := Generate(cfg, randstream.New(0, 0)); err == nil {
		t.Fatal("expected error before generation")
	}
}
