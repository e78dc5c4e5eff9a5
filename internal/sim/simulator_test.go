package sim

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/nvandessel/timedilation/internal/logging"
	"github.com/nvandessel/timedilation/internal/physics"
)

func newSimulator(t *testing.T, cfg Config) *Simulator {
	t.Helper()
	s, err := NewSimulator(cfg, nil, nil)
	if err != nil {
		t.Fatalf("NewSimulator: %v", err)
	}
	return s
}

func singleSpecies(sp physics.Species, events int) Config {
	cfg := DefaultConfig()
	cfg.Beam.Events = events
	cfg.Beam.PionFraction, cfg.Beam.KaonFraction, cfg.Beam.MuonFraction = 0, 0, 0
	switch sp {
	case physics.Pion:
		cfg.Beam.PionFraction = 1
	case physics.Kaon:
		cfg.Beam.KaonFraction = 1
	}
	return cfg
}

func TestRun_SurvivalScenarios(t *testing.T) {
	tests := []struct {
		name      string
		species   physics.Species
		events    int
		distanceM float64
		lo, hi    float64
	}{
		{"pions at 15 m", physics.Pion, 40000, 15, 0.96, 0.975},
		{"kaons at 15 m", physics.Kaon, 10000, 15, 0.74, 0.82},
		{"pions at 0 m", physics.Pion, 10000, 0, 0.995, 1.0},
		{"kaons at 0 m", physics.Kaon, 10000, 0, 0.98, 1.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newSimulator(t, singleSpecies(tt.species, tt.events))
			res, err := s.Run(context.Background(), RunConfiguration{Index: 0, DistanceM: tt.distanceM, Seed: 2024})
			if err != nil {
				t.Fatalf("Run: %v", err)
			}
			r, ok := res.Summary.Result(tt.species)
			if !ok {
				t.Fatalf("no %s in summary", tt.species)
			}
			if r.Fraction < tt.lo || r.Fraction > tt.hi {
				t.Errorf("survival = %.4f, want in [%.3f, %.3f]", r.Fraction, tt.lo, tt.hi)
			}
			if !r.Passed {
				t.Errorf("survival %.4f does not match expectation %.4f", r.Fraction, r.Expected)
			}
		})
	}
}

func TestRun_TableInvariants(t *testing.T) {
	s := newSimulator(t, DefaultConfig())
	res, err := s.Run(context.Background(), RunConfiguration{Index: 2, DistanceM: 10, Seed: 5})
	if err != nil {
		t.Fatal(err)
	}
	tbl := res.Table
	if err := tbl.Validate(); err != nil {
		t.Fatalf("table invalid: %v", err)
	}
	if tbl.Len() != 10000 || res.PlaneZ != 1000 {
		t.Fatalf("rows %d plane %v", tbl.Len(), res.PlaneZ)
	}
	for i := 0; i < tbl.Len(); i++ {
		if tbl.RunNumber[i] != 2 {
			t.Fatalf("row %d tagged with run %d", i, tbl.RunNumber[i])
		}
		if tbl.Decayed[i] == 1 && !(tbl.DecayPosZ[i] > tbl.PrimaryPosZ[i] && tbl.DecayPosZ[i] < res.PlaneZ) {
			t.Fatalf("row %d: decay z %v outside flight path", i, tbl.DecayPosZ[i])
		}
		if tbl.Decayed[i] == 1 && (tbl.RICH2NPE[i] != 0 || tbl.TOF[i] != 0) {
			t.Fatalf("row %d: decayed particle measured downstream", i)
		}
	}
}

func TestRunAll_OrderedAndReproducible(t *testing.T) {
	distances := []float64{0, 5, 10, 15}

	cfg := DefaultConfig()
	cfg.Beam.Events = 2000
	cfg.Workers = 1
	serial, err := newSimulator(t, cfg).RunAll(context.Background(), Runs(distances, 7), nil)
	if err != nil {
		t.Fatal(err)
	}

	cfg.Workers = 4
	var mu sync.Mutex
	var sunk []int
	parallel, err := newSimulator(t, cfg).RunAll(context.Background(), Runs(distances, 7),
		func(_ context.Context, r *RunResult) error {
			mu.Lock()
			defer mu.Unlock()
			sunk = append(sunk, r.Config.Index)
			return nil
		})
	if err != nil {
		t.Fatal(err)
	}

	if len(sunk) != len(distances) {
		t.Errorf("sink called %d times, want %d", len(sunk), len(distances))
	}
	for i := range distances {
		if parallel[i].Config.Index != i || parallel[i].Config.DistanceM != distances[i] {
			t.Fatalf("result %d out of order: %+v", i, parallel[i].Config)
		}
		a, b := serial[i].Table, parallel[i].Table
		for j := 0; j < a.Len(); j++ {
			if a.PrimaryMom[j] != b.PrimaryMom[j] || a.Survived[j] != b.Survived[j] || a.RICH1Beta[j] != b.RICH1Beta[j] {
				t.Fatalf("run %d row %d differs between serial and parallel execution", i, j)
			}
		}
	}

	near, far := survivors(parallel[0]), survivors(parallel[3])
	if far >= near {
		t.Errorf("survivors at 15 m (%d) not below 0 m (%d)", far, near)
	}
}

func survivors(r *RunResult) int {
	var n int
	for _, s := range r.Table.Survived {
		n += int(s)
	}
	return n
}

func TestRunAll_Errors(t *testing.T) {
	s := newSimulator(t, DefaultConfig())
	runs := []RunConfiguration{{Index: 0, DistanceM: 5}, {Index: 1, DistanceM: -1}}

	_, err := s.RunAll(context.Background(), runs, nil)
	var cfgErr *physics.ConfigError
	if !errors.As(err, &cfgErr) || cfgErr.Param != "run.distances_m" {
		t.Fatalf("expected ConfigError for run.distances_m, got %v", err)
	}

	sinkErr := errors.New("disk full")
	_, err = s.RunAll(context.Background(), Runs([]float64{0}, 1), func(context.Context, *RunResult) error { return sinkErr })
	if !errors.Is(err, sinkErr) {
		t.Fatalf("expected sink error, got %v", err)
	}
}

func TestRun_Cancelled(t *testing.T) {
	s := newSimulator(t, DefaultConfig())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := s.Run(ctx, RunConfiguration{DistanceM: 5}); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestNewSimulator_InvalidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Beam.MomentumMean = -8
	cfg.PID.BetaThreshold = 2
	_, err := NewSimulator(cfg, nil, nil)
	if err == nil {
		t.Fatal("expected error")
	}
	var cfgErr *physics.ConfigError
	if !errors.As(err, &cfgErr) {
		t.Errorf("expected *ConfigError in %v", err)
	}
}

func TestRun_WritesRunLog(t *testing.T) {
	dir := t.TempDir()
	rl := logging.NewRunLogger(dir, "debug")
	defer rl.Close()

	cfg := DefaultConfig()
	cfg.Beam.Events = 100
	var buf bytes.Buffer
	s, err := NewSimulator(cfg, logging.NewLogger("trace", &buf), rl)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.Run(context.Background(), RunConfiguration{Index: 1, DistanceM: 5}); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "run complete") {
		t.Errorf("expected run completion in log output, got %q", buf.String())
	}

	data, err := os.ReadFile(filepath.Join(dir, "runs.jsonl"))
	if err != nil {
		t.Fatalf("failed to read runs.jsonl: %v", err)
	}
	if !strings.Contains(string(data), `"distance_m":5`) {
		t.Errorf("run log missing run entry: %s", data)
	}
}
