package pid

import (
	"errors"
	"testing"

	"github.com/nvandessel/timedilation/internal/detector"
	"github.com/nvandessel/timedilation/internal/physics"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		m    Measurement
		want physics.Species
	}{
		{"fast upstream only", DefaultConfig(), Measurement{RICH1Beta: 0.99985, RICH1NPE: 55}, physics.Pion},
		{"slow upstream only", DefaultConfig(), Measurement{RICH1Beta: 0.9981, RICH1NPE: 55}, physics.Kaon},
		{"downstream preferred", DefaultConfig(), Measurement{RICH1Beta: 0.9981, RICH2Beta: 0.9999, RICH2NPE: 60}, physics.Pion},
		{"downstream without photons ignored", DefaultConfig(), Measurement{RICH1Beta: 0.9981, RICH2Beta: 0.9999}, physics.Kaon},
		{"no beta", DefaultConfig(), Measurement{}, physics.Unknown},
		{"negative beta", DefaultConfig(), Measurement{RICH1Beta: -0.2}, physics.Unknown},
		{"calorimeter off ignores E/p", DefaultConfig(), Measurement{RICH1Beta: 0.9999, EoP: 0.01}, physics.Pion},
		{"calorimeter muon band", Config{BetaThreshold: 0.999, UseCalorimeter: true}, Measurement{RICH1Beta: 0.9999, EoP: 0.0125}, physics.Muon},
		{"calorimeter pion band", Config{BetaThreshold: 0.999, UseCalorimeter: true}, Measurement{RICH1Beta: 0.9999, EoP: 0.6}, physics.Pion},
		{"calorimeter between bands", Config{BetaThreshold: 0.999, UseCalorimeter: true}, Measurement{RICH1Beta: 0.9999, EoP: 0.4}, physics.Pion},
		{"calorimeter unmeasured", Config{BetaThreshold: 0.999, UseCalorimeter: true}, Measurement{RICH1Beta: 0.9999}, physics.Pion},
		{"kaon wins over calorimeter", Config{BetaThreshold: 0.999, UseCalorimeter: true}, Measurement{RICH1Beta: 0.998, EoP: 0.01}, physics.Kaon},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := New(tt.cfg)
			if err != nil {
				t.Fatalf("New: %v", err)
			}
			if got := c.Classify(tt.m); got != tt.want {
				t.Errorf("Classify() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMeasurement_BetaNoMeasurement(t *testing.T) {
	_, err := Measurement{}.Beta()
	if !errors.Is(err, physics.ErrNoMeasurement) {
		t.Errorf("expected ErrNoMeasurement, got %v", err)
	}
}

func TestConfig_Validate(t *testing.T) {
	for _, th := range []float64{0, 1, -0.5, 1.2} {
		_, err := New(Config{BetaThreshold: th})
		var cfgErr *physics.ConfigError
		if !errors.As(err, &cfgErr) {
			t.Errorf("threshold %v: expected *ConfigError, got %v", th, err)
			continue
		}
		if cfgErr.Param != "pid.beta_threshold" {
			t.Errorf("expected param pid.beta_threshold, got %s", cfgErr.Param)
		}
	}
}

func TestReconstructAll(t *testing.T) {
	r := &detector.Responses{
		RICH1Beta: []float64{0.99985, 0.9981, 0},
		RICH1NPE:  []int32{55, 58, 0},
		RICH2Beta: []float64{0.99983, 0, 0},
		RICH2NPE:  []int32{61, 0, 0},
		CaloEoP:   []float64{0.0125, 0, 0},
	}
	c, err := New(DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	got, err := c.ReconstructAll(r)
	if err != nil {
		t.Fatal(err)
	}
	want := []physics.Species{physics.Pion, physics.Kaon, physics.Unknown}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("particle %d: expected %v, got %v", i, want[i], got[i])
		}
	}

	r.CaloEoP = r.CaloEoP[:1]
	if _, err := c.ReconstructAll(r); err == nil {
		t.Error("expected error for ragged columns")
	}
}
