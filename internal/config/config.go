// Package config provides unified configuration loading for tdsim.
// It supports loading from YAML files and environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/nvandessel/timedilation/internal/analysis"
	"github.com/nvandessel/timedilation/internal/beam"
	"github.com/nvandessel/timedilation/internal/detector"
	"github.com/nvandessel/timedilation/internal/logging"
	"github.com/nvandessel/timedilation/internal/physics"
	"github.com/nvandessel/timedilation/internal/pid"
	"github.com/nvandessel/timedilation/internal/sim"
	"github.com/nvandessel/timedilation/internal/store"
)

// EnvPrefix prefixes every environment override, e.g. TDSIM_RUN_EVENTS.
const EnvPrefix = "TDSIM_"

// TdsimConfig contains all tdsim configuration settings.
type TdsimConfig struct {
	// Run selects how many events are simulated and at which distances.
	Run RunConfig `json:"run" yaml:"run" envPrefix:"RUN_"`

	Beam     BeamConfig     `json:"beam" yaml:"beam" envPrefix:"BEAM_"`
	Detector DetectorConfig `json:"detector" yaml:"detector" envPrefix:"DETECTOR_"`
	PID      PIDConfig      `json:"pid" yaml:"pid" envPrefix:"PID_"`

	// Output selects where and in which formats event tables are written.
	Output OutputConfig `json:"output" yaml:"output" envPrefix:"OUTPUT_"`

	Logging LoggingConfig `json:"logging" yaml:"logging" envPrefix:"LOG_"`
}

// RunConfig configures the run list.
type RunConfig struct {
	// Events is the number of primaries per run.
	Events int `json:"events" yaml:"events" env:"EVENTS"`

	// DistancesM lists the station separations in meters; one run each.
	DistancesM []float64 `json:"distances_m" yaml:"distances_m" env:"DISTANCES_M"`

	// Seed is the base seed. Run i draws from streams keyed by (Seed, i).
	Seed uint64 `json:"seed" yaml:"seed" env:"SEED"`

	// Workers bounds concurrent runs; 0 uses every CPU.
	Workers int `json:"workers" yaml:"workers" env:"WORKERS"`
}

// BeamConfig configures the primary beam.
type BeamConfig struct {
	PionFraction  float64 `json:"pion_fraction" yaml:"pion_fraction" env:"PION_FRACTION"`
	KaonFraction  float64 `json:"kaon_fraction" yaml:"kaon_fraction" env:"KAON_FRACTION"`
	MuonFraction  float64 `json:"muon_fraction" yaml:"muon_fraction" env:"MUON_FRACTION"`
	MomentumMean  float64 `json:"momentum_mean" yaml:"momentum_mean" env:"MOMENTUM_MEAN"`
	MomentumSigma float64 `json:"momentum_sigma" yaml:"momentum_sigma" env:"MOMENTUM_SIGMA"`
	SpotSigma     float64 `json:"spot_sigma" yaml:"spot_sigma" env:"SPOT_SIGMA"`
	StartZ        float64 `json:"start_z" yaml:"start_z" env:"START_Z"`
	Divergence    float64 `json:"divergence" yaml:"divergence" env:"DIVERGENCE"`
}

// DetectorConfig configures the detector noise model.
type DetectorConfig struct {
	RICHResolution float64 `json:"rich_resolution" yaml:"rich_resolution" env:"RICH_RESOLUTION"`
	NPEOffset      int     `json:"npe_offset" yaml:"npe_offset" env:"NPE_OFFSET"`
	NPEMean        float64 `json:"npe_mean" yaml:"npe_mean" env:"NPE_MEAN"`
	CaloMIP        float64 `json:"calo_mip" yaml:"calo_mip" env:"CALO_MIP"`
	CaloSigma      float64 `json:"calo_sigma" yaml:"calo_sigma" env:"CALO_SIGMA"`
	DWCBase        int     `json:"dwc_base" yaml:"dwc_base" env:"DWC_BASE"`
	DWCMean        float64 `json:"dwc_mean" yaml:"dwc_mean" env:"DWC_MEAN"`
	TOF            float64 `json:"tof" yaml:"tof" env:"TOF"`
}

// PIDConfig configures the particle-ID rule.
type PIDConfig struct {
	BetaThreshold float64 `json:"beta_threshold" yaml:"beta_threshold" env:"BETA_THRESHOLD"`

	// UseCalorimeter enables the E/p stage for tracks classified pion-like.
	UseCalorimeter bool `json:"use_calorimeter" yaml:"use_calorimeter" env:"USE_CALORIMETER"`
}

// OutputConfig configures persistence.
type OutputConfig struct {
	Dir     string   `json:"dir" yaml:"dir" env:"DIR"`
	Formats []string `json:"formats" yaml:"formats" env:"FORMATS"`
}

// LoggingConfig configures tdsim's logging behavior.
type LoggingConfig struct {
	// Level sets the log verbosity: "info" (default), "debug", or "trace".
	// "debug" enables the run trace in <output>/runs.jsonl.
	// "trace" additionally logs every pipeline stage.
	Level string `json:"level" yaml:"level" env:"LEVEL"`
}

// Default returns the reference experiment: 10,000 events at 0, 5, 10 and
// 15 m with a 95% π+ / 5% K+ beam at 8 ± 0.1 GeV/c.
func Default() *TdsimConfig {
	b := beam.DefaultConfig()
	d := detector.DefaultConfig()
	p := pid.DefaultConfig()
	return &TdsimConfig{
		Run: RunConfig{
			Events:     b.Events,
			DistancesM: []float64{0, 5, 10, 15},
			Seed:       42,
		},
		Beam: BeamConfig{
			PionFraction:  b.PionFraction,
			KaonFraction:  b.KaonFraction,
			MuonFraction:  b.MuonFraction,
			MomentumMean:  b.MomentumMean,
			MomentumSigma: b.MomentumSigma,
			SpotSigma:     b.SpotSigma,
			StartZ:        b.StartZ,
			Divergence:    b.Divergence,
		},
		Detector: DetectorConfig{
			RICHResolution: d.RICHResolution,
			NPEOffset:      d.NPEOffset,
			NPEMean:        d.NPEMean,
			CaloMIP:        d.CaloMIP,
			CaloSigma:      d.CaloSigma,
			DWCBase:        d.DWCBase,
			DWCMean:        d.DWCMean,
			TOF:            d.TOF,
		},
		PID: PIDConfig{
			BetaThreshold:  p.BetaThreshold,
			UseCalorimeter: p.UseCalorimeter,
		},
		Output: OutputConfig{
			Dir:     "tdsim-out",
			Formats: []string{store.FormatCSV},
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// DefaultPath returns ~/.tdsim/config.yaml.
func DefaultPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, ".tdsim", "config.yaml"), nil
}

// Load loads configuration and applies environment overrides.
// Order: defaults -> path (or ~/.tdsim/config.yaml when path is empty) -> environment variables.
// An explicit path must exist; the default path is optional.
func Load(path string) (*TdsimConfig, error) {
	config := Default()

	if path == "" {
		if p, err := DefaultPath(); err == nil {
			if _, statErr := os.Stat(p); statErr == nil {
				path = p
			}
		}
	}
	if path != "" {
		fileConfig, err := LoadFromFile(path)
		if err != nil {
			return nil, fmt.Errorf("loading config file: %w", err)
		}
		config = fileConfig
	}

	if err := applyEnvOverrides(config); err != nil {
		return nil, err
	}
	return config, nil
}

// LoadFromFile loads configuration from a specific YAML file. Keys absent
// from the file keep their defaults.
func LoadFromFile(path string) (*TdsimConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	config := Default()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	return config, nil
}

// Save writes the configuration as YAML, creating parent directories.
func (c *TdsimConfig) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	return os.WriteFile(path, data, 0600)
}

// applyEnvOverrides applies TDSIM_* environment variables. Unset variables
// leave the loaded value in place.
func applyEnvOverrides(config *TdsimConfig) error {
	if err := env.ParseWithOptions(config, env.Options{Prefix: EnvPrefix}); err != nil {
		return fmt.Errorf("parsing environment overrides: %w", err)
	}
	return nil
}

// SimConfig builds the simulator configuration.
func (c *TdsimConfig) SimConfig() sim.Config {
	return sim.Config{
		Beam: beam.Config{
			Events:        c.Run.Events,
			PionFraction:  c.Beam.PionFraction,
			KaonFraction:  c.Beam.KaonFraction,
			MuonFraction:  c.Beam.MuonFraction,
			MomentumMean:  c.Beam.MomentumMean,
			MomentumSigma: c.Beam.MomentumSigma,
			SpotSigma:     c.Beam.SpotSigma,
			StartZ:        c.Beam.StartZ,
			Divergence:    c.Beam.Divergence,
		},
		Detector: detector.Config{
			RICHResolution: c.Detector.RICHResolution,
			NPEOffset:      c.Detector.NPEOffset,
			NPEMean:        c.Detector.NPEMean,
			CaloMIP:        c.Detector.CaloMIP,
			CaloSigma:      c.Detector.CaloSigma,
			DWCBase:        c.Detector.DWCBase,
			DWCMean:        c.Detector.DWCMean,
			TOF:            c.Detector.TOF,
		},
		PID: pid.Config{
			BetaThreshold:  c.PID.BetaThreshold,
			UseCalorimeter: c.PID.UseCalorimeter,
		},
		Tolerance: analysis.DefaultTolerance(),
		Workers:   c.Run.Workers,
	}
}

// Runs builds the run list, one run per configured distance.
func (c *TdsimConfig) Runs() []sim.RunConfiguration {
	return sim.Runs(c.Run.DistancesM, c.Run.Seed)
}

// Validate checks every parameter and reports all invalid ones, each as a
// *physics.ConfigError naming the parameter and its value.
func (c *TdsimConfig) Validate() error {
	var errs []error
	if c.Run.Events <= 0 {
		errs = append(errs, physics.NewConfigError("run.events", c.Run.Events, "must be positive"))
	}
	if len(c.Run.DistancesM) == 0 {
		errs = append(errs, physics.NewConfigError("run.distances_m", c.Run.DistancesM, "at least one distance is required"))
	}
	for _, d := range c.Run.DistancesM {
		if !(d >= 0) {
			errs = append(errs, physics.NewConfigError("run.distances_m", d, "must be non-negative"))
		}
	}

	sc := c.SimConfig()
	// Events is reported once, under run.events.
	if sc.Beam.Events <= 0 {
		sc.Beam.Events = 1
	}
	errs = append(errs, sc.Validate())

	if len(c.Output.Formats) == 0 {
		errs = append(errs, physics.NewConfigError("output.formats", c.Output.Formats, "at least one format is required"))
	}
	for _, f := range c.Output.Formats {
		if !store.KnownFormat(f) {
			errs = append(errs, physics.NewConfigError("output.formats", f, "valid: csv, arrow, sqlite"))
		}
	}
	if !logging.ValidLevel(c.Logging.Level) {
		errs = append(errs, physics.NewConfigError("logging.level", c.Logging.Level, "valid: info, debug, trace, or empty for default"))
	}
	return errors.Join(errs...)
}
