// Package sim runs the full pipeline (beam, kinematics, decay, detector,
// PID and emission) for each station-separation configuration.
package sim

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nvandessel/timedilation/internal/analysis"
	"github.com/nvandessel/timedilation/internal/beam"
	"github.com/nvandessel/timedilation/internal/decay"
	"github.com/nvandessel/timedilation/internal/detector"
	"github.com/nvandessel/timedilation/internal/event"
	"github.com/nvandessel/timedilation/internal/logging"
	"github.com/nvandessel/timedilation/internal/physics"
	"github.com/nvandessel/timedilation/internal/pid"
	"github.com/nvandessel/timedilation/internal/randstream"
)

// Config is everything a Simulator needs besides the run list.
type Config struct {
	Beam      beam.Config
	Detector  detector.Config
	PID       pid.Config
	Tolerance analysis.Tolerance
	// Workers bounds the runs executed at once; 0 means GOMAXPROCS.
	Workers int
}

// DefaultConfig returns the reference experiment.
func DefaultConfig() Config {
	return Config{
		Beam:      beam.DefaultConfig(),
		Detector:  detector.DefaultConfig(),
		PID:       pid.DefaultConfig(),
		Tolerance: analysis.DefaultTolerance(),
	}
}

// Validate reports every invalid parameter of every stage.
func (c Config) Validate() error {
	errs := []error{c.Beam.Validate(), c.Detector.Validate(), c.PID.Validate()}
	if c.Workers < 0 {
		errs = append(errs, physics.NewConfigError("run.workers", c.Workers, "must be non-negative"))
	}
	return errors.Join(errs...)
}

// RunConfiguration identifies one run: its position in the distance list,
// the station separation and the base seed.
type RunConfiguration struct {
	Index     int
	DistanceM float64
	Seed      uint64
}

// PlaneZ is the downstream station position, cm.
func (rc RunConfiguration) PlaneZ() float64 { return rc.DistanceM * 100 }

// Validate checks the run's own parameters.
func (rc RunConfiguration) Validate() error {
	if rc.Index < 0 {
		return physics.NewConfigError("run.index", rc.Index, "must be non-negative")
	}
	if !(rc.DistanceM >= 0) {
		return physics.NewConfigError("run.distances_m", rc.DistanceM, "must be non-negative")
	}
	return nil
}

// Runs builds the run list for a set of distances sharing one seed.
func Runs(distances []float64, seed uint64) []RunConfiguration {
	runs := make([]RunConfiguration, len(distances))
	for i, d := range distances {
		runs[i] = RunConfiguration{Index: i, DistanceM: d, Seed: seed}
	}
	return runs
}

// RunResult is the complete output of one run.
type RunResult struct {
	Config   RunConfiguration
	PlaneZ   float64
	Table    *event.Table
	Outcomes *decay.Outcomes
	Summary  analysis.Summary
}

// Simulator executes runs. It holds no per-run state and is safe for
// concurrent use.
type Simulator struct {
	cfg        Config
	classifier *pid.Classifier
	logger     *slog.Logger
	runLog     *logging.RunLogger
}

// NewSimulator validates cfg and returns a Simulator. logger may be nil;
// runLog may be nil.
func NewSimulator(cfg Config, logger *slog.Logger, runLog *logging.RunLogger) (*Simulator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	classifier, err := pid.New(cfg.PID)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Simulator{cfg: cfg, classifier: classifier, logger: logger, runLog: runLog}, nil
}

// Config returns the simulator's configuration.
func (s *Simulator) Config() Config { return s.cfg }

// Run executes a single run. Every stage draws from streams keyed by
// (seed, run index), so the result does not depend on what else runs.
func (s *Simulator) Run(ctx context.Context, rc RunConfiguration) (*RunResult, error) {
	if err := rc.Validate(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	start := time.Now()
	src := randstream.New(rc.Seed, rc.Index)
	planeZ := rc.PlaneZ()
	log := s.logger.With("run", rc.Index, "distance_m", rc.DistanceM)

	prim, err := beam.Generate(s.cfg.Beam, src)
	if err != nil {
		return nil, fmt.Errorf("run %d: generating beam: %w", rc.Index, err)
	}
	log.Log(ctx, logging.LevelTrace, "beam generated", "events", prim.Len())

	kin, err := physics.ComputeKinematics(prim.Species, prim.Momentum)
	if err != nil {
		return nil, fmt.Errorf("run %d: kinematics: %w", rc.Index, err)
	}

	out, err := decay.Sample(prim, kin, planeZ, src)
	if err != nil {
		return nil, fmt.Errorf("run %d: sampling decays: %w", rc.Index, err)
	}
	log.Log(ctx, logging.LevelTrace, "decays sampled")

	resp, err := detector.Respond(s.cfg.Detector, prim, kin, out, src)
	if err != nil {
		return nil, fmt.Errorf("run %d: detector response: %w", rc.Index, err)
	}

	pids, err := s.classifier.ReconstructAll(resp)
	if err != nil {
		return nil, fmt.Errorf("run %d: reconstructing pid: %w", rc.Index, err)
	}

	table, err := event.Emit(event.RunInfo{Number: rc.Index, DistanceM: rc.DistanceM}, prim, kin, out, resp, pids)
	if err != nil {
		return nil, err
	}

	summary, err := analysis.Summarize(table, out, planeZ, s.cfg.Tolerance)
	if err != nil {
		return nil, fmt.Errorf("run %d: summarizing: %w", rc.Index, err)
	}

	elapsed := time.Since(start)
	log.Debug("run complete", "events", summary.Events, "decayed", summary.Decayed, "elapsed", elapsed)
	s.runLog.Log(logging.RunEntry{
		Run:       rc.Index,
		DistanceM: rc.DistanceM,
		Seed:      rc.Seed,
		Events:    summary.Events,
		Decayed:   summary.Decayed,
		Survival:  summary.Fractions(),
		Elapsed:   elapsed,
	})

	return &RunResult{
		Config:   rc,
		PlaneZ:   planeZ,
		Table:    table,
		Outcomes: out,
		Summary:  summary,
	}, nil
}

// RunAll executes runs concurrently and returns results in input order.
// The first failure cancels the runs not yet started. sink, if non-nil, is
// called with each result as soon as it is ready; it must be safe for
// concurrent use.
func (s *Simulator) RunAll(ctx context.Context, runs []RunConfiguration, sink func(context.Context, *RunResult) error) ([]*RunResult, error) {
	workers := s.cfg.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	results := make([]*RunResult, len(runs))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for i, rc := range runs {
		g.Go(func() error {
			res, err := s.Run(ctx, rc)
			if err != nil {
				return err
			}
			if sink != nil {
				if err := sink(ctx, res); err != nil {
					return fmt.Errorf("run %d: %w", rc.Index, err)
				}
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
