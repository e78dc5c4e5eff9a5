package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/nvandessel/timedilation/internal/analysis"
	"github.com/nvandessel/timedilation/internal/config"
	"github.com/nvandessel/timedilation/internal/logging"
	"github.com/nvandessel/timedilation/internal/sim"
	"github.com/nvandessel/timedilation/internal/store"
)

func newSimulateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Run the simulation at every configured station separation",
		Long: `Simulate one run per station separation and write each run's event table.

Every run is written atomically; a failed or interrupted run leaves no
partial file. The per-run survival table is printed when all runs finish.

Examples:
  tdsim simulate
  tdsim simulate --events 50000 --distances 0,5,10,15 --seed 7
  tdsim simulate --out data --format csv,sqlite`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			applySimulateFlags(cmd, cfg)
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration:\n%w", err)
			}

			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			summaries, err := runSimulation(ctx, cmd, cfg)
			if err != nil {
				return err
			}

			fits := analysis.FitRuns(summaries, cfg.Beam.StartZ, cfg.Beam.MomentumMean)
			jsonOut, _ := cmd.Flags().GetBool("json")
			if jsonOut {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]interface{}{
					"output": cfg.Output.Dir,
					"runs":   summaries,
					"fits":   fits,
				})
			}
			printSurvivalTable(cmd.OutOrStdout(), summaries)
			fmt.Fprintln(cmd.OutOrStdout())
			printFits(cmd.OutOrStdout(), fits)
			fmt.Fprintf(cmd.OutOrStdout(), "\nWrote %d run(s) to %s (%v)\n", len(summaries), cfg.Output.Dir, cfg.Output.Formats)
			return nil
		},
	}

	cmd.Flags().Int("events", 0, "Primaries per run (default from config)")
	cmd.Flags().Float64Slice("distances", nil, "Station separations in meters, one run each (default from config)")
	cmd.Flags().Uint64("seed", 0, "Base random seed (default from config)")
	cmd.Flags().String("out", "", "Output directory (default from config)")
	cmd.Flags().StringSlice("format", nil, "Output formats: csv, arrow, sqlite (default from config)")
	cmd.Flags().Int("workers", 0, "Concurrent runs, 0 for one per CPU (default from config)")

	return cmd
}

// applySimulateFlags overrides cfg with every flag the user set.
func applySimulateFlags(cmd *cobra.Command, cfg *config.TdsimConfig) {
	flags := cmd.Flags()
	if flags.Changed("events") {
		cfg.Run.Events, _ = flags.GetInt("events")
	}
	if flags.Changed("distances") {
		cfg.Run.DistancesM, _ = flags.GetFloat64Slice("distances")
	}
	if flags.Changed("seed") {
		cfg.Run.Seed, _ = flags.GetUint64("seed")
	}
	if flags.Changed("out") {
		cfg.Output.Dir, _ = flags.GetString("out")
	}
	if flags.Changed("format") {
		cfg.Output.Formats, _ = flags.GetStringSlice("format")
	}
	if flags.Changed("workers") {
		cfg.Run.Workers, _ = flags.GetInt("workers")
	}
}

// runSimulation executes every run, persisting each as soon as it finishes.
func runSimulation(ctx context.Context, cmd *cobra.Command, cfg *config.TdsimConfig) ([]analysis.Summary, error) {
	logger := newLogger(cmd, cfg)

	if err := os.MkdirAll(cfg.Output.Dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}
	st, err := store.Open(cfg.Output.Dir, cfg.Output.Formats)
	if err != nil {
		return nil, err
	}
	defer st.Close()

	runLog := logging.NewRunLogger(cfg.Output.Dir, cfg.Logging.Level)
	defer runLog.Close()

	simulator, err := sim.NewSimulator(cfg.SimConfig(), logger, runLog)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	logger.Info("simulating", "runs", len(cfg.Run.DistancesM), "events", cfg.Run.Events, "seed", cfg.Run.Seed)
	results, err := simulator.RunAll(ctx, cfg.Runs(), func(ctx context.Context, r *sim.RunResult) error {
		if err := st.WriteRun(ctx, r.Table); err != nil {
			return err
		}
		logger.Info("run written", "run", r.Config.Index, "distance_m", r.Config.DistanceM)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("simulation failed: %w", err)
	}
	logger.Info("simulation complete", "elapsed", time.Since(start).Round(time.Millisecond))

	summaries := make([]analysis.Summary, len(results))
	for i, r := range results {
		summaries[i] = r.Summary
	}
	return summaries, nil
}

// printSurvivalTable prints observed against expected survival per run.
func printSurvivalTable(w io.Writer, summaries []analysis.Summary) {
	fmt.Fprintf(w, "%-4s %8s %8s %8s  %-6s %8s %17s %9s  %s\n",
		"Run", "Dist(m)", "Events", "Decayed", "PID", "N", "Observed", "Expected", "")
	for _, s := range summaries {
		for i, r := range s.Survival {
			prefix := fmt.Sprintf("%-4d %8.2f %8d %8d", s.Run, s.DistanceM, s.Events, s.Decayed)
			if i > 0 {
				prefix = fmt.Sprintf("%-4s %8s %8s %8s", "", "", "", "")
			}
			status := "ok"
			if !r.Passed {
				status = "FAIL"
			}
			fmt.Fprintf(w, "%s  %-6s %8d %8.5f±%.5f %9.5f  %s\n",
				prefix, r.Species, r.Total, r.Fraction, r.Sigma, r.Expected, status)
		}
	}
}

// printFits prints the decay-length fit of every species.
func printFits(w io.Writer, fits []analysis.SpeciesFit) {
	fmt.Fprintln(w, "Decay-length fit, ln S = -x/lambda:")
	for _, f := range fits {
		if f.Error != "" {
			fmt.Fprintf(w, "  %-6s (%d points) %s\n", f.Species, f.Points, f.Error)
			continue
		}
		fmt.Fprintf(w, "  %-6s lambda = %.1f ± %.1f cm (expected %.1f), tau0 = %.3f ± %.3f ns, chi2/ndf = %.2f/%d\n",
			f.Species, f.Lambda, f.LambdaErr, f.Expected, f.Lifetime, f.TauErr, f.Chi2, f.NDF)
	}
}
