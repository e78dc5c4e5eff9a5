package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/nvandessel/timedilation/internal/analysis"
	"github.com/nvandessel/timedilation/internal/config"
	"github.com/nvandessel/timedilation/internal/event"
	"github.com/nvandessel/timedilation/internal/physics"
	"github.com/nvandessel/timedilation/internal/sim"
	"github.com/nvandessel/timedilation/internal/store"
)

// ValidationReport is the outcome of validating emitted runs.
type ValidationReport struct {
	Input     string                   `json:"input"`
	Runs      []analysis.Summary       `json:"runs"`
	Fits      []analysis.SpeciesFit    `json:"fits"`
	Confusion analysis.ConfusionMatrix `json:"confusion"`
	Beta      []BetaReport             `json:"beta,omitempty"`
	Problems  []string                 `json:"problems,omitempty"`
	Passed    bool                     `json:"passed"`
}

// BetaReport is the RICH1 β measurement of one species over every run.
type BetaReport struct {
	Species    string  `json:"species"`
	Entries    int64   `json:"entries"`
	TrueBeta   float64 `json:"true_beta"`
	Mean       float64 `json:"mean"`
	Resolution float64 `json:"resolution"`
}

func newValidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check emitted runs against the expected survival",
		Long: `Read the emitted event tables back and validate them.

Each table is checked for schema and value domains, then the survival
fraction of every species is compared with exp(-d/lambda) at the configured
distance of its run (with --db, the distance recorded in the database).
The confusion matrix and a decay-length fit across runs are printed. Exits non-zero when any check fails.

Examples:
  tdsim validate --input tdsim-out
  tdsim validate --input tdsim-out --format arrow
  tdsim validate --input tdsim-out --db`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			input, _ := cmd.Flags().GetString("input")
			if input == "" {
				input = cfg.Output.Dir
			}
			format, _ := cmd.Flags().GetString("format")
			if useDB, _ := cmd.Flags().GetBool("db"); useDB {
				format = store.FormatSQLite
			}
			if !store.KnownFormat(format) {
				return physics.NewConfigError("format", format, "valid: csv, arrow, sqlite")
			}

			tables, err := readTables(cmd.Context(), input, format)
			if err != nil {
				return err
			}
			if len(tables) == 0 {
				return fmt.Errorf("no %s runs found in %s", format, input)
			}

			report := validateTables(cfg, tables, format == store.FormatSQLite)
			report.Input = input

			jsonOut, _ := cmd.Flags().GetBool("json")
			if jsonOut {
				if err := json.NewEncoder(cmd.OutOrStdout()).Encode(report); err != nil {
					return err
				}
			} else {
				printReport(cmd.OutOrStdout(), report)
			}

			if !report.Passed {
				return fmt.Errorf("validation failed: %d problem(s)", len(report.Problems))
			}
			return nil
		},
	}

	cmd.Flags().String("input", "", "Directory holding the emitted runs (default from config)")
	cmd.Flags().String("format", store.FormatCSV, "Run file format to read: csv or arrow")
	cmd.Flags().Bool("db", false, "Read runs from the SQLite database instead of run files")

	return cmd
}

// readTables loads every run in dir.
func readTables(ctx context.Context, dir, format string) ([]*event.Table, error) {
	if format != store.FormatSQLite {
		tables, err := store.ReadDir(dir, format)
		if err != nil {
			return nil, fmt.Errorf("failed to read runs: %w", err)
		}
		return tables, nil
	}

	db, err := store.OpenSQLiteStore(dir)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	runs, err := db.Runs(ctx)
	if err != nil {
		return nil, err
	}
	tables := make([]*event.Table, 0, len(runs))
	for _, r := range runs {
		t, err := db.LoadRun(ctx, r.Number)
		if err != nil {
			return nil, err
		}
		tables = append(tables, t)
	}
	return tables, nil
}

// validateTables checks every table against the expected survival. When
// storedDistances is set each table keeps the distance recorded with it;
// otherwise a run is matched to the configured distance by run number.
func validateTables(cfg *config.TdsimConfig, tables []*event.Table, storedDistances bool) ValidationReport {
	report := ValidationReport{Passed: true}
	fail := func(format string, args ...any) {
		report.Problems = append(report.Problems, fmt.Sprintf(format, args...))
		report.Passed = false
	}
	tol := analysis.DefaultTolerance()

	for _, t := range tables {
		if err := t.Validate(); err != nil {
			fail("run %d: %v", t.Run.Number, err)
			continue
		}
		if !storedDistances {
			if t.Run.Number < 0 || t.Run.Number >= len(cfg.Run.DistancesM) {
				fail("run %d: no configured distance (have %d)", t.Run.Number, len(cfg.Run.DistancesM))
				continue
			}
			t.Run.DistanceM = cfg.Run.DistancesM[t.Run.Number]
		}
		rc := sim.RunConfiguration{Index: t.Run.Number, DistanceM: t.Run.DistanceM}

		summary, err := analysis.Summarize(t, nil, rc.PlaneZ(), tol)
		if err != nil {
			fail("run %d: %v", t.Run.Number, err)
			continue
		}
		for _, r := range summary.Survival {
			if !r.Passed {
				fail("run %d: %s survival %.5f ± %.5f, expected %.5f",
					t.Run.Number, r.Species, r.Fraction, r.Sigma, r.Expected)
			}
		}
		report.Runs = append(report.Runs, summary)

		m := analysis.Confusion(t)
		for i := range m.Counts {
			for j := range m.Counts[i] {
				report.Confusion.Counts[i][j] += m.Counts[i][j]
			}
		}
	}

	report.Fits = analysis.FitRuns(report.Runs, cfg.Beam.StartZ, cfg.Beam.MomentumMean)
	report.Beta = betaReports(tables)
	return report
}

// betaReports measures the RICH1 β resolution per species on the run with
// the most particles of that species.
func betaReports(tables []*event.Table) []BetaReport {
	var out []BetaReport
	for _, sp := range analysis.TrueSpecies {
		var best analysis.BetaSummary
		for _, t := range tables {
			b, err := analysis.BetaStats(t, sp)
			if err != nil {
				continue
			}
			if b.Entries > best.Entries {
				best = b
			}
		}
		if best.Entries == 0 {
			continue
		}
		out = append(out, BetaReport{
			Species:    sp.String(),
			Entries:    best.Entries,
			TrueBeta:   best.TrueBeta,
			Mean:       best.Mean,
			Resolution: best.Resolution,
		})
	}
	return out
}

func printReport(w io.Writer, r ValidationReport) {
	fmt.Fprintf(w, "Validated %d run(s) from %s\n\n", len(r.Runs), r.Input)
	printSurvivalTable(w, r.Runs)

	fmt.Fprintln(w, "\nConfusion matrix (rows true, columns reconstructed):")
	fmt.Fprintf(w, "  %-6s", "")
	for _, sp := range analysis.RecoSpecies {
		fmt.Fprintf(w, " %8s", sp)
	}
	fmt.Fprintf(w, " %8s %8s\n", "eff", "purity")
	for i, sp := range analysis.TrueSpecies {
		fmt.Fprintf(w, "  %-6s", sp)
		for _, n := range r.Confusion.Counts[i] {
			fmt.Fprintf(w, " %8d", n)
		}
		eff, okE := r.Confusion.Efficiency(sp)
		pur, okP := r.Confusion.Purity(sp)
		fmt.Fprintf(w, " %8s %8s\n", ratio(eff, okE), ratio(pur, okP))
	}

	if len(r.Beta) > 0 {
		fmt.Fprintln(w, "\nRICH1 beta:")
		for _, b := range r.Beta {
			fmt.Fprintf(w, "  %-6s n=%-7d true=%.6f mean=%.6f dbeta/beta=%.2e\n",
				b.Species, b.Entries, b.TrueBeta, b.Mean, b.Resolution)
		}
	}

	fmt.Fprintln(w)
	printFits(w, r.Fits)

	if r.Passed {
		fmt.Fprintln(w, "\nAll checks passed.")
		return
	}
	fmt.Fprintln(w, "\nProblems:")
	for _, p := range r.Problems {
		fmt.Fprintf(w, "  - %s\n", p)
	}
}

func ratio(v float64, ok bool) string {
	if !ok {
		return "-"
	}
	return fmt.Sprintf("%.4f", v)
}
