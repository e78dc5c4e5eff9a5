package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nvandessel/timedilation/internal/analysis"
	"github.com/nvandessel/timedilation/internal/physics"
	"github.com/nvandessel/timedilation/internal/sim"
)

func newExpectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "expect",
		Short: "Print closed-form beta, gamma, decay length and survival per species",
		Long: `Print the relativistic expectation for every species at one momentum:
beta = p/E, gamma = E/m, lambda = beta*gamma*c*tau, and the survival
probability exp(-x/lambda) over the flight from the production point to the
downstream station at each configured distance.

Examples:
  tdsim expect
  tdsim expect --momentum 4 --distances 0,10,20`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			momentum := cfg.Beam.MomentumMean
			if cmd.Flags().Changed("momentum") {
				momentum, _ = cmd.Flags().GetFloat64("momentum")
			}
			distances := cfg.Run.DistancesM
			if cmd.Flags().Changed("distances") {
				distances, _ = cmd.Flags().GetFloat64Slice("distances")
			}

			flights := make([]float64, len(distances))
			for i, d := range distances {
				if !(d >= 0) {
					return physics.NewConfigError("distances", d, "must be non-negative")
				}
				flights[i] = sim.RunConfiguration{DistanceM: d}.PlaneZ() - cfg.Beam.StartZ
			}

			exps, err := analysis.Expect(momentum, flights)
			if err != nil {
				return err
			}

			jsonOut, _ := cmd.Flags().GetBool("json")
			if jsonOut {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]interface{}{
					"momentum":   momentum,
					"distances":  distances,
					"flights_cm": flights,
					"species":    exps,
				})
			}

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "p = %.3f GeV/c\n\n", momentum)
			fmt.Fprintf(w, "%-6s %10s %12s %10s %14s\n", "", "mass(GeV)", "beta", "gamma", "lambda(cm)")
			for _, e := range exps {
				fmt.Fprintf(w, "%-6s %10.5f %12.9f %10.3f %14.1f\n", e.Species, e.Mass, e.Beta, e.Gamma, e.DecayLength)
			}

			fmt.Fprintf(w, "\n%-8s %10s", "Dist(m)", "Flight(cm)")
			for _, e := range exps {
				fmt.Fprintf(w, " %10s", e.Species)
			}
			fmt.Fprintln(w)
			for i, d := range distances {
				fmt.Fprintf(w, "%-8.2f %10.1f", d, flights[i])
				for _, e := range exps {
					fmt.Fprintf(w, " %10.5f", e.Survival[i])
				}
				fmt.Fprintln(w)
			}
			return nil
		},
	}

	cmd.Flags().Float64("momentum", physics.NominalMomentum, "Momentum in GeV/c (default from config)")
	cmd.Flags().Float64Slice("distances", nil, "Station separations in meters (default from config)")

	return cmd
}
