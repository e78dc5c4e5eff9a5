package mcp

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/apache/arrow/go/v17/arrow/memory"
	sdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"gopkg.in/yaml.v3"

	"github.com/nvandessel/timedilation/internal/analysis"
	"github.com/nvandessel/timedilation/internal/config"
	"github.com/nvandessel/timedilation/internal/physics"
	"github.com/nvandessel/timedilation/internal/ratelimit"
	"github.com/nvandessel/timedilation/internal/sim"
	"github.com/nvandessel/timedilation/internal/store"
)

// MaxToolRuns caps the distances a single tdsim_simulate call may request.
const MaxToolRuns = 20

const (
	configURI      = "tdsim://config"
	runURIPrefix   = "tdsim://runs/"
	runURITemplate = runURIPrefix + "{run}"
)

// registerTools registers all tdsim MCP tools with the server.
func (s *Server) registerTools() error {
	sdk.AddTool(s.server, &sdk.Tool{
		Name:        ratelimit.ToolSimulate,
		Description: "Simulate pi/K decay-in-flight at one or more station separations and compare the survival fractions with exp(-d/lambda)",
	}, s.handleTdsimSimulate)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        ratelimit.ToolExpect,
		Description: "Closed-form beta, gamma, decay length and survival probability per species at a given momentum",
	}, s.handleTdsimExpect)

	return nil
}

// registerResources registers the configuration and the event tables of the
// most recent simulation.
func (s *Server) registerResources() error {
	s.server.AddResource(&sdk.Resource{
		URI:         configURI,
		Name:        "tdsim-config",
		Description: "The configuration tool calls start from, as YAML.",
		MIMEType:    "application/yaml",
	}, s.handleConfigResource)

	s.server.AddResourceTemplate(&sdk.ResourceTemplate{
		URITemplate: runURITemplate,
		Name:        "tdsim-run",
		Description: "Event table of one run of the most recent tdsim_simulate call, as CSV.",
		MIMEType:    "text/csv",
	}, s.handleRunResource)

	return nil
}

// handleConfigResource returns the base configuration.
func (s *Server) handleConfigResource(ctx context.Context, req *sdk.ReadResourceRequest) (*sdk.ReadResourceResult, error) {
	data, err := yaml.Marshal(s.base)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal config: %w", err)
	}
	return &sdk.ReadResourceResult{
		Contents: []*sdk.ResourceContents{
			{
				URI:      configURI,
				MIMEType: "application/yaml",
				Text:     string(data),
			},
		},
	}, nil
}

// handleRunResource returns one event table of the last simulation.
// URI format: tdsim://runs/{run}
func (s *Server) handleRunResource(ctx context.Context, req *sdk.ReadResourceRequest) (*sdk.ReadResourceResult, error) {
	uri := req.Params.URI
	if !strings.HasPrefix(uri, runURIPrefix) {
		return nil, fmt.Errorf("invalid URI format: %s", uri)
	}
	n, err := strconv.Atoi(strings.TrimPrefix(uri, runURIPrefix))
	if err != nil {
		return nil, fmt.Errorf("invalid run number in %s", uri)
	}

	s.mu.Lock()
	last := s.last
	s.mu.Unlock()

	t, ok := last.Get(n)
	if !ok {
		return nil, fmt.Errorf("run %d not found; call %s first", n, ratelimit.ToolSimulate)
	}

	var buf bytes.Buffer
	if err := store.WriteCSV(&buf, t, memory.DefaultAllocator); err != nil {
		return nil, err
	}
	return &sdk.ReadResourceResult{
		Contents: []*sdk.ResourceContents{
			{
				URI:      uri,
				MIMEType: "text/csv",
				Text:     buf.String(),
			},
		},
	}, nil
}

// handleTdsimSimulate implements the tdsim_simulate tool.
func (s *Server) handleTdsimSimulate(ctx context.Context, req *sdk.CallToolRequest, args TdsimSimulateInput) (_ *sdk.CallToolResult, _ TdsimSimulateOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool(ratelimit.ToolSimulate, start, retErr, toolParams(map[string]any{
			"events": args.Events, "distances": args.Distances, "seed": args.Seed,
			"pion_fraction": args.PionFraction, "kaon_fraction": args.KaonFraction,
			"muon_fraction": args.MuonFraction, "momentum": args.Momentum,
		}))
	}()

	if err := ratelimit.CheckLimit(s.toolLimiters, ratelimit.ToolSimulate); err != nil {
		return nil, TdsimSimulateOutput{}, err
	}

	cfg, err := s.simulationConfig(args)
	if err != nil {
		return nil, TdsimSimulateOutput{}, err
	}

	simulator, err := sim.NewSimulator(cfg.SimConfig(), s.logger, nil)
	if err != nil {
		return nil, TdsimSimulateOutput{}, err
	}
	tables := store.NewMemoryStore()
	results, err := simulator.RunAll(ctx, cfg.Runs(), func(ctx context.Context, r *sim.RunResult) error {
		return tables.WriteRun(ctx, r.Table)
	})
	if err != nil {
		return nil, TdsimSimulateOutput{}, fmt.Errorf("simulation failed: %w", err)
	}

	s.mu.Lock()
	s.last = tables
	s.mu.Unlock()

	out := TdsimSimulateOutput{
		Runs:   make([]analysis.Summary, len(results)),
		Passed: true,
	}
	failed := 0
	for i, r := range results {
		out.Runs[i] = r.Summary
		for _, sr := range r.Summary.Survival {
			if !sr.Passed {
				out.Passed = false
				failed++
			}
		}
	}
	out.Fits = analysis.FitRuns(out.Runs, cfg.Beam.StartZ, cfg.Beam.MomentumMean)

	if out.Passed {
		out.Message = fmt.Sprintf("Simulated %d run(s) of %d events; every survival fraction matches exp(-d/lambda)",
			len(results), cfg.Run.Events)
	} else {
		out.Message = fmt.Sprintf("Simulated %d run(s) of %d events; %d survival check(s) outside tolerance",
			len(results), cfg.Run.Events, failed)
	}
	return nil, out, nil
}

// simulationConfig applies the tool arguments on top of a copy of the base
// configuration and validates the result.
func (s *Server) simulationConfig(args TdsimSimulateInput) (*config.TdsimConfig, error) {
	c := *s.base
	c.Run.DistancesM = append([]float64(nil), s.base.Run.DistancesM...)

	if args.Events != 0 {
		c.Run.Events = args.Events
	}
	if c.Run.Events > MaxToolEvents {
		return nil, physics.NewConfigError("events", c.Run.Events, fmt.Sprintf("at most %d per tool call", MaxToolEvents))
	}
	if len(args.Distances) > 0 {
		c.Run.DistancesM = append([]float64(nil), args.Distances...)
	}
	if len(c.Run.DistancesM) > MaxToolRuns {
		return nil, physics.NewConfigError("distances", len(c.Run.DistancesM), fmt.Sprintf("at most %d per tool call", MaxToolRuns))
	}
	if args.Seed != nil {
		c.Run.Seed = *args.Seed
	}
	if args.PionFraction != nil || args.KaonFraction != nil || args.MuonFraction != nil {
		c.Beam.PionFraction = deref(args.PionFraction)
		c.Beam.KaonFraction = deref(args.KaonFraction)
		c.Beam.MuonFraction = deref(args.MuonFraction)
	}
	if args.Momentum != 0 {
		c.Beam.MomentumMean = args.Momentum
	}

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func deref(f *float64) float64 {
	if f == nil {
		return 0
	}
	return *f
}

// handleTdsimExpect implements the tdsim_expect tool.
func (s *Server) handleTdsimExpect(ctx context.Context, req *sdk.CallToolRequest, args TdsimExpectInput) (_ *sdk.CallToolResult, _ TdsimExpectOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool(ratelimit.ToolExpect, start, retErr, toolParams(map[string]any{
			"momentum": args.Momentum, "distances": args.Distances,
		}))
	}()

	if err := ratelimit.CheckLimit(s.toolLimiters, ratelimit.ToolExpect); err != nil {
		return nil, TdsimExpectOutput{}, err
	}

	momentum := args.Momentum
	if momentum == 0 {
		momentum = s.base.Beam.MomentumMean
	}
	distances := args.Distances
	if len(distances) == 0 {
		distances = s.base.Run.DistancesM
	}

	flights := make([]float64, len(distances))
	for i, d := range distances {
		if !(d >= 0) {
			return nil, TdsimExpectOutput{}, physics.NewConfigError("distances", d, "must be non-negative")
		}
		flights[i] = sim.RunConfiguration{DistanceM: d}.PlaneZ() - s.base.Beam.StartZ
	}

	species, err := analysis.Expect(momentum, flights)
	if err != nil {
		return nil, TdsimExpectOutput{}, err
	}
	return nil, TdsimExpectOutput{
		Momentum:  momentum,
		Distances: distances,
		Flights:   flights,
		Species:   species,
	}, nil
}
