// Package mcp provides an MCP (Model Context Protocol) server for tdsim.
package mcp

import (
	"github.com/nvandessel/timedilation/internal/analysis"
)

// MaxToolEvents caps the events per run a tool call may request.
const MaxToolEvents = 100000

// TdsimSimulateInput defines the input for tdsim_simulate tool.
// Zero or omitted fields fall back to the server's configuration.
type TdsimSimulateInput struct {
	Events       int       `json:"events,omitempty" jsonschema:"Primaries per run (max 100000)"`
	Distances    []float64 `json:"distances,omitempty" jsonschema:"Station separations in meters; one run each"`
	Seed         *uint64   `json:"seed,omitempty" jsonschema:"Base random seed; identical inputs give identical results"`
	PionFraction *float64  `json:"pion_fraction,omitempty" jsonschema:"Fraction of pi+ primaries; setting any fraction sets all three (unset ones are 0)"`
	KaonFraction *float64  `json:"kaon_fraction,omitempty" jsonschema:"Fraction of K+ primaries"`
	MuonFraction *float64  `json:"muon_fraction,omitempty" jsonschema:"Fraction of mu+ primaries"`
	Momentum     float64   `json:"momentum,omitempty" jsonschema:"Mean beam momentum in GeV/c"`
}

// TdsimSimulateOutput defines the output for tdsim_simulate tool.
type TdsimSimulateOutput struct {
	Runs    []analysis.Summary    `json:"runs" jsonschema:"Per-run survival summaries with expected values and checks"`
	Fits    []analysis.SpeciesFit `json:"fits,omitempty" jsonschema:"Decay-length fit per species across runs"`
	Passed  bool                  `json:"passed" jsonschema:"Whether every survival check passed"`
	Message string                `json:"message" jsonschema:"Human-readable result message"`
}

// TdsimExpectInput defines the input for tdsim_expect tool.
type TdsimExpectInput struct {
	Momentum  float64   `json:"momentum,omitempty" jsonschema:"Momentum in GeV/c (default: configured beam mean)"`
	Distances []float64 `json:"distances,omitempty" jsonschema:"Station separations in meters (default: configured distances)"`
}

// TdsimExpectOutput defines the output for tdsim_expect tool.
type TdsimExpectOutput struct {
	Momentum  float64                `json:"momentum" jsonschema:"Momentum used, GeV/c"`
	Distances []float64              `json:"distances" jsonschema:"Station separations in meters"`
	Flights   []float64              `json:"flights_cm" jsonschema:"Flight length from the production point to each downstream plane, cm"`
	Species   []analysis.Expectation `json:"species" jsonschema:"Closed-form beta, gamma, decay length and survival per species"`
}
