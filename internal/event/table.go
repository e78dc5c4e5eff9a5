// Package event assembles the per-particle outputs of every stage into the
// flat event table of a run, and converts it to and from Arrow records.
package event

import (
	"errors"
	"fmt"

	"github.com/nvandessel/timedilation/internal/beam"
	"github.com/nvandessel/timedilation/internal/decay"
	"github.com/nvandessel/timedilation/internal/detector"
	"github.com/nvandessel/timedilation/internal/physics"
)

// RunInfo identifies the run a table belongs to.
type RunInfo struct {
	Number    int
	DistanceM float64
}

// Table is the columnar event table of one run: one row per simulated
// particle. Flags are stored as 0/1 integers.
type Table struct {
	Run RunInfo

	EventID     []int64
	PrimaryPDG  []int32
	PrimaryMom  []float64
	PrimaryPosX []float64
	PrimaryPosY []float64
	PrimaryPosZ []float64
	RunNumber   []int64

	RICH1Beta []float64
	RICH1NPE  []int32
	RICH2Beta []float64
	RICH2NPE  []int32

	CaloTotalE []float64
	CaloEoP    []float64

	DWC1NHits []int32
	DWC2NHits []int32
	SC1Hit    []int32
	SC2Hit    []int32
	TOF       []float64

	Decayed         []int32
	DecayPosX       []float64
	DecayPosY       []float64
	DecayPosZ       []float64
	DecayTime       []float64
	DecayProductPDG []int32

	ReconstructedPID []int32
	Survived         []int32
}

// NewTable allocates an empty table with room for n rows.
func NewTable(run RunInfo, n int) *Table {
	t := &Table{Run: run}
	for _, c := range columns {
		switch p := c.ptr(t).(type) {
		case *[]int64:
			*p = make([]int64, 0, n)
		case *[]int32:
			*p = make([]int32, 0, n)
		case *[]float64:
			*p = make([]float64, 0, n)
		}
	}
	return t
}

// Len returns the number of rows.
func (t *Table) Len() int { return len(t.EventID) }

// Emit assembles the table of a run. Values are copied unchanged; only
// species are mapped to PDG codes and booleans to 0/1.
func Emit(run RunInfo, prim *beam.Primaries, kin *physics.Columns, out *decay.Outcomes, resp *detector.Responses, pids []physics.Species) (*Table, error) {
	n := prim.Len()
	if kin.Len() != n || out.Len() != n || resp.Len() != n || len(pids) != n {
		return nil, fmt.Errorf("emit run %d: stage lengths differ: primaries %d, kinematics %d, outcomes %d, responses %d, pid %d",
			run.Number, n, kin.Len(), out.Len(), resp.Len(), len(pids))
	}

	t := NewTable(run, n)
	for i := 0; i < n; i++ {
		t.EventID = append(t.EventID, int64(i))
		t.PrimaryPDG = append(t.PrimaryPDG, prim.Species[i].PDG())
		t.PrimaryMom = append(t.PrimaryMom, prim.Momentum[i])
		t.PrimaryPosX = append(t.PrimaryPosX, prim.X[i])
		t.PrimaryPosY = append(t.PrimaryPosY, prim.Y[i])
		t.PrimaryPosZ = append(t.PrimaryPosZ, prim.Z[i])
		t.RunNumber = append(t.RunNumber, int64(run.Number))

		t.RICH1Beta = append(t.RICH1Beta, resp.RICH1Beta[i])
		t.RICH1NPE = append(t.RICH1NPE, resp.RICH1NPE[i])
		t.RICH2Beta = append(t.RICH2Beta, resp.RICH2Beta[i])
		t.RICH2NPE = append(t.RICH2NPE, resp.RICH2NPE[i])
		t.CaloTotalE = append(t.CaloTotalE, resp.CaloE[i])
		t.CaloEoP = append(t.CaloEoP, resp.CaloEoP[i])
		t.DWC1NHits = append(t.DWC1NHits, resp.DWC1Hits[i])
		t.DWC2NHits = append(t.DWC2NHits, resp.DWC2Hits[i])
		t.SC1Hit = append(t.SC1Hit, flag(resp.SC1[i]))
		t.SC2Hit = append(t.SC2Hit, flag(resp.SC2[i]))
		t.TOF = append(t.TOF, resp.TOF[i])

		t.Decayed = append(t.Decayed, flag(out.Decayed[i]))
		t.DecayPosX = append(t.DecayPosX, out.X[i])
		t.DecayPosY = append(t.DecayPosY, out.Y[i])
		t.DecayPosZ = append(t.DecayPosZ, out.Z[i])
		t.DecayTime = append(t.DecayTime, out.Time[i])
		t.DecayProductPDG = append(t.DecayProductPDG, out.Product[i].PDG())

		t.ReconstructedPID = append(t.ReconstructedPID, pids[i].PDG())
		t.Survived = append(t.Survived, flag(out.Survived(i)))
	}
	return t, nil
}

func flag(b bool) int32 {
	if b {
		return 1
	}
	return 0
}

// Validate checks column lengths and the value domains of the schema: PDG
// codes in the fixed set, 0/1 flags, non-negative hit counts, and exactly
// one of Decayed and Survived per row.
func (t *Table) Validate() error {
	n := t.Len()
	for _, c := range columns {
		if l := c.len(t); l != n {
			return fmt.Errorf("column %s has %d rows, want %d", c.name, l, n)
		}
	}

	var errs []error
	check := func(i int, col string, v int32, ok bool) {
		if !ok && len(errs) < maxViolations {
			errs = append(errs, fmt.Errorf("row %d: %s = %d out of domain", i, col, v))
		}
	}
	for i := 0; i < n; i++ {
		check(i, ColPrimaryPDG, t.PrimaryPDG[i], physics.ValidPDG(t.PrimaryPDG[i]))
		check(i, ColDecayProductPDG, t.DecayProductPDG[i], physics.ValidPDG(t.DecayProductPDG[i]))
		check(i, ColReconstructedPID, t.ReconstructedPID[i], physics.ValidPDG(t.ReconstructedPID[i]))
		check(i, ColSC1Hit, t.SC1Hit[i], isFlag(t.SC1Hit[i]))
		check(i, ColSC2Hit, t.SC2Hit[i], isFlag(t.SC2Hit[i]))
		check(i, ColDecayed, t.Decayed[i], isFlag(t.Decayed[i]))
		check(i, ColSurvived, t.Survived[i], isFlag(t.Survived[i]))
		check(i, ColRICH1NPE, t.RICH1NPE[i], t.RICH1NPE[i] >= 0)
		check(i, ColRICH2NPE, t.RICH2NPE[i], t.RICH2NPE[i] >= 0)
		check(i, ColDWC1NHits, t.DWC1NHits[i], t.DWC1NHits[i] >= 0)
		check(i, ColDWC2NHits, t.DWC2NHits[i], t.DWC2NHits[i] >= 0)
		check(i, ColSurvived, t.Survived[i], t.Decayed[i]+t.Survived[i] == 1)
	}
	return errors.Join(errs...)
}

const maxViolations = 20

func isFlag(v int32) bool { return v == 0 || v == 1 }

// Row returns the values of row i in column order.
func (t *Table) Row(i int) []any {
	row := make([]any, len(columns))
	for j, c := range columns {
		row[j] = c.value(t, i)
	}
	return row
}
