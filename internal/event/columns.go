package event

import (
	"fmt"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/apache/arrow/go/v17/arrow/array"
	"github.com/apache/arrow/go/v17/arrow/memory"
)

// Column names of the event table, in output order.
const (
	ColEventID          = "EventID"
	ColPrimaryPDG       = "PrimaryPDG"
	ColPrimaryMom       = "PrimaryMom"
	ColPrimaryPosX      = "PrimaryPosX"
	ColPrimaryPosY      = "PrimaryPosY"
	ColPrimaryPosZ      = "PrimaryPosZ"
	ColRunNumber        = "RunNumber"
	ColRICH1Beta        = "RICH1_Beta"
	ColRICH1NPE         = "RICH1_NPE"
	ColRICH2Beta        = "RICH2_Beta"
	ColRICH2NPE         = "RICH2_NPE"
	ColCaloTotalE       = "Calo_TotalE"
	ColCaloEoP          = "Calo_EoP"
	ColDWC1NHits        = "DWC1_NHits"
	ColDWC2NHits        = "DWC2_NHits"
	ColSC1Hit           = "SC1_Hit"
	ColSC2Hit           = "SC2_Hit"
	ColTOF              = "TOF"
	ColDecayed          = "Decayed"
	ColDecayPosX        = "DecayPosX"
	ColDecayPosY        = "DecayPosY"
	ColDecayPosZ        = "DecayPosZ"
	ColDecayTime        = "DecayTime"
	ColDecayProductPDG  = "DecayProductPDG"
	ColReconstructedPID = "ReconstructedPID"
	ColSurvived         = "Survived"
)

type column struct {
	name string
	typ  arrow.DataType
	ptr  func(*Table) any // *[]int64, *[]int32 or *[]float64
}

var (
	i64 = arrow.PrimitiveTypes.Int64
	i32 = arrow.PrimitiveTypes.Int32
	f64 = arrow.PrimitiveTypes.Float64
)

var columns = []column{
	{ColEventID, i64, func(t *Table) any { return &t.EventID }},
	{ColPrimaryPDG, i32, func(t *Table) any { return &t.PrimaryPDG }},
	{ColPrimaryMom, f64, func(t *Table) any { return &t.PrimaryMom }},
	{ColPrimaryPosX, f64, func(t *Table) any { return &t.PrimaryPosX }},
	{ColPrimaryPosY, f64, func(t *Table) any { return &t.PrimaryPosY }},
	{ColPrimaryPosZ, f64, func(t *Table) any { return &t.PrimaryPosZ }},
	{ColRunNumber, i64, func(t *Table) any { return &t.RunNumber }},
	{ColRICH1Beta, f64, func(t *Table) any { return &t.RICH1Beta }},
	{ColRICH1NPE, i32, func(t *Table) any { return &t.RICH1NPE }},
	{ColRICH2Beta, f64, func(t *Table) any { return &t.RICH2Beta }},
	{ColRICH2NPE, i32, func(t *Table) any { return &t.RICH2NPE }},
	{ColCaloTotalE, f64, func(t *Table) any { return &t.CaloTotalE }},
	{ColCaloEoP, f64, func(t *Table) any { return &t.CaloEoP }},
	{ColDWC1NHits, i32, func(t *Table) any { return &t.DWC1NHits }},
	{ColDWC2NHits, i32, func(t *Table) any { return &t.DWC2NHits }},
	{ColSC1Hit, i32, func(t *Table) any { return &t.SC1Hit }},
	{ColSC2Hit, i32, func(t *Table) any { return &t.SC2Hit }},
	{ColTOF, f64, func(t *Table) any { return &t.TOF }},
	{ColDecayed, i32, func(t *Table) any { return &t.Decayed }},
	{ColDecayPosX, f64, func(t *Table) any { return &t.DecayPosX }},
	{ColDecayPosY, f64, func(t *Table) any { return &t.DecayPosY }},
	{ColDecayPosZ, f64, func(t *Table) any { return &t.DecayPosZ }},
	{ColDecayTime, f64, func(t *Table) any { return &t.DecayTime }},
	{ColDecayProductPDG, i32, func(t *Table) any { return &t.DecayProductPDG }},
	{ColReconstructedPID, i32, func(t *Table) any { return &t.ReconstructedPID }},
	{ColSurvived, i32, func(t *Table) any { return &t.Survived }},
}

var schema = func() *arrow.Schema {
	fields := make([]arrow.Field, len(columns))
	for i, c := range columns {
		fields[i] = arrow.Field{Name: c.name, Type: c.typ}
	}
	return arrow.NewSchema(fields, nil)
}()

// Schema returns the Arrow schema of the event table.
func Schema() *arrow.Schema { return schema }

// Columns returns the column names in output order.
func Columns() []string {
	names := make([]string, len(columns))
	for i, c := range columns {
		names[i] = c.name
	}
	return names
}

// ColumnKind reports the storage kind of a column: "int" or "float".
func ColumnKind(i int) string {
	if columns[i].typ == f64 {
		return "float"
	}
	return "int"
}

func (c column) len(t *Table) int {
	switch p := c.ptr(t).(type) {
	case *[]int64:
		return len(*p)
	case *[]int32:
		return len(*p)
	case *[]float64:
		return len(*p)
	}
	return 0
}

func (c column) value(t *Table, i int) any {
	switch p := c.ptr(t).(type) {
	case *[]int64:
		return (*p)[i]
	case *[]int32:
		return (*p)[i]
	case *[]float64:
		return (*p)[i]
	}
	return nil
}

// Record builds an Arrow record of the table. The caller releases it.
func (t *Table) Record(mem memory.Allocator) (arrow.Record, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	b := array.NewRecordBuilder(mem, schema)
	defer b.Release()

	for i, c := range columns {
		switch p := c.ptr(t).(type) {
		case *[]int64:
			b.Field(i).(*array.Int64Builder).AppendValues(*p, nil)
		case *[]int32:
			b.Field(i).(*array.Int32Builder).AppendValues(*p, nil)
		case *[]float64:
			b.Field(i).(*array.Float64Builder).AppendValues(*p, nil)
		}
	}
	return b.NewRecord(), nil
}

// AppendRecord appends the rows of rec to t. The record must carry the
// event schema; the column order is taken from field names.
func (t *Table) AppendRecord(rec arrow.Record) error {
	for _, c := range columns {
		idx := rec.Schema().FieldIndices(c.name)
		if len(idx) == 0 {
			return fmt.Errorf("record has no column %s", c.name)
		}
		col := rec.Column(idx[0])
		switch p := c.ptr(t).(type) {
		case *[]int64:
			a, ok := col.(*array.Int64)
			if !ok {
				return fmt.Errorf("column %s: expected int64, got %s", c.name, col.DataType())
			}
			*p = append(*p, a.Int64Values()...)
		case *[]int32:
			a, ok := col.(*array.Int32)
			if !ok {
				return fmt.Errorf("column %s: expected int32, got %s", c.name, col.DataType())
			}
			*p = append(*p, a.Int32Values()...)
		case *[]float64:
			a, ok := col.(*array.Float64)
			if !ok {
				return fmt.Errorf("column %s: expected float64, got %s", c.name, col.DataType())
			}
			*p = append(*p, a.Float64Values()...)
		}
	}
	return nil
}

// AppendRow appends one row given in column order, as produced by Row or
// scanned from a database.
func (t *Table) AppendRow(vals []any) error {
	if len(vals) != len(columns) {
		return fmt.Errorf("row has %d values, want %d", len(vals), len(columns))
	}
	for j, c := range columns {
		switch p := c.ptr(t).(type) {
		case *[]int64:
			v, err := asInt64(vals[j])
			if err != nil {
				return fmt.Errorf("column %s: %w", c.name, err)
			}
			*p = append(*p, v)
		case *[]int32:
			v, err := asInt64(vals[j])
			if err != nil {
				return fmt.Errorf("column %s: %w", c.name, err)
			}
			*p = append(*p, int32(v))
		case *[]float64:
			v, err := asFloat64(vals[j])
			if err != nil {
				return fmt.Errorf("column %s: %w", c.name, err)
			}
			*p = append(*p, v)
		}
	}
	return nil
}

func asInt64(v any) (int64, error) {
	switch x := v.(type) {
	case int64:
		return x, nil
	case int32:
		return int64(x), nil
	case int:
		return int64(x), nil
	}
	return 0, fmt.Errorf("unexpected integer value %T", v)
}

func asFloat64(v any) (float64, error) {
	switch x := v.(type) {
	case float64:
		return x, nil
	case int64:
		return float64(x), nil
	}
	return 0, fmt.Errorf("unexpected float value %T", v)
}
