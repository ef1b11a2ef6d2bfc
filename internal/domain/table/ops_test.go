package table

import (
	"errors"
	"reflect"
	"testing"

	"github.com/CivStat/MetricBoard/internal/domain"
)

// apply is a test helper that fails the test on error.
func apply(t *testing.T, doc *Document, op Operation) *Document {
	t.Helper()
	next, err := Apply(doc, op)
	if err != nil {
		t.Fatalf("apply %s: %v", op.Kind(), err)
	}
	if err := next.Validate(); err != nil {
		t.Fatalf("invariants broken after %s: %v", op.Kind(), err)
	}
	return next
}

func TestAddColumn(t *testing.T) {
	doc := apply(t, NewDocument(), AddColumn{Column: "Beneficiaries", Unit: "count"})

	if !reflect.DeepEqual(doc.Columns, []string{"Beneficiaries"}) {
		t.Errorf("columns: %v", doc.Columns)
	}
	if doc.Units["Beneficiaries"] != "count" {
		t.Errorf("units: %v", doc.Units)
	}
}

func TestAddColumnDuplicateRejected(t *testing.T) {
	doc := apply(t, NewDocument(), AddColumn{Column: "A"})

	_, err := Apply(doc, AddColumn{Column: "A"})
	if !errors.Is(err, ErrDuplicateColumn) {
		t.Fatalf("expected ErrDuplicateColumn, got %v", err)
	}
	// Failed apply must not have mutated the input.
	if len(doc.Columns) != 1 {
		t.Errorf("input mutated: %v", doc.Columns)
	}
}

func TestAddColumnWithoutUnitLeavesUnitsSparse(t *testing.T) {
	doc := apply(t, NewDocument(), AddColumn{Column: "A"})
	if _, ok := doc.Units["A"]; ok {
		t.Errorf("expected no unit key for A, got %v", doc.Units)
	}
}

func TestSetCellValueAndTotals(t *testing.T) {
	doc := apply(t, NewDocument(), AddColumn{Column: "Beneficiaries", Unit: "count"})
	doc = apply(t, doc, SetCellValue{Column: "Beneficiaries", Month: "January", Value: 150})
	doc = apply(t, doc, SetCellValue{Column: "Beneficiaries", Month: "February", Value: 200})

	if got := doc.ColumnTotal("Beneficiaries"); got != 350 {
		t.Errorf("expected 350, got %v", got)
	}
}

func TestSetCellValueUnknownColumnRejected(t *testing.T) {
	_, err := Apply(NewDocument(), SetCellValue{Column: "Ghost", Month: "January", Value: 1})
	if !errors.Is(err, ErrUnknownColumn) {
		t.Fatalf("expected ErrUnknownColumn, got %v", err)
	}
}

func TestSetCellValueInvalidMonthRejected(t *testing.T) {
	doc := apply(t, NewDocument(), AddColumn{Column: "A"})
	_, err := Apply(doc, SetCellValue{Column: "A", Month: "Q1", Value: 1})
	if !errors.Is(err, ErrInvalidMonth) {
		t.Fatalf("expected ErrInvalidMonth, got %v", err)
	}
}

func TestRenameColumnMigratesUnitsAndData(t *testing.T) {
	doc := apply(t, NewDocument(), AddColumn{Column: "Beneficiaries", Unit: "count"})
	doc = apply(t, doc, SetCellValue{Column: "Beneficiaries", Month: "January", Value: 150})
	doc = apply(t, doc, SetCellValue{Column: "Beneficiaries", Month: "February", Value: 200})

	doc = apply(t, doc, RenameColumn{Column: "Beneficiaries", NewName: "Households"})

	if !reflect.DeepEqual(doc.Columns, []string{"Households"}) {
		t.Errorf("columns: %v", doc.Columns)
	}
	if doc.Units["Households"] != "count" {
		t.Errorf("unit not migrated: %v", doc.Units)
	}
	if _, ok := doc.Units["Beneficiaries"]; ok {
		t.Errorf("old unit key left behind: %v", doc.Units)
	}
	if doc.Data["January"]["Households"] != 150 || doc.Data["February"]["Households"] != 200 {
		t.Errorf("cells not migrated: %v / %v", doc.Data["January"], doc.Data["February"])
	}
	if _, ok := doc.Data["January"]["Beneficiaries"]; ok {
		t.Errorf("old cell key left behind: %v", doc.Data["January"])
	}
}

func TestRenameColumnPreservesOrdinalPosition(t *testing.T) {
	doc := apply(t, NewDocument(), AddColumn{Column: "A"})
	doc = apply(t, doc, AddColumn{Column: "B"})
	doc = apply(t, doc, AddColumn{Column: "C"})

	doc = apply(t, doc, RenameColumn{Column: "B", NewName: "B2"})
	if !reflect.DeepEqual(doc.Columns, []string{"A", "B2", "C"}) {
		t.Errorf("ordinal position lost: %v", doc.Columns)
	}
}

func TestRenameColumnToItselfIsNoop(t *testing.T) {
	doc := apply(t, NewDocument(), AddColumn{Column: "A", Unit: "kg"})
	doc = apply(t, doc, SetCellValue{Column: "A", Month: "March", Value: 5})
	before := doc.Clone()

	doc = apply(t, doc, RenameColumn{Column: "A", NewName: "A"})
	if !reflect.DeepEqual(doc, before) {
		t.Errorf("document changed: %+v vs %+v", doc, before)
	}
}

func TestRenameNonexistentColumnRejected(t *testing.T) {
	// The observed legacy behavior silently created the new column; the
	// consistent choice here is rejection.
	_, err := Apply(NewDocument(), RenameColumn{Column: "Nonexistent", NewName: "NewName"})
	if !errors.Is(err, ErrUnknownColumn) {
		t.Fatalf("expected ErrUnknownColumn, got %v", err)
	}
}

func TestRenameOntoExistingColumnRejected(t *testing.T) {
	doc := apply(t, NewDocument(), AddColumn{Column: "A"})
	doc = apply(t, doc, AddColumn{Column: "B"})

	_, err := Apply(doc, RenameColumn{Column: "A", NewName: "B"})
	if !errors.Is(err, ErrDuplicateColumn) {
		t.Fatalf("expected ErrDuplicateColumn, got %v", err)
	}
}

func TestDeleteColumnRemovesEverything(t *testing.T) {
	doc := apply(t, NewDocument(), AddColumn{Column: "Households", Unit: "count"})
	doc = apply(t, doc, SetCellValue{Column: "Households", Month: "January", Value: 150})
	doc = apply(t, doc, SetCellValue{Column: "Households", Month: "February", Value: 200})

	doc = apply(t, doc, DeleteColumn{Column: "Households"})

	if len(doc.Columns) != 0 {
		t.Errorf("columns: %v", doc.Columns)
	}
	if len(doc.Units) != 0 {
		t.Errorf("units: %v", doc.Units)
	}
	for _, m := range Months {
		if len(doc.Data[m]) != 0 {
			t.Errorf("cells left in %s: %v", m, doc.Data[m])
		}
	}
}

func TestDeleteColumnIdempotent(t *testing.T) {
	doc := apply(t, NewDocument(), AddColumn{Column: "A"})

	once := apply(t, doc, DeleteColumn{Column: "A"})
	twice := apply(t, once, DeleteColumn{Column: "A"})
	if !reflect.DeepEqual(once, twice) {
		t.Errorf("double delete differs: %+v vs %+v", once, twice)
	}

	// Deleting a column that never existed is also a no-op.
	absent := apply(t, NewDocument(), DeleteColumn{Column: "Ghost"})
	if !reflect.DeepEqual(absent, NewDocument()) {
		t.Errorf("delete of absent column changed document: %+v", absent)
	}
}

func TestSetUnit(t *testing.T) {
	doc := apply(t, NewDocument(), AddColumn{Column: "A"})

	doc = apply(t, doc, SetUnit{Column: "A", Unit: "kg"})
	if doc.Units["A"] != "kg" {
		t.Errorf("units: %v", doc.Units)
	}

	// Empty unit clears the key entirely.
	doc = apply(t, doc, SetUnit{Column: "A", Unit: ""})
	if _, ok := doc.Units["A"]; ok {
		t.Errorf("unit key not cleared: %v", doc.Units)
	}
}

func TestSetUnitUnknownColumnRejected(t *testing.T) {
	_, err := Apply(NewDocument(), SetUnit{Column: "Ghost", Unit: "kg"})
	if !errors.Is(err, ErrUnknownColumn) {
		t.Fatalf("expected ErrUnknownColumn, got %v", err)
	}
}

func TestSetTableNameDoesNotTouchDocument(t *testing.T) {
	doc := apply(t, NewDocument(), AddColumn{Column: "A"})
	before := doc.Clone()

	doc = apply(t, doc, SetTableName{TableName: "Renamed"})
	if !reflect.DeepEqual(doc, before) {
		t.Errorf("document changed: %+v vs %+v", doc, before)
	}
}

func TestOperationValidation(t *testing.T) {
	tests := []struct {
		name string
		op   Operation
	}{
		{"add empty name", AddColumn{}},
		{"rename empty old", RenameColumn{NewName: "B"}},
		{"rename empty new", RenameColumn{Column: "A"}},
		{"delete empty name", DeleteColumn{}},
		{"unit empty name", SetUnit{Unit: "kg"}},
		{"cell empty name", SetCellValue{Month: "January"}},
		{"cell bad month", SetCellValue{Column: "A", Month: "Smarch"}},
		{"table empty name", SetTableName{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.op.Validate(); !errors.Is(err, domain.ErrValidation) {
				t.Fatalf("expected ErrValidation, got %v", err)
			}
		})
	}
}

func TestDecodeOperation(t *testing.T) {
	tests := []struct {
		name string
		body string
		want Operation
	}{
		{"add", `{"op":"add_column","column":"A","unit":"kg"}`, AddColumn{Column: "A", Unit: "kg"}},
		{"rename", `{"op":"rename_column","column":"A","new_name":"B"}`, RenameColumn{Column: "A", NewName: "B"}},
		{"delete", `{"op":"delete_column","column":"A"}`, DeleteColumn{Column: "A"}},
		{"unit", `{"op":"set_unit","column":"A","unit":"kg"}`, SetUnit{Column: "A", Unit: "kg"}},
		{"cell", `{"op":"set_cell_value","column":"A","month":"June","value":3.5}`, SetCellValue{Column: "A", Month: "June", Value: 3.5}},
		{"name", `{"op":"set_table_name","table_name":"T"}`, SetTableName{TableName: "T"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeOperation([]byte(tt.body))
			if err != nil {
				t.Fatal(err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestDecodeOperationErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"missing op", `{"column":"A"}`},
		{"unknown op", `{"op":"truncate"}`},
		{"cell missing value", `{"op":"set_cell_value","column":"A","month":"June"}`},
		{"malformed json", `{`},
		{"non-numeric value", `{"op":"set_cell_value","column":"A","month":"June","value":"abc"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := DecodeOperation([]byte(tt.body)); !errors.Is(err, domain.ErrValidation) {
				t.Fatalf("expected ErrValidation, got %v", err)
			}
		})
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	ops := []Operation{
		AddColumn{Column: "A", Unit: "kg"},
		RenameColumn{Column: "A", NewName: "B"},
		DeleteColumn{Column: "B"},
		SetUnit{Column: "A", Unit: ""},
		SetCellValue{Column: "A", Month: "December", Value: -2.75},
		SetTableName{TableName: "T"},
	}
	for _, op := range ops {
		data, err := EncodeOperation(op)
		if err != nil {
			t.Fatalf("encode %s: %v", op.Kind(), err)
		}
		back, err := DecodeOperation(data)
		if err != nil {
			t.Fatalf("decode %s: %v", op.Kind(), err)
		}
		if !reflect.DeepEqual(back, op) {
			t.Fatalf("round trip %s: got %+v, want %+v", op.Kind(), back, op)
		}
	}
}

// Full editing session: build, fill, rename, delete.
func TestEditSessionScenario(t *testing.T) {
	doc := apply(t, NewDocument(), AddColumn{Column: "Beneficiaries", Unit: "count"})
	doc = apply(t, doc, SetCellValue{Column: "Beneficiaries", Month: "January", Value: 150})
	doc = apply(t, doc, SetCellValue{Column: "Beneficiaries", Month: "February", Value: 200})
	doc = apply(t, doc, RenameColumn{Column: "Beneficiaries", NewName: "Households"})

	if got := doc.Totals()["Households"]; got != 350 {
		t.Fatalf("total after rename: %v", got)
	}

	doc = apply(t, doc, DeleteColumn{Column: "Households"})
	if !reflect.DeepEqual(doc, NewDocument()) {
		t.Fatalf("expected empty document, got %+v", doc)
	}
}
