// Package table defines the flexible metrics table document and its mutations.
//
// A Document is a schema-less tabular store: an ordered list of user-defined
// columns, an optional unit per column, and one numeric cell per column per
// calendar month. The three structures are kept mutually consistent by the
// operations in ops.go.
package table

import (
	"fmt"

	"github.com/CivStat/MetricBoard/internal/domain"
)

// Months are the twelve fixed period keys, in display order.
// Data rows are never keyed by anything else.
var Months = []string{
	"January", "February", "March", "April", "May", "June",
	"July", "August", "September", "October", "November", "December",
}

// monthSet is the lookup form of Months.
var monthSet = func() map[string]bool {
	m := make(map[string]bool, len(Months))
	for _, name := range Months {
		m[name] = true
	}
	return m
}()

// IsMonth reports whether name is one of the twelve fixed period keys.
func IsMonth(name string) bool {
	return monthSet[name]
}

// Document is the JSON-backed {columns, units, data} structure representing
// one metric's flexible table.
type Document struct {
	// Columns is the ordered list of column names. Order is display order.
	Columns []string `json:"columns"`

	// Units maps column name to unit label. Sparse: no key means no unit.
	Units map[string]string `json:"units"`

	// Data maps month -> column name -> value. Sparse: a missing cell
	// renders as blank/zero.
	Data map[string]map[string]float64 `json:"data"`
}

// NewDocument returns a valid empty document: no columns, no units, and an
// empty cell map for each of the twelve months.
func NewDocument() *Document {
	data := make(map[string]map[string]float64, len(Months))
	for _, m := range Months {
		data[m] = map[string]float64{}
	}
	return &Document{
		Columns: []string{},
		Units:   map[string]string{},
		Data:    data,
	}
}

// HasColumn reports whether name is a known column.
func (d *Document) HasColumn(name string) bool {
	for _, c := range d.Columns {
		if c == name {
			return true
		}
	}
	return false
}

// Clone returns a deep copy of the document. Operations apply to a clone so
// a failed apply never leaves the original partially mutated.
func (d *Document) Clone() *Document {
	out := &Document{
		Columns: make([]string, len(d.Columns)),
		Units:   make(map[string]string, len(d.Units)),
		Data:    make(map[string]map[string]float64, len(d.Data)),
	}
	copy(out.Columns, d.Columns)
	for k, v := range d.Units {
		out.Units[k] = v
	}
	for month, cells := range d.Data {
		row := make(map[string]float64, len(cells))
		for col, val := range cells {
			row[col] = val
		}
		out.Data[month] = row
	}
	return out
}

// Normalize fills in structures that may be nil after JSON decoding of a
// legacy or hand-edited payload: nil maps become empty and missing months get
// empty cell maps. It does not touch existing values.
func (d *Document) Normalize() {
	if d.Columns == nil {
		d.Columns = []string{}
	}
	if d.Units == nil {
		d.Units = map[string]string{}
	}
	if d.Data == nil {
		d.Data = make(map[string]map[string]float64, len(Months))
	}
	for _, m := range Months {
		if d.Data[m] == nil {
			d.Data[m] = map[string]float64{}
		}
	}
}

// Validate checks the document invariants:
//   - column names are unique and non-empty;
//   - every units key refers to a known column;
//   - data keys are exactly the twelve month labels;
//   - every cell key refers to a known column.
func (d *Document) Validate() error {
	seen := make(map[string]bool, len(d.Columns))
	for _, c := range d.Columns {
		if c == "" {
			return fmt.Errorf("empty column name: %w", domain.ErrValidation)
		}
		if seen[c] {
			return fmt.Errorf("duplicate column %q: %w", c, domain.ErrValidation)
		}
		seen[c] = true
	}

	for c := range d.Units {
		if !seen[c] {
			return fmt.Errorf("unit for unknown column %q: %w", c, domain.ErrValidation)
		}
	}

	if len(d.Data) != len(Months) {
		return fmt.Errorf("data has %d period keys, want %d: %w", len(d.Data), len(Months), domain.ErrValidation)
	}
	for month, cells := range d.Data {
		if !IsMonth(month) {
			return fmt.Errorf("invalid period key %q: %w", month, domain.ErrValidation)
		}
		for c := range cells {
			if !seen[c] {
				return fmt.Errorf("cell in %s for unknown column %q: %w", month, c, domain.ErrValidation)
			}
		}
	}
	return nil
}
