package table

import (
	"encoding/json"
	"fmt"

	"github.com/CivStat/MetricBoard/internal/domain"
)

// Operation kind tags, used as the "op" discriminator on the wire.
const (
	OpAddColumn    = "add_column"
	OpRenameColumn = "rename_column"
	OpDeleteColumn = "delete_column"
	OpSetUnit      = "set_unit"
	OpSetCellValue = "set_cell_value"
	OpSetTableName = "set_table_name"
)

// Named operation errors. All wrap domain.ErrValidation.
var (
	ErrDuplicateColumn = fmt.Errorf("duplicate column: %w", domain.ErrValidation)
	ErrUnknownColumn   = fmt.Errorf("unknown column: %w", domain.ErrValidation)
	ErrInvalidMonth    = fmt.Errorf("invalid month: %w", domain.ErrValidation)
)

// Operation is one named mutation of a Document. Apply must either leave doc
// satisfying its invariants or return an error without mutating it.
type Operation interface {
	// Kind returns the wire tag of the operation.
	Kind() string

	// Validate checks operation arguments independent of any document.
	Validate() error

	// Apply mutates doc in place. Callers that need all-or-nothing semantics
	// apply to a Clone and swap on success (see Apply below).
	Apply(doc *Document) error
}

// Apply validates op, applies it to a clone of doc, verifies the invariants
// and returns the new document. doc itself is never mutated.
func Apply(doc *Document, op Operation) (*Document, error) {
	if err := op.Validate(); err != nil {
		return nil, err
	}
	next := doc.Clone()
	if err := op.Apply(next); err != nil {
		return nil, err
	}
	if err := next.Validate(); err != nil {
		return nil, fmt.Errorf("operation %s broke invariants: %w", op.Kind(), err)
	}
	return next, nil
}

// AddColumn appends a new column, optionally with a unit.
type AddColumn struct {
	Column string `json:"column"`
	Unit   string `json:"unit,omitempty"`
}

func (o AddColumn) Kind() string { return OpAddColumn }

func (o AddColumn) Validate() error {
	if o.Column == "" {
		return fmt.Errorf("column name is required: %w", domain.ErrValidation)
	}
	return nil
}

func (o AddColumn) Apply(doc *Document) error {
	if doc.HasColumn(o.Column) {
		return fmt.Errorf("%q: %w", o.Column, ErrDuplicateColumn)
	}
	doc.Columns = append(doc.Columns, o.Column)
	if o.Unit != "" {
		doc.Units[o.Column] = o.Unit
	}
	return nil
}

// RenameColumn replaces a column name at its current ordinal position and
// migrates the unit and all month cells to the new name. Renaming a column
// to itself is a no-op; renaming a column that does not exist is an error.
type RenameColumn struct {
	Column  string `json:"column"`
	NewName string `json:"new_name"`
}

func (o RenameColumn) Kind() string { return OpRenameColumn }

func (o RenameColumn) Validate() error {
	if o.Column == "" {
		return fmt.Errorf("column name is required: %w", domain.ErrValidation)
	}
	if o.NewName == "" {
		return fmt.Errorf("new column name is required: %w", domain.ErrValidation)
	}
	return nil
}

func (o RenameColumn) Apply(doc *Document) error {
	if o.NewName == o.Column {
		return nil
	}
	if !doc.HasColumn(o.Column) {
		return fmt.Errorf("%q: %w", o.Column, ErrUnknownColumn)
	}
	if doc.HasColumn(o.NewName) {
		return fmt.Errorf("%q: %w", o.NewName, ErrDuplicateColumn)
	}

	for i, c := range doc.Columns {
		if c == o.Column {
			doc.Columns[i] = o.NewName
			break
		}
	}
	if unit, ok := doc.Units[o.Column]; ok {
		doc.Units[o.NewName] = unit
		delete(doc.Units, o.Column)
	}
	for _, cells := range doc.Data {
		if v, ok := cells[o.Column]; ok {
			cells[o.NewName] = v
			delete(cells, o.Column)
		}
	}
	return nil
}

// DeleteColumn removes a column, its unit and all its month cells.
// Deleting an absent column is a no-op. Irreversible: no tombstone is kept.
type DeleteColumn struct {
	Column string `json:"column"`
}

func (o DeleteColumn) Kind() string { return OpDeleteColumn }

func (o DeleteColumn) Validate() error {
	if o.Column == "" {
		return fmt.Errorf("column name is required: %w", domain.ErrValidation)
	}
	return nil
}

func (o DeleteColumn) Apply(doc *Document) error {
	for i, c := range doc.Columns {
		if c == o.Column {
			doc.Columns = append(doc.Columns[:i], doc.Columns[i+1:]...)
			break
		}
	}
	delete(doc.Units, o.Column)
	for _, cells := range doc.Data {
		delete(cells, o.Column)
	}
	return nil
}

// SetUnit sets or clears the unit of an existing column. An empty unit
// removes the key entirely rather than storing "".
type SetUnit struct {
	Column string `json:"column"`
	Unit   string `json:"unit"`
}

func (o SetUnit) Kind() string { return OpSetUnit }

func (o SetUnit) Validate() error {
	if o.Column == "" {
		return fmt.Errorf("column name is required: %w", domain.ErrValidation)
	}
	return nil
}

func (o SetUnit) Apply(doc *Document) error {
	if !doc.HasColumn(o.Column) {
		return fmt.Errorf("%q: %w", o.Column, ErrUnknownColumn)
	}
	if o.Unit == "" {
		delete(doc.Units, o.Column)
		return nil
	}
	doc.Units[o.Column] = o.Unit
	return nil
}

// SetCellValue sets one month's value for an existing column.
type SetCellValue struct {
	Column string  `json:"column"`
	Month  string  `json:"month"`
	Value  float64 `json:"value"`
}

func (o SetCellValue) Kind() string { return OpSetCellValue }

func (o SetCellValue) Validate() error {
	if o.Column == "" {
		return fmt.Errorf("column name is required: %w", domain.ErrValidation)
	}
	if !IsMonth(o.Month) {
		return fmt.Errorf("%q: %w", o.Month, ErrInvalidMonth)
	}
	return nil
}

func (o SetCellValue) Apply(doc *Document) error {
	if !doc.HasColumn(o.Column) {
		return fmt.Errorf("%q: %w", o.Column, ErrUnknownColumn)
	}
	doc.Data[o.Month][o.Column] = o.Value
	return nil
}

// SetTableName updates the metric's display label. It does not touch the
// document structures; the persistence layer stores the label alongside.
type SetTableName struct {
	TableName string `json:"table_name"`
}

func (o SetTableName) Kind() string { return OpSetTableName }

func (o SetTableName) Validate() error {
	if o.TableName == "" {
		return fmt.Errorf("table name is required: %w", domain.ErrValidation)
	}
	return nil
}

func (o SetTableName) Apply(_ *Document) error { return nil }

// envelope is the wire form of an operation: the "op" tag plus the union of
// all operation fields.
type envelope struct {
	Op        string   `json:"op"`
	Column    string   `json:"column"`
	NewName   string   `json:"new_name"`
	Unit      string   `json:"unit"`
	Month     string   `json:"month"`
	Value     *float64 `json:"value"`
	TableName string   `json:"table_name"`
}

// DecodeOperation parses one JSON-encoded operation, dispatching on the "op"
// tag. Unknown tags and malformed bodies are validation errors.
func DecodeOperation(data []byte) (Operation, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("malformed operation: %w", domain.ErrValidation)
	}

	switch env.Op {
	case OpAddColumn:
		return AddColumn{Column: env.Column, Unit: env.Unit}, nil
	case OpRenameColumn:
		return RenameColumn{Column: env.Column, NewName: env.NewName}, nil
	case OpDeleteColumn:
		return DeleteColumn{Column: env.Column}, nil
	case OpSetUnit:
		return SetUnit{Column: env.Column, Unit: env.Unit}, nil
	case OpSetCellValue:
		if env.Value == nil {
			return nil, fmt.Errorf("value is required: %w", domain.ErrValidation)
		}
		return SetCellValue{Column: env.Column, Month: env.Month, Value: *env.Value}, nil
	case OpSetTableName:
		return SetTableName{TableName: env.TableName}, nil
	case "":
		return nil, fmt.Errorf("op is required: %w", domain.ErrValidation)
	default:
		return nil, fmt.Errorf("unknown op %q: %w", env.Op, domain.ErrValidation)
	}
}

// EncodeOperation serializes an operation back into its wire form, including
// the "op" tag. Inverse of DecodeOperation.
func EncodeOperation(op Operation) ([]byte, error) {
	env := envelope{Op: op.Kind()}
	switch o := op.(type) {
	case AddColumn:
		env.Column, env.Unit = o.Column, o.Unit
	case RenameColumn:
		env.Column, env.NewName = o.Column, o.NewName
	case DeleteColumn:
		env.Column = o.Column
	case SetUnit:
		env.Column, env.Unit = o.Column, o.Unit
	case SetCellValue:
		env.Column, env.Month = o.Column, o.Month
		v := o.Value
		env.Value = &v
	case SetTableName:
		env.TableName = o.TableName
	default:
		return nil, fmt.Errorf("unknown operation type %T", op)
	}
	return json.Marshal(env)
}
