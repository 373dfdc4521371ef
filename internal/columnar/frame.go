// Package columnar provides a small typed column batch used as the in-memory
// exchange format between record batches and the parquet table engine.
// A Frame holds named columns of a single logical type with nullable cells.
package columnar

import (
	"fmt"
)

// Type identifies the logical type of a column.
type Type string

const (
	TypeInt64   Type = "int64"
	TypeInt32   Type = "int32"
	TypeFloat64 Type = "double"
	TypeString  Type = "string"
	TypeBool    Type = "bool"
)

// Field describes one column: its name and logical type.
type Field struct {
	Name string `json:"name"`
	Type Type   `json:"type"`
}

// Column is a named, typed sequence of nullable cells. A nil cell is a null.
// Non-nil cells must hold the Go type matching the column Type
// (int64, int32, float64, string, bool).
type Column struct {
	Field
	Values []any
}

// Frame is an ordered collection of equal-length columns.
// The zero value is an empty frame ready for use.
type Frame struct {
	cols   []*Column
	byName map[string]*Column
	rows   int
}

// New returns an empty Frame.
func New() *Frame {
	return &Frame{byName: make(map[string]*Column)}
}

// AddColumn appends a column to the frame. The first column fixes the row
// count; subsequent columns must match it. Duplicate names are rejected.
func (f *Frame) AddColumn(name string, typ Type, values []any) error {
	if f.byName == nil {
		f.byName = make(map[string]*Column)
	}
	if name == "" {
		return fmt.Errorf("column name cannot be empty")
	}
	if _, ok := f.byName[name]; ok {
		return fmt.Errorf("duplicate column %q", name)
	}
	if len(f.cols) > 0 && len(values) != f.rows {
		return fmt.Errorf("column %q has %d values, frame has %d rows", name, len(values), f.rows)
	}
	col := &Column{Field: Field{Name: name, Type: typ}, Values: values}
	f.cols = append(f.cols, col)
	f.byName[name] = col
	if len(f.cols) == 1 {
		f.rows = len(values)
	}
	return nil
}

// NumRows returns the number of rows in the frame.
func (f *Frame) NumRows() int {
	if f == nil {
		return 0
	}
	return f.rows
}

// NumCols returns the number of columns in the frame.
func (f *Frame) NumCols() int {
	if f == nil {
		return 0
	}
	return len(f.cols)
}

// Fields returns the frame schema in column order.
func (f *Frame) Fields() []Field {
	fields := make([]Field, len(f.cols))
	for i, c := range f.cols {
		fields[i] = c.Field
	}
	return fields
}

// Column returns the named column, or nil if the frame has no such column.
func (f *Frame) Column(name string) *Column {
	if f == nil {
		return nil
	}
	return f.byName[name]
}

// HasColumn reports whether the frame contains the named column.
func (f *Frame) HasColumn(name string) bool {
	return f.Column(name) != nil
}

// Row returns row i as a name→value map. Null cells map to nil.
func (f *Frame) Row(i int) map[string]any {
	row := make(map[string]any, len(f.cols))
	for _, c := range f.cols {
		row[c.Name] = c.Values[i]
	}
	return row
}

// Int64At returns the int64 cell of the named column at row i.
// The second return is false when the cell is null or the column is absent.
func (f *Frame) Int64At(name string, i int) (int64, bool) {
	c := f.Column(name)
	if c == nil || c.Values[i] == nil {
		return 0, false
	}
	v, ok := c.Values[i].(int64)
	return v, ok
}

// Float64At returns the float64 cell of the named column at row i.
func (f *Frame) Float64At(name string, i int) (float64, bool) {
	c := f.Column(name)
	if c == nil || c.Values[i] == nil {
		return 0, false
	}
	v, ok := c.Values[i].(float64)
	return v, ok
}

// StringAt returns the string cell of the named column at row i.
func (f *Frame) StringAt(name string, i int) (string, bool) {
	c := f.Column(name)
	if c == nil || c.Values[i] == nil {
		return "", false
	}
	v, ok := c.Values[i].(string)
	return v, ok
}

// BoolAt returns the bool cell of the named column at row i.
func (f *Frame) BoolAt(name string, i int) (bool, bool) {
	c := f.Column(name)
	if c == nil || c.Values[i] == nil {
		return false, false
	}
	v, ok := c.Values[i].(bool)
	return v, ok
}

// Slice returns a new frame containing rows [offset, offset+limit).
// A limit <= 0 means "to the end". Offsets past the end yield an empty frame
// that keeps the schema.
func (f *Frame) Slice(offset, limit int) *Frame {
	if offset < 0 {
		offset = 0
	}
	end := f.rows
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	if offset > end {
		offset = end
	}
	out := New()
	for _, c := range f.cols {
		vals := make([]any, end-offset)
		copy(vals, c.Values[offset:end])
		// AddColumn cannot fail here: names are unique and lengths agree.
		_ = out.AddColumn(c.Name, c.Type, vals)
	}
	out.rows = end - offset
	return out
}

// Take returns a new frame containing the given rows, in order.
func (f *Frame) Take(indices []int) *Frame {
	out := New()
	for _, c := range f.cols {
		vals := make([]any, len(indices))
		for j, i := range indices {
			vals[j] = c.Values[i]
		}
		_ = out.AddColumn(c.Name, c.Type, vals)
	}
	out.rows = len(indices)
	return out
}

// Select returns a new frame holding only the named columns, in the given
// order. Requesting an unknown column is an error.
func (f *Frame) Select(names []string) (*Frame, error) {
	out := New()
	for _, name := range names {
		c := f.Column(name)
		if c == nil {
			return nil, fmt.Errorf("unknown column %q", name)
		}
		if err := out.AddColumn(c.Name, c.Type, c.Values); err != nil {
			return nil, err
		}
	}
	out.rows = f.rows
	return out, nil
}

// Append concatenates other onto f, merging schemas: columns present in only
// one side are null-filled on the other. Column type conflicts are an error.
func (f *Frame) Append(other *Frame) error {
	if other == nil || (other.NumRows() == 0 && other.NumCols() == 0) {
		return nil
	}
	for _, oc := range other.cols {
		if c := f.Column(oc.Name); c != nil && c.Type != oc.Type {
			return fmt.Errorf("column %q type mismatch: %s vs %s", oc.Name, c.Type, oc.Type)
		}
	}
	oldRows := f.rows
	// Null-fill new columns for the existing rows.
	for _, oc := range other.cols {
		if f.Column(oc.Name) == nil {
			if err := f.AddColumn(oc.Name, oc.Type, make([]any, oldRows)); err != nil {
				return err
			}
		}
	}
	for _, c := range f.cols {
		if oc := other.Column(c.Name); oc != nil {
			c.Values = append(c.Values, oc.Values...)
		} else {
			c.Values = append(c.Values, make([]any, other.rows)...)
		}
	}
	f.rows = oldRows + other.rows
	return nil
}
