package domain

import "slices"

// TimestampColumn is the canonical event-time column of every unified table.
const TimestampColumn = "Timestamp"

// Row maps a column name to a typed scalar: string, int64, float64, bool,
// time.Time or nil.
type Row map[string]any

// Table is one named tabular fragment produced by a stage or by the benign
// population. Column order is significant; rows may omit columns (read as null).
type Table struct {
	Name    string
	Columns []string
	Rows    []Row
}

// Tables maps a table name to its fragment.
type Tables map[string]*Table

// NewTable creates an empty table with the given column order.
func NewTable(name string, columns ...string) *Table {
	return &Table{Name: name, Columns: slices.Clone(columns)}
}

// Append adds a row. Keys outside Columns are kept in the row but are not
// part of the table's schema.
func (t *Table) Append(row Row) {
	t.Rows = append(t.Rows, row)
}

// Len returns the number of rows.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Rows)
}

// IsEmpty reports whether the table is nil or has no rows.
func (t *Table) IsEmpty() bool {
	return t.Len() == 0
}

// HasColumn reports whether name is part of the table's schema.
func (t *Table) HasColumn(name string) bool {
	return slices.Contains(t.Columns, name)
}

// Column returns the values of a column in row order.
func (t *Table) Column(name string) []any {
	out := make([]any, len(t.Rows))
	for i, row := range t.Rows {
		out[i] = row[name]
	}
	return out
}

// Clone returns a copy whose column slice and rows can be modified without
// affecting t. Row values themselves are scalars and are shared.
func (t *Table) Clone() *Table {
	if t == nil {
		return nil
	}
	out := &Table{Name: t.Name, Columns: slices.Clone(t.Columns), Rows: make([]Row, len(t.Rows))}
	for i, row := range t.Rows {
		cp := make(Row, len(row))
		for k, v := range row {
			cp[k] = v
		}
		out.Rows[i] = cp
	}
	return out
}

// Names returns the table names in sorted order.
func (ts Tables) Names() []string {
	names := make([]string, 0, len(ts))
	for name := range ts {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Put stores t under its own name, creating the map entry.
func (ts Tables) Put(t *Table) {
	ts[t.Name] = t
}
