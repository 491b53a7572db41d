// Package schema aligns table fragments to the canonical schema recorded for
// their table name. Everything here is pure: callers own the state.
package schema

import (
	"slices"

	"github.com/polisai/huntgen/pkg/domain"
)

// Drift lists the differences found between a fragment and its canonical schema.
type Drift struct {
	// Missing canonical columns that were added null-filled.
	Missing []string
	// Dropped fragment columns absent from the canonical schema.
	Dropped []string
	// Reordered is set when surviving columns were moved into canonical order.
	Reordered bool
}

// Empty reports whether the fragment already matched the canonical schema.
func (d Drift) Empty() bool {
	return len(d.Missing) == 0 && len(d.Dropped) == 0 && !d.Reordered
}

// Reconcile conforms fragment to canonical. A nil canonical means no schema
// has been established for the name yet: the fragment's columns become
// canonical and it is returned unchanged.
//
// Otherwise missing canonical columns are null-filled, extra columns are
// dropped and survivors are reordered, so the result has exactly the
// canonical columns in canonical order. The first schema always wins.
func Reconcile(fragment *domain.Table, canonical []string) (*domain.Table, Drift) {
	if fragment == nil || canonical == nil {
		return fragment, Drift{}
	}

	var drift Drift
	for _, col := range canonical {
		if !fragment.HasColumn(col) {
			drift.Missing = append(drift.Missing, col)
		}
	}
	for _, col := range fragment.Columns {
		if !slices.Contains(canonical, col) {
			drift.Dropped = append(drift.Dropped, col)
		}
	}
	if len(drift.Missing) == 0 && len(drift.Dropped) == 0 && slices.Equal(fragment.Columns, canonical) {
		return fragment, drift
	}
	drift.Reordered = len(drift.Missing) == 0 && len(drift.Dropped) == 0

	out := &domain.Table{
		Name:    fragment.Name,
		Columns: slices.Clone(canonical),
		Rows:    make([]domain.Row, len(fragment.Rows)),
	}
	for i, row := range fragment.Rows {
		conformed := make(domain.Row, len(canonical))
		for _, col := range canonical {
			// Absent keys and missing columns both read as null.
			conformed[col] = row[col]
		}
		out.Rows[i] = conformed
	}
	return out, drift
}
