package schema

import (
	"slices"

	"github.com/polisai/huntgen/pkg/domain"
)

// TimestampAliases are the event-time spellings accepted on ingest, in match
// order. The first one present is renamed to domain.TimestampColumn.
var TimestampAliases = []string{"TimeGenerated", "EventTime", "event_time", "time", "timestamp"}

// NormaliseTimestamp renames the first timestamp alias of t to
// domain.TimestampColumn. Tables that already carry the canonical column, or
// none of the aliases, are returned as is. t is never modified.
func NormaliseTimestamp(t *domain.Table) *domain.Table {
	if t == nil || t.HasColumn(domain.TimestampColumn) {
		return t
	}
	for _, alias := range TimestampAliases {
		idx := slices.Index(t.Columns, alias)
		if idx < 0 {
			continue
		}
		out := &domain.Table{Name: t.Name, Columns: slices.Clone(t.Columns), Rows: make([]domain.Row, len(t.Rows))}
		out.Columns[idx] = domain.TimestampColumn
		for i, row := range t.Rows {
			cp := make(domain.Row, len(row))
			for k, v := range row {
				if k == alias {
					k = domain.TimestampColumn
				}
				cp[k] = v
			}
			out.Rows[i] = cp
		}
		return out
	}
	return t
}
