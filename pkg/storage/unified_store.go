package storage

import (
	"log/slog"
	"slices"
	"sort"
	"time"

	"github.com/polisai/huntgen/pkg/domain"
	"github.com/polisai/huntgen/pkg/schema"
)

// UnifiedTableStore accumulates reconciled fragments per table name for one
// scenario. It is owned by a single scenario run and is not safe for
// concurrent use; parallel scenarios each get their own instance.
type UnifiedTableStore struct {
	canonical map[string][]string
	fragments map[string][]*domain.Table
	order     []string
	logger    *slog.Logger
}

// NewUnifiedTableStore creates an empty store. A nil logger uses slog.Default.
func NewUnifiedTableStore(logger *slog.Logger) *UnifiedTableStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &UnifiedTableStore{
		canonical: make(map[string][]string),
		fragments: make(map[string][]*domain.Table),
		logger:    logger,
	}
}

// Ingest normalises the timestamp column of fragment, reconciles it against
// the canonical schema for name and appends it. Empty fragments are ignored:
// they neither establish nor alter a canonical schema. The returned drift is
// empty for the fragment that establishes the schema.
func (s *UnifiedTableStore) Ingest(name string, fragment *domain.Table) schema.Drift {
	if fragment.IsEmpty() {
		return schema.Drift{}
	}

	normalised := schema.NormaliseTimestamp(fragment)
	canonical, known := s.canonical[name]
	if !known {
		canonical = nil
	}
	conformed, drift := schema.Reconcile(normalised, canonical)
	if !known {
		s.canonical[name] = slices.Clone(conformed.Columns)
		s.order = append(s.order, name)
	} else if len(drift.Missing) > 0 || len(drift.Dropped) > 0 {
		s.logger.Warn("fragment schema drift reconciled",
			"table", name,
			"missing_columns", drift.Missing,
			"dropped_columns", drift.Dropped,
			"rows", conformed.Len(),
		)
	}
	if conformed == fragment {
		conformed = conformed.Clone()
	}
	conformed.Name = name
	s.fragments[name] = append(s.fragments[name], conformed)
	return drift
}

// IngestAll ingests every table of ts in name order.
func (s *UnifiedTableStore) IngestAll(ts domain.Tables) {
	for _, name := range ts.Names() {
		s.Ingest(name, ts[name])
	}
}

// Canonical returns the canonical schema recorded for name.
func (s *UnifiedTableStore) Canonical(name string) ([]string, bool) {
	cols, ok := s.canonical[name]
	return slices.Clone(cols), ok
}

// Fragments returns the stored fragments for name in arrival order.
func (s *UnifiedTableStore) Fragments(name string) []*domain.Table {
	return slices.Clone(s.fragments[name])
}

// Names returns table names in first-ingest order.
func (s *UnifiedTableStore) Names() []string {
	return slices.Clone(s.order)
}

// Finalize concatenates the fragments of every table in arrival order,
// stable-sorts each by Timestamp when the column exists, and resets the store.
func (s *UnifiedTableStore) Finalize() map[string]*domain.Table {
	out := make(map[string]*domain.Table, len(s.order))
	for _, name := range s.order {
		frags := s.fragments[name]
		if len(frags) == 0 {
			continue
		}
		unified := domain.NewTable(name, s.canonical[name]...)
		for _, f := range frags {
			unified.Rows = append(unified.Rows, f.Rows...)
		}
		if unified.HasColumn(domain.TimestampColumn) {
			SortByTimestamp(unified)
		}
		out[name] = unified
	}
	s.Reset()
	return out
}

// Reset clears all schemas and fragments.
func (s *UnifiedTableStore) Reset() {
	s.canonical = make(map[string][]string)
	s.fragments = make(map[string][]*domain.Table)
	s.order = nil
}

// SortByTimestamp stable-sorts rows by the Timestamp column. Null and
// unparseable values sort first, keeping their relative order.
func SortByTimestamp(t *domain.Table) {
	keys := make([]time.Time, len(t.Rows))
	valid := make([]bool, len(t.Rows))
	for i, row := range t.Rows {
		keys[i], valid[i] = TimeValue(row[domain.TimestampColumn])
	}
	idx := make([]int, len(t.Rows))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		ia, ib := idx[a], idx[b]
		switch {
		case !valid[ia] && !valid[ib]:
			return false
		case !valid[ia]:
			return true
		case !valid[ib]:
			return false
		default:
			return keys[ia].Before(keys[ib])
		}
	})
	rows := make([]domain.Row, len(t.Rows))
	for i, j := range idx {
		rows[i] = t.Rows[j]
	}
	t.Rows = rows
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	time.DateOnly,
}

// TimeValue interprets a cell as a point in time.
func TimeValue(v any) (time.Time, bool) {
	switch tv := v.(type) {
	case time.Time:
		return tv, !tv.IsZero()
	case *time.Time:
		if tv == nil {
			return time.Time{}, false
		}
		return *tv, !tv.IsZero()
	case string:
		for _, layout := range timeLayouts {
			if parsed, err := time.Parse(layout, tv); err == nil {
				return parsed, true
			}
		}
	case int64:
		return time.Unix(tv, 0).UTC(), true
	}
	return time.Time{}, false
}
