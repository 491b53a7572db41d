package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/polisai/huntgen/pkg/domain"

	_ "modernc.org/sqlite"
)

// SQLiteExporter writes finalized unified tables into a SQLite database so
// the combined dataset can be queried directly.
type SQLiteExporter struct {
	db *sql.DB
}

// OpenSQLite opens or creates a SQLite DB at path.
// Creates the parent directory if it does not exist.
func OpenSQLite(path string) (*SQLiteExporter, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create export dir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	return &SQLiteExporter{db: db}, nil
}

// Close closes the underlying database.
func (e *SQLiteExporter) Close() error {
	return e.db.Close()
}

// DB exposes the database handle for queries.
func (e *SQLiteExporter) DB() *sql.DB {
	return e.db
}

// WriteTables replaces each named table with the given rows.
func (e *SQLiteExporter) WriteTables(ctx context.Context, tables map[string]*domain.Table) error {
	for name, t := range tables {
		if err := e.WriteTable(ctx, name, t); err != nil {
			return err
		}
	}
	return nil
}

// WriteTable drops and recreates name, then inserts every row in one
// transaction. Column affinity is inferred from the first non-null value.
func (e *SQLiteExporter) WriteTable(ctx context.Context, name string, t *domain.Table) error {
	if t == nil || len(t.Columns) == 0 {
		return nil
	}

	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx for %s: %w", name, err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, "DROP TABLE IF EXISTS "+quoteIdent(name)); err != nil {
		return fmt.Errorf("drop table %s: %w", name, err)
	}

	defs := make([]string, len(t.Columns))
	for i, col := range t.Columns {
		defs[i] = quoteIdent(col) + " " + columnAffinity(t, col)
	}
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("CREATE TABLE %s (%s)", quoteIdent(name), strings.Join(defs, ", "))); err != nil {
		return fmt.Errorf("create table %s: %w", name, err)
	}

	cols := make([]string, len(t.Columns))
	marks := make([]string, len(t.Columns))
	for i, col := range t.Columns {
		cols[i] = quoteIdent(col)
		marks[i] = "?"
	}
	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		quoteIdent(name), strings.Join(cols, ", "), strings.Join(marks, ", ")))
	if err != nil {
		return fmt.Errorf("prepare insert %s: %w", name, err)
	}
	defer stmt.Close()

	args := make([]any, len(t.Columns))
	for _, row := range t.Rows {
		for i, col := range t.Columns {
			args[i] = sqlValue(row[col])
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return fmt.Errorf("insert into %s: %w", name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit %s: %w", name, err)
	}
	return nil
}

// CountRows returns the number of rows stored for name.
func (e *SQLiteExporter) CountRows(ctx context.Context, name string) (int, error) {
	var n int
	if err := e.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+quoteIdent(name)).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s: %w", name, err)
	}
	return n, nil
}

func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

func columnAffinity(t *domain.Table, col string) string {
	for _, row := range t.Rows {
		switch row[col].(type) {
		case nil:
			continue
		case int, int32, int64, bool:
			return "INTEGER"
		case float32, float64:
			return "REAL"
		default:
			return "TEXT"
		}
	}
	return "TEXT"
}

func sqlValue(v any) any {
	switch tv := v.(type) {
	case nil:
		return nil
	case time.Time:
		return tv.UTC().Format(time.RFC3339Nano)
	case string, int64, float64, bool:
		return tv
	case int:
		return int64(tv)
	case int32:
		return int64(tv)
	case float32:
		return float64(tv)
	default:
		return fmt.Sprint(tv)
	}
}
