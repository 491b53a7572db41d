// Package output writes a scenario's artifacts: per-stage and combined CSV
// tables, the QA files, the README and the run manifest.
package output

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/polisai/huntgen/pkg/domain"
)

// Folder and file names inside a scenario directory.
const (
	BenignDir     = "benign_data"
	CombinedDir   = "combined"
	ReadmeFile    = "README.md"
	QACSVFile     = "qa_output.csv"
	QAJSONFile    = "qa_output.json"
	ManifestFile  = "run_manifest.json"
	MetricsFile   = "metrics.prom"
	UnifiedDBFile = "unified.db"
)

// TimeLayout is the CSV rendering of timestamp cells.
const TimeLayout = time.RFC3339Nano

// WriterConfig holds dependencies for creating a Writer.
type WriterConfig struct {
	// Root is the output root; the scenario folder is created under it.
	Root     string
	Scenario string
	Logger   *slog.Logger
}

// Writer owns one scenario's output folder.
type Writer struct {
	dir    string
	logger *slog.Logger
}

// NewWriter creates a writer for <Root>/<Scenario>. Nothing is written until
// Prepare.
func NewWriter(cfg WriterConfig) *Writer {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Writer{
		dir:    filepath.Join(cfg.Root, cfg.Scenario),
		logger: logger.With("scenario", cfg.Scenario),
	}
}

// Dir returns the scenario folder.
func (w *Writer) Dir() string { return w.dir }

// Path joins elements onto the scenario folder.
func (w *Writer) Path(elem ...string) string {
	return filepath.Join(append([]string{w.dir}, elem...)...)
}

// Prepare creates the scenario folder and its README.
func (w *Writer) Prepare(scenario string) error {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	return w.writeFile(ReadmeFile, []byte(Readme(scenario)))
}

// WriteBenign writes the benign population to benign_data/.
func (w *Writer) WriteBenign(tables domain.Tables) error {
	return w.WriteTables(BenignDir, tables)
}

// WriteStage writes a completed stage's fragments to <stage>/. It satisfies
// engine.StageSink.
func (w *Writer) WriteStage(stage domain.StageName, tables domain.Tables) error {
	return w.WriteTables(string(stage), tables)
}

// WriteCombined writes the unified tables to combined/.
func (w *Writer) WriteCombined(tables map[string]*domain.Table) error {
	return w.WriteTables(CombinedDir, domain.Tables(tables))
}

// WriteTables writes every table to <sub>/<name>.csv. Empty tables are
// skipped.
func (w *Writer) WriteTables(sub string, tables domain.Tables) error {
	dir := w.Path(sub)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", sub, err)
	}
	for _, name := range tables.Names() {
		t := tables[name]
		if t.IsEmpty() {
			continue
		}
		path := filepath.Join(dir, name+".csv")
		if err := WriteCSV(path, t); err != nil {
			return err
		}
		w.logger.Debug("table written", "table", name, "rows", t.Len(), "path", path)
	}
	return nil
}

// WriteCSV writes t with a header row. Rows missing a column get an empty
// cell.
func WriteCSV(path string, t *domain.Table) (err error) {
	//nolint:gosec // Output paths are built from the configured root
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer func() {
		if cerr := f.Close(); err == nil && cerr != nil {
			err = fmt.Errorf("close %s: %w", path, cerr)
		}
	}()

	cw := csv.NewWriter(f)
	if err := cw.Write(t.Columns); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	record := make([]string, len(t.Columns))
	for _, row := range t.Rows {
		for i, col := range t.Columns {
			record[i] = FormatCell(row[col])
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("write %s: %w", path, err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush %s: %w", path, err)
	}
	return nil
}

// FormatCell renders a typed scalar for CSV.
func FormatCell(v any) string {
	switch tv := v.(type) {
	case nil:
		return ""
	case string:
		return tv
	case time.Time:
		if tv.IsZero() {
			return ""
		}
		return tv.UTC().Format(TimeLayout)
	case int64:
		return strconv.FormatInt(tv, 10)
	case int:
		return strconv.Itoa(tv)
	case float64:
		return strconv.FormatFloat(tv, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(tv)
	case []string, []any, map[string]any:
		b, err := json.Marshal(tv)
		if err != nil {
			return fmt.Sprint(tv)
		}
		return string(b)
	default:
		return fmt.Sprint(tv)
	}
}

// WriteQA writes qa_output.csv (Question, Answer) and qa_output.json.
func (w *Writer) WriteQA(records []domain.QARecord) error {
	path := w.Path(QACSVFile)
	t := domain.NewTable("qa", "Question", "Answer")
	for _, rec := range records {
		t.Append(domain.Row{"Question": rec.Question, "Answer": rec.Answer})
	}
	if err := WriteCSV(path, t); err != nil {
		return err
	}
	if records == nil {
		records = []domain.QARecord{}
	}
	return w.writeJSON(QAJSONFile, records)
}

// WriteManifest writes run_manifest.json.
func (w *Writer) WriteManifest(m Manifest) error {
	return w.writeJSON(ManifestFile, m)
}

func (w *Writer) writeJSON(name string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", name, err)
	}
	return w.writeFile(name, append(data, '\n'))
}

func (w *Writer) writeFile(name string, data []byte) error {
	path := w.Path(name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	return nil
}
