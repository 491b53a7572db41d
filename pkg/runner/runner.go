// Package runner drives whole scenarios: benign population, attack chain,
// unification and every output artifact.
package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/polisai/huntgen/pkg/benign"
	"github.com/polisai/huntgen/pkg/config"
	"github.com/polisai/huntgen/pkg/domain"
	"github.com/polisai/huntgen/pkg/engine"
	"github.com/polisai/huntgen/pkg/engine/runtime"
	"github.com/polisai/huntgen/pkg/output"
	"github.com/polisai/huntgen/pkg/qa"
	"github.com/polisai/huntgen/pkg/storage"
	"github.com/polisai/huntgen/pkg/techniques"
)

// ErrOutputConflict reports two scenario files that resolve to the same
// output folder.
var ErrOutputConflict = errors.New("output folder already used by another scenario file")

// attackerSeedOffset separates the attacker profile stream from the benign one.
const attackerSeedOffset = 0x5eed

// Config holds dependencies for creating a Runner.
type Config struct {
	OutputDir string
	// Parallelism bounds how many scenarios run at once. Values below 2 run
	// them sequentially.
	Parallelism int
	// Registry defaults to techniques.DefaultRegistry.
	Registry *engine.Registry
	Logger   *slog.Logger
}

// Runner executes scenario files. Every scenario gets its own store,
// aggregator and output folder.
type Runner struct {
	outputDir   string
	parallelism int
	registry    *engine.Registry
	logger      *slog.Logger

	mu sync.Mutex
	// claims maps an output folder to the scenario file writing it.
	claims map[string]string
}

// Report is the outcome of one scenario.
type Report struct {
	Path     string
	Scenario string
	RunID    string
	Dir      string
	Results  []runtime.StageResult
	Tables   map[string]int
	QA       int
	Duration time.Duration
	Err      error
}

// Failed reports whether the scenario was aborted.
func (r Report) Failed() bool { return r.Err != nil }

// Summary counts scenario outcomes of a run.
type Summary struct {
	Total     int
	Succeeded int
	Failed    int
	// StageFailures counts failed stages inside scenarios that completed.
	StageFailures int
}

// Summarize tallies reports.
func Summarize(reports []Report) Summary {
	s := Summary{Total: len(reports)}
	for _, r := range reports {
		if r.Failed() {
			s.Failed++
			continue
		}
		s.Succeeded++
		for _, res := range r.Results {
			if res.Outcome == runtime.OutcomeFailed {
				s.StageFailures++
			}
		}
	}
	return s
}

// New creates a runner with the given configuration.
func New(cfg Config) *Runner {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	registry := cfg.Registry
	if registry == nil {
		registry = techniques.DefaultRegistry()
	}
	outputDir := cfg.OutputDir
	if outputDir == "" {
		outputDir = "output"
	}
	return &Runner{
		outputDir:   outputDir,
		parallelism: cfg.Parallelism,
		registry:    registry,
		logger:      logger,
		claims:      make(map[string]string),
	}
}

// claim reserves dir for path. Re-running the same file is allowed.
func (r *Runner) claim(dir, path string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if owner, ok := r.claims[dir]; ok && owner != path {
		return fmt.Errorf("%s: %w: %s", path, ErrOutputConflict, owner)
	}
	r.claims[dir] = path
	return nil
}

// RunAll runs every scenario file and returns one report per path, in input
// order. A failing scenario is logged and does not stop the others; a
// canceled ctx marks the scenarios that had not started as failed.
func (r *Runner) RunAll(ctx context.Context, paths []string) []Report {
	reports := make([]Report, len(paths))
	if r.parallelism < 2 {
		for i, path := range paths {
			reports[i] = r.RunFile(ctx, path)
		}
		return reports
	}

	var g errgroup.Group
	g.SetLimit(r.parallelism)
	for i, path := range paths {
		g.Go(func() error {
			reports[i] = r.RunFile(ctx, path)
			return nil
		})
	}
	_ = g.Wait()
	return reports
}

// RunFile loads and runs one scenario file.
func (r *Runner) RunFile(ctx context.Context, path string) Report {
	if err := ctx.Err(); err != nil {
		return Report{Path: path, Err: err}
	}
	sc, err := config.LoadScenario(path, r.logger)
	if err != nil {
		r.logger.Error("scenario failed to load", "path", path, "error", err)
		return Report{Path: path, Err: err}
	}
	report, err := r.RunScenario(ctx, sc)
	if err != nil {
		r.logger.Error("scenario failed", "scenario", sc.Name, "path", path, "error", err)
	}
	return report
}

// RunScenario executes the full lifecycle of a loaded scenario.
func (r *Runner) RunScenario(ctx context.Context, sc *config.Scenario) (report Report, err error) {
	started := time.Now()
	report = Report{Path: sc.Path, Scenario: sc.Name, RunID: uuid.NewString()}
	defer func() {
		report.Duration = time.Since(started)
		report.Err = err
	}()
	logger := r.logger.With("scenario", sc.Name, "run_id", report.RunID)

	if err := sc.Check(r.registry); err != nil {
		return report, err
	}

	writer := output.NewWriter(output.WriterConfig{Root: r.outputDir, Scenario: sc.Name, Logger: logger})
	if err := r.claim(writer.Dir(), sc.Path); err != nil {
		return report, err
	}
	report.Dir = writer.Dir()
	if err := writer.Prepare(sc.Name); err != nil {
		return report, err
	}

	gen, err := benign.NewGenerator(benign.GeneratorConfig{Benign: *sc.Benign, Seed: sc.Seed, Logger: logger})
	if err != nil {
		return report, &domain.ConfigurationError{Scenario: sc.Name, Err: err, Message: err.Error()}
	}
	benignTables, err := gen.Generate(ctx)
	if err != nil {
		return report, fmt.Errorf("generate benign data: %w", err)
	}
	if err := writer.WriteBenign(benignTables); err != nil {
		return report, err
	}

	store := storage.NewUnifiedTableStore(logger)
	store.IngestAll(benignTables)
	agg := qa.NewAggregator(logger)

	attackerSeed := sc.Seed
	if attackerSeed != 0 {
		attackerSeed += attackerSeedOffset
	}
	attacker := techniques.NewAttacker(gofakeit.New(attackerSeed))
	start, _, _ := sc.Benign.Window()

	dispatcher := engine.NewDispatcher(engine.DispatcherConfig{
		Registry: r.registry,
		Store:    store,
		QA:       agg,
		Sink:     writer,
		Logger:   logger,
		Scenario: sc.Name,
		Seed:     sc.Seed,
	})
	results, final := dispatcher.Run(ctx, engine.RunInput{
		Benign:   benignTables,
		Attacker: attacker,
		Attacks:  sc.StageConfigs(),
		Initial:  domain.StageContext{Clock: start},
	})
	report.Results = results

	duplicates := agg.Duplicates()
	unified := store.Finalize()
	records := agg.Finalize()
	report.QA = len(records)
	report.Tables = make(map[string]int, len(unified))
	for name, t := range unified {
		report.Tables[name] = t.Len()
	}

	if err := writer.WriteCombined(unified); err != nil {
		return report, err
	}
	if err := exportSQLite(ctx, writer.Path(output.CombinedDir, output.UnifiedDBFile), unified); err != nil {
		return report, err
	}
	if err := writer.WriteQA(records); err != nil {
		return report, err
	}

	manifest := output.Manifest{
		RunID:        report.RunID,
		Scenario:     sc.Name,
		ConfigPath:   sc.Path,
		Seed:         sc.Seed,
		StartedAt:    started.UTC(),
		FinishedAt:   time.Now().UTC(),
		Attacker:     attacker,
		Tables:       report.Tables,
		QARecords:    len(records),
		QADuplicates: duplicates,
	}
	metrics := NewMetrics(sc.Name)
	for _, res := range results {
		manifest.Stages = append(manifest.Stages, output.NewStageEntry(res))
		metrics.ObserveStage(res)
	}
	if err := writer.WriteManifest(manifest); err != nil {
		return report, err
	}
	metrics.ObserveTables(report.Tables)
	metrics.ObserveQA(len(records), duplicates)
	metrics.ObserveRun(len(final.Victims), time.Since(started).Seconds())
	if err := metrics.WriteToTextfile(writer.Path(output.MetricsFile)); err != nil {
		return report, fmt.Errorf("write metrics: %w", err)
	}

	summary := Summarize([]Report{{Results: results}})
	logger.Info("scenario complete",
		"dir", report.Dir,
		"tables", len(unified),
		"qa", len(records),
		"qa_duplicates", duplicates,
		"failed_stages", summary.StageFailures,
		"duration_ms", time.Since(started).Milliseconds(),
	)
	return report, nil
}

func exportSQLite(ctx context.Context, path string, tables map[string]*domain.Table) (err error) {
	db, err := storage.OpenSQLite(path)
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, db.Close())
	}()
	if err := db.WriteTables(ctx, tables); err != nil {
		return fmt.Errorf("export sqlite: %w", err)
	}
	return nil
}
