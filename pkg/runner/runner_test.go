package runner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/polisai/huntgen/pkg/domain"
	"github.com/polisai/huntgen/pkg/engine/runtime"
	"github.com/polisai/huntgen/pkg/output"
	"github.com/polisai/huntgen/pkg/storage"
)

const fullScenario = `
name: full
seed: 11
benign:
  num_employees: 5
  start_date: "2025-01-06"
  end_date: "2025-01-06"
attacks:
  reconnaissance: {type: active_scan}
  initial_access: {type: content_injection}
  execution: {}
  credential_access: {type: password_spray}
  exfiltration:
    type: exfiltration_over_web
    plausible_endpoints: [mega.nz]
`

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func writeScenario(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestRunFileProducesEveryArtifact(t *testing.T) {
	cfgDir, outDir := t.TempDir(), t.TempDir()
	path := writeScenario(t, cfgDir, "full.yaml", fullScenario)

	r := New(Config{OutputDir: outDir, Logger: discard()})
	report := r.RunFile(context.Background(), path)
	require.NoError(t, report.Err)
	assert.Equal(t, "full", report.Scenario)
	assert.NotEmpty(t, report.RunID)
	require.Len(t, report.Results, len(domain.StageOrder))

	dir := filepath.Join(outDir, "full")
	for _, rel := range []string{
		output.ReadmeFile,
		filepath.Join(output.BenignDir, "identity_info.csv"),
		filepath.Join("reconnaissance", "device_network_events.csv"),
		filepath.Join(output.CombinedDir, "device_network_events.csv"),
		filepath.Join(output.CombinedDir, output.UnifiedDBFile),
		output.QACSVFile,
		output.QAJSONFile,
		output.ManifestFile,
		output.MetricsFile,
	} {
		assert.FileExists(t, filepath.Join(dir, rel))
	}

	outcomes := map[domain.StageName]runtime.StageOutcome{}
	for _, res := range report.Results {
		outcomes[res.Stage] = res.Outcome
	}
	assert.Equal(t, runtime.OutcomeCompleted, outcomes[domain.StageReconnaissance])
	assert.Equal(t, runtime.OutcomeCompleted, outcomes[domain.StageExfiltration])
	assert.Equal(t, runtime.OutcomeSkipped, outcomes[domain.StageLateralMovement])

	var m output.Manifest
	data, err := os.ReadFile(filepath.Join(dir, output.ManifestFile))
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &m))
	assert.Equal(t, report.RunID, m.RunID)
	assert.Len(t, m.Stages, len(domain.StageOrder))
	assert.Equal(t, report.QA, m.QARecords)
	assert.Positive(t, m.Tables["device_network_events"])

	db, err := storage.OpenSQLite(filepath.Join(dir, output.CombinedDir, output.UnifiedDBFile))
	require.NoError(t, err)
	defer db.Close()
	n, err := db.CountRows(context.Background(), "identity_info")
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	prom, err := os.ReadFile(filepath.Join(dir, output.MetricsFile))
	require.NoError(t, err)
	assert.Contains(t, string(prom), `huntgen_stages_total{outcome="completed",scenario="full",stage="reconnaissance",variant="active_scan"} 1`)
}

func TestRunAllIsolatesFailingScenarios(t *testing.T) {
	cfgDir, outDir := t.TempDir(), t.TempDir()
	paths := []string{
		writeScenario(t, cfgDir, "a_missing_benign.yaml", "attacks:\n  reconnaissance: {}\n"),
		writeScenario(t, cfgDir, "b_bad_variant.yaml", "benign: {num_employees: 2}\nattacks:\n  impact: {type: meteor_strike}\n"),
		writeScenario(t, cfgDir, "c_ok.yaml", "seed: 3\nbenign: {num_employees: 2}\nattacks:\n  reconnaissance: {}\n"),
	}

	reports := New(Config{OutputDir: outDir, Logger: discard()}).RunAll(context.Background(), paths)
	require.Len(t, reports, 3)
	assert.ErrorIs(t, reports[0].Err, domain.ErrMissingSection)
	assert.ErrorIs(t, reports[1].Err, domain.ErrUnknownVariant)
	assert.NoError(t, reports[2].Err)

	s := Summarize(reports)
	assert.Equal(t, Summary{Total: 3, Succeeded: 1, Failed: 2}, s)

	_, err := os.Stat(filepath.Join(outDir, "b_bad_variant"))
	assert.True(t, os.IsNotExist(err), "no output for a scenario rejected upfront")
}

func TestRunAllParallelKeepsOrder(t *testing.T) {
	cfgDir, outDir := t.TempDir(), t.TempDir()
	var paths []string
	for _, name := range []string{"one", "two", "three", "four"} {
		paths = append(paths, writeScenario(t, cfgDir, name+".yaml", "benign: {num_employees: 2}\nattacks:\n  reconnaissance: {}\n"))
	}

	reports := New(Config{OutputDir: outDir, Parallelism: 3, Logger: discard()}).RunAll(context.Background(), paths)
	require.Len(t, reports, 4)
	for i, rep := range reports {
		require.NoError(t, rep.Err)
		assert.Equal(t, strings.TrimSuffix(filepath.Base(paths[i]), ".yaml"), rep.Scenario)
		assert.DirExists(t, rep.Dir)
	}
}

func TestRunAllRejectsSharedOutputFolder(t *testing.T) {
	cfgDir, outDir := t.TempDir(), t.TempDir()
	body := "benign: {num_employees: 2}\nattacks:\n  reconnaissance: {}\n"
	var paths []string
	for _, sub := range []string{"a", "b"} {
		require.NoError(t, os.Mkdir(filepath.Join(cfgDir, sub), 0o755))
		paths = append(paths, writeScenario(t, filepath.Join(cfgDir, sub), "x.yaml", body))
	}

	for _, parallelism := range []int{1, 2} {
		reports := New(Config{OutputDir: filepath.Join(outDir, fmt.Sprint(parallelism)), Parallelism: parallelism, Logger: discard()}).RunAll(context.Background(), paths)
		require.Len(t, reports, 2)
		var ok, conflicts int
		for _, rep := range reports {
			switch {
			case rep.Err == nil:
				ok++
			case errors.Is(rep.Err, ErrOutputConflict):
				conflicts++
			}
		}
		assert.Equal(t, 1, ok, "parallelism %d", parallelism)
		assert.Equal(t, 1, conflicts, "parallelism %d", parallelism)
	}
	assert.ErrorIs(t, New(Config{OutputDir: outDir, Logger: discard()}).RunAll(context.Background(), paths)[1].Err, ErrOutputConflict)
}

func TestRunFileSamePathReruns(t *testing.T) {
	path := writeScenario(t, t.TempDir(), "again.yaml", "benign: {num_employees: 2}\n")
	r := New(Config{OutputDir: t.TempDir(), Logger: discard()})
	require.NoError(t, r.RunFile(context.Background(), path).Err)
	require.NoError(t, r.RunFile(context.Background(), path).Err)
}

func TestRunAllCanceledContext(t *testing.T) {
	path := writeScenario(t, t.TempDir(), "s.yaml", "benign: {}\n")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	reports := New(Config{OutputDir: t.TempDir(), Logger: discard()}).RunAll(ctx, []string{path})
	assert.ErrorIs(t, reports[0].Err, context.Canceled)
}

func TestSeededRunsAreReproducible(t *testing.T) {
	cfgDir := t.TempDir()
	path := writeScenario(t, cfgDir, "full.yaml", fullScenario)

	read := func() string {
		out := t.TempDir()
		rep := New(Config{OutputDir: out, Logger: discard()}).RunFile(context.Background(), path)
		require.NoError(t, rep.Err)
		data, err := os.ReadFile(filepath.Join(out, "full", output.QACSVFile))
		require.NoError(t, err)
		return string(data)
	}
	assert.Equal(t, read(), read())
}

func TestMetrics(t *testing.T) {
	m := NewMetrics("demo")
	out := runtime.StageOutput{Tables: domain.Tables{"t": {Name: "t", Rows: []domain.Row{{}, {}}}}}
	done := runtime.Completed(domain.StageExecution, "user_execution", domain.StageContext{}, domain.StageContext{}, out)
	done.Duration = 20 * time.Millisecond
	m.ObserveStage(done)
	m.ObserveStage(runtime.Skipped(domain.StageImpact, domain.StageContext{}, "not configured"))
	m.ObserveTables(map[string]int{"t": 2})
	m.ObserveQA(4, 1)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.stagesTotal.WithLabelValues("execution", "user_execution", "completed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.stagesTotal.WithLabelValues("impact", "", "skipped")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.stageRows.WithLabelValues("execution")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.stageDuration))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.tableRows.WithLabelValues("t")))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.qaRecords))

	path := filepath.Join(t.TempDir(), "metrics.prom")
	require.NoError(t, m.WriteToTextfile(path))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `huntgen_qa_duplicates{scenario="demo"} 1`)
}
