package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/polisai/huntgen/pkg/domain"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestVariantsListsEveryStage(t *testing.T) {
	out, err := execute(t, "variants")
	require.NoError(t, err)
	for _, stage := range domain.StageOrder {
		assert.Contains(t, out, string(stage))
	}
	assert.Contains(t, out, "active_scan (default)")
	assert.Contains(t, out, "t1595")
}

func TestRunWritesScenarioFolders(t *testing.T) {
	cfgDir, outDir := t.TempDir(), t.TempDir()
	writeFile(t, cfgDir, "demo.yaml", "seed: 5\nbenign: {num_employees: 3}\nattacks:\n  reconnaissance: {}\n")
	writeFile(t, cfgDir, "broken.yaml", "attacks: {}\n")

	out, err := execute(t, "run", cfgDir, "--output", outDir, "--log-level", "error")
	require.NoError(t, err, "scenario failures do not fail the process")
	assert.Contains(t, out, "2 scenario(s): 1 succeeded, 1 failed")
	assert.DirExists(t, filepath.Join(outDir, "demo"))
}

func TestRunWithoutScenariosFails(t *testing.T) {
	_, err := execute(t, "run", t.TempDir(), "--log-level", "error")
	assert.ErrorIs(t, err, domain.ErrNoScenarioConfig)
}

func TestRunWatchRejectsSeveralPaths(t *testing.T) {
	_, err := execute(t, "run", "--watch", "a", "b")
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	dir := t.TempDir()
	good := writeFile(t, dir, "good.yaml", "benign: {}\nattacks:\n  execution: {type: T1059}\n  bogus_stage: {}\n")
	out, err := execute(t, "validate", good, "--log-level", "error")
	require.NoError(t, err)
	assert.Contains(t, out, "command_scripting")
	assert.Contains(t, out, "ignored: bogus_stage")

	bad := writeFile(t, dir, "bad.yaml", "benign: {}\nattacks:\n  exfiltration: {type: exfiltration_over_web}\n")
	out, err = execute(t, "validate", bad, "--log-level", "error")
	assert.ErrorIs(t, err, domain.ErrConfigInvalid)
	assert.Contains(t, out, "plausible_endpoints")
}

func TestInvalidLogLevelIsRejected(t *testing.T) {
	_, err := execute(t, "variants", "--log-level", "loud")
	assert.Error(t, err)
}

func TestVariantsMarkdown(t *testing.T) {
	out, err := execute(t, "variants", "--format", "markdown")
	require.NoError(t, err)
	assert.Contains(t, out, "| reconnaissance")
	assert.Contains(t, out, "| --- |")
	assert.Contains(t, out, "ransomware")
}

func TestUnknownTableFormatIsRejected(t *testing.T) {
	_, err := execute(t, "variants", "--format", "html")
	assert.Error(t, err)
}
