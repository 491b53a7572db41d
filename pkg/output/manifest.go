package output

import (
	"time"

	"github.com/polisai/huntgen/pkg/domain"
	"github.com/polisai/huntgen/pkg/engine/runtime"
)

// Manifest is the run_manifest.json document: what ran, with what outcome.
type Manifest struct {
	RunID      string          `json:"run_id"`
	Scenario   string          `json:"scenario"`
	ConfigPath string          `json:"config_path,omitempty"`
	Seed       uint64          `json:"seed"`
	StartedAt  time.Time       `json:"started_at"`
	FinishedAt time.Time       `json:"finished_at"`
	Attacker   domain.Attacker `json:"attacker"`
	Stages     []StageEntry    `json:"stages"`
	// Tables maps each combined table to its row count.
	Tables       map[string]int `json:"tables"`
	QARecords    int            `json:"qa_records"`
	QADuplicates int            `json:"qa_duplicates"`
}

// StageEntry is one stage's line in the manifest.
type StageEntry struct {
	Stage      string   `json:"stage"`
	Variant    string   `json:"variant,omitempty"`
	Outcome    string   `json:"outcome"`
	Reason     string   `json:"reason,omitempty"`
	Error      string   `json:"error,omitempty"`
	DurationMs int64    `json:"duration_ms"`
	Tables     []string `json:"tables,omitempty"`
	Rows       int      `json:"rows"`
	Victims    int      `json:"victims"`
}

// NewStageEntry summarises a stage result.
func NewStageEntry(res runtime.StageResult) StageEntry {
	e := StageEntry{
		Stage:      string(res.Stage),
		Variant:    string(res.Variant),
		Outcome:    string(res.Outcome),
		Reason:     res.Reason,
		DurationMs: res.Duration.Milliseconds(),
		Rows:       res.Rows(),
		Victims:    len(res.After.Victims),
	}
	if res.Err != nil {
		e.Error = res.Err.Error()
	}
	if res.Output != nil {
		e.Tables = res.Output.Tables.Names()
	}
	return e
}
