// Package runtime defines the core contracts shared by the stage dispatcher and
// the technique generators, keeping generation logic decoupled from execution
// mechanics.
package runtime

import (
	"context"
	"time"

	"github.com/polisai/huntgen/pkg/domain"
)

// StageOutcome captures the terminal state of one stage.
type StageOutcome string

const (
	// OutcomeCompleted indicates the generator returned and its output was applied.
	OutcomeCompleted StageOutcome = "completed"
	// OutcomeSkipped indicates the stage did not run; the context was forwarded unchanged.
	OutcomeSkipped StageOutcome = "skipped"
	// OutcomeFailed indicates variant resolution or the generator failed; the
	// context was forwarded unchanged.
	OutcomeFailed StageOutcome = "failed"
)

// StageInput is everything a generator may read. It must not be modified.
type StageInput struct {
	Stage    domain.StageName
	Variant  domain.VariantName
	Benign   domain.Tables
	Attacker domain.Attacker
	Context  domain.StageContext
	Config   domain.StageConfig
	// Seed makes a generator deterministic when non-zero.
	Seed uint64
}

// StageOutput is what a generator hands back to the engine. Ownership of the
// tables transfers to the engine.
type StageOutput struct {
	Tables  domain.Tables
	Victims domain.Cohort
	// Clock must be at or after the latest timestamp the stage produced.
	Clock time.Time
	QA    []domain.QARecord
}

// Generator produces one variant of one stage.
type Generator interface {
	Generate(ctx context.Context, in StageInput) (StageOutput, error)
}

// GeneratorFunc adapts a function to the Generator interface.
type GeneratorFunc func(ctx context.Context, in StageInput) (StageOutput, error)

// Generate calls f.
func (f GeneratorFunc) Generate(ctx context.Context, in StageInput) (StageOutput, error) {
	return f(ctx, in)
}

// ConfigValidator is implemented by generators with variant-specific
// parameters. It runs before any stage executes.
type ConfigValidator interface {
	ValidateConfig(cfg domain.StageConfig) error
}

// StageResult is the tagged outcome of one stage. Exactly one of Output
// (completed), Reason (skipped) or Err (failed) is meaningful.
type StageResult struct {
	Stage   domain.StageName
	Variant domain.VariantName
	Outcome StageOutcome
	// Before is the context the stage received; After is the one forwarded.
	Before   domain.StageContext
	After    domain.StageContext
	Output   *StageOutput
	Reason   string
	Err      error
	Duration time.Duration
}

// Completed constructs a completed result.
func Completed(stage domain.StageName, variant domain.VariantName, before, after domain.StageContext, out StageOutput) StageResult {
	return StageResult{Stage: stage, Variant: variant, Outcome: OutcomeCompleted, Before: before, After: after, Output: &out}
}

// Skipped constructs a skipped result that forwards ctx unchanged.
func Skipped(stage domain.StageName, ctx domain.StageContext, reason string) StageResult {
	return StageResult{Stage: stage, Outcome: OutcomeSkipped, Before: ctx, After: ctx, Reason: reason}
}

// Failed constructs a failed result that forwards ctx unchanged.
func Failed(stage domain.StageName, variant domain.VariantName, ctx domain.StageContext, err error) StageResult {
	return StageResult{Stage: stage, Variant: variant, Outcome: OutcomeFailed, Before: ctx, After: ctx, Err: err}
}

// Rows returns the number of rows the stage produced.
func (r StageResult) Rows() int {
	if r.Output == nil {
		return 0
	}
	n := 0
	for _, t := range r.Output.Tables {
		n += t.Len()
	}
	return n
}
