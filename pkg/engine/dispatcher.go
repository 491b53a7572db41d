package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/polisai/huntgen/pkg/domain"
	"github.com/polisai/huntgen/pkg/engine/runtime"
	"github.com/polisai/huntgen/pkg/qa"
	"github.com/polisai/huntgen/pkg/storage"
	"github.com/polisai/huntgen/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Skip reasons reported in StageResult.Reason.
const (
	ReasonNotConfigured = "not configured"
	ReasonNoVictims     = "no victims from previous stages"
	ReasonCanceled      = "run canceled"
)

// StageSink persists a completed stage's tables before they are unified.
type StageSink interface {
	WriteStage(stage domain.StageName, tables domain.Tables) error
}

// StageSinkFunc adapts a function to StageSink.
type StageSinkFunc func(stage domain.StageName, tables domain.Tables) error

// WriteStage calls f.
func (f StageSinkFunc) WriteStage(stage domain.StageName, tables domain.Tables) error {
	return f(stage, tables)
}

// DispatcherConfig holds dependencies for creating a Dispatcher. Store and QA
// belong to a single scenario.
type DispatcherConfig struct {
	Registry *Registry
	Store    *storage.UnifiedTableStore
	QA       *qa.Aggregator
	Sink     StageSink
	Logger   *slog.Logger
	Scenario string
	// Seed is forwarded to generators, offset per stage. Zero leaves
	// generators unseeded.
	Seed uint64
}

// Dispatcher drives the attack chain through the fixed stage order for one
// scenario. Failures are isolated to their stage.
type Dispatcher struct {
	registry *Registry
	store    *storage.UnifiedTableStore
	qa       *qa.Aggregator
	sink     StageSink
	logger   *slog.Logger
	scenario string
	seed     uint64
}

// RunInput is the fixed input shared by every stage of one run.
type RunInput struct {
	Benign   domain.Tables
	Attacker domain.Attacker
	Attacks  map[domain.StageName]domain.StageConfig
	Initial  domain.StageContext
}

// NewDispatcher creates a dispatcher with the given configuration.
func NewDispatcher(cfg DispatcherConfig) *Dispatcher {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	store := cfg.Store
	if store == nil {
		store = storage.NewUnifiedTableStore(logger)
	}
	registry := cfg.Registry
	if registry == nil {
		registry = NewRegistry()
	}
	agg := cfg.QA
	if agg == nil {
		agg = qa.NewAggregator(logger)
	}
	return &Dispatcher{
		registry: registry,
		store:    store,
		qa:       agg,
		sink:     cfg.Sink,
		logger:   logger.With("scenario", cfg.Scenario),
		scenario: cfg.Scenario,
		seed:     cfg.Seed,
	}
}

// Run executes every stage once, in order, and returns one result per stage
// together with the final context. It never aborts early because of a stage
// failure; a canceled ctx marks the remaining stages skipped.
func (d *Dispatcher) Run(ctx context.Context, in RunInput) ([]runtime.StageResult, domain.StageContext) {
	tracer := telemetry.Tracer()
	ctx, span := tracer.Start(ctx, "attack_chain.run", trace.WithAttributes(
		attribute.String("scenario.name", d.scenario),
		attribute.Int("attack_chain.configured_stages", len(in.Attacks)),
	))
	defer span.End()

	current := in.Initial
	results := make([]runtime.StageResult, 0, len(domain.StageOrder))
	failed := 0

	for _, stage := range domain.StageOrder {
		var result runtime.StageResult
		if err := ctx.Err(); err != nil {
			result = runtime.Skipped(stage, current, ReasonCanceled)
		} else {
			result = d.runStage(ctx, stage, in, current)
		}
		if result.Outcome == runtime.OutcomeFailed {
			failed++
		}
		results = append(results, result)
		current = result.After
	}

	span.SetAttributes(attribute.Int("attack_chain.failed_stages", failed))
	if failed > 0 {
		span.SetStatus(codes.Error, fmt.Sprintf("%d stage(s) failed", failed))
	}
	d.logger.Info("attack chain complete",
		"stages", len(results),
		"failed", failed,
		"victims", len(current.Victims),
		"clock", current.Clock,
	)
	return results, current
}

func (d *Dispatcher) runStage(ctx context.Context, stage domain.StageName, in RunInput, current domain.StageContext) runtime.StageResult {
	cfg, configured := in.Attacks[stage]
	if !configured {
		d.logger.Debug("stage not configured", "stage", stage)
		return runtime.Skipped(stage, current, ReasonNotConfigured)
	}

	ctx, span := telemetry.Tracer().Start(ctx, "attack_chain.stage",
		trace.WithAttributes(attribute.String("stage.name", string(stage))),
	)
	defer span.End()

	if !stage.SeedsCohort() && !current.HasVictims() {
		d.logger.Info("no victims available; skipping stage", "stage", stage)
		result := runtime.Skipped(stage, current, ReasonNoVictims)
		telemetry.RecordSkip(span, result.Reason)
		d.record(ctx, span, result, 0)
		return result
	}

	gen, variant, err := d.registry.Resolve(stage, cfg.Type)
	if err != nil {
		d.logger.Error("stage variant resolution failed", "stage", stage, "type", cfg.Type, "error", err)
		result := runtime.Failed(stage, domain.VariantName(cfg.Type), current, err)
		d.record(ctx, span, result, 0)
		return result
	}
	span.SetAttributes(attribute.String("stage.variant", string(variant)))

	input := runtime.StageInput{
		Stage:    stage,
		Variant:  variant,
		Benign:   in.Benign,
		Attacker: in.Attacker,
		Context:  current,
		Config:   cfg,
	}
	if d.seed != 0 {
		input.Seed = d.seed + uint64(stage.Index()+1)
	}

	start := time.Now()
	out, err := d.invoke(ctx, gen, input)
	duration := time.Since(start)
	if err == nil && d.sink != nil && len(out.Tables) > 0 {
		if sinkErr := d.sink.WriteStage(stage, out.Tables); sinkErr != nil {
			err = fmt.Errorf("write stage tables: %w", sinkErr)
		}
	}
	if err != nil {
		var stageErr *domain.StageExecutionError
		if !errors.As(err, &stageErr) {
			err = &domain.StageExecutionError{Stage: stage, Variant: variant, Err: err}
		}
		d.logger.Error("stage execution failed", "stage", stage, "variant", variant, "error", err)
		result := runtime.Failed(stage, variant, current, err)
		result.Duration = duration
		d.record(ctx, span, result, 0)
		return result
	}

	for _, name := range out.Tables.Names() {
		drift := d.store.Ingest(name, out.Tables[name])
		if !drift.Empty() {
			telemetry.RecordDrift(span, name, len(drift.Missing), len(drift.Dropped))
		}
	}
	d.qa.Add(string(stage), out.QA)

	next := domain.StageContext{Victims: out.Victims, Clock: d.advanceClock(stage, current.Clock, out.Clock)}
	result := runtime.Completed(stage, variant, current, next, out)
	result.Duration = duration

	d.logger.Info("stage completed",
		"stage", stage,
		"variant", variant,
		"tables", len(out.Tables),
		"rows", result.Rows(),
		"qa", len(out.QA),
		"victims", len(next.Victims),
		"duration_ms", duration.Milliseconds(),
	)
	d.record(ctx, span, result, len(out.QA))
	return result
}

// invoke runs the generator, turning a panic into a StageExecutionError.
func (d *Dispatcher) invoke(ctx context.Context, gen runtime.Generator, in runtime.StageInput) (out runtime.StageOutput, err error) {
	defer func() {
		if r := recover(); r != nil {
			out = runtime.StageOutput{}
			err = &domain.StageExecutionError{
				Stage:   in.Stage,
				Variant: in.Variant,
				Err:     fmt.Errorf("%v", r),
				Panic:   true,
			}
		}
	}()
	return gen.Generate(ctx, in)
}

// advanceClock keeps the clock a non-decreasing watermark.
func (d *Dispatcher) advanceClock(stage domain.StageName, prev, next time.Time) time.Time {
	if next.IsZero() {
		return prev
	}
	if next.Before(prev) {
		d.logger.Warn("stage clock regressed; clamping",
			"stage", stage,
			"incoming_clock", prev,
			"returned_clock", next,
		)
		return prev
	}
	return next
}

func (d *Dispatcher) record(ctx context.Context, span trace.Span, result runtime.StageResult, qaCount int) {
	if span.IsRecording() {
		span.SetAttributes(
			attribute.String("stage.outcome", string(result.Outcome)),
			attribute.Int64("stage.duration_ms", result.Duration.Milliseconds()),
			attribute.Int("stage.rows", result.Rows()),
		)
		if result.Err != nil {
			span.RecordError(result.Err)
			span.SetStatus(codes.Error, result.Err.Error())
		}
	}
	telemetry.RecordStageMetrics(ctx, telemetry.StageMetrics{
		Scenario: d.scenario,
		Stage:    string(result.Stage),
		Variant:  string(result.Variant),
		Outcome:  result.Outcome,
		Duration: result.Duration,
		Rows:     result.Rows(),
		QA:       qaCount,
	})
}
