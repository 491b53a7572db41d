package engine

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/polisai/huntgen/pkg/domain"
	"github.com/polisai/huntgen/pkg/engine/runtime"
	"github.com/polisai/huntgen/pkg/qa"
	"github.com/polisai/huntgen/pkg/storage"
	"github.com/polisai/huntgen/pkg/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"pgregory.net/rapid"
)

var t0 = time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type harness struct {
	registry *Registry
	store    *storage.UnifiedTableStore
	agg      *qa.Aggregator
	written  []domain.StageName
}

func newHarness() *harness {
	logger := quietLogger()
	return &harness{
		registry: NewRegistry(),
		store:    storage.NewUnifiedTableStore(logger),
		agg:      qa.NewAggregator(logger),
	}
}

func (h *harness) dispatcher() *Dispatcher {
	return NewDispatcher(DispatcherConfig{
		Registry: h.registry,
		Store:    h.store,
		QA:       h.agg,
		Logger:   quietLogger(),
		Scenario: "test",
		Sink: StageSinkFunc(func(stage domain.StageName, _ domain.Tables) error {
			h.written = append(h.written, stage)
			return nil
		}),
	})
}

// emitting returns a generator that adds one row to table, advances the clock
// by step and forwards or seeds the cohort.
func emitting(table string, step time.Duration, question string) runtime.Generator {
	return runtime.GeneratorFunc(func(_ context.Context, in runtime.StageInput) (runtime.StageOutput, error) {
		clock := in.Context.Clock.Add(step)
		victims := in.Context.Victims
		if in.Stage.SeedsCohort() {
			victims = domain.Cohort{{"AccountUpn": "alice@contoso.com"}}
		}
		t := domain.NewTable(table, domain.TimestampColumn, "Stage")
		t.Append(domain.Row{domain.TimestampColumn: clock, "Stage": string(in.Stage)})
		return runtime.StageOutput{
			Tables:  domain.Tables{table: t},
			Victims: victims,
			Clock:   clock,
			QA:      []domain.QARecord{domain.QA(question, string(in.Stage))},
		}, nil
	})
}

func TestDispatcherRunsStagesInFixedOrder(t *testing.T) {
	h := newHarness()
	for _, stage := range domain.StageOrder {
		h.registry.MustRegister(stage, "stub", emitting("events", time.Minute, "which stage?"))
	}

	attacks := map[domain.StageName]domain.StageConfig{}
	for _, stage := range domain.StageOrder {
		attacks[stage] = domain.StageConfig{}
	}

	results, final := h.dispatcher().Run(context.Background(), RunInput{
		Attacks: attacks,
		Initial: domain.StageContext{Clock: t0},
	})

	require.Len(t, results, len(domain.StageOrder))
	for i, r := range results {
		assert.Equal(t, domain.StageOrder[i], r.Stage)
		assert.Equal(t, runtime.OutcomeCompleted, r.Outcome, "stage %s", r.Stage)
	}
	assert.Equal(t, domain.StageOrder, h.written)
	assert.Equal(t, t0.Add(10*time.Minute), final.Clock)

	unified := h.store.Finalize()
	require.Contains(t, unified, "events")
	assert.Equal(t, 10, unified["events"].Len())
	assert.Equal(t, 10, len(h.agg.Finalize()))
}

func TestDispatcherSkipsWithoutVictims(t *testing.T) {
	h := newHarness()
	called := false
	h.registry.MustRegister(domain.StageInitialAccess, "phishing", runtime.GeneratorFunc(
		func(context.Context, runtime.StageInput) (runtime.StageOutput, error) {
			called = true
			return runtime.StageOutput{}, nil
		}))

	results, final := h.dispatcher().Run(context.Background(), RunInput{
		Attacks: map[domain.StageName]domain.StageConfig{domain.StageInitialAccess: {Type: "phishing"}},
		Initial: domain.StageContext{Clock: t0},
	})

	assert.False(t, called)
	assert.Equal(t, runtime.OutcomeSkipped, results[0].Outcome)
	assert.Equal(t, ReasonNotConfigured, results[0].Reason)
	assert.Equal(t, runtime.OutcomeSkipped, results[1].Outcome)
	assert.Equal(t, ReasonNoVictims, results[1].Reason)
	assert.Equal(t, t0, final.Clock)
	assert.Nil(t, final.Victims)
	assert.Empty(t, h.written)
}

func TestDispatcherEmptyCohortSkipsLaterStages(t *testing.T) {
	h := newHarness()
	h.registry.MustRegister(domain.StageReconnaissance, "empty", runtime.GeneratorFunc(
		func(_ context.Context, in runtime.StageInput) (runtime.StageOutput, error) {
			return runtime.StageOutput{Victims: domain.Cohort{}, Clock: in.Context.Clock.Add(time.Hour)}, nil
		}))
	h.registry.MustRegister(domain.StageExecution, "user_execution", emitting("x", time.Minute, "q"))

	results, final := h.dispatcher().Run(context.Background(), RunInput{
		Attacks: map[domain.StageName]domain.StageConfig{
			domain.StageReconnaissance: {},
			domain.StageExecution:      {},
		},
		Initial: domain.StageContext{Clock: t0},
	})

	assert.Equal(t, runtime.OutcomeCompleted, results[0].Outcome)
	assert.Equal(t, runtime.OutcomeSkipped, results[2].Outcome)
	assert.Equal(t, ReasonNoVictims, results[2].Reason)
	assert.NotNil(t, final.Victims)
	assert.Empty(t, final.Victims)
	assert.Equal(t, t0.Add(time.Hour), final.Clock)
}

func TestDispatcherIsolatesGeneratorError(t *testing.T) {
	h := newHarness()
	h.registry.MustRegister(domain.StageReconnaissance, "active_scan", emitting("scan", time.Minute, "recon"))
	h.registry.MustRegister(domain.StageInitialAccess, "phishing", runtime.GeneratorFunc(
		func(context.Context, runtime.StageInput) (runtime.StageOutput, error) {
			return runtime.StageOutput{}, errors.New("smtp table missing")
		}))
	h.registry.MustRegister(domain.StageExecution, "user_execution", emitting("proc", time.Minute, "exec"))

	results, final := h.dispatcher().Run(context.Background(), RunInput{
		Attacks: map[domain.StageName]domain.StageConfig{
			domain.StageReconnaissance: {},
			domain.StageInitialAccess:  {},
			domain.StageExecution:      {},
		},
		Initial: domain.StageContext{Clock: t0},
	})

	failed := results[1]
	assert.Equal(t, runtime.OutcomeFailed, failed.Outcome)
	assert.ErrorIs(t, failed.Err, domain.ErrStageExecution)
	assert.Equal(t, failed.Before, failed.After)

	assert.Equal(t, runtime.OutcomeCompleted, results[2].Outcome)
	assert.Equal(t, results[0].After.Clock, results[2].Before.Clock)
	assert.Equal(t, t0.Add(2*time.Minute), final.Clock)
	assert.Equal(t, []domain.StageName{domain.StageReconnaissance, domain.StageExecution}, h.written)
}

func TestDispatcherRecoversPanics(t *testing.T) {
	h := newHarness()
	h.registry.MustRegister(domain.StageReconnaissance, "active_scan", runtime.GeneratorFunc(
		func(context.Context, runtime.StageInput) (runtime.StageOutput, error) {
			var victims domain.Cohort
			_ = victims[3]
			return runtime.StageOutput{}, nil
		}))

	results, final := h.dispatcher().Run(context.Background(), RunInput{
		Attacks: map[domain.StageName]domain.StageConfig{domain.StageReconnaissance: {}},
		Initial: domain.StageContext{Clock: t0},
	})

	require.Equal(t, runtime.OutcomeFailed, results[0].Outcome)
	var stageErr *domain.StageExecutionError
	require.ErrorAs(t, results[0].Err, &stageErr)
	assert.True(t, stageErr.Panic)
	assert.Equal(t, domain.VariantName("active_scan"), stageErr.Variant)
	assert.Equal(t, t0, final.Clock)
}

func TestDispatcherUnknownVariantFailsStageOnly(t *testing.T) {
	h := newHarness()
	h.registry.MustRegister(domain.StageReconnaissance, "active_scan", emitting("scan", time.Minute, "recon"))
	h.registry.MustRegister(domain.StageInitialAccess, "phishing", emitting("email", time.Minute, "ia"))

	results, _ := h.dispatcher().Run(context.Background(), RunInput{
		Attacks: map[domain.StageName]domain.StageConfig{
			domain.StageReconnaissance: {Type: "no_such_scan"},
			domain.StageInitialAccess:  {},
		},
		Initial: domain.StageContext{Clock: t0},
	})

	assert.Equal(t, runtime.OutcomeFailed, results[0].Outcome)
	assert.ErrorIs(t, results[0].Err, domain.ErrConfigInvalid)
	// Recon failed, so there is no cohort for initial access.
	assert.Equal(t, runtime.OutcomeSkipped, results[1].Outcome)
}

func TestDispatcherClampsRegressingClock(t *testing.T) {
	h := newHarness()
	h.registry.MustRegister(domain.StageReconnaissance, "active_scan", emitting("scan", -time.Hour, "recon"))

	_, final := h.dispatcher().Run(context.Background(), RunInput{
		Attacks: map[domain.StageName]domain.StageConfig{domain.StageReconnaissance: {}},
		Initial: domain.StageContext{Clock: t0},
	})
	assert.Equal(t, t0, final.Clock)
	assert.Len(t, final.Victims, 1)
}

func TestDispatcherSinkFailureFailsStage(t *testing.T) {
	h := newHarness()
	h.registry.MustRegister(domain.StageReconnaissance, "active_scan", emitting("scan", time.Minute, "recon"))
	d := NewDispatcher(DispatcherConfig{
		Registry: h.registry,
		Store:    h.store,
		QA:       h.agg,
		Logger:   quietLogger(),
		Sink: StageSinkFunc(func(domain.StageName, domain.Tables) error {
			return errors.New("disk full")
		}),
	})

	results, final := d.Run(context.Background(), RunInput{
		Attacks: map[domain.StageName]domain.StageConfig{domain.StageReconnaissance: {}},
		Initial: domain.StageContext{Clock: t0},
	})
	assert.Equal(t, runtime.OutcomeFailed, results[0].Outcome)
	assert.Nil(t, final.Victims)
	assert.Empty(t, h.store.Names())
	assert.Empty(t, h.agg.Finalize())
}

func TestDispatcherCanceledContextSkipsRemaining(t *testing.T) {
	h := newHarness()
	h.registry.MustRegister(domain.StageReconnaissance, "active_scan", emitting("scan", time.Minute, "recon"))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results, _ := h.dispatcher().Run(ctx, RunInput{
		Attacks: map[domain.StageName]domain.StageConfig{domain.StageReconnaissance: {}},
		Initial: domain.StageContext{Clock: t0},
	})
	for _, r := range results {
		assert.Equal(t, runtime.OutcomeSkipped, r.Outcome)
		assert.Equal(t, ReasonCanceled, r.Reason)
	}
}

// A skipped or failed stage must hand the next stage exactly what it received.
func TestDispatcherForwardsContextOnSkipOrFailure(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		h := newHarness()
		attacks := map[domain.StageName]domain.StageConfig{}
		for _, stage := range domain.StageOrder {
			switch rapid.IntRange(0, 2).Draw(rt, string(stage)) {
			case 0:
				// not configured
			case 1:
				h.registry.MustRegister(stage, "ok", emitting("events", time.Minute, "q"))
				attacks[stage] = domain.StageConfig{}
			case 2:
				h.registry.MustRegister(stage, "boom", runtime.GeneratorFunc(
					func(context.Context, runtime.StageInput) (runtime.StageOutput, error) {
						return runtime.StageOutput{}, errors.New("boom")
					}))
				attacks[stage] = domain.StageConfig{}
			}
		}

		results, final := h.dispatcher().Run(context.Background(), RunInput{
			Attacks: attacks,
			Initial: domain.StageContext{Clock: t0},
		})

		prev := domain.StageContext{Clock: t0}
		for _, r := range results {
			if !r.Before.Clock.Equal(prev.Clock) || len(r.Before.Victims) != len(prev.Victims) {
				rt.Fatalf("stage %s received a context it was not forwarded", r.Stage)
			}
			if r.Outcome != runtime.OutcomeCompleted {
				if !r.After.Clock.Equal(r.Before.Clock) || len(r.After.Victims) != len(r.Before.Victims) {
					rt.Fatalf("stage %s (%s) changed the context", r.Stage, r.Outcome)
				}
			}
			if r.After.Clock.Before(r.Before.Clock) {
				rt.Fatalf("clock regressed at %s", r.Stage)
			}
			prev = r.After
		}
		if !final.Clock.Equal(prev.Clock) {
			rt.Fatalf("final context differs from last stage output")
		}
	})
}

func TestDispatcherEmitsTelemetry(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	prevTracer := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	prevMeter := otel.GetMeterProvider()
	otel.SetMeterProvider(mp)
	t.Cleanup(func() {
		otel.SetTracerProvider(prevTracer)
		otel.SetMeterProvider(prevMeter)
		_ = tp.Shutdown(context.Background())
		_ = mp.Shutdown(context.Background())
	})
	telemetry.ResetMetricsForTest()

	h := newHarness()
	h.registry.MustRegister(domain.StageReconnaissance, "active_scan", emitting("scan", time.Minute, "recon"))
	h.dispatcher().Run(context.Background(), RunInput{
		Attacks: map[domain.StageName]domain.StageConfig{
			domain.StageReconnaissance: {},
			domain.StageInitialAccess:  {Type: "phishing"},
		},
		Initial: domain.StageContext{Clock: t0},
	})

	var stageSpans []sdktrace.ReadOnlySpan
	var runSpan sdktrace.ReadOnlySpan
	for _, span := range recorder.Ended() {
		switch span.Name() {
		case "attack_chain.stage":
			stageSpans = append(stageSpans, span)
		case "attack_chain.run":
			runSpan = span
		}
	}
	require.NotNil(t, runSpan)
	require.Len(t, stageSpans, 2)

	attrs := attribute.NewSet(stageSpans[0].Attributes()...)
	outcome, ok := attrs.Value("stage.outcome")
	require.True(t, ok)
	assert.Equal(t, string(runtime.OutcomeCompleted), outcome.AsString())
	variant, ok := attrs.Value("stage.variant")
	require.True(t, ok)
	assert.Equal(t, "active_scan", variant.AsString())

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	found := false
	for _, scope := range rm.ScopeMetrics {
		for _, m := range scope.Metrics {
			if m.Name != "huntgen.stage.executions_total" {
				continue
			}
			found = true
			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok)
			assert.Len(t, sum.DataPoints, 2)
		}
	}
	assert.True(t, found, "missing huntgen.stage.executions_total")
}
