package qa

import (
	"encoding/json"
	"io"
	"math"
	"log/slog"
	"testing"
	"time"

	"github.com/polisai/huntgen/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func newTestAggregator() *Aggregator {
	return NewAggregator(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestAggregator_DuplicateAcrossStagesCollapses(t *testing.T) {
	agg := newTestAggregator()

	agg.Add("reconnaissance", []domain.QARecord{domain.QA("How many victims?", "3")})
	agg.Add("initial_access", []domain.QARecord{domain.QA("How many victims?", "3")})

	out := agg.Finalize()
	require.Len(t, out, 1)
	assert.Equal(t, domain.AnswerInt, out[0].AnswerType)
	assert.Equal(t, int64(3), out[0].Answer)
	assert.Equal(t, "reconnaissance", out[0].Stage)
}

func TestAggregator_FinalizeWithoutInput(t *testing.T) {
	out := newTestAggregator().Finalize()
	assert.NotNil(t, out)
	assert.Empty(t, out)
}

func TestAggregator_DifferentAnswersKept(t *testing.T) {
	agg := newTestAggregator()

	agg.Add("impact", []domain.QARecord{
		domain.QA("Which host was encrypted?", "ws-01"),
		domain.QA("Which host was encrypted?", "ws-02"),
		domain.QA("Which host was encrypted?", "ws-01"),
	})

	out := agg.Finalize()
	require.Len(t, out, 2)
	assert.Equal(t, "ws-01", out[0].Answer)
	assert.Equal(t, "ws-02", out[1].Answer)
}

func TestAggregator_StructuredAnswersDedupByStableSerialization(t *testing.T) {
	agg := newTestAggregator()

	agg.Add("collection", []domain.QARecord{
		domain.QA("Which mailboxes?", map[string]any{"b": 2, "a": 1}),
		domain.QA("Which mailboxes?", map[string]any{"a": 1, "b": 2}),
		domain.QA("Which hosts?", []string{"h1", "h2"}),
	})
	assert.Equal(t, 1, agg.Duplicates())

	out := agg.Finalize()
	require.Len(t, out, 2)
	assert.Equal(t, domain.AnswerStructured, out[0].AnswerType)
	assert.Equal(t, map[string]any{"b": 2, "a": 1}, out[0].Answer)
	assert.Equal(t, []string{"h1", "h2"}, out[1].Answer)
}

func TestAggregator_TypeIsPartOfKey(t *testing.T) {
	agg := newTestAggregator()

	agg.Add("x", []domain.QARecord{
		domain.QA("q", "1.0"),
		domain.QA("q", "1"),
		domain.QA("q", 1),
	})

	out := agg.Finalize()
	require.Len(t, out, 2)
	assert.Equal(t, domain.AnswerFloat, out[0].AnswerType)
	assert.Equal(t, domain.AnswerInt, out[1].AnswerType)
}

func TestNormalize(t *testing.T) {
	ts := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		name     string
		in       any
		wantType domain.AnswerType
		want     any
	}{
		{"int string", "42", domain.AnswerInt, int64(42)},
		{"negative int string", "-7", domain.AnswerInt, int64(-7)},
		{"float string", "3.25", domain.AnswerFloat, 3.25},
		{"plain string", "10.0.0.1", domain.AnswerString, "10.0.0.1"},
		{"native int", 5, domain.AnswerInt, int64(5)},
		{"native float", 2.5, domain.AnswerFloat, 2.5},
		{"time", ts, domain.AnswerString, "2025-03-01T12:00:00Z"},
		{"duration", 90 * time.Second, domain.AnswerString, "1m30s"},
		{"list", []any{"a"}, domain.AnswerStructured, []any{"a"}},
		{"nil", nil, domain.AnswerString, nil},
		{"inf string", "inf", domain.AnswerString, "inf"},
		{"signed infinity string", "-Infinity", domain.AnswerString, "-Infinity"},
		{"nan string", "NaN", domain.AnswerString, "NaN"},
		{"native inf", math.Inf(1), domain.AnswerString, "+Inf"},
		{"native nan", math.NaN(), domain.AnswerString, "NaN"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotType, got := Normalize(tt.in)
			assert.Equal(t, tt.wantType, gotType)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestAggregator_NonFiniteAnswersEncodeAsJSON(t *testing.T) {
	agg := newTestAggregator()
	agg.Add("impact", []domain.QARecord{
		domain.QA("Ransom amount?", "inf"),
		domain.QA("Score?", "NaN"),
		domain.QA("Exposure?", math.Inf(-1)),
	})

	out := agg.Finalize()
	require.Len(t, out, 3)
	for _, rec := range out {
		assert.Equal(t, domain.AnswerString, rec.AnswerType, rec.Question)
	}
	_, err := json.Marshal(out)
	require.NoError(t, err)
}

func TestFormatAnswer(t *testing.T) {
	assert.Equal(t, "3", FormatAnswer(int64(3)))
	assert.Equal(t, "0.5", FormatAnswer(0.5))
	assert.Equal(t, `["a","b"]`, FormatAnswer([]string{"a", "b"}))
	assert.Equal(t, `{"a":1}`, FormatAnswer(map[string]int{"a": 1}))
	assert.Equal(t, "", FormatAnswer(nil))
}

func qaRecordGen() *rapid.Generator[domain.QARecord] {
	return rapid.Custom(func(t *rapid.T) domain.QARecord {
		q := rapid.SampledFrom([]string{"How many victims?", "Attacker IP?", "First seen?"}).Draw(t, "question")
		var a any
		switch rapid.IntRange(0, 3).Draw(t, "kind") {
		case 0:
			a = rapid.SampledFrom([]string{"3", "4", "1.5", "10.0.0.1"}).Draw(t, "string")
		case 1:
			a = rapid.IntRange(0, 5).Draw(t, "int")
		case 2:
			a = rapid.SampledFrom([]float64{0.5, 1.5}).Draw(t, "float")
		default:
			a = []string{rapid.SampledFrom([]string{"h1", "h2"}).Draw(t, "item")}
		}
		return domain.QA(q, a)
	})
}

// Property: adding the same batch twice yields the same result as adding it once.
func TestAggregatorDedupIdempotence(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		records := rapid.SliceOfN(qaRecordGen(), 0, 12).Draw(t, "records")
		stage := rapid.SampledFrom([]string{"reconnaissance", "impact"}).Draw(t, "stage")

		once := newTestAggregator()
		once.Add(stage, records)
		twice := newTestAggregator()
		twice.Add(stage, records)
		twice.Add(stage, records)

		a, b := once.Finalize(), twice.Finalize()
		if len(a) != len(b) {
			t.Fatalf("once=%d twice=%d records", len(a), len(b))
		}
		for i := range a {
			if a[i].Question != b[i].Question || a[i].AnswerType != b[i].AnswerType ||
				Serialize(a[i].Answer) != Serialize(b[i].Answer) {
				t.Fatalf("record %d differs: %+v vs %+v", i, a[i], b[i])
			}
		}
	})
}
