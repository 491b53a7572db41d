// Package qa collects question/answer records emitted by stages, types their
// answers and removes duplicates.
package qa

import (
	"log/slog"

	"github.com/polisai/huntgen/pkg/domain"
)

type dedupKey struct {
	question   string
	answerType domain.AnswerType
	serialized string
}

// Aggregator accumulates QA records for one scenario. First occurrence of a
// (question, answer type, serialized answer) key wins.
type Aggregator struct {
	records []domain.QARecord
	seen    map[dedupKey]struct{}
	answers map[string]string
	dropped int
	logger  *slog.Logger
}

// NewAggregator creates an empty aggregator. A nil logger uses slog.Default.
func NewAggregator(logger *slog.Logger) *Aggregator {
	if logger == nil {
		logger = slog.Default()
	}
	a := &Aggregator{logger: logger}
	a.Reset()
	return a
}

// Add normalises and records the QA emitted by stage.
func (a *Aggregator) Add(stage string, records []domain.QARecord) {
	for _, rec := range records {
		answerType, value := Normalize(rec.Answer)
		serialized := Serialize(value)
		key := dedupKey{question: rec.Question, answerType: answerType, serialized: serialized}
		if _, dup := a.seen[key]; dup {
			a.dropped++
			continue
		}
		if prev, ok := a.answers[rec.Question]; ok && prev != serialized {
			a.logger.Warn("question answered differently by another stage",
				"stage", stage,
				"question", rec.Question,
				"previous_answer", prev,
				"answer", serialized,
			)
		} else if !ok {
			a.answers[rec.Question] = serialized
		}
		a.seen[key] = struct{}{}
		if rec.Stage == "" {
			rec.Stage = stage
		}
		rec.AnswerType = answerType
		rec.Answer = value
		a.records = append(a.records, rec)
	}
}

// Len returns the number of unique records collected so far.
func (a *Aggregator) Len() int {
	return len(a.records)
}

// Duplicates returns how many records were dropped as duplicates.
func (a *Aggregator) Duplicates() int {
	return a.dropped
}

// Finalize returns the deduplicated records in arrival order and resets the
// aggregator. It never returns nil.
func (a *Aggregator) Finalize() []domain.QARecord {
	out := a.records
	if out == nil {
		out = []domain.QARecord{}
	}
	a.Reset()
	return out
}

// Reset discards everything collected.
func (a *Aggregator) Reset() {
	a.records = nil
	a.seen = make(map[dedupKey]struct{})
	a.answers = make(map[string]string)
	a.dropped = 0
}
