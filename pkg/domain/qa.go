package domain

// AnswerType classifies a QA answer after normalisation.
type AnswerType string

const (
	AnswerString AnswerType = "string"
	AnswerInt    AnswerType = "int"
	AnswerFloat  AnswerType = "float"
	// AnswerStructured marks list and map answers.
	AnswerStructured AnswerType = "structured"
)

// QARecord is one question/answer pair emitted by a stage.
type QARecord struct {
	Question   string     `json:"Question"`
	AnswerType AnswerType `json:"AnswerType,omitempty"`
	Answer     any        `json:"Answer"`
	Stage      string     `json:"Stage,omitempty"`
}

// QA builds a record with an untyped answer; the aggregator types it.
func QA(question string, answer any) QARecord {
	return QARecord{Question: question, Answer: answer}
}
