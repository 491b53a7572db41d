package qa

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/polisai/huntgen/pkg/domain"
)

// Normalize types an answer. Numeric-looking strings are promoted to int64,
// then float64, first successful parse wins. Lists and maps are structured
// and keep their original value. NaN and infinities are not valid JSON
// numbers, so they stay strings.
func Normalize(answer any) (domain.AnswerType, any) {
	switch v := answer.(type) {
	case nil:
		return domain.AnswerString, nil
	case string:
		s := strings.TrimSpace(v)
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			return domain.AnswerInt, i
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil && finite(f) {
			return domain.AnswerFloat, f
		}
		return domain.AnswerString, v
	case int:
		return domain.AnswerInt, int64(v)
	case int8:
		return domain.AnswerInt, int64(v)
	case int16:
		return domain.AnswerInt, int64(v)
	case int32:
		return domain.AnswerInt, int64(v)
	case int64:
		return domain.AnswerInt, v
	case uint:
		return domain.AnswerInt, int64(v)
	case uint32:
		return domain.AnswerInt, int64(v)
	case uint64:
		return domain.AnswerInt, int64(v)
	case float32:
		return Normalize(float64(v))
	case float64:
		if !finite(v) {
			return domain.AnswerString, strconv.FormatFloat(v, 'g', -1, 64)
		}
		return domain.AnswerFloat, v
	case bool:
		return domain.AnswerString, v
	case time.Time:
		return domain.AnswerString, v.UTC().Format(time.RFC3339)
	case time.Duration:
		return domain.AnswerString, v.String()
	case fmt.Stringer:
		return domain.AnswerString, v.String()
	}

	switch reflect.ValueOf(answer).Kind() {
	case reflect.Slice, reflect.Array, reflect.Map, reflect.Struct:
		return domain.AnswerStructured, answer
	default:
		return domain.AnswerString, fmt.Sprint(answer)
	}
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// Serialize renders an answer deterministically. encoding/json sorts map
// keys, so structured answers produce a stable key.
func Serialize(answer any) string {
	b, err := json.Marshal(answer)
	if err != nil {
		return fmt.Sprintf("%#v", answer)
	}
	return string(b)
}

// FormatAnswer renders an answer for a tabular cell: structured values as
// JSON, everything else with its plain string form.
func FormatAnswer(answer any) string {
	switch v := answer.(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	}
	switch reflect.ValueOf(answer).Kind() {
	case reflect.Slice, reflect.Array, reflect.Map, reflect.Struct:
		return Serialize(answer)
	default:
		return fmt.Sprint(answer)
	}
}
