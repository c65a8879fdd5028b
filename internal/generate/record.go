package generate

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/pavelanni/quizen/internal/model"
)

// typeCode accepts a numeric type code or a type name.
type typeCode int

func (t *typeCode) UnmarshalJSON(data []byte) error {
	raw := strings.Trim(string(bytes.TrimSpace(data)), `"`)
	if raw == "" || raw == "null" {
		*t = 0
		return nil
	}
	qt, ok := model.ParseQuestionType(raw)
	if !ok {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return fmt.Errorf("unknown question type %q", raw)
		}
		*t = typeCode(n)
		return nil
	}
	*t = typeCode(qt)
	return nil
}

// answerCode accepts 1..4, or O/X and true/false for true/false questions.
type answerCode int

func (a *answerCode) UnmarshalJSON(data []byte) error {
	raw := strings.ToLower(strings.Trim(string(bytes.TrimSpace(data)), `"`))
	switch raw {
	case "", "null":
		*a = 0
	case "o", "true", "t":
		*a = model.AnswerTrue
	case "x", "false", "f":
		*a = model.AnswerFalse
	default:
		n, err := strconv.Atoi(raw)
		if err != nil {
			return fmt.Errorf("unknown answer %q", raw)
		}
		*a = answerCode(n)
	}
	return nil
}

// record is one question as returned by the LLM.
type record struct {
	Difficulty  int        `json:"difficulty"`
	Type        typeCode   `json:"type"`
	Question    string     `json:"question"`
	Text        string     `json:"text"`
	Explanation string     `json:"explanation"`
	Answer      answerCode `json:"answer"`
	Options     []string   `json:"options"`
}

// generateResponse keeps records raw so one malformed record does not discard
// the others.
type generateResponse struct {
	Questions []json.RawMessage `json:"questions"`
}

// MapRecord converts a raw record into a question for partName. The second
// return value lists every reason the record was rejected.
func MapRecord(raw json.RawMessage, partName string, opts model.RunOptions) (model.Question, []string) {
	var rec record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return model.Question{}, []string{"malformed record: " + err.Error()}
	}

	text := strings.TrimSpace(rec.Question)
	if text == "" {
		text = strings.TrimSpace(rec.Text)
	}
	difficulty := rec.Difficulty
	if difficulty == 0 {
		difficulty = opts.Difficulty
	}
	q := model.Question{
		Difficulty:  difficulty,
		Type:        model.QuestionType(rec.Type),
		Text:        text,
		Explanation: strings.TrimSpace(rec.Explanation),
		Answer:      int(rec.Answer),
		PartName:    partName,
	}
	if q.Type == model.SingleChoice || len(rec.Options) > 0 {
		q.Options = make([]string, 0, len(rec.Options))
		for _, o := range rec.Options {
			q.Options = append(q.Options, strings.TrimSpace(o))
		}
	}
	// true/false records often carry empty placeholder options
	if q.Type == model.TrueFalse && allBlank(q.Options) {
		q.Options = nil
	}

	problems := q.Check()
	if q.Type.Valid() && !opts.Allows(q.Type) {
		problems = append(problems, fmt.Sprintf("type %s not enabled for this run", q.Type))
	}
	return q, problems
}

func allBlank(values []string) bool {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

func normalizeText(text string) string {
	return strings.Join(strings.Fields(text), " ")
}
