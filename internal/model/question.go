package model

import (
	"fmt"
	"strings"
)

// QuestionType is the spreadsheet question type code.
type QuestionType int

const (
	// SingleChoice is a four-option multiple choice question.
	SingleChoice QuestionType = 1
	// TrueFalse is an O/X question with no options.
	TrueFalse QuestionType = 3
)

// True/false answer codes.
const (
	AnswerTrue  = 1
	AnswerFalse = 2
)

// Difficulty bounds.
const (
	MinDifficulty     = 1
	MaxDifficulty     = 5
	DefaultDifficulty = 3
)

// SingleChoiceOptions is the fixed option count of a single choice question.
const SingleChoiceOptions = 4

func (t QuestionType) String() string {
	switch t {
	case SingleChoice:
		return "single_choice"
	case TrueFalse:
		return "true_false"
	default:
		return fmt.Sprintf("unknown(%d)", int(t))
	}
}

// Valid reports whether t is an exportable type code.
func (t QuestionType) Valid() bool {
	return t == SingleChoice || t == TrueFalse
}

// ParseQuestionType accepts the numeric code or the type name.
func ParseQuestionType(value string) (QuestionType, bool) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "single_choice", "mcq", "multiple_choice":
		return SingleChoice, true
	case "3", "true_false", "ox", "tf":
		return TrueFalse, true
	default:
		return 0, false
	}
}

// Question is a generated quiz item.
type Question struct {
	Difficulty          int          `json:"difficulty"`
	Type                QuestionType `json:"type"`
	Text                string       `json:"text"`
	Explanation         string       `json:"explanation"`
	Answer              int          `json:"answer"`
	Options             []string     `json:"options"`
	PartName            string       `json:"part_name"`
	ValidityScore       *int         `json:"validity_score,omitempty"`
	StyleViolationFlags []string     `json:"style_violation_flags,omitempty"`
}

// Check returns every schema violation of q; an empty result means q is valid.
func (q Question) Check() []string {
	var problems []string
	if q.Difficulty < MinDifficulty || q.Difficulty > MaxDifficulty {
		problems = append(problems, fmt.Sprintf("difficulty %d outside %d..%d", q.Difficulty, MinDifficulty, MaxDifficulty))
	}
	if strings.TrimSpace(q.Text) == "" {
		problems = append(problems, "question text is empty")
	}
	switch q.Type {
	case SingleChoice:
		if len(q.Options) != SingleChoiceOptions {
			problems = append(problems, fmt.Sprintf("single choice needs %d options, got %d", SingleChoiceOptions, len(q.Options)))
		} else {
			for i, opt := range q.Options {
				if strings.TrimSpace(opt) == "" {
					problems = append(problems, fmt.Sprintf("option %d is empty", i+1))
				}
			}
		}
		if q.Answer < 1 || q.Answer > SingleChoiceOptions {
			problems = append(problems, fmt.Sprintf("single choice answer %d outside 1..4", q.Answer))
		}
	case TrueFalse:
		if len(q.Options) != 0 {
			problems = append(problems, fmt.Sprintf("true/false must have no options, got %d", len(q.Options)))
		}
		if q.Answer != AnswerTrue && q.Answer != AnswerFalse {
			problems = append(problems, fmt.Sprintf("true/false answer %d not 1 or 2", q.Answer))
		}
	default:
		problems = append(problems, fmt.Sprintf("type code %d not 1 or 3", int(q.Type)))
	}
	return problems
}

// Clone returns a deep copy of q.
func (q Question) Clone() Question {
	c := q
	if q.Options != nil {
		c.Options = append([]string(nil), q.Options...)
	}
	if q.StyleViolationFlags != nil {
		c.StyleViolationFlags = append([]string(nil), q.StyleViolationFlags...)
	}
	if q.ValidityScore != nil {
		v := *q.ValidityScore
		c.ValidityScore = &v
	}
	return c
}
