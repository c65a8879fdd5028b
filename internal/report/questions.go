package report

import (
	"fmt"
	"sort"
	"strings"

	"github.com/pavelanni/quizen/internal/model"
)

// Sort keys accepted by QuestionQuery.SortBy.
const (
	SortPart       = "part"
	SortDifficulty = "difficulty"
	SortValidity   = "validity"
)

// QuestionQuery selects and orders questions. Zero values match everything
// and keep generation order.
type QuestionQuery struct {
	PartName  string
	Type      model.QuestionType
	MinScore  *float64
	StyleOnly bool
	Search    string
	SortBy    string
	Desc      bool
}

// Validate rejects unknown sort keys and question types.
func (q QuestionQuery) Validate() error {
	switch q.SortBy {
	case "", SortPart, SortDifficulty, SortValidity:
	default:
		return fmt.Errorf("unknown sort key %q (want %s, %s or %s)", q.SortBy, SortPart, SortDifficulty, SortValidity)
	}
	if q.Type != 0 && !q.Type.Valid() {
		return fmt.Errorf("unknown question type %d", int(q.Type))
	}
	return nil
}

// QuestionMatch is a question with its position in the run's bank.
type QuestionMatch struct {
	Index int `json:"index"`
	model.Question
}

// FindQuestions filters questions by q and sorts the matches. Unscored
// questions never pass a MinScore filter and sort below every score.
func FindQuestions(questions []model.Question, q QuestionQuery) []QuestionMatch {
	search := strings.ToLower(strings.TrimSpace(q.Search))
	matches := make([]QuestionMatch, 0, len(questions))
	for i, question := range questions {
		if q.PartName != "" && question.PartName != q.PartName {
			continue
		}
		if q.Type != 0 && question.Type != q.Type {
			continue
		}
		if q.MinScore != nil && (question.ValidityScore == nil || float64(*question.ValidityScore) < *q.MinScore) {
			continue
		}
		if q.StyleOnly && len(question.StyleViolationFlags) == 0 {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(question.Text+" "+question.Explanation), search) {
			continue
		}
		matches = append(matches, QuestionMatch{Index: i, Question: question})
	}

	var less func(a, b model.Question) bool
	switch q.SortBy {
	case SortPart:
		less = func(a, b model.Question) bool { return a.PartName < b.PartName }
	case SortDifficulty:
		less = func(a, b model.Question) bool { return a.Difficulty < b.Difficulty }
	case SortValidity:
		less = func(a, b model.Question) bool { return scoreKey(a) < scoreKey(b) }
	default:
		return matches
	}
	sort.SliceStable(matches, func(i, j int) bool {
		if q.Desc {
			return less(matches[j].Question, matches[i].Question)
		}
		return less(matches[i].Question, matches[j].Question)
	})
	return matches
}

func scoreKey(q model.Question) int {
	if q.ValidityScore == nil {
		return -1
	}
	return *q.ValidityScore
}
