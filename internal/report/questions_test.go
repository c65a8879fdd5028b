package report

import (
	"slices"
	"testing"

	"github.com/pavelanni/quizen/internal/model"
)

func floatPtr(v float64) *float64 { return &v }

func bank() []model.Question {
	return []model.Question{
		{PartName: "PART.02 B", Type: model.SingleChoice, Difficulty: 4, Text: "Goroutine stacks?", Explanation: "They grow.", ValidityScore: intPtr(70)},
		{PartName: "PART.01 A", Type: model.TrueFalse, Difficulty: 2, Text: "Channels block?", Explanation: "Unbuffered sends wait for a receiver.", ValidityScore: intPtr(95)},
		{PartName: "PART.01 A", Type: model.SingleChoice, Difficulty: 3, Text: "Select picks?", Explanation: "A ready case.", StyleViolationFlags: []string{"ambiguous_wording"}},
		{PartName: "PART.02 B", Type: model.SingleChoice, Difficulty: 1, Text: "Mutex zero value?", Explanation: "Unlocked.", ValidityScore: intPtr(40), StyleViolationFlags: []string{"negative_phrasing"}},
	}
}

func indexes(matches []QuestionMatch) []int {
	out := make([]int, len(matches))
	for i, m := range matches {
		out[i] = m.Index
	}
	return out
}

func TestFindQuestions(t *testing.T) {
	tests := []struct {
		name  string
		query QuestionQuery
		want  []int
	}{
		{name: "no filter keeps order", want: []int{0, 1, 2, 3}},
		{name: "part", query: QuestionQuery{PartName: "PART.01 A"}, want: []int{1, 2}},
		{name: "type", query: QuestionQuery{Type: model.TrueFalse}, want: []int{1}},
		{name: "min score drops unscored", query: QuestionQuery{MinScore: floatPtr(70)}, want: []int{0, 1}},
		{name: "style only", query: QuestionQuery{StyleOnly: true}, want: []int{2, 3}},
		{name: "search matches explanation case-insensitively", query: QuestionQuery{Search: "RECEIVER"}, want: []int{1}},
		{name: "combined", query: QuestionQuery{PartName: "PART.02 B", StyleOnly: true}, want: []int{3}},
		{name: "sort by part is stable", query: QuestionQuery{SortBy: SortPart}, want: []int{1, 2, 0, 3}},
		{name: "sort by difficulty", query: QuestionQuery{SortBy: SortDifficulty}, want: []int{3, 1, 2, 0}},
		{name: "sort by validity desc", query: QuestionQuery{SortBy: SortValidity, Desc: true}, want: []int{1, 0, 3, 2}},
		{name: "unscored sorts lowest", query: QuestionQuery{SortBy: SortValidity}, want: []int{2, 3, 0, 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.query.Validate(); err != nil {
				t.Fatalf("Validate: %v", err)
			}
			got := indexes(FindQuestions(bank(), tt.query))
			if !slices.Equal(got, tt.want) {
				t.Errorf("FindQuestions() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestQuestionQueryValidate(t *testing.T) {
	if err := (QuestionQuery{SortBy: "score"}).Validate(); err == nil {
		t.Error("expected error for unknown sort key")
	}
	if err := (QuestionQuery{Type: 2}).Validate(); err == nil {
		t.Error("expected error for unknown question type")
	}
}
