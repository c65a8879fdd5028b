package score

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/pavelanni/quizen/internal/llm"
	"github.com/pavelanni/quizen/internal/llm/llmtest"
	"github.com/pavelanni/quizen/internal/llm/prompts"
	"github.com/pavelanni/quizen/internal/model"
)

func intPtr(v int) *int { return &v }

func questions() []model.Question {
	return []model.Question{
		{Difficulty: 3, Type: model.SingleChoice, Text: "Which keyword starts a goroutine?", Explanation: "go starts one.", Answer: 1, Options: []string{"go", "run", "spawn", "async"}, PartName: "PART.01 Basics"},
		{Difficulty: 3, Type: model.TrueFalse, Text: "Channels can be closed.", Explanation: "", Answer: 1, PartName: "PART.01 Basics"},
		{Difficulty: 3, Type: model.TrueFalse, Text: "Maps are ordered.", Explanation: "They are not.", Answer: 2, PartName: "PART.02 Data"},
	}
}

func TestScore(t *testing.T) {
	set, err := prompts.Builtin()
	if err != nil {
		t.Fatal(err)
	}
	fake := llmtest.New()
	fake.Handler = func(spec llm.PromptSpec) (string, error) {
		switch {
		case strings.Contains(spec.User, "goroutine"):
			return `{"score": 91.6, "issues": ["Weak Distractors"]}`, nil
		case strings.Contains(spec.User, "Channels"):
			return `{"score": 55, "issues": []}`, nil
		default:
			return "", errors.New("timeout")
		}
	}
	opts := model.DefaultRunOptions()
	opts.RubricVariant = "strict"

	in := questions()
	in[2].ValidityScore = intPtr(99)
	res, err := New(fake, set, nil).Score(context.Background(), in, nil, opts)
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	if res.Scored != 2 || res.Unscored != 1 || len(res.Warnings) != 1 {
		t.Errorf("scored = %d, unscored = %d, warnings = %v", res.Scored, res.Unscored, res.Warnings)
	}
	first := res.Questions[0]
	if first.ValidityScore == nil || *first.ValidityScore != 92 {
		t.Errorf("first score = %v, want 92", first.ValidityScore)
	}
	if strings.Join(first.StyleViolationFlags, ",") != "weak_distractors" {
		t.Errorf("first flags = %v", first.StyleViolationFlags)
	}
	second := res.Questions[1]
	if !NeedsReview(second, opts.ScoreThreshold) {
		t.Error("score 55 needs review at threshold 70")
	}
	if strings.Join(second.StyleViolationFlags, ",") != FlagMissingExplanation {
		t.Errorf("second flags = %v", second.StyleViolationFlags)
	}
	if res.Questions[2].ValidityScore != nil {
		t.Error("failed scoring must leave the score nil")
	}
	if in[0].ValidityScore != nil {
		t.Error("Score must not mutate its input")
	}
	if fake.CallCount(prompts.NameScore) != 3 {
		t.Errorf("calls = %d, want 3", fake.CallCount(prompts.NameScore))
	}
}

func TestScoreRejectsOutOfRange(t *testing.T) {
	set, _ := prompts.Builtin()
	fake := llmtest.New().Queue(prompts.NameScore, llmtest.Reply{JSON: `{"score": 140}`})
	res, err := New(fake, set, nil).Score(context.Background(), questions()[:1], nil, model.DefaultRunOptions())
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	if res.Questions[0].ValidityScore != nil {
		t.Error("score above 100 must be dropped")
	}
}

func TestStyleFlags(t *testing.T) {
	tests := []struct {
		name string
		q    model.Question
		lang string
		want []string
	}{
		{"clean", questions()[0], "en", nil},
		{"duplicate options", model.Question{Type: model.SingleChoice, Text: "Q", Explanation: "e", Answer: 1, Options: []string{"a", "A ", "b", "c"}}, "en", []string{FlagDuplicateOptions}},
		{"answer in question", model.Question{Type: model.SingleChoice, Text: "Is select a statement?", Explanation: "e", Answer: 2, Options: []string{"for", "select", "if", "go"}}, "en", []string{FlagAnswerInQuestion}},
		{"korean tone", model.Question{Type: model.TrueFalse, Text: "고루틴은 가볍다", Explanation: "맞음"}, "ko", []string{FlagTrueFalseTone, FlagExplanationTone}},
		{"korean ok", model.Question{Type: model.SingleChoice, Text: "옳은 것을 고르시오.", Explanation: "정답입니다.", Answer: 1, Options: []string{"가", "나", "다", "라"}}, "ko", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := StyleFlags(tt.q, tt.lang)
			if strings.Join(got, ",") != strings.Join(tt.want, ",") {
				t.Errorf("StyleFlags() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPartAverages(t *testing.T) {
	qs := []model.Question{
		{PartName: "A", ValidityScore: intPtr(80)},
		{PartName: "B"},
		{PartName: "A", ValidityScore: intPtr(61)},
		{PartName: "A"},
	}
	avgs := PartAverages(qs)
	if len(avgs) != 2 || avgs[0].PartName != "A" || avgs[1].PartName != "B" {
		t.Fatalf("averages = %+v", avgs)
	}
	if avgs[0].Average != 70.5 || avgs[0].Scored != 2 || avgs[0].Total != 3 {
		t.Errorf("A = %+v", avgs[0])
	}
	if avgs[1].Average != 0 || avgs[1].Scored != 0 {
		t.Errorf("B = %+v", avgs[1])
	}
	if NeedsReview(qs[1], 70) {
		t.Error("unscored questions are not flagged for review")
	}
}
