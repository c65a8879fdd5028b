package generate

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/pavelanni/quizen/internal/allocate"
	"github.com/pavelanni/quizen/internal/llm"
	"github.com/pavelanni/quizen/internal/llm/llmtest"
	"github.com/pavelanni/quizen/internal/llm/prompts"
	"github.com/pavelanni/quizen/internal/model"
)

func mcq(text string) string {
	return fmt.Sprintf(`{"difficulty":3,"type":1,"question":%q,"explanation":"because","answer":2,"options":["a","b","c","d"]}`, text)
}

func tf(text string) string {
	return fmt.Sprintf(`{"difficulty":3,"type":"true_false","question":%q,"explanation":"because","answer":"O","options":["","","",""]}`, text)
}

func reply(records ...string) string {
	return `{"questions":[` + strings.Join(records, ",") + `]}`
}

func summaries() []model.PartSummary {
	return []model.PartSummary{
		{PartCode: "PART.01", PartName: "PART.01 Basics", Content: "basics"},
		{PartCode: "PART.02", PartName: "PART.02 Advanced", Content: "advanced"},
	}
}

func newGenerator(t *testing.T, fake *llmtest.Fake) *Generator {
	t.Helper()
	set, err := prompts.Builtin()
	if err != nil {
		t.Fatal(err)
	}
	return New(fake, set, nil)
}

func TestMapRecord(t *testing.T) {
	opts := model.DefaultRunOptions()
	tests := []struct {
		name     string
		raw      string
		wantOK   bool
		contains string
	}{
		{"single choice", mcq("What is Go?"), true, ""},
		{"true false with placeholders", tf("Go is compiled."), true, ""},
		{"three options", `{"type":1,"question":"Q","answer":1,"options":["a","b","c"]}`, false, "needs 4 options"},
		{"bad answer", `{"type":3,"question":"Q","answer":"maybe"}`, false, "malformed record"},
		{"unknown type", `{"type":2,"question":"Q","answer":1}`, false, "type code 2"},
		{"empty text", `{"type":3,"answer":1}`, false, "text is empty"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, problems := MapRecord(json.RawMessage(tt.raw), "PART.01 Basics", opts)
			if tt.wantOK {
				if len(problems) > 0 {
					t.Fatalf("MapRecord() problems = %v", problems)
				}
				if q.PartName != "PART.01 Basics" || q.Difficulty != 3 {
					t.Errorf("unexpected question %+v", q)
				}
				return
			}
			if !strings.Contains(strings.Join(problems, "; "), tt.contains) {
				t.Errorf("MapRecord() problems = %v, want mention of %q", problems, tt.contains)
			}
		})
	}

	noTF := opts
	noTF.IncludeTrueFalse = false
	if _, problems := MapRecord(json.RawMessage(tf("Go is fast.")), "P", noTF); len(problems) == 0 {
		t.Error("true/false must be rejected when disabled")
	}
	q, _ := MapRecord(json.RawMessage(`{"type":3,"question":"Q","answer":"x"}`), "P", opts)
	if q.Difficulty != opts.Difficulty || q.Answer != model.AnswerFalse {
		t.Errorf("defaults not applied: %+v", q)
	}
}

func TestGenerateFillsQuotas(t *testing.T) {
	fake := llmtest.New()
	fake.Handler = func(spec llm.PromptSpec) (string, error) {
		if strings.Contains(spec.User, "PART.01") {
			// one surplus record and one duplicate
			return reply(mcq("A1"), mcq("A1"), tf("A2"), mcq("A3"), mcq("A4")), nil
		}
		return reply(mcq("B1"), mcq("B2")), nil
	}
	quotas := allocate.Quotas{{PartCode: "PART.01", Count: 3}, {PartCode: "PART.02", Count: 2}}

	res, err := newGenerator(t, fake).Generate(context.Background(), summaries(), quotas, model.DefaultRunOptions())
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(res.Questions) != 5 {
		t.Fatalf("got %d questions, want 5", len(res.Questions))
	}
	want := []string{"A1", "A2", "A3", "B1", "B2"}
	for i, w := range want {
		if res.Questions[i].Text != w {
			t.Errorf("question %d = %q, want %q", i, res.Questions[i].Text, w)
		}
	}
	if len(res.Unmet) != 0 || res.Rounds != 1 {
		t.Errorf("unmet = %v, rounds = %d", res.Unmet, res.Rounds)
	}
	if res.Rejected != 1 {
		t.Errorf("rejected = %d, want 1 duplicate", res.Rejected)
	}
}

func TestGenerateSupplementalRounds(t *testing.T) {
	var mu sync.Mutex
	calls := map[string]int{}
	fake := llmtest.New()
	fake.Handler = func(spec llm.PromptSpec) (string, error) {
		part := "PART.02"
		if strings.Contains(spec.User, "PART.01") {
			part = "PART.01"
		}
		mu.Lock()
		calls[part]++
		n := calls[part]
		mu.Unlock()
		if part == "PART.01" {
			// short by one on the first call, complete on the second
			if n == 1 {
				return reply(mcq("A1"), `{"type":1,"question":"bad","answer":9,"options":["a","b","c","d"]}`), nil
			}
			if !strings.Contains(spec.User, "- A1") {
				t.Errorf("supplemental prompt should list accepted questions:\n%s", spec.User)
			}
			return reply(mcq("A1"), mcq("A2")), nil
		}
		return "", fmt.Errorf("part 2 always fails")
	}
	quotas := allocate.Quotas{{PartCode: "PART.01", Count: 2}, {PartCode: "PART.02", Count: 2}}
	opts := model.DefaultRunOptions()
	opts.MaxSupplementalRounds = 2

	res, err := newGenerator(t, fake).Generate(context.Background(), summaries(), quotas, opts)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if res.Rounds != 3 {
		t.Errorf("rounds = %d, want 3", res.Rounds)
	}
	if calls["PART.01"] != 2 || calls["PART.02"] != 3 {
		t.Errorf("calls = %v", calls)
	}
	if res.Yields["PART.01"] != 2 || res.Yields["PART.02"] != 0 {
		t.Errorf("yields = %v", res.Yields)
	}
	if len(res.Unmet) != 1 || res.Unmet[0].PartCode != "PART.02" || res.Unmet[0].Missing != 2 {
		t.Errorf("unmet = %+v", res.Unmet)
	}
}

func TestGenerateWithoutLLM(t *testing.T) {
	quotas := allocate.Quotas{{PartCode: "PART.01", Count: 1}}
	res, err := New(nil, nil, nil).Generate(context.Background(), summaries()[:1], quotas, model.DefaultRunOptions())
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(res.Questions) != 0 || len(res.Unmet) != 1 {
		t.Errorf("questions = %d, unmet = %v", len(res.Questions), res.Unmet)
	}
}

func TestQuestionsPerPart(t *testing.T) {
	counts := QuestionsPerPart([]model.Question{{PartName: "A"}, {PartName: "A"}, {PartName: "B"}})
	if counts["A"] != 2 || counts["B"] != 1 {
		t.Errorf("counts = %v", counts)
	}
}
