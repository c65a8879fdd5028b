package score

import (
	"strings"

	"github.com/pavelanni/quizen/internal/model"
)

// Heuristic style flags.
const (
	FlagMissingExplanation = "missing_explanation"
	FlagDuplicateOptions   = "duplicate_options"
	FlagAnswerInQuestion   = "answer_in_question"
	FlagPromptStyle        = "mcq_prompt_style"
	FlagTrueFalseTone      = "ox_tone"
	FlagExplanationTone    = "explanation_tone"
)

var politeEndings = []string{"습니다.", "합니다.", "입니다.", "하십시오.", "합니까?", "입니까?", "습니다", "합니다", "입니다"}

// StyleFlags returns the local heuristic flags for q. Korean banks also get
// the house tone checks.
func StyleFlags(q model.Question, language string) []string {
	var flags []string
	if strings.TrimSpace(q.Explanation) == "" {
		flags = append(flags, FlagMissingExplanation)
	}
	if q.Type == model.SingleChoice {
		seen := make(map[string]bool, len(q.Options))
		for _, o := range q.Options {
			key := strings.ToLower(strings.TrimSpace(o))
			if key != "" && seen[key] {
				flags = append(flags, FlagDuplicateOptions)
				break
			}
			seen[key] = true
		}
		if q.Answer >= 1 && q.Answer <= len(q.Options) {
			answer := strings.ToLower(strings.TrimSpace(q.Options[q.Answer-1]))
			if len([]rune(answer)) >= 4 && strings.Contains(strings.ToLower(q.Text), answer) {
				flags = append(flags, FlagAnswerInQuestion)
			}
		}
	}

	if strings.HasPrefix(strings.ToLower(language), "ko") {
		text := strings.TrimSpace(q.Text)
		switch q.Type {
		case model.SingleChoice:
			if !strings.HasSuffix(text, "시오.") {
				flags = append(flags, FlagPromptStyle)
			}
		case model.TrueFalse:
			if !strings.HasSuffix(text, "다.") {
				flags = append(flags, FlagTrueFalseTone)
			}
		}
		if exp := strings.TrimSpace(q.Explanation); exp != "" && !hasAnySuffix(exp, politeEndings) {
			flags = append(flags, FlagExplanationTone)
		}
	}
	return flags
}

func hasAnySuffix(s string, suffixes []string) bool {
	for _, suffix := range suffixes {
		if strings.HasSuffix(s, suffix) {
			return true
		}
	}
	return false
}
