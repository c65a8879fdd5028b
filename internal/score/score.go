// Package score rates question validity with a rubric prompt and local style
// heuristics.
package score

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"

	"github.com/sourcegraph/conc/pool"

	"github.com/pavelanni/quizen/internal/llm"
	"github.com/pavelanni/quizen/internal/llm/prompts"
	"github.com/pavelanni/quizen/internal/model"
)

// Result holds the scored questions in input order.
type Result struct {
	Questions []model.Question
	Scored    int
	Unscored  int
	Warnings  []string
}

// Scorer assigns validity scores.
type Scorer struct {
	llm     llm.Invoker
	prompts *prompts.Set
	logger  *slog.Logger
}

// New creates a scorer. Without an invoker only heuristic flags are set.
func New(invoker llm.Invoker, set *prompts.Set, logger *slog.Logger) *Scorer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scorer{llm: invoker, prompts: set, logger: logger}
}

type scoreResponse struct {
	Score  *float64 `json:"score"`
	Issues []string `json:"issues"`
}

type scored struct {
	index    int
	question model.Question
	warning  string
}

// Score rates every question with at most opts.Concurrency requests in
// flight. A failed request leaves the score nil. Only cancellation is
// returned as an error.
func (s *Scorer) Score(ctx context.Context, questions []model.Question, summaries []model.PartSummary, opts model.RunOptions) (Result, error) {
	summaryOf := make(map[string]string, len(summaries))
	for _, sm := range summaries {
		summaryOf[sm.PartName] = sm.Content
	}
	variant := prompts.RubricVariant(opts.RubricVariant)
	if !prompts.IsValidVariant(opts.RubricVariant) {
		variant = prompts.RubricStandard
	}

	p := pool.NewWithResults[scored]().WithContext(ctx).WithMaxGoroutines(max(1, opts.Concurrency))
	for i, q := range questions {
		q = q.Clone()
		p.Go(func(ctx context.Context) (scored, error) {
			return s.scoreOne(ctx, i, q, summaryOf[q.PartName], variant, opts), nil
		})
	}
	results, _ := p.Wait()
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	sort.Slice(results, func(a, b int) bool { return results[a].index < results[b].index })
	res := Result{Questions: make([]model.Question, 0, len(results))}
	for _, r := range results {
		res.Questions = append(res.Questions, r.question)
		if r.question.ValidityScore != nil {
			res.Scored++
		} else {
			res.Unscored++
		}
		if r.warning != "" {
			res.Warnings = append(res.Warnings, r.warning)
		}
	}
	return res, nil
}

func (s *Scorer) scoreOne(ctx context.Context, index int, q model.Question, summary string, variant prompts.RubricVariant, opts model.RunOptions) scored {
	out := scored{index: index}
	flags := StyleFlags(q, opts.Language)
	q.ValidityScore = nil

	if s.llm != nil && s.prompts != nil {
		value, issues, err := s.request(ctx, q, summary, variant, opts)
		if err != nil {
			out.warning = fmt.Sprintf("question %d left unscored: %v", index+1, err)
			s.logger.Warn("question left unscored", "index", index+1, "part_name", q.PartName, "error", err)
		} else {
			q.ValidityScore = &value
			flags = append(flags, issues...)
		}
	}

	q.StyleViolationFlags = dedupe(flags)
	out.question = q
	return out
}

func (s *Scorer) request(ctx context.Context, q model.Question, summary string, variant prompts.RubricVariant, opts model.RunOptions) (int, []string, error) {
	spec, err := s.prompts.Score(variant, prompts.ScoreData{
		PartName:    q.PartName,
		TypeName:    q.Type.String(),
		Text:        q.Text,
		Options:     q.Options,
		Answer:      q.Answer,
		Explanation: q.Explanation,
		Difficulty:  q.Difficulty,
		Purpose:     opts.Purpose,
		Summary:     summary,
	})
	if err != nil {
		return 0, nil, err
	}
	var resp scoreResponse
	if err := s.llm.Invoke(ctx, spec, &resp); err != nil {
		return 0, nil, err
	}
	if resp.Score == nil || math.IsNaN(*resp.Score) || *resp.Score < 0 || *resp.Score > 100 {
		return 0, nil, model.Wrap(model.ErrSchemaValidation, model.StageScoring, "score", "score missing or outside 0..100", nil)
	}
	issues := make([]string, 0, len(resp.Issues))
	for _, tag := range resp.Issues {
		if tag = normalizeTag(tag); tag != "" {
			issues = append(issues, tag)
		}
	}
	return int(math.Round(*resp.Score)), issues, nil
}

func normalizeTag(tag string) string {
	tag = strings.ToLower(strings.TrimSpace(tag))
	return strings.Join(strings.FieldsFunc(tag, func(r rune) bool { return r == ' ' || r == '-' }), "_")
}

func dedupe(flags []string) []string {
	if len(flags) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(flags))
	out := make([]string, 0, len(flags))
	for _, f := range flags {
		if _, ok := set[f]; ok {
			continue
		}
		set[f] = struct{}{}
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

// NeedsReview reports whether q has a score below threshold.
func NeedsReview(q model.Question, threshold int) bool {
	return q.ValidityScore != nil && *q.ValidityScore < threshold
}

// PartAverage is the derived mean score of one part.
type PartAverage struct {
	PartName string  `json:"part_name"`
	Average  float64 `json:"average"`
	Scored   int     `json:"scored"`
	Total    int     `json:"total"`
}

// PartAverages derives per-part mean scores from the current question
// scores, in order of first appearance. Parts without scores average 0.
func PartAverages(questions []model.Question) []PartAverage {
	index := make(map[string]int)
	var out []PartAverage
	sums := make(map[string]int)
	for _, q := range questions {
		i, ok := index[q.PartName]
		if !ok {
			i = len(out)
			index[q.PartName] = i
			out = append(out, PartAverage{PartName: q.PartName})
		}
		out[i].Total++
		if q.ValidityScore != nil {
			out[i].Scored++
			sums[q.PartName] += *q.ValidityScore
		}
	}
	for i := range out {
		if out[i].Scored > 0 {
			out[i].Average = float64(sums[out[i].PartName]) / float64(out[i].Scored)
		}
	}
	return out
}
