// Package generate writes quiz questions per PART against the allocated
// quotas, with bounded supplemental rounds for parts that fall short.
package generate

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/sourcegraph/conc/pool"

	"github.com/pavelanni/quizen/internal/allocate"
	"github.com/pavelanni/quizen/internal/llm"
	"github.com/pavelanni/quizen/internal/llm/prompts"
	"github.com/pavelanni/quizen/internal/model"
)

// Result is the merged outcome of all generation rounds.
type Result struct {
	Questions []model.Question
	Yields    map[string]int
	Unmet     []model.Shortfall
	Rounds    int
	Rejected  int
	Warnings  []string
}

// Generator requests questions from the LLM.
type Generator struct {
	llm     llm.Invoker
	prompts *prompts.Set
	logger  *slog.Logger
}

// New creates a generator. Without an invoker every quota is reported unmet.
func New(invoker llm.Invoker, set *prompts.Set, logger *slog.Logger) *Generator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Generator{llm: invoker, prompts: set, logger: logger}
}

type batch struct {
	index     int
	partCode  string
	questions []model.Question
	rejected  []string
	err       error
}

// Generate fills quotas part by part. The first round asks for every quota;
// up to opts.MaxSupplementalRounds further rounds ask only for the shortfall
// planned by allocate.Rebalance. Only cancellation is returned as an error.
func (g *Generator) Generate(ctx context.Context, summaries []model.PartSummary, quotas allocate.Quotas, opts model.RunOptions) (Result, error) {
	summaryOf := make(map[string]model.PartSummary, len(summaries))
	for _, s := range summaries {
		summaryOf[s.PartCode] = s
	}

	accepted := make(map[string][]model.Question, len(quotas))
	seen := make(map[string]map[string]bool, len(quotas))
	yields := make(map[string]int, len(quotas))
	for _, q := range quotas {
		seen[q.PartCode] = make(map[string]bool)
		yields[q.PartCode] = 0
	}

	res := Result{}
	if g.llm == nil || g.prompts == nil {
		res.Warnings = append(res.Warnings, "no LLM configured; no questions generated")
	} else {
		for round := 0; round <= opts.MaxSupplementalRounds; round++ {
			plan := allocate.Rebalance(quotas, yields)
			if plan.Empty() {
				break
			}
			res.Rounds++
			if round > 0 {
				g.logger.Info("supplemental generation round", "round", round, "parts", len(plan.Shortfalls), "missing", plan.Missing())
			}

			batches, err := g.runRound(ctx, plan, summaryOf, accepted, opts)
			if err != nil {
				return Result{}, err
			}
			for _, b := range batches {
				if b.err != nil {
					res.Warnings = append(res.Warnings, fmt.Sprintf("generation for %s failed in round %d: %v", b.partCode, round+1, b.err))
					continue
				}
				res.Rejected += len(b.rejected)
				for _, reason := range b.rejected {
					g.logger.Debug("question record rejected", "part_code", b.partCode, "reason", reason)
				}
				quota := quotas.Of(b.partCode)
				for _, q := range b.questions {
					key := normalizeText(q.Text)
					if seen[b.partCode][key] {
						res.Rejected++
						continue
					}
					if len(accepted[b.partCode]) >= quota {
						break
					}
					seen[b.partCode][key] = true
					accepted[b.partCode] = append(accepted[b.partCode], q)
				}
				yields[b.partCode] = len(accepted[b.partCode])
			}
		}
	}

	for _, q := range quotas {
		res.Questions = append(res.Questions, accepted[q.PartCode]...)
	}
	res.Yields = yields
	res.Unmet = allocate.Rebalance(quotas, yields).Shortfalls
	return res, nil
}

func (g *Generator) runRound(ctx context.Context, plan allocate.Plan, summaryOf map[string]model.PartSummary, accepted map[string][]model.Question, opts model.RunOptions) ([]batch, error) {
	p := pool.NewWithResults[batch]().WithContext(ctx).WithMaxGoroutines(max(1, opts.Concurrency))
	for i, short := range plan.Shortfalls {
		summary := summaryOf[short.PartCode]
		avoid := make([]string, 0, len(accepted[short.PartCode]))
		for _, q := range accepted[short.PartCode] {
			avoid = append(avoid, q.Text)
		}
		p.Go(func(ctx context.Context) (batch, error) {
			b := batch{index: i, partCode: short.PartCode}
			b.questions, b.rejected, b.err = g.requestPart(ctx, summary, short.Missing, avoid, opts)
			return b, nil
		})
	}
	batches, _ := p.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sort.Slice(batches, func(a, b int) bool { return batches[a].index < batches[b].index })
	return batches, nil
}

func (g *Generator) requestPart(ctx context.Context, summary model.PartSummary, count int, avoid []string, opts model.RunOptions) ([]model.Question, []string, error) {
	spec, err := g.prompts.Generate(prompts.GenerateData{
		PartName:   summary.PartName,
		Summary:    summary.Content,
		Count:      count,
		Difficulty: opts.Difficulty,
		Types:      prompts.TypeOptions(opts.AllowedTypes()),
		Purpose:    opts.Purpose,
		Language:   opts.Language,
		Avoid:      avoid,
	})
	if err != nil {
		return nil, nil, err
	}

	var resp generateResponse
	if err := g.llm.Invoke(ctx, spec, &resp); err != nil {
		return nil, nil, err
	}

	var questions []model.Question
	var rejected []string
	for i, raw := range resp.Questions {
		q, problems := MapRecord(raw, summary.PartName, opts)
		if len(problems) > 0 {
			rejected = append(rejected, fmt.Sprintf("record %d: %v", i+1, problems))
			continue
		}
		questions = append(questions, q)
	}
	return questions, rejected, nil
}

// QuestionsPerPart counts questions by part name.
func QuestionsPerPart(questions []model.Question) map[string]int {
	counts := make(map[string]int)
	for _, q := range questions {
		counts[q.PartName]++
	}
	return counts
}
