// Package summarize writes one study note per PART to ground question
// generation.
package summarize

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/sourcegraph/conc/pool"

	"github.com/pavelanni/quizen/internal/i18n"
	"github.com/pavelanni/quizen/internal/llm"
	"github.com/pavelanni/quizen/internal/llm/prompts"
	"github.com/pavelanni/quizen/internal/model"
)

// TextSource returns the transcript of a lecture.
type TextSource interface {
	Text(ctx context.Context, lecture model.Lecture) (string, error)
}

// Result holds one summary per part in part order.
type Result struct {
	Summaries     []model.PartSummary
	FallbackParts []string
	Warnings      []string
}

// Summarizer builds part summaries.
type Summarizer struct {
	llm     llm.Invoker
	prompts *prompts.Set
	source  TextSource
	logger  *slog.Logger
}

// New creates a summarizer. A nil invoker or source degrades every part to
// the title-based summary.
func New(invoker llm.Invoker, set *prompts.Set, source TextSource, logger *slog.Logger) *Summarizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Summarizer{llm: invoker, prompts: set, source: source, logger: logger}
}

type summaryResponse struct {
	Summary string `json:"summary"`
}

type partOutcome struct {
	index    int
	summary  model.PartSummary
	warnings []string
}

// Summarize runs one request per part with at most opts.Concurrency in flight.
// Failures never abort the stage; only cancellation is returned.
func (s *Summarizer) Summarize(ctx context.Context, parts []model.Part, lectures []model.Lecture, opts model.RunOptions) (Result, error) {
	byID := make(map[string]model.Lecture, len(lectures))
	for _, l := range lectures {
		byID[l.ID] = l
	}

	p := pool.NewWithResults[partOutcome]().WithContext(ctx).WithMaxGoroutines(max(1, opts.Concurrency))
	for i, part := range parts {
		members := make([]model.Lecture, 0, len(part.LectureIDs))
		for _, id := range part.LectureIDs {
			if l, ok := byID[id]; ok {
				members = append(members, l)
			}
		}
		p.Go(func(ctx context.Context) (partOutcome, error) {
			return s.summarizePart(ctx, i, part, members, opts), nil
		})
	}
	outcomes, _ := p.Wait()
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	sort.Slice(outcomes, func(a, b int) bool { return outcomes[a].index < outcomes[b].index })
	var res Result
	for _, o := range outcomes {
		res.Summaries = append(res.Summaries, o.summary)
		res.Warnings = append(res.Warnings, o.warnings...)
		if o.summary.Fallback {
			res.FallbackParts = append(res.FallbackParts, o.summary.PartCode)
		}
	}
	return res, nil
}

func (s *Summarizer) summarizePart(ctx context.Context, index int, part model.Part, members []model.Lecture, opts model.RunOptions) partOutcome {
	out := partOutcome{index: index}
	titles := make([]string, 0, len(members))
	for _, l := range members {
		titles = append(titles, l.Title)
	}
	fallback := func(reason string) partOutcome {
		if reason != "" {
			out.warnings = append(out.warnings, fmt.Sprintf("summary for %s degraded: %s", part.Code, reason))
			s.logger.Warn("part summary degraded", "part_code", part.Code, "reason", reason)
		}
		out.summary = Fallback(ctx, part, titles)
		return out
	}

	if s.llm == nil || s.prompts == nil {
		return fallback("")
	}

	var transcript strings.Builder
	if s.source != nil {
		for _, l := range members {
			text, err := s.source.Text(ctx, l)
			if err != nil {
				out.warnings = append(out.warnings, fmt.Sprintf("transcript for %s unavailable: %v", l.ID, err))
				continue
			}
			if transcript.Len() > 0 {
				transcript.WriteString("\n\n")
			}
			fmt.Fprintf(&transcript, "[%s] %s\n%s", l.ID, l.Title, text)
		}
	}

	spec, err := s.prompts.Summarize(prompts.SummarizeData{
		PartName:   part.DisplayName,
		Titles:     titles,
		Transcript: transcript.String(),
		Language:   opts.Language,
	})
	if err != nil {
		return fallback(err.Error())
	}
	var resp summaryResponse
	if err := s.llm.Invoke(ctx, spec, &resp); err != nil {
		return fallback(err.Error())
	}
	content := strings.TrimSpace(resp.Summary)
	if content == "" {
		return fallback("empty summary")
	}
	out.summary = model.PartSummary{
		PartCode:      part.Code,
		PartName:      part.DisplayName,
		Content:       content,
		TokenEstimate: EstimateTokens(content),
	}
	return out
}

// Fallback is the deterministic summary built from lecture titles.
func Fallback(ctx context.Context, part model.Part, titles []string) model.PartSummary {
	content := i18n.Td(ctx, "FallbackSummary", map[string]any{
		"PartName": part.DisplayName,
		"Titles":   strings.Join(titles, "; "),
	})
	return model.PartSummary{
		PartCode:      part.Code,
		PartName:      part.DisplayName,
		Content:       content,
		TokenEstimate: EstimateTokens(content),
		Fallback:      true,
	}
}

// EstimateTokens approximates the token count as the word count.
func EstimateTokens(text string) int {
	return len(strings.Fields(text))
}
