// Package parts groups lectures into topical PARTs, through the LLM when it
// answers well and through a deterministic split when it does not.
package parts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/pavelanni/quizen/internal/i18n"
	"github.com/pavelanni/quizen/internal/llm"
	"github.com/pavelanni/quizen/internal/llm/prompts"
	"github.com/pavelanni/quizen/internal/model"
)

// Part count guideline given to the LLM.
const (
	MinParts = 4
	MaxParts = 10
)

// maxAttempts is the first call plus one retry.
const maxAttempts = 2

// Result is the outcome of classification.
type Result struct {
	Parts        []model.Part
	FallbackUsed bool
	Attempts     int
	Warnings     []string
}

// Classifier assigns lectures to PARTs.
type Classifier struct {
	llm     llm.Invoker
	prompts *prompts.Set
	logger  *slog.Logger
}

// NewClassifier creates a classifier. A nil invoker always uses the fallback split.
func NewClassifier(invoker llm.Invoker, set *prompts.Set, logger *slog.Logger) *Classifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Classifier{llm: invoker, prompts: set, logger: logger}
}

type partPayload struct {
	PartCode   string   `json:"part_code"`
	PartTitle  string   `json:"part_title"`
	PartName   string   `json:"part_name"`
	LectureIDs []string `json:"lecture_ids"`
}

type classifyResponse struct {
	Parts []partPayload `json:"parts"`
}

// Classify asks the LLM once, retries once on schema or transport failure and
// otherwise falls back to FallbackSplit. Only context cancellation is returned
// as an error.
func (c *Classifier) Classify(ctx context.Context, lectures []model.Lecture, opts model.RunOptions) (Result, error) {
	var res Result
	if len(lectures) == 0 {
		return res, nil
	}

	if c.llm != nil && c.prompts != nil {
		spec, err := c.prompts.Classify(prompts.ClassifyData{
			Lectures: lectureLines(lectures),
			MinParts: MinParts,
			MaxParts: MaxParts,
			Language: opts.Language,
		})
		if err != nil {
			return res, fmt.Errorf("build classify prompt: %w", err)
		}

		for res.Attempts < maxAttempts {
			res.Attempts++
			parts, err := c.attempt(ctx, spec, lectures)
			if err == nil {
				res.Parts = parts
				return res, nil
			}
			if ctxErr := ctx.Err(); ctxErr != nil {
				return res, ctxErr
			}
			res.Warnings = append(res.Warnings, fmt.Sprintf("LLM classification failed (attempt %d): %v", res.Attempts, err))
			c.logger.Warn("part classification attempt failed", "attempt", res.Attempts, "error", err)
			if !model.Retryable(err) {
				break
			}
		}
	}

	res.Parts = FallbackSplit(ctx, lectures, opts.TargetGroupSize)
	res.FallbackUsed = true
	res.Warnings = append(res.Warnings, "fallback PART split applied")
	c.logger.Info("fallback part split applied", "parts", len(res.Parts), "lectures", len(lectures))
	return res, nil
}

func (c *Classifier) attempt(ctx context.Context, spec llm.PromptSpec, lectures []model.Lecture) ([]model.Part, error) {
	var resp classifyResponse
	if err := c.llm.Invoke(ctx, spec, &resp); err != nil {
		return nil, err
	}
	parts := make([]model.Part, 0, len(resp.Parts))
	for _, p := range resp.Parts {
		parts = append(parts, normalize(p))
	}
	if problems := ValidateParts(parts, lectures); len(problems) > 0 {
		return nil, model.Wrap(model.ErrSchemaValidation, model.StageClassifying, "validate parts", strings.Join(problems, "; "), nil)
	}
	return orderParts(parts, lectures), nil
}

func normalize(p partPayload) model.Part {
	code := strings.TrimSpace(p.PartCode)
	title := strings.TrimSpace(p.PartTitle)
	name := strings.TrimSpace(p.PartName)
	if title == "" && strings.HasPrefix(name, code) {
		title = strings.TrimSpace(strings.TrimPrefix(name, code))
	}
	if name == "" {
		name = model.DisplayNameFor(code, title)
	}
	ids := make([]string, 0, len(p.LectureIDs))
	for _, id := range p.LectureIDs {
		ids = append(ids, strings.TrimSpace(id))
	}
	return model.Part{Code: code, Title: title, DisplayName: name, LectureIDs: ids}
}

// ValidateParts checks part naming and that every lecture is assigned exactly
// once. It returns every problem found.
func ValidateParts(parts []model.Part, lectures []model.Lecture) []string {
	var problems []string
	if len(parts) == 0 {
		return []string{"no parts returned"}
	}

	assigned := make(map[string]int, len(lectures))
	for _, l := range lectures {
		assigned[l.ID] = 0
	}
	codes := make(map[string]bool, len(parts))
	for _, p := range parts {
		if !model.ValidPartCode(p.Code) {
			problems = append(problems, fmt.Sprintf("invalid part_code: %q", p.Code))
		}
		if codes[p.Code] {
			problems = append(problems, fmt.Sprintf("duplicate part_code: %s", p.Code))
		}
		codes[p.Code] = true
		if !strings.HasPrefix(p.DisplayName, p.Code+" ") {
			problems = append(problems, fmt.Sprintf("part_name must start with part_code: %q", p.DisplayName))
		}
		if len(p.LectureIDs) == 0 {
			problems = append(problems, fmt.Sprintf("part %s has no lectures", p.Code))
		}
		for _, id := range p.LectureIDs {
			if _, ok := assigned[id]; !ok {
				problems = append(problems, fmt.Sprintf("unknown lecture_id in parts: %s", id))
				continue
			}
			assigned[id]++
		}
	}

	var missing, duplicates []string
	for id, n := range assigned {
		switch {
		case n == 0:
			missing = append(missing, id)
		case n > 1:
			duplicates = append(duplicates, id)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		problems = append(problems, "unassigned lectures: "+strings.Join(missing, ", "))
	}
	if len(duplicates) > 0 {
		sort.Strings(duplicates)
		problems = append(problems, "lectures assigned to multiple parts: "+strings.Join(duplicates, ", "))
	}
	return problems
}

// orderParts sorts parts by code and each part's lectures by lecture order.
func orderParts(parts []model.Part, lectures []model.Lecture) []model.Part {
	order := make(map[string]int, len(lectures))
	for _, l := range lectures {
		order[l.ID] = l.Order
	}
	sort.SliceStable(parts, func(i, j int) bool { return parts[i].Code < parts[j].Code })
	for i := range parts {
		ids := parts[i].LectureIDs
		sort.SliceStable(ids, func(a, b int) bool { return order[ids[a]] < order[ids[b]] })
	}
	return parts
}

// FallbackSplit orders lectures by Order and cuts them into
// ceil(n/targetGroupSize) contiguous groups whose sizes differ by at most one,
// larger groups first. Titles are localized from ctx.
func FallbackSplit(ctx context.Context, lectures []model.Lecture, targetGroupSize int) []model.Part {
	n := len(lectures)
	if n == 0 {
		return nil
	}
	if targetGroupSize < 1 {
		targetGroupSize = 1
	}
	sorted := append([]model.Lecture(nil), lectures...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Order < sorted[j].Order })

	groups := (n + targetGroupSize - 1) / targetGroupSize
	base, extra := n/groups, n%groups

	parts := make([]model.Part, 0, groups)
	start := 0
	for g := 0; g < groups; g++ {
		size := base
		if g < extra {
			size++
		}
		ids := make([]string, 0, size)
		for _, l := range sorted[start : start+size] {
			ids = append(ids, l.ID)
		}
		start += size

		code := model.PartCode(g + 1)
		title := i18n.Td(ctx, "FallbackPartTitle", map[string]any{"Index": g + 1})
		parts = append(parts, model.Part{
			Code:        code,
			Title:       title,
			DisplayName: model.DisplayNameFor(code, title),
			LectureIDs:  ids,
		})
	}
	return parts
}

// Assign returns lectures with PartCode set from parts. A lecture that
// already carries a different part code is an error.
func Assign(lectures []model.Lecture, parts []model.Part) ([]model.Lecture, error) {
	codeOf := make(map[string]string, len(lectures))
	for _, p := range parts {
		for _, id := range p.LectureIDs {
			codeOf[id] = p.Code
		}
	}
	out := make([]model.Lecture, len(lectures))
	var errs []error
	for i, l := range lectures {
		code, ok := codeOf[l.ID]
		if !ok {
			errs = append(errs, fmt.Errorf("lecture %s has no part", l.ID))
		} else if l.PartCode != "" && l.PartCode != code {
			errs = append(errs, fmt.Errorf("lecture %s already assigned to %s", l.ID, l.PartCode))
		}
		l.PartCode = code
		l.Warnings = append([]string(nil), l.Warnings...)
		out[i] = l
	}
	return out, errors.Join(errs...)
}

func lectureLines(lectures []model.Lecture) []prompts.LectureLine {
	lines := make([]prompts.LectureLine, 0, len(lectures))
	for _, l := range lectures {
		lines = append(lines, prompts.LectureLine{Order: l.Order, ID: l.ID, Title: l.Title})
	}
	return lines
}
