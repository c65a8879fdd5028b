package pipeline

import (
	"fmt"

	"github.com/pavelanni/quizen/internal/model"
)

// GuardResult represents the outcome of a guard evaluation.
type GuardResult struct {
	Allowed bool
	Reason  string
}

// Error converts the guard result to an error if not allowed.
func (r GuardResult) Error() error {
	if r.Allowed {
		return nil
	}
	return fmt.Errorf("%s", r.Reason)
}

// StageContext provides context for stage entry guards.
type StageContext struct {
	From             model.Stage
	To               model.Stage
	LastCompleted    model.Stage
	LectureCount     int
	PartCount        int
	CoverageProblems int
	SummaryCount     int
}

// ExportContext provides context for the export guard.
type ExportContext struct {
	Stage         model.Stage
	LastCompleted model.Stage
	Exported      bool
}

// CanEnter evaluates whether the run may enter ctx.To.
// Rules:
// - No transition out of a terminal stage
// - To must directly follow From, and From must have completed
// - Classifying needs at least one lecture
// - Summarizing needs parts that cover every lecture exactly once
// - Generating needs one summary per part
// - Exporting is guarded by CanExport
func CanEnter(ctx StageContext) GuardResult {
	if ctx.From.Terminal() {
		return GuardResult{
			Allowed: false,
			Reason:  fmt.Sprintf("run is %s; no further stages", ctx.From),
		}
	}
	next, ok := ctx.From.Next()
	if !ok || next != ctx.To {
		return GuardResult{
			Allowed: false,
			Reason:  fmt.Sprintf("cannot enter %s from %s (next is %s)", ctx.To, ctx.From, next),
		}
	}
	if ctx.From != model.StageCreated && ctx.LastCompleted != ctx.From {
		return GuardResult{
			Allowed: false,
			Reason:  fmt.Sprintf("stage %s has not completed", ctx.From),
		}
	}

	switch ctx.To {
	case model.StageClassifying:
		if ctx.LectureCount == 0 {
			return GuardResult{Allowed: false, Reason: "no lectures to classify"}
		}
	case model.StageSummarizing:
		if ctx.PartCount == 0 {
			return GuardResult{Allowed: false, Reason: "no parts to summarize"}
		}
		if ctx.CoverageProblems > 0 {
			return GuardResult{
				Allowed: false,
				Reason:  fmt.Sprintf("parts do not cover every lecture exactly once (%d problems)", ctx.CoverageProblems),
			}
		}
	case model.StageGenerating:
		if ctx.SummaryCount != ctx.PartCount {
			return GuardResult{
				Allowed: false,
				Reason:  fmt.Sprintf("have %d summaries for %d parts", ctx.SummaryCount, ctx.PartCount),
			}
		}
	case model.StageExporting:
		return CanExport(ExportContext{Stage: ctx.From, LastCompleted: ctx.LastCompleted})
	}

	return GuardResult{Allowed: true}
}

// CanExport evaluates whether the run may export now.
// Rules:
// - A completed or already exported run never exports again
// - Scoring must be the last completed stage and no stage may be in flight
func CanExport(ctx ExportContext) GuardResult {
	if ctx.Exported || ctx.Stage == model.StageCompleted {
		return GuardResult{Allowed: false, Reason: "run already exported"}
	}
	if ctx.Stage != model.StageScoring || ctx.LastCompleted != model.StageScoring {
		return GuardResult{
			Allowed: false,
			Reason:  fmt.Sprintf("export requires completed scoring (stage %s, last completed %s)", ctx.Stage, orNone(ctx.LastCompleted)),
		}
	}
	return GuardResult{Allowed: true}
}

func orNone(s model.Stage) string {
	if s == "" {
		return "none"
	}
	return string(s)
}
