// Package report derives review views from a stored run: the readiness
// report, the meta sheet rows and progress.
package report

import (
	"sort"
	"strconv"
	"strings"

	"github.com/pavelanni/quizen/internal/model"
	"github.com/pavelanni/quizen/internal/score"
)

// PartLine is the per-part row of the report.
type PartLine struct {
	PartCode        string  `json:"part_code"`
	PartName        string  `json:"part_name"`
	Lectures        int     `json:"lectures"`
	Quota           int     `json:"quota"`
	Questions       int     `json:"questions"`
	Average         float64 `json:"average"`
	Scored          int     `json:"scored"`
	NeedsReview     int     `json:"needs_review"`
	SummaryFallback bool    `json:"summary_fallback"`
}

// ReviewItem is a question that needs human attention.
type ReviewItem struct {
	Index    int      `json:"index"`
	PartName string   `json:"part_name"`
	Text     string   `json:"text"`
	Score    *int     `json:"score,omitempty"`
	Flags    []string `json:"flags,omitempty"`
}

// Report summarizes how ready a run's bank is for review.
type Report struct {
	RunID          string              `json:"run_id"`
	Stage          model.Stage         `json:"stage"`
	FallbackUsed   bool                `json:"fallback_used"`
	Threshold      int                 `json:"threshold"`
	Parts          []PartLine          `json:"parts"`
	TotalQuota     int                 `json:"total_quota"`
	TotalQuestions int                 `json:"total_questions"`
	NeedsReview    []ReviewItem        `json:"needs_review"`
	Unscored       int                 `json:"unscored"`
	StyleFlags     map[string]int      `json:"style_flags"`
	Unmet          []model.Shortfall   `json:"unmet,omitempty"`
	Warnings       []string            `json:"warnings,omitempty"`
	Export         *model.ExportResult `json:"export,omitempty"`
	Failure        *model.Failure      `json:"failure,omitempty"`
	Progress       ProgressState       `json:"progress"`
}

// Build derives the report from a snapshot. Averages are recomputed from the
// current question scores.
func Build(snap model.RunSnapshot) Report {
	threshold := snap.Options.ScoreThreshold
	r := Report{
		RunID:          snap.RunID,
		Stage:          snap.Stage,
		FallbackUsed:   snap.FallbackUsed,
		Threshold:      threshold,
		TotalQuestions: len(snap.Questions),
		StyleFlags:     make(map[string]int),
		Unmet:          snap.Unmet,
		Warnings:       snap.Warnings,
		Export:         snap.Export,
		Failure:        snap.Failure,
		Progress:       Progress(snap.Events),
	}

	quotaOf := make(map[string]int, len(snap.Quotas))
	for _, q := range snap.Quotas {
		quotaOf[q.PartCode] = q.Count
		r.TotalQuota += q.Count
	}
	fallbackOf := make(map[string]bool, len(snap.Summaries))
	for _, s := range snap.Summaries {
		fallbackOf[s.PartCode] = s.Fallback
	}
	averages := make(map[string]score.PartAverage)
	for _, avg := range score.PartAverages(snap.Questions) {
		averages[avg.PartName] = avg
	}
	reviewByPart := make(map[string]int)

	for i, q := range snap.Questions {
		if q.ValidityScore == nil {
			r.Unscored++
		}
		for _, f := range q.StyleViolationFlags {
			r.StyleFlags[f]++
		}
		if score.NeedsReview(q, threshold) {
			reviewByPart[q.PartName]++
			r.NeedsReview = append(r.NeedsReview, ReviewItem{
				Index:    i + 1,
				PartName: q.PartName,
				Text:     q.Text,
				Score:    q.ValidityScore,
				Flags:    q.StyleViolationFlags,
			})
		}
	}

	for _, p := range snap.Parts {
		avg := averages[p.DisplayName]
		r.Parts = append(r.Parts, PartLine{
			PartCode:        p.Code,
			PartName:        p.DisplayName,
			Lectures:        len(p.LectureIDs),
			Quota:           quotaOf[p.Code],
			Questions:       avg.Total,
			Average:         avg.Average,
			Scored:          avg.Scored,
			NeedsReview:     reviewByPart[p.DisplayName],
			SummaryFallback: fallbackOf[p.Code],
		})
	}
	return r
}

// SortedFlags returns the style flag counts ordered by count, then name.
func (r Report) SortedFlags() []FlagCount {
	out := make([]FlagCount, 0, len(r.StyleFlags))
	for name, n := range r.StyleFlags {
		out = append(out, FlagCount{Flag: name, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Flag < out[j].Flag
	})
	return out
}

// FlagCount is one style flag tally.
type FlagCount struct {
	Flag  string `json:"flag"`
	Count int    `json:"count"`
}

// MetaRows lays out the meta tab: the part table, a blank row, then the
// question-to-part mapping.
func MetaRows(parts []model.Part, questions []model.Question) [][]string {
	rows := [][]string{{"part_code", "part_title", "lecture_count", "lecture_ids"}}
	for _, p := range parts {
		rows = append(rows, []string{p.Code, p.Title, strconv.Itoa(len(p.LectureIDs)), strings.Join(p.LectureIDs, ", ")})
	}
	rows = append(rows, []string{})
	rows = append(rows, []string{"#", "part_name", "question_type_code", "difficulty_code", "answer_code", "validity_score"})
	for i, q := range questions {
		scoreCell := ""
		if q.ValidityScore != nil {
			scoreCell = strconv.Itoa(*q.ValidityScore)
		}
		rows = append(rows, []string{
			strconv.Itoa(i + 1),
			q.PartName,
			strconv.Itoa(int(q.Type)),
			strconv.Itoa(q.Difficulty),
			strconv.Itoa(q.Answer),
			scoreCell,
		})
	}
	return rows
}
