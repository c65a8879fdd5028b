package report

import (
	"testing"

	"github.com/pavelanni/quizen/internal/model"
)

func intPtr(v int) *int { return &v }

func snapshot() model.RunSnapshot {
	opts := model.DefaultRunOptions()
	return model.RunSnapshot{
		RunID:   "run-1",
		Stage:   model.StageCompleted,
		Options: opts,
		Parts: []model.Part{
			{Code: "PART.01", Title: "A", DisplayName: "PART.01 A", LectureIDs: []string{"L1", "L2"}},
			{Code: "PART.02", Title: "B", DisplayName: "PART.02 B", LectureIDs: []string{"L3"}},
		},
		Summaries: []model.PartSummary{{PartCode: "PART.01"}, {PartCode: "PART.02", Fallback: true}},
		Quotas:    []model.Quota{{PartCode: "PART.01", Count: 2}, {PartCode: "PART.02", Count: 2}},
		Questions: []model.Question{
			{PartName: "PART.01 A", Text: "q1", ValidityScore: intPtr(90)},
			{PartName: "PART.01 A", Text: "q2", ValidityScore: intPtr(60), StyleViolationFlags: []string{"ambiguous_wording"}},
			{PartName: "PART.02 B", Text: "q3", StyleViolationFlags: []string{"ambiguous_wording", "missing_explanation"}},
		},
		Unmet: []model.Shortfall{{PartCode: "PART.02", Quota: 2, Yield: 1, Missing: 1}},
	}
}

func TestBuild(t *testing.T) {
	r := Build(snapshot())
	if r.TotalQuota != 4 || r.TotalQuestions != 3 || r.Unscored != 1 {
		t.Errorf("totals: quota %d, questions %d, unscored %d", r.TotalQuota, r.TotalQuestions, r.Unscored)
	}
	if len(r.NeedsReview) != 1 || r.NeedsReview[0].Index != 2 {
		t.Fatalf("needs review = %+v", r.NeedsReview)
	}
	p1, p2 := r.Parts[0], r.Parts[1]
	if p1.Average != 75 || p1.Questions != 2 || p1.NeedsReview != 1 || p1.Lectures != 2 {
		t.Errorf("part 1 = %+v", p1)
	}
	if !p2.SummaryFallback || p2.Scored != 0 || p2.Quota != 2 {
		t.Errorf("part 2 = %+v", p2)
	}
	flags := r.SortedFlags()
	if len(flags) != 2 || flags[0].Flag != "ambiguous_wording" || flags[0].Count != 2 {
		t.Errorf("flags = %+v", flags)
	}
}

func TestBuildRecomputesAverages(t *testing.T) {
	snap := snapshot()
	*snap.Questions[1].ValidityScore = 80
	if r := Build(snap); r.Parts[0].Average != 85 || len(r.NeedsReview) != 0 {
		t.Errorf("average = %v, review = %d", r.Parts[0].Average, len(r.NeedsReview))
	}
}

func TestMetaRows(t *testing.T) {
	snap := snapshot()
	rows := MetaRows(snap.Parts, snap.Questions)
	// header, 2 parts, blank, header, 3 questions
	if len(rows) != 8 {
		t.Fatalf("got %d rows", len(rows))
	}
	if rows[1][0] != "PART.01" || rows[1][2] != "2" || rows[1][3] != "L1, L2" {
		t.Errorf("part row = %v", rows[1])
	}
	if len(rows[3]) != 0 {
		t.Errorf("expected blank separator, got %v", rows[3])
	}
	if rows[7][0] != "3" || rows[7][1] != "PART.02 B" || rows[7][5] != "" {
		t.Errorf("question row = %v", rows[7])
	}
}

func TestProgress(t *testing.T) {
	ev := func(name string, stage model.Stage) model.Event { return model.Event{Name: name, Stage: stage} }
	tests := []struct {
		name      string
		events    []model.Event
		status    string
		completed int
	}{
		{"pending", nil, StatusPending, 0},
		{"running", []model.Event{
			ev(model.EventRunStarted, model.StageCreated),
			ev("classifying_started", model.StageClassifying),
			ev("classifying_completed", model.StageClassifying),
			ev("summarizing_started", model.StageSummarizing),
		}, StatusRunning, 1},
		{"failed", []model.Event{
			ev(model.EventRunStarted, model.StageCreated),
			ev("classifying_started", model.StageClassifying),
			ev("classifying_failed", model.StageClassifying),
			ev(model.EventRunFailed, model.StageFailed),
		}, StatusFailed, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := Progress(tt.events)
			if st.Status != tt.status || st.Completed != tt.completed || st.Total != 5 {
				t.Errorf("Progress() = %+v", st)
			}
		})
	}

	var all []model.Event
	all = append(all, ev(model.EventRunStarted, model.StageCreated))
	for _, s := range model.ProcessingStages() {
		all = append(all, ev(model.StageEvent(s, model.SuffixStarted), s), ev(model.StageEvent(s, model.SuffixCompleted), s))
	}
	all = append(all, ev(model.EventRunCompleted, model.StageCompleted))
	if st := Progress(all); st.Status != StatusCompleted || st.Fraction != 1 {
		t.Errorf("Progress(all) = %+v", st)
	}
}
