package pipeline

import (
	"maps"
	"time"

	"github.com/pavelanni/quizen/internal/model"
)

// RunContext is the mutable state of one run. Only the orchestrator writes
// to it; stages receive copies and return results.
type RunContext struct {
	snap model.RunSnapshot
}

func newRunContext(runID string, lectures []model.Lecture, opts model.RunOptions, now time.Time) *RunContext {
	return &RunContext{snap: model.RunSnapshot{
		RunID:     runID,
		Stage:     model.StageCreated,
		Options:   opts,
		Lectures:  cloneLectures(lectures),
		CreatedAt: now,
		UpdatedAt: now,
	}}
}

func (rc *RunContext) emit(name string, stage model.Stage, payload map[string]any, now time.Time) model.Event {
	ev := model.Event{
		Seq:       len(rc.snap.Events) + 1,
		Name:      name,
		Stage:     stage,
		Timestamp: now,
		Payload:   payload,
	}
	rc.snap.Events = append(rc.snap.Events, ev)
	rc.snap.UpdatedAt = now
	return ev
}

func (rc *RunContext) warn(msgs ...string) {
	rc.snap.Warnings = append(rc.snap.Warnings, msgs...)
}

// atBarrier reports whether the current stage has completed and nothing is
// in flight.
func (rc *RunContext) atBarrier() bool {
	s := rc.snap.Stage
	return s == model.StageCreated || s == rc.snap.LastCompleted
}

func (rc *RunContext) clone() model.RunSnapshot {
	return cloneSnapshot(rc.snap)
}

func cloneSnapshot(s model.RunSnapshot) model.RunSnapshot {
	c := s
	c.Lectures = cloneLectures(s.Lectures)
	if s.Parts != nil {
		c.Parts = make([]model.Part, len(s.Parts))
		for i, p := range s.Parts {
			p.LectureIDs = append([]string(nil), p.LectureIDs...)
			c.Parts[i] = p
		}
	}
	c.Summaries = append([]model.PartSummary(nil), s.Summaries...)
	c.Quotas = append([]model.Quota(nil), s.Quotas...)
	c.Questions = cloneQuestions(s.Questions)
	c.Unmet = append([]model.Shortfall(nil), s.Unmet...)
	c.ExportRows = append([]model.ExportRow(nil), s.ExportRows...)
	if s.Events != nil {
		c.Events = make([]model.Event, len(s.Events))
		for i, ev := range s.Events {
			ev.Payload = maps.Clone(ev.Payload)
			c.Events[i] = ev
		}
	}
	c.Warnings = append([]string(nil), s.Warnings...)
	if s.Failure != nil {
		f := *s.Failure
		f.Reasons = append([]string(nil), s.Failure.Reasons...)
		c.Failure = &f
	}
	if s.Export != nil {
		e := *s.Export
		c.Export = &e
	}
	return c
}

func cloneLectures(in []model.Lecture) []model.Lecture {
	if in == nil {
		return nil
	}
	out := make([]model.Lecture, len(in))
	for i, l := range in {
		l.Warnings = append([]string(nil), l.Warnings...)
		out[i] = l
	}
	return out
}

func cloneQuestions(in []model.Question) []model.Question {
	if in == nil {
		return nil
	}
	out := make([]model.Question, len(in))
	for i, q := range in {
		out[i] = q.Clone()
	}
	return out
}
