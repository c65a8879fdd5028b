package report

import (
	"strings"

	"github.com/pavelanni/quizen/internal/model"
)

// Progress statuses.
const (
	StatusPending   = "pending"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// ProgressState is derived from the event log only.
type ProgressState struct {
	Status    string      `json:"status"`
	Current   model.Stage `json:"current,omitempty"`
	Completed int         `json:"completed"`
	Total     int         `json:"total"`
	Fraction  float64     `json:"fraction"`
}

// Progress replays events into a progress view.
func Progress(events []model.Event) ProgressState {
	stages := model.ProcessingStages()
	st := ProgressState{Status: StatusPending, Total: len(stages)}
	done := make(map[model.Stage]bool, len(stages))

	for _, ev := range events {
		switch {
		case ev.Name == model.EventRunStarted:
			st.Status = StatusRunning
		case ev.Name == model.EventRunCompleted:
			st.Status = StatusCompleted
		case ev.Name == model.EventRunFailed:
			st.Status = StatusFailed
		case strings.HasSuffix(ev.Name, "_"+model.SuffixStarted):
			st.Current = ev.Stage
			if st.Status == StatusPending {
				st.Status = StatusRunning
			}
		case strings.HasSuffix(ev.Name, "_"+model.SuffixCompleted):
			done[ev.Stage] = true
		case strings.HasSuffix(ev.Name, "_"+model.SuffixFailed):
			st.Current = ev.Stage
			st.Status = StatusFailed
		}
	}

	for _, s := range stages {
		if done[s] {
			st.Completed++
		}
	}
	if st.Status == StatusCompleted {
		st.Current = model.StageCompleted
	}
	if st.Total > 0 {
		st.Fraction = float64(st.Completed) / float64(st.Total)
	}
	return st
}
