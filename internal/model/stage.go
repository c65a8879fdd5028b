package model

import "strings"

// Stage is a state of the pipeline state machine.
type Stage string

const (
	StageCreated     Stage = "created"
	StageClassifying Stage = "classifying"
	StageSummarizing Stage = "summarizing"
	StageGenerating  Stage = "generating"
	StageScoring     Stage = "scoring"
	StageExporting   Stage = "exporting"
	StageCompleted   Stage = "completed"
	StageFailed      Stage = "failed"
)

// Run-level event names. Stage events are built with StageEvent.
const (
	EventRunStarted   = "run_started"
	EventRunCompleted = "run_completed"
	EventRunFailed    = "run_failed"
)

// Stage event suffixes.
const (
	SuffixStarted   = "started"
	SuffixCompleted = "completed"
	SuffixFailed    = "failed"
)

// stageOrder is the only legal forward path. StageFailed is reachable from any
// processing stage and is handled separately.
var stageOrder = []Stage{
	StageCreated,
	StageClassifying,
	StageSummarizing,
	StageGenerating,
	StageScoring,
	StageExporting,
	StageCompleted,
}

var processingStages = map[Stage]struct{}{
	StageClassifying: {},
	StageSummarizing: {},
	StageGenerating:  {},
	StageScoring:     {},
	StageExporting:   {},
}

// ProcessingStages returns the stages that do work, in execution order.
func ProcessingStages() []Stage {
	return []Stage{StageClassifying, StageSummarizing, StageGenerating, StageScoring, StageExporting}
}

// ParseStage converts a string into a known Stage.
func ParseStage(value string) (Stage, bool) {
	s := Stage(strings.ToLower(strings.TrimSpace(value)))
	if s == StageFailed {
		return s, true
	}
	for _, known := range stageOrder {
		if known == s {
			return s, true
		}
	}
	return "", false
}

// Terminal reports whether no further transition is possible.
func (s Stage) Terminal() bool {
	return s == StageCompleted || s == StageFailed
}

// Processing reports whether the stage performs pipeline work.
func (s Stage) Processing() bool {
	_, ok := processingStages[s]
	return ok
}

// Next returns the stage that follows s on the forward path.
func (s Stage) Next() (Stage, bool) {
	for i, known := range stageOrder {
		if known == s && i+1 < len(stageOrder) {
			return stageOrder[i+1], true
		}
	}
	return "", false
}

// Index returns the position of s on the forward path, or -1.
func (s Stage) Index() int {
	for i, known := range stageOrder {
		if known == s {
			return i
		}
	}
	return -1
}

// StageEvent builds an event name such as "classifying_started".
func StageEvent(s Stage, suffix string) string {
	return string(s) + "_" + suffix
}
