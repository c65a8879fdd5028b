package model

import (
	"errors"
	"fmt"
)

// RunOptions are the user-facing knobs of one pipeline run.
type RunOptions struct {
	TotalQuestions        int    `json:"total_questions"`
	Difficulty            int    `json:"difficulty"`
	IncludeTrueFalse      bool   `json:"include_true_false"`
	TargetGroupSize       int    `json:"target_group_size"`
	ScoreThreshold        int    `json:"score_threshold"`
	MaxSupplementalRounds int    `json:"max_supplemental_rounds"`
	Concurrency           int    `json:"concurrency"`
	RubricVariant         string `json:"rubric_variant"`
	Purpose               string `json:"purpose"`
	Language              string `json:"language"`
	TemplateID            string `json:"template_id"`
	DestinationFolder     string `json:"destination_folder"`
	CopyName              string `json:"copy_name"`
	SheetName             string `json:"sheet_name"`
	WriteMeta             bool   `json:"write_meta"`
	MetaSheetName         string `json:"meta_sheet_name"`
}

// DefaultRunOptions returns the options used when nothing is configured.
func DefaultRunOptions() RunOptions {
	return RunOptions{
		TotalQuestions:        10,
		Difficulty:            DefaultDifficulty,
		IncludeTrueFalse:      true,
		TargetGroupSize:       10,
		ScoreThreshold:        70,
		MaxSupplementalRounds: 2,
		Concurrency:           4,
		RubricVariant:         "standard",
		Purpose:               "review",
		Language:              "en",
		SheetName:             "Sheet1",
		WriteMeta:             true,
		MetaSheetName:         "quizen_meta",
	}
}

// AllowedTypes lists the question types this run may generate.
func (o RunOptions) AllowedTypes() []QuestionType {
	if o.IncludeTrueFalse {
		return []QuestionType{SingleChoice, TrueFalse}
	}
	return []QuestionType{SingleChoice}
}

// Allows reports whether t may be generated in this run.
func (o RunOptions) Allows(t QuestionType) bool {
	for _, allowed := range o.AllowedTypes() {
		if allowed == t {
			return true
		}
	}
	return false
}

// Validate checks the options and returns all problems joined.
func (o RunOptions) Validate() error {
	var errs []error
	if o.TotalQuestions < 0 {
		errs = append(errs, fmt.Errorf("total questions must not be negative, got %d", o.TotalQuestions))
	}
	if o.Difficulty < MinDifficulty || o.Difficulty > MaxDifficulty {
		errs = append(errs, fmt.Errorf("difficulty must be %d..%d, got %d", MinDifficulty, MaxDifficulty, o.Difficulty))
	}
	if o.TargetGroupSize < 1 {
		errs = append(errs, fmt.Errorf("target group size must be positive, got %d", o.TargetGroupSize))
	}
	if o.ScoreThreshold < 0 || o.ScoreThreshold > 100 {
		errs = append(errs, fmt.Errorf("score threshold must be 0..100, got %d", o.ScoreThreshold))
	}
	if o.MaxSupplementalRounds < 0 {
		errs = append(errs, fmt.Errorf("supplemental rounds must not be negative, got %d", o.MaxSupplementalRounds))
	}
	if o.Concurrency < 1 {
		errs = append(errs, fmt.Errorf("concurrency must be positive, got %d", o.Concurrency))
	}
	return errors.Join(errs...)
}
