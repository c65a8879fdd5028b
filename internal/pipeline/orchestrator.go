// Package pipeline drives a run through its stages: classification,
// summaries, generation, scoring and export. Stages run as sequential
// barriers and each completed barrier is checkpointed.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pavelanni/quizen/internal/allocate"
	"github.com/pavelanni/quizen/internal/export"
	"github.com/pavelanni/quizen/internal/generate"
	"github.com/pavelanni/quizen/internal/i18n"
	"github.com/pavelanni/quizen/internal/model"
	"github.com/pavelanni/quizen/internal/parts"
	"github.com/pavelanni/quizen/internal/report"
	"github.com/pavelanni/quizen/internal/score"
	"github.com/pavelanni/quizen/internal/summarize"
)

// Classifier groups lectures into parts.
type Classifier interface {
	Classify(ctx context.Context, lectures []model.Lecture, opts model.RunOptions) (parts.Result, error)
}

// Summarizer writes one summary per part.
type Summarizer interface {
	Summarize(ctx context.Context, parts []model.Part, lectures []model.Lecture, opts model.RunOptions) (summarize.Result, error)
}

// Generator fills question quotas.
type Generator interface {
	Generate(ctx context.Context, summaries []model.PartSummary, quotas allocate.Quotas, opts model.RunOptions) (generate.Result, error)
}

// Scorer rates questions.
type Scorer interface {
	Score(ctx context.Context, questions []model.Question, summaries []model.PartSummary, opts model.RunOptions) (score.Result, error)
}

// Exporter writes validated rows to a spreadsheet.
type Exporter interface {
	Export(ctx context.Context, target export.Target, rows []model.ExportRow, meta [][]string) (model.ExportResult, error)
}

// Deps are the stage implementations. Nil stages fall back to their
// LLM-less behavior; a nil Exporter stops runs at the scoring barrier; a nil
// Storage disables checkpoints.
type Deps struct {
	Classifier Classifier
	Summarizer Summarizer
	Generator  Generator
	Scorer     Scorer
	Exporter   Exporter
	Storage    Storage
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = logger }
}

// WithClock sets the time source used for events and timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// WithIDGenerator sets the run id generator.
func WithIDGenerator(newID func() string) Option {
	return func(o *Orchestrator) { o.newID = newID }
}

// Orchestrator owns one run at a time.
type Orchestrator struct {
	deps   Deps
	logger *slog.Logger
	now    func() time.Time
	newID  func() string

	// busy makes Run, Export and Resume single-flight.
	busy sync.Mutex

	mu sync.Mutex
	rc *RunContext
}

// New creates an orchestrator.
func New(deps Deps, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		deps:   deps,
		logger: slog.Default(),
		now:    time.Now,
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.deps.Classifier == nil {
		o.deps.Classifier = parts.NewClassifier(nil, nil, o.logger)
	}
	if o.deps.Summarizer == nil {
		o.deps.Summarizer = summarize.New(nil, nil, nil, o.logger)
	}
	if o.deps.Generator == nil {
		o.deps.Generator = generate.New(nil, nil, o.logger)
	}
	if o.deps.Scorer == nil {
		o.deps.Scorer = score.New(nil, nil, o.logger)
	}
	return o
}

// Start creates a run in the created stage and emits run_started.
func (o *Orchestrator) Start(ctx context.Context, lectures []model.Lecture, opts model.RunOptions) (string, error) {
	if err := opts.Validate(); err != nil {
		return "", fmt.Errorf("invalid run options: %w", err)
	}
	if len(lectures) == 0 {
		return "", errors.New("no lectures to process")
	}

	o.mu.Lock()
	if o.rc != nil {
		id := o.rc.snap.RunID
		o.mu.Unlock()
		return "", fmt.Errorf("orchestrator already holds run %s", id)
	}
	runID := o.newID()
	now := o.now().UTC()
	o.rc = newRunContext(runID, lectures, opts, now)
	o.rc.emit(model.EventRunStarted, model.StageCreated, map[string]any{
		"lecture_count":   len(lectures),
		"total_questions": opts.TotalQuestions,
	}, now)
	o.mu.Unlock()

	o.logger.Info("run started", "run_id", runID, "lectures", len(lectures), "total_questions", opts.TotalQuestions)
	if err := o.checkpoint(ctx); err != nil {
		return runID, err
	}
	return runID, nil
}

// Run advances the run through every remaining stage. It returns nil once the
// run is completed, or once scoring completes when no exporter is configured.
// Cancellation between or inside stages leaves the run at its last barrier
// and returns the context error.
func (o *Orchestrator) Run(ctx context.Context) error {
	if !o.busy.TryLock() {
		return model.Wrap(model.ErrStageOrder, "", "run", "run already in progress", nil)
	}
	defer o.busy.Unlock()
	return o.drive(ctx)
}

// Resume loads runID from storage and continues from the stage after its last
// completed barrier. Terminal runs and runs interrupted mid-stage are not
// resumable.
func (o *Orchestrator) Resume(ctx context.Context, runID string) error {
	if o.deps.Storage == nil {
		return model.Wrap(model.ErrNotResumable, "", "resume", "no storage configured", nil)
	}
	if !o.busy.TryLock() {
		return model.Wrap(model.ErrStageOrder, "", "resume", "run already in progress", nil)
	}
	defer o.busy.Unlock()

	snap, err := o.deps.Storage.Load(ctx, runID)
	if err != nil {
		return fmt.Errorf("load run %s: %w", runID, err)
	}
	if snap.Stage.Terminal() {
		return model.Wrap(model.ErrNotResumable, snap.Stage, "resume", fmt.Sprintf("run %s is %s", runID, snap.Stage), nil)
	}
	if snap.Stage != model.StageCreated && snap.Stage != snap.LastCompleted {
		return model.Wrap(model.ErrNotResumable, snap.Stage, "resume",
			fmt.Sprintf("run %s was interrupted inside %s (last completed %s)", runID, snap.Stage, orNone(snap.LastCompleted)), nil)
	}

	o.mu.Lock()
	if o.rc != nil && o.rc.snap.RunID != runID && !o.rc.snap.Stage.Terminal() {
		held := o.rc.snap.RunID
		o.mu.Unlock()
		return fmt.Errorf("orchestrator already holds run %s", held)
	}
	o.rc = &RunContext{snap: snap}
	o.mu.Unlock()

	o.logger.Info("run resumed", "run_id", runID, "stage", snap.Stage, "last_completed", orNone(snap.LastCompleted))
	return o.drive(ctx)
}

// Export performs the guarded export of a run waiting at the scoring barrier
// and completes it. Once the run is completed it returns the recorded result
// with ErrAlreadyExported and writes nothing.
func (o *Orchestrator) Export(ctx context.Context) (model.ExportResult, error) {
	if !o.busy.TryLock() {
		return model.ExportResult{}, model.Wrap(model.ErrStageOrder, "", "export", "run already in progress", nil)
	}
	defer o.busy.Unlock()

	o.mu.Lock()
	if o.rc == nil {
		o.mu.Unlock()
		return model.ExportResult{}, errors.New("no run started")
	}
	snap := &o.rc.snap
	guard := CanExport(ExportContext{Stage: snap.Stage, LastCompleted: snap.LastCompleted, Exported: snap.Export != nil})
	var prior model.ExportResult
	if snap.Export != nil {
		prior = *snap.Export
	}
	stage := snap.Stage
	lang := snap.Options.Language
	o.mu.Unlock()

	if !guard.Allowed {
		if stage == model.StageCompleted || prior.SheetID != "" {
			return prior, model.ErrAlreadyExported
		}
		return model.ExportResult{}, model.Wrap(model.ErrStageOrder, stage, "export", guard.Reason, nil)
	}
	if o.deps.Exporter == nil {
		return model.ExportResult{}, errors.New("no exporter configured")
	}

	ctx = i18n.WithLanguage(ctx, lang)
	if err := o.advance(ctx, model.StageExporting, o.exportStage); err != nil {
		return model.ExportResult{}, err
	}
	if err := o.complete(ctx); err != nil {
		return model.ExportResult{}, err
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	return *o.rc.snap.Export, nil
}

// Snapshot returns a deep copy of the current run state.
func (o *Orchestrator) Snapshot() model.RunSnapshot {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.rc == nil {
		return model.RunSnapshot{}
	}
	return o.rc.clone()
}

func (o *Orchestrator) drive(ctx context.Context) error {
	o.mu.Lock()
	if o.rc == nil {
		o.mu.Unlock()
		return errors.New("no run started")
	}
	ctx = i18n.WithLanguage(ctx, o.rc.snap.Options.Language)
	o.mu.Unlock()

	for {
		o.mu.Lock()
		stage, last := o.rc.snap.Stage, o.rc.snap.LastCompleted
		failure := o.rc.snap.Failure
		o.mu.Unlock()

		switch {
		case stage == model.StageCompleted:
			return nil
		case stage == model.StageFailed:
			if failure != nil {
				return &model.StageError{Stage: failure.Stage, Reasons: failure.Reasons, Err: errors.New(failure.Error)}
			}
			return model.Wrap(model.ErrStageOrder, stage, "run", "run has failed", nil)
		case stage == model.StageScoring && last == model.StageScoring && o.deps.Exporter == nil:
			o.logger.Info("no exporter configured; run held at scoring barrier", "run_id", o.runID())
			return nil
		case stage == model.StageExporting && last == model.StageExporting:
			return o.complete(ctx)
		}

		next, ok := stage.Next()
		if !ok {
			return model.Wrap(model.ErrStageOrder, stage, "run", "no next stage", nil)
		}
		if err := o.advance(ctx, next, o.workFor(next)); err != nil {
			return err
		}
	}
}

// stageOutput is what a stage hands back to the orchestrator to merge. When
// work fails, apply still runs so the stage can record partial progress.
type stageOutput struct {
	apply    func(*model.RunSnapshot)
	payload  map[string]any
	warnings []string
}

type stageFunc func(ctx context.Context, in model.RunSnapshot) (stageOutput, error)

func (o *Orchestrator) workFor(stage model.Stage) stageFunc {
	switch stage {
	case model.StageClassifying:
		return o.classifyStage
	case model.StageSummarizing:
		return o.summarizeStage
	case model.StageGenerating:
		return o.generateStage
	case model.StageScoring:
		return o.scoreStage
	case model.StageExporting:
		return o.exportStage
	}
	return nil
}

// advance enters stage to, runs work on a copy of the run state and merges
// its output at the barrier.
func (o *Orchestrator) advance(ctx context.Context, to model.Stage, work stageFunc) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if work == nil {
		return model.Wrap(model.ErrStageOrder, to, "enter", "stage has no work", nil)
	}

	o.mu.Lock()
	from := o.rc.snap.Stage
	if guard := CanEnter(o.stageContextLocked(to)); !guard.Allowed {
		o.mu.Unlock()
		return model.Wrap(model.ErrStageOrder, to, "enter", guard.Reason, nil)
	}
	o.rc.snap.Stage = to
	o.rc.emit(model.StageEvent(to, model.SuffixStarted), to, nil, o.now().UTC())
	in := o.rc.clone()
	o.mu.Unlock()

	logger := o.logger.With("run_id", in.RunID, "stage", to)
	logger.Info("stage started")
	if err := o.checkpoint(ctx); err != nil {
		return err
	}

	started := o.now()
	out, err := work(ctx, in)
	if err != nil {
		if out.apply != nil {
			o.mu.Lock()
			out.apply(&o.rc.snap)
			o.mu.Unlock()
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			logger.Debug("stage interrupted", "error", err)
			return o.interrupt(ctx, from, to, ctxErr)
		}
		logger.Error("stage failed", "error", err)
		return o.fail(ctx, to, err)
	}

	o.mu.Lock()
	if out.apply != nil {
		out.apply(&o.rc.snap)
	}
	o.rc.warn(out.warnings...)
	o.rc.snap.LastCompleted = to
	o.rc.emit(model.StageEvent(to, model.SuffixCompleted), to, out.payload, o.now().UTC())
	o.mu.Unlock()

	logger.Info("stage completed", "stage_duration", o.now().Sub(started), "warnings", len(out.warnings))
	return o.checkpoint(ctx)
}

// complete moves an exported run to the completed stage.
func (o *Orchestrator) complete(ctx context.Context) error {
	o.mu.Lock()
	if guard := CanEnter(o.stageContextLocked(model.StageCompleted)); !guard.Allowed {
		o.mu.Unlock()
		return model.Wrap(model.ErrStageOrder, model.StageCompleted, "complete", guard.Reason, nil)
	}
	o.rc.snap.Stage = model.StageCompleted
	payload := map[string]any{"question_count": len(o.rc.snap.Questions)}
	if e := o.rc.snap.Export; e != nil {
		payload["sheet_id"] = e.SheetID
		payload["url"] = e.URL
	}
	o.rc.emit(model.EventRunCompleted, model.StageCompleted, payload, o.now().UTC())
	runID := o.rc.snap.RunID
	o.mu.Unlock()

	o.logger.Info("run completed", "run_id", runID)
	return o.checkpoint(ctx)
}

// interrupt rolls the run back to the barrier it left so it can resume.
func (o *Orchestrator) interrupt(ctx context.Context, from, to model.Stage, cause error) error {
	o.mu.Lock()
	o.rc.snap.Stage = from
	o.rc.warn(fmt.Sprintf("stage %s interrupted: %v", to, cause))
	o.rc.snap.UpdatedAt = o.now().UTC()
	o.mu.Unlock()
	if err := o.checkpoint(ctx); err != nil {
		return errors.Join(cause, err)
	}
	return cause
}

// fail records the failure, moves the run to the failed stage and returns
// the stage error.
func (o *Orchestrator) fail(ctx context.Context, stage model.Stage, err error) error {
	reasons := model.ReasonsOf(err)
	now := o.now().UTC()

	payload := map[string]any{
		"reasons": reasons,
		"error":   err.Error(),
	}

	o.mu.Lock()
	if id := o.rc.snap.CopiedSheetID; id != "" && stage == model.StageExporting {
		payload["sheet_id"] = id
	}
	o.rc.snap.Failure = &model.Failure{Stage: stage, Reasons: reasons, Error: err.Error()}
	o.rc.emit(model.StageEvent(stage, model.SuffixFailed), stage, payload, now)
	o.rc.snap.Stage = model.StageFailed
	o.rc.emit(model.EventRunFailed, model.StageFailed, map[string]any{"stage": string(stage)}, now)
	o.mu.Unlock()

	stageErr := &model.StageError{Stage: stage, Reasons: reasons, Err: err}
	if cpErr := o.checkpoint(ctx); cpErr != nil {
		return errors.Join(stageErr, cpErr)
	}
	return stageErr
}

// checkpoint saves the current state. It runs even when ctx is cancelled so
// that interruptions are recorded.
func (o *Orchestrator) checkpoint(ctx context.Context) error {
	if o.deps.Storage == nil {
		return nil
	}
	o.mu.Lock()
	snap := o.rc.clone()
	o.mu.Unlock()
	if err := o.deps.Storage.Save(context.WithoutCancel(ctx), snap.RunID, snap); err != nil {
		o.logger.Error("checkpoint failed", "run_id", snap.RunID, "stage", snap.Stage, "error", err)
		return fmt.Errorf("checkpoint run %s: %w", snap.RunID, err)
	}
	return nil
}

func (o *Orchestrator) runID() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.rc == nil {
		return ""
	}
	return o.rc.snap.RunID
}

func (o *Orchestrator) stageContextLocked(to model.Stage) StageContext {
	s := o.rc.snap
	sc := StageContext{
		From:          s.Stage,
		To:            to,
		LastCompleted: s.LastCompleted,
		LectureCount:  len(s.Lectures),
		PartCount:     len(s.Parts),
		SummaryCount:  len(s.Summaries),
	}
	if len(s.Parts) > 0 {
		sc.CoverageProblems = len(parts.ValidateParts(s.Parts, s.Lectures))
	}
	return sc
}

func (o *Orchestrator) classifyStage(ctx context.Context, in model.RunSnapshot) (stageOutput, error) {
	res, err := o.deps.Classifier.Classify(ctx, in.Lectures, in.Options)
	if err != nil {
		return stageOutput{}, err
	}
	if problems := parts.ValidateParts(res.Parts, in.Lectures); len(problems) > 0 {
		return stageOutput{}, &reasonsError{
			err:     model.Wrap(model.ErrSchemaValidation, model.StageClassifying, "validate parts", "parts do not cover every lecture exactly once", nil),
			reasons: problems,
		}
	}
	assigned, err := parts.Assign(in.Lectures, res.Parts)
	if err != nil {
		return stageOutput{}, err
	}

	return stageOutput{
		apply: func(s *model.RunSnapshot) {
			s.Parts = res.Parts
			s.Lectures = assigned
			s.FallbackUsed = res.FallbackUsed
		},
		payload: map[string]any{
			"part_count":    len(res.Parts),
			"fallback_used": res.FallbackUsed,
			"attempts":      res.Attempts,
		},
		warnings: res.Warnings,
	}, nil
}

func (o *Orchestrator) summarizeStage(ctx context.Context, in model.RunSnapshot) (stageOutput, error) {
	res, err := o.deps.Summarizer.Summarize(ctx, in.Parts, in.Lectures, in.Options)
	if err != nil {
		return stageOutput{}, err
	}
	estimates := make(map[string]int, len(res.Summaries))
	for _, s := range res.Summaries {
		estimates[s.PartCode] = s.TokenEstimate
	}
	return stageOutput{
		apply: func(s *model.RunSnapshot) {
			s.Summaries = res.Summaries
		},
		payload: map[string]any{
			"token_estimates": estimates,
			"fallback_parts":  res.FallbackParts,
		},
		warnings: res.Warnings,
	}, nil
}

func (o *Orchestrator) generateStage(ctx context.Context, in model.RunSnapshot) (stageOutput, error) {
	codes := make([]string, 0, len(in.Parts))
	for _, p := range in.Parts {
		codes = append(codes, p.Code)
	}
	quotas, err := allocate.Allocate(in.Options.TotalQuestions, codes)
	if err != nil {
		return stageOutput{}, err
	}

	res, err := o.deps.Generator.Generate(ctx, in.Summaries, quotas, in.Options)
	if err != nil {
		return stageOutput{}, err
	}
	return stageOutput{
		apply: func(s *model.RunSnapshot) {
			s.Quotas = []model.Quota(quotas)
			s.Questions = res.Questions
			s.Unmet = res.Unmet
		},
		payload: map[string]any{
			"quotas":             quotaMap(quotas),
			"questions_per_part": generate.QuestionsPerPart(res.Questions),
			"unmet_quotas":       res.Unmet,
			"rounds":             res.Rounds,
			"rejected":           res.Rejected,
		},
		warnings: res.Warnings,
	}, nil
}

func (o *Orchestrator) scoreStage(ctx context.Context, in model.RunSnapshot) (stageOutput, error) {
	res, err := o.deps.Scorer.Score(ctx, in.Questions, in.Summaries, in.Options)
	if err != nil {
		return stageOutput{}, err
	}
	return stageOutput{
		apply: func(s *model.RunSnapshot) {
			s.Questions = res.Questions
		},
		payload: map[string]any{
			"scored":   res.Scored,
			"unscored": res.Unscored,
		},
		warnings: res.Warnings,
	}, nil
}

func (o *Orchestrator) exportStage(ctx context.Context, in model.RunSnapshot) (stageOutput, error) {
	if err := export.Validate(in.Questions); err != nil {
		return stageOutput{}, err
	}
	rows := export.MapRows(in.Questions)
	var meta [][]string
	if in.Options.WriteMeta {
		meta = report.MetaRows(in.Parts, in.Questions)
	}

	target := export.TargetFor(in.RunID, in.Options, o.now())
	target.SheetID = in.CopiedSheetID
	result, err := o.deps.Exporter.Export(ctx, target, rows, meta)
	if err != nil {
		if result.SheetID == "" {
			return stageOutput{}, err
		}
		copied := result.SheetID
		return stageOutput{apply: func(s *model.RunSnapshot) { s.CopiedSheetID = copied }}, err
	}
	return stageOutput{
		apply: func(s *model.RunSnapshot) {
			s.ExportRows = rows
			s.Export = &result
			s.CopiedSheetID = ""
		},
		payload: map[string]any{
			"row_count": result.RowCount,
			"sheet_id":  result.SheetID,
			"url":       result.URL,
		},
	}, nil
}

// reasonsError attaches an itemized reason list to err.
type reasonsError struct {
	err     error
	reasons []string
}

func (e *reasonsError) Error() string     { return e.err.Error() }
func (e *reasonsError) Unwrap() error     { return e.err }
func (e *reasonsError) Reasons() []string { return e.reasons }

func quotaMap(q allocate.Quotas) map[string]int {
	out := make(map[string]int, len(q))
	for _, quota := range q {
		out[quota.PartCode] = quota.Count
	}
	return out
}
