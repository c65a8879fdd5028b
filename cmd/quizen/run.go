package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"google.golang.org/api/option"

	"github.com/pavelanni/quizen/internal/catalog"
	"github.com/pavelanni/quizen/internal/config"
	"github.com/pavelanni/quizen/internal/export"
	"github.com/pavelanni/quizen/internal/generate"
	"github.com/pavelanni/quizen/internal/gsuite"
	appI18n "github.com/pavelanni/quizen/internal/i18n"
	"github.com/pavelanni/quizen/internal/llm"
	"github.com/pavelanni/quizen/internal/llm/prompts"
	"github.com/pavelanni/quizen/internal/model"
	"github.com/pavelanni/quizen/internal/parts"
	"github.com/pavelanni/quizen/internal/pipeline"
	"github.com/pavelanni/quizen/internal/report"
	"github.com/pavelanni/quizen/internal/score"
	"github.com/pavelanni/quizen/internal/sheetfile"
	"github.com/pavelanni/quizen/internal/store"
	"github.com/pavelanni/quizen/internal/summarize"
)

func runCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Build a question bank from a folder of subtitles",
		Args:  cobra.NoArgs,
		RunE:  runRun,
	}
	f := cmd.Flags()
	f.String("srt-dir", "", "Local directory of .srt files")
	f.String("drive-folder", "", "Google Drive folder id of .srt files")
	f.Bool("no-export", false, "Stop at the scoring barrier; export later with resume")
	addPipelineFlags(f)
	addCommonFlags(f)
	cmd.MarkFlagsMutuallyExclusive("srt-dir", "drive-folder")
	cmd.MarkFlagsOneRequired("srt-dir", "drive-folder")
	return cmd
}

func resumeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "resume RUN_ID",
		Short: "Continue a stored run from its last completed stage",
		Args:  cobra.ExactArgs(1),
		RunE:  runResume,
	}
	f := cmd.Flags()
	f.Bool("no-export", false, "Stop at the scoring barrier")
	addPipelineFlags(f)
	addCommonFlags(f)
	return cmd
}

// addPipelineFlags registers the LLM, run option and export flags.
func addPipelineFlags(f *pflag.FlagSet) {
	def := config.Default()
	f.String("llm-url", def.LLMURL, "OpenAI-compatible API base URL (empty runs without an LLM)")
	f.String("llm-key", def.LLMKey, "API key for LLM")
	f.String("llm-model", def.LLMModel, "LLM model name")
	f.String("llm-timeout", def.LLMTimeout, "Per-request LLM timeout")

	f.IntP("total", "n", def.Total, "Number of questions in the bank")
	f.IntP("difficulty", "d", def.Difficulty, "Question difficulty (1..5)")
	f.Bool("true-false", def.TrueFalse, "Allow true/false questions")
	f.Int("group-size", def.GroupSize, "Target lectures per part")
	f.Int("score-threshold", def.ScoreThreshold, "Scores below this need review")
	f.Int("supplemental-rounds", def.SupplementalRounds, "Extra generation rounds for short parts")
	f.Int("concurrency", def.Concurrency, "Parallel LLM requests")
	f.String("rubric", def.Rubric, "Scoring rubric variant (strict, standard, lenient)")
	f.String("purpose", def.Purpose, "Purpose of the question bank")
	f.StringP("lang", "l", def.Lang, "Question and label language (en, ko)")

	f.String("template", def.Template, "Template spreadsheet id (or CSV template directory with --sheet-dir)")
	f.String("folder", def.Folder, "Destination Drive folder id (or directory with --sheet-dir)")
	f.String("copy-name", def.CopyName, "Name of the exported copy")
	f.String("sheet-name", def.SheetName, "Tab receiving the question rows")
	f.Bool("meta", def.Meta, "Write the part mapping tab")
	f.String("meta-sheet-name", def.MetaSheetName, "Name of the part mapping tab")
	f.String("sheet-dir", def.SheetDir, "Export to local CSV workbooks under this directory")
	f.String("google-credentials", def.GoogleCredentials, "Service account JSON for Drive and Sheets")
}

func runRun(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)
	cfg := configFrom(v)
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	initLanguage(cfg.Lang)

	db, err := store.New(cfg.DB)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	noExport := v.GetBool("no-export")
	var google *gsuite.Client
	if v.GetString("drive-folder") != "" || (!noExport && cfg.SheetDir == "") {
		google, err = newGoogleClient(ctx, cfg)
		if err != nil {
			return err
		}
	}

	var (
		lectures []model.Lecture
		warnings []string
	)
	if dir := v.GetString("srt-dir"); dir != "" {
		lectures, warnings, err = catalog.ScanDir(dir)
	} else {
		lectures, warnings, err = gsuite.NewDriveSource(google).Lectures(ctx, v.GetString("drive-folder"))
	}
	if err != nil {
		return fmt.Errorf("list lectures: %w", err)
	}
	for _, w := range warnings {
		slog.Warn("catalog warning", "warning", w)
	}
	slog.Info("lectures found", "count", len(lectures))

	orch, err := newOrchestrator(cfg, db, google, noExport)
	if err != nil {
		return err
	}
	runID, err := orch.Start(ctx, lectures, cfg.RunOptions())
	if err != nil {
		return err
	}
	lock, err := lockRun(cfg.DB, runID)
	if err != nil {
		return err
	}
	defer lock.Unlock()
	if err := db.SetLastRun(ctx, runID); err != nil {
		slog.Warn("record last run", "run_id", runID, "error", err)
	}

	runErr := orch.Run(ctx)
	printRunOutcome(cmd, orch.Snapshot())
	return runErr
}

func runResume(cmd *cobra.Command, args []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)
	cfg := configFrom(v)
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	initLanguage(cfg.Lang)
	runID := args[0]

	db, err := store.New(cfg.DB)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	lock, err := lockRun(cfg.DB, runID)
	if err != nil {
		return err
	}
	defer lock.Unlock()

	noExport := v.GetBool("no-export")
	var google *gsuite.Client
	if cfg.GoogleCredentials != "" || (!noExport && cfg.SheetDir == "") {
		google, err = newGoogleClient(ctx, cfg)
		if err != nil {
			return err
		}
	}
	orch, err := newOrchestrator(cfg, db, google, noExport)
	if err != nil {
		return err
	}
	if err := db.SetLastRun(ctx, runID); err != nil {
		slog.Warn("record last run", "run_id", runID, "error", err)
	}

	runErr := orch.Resume(ctx, runID)
	if errors.Is(runErr, model.ErrNotResumable) {
		return runErr
	}
	printRunOutcome(cmd, orch.Snapshot())
	return runErr
}

func initLanguage(lang string) {
	if lang == "" || !appI18n.Supported(lang) {
		slog.Warn("unsupported language, using en", "lang", lang)
		lang = "en"
	}
	if err := appI18n.Init(lang); err != nil {
		slog.Error("init i18n", "error", err)
	}
}

func newGoogleClient(ctx context.Context, cfg config.Config) (*gsuite.Client, error) {
	var opts []option.ClientOption
	if cfg.GoogleCredentials != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.GoogleCredentials))
	}
	c, err := gsuite.New(ctx, slog.Default(), opts...)
	if err != nil {
		return nil, fmt.Errorf("create google client: %w", err)
	}
	return c, nil
}

// newOrchestrator wires the stages. An empty LLM URL leaves every stage on
// its deterministic fallback.
func newOrchestrator(cfg config.Config, db *store.Store, google *gsuite.Client, noExport bool) (*pipeline.Orchestrator, error) {
	logger := slog.Default()

	var invoker llm.Invoker
	var set *prompts.Set
	if cfg.LLMURL != "" {
		invoker = llm.New(cfg.LLMURL, cfg.LLMKey, cfg.LLMModel, cfg.Timeout())
		var err error
		set, err = prompts.Builtin()
		if err != nil {
			return nil, fmt.Errorf("load prompts: %w", err)
		}
		slog.Info("LLM configured", "url", cfg.LLMURL, "model", cfg.LLMModel)
	} else {
		slog.Warn("no LLM configured, every stage uses its fallback")
	}

	deps := pipeline.Deps{
		Classifier: parts.NewClassifier(invoker, set, logger),
		Summarizer: summarize.New(invoker, set, lectureSource{google: google}, logger),
		Generator:  generate.New(invoker, set, logger),
		Scorer:     score.New(invoker, set, logger),
		Storage:    db,
	}
	if !noExport {
		var sheet export.Spreadsheet
		switch {
		case cfg.SheetDir != "":
			sheet = sheetfile.New(cfg.SheetDir, cfg.SheetName)
		case google != nil:
			sheet = google
		default:
			return nil, errors.New("no spreadsheet backend: set --sheet-dir or Google credentials")
		}
		deps.Exporter = export.NewExporter(sheet, export.WithLogger(logger))
	}
	return pipeline.New(deps, pipeline.WithLogger(logger)), nil
}

// lectureSource reads local files and falls back to Drive for lectures whose
// path is a Drive file id.
type lectureSource struct {
	google *gsuite.Client
}

func (s lectureSource) Text(ctx context.Context, lecture model.Lecture) (string, error) {
	if _, err := os.Stat(lecture.FilePath); err == nil || s.google == nil {
		return catalog.FileSource{}.Text(ctx, lecture)
	}
	return gsuite.NewDriveSource(s.google).Text(ctx, lecture)
}

func printRunOutcome(cmd *cobra.Command, snap model.RunSnapshot) {
	out := cmd.OutOrStdout()
	rep := report.Build(snap)
	renderReport(out, rep)
	if snap.Export != nil {
		fmt.Fprintf(out, "\nexported %d rows: %s\n", len(snap.ExportRows), snap.Export.URL)
	}
	fmt.Fprintf(out, "run %s\n", snap.RunID)
}
