package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/pavelanni/quizen/internal/export"
	appI18n "github.com/pavelanni/quizen/internal/i18n"
	"github.com/pavelanni/quizen/internal/model"
	"github.com/pavelanni/quizen/internal/report"
	"github.com/pavelanni/quizen/internal/store"
)

func inspectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inspect [RUN_ID]",
		Short: "Show the review report of a stored run (default: the last run)",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runInspect,
	}
	f := cmd.Flags()
	f.Bool("events", false, "Also list the event log")
	f.Bool("validate", false, "Re-run export validation over the stored questions")
	f.Bool("json", false, "Print the report as JSON")
	f.StringP("lang", "l", "en", "Label language (en, ko)")

	f.Bool("questions", false, "List the questions matching the filters instead of the report")
	f.String("part", "", "Only questions of this part name")
	f.String("question-type", "", "Only this question type (single_choice, true_false, 1, 3)")
	f.Float64("min-score", 0, "Only questions scored at least this")
	f.Bool("style-only", false, "Only questions with style flags")
	f.String("search", "", "Only questions whose text or explanation contains this")
	f.String("sort-by", "", "Sort by part, difficulty or validity")
	f.Bool("desc", false, "Sort descending")
	addCommonFlags(f)
	return cmd
}

func runsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List stored runs",
		Args:  cobra.NoArgs,
		RunE:  runRuns,
	}
	addCommonFlags(cmd.Flags())
	return cmd
}

func runInspect(cmd *cobra.Command, args []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)
	ctx := cmd.Context()
	initLanguage(v.GetString("lang"))

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	runID := ""
	if len(args) == 1 {
		runID = args[0]
	} else if runID, err = db.LastRun(ctx); err != nil {
		return fmt.Errorf("read last run: %w", err)
	}
	if runID == "" {
		return errors.New("no run id given and no run recorded yet")
	}

	snap, err := db.Load(ctx, runID)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	if v.GetBool("questions") {
		query, err := questionQuery(cmd.Flags())
		if err != nil {
			return err
		}
		matches := report.FindQuestions(snap.Questions, query)
		if v.GetBool("json") {
			return encodeJSON(out, matches)
		}
		renderQuestions(out, matches)
		return nil
	}

	rep := report.Build(snap)
	if v.GetBool("json") {
		return encodeJSON(out, rep)
	}

	renderReport(out, rep)
	if v.GetBool("events") {
		fmt.Fprintln(out)
		renderEvents(out, snap.Events)
	}
	if v.GetBool("validate") {
		fmt.Fprintln(out)
		return renderValidation(out, snap.Questions)
	}
	return nil
}

func runRuns(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	runs, err := db.ListRuns(cmd.Context())
	if err != nil {
		return fmt.Errorf("list runs: %w", err)
	}
	out := cmd.OutOrStdout()
	if len(runs) == 0 {
		fmt.Fprintln(out, "no runs stored")
		return nil
	}
	rows := make([][]string, 0, len(runs))
	for _, r := range runs {
		rows = append(rows, []string{
			r.RunID,
			stageLabel(r.Stage, shouldColorize(out)),
			strconv.Itoa(r.Questions),
			r.CreatedAt.Local().Format("2006-01-02 15:04"),
			r.UpdatedAt.Local().Format("2006-01-02 15:04"),
		})
	}
	fmt.Fprintln(out, renderTable(
		[]string{"Run", "Stage", "Questions", "Created", "Updated"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignRight, alignLeft, alignLeft},
	))
	return nil
}

func renderReport(out io.Writer, rep report.Report) {
	ctx := context.Background()
	colorize := shouldColorize(out)

	fmt.Fprintf(out, "%s  %s  %s\n",
		rep.RunID,
		stageLabel(rep.Stage, colorize),
		appI18n.Tp(ctx, "QuestionsCount", rep.TotalQuestions),
	)

	rows := make([][]string, 0, len(rep.Parts)+1)
	for _, p := range rep.Parts {
		avg := "-"
		if p.Scored > 0 {
			avg = strconv.FormatFloat(p.Average, 'f', 1, 64)
		}
		fallback := ""
		if p.SummaryFallback {
			fallback = "yes"
		}
		rows = append(rows, []string{
			p.PartName,
			strconv.Itoa(p.Quota),
			strconv.Itoa(p.Questions),
			avg,
			strconv.Itoa(p.NeedsReview),
			fallback,
		})
	}
	rows = append(rows, []string{
		appI18n.T(ctx, "ReportTotal"),
		strconv.Itoa(rep.TotalQuota),
		strconv.Itoa(rep.TotalQuestions),
		"",
		strconv.Itoa(len(rep.NeedsReview)),
		"",
	})
	fmt.Fprintln(out, renderTable(
		[]string{
			appI18n.T(ctx, "ReportPart"),
			appI18n.T(ctx, "ReportQuota"),
			appI18n.T(ctx, "ReportQuestions"),
			appI18n.T(ctx, "ReportAverage"),
			appI18n.T(ctx, "ReportNeedsReview"),
			appI18n.T(ctx, "ReportFallback"),
		},
		rows,
		[]columnAlignment{alignLeft, alignRight, alignRight, alignRight, alignRight, alignLeft},
	))

	if rep.FallbackUsed {
		fmt.Fprintln(out, warnText("parts were split without the LLM", colorize))
	}
	if rep.Unscored > 0 {
		fmt.Fprintf(out, "%s: %d\n", appI18n.T(ctx, "ReportUnscored"), rep.Unscored)
	}
	for _, s := range rep.Unmet {
		fmt.Fprintf(out, "%s: %s %d/%d\n", appI18n.T(ctx, "ReportUnmet"), s.PartCode, s.Yield, s.Quota)
	}
	for _, fc := range rep.SortedFlags() {
		fmt.Fprintf(out, "flag %s: %d\n", fc.Flag, fc.Count)
	}
	if len(rep.NeedsReview) > 0 {
		review := make([][]string, 0, len(rep.NeedsReview))
		for _, item := range rep.NeedsReview {
			sc := "-"
			if item.Score != nil {
				sc = strconv.Itoa(*item.Score)
			}
			review = append(review, []string{strconv.Itoa(item.Index + 1), item.PartName, sc, truncate(item.Text, 60), strings.Join(item.Flags, ", ")})
		}
		fmt.Fprintln(out, renderTable([]string{"#", "Part", "Score", "Question", "Flags"}, review,
			[]columnAlignment{alignRight, alignLeft, alignRight, alignLeft, alignLeft}))
	}
	for _, w := range rep.Warnings {
		fmt.Fprintln(out, warnText(w, colorize))
	}
	if rep.Failure != nil {
		fmt.Fprintln(out, errorText(fmt.Sprintf("failed in %s: %s", rep.Failure.Stage, strings.Join(rep.Failure.Reasons, "; ")), colorize))
	}
}

func renderEvents(out io.Writer, events []model.Event) {
	rows := make([][]string, 0, len(events))
	for _, ev := range events {
		payload := ""
		if len(ev.Payload) > 0 {
			if raw, err := json.Marshal(ev.Payload); err == nil {
				payload = truncate(string(raw), 80)
			}
		}
		rows = append(rows, []string{strconv.Itoa(ev.Seq), ev.Timestamp.Local().Format("15:04:05"), ev.Name, payload})
	}
	fmt.Fprintln(out, renderTable([]string{"Seq", "Time", "Event", "Payload"}, rows,
		[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft}))
}

// questionQuery reads the question filters. min-score only applies when
// given on the command line.
func questionQuery(f *pflag.FlagSet) (report.QuestionQuery, error) {
	var q report.QuestionQuery
	q.PartName, _ = f.GetString("part")
	q.Search, _ = f.GetString("search")
	q.SortBy, _ = f.GetString("sort-by")
	q.StyleOnly, _ = f.GetBool("style-only")
	q.Desc, _ = f.GetBool("desc")
	if v, _ := f.GetString("question-type"); v != "" {
		t, ok := model.ParseQuestionType(v)
		if !ok {
			return q, fmt.Errorf("invalid question type %q", v)
		}
		q.Type = t
	}
	if f.Changed("min-score") {
		score, _ := f.GetFloat64("min-score")
		q.MinScore = &score
	}
	return q, q.Validate()
}

func renderQuestions(out io.Writer, matches []report.QuestionMatch) {
	if len(matches) == 0 {
		fmt.Fprintln(out, "no matching questions")
		return
	}
	rows := make([][]string, 0, len(matches))
	for _, m := range matches {
		sc := "-"
		if m.ValidityScore != nil {
			sc = strconv.Itoa(*m.ValidityScore)
		}
		rows = append(rows, []string{
			strconv.Itoa(m.Index + 1),
			m.PartName,
			m.Type.String(),
			strconv.Itoa(m.Difficulty),
			sc,
			truncate(m.Text, 60),
			strings.Join(m.StyleViolationFlags, ", "),
		})
	}
	fmt.Fprintln(out, renderTable(
		[]string{"#", "Part", "Type", "Difficulty", "Score", "Question", "Flags"},
		rows,
		[]columnAlignment{alignRight, alignLeft, alignLeft, alignRight, alignRight, alignLeft, alignLeft},
	))
}

func encodeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// renderValidation prints the export validation result. The run is not
// changed.
func renderValidation(out io.Writer, questions []model.Question) error {
	colorize := shouldColorize(out)
	err := export.Validate(questions)
	if err == nil {
		fmt.Fprintln(out, okText(fmt.Sprintf("%d questions pass export validation", len(questions)), colorize))
		return nil
	}
	var verr *export.ValidationError
	if !errors.As(err, &verr) {
		return err
	}
	for _, reason := range verr.Reasons() {
		fmt.Fprintln(out, errorText(reason, colorize))
	}
	return err
}

type columnAlignment int

const (
	alignLeft columnAlignment = iota
	alignRight
)

func renderTable(headers []string, rows [][]string, aligns []columnAlignment) string {
	columns := len(headers)
	if columns == 0 {
		return ""
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)

	header := make(table.Row, columns)
	for i := range columns {
		header[i] = headers[i]
	}
	tw.AppendHeader(header)

	for _, row := range rows {
		r := make(table.Row, columns)
		for i := range columns {
			if i < len(row) {
				r[i] = row[i]
			} else {
				r[i] = ""
			}
		}
		tw.AppendRow(r)
	}

	columnConfigs := make([]table.ColumnConfig, 0, columns)
	for i := range columns {
		align := text.AlignLeft
		if i < len(aligns) && aligns[i] == alignRight {
			align = text.AlignRight
		}
		columnConfigs = append(columnConfigs, table.ColumnConfig{
			Number:      i + 1,
			Align:       align,
			AlignHeader: text.AlignLeft,
		})
	}
	tw.SetColumnConfigs(columnConfigs)

	return tw.Render()
}

// stageLabel title-cases a stage and colors it by outcome.
func stageLabel(stage model.Stage, colorize bool) string {
	label := cases.Title(language.Und).String(string(stage))
	if !colorize {
		return label
	}
	switch stage {
	case model.StageCompleted:
		return color.New(color.FgGreen).Sprint(label)
	case model.StageFailed:
		return color.New(color.FgRed).Sprint(label)
	default:
		return color.New(color.FgYellow).Sprint(label)
	}
}

func okText(s string, colorize bool) string {
	if !colorize {
		return s
	}
	return color.New(color.FgGreen).Sprint(s)
}

func warnText(s string, colorize bool) string {
	if !colorize {
		return "warning: " + s
	}
	return color.New(color.FgYellow).Sprint("warning: " + s)
}

func errorText(s string, colorize bool) string {
	if !colorize {
		return "error: " + s
	}
	return color.New(color.FgRed).Sprint("error: " + s)
}

func shouldColorize(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
