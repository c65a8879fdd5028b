package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pavelanni/quizen/internal/config"
	"github.com/pavelanni/quizen/internal/model"
	"github.com/pavelanni/quizen/internal/store"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := rootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func writeSubtitles(t *testing.T, dir string, names ...string) {
	t.Helper()
	for _, name := range names {
		body := "1\n00:00:01,000 --> 00:00:02,000\nWelcome to " + name + "\n"
		if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
	}
}

func TestConfigFromDefaults(t *testing.T) {
	cmd := runCmd()
	v := viperForCmd(cmd)
	cfg := configFrom(v)
	def := config.Default()
	if cfg.RunOptions() != def.RunOptions() {
		t.Errorf("run options = %+v, want %+v", cfg.RunOptions(), def.RunOptions())
	}
	if cfg.LLMURL != def.LLMURL || cfg.DB != def.DB {
		t.Errorf("cfg = %+v", cfg)
	}
}

func TestRunHeldThenInspect(t *testing.T) {
	dir := t.TempDir()
	srt := filepath.Join(dir, "srt")
	if err := os.Mkdir(srt, 0o755); err != nil {
		t.Fatal(err)
	}
	writeSubtitles(t, srt, "001 L01 Intro.srt", "002 L02 Cues.srt", "003 L03 Timing.srt")
	db := filepath.Join(dir, "quizen.db")

	out, err := execute(t, "run", "--srt-dir", srt, "--db", db, "--llm-url", "", "--no-export", "--total", "3")
	if err != nil {
		t.Fatalf("run: %v\n%s", err, out)
	}
	if !strings.Contains(out, "run ") {
		t.Errorf("run output = %s", out)
	}

	s, err := store.New(db)
	if err != nil {
		t.Fatal(err)
	}
	runID, err := s.LastRun(context.Background())
	if err != nil || runID == "" {
		t.Fatalf("LastRun = %q, %v", runID, err)
	}
	snap, err := s.Load(context.Background(), runID)
	s.Close()
	if err != nil {
		t.Fatal(err)
	}
	if snap.Stage != model.StageScoring || snap.LastCompleted != model.StageScoring {
		t.Errorf("stage = %s/%s, want held at scoring", snap.Stage, snap.LastCompleted)
	}
	if !snap.FallbackUsed || len(snap.Parts) != 1 {
		t.Errorf("parts = %+v, fallback = %v", snap.Parts, snap.FallbackUsed)
	}

	out, err = execute(t, "inspect", "--db", db, "--events")
	if err != nil {
		t.Fatalf("inspect: %v", err)
	}
	for _, want := range []string{runID, "Scoring", "run_started", "scoring_completed"} {
		if !strings.Contains(out, want) {
			t.Errorf("inspect output missing %q:\n%s", want, out)
		}
	}

	out, err = execute(t, "runs", "--db", db)
	if err != nil || !strings.Contains(out, runID) {
		t.Errorf("runs = %v\n%s", err, out)
	}

	// Without an LLM the bank is empty, so exporting fails validation.
	sheets := filepath.Join(dir, "sheets")
	out, err = execute(t, "resume", runID, "--db", db, "--llm-url", "", "--sheet-dir", sheets)
	if err == nil {
		t.Fatalf("expected export validation failure\n%s", out)
	}
	if !strings.Contains(out, "error: failed in exporting") {
		t.Errorf("resume output = %s", out)
	}
}

func TestInspectQuestions(t *testing.T) {
	db := filepath.Join(t.TempDir(), "quizen.db")
	s, err := store.New(db)
	if err != nil {
		t.Fatal(err)
	}
	score := 75
	snap := model.RunSnapshot{
		RunID:         "run-q",
		Stage:         model.StageScoring,
		LastCompleted: model.StageScoring,
		Options:       model.DefaultRunOptions(),
		Questions: []model.Question{
			{Difficulty: 3, Type: model.SingleChoice, Text: "Which tool formats Go code?", Explanation: "gofmt.",
				Answer: 1, Options: []string{"gofmt", "vet", "lint", "mod"}, PartName: "PART.01 Tools"},
			{Difficulty: 2, Type: model.TrueFalse, Text: "Maps are ordered.", Explanation: "Iteration order is random.",
				Answer: model.AnswerFalse, PartName: "PART.01 Tools", ValidityScore: &score},
		},
	}
	err = s.Save(context.Background(), snap.RunID, snap)
	s.Close()
	if err != nil {
		t.Fatal(err)
	}

	out, err := execute(t, "inspect", "run-q", "--db", db, "--questions", "--question-type", "true_false")
	if err != nil {
		t.Fatalf("inspect --questions: %v", err)
	}
	if !strings.Contains(out, "Maps are ordered.") || strings.Contains(out, "formats Go code") {
		t.Errorf("type filter output:\n%s", out)
	}

	out, err = execute(t, "inspect", "run-q", "--db", db, "--questions", "--min-score", "80")
	if err != nil || !strings.Contains(out, "no matching questions") {
		t.Errorf("min-score output = %v\n%s", err, out)
	}

	if _, err := execute(t, "inspect", "run-q", "--db", db, "--questions", "--sort-by", "length"); err == nil {
		t.Error("expected error for unknown sort key")
	}
}

func TestConfigInit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "quizen.toml")
	out, err := execute(t, "config", "init", path)
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	if !strings.Contains(out, "wrote "+path) {
		t.Errorf("output = %s", out)
	}
	if _, err := execute(t, "config", "init", path); err == nil {
		t.Error("expected error for existing file")
	}
	if _, err := execute(t, "config", "init", "--force", path); err != nil {
		t.Errorf("forced init: %v", err)
	}
}

func TestOperatorCommands(t *testing.T) {
	db := filepath.Join(t.TempDir(), "quizen.db")
	if _, err := execute(t, "operator", "add", "ops", "--db", db); err == nil {
		t.Error("expected error without a password")
	}
	if _, err := execute(t, "operator", "add", "ops", "--password", "pw", "--db", db); err != nil {
		t.Fatalf("operator add: %v", err)
	}
	if _, err := execute(t, "operator", "disable", "ops", "--db", db); err != nil {
		t.Fatalf("operator disable: %v", err)
	}
	out, err := execute(t, "operator", "list", "--db", db)
	if err != nil || !strings.Contains(out, "ops") || !strings.Contains(out, "false") {
		t.Errorf("operator list = %v\n%s", err, out)
	}
	if _, err := execute(t, "operator", "disable", "nobody", "--db", db); err == nil {
		t.Error("expected error for unknown operator")
	}
}

func TestLockRun(t *testing.T) {
	db := filepath.Join(t.TempDir(), "quizen.db")
	first, err := lockRun(db, "run-1")
	if err != nil {
		t.Fatalf("first lock: %v", err)
	}
	defer first.Unlock()
	if _, err := lockRun(db, "run-1"); err == nil {
		t.Error("expected second lock on the same run to fail")
	}
	other, err := lockRun(db, "run-2")
	if err != nil {
		t.Fatalf("lock on another run: %v", err)
	}
	other.Unlock()
}

func TestStageLabelAndTruncate(t *testing.T) {
	if got := stageLabel(model.StageGenerating, false); got != "Generating" {
		t.Errorf("stageLabel = %q", got)
	}
	if got := truncate("abcdef", 4); got != "abc…" {
		t.Errorf("truncate = %q", got)
	}
	if got := truncate("abc", 4); got != "abc" {
		t.Errorf("truncate short = %q", got)
	}
}
