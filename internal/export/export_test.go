package export_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/pavelanni/quizen/internal/export"
	"github.com/pavelanni/quizen/internal/export/exporttest"
	"github.com/pavelanni/quizen/internal/model"
)

func validQuestions() []model.Question {
	return []model.Question{
		{Difficulty: 2, Type: model.SingleChoice, Text: "Pick", Explanation: "e1", Answer: 3, Options: []string{"a", "b", "c", "d"}, PartName: "PART.01 A"},
		{Difficulty: 4, Type: model.TrueFalse, Text: "True?", Explanation: "e2", Answer: 2, PartName: "PART.02 B"},
	}
}

func TestValidateAllOrNothing(t *testing.T) {
	if err := export.Validate(validQuestions()); err != nil {
		t.Fatalf("Validate(valid) = %v", err)
	}

	qs := validQuestions()
	qs = append(qs, qs[0].Clone(), qs[1].Clone())
	qs[2].Options = qs[2].Options[:3]
	qs[3].Answer = 3
	qs[3].PartName = ""

	err := export.Validate(qs)
	if !errors.Is(err, model.ErrExportValidation) {
		t.Fatalf("expected ErrExportValidation, got %v", err)
	}
	var verr *export.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected *ValidationError, got %T", err)
	}
	if len(verr.Items) != 2 || verr.Items[0].Row != 5 || verr.Items[1].Row != 6 {
		t.Fatalf("items = %+v", verr.Items)
	}
	reasons := verr.Reasons()
	if len(reasons) != 3 {
		t.Fatalf("reasons = %v", reasons)
	}
	if !strings.HasPrefix(reasons[0], "Row 5: single choice needs 4 options") {
		t.Errorf("reason 0 = %q", reasons[0])
	}
	if got := model.ReasonsOf(err); len(got) != 3 {
		t.Errorf("ReasonsOf = %v", got)
	}
}

func TestValidateEmpty(t *testing.T) {
	err := export.Validate(nil)
	if !errors.Is(err, model.ErrExportValidation) || !strings.Contains(err.Error(), "no questions") {
		t.Errorf("Validate(nil) = %v", err)
	}
}

func TestMapRows(t *testing.T) {
	rows := export.MapRows(validQuestions())
	got := export.Cells(rows)
	want := [][]string{
		{"2", "1", "Pick", "e1", "3", "a", "b", "c", "d"},
		{"4", "3", "True?", "e2", "2", "", "", "", ""},
	}
	for i := range want {
		if strings.Join(got[i], "|") != strings.Join(want[i], "|") {
			t.Errorf("row %d = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestExport(t *testing.T) {
	fake := exporttest.New()
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	e := export.NewExporter(fake, export.WithClock(func() time.Time { return now }))
	target := export.TargetFor("0123456789abcdef", model.DefaultRunOptions(), now)
	meta := [][]string{{"part_code"}, {"PART.01"}}

	res, err := e.Export(context.Background(), target, export.MapRows(validQuestions()), meta)
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if res.SheetID != "sheet-1" || res.RowCount != 2 || !res.ExportedAt.Equal(now) {
		t.Errorf("result = %+v", res)
	}
	if !strings.HasSuffix(res.URL, "sheet-1") {
		t.Errorf("URL = %q", res.URL)
	}
	sheet := fake.Sheets[0]
	if sheet.Name != "quizen 2026-03-01 01234567" {
		t.Errorf("copy name = %q", sheet.Name)
	}
	if sheet.StartRow != export.FirstDataRow || len(sheet.Rows["Sheet1"]) != 2 {
		t.Errorf("rows written at %d: %v", sheet.StartRow, sheet.Rows)
	}
	if len(sheet.Meta) != 2 {
		t.Errorf("meta = %v", sheet.Meta)
	}
}

func TestExportHeaderPrecondition(t *testing.T) {
	fake := exporttest.New()
	fake.Header = fake.Header[:8]
	e := export.NewExporter(fake)
	_, err := e.Export(context.Background(), export.Target{SheetName: "Sheet1"}, export.MapRows(validQuestions()), nil)
	if !errors.Is(err, model.ErrExportValidation) {
		t.Fatalf("expected ErrExportValidation, got %v", err)
	}
	if len(fake.Sheets[0].Rows) != 0 {
		t.Error("rows must not be written when the header check fails")
	}
}

func TestExportMetaFailureIsNotFatal(t *testing.T) {
	fake := exporttest.New()
	fake.FailMeta = errors.New("no such tab")
	target := export.Target{SheetName: "Sheet1", WriteMeta: true, MetaSheetName: "quizen_meta"}
	if _, err := export.NewExporter(fake).Export(context.Background(), target, export.MapRows(validQuestions()), [][]string{{"x"}}); err != nil {
		t.Fatalf("Export: %v", err)
	}
}

func TestExportReusesCopiedSheet(t *testing.T) {
	fake := exporttest.New()
	fake.FailWrite = errors.New("rate limited")
	e := export.NewExporter(fake)
	target := export.Target{SheetName: "Sheet1"}
	rows := export.MapRows(validQuestions())

	res, err := e.Export(context.Background(), target, rows, nil)
	if err == nil || !strings.Contains(err.Error(), "sheet-1") {
		t.Fatalf("Export() error = %v, want it to name sheet-1", err)
	}
	if res.SheetID != "sheet-1" || res.URL != "" {
		t.Fatalf("partial result = %+v", res)
	}

	fake.FailWrite = nil
	target.SheetID = res.SheetID
	res, err = e.Export(context.Background(), target, rows, nil)
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if fake.Copies() != 1 || res.SheetID != "sheet-1" {
		t.Errorf("copies = %d, sheet = %s", fake.Copies(), res.SheetID)
	}
	if len(fake.Sheets[0].Rows["Sheet1"]) != 2 {
		t.Errorf("rows = %v", fake.Sheets[0].Rows)
	}
}

func TestCheckHeader(t *testing.T) {
	tests := []struct {
		name     string
		header   []string
		expected []string
		contains string
	}{
		{"ok", exporttest.DefaultHeader, nil, ""},
		{"ok with labels", exporttest.DefaultHeader, []string{"Difficulty", "TYPE"}, ""},
		{"short", []string{"a"}, nil, "has 1 columns"},
		{"blank cell", []string{"a", "b", "", "d", "e", "f", "g", "h", "i"}, nil, "C2 is empty"},
		{"label mismatch", exporttest.DefaultHeader, []string{"level"}, `A2 is "difficulty"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := export.CheckHeader(tt.header, tt.expected)
			if tt.contains == "" && got != "" {
				t.Errorf("CheckHeader() = %q, want ok", got)
			}
			if tt.contains != "" && !strings.Contains(got, tt.contains) {
				t.Errorf("CheckHeader() = %q, want mention of %q", got, tt.contains)
			}
		})
	}
}
