// Package export validates the question bank and writes it into a copy of
// the spreadsheet template.
package export

import (
	"fmt"
	"strings"

	"github.com/pavelanni/quizen/internal/model"
)

// Template layout: row 2 holds the A..I header, questions start on row 3.
const (
	HeaderRow    = 2
	FirstDataRow = 3
)

// Item is one offending question.
type Item struct {
	Index   int      `json:"index"`
	Row     int      `json:"row"`
	Reasons []string `json:"reasons"`
}

// ValidationError itemizes every question that blocks the export.
type ValidationError struct {
	Items []Item
}

func (e *ValidationError) Error() string {
	reasons := e.Reasons()
	if len(reasons) == 1 {
		return "export validation failed: " + reasons[0]
	}
	return fmt.Sprintf("export validation failed: %d problems: %s", len(reasons), strings.Join(reasons, "; "))
}

// Reasons lists one line per problem, addressed by spreadsheet row.
func (e *ValidationError) Reasons() []string {
	var out []string
	for _, item := range e.Items {
		for _, r := range item.Reasons {
			if item.Row > 0 {
				out = append(out, fmt.Sprintf("Row %d: %s", item.Row, r))
			} else {
				out = append(out, r)
			}
		}
	}
	return out
}

func (e *ValidationError) Unwrap() error {
	return model.ErrExportValidation
}

// Validate checks every question against the export schema. Either the whole
// bank passes or the error lists every offending question.
func Validate(questions []model.Question) error {
	if len(questions) == 0 {
		return &ValidationError{Items: []Item{{Index: -1, Reasons: []string{"no questions to export"}}}}
	}
	var items []Item
	for i, q := range questions {
		problems := q.Check()
		if strings.TrimSpace(q.PartName) == "" {
			problems = append(problems, "question has no part")
		}
		if len(problems) > 0 {
			items = append(items, Item{Index: i, Row: FirstDataRow + i, Reasons: problems})
		}
	}
	if len(items) > 0 {
		return &ValidationError{Items: items}
	}
	return nil
}

// MapRows projects validated questions onto the A..I template columns.
func MapRows(questions []model.Question) []model.ExportRow {
	rows := make([]model.ExportRow, 0, len(questions))
	for _, q := range questions {
		row := model.ExportRow{
			Difficulty:  q.Difficulty,
			Type:        q.Type,
			Text:        q.Text,
			Explanation: q.Explanation,
			Answer:      q.Answer,
		}
		if q.Type == model.SingleChoice {
			copy(row.Options[:], q.Options)
		}
		rows = append(rows, row)
	}
	return rows
}

// Cells converts rows to the string grid written to the sheet.
func Cells(rows []model.ExportRow) [][]string {
	out := make([][]string, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.Cells())
	}
	return out
}
