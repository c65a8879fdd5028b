package model

import "strconv"

// ExportColumns is the number of spreadsheet columns (A..I) per question row.
const ExportColumns = 9

// ExportRow is the spreadsheet projection of one validated question.
type ExportRow struct {
	Difficulty  int          `json:"difficulty"`
	Type        QuestionType `json:"type"`
	Text        string       `json:"text"`
	Explanation string       `json:"explanation"`
	Answer      int          `json:"answer"`
	Options     [4]string    `json:"options"`
}

// Cells returns the A..I cell values. True/false rows leave F..I blank.
func (r ExportRow) Cells() []string {
	return []string{
		strconv.Itoa(r.Difficulty),
		strconv.Itoa(int(r.Type)),
		r.Text,
		r.Explanation,
		strconv.Itoa(r.Answer),
		r.Options[0],
		r.Options[1],
		r.Options[2],
		r.Options[3],
	}
}
