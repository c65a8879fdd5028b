package model

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Lecture warning flags recorded by the catalog.
const (
	WarnUnparsedFilename = "unparsed_filename"
	WarnOrderTie         = "order_tie"
	WarnDuplicateID      = "duplicate_id"
)

// Lecture is one subtitle file of a course.
type Lecture struct {
	Order    int      `json:"order"`
	ID       string   `json:"id"`
	Title    string   `json:"title"`
	FilePath string   `json:"file_path"`
	PartCode string   `json:"part_code,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

// HasWarning reports whether the lecture carries the given warning flag.
func (l Lecture) HasWarning(flag string) bool {
	for _, w := range l.Warnings {
		if w == flag {
			return true
		}
	}
	return false
}

var partCodePattern = regexp.MustCompile(`^PART\.\d{2}$`)

// ValidPartCode reports whether code has the form PART.NN.
func ValidPartCode(code string) bool {
	return partCodePattern.MatchString(code)
}

// PartCode formats the zero-padded code for the n-th part (1-based).
func PartCode(n int) string {
	return fmt.Sprintf("PART.%02d", n)
}

// Part is a topical group of lectures.
type Part struct {
	Code        string   `json:"code"`
	Title       string   `json:"title"`
	DisplayName string   `json:"display_name"`
	LectureIDs  []string `json:"lecture_ids"`
}

// DisplayNameFor joins a part code and title as "PART.NN topic".
func DisplayNameFor(code, title string) string {
	title = strings.TrimSpace(title)
	if title == "" {
		return code
	}
	return code + " " + title
}

// PartSummary is the study note used to ground question generation for one part.
type PartSummary struct {
	PartCode      string `json:"part_code"`
	PartName      string `json:"part_name"`
	Content       string `json:"content"`
	TokenEstimate int    `json:"token_estimate"`
	Fallback      bool   `json:"fallback"`
}

// Quota is the number of questions assigned to one part.
type Quota struct {
	PartCode string `json:"part_code"`
	Count    int    `json:"count"`
}

// Shortfall describes a part whose question yield is below its quota.
type Shortfall struct {
	PartCode string `json:"part_code"`
	Quota    int    `json:"quota"`
	Yield    int    `json:"yield"`
	Missing  int    `json:"missing"`
}

// Event is one append-only entry in a run's event log.
type Event struct {
	Seq       int            `json:"seq"`
	Name      string         `json:"name"`
	Stage     Stage          `json:"stage"`
	Timestamp time.Time      `json:"timestamp"`
	Payload   map[string]any `json:"payload,omitempty"`
}

// Failure records why a run ended in the failed state.
type Failure struct {
	Stage   Stage    `json:"stage"`
	Reasons []string `json:"reasons"`
	Error   string   `json:"error"`
}

// ExportResult describes the spreadsheet produced by a completed run.
type ExportResult struct {
	SheetID    string    `json:"sheet_id"`
	URL        string    `json:"url"`
	RowCount   int       `json:"row_count"`
	ExportedAt time.Time `json:"exported_at"`
}

// RunSnapshot is the serializable state of one pipeline run.
type RunSnapshot struct {
	RunID         string        `json:"run_id"`
	Stage         Stage         `json:"stage"`
	LastCompleted Stage         `json:"last_completed"`
	Options       RunOptions    `json:"options"`
	Lectures      []Lecture     `json:"lectures"`
	Parts         []Part        `json:"parts"`
	FallbackUsed  bool          `json:"fallback_used"`
	Summaries     []PartSummary `json:"summaries"`
	Quotas        []Quota       `json:"quotas"`
	Questions     []Question    `json:"questions"`
	Unmet         []Shortfall   `json:"unmet,omitempty"`
	ExportRows    []ExportRow   `json:"export_rows"`
	Events        []Event       `json:"events"`
	Warnings      []string      `json:"warnings,omitempty"`
	Failure       *Failure      `json:"failure,omitempty"`
	Export        *ExportResult `json:"export,omitempty"`
	// CopiedSheetID is a template copy made by an export attempt that did
	// not finish. The next attempt writes into it.
	CopiedSheetID string        `json:"copied_sheet_id,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

// RunSummary is the listing view of a stored run.
type RunSummary struct {
	RunID     string    `json:"run_id"`
	Stage     Stage     `json:"stage"`
	Questions int       `json:"questions"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
