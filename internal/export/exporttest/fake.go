// Package exporttest provides an in-memory export.Spreadsheet.
package exporttest

import (
	"context"
	"fmt"
	"sync"

	"github.com/pavelanni/quizen/internal/export"
)

var (
	_ export.Spreadsheet = (*Fake)(nil)
	_ export.MetaWriter  = (*Fake)(nil)
)

// DefaultHeader is a valid A..I template header.
var DefaultHeader = []string{"difficulty", "type", "question", "explanation", "answer", "option1", "option2", "option3", "option4"}

// Sheet is one copied spreadsheet.
type Sheet struct {
	ID       string
	Name     string
	FolderID string
	Rows     map[string][][]string
	StartRow int
	Meta     [][]string
}

// Fake records every call. Set the Fail* fields to inject errors. Calls
// fail with the context error once ctx is done.
type Fake struct {
	mu     sync.Mutex
	Header []string
	Sheets []*Sheet

	FailCopy   error
	FailHeader error
	FailWrite  error
	FailLink   error
	FailMeta   error

	// AfterCopy runs once a template copy exists.
	AfterCopy func(sheetID string)
}

// New returns a fake whose template carries DefaultHeader.
func New() *Fake {
	return &Fake{Header: append([]string(nil), DefaultHeader...)}
}

func (f *Fake) sheet(id string) (*Sheet, error) {
	for _, s := range f.Sheets {
		if s.ID == id {
			return s, nil
		}
	}
	return nil, fmt.Errorf("sheet %s not found", id)
}

// CopyTemplate implements export.Spreadsheet.
func (f *Fake) CopyTemplate(ctx context.Context, templateID, name, folderID string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	f.mu.Lock()
	if f.FailCopy != nil {
		f.mu.Unlock()
		return "", f.FailCopy
	}
	s := &Sheet{ID: fmt.Sprintf("sheet-%d", len(f.Sheets)+1), Name: name, FolderID: folderID, Rows: map[string][][]string{}}
	f.Sheets = append(f.Sheets, s)
	hook := f.AfterCopy
	f.mu.Unlock()

	if hook != nil {
		hook(s.ID)
	}
	return s.ID, nil
}

// ReadHeader implements export.Spreadsheet.
func (f *Fake) ReadHeader(ctx context.Context, sheetID, _ string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FailHeader != nil {
		return nil, f.FailHeader
	}
	if _, err := f.sheet(sheetID); err != nil {
		return nil, err
	}
	return append([]string(nil), f.Header...), nil
}

// WriteRows implements export.Spreadsheet.
func (f *Fake) WriteRows(ctx context.Context, sheetID, sheetName string, startRow int, rows [][]string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FailWrite != nil {
		return f.FailWrite
	}
	s, err := f.sheet(sheetID)
	if err != nil {
		return err
	}
	s.Rows[sheetName] = rows
	s.StartRow = startRow
	return nil
}

// ShareableLink implements export.Spreadsheet.
func (f *Fake) ShareableLink(ctx context.Context, sheetID string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FailLink != nil {
		return "", f.FailLink
	}
	return "https://sheets.example.test/" + sheetID, nil
}

// WriteMeta implements export.MetaWriter.
func (f *Fake) WriteMeta(_ context.Context, sheetID, _ string, rows [][]string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FailMeta != nil {
		return f.FailMeta
	}
	s, err := f.sheet(sheetID)
	if err != nil {
		return err
	}
	s.Meta = rows
	return nil
}

// Copies returns how many template copies were made.
func (f *Fake) Copies() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Sheets)
}
