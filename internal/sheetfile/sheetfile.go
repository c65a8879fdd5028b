// Package sheetfile is a spreadsheet kept on local disk: a workbook is a
// directory and each tab is a CSV file in it. It lets runs export without a
// Google account.
package sheetfile

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pavelanni/quizen/internal/export"
)

var (
	_ export.Spreadsheet = (*Workbooks)(nil)
	_ export.MetaWriter  = (*Workbooks)(nil)
)

// DefaultHeader is the A..I header written when no template is given.
var DefaultHeader = []string{"difficulty", "type", "question", "explanation", "answer", "option_1", "option_2", "option_3", "option_4"}

// Workbooks creates workbook copies under a root directory.
type Workbooks struct {
	root         string
	defaultSheet string
}

// New returns workbooks rooted at root. defaultSheet names the tab created
// when no template is given.
func New(root, defaultSheet string) *Workbooks {
	if defaultSheet == "" {
		defaultSheet = "Sheet1"
	}
	return &Workbooks{root: root, defaultSheet: defaultSheet}
}

// CopyTemplate copies every tab of the template directory into a new
// workbook directory and returns its path. An empty templateID starts from
// the built-in header. folderID, when set, overrides the root.
func (w *Workbooks) CopyTemplate(ctx context.Context, templateID, name, folderID string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	parent := w.root
	if folderID != "" {
		parent = folderID
	}
	if err := os.MkdirAll(parent, 0o755); err != nil {
		return "", fmt.Errorf("create workbook folder: %w", err)
	}
	dir, err := uniqueDir(parent, slug(name))
	if err != nil {
		return "", err
	}

	if templateID == "" {
		rows := [][]string{{"quizen question bank"}, DefaultHeader}
		if err := writeTab(dir, w.defaultSheet, rows); err != nil {
			return "", err
		}
		return dir, nil
	}

	tabs, err := filepath.Glob(filepath.Join(templateID, "*.csv"))
	if err != nil {
		return "", fmt.Errorf("list template tabs: %w", err)
	}
	if len(tabs) == 0 {
		return "", fmt.Errorf("template %s has no tabs", templateID)
	}
	for _, tab := range tabs {
		data, err := os.ReadFile(tab)
		if err != nil {
			return "", fmt.Errorf("read template tab: %w", err)
		}
		if err := os.WriteFile(filepath.Join(dir, filepath.Base(tab)), data, 0o644); err != nil {
			return "", fmt.Errorf("copy template tab: %w", err)
		}
	}
	return dir, nil
}

// ReadHeader returns the second row of the tab.
func (w *Workbooks) ReadHeader(_ context.Context, sheetID, sheetName string) ([]string, error) {
	rows, err := readTab(sheetID, sheetName)
	if err != nil {
		return nil, err
	}
	if len(rows) < export.HeaderRow {
		return nil, nil
	}
	return rows[export.HeaderRow-1], nil
}

// WriteRows replaces the tab contents from startRow (1-based) on, keeping
// the rows above it.
func (w *Workbooks) WriteRows(ctx context.Context, sheetID, sheetName string, startRow int, rows [][]string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if startRow < 1 {
		return fmt.Errorf("start row %d is before row 1", startRow)
	}
	existing, err := readTab(sheetID, sheetName)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	keep := min(len(existing), startRow-1)
	out := make([][]string, 0, startRow-1+len(rows))
	out = append(out, existing[:keep]...)
	for len(out) < startRow-1 {
		// A lone empty field is written as a blank line, which readers skip.
		out = append(out, []string{"", ""})
	}
	out = append(out, rows...)
	return writeTab(sheetID, sheetName, out)
}

// ShareableLink returns a file URL of the workbook directory.
func (w *Workbooks) ShareableLink(_ context.Context, sheetID string) (string, error) {
	abs, err := filepath.Abs(sheetID)
	if err != nil {
		return "", err
	}
	return "file://" + filepath.ToSlash(abs), nil
}

// WriteMeta writes rows into their own tab from row 1.
func (w *Workbooks) WriteMeta(ctx context.Context, sheetID, sheetName string, rows [][]string) error {
	return w.WriteRows(ctx, sheetID, sheetName, 1, rows)
}

// ReadTab returns every row of a tab.
func ReadTab(sheetID, sheetName string) ([][]string, error) {
	return readTab(sheetID, sheetName)
}

func tabPath(dir, sheetName string) string {
	return filepath.Join(dir, slug(sheetName)+".csv")
}

func readTab(dir, sheetName string) ([][]string, error) {
	f, err := os.Open(tabPath(dir, sheetName))
	if err != nil {
		return nil, err
	}
	defer f.Close()
	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read tab %s: %w", sheetName, err)
	}
	return rows, nil
}

func writeTab(dir, sheetName string, rows [][]string) error {
	f, err := os.Create(tabPath(dir, sheetName))
	if err != nil {
		return fmt.Errorf("create tab %s: %w", sheetName, err)
	}
	cw := csv.NewWriter(f)
	if err := cw.WriteAll(rows); err != nil {
		f.Close()
		return fmt.Errorf("write tab %s: %w", sheetName, err)
	}
	return f.Close()
}

func uniqueDir(parent, base string) (string, error) {
	for i := 1; ; i++ {
		name := base
		if i > 1 {
			name = fmt.Sprintf("%s-%d", base, i)
		}
		dir := filepath.Join(parent, name)
		err := os.Mkdir(dir, 0o755)
		if err == nil {
			return dir, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return "", fmt.Errorf("create workbook: %w", err)
		}
	}
}

func slug(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return "workbook"
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|', ' ':
			return '_'
		}
		return r
	}, name)
}
