package export

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/pavelanni/quizen/internal/model"
)

// Spreadsheet is the template-copy collaborator.
type Spreadsheet interface {
	CopyTemplate(ctx context.Context, templateID, name, folderID string) (string, error)
	ReadHeader(ctx context.Context, sheetID, sheetName string) ([]string, error)
	WriteRows(ctx context.Context, sheetID, sheetName string, startRow int, rows [][]string) error
	ShareableLink(ctx context.Context, sheetID string) (string, error)
}

// MetaWriter is implemented by spreadsheets that can hold a meta tab.
type MetaWriter interface {
	WriteMeta(ctx context.Context, sheetID, sheetName string, rows [][]string) error
}

// Target says where a run's bank goes. A non-empty SheetID reuses a copy made
// by an earlier attempt instead of copying the template again.
type Target struct {
	SheetID       string
	TemplateID    string
	FolderID      string
	CopyName      string
	SheetName     string
	WriteMeta     bool
	MetaSheetName string
}

// TargetFor builds the export target from run options.
func TargetFor(runID string, opts model.RunOptions, now time.Time) Target {
	name := opts.CopyName
	if name == "" {
		name = fmt.Sprintf("quizen %s %s", now.Format("2006-01-02"), shortID(runID))
	}
	sheet := opts.SheetName
	if sheet == "" {
		sheet = "Sheet1"
	}
	meta := opts.MetaSheetName
	if meta == "" {
		meta = "quizen_meta"
	}
	return Target{
		TemplateID:    opts.TemplateID,
		FolderID:      opts.DestinationFolder,
		CopyName:      name,
		SheetName:     sheet,
		WriteMeta:     opts.WriteMeta,
		MetaSheetName: meta,
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// Exporter writes validated rows through a Spreadsheet.
type Exporter struct {
	sheet  Spreadsheet
	header []string
	logger *slog.Logger
	now    func() time.Time
}

// Option configures an Exporter.
type Option func(*Exporter)

// WithExpectedHeader requires the template header to match labels.
func WithExpectedHeader(labels []string) Option {
	return func(e *Exporter) { e.header = labels }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Exporter) { e.logger = logger }
}

// WithClock sets the time source.
func WithClock(now func() time.Time) Option {
	return func(e *Exporter) { e.now = now }
}

// NewExporter creates an exporter.
func NewExporter(sheet Spreadsheet, opts ...Option) *Exporter {
	e := &Exporter{sheet: sheet, logger: slog.Default(), now: time.Now}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Export copies the template, checks its header row, writes rows from row 3,
// resolves the shareable link and, when enabled, writes the meta tab. A meta
// tab failure is logged and does not fail the export. When a later step fails
// after the copy exists, the returned result carries only its SheetID.
func (e *Exporter) Export(ctx context.Context, target Target, rows []model.ExportRow, meta [][]string) (model.ExportResult, error) {
	if e.sheet == nil {
		return model.ExportResult{}, fmt.Errorf("no spreadsheet configured")
	}
	if len(rows) == 0 {
		return model.ExportResult{}, model.Wrap(model.ErrExportValidation, model.StageExporting, "export", "no rows to write", nil)
	}

	sheetID := target.SheetID
	if sheetID == "" {
		var err error
		sheetID, err = e.sheet.CopyTemplate(ctx, target.TemplateID, target.CopyName, target.FolderID)
		if err != nil {
			return model.ExportResult{}, fmt.Errorf("copy template: %w", err)
		}
		e.logger.Info("template copied", "sheet_id", sheetID, "name", target.CopyName)
	} else {
		e.logger.Info("reusing copied template", "sheet_id", sheetID)
	}
	partial := model.ExportResult{SheetID: sheetID}

	header, err := e.sheet.ReadHeader(ctx, sheetID, target.SheetName)
	if err != nil {
		return partial, fmt.Errorf("read header of sheet %s: %w", sheetID, err)
	}
	if problem := CheckHeader(header, e.header); problem != "" {
		return partial, model.Wrap(model.ErrExportValidation, model.StageExporting, "check header",
			fmt.Sprintf("%s (sheet %s)", problem, sheetID), nil)
	}

	if err := e.sheet.WriteRows(ctx, sheetID, target.SheetName, FirstDataRow, Cells(rows)); err != nil {
		return partial, fmt.Errorf("write rows to sheet %s: %w", sheetID, err)
	}

	link, err := e.sheet.ShareableLink(ctx, sheetID)
	if err != nil {
		return partial, fmt.Errorf("shareable link of sheet %s: %w", sheetID, err)
	}

	if target.WriteMeta && len(meta) > 0 {
		if mw, ok := e.sheet.(MetaWriter); ok {
			if err := mw.WriteMeta(ctx, sheetID, target.MetaSheetName, meta); err != nil {
				e.logger.Warn("meta sheet not written", "sheet_id", sheetID, "error", err)
			}
		}
	}

	return model.ExportResult{
		SheetID:    sheetID,
		URL:        link,
		RowCount:   len(rows),
		ExportedAt: e.now().UTC(),
	}, nil
}

// CheckHeader verifies the A..I header row. With no expected labels every
// column must be non-empty; otherwise labels must match case-insensitively.
// It returns a description of the first mismatch or "".
func CheckHeader(header, expected []string) string {
	if len(header) < model.ExportColumns {
		return fmt.Sprintf("template header row %d has %d columns, want %d (A..I)", HeaderRow, len(header), model.ExportColumns)
	}
	for i := 0; i < model.ExportColumns; i++ {
		col := string(rune('A' + i))
		cell := strings.TrimSpace(header[i])
		if cell == "" {
			return fmt.Sprintf("template header cell %s%d is empty", col, HeaderRow)
		}
		if i < len(expected) && !strings.EqualFold(cell, strings.TrimSpace(expected[i])) {
			return fmt.Sprintf("template header cell %s%d is %q, want %q", col, HeaderRow, cell, expected[i])
		}
	}
	return ""
}
