// Package gsuite talks to Google Drive and Google Sheets: it copies the
// question bank template, writes rows and the meta tab, and reads subtitle
// files from a Drive folder.
package gsuite

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"github.com/pavelanni/quizen/internal/export"
	"github.com/pavelanni/quizen/internal/model"
)

var (
	_ export.Spreadsheet = (*Client)(nil)
	_ export.MetaWriter  = (*Client)(nil)
)

// Scopes needed for template copies and subtitle downloads.
var Scopes = []string{drive.DriveScope, sheets.SpreadsheetsScope}

// Client wraps the Drive and Sheets services.
type Client struct {
	drive  *drive.Service
	sheets *sheets.Service
	logger *slog.Logger
}

// New creates a client. Options are passed to both services, for example
// option.WithCredentialsFile.
func New(ctx context.Context, logger *slog.Logger, opts ...option.ClientOption) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}
	driveOpts := append([]option.ClientOption{option.WithScopes(Scopes...)}, opts...)
	d, err := drive.NewService(ctx, driveOpts...)
	if err != nil {
		return nil, fmt.Errorf("create drive service: %w", err)
	}
	s, err := sheets.NewService(ctx, driveOpts...)
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return &Client{drive: d, sheets: s, logger: logger}, nil
}

// CopyTemplate copies the template spreadsheet into folderID.
func (c *Client) CopyTemplate(ctx context.Context, templateID, name, folderID string) (string, error) {
	if strings.TrimSpace(templateID) == "" {
		return "", model.Wrap(model.ErrExportValidation, model.StageExporting, "copy template", "no template id configured", nil)
	}
	file := &drive.File{Name: name}
	if folderID != "" {
		file.Parents = []string{folderID}
	}
	copied, err := c.drive.Files.Copy(templateID, file).
		SupportsAllDrives(true).
		Fields("id").
		Context(ctx).
		Do()
	if err != nil {
		return "", classify("copy template", err)
	}
	c.logger.Debug("drive copy created", "template_id", templateID, "sheet_id", copied.Id)
	return copied.Id, nil
}

// ReadHeader returns the A2:I2 cells of sheetName.
func (c *Client) ReadHeader(ctx context.Context, sheetID, sheetName string) ([]string, error) {
	rng := fmt.Sprintf("%s!A%d:I%d", quoteSheet(sheetName), export.HeaderRow, export.HeaderRow)
	resp, err := c.sheets.Spreadsheets.Values.Get(sheetID, rng).Context(ctx).Do()
	if err != nil {
		return nil, classify("read header", err)
	}
	if len(resp.Values) == 0 {
		return nil, nil
	}
	header := make([]string, 0, len(resp.Values[0]))
	for _, cell := range resp.Values[0] {
		header = append(header, fmt.Sprint(cell))
	}
	return header, nil
}

// WriteRows writes rows into sheetName starting at column A of startRow.
func (c *Client) WriteRows(ctx context.Context, sheetID, sheetName string, startRow int, rows [][]string) error {
	rng := fmt.Sprintf("%s!A%d", quoteSheet(sheetName), startRow)
	_, err := c.sheets.Spreadsheets.Values.Update(sheetID, rng, &sheets.ValueRange{Values: toValues(rows)}).
		ValueInputOption("RAW").
		Context(ctx).
		Do()
	if err != nil {
		return classify("write rows", err)
	}
	return nil
}

// ShareableLink returns the web link of the copy.
func (c *Client) ShareableLink(ctx context.Context, sheetID string) (string, error) {
	f, err := c.drive.Files.Get(sheetID).
		SupportsAllDrives(true).
		Fields("webViewLink").
		Context(ctx).
		Do()
	if err != nil {
		return "", classify("shareable link", err)
	}
	if f.WebViewLink != "" {
		return f.WebViewLink, nil
	}
	return "https://docs.google.com/spreadsheets/d/" + sheetID + "/edit", nil
}

// WriteMeta writes rows into the sheetName tab, adding the tab when the copy
// does not have it.
func (c *Client) WriteMeta(ctx context.Context, sheetID, sheetName string, rows [][]string) error {
	doc, err := c.sheets.Spreadsheets.Get(sheetID).Fields("sheets.properties.title").Context(ctx).Do()
	if err != nil {
		return classify("read tabs", err)
	}
	exists := false
	for _, sh := range doc.Sheets {
		if sh.Properties != nil && sh.Properties.Title == sheetName {
			exists = true
			break
		}
	}
	if !exists {
		req := &sheets.BatchUpdateSpreadsheetRequest{Requests: []*sheets.Request{{
			AddSheet: &sheets.AddSheetRequest{Properties: &sheets.SheetProperties{Title: sheetName}},
		}}}
		if _, err := c.sheets.Spreadsheets.BatchUpdate(sheetID, req).Context(ctx).Do(); err != nil {
			return classify("add meta tab", err)
		}
	}
	return c.WriteRows(ctx, sheetID, sheetName, 1, rows)
}

func quoteSheet(name string) string {
	return "'" + strings.ReplaceAll(name, "'", "''") + "'"
}

func toValues(rows [][]string) [][]interface{} {
	out := make([][]interface{}, len(rows))
	for i, row := range rows {
		cells := make([]interface{}, len(row))
		for j, v := range row {
			cells[j] = v
		}
		out[i] = cells
	}
	return out
}

var quotaReasons = map[string]bool{
	"rateLimitExceeded":     true,
	"userRateLimitExceeded": true,
	"quotaExceeded":         true,
	"dailyLimitExceeded":    true,
}

// classify maps Google API failures onto the auth and quota markers.
func classify(op string, err error) error {
	var gerr *googleapi.Error
	if !errors.As(err, &gerr) {
		return fmt.Errorf("%s: %w", op, err)
	}
	for _, item := range gerr.Errors {
		if quotaReasons[item.Reason] {
			return model.Wrap(model.ErrQuota, "", op, gerr.Message, err)
		}
	}
	switch gerr.Code {
	case http.StatusUnauthorized, http.StatusForbidden:
		return model.Wrap(model.ErrAuth, "", op, gerr.Message, err)
	case http.StatusTooManyRequests:
		return model.Wrap(model.ErrQuota, "", op, gerr.Message, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}
