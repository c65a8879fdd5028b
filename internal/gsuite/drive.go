package gsuite

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/api/drive/v3"

	"github.com/pavelanni/quizen/internal/catalog"
	"github.com/pavelanni/quizen/internal/model"
)

// listPageSize is the Drive page size used when listing a folder.
const listPageSize = 200

// DriveSource reads subtitle files stored in Drive. Lecture FilePath holds
// the Drive file id.
type DriveSource struct {
	client *Client
}

// NewDriveSource returns a source backed by c.
func NewDriveSource(c *Client) *DriveSource {
	return &DriveSource{client: c}
}

// Entries lists the .srt files of a folder across every result page.
func (s *DriveSource) Entries(ctx context.Context, folderID string) ([]catalog.Entry, error) {
	query := fmt.Sprintf("'%s' in parents and trashed = false", strings.ReplaceAll(folderID, "'", `\'`))
	var entries []catalog.Entry
	err := s.client.drive.Files.List().
		Q(query).
		Fields("nextPageToken, files(id, name)").
		PageSize(listPageSize).
		SupportsAllDrives(true).
		IncludeItemsFromAllDrives(true).
		Pages(ctx, func(page *drive.FileList) error {
			for _, f := range page.Files {
				if catalog.IsSubtitle(f.Name) {
					entries = append(entries, catalog.Entry{Name: f.Name, Path: f.Id})
				}
			}
			return nil
		})
	if err != nil {
		return nil, classify("list folder", err)
	}
	s.client.logger.Debug("drive folder listed", "folder_id", folderID, "subtitles", len(entries))
	return entries, nil
}

// Lectures lists a folder and builds the lecture catalog from it.
func (s *DriveSource) Lectures(ctx context.Context, folderID string) ([]model.Lecture, []string, error) {
	entries, err := s.Entries(ctx, folderID)
	if err != nil {
		return nil, nil, err
	}
	lectures, warnings := catalog.Build(entries)
	return lectures, warnings, nil
}

// Text downloads a subtitle file and returns its spoken text.
func (s *DriveSource) Text(ctx context.Context, lecture model.Lecture) (string, error) {
	resp, err := s.client.drive.Files.Get(lecture.FilePath).
		SupportsAllDrives(true).
		Context(ctx).
		Download()
	if err != nil {
		return "", classify("download "+lecture.ID, err)
	}
	defer resp.Body.Close()
	return catalog.ReadSRTText(resp.Body)
}
