package catalog

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"

	"github.com/pavelanni/quizen/internal/model"
)

var (
	cueIndexPattern = regexp.MustCompile(`^\d+$`)
	markupPattern   = regexp.MustCompile(`</?[^>]+>|\{\\[^}]*\}`)
)

// ReadSRTText returns the spoken text of an SRT stream: cue numbers, timing
// lines and inline markup removed, consecutive duplicate lines collapsed.
func ReadSRTText(r io.Reader) (string, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	var lines []string
	last := ""
	for scanner.Scan() {
		line := strings.TrimSpace(strings.TrimPrefix(scanner.Text(), "\uFEFF"))
		if line == "" || cueIndexPattern.MatchString(line) || strings.Contains(line, "-->") {
			continue
		}
		line = strings.TrimSpace(markupPattern.ReplaceAllString(line, ""))
		if line == "" || line == last {
			continue
		}
		lines = append(lines, line)
		last = line
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("scan srt: %w", err)
	}
	return strings.Join(lines, " "), nil
}

// FileSource reads lecture transcripts from the local filesystem.
type FileSource struct{}

// Text returns the transcript of the lecture's subtitle file.
func (FileSource) Text(_ context.Context, lecture model.Lecture) (string, error) {
	f, err := os.Open(lecture.FilePath)
	if err != nil {
		return "", fmt.Errorf("open subtitle %s: %w", lecture.FilePath, err)
	}
	defer f.Close()
	return ReadSRTText(f)
}
