// Package catalog turns subtitle filenames into the ordered lecture list of a
// course.
//
// Filenames follow "NNN <id> <title>.srt". Files that do not match are kept
// with an unparsed_filename warning, use the file stem as id and title, and
// sort after all parsed lectures by title. Final ordinals are assigned 1..n
// after sorting so Lecture.Order is unique within a run.
package catalog

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/pavelanni/quizen/internal/model"
)

var filenamePattern = regexp.MustCompile(`^(\d{1,4})\s+(\w+)\s+(.+)\.(?i:srt)$`)

// Entry is one subtitle file as seen by a source: its base name and location.
type Entry struct {
	Name string
	Path string
}

type parsed struct {
	entry    Entry
	ordinal  int
	id       string
	title    string
	ok       bool
	warnings []string
}

// ParseFilename extracts ordinal, id and title from a subtitle filename.
func ParseFilename(name string) (ordinal int, id, title string, ok bool) {
	m := filenamePattern.FindStringSubmatch(name)
	if m == nil {
		return 0, "", "", false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, "", "", false
	}
	return n, m[2], strings.TrimSpace(m[3]), true
}

// IsSubtitle reports whether name looks like an SRT file.
func IsSubtitle(name string) bool {
	return strings.EqualFold(filepath.Ext(name), ".srt")
}

// Build parses entries into lectures sorted and numbered for a run. The second
// return value lists human-readable warnings for the run log.
func Build(entries []Entry) ([]model.Lecture, []string) {
	items := make([]parsed, 0, len(entries))
	var warnings []string
	for _, e := range entries {
		p := parsed{entry: e}
		if n, id, title, ok := ParseFilename(e.Name); ok {
			p.ordinal, p.id, p.title, p.ok = n, id, title, true
		} else {
			stem := strings.TrimSuffix(e.Name, filepath.Ext(e.Name))
			p.id, p.title = stem, stem
			p.warnings = append(p.warnings, model.WarnUnparsedFilename)
			warnings = append(warnings, fmt.Sprintf("filename does not match expected pattern: %s", e.Name))
		}
		items = append(items, p)
	}

	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i], items[j]
		if a.ok != b.ok {
			return a.ok
		}
		if a.ok {
			if a.ordinal != b.ordinal {
				return a.ordinal < b.ordinal
			}
			return a.entry.Name < b.entry.Name
		}
		if a.title != b.title {
			return a.title < b.title
		}
		return a.entry.Name < b.entry.Name
	})

	for i := 0; i < len(items); i++ {
		if !items[i].ok {
			continue
		}
		j := i + 1
		for j < len(items) && items[j].ok && items[j].ordinal == items[i].ordinal {
			j++
		}
		if j-i > 1 {
			names := make([]string, 0, j-i)
			for k := i; k < j; k++ {
				items[k].warnings = append(items[k].warnings, model.WarnOrderTie)
				names = append(names, items[k].entry.Name)
			}
			warnings = append(warnings, fmt.Sprintf("lecture order %d is shared by %s; ordered by filename", items[i].ordinal, strings.Join(names, ", ")))
		}
		i = j - 1
	}

	// Renamed ids must not collide with any id a file already carries.
	taken := make(map[string]bool, len(items))
	for _, p := range items {
		taken[p.id] = true
	}
	used := make(map[string]bool, len(items))
	lectures := make([]model.Lecture, 0, len(items))
	for i, p := range items {
		id := p.id
		if used[id] {
			for n := 2; taken[id]; n++ {
				id = fmt.Sprintf("%s-%d", p.id, n)
			}
			taken[id] = true
			p.warnings = append(p.warnings, model.WarnDuplicateID)
			warnings = append(warnings, fmt.Sprintf("duplicate lecture id %s in %s renamed to %s", p.id, p.entry.Name, id))
		}
		used[id] = true
		lectures = append(lectures, model.Lecture{
			Order:    i + 1,
			ID:       id,
			Title:    p.title,
			FilePath: p.entry.Path,
			Warnings: p.warnings,
		})
	}
	return lectures, warnings
}

// ScanDir lists the .srt files of dir and builds the lecture list.
func ScanDir(dir string) ([]model.Lecture, []string, error) {
	dirEntries, err := os.ReadDir(dir)
	if err != nil {
		return nil, nil, fmt.Errorf("read subtitle dir: %w", err)
	}
	var entries []Entry
	for _, de := range dirEntries {
		if de.IsDir() || !IsSubtitle(de.Name()) {
			continue
		}
		entries = append(entries, Entry{Name: de.Name(), Path: filepath.Join(dir, de.Name())})
	}
	lectures, warnings := Build(entries)
	slog.Info("scanned subtitle dir", "dir", dir, "lectures", len(lectures), "warnings", len(warnings))
	return lectures, warnings, nil
}
