package catalog

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pavelanni/quizen/internal/model"
)

func TestParseFilename(t *testing.T) {
	tests := []struct {
		name    string
		ordinal int
		id      string
		title   string
		ok      bool
	}{
		{"001 L01 Intro to Go.srt", 1, "L01", "Intro to Go", true},
		{"012 abc_2 Channels and select.SRT", 12, "abc_2", "Channels and select", true},
		{"intro.srt", 0, "", "", false},
		{"001 only-two.srt", 0, "", "", false},
		{"001 L01 Intro.txt", 0, "", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, id, title, ok := ParseFilename(tt.name)
			if ok != tt.ok || n != tt.ordinal || id != tt.id || title != tt.title {
				t.Errorf("ParseFilename(%q) = (%d, %q, %q, %v), want (%d, %q, %q, %v)",
					tt.name, n, id, title, ok, tt.ordinal, tt.id, tt.title, tt.ok)
			}
		})
	}
}

func TestBuildOrdering(t *testing.T) {
	entries := []Entry{
		{Name: "003 L3 Maps.srt"},
		{Name: "zeta notes.srt"},
		{Name: "001 L1 Basics.srt"},
		{Name: "002 L2b Slices.srt"},
		{Name: "002 L2a Arrays.srt"},
		{Name: "alpha notes.srt"},
	}
	lectures, warnings := Build(entries)
	wantIDs := []string{"L1", "L2a", "L2b", "L3", "alpha notes", "zeta notes"}
	if len(lectures) != len(wantIDs) {
		t.Fatalf("expected %d lectures, got %d", len(wantIDs), len(lectures))
	}
	for i, id := range wantIDs {
		if lectures[i].ID != id {
			t.Errorf("lecture %d id = %q, want %q", i, lectures[i].ID, id)
		}
		if lectures[i].Order != i+1 {
			t.Errorf("lecture %d order = %d, want %d", i, lectures[i].Order, i+1)
		}
	}
	if !lectures[1].HasWarning(model.WarnOrderTie) || !lectures[2].HasWarning(model.WarnOrderTie) {
		t.Error("tied lectures must carry order_tie")
	}
	if lectures[0].HasWarning(model.WarnOrderTie) {
		t.Error("untied lecture must not carry order_tie")
	}
	if !lectures[4].HasWarning(model.WarnUnparsedFilename) {
		t.Error("unparsed file must be kept with a warning")
	}
	// two unparsed names and one tie
	if len(warnings) != 3 {
		t.Errorf("expected 3 warnings, got %d: %v", len(warnings), warnings)
	}
}

func TestBuildDuplicateIDs(t *testing.T) {
	tests := []struct {
		name    string
		entries []Entry
		want    []string
		renamed []bool
	}{
		{
			name:    "second copy suffixed",
			entries: []Entry{{Name: "001 L1 A.srt"}, {Name: "002 L1 B.srt"}},
			want:    []string{"L1", "L1-2"},
			renamed: []bool{false, true},
		},
		{
			name:    "suffix skips an existing id",
			entries: []Entry{{Name: "001 A intro.srt"}, {Name: "002 A more.srt"}, {Name: "A-2.srt"}},
			want:    []string{"A", "A-3", "A-2"},
			renamed: []bool{false, true, false},
		},
		{
			name:    "three copies around taken suffixes",
			entries: []Entry{{Name: "X-3.srt"}, {Name: "001 X a.srt"}, {Name: "002 X b.srt"}, {Name: "X-2.srt"}, {Name: "003 X c.srt"}},
			want:    []string{"X", "X-4", "X-5", "X-2", "X-3"},
			renamed: []bool{false, true, true, false, false},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lectures, _ := Build(tt.entries)
			if len(lectures) != len(tt.want) {
				t.Fatalf("got %d lectures, want %d", len(lectures), len(tt.want))
			}
			ids := make(map[string]bool, len(lectures))
			for i, l := range lectures {
				if l.ID != tt.want[i] {
					t.Errorf("lecture %d id = %q, want %q", i, l.ID, tt.want[i])
				}
				if ids[l.ID] {
					t.Errorf("id %q assigned twice", l.ID)
				}
				ids[l.ID] = true
				if got := l.HasWarning(model.WarnDuplicateID); got != tt.renamed[i] {
					t.Errorf("lecture %q duplicate_id warning = %v, want %v", l.ID, got, tt.renamed[i])
				}
			}
		})
	}
}

func TestReadSRTText(t *testing.T) {
	srt := "\uFEFF1\n00:00:01,000 --> 00:00:02,000\n<i>Hello</i> there\n\n2\n00:00:02,500 --> 00:00:03,000\nHello there\n\n3\n00:00:04,000 --> 00:00:05,000\nGoroutines are cheap.\n"
	got, err := ReadSRTText(strings.NewReader(srt))
	if err != nil {
		t.Fatalf("ReadSRTText: %v", err)
	}
	if got != "Hello there Goroutines are cheap." {
		t.Errorf("ReadSRTText = %q", got)
	}
}

func TestScanDirAndFileSource(t *testing.T) {
	dir := t.TempDir()
	files := map[string]string{
		"002 L2 Second.srt": "1\n00:00:01,000 --> 00:00:02,000\nsecond lecture\n",
		"001 L1 First.srt":  "1\n00:00:01,000 --> 00:00:02,000\nfirst lecture\n",
		"readme.txt":        "ignored",
	}
	for name, body := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	lectures, warnings, err := ScanDir(dir)
	if err != nil {
		t.Fatalf("ScanDir: %v", err)
	}
	if len(warnings) != 0 {
		t.Errorf("unexpected warnings: %v", warnings)
	}
	if len(lectures) != 2 || lectures[0].ID != "L1" {
		t.Fatalf("unexpected lectures: %+v", lectures)
	}
	text, err := FileSource{}.Text(context.Background(), lectures[0])
	if err != nil {
		t.Fatalf("Text: %v", err)
	}
	if text != "first lecture" {
		t.Errorf("Text = %q", text)
	}
}
