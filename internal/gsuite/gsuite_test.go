package gsuite

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/pavelanni/quizen/internal/model"
)

// fakeGoogle serves the subset of the Drive and Sheets APIs the client uses.
type fakeGoogle struct {
	mu        sync.Mutex
	copyName  string
	parents   []string
	written   map[string][][]string
	addedTabs []string
	failCode  int
	reason    string
}

func (f *fakeGoogle) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	w.Header().Set("Content-Type", "application/json")

	if f.failCode != 0 {
		w.WriteHeader(f.failCode)
		fmt.Fprintf(w, `{"error":{"code":%d,"message":"denied","errors":[{"reason":%q,"message":"denied"}]}}`, f.failCode, f.reason)
		return
	}

	path := r.URL.Path
	switch {
	case r.Method == http.MethodPost && path == "/files/tmpl/copy":
		var body struct {
			Name    string   `json:"name"`
			Parents []string `json:"parents"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.copyName, f.parents = body.Name, body.Parents
		fmt.Fprint(w, `{"id":"copy-1"}`)
	case r.Method == http.MethodGet && path == "/files":
		if r.URL.Query().Get("pageToken") == "" {
			fmt.Fprint(w, `{"nextPageToken":"p2","files":[{"id":"f1","name":"001 L01 Intro.srt"},{"id":"x","name":"notes.txt"}]}`)
			return
		}
		fmt.Fprint(w, `{"files":[{"id":"f2","name":"002 L02 Next.srt"}]}`)
	case r.Method == http.MethodGet && strings.HasPrefix(path, "/files/"):
		if r.URL.Query().Get("alt") == "media" {
			w.Header().Set("Content-Type", "text/plain")
			fmt.Fprint(w, "1\n00:00:01,000 --> 00:00:02,000\nHello there\n\n2\n00:00:02,000 --> 00:00:03,000\nGeneral\n")
			return
		}
		fmt.Fprint(w, `{"webViewLink":"https://docs.example.test/copy-1"}`)
	case r.Method == http.MethodGet && strings.Contains(path, "/values/"):
		fmt.Fprint(w, `{"values":[["difficulty","type","question","explanation","answer","o1","o2","o3","o4"]]}`)
	case r.Method == http.MethodPut && strings.Contains(path, "/values/"):
		var body struct {
			Values [][]string `json:"values"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		rng := path[strings.Index(path, "/values/")+len("/values/"):]
		f.written[rng] = body.Values
		fmt.Fprint(w, `{}`)
	case r.Method == http.MethodPost && strings.HasSuffix(path, ":batchUpdate"):
		var body struct {
			Requests []struct {
				AddSheet struct {
					Properties struct {
						Title string `json:"title"`
					} `json:"properties"`
				} `json:"addSheet"`
			} `json:"requests"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		for _, req := range body.Requests {
			f.addedTabs = append(f.addedTabs, req.AddSheet.Properties.Title)
		}
		fmt.Fprint(w, `{}`)
	case r.Method == http.MethodGet && strings.HasPrefix(path, "/v4/spreadsheets/"):
		fmt.Fprint(w, `{"sheets":[{"properties":{"title":"Sheet1"}}]}`)
	default:
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprintf(w, `{"error":{"code":404,"message":"no route %s %s"}}`, r.Method, path)
	}
}

func newTestClient(t *testing.T) (*Client, *fakeGoogle) {
	t.Helper()
	fake := &fakeGoogle{written: make(map[string][][]string)}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)
	c, err := New(context.Background(), nil,
		option.WithEndpoint(srv.URL+"/"),
		option.WithHTTPClient(srv.Client()),
		option.WithoutAuthentication(),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c, fake
}

func TestExportFlow(t *testing.T) {
	c, fake := newTestClient(t)
	ctx := context.Background()

	id, err := c.CopyTemplate(ctx, "tmpl", "quizen bank", "folder-9")
	if err != nil {
		t.Fatalf("CopyTemplate: %v", err)
	}
	if id != "copy-1" || fake.copyName != "quizen bank" || len(fake.parents) != 1 || fake.parents[0] != "folder-9" {
		t.Errorf("copy = %q, name %q, parents %v", id, fake.copyName, fake.parents)
	}

	header, err := c.ReadHeader(ctx, id, "Sheet1")
	if err != nil {
		t.Fatalf("ReadHeader: %v", err)
	}
	if len(header) != 9 || header[2] != "question" {
		t.Errorf("header = %v", header)
	}

	rows := [][]string{{"3", "1", "Q?", "E", "2", "a", "b", "c", "d"}}
	if err := c.WriteRows(ctx, id, "Sheet1", 3, rows); err != nil {
		t.Fatalf("WriteRows: %v", err)
	}
	if got := fake.written["'Sheet1'!A3"]; len(got) != 1 || got[0][2] != "Q?" {
		t.Errorf("written = %v", fake.written)
	}

	link, err := c.ShareableLink(ctx, id)
	if err != nil || link != "https://docs.example.test/copy-1" {
		t.Errorf("ShareableLink = %q, %v", link, err)
	}

	if err := c.WriteMeta(ctx, id, "quizen_meta", [][]string{{"part_code"}}); err != nil {
		t.Fatalf("WriteMeta: %v", err)
	}
	if len(fake.addedTabs) != 1 || fake.addedTabs[0] != "quizen_meta" {
		t.Errorf("added tabs = %v", fake.addedTabs)
	}
	if _, ok := fake.written["'quizen_meta'!A1"]; !ok {
		t.Errorf("meta rows not written: %v", fake.written)
	}
}

func TestCopyTemplateRequiresID(t *testing.T) {
	c, _ := newTestClient(t)
	_, err := c.CopyTemplate(context.Background(), " ", "name", "")
	if !errors.Is(err, model.ErrExportValidation) {
		t.Errorf("expected ErrExportValidation, got %v", err)
	}
}

func TestDriveSource(t *testing.T) {
	c, _ := newTestClient(t)
	src := NewDriveSource(c)
	ctx := context.Background()

	lectures, warnings, err := src.Lectures(ctx, "folder-1")
	if err != nil {
		t.Fatalf("Lectures: %v", err)
	}
	if len(lectures) != 2 || len(warnings) != 0 {
		t.Fatalf("lectures = %+v, warnings = %v", lectures, warnings)
	}
	if lectures[0].ID != "L01" || lectures[1].FilePath != "f2" {
		t.Errorf("lectures = %+v", lectures)
	}

	text, err := src.Text(ctx, lectures[0])
	if err != nil {
		t.Fatalf("Text: %v", err)
	}
	if text != "Hello there General" {
		t.Errorf("text = %q", text)
	}
}

func TestErrorClassification(t *testing.T) {
	tests := []struct {
		name   string
		code   int
		reason string
		want   error
	}{
		{"unauthorized", http.StatusUnauthorized, "authError", model.ErrAuth},
		{"forbidden", http.StatusForbidden, "forbidden", model.ErrAuth},
		{"rate limited 403", http.StatusForbidden, "userRateLimitExceeded", model.ErrQuota},
		{"too many requests", http.StatusTooManyRequests, "rateLimitExceeded", model.ErrQuota},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, fake := newTestClient(t)
			fake.failCode, fake.reason = tt.code, tt.reason
			_, err := c.CopyTemplate(context.Background(), "tmpl", "n", "")
			if !errors.Is(err, tt.want) {
				t.Errorf("CopyTemplate() error = %v, want %v", err, tt.want)
			}
		})
	}

	plain := classify("op", &googleapi.Error{Code: http.StatusInternalServerError, Message: "boom"})
	if errors.Is(plain, model.ErrAuth) || errors.Is(plain, model.ErrQuota) {
		t.Errorf("500 classified as %v", plain)
	}
}
