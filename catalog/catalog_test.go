package catalog

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

func TestExtractVideoID(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"watch url", "https://www.youtube.com/watch?v=dQw4w9WgXcQ", "dQw4w9WgXcQ"},
		{"watch url extra params", "https://www.youtube.com/watch?t=10&v=dQw4w9WgXcQ&list=x", "dQw4w9WgXcQ"},
		{"embed", "https://www.youtube.com/embed/dQw4w9WgXcQ?start=5", "dQw4w9WgXcQ"},
		{"shorts", "https://youtube.com/shorts/dQw4w9WgXcQ", "dQw4w9WgXcQ"},
		{"live", "https://www.youtube.com/live/dQw4w9WgXcQ", "dQw4w9WgXcQ"},
		{"legacy v path", "https://www.youtube.com/v/dQw4w9WgXcQ", "dQw4w9WgXcQ"},
		{"short link", "https://youtu.be/dQw4w9WgXcQ", "dQw4w9WgXcQ"},
		{"short link with query", "https://youtu.be/dQw4w9WgXcQ?t=42", "dQw4w9WgXcQ"},
		{"bare id", "dQw4w9WgXcQ", "dQw4w9WgXcQ"},
		{"id embedded in text", "video=dQw4w9WgXcQ&x=1", "dQw4w9WgXcQ"},
		{"nothing", "not a video", ""},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExtractVideoID(tt.in); got != tt.want {
				t.Errorf("ExtractVideoID(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestReconcile(t *testing.T) {
	report := Reconcile(
		[]string{"aaaaaaaaaaa", "bbbbbbbbbbb", "ccccccccccc"},
		[]string{"bbbbbbbbbbb", "ddddddddddd", ""},
	)

	if want := []string{"aaaaaaaaaaa", "ccccccccccc"}; !reflect.DeepEqual(report.Missing, want) {
		t.Errorf("Missing = %v, want %v", report.Missing, want)
	}
	if want := []string{"ddddddddddd"}; !reflect.DeepEqual(report.Extra, want) {
		t.Errorf("Extra = %v, want %v", report.Extra, want)
	}
}

func TestReconcileIdentical(t *testing.T) {
	ids := []string{"aaaaaaaaaaa", "bbbbbbbbbbb"}
	report := Reconcile(ids, ids)
	if len(report.Missing) != 0 || len(report.Extra) != 0 {
		t.Errorf("identical sets should reconcile cleanly, got %+v", report)
	}
}

func TestReadCatalogIDs(t *testing.T) {
	csvData := `article_id,video_path,note
1,https://www.youtube.com/watch?v=aaaaaaaaaaa,first
2,https://youtu.be/bbbbbbbbbbb,second
3,https://www.youtube.com/watch?v=aaaaaaaaaaa,duplicate
4,,empty
5,broken,unparseable
`
	ids, err := readCatalogIDs(strings.NewReader(csvData), "video_path")
	if err != nil {
		t.Fatalf("readCatalogIDs: %v", err)
	}
	want := []string{"aaaaaaaaaaa", "bbbbbbbbbbb"}
	if !reflect.DeepEqual(ids, want) {
		t.Errorf("ids = %v, want %v", ids, want)
	}
}

func TestReadCatalogIDsMissingColumn(t *testing.T) {
	_, err := readCatalogIDs(strings.NewReader("a,b\n1,2\n"), "video_path")
	if err == nil {
		t.Error("expected error for missing column")
	}
}

func TestLoadCatalogIDs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "videos.csv")
	content := "video_path\nhttps://www.youtube.com/watch?v=aaaaaaaaaaa\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	ids, err := LoadCatalogIDs(path, "video_path")
	if err != nil {
		t.Fatalf("LoadCatalogIDs: %v", err)
	}
	if len(ids) != 1 || ids[0] != "aaaaaaaaaaa" {
		t.Errorf("ids = %v", ids)
	}
}

func TestWriteIDs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ids.txt")
	if err := WriteIDs(path, []string{"zzzzzzzzzzz", "aaaaaaaaaaa"}); err != nil {
		t.Fatalf("WriteIDs: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "aaaaaaaaaaa\nzzzzzzzzzzz\n" {
		t.Errorf("content = %q", data)
	}
}

func TestResolveChannelID(t *testing.T) {
	id, err := resolveChannelID("https://www.youtube.com/channel/UCdQw4w9WgXcQdQw4w9WgXcQ/videos")
	if err != nil {
		t.Fatalf("resolveChannelID: %v", err)
	}
	if id != "UCdQw4w9WgXcQdQw4w9WgXcQ" {
		t.Errorf("id = %q", id)
	}

	if _, err := resolveChannelID("@somehandle"); err == nil {
		t.Error("handles cannot be resolved without the Data API")
	}
}
