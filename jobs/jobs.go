// Package jobs drives batch comment downloads from a catalog CSV export.
// Each row maps an article to a video; the runner downloads every video's
// comments to its own JSONL file and records the outcome in a manifest.
package jobs

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"regexp"
	"strconv"
	"strings"
)

// youtubeIDRe extracts a video identifier from the URL shapes found in
// catalog exports.
var youtubeIDRe = regexp.MustCompile(`(?i)(?:youtu\.be/|youtube\.com/(?:watch\?v=|embed/|shorts/|v/|live/))([A-Za-z0-9_-]{6,})`)

// bareIDRe matches a bare video identifier with no surrounding URL.
var bareIDRe = regexp.MustCompile(`^[A-Za-z0-9_-]{6,}$`)

// unsafeComponentRe matches filename characters that are replaced when
// building output names.
var unsafeComponentRe = regexp.MustCompile(`[^A-Za-z0-9_.-]`)

// CommentJob is one video to download, tied to the article that embeds it.
type CommentJob struct {
	ArticleID    string
	ArticleTitle string
	Sequence     int
	VideoID      string
	URL          string
}

// ExtractYouTubeID pulls the video identifier out of a URL, or "" when the
// URL is not a recognized video link.
func ExtractYouTubeID(url string) string {
	m := youtubeIDRe.FindStringSubmatch(url)
	if m == nil {
		return ""
	}
	return m[1]
}

// NormalizeWatchURL converts the raw video reference from a catalog row
// into a canonical watch URL. Protocol-relative URLs get https, bare IDs
// become watch URLs, and unrecognized HTTP URLs pass through unchanged.
// Returns "" when the value cannot be turned into a usable URL.
func NormalizeWatchURL(raw string) string {
	candidate := strings.TrimSpace(raw)
	if candidate == "" {
		return ""
	}
	if strings.HasPrefix(candidate, "//") {
		candidate = "https:" + candidate
	}
	if id := ExtractYouTubeID(candidate); id != "" {
		return "https://www.youtube.com/watch?v=" + id
	}
	if strings.HasPrefix(strings.ToLower(candidate), "http") {
		return candidate
	}
	if bareIDRe.MatchString(candidate) {
		return "https://www.youtube.com/watch?v=" + candidate
	}
	return ""
}

// SanitizeComponent makes a string safe for use in a filename.
func SanitizeComponent(value string) string {
	safe := unsafeComponentRe.ReplaceAllString(value, "_")
	safe = strings.Trim(safe, "._")
	if safe == "" {
		return "video"
	}
	return safe
}

// OutputName is the JSONL filename for a job:
// {article_id}_{sequence:02d}_{video_id}.jsonl.
func OutputName(job CommentJob) string {
	return fmt.Sprintf("%s_%02d_%s.jsonl", SanitizeComponent(job.ArticleID), job.Sequence, job.VideoID)
}

// ReadTitles loads the article id -> title map from an articles CSV with
// "id" and "title" columns. A missing file yields an empty map, not an
// error; titles are an optional enrichment.
func ReadTitles(path string) (map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("open articles: %w", err)
	}
	defer f.Close()
	return readTitles(f)
}

func readTitles(r io.Reader) (map[string]string, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read articles header: %w", err)
	}
	cols := columnIndex(header)

	titles := map[string]string{}
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read articles row: %w", err)
		}
		id := strings.TrimSpace(field(row, cols, "id"))
		title := strings.TrimSpace(field(row, cols, "title"))
		if id != "" && title != "" {
			titles[id] = title
		}
	}
	return titles, nil
}

// ReadJobs loads jobs from an article-videos CSV with "article_id",
// "video_path", and optional "sequence_number" columns. Rows without a
// usable video reference are dropped. limit 0 means no limit.
func ReadJobs(path string, limit int, titles map[string]string) ([]CommentJob, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open jobs: %w", err)
	}
	defer f.Close()
	return readJobs(f, limit, titles)
}

func readJobs(r io.Reader, limit int, titles map[string]string) ([]CommentJob, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read jobs header: %w", err)
	}
	cols := columnIndex(header)

	var out []CommentJob
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read jobs row: %w", err)
		}

		articleID := strings.TrimSpace(field(row, cols, "article_id"))
		rawVideo := strings.TrimSpace(field(row, cols, "video_path"))
		if articleID == "" || rawVideo == "" {
			continue
		}

		url := NormalizeWatchURL(rawVideo)
		if url == "" {
			continue
		}
		videoID := ExtractYouTubeID(url)
		if videoID == "" {
			continue
		}

		sequence := 1
		if s := strings.TrimSpace(field(row, cols, "sequence_number")); s != "" {
			if n, err := strconv.Atoi(s); err == nil {
				sequence = n
			}
		}

		out = append(out, CommentJob{
			ArticleID:    articleID,
			ArticleTitle: titles[articleID],
			Sequence:     sequence,
			VideoID:      videoID,
			URL:          url,
		})
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func columnIndex(header []string) map[string]int {
	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[strings.TrimSpace(name)] = i
	}
	return cols
}

func field(row []string, cols map[string]int, name string) string {
	i, ok := cols[name]
	if !ok || i >= len(row) {
		return ""
	}
	return row[i]
}
